// Package importer coordinates the upsert pipeline: discover article files,
// gate the whole batch on validation, back up the dataset, then diff and
// upsert each file with bounded concurrency under the cross-process job lock.
package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/suptia/contentsync/internal/backup"
	"github.com/suptia/contentsync/internal/config"
	"github.com/suptia/contentsync/internal/differ"
	"github.com/suptia/contentsync/internal/document"
	"github.com/suptia/contentsync/internal/history"
	"github.com/suptia/contentsync/internal/joblock"
	"github.com/suptia/contentsync/internal/report"
	"github.com/suptia/contentsync/internal/sanity"
	"github.com/suptia/contentsync/internal/validate"
)

// LockFileName is the job lock marker under the logging directory.
const LockFileName = "import.lock"

// validationConcurrency bounds the validation phase; the upsert phase is
// bounded by the configured batch size instead.
const validationConcurrency = 5

// StoreFactory builds the remote store. It runs after the validation gate so
// a missing token aborts before any file work but never before bad input
// would have anyway.
type StoreFactory func(ctx context.Context) (sanity.Store, error)

// RunRecorder persists a finished run to history storage.
type RunRecorder interface {
	Record(ctx context.Context, run history.Run) error
}

// Runner owns one pipeline execution end to end, including the JobLog.
type Runner struct {
	cfg      *config.Config
	reporter *report.Reporter
	newStore StoreFactory
	uploader *backup.S3Uploader
	recorder RunRecorder

	// retryWait is the initial backoff interval between upsert attempts.
	retryWait time.Duration
}

// NewRunner wires a Runner. uploader and recorder are optional.
func NewRunner(cfg *config.Config, reporter *report.Reporter, newStore StoreFactory) *Runner {
	return &Runner{
		cfg:       cfg,
		reporter:  reporter,
		newStore:  newStore,
		retryWait: time.Second,
	}
}

// WithUploader enables offsite upload of the pre-import backup.
func (r *Runner) WithUploader(u *backup.S3Uploader) *Runner {
	r.uploader = u
	return r
}

// WithRecorder enables the Postgres run-history record.
func (r *Runner) WithRecorder(rec RunRecorder) *Runner {
	r.recorder = rec
	return r
}

// Run executes the whole pipeline under the job lock. Lock contention,
// validation failures, and client construction failures return errors; all
// per-file trouble is folded into the job log instead.
func (r *Runner) Run(ctx context.Context) error {
	start := time.Now()
	log := &JobLog{
		JobID:     newJobID(start),
		Mode:      "upsert",
		DryRun:    r.cfg.Import.DryRun,
		StartTime: start,
	}
	r.reporter.Startf("import job %s starting (dry run: %v)", log.JobID, log.DryRun)

	lockPath := filepath.Join(r.cfg.Logging.Dir, LockFileName)
	return joblock.WithLock(ctx, lockPath, joblock.DefaultStaleAfter, func() error {
		return r.run(ctx, log)
	})
}

func (r *Runner) run(ctx context.Context, log *JobLog) error {
	files, err := r.discover()
	if err != nil {
		return err
	}
	if len(files) == 0 {
		r.reporter.Warnf("no article files match %s in %s; nothing to import",
			r.cfg.Import.FilePattern, r.cfg.Import.ArticleDir)
		return nil
	}
	log.TotalFiles = len(files)
	r.reporter.Infof("discovered %d article files", len(files))

	if err := r.validateAll(files); err != nil {
		return err
	}

	store, err := r.newStore(ctx)
	if err != nil {
		return fmt.Errorf("construct dataset client: %w", err)
	}

	if r.cfg.Backup.Enabled && !r.cfg.Import.DryRun {
		taker := backup.NewTaker(store, r.cfg.Backup.Dir, r.uploader, r.reporter)
		meta, err := taker.Create(ctx, r.cfg.Sanity.Dataset)
		if err != nil {
			r.reporter.Warnf("backup failed: %v; continuing without backup", err)
		} else {
			log.Backup = &meta
			r.reporter.Infof("backup written to %s (%d bytes)", meta.Path, meta.Size)
		}
	}

	// Results are addressed by index so the job log stays in discovery order
	// no matter how the workers interleave.
	results := make([]ImportResult, len(files))
	g := new(errgroup.Group)
	g.SetLimit(r.cfg.Import.BatchSize)
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			results[i] = r.importFile(ctx, store, file)
			return nil
		})
	}
	_ = g.Wait()

	log.Results = results
	log.finalize(time.Now())

	logPath, err := log.persist(r.cfg.Logging.Dir, r.cfg.Logging.Format)
	if err != nil {
		return err
	}
	r.reporter.Infof("job log written to %s", logPath)

	if r.recorder != nil {
		rec := history.Run{
			JobID:       log.JobID,
			Mode:        log.Mode,
			DryRun:      log.DryRun,
			TotalFiles:  log.TotalFiles,
			Created:     log.Stats.Created,
			Updated:     log.Stats.Updated,
			Skipped:     log.Stats.Skipped,
			Failed:      log.Stats.Failed,
			SuccessRate: log.SuccessRate,
			StartedAt:   log.StartTime,
			FinishedAt:  log.EndTime,
		}
		if err := r.recorder.Record(ctx, rec); err != nil {
			r.reporter.Warnf("record run history: %v", err)
		}
	}

	if log.Stats.Failed > 0 {
		rows := make([][]string, 0, log.Stats.Failed)
		for _, res := range log.Results {
			if res.Status == StatusFailed {
				rows = append(rows, []string{res.File, res.Slug, res.Error})
			}
		}
		r.reporter.Failf("%d of %d files failed", log.Stats.Failed, log.TotalFiles)
		r.reporter.Table([]string{"File", "Slug", "Error"}, rows)
	}

	if log.SuccessRate < r.cfg.Import.SuccessThreshold {
		r.reporter.Warnf("success rate %.0f%% is below the %.0f%% threshold; review %s",
			log.SuccessRate*100, r.cfg.Import.SuccessThreshold*100, logPath)
		if r.cfg.Import.StrictThreshold {
			return fmt.Errorf("success rate %.2f below threshold %.2f",
				log.SuccessRate, r.cfg.Import.SuccessThreshold)
		}
	}

	r.reporter.Succeedf("import job %s finished: %d created, %d updated, %d skipped, %d failed",
		log.JobID, log.Stats.Created, log.Stats.Updated, log.Stats.Skipped, log.Stats.Failed)
	return nil
}

// discover globs the article directory and sorts lexicographically so
// repeated runs process files in the same order.
func (r *Runner) discover() ([]string, error) {
	pattern := filepath.Join(r.cfg.Import.ArticleDir, r.cfg.Import.FilePattern)
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("discover article files: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// validateAll grades every file and aborts the run when any file fails. The
// gate is all-or-nothing: a dirty batch never reaches the dataset.
func (r *Runner) validateAll(files []string) error {
	results := make([]validate.Result, len(files))
	g := new(errgroup.Group)
	g.SetLimit(validationConcurrency)
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			results[i] = validate.Validate(file)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, res := range results {
		if !res.Passed {
			failed++
			problem := "unknown problem"
			if len(res.Problems) > 0 {
				problem = res.Problems[0]
			}
			r.reporter.Failf("validation failed: %s: %s", res.File, problem)
			continue
		}
		for _, w := range res.Warnings {
			r.reporter.Warnf("%s: %s", res.File, w)
		}
	}
	if failed > 0 {
		return fmt.Errorf("validation gate: %d of %d files failed, aborting before any write", failed, len(files))
	}
	r.reporter.Succeedf("validated %d files", len(files))
	return nil
}

// importFile processes one article file. It never returns an error; every
// failure path folds into the result.
func (r *Runner) importFile(ctx context.Context, store sanity.Store, path string) ImportResult {
	start := time.Now()
	res := ImportResult{File: filepath.Base(path)}
	fail := func(err error) ImportResult {
		res.Status = StatusFailed
		res.Error = err.Error()
		res.DurationMs = time.Since(start).Milliseconds()
		return res
	}

	doc, err := readArticle(path)
	if err != nil {
		return fail(err)
	}
	document.NormalizeSlug(doc)
	slug := document.Slug(doc)
	if slug == "" {
		return fail(errors.New("document has no slug"))
	}
	res.Slug = slug

	var existing document.Document
	if !r.cfg.Import.DryRun {
		existing, err = store.FetchBySlug(ctx, r.cfg.Import.DocumentType, slug)
		if err != nil {
			return fail(fmt.Errorf("fetch existing document: %w", err))
		}
	}

	d := differ.Diff(existing, doc)
	r.reporter.Debugf("%s: %s", res.File, differ.Summarize(d))
	if d.Status == differ.StatusUnchanged {
		res.Status = StatusSkipped
		res.Action = ActionSkipped
		res.DurationMs = time.Since(start).Milliseconds()
		return res
	}

	attempts := 0
	var (
		action Action
		docID  string
	)
	operation := func() error {
		attempts++
		a, id, opErr := r.upsertOnce(ctx, store, doc, slug)
		if opErr != nil {
			return opErr
		}
		action = a
		docID = id
		return nil
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.retryWait
	policy.Multiplier = 2
	policy.RandomizationFactor = 0.5
	policy.MaxElapsedTime = 0
	err = backoff.Retry(operation,
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(r.cfg.Import.RetryCount)), ctx))
	res.Retries = attempts - 1
	if err != nil {
		return fail(fmt.Errorf("upsert after %d attempts: %w", attempts, err))
	}

	res.Status = StatusSuccess
	res.Action = action
	res.DocumentID = docID
	res.DurationMs = time.Since(start).Milliseconds()
	return res
}

// upsertOnce performs one upsert attempt. The slug lookup is repeated here so
// the decision to patch or create reflects the dataset at the moment of
// mutation, not the earlier diff.
func (r *Runner) upsertOnce(ctx context.Context, store sanity.Store, doc document.Document, slug string) (Action, string, error) {
	if r.cfg.Import.DryRun {
		return ActionCreated, "dry-run-" + slug, nil
	}
	existing, err := store.FetchBySlug(ctx, r.cfg.Import.DocumentType, slug)
	if err != nil {
		return "", "", fmt.Errorf("fetch before upsert: %w", err)
	}
	payload := document.Payload(doc)
	if _, ok := payload["_type"]; !ok {
		payload["_type"] = r.cfg.Import.DocumentType
	}
	if existing != nil {
		id, _ := existing["_id"].(string)
		if id == "" {
			return "", "", fmt.Errorf("existing document for %s has no id", slug)
		}
		if err := store.Patch(ctx, id, payload); err != nil {
			return "", "", err
		}
		return ActionUpdated, id, nil
	}
	id, err := store.Create(ctx, payload)
	if err != nil {
		return "", "", err
	}
	return ActionCreated, id, nil
}

func readArticle(path string) (document.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read article: %w", err)
	}
	var doc document.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse article: %w", err)
	}
	return doc, nil
}
