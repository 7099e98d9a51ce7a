package importer

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suptia/contentsync/internal/config"
	"github.com/suptia/contentsync/internal/document"
	"github.com/suptia/contentsync/internal/report"
	"github.com/suptia/contentsync/internal/sanity"
)

type fixture struct {
	cfg    *config.Config
	store  *sanity.Fake
	runner *Runner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.Sanity.ProjectID = "testproj"
	cfg.Import.ArticleDir = filepath.Join(root, "articles")
	cfg.Import.RetryCount = 2
	cfg.Backup.Enabled = false
	cfg.Backup.Dir = filepath.Join(root, "backups")
	cfg.Logging.Dir = filepath.Join(root, "logs")
	require.NoError(t, os.MkdirAll(cfg.Import.ArticleDir, 0o755))

	store := sanity.NewFake()
	runner := NewRunner(&cfg, report.Discard(), func(context.Context) (sanity.Store, error) {
		return store, nil
	})
	runner.retryWait = time.Millisecond
	return &fixture{cfg: &cfg, store: store, runner: runner}
}

func (f *fixture) writeArticle(t *testing.T, name string, doc map[string]any) {
	t.Helper()
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(f.cfg.Import.ArticleDir, name), raw, 0o644))
}

func article(name, slug, description string) map[string]any {
	return map[string]any{
		"name":        name,
		"nameEn":      name,
		"slug":        slug,
		"category":    "vitamin",
		"description": description,
	}
}

func (f *fixture) readJobLog(t *testing.T) JobLog {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(f.cfg.Logging.Dir, "import-log-*.json"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	raw, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	var log JobLog
	require.NoError(t, json.Unmarshal(raw, &log))
	return log
}

func TestRunScenarioCreateUpdateSkip(t *testing.T) {
	f := newFixture(t)

	// File A: identical remote document. File B: unknown slug. File C: remote
	// document with a stale description.
	f.store.Seed(document.Document{
		"_type": "ingredient", "name": "Alpha", "nameEn": "Alpha",
		"slug":     map[string]any{"_type": "slug", "current": "alpha"},
		"category": "vitamin", "description": "same text",
	})
	f.store.Seed(document.Document{
		"_type": "ingredient", "name": "Gamma", "nameEn": "Gamma",
		"slug":     map[string]any{"_type": "slug", "current": "gamma"},
		"category": "vitamin", "description": "old text",
	})
	f.writeArticle(t, "a-alpha.json", article("Alpha", "alpha", "same text"))
	f.writeArticle(t, "b-new.json", article("Beta", "new-ingredient", "brand new"))
	f.writeArticle(t, "c-gamma.json", article("Gamma", "gamma", "fresh text"))

	require.NoError(t, f.runner.Run(context.Background()))

	log := f.readJobLog(t)
	require.Len(t, log.Results, 3)

	a, b, c := log.Results[0], log.Results[1], log.Results[2]
	assert.Equal(t, "a-alpha.json", a.File, "results follow discovery order")
	assert.Equal(t, StatusSkipped, a.Status)
	assert.Equal(t, ActionSkipped, a.Action)

	assert.Equal(t, StatusSuccess, b.Status)
	assert.Equal(t, ActionCreated, b.Action)
	assert.Equal(t, "new-ingredient", b.Slug)
	assert.NotEmpty(t, b.DocumentID)

	assert.Equal(t, StatusSuccess, c.Status)
	assert.Equal(t, ActionUpdated, c.Action)

	assert.Equal(t, Stats{Success: 2, Failed: 0, Skipped: 1, Created: 1, Updated: 1}, log.Stats)
	assert.Equal(t, 1.0, log.SuccessRate)
	assert.Equal(t, 3, log.TotalFiles)
	assert.Equal(t, "upsert", log.Mode)

	assert.Equal(t, 1, f.store.CreateCalls)
	assert.Equal(t, 1, f.store.PatchCalls)
}

func TestRunIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.writeArticle(t, "zinc.json", article("Zinc", "zinc", "trace mineral"))
	f.writeArticle(t, "iron.json", article("Iron", "iron", "essential mineral"))

	require.NoError(t, f.runner.Run(context.Background()))
	firstMutations := f.store.Mutations()
	assert.Equal(t, 2, firstMutations)

	// Clear the first job log so readJobLog sees only the second run.
	matches, _ := filepath.Glob(filepath.Join(f.cfg.Logging.Dir, "import-log-*.json"))
	for _, m := range matches {
		require.NoError(t, os.Remove(m))
	}

	require.NoError(t, f.runner.Run(context.Background()))
	log := f.readJobLog(t)
	for _, res := range log.Results {
		assert.Equal(t, StatusSkipped, res.Status)
	}
	assert.Equal(t, firstMutations, f.store.Mutations(), "second run makes zero remote mutations")
}

func TestValidationGateBlocksWholeBatch(t *testing.T) {
	f := newFixture(t)
	f.writeArticle(t, "good.json", article("Zinc", "zinc", "fine"))
	f.writeArticle(t, "bad.json", map[string]any{"name": "Broken"})

	err := f.runner.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation gate")
	assert.Equal(t, 0, f.store.Mutations(), "no writes for a dirty batch")
	assert.Equal(t, 0, f.store.FetchCalls, "not even reads happen")
}

func TestDryRunMakesNoRemoteCalls(t *testing.T) {
	f := newFixture(t)
	f.cfg.Import.DryRun = true
	f.writeArticle(t, "zinc.json", article("Zinc", "zinc", "trace mineral"))

	require.NoError(t, f.runner.Run(context.Background()))

	log := f.readJobLog(t)
	require.Len(t, log.Results, 1)
	assert.Equal(t, StatusSuccess, log.Results[0].Status)
	assert.Equal(t, ActionCreated, log.Results[0].Action)
	assert.Equal(t, "dry-run-zinc", log.Results[0].DocumentID)
	assert.True(t, log.DryRun)
	assert.Equal(t, 0, f.store.FetchCalls)
	assert.Equal(t, 0, f.store.Mutations())
}

func TestRetryExhaustionRecordsFailure(t *testing.T) {
	f := newFixture(t)
	f.store.Seed(document.Document{
		"_type": "ingredient", "name": "Zinc", "nameEn": "Zinc",
		"slug":     map[string]any{"_type": "slug", "current": "zinc"},
		"category": "mineral", "description": "old",
	})
	f.store.PatchErr = errors.New("rate limited")
	f.writeArticle(t, "zinc.json", article("Zinc", "zinc", "new"))

	require.NoError(t, f.runner.Run(context.Background()), "per-file failures never fail the run")

	log := f.readJobLog(t)
	require.Len(t, log.Results, 1)
	res := log.Results[0]
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, "zinc", res.Slug, "failure keeps the parsed slug")
	assert.Contains(t, res.Error, "rate limited")
	assert.Equal(t, f.cfg.Import.RetryCount, res.Retries, "retryCount+1 total attempts")
	assert.Equal(t, f.cfg.Import.RetryCount+1, f.store.PatchCalls)
	assert.Equal(t, Stats{Failed: 1}, log.Stats)
	assert.Equal(t, 0.0, log.SuccessRate)
}

func TestNoFilesIsSuccessWithoutJobLog(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.runner.Run(context.Background()))
	matches, err := filepath.Glob(filepath.Join(f.cfg.Logging.Dir, "import-log-*.json"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestBelowThresholdWarnsButSucceeds(t *testing.T) {
	f := newFixture(t)
	f.cfg.Import.SuccessThreshold = 0.8
	f.cfg.Import.RetryCount = 0
	f.store.CreateErr = errors.New("service unavailable")
	f.writeArticle(t, "zinc.json", article("Zinc", "zinc", "trace mineral"))

	require.NoError(t, f.runner.Run(context.Background()), "below-threshold success rate is advisory")
	log := f.readJobLog(t)
	assert.Equal(t, 0.0, log.SuccessRate)
}

func TestBelowThresholdStrictModeFails(t *testing.T) {
	f := newFixture(t)
	f.cfg.Import.SuccessThreshold = 0.8
	f.cfg.Import.StrictThreshold = true
	f.cfg.Import.RetryCount = 0
	f.store.CreateErr = errors.New("service unavailable")
	f.writeArticle(t, "zinc.json", article("Zinc", "zinc", "trace mineral"))

	err := f.runner.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "below threshold")
	// The job log is still persisted before the strict check fires.
	log := f.readJobLog(t)
	assert.Equal(t, Stats{Failed: 1}, log.Stats)
}

func TestBackupRunsBeforeImport(t *testing.T) {
	f := newFixture(t)
	f.cfg.Backup.Enabled = true
	f.store.Seed(document.Document{
		"_type": "ingredient", "name": "Old", "nameEn": "Old",
		"slug":     map[string]any{"_type": "slug", "current": "old"},
		"category": "vitamin", "description": "v1",
	})
	f.writeArticle(t, "zinc.json", article("Zinc", "zinc", "trace mineral"))

	require.NoError(t, f.runner.Run(context.Background()))

	log := f.readJobLog(t)
	require.NotNil(t, log.Backup)
	assert.Greater(t, log.Backup.Size, int64(0))
	_, err := os.Stat(log.Backup.Path)
	assert.NoError(t, err)
	assert.Equal(t, 1, f.store.ExportCalls)
}

func TestBackupFailureIsNonFatal(t *testing.T) {
	f := newFixture(t)
	f.cfg.Backup.Enabled = true
	f.store.ExportErr = errors.New("export broken")
	f.writeArticle(t, "zinc.json", article("Zinc", "zinc", "trace mineral"))

	require.NoError(t, f.runner.Run(context.Background()))
	log := f.readJobLog(t)
	assert.Nil(t, log.Backup)
	assert.Equal(t, 1, f.store.CreateCalls, "import proceeds without the backup")
}

func TestBackupSkippedOnDryRun(t *testing.T) {
	f := newFixture(t)
	f.cfg.Backup.Enabled = true
	f.cfg.Import.DryRun = true
	f.writeArticle(t, "zinc.json", article("Zinc", "zinc", "trace mineral"))

	require.NoError(t, f.runner.Run(context.Background()))
	assert.Equal(t, 0, f.store.ExportCalls)
}

func TestStoreFactoryFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.runner = NewRunner(f.cfg, report.Discard(), func(context.Context) (sanity.Store, error) {
		return nil, sanity.ErrMissingToken
	})
	f.writeArticle(t, "zinc.json", article("Zinc", "zinc", "trace mineral"))

	err := f.runner.Run(context.Background())
	assert.ErrorIs(t, err, sanity.ErrMissingToken)
}

func TestBareStringSlugIsNormalized(t *testing.T) {
	f := newFixture(t)
	f.writeArticle(t, "omega.json", article("Omega 3", "omega-3", "fish oil"))

	require.NoError(t, f.runner.Run(context.Background()))

	log := f.readJobLog(t)
	require.Len(t, log.Results, 1)
	stored := f.store.Get(log.Results[0].DocumentID)
	require.NotNil(t, stored)
	slug, ok := stored["slug"].(map[string]any)
	require.True(t, ok, "slug stored in structured form")
	assert.Equal(t, "omega-3", slug["current"])
}

func TestJobLogSerialization(t *testing.T) {
	f := newFixture(t)
	f.writeArticle(t, "zinc.json", article("Zinc", "zinc", "trace mineral"))
	require.NoError(t, f.runner.Run(context.Background()))

	matches, err := filepath.Glob(filepath.Join(f.cfg.Logging.Dir, "import-log-*.json"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	raw, err := os.ReadFile(matches[0])
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	for _, key := range []string{"jobId", "mode", "dryRun", "startTime", "endTime",
		"duration", "totalFiles", "results", "stats", "successRate"} {
		assert.Contains(t, decoded, key)
	}
}
