package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/suptia/contentsync/internal/backup"
	"github.com/suptia/contentsync/internal/config"
	"github.com/suptia/contentsync/internal/history"
	"github.com/suptia/contentsync/internal/importer"
	"github.com/suptia/contentsync/internal/merge"
	"github.com/suptia/contentsync/internal/report"
	"github.com/suptia/contentsync/internal/sanity"
	"github.com/suptia/contentsync/internal/validate"
)

var (
	configPath string
	verbose    bool
)

func main() {
	// Best effort: a missing .env just means the environment is already set.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "contentsync: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contentsync",
		Short: "Suptia content synchronization CLI",
		Long: `contentsync pushes article JSON files into the Sanity dataset: it validates
the batch, backs up the dataset, and upserts each document by slug under a
cross-process job lock. It also carries the maintenance commands that keep
the dataset healthy (standalone validation, backups, duplicate merges).`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the JSON config file")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug output")
	cmd.AddCommand(
		newImportCmd(),
		newValidateCmd(),
		newBackupCmd(),
		newMergeCmd(),
	)
	return cmd
}

// setup loads the configuration and builds the progress reporter shared by
// every subcommand.
func setup() (*config.Config, *report.Reporter, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	reporter := report.New(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)
	return cfg, reporter, nil
}

func newLiveStore(cfg *config.Config) (sanity.Store, error) {
	return sanity.NewClient(cfg.Sanity, cfg.APIToken)
}

func newImportCmd() *cobra.Command {
	var (
		dryRun    bool
		batchSize int
		dir       string
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Validate, back up, and upsert all article files",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, reporter, err := setup()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("dry-run") {
				cfg.Import.DryRun = dryRun
			}
			if cmd.Flags().Changed("batch-size") {
				cfg.Import.BatchSize = batchSize
			}
			if dir != "" {
				cfg.Import.ArticleDir = dir
			}

			runner := importer.NewRunner(cfg, reporter, func(context.Context) (sanity.Store, error) {
				if cfg.Import.DryRun {
					// A dry run never talks to the dataset; the in-memory
					// store satisfies the wiring without needing a token.
					return sanity.NewFake(), nil
				}
				return newLiveStore(cfg)
			})

			if cfg.Backup.S3.Enabled {
				uploader, err := backup.NewS3Uploader(cfg.Backup.S3)
				if err != nil {
					reporter.Warnf("s3 uploader unavailable: %v; backups stay local", err)
				} else if err := uploader.EnsureBucket(ctx); err != nil {
					reporter.Warnf("s3 bucket unavailable: %v; backups stay local", err)
				} else {
					runner.WithUploader(uploader)
				}
			}

			if dsn := cfg.Logging.HistoryDSN; dsn != "" {
				store, err := history.Connect(ctx, dsn)
				if err != nil {
					reporter.Warnf("run history unavailable: %v", err)
				} else {
					defer store.Close()
					runner.WithRecorder(store)
				}
			}

			return runner.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Diff and report without mutating the dataset")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Concurrent upserts (overrides config)")
	cmd.Flags().StringVar(&dir, "dir", "", "Article directory (overrides config)")
	return cmd
}

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [files...]",
		Short: "Grade article files without touching the dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, reporter, err := setup()
			if err != nil {
				return err
			}
			files := args
			if len(files) == 0 {
				pattern := filepath.Join(cfg.Import.ArticleDir, cfg.Import.FilePattern)
				files, err = filepath.Glob(pattern)
				if err != nil {
					return fmt.Errorf("glob %s: %w", pattern, err)
				}
				sort.Strings(files)
			}
			if len(files) == 0 {
				reporter.Warnf("no files to validate")
				return nil
			}

			results := make([]validate.Result, len(files))
			g := new(errgroup.Group)
			g.SetLimit(5)
			for i, file := range files {
				i, file := i, file
				g.Go(func() error {
					results[i] = validate.Validate(file)
					return nil
				})
			}
			_ = g.Wait()

			failed := 0
			var rows [][]string
			for _, res := range results {
				if !res.Passed {
					failed++
					problem := ""
					if len(res.Problems) > 0 {
						problem = res.Problems[0]
					}
					rows = append(rows, []string{res.File, res.Grade, problem})
					continue
				}
				for _, w := range res.Warnings {
					reporter.Warnf("%s: %s", res.File, w)
				}
			}
			if failed > 0 {
				reporter.Table([]string{"File", "Grade", "Problem"}, rows)
				return fmt.Errorf("%d of %d files failed validation", failed, len(files))
			}
			reporter.Succeedf("all %d files passed validation", len(files))
			return nil
		},
	}
	return cmd
}

func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Export the dataset to a local archive",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, reporter, err := setup()
			if err != nil {
				return err
			}
			store, err := newLiveStore(cfg)
			if err != nil {
				return err
			}
			var uploader *backup.S3Uploader
			if cfg.Backup.S3.Enabled {
				uploader, err = backup.NewS3Uploader(cfg.Backup.S3)
				if err != nil {
					reporter.Warnf("s3 uploader unavailable: %v; backup stays local", err)
					uploader = nil
				} else if err := uploader.EnsureBucket(ctx); err != nil {
					reporter.Warnf("s3 bucket unavailable: %v; backup stays local", err)
					uploader = nil
				}
			}
			taker := backup.NewTaker(store, cfg.Backup.Dir, uploader, reporter)
			meta, err := taker.Create(ctx, cfg.Sanity.Dataset)
			if err != nil {
				return err
			}
			reporter.Succeedf("backup written to %s (%d bytes)", meta.Path, meta.Size)
			if meta.ObjectKey != "" {
				reporter.Infof("uploaded as %s", meta.ObjectKey)
			}
			return nil
		},
	}
	return cmd
}

func newMergeCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge duplicate product documents in the dataset",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, reporter, err := setup()
			if err != nil {
				return err
			}
			store, err := newLiveStore(cfg)
			if err != nil {
				return err
			}
			merger := merge.NewMerger(store, reporter)
			plan, err := merger.Run(ctx, cfg.Import.DocumentType, dryRun)
			if err != nil {
				return err
			}
			if len(plan.Groups) > 0 {
				rows := make([][]string, 0, len(plan.Groups))
				for _, g := range plan.Groups {
					rows = append(rows, []string{
						g.KeepName, g.KeepID, fmt.Sprintf("%d", len(g.Losers)),
					})
				}
				reporter.Table([]string{"Kept", "ID", "Duplicates"}, rows)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report the merge plan without mutating the dataset")
	return cmd
}
