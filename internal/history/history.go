// Package history keeps an optional Postgres record of import runs so
// operators can see the import trend without digging through job log files.
// It is wired only when logging.historyDSN is configured.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Run is one row in the import_runs table.
type Run struct {
	JobID       string
	Mode        string
	DryRun      bool
	TotalFiles  int
	Created     int
	Updated     int
	Skipped     int
	Failed      int
	SuccessRate float64
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Store wraps all SQL used for run history.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pgx pool for the DSN and ensures the schema exists.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 4
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect history database: %w", err)
	}
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// ensureSchema keeps the migration in code so the CLI is self-contained.
func (s *Store) ensureSchema(ctx context.Context) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS import_runs (
	job_id TEXT PRIMARY KEY,
	mode TEXT NOT NULL,
	dry_run BOOLEAN NOT NULL,
	total_files INT NOT NULL,
	created_count INT NOT NULL,
	updated_count INT NOT NULL,
	skipped_count INT NOT NULL,
	failed_count INT NOT NULL,
	success_rate DOUBLE PRECISION NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_import_runs_started_at ON import_runs(started_at);`
	if _, err := s.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Record inserts one finished run.
func (s *Store) Record(ctx context.Context, run Run) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO import_runs
			(job_id, mode, dry_run, total_files, created_count, updated_count,
			 skipped_count, failed_count, success_rate, started_at, finished_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, run.JobID, run.Mode, run.DryRun, run.TotalFiles, run.Created, run.Updated,
		run.Skipped, run.Failed, run.SuccessRate, run.StartedAt, run.FinishedAt)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}
