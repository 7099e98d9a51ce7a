package importer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/suptia/contentsync/internal/backup"
)

// Status classifies the outcome of one file.
type Status string

const (
	StatusSuccess Status = "success"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Action records which remote operation the file resulted in.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionSkipped Action = "skipped"
)

// ImportResult is the immutable record for one input file. Failures never
// propagate as errors; they land here with Status failed and the message in
// Error.
type ImportResult struct {
	File       string `json:"file"`
	Slug       string `json:"slug"`
	Status     Status `json:"status"`
	Action     Action `json:"action"`
	DocumentID string `json:"documentId,omitempty"`
	Error      string `json:"error,omitempty"`
	Retries    int    `json:"retries"`
	DurationMs int64  `json:"duration"`
}

// Stats aggregates per-file outcomes.
type Stats struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Created int `json:"created"`
	Updated int `json:"updated"`
}

// JobLog is the structured record of one pipeline run, persisted exactly once
// at job end. Results are in file-discovery order, not completion order.
type JobLog struct {
	JobID       string         `json:"jobId"`
	Mode        string         `json:"mode"`
	DryRun      bool           `json:"dryRun"`
	StartTime   time.Time      `json:"startTime"`
	EndTime     time.Time      `json:"endTime"`
	DurationMs  int64          `json:"duration"`
	TotalFiles  int            `json:"totalFiles"`
	Results     []ImportResult `json:"results"`
	Stats       Stats          `json:"stats"`
	SuccessRate float64        `json:"successRate"`
	Backup      *backup.Meta   `json:"backup,omitempty"`
}

// newJobID derives a unique job id from the start time. The nanosecond tail
// disambiguates runs started within the same second (only tests do that; real
// runs are serialized by the job lock).
func newJobID(t time.Time) string {
	return fmt.Sprintf("%s-%06d", t.Format("20060102-150405"), t.Nanosecond()/1000)
}

// finalize fills in the aggregate fields from Results.
func (l *JobLog) finalize(end time.Time) {
	l.EndTime = end
	l.DurationMs = end.Sub(l.StartTime).Milliseconds()
	l.Stats = Stats{}
	for _, r := range l.Results {
		switch r.Status {
		case StatusSuccess:
			l.Stats.Success++
		case StatusFailed:
			l.Stats.Failed++
		case StatusSkipped:
			l.Stats.Skipped++
		}
		switch r.Action {
		case ActionCreated:
			l.Stats.Created++
		case ActionUpdated:
			l.Stats.Updated++
		}
	}
	// Skipped files are a healthy outcome: an idempotent re-run where every
	// document is unchanged must not look like a degraded batch.
	if l.TotalFiles > 0 {
		l.SuccessRate = float64(l.Stats.Success+l.Stats.Skipped) / float64(l.TotalFiles)
	}
}

// persist writes the log as JSON under dir, pretty-printed unless format is
// "compact". Returns the written path.
func (l *JobLog) persist(dir, format string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create log directory: %w", err)
	}
	var (
		raw []byte
		err error
	)
	if strings.EqualFold(format, "compact") {
		raw, err = json.Marshal(l)
	} else {
		raw, err = json.MarshalIndent(l, "", "  ")
	}
	if err != nil {
		return "", fmt.Errorf("encode job log: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("import-log-%s.json", l.JobID))
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", fmt.Errorf("write job log: %w", err)
	}
	return path, nil
}
