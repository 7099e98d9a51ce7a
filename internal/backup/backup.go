// Package backup snapshots the remote dataset before an import mutates it.
// A backup failure is reported but never stops the import; the archive is a
// convenience for manual recovery, not a transactional guarantee.
package backup

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/suptia/contentsync/internal/report"
	"github.com/suptia/contentsync/internal/sanity"
)

// Meta describes a completed backup. ObjectKey is set only when the archive
// was also shipped to S3.
type Meta struct {
	Path      string `json:"path"`
	Size      int64  `json:"size"`
	ObjectKey string `json:"objectKey,omitempty"`
}

// Taker streams dataset exports into local gzip archives.
type Taker struct {
	store    sanity.Store
	dir      string
	uploader *S3Uploader // nil disables offsite upload
	reporter *report.Reporter
}

// NewTaker builds a Taker. uploader may be nil.
func NewTaker(store sanity.Store, dir string, uploader *S3Uploader, reporter *report.Reporter) *Taker {
	return &Taker{store: store, dir: dir, uploader: uploader, reporter: reporter}
}

// Create exports the dataset into <dir>/backup-<dataset>-<timestamp>.ndjson.gz
// and returns its metadata. When an uploader is configured the archive is
// also pushed to S3; upload failure only warns, the local archive already
// exists at that point.
func (t *Taker) Create(ctx context.Context, dataset string) (Meta, error) {
	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return Meta{}, fmt.Errorf("create backup directory: %w", err)
	}

	stream, err := t.store.ExportDataset(ctx)
	if err != nil {
		return Meta{}, fmt.Errorf("export dataset: %w", err)
	}
	defer stream.Close()

	name := fmt.Sprintf("backup-%s-%s.ndjson.gz", dataset, time.Now().Format("20060102-150405"))
	path := filepath.Join(t.dir, name)
	if err := writeGzip(path, stream); err != nil {
		return Meta{}, err
	}

	fi, err := os.Stat(path)
	if err != nil {
		return Meta{}, fmt.Errorf("stat backup: %w", err)
	}
	meta := Meta{Path: path, Size: fi.Size()}

	if t.uploader != nil {
		key, err := t.uploader.Upload(ctx, path)
		if err != nil {
			t.reporter.Warnf("backup upload failed: %v (local archive kept at %s)", err, path)
		} else {
			meta.ObjectKey = key
		}
	}
	return meta, nil
}

func writeGzip(path string, src io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create backup file: %w", err)
	}
	gz := gzip.NewWriter(f)
	if _, err := io.Copy(gz, src); err != nil {
		gz.Close()
		f.Close()
		os.Remove(path)
		return fmt.Errorf("write backup: %w", err)
	}
	if err := gz.Close(); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("finalize backup: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close backup: %w", err)
	}
	return nil
}
