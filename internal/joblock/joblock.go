// Package joblock guards the dataset against concurrent import jobs with an
// advisory lock on a marker file. The flock, not the file's existence, is the
// mutex; the file sticking around after a crash is harmless because a crashed
// holder's lock is released by the OS and a stale file is reclaimed by mtime.
package joblock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// DefaultStaleAfter is how old a lock file may get before it is treated as
// abandoned and reclaimed.
const DefaultStaleAfter = time.Hour

const (
	acquireAttempts = 3
	attemptSpacing  = time.Second
)

// ErrLocked is returned when another import holds the lock after all
// acquisition attempts.
var ErrLocked = errors.New("another import is already running")

// WithLock runs fn while holding an exclusive lock on path. The lock is
// released on every exit path, including a panic inside fn. Brief contention
// is tolerated with a few spaced attempts; persistent contention returns
// ErrLocked without running fn.
func WithLock(ctx context.Context, path string, staleAfter time.Duration, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	reclaimStale(path, staleAfter)

	fl := flock.New(path)
	locked := false
	for attempt := 0; attempt < acquireAttempts; attempt++ {
		ok, err := fl.TryLock()
		if err != nil {
			return fmt.Errorf("acquire lock %s: %w", path, err)
		}
		if ok {
			locked = true
			break
		}
		if attempt == acquireAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(attemptSpacing):
		}
	}
	if !locked {
		return fmt.Errorf("%w (lock file: %s)", ErrLocked, path)
	}
	defer fl.Unlock()

	// Restart the staleness clock for this run.
	now := time.Now()
	_ = os.Chtimes(path, now, now)

	return fn()
}

// reclaimStale removes a lock file whose mtime exceeds the staleness bound.
// Removal failures are ignored; the flock attempt decides the outcome either
// way.
func reclaimStale(path string, staleAfter time.Duration) {
	if staleAfter <= 0 {
		return
	}
	fi, err := os.Stat(path)
	if err != nil {
		return
	}
	if time.Since(fi.ModTime()) > staleAfter {
		_ = os.Remove(path)
	}
}
