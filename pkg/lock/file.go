package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const fileLockRetryDelay = 20 * time.Millisecond

// FileLocker is a cross-process Locker: each stripe is a lock file inside one directory, locked with flock.
// Every Lock call opens its own handle, so goroutines of one process exclude each other as well.
type FileLocker struct { // Implements Locker.
	dir     string
	stripes int
}

var _ Locker = (*FileLocker)(nil)

// NewFileLocker is the constructor for FileLocker; `dir` is created if missing.
func NewFileLocker(dir string, stripes int) (*FileLocker, error) {
	if dir == "" {
		return nil, errors.New("expected a non-empty lock directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory %s: %w", dir, err)
	}
	return &FileLocker{dir: dir, stripes: sanitizeStripes("file_lock", stripes)}, nil
}

// stripePath returns the lock file guarding `key`.
func (fl *FileLocker) stripePath(key string) string {
	return filepath.Join(fl.dir, fmt.Sprintf("stripe-%04d.lock", stripeOf(key, fl.stripes)))
}

func (fl *FileLocker) Lock(ctx context.Context, key string) (func(), error) {
	path := fl.stripePath(key)
	fileLock := flock.New(path)
	locked, err := fileLock.TryLockContext(ctx, fileLockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("failed to lock %s", path)
	}
	return func() {
		if err := fileLock.Unlock(); err != nil {
			slog.Error("Failed to release list lock.", "path", path, "error", err)
		}
	}, nil
}
