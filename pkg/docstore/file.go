// FileStore persists one collection as a single JSON file. Every call reloads the file under a cross-process
// `flock`, runs on the embedded engine, and (for writes that changed something) saves the file back before
// releasing the lock. Saves go to a temp file that is renamed over the original, so readers never see a torn file.

package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

var (
	fileLockTimeout = flag.Duration("file_lock_timeout", 3*time.Second,
		"How long a file store call waits for the store file lock.")
	fileLockRetryDelay = 50 * time.Millisecond
)

// fileContents is the on-disk layout of a FileStore.
type fileContents struct {
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
	Documents []M       `json:"documents"`
}

const fileFormatVersion = 1

// FileStore is a Store persisted to a JSON file.
type FileStore struct { // Implements Store and Inserter.
	path string
	// mux serializes calls inside this process; flock locks held through one handle don't exclude each other.
	mux      sync.Mutex
	fileLock *flock.Flock
	engine   *MemoryStore
}

var (
	_ Store    = (*FileStore)(nil)
	_ Inserter = (*FileStore)(nil)
)

// NewFileStore is the constructor for FileStore. The parent directory of `path` is created if missing.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("expected a non-empty store path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory for %s: %w", path, err)
	}
	return &FileStore{
		path:     path,
		mux:      sync.Mutex{},
		fileLock: flock.New(path + ".lock"),
		engine:   NewMemoryStore(),
	}, nil
}

// Path returns the location of the store file.
func (fs *FileStore) Path() string {
	return fs.path
}

// withFile runs `fn` on the freshly loaded file contents while holding the file lock.
func (fs *FileStore) withFile(ctx context.Context, write bool, fn func(engine *MemoryStore) (changed bool, err error)) error {
	fs.mux.Lock()
	defer fs.mux.Unlock()

	lockCtx, cancel := context.WithTimeout(ctx, *fileLockTimeout)
	defer cancel()
	var (
		locked bool
		err    error
	)
	if write {
		locked, err = fs.fileLock.TryLockContext(lockCtx, fileLockRetryDelay)
	} else {
		locked, err = fs.fileLock.TryRLockContext(lockCtx, fileLockRetryDelay)
	}
	if err != nil {
		return fmt.Errorf("failed to lock store file %s: %w", fs.path, err)
	}
	if !locked {
		return fmt.Errorf("failed to lock store file %s", fs.path)
	}
	defer func() {
		if err := fs.fileLock.Unlock(); err != nil {
			slog.Error("Failed to unlock store file.", "path", fs.path, "error", err)
		}
	}()

	if err := fs.load(); err != nil {
		return err
	}
	changed, err := fn(fs.engine)
	if err != nil {
		return err
	}
	if write && changed {
		return fs.save()
	}
	return nil
}

// load reads the store file into the engine; a missing or empty file is an empty store. NOTE: Caller should lock.
func (fs *FileStore) load() error {
	raw, err := os.ReadFile(fs.path)
	if errors.Is(err, os.ErrNotExist) {
		return fs.engine.replaceAll(nil)
	}
	if err != nil {
		return fmt.Errorf("failed to read store file %s: %w", fs.path, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return fs.engine.replaceAll(nil)
	}

	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber() // Keeps integers integral; cloneValue turns json.Number into int64.
	var contents fileContents
	if err := decoder.Decode(&contents); err != nil {
		return fmt.Errorf("failed to parse store file %s: %w", fs.path, err)
	}
	if contents.Version != fileFormatVersion {
		return fmt.Errorf("store file %s has unsupported version %d", fs.path, contents.Version)
	}
	return fs.engine.replaceAll(contents.Documents)
}

// save writes the engine contents to the store file atomically. NOTE: Caller should lock.
func (fs *FileStore) save() error {
	contents := fileContents{Version: fileFormatVersion, UpdatedAt: time.Now().UTC(), Documents: fs.engine.snapshot()}
	raw, err := json.MarshalIndent(contents, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal store file: %w", err)
	}
	tmpPath := fs.path + ".tmp"
	if err := os.WriteFile(tmpPath, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write temp store file: %w", err)
	}
	if err := os.Rename(tmpPath, fs.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to replace store file %s: %w", fs.path, err)
	}
	return nil
}

func (fs *FileStore) InsertOne(ctx context.Context, doc M) error {
	return fs.withFile(ctx, true /*write*/, func(engine *MemoryStore) (bool, error) {
		return true, engine.InsertOne(ctx, doc)
	})
}

func (fs *FileStore) FindByID(ctx context.Context, id string, projection M) (M, error) {
	var found M
	err := fs.withFile(ctx, false /*write*/, func(engine *MemoryStore) (bool, error) {
		doc, err := engine.FindByID(ctx, id, projection)
		found = doc
		return false, err
	})
	return found, err
}

func (fs *FileStore) UpdateOne(ctx context.Context, filter, update M, arrayFilters ...M) (UpdateResult, error) {
	var result UpdateResult
	err := fs.withFile(ctx, true /*write*/, func(engine *MemoryStore) (bool, error) {
		res, err := engine.UpdateOne(ctx, filter, update, arrayFilters...)
		result = res
		return res.Modified > 0, err
	})
	return result, err
}

func (fs *FileStore) Aggregate(ctx context.Context, pipeline Pipeline) ([]M, error) {
	var docs []M
	err := fs.withFile(ctx, false /*write*/, func(engine *MemoryStore) (bool, error) {
		out, err := engine.Aggregate(ctx, pipeline)
		docs = out
		return false, err
	})
	return docs, err
}
