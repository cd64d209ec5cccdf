package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nobletooth/doclist/pkg/docstore"
	"github.com/nobletooth/doclist/pkg/linkedlist"
	"github.com/nobletooth/doclist/pkg/lock"
)

var (
	storeBackend    = flag.String("store_backend", "file", "Document store backend: file/mongo")
	storePath       = flag.String("store_path", "doclist.json", "Path of the JSON file holding the documents of the file backend.")
	mongoURI        = flag.String("mongo_uri", "mongodb://localhost:27017", "Connection string of the mongo backend.")
	mongoDatabase   = flag.String("mongo_database", "doclist", "Database of the mongo backend.")
	mongoCollection = flag.String("mongo_collection", "lists", "Collection holding the owning documents.")
	mongoTimeout    = flag.Duration("mongo_timeout", 10*time.Second, "Timeout of every mongo operation.")
	listField       = flag.String("list_field", "list", "Field of the owning document holding the list.")
	nodeGroups      = flag.String("node_groups", "nodes", "Comma separated names of the node groups of a list.")
	lockMode        = flag.String("lock_mode", "none", "Per list locking: none/memory/file")
	lockDir         = flag.String("lock_dir", "", "Directory of the lock files of lock_mode=file; defaults to <store_path>.locks")
	lockStripes     = flag.Int("lock_stripes", 64, "Number of lock stripes list ids are spread over.")
)

type (
	StoreBackend string
	LockMode     string
)

const (
	StoreBackendFile  StoreBackend = "file"
	StoreBackendMongo StoreBackend = "mongo"

	LockModeNone   LockMode = "none"
	LockModeMemory LockMode = "memory"
	LockModeFile   LockMode = "file"
)

// backend is everything a command needs to operate on lists.
type backend struct {
	inserter docstore.Inserter
	layout   *linkedlist.Layout
	list     *linkedlist.List
	close    func(context.Context) error
}

// newLayout builds the list layout from the flags.
func newLayout() (*linkedlist.Layout, error) {
	var groups []linkedlist.NodeType
	for _, group := range strings.Split(*nodeGroups, ",") {
		if group = strings.TrimSpace(group); group != "" {
			groups = append(groups, linkedlist.NodeType(group))
		}
	}
	return linkedlist.NewLayout(*listField, groups...)
}

// newLocker builds the per list locker selected by -lock_mode; nil means no locking.
func newLocker() (lock.Locker, error) {
	switch LockMode(*lockMode) {
	case LockModeNone:
		return nil, nil
	case LockModeMemory:
		return lock.NewStriped(*lockStripes), nil
	case LockModeFile:
		dir := *lockDir
		if dir == "" {
			if StoreBackend(*storeBackend) != StoreBackendFile {
				return nil, errors.New("lock_dir is required for file locks on a non-file backend")
			}
			dir = *storePath + ".locks"
		}
		return lock.NewFileLocker(dir, *lockStripes)
	default:
		return nil, fmt.Errorf("unsupported lock mode %q", *lockMode)
	}
}

// openBackend connects to the store selected by -store_backend.
func openBackend(ctx context.Context) (*backend, error) {
	layout, err := newLayout()
	if err != nil {
		return nil, fmt.Errorf("invalid list layout: %w", err)
	}
	locker, err := newLocker()
	if err != nil {
		return nil, err
	}

	var (
		store       docstore.Store
		closeFn     = func(context.Context) error { return nil }
		backendType = StoreBackend(*storeBackend)
	)
	switch backendType {
	case StoreBackendFile:
		fileStore, err := docstore.NewFileStore(*storePath)
		if err != nil {
			return nil, err
		}
		store = fileStore
	case StoreBackendMongo:
		mongoStore, disconnect, err := docstore.ConnectMongo(ctx, *mongoURI, *mongoDatabase, *mongoCollection,
			*mongoTimeout)
		if err != nil {
			return nil, err
		}
		mongoStore.MatchObjectIDs(linkedlist.DataIDField)
		store, closeFn = mongoStore, disconnect
	default:
		return nil, fmt.Errorf("unsupported store backend %q", *storeBackend)
	}
	slog.Debug("Opened document store.", "backend", backendType, "lockMode", *lockMode)

	instrumented := docstore.Instrument(string(backendType), store)
	var opts []linkedlist.Option
	if locker != nil {
		opts = append(opts, linkedlist.WithLocker(locker))
	}
	list, err := linkedlist.New(instrumented, layout, opts...)
	if err != nil {
		_ = closeFn(ctx)
		return nil, err
	}
	return &backend{
		inserter: instrumented.(docstore.Inserter),
		layout:   layout,
		list:     list,
		close:    closeFn,
	}, nil
}

// withBackend runs `fn` with an open backend and closes it afterwards.
func withBackend(ctx context.Context, fn func(b *backend) error) error {
	b, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.close(ctx); err != nil {
			slog.Warn("Failed to close document store.", "error", err)
		}
	}()
	return fn(b)
}
