// Doclist keeps every list inside a single owning document, so the only thing it needs from a database is a
// handful of document primitives. This module declares that contract; the linked list core is written purely
// against it, and each backend (embedded, file, MongoDB) implements it.
//
// Documents, filters, updates and pipeline stages are plain maps using the MongoDB query language. Only the subset
// the core issues is guaranteed to be understood by the embedded engine (see memory.go).

package docstore

import (
	"context"
	"errors"
)

var (
	// ErrDocumentNotFound is returned by FindByID when no document has the given id.
	ErrDocumentNotFound = errors.New("document was not found")
	// ErrDuplicateID is returned by InsertOne when a document with the same id already exists.
	ErrDuplicateID = errors.New("document id already exists")
	// ErrUnsupported is returned when a filter, update or pipeline uses a construct the backend doesn't interpret.
	ErrUnsupported = errors.New("unsupported query construct")
)

// IDField is the primary key of every document.
const IDField = "_id"

// M is a document, a filter, an update specification or a pipeline stage.
type M = map[string]any

// Pipeline is an ordered list of aggregation stages.
type Pipeline = []M

// UpdateResult reports how many documents an update matched and how many it actually changed.
type UpdateResult struct {
	Matched  int64
	Modified int64
}

// Store is the document store adapter contract.
type Store interface {
	// FindByID returns the fields of document `id` selected by `projection`; a nil projection returns the whole
	// document. Returns ErrDocumentNotFound if the document doesn't exist.
	FindByID(ctx context.Context, id string, projection M) (M, error)
	// UpdateOne applies `update` to the first document matching `filter`. Positional `$[ident]` path segments inside
	// `update` are resolved against `arrayFilters`.
	UpdateOne(ctx context.Context, filter, update M, arrayFilters ...M) (UpdateResult, error)
	// Aggregate runs `pipeline` over the whole collection.
	Aggregate(ctx context.Context, pipeline Pipeline) ([]M, error)
}

// Inserter creates owning documents. It is kept apart from Store since the list core never creates documents.
type Inserter interface {
	InsertOne(ctx context.Context, doc M) error
}
