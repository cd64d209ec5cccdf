// The embedded engine interprets the subset of the MongoDB query language the list core issues:
//   - Filters   : equality, $eq, $ne, $in, $exists and $and on dotted paths, descending into arrays implicitly.
//   - Updates   : $set, $unset, $inc, $push and $pull; `$[ident]` positional segments resolved through array filters.
//   - Pipelines : $match, $project, $addFields (field paths and literals), $replaceRoot, $unwind and $limit.
//
// Every call works on a private deep copy of the affected documents, so an update is applied to a document as a
// whole or not at all, the same single-document atomicity a real document database offers.

package docstore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// MemoryStore keeps one collection of documents in memory.
type MemoryStore struct { // Implements Store and Inserter.
	mux  sync.RWMutex // Serializes writes; each call is atomic with respect to the others.
	docs map[ /*id*/ string]M
}

var (
	_ Store    = (*MemoryStore)(nil)
	_ Inserter = (*MemoryStore)(nil)
)

// NewMemoryStore is the constructor for MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{mux: sync.RWMutex{}, docs: make(map[string]M)}
}

// documentID extracts the string primary key of `doc`.
func documentID(doc M) (string, error) {
	id, ok := doc[IDField].(string)
	if !ok || id == "" {
		return "", fmt.Errorf("expected a non-empty string %s, got %T", IDField, doc[IDField])
	}
	return id, nil
}

func (ms *MemoryStore) InsertOne(ctx context.Context, doc M) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id, err := documentID(doc)
	if err != nil {
		return err
	}
	ms.mux.Lock()
	defer ms.mux.Unlock()
	if _, exists := ms.docs[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	ms.docs[id] = cloneDocument(doc)
	return nil
}

func (ms *MemoryStore) FindByID(ctx context.Context, id string, projection M) (M, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ms.mux.RLock()
	defer ms.mux.RUnlock()
	doc, exists := ms.docs[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	return project(doc, projection)
}

// candidateIDs narrows a filter down to the documents it may match, in a deterministic order.
func (ms *MemoryStore) candidateIDs(filter M) []string {
	if id, ok := filter[IDField].(string); ok {
		if _, exists := ms.docs[id]; exists {
			return []string{id}
		}
		return nil
	}
	return slices.Sorted(maps.Keys(ms.docs))
}

func (ms *MemoryStore) UpdateOne(ctx context.Context, filter, update M, arrayFilters ...M) (UpdateResult, error) {
	if err := ctx.Err(); err != nil {
		return UpdateResult{}, err
	}
	ms.mux.Lock()
	defer ms.mux.Unlock()

	for _, id := range ms.candidateIDs(filter) {
		matched, err := matchDocument(ms.docs[id], filter)
		if err != nil {
			return UpdateResult{}, err
		}
		if !matched {
			continue
		}
		// Work on a copy so a failing update leaves the stored document untouched.
		updated := cloneDocument(ms.docs[id])
		modified, err := applyUpdate(updated, update, arrayFilters)
		if err != nil {
			return UpdateResult{}, err
		}
		if newID, ok := updated[IDField].(string); !ok || newID != id {
			return UpdateResult{}, fmt.Errorf("update of document %s must not change %s", id, IDField)
		}
		result := UpdateResult{Matched: 1}
		if modified {
			ms.docs[id] = updated
			result.Modified = 1
		}
		return result, nil
	}
	return UpdateResult{}, nil
}

func (ms *MemoryStore) Aggregate(ctx context.Context, pipeline Pipeline) ([]M, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ms.mux.RLock()
	ids := slices.Sorted(maps.Keys(ms.docs))
	// Narrow the scan when the pipeline starts by matching an id, which is how the list core always starts.
	if len(pipeline) > 0 {
		if match, ok := pipeline[0]["$match"].(M); ok {
			ids = ms.candidateIDs(match)
		}
	}
	docs := make([]M, 0, len(ids))
	for _, id := range ids {
		docs = append(docs, cloneDocument(ms.docs[id]))
	}
	ms.mux.RUnlock()

	return runPipeline(docs, pipeline)
}

// snapshot returns a deep copy of every document.
func (ms *MemoryStore) snapshot() []M {
	ms.mux.RLock()
	defer ms.mux.RUnlock()
	docs := make([]M, 0, len(ms.docs))
	for _, id := range slices.Sorted(maps.Keys(ms.docs)) {
		docs = append(docs, cloneDocument(ms.docs[id]))
	}
	return docs
}

// replaceAll swaps the held documents with `docs`.
func (ms *MemoryStore) replaceAll(docs []M) error {
	replacement := make(map[string]M, len(docs))
	for _, doc := range docs {
		id, err := documentID(doc)
		if err != nil {
			return err
		}
		if _, exists := replacement[id]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateID, id)
		}
		replacement[id] = cloneDocument(doc)
	}
	ms.mux.Lock()
	defer ms.mux.Unlock()
	ms.docs = replacement
	return nil
}
