// List maintains the pointers of lists stored by a Layout. Every mutation is a short, ordered sequence of
// independent single-document updates: neighbor links are rewritten first, then the record itself is added or
// removed, then the header ends are re-derived. A crash or an interleaved writer between two of those calls leaves
// the list inconsistent until it is repaired; Snapshot.Check reports such lists. Passing WithLocker serializes the
// operations of one list among the callers sharing the locker, which closes the interleaving window but not the
// crash window.
//
// A node or owning document that doesn't resolve is a false result, never an error. Errors are store faults.

package linkedlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/nobletooth/doclist/pkg/docstore"
	"github.com/nobletooth/doclist/pkg/lock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "doclist_operations_total",
		Help: "Total number of list mutations.",
	}, []string{
		"op",     // set_head | set_tail | insert | remove | move_to_tail | pop_head
		"result", // true | false | error
	})
	partialOperationsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "doclist_partial_operations_total",
		Help: "Total number of list mutations that failed after some of their writes were applied.",
	}, []string{"op"})
)

// List runs list operations against a document store.
type List struct {
	store  docstore.Store
	layout *Layout
	locker lock.Locker // Optional.
}

// Option configures a List.
type Option func(*List)

// WithLocker serializes the operations on one list through `locker`, keyed by the owning document id.
func WithLocker(locker lock.Locker) Option {
	return func(l *List) { l.locker = locker }
}

// New is the constructor for List.
func New(store docstore.Store, layout *Layout, opts ...Option) (*List, error) {
	if store == nil {
		return nil, errors.New("expected a non-nil document store")
	}
	if layout == nil {
		return nil, errors.New("expected a non-nil layout")
	}
	list := &List{store: store, layout: layout}
	for _, opt := range opts {
		opt(list)
	}
	return list, nil
}

// Layout returns the layout the list was built with.
func (l *List) Layout() *Layout { return l.layout }

// operation tracks the writes one logical list operation has applied so far.
type operation struct {
	name   string
	listID string
	writes int
}

// finish records the outcome of the operation.
func (op *operation) finish(ok bool, err error) (bool, error) {
	result := strconv.FormatBool(ok)
	if err != nil {
		result = "error"
		if op.writes > 0 {
			partialOperationsMetric.WithLabelValues(op.name).Inc()
			slog.Warn("List operation failed after applying some of its writes; the list may need a repair.",
				"op", op.name, "listId", op.listID, "writes", op.writes, "error", err)
		}
	}
	operationsMetric.WithLabelValues(op.name, result).Inc()
	return ok, err
}

// run executes `fn` as operation `name`, holding the list lock when a locker is configured.
func (l *List) run(ctx context.Context, name, listID string, fn func(op *operation) (bool, error)) (bool, error) {
	op := &operation{name: name, listID: listID}
	if l.locker != nil {
		unlock, err := l.locker.Lock(ctx, listID)
		if err != nil {
			return op.finish(false, fmt.Errorf("failed to lock list %s: %w", listID, err))
		}
		defer unlock()
	}
	return op.finish(fn(op))
}

// update issues one conditional update and reports whether it modified the document.
func (l *List) update(ctx context.Context, op *operation, filter, update docstore.M, arrayFilters ...docstore.M) (
	bool, error) {
	res, err := l.store.UpdateOne(ctx, filter, update, arrayFilters...)
	if err != nil {
		return false, fmt.Errorf("failed to update list %s: %w", op.listID, err)
	}
	if res.Modified == 0 {
		return false, nil
	}
	op.writes++
	return true, nil
}

// SetHead makes `node` the head of the list and clears its prev link. A nil node clears the head. Returns false
// when the node has no record in the list, or when nothing changed.
func (l *List) SetHead(ctx context.Context, listID string, node *NodeRef) (bool, error) {
	return l.run(ctx, "set_head", listID, func(op *operation) (bool, error) {
		return l.setEnd(ctx, op, prevSide, node)
	})
}

// SetTail makes `node` the tail of the list and clears its next link. A nil node clears the tail.
func (l *List) SetTail(ctx context.Context, listID string, node *NodeRef) (bool, error) {
	return l.run(ctx, "set_tail", listID, func(op *operation) (bool, error) {
		return l.setEnd(ctx, op, nextSide, node)
	})
}

// setEnd points the list end selected by `end` at `node` and clears the node's link on that side.
func (l *List) setEnd(ctx context.Context, op *operation, end side, node *NodeRef) (bool, error) {
	set := docstore.M{l.layout.endType[end]: refType(node), l.layout.endDataID[end]: refDataID(node)}
	if node == nil {
		return l.update(ctx, op, docstore.M{docstore.IDField: op.listID}, docstore.M{"$set": set})
	}
	paths, err := l.layout.validate(*node)
	if err != nil {
		return false, err
	}
	set[paths.linkType[end]] = ""
	set[paths.linkDataID[end]] = nil
	filter := docstore.M{docstore.IDField: op.listID, paths.dataID: node.storedID()}
	return l.update(ctx, op, filter, docstore.M{"$set": set}, l.layout.arrayFilter(node.storedID()))
}

// relink points the `link` side of the record of `target` at `neighbor`.
func (l *List) relink(ctx context.Context, op *operation, target NodeRef, link side, neighbor *NodeRef) (bool, error) {
	paths, err := l.layout.validate(target)
	if err != nil {
		return false, err
	}
	filter := docstore.M{docstore.IDField: op.listID, paths.dataID: target.storedID()}
	set := docstore.M{paths.linkType[link]: refType(neighbor), paths.linkDataID[link]: refDataID(neighbor)}
	return l.update(ctx, op, filter, docstore.M{"$set": set}, l.layout.arrayFilter(target.storedID()))
}

// Insert appends `node` after the current tail. Returns false when the owning document doesn't exist or the list
// already holds a node with the same data id.
func (l *List) Insert(ctx context.Context, listID string, node NodeRef) (bool, error) {
	return l.run(ctx, "insert", listID, func(op *operation) (bool, error) {
		return l.insert(ctx, op, node)
	})
}

func (l *List) insert(ctx context.Context, op *operation, node NodeRef) (bool, error) {
	paths, err := l.layout.validate(node)
	if err != nil {
		return false, err
	}
	header, found, err := l.readHeader(ctx, op.listID)
	if err != nil || !found {
		return false, err
	}

	wasEmpty := header.Head == nil
	record := NodeRecord{DataID: node.DataID, Type: node.Type, stored: node.stored}
	if !wasEmpty {
		if header.Tail == nil {
			slog.Warn("List has a head but no tail; the new node is appended without a predecessor.",
				"listId", op.listID, "head", header.Head, "node", node)
		}
		record.Prev = header.Tail
	}
	// The data id is unique within the list, across all groups.
	filter := docstore.M{docstore.IDField: op.listID}
	for _, group := range l.layout.groups {
		filter[l.layout.paths[group].dataID] = docstore.M{"$ne": node.storedID()}
	}
	appended, err := l.update(ctx, op, filter, docstore.M{
		"$push": docstore.M{paths.array: encodeRecord(record)},
		"$inc":  docstore.M{l.layout.lengthPath: 1},
	})
	if err != nil || !appended {
		return false, err
	}
	slog.Debug("Appended list node.", "listId", op.listID, "node", node, "prev", record.Prev)

	if wasEmpty {
		headSet, err := l.setEnd(ctx, op, prevSide, &node)
		if err != nil {
			return false, err
		}
		tailSet, err := l.setEnd(ctx, op, nextSide, &node)
		if err != nil {
			return false, err
		}
		return headSet && tailSet, nil
	}
	if header.Tail != nil {
		linked, err := l.relink(ctx, op, *header.Tail, nextSide, &node)
		if err != nil {
			return false, err
		}
		if !linked {
			slog.Warn("Failed to link the previous tail to the new node.",
				"listId", op.listID, "previousTail", header.Tail, "node", node)
		}
	}
	return l.setEnd(ctx, op, nextSide, &node)
}

// Remove unlinks and deletes `node`. Returns false when the node isn't in the list.
func (l *List) Remove(ctx context.Context, listID string, node NodeRef) (bool, error) {
	return l.run(ctx, "remove", listID, func(op *operation) (bool, error) {
		_, removed, err := l.remove(ctx, op, node)
		return removed, err
	})
}

// remove returns the identity of the removed node with its data id as it was stored.
func (l *List) remove(ctx context.Context, op *operation, node NodeRef) (NodeRef, bool, error) {
	paths, err := l.layout.validate(node)
	if err != nil {
		return node, false, err
	}
	view, found, err := l.find(ctx, op.listID, node, paths)
	if err != nil || !found {
		return node, false, err
	}
	node.stored = view.stored

	if view.Prev != nil {
		if _, err := l.relink(ctx, op, *view.Prev, nextSide, view.Next); err != nil {
			return node, false, err
		}
	}
	if view.Next != nil {
		if _, err := l.relink(ctx, op, *view.Next, prevSide, view.Prev); err != nil {
			return node, false, err
		}
	}
	// The length shrinks together with the record, so removing the tail is counted as well.
	removed, err := l.update(ctx, op,
		docstore.M{docstore.IDField: op.listID, paths.dataID: node.storedID()},
		docstore.M{
			"$pull": docstore.M{paths.array: docstore.M{DataIDField: node.storedID()}},
			"$inc":  docstore.M{l.layout.lengthPath: -1},
		})
	if err != nil {
		return node, false, err
	}
	if !removed {
		// Another remover deleted the record after it was located and owns the header update.
		slog.Warn("List node disappeared while being removed.", "listId", op.listID, "node", node)
		return node, false, nil
	}
	slog.Debug("Removed list node.", "listId", op.listID, "node", node)

	// The header is read after the deletion to learn whether an end has to move.
	header, found, err := l.readHeader(ctx, op.listID)
	if err != nil || !found {
		return node, true, err
	}
	if sameNode(header.Head, node) {
		if _, err := l.setEnd(ctx, op, prevSide, view.Next); err != nil {
			return node, false, err
		}
	}
	if sameNode(header.Tail, node) {
		if _, err := l.setEnd(ctx, op, nextSide, view.Prev); err != nil {
			return node, false, err
		}
	}
	return node, true, nil
}

// MoveToTail removes `node` and appends it again. Returns false, without inserting, when the node isn't in the list.
func (l *List) MoveToTail(ctx context.Context, listID string, node NodeRef) (bool, error) {
	return l.run(ctx, "move_to_tail", listID, func(op *operation) (bool, error) {
		removedNode, removed, err := l.remove(ctx, op, node)
		if err != nil || !removed {
			return false, err
		}
		return l.insert(ctx, op, removedNode)
	})
}

// PopHead removes the head of the list. Returns false on an empty list.
func (l *List) PopHead(ctx context.Context, listID string) (bool, error) {
	return l.run(ctx, "pop_head", listID, func(op *operation) (bool, error) {
		header, found, err := l.readHeader(ctx, listID)
		if err != nil || !found || header.Head == nil {
			return false, err
		}
		_, removed, err := l.remove(ctx, op, *header.Head)
		return removed, err
	})
}
