package linkedlist

import (
	"context"
	"errors"
	"fmt"

	"github.com/nobletooth/doclist/pkg/docstore"
	"github.com/nobletooth/doclist/pkg/utils"
)

// Find returns the current record of `node` together with the list length. The view is a point-in-time read and
// nothing guards it from writes issued afterwards.
func (l *List) Find(ctx context.Context, listID string, node NodeRef) (NodeView, bool, error) {
	paths, err := l.layout.validate(node)
	if err != nil {
		return NodeView{}, false, err
	}
	return l.find(ctx, listID, node, paths)
}

func (l *List) find(ctx context.Context, listID string, node NodeRef, paths groupPaths) (NodeView, bool, error) {
	docs, err := l.store.Aggregate(ctx, l.layout.locatorPipeline(listID, node, paths))
	if err != nil {
		return NodeView{}, false, fmt.Errorf("failed to locate node %s of list %s: %w", node, listID, err)
	}
	if len(docs) == 0 {
		return NodeView{}, false, nil
	}
	view := NodeView{NodeRecord: decodeRecord(docs[0]), Length: decodeInt(docs[0][lengthField])}
	if view.DataID != node.DataID {
		utils.RaiseInvariant("linkedlist", "locator_mismatch", "Node locator returned another node.",
			"listId", listID, "want", node, "got", view.DataID)
		return NodeView{}, false, nil
	}
	return view, true, nil
}

// readHeader reads the header of a list; found is false when the owning document doesn't exist.
func (l *List) readHeader(ctx context.Context, listID string) (header Header, found bool, err error) {
	doc, err := l.store.FindByID(ctx, listID, l.layout.headerProjection())
	if errors.Is(err, docstore.ErrDocumentNotFound) {
		return Header{}, false, nil
	}
	if err != nil {
		return Header{}, false, fmt.Errorf("failed to read header of list %s: %w", listID, err)
	}
	list, _ := doc[l.layout.field].(docstore.M)
	return decodeHeader(list), true, nil
}

// ReadHeader returns the header of a list. Returns ErrDocumentNotFound when the owning document doesn't exist.
func (l *List) ReadHeader(ctx context.Context, listID string) (Header, error) {
	header, found, err := l.readHeader(ctx, listID)
	if err != nil {
		return Header{}, err
	}
	if !found {
		return Header{}, fmt.Errorf("%w: %s", docstore.ErrDocumentNotFound, listID)
	}
	return header, nil
}

// Head returns the first node, nil for an empty list, and the list length.
func (l *List) Head(ctx context.Context, listID string) (*NodeRef, int64, error) {
	header, err := l.ReadHeader(ctx, listID)
	if err != nil {
		return nil, 0, err
	}
	return header.Head, header.Length, nil
}

// Tail returns the last node, nil for an empty list.
func (l *List) Tail(ctx context.Context, listID string) (*NodeRef, error) {
	header, err := l.ReadHeader(ctx, listID)
	if err != nil {
		return nil, err
	}
	return header.Tail, nil
}
