package linkedlist

import (
	"context"
	"slices"
	"testing"

	"github.com/nobletooth/doclist/pkg/docstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testListID = "account-1"
	tasks      = NodeType("tasks")
	notes      = NodeType("notes")
)

func task(id string) NodeRef { return NodeRef{Type: tasks, DataID: id} }
func note(id string) NodeRef { return NodeRef{Type: notes, DataID: id} }

func newTestLayout(t *testing.T) *Layout {
	t.Helper()
	layout, err := NewLayout("queue", tasks, notes)
	require.NoError(t, err)
	return layout
}

// newTestList returns a list over a memory store holding one empty owning document.
func newTestList(t *testing.T, opts ...Option) (*List, *docstore.MemoryStore) {
	t.Helper()
	store := docstore.NewMemoryStore()
	layout := newTestLayout(t)
	require.NoError(t, store.InsertOne(context.Background(), layout.NewDocument(testListID)))
	list, err := New(store, layout, opts...)
	require.NoError(t, err)
	return list, store
}

// insertAll inserts every node and requires each insert to succeed.
func insertAll(t *testing.T, list *List, nodes ...NodeRef) {
	t.Helper()
	for _, node := range nodes {
		ok, err := list.Insert(context.Background(), testListID, node)
		require.NoError(t, err)
		require.True(t, ok, "insert of %s", node)
	}
}

// requireOrder checks both walks of the list give `want` and that the list is structurally sound.
func requireOrder(t *testing.T, list *List, want ...NodeRef) {
	t.Helper()
	snapshot, err := list.Snapshot(context.Background(), testListID)
	require.NoError(t, err)
	require.Empty(t, snapshot.Check())

	var forward, backward []NodeRef
	for record := range snapshot.Walk(Forward) {
		forward = append(forward, record.Ref())
	}
	for record := range snapshot.Walk(Backward) {
		backward = append(backward, record.Ref())
	}
	slices.Reverse(backward)
	if len(want) == 0 {
		want = nil
	}
	assert.Equal(t, want, forward)
	assert.Equal(t, want, backward)
	assert.Equal(t, int64(len(want)), snapshot.Header.Length)
}

// ref returns a pointer to a copy of `node`.
func ref(node NodeRef) *NodeRef { return &node }
