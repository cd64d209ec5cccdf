package linkedlist

import (
	"testing"

	"github.com/nobletooth/doclist/pkg/docstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestNewLayout(t *testing.T) {
	for _, testCase := range []struct {
		name    string
		field   string
		groups  []NodeType
		wantErr bool
	}{
		{name: "valid", field: "queue", groups: []NodeType{"tasks", "notes"}},
		{name: "empty_field", field: "", groups: []NodeType{"tasks"}, wantErr: true},
		{name: "dotted_field", field: "a.b", groups: []NodeType{"tasks"}, wantErr: true},
		{name: "id_field", field: docstore.IDField, groups: []NodeType{"tasks"}, wantErr: true},
		{name: "no_groups", field: "queue", wantErr: true},
		{name: "empty_group", field: "queue", groups: []NodeType{""}, wantErr: true},
		{name: "operator_group", field: "queue", groups: []NodeType{"$tasks"}, wantErr: true},
		{name: "duplicate_group", field: "queue", groups: []NodeType{"tasks", "tasks"}, wantErr: true},
		{name: "reserved_group", field: "queue", groups: []NodeType{"listLength"}, wantErr: true},
	} {
		t.Run(testCase.name, func(t *testing.T) {
			layout, err := NewLayout(testCase.field, testCase.groups...)
			if testCase.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, testCase.groups, layout.Groups())
		})
	}
}

func TestLayout_Paths(t *testing.T) {
	layout := newTestLayout(t)
	paths, err := layout.group(tasks)
	require.NoError(t, err)
	assert.Equal(t, "queue.tasks", paths.array)
	assert.Equal(t, "queue.tasks.dataId", paths.dataID)
	assert.Equal(t, "queue.tasks.$[n].prevType", paths.linkType[prevSide])
	assert.Equal(t, "queue.tasks.$[n].nextDataId", paths.linkDataID[nextSide])
	assert.Equal(t, "queue.headNodeDataId", layout.endDataID[prevSide])
	assert.Equal(t, "queue.tailNodeType", layout.endType[nextSide])

	_, err = layout.group("images")
	assert.ErrorIs(t, err, ErrUnknownNodeType)
	_, err = layout.validate(NodeRef{Type: tasks})
	assert.ErrorIs(t, err, ErrNilNode)
}

func TestLayout_NewDocument(t *testing.T) {
	layout := newTestLayout(t)
	assert.Equal(t, docstore.M{
		docstore.IDField: "account-1",
		"queue": docstore.M{
			"headNodeType":   "",
			"headNodeDataId": nil,
			"tailNodeType":   "",
			"tailNodeDataId": nil,
			"listLength":     int64(0),
			"tasks":          []any{},
			"notes":          []any{},
		},
	}, layout.NewDocument("account-1"))
}

func TestRecordCodec(t *testing.T) {
	record := NodeRecord{DataID: "b", Type: tasks, Prev: ref(task("a")), Next: nil}
	encoded := encodeRecord(record)
	assert.Equal(t, docstore.M{
		"dataId":     "b",
		"type":       "tasks",
		"prevType":   "tasks",
		"prevDataId": "a",
		"nextType":   "",
		"nextDataId": nil,
	}, encoded)
	assert.Equal(t, record, decodeRecord(encoded))

	t.Run("non_string_data_ids", func(t *testing.T) {
		stored := docstore.M{"dataId": int64(7), "type": "tasks", "prevType": "", "prevDataId": nil,
			"nextType": "notes", "nextDataId": int64(8)}
		decoded := decodeRecord(stored)
		assert.Equal(t, "7", decoded.DataID)
		assert.Equal(t, TypedRef(tasks, int64(7)), decoded.Ref())
		assert.Equal(t, ref(TypedRef(notes, int64(8))), decoded.Next)
		assert.True(t, sameNode(decoded.Next, note("8")))
		assert.Equal(t, stored, encodeRecord(decoded)) // Ids are written back with their stored type.
	})
	t.Run("object_ids", func(t *testing.T) {
		oid := primitive.NewObjectID()
		decoded := decodeRecord(docstore.M{"dataId": oid, "type": "tasks"})
		assert.Equal(t, oid.Hex(), decoded.DataID)
		assert.Equal(t, oid, decoded.Ref().storedID())
		assert.True(t, sameNode(ref(decoded.Ref()), task(oid.Hex())))
	})
	t.Run("empty_data_id_is_no_neighbor", func(t *testing.T) {
		decoded := decodeRecord(docstore.M{"dataId": "a", "type": "tasks", "prevType": "", "prevDataId": ""})
		assert.Nil(t, decoded.Prev)
	})
}
