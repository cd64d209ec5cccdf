package docstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestMongoStore_WidenIDs(t *testing.T) {
	store, err := NewMongoStore(&mongo.Collection{})
	require.NoError(t, err)
	store.MatchObjectIDs("dataId")
	const hex = "652f1c9e8b3a4d0012345678"
	oid, err := primitive.ObjectIDFromHex(hex)
	require.NoError(t, err)

	for _, testCase := range []struct {
		name   string
		filter M
		want   bson.M
	}{
		{
			name:   "hex_id",
			filter: M{IDField: hex},
			want:   bson.M{IDField: bson.M{"$in": bson.A{hex, oid}}},
		},
		{
			name:   "plain_string_id",
			filter: M{IDField: "account-1"},
			want:   bson.M{IDField: "account-1"},
		},
		{
			name:   "nested_data_id",
			filter: M{IDField: "account-1", "list.tasks.dataId": hex},
			want:   bson.M{IDField: "account-1", "list.tasks.dataId": bson.M{"$in": bson.A{hex, oid}}},
		},
		{
			name:   "not_equal",
			filter: M{"list.notes.dataId": M{"$ne": hex}},
			want:   bson.M{"list.notes.dataId": bson.M{"$nin": bson.A{hex, oid}}},
		},
		{
			name:   "typed_ids_are_kept",
			filter: M{"n.dataId": oid, "count": int64(7)},
			want:   bson.M{"n.dataId": oid, "count": int64(7)},
		},
		{
			name:   "other_fields_are_kept",
			filter: M{"list.headNodeDataId": hex},
			want:   bson.M{"list.headNodeDataId": hex},
		},
	} {
		t.Run(testCase.name, func(t *testing.T) {
			assert.Equal(t, testCase.want, store.widenIDs(testCase.filter))
		})
	}
}

func TestFromBSON(t *testing.T) {
	oid := primitive.NewObjectID()
	got := fromBSON(bson.M{
		IDField: oid,
		"list": bson.D{
			{Key: "tasks", Value: bson.A{bson.M{"dataId": oid, "n": int32(3)}}},
		},
	})
	assert.Equal(t, M{
		IDField: oid,
		"list": M{
			"tasks": []any{M{"dataId": oid, "n": int64(3)}},
		},
	}, got)
}
