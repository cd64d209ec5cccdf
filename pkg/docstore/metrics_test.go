package docstore

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrument(t *testing.T) {
	ctx := context.Background()
	storeCalls.Reset()
	store := Instrument("memory", newTestStore(t, "doc1"))

	_, err := store.FindByID(ctx, "doc1", nil)
	require.NoError(t, err)
	_, err = store.FindByID(ctx, "missing", nil)
	assert.ErrorIs(t, err, ErrDocumentNotFound)
	_, err = store.UpdateOne(ctx, M{IDField: "doc1"}, M{"$bogus": M{"x": 1}})
	assert.Error(t, err)
	require.NoError(t, store.(Inserter).InsertOne(ctx, M{IDField: "doc2"}))

	assert.Equal(t, 1.0, testutil.ToFloat64(storeCalls.WithLabelValues("memory", "find_by_id", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(storeCalls.WithLabelValues("memory", "find_by_id", "not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(storeCalls.WithLabelValues("memory", "update_one", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(storeCalls.WithLabelValues("memory", "insert_one", "ok")))
}
