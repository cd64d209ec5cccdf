package docstore

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	storeCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docstore_calls_total",
		Help: "Total number of document store calls.",
	}, []string{
		"backend",   // file | mongo | memory
		"primitive", // find_by_id | update_one | aggregate | insert_one
		"status",    // ok | not_found | error
	})
	storeCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "docstore_call_duration_seconds",
		Help:    "Latency of document store calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend", "primitive"})
)

// instrumentedStore records call counts and latencies of the wrapped store.
type instrumentedStore struct { // Implements Store and Inserter.
	backend string
	next    Store
}

// Instrument wraps `store` so every call is counted and timed under the given backend label.
func Instrument(backend string, store Store) Store {
	return &instrumentedStore{backend: backend, next: store}
}

func (is *instrumentedStore) observe(primitive string, start time.Time, err error) {
	status := "ok"
	switch {
	case errors.Is(err, ErrDocumentNotFound):
		status = "not_found"
	case err != nil:
		status = "error"
	}
	storeCalls.WithLabelValues(is.backend, primitive, status).Inc()
	storeCallDuration.WithLabelValues(is.backend, primitive).Observe(time.Since(start).Seconds())
}

func (is *instrumentedStore) FindByID(ctx context.Context, id string, projection M) (M, error) {
	start := time.Now()
	doc, err := is.next.FindByID(ctx, id, projection)
	is.observe("find_by_id", start, err)
	return doc, err
}

func (is *instrumentedStore) UpdateOne(ctx context.Context, filter, update M, arrayFilters ...M) (UpdateResult, error) {
	start := time.Now()
	res, err := is.next.UpdateOne(ctx, filter, update, arrayFilters...)
	is.observe("update_one", start, err)
	return res, err
}

func (is *instrumentedStore) Aggregate(ctx context.Context, pipeline Pipeline) ([]M, error) {
	start := time.Now()
	docs, err := is.next.Aggregate(ctx, pipeline)
	is.observe("aggregate", start, err)
	return docs, err
}

func (is *instrumentedStore) InsertOne(ctx context.Context, doc M) error {
	inserter, ok := is.next.(Inserter)
	if !ok {
		return ErrUnsupported
	}
	start := time.Now()
	err := inserter.InsertOne(ctx, doc)
	is.observe("insert_one", start, err)
	return err
}
