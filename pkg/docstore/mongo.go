package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore is the production adapter, backed by one MongoDB collection.
//
// Documents written by other tools usually key `_id` (and often their own id fields) with object ids. Values read
// back keep their object id type. A string holding an object id in hex that is matched against `_id` or one of the
// fields given to MatchObjectIDs matches both the string and the object id.
type MongoStore struct { // Implements Store and Inserter.
	collection     *mongo.Collection
	objectIDFields map[ /*fieldName*/ string]struct{}
}

var (
	_ Store    = (*MongoStore)(nil)
	_ Inserter = (*MongoStore)(nil)
)

// NewMongoStore wraps an already connected collection.
func NewMongoStore(collection *mongo.Collection) (*MongoStore, error) {
	if collection == nil {
		return nil, errors.New("expected a non-nil collection")
	}
	return &MongoStore{collection: collection, objectIDFields: map[string]struct{}{IDField: {}}}, nil
}

// MatchObjectIDs also matches hex strings against object ids in fields named `fields`, at any depth.
func (ms *MongoStore) MatchObjectIDs(fields ...string) {
	for _, field := range fields {
		ms.objectIDFields[field] = struct{}{}
	}
}

// isObjectIDPath reports whether the last segment of the dotted `path` is one of the object id fields.
func (ms *MongoStore) isObjectIDPath(path string) bool {
	_, ok := ms.objectIDFields[path[strings.LastIndexByte(path, '.')+1:]]
	return ok
}

// widenIDs rewrites the conditions of `filter` on object id fields so that a hex string matches its object id too.
// Only equality and `$ne` on strings are rewritten.
func (ms *MongoStore) widenIDs(filter M) bson.M {
	out := make(bson.M, len(filter))
	for path, cond := range filter {
		out[path] = cond
		if !ms.isObjectIDPath(path) {
			continue
		}
		switch c := cond.(type) {
		case string:
			if oid, err := primitive.ObjectIDFromHex(c); err == nil {
				out[path] = bson.M{"$in": bson.A{c, oid}}
			}
		case M:
			ne, ok := c["$ne"].(string)
			if !ok || len(c) != 1 {
				continue
			}
			if oid, err := primitive.ObjectIDFromHex(ne); err == nil {
				out[path] = bson.M{"$nin": bson.A{ne, oid}}
			}
		}
	}
	return out
}

// ConnectMongo dials `uri` and returns a MongoStore on `database.collection` plus a function disconnecting the client.
func ConnectMongo(ctx context.Context, uri, database, collection string, timeout time.Duration) (
	*MongoStore, func(context.Context) error, error) {
	if uri == "" || database == "" || collection == "" {
		return nil, nil, errors.New("expected a non-empty mongo uri, database and collection")
	}
	clientOptions := options.Client().ApplyURI(uri).SetTimeout(timeout)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, fmt.Errorf("failed to ping mongo: %w", err)
	}
	slog.Debug("Connected to mongo.", "database", database, "collection", collection)
	store, err := NewMongoStore(client.Database(database).Collection(collection))
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, err
	}
	return store, client.Disconnect, nil
}

func (ms *MongoStore) InsertOne(ctx context.Context, doc M) error {
	if _, err := ms.collection.InsertOne(ctx, bson.M(doc)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %v", ErrDuplicateID, doc[IDField])
		}
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

func (ms *MongoStore) FindByID(ctx context.Context, id string, projection M) (M, error) {
	findOptions := options.FindOne()
	if len(projection) > 0 {
		findOptions.SetProjection(bson.M(projection))
	}
	var raw bson.M
	err := ms.collection.FindOne(ctx, ms.widenIDs(M{IDField: id}), findOptions).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find document %s: %w", id, err)
	}
	return fromBSON(raw).(M), nil
}

func (ms *MongoStore) UpdateOne(ctx context.Context, filter, update M, arrayFilters ...M) (UpdateResult, error) {
	updateOptions := options.Update()
	if len(arrayFilters) > 0 {
		filters := make([]any, len(arrayFilters))
		for i, arrayFilter := range arrayFilters {
			filters[i] = ms.widenIDs(arrayFilter)
		}
		updateOptions.SetArrayFilters(options.ArrayFilters{Filters: filters})
	}
	res, err := ms.collection.UpdateOne(ctx, ms.widenIDs(filter), bson.M(update), updateOptions)
	if err != nil {
		return UpdateResult{}, fmt.Errorf("failed to update document: %w", err)
	}
	return UpdateResult{Matched: res.MatchedCount, Modified: res.ModifiedCount}, nil
}

func (ms *MongoStore) Aggregate(ctx context.Context, pipeline Pipeline) ([]M, error) {
	stages := make([]bson.M, len(pipeline))
	for i, stage := range pipeline {
		stages[i] = bson.M(stage)
		if match, ok := stage["$match"].(M); ok {
			stages[i] = bson.M{"$match": ms.widenIDs(match)}
		}
	}
	cursor, err := ms.collection.Aggregate(ctx, stages)
	if err != nil {
		return nil, fmt.Errorf("failed to run aggregation: %w", err)
	}
	var raw []bson.M
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("failed to read aggregation results: %w", err)
	}
	docs := make([]M, len(raw))
	for i, doc := range raw {
		docs[i] = fromBSON(doc).(M)
	}
	return docs, nil
}

// fromBSON converts decoded BSON values into the plain value space used by the rest of doclist. Object ids keep
// their type so they can be written back and matched as they are stored.
func fromBSON(v any) any {
	switch t := v.(type) {
	case bson.M:
		out := make(M, len(t))
		for k, e := range t {
			out[k] = fromBSON(e)
		}
		return out
	case bson.D:
		out := make(M, len(t))
		for _, e := range t {
			out[e.Key] = fromBSON(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = fromBSON(e)
		}
		return out
	case primitive.DateTime:
		return t.Time().UTC()
	default:
		return cloneValue(v)
	}
}
