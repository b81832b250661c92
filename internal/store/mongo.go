package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/noah-isme/healthwatch-api/internal/models"
)

// MongoStore keeps each collection in a MongoDB collection keyed by a string
// _id. Subscriptions use change streams and therefore need a replica set.
type MongoStore struct {
	client   *mongo.Client
	database *mongo.Database
	logger   zerolog.Logger
}

func NewMongoStore(client *mongo.Client, database string, logger zerolog.Logger) *MongoStore {
	return &MongoStore{
		client:   client,
		database: client.Database(database),
		logger:   logger.With().Str("component", "mongo_store").Logger(),
	}
}

func mongoFilter(q Query) bson.M {
	filter := bson.M{}
	for _, f := range q.Where {
		filter[f.Field] = f.Value
	}
	if q.ArrayContains != nil {
		filter[q.ArrayContains.Field] = q.ArrayContains.Value
	}
	if q.OrderBy != "" {
		if _, ok := filter[q.OrderBy]; !ok {
			filter[q.OrderBy] = bson.M{"$exists": true, "$ne": nil}
		}
	}
	return filter
}

func mongoFindOptions(q Query) *options.FindOptions {
	opts := options.Find()
	if q.OrderBy != "" {
		order := 1
		if q.Direction == Desc {
			order = -1
		}
		opts.SetSort(bson.D{{Key: q.OrderBy, Value: order}, {Key: "_id", Value: 1}})
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	return opts
}

func (s *MongoStore) Query(ctx context.Context, q Query) ([]models.Document, error) {
	cursor, err := s.database.Collection(q.Collection).Find(ctx, mongoFilter(q), mongoFindOptions(q))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Collection, err)
	}
	defer cursor.Close(ctx)

	var docs []models.Document
	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode %s: %w", q.Collection, err)
		}
		docs = append(docs, mongoDocument(raw))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", q.Collection, err)
	}
	return docs, nil
}

func (s *MongoStore) Get(ctx context.Context, collection, id string) (models.Document, error) {
	var raw bson.M
	err := s.database.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Document{}, ErrNotFound
	}
	if err != nil {
		return models.Document{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return mongoDocument(raw), nil
}

func (s *MongoStore) Create(ctx context.Context, collection string, data map[string]any) (string, error) {
	id := uuid.NewString()
	doc := bson.M{"_id": id}
	for key, value := range data {
		doc[key] = value
	}
	if _, err := s.database.Collection(collection).InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("create %s: %w", collection, err)
	}
	return id, nil
}

func (s *MongoStore) Set(ctx context.Context, collection, id string, data map[string]any) error {
	_, err := s.database.Collection(collection).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M(data)},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *MongoStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	return s.update(ctx, collection, id, bson.M{"$set": bson.M(fields)})
}

func (s *MongoStore) Increment(ctx context.Context, collection, id, field string, delta int) error {
	return s.update(ctx, collection, id, bson.M{"$inc": bson.M{field: delta}})
}

func (s *MongoStore) ArrayUnion(ctx context.Context, collection, id, field string, values ...any) error {
	return s.update(ctx, collection, id, bson.M{"$addToSet": bson.M{field: bson.M{"$each": values}}})
}

func (s *MongoStore) ArrayRemove(ctx context.Context, collection, id, field string, values ...any) error {
	return s.update(ctx, collection, id, bson.M{"$pull": bson.M{field: bson.M{"$in": values}}})
}

func (s *MongoStore) update(ctx context.Context, collection, id string, update bson.M) error {
	result, err := s.database.Collection(collection).UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Subscribe opens a change stream on the collection and re-runs q after each
// event.
func (s *MongoStore) Subscribe(ctx context.Context, q Query, onSnapshot func(Snapshot), onError func(error)) (Unsubscribe, error) {
	ctx, cancel := context.WithCancel(ctx)
	stream, err := s.database.Collection(q.Collection).Watch(ctx, mongo.Pipeline{})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("watch %s: %w", q.Collection, err)
	}

	deliver := func() {
		docs, err := s.Query(ctx, q)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onSnapshot(Snapshot{Documents: docs, ReadAt: time.Now().UTC()})
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer stream.Close(context.Background())

		deliver()
		for stream.Next(ctx) {
			// Drain whatever else is already buffered before re-querying.
			for stream.RemainingBatchLength() > 0 && stream.Next(ctx) {
			}
			deliver()
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			s.logger.Warn().Err(err).Str("collection", q.Collection).Msg("change stream closed")
			if onError != nil {
				onError(err)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}, nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func mongoDocument(raw bson.M) models.Document {
	id, _ := raw["_id"].(string)
	data := make(map[string]any, len(raw))
	for key, value := range raw {
		if key == "_id" {
			continue
		}
		data[key] = plainValue(value)
	}
	return models.Document{ID: id, Data: data}
}

// plainValue converts driver types into the plain maps, slices and times the
// normalizers understand.
func plainValue(value any) any {
	switch v := value.(type) {
	case primitive.M:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = plainValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = plainValue(item)
		}
		return out
	case primitive.D:
		out := make(map[string]any, len(v))
		for _, elem := range v {
			out[elem.Key] = plainValue(elem.Value)
		}
		return out
	case primitive.A:
		out := make([]any, 0, len(v))
		for _, item := range v {
			out = append(out, plainValue(item))
		}
		return out
	case primitive.DateTime:
		return v.Time().UTC()
	case int32:
		return int(v)
	case int64:
		return int(v)
	default:
		return v
	}
}
