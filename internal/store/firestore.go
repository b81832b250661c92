package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/noah-isme/healthwatch-api/internal/models"
)

// FirestoreStore talks to Cloud Firestore, which provides ordering, atomic
// transforms and snapshot listeners natively.
type FirestoreStore struct {
	client *firestore.Client
	logger zerolog.Logger
}

func NewFirestoreStore(client *firestore.Client, logger zerolog.Logger) *FirestoreStore {
	return &FirestoreStore{
		client: client,
		logger: logger.With().Str("component", "firestore_store").Logger(),
	}
}

func (s *FirestoreStore) buildQuery(q Query) firestore.Query {
	query := s.client.Collection(q.Collection).Query
	for _, filter := range q.Where {
		query = query.Where(filter.Field, "==", filter.Value)
	}
	if q.ArrayContains != nil {
		query = query.Where(q.ArrayContains.Field, "array-contains", q.ArrayContains.Value)
	}
	if q.OrderBy != "" {
		dir := firestore.Asc
		if q.Direction == Desc {
			dir = firestore.Desc
		}
		query = query.OrderBy(q.OrderBy, dir)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}
	return query
}

func (s *FirestoreStore) Query(ctx context.Context, q Query) ([]models.Document, error) {
	iter := s.buildQuery(q).Documents(ctx)
	defer iter.Stop()

	var docs []models.Document
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", q.Collection, err)
		}
		docs = append(docs, models.Document{ID: snap.Ref.ID, Data: snap.Data()})
	}
	return docs, nil
}

func (s *FirestoreStore) Get(ctx context.Context, collection, id string) (models.Document, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return models.Document{}, ErrNotFound
		}
		return models.Document{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return models.Document{ID: snap.Ref.ID, Data: snap.Data()}, nil
}

func (s *FirestoreStore) Create(ctx context.Context, collection string, data map[string]any) (string, error) {
	ref := s.client.Collection(collection).NewDoc()
	if _, err := ref.Create(ctx, data); err != nil {
		return "", fmt.Errorf("create %s: %w", collection, err)
	}
	return ref.ID, nil
}

func (s *FirestoreStore) Set(ctx context.Context, collection, id string, data map[string]any) error {
	if _, err := s.client.Collection(collection).Doc(id).Set(ctx, data, firestore.MergeAll); err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *FirestoreStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	updates := make([]firestore.Update, 0, len(fields))
	for path, value := range fields {
		updates = append(updates, firestore.Update{FieldPath: firestore.FieldPath(strings.Split(path, ".")), Value: value})
	}
	return s.update(ctx, collection, id, updates)
}

func (s *FirestoreStore) Increment(ctx context.Context, collection, id, field string, delta int) error {
	return s.update(ctx, collection, id, []firestore.Update{{Path: field, Value: firestore.Increment(delta)}})
}

func (s *FirestoreStore) ArrayUnion(ctx context.Context, collection, id, field string, values ...any) error {
	return s.update(ctx, collection, id, []firestore.Update{{Path: field, Value: firestore.ArrayUnion(values...)}})
}

func (s *FirestoreStore) ArrayRemove(ctx context.Context, collection, id, field string, values ...any) error {
	return s.update(ctx, collection, id, []firestore.Update{{Path: field, Value: firestore.ArrayRemove(values...)}})
}

func (s *FirestoreStore) update(ctx context.Context, collection, id string, updates []firestore.Update) error {
	if _, err := s.client.Collection(collection).Doc(id).Update(ctx, updates); err != nil {
		if status.Code(err) == codes.NotFound {
			return ErrNotFound
		}
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	return nil
}

// Subscribe attaches a snapshot listener. A listener error is terminal for
// the subscription.
func (s *FirestoreStore) Subscribe(ctx context.Context, q Query, onSnapshot func(Snapshot), onError func(error)) (Unsubscribe, error) {
	ctx, cancel := context.WithCancel(ctx)
	iter := s.buildQuery(q).Snapshots(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			snap, err := iter.Next()
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				if status.Code(err) == codes.Canceled || errors.Is(err, iterator.Done) {
					return
				}
				s.logger.Warn().Err(err).Str("collection", q.Collection).Msg("snapshot listener failed")
				if onError != nil {
					onError(err)
				}
				return
			}

			docs, err := snap.Documents.GetAll()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			out := make([]models.Document, 0, len(docs))
			for _, doc := range docs {
				out = append(out, models.Document{ID: doc.Ref.ID, Data: doc.Data()})
			}
			readAt := snap.ReadTime
			if readAt.IsZero() {
				readAt = time.Now().UTC()
			}
			onSnapshot(Snapshot{Documents: out, ReadAt: readAt})
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			iter.Stop()
			<-done
		})
	}, nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}
