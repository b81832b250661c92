package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/healthwatch-api/internal/apperror"
	"github.com/noah-isme/healthwatch-api/internal/store"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func newTestStore(t *testing.T) store.DocumentStore {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	documents, err := store.NewGormStore(db, nil, testLogger())
	require.NoError(t, err)
	return documents
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func seedDocument(t *testing.T, documents store.DocumentStore, collection string, data map[string]any) string {
	t.Helper()
	id, err := documents.Create(context.Background(), collection, data)
	require.NoError(t, err)
	return id
}

func requireKind(t *testing.T, err error, kind apperror.Kind) {
	t.Helper()
	require.Error(t, err)
	require.True(t, apperror.Is(err, kind), "expected %s, got %v", kind, err)
}

// failingStore fails the configured operations and delegates everything else.
type failingStore struct {
	store.DocumentStore
	failIncrement  bool
	failArrayUnion bool
}

var errInjected = errors.New("injected store failure")

func (f *failingStore) Increment(ctx context.Context, collection, id, field string, delta int) error {
	if f.failIncrement {
		return errInjected
	}
	return f.DocumentStore.Increment(ctx, collection, id, field, delta)
}

func (f *failingStore) ArrayUnion(ctx context.Context, collection, id, field string, values ...any) error {
	if f.failArrayUnion {
		return errInjected
	}
	return f.DocumentStore.ArrayUnion(ctx, collection, id, field, values...)
}

func at(hours int) time.Time {
	return time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC).Add(time.Duration(hours) * time.Hour)
}
