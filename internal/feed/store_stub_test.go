package feed

import (
	"context"
	"sync"

	"github.com/noah-isme/healthwatch-api/internal/models"
	"github.com/noah-isme/healthwatch-api/internal/store"
)

// queryResult is what the stub answers for one order field. A gated query
// signals entered on arrival and blocks until gate is closed.
type queryResult struct {
	docs    []models.Document
	err     error
	gate    chan struct{}
	entered chan struct{}
}

type subscription struct {
	query      store.Query
	onSnapshot func(store.Snapshot)
	onError    func(error)
	closed     bool
}

// storeStub answers queries from a table keyed by order field and records
// subscriptions so tests can push snapshots by hand.
type storeStub struct {
	mu            sync.Mutex
	results       map[string]queryResult
	subscriptions []*subscription
	subscribeErr  error
}

func newStoreStub() *storeStub {
	return &storeStub{results: make(map[string]queryResult)}
}

func (s *storeStub) setResult(orderBy string, result queryResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[orderBy] = result
}

func (s *storeStub) Query(ctx context.Context, q store.Query) ([]models.Document, error) {
	s.mu.Lock()
	result := s.results[q.OrderBy]
	s.mu.Unlock()

	if result.entered != nil {
		result.entered <- struct{}{}
	}
	if result.gate != nil {
		select {
		case <-result.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return result.docs, result.err
}

func (s *storeStub) Get(context.Context, string, string) (models.Document, error) {
	return models.Document{}, store.ErrNotFound
}

func (s *storeStub) Create(context.Context, string, map[string]any) (string, error) {
	return "", nil
}

func (s *storeStub) Set(context.Context, string, string, map[string]any) error { return nil }

func (s *storeStub) Update(context.Context, string, string, map[string]any) error { return nil }

func (s *storeStub) Increment(context.Context, string, string, string, int) error { return nil }

func (s *storeStub) ArrayUnion(context.Context, string, string, string, ...any) error { return nil }

func (s *storeStub) ArrayRemove(context.Context, string, string, string, ...any) error { return nil }

func (s *storeStub) Subscribe(_ context.Context, q store.Query, onSnapshot func(store.Snapshot), onError func(error)) (store.Unsubscribe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscribeErr != nil {
		return nil, s.subscribeErr
	}
	sub := &subscription{query: q, onSnapshot: onSnapshot, onError: onError}
	s.subscriptions = append(s.subscriptions, sub)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		sub.closed = true
	}, nil
}

func (s *storeStub) Close() error { return nil }

func (s *storeStub) sub(i int) *subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscriptions[i]
}

func (s *storeStub) isClosed(i int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscriptions[i].closed
}
