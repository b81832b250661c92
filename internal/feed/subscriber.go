package feed

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/healthwatch-api/internal/apperror"
	"github.com/noah-isme/healthwatch-api/internal/observability"
	"github.com/noah-isme/healthwatch-api/internal/store"
)

// SnapshotView is one decoded delivery. Unread is derived from Records alone.
type SnapshotView[T Record] struct {
	Records    []T
	Unread     int
	ReadAt     time.Time
	Generation uint64
}

// Subscriber follows one query at a time and keeps the latest snapshot.
// Switching to a new query closes the previous subscription first, so no
// delivery of the old query is observed afterwards.
type Subscriber[T Record] struct {
	store    store.DocumentStore
	decode   Decoder[T]
	isUnread func(T) bool
	kind     string
	logger   zerolog.Logger

	switchMu sync.Mutex

	mu          sync.Mutex
	current     SnapshotView[T]
	generation  uint64
	unsubscribe store.Unsubscribe
	updates     chan SnapshotView[T]
	closed      bool
}

// NewSubscriber builds a subscriber. kind labels logs and metrics; isUnread
// may be nil when the collection has no unread notion.
func NewSubscriber[T Record](documents store.DocumentStore, decode Decoder[T], kind string, isUnread func(T) bool, logger zerolog.Logger) *Subscriber[T] {
	return &Subscriber[T]{
		store:    documents,
		decode:   decode,
		isUnread: isUnread,
		kind:     kind,
		logger:   logger.With().Str("component", "subscriber").Str("kind", kind).Logger(),
		current:  SnapshotView[T]{Records: []T{}},
		updates:  make(chan SnapshotView[T], 1),
	}
}

// Switch replaces the followed query. The old subscription is closed before
// the new one is opened, its snapshot is cleared and any of its snapshots
// still pending on Updates are dropped.
func (s *Subscriber[T]) Switch(ctx context.Context, q store.Query) error {
	s.switchMu.Lock()
	defer s.switchMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	previous := s.unsubscribe
	s.unsubscribe = nil
	s.generation++
	generation := s.generation
	s.current = SnapshotView[T]{Records: []T{}, Generation: generation}
	select {
	case <-s.updates:
	default:
	}
	s.mu.Unlock()

	if previous != nil {
		previous()
		observability.ActiveSubscriptions().WithLabelValues(s.kind).Dec()
	}

	unsubscribe, err := s.store.Subscribe(ctx, q,
		func(snapshot store.Snapshot) { s.deliver(generation, snapshot) },
		func(err error) { s.fail(generation, err) },
	)
	if err != nil {
		s.logger.Error().Err(err).Str("query", q.Key()).Msg("failed to open subscription")
		return apperror.Retrieval("Could not start live updates. Please try again.", err)
	}

	s.mu.Lock()
	if s.closed || generation != s.generation {
		s.mu.Unlock()
		unsubscribe()
		return ErrClosed
	}
	s.unsubscribe = unsubscribe
	s.mu.Unlock()

	observability.ActiveSubscriptions().WithLabelValues(s.kind).Inc()
	return nil
}

// Snapshot returns the latest delivered snapshot.
func (s *Subscriber[T]) Snapshot() SnapshotView[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// IsCurrent reports whether generation belongs to the query followed now.
// A reader that took a view off Updates just before a Switch uses it to drop
// that view.
func (s *Subscriber[T]) IsCurrent(generation uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && generation == s.generation
}

// Updates yields snapshots as they arrive. Only the newest pending snapshot is
// kept for slow readers. The channel is closed by Close.
func (s *Subscriber[T]) Updates() <-chan SnapshotView[T] {
	return s.updates
}

// Close unsubscribes and closes Updates. It is safe to call more than once.
func (s *Subscriber[T]) Close() {
	s.switchMu.Lock()
	defer s.switchMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	previous := s.unsubscribe
	s.unsubscribe = nil
	close(s.updates)
	s.mu.Unlock()

	if previous != nil {
		previous()
		observability.ActiveSubscriptions().WithLabelValues(s.kind).Dec()
	}
}

func (s *Subscriber[T]) deliver(generation uint64, snapshot store.Snapshot) {
	records := decodeAll(s.decode, snapshot.Documents)
	view := SnapshotView[T]{
		Records:    records,
		Unread:     CountUnread(records, s.isUnread),
		ReadAt:     snapshot.ReadAt,
		Generation: generation,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || generation != s.generation {
		return
	}
	s.current = view

	select {
	case s.updates <- view:
	default:
		select {
		case <-s.updates:
		default:
		}
		select {
		case s.updates <- view:
		default:
		}
	}
	observability.SnapshotsDelivered().WithLabelValues(s.kind).Inc()
}

// fail keeps the last good snapshot in place.
func (s *Subscriber[T]) fail(generation uint64, err error) {
	s.mu.Lock()
	current := generation == s.generation && !s.closed
	s.mu.Unlock()
	if !current {
		return
	}

	observability.SubscriptionErrors().WithLabelValues(s.kind).Inc()
	s.logger.Warn().Err(err).Msg("live subscription error; keeping last snapshot")
}

// CountUnread counts the records isUnread accepts.
func CountUnread[T Record](records []T, isUnread func(T) bool) int {
	if isUnread == nil {
		return 0
	}
	count := 0
	for _, record := range records {
		if isUnread(record) {
			count++
		}
	}
	return count
}
