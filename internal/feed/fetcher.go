package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/healthwatch-api/internal/apperror"
	"github.com/noah-isme/healthwatch-api/internal/models"
	"github.com/noah-isme/healthwatch-api/internal/observability"
	"github.com/noah-isme/healthwatch-api/internal/store"
)

var (
	// ErrStale is returned when a newer refresh was started, or the view was
	// torn down, before this one completed. Its result is discarded.
	ErrStale = errors.New("stale fetch discarded")
	// ErrClosed is returned by operations on a closed view or subscriber.
	ErrClosed = errors.New("view closed")
)

// CompatQueries returns base ordered by the current creation field and by the
// legacy timestamp field, newest first, followed by base unordered. Documents
// written before the rename only carry the legacy field, and ordered queries
// skip documents that carry neither, so the last query picks those up after
// every dated record.
func CompatQueries(base store.Query) []store.Query {
	current := base
	current.OrderBy = "createdAt"
	current.Direction = store.Desc

	legacy := base
	legacy.OrderBy = "timestamp"
	legacy.Direction = store.Desc

	undated := base
	undated.OrderBy = ""
	undated.Direction = store.Asc

	return []store.Query{current, legacy, undated}
}

// Fetcher loads working sets from the document store.
type Fetcher[T Record] struct {
	store  store.DocumentStore
	decode Decoder[T]
	logger zerolog.Logger
	tracer trace.Tracer
}

func NewFetcher[T Record](documents store.DocumentStore, decode Decoder[T], logger zerolog.Logger) *Fetcher[T] {
	return &Fetcher[T]{
		store:  documents,
		decode: decode,
		logger: logger.With().Str("component", "fetcher").Logger(),
		tracer: otel.Tracer("github.com/noah-isme/healthwatch-api/internal/feed"),
	}
}

// Fetch runs every query concurrently, merges the results by id in query
// order with the first occurrence winning, and decodes them. Any query error
// fails the whole fetch with a retryable retrieval error.
func (f *Fetcher[T]) Fetch(ctx context.Context, queries ...store.Query) ([]T, error) {
	if len(queries) == 0 {
		return []T{}, nil
	}
	collection := queries[0].Collection

	ctx, span := f.tracer.Start(ctx, "feed.fetch", trace.WithAttributes(
		attribute.String("feed.collection", collection),
		attribute.Int("feed.queries", len(queries)),
	))
	defer span.End()

	start := time.Now()
	results := make([][]models.Document, len(queries))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, q := range queries {
		group.Go(func() error {
			docs, err := f.store.Query(groupCtx, q)
			if err != nil {
				return fmt.Errorf("query %s: %w", q.Key(), err)
			}
			results[i] = docs
			return nil
		})
	}

	err := group.Wait()
	observability.FetchLatency().WithLabelValues(collection).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		observability.FetchTotal().WithLabelValues(collection, "error").Inc()
		f.logger.Error().Err(err).Str("collection", collection).Msg("fetch failed")
		return nil, apperror.Retrieval(fmt.Sprintf("Could not load %s. Please try again.", displayName(collection)), err)
	}

	merged := MergeFirstWins(results...)
	observability.FetchTotal().WithLabelValues(collection, "ok").Inc()
	return decodeAll(f.decode, merged), nil
}

// View owns one working set. Refreshes may overlap; only the most recently
// started one is applied.
type View[T Record] struct {
	fetcher *Fetcher[T]
	queries []store.Query

	mu         sync.Mutex
	state      ViewState[T]
	generation uint64
	closed     bool
}

func NewView[T Record](fetcher *Fetcher[T], queries ...store.Query) *View[T] {
	return &View[T]{
		fetcher: fetcher,
		queries: queries,
		state:   ViewState[T]{Status: StatusIdle, Records: []T{}},
	}
}

// Refresh fetches the working set and replaces it wholesale. A fetch that
// fails moves the view to StatusError. ErrStale means the result was dropped
// because a newer refresh started, the view closed, or ctx was cancelled.
func (v *View[T]) Refresh(ctx context.Context) (ViewState[T], error) {
	v.mu.Lock()
	if v.closed {
		state := v.state
		v.mu.Unlock()
		return state, ErrClosed
	}
	v.generation++
	generation := v.generation
	previous := v.state
	v.state.Status = StatusLoading
	v.state.Err = nil
	v.state.Generation = generation
	v.mu.Unlock()

	records, err := v.fetcher.Fetch(ctx, v.queries...)

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed || generation != v.generation {
		return v.state, ErrStale
	}
	if ctx.Err() != nil {
		// The caller went away; the view must not stay in loading.
		v.state = previous
		return v.state, ErrStale
	}

	if err != nil {
		v.state = ViewState[T]{
			Status:     StatusError,
			Records:    v.state.Records,
			Err:        apperror.From(err),
			Generation: generation,
			LoadedAt:   v.state.LoadedAt,
		}
		return v.state, err
	}

	v.state = ViewState[T]{
		Status:     StatusReady,
		Records:    records,
		Generation: generation,
		LoadedAt:   time.Now().UTC(),
	}
	return v.state, nil
}

// Retry is the affordance offered by an error state.
func (v *View[T]) Retry(ctx context.Context) (ViewState[T], error) {
	return v.Refresh(ctx)
}

func (v *View[T]) State() ViewState[T] {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Close tears the view down; in-flight refreshes are discarded.
func (v *View[T]) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
}

func displayName(collection string) string {
	switch collection {
	case models.CollectionHealthConditions:
		return "health conditions"
	case models.CollectionNotifications:
		return "notifications"
	case "":
		return "records"
	default:
		return collection
	}
}
