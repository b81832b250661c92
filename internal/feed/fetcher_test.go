package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/healthwatch-api/internal/apperror"
	"github.com/noah-isme/healthwatch-api/internal/models"
	"github.com/noah-isme/healthwatch-api/internal/store"
)

func contentFetcher(stub *storeStub) *Fetcher[models.ContentRecord] {
	return NewFetcher(stub, ContentDecoder(models.CollectionHealthConditions), zerolog.Nop())
}

func conditionQueries() []store.Query {
	return CompatQueries(store.Query{Collection: models.CollectionHealthConditions})
}

func recordIDs[T Record](records []T) []string {
	out := make([]string, 0, len(records))
	for _, record := range records {
		out = append(out, record.RecordID())
	}
	return out
}

func TestFetchNormalizesLegacyAndCurrentShapes(t *testing.T) {
	now := time.Now().UTC()
	stub := newStoreStub()
	stub.setResult("createdAt", queryResult{docs: []models.Document{
		{ID: "malaria", Data: map[string]any{"title": "Malaria", "snippet": "A", "content": map[string]any{"introduction": "B"}, "createdAt": now}},
	}})
	stub.setResult("", queryResult{docs: []models.Document{
		{ID: "malaria", Data: map[string]any{"title": "Malaria", "snippet": "A", "content": map[string]any{"introduction": "B"}, "createdAt": now}},
		{ID: "cholera", Data: map[string]any{"description": "C"}},
	}})

	records, err := contentFetcher(stub).Fetch(context.Background(), conditionQueries()...)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, []string{"malaria", "cholera"}, recordIDs(records))
	require.Equal(t, "A", records[0].Snippet)
	require.Equal(t, "C", records[1].Snippet)
	require.Equal(t, models.CollectionHealthConditions, records[1].Collection)
}

func TestFetchMergesOverlappingQueriesFirstWins(t *testing.T) {
	stub := newStoreStub()
	stub.setResult("createdAt", queryResult{docs: []models.Document{
		{ID: "a", Data: map[string]any{"title": "A"}},
		{ID: "shared", Data: map[string]any{"title": "from current"}},
	}})
	stub.setResult("timestamp", queryResult{docs: []models.Document{
		{ID: "shared", Data: map[string]any{"title": "from legacy"}},
		{ID: "c", Data: map[string]any{"title": "C"}},
	}})

	records, err := contentFetcher(stub).Fetch(context.Background(), conditionQueries()...)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "shared", "c"}, recordIDs(records))
	require.Equal(t, "from current", records[1].Title)
}

func TestFetchFailureIsRetryableRetrievalError(t *testing.T) {
	stub := newStoreStub()
	stub.setResult("timestamp", queryResult{err: errors.New("unavailable")})

	_, err := contentFetcher(stub).Fetch(context.Background(), conditionQueries()...)
	require.Error(t, err)
	require.True(t, apperror.Is(err, apperror.KindRetrieval))
	require.True(t, apperror.From(err).Retryable)
}

func TestViewErrorStateThenRetryReplacesWorkingSet(t *testing.T) {
	stub := newStoreStub()
	view := NewView(contentFetcher(stub), conditionQueries()...)
	require.Equal(t, StatusIdle, view.State().Status)

	stub.setResult("createdAt", queryResult{docs: []models.Document{{ID: "old", Data: map[string]any{}}}})
	state, err := view.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"old"}, recordIDs(state.Records))

	stub.setResult("createdAt", queryResult{err: errors.New("offline")})
	state, err = view.Refresh(context.Background())
	require.Error(t, err)
	require.Equal(t, StatusError, state.Status)
	require.NotNil(t, state.Err)
	require.True(t, state.Err.Retryable)
	require.NotEmpty(t, state.Err.Message)
	require.Equal(t, []string{"old"}, recordIDs(state.Records))

	stub.setResult("createdAt", queryResult{docs: []models.Document{{ID: "new", Data: map[string]any{}}}})
	state, err = view.Retry(context.Background())
	require.NoError(t, err)
	require.True(t, state.Ready())
	require.Nil(t, state.Err)
	require.Equal(t, []string{"new"}, recordIDs(state.Records))
}

func TestViewDiscardsStaleRefresh(t *testing.T) {
	stub := newStoreStub()
	view := NewView(contentFetcher(stub), store.Query{Collection: models.CollectionFeeds, OrderBy: "createdAt", Direction: store.Desc})

	gate := make(chan struct{})
	entered := make(chan struct{}, 1)
	stub.setResult("createdAt", queryResult{
		docs:    []models.Document{{ID: "slow", Data: map[string]any{}}},
		gate:    gate,
		entered: entered,
	})

	errs := make(chan error, 1)
	go func() {
		_, err := view.Refresh(context.Background())
		errs <- err
	}()
	<-entered

	stub.setResult("createdAt", queryResult{docs: []models.Document{{ID: "fast", Data: map[string]any{}}}})
	state, err := view.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"fast"}, recordIDs(state.Records))

	close(gate)
	require.ErrorIs(t, <-errs, ErrStale)
	require.Equal(t, []string{"fast"}, recordIDs(view.State().Records))
	require.Equal(t, state.Generation, view.State().Generation)
}

func TestViewDoesNotApplyAfterClose(t *testing.T) {
	stub := newStoreStub()
	view := NewView(contentFetcher(stub), store.Query{Collection: models.CollectionNews, OrderBy: "createdAt"})

	gate := make(chan struct{})
	entered := make(chan struct{}, 1)
	stub.setResult("createdAt", queryResult{docs: []models.Document{{ID: "late", Data: map[string]any{}}}, gate: gate, entered: entered})

	errs := make(chan error, 1)
	go func() {
		_, err := view.Refresh(context.Background())
		errs <- err
	}()
	<-entered
	view.Close()
	close(gate)

	require.ErrorIs(t, <-errs, ErrStale)
	require.Empty(t, view.State().Records)

	_, err := view.Refresh(context.Background())
	require.ErrorIs(t, err, ErrClosed)
}

func TestViewCancelledContextIsStale(t *testing.T) {
	stub := newStoreStub()
	view := NewView(contentFetcher(stub), store.Query{Collection: models.CollectionTips, OrderBy: "createdAt"})
	stub.setResult("createdAt", queryResult{gate: make(chan struct{})})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := view.Refresh(ctx)
	require.ErrorIs(t, err, ErrStale)
	require.Equal(t, StatusIdle, view.State().Status)
}
