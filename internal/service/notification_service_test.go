package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/healthwatch-api/internal/apperror"
	"github.com/noah-isme/healthwatch-api/internal/feed"
	"github.com/noah-isme/healthwatch-api/internal/models"
	"github.com/noah-isme/healthwatch-api/internal/repository"
	"github.com/noah-isme/healthwatch-api/internal/store"
)

func newNotificationFixture(t *testing.T) (NotificationService, repository.NotificationRepository, store.DocumentStore) {
	t.Helper()
	documents := newTestStore(t)
	repo := repository.NewNotificationRepository(documents)
	svc := NewNotificationService(repo, repository.NewUserRepository(documents), documents, testLogger())
	return svc, repo, documents
}

func waitForView[T feed.Record](t *testing.T, updates <-chan feed.SnapshotView[T], match func(feed.SnapshotView[T]) bool) feed.SnapshotView[T] {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case view, ok := <-updates:
			require.True(t, ok, "updates closed")
			if match(view) {
				return view
			}
		case <-deadline:
			t.Fatal("expected snapshot was not delivered")
		}
	}
}

func TestNotificationDispatchTargetsStateAndSkipsAuthor(t *testing.T) {
	svc, repo, documents := newNotificationFixture(t)
	users := repository.NewUserRepository(documents)
	ctx := context.Background()

	require.NoError(t, users.SetScope(ctx, "hw-1", models.Scope{State: "Lagos"}))
	require.NoError(t, users.SetScope(ctx, "u-ikeja", models.Scope{State: "Lagos", Local: "Ikeja"}))
	require.NoError(t, users.SetScope(ctx, "u-yaba", models.Scope{State: "Lagos"}))
	require.NoError(t, users.SetScope(ctx, "u-abuja", models.Scope{State: "FCT"}))

	svc.ContentPublished(ctx, models.ContentRecord{
		ID:         "c-1",
		Collection: models.CollectionNews,
		Title:      "<b>Cholera</b> outbreak update",
		Author:     models.Author{ID: "hw-1", Name: "Nurse Ada"},
		Scope:      models.Scope{State: "Lagos"},
	})

	for _, userID := range []string{"u-ikeja", "u-yaba"} {
		records, err := repo.ListByUser(ctx, userID)
		require.NoError(t, err)
		require.Len(t, records, 1, userID)
		require.Equal(t, "Cholera outbreak update", records[0].Title)
		require.Equal(t, "Nurse Ada posted in News", records[0].Message)
		require.Equal(t, feed.DetailRoute(models.CollectionNews, "c-1"), records[0].ActionLink)
		require.Equal(t, "c-1", records[0].ContentID)
		require.Equal(t, models.NotificationUnread, records[0].Status)
	}

	for _, userID := range []string{"hw-1", "u-abuja"} {
		records, err := repo.ListByUser(ctx, userID)
		require.NoError(t, err)
		require.Empty(t, records, userID)
	}
}

func TestNotificationTransitionsMoveForwardOnly(t *testing.T) {
	svc, repo, _ := newNotificationFixture(t)
	ctx := context.Background()

	created, err := repo.Create(ctx, models.NotificationRecord{UserID: "u1", Type: "content", Title: "New tip"})
	require.NoError(t, err)

	_, err = svc.MarkRead(ctx, created.ID, "someone-else")
	requireKind(t, err, apperror.KindNotFound)

	read, err := svc.MarkRead(ctx, created.ID, "u1")
	require.NoError(t, err)
	require.Equal(t, string(models.NotificationRead), read.Status)

	again, err := svc.MarkRead(ctx, created.ID, "u1")
	require.NoError(t, err)
	require.Equal(t, string(models.NotificationRead), again.Status)

	archived, err := svc.Archive(ctx, created.ID, "u1")
	require.NoError(t, err)
	require.Equal(t, string(models.NotificationArchived), archived.Status)

	_, err = svc.MarkRead(ctx, created.ID, "u1")
	requireKind(t, err, apperror.KindConflict)

	deleted, err := svc.Delete(ctx, created.ID, "u1")
	require.NoError(t, err)
	require.Equal(t, string(models.NotificationDeleted), deleted.Status)

	_, err = svc.Archive(ctx, "missing", "u1")
	requireKind(t, err, apperror.KindNotFound)
}

func TestNotificationListHidesDeletedAndCountsUnread(t *testing.T) {
	svc, repo, _ := newNotificationFixture(t)
	ctx := context.Background()

	first, err := repo.Create(ctx, models.NotificationRecord{UserID: "u1", Type: "content", Title: "First"})
	require.NoError(t, err)
	second, err := repo.Create(ctx, models.NotificationRecord{UserID: "u1", Type: "content", Title: "Second"})
	require.NoError(t, err)
	_, err = repo.Create(ctx, models.NotificationRecord{UserID: "u1", Type: "content", Title: "Third"})
	require.NoError(t, err)
	_, err = repo.Create(ctx, models.NotificationRecord{UserID: "u2", Type: "content", Title: "Not mine"})
	require.NoError(t, err)

	_, err = svc.Delete(ctx, first.ID, "u1")
	require.NoError(t, err)
	_, err = svc.MarkRead(ctx, second.ID, "u1")
	require.NoError(t, err)

	snapshot, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, snapshot.Items, 2)
	require.Equal(t, 1, snapshot.Unread)
	for _, item := range snapshot.Items {
		require.NotEqual(t, first.ID, item.ID)
	}

	count, err := svc.ReadAll(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 1, count)

	snapshot, err = svc.List(ctx, "u1")
	require.NoError(t, err)
	require.Zero(t, snapshot.Unread)

	_, err = svc.List(ctx, "")
	requireKind(t, err, apperror.KindUnauthorized)
}

func TestNotificationSubscribeStreamsUnreadCount(t *testing.T) {
	svc, repo, _ := newNotificationFixture(t)
	ctx := context.Background()

	subscriber, err := svc.Subscribe(ctx, "u1")
	require.NoError(t, err)
	t.Cleanup(subscriber.Close)

	created, err := repo.Create(ctx, models.NotificationRecord{UserID: "u1", Type: "content", Title: "Clinic moved"})
	require.NoError(t, err)

	view := waitForView(t, subscriber.Updates(), func(view feed.SnapshotView[models.NotificationRecord]) bool {
		return len(view.Records) == 1
	})
	require.Equal(t, 1, view.Unread)
	require.Equal(t, created.ID, view.Records[0].ID)

	_, err = svc.MarkRead(ctx, created.ID, "u1")
	require.NoError(t, err)

	view = waitForView(t, subscriber.Updates(), func(view feed.SnapshotView[models.NotificationRecord]) bool {
		return len(view.Records) == 1 && view.Unread == 0
	})
	require.Equal(t, models.NotificationRead, view.Records[0].Status)
	require.Equal(t, 0, subscriber.Snapshot().Unread)
}
