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

func notificationDoc(id, status string) models.Document {
	return models.Document{ID: id, Data: map[string]any{"userId": "u1", "title": id, "status": status}}
}

func notificationSubscriber(stub *storeStub) *Subscriber[models.NotificationRecord] {
	return NewSubscriber(stub, NotificationDecoder, "notifications", models.NotificationRecord.IsUnread, zerolog.Nop())
}

func userQuery(userID string) store.Query {
	return store.Query{
		Collection: models.CollectionNotifications,
		Where:      []store.Filter{{Field: "userId", Value: userID}},
		OrderBy:    "createdAt",
		Direction:  store.Desc,
	}
}

func TestSubscriberDerivesUnreadPerSnapshot(t *testing.T) {
	stub := newStoreStub()
	sub := notificationSubscriber(stub)
	defer sub.Close()

	require.NoError(t, sub.Switch(context.Background(), userQuery("u1")))
	push := stub.sub(0).onSnapshot

	push(store.Snapshot{Documents: []models.Document{
		notificationDoc("n1", "unread"),
		notificationDoc("n2", "unread"),
		notificationDoc("n3", "read"),
	}})
	first := <-sub.Updates()
	require.Len(t, first.Records, 3)
	require.Equal(t, 2, first.Unread)

	push(store.Snapshot{Documents: []models.Document{
		notificationDoc("n1", "read"),
		notificationDoc("n2", "archived"),
	}})
	second := <-sub.Updates()
	require.Len(t, second.Records, 2)
	require.Equal(t, 0, second.Unread)
	require.Equal(t, second, sub.Snapshot())
}

func TestSubscriberSwitchClosesPreviousSubscription(t *testing.T) {
	stub := newStoreStub()
	sub := notificationSubscriber(stub)
	defer sub.Close()

	require.NoError(t, sub.Switch(context.Background(), userQuery("u1")))
	old := stub.sub(0)
	old.onSnapshot(store.Snapshot{Documents: []models.Document{notificationDoc("old", "unread")}})
	<-sub.Updates()

	require.NoError(t, sub.Switch(context.Background(), userQuery("u2")))
	require.True(t, stub.isClosed(0))
	require.Empty(t, sub.Snapshot().Records)

	// A late delivery from the previous query must not leak into the new view.
	old.onSnapshot(store.Snapshot{Documents: []models.Document{notificationDoc("leak", "unread")}})
	require.Empty(t, sub.Snapshot().Records)

	stub.sub(1).onSnapshot(store.Snapshot{Documents: []models.Document{notificationDoc("fresh", "unread")}})
	update := <-sub.Updates()
	require.Equal(t, []string{"fresh"}, recordIDs(update.Records))
}

func TestSubscriberSwitchDropsPendingSnapshot(t *testing.T) {
	stub := newStoreStub()
	sub := notificationSubscriber(stub)
	defer sub.Close()

	require.NoError(t, sub.Switch(context.Background(), userQuery("u1")))
	stub.sub(0).onSnapshot(store.Snapshot{Documents: []models.Document{notificationDoc("old-1", "unread")}})
	taken := sub.Snapshot()
	require.True(t, sub.IsCurrent(taken.Generation))

	require.NoError(t, sub.Switch(context.Background(), userQuery("u2")))
	require.False(t, sub.IsCurrent(taken.Generation))
	select {
	case view := <-sub.Updates():
		t.Fatalf("snapshot of the previous query delivered: generation %d records %v", view.Generation, recordIDs(view.Records))
	default:
	}

	stub.sub(1).onSnapshot(store.Snapshot{Documents: []models.Document{notificationDoc("new-1", "unread")}})
	update := <-sub.Updates()
	require.True(t, sub.IsCurrent(update.Generation))
	require.Equal(t, []string{"new-1"}, recordIDs(update.Records))
}

func TestSubscriberErrorKeepsLastSnapshot(t *testing.T) {
	stub := newStoreStub()
	sub := notificationSubscriber(stub)
	defer sub.Close()

	require.NoError(t, sub.Switch(context.Background(), userQuery("u1")))
	current := stub.sub(0)
	current.onSnapshot(store.Snapshot{Documents: []models.Document{notificationDoc("n1", "unread")}})
	<-sub.Updates()

	current.onError(errors.New("listener dropped"))
	snapshot := sub.Snapshot()
	require.Equal(t, []string{"n1"}, recordIDs(snapshot.Records))
	require.Equal(t, 1, snapshot.Unread)
}

func TestSubscriberSlowReaderGetsLatestSnapshot(t *testing.T) {
	stub := newStoreStub()
	sub := notificationSubscriber(stub)
	defer sub.Close()

	require.NoError(t, sub.Switch(context.Background(), userQuery("u1")))
	push := stub.sub(0).onSnapshot
	push(store.Snapshot{Documents: []models.Document{notificationDoc("a", "unread")}})
	push(store.Snapshot{Documents: []models.Document{notificationDoc("b", "unread")}})

	latest := <-sub.Updates()
	require.Equal(t, []string{"b"}, recordIDs(latest.Records))
}

func TestSubscriberSetupFailureIsRetrievalError(t *testing.T) {
	stub := newStoreStub()
	stub.subscribeErr = errors.New("permission denied")
	sub := notificationSubscriber(stub)
	defer sub.Close()

	err := sub.Switch(context.Background(), userQuery("u1"))
	require.True(t, apperror.Is(err, apperror.KindRetrieval))
}

func TestSubscriberCloseIsIdempotentAndClosesUpdates(t *testing.T) {
	stub := newStoreStub()
	sub := notificationSubscriber(stub)
	require.NoError(t, sub.Switch(context.Background(), userQuery("u1")))

	sub.Close()
	sub.Close()
	require.True(t, stub.isClosed(0))

	select {
	case _, ok := <-sub.Updates():
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("updates channel not closed")
	}

	stub.sub(0).onSnapshot(store.Snapshot{Documents: []models.Document{notificationDoc("late", "unread")}})
	require.ErrorIs(t, sub.Switch(context.Background(), userQuery("u2")), ErrClosed)
}
