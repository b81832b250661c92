package repository

import (
	"context"
	"time"

	"github.com/noah-isme/healthwatch-api/internal/models"
	"github.com/noah-isme/healthwatch-api/internal/normalize"
	"github.com/noah-isme/healthwatch-api/internal/store"
)

const notificationListLimit = 100

// NotificationRepository handles persistence for per-user notifications.
type NotificationRepository interface {
	// UserQuery selects the newest notifications of a user.
	UserQuery(userID string) store.Query
	ListByUser(ctx context.Context, userID string) ([]models.NotificationRecord, error)
	FindByID(ctx context.Context, id string) (models.NotificationRecord, error)
	Create(ctx context.Context, notification models.NotificationRecord) (models.NotificationRecord, error)
	UpdateStatus(ctx context.Context, id string, status models.NotificationStatus) error
}

type notificationRepository struct {
	store store.DocumentStore
}

// NewNotificationRepository constructs a repository backed by the document store.
func NewNotificationRepository(documents store.DocumentStore) NotificationRepository {
	return &notificationRepository{store: documents}
}

func (r *notificationRepository) UserQuery(userID string) store.Query {
	return store.Query{
		Collection: models.CollectionNotifications,
		Where:      []store.Filter{{Field: "userId", Value: userID}},
		OrderBy:    "createdAt",
		Direction:  store.Desc,
		Limit:      notificationListLimit,
	}
}

func (r *notificationRepository) ListByUser(ctx context.Context, userID string) ([]models.NotificationRecord, error) {
	docs, err := r.store.Query(ctx, r.UserQuery(userID))
	if err != nil {
		return nil, err
	}

	notifications := make([]models.NotificationRecord, 0, len(docs))
	for _, doc := range docs {
		notifications = append(notifications, normalize.Notification(doc))
	}
	return notifications, nil
}

func (r *notificationRepository) FindByID(ctx context.Context, id string) (models.NotificationRecord, error) {
	doc, err := r.store.Get(ctx, models.CollectionNotifications, id)
	if err != nil {
		return models.NotificationRecord{}, err
	}
	return normalize.Notification(doc), nil
}

func (r *notificationRepository) Create(ctx context.Context, notification models.NotificationRecord) (models.NotificationRecord, error) {
	now := time.Now().UTC()
	notification.CreatedAt = &now
	if notification.Status == "" {
		notification.Status = models.NotificationUnread
	}

	data := map[string]any{
		"userId":    notification.UserID,
		"type":      notification.Type,
		"title":     notification.Title,
		"message":   notification.Message,
		"status":    string(notification.Status),
		"createdAt": now,
	}
	if notification.ActionLink != "" {
		data["actionLink"] = notification.ActionLink
	}
	if notification.ContentID != "" {
		data["contentId"] = notification.ContentID
	}

	id, err := r.store.Create(ctx, models.CollectionNotifications, data)
	if err != nil {
		return models.NotificationRecord{}, err
	}
	notification.ID = id
	return notification, nil
}

func (r *notificationRepository) UpdateStatus(ctx context.Context, id string, status models.NotificationStatus) error {
	return r.store.Update(ctx, models.CollectionNotifications, id, map[string]any{
		"status":    string(status),
		"updatedAt": time.Now().UTC(),
	})
}
