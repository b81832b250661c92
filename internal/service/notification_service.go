package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/healthwatch-api/internal/apperror"
	"github.com/noah-isme/healthwatch-api/internal/dto"
	"github.com/noah-isme/healthwatch-api/internal/feed"
	"github.com/noah-isme/healthwatch-api/internal/models"
	"github.com/noah-isme/healthwatch-api/internal/observability"
	"github.com/noah-isme/healthwatch-api/internal/repository"
	"github.com/noah-isme/healthwatch-api/internal/store"
)

const (
	notificationTypeContent = "content"
	dispatchTimeout         = 30 * time.Second
)

// ContentDispatcher is told about newly published content. Implementations
// run detached from the request and only log failures.
type ContentDispatcher interface {
	ContentPublished(ctx context.Context, record models.ContentRecord)
}

// NotificationService lists, streams and updates per-user notifications.
type NotificationService interface {
	ContentDispatcher
	List(ctx context.Context, userID string) (dto.NotificationSnapshotResponse, error)
	// Subscribe follows the user's notifications. The caller owns the
	// returned subscriber and must Close it.
	Subscribe(ctx context.Context, userID string) (*feed.Subscriber[models.NotificationRecord], error)
	MarkRead(ctx context.Context, id, userID string) (dto.NotificationResponse, error)
	Archive(ctx context.Context, id, userID string) (dto.NotificationResponse, error)
	Delete(ctx context.Context, id, userID string) (dto.NotificationResponse, error)
	ReadAll(ctx context.Context, userID string) (int, error)
}

type notificationService struct {
	repo      repository.NotificationRepository
	users     repository.UserRepository
	documents store.DocumentStore
	fetcher   *feed.Fetcher[models.NotificationRecord]
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewNotificationService constructs a notification service.
func NewNotificationService(repo repository.NotificationRepository, users repository.UserRepository, documents store.DocumentStore, logger zerolog.Logger) NotificationService {
	componentLogger := logger.With().Str("component", "notification_service").Logger()
	return &notificationService{
		repo:      repo,
		users:     users,
		documents: documents,
		fetcher:   feed.NewFetcher(documents, feed.NotificationDecoder, componentLogger),
		sanitizer: bluemonday.StrictPolicy(),
		logger:    componentLogger,
		tracer:    otel.Tracer("github.com/noah-isme/healthwatch-api/internal/service/notification"),
	}
}

func (s *notificationService) List(ctx context.Context, userID string) (dto.NotificationSnapshotResponse, error) {
	if strings.TrimSpace(userID) == "" {
		return dto.NotificationSnapshotResponse{}, apperror.Unauthorized("sign in to see notifications")
	}

	records, err := s.fetcher.Fetch(ctx, s.repo.UserQuery(userID))
	if err != nil {
		return dto.NotificationSnapshotResponse{}, err
	}
	return dto.NewNotificationSnapshot(records), nil
}

func (s *notificationService) Subscribe(ctx context.Context, userID string) (*feed.Subscriber[models.NotificationRecord], error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperror.Unauthorized("sign in to see notifications")
	}

	subscriber := feed.NewSubscriber(s.documents, feed.NotificationDecoder, "notifications", models.NotificationRecord.IsUnread, s.logger)
	if err := subscriber.Switch(ctx, s.repo.UserQuery(userID)); err != nil {
		subscriber.Close()
		return nil, err
	}
	return subscriber, nil
}

func (s *notificationService) MarkRead(ctx context.Context, id, userID string) (dto.NotificationResponse, error) {
	return s.transition(ctx, id, userID, models.NotificationRead)
}

func (s *notificationService) Archive(ctx context.Context, id, userID string) (dto.NotificationResponse, error) {
	return s.transition(ctx, id, userID, models.NotificationArchived)
}

func (s *notificationService) Delete(ctx context.Context, id, userID string) (dto.NotificationResponse, error) {
	return s.transition(ctx, id, userID, models.NotificationDeleted)
}

func (s *notificationService) ReadAll(ctx context.Context, userID string) (int, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, apperror.Unauthorized("sign in to see notifications")
	}

	records, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return 0, apperror.Retrieval("Could not load notifications. Please try again.", err)
	}

	updated := 0
	for _, record := range records {
		if !record.IsUnread() {
			continue
		}
		if err := s.repo.UpdateStatus(ctx, record.ID, models.NotificationRead); err != nil {
			return updated, apperror.Mutation("Could not mark every notification as read. Please try again.", err)
		}
		updated++
	}
	return updated, nil
}

// transition moves a notification forward along its lifecycle. Repeating the
// current status is a no-op; moving backwards is a conflict.
func (s *notificationService) transition(ctx context.Context, id, userID string, next models.NotificationStatus) (dto.NotificationResponse, error) {
	ctx, span := s.tracer.Start(ctx, "notifications.transition", trace.WithAttributes(
		attribute.String("notification.id", id),
		attribute.String("notification.status", string(next)),
	))
	defer span.End()

	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return dto.NotificationResponse{}, apperror.NotFound("notification", err)
		}
		span.RecordError(err)
		return dto.NotificationResponse{}, apperror.Retrieval("Could not load the notification. Please try again.", err)
	}
	if record.UserID != userID {
		return dto.NotificationResponse{}, apperror.NotFound("notification", nil)
	}
	if record.Status == next {
		return dto.NewNotificationResponse(record), nil
	}
	if !record.Status.CanTransitionTo(next) {
		return dto.NotificationResponse{}, apperror.Conflict(fmt.Sprintf("notification is already %s", record.Status))
	}

	if err := s.repo.UpdateStatus(ctx, id, next); err != nil {
		span.RecordError(err)
		return dto.NotificationResponse{}, apperror.Mutation("Could not update the notification. Please try again.", err)
	}
	record.Status = next
	return dto.NewNotificationResponse(record), nil
}

// ContentPublished notifies every user in the record's state, or every known
// user when the record has no state, except the author.
func (s *notificationService) ContentPublished(ctx context.Context, record models.ContentRecord) {
	ctx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "notifications.dispatch", trace.WithAttributes(
		attribute.String("content.collection", record.Collection),
		attribute.String("content.id", record.ID),
	))
	defer span.End()

	recipients, err := s.users.ListByState(ctx, record.Scope.State)
	if err != nil {
		span.RecordError(err)
		observability.NotificationsDispatched().WithLabelValues("error").Inc()
		s.logger.Warn().Err(err).Str("content_id", record.ID).Msg("failed to resolve notification audience")
		return
	}

	title := strings.TrimSpace(s.sanitizer.Sanitize(record.Title))
	message := fmt.Sprintf("New in %s", collectionLabel(record.Collection))
	if record.Author.Name != "" {
		message = fmt.Sprintf("%s posted in %s", record.Author.Name, collectionLabel(record.Collection))
	}

	for _, recipient := range recipients {
		if recipient.ID == record.Author.ID {
			continue
		}
		_, err := s.repo.Create(ctx, models.NotificationRecord{
			UserID:     recipient.ID,
			Type:       notificationTypeContent,
			Title:      title,
			Message:    message,
			ActionLink: feed.DetailRoute(record.Collection, record.ID),
			ContentID:  record.ID,
		})
		if err != nil {
			observability.NotificationsDispatched().WithLabelValues("error").Inc()
			s.logger.Warn().Err(err).Str("user_id", recipient.ID).Str("content_id", record.ID).Msg("failed to write notification")
			continue
		}
		observability.NotificationsDispatched().WithLabelValues("ok").Inc()
	}
}

func collectionLabel(collection string) string {
	switch collection {
	case models.CollectionHealthConditions:
		return "Health Conditions"
	case models.CollectionFeeds:
		return "Community Feed"
	case models.CollectionNews:
		return "News"
	case models.CollectionTips:
		return "Health Tips"
	default:
		return collection
	}
}
