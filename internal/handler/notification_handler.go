package handler

import (
	"bufio"
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/healthwatch-api/internal/dto"
	"github.com/noah-isme/healthwatch-api/internal/service"
	"github.com/noah-isme/healthwatch-api/internal/utils"
)

// NotificationHandler manages SSE notification streams and status changes.
type NotificationHandler struct {
	service   service.NotificationService
	logger    zerolog.Logger
	keepAlive time.Duration
}

// NewNotificationHandler constructs a handler instance.
func NewNotificationHandler(service service.NotificationService, logger zerolog.Logger, keepAlive time.Duration) *NotificationHandler {
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	return &NotificationHandler{
		service:   service,
		logger:    logger.With().Str("component", "notification_handler").Logger(),
		keepAlive: keepAlive,
	}
}

// Register binds the notification routes.
func (h *NotificationHandler) Register(router fiber.Router) {
	router.Get("/", h.list)
	router.Get("/stream", h.stream)
	router.Post("/read-all", h.readAll)
	router.Patch("/:id/read", h.markRead)
	router.Patch("/:id/archive", h.archive)
	router.Delete("/:id", h.remove)
}

func (h *NotificationHandler) list(c *fiber.Ctx) error {
	actor, ok := requireActor(c)
	if !ok {
		return sendUnauthenticated(c)
	}

	snapshot, err := h.service.List(requestContext(c), actor.ID)
	if err != nil {
		return sendFailure(c, h.logger, err, "notification list failed")
	}
	return utils.OK(c, snapshot.Items, "notifications", fiber.Map{"unread": snapshot.Unread})
}

func (h *NotificationHandler) stream(c *fiber.Ctx) error {
	actor, ok := requireActor(c)
	if !ok {
		return sendUnauthenticated(c)
	}

	ctx, cancel := context.WithCancel(requestContext(c))
	subscriber, err := h.service.Subscribe(ctx, actor.ID)
	if err != nil {
		cancel()
		return sendFailure(c, h.logger, err, "notification subscribe failed")
	}

	prepareEventStream(c)
	logger := requestLogger(h.logger, c).With().Str("user_id", actor.ID).Logger()

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer func() {
			subscriber.Close()
			cancel()
		}()

		ticker := time.NewTicker(h.keepAlive)
		defer ticker.Stop()

		for {
			select {
			case view, ok := <-subscriber.Updates():
				if !ok {
					return
				}
				if err := writeEvent(w, "snapshot", dto.NewNotificationSnapshot(view.Records)); err != nil {
					logger.Debug().Err(err).Msg("failed to write notification snapshot")
					return
				}
			case <-ticker.C:
				if err := writeKeepAlive(w); err != nil {
					logger.Debug().Err(err).Msg("failed to write notification keepalive")
					return
				}
			case <-ctx.Done():
				return
			}
		}
	})

	return nil
}

func (h *NotificationHandler) markRead(c *fiber.Ctx) error {
	actor, ok := requireActor(c)
	if !ok {
		return sendUnauthenticated(c)
	}

	notification, err := h.service.MarkRead(requestContext(c), c.Params("id"), actor.ID)
	if err != nil {
		return sendFailure(c, h.logger, err, "notification read failed")
	}
	return utils.SendSuccess(c, "notification updated", notification)
}

func (h *NotificationHandler) archive(c *fiber.Ctx) error {
	actor, ok := requireActor(c)
	if !ok {
		return sendUnauthenticated(c)
	}

	notification, err := h.service.Archive(requestContext(c), c.Params("id"), actor.ID)
	if err != nil {
		return sendFailure(c, h.logger, err, "notification archive failed")
	}
	return utils.SendSuccess(c, "notification archived", notification)
}

func (h *NotificationHandler) remove(c *fiber.Ctx) error {
	actor, ok := requireActor(c)
	if !ok {
		return sendUnauthenticated(c)
	}

	notification, err := h.service.Delete(requestContext(c), c.Params("id"), actor.ID)
	if err != nil {
		return sendFailure(c, h.logger, err, "notification delete failed")
	}
	return utils.SendSuccess(c, "notification deleted", notification)
}

func (h *NotificationHandler) readAll(c *fiber.Ctx) error {
	actor, ok := requireActor(c)
	if !ok {
		return sendUnauthenticated(c)
	}

	updated, err := h.service.ReadAll(requestContext(c), actor.ID)
	if err != nil {
		return sendFailure(c, h.logger, err, "notification read-all failed")
	}
	return utils.SendSuccess(c, "notifications updated", fiber.Map{"updated": updated})
}
