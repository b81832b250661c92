package handler

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/healthwatch-api/internal/dto"
	"github.com/noah-isme/healthwatch-api/internal/middleware"
	"github.com/noah-isme/healthwatch-api/internal/models"
	"github.com/noah-isme/healthwatch-api/internal/service"
	"github.com/noah-isme/healthwatch-api/internal/utils"
)

// ChatHandler wires chat endpoints including the websocket upgrade.
type ChatHandler struct {
	service   service.ChatService
	logger    zerolog.Logger
	keepAlive time.Duration
}

// NewChatHandler creates a chat handler instance.
func NewChatHandler(service service.ChatService, logger zerolog.Logger, keepAlive time.Duration) *ChatHandler {
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	return &ChatHandler{
		service:   service,
		logger:    logger.With().Str("component", "chat_handler").Logger(),
		keepAlive: keepAlive,
	}
}

// Register binds chat routes under the provided router group.
func (h *ChatHandler) Register(router fiber.Router) {
	router.Use("/ws", h.upgrade)
	router.Get("/ws", websocket.New(h.handleConnection))

	router.Get("/", h.list)
	router.Post("/", h.create)
	router.Get("/stream", h.stream)
	router.Post("/direct", h.sendDirect)

	router.Use("/:id/ws", h.upgrade)
	router.Get("/:id/ws", websocket.New(h.handleConnection))
	router.Get("/:id/messages", h.messages)
	router.Post("/:id/messages", h.send)
	router.Patch("/:id/read", h.markRead)
	router.Patch("/:id/close", h.closeChat)
}

func (h *ChatHandler) upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	c.Locals("request_ctx", requestContext(c))
	c.Locals("chat_id", strings.TrimSpace(c.Params("id")))
	return c.Next()
}

func (h *ChatHandler) handleConnection(conn *websocket.Conn) {
	actor, _ := conn.Locals(middleware.ActorLocalsKey).(models.Actor)
	if strings.TrimSpace(actor.ID) == "" {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication required"))
		_ = conn.Close()
		return
	}

	chatID, _ := conn.Locals("chat_id").(string)
	if chatID == "" {
		chatID = strings.TrimSpace(conn.Query("chat_id"))
	}
	correlation := fmt.Sprint(conn.Locals("correlation_id"))
	baseCtx, _ := conn.Locals("request_ctx").(context.Context)

	opts := service.ChatConnectionOptions{
		Actor:         actor,
		ChatID:        chatID,
		CorrelationID: correlation,
		Context:       baseCtx,
	}

	h.logger.Info().Str("user_id", actor.ID).Str("chat_id", chatID).Msg("chat websocket connected")
	h.service.ServeConnection(conn, opts)
	h.logger.Info().Str("user_id", actor.ID).Msg("chat websocket disconnected")
}

func (h *ChatHandler) list(c *fiber.Ctx) error {
	actor, ok := requireActor(c)
	if !ok {
		return sendUnauthenticated(c)
	}

	chats, err := h.service.List(requestContext(c), actor)
	if err != nil {
		return sendFailure(c, h.logger, err, "chat list failed")
	}
	return utils.SendSuccess(c, "chats", chats)
}

func (h *ChatHandler) create(c *fiber.Ctx) error {
	actor, ok := requireActor(c)
	if !ok {
		return sendUnauthenticated(c)
	}

	var payload dto.ChatCreateRequest
	if err := parseJSON(c, &payload); err != nil {
		return utils.SendAppError(c, err)
	}

	chat, err := h.service.Create(requestContext(c), actor, payload)
	if err != nil {
		return sendFailure(c, h.logger, err, "chat create failed")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "chat opened", chat)
}

func (h *ChatHandler) stream(c *fiber.Ctx) error {
	actor, ok := requireActor(c)
	if !ok {
		return sendUnauthenticated(c)
	}

	ctx, cancel := context.WithCancel(requestContext(c))
	subscriber, err := h.service.Subscribe(ctx, actor)
	if err != nil {
		cancel()
		return sendFailure(c, h.logger, err, "chat subscribe failed")
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
				if err := writeEvent(w, "snapshot", dto.NewChatResponseSlice(view.Records)); err != nil {
					logger.Debug().Err(err).Msg("failed to write chat snapshot")
					return
				}
			case <-ticker.C:
				if err := writeKeepAlive(w); err != nil {
					logger.Debug().Err(err).Msg("failed to write chat keepalive")
					return
				}
			case <-ctx.Done():
				return
			}
		}
	})

	return nil
}

func (h *ChatHandler) messages(c *fiber.Ctx) error {
	actor, ok := requireActor(c)
	if !ok {
		return sendUnauthenticated(c)
	}

	snapshot, err := h.service.Messages(requestContext(c), c.Params("id"), actor)
	if err != nil {
		return sendFailure(c, h.logger, err, "chat messages failed")
	}
	return utils.SendSuccess(c, "messages", snapshot)
}

func (h *ChatHandler) send(c *fiber.Ctx) error {
	actor, ok := requireActor(c)
	if !ok {
		return sendUnauthenticated(c)
	}

	var payload dto.MessageSendRequest
	if err := parseJSON(c, &payload); err != nil {
		return utils.SendAppError(c, err)
	}

	message, err := h.service.Send(requestContext(c), c.Params("id"), actor, payload)
	if err != nil {
		return sendFailure(c, h.logger, err, "chat send failed")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "message sent", message)
}

func (h *ChatHandler) sendDirect(c *fiber.Ctx) error {
	actor, ok := requireActor(c)
	if !ok {
		return sendUnauthenticated(c)
	}

	var payload dto.DirectMessageRequest
	if err := parseJSON(c, &payload); err != nil {
		return utils.SendAppError(c, err)
	}

	message, err := h.service.SendDirect(requestContext(c), actor, payload)
	if err != nil {
		return sendFailure(c, h.logger, err, "direct message failed")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "message sent", message)
}

func (h *ChatHandler) markRead(c *fiber.Ctx) error {
	actor, ok := requireActor(c)
	if !ok {
		return sendUnauthenticated(c)
	}

	updated, err := h.service.MarkRead(requestContext(c), c.Params("id"), actor)
	if err != nil {
		return sendFailure(c, h.logger, err, "chat read failed")
	}
	return utils.SendSuccess(c, "messages read", fiber.Map{"updated": updated})
}

func (h *ChatHandler) closeChat(c *fiber.Ctx) error {
	actor, ok := requireActor(c)
	if !ok {
		return sendUnauthenticated(c)
	}

	chat, err := h.service.Close(requestContext(c), c.Params("id"), actor)
	if err != nil {
		return sendFailure(c, h.logger, err, "chat close failed")
	}
	return utils.SendSuccess(c, "chat closed", chat)
}
