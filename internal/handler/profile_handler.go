package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/healthwatch-api/internal/dto"
	"github.com/noah-isme/healthwatch-api/internal/service"
	"github.com/noah-isme/healthwatch-api/internal/utils"
)

// ProfileHandler lets callers maintain their presence and location scope.
type ProfileHandler struct {
	profiles service.ProfileService
	chats    service.ChatService
	logger   zerolog.Logger
}

func NewProfileHandler(profiles service.ProfileService, chats service.ChatService, logger zerolog.Logger) *ProfileHandler {
	return &ProfileHandler{
		profiles: profiles,
		chats:    chats,
		logger:   logger.With().Str("component", "profile_handler").Logger(),
	}
}

// Register binds the profile routes.
func (h *ProfileHandler) Register(router fiber.Router) {
	router.Get("/", h.me)
	router.Put("/presence", h.presence)
	router.Put("/scope", h.scope)
}

func (h *ProfileHandler) me(c *fiber.Ctx) error {
	actor, ok := requireActor(c)
	if !ok {
		return sendUnauthenticated(c)
	}
	return utils.SendSuccess(c, "profile", fiber.Map{"id": actor.ID, "name": actor.Name, "role": actor.Role})
}

func (h *ProfileHandler) presence(c *fiber.Ctx) error {
	actor, ok := requireActor(c)
	if !ok {
		return sendUnauthenticated(c)
	}

	var payload dto.PresenceRequest
	if err := parseJSON(c, &payload); err != nil {
		return utils.SendAppError(c, err)
	}

	if err := h.chats.SetPresence(requestContext(c), actor, payload); err != nil {
		return sendFailure(c, h.logger, err, "presence update failed")
	}
	return utils.SendSuccess(c, "presence updated", fiber.Map{"status": payload.Status})
}

func (h *ProfileHandler) scope(c *fiber.Ctx) error {
	actor, ok := requireActor(c)
	if !ok {
		return sendUnauthenticated(c)
	}

	var payload dto.ScopeInput
	if err := parseJSON(c, &payload); err != nil {
		return utils.SendAppError(c, err)
	}

	scope, err := h.profiles.SetScope(requestContext(c), actor, payload)
	if err != nil {
		return sendFailure(c, h.logger, err, "scope update failed")
	}
	return utils.SendSuccess(c, "scope updated", scope)
}
