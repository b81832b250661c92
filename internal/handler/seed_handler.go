package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/healthwatch-api/internal/dto"
	"github.com/noah-isme/healthwatch-api/internal/service"
	"github.com/noah-isme/healthwatch-api/internal/utils"
)

// SeedHandler exposes tooling endpoints for seeding reference content.
type SeedHandler struct {
	service service.SeedService
	logger  zerolog.Logger
}

// NewSeedHandler constructs a seed handler.
func NewSeedHandler(service service.SeedService, logger zerolog.Logger) *SeedHandler {
	return &SeedHandler{
		service: service,
		logger:  logger.With().Str("component", "seed_handler").Logger(),
	}
}

// Register wires seed routes.
func (h *SeedHandler) Register(router fiber.Router) {
	router.Post("/:collection", h.seed)
}

func (h *SeedHandler) seed(c *fiber.Ctx) error {
	actor, ok := requireActor(c)
	if !ok {
		return sendUnauthenticated(c)
	}

	var payload dto.SeedContentRequest
	if err := parseJSON(c, &payload); err != nil {
		return utils.SendAppError(c, err)
	}

	result, err := h.service.SeedContent(requestContext(c), c.Params("collection"), actor, payload.Items)
	if err != nil {
		return sendFailure(c, h.logger, err, "seed operation failed")
	}

	status := fiber.StatusOK
	if result.Created > 0 {
		status = fiber.StatusCreated
	}
	return utils.SendSuccessWithStatus(c, status, "content seeded", result)
}
