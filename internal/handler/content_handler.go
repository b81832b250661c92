package handler

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/healthwatch-api/internal/apperror"
	"github.com/noah-isme/healthwatch-api/internal/dto"
	"github.com/noah-isme/healthwatch-api/internal/feed"
	"github.com/noah-isme/healthwatch-api/internal/models"
	"github.com/noah-isme/healthwatch-api/internal/service"
	"github.com/noah-isme/healthwatch-api/internal/utils"
)

// ContentHandler serves the content collections: list views, detail, authoring,
// votes, polls and cover images.
type ContentHandler struct {
	content service.ContentService
	votes   service.VoteService
	uploads service.UploadService
	logger  zerolog.Logger
}

// NewContentHandler constructs a content handler. uploads may be nil when no
// media backend is configured.
func NewContentHandler(content service.ContentService, votes service.VoteService, uploads service.UploadService, logger zerolog.Logger) *ContentHandler {
	return &ContentHandler{
		content: content,
		votes:   votes,
		uploads: uploads,
		logger:  logger.With().Str("component", "content_handler").Logger(),
	}
}

// Register binds the content routes.
func (h *ContentHandler) Register(router fiber.Router) {
	collection := router.Group("/:collection", h.requireCollection)
	collection.Get("/categories", h.categories)
	collection.Get("/", h.list)
	collection.Post("/", h.create)
	collection.Get("/:id", h.detail)
	collection.Put("/:id", h.edit)
	collection.Patch("/:id/status", h.setStatus)
	collection.Post("/:id/vote", h.vote)
	collection.Delete("/:id/vote", h.unvote)
	collection.Post("/:id/vote/toggle", h.toggleVote)
	collection.Post("/:id/poll/vote", h.pollVote)
	collection.Post("/:id/image", h.uploadImage)
}

func (h *ContentHandler) requireCollection(c *fiber.Ctx) error {
	if !models.IsContentCollection(c.Params("collection")) {
		return utils.SendAppError(c, apperror.NotFound("collection", nil))
	}
	return c.Next()
}

func (h *ContentHandler) categories(c *fiber.Ctx) error {
	collection := c.Params("collection")
	return utils.SendSuccess(c, "categories", dto.CategoriesResponse{
		Collection: collection,
		All:        feed.CategoryAll,
		Categories: feed.Categories(collection),
		CreateNew:  feed.CreateRoute(collection),
	})
}

func (h *ContentHandler) list(c *fiber.Ctx) error {
	collection := c.Params("collection")

	var query dto.ContentListQuery
	if err := c.QueryParser(&query); err != nil {
		return utils.SendAppError(c, apperror.Validation("invalid query parameters", err))
	}

	if selection := feed.Select(collection, query.Category); selection.Kind == feed.SelectNavigate {
		return utils.SendSuccess(c, "navigate", dto.SelectionResponse{Navigate: true, Route: selection.Route})
	}

	actor, _ := requireActor(c)
	result, err := h.content.List(requestContext(c), collection, query, actor.ID)
	if err != nil {
		return sendFailure(c, h.logger, err, "content list failed")
	}

	if result.CacheHit {
		c.Set("X-Cache-Hit", "true")
	} else {
		c.Set("X-Cache-Hit", "false")
	}
	return utils.OK(c, result.Items, "content", fiber.Map{
		"status":   result.Status,
		"total":    result.Total,
		"category": result.Category,
		"query":    result.Query,
		"loadedAt": result.LoadedAt,
	})
}

func (h *ContentHandler) detail(c *fiber.Ctx) error {
	actor, _ := requireActor(c)
	result, err := h.content.Detail(requestContext(c), c.Params("collection"), c.Params("id"), actor.ID)
	if err != nil {
		return sendFailure(c, h.logger, err, "content detail failed")
	}
	return utils.SendSuccess(c, "content", result)
}

func (h *ContentHandler) create(c *fiber.Ctx) error {
	actor, ok := requireActor(c)
	if !ok {
		return sendUnauthenticated(c)
	}

	var payload dto.ContentCreateRequest
	if err := parseJSON(c, &payload); err != nil {
		return utils.SendAppError(c, err)
	}

	result, err := h.content.Create(requestContext(c), c.Params("collection"), actor, payload)
	if err != nil {
		return sendFailure(c, h.logger, err, "content create failed")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "content created", result)
}

func (h *ContentHandler) edit(c *fiber.Ctx) error {
	actor, ok := requireActor(c)
	if !ok {
		return sendUnauthenticated(c)
	}

	var payload dto.ContentUpdateRequest
	if err := parseJSON(c, &payload); err != nil {
		return utils.SendAppError(c, err)
	}

	result, err := h.content.Edit(requestContext(c), c.Params("collection"), c.Params("id"), actor, payload)
	if err != nil {
		return sendFailure(c, h.logger, err, "content edit failed")
	}
	return utils.SendSuccess(c, "content updated", result)
}

func (h *ContentHandler) setStatus(c *fiber.Ctx) error {
	actor, ok := requireActor(c)
	if !ok {
		return sendUnauthenticated(c)
	}

	var payload dto.ContentStatusRequest
	if err := parseJSON(c, &payload); err != nil {
		return utils.SendAppError(c, err)
	}

	result, err := h.content.SetStatus(requestContext(c), c.Params("collection"), c.Params("id"), actor, payload)
	if err != nil {
		return sendFailure(c, h.logger, err, "content status change failed")
	}
	return utils.SendSuccess(c, "content status updated", result)
}

func (h *ContentHandler) vote(c *fiber.Ctx) error {
	return h.applyVote(c, h.votes.Vote)
}

func (h *ContentHandler) unvote(c *fiber.Ctx) error {
	return h.applyVote(c, h.votes.Unvote)
}

func (h *ContentHandler) toggleVote(c *fiber.Ctx) error {
	return h.applyVote(c, h.votes.Toggle)
}

type voteFunc func(ctx context.Context, collection, id string, actor models.Actor) (dto.VoteResponse, error)

func (h *ContentHandler) applyVote(c *fiber.Ctx, apply voteFunc) error {
	actor, ok := requireActor(c)
	if !ok {
		return sendUnauthenticated(c)
	}

	result, err := apply(requestContext(c), c.Params("collection"), c.Params("id"), actor)
	if err != nil {
		return sendFailure(c, h.logger, err, "vote failed")
	}
	return utils.SendSuccess(c, "vote recorded", result)
}

func (h *ContentHandler) pollVote(c *fiber.Ctx) error {
	actor, ok := requireActor(c)
	if !ok {
		return sendUnauthenticated(c)
	}

	var payload dto.PollVoteRequest
	if err := parseJSON(c, &payload); err != nil {
		return utils.SendAppError(c, err)
	}
	if payload.Option == nil || *payload.Option < 0 {
		return utils.SendAppError(c, apperror.Validation("option is required", nil))
	}

	result, err := h.votes.PollVote(requestContext(c), c.Params("collection"), c.Params("id"), actor, *payload.Option)
	if err != nil {
		return sendFailure(c, h.logger, err, "poll vote failed")
	}
	return utils.SendSuccess(c, "poll vote recorded", result)
}

func (h *ContentHandler) uploadImage(c *fiber.Ctx) error {
	actor, ok := requireActor(c)
	if !ok {
		return sendUnauthenticated(c)
	}
	if h.uploads == nil {
		return utils.SendAppError(c, apperror.Mutation("Image uploads are not available right now.", service.ErrUploadUnavailable))
	}

	file, err := c.FormFile("file")
	if err != nil {
		return utils.SendAppError(c, apperror.Validation("file is required", err))
	}

	result, err := h.uploads.UploadContentImage(requestContext(c), c.Params("collection"), c.Params("id"), actor, file)
	if err != nil {
		if errors.Is(err, service.ErrUploadTooLarge) {
			return utils.SendError(c, fiber.StatusRequestEntityTooLarge, apperror.From(err).Message)
		}
		return sendFailure(c, h.logger, err, "image upload failed")
	}
	return utils.SendSuccess(c, "image uploaded", result)
}
