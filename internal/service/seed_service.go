package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/noah-isme/healthwatch-api/internal/apperror"
	"github.com/noah-isme/healthwatch-api/internal/dto"
	"github.com/noah-isme/healthwatch-api/internal/models"
	"github.com/noah-isme/healthwatch-api/internal/repository"
)

// ErrSeedDisabled indicates the seeding tools are disabled by configuration.
var ErrSeedDisabled = errors.New("seeding is disabled")

// SeedService loads reference content in bulk. Entries are keyed by the slug
// of their title so seeding the same batch twice adds nothing.
type SeedService interface {
	SeedContent(ctx context.Context, collection string, actor models.Actor, items []dto.ContentCreateRequest) (dto.SeedResponse, error)
}

type seedService struct {
	repo      repository.ContentRepository
	content   ContentService
	validator *validator.Validate
	policy    *bluemonday.Policy
	enabled   bool
	logger    zerolog.Logger
}

// NewSeedService constructs a seeding service.
func NewSeedService(repo repository.ContentRepository, content ContentService, validate *validator.Validate, enabled bool, logger zerolog.Logger) SeedService {
	if validate == nil {
		validate = validator.New()
	}
	return &seedService{
		repo:      repo,
		content:   content,
		validator: validate,
		policy:    bluemonday.StrictPolicy(),
		enabled:   enabled,
		logger:    logger.With().Str("component", "seed_service").Logger(),
	}
}

func (s *seedService) SeedContent(ctx context.Context, collection string, actor models.Actor, items []dto.ContentCreateRequest) (dto.SeedResponse, error) {
	if !s.enabled {
		return dto.SeedResponse{}, apperror.Forbidden(ErrSeedDisabled.Error())
	}
	if !models.IsContentCollection(collection) {
		return dto.SeedResponse{}, apperror.NotFound("collection", nil)
	}
	if len(items) == 0 {
		return dto.SeedResponse{}, apperror.Validation("no items to seed", nil)
	}

	result := dto.SeedResponse{Collection: collection, IDs: make([]string, 0, len(items))}
	base := time.Now().UTC()
	for i, item := range items {
		if err := s.validator.Struct(item); err != nil {
			return result, apperror.Validation("invalid seed item "+item.Title, err)
		}
		if item.Poll != nil || item.Type == models.ContentTypePoll {
			return result, apperror.Validation("polls cannot be seeded", nil)
		}
		if err := validateContentBody(collection, item.Content); err != nil {
			return result, apperror.Validation("invalid seed item body "+item.Title, err)
		}

		record := s.seedRecord(collection, actor, item)
		id := slugify(record.Title)
		if id == "" {
			return result, apperror.Validation("seed item has no usable title", nil)
		}
		// Keep the batch order as newest first.
		createdAt := base.Add(-time.Duration(i) * time.Second)
		record.CreatedAt = &createdAt

		created, err := s.repo.CreateIfAbsent(ctx, id, record)
		if err != nil {
			return result, apperror.Mutation("Could not seed content. Please try again.", err)
		}
		if created {
			result.Created++
		} else {
			result.Skipped++
		}
		result.IDs = append(result.IDs, id)
	}

	if result.Created > 0 && s.content != nil {
		s.content.Invalidate(ctx, collection)
	}
	s.logger.Info().Str("collection", collection).Int("created", result.Created).Int("skipped", result.Skipped).Msg("content seeded")
	return result, nil
}

func (s *seedService) seedRecord(collection string, actor models.Actor, item dto.ContentCreateRequest) models.ContentRecord {
	record := models.ContentRecord{
		Collection: collection,
		Title:      strings.TrimSpace(s.policy.Sanitize(item.Title)),
		Category:   strings.TrimSpace(s.policy.Sanitize(item.Category)),
		Type:       strings.TrimSpace(item.Type),
		Snippet:    strings.TrimSpace(s.policy.Sanitize(item.Snippet)),
		Content:    models.ContentBody{Introduction: strings.TrimSpace(s.policy.Sanitize(item.Content.Introduction))},
		Author:     models.Author{ID: actor.ID, Name: actor.Name, Role: actor.Role},
		Scope:      item.Scope.Model(),
		Status:     models.ContentStatusActive,
	}
	if record.Category == "" {
		record.Category = models.CategoryOther
	}
	if record.Type == "" {
		record.Type = "article"
	}
	for field, values := range item.Content.Sections {
		cleaned := make([]string, 0, len(values))
		for _, value := range values {
			if value = strings.TrimSpace(s.policy.Sanitize(value)); value != "" {
				cleaned = append(cleaned, value)
			}
		}
		record.Content.SetSection(field, cleaned)
	}
	return record
}

func slugify(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
