package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/healthwatch-api/internal/apperror"
	"github.com/noah-isme/healthwatch-api/internal/dto"
	"github.com/noah-isme/healthwatch-api/internal/models"
	"github.com/noah-isme/healthwatch-api/internal/repository"
)

// ProfileService updates the caller's own profile.
type ProfileService interface {
	// SetScope stores where the caller is located. Notifications about new
	// content are fanned out by the state part of the scope.
	SetScope(ctx context.Context, actor models.Actor, payload dto.ScopeInput) (models.Scope, error)
}

type profileService struct {
	users     repository.UserRepository
	validator *validator.Validate
	logger    zerolog.Logger
}

func NewProfileService(users repository.UserRepository, validate *validator.Validate, logger zerolog.Logger) ProfileService {
	return &profileService{
		users:     users,
		validator: validate,
		logger:    logger.With().Str("component", "profile_service").Logger(),
	}
}

func (s *profileService) SetScope(ctx context.Context, actor models.Actor, payload dto.ScopeInput) (models.Scope, error) {
	if strings.TrimSpace(actor.ID) == "" {
		return models.Scope{}, apperror.Unauthorized("sign in to update your profile")
	}
	if err := s.validator.Struct(payload); err != nil {
		return models.Scope{}, apperror.Validation("invalid scope", err)
	}

	scope := dto.ScopeInput{
		Local:    strings.TrimSpace(payload.Local),
		State:    strings.TrimSpace(payload.State),
		National: strings.TrimSpace(payload.National),
	}.Model()

	if err := s.users.SetScope(ctx, actor.ID, scope); err != nil {
		return models.Scope{}, apperror.Mutation("Could not update your profile. Please try again.", err)
	}

	s.logger.Debug().Str("user_id", actor.ID).Str("state", scope.State).Msg("profile scope updated")
	return scope, nil
}
