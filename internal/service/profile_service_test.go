package service

import (
	"context"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/healthwatch-api/internal/apperror"
	"github.com/noah-isme/healthwatch-api/internal/dto"
	"github.com/noah-isme/healthwatch-api/internal/models"
	"github.com/noah-isme/healthwatch-api/internal/repository"
)

func TestProfileSetScopeFeedsStateAudience(t *testing.T) {
	documents := newTestStore(t)
	users := repository.NewUserRepository(documents)
	svc := NewProfileService(users, validator.New(), testLogger())
	ctx := context.Background()

	scope, err := svc.SetScope(ctx, models.Actor{ID: "u1", Role: models.RoleUser}, dto.ScopeInput{Local: " Ikeja ", State: "Lagos"})
	require.NoError(t, err)
	require.Equal(t, models.Scope{Local: "Ikeja", State: "Lagos"}, scope)

	lagos, err := users.ListByState(ctx, "Lagos")
	require.NoError(t, err)
	require.Len(t, lagos, 1)
	require.Equal(t, "u1", lagos[0].ID)
	require.Equal(t, "Ikeja", lagos[0].Scope.Local)
}

func TestProfileSetScopeRejectsInvalidInput(t *testing.T) {
	svc := NewProfileService(repository.NewUserRepository(newTestStore(t)), validator.New(), testLogger())
	ctx := context.Background()

	_, err := svc.SetScope(ctx, models.Actor{}, dto.ScopeInput{State: "Lagos"})
	require.True(t, apperror.Is(err, apperror.KindUnauthorized))

	_, err = svc.SetScope(ctx, models.Actor{ID: "u1"}, dto.ScopeInput{State: strings.Repeat("x", 101)})
	require.True(t, apperror.Is(err, apperror.KindValidation))
}
