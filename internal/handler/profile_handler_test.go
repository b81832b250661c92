package handler_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/healthwatch-api/internal/dto"
	"github.com/noah-isme/healthwatch-api/internal/handler"
	"github.com/noah-isme/healthwatch-api/internal/models"
	"github.com/noah-isme/healthwatch-api/internal/repository"
	"github.com/noah-isme/healthwatch-api/internal/service"
)

func TestProfileHandlerScopeAndPresence(t *testing.T) {
	documents := newTestStore(t)
	validate := validator.New()
	users := repository.NewUserRepository(documents)
	chats := service.NewChatService(repository.NewChatRepository(documents), users, documents, validate, zerolog.Nop())
	profiles := service.NewProfileService(users, validate, zerolog.Nop())

	app := fiber.New()
	group := app.Group("/api/v1/profile", asActor(nurse, patient))
	handler.NewProfileHandler(profiles, chats, zerolog.Nop()).Register(group)

	resp, body := call(t, app, http.MethodGet, "/api/v1/profile", nurse, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"id":"hw-1","name":"Nurse Ada","role":"health_worker"}`, string(body.Data))

	resp, body = call(t, app, http.MethodPut, "/api/v1/profile/scope", patient, dto.ScopeInput{Local: "Ikeja", State: "Lagos"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body.Message)

	lagos, err := users.ListByState(context.Background(), "Lagos")
	require.NoError(t, err)
	require.Len(t, lagos, 1)
	require.Equal(t, patient.ID, lagos[0].ID)

	resp, body = call(t, app, http.MethodPut, "/api/v1/profile/presence", patient, dto.PresenceRequest{Status: models.PresenceAway})
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body.Message)

	afterPresence, err := users.ListByState(context.Background(), "Lagos")
	require.NoError(t, err)
	require.Equal(t, models.PresenceAway, afterPresence[0].Presence)

	resp, body = call(t, app, http.MethodPut, "/api/v1/profile/presence", patient, dto.PresenceRequest{Status: "busy"})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "validation", body.Error.Kind)

	resp, _ = call(t, app, http.MethodPut, "/api/v1/profile/scope", models.Actor{}, dto.ScopeInput{State: "Lagos"})
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
