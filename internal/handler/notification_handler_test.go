package handler_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/healthwatch-api/internal/dto"
	"github.com/noah-isme/healthwatch-api/internal/handler"
	"github.com/noah-isme/healthwatch-api/internal/models"
	"github.com/noah-isme/healthwatch-api/internal/repository"
	"github.com/noah-isme/healthwatch-api/internal/service"
)

func newNotificationApp(t *testing.T) (*fiber.App, repository.NotificationRepository) {
	t.Helper()

	documents := newTestStore(t)
	repo := repository.NewNotificationRepository(documents)
	svc := service.NewNotificationService(repo, repository.NewUserRepository(documents), documents, zerolog.Nop())

	app := fiber.New()
	group := app.Group("/api/v1/notifications", asActor(nurse, patient))
	handler.NewNotificationHandler(svc, zerolog.Nop(), 0).Register(group)
	return app, repo
}

func TestNotificationHandlerListAndTransitions(t *testing.T) {
	app, repo := newNotificationApp(t)
	ctx := context.Background()

	first, err := repo.Create(ctx, models.NotificationRecord{UserID: patient.ID, Type: "content", Title: "Clinic moved"})
	require.NoError(t, err)
	_, err = repo.Create(ctx, models.NotificationRecord{UserID: patient.ID, Type: "content", Title: "New tip"})
	require.NoError(t, err)
	_, err = repo.Create(ctx, models.NotificationRecord{UserID: nurse.ID, Type: "content", Title: "Not for the patient"})
	require.NoError(t, err)

	resp, body := call(t, app, http.MethodGet, "/api/v1/notifications", patient, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var items []dto.NotificationResponse
	decodeData(t, body, &items)
	require.Len(t, items, 2)
	require.JSONEq(t, `{"unread":2}`, string(body.Meta))

	resp, body = call(t, app, http.MethodPatch, "/api/v1/notifications/"+first.ID+"/read", nurse, nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	require.Equal(t, "not_found", body.Error.Kind)

	resp, body = call(t, app, http.MethodPatch, "/api/v1/notifications/"+first.ID+"/read", patient, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var updated dto.NotificationResponse
	decodeData(t, body, &updated)
	require.Equal(t, string(models.NotificationRead), updated.Status)

	resp, _ = call(t, app, http.MethodPatch, "/api/v1/notifications/"+first.ID+"/archive", patient, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, body = call(t, app, http.MethodPatch, "/api/v1/notifications/"+first.ID+"/read", patient, nil)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
	require.Equal(t, "conflict", body.Error.Kind)

	resp, body = call(t, app, http.MethodPost, "/api/v1/notifications/read-all", patient, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"updated":1}`, string(body.Data))

	resp, _ = call(t, app, http.MethodDelete, "/api/v1/notifications/"+first.ID, patient, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, body = call(t, app, http.MethodGet, "/api/v1/notifications", patient, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	decodeData(t, body, &items)
	require.Len(t, items, 1)
	require.JSONEq(t, `{"unread":0}`, string(body.Meta))
}

func TestNotificationHandlerRequiresIdentity(t *testing.T) {
	app, _ := newNotificationApp(t)

	for _, path := range []string{"/api/v1/notifications", "/api/v1/notifications/stream"} {
		resp, body := call(t, app, http.MethodGet, path, models.Actor{}, nil)
		require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, path)
		require.Equal(t, "unauthorized", body.Error.Kind)
	}
}
