package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/healthwatch-api/internal/middleware"
	"github.com/noah-isme/healthwatch-api/internal/models"
	"github.com/noah-isme/healthwatch-api/internal/store"
)

var (
	nurse   = models.Actor{ID: "hw-1", Name: "Nurse Ada", Role: models.RoleHealthWorker}
	patient = models.Actor{ID: "u1", Name: "Bola", Role: models.RoleUser}
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    json.RawMessage `json:"meta"`
	Error   *struct {
		Kind      string `json:"kind"`
		Retryable bool   `json:"retryable"`
	} `json:"error"`
}

func newTestStore(t *testing.T) store.DocumentStore {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	documents, err := store.NewGormStore(db, nil, zerolog.Nop())
	require.NoError(t, err)
	return documents
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// asActor authenticates every request as the actor named by the X-Test-User
// header. Requests without the header stay anonymous.
func asActor(actors ...models.Actor) fiber.Handler {
	byID := make(map[string]models.Actor, len(actors))
	for _, actor := range actors {
		byID[actor.ID] = actor
	}
	return func(c *fiber.Ctx) error {
		if actor, ok := byID[c.Get("X-Test-User")]; ok {
			middleware.SetActor(c, actor)
		}
		return c.Next()
	}
}

func call(t *testing.T, app *fiber.App, method, path string, actor models.Actor, body interface{}) (*http.Response, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if actor.ID != "" {
		req.Header.Set("X-Test-User", actor.ID)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	var payload envelope
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &payload), string(raw))
	}
	return resp, payload
}

func decodeData(t *testing.T, payload envelope, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(payload.Data, out))
}
