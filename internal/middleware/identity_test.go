package middleware_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/healthwatch-api/internal/middleware"
	"github.com/noah-isme/healthwatch-api/internal/models"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func newIdentityApp() *fiber.App {
	app := fiber.New()
	app.Use(middleware.Authenticate(middleware.NewJWTVerifier(testSecret)))
	app.Get("/me", func(c *fiber.Ctx) error {
		actor := middleware.ActorFromContext(c)
		return c.JSON(fiber.Map{"id": actor.ID, "name": actor.Name, "role": actor.Role})
	})
	return app
}

func perform(t *testing.T, app *fiber.App, req *http.Request) (int, map[string]string) {
	t.Helper()
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	payload := map[string]string{}
	_ = json.Unmarshal(body, &payload)
	return resp.StatusCode, payload
}

func TestAuthenticateMapsClaimsToActor(t *testing.T) {
	app := newIdentityApp()
	token := signToken(t, jwt.MapClaims{
		"sub":  "hw-1",
		"name": "Nurse Ada",
		"role": "Health-Worker",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	status, payload := perform(t, app, req)
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, "hw-1", payload["id"])
	require.Equal(t, "Nurse Ada", payload["name"])
	require.Equal(t, models.RoleHealthWorker, payload["role"])
}

func TestAuthenticateDefaultsUnknownRolesToUser(t *testing.T) {
	app := newIdentityApp()
	token := signToken(t, jwt.MapClaims{"sub": "u1", "role": "superuser"})

	req := httptest.NewRequest(http.MethodGet, "/me?access_token="+token, nil)
	status, payload := perform(t, app, req)
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, models.RoleUser, payload["role"])
}

func TestAuthenticateRejectsBadTokens(t *testing.T) {
	app := newIdentityApp()

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	status, _ := perform(t, app, req)
	require.Equal(t, fiber.StatusUnauthorized, status)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Basic abc")
	status, _ = perform(t, app, req)
	require.Equal(t, fiber.StatusUnauthorized, status)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1"}).SignedString([]byte("other"))
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	status, _ = perform(t, app, req)
	require.Equal(t, fiber.StatusUnauthorized, status)

	expired := signToken(t, jwt.MapClaims{"sub": "u1", "exp": time.Now().Add(-time.Hour).Unix()})
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	status, _ = perform(t, app, req)
	require.Equal(t, fiber.StatusUnauthorized, status)

	anonymous := signToken(t, jwt.MapClaims{"name": "nobody"})
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+anonymous)
	status, _ = perform(t, app, req)
	require.Equal(t, fiber.StatusUnauthorized, status)
}
