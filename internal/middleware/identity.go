package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/healthwatch-api/internal/apperror"
	"github.com/noah-isme/healthwatch-api/internal/models"
	"github.com/noah-isme/healthwatch-api/internal/utils"
)

// ActorLocalsKey is the request locals key holding the authenticated Actor.
const ActorLocalsKey = "actor"

// TokenVerifier turns a bearer token into the caller's identity.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (models.Actor, error)
}

// Authenticate rejects requests without a valid bearer token and stores the
// verified Actor in the request locals. EventSource and WebSocket clients may
// pass the token as the "access_token" query parameter.
func Authenticate(verifier TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c)
		if token == "" {
			return utils.SendAppError(c, apperror.Unauthorized("authorization token missing"))
		}

		actor, err := verifier.Verify(c.UserContext(), token)
		if err != nil {
			return utils.SendAppError(c, apperror.Unauthorized("invalid token"))
		}

		SetActor(c, actor)
		return c.Next()
	}
}

func bearerToken(c *fiber.Ctx) string {
	const bearer = "bearer "
	authorization := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if authorization != "" {
		if !strings.HasPrefix(strings.ToLower(authorization), bearer) {
			return ""
		}
		return strings.TrimSpace(authorization[len(bearer):])
	}
	return strings.TrimSpace(c.Query("access_token"))
}

// SetActor binds actor to the request.
func SetActor(c *fiber.Ctx, actor models.Actor) {
	c.Locals(ActorLocalsKey, actor)
	c.Locals("user_id", actor.ID)
	c.Locals("user_role", actor.Role)
}

// ActorFromContext returns the authenticated actor, or the zero Actor.
func ActorFromContext(c *fiber.Ctx) models.Actor {
	if c == nil {
		return models.Actor{}
	}
	if actor, ok := c.Locals(ActorLocalsKey).(models.Actor); ok {
		return actor
	}
	return models.Actor{}
}
