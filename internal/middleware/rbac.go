package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/healthwatch-api/internal/apperror"
	"github.com/noah-isme/healthwatch-api/internal/utils"
)

// RequireRole ensures that the authenticated actor possesses one of the allowed roles.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		normalized := strings.ToLower(strings.TrimSpace(role))
		if normalized != "" {
			allowed[normalized] = struct{}{}
		}
	}

	return func(c *fiber.Ctx) error {
		actor := ActorFromContext(c)
		if actor.ID == "" {
			return utils.SendAppError(c, apperror.Unauthorized("authentication required"))
		}
		if _, ok := allowed[strings.ToLower(actor.Role)]; !ok {
			return utils.SendAppError(c, apperror.Forbidden("insufficient permissions"))
		}
		return c.Next()
	}
}
