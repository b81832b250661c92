package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/healthwatch-api/internal/config"
	"github.com/noah-isme/healthwatch-api/internal/handler"
	"github.com/noah-isme/healthwatch-api/internal/middleware"
	"github.com/noah-isme/healthwatch-api/internal/models"
	"github.com/noah-isme/healthwatch-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	ContentHandler      *handler.ContentHandler
	NotificationHandler *handler.NotificationHandler
	ChatHandler         *handler.ChatHandler
	ProfileHandler      *handler.ProfileHandler
	SeedHandler         *handler.SeedHandler
	HealthProbes        map[string]handler.HealthProbe
	AuthMiddleware      fiber.Handler
	// WriteLimiter throttles authoring and chat routes per actor.
	WriteLimiter fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes))

	auth := deps.AuthMiddleware
	if auth == nil {
		auth = func(c *fiber.Ctx) error { return c.Next() }
	}
	limit := deps.WriteLimiter
	if limit == nil {
		limit = func(c *fiber.Ctx) error { return c.Next() }
	}
	throttleWrites := func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodGet || c.Method() == fiber.MethodHead {
			return c.Next()
		}
		return limit(c)
	}

	if deps.ContentHandler != nil {
		content := api.Group("/content", auth, throttleWrites)
		deps.ContentHandler.Register(content)
	}

	if deps.NotificationHandler != nil {
		notifications := api.Group("/notifications", auth)
		deps.NotificationHandler.Register(notifications)
	}

	if deps.ChatHandler != nil {
		chats := api.Group("/chats", auth, throttleWrites)
		deps.ChatHandler.Register(chats)
	}

	if deps.ProfileHandler != nil {
		profile := api.Group("/profile", auth)
		deps.ProfileHandler.Register(profile)
	}

	if deps.SeedHandler != nil {
		seed := api.Group("/admin/seed", auth, middleware.RequireRole(models.RoleAdmin))
		deps.SeedHandler.Register(seed)
	}
}
