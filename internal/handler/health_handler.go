package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/healthwatch-api/internal/config"
	"github.com/noah-isme/healthwatch-api/internal/utils"
)

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status      string            `json:"status"`
	Timestamp   time.Time         `json:"timestamp"`
	Service     string            `json:"service"`
	Environment string            `json:"environment"`
	StoreDriver string            `json:"storeDriver"`
	Components  map[string]string `json:"components,omitempty"`
}

// HealthProbe reports whether one backing component is reachable.
type HealthProbe func(ctx context.Context) error

// HealthCheck returns a handler that reports application health information.
// A failing probe turns the response into a 503.
func HealthCheck(cfg config.Config, probes map[string]HealthProbe) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC(),
			Service:     cfg.AppName,
			Environment: cfg.AppEnv,
			StoreDriver: cfg.StoreDriver,
		}

		if len(probes) > 0 {
			ctx, cancel := context.WithTimeout(requestContext(c), 2*time.Second)
			defer cancel()

			payload.Components = make(map[string]string, len(probes))
			for name, probe := range probes {
				if err := probe(ctx); err != nil {
					payload.Components[name] = "down"
					payload.Status = "degraded"
					continue
				}
				payload.Components[name] = "up"
			}
		}

		if payload.Status != "ok" {
			return c.Status(fiber.StatusServiceUnavailable).JSON(utils.APIResponse{
				Success: false,
				Message: "service degraded",
				Data:    payload,
			})
		}
		return utils.SendSuccess(c, "service healthy", payload)
	}
}
