package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/healthwatch-api/internal/apperror"
	"github.com/noah-isme/healthwatch-api/internal/middleware"
	"github.com/noah-isme/healthwatch-api/internal/models"
	"github.com/noah-isme/healthwatch-api/internal/utils"
)

const defaultKeepAlive = 25 * time.Second

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

// requireActor returns the authenticated actor or writes a 401.
func requireActor(c *fiber.Ctx) (models.Actor, bool) {
	actor := middleware.ActorFromContext(c)
	if strings.TrimSpace(actor.ID) == "" {
		return models.Actor{}, false
	}
	return actor, true
}

func sendUnauthenticated(c *fiber.Ctx) error {
	return utils.SendAppError(c, apperror.Unauthorized("authentication required"))
}

// parseJSON decodes the request body. The returned error is ready for
// utils.SendAppError.
func parseJSON(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return apperror.Validation("invalid request body", err)
	}
	return nil
}

// sendFailure logs server side failures before writing the error envelope.
func sendFailure(c *fiber.Ctx, logger zerolog.Logger, err error, msg string) error {
	appErr := apperror.From(err)
	if appErr.Status >= fiber.StatusInternalServerError {
		requestLogger(logger, c).Error().Err(err).Str("kind", string(appErr.Kind)).Msg(msg)
	}
	return utils.SendAppError(c, appErr)
}

func prepareEventStream(c *fiber.Ctx) {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")
}

func writeEvent(w *bufio.Writer, event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return w.Flush()
}

func writeKeepAlive(w *bufio.Writer) error {
	if _, err := fmt.Fprintf(w, ": keep-alive %s\n\n", time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	return w.Flush()
}
