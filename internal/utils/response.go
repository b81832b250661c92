package utils

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/healthwatch-api/internal/apperror"
)

// APIResponse describes the common structure for API responses.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
	Message string      `json:"message"`
}

// ErrorBody tells clients which failure class occurred and whether a retry
// control should be offered.
type ErrorBody struct {
	Kind      apperror.Kind `json:"kind"`
	Retryable bool          `json:"retryable"`
}

// SendSuccess sends a successful JSON response with a message.
func SendSuccess(c *fiber.Ctx, message string, data interface{}) error {
	return SendSuccessWithStatus(c, fiber.StatusOK, message, data)
}

// SendSuccessWithStatus sends a success payload using the provided HTTP status code.
func SendSuccessWithStatus(c *fiber.Ctx, status int, message string, data interface{}) error {
	if message == "" {
		message = "success"
	}
	if status == 0 {
		status = fiber.StatusOK
	}

	return c.Status(status).JSON(APIResponse{
		Success: true,
		Data:    data,
		Message: message,
	})
}

// OK sends a success payload with list metadata.
func OK(c *fiber.Ctx, data interface{}, message string, meta interface{}) error {
	if message == "" {
		message = "success"
	}
	return c.Status(fiber.StatusOK).JSON(APIResponse{
		Success: true,
		Data:    data,
		Meta:    meta,
		Message: message,
	})
}

// SendError sends an error JSON response with the given status code.
func SendError(c *fiber.Ctx, status int, message string) error {
	if message == "" {
		message = "error"
	}

	return c.Status(status).JSON(APIResponse{
		Success: false,
		Message: message,
	})
}

// SendAppError converts err into its failure class and responds with the
// class's status. Causes are never written to the body.
func SendAppError(c *fiber.Ctx, err error) error {
	appErr := apperror.From(err)
	if appErr == nil {
		return SendError(c, fiber.StatusInternalServerError, "internal error")
	}

	return c.Status(appErr.Status).JSON(APIResponse{
		Success: false,
		Error:   &ErrorBody{Kind: appErr.Kind, Retryable: appErr.Retryable},
		Message: appErr.Message,
	})
}
