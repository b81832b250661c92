// Package apperror classifies failures at the view boundary.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the failure class surfaced to clients.
type Kind string

const (
	KindRetrieval    Kind = "retrieval"
	KindMutation     Kind = "mutation"
	KindSubscription Kind = "subscription"
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindForbidden    Kind = "forbidden"
	KindUnauthorized Kind = "unauthorized"
	KindConflict     Kind = "conflict"
	KindInternal     Kind = "internal"
)

// AppError carries a human readable message and whether retrying makes sense.
type AppError struct {
	Kind      Kind
	Message   string
	Status    int
	Retryable bool
	Err       error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Retrieval wraps a failed fetch or subscription setup. Always retryable.
func Retrieval(message string, err error) *AppError {
	return &AppError{Kind: KindRetrieval, Message: message, Status: http.StatusBadGateway, Retryable: true, Err: err}
}

// Mutation wraps a failed create, update or vote.
func Mutation(message string, err error) *AppError {
	return &AppError{Kind: KindMutation, Message: message, Status: http.StatusBadGateway, Err: err}
}

// Subscription wraps a failure of a standing subscription.
func Subscription(message string, err error) *AppError {
	return &AppError{Kind: KindSubscription, Message: message, Status: http.StatusBadGateway, Retryable: true, Err: err}
}

func Validation(message string, err error) *AppError {
	return &AppError{Kind: KindValidation, Message: message, Status: http.StatusBadRequest, Err: err}
}

func NotFound(resource string, err error) *AppError {
	return &AppError{Kind: KindNotFound, Message: fmt.Sprintf("%s not found", resource), Status: http.StatusNotFound, Err: err}
}

func Forbidden(message string) *AppError {
	return &AppError{Kind: KindForbidden, Message: message, Status: http.StatusForbidden}
}

func Unauthorized(message string) *AppError {
	return &AppError{Kind: KindUnauthorized, Message: message, Status: http.StatusUnauthorized}
}

func Conflict(message string) *AppError {
	return &AppError{Kind: KindConflict, Message: message, Status: http.StatusConflict}
}

// From returns the AppError in err's chain, converting anything else into an
// internal error so raw backend errors never reach a response body.
func From(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return &AppError{Kind: KindInternal, Message: "internal error", Status: http.StatusInternalServerError, Err: err}
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}
