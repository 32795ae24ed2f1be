package profile

import (
	"errors"
	"fmt"
	"net/http"

	"nasiya/internal/core"
)

// APIError is a failure reported by the data-access collaborator.
// Status and Message are optional; zero values mean "not provided".
type APIError struct {
	Status  int
	Message string
	Err     error
}

func (e *APIError) Error() string {
	switch {
	case e.Message != "" && e.Status != 0:
		return fmt.Sprintf("profile api: status %d: %s", e.Status, e.Message)
	case e.Message != "":
		return "profile api: " + e.Message
	case e.Err != nil && e.Status != 0:
		return fmt.Sprintf("profile api: status %d: %v", e.Status, e.Err)
	case e.Err != nil:
		return "profile api: " + e.Err.Error()
	case e.Status != 0:
		return fmt.Sprintf("profile api: status %d", e.Status)
	}
	return "profile api: request failed"
}

func (e *APIError) Unwrap() error { return e.Err }

// Unauthenticated builds the error returned when no valid session is present.
func Unauthenticated(msg string) *APIError {
	return &APIError{Status: http.StatusUnauthorized, Message: msg}
}

// NotFound builds a 404 error for the given debtor.
func NotFound(id string) *APIError {
	return &APIError{Status: http.StatusNotFound, Message: "debtor " + id + " not found", Err: core.ErrNotFound}
}

// Invalid wraps a validation failure as a 422.
func Invalid(err error) *APIError {
	return &APIError{Status: http.StatusUnprocessableEntity, Message: err.Error(), Err: err}
}

// StatusOf returns the status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// IsUnauthenticated reports whether err signals a missing or expired session.
func IsUnauthenticated(err error) bool {
	return StatusOf(err) == http.StatusUnauthorized
}

// MessageOr prefers the server-provided message and falls back otherwise.
func MessageOr(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
