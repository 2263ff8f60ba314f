// Package apperror defines the error kinds the intake API distinguishes and
// renders them into HTTP responses.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// FieldErrors maps a field name to its validation messages. Nested fields use
// dotted keys such as "patient.mrn".
type FieldErrors map[string][]string

// Add records msg against field.
func (f FieldErrors) Add(field, msg string) {
	f[field] = append(f[field], msg)
}

// Merge copies other into f with every key prefixed by prefix and a dot.
func (f FieldErrors) Merge(prefix string, other FieldErrors) {
	for k, msgs := range other {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		f[key] = append(f[key], msgs...)
	}
}

// Err returns a *ValidationError when any field failed, nil otherwise.
func (f FieldErrors) Err() error {
	if len(f) == 0 {
		return nil
	}
	return &ValidationError{Fields: f}
}

// ValidationError is a malformed request. It never touches storage.
type ValidationError struct {
	Fields FieldErrors
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return fmt.Sprintf("validation failed: %v", keys)
}

// ConflictError is an identity-consistency violation. Reason is a stable
// machine-readable code and Message the user-facing text.
type ConflictError struct {
	Reason  string
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// NotFoundError reports a missing resource.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string {
	return e.Message
}

// GenerationError wraps any failure of the care-plan generation backend.
type GenerationError struct {
	Backend string
	Cause   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s generation failed: %v", e.Backend, e.Cause)
}

func (e *GenerationError) Unwrap() error {
	return e.Cause
}

// Conflict builds a *ConflictError.
func Conflict(reason, message string) *ConflictError {
	return &ConflictError{Reason: reason, Message: message}
}

// NotFound builds a *NotFoundError.
func NotFound(message string) *NotFoundError {
	return &NotFoundError{Message: message}
}

// IsConflict reports whether err is or wraps a *ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

const generationFailedMessage = "Failed to generate care plan"

// HTTPErrorHandler renders application errors as JSON. Validation failures
// become a field map, everything else a single {"error": msg} object.
// Unknown errors are logged and reported as a generic 500.
func HTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := render(err)
		if status >= http.StatusInternalServerError {
			logger.Error().Err(err).
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Interface("request_id", c.Get("request_id")).
				Int("status", status).
				Msg("request failed")
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			logger.Error().Err(err).Msg("write error response")
		}
	}
}

func render(err error) (int, interface{}) {
	var (
		ve  *ValidationError
		ce  *ConflictError
		nfe *NotFoundError
		ge  *GenerationError
		he  *echo.HTTPError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, ve.Fields
	case errors.As(err, &ce):
		return http.StatusConflict, map[string]string{"error": ce.Message}
	case errors.As(err, &nfe):
		return http.StatusNotFound, map[string]string{"error": nfe.Message}
	case errors.As(err, &ge):
		return http.StatusInternalServerError, map[string]string{"error": generationFailedMessage}
	case errors.As(err, &he):
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok && s != "" {
			msg = s
		}
		return he.Code, map[string]string{"error": msg}
	default:
		return http.StatusInternalServerError, map[string]string{"error": "internal server error"}
	}
}
