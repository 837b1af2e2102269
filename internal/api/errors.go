// errors.go - Structured error responses for the intake API
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/netysoft/Rag-ChatbotIA/internal/log"
)

// ExposeErrorDetails controls whether unexpected errors carry their message
// in the Details field.
var ExposeErrorDetails = true

// APIError is the JSON body of every failed request.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newAPIError(status int, code, message string, cause error) *APIError {
	e := &APIError{Status: status, Code: code, Message: message}
	if cause != nil {
		e.Details = cause.Error()
	}
	return e
}

// NewBadRequestError reports a malformed request (400).
func NewBadRequestError(message string, cause error) *APIError {
	return newAPIError(http.StatusBadRequest, "BAD_REQUEST", message, cause)
}

// NewValidationError reports a missing or empty field (400).
func NewValidationError(field string) *APIError {
	return newAPIError(http.StatusBadRequest, "VALIDATION_ERROR", "missing or empty field: "+field, nil)
}

// NewNotFoundError reports an unknown resource (404).
func NewNotFoundError(resource, id string) *APIError {
	return newAPIError(http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("%s not found: %s", resource, id), nil)
}

// NewPayloadTooLargeError reports a file above the per-file limit (413).
func NewPayloadTooLargeError(name, limit string) *APIError {
	return newAPIError(http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE",
		fmt.Sprintf("%s exceeds the %s upload limit", name, limit), nil)
}

// NewTooManyRequestsError reports a submission over the rate limit (429).
func NewTooManyRequestsError() *APIError {
	return newAPIError(http.StatusTooManyRequests, "RATE_LIMITED", "too many submissions, slow down", nil)
}

// NewInternalError reports a server-side failure (500).
func NewInternalError(message string, cause error) *APIError {
	return newAPIError(http.StatusInternalServerError, "INTERNAL_ERROR", message, cause)
}

// NewServiceUnavailableError reports a server that cannot take more work (503).
func NewServiceUnavailableError(message string) *APIError {
	return newAPIError(http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", message, nil)
}

// ErrorHandler renders any handler error as an APIError.
// Usage: e.HTTPErrorHandler = api.ErrorHandler
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var apiErr *APIError
	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &httpErr):
		apiErr = newAPIError(httpErr.Code, "HTTP_ERROR", fmt.Sprint(httpErr.Message), nil)
	default:
		apiErr = newAPIError(http.StatusInternalServerError, "UNKNOWN_ERROR", "an unexpected error occurred", nil)
		if ExposeErrorDetails {
			apiErr.Details = err.Error()
		}
	}

	if apiErr.Status >= http.StatusInternalServerError {
		logger := log.WithComponent("api")
		logger.Error().Err(err).
			Str("path", c.Request().URL.Path).
			Int("status", apiErr.Status).
			Msg("request failed")
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(apiErr.Status)
		return
	}
	_ = c.JSON(apiErr.Status, apiErr)
}
