package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"resourcehub/internal/server/apperr"
)

// envelope is the uniform JSON response body.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func respond(c echo.Context, status int, message string, data any) error {
	return c.JSON(status, envelope{Success: true, Message: message, Data: data})
}

func fail(c echo.Context, status int, message string) error {
	return c.JSON(status, envelope{Success: false, Message: message})
}

// statusFor maps an error kind to exactly one HTTP status.
func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		if errors.Is(err, apperr.ErrFileTooLarge) {
			return http.StatusRequestEntityTooLarge
		}
		return http.StatusBadRequest
	case apperr.KindConversionDirection:
		return http.StatusBadRequest
	case apperr.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperr.KindAuthorization, apperr.KindPath:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindConversionFailure:
		return http.StatusUnprocessableEntity
	case apperr.KindConversionCapability:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// mapServiceError translates service-layer errors into envelope responses.
func mapServiceError(c echo.Context, err error) error {
	status := statusFor(err)

	var message string
	switch kind := apperr.KindOf(err); kind {
	case apperr.KindPath:
		message = "access denied: invalid temporary file path"
	case apperr.KindConversionCapability:
		message = "conversion is not available on this server: " + apperr.Reason(err, "converter missing")
	case apperr.KindConversionFailure:
		message = "the file could not be converted: " + apperr.Reason(err, "conversion failed")
	case apperr.KindInternal:
		message = "internal server error"
	default:
		message = apperr.Reason(err, http.StatusText(status))
	}

	if status >= http.StatusInternalServerError {
		slog.Error("request failed",
			"method", c.Request().Method,
			"path", c.Path(),
			"status", status,
			"error", err,
		)
	}
	return fail(c, status, message)
}

// errorHandler renders echo's own errors (404 routes, body limit, panics
// recovered by middleware) in the envelope format.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg, ok := he.Message.(string)
		if !ok {
			msg = http.StatusText(he.Code)
		}
		if he.Code >= http.StatusInternalServerError {
			slog.Error("request failed", "path", c.Request().URL.Path, "status", he.Code, "error", err)
		}
		if writeErr := fail(c, he.Code, msg); writeErr != nil {
			slog.Error("failed to write error response", "error", writeErr)
		}
		return
	}

	if writeErr := mapServiceError(c, err); writeErr != nil {
		slog.Error("failed to write error response", "error", writeErr)
	}
}
