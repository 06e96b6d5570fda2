package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/abdusco/qrlink/internal"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

const signInPath = "/auth/signin"

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// statusFor maps an error returned by a handler to a status code and the
// message shown to the client.
func statusFor(err error) (int, string) {
	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &httpErr):
		message := http.StatusText(httpErr.Code)
		if msg, ok := httpErr.Message.(string); ok {
			message = msg
		} else if httpErr.Message != nil {
			message = fmt.Sprint(httpErr.Message)
		}
		return httpErr.Code, message
	case errors.Is(err, internal.ErrInvalidURL):
		return http.StatusBadRequest, "Invalid destination URL"
	case errors.Is(err, internal.ErrUnauthenticated):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, internal.ErrUnauthorized):
		return http.StatusForbidden, "Forbidden: Admin access required"
	case errors.Is(err, internal.ErrLinkNotFound):
		return http.StatusNotFound, "QR code not found"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "Request timed out, please retry"
	case errors.Is(err, internal.ErrCodeSpaceExhausted):
		return http.StatusInternalServerError, "Failed to generate a unique short code"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// ErrorHandler renders handler errors. The request logger calls it first, so
// a response that is already committed is left alone.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code, message := statusFor(err)
	isAPICall := strings.HasPrefix(c.Request().URL.Path, "/api/")

	event := log.Warn()
	if code >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.
		Int("code", code).
		Str("method", c.Request().Method).
		Str("path", c.Request().URL.Path).
		Err(err).
		Msg("http error")

	if !isAPICall && code == http.StatusUnauthorized {
		_ = c.Redirect(http.StatusTemporaryRedirect, signInPath)
		return
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}

	_ = c.JSON(code, errorResponse{Success: false, Error: message})
}
