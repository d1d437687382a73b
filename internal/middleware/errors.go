package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/render"

	"github.com/popeskul/insdr-dispatcher/internal/api"
)

// Common error codes used by middleware
const (
	ErrorCodeInternal          = "INTERNAL_ERROR"
	ErrorCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	ErrorCodeRequestTimeout    = "REQUEST_TIMEOUT"
	ErrorCodeUnauthorized      = "UNAUTHORIZED"
)

// Common error messages used by middleware
const (
	ErrorMessageInternal          = "An internal error occurred"
	ErrorMessageRateLimitExceeded = "Too many requests"
	ErrorMessageRequestTimeout    = "Request timeout"
	ErrorMessageUnauthorized      = "Missing or invalid bearer token"
)

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	now := time.Now().UTC()
	render.Status(r, status)
	render.JSON(w, r, api.ErrorResponse{
		Error:     code,
		Message:   message,
		Timestamp: &now,
	})
}
