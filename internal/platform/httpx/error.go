// Package httpx holds the JSON envelope helpers shared by handlers and middleware.
package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/rentwheel/api/internal/platform/requestctx"
	"github.com/rentwheel/api/internal/services"
)

// Error is the canonical JSON error envelope.
type Error struct {
	Code      string
	Message   string
	Status    int
	RequestID string
	TraceID   string
	Details   map[string]any
}

// NewError builds an Error. A zero status means 500.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    sanitize(code, 80),
		Message: sanitize(message, 512),
		Status:  status,
	}
}

// WithDetails attaches extra fields merged into the top level of the envelope.
func (e Error) WithDetails(details map[string]any) Error {
	if len(details) == 0 {
		return e
	}
	merged := make(map[string]any, len(details))
	for k, v := range details {
		merged[k] = v
	}
	e.Details = merged
	return e
}

// ServiceError translates a service sentinel into its HTTP envelope. The second return value is
// false for unclassified errors, which are rendered as a generic 500 and must be logged by the caller.
func ServiceError(err error) (Error, bool) {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return NewError("invalid_input", err.Error(), http.StatusBadRequest), true
	case errors.Is(err, services.ErrNotFound):
		return NewError("not_found", err.Error(), http.StatusNotFound), true
	case errors.Is(err, services.ErrForbidden):
		return NewError("forbidden", err.Error(), http.StatusForbidden), true
	case errors.Is(err, services.ErrConflict):
		return NewError("conflict", err.Error(), http.StatusConflict), true
	case errors.Is(err, services.ErrDependency), errors.Is(err, context.DeadlineExceeded):
		return NewError("dependency_unavailable", "a downstream dependency is unavailable", http.StatusServiceUnavailable), true
	default:
		return NewError("internal_error", "internal server error", http.StatusInternalServerError), false
	}
}

// WriteError writes err as JSON, filling request and trace ids from ctx.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}

	requestID := err.RequestID
	if requestID == "" {
		requestID = requestctx.RequestID(ctx)
	}
	if requestID == "" && ctx != nil {
		requestID = middleware.GetReqID(ctx)
	}
	traceID := err.TraceID
	if traceID == "" {
		traceID = requestctx.TraceID(ctx)
	}

	payload := map[string]any{
		"error":   err.Code,
		"message": err.Message,
		"status":  status,
	}
	if requestID != "" {
		payload["request_id"] = sanitize(requestID, 80)
	}
	if traceID != "" {
		payload["trace_id"] = sanitize(traceID, 64)
	}
	for k, v := range err.Details {
		if _, reserved := payload[k]; !reserved {
			payload[k] = v
		}
	}

	WriteJSON(w, status, payload)
}

func sanitize(value string, limit int) string {
	value = strings.NewReplacer("\n", " ", "\r", " ").Replace(value)
	value = strings.TrimSpace(value)
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
