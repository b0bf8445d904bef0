package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rentwheel/api/internal/platform/auth"
	"github.com/rentwheel/api/internal/platform/httpx"
	"github.com/rentwheel/api/internal/platform/requestctx"
	"github.com/rentwheel/api/internal/services"
)

const maxRequestBodySize = 32 * 1024

var errUnauthenticated = httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized)

// actorFrom maps the authenticated identity onto a service actor.
func actorFrom(r *http.Request) (services.Actor, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		return services.Actor{}, false
	}
	return services.Actor{ID: strings.TrimSpace(identity.UID), IsAdmin: identity.IsAdmin()}, true
}

// requireActor writes 401 and returns false when the request carries no identity.
func requireActor(w http.ResponseWriter, r *http.Request) (services.Actor, bool) {
	actor, ok := actorFrom(r)
	if !ok {
		httpx.WriteError(r.Context(), w, errUnauthenticated)
	}
	return actor, ok
}

func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	envelope, known := httpx.ServiceError(err)
	if !known || envelope.Status >= http.StatusInternalServerError {
		requestctx.Logger(ctx).Error("request failed", zap.Error(err))
	}
	httpx.WriteError(ctx, w, envelope)
}

// decodeBody decodes a required JSON body, writing the error response on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, maxRequestBodySize, dst); err != nil {
		httpx.WriteError(r.Context(), w, httpx.DecodeError(err))
		return false
	}
	return true
}

// decodeOptionalBody accepts an empty body and leaves dst untouched.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := httpx.DecodeJSON(r, maxRequestBodySize, dst)
	if err == nil || errors.Is(err, httpx.ErrEmptyBody) {
		return true
	}
	httpx.WriteError(r.Context(), w, httpx.DecodeError(err))
	return false
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	value := formatTime(*t)
	return &value
}

// optional turns a nil middleware into a pass-through.
func optional(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	if mw == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return mw
}
