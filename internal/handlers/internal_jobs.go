package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rentwheel/api/internal/platform/httpx"
	"github.com/rentwheel/api/internal/services"
)

// InternalJobHandlers exposes scheduler-triggered maintenance endpoints.
// The /internal group is protected by OIDC middleware configured on the router.
type InternalJobHandlers struct {
	payments services.PaymentService
}

func NewInternalJobHandlers(payments services.PaymentService) *InternalJobHandlers {
	return &InternalJobHandlers{payments: payments}
}

// Routes registers the /internal endpoints.
func (h *InternalJobHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/jobs/reconcile-payments", h.reconcilePayments)
}

type reconcileRequest struct {
	Since string `json:"since"`
	Limit int    `json:"limit"`
}

func (h *InternalJobHandlers) reconcilePayments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req reconcileRequest
	if !decodeOptionalBody(w, r, &req) {
		return
	}
	cmd := services.ReconcilePaymentsCommand{Limit: req.Limit}
	if raw := strings.TrimSpace(req.Since); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_input", "since must be an RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		cmd.Since = since
	}
	if cmd.Limit < 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_input", "limit must not be negative", http.StatusBadRequest))
		return
	}

	result, err := h.payments.ReconcilePayments(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"scanned":  result.Scanned,
		"repaired": result.Repaired,
		"skipped":  result.Skipped,
		"failed":   result.Failed,
	})
}
