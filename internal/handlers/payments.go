package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rentwheel/api/internal/platform/auth"
	"github.com/rentwheel/api/internal/platform/httpx"
	"github.com/rentwheel/api/internal/services"
)

// PaymentHandlers exposes the simulated payment endpoints.
type PaymentHandlers struct {
	authn       *auth.Authenticator
	payments    services.PaymentService
	idempotency func(http.Handler) http.Handler
	rateLimit   func(http.Handler) http.Handler
}

// PaymentOption customises PaymentHandlers.
type PaymentOption func(*PaymentHandlers)

// WithPaymentIdempotency wraps payment processing with the given middleware.
func WithPaymentIdempotency(mw func(http.Handler) http.Handler) PaymentOption {
	return func(h *PaymentHandlers) {
		h.idempotency = mw
	}
}

// WithPaymentRateLimit caps payment attempts per user to limit requests in each window.
func WithPaymentRateLimit(limit int, window time.Duration) PaymentOption {
	return func(h *PaymentHandlers) {
		h.rateLimit = perUserRateLimit(limit, window, nil)
	}
}

// NewPaymentHandlers constructs a new PaymentHandlers instance.
func NewPaymentHandlers(authn *auth.Authenticator, payments services.PaymentService, opts ...PaymentOption) *PaymentHandlers {
	h := &PaymentHandlers{authn: authn, payments: payments}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /payments endpoints.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Group(func(process chi.Router) {
		// both are scoped per caller, so they run after authentication
		if h.rateLimit != nil {
			process.Use(h.rateLimit)
		}
		if h.idempotency != nil {
			process.Use(h.idempotency)
		}
		process.Post("/process", h.processPayment)
	})
	r.Get("/booking/{bookingID}", h.getPaymentByBooking)
}

type processPaymentRequest struct {
	BookingID     string `json:"booking_id"`
	PaymentMethod string `json:"payment_method"`
}

type paymentPayload struct {
	ID              string         `json:"id"`
	BookingID       string         `json:"booking_id"`
	UserID          string         `json:"user_id"`
	Amount          int64          `json:"amount"`
	Currency        string         `json:"currency"`
	PaymentMethod   string         `json:"payment_method"`
	Status          string         `json:"status"`
	TransactionID   string         `json:"transaction_id"`
	GatewayResponse map[string]any `json:"gateway_response,omitempty"`
	PaidAt          *string        `json:"paid_at,omitempty"`
	FailedAt        *string        `json:"failed_at,omitempty"`
	FailureReason   string         `json:"failure_reason,omitempty"`
	CreatedAt       string         `json:"created_at"`
	UpdatedAt       string         `json:"updated_at"`
}

func buildPaymentPayload(p services.Payment) paymentPayload {
	return paymentPayload{
		ID:              p.ID,
		BookingID:       p.BookingID,
		UserID:          p.UserID,
		Amount:          p.Amount,
		Currency:        p.Currency,
		PaymentMethod:   string(p.Method),
		Status:          string(p.Status),
		TransactionID:   p.TransactionID,
		GatewayResponse: p.GatewayResponse,
		PaidAt:          formatTimePtr(p.PaidAt),
		FailedAt:        formatTimePtr(p.FailedAt),
		FailureReason:   p.FailureReason,
		CreatedAt:       formatTime(p.CreatedAt),
		UpdatedAt:       formatTime(p.UpdatedAt),
	}
}

func (h *PaymentHandlers) processPayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req processPaymentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	payment, err := h.payments.ProcessPayment(r.Context(), services.ProcessPaymentCommand{
		Actor:     actor,
		BookingID: req.BookingID,
		Method:    req.PaymentMethod,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"message": "payment processed successfully",
		"payment": buildPaymentPayload(payment),
	})
}

func (h *PaymentHandlers) getPaymentByBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	payment, err := h.payments.GetPaymentByBooking(r.Context(), actor, chi.URLParam(r, "bookingID"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"payment": buildPaymentPayload(payment)})
}
