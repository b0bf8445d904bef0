package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/rentwheel/api/internal/domain"
	"github.com/rentwheel/api/internal/platform/idempotency"
	"github.com/rentwheel/api/internal/services"
)

func samplePayment() services.Payment {
	paid := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	return services.Payment{
		ID:              "pay_1",
		BookingID:       "bkg_1",
		UserID:          "user-1",
		Amount:          2000,
		Currency:        "INR",
		Method:          domain.PaymentMethodUPI,
		Status:          domain.PaymentStatusSuccess,
		TransactionID:   "TXN123",
		GatewayResponse: map[string]any{"message": "ok"},
		PaidAt:          &paid,
		CreatedAt:       paid,
		UpdatedAt:       paid,
	}
}

func TestPaymentHandlersProcessPayment(t *testing.T) {
	var captured services.ProcessPaymentCommand
	svc := &stubPaymentService{
		processFn: func(_ context.Context, cmd services.ProcessPaymentCommand) (services.Payment, error) {
			captured = cmd
			return samplePayment(), nil
		},
	}
	router := chi.NewRouter()
	router.Route("/payments", NewPaymentHandlers(nil, svc).Routes)

	rr := httptest.NewRecorder()
	req := newJSONRequest(http.MethodPost, "/payments/process", `{"booking_id":"bkg_1","payment_method":"upi"}`)
	router.ServeHTTP(rr, asUser(req, "user-1"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.BookingID != "bkg_1" || captured.Method != "upi" || captured.Actor.ID != "user-1" {
		t.Fatalf("unexpected command %+v", captured)
	}

	var body struct {
		Payment paymentPayload `json:"payment"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body.Payment.TransactionID != "TXN123" || body.Payment.PaymentMethod != "upi" {
		t.Fatalf("unexpected payment payload %+v", body.Payment)
	}
	if body.Payment.PaidAt == nil || *body.Payment.PaidAt != "2025-05-01T09:00:00Z" {
		t.Fatalf("expected paid_at, got %v", body.Payment.PaidAt)
	}
}

func TestPaymentHandlersProcessPaymentReplaysIdempotentRetry(t *testing.T) {
	calls := 0
	svc := &stubPaymentService{
		processFn: func(context.Context, services.ProcessPaymentCommand) (services.Payment, error) {
			calls++
			if calls > 1 {
				return services.Payment{}, services.ErrConflict
			}
			return samplePayment(), nil
		},
	}
	handlers := NewPaymentHandlers(nil, svc, WithPaymentIdempotency(idempotency.Middleware(idempotency.NewMemoryStore())))
	router := chi.NewRouter()
	router.Route("/payments", handlers.Routes)

	send := func() *httptest.ResponseRecorder {
		req := newJSONRequest(http.MethodPost, "/payments/process", `{"booking_id":"bkg_1"}`)
		req.Header.Set("Idempotency-Key", "retry-1")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, asUser(req, "user-1"))
		return rr
	}

	first := send()
	second := send()

	if first.Code != http.StatusOK || second.Code != http.StatusOK {
		t.Fatalf("expected both responses 200, got %d and %d", first.Code, second.Code)
	}
	if calls != 1 {
		t.Fatalf("expected a single service call, got %d", calls)
	}
	if second.Header().Get(idempotency.ReplayHeader) != "true" {
		t.Fatalf("expected replay header on retry")
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("expected identical bodies, got %q and %q", first.Body.String(), second.Body.String())
	}
}

func TestPaymentHandlersGetPaymentByBooking(t *testing.T) {
	svc := &stubPaymentService{
		getFn: func(_ context.Context, actor services.Actor, bookingID string) (services.Payment, error) {
			if bookingID != "bkg_1" {
				return services.Payment{}, services.ErrNotFound
			}
			return samplePayment(), nil
		},
	}
	router := chi.NewRouter()
	router.Route("/payments", NewPaymentHandlers(nil, svc).Routes)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, asUser(newJSONRequest(http.MethodGet, "/payments/booking/bkg_1", ""), "user-1"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, asUser(newJSONRequest(http.MethodGet, "/payments/booking/bkg_2", ""), "user-1"))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}
