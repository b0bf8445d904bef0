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
	"github.com/rentwheel/api/internal/services"
)

func sampleBooking() services.Booking {
	now := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	return services.Booking{
		ID:          "bkg_1",
		Reference:   "BK12345678",
		UserID:      "user-1",
		VehicleID:   "veh_1",
		StartDate:   domain.NewDate(2025, time.June, 1),
		EndDate:     domain.NewDate(2025, time.June, 3),
		PricePerDay: 1000,
		TotalDays:   2,
		TotalPrice:  2000,
		Status:      domain.BookingStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func bookingRouter(svc services.BookingService) chi.Router {
	router := chi.NewRouter()
	router.Route("/bookings", NewBookingHandlers(nil, svc).Routes)
	return router
}

func TestBookingHandlersCreateBooking(t *testing.T) {
	var captured services.CreateBookingCommand
	svc := &stubBookingService{
		createFn: func(_ context.Context, cmd services.CreateBookingCommand) (services.Booking, error) {
			captured = cmd
			return sampleBooking(), nil
		},
	}

	rr := httptest.NewRecorder()
	req := newJSONRequest(http.MethodPost, "/bookings", `{"vehicle_id":"veh_1","start_date":"2025-06-01","end_date":"2025-06-03"}`)
	bookingRouter(svc).ServeHTTP(rr, asUser(req, "user-1"))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Actor.ID != "user-1" || captured.Actor.IsAdmin {
		t.Fatalf("unexpected actor %+v", captured.Actor)
	}
	if captured.VehicleID != "veh_1" || captured.StartDate != "2025-06-01" || captured.EndDate != "2025-06-03" {
		t.Fatalf("unexpected command %+v", captured)
	}

	var body struct {
		Booking bookingPayload `json:"booking"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body.Booking.Reference != "BK12345678" || body.Booking.StartDate != "2025-06-01" || body.Booking.TotalPrice != 2000 {
		t.Fatalf("unexpected booking payload %+v", body.Booking)
	}
	if body.Booking.CancelledAt != nil {
		t.Fatalf("expected cancelled_at to be omitted")
	}
}

func TestBookingHandlersCreateBookingConflict(t *testing.T) {
	svc := &stubBookingService{
		createFn: func(context.Context, services.CreateBookingCommand) (services.Booking, error) {
			return services.Booking{}, services.ErrConflict
		},
	}

	rr := httptest.NewRecorder()
	req := newJSONRequest(http.MethodPost, "/bookings", `{"vehicle_id":"veh_1","start_date":"2025-06-01","end_date":"2025-06-03"}`)
	bookingRouter(svc).ServeHTTP(rr, asUser(req, "user-1"))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
}

func TestBookingHandlersRequireIdentity(t *testing.T) {
	rr := httptest.NewRecorder()
	bookingRouter(&stubBookingService{}).ServeHTTP(rr, newJSONRequest(http.MethodGet, "/bookings/my-bookings", ""))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestBookingHandlersListMyBookingsIsNotShadowedByID(t *testing.T) {
	var listed bool
	svc := &stubBookingService{
		listMineFn: func(_ context.Context, actor services.Actor) ([]services.Booking, error) {
			listed = true
			return []services.Booking{sampleBooking()}, nil
		},
		getFn: func(context.Context, services.Actor, string) (services.Booking, error) {
			t.Fatalf("my-bookings must not resolve as a booking id")
			return services.Booking{}, nil
		},
	}

	rr := httptest.NewRecorder()
	bookingRouter(svc).ServeHTTP(rr, asUser(newJSONRequest(http.MethodGet, "/bookings/my-bookings", ""), "user-1"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !listed {
		t.Fatalf("expected ListMyBookings to be called")
	}
}

func TestBookingHandlersGetBookingForbidden(t *testing.T) {
	svc := &stubBookingService{
		getFn: func(_ context.Context, actor services.Actor, id string) (services.Booking, error) {
			return services.Booking{}, services.ErrForbidden
		},
	}

	rr := httptest.NewRecorder()
	bookingRouter(svc).ServeHTTP(rr, asUser(newJSONRequest(http.MethodGet, "/bookings/bkg_1", ""), "user-2"))

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rr.Code)
	}
}

func TestBookingHandlersCancelAcceptsEmptyBody(t *testing.T) {
	var captured services.CancelBookingCommand
	svc := &stubBookingService{
		cancelFn: func(_ context.Context, cmd services.CancelBookingCommand) (services.Booking, error) {
			captured = cmd
			b := sampleBooking()
			b.Status = domain.BookingStatusCancelled
			cancelled := time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC)
			b.CancelledAt = &cancelled
			return b, nil
		},
	}
	router := bookingRouter(svc)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, asUser(newJSONRequest(http.MethodPut, "/bookings/bkg_1/cancel", ""), "user-1"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.BookingID != "bkg_1" || captured.Reason != "" {
		t.Fatalf("unexpected command %+v", captured)
	}

	var body struct {
		Booking bookingPayload `json:"booking"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body.Booking.CancelledAt == nil || *body.Booking.CancelledAt != "2025-05-02T00:00:00Z" {
		t.Fatalf("expected cancelled_at, got %v", body.Booking.CancelledAt)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, asUser(newJSONRequest(http.MethodPut, "/bookings/bkg_1/cancel", `{"reason":"plans changed"}`), "user-1"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.Reason != "plans changed" {
		t.Fatalf("expected reason to be forwarded, got %q", captured.Reason)
	}
}

func TestBookingHandlersRescheduleRequiresBody(t *testing.T) {
	rr := httptest.NewRecorder()
	bookingRouter(&stubBookingService{}).ServeHTTP(rr, asUser(newJSONRequest(http.MethodPut, "/bookings/bkg_1/dates", ""), "user-1"))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestBookingHandlersReschedule(t *testing.T) {
	var captured services.RescheduleBookingCommand
	svc := &stubBookingService{
		rescheduleFn: func(_ context.Context, cmd services.RescheduleBookingCommand) (services.Booking, error) {
			captured = cmd
			return sampleBooking(), nil
		},
	}

	rr := httptest.NewRecorder()
	req := newJSONRequest(http.MethodPut, "/bookings/bkg_1/dates", `{"start_date":"2025-07-01","end_date":"2025-07-04"}`)
	bookingRouter(svc).ServeHTTP(rr, asUser(req, "user-1"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.BookingID != "bkg_1" || captured.StartDate != "2025-07-01" || captured.EndDate != "2025-07-04" {
		t.Fatalf("unexpected command %+v", captured)
	}
}
