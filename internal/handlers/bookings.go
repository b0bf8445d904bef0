package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rentwheel/api/internal/platform/auth"
	"github.com/rentwheel/api/internal/platform/httpx"
	"github.com/rentwheel/api/internal/services"
)

// BookingHandlers exposes the customer booking endpoints.
type BookingHandlers struct {
	authn     *auth.Authenticator
	bookings  services.BookingService
	rateLimit func(http.Handler) http.Handler
}

// BookingOption customises BookingHandlers.
type BookingOption func(*BookingHandlers)

// WithBookingRateLimit caps booking creation per user to limit requests in each window.
func WithBookingRateLimit(limit int, window time.Duration) BookingOption {
	return func(h *BookingHandlers) {
		h.rateLimit = perUserRateLimit(limit, window, nil)
	}
}

// NewBookingHandlers constructs a new BookingHandlers instance.
func NewBookingHandlers(authn *auth.Authenticator, bookings services.BookingService, opts ...BookingOption) *BookingHandlers {
	h := &BookingHandlers{authn: authn, bookings: bookings}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /bookings endpoints.
func (h *BookingHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.With(optional(h.rateLimit)).Post("/", h.createBooking)
	r.Get("/my-bookings", h.listMyBookings)
	r.Get("/{bookingID}", h.getBooking)
	r.Put("/{bookingID}/cancel", h.cancelBooking)
	r.Put("/{bookingID}/dates", h.rescheduleBooking)
}

type createBookingRequest struct {
	VehicleID string `json:"vehicle_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

type rescheduleBookingRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type bookingPayload struct {
	ID                 string  `json:"id"`
	Reference          string  `json:"booking_reference"`
	UserID             string  `json:"user_id"`
	VehicleID          string  `json:"vehicle_id"`
	StartDate          string  `json:"start_date"`
	EndDate            string  `json:"end_date"`
	PricePerDay        int64   `json:"price_per_day"`
	TotalDays          int     `json:"total_days"`
	TotalPrice         int64   `json:"total_price"`
	Status             string  `json:"status"`
	PaymentID          string  `json:"payment_id,omitempty"`
	CancellationReason string  `json:"cancellation_reason,omitempty"`
	CancelledAt        *string `json:"cancelled_at,omitempty"`
	CreatedAt          string  `json:"created_at"`
	UpdatedAt          string  `json:"updated_at"`
}

func buildBookingPayload(b services.Booking) bookingPayload {
	return bookingPayload{
		ID:                 b.ID,
		Reference:          b.Reference,
		UserID:             b.UserID,
		VehicleID:          b.VehicleID,
		StartDate:          b.StartDate.String(),
		EndDate:            b.EndDate.String(),
		PricePerDay:        b.PricePerDay,
		TotalDays:          b.TotalDays,
		TotalPrice:         b.TotalPrice,
		Status:             string(b.Status),
		PaymentID:          b.PaymentID,
		CancellationReason: b.CancellationReason,
		CancelledAt:        formatTimePtr(b.CancelledAt),
		CreatedAt:          formatTime(b.CreatedAt),
		UpdatedAt:          formatTime(b.UpdatedAt),
	}
}

func buildBookingList(bookings []services.Booking) map[string]any {
	items := make([]bookingPayload, 0, len(bookings))
	for _, b := range bookings {
		items = append(items, buildBookingPayload(b))
	}
	return map[string]any{"count": len(items), "bookings": items}
}

func (h *BookingHandlers) createBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req createBookingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	booking, err := h.bookings.CreateBooking(r.Context(), services.CreateBookingCommand{
		Actor:     actor,
		VehicleID: req.VehicleID,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"booking": buildBookingPayload(booking)})
}

func (h *BookingHandlers) listMyBookings(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	bookings, err := h.bookings.ListMyBookings(r.Context(), actor)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildBookingList(bookings))
}

func (h *BookingHandlers) getBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	booking, err := h.bookings.GetBooking(r.Context(), actor, chi.URLParam(r, "bookingID"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"booking": buildBookingPayload(booking)})
}

func (h *BookingHandlers) cancelBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req reasonRequest
	if !decodeOptionalBody(w, r, &req) {
		return
	}
	booking, err := h.bookings.CancelBooking(r.Context(), services.CancelBookingCommand{
		Actor:     actor,
		BookingID: chi.URLParam(r, "bookingID"),
		Reason:    req.Reason,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"booking": buildBookingPayload(booking)})
}

func (h *BookingHandlers) rescheduleBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req rescheduleBookingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	booking, err := h.bookings.RescheduleBooking(r.Context(), services.RescheduleBookingCommand{
		Actor:     actor,
		BookingID: chi.URLParam(r, "bookingID"),
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"booking": buildBookingPayload(booking)})
}
