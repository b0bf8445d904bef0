package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/rentwheel/api/internal/domain"
	"github.com/rentwheel/api/internal/platform/auth"
	"github.com/rentwheel/api/internal/platform/httpx"
	"github.com/rentwheel/api/internal/services"
)

// AdminHandlers exposes the back-office endpoints under /admin.
type AdminHandlers struct {
	authn    *auth.Authenticator
	bookings services.BookingService
	stats    services.StatsService
	vehicles *VehicleHandlers
}

// NewAdminHandlers constructs a new AdminHandlers instance. vehicles may be nil.
func NewAdminHandlers(authn *auth.Authenticator, bookings services.BookingService, stats services.StatsService, vehicles *VehicleHandlers) *AdminHandlers {
	return &AdminHandlers{
		authn:    authn,
		bookings: bookings,
		stats:    stats,
		vehicles: vehicles,
	}
}

// Routes registers the /admin endpoints.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth(auth.RoleAdmin))
	}
	r.Get("/bookings", h.listBookings)
	r.Put("/bookings/{bookingID}/status", h.forceSetStatus)
	r.Post("/bookings/{bookingID}:complete", h.transition(domain.BookingStatusCompleted))
	r.Post("/bookings/{bookingID}:cancel", h.transition(domain.BookingStatusCancelled))
	r.Get("/stats", h.dashboardStats)
	if h.vehicles != nil {
		r.Route("/vehicles", h.vehicles.AdminRoutes)
	}
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *AdminHandlers) listBookings(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	filter := services.BookingListFilter{Status: strings.TrimSpace(r.URL.Query().Get("status"))}
	bookings, err := h.bookings.ListBookings(r.Context(), actor, filter)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildBookingList(bookings))
}

func (h *AdminHandlers) forceSetStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	booking, err := h.bookings.ForceSetBookingStatus(r.Context(), services.ForceSetBookingStatusCommand{
		Actor:     actor,
		BookingID: chi.URLParam(r, "bookingID"),
		Status:    req.Status,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"booking": buildBookingPayload(booking)})
}

func (h *AdminHandlers) transition(target domain.BookingStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		var req reasonRequest
		if !decodeOptionalBody(w, r, &req) {
			return
		}
		booking, err := h.bookings.TransitionBooking(r.Context(), services.TransitionBookingCommand{
			Actor:     actor,
			BookingID: chi.URLParam(r, "bookingID"),
			Status:    target,
			Reason:    req.Reason,
		})
		if err != nil {
			writeServiceError(r.Context(), w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"booking": buildBookingPayload(booking)})
	}
}

type overviewPayload struct {
	TotalVehicles     int64 `json:"total_vehicles"`
	AvailableVehicles int64 `json:"available_vehicles"`
	TotalBookings     int64 `json:"total_bookings"`
	TotalUsers        int64 `json:"total_users"`
	TotalRevenue      int64 `json:"total_revenue"`
}

func (h *AdminHandlers) dashboardStats(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	stats, err := h.stats.DashboardStats(r.Context(), actor)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}

	byStatus := make(map[string]int64, len(domain.BookingStatuses))
	for _, status := range domain.BookingStatuses {
		byStatus[string(status)] = stats.BookingStatus[status]
	}
	byType := make(map[string]int64, len(stats.VehiclesByType))
	for vehicleType, count := range stats.VehiclesByType {
		byType[string(vehicleType)] = count
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"overview": overviewPayload{
			TotalVehicles:     stats.Overview.TotalVehicles,
			AvailableVehicles: stats.Overview.AvailableVehicles,
			TotalBookings:     stats.Overview.TotalBookings,
			TotalUsers:        stats.Overview.TotalUsers,
			TotalRevenue:      stats.Overview.TotalRevenue,
		},
		"booking_status":   byStatus,
		"vehicles_by_type": byType,
	})
}
