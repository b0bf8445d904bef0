package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rentwheel/api/internal/platform/httpx"
	"github.com/rentwheel/api/internal/services"
)

// VehicleHandlers serves the public catalog and the admin vehicle endpoints.
type VehicleHandlers struct {
	vehicles services.VehicleService
}

func NewVehicleHandlers(vehicles services.VehicleService) *VehicleHandlers {
	return &VehicleHandlers{vehicles: vehicles}
}

// Routes registers the public /vehicles endpoints.
func (h *VehicleHandlers) Routes(r chi.Router) {
	r.Get("/", h.listVehicles)
	r.Get("/{vehicleID}", h.getVehicle)
}

// AdminRoutes registers /admin/vehicles. Callers mount it behind admin authentication.
func (h *VehicleHandlers) AdminRoutes(r chi.Router) {
	r.Post("/", h.createVehicle)
	r.Put("/{vehicleID}", h.updateVehicle)
	r.Delete("/{vehicleID}", h.deleteVehicle)
	r.Post("/{vehicleID}/image:upload-url", h.imageUploadURL)
}

type vehicleRequest struct {
	Name            string   `json:"name"`
	Type            string   `json:"type"`
	Brand           string   `json:"brand"`
	Model           string   `json:"model"`
	Year            int      `json:"year"`
	Description     string   `json:"description"`
	PricePerDay     int64    `json:"price_per_day"`
	FuelType        string   `json:"fuel_type"`
	Image           string   `json:"image"`
	SeatingCapacity int      `json:"seating_capacity"`
	Features        []string `json:"features"`
	IsAvailable     *bool    `json:"is_available"`
}

func (req vehicleRequest) input() services.VehicleInput {
	return services.VehicleInput{
		Name:            req.Name,
		Type:            req.Type,
		Brand:           req.Brand,
		Model:           req.Model,
		Year:            req.Year,
		Description:     req.Description,
		PricePerDay:     req.PricePerDay,
		FuelType:        req.FuelType,
		Image:           req.Image,
		SeatingCapacity: req.SeatingCapacity,
		Features:        req.Features,
		IsAvailable:     req.IsAvailable,
	}
}

type vehiclePayload struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	FullName        string   `json:"full_name"`
	Type            string   `json:"type"`
	Brand           string   `json:"brand"`
	Model           string   `json:"model"`
	Year            int      `json:"year"`
	Description     string   `json:"description"`
	PricePerDay     int64    `json:"price_per_day"`
	FuelType        string   `json:"fuel_type"`
	Image           string   `json:"image"`
	SeatingCapacity int      `json:"seating_capacity,omitempty"`
	Features        []string `json:"features"`
	IsAvailable     bool     `json:"is_available"`
	AddedBy         string   `json:"added_by,omitempty"`
	CreatedAt       string   `json:"created_at"`
	UpdatedAt       string   `json:"updated_at"`
}

func buildVehiclePayload(v services.Vehicle) vehiclePayload {
	features := v.Features
	if features == nil {
		features = []string{}
	}
	return vehiclePayload{
		ID:              v.ID,
		Name:            v.Name,
		FullName:        v.FullName(),
		Type:            string(v.Type),
		Brand:           v.Brand,
		Model:           v.Model,
		Year:            v.Year,
		Description:     v.Description,
		PricePerDay:     v.PricePerDay,
		FuelType:        string(v.FuelType),
		Image:           v.Image,
		SeatingCapacity: v.SeatingCapacity,
		Features:        features,
		IsAvailable:     v.IsAvailable,
		AddedBy:         v.AddedBy,
		CreatedAt:       formatTime(v.CreatedAt),
		UpdatedAt:       formatTime(v.UpdatedAt),
	}
}

func (h *VehicleHandlers) listVehicles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()
	filter := services.VehicleListFilter{Type: strings.TrimSpace(query.Get("type"))}
	if raw := strings.TrimSpace(query.Get("available")); raw != "" {
		available, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_input", "available must be true or false", http.StatusBadRequest))
			return
		}
		filter.Available = &available
	}

	vehicles, err := h.vehicles.ListVehicles(ctx, filter)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	items := make([]vehiclePayload, 0, len(vehicles))
	for _, v := range vehicles {
		items = append(items, buildVehiclePayload(v))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"count": len(items), "vehicles": items})
}

func (h *VehicleHandlers) getVehicle(w http.ResponseWriter, r *http.Request) {
	vehicle, err := h.vehicles.GetVehicle(r.Context(), chi.URLParam(r, "vehicleID"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"vehicle": buildVehiclePayload(vehicle)})
}

func (h *VehicleHandlers) createVehicle(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req vehicleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	vehicle, err := h.vehicles.CreateVehicle(r.Context(), services.UpsertVehicleCommand{Actor: actor, Input: req.input()})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"vehicle": buildVehiclePayload(vehicle)})
}

func (h *VehicleHandlers) updateVehicle(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req vehicleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	vehicle, err := h.vehicles.UpdateVehicle(r.Context(), services.UpsertVehicleCommand{
		Actor:     actor,
		VehicleID: chi.URLParam(r, "vehicleID"),
		Input:     req.input(),
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"vehicle": buildVehiclePayload(vehicle)})
}

func (h *VehicleHandlers) deleteVehicle(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if err := h.vehicles.DeleteVehicle(r.Context(), actor, chi.URLParam(r, "vehicleID")); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type imageUploadRequest struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
}

func (h *VehicleHandlers) imageUploadURL(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req imageUploadRequest
	if !decodeBody(w, r, &req) {
		return
	}
	upload, err := h.vehicles.ImageUploadURL(r.Context(), services.VehicleImageUploadCommand{
		Actor:       actor,
		VehicleID:   chi.URLParam(r, "vehicleID"),
		FileName:    req.FileName,
		ContentType: req.ContentType,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"upload_url": upload.URL,
		"method":     upload.Method,
		"headers":    upload.Headers,
		"image_ref":  upload.ImageRef,
		"expires_at": formatTime(upload.ExpiresAt),
	})
}
