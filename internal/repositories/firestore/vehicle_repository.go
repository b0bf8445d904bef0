package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/rentwheel/api/internal/domain"
	pfirestore "github.com/rentwheel/api/internal/platform/firestore"
)

type vehicleDocument struct {
	Name            string    `firestore:"name"`
	Type            string    `firestore:"type"`
	Brand           string    `firestore:"brand"`
	Model           string    `firestore:"model"`
	Year            int       `firestore:"year"`
	Description     string    `firestore:"description"`
	PricePerDay     int64     `firestore:"pricePerDay"`
	FuelType        string    `firestore:"fuelType"`
	Image           string    `firestore:"image"`
	SeatingCapacity int       `firestore:"seatingCapacity,omitempty"`
	Features        []string  `firestore:"features"`
	IsAvailable     bool      `firestore:"isAvailable"`
	AddedBy         string    `firestore:"addedBy"`
	BookingVersion  int64     `firestore:"bookingVersion"`
	CreatedAt       time.Time `firestore:"createdAt"`
	UpdatedAt       time.Time `firestore:"updatedAt"`
}

// VehicleRepository stores the catalog in the vehicles collection.
type VehicleRepository struct {
	vehicles *pfirestore.Collection[vehicleDocument]
}

// NewVehicleRepository constructs a Firestore-backed vehicle repository.
func NewVehicleRepository(provider *pfirestore.Provider) *VehicleRepository {
	return &VehicleRepository{vehicles: pfirestore.NewCollection[vehicleDocument](provider, vehiclesCollection)}
}

func (r *VehicleRepository) Insert(ctx context.Context, vehicle domain.Vehicle) error {
	return r.vehicles.Create(ctx, vehicle.ID, encodeVehicle(vehicle))
}

// Update rewrites the catalog fields and leaves the booking version untouched.
func (r *VehicleRepository) Update(ctx context.Context, vehicle domain.Vehicle) error {
	doc := encodeVehicle(vehicle)
	return r.vehicles.Update(ctx, vehicle.ID, []firestore.Update{
		{Path: "name", Value: doc.Name},
		{Path: "type", Value: doc.Type},
		{Path: "brand", Value: doc.Brand},
		{Path: "model", Value: doc.Model},
		{Path: "year", Value: doc.Year},
		{Path: "description", Value: doc.Description},
		{Path: "pricePerDay", Value: doc.PricePerDay},
		{Path: "fuelType", Value: doc.FuelType},
		{Path: "image", Value: doc.Image},
		{Path: "seatingCapacity", Value: doc.SeatingCapacity},
		{Path: "features", Value: doc.Features},
		{Path: "isAvailable", Value: doc.IsAvailable},
		{Path: "updatedAt", Value: doc.UpdatedAt},
	})
}

func (r *VehicleRepository) Delete(ctx context.Context, vehicleID string) error {
	if _, err := r.vehicles.Get(ctx, vehicleID); err != nil {
		return err
	}
	return r.vehicles.Delete(ctx, vehicleID)
}

func (r *VehicleRepository) FindByID(ctx context.Context, vehicleID string) (domain.Vehicle, error) {
	doc, err := r.vehicles.Get(ctx, vehicleID)
	if err != nil {
		return domain.Vehicle{}, err
	}
	return decodeVehicle(doc.ID, doc.Data), nil
}

func (r *VehicleRepository) List(ctx context.Context, filter domain.VehicleFilter) ([]domain.Vehicle, error) {
	docs, err := r.vehicles.Query(ctx, func(q firestore.Query) firestore.Query {
		return applyVehicleFilter(q, filter).OrderBy("createdAt", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Vehicle, 0, len(docs))
	for _, doc := range docs {
		out = append(out, decodeVehicle(doc.ID, doc.Data))
	}
	return out, nil
}

func applyVehicleFilter(q firestore.Query, filter domain.VehicleFilter) firestore.Query {
	if filter.Type != nil {
		q = q.Where("type", "==", string(*filter.Type))
	}
	if filter.Available != nil {
		q = q.Where("isAvailable", "==", *filter.Available)
	}
	return q
}

// bumpBookingVersion marks the vehicle schedule as written inside the current transaction.
func (r *VehicleRepository) bumpBookingVersion(ctx context.Context, vehicleID string) error {
	return r.vehicles.Update(ctx, vehicleID, []firestore.Update{
		{Path: "bookingVersion", Value: firestore.Increment(1)},
	})
}

func encodeVehicle(v domain.Vehicle) vehicleDocument {
	features := v.Features
	if features == nil {
		features = []string{}
	}
	return vehicleDocument{
		Name:            v.Name,
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
		CreatedAt:       v.CreatedAt.UTC(),
		UpdatedAt:       v.UpdatedAt.UTC(),
	}
}

func decodeVehicle(id string, doc vehicleDocument) domain.Vehicle {
	return domain.Vehicle{
		ID:              id,
		Name:            doc.Name,
		Type:            domain.VehicleType(doc.Type),
		Brand:           doc.Brand,
		Model:           doc.Model,
		Year:            doc.Year,
		Description:     doc.Description,
		PricePerDay:     doc.PricePerDay,
		FuelType:        domain.FuelType(doc.FuelType),
		Image:           doc.Image,
		SeatingCapacity: doc.SeatingCapacity,
		Features:        doc.Features,
		IsAvailable:     doc.IsAvailable,
		AddedBy:         doc.AddedBy,
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
	}
}
