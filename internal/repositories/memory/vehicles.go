package memory

import (
	"context"
	"fmt"
	"slices"

	domain "github.com/rentwheel/api/internal/domain"
	"github.com/rentwheel/api/internal/repositories"
)

type vehicleRepository struct{ s *Store }

func (r vehicleRepository) Insert(ctx context.Context, vehicle domain.Vehicle) error {
	return r.s.with(ctx, func(st *state) error {
		if _, exists := st.vehicles[vehicle.ID]; exists {
			return repositories.NewError("vehicles.insert", repositories.ErrorUnknown, fmt.Sprintf("vehicle %s already exists", vehicle.ID), nil)
		}
		st.vehicles[vehicle.ID] = cloneVehicle(vehicle)
		return nil
	})
}

func (r vehicleRepository) Update(ctx context.Context, vehicle domain.Vehicle) error {
	return r.s.with(ctx, func(st *state) error {
		if _, exists := st.vehicles[vehicle.ID]; !exists {
			return &NotFoundError{Kind: "vehicle", ID: vehicle.ID}
		}
		st.vehicles[vehicle.ID] = cloneVehicle(vehicle)
		return nil
	})
}

func (r vehicleRepository) Delete(ctx context.Context, vehicleID string) error {
	return r.s.with(ctx, func(st *state) error {
		if _, exists := st.vehicles[vehicleID]; !exists {
			return &NotFoundError{Kind: "vehicle", ID: vehicleID}
		}
		delete(st.vehicles, vehicleID)
		return nil
	})
}

func (r vehicleRepository) FindByID(ctx context.Context, vehicleID string) (domain.Vehicle, error) {
	var out domain.Vehicle
	err := r.s.with(ctx, func(st *state) error {
		vehicle, ok := st.vehicles[vehicleID]
		if !ok {
			return &NotFoundError{Kind: "vehicle", ID: vehicleID}
		}
		out = cloneVehicle(vehicle)
		return nil
	})
	return out, err
}

func (r vehicleRepository) List(ctx context.Context, filter domain.VehicleFilter) ([]domain.Vehicle, error) {
	var out []domain.Vehicle
	err := r.s.with(ctx, func(st *state) error {
		for _, vehicle := range st.vehicles {
			if matchVehicle(vehicle, filter) {
				out = append(out, cloneVehicle(vehicle))
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b domain.Vehicle) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return out, err
}

func matchVehicle(v domain.Vehicle, filter domain.VehicleFilter) bool {
	if filter.Type != nil && v.Type != *filter.Type {
		return false
	}
	if filter.Available != nil && v.IsAvailable != *filter.Available {
		return false
	}
	return true
}

func cloneVehicle(v domain.Vehicle) domain.Vehicle {
	v.Features = slices.Clone(v.Features)
	return v
}
