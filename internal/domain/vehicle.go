package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// VehicleType is the catalog category of a vehicle.
type VehicleType string

const (
	VehicleTypeCar    VehicleType = "car"
	VehicleTypeBike   VehicleType = "bike"
	VehicleTypeScooty VehicleType = "scooty"
)

// VehicleTypes lists the supported categories.
var VehicleTypes = []VehicleType{VehicleTypeCar, VehicleTypeBike, VehicleTypeScooty}

// ParseVehicleType validates a raw category.
func ParseVehicleType(value string) (VehicleType, error) {
	t := VehicleType(strings.ToLower(strings.TrimSpace(value)))
	if !slices.Contains(VehicleTypes, t) {
		return "", fmt.Errorf("invalid vehicle type %q", value)
	}
	return t, nil
}

// FuelType is the propulsion of a vehicle.
type FuelType string

const (
	FuelTypePetrol   FuelType = "petrol"
	FuelTypeDiesel   FuelType = "diesel"
	FuelTypeElectric FuelType = "electric"
	FuelTypeHybrid   FuelType = "hybrid"
)

var fuelTypes = []FuelType{FuelTypePetrol, FuelTypeDiesel, FuelTypeElectric, FuelTypeHybrid}

// ParseFuelType validates a raw fuel type.
func ParseFuelType(value string) (FuelType, error) {
	f := FuelType(strings.ToLower(strings.TrimSpace(value)))
	if !slices.Contains(fuelTypes, f) {
		return "", fmt.Errorf("invalid fuel type %q", value)
	}
	return f, nil
}

// Vehicle is a rentable catalog entry. PricePerDay is in whole currency units.
type Vehicle struct {
	ID              string
	Name            string
	Type            VehicleType
	Brand           string
	Model           string
	Year            int
	Description     string
	PricePerDay     int64
	FuelType        FuelType
	Image           string
	SeatingCapacity int
	Features        []string
	IsAvailable     bool
	AddedBy         string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// FullName renders "<brand> <model> (<year>)".
func (v Vehicle) FullName() string {
	return fmt.Sprintf("%s %s (%d)", v.Brand, v.Model, v.Year)
}

// VehicleFilter narrows public catalog listings.
type VehicleFilter struct {
	Type      *VehicleType
	Available *bool
}
