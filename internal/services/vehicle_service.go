package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/rentwheel/api/internal/domain"
	"github.com/rentwheel/api/internal/repositories"
)

const (
	vehicleIDPrefix = "veh_"

	maxVehicleNameLen     = 100
	minDescriptionLen     = 50
	maxDescriptionLen     = 1000
	minVehicleYear        = 2000
	minPricePerDay        = 100
	maxPricePerDay        = 50000
	minSeatingCapacity    = 2
	maxSeatingCapacity    = 8
	maxVehicleFeatures    = 30
	maxVehicleFeatureLen  = 60
	gcsImageReferenceHead = "gs://"
)

var allowedImageContentTypes = []string{"image/jpeg", "image/png", "image/webp"}

// VehicleImageStore signs image references for display and issues upload targets.
type VehicleImageStore interface {
	SignedImageURL(ctx context.Context, ref string) (string, error)
	SignedUploadURL(ctx context.Context, vehicleID, fileName, contentType string) (VehicleImageUpload, error)
}

// VehicleServiceDeps bundles the collaborators required to construct a vehicle service.
type VehicleServiceDeps struct {
	Vehicles    repositories.VehicleRepository
	Bookings    repositories.BookingRepository
	UnitOfWork  repositories.UnitOfWork
	Images      VehicleImageStore
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type vehicleService struct {
	vehicles  repositories.VehicleRepository
	bookings  repositories.BookingRepository
	uow       repositories.UnitOfWork
	images    VehicleImageStore
	clock     func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
	sanitizer *bluemonday.Policy
}

var _ VehicleService = (*vehicleService)(nil)

// NewVehicleService wires dependencies into the catalog service.
func NewVehicleService(deps VehicleServiceDeps) (VehicleService, error) {
	if deps.Vehicles == nil {
		return nil, errors.New("vehicle service: vehicle repository is required")
	}
	if deps.Bookings == nil {
		return nil, errors.New("vehicle service: booking repository is required")
	}

	uow := deps.UnitOfWork
	if uow == nil {
		uow = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &vehicleService{
		vehicles: deps.Vehicles,
		bookings: deps.Bookings,
		uow:      uow,
		images:   deps.Images,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:     idGen,
		logger:    logger,
		sanitizer: bluemonday.StrictPolicy(),
	}, nil
}

func (s *vehicleService) ListVehicles(ctx context.Context, filter VehicleListFilter) ([]Vehicle, error) {
	var query domain.VehicleFilter
	if raw := strings.TrimSpace(filter.Type); raw != "" {
		vehicleType, err := domain.ParseVehicleType(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		query.Type = &vehicleType
	}
	query.Available = filter.Available

	vehicles, err := s.vehicles.List(ctx, query)
	if err != nil {
		return nil, mapRepositoryError(err, "vehicle")
	}
	for i := range vehicles {
		vehicles[i].Image = s.displayImage(ctx, vehicles[i])
	}
	return vehicles, nil
}

func (s *vehicleService) GetVehicle(ctx context.Context, vehicleID string) (Vehicle, error) {
	vehicleID = strings.TrimSpace(vehicleID)
	if vehicleID == "" {
		return Vehicle{}, fmt.Errorf("%w: vehicle id is required", ErrInvalidInput)
	}
	vehicle, err := s.vehicles.FindByID(ctx, vehicleID)
	if err != nil {
		return Vehicle{}, mapRepositoryError(err, "vehicle")
	}
	vehicle.Image = s.displayImage(ctx, vehicle)
	return vehicle, nil
}

func (s *vehicleService) CreateVehicle(ctx context.Context, cmd UpsertVehicleCommand) (Vehicle, error) {
	if err := requireAdmin(cmd.Actor); err != nil {
		return Vehicle{}, err
	}

	now := s.clock()
	vehicle := Vehicle{
		ID:          ensurePrefixed(vehicleIDPrefix, s.newID()),
		IsAvailable: true,
		AddedBy:     cmd.Actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.apply(&vehicle, cmd.Input, true); err != nil {
		return Vehicle{}, err
	}

	if err := s.vehicles.Insert(ctx, vehicle); err != nil {
		return Vehicle{}, mapRepositoryError(err, "vehicle")
	}
	s.logger(ctx, "vehicle.created", map[string]any{"vehicleId": vehicle.ID, "actorId": cmd.Actor.ID})
	return vehicle, nil
}

// UpdateVehicle merges the non-zero input fields onto the stored vehicle and revalidates it.
func (s *vehicleService) UpdateVehicle(ctx context.Context, cmd UpsertVehicleCommand) (Vehicle, error) {
	if err := requireAdmin(cmd.Actor); err != nil {
		return Vehicle{}, err
	}
	vehicleID := strings.TrimSpace(cmd.VehicleID)
	if vehicleID == "" {
		return Vehicle{}, fmt.Errorf("%w: vehicle id is required", ErrInvalidInput)
	}

	var updated Vehicle
	err := s.uow.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.vehicles.FindByID(ctx, vehicleID)
		if err != nil {
			return mapRepositoryError(err, "vehicle")
		}
		if err := s.apply(&current, cmd.Input, false); err != nil {
			return err
		}
		current.UpdatedAt = s.clock()
		if err := s.vehicles.Update(ctx, current); err != nil {
			return mapRepositoryError(err, "vehicle")
		}
		updated = current
		return nil
	})
	if err != nil {
		return Vehicle{}, err
	}
	s.logger(ctx, "vehicle.updated", map[string]any{"vehicleId": updated.ID, "actorId": cmd.Actor.ID})
	return updated, nil
}

// DeleteVehicle removes a vehicle that no pending or confirmed booking still holds.
func (s *vehicleService) DeleteVehicle(ctx context.Context, actor Actor, vehicleID string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	vehicleID = strings.TrimSpace(vehicleID)
	if vehicleID == "" {
		return fmt.Errorf("%w: vehicle id is required", ErrInvalidInput)
	}

	err := s.uow.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.vehicles.FindByID(ctx, vehicleID); err != nil {
			return mapRepositoryError(err, "vehicle")
		}
		holding, err := s.bookings.ListHolding(ctx, vehicleID)
		if err != nil {
			return mapRepositoryError(err, "booking")
		}
		if len(holding) > 0 {
			return fmt.Errorf("%w: vehicle has %d active bookings", ErrConflict, len(holding))
		}
		if err := s.vehicles.Delete(ctx, vehicleID); err != nil {
			return mapRepositoryError(err, "vehicle")
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger(ctx, "vehicle.deleted", map[string]any{"vehicleId": vehicleID, "actorId": actor.ID})
	return nil
}

func (s *vehicleService) ImageUploadURL(ctx context.Context, cmd VehicleImageUploadCommand) (VehicleImageUpload, error) {
	if err := requireAdmin(cmd.Actor); err != nil {
		return VehicleImageUpload{}, err
	}
	if s.images == nil {
		return VehicleImageUpload{}, fmt.Errorf("%w: image storage is not configured", ErrDependency)
	}
	vehicleID := strings.TrimSpace(cmd.VehicleID)
	if vehicleID == "" {
		return VehicleImageUpload{}, fmt.Errorf("%w: vehicle id is required", ErrInvalidInput)
	}
	fileName := strings.TrimSpace(cmd.FileName)
	if fileName == "" || strings.ContainsAny(fileName, "/\\") || strings.Contains(fileName, "..") {
		return VehicleImageUpload{}, fmt.Errorf("%w: file name is invalid", ErrInvalidInput)
	}
	contentType := strings.ToLower(strings.TrimSpace(cmd.ContentType))
	if !slices.Contains(allowedImageContentTypes, contentType) {
		return VehicleImageUpload{}, fmt.Errorf("%w: content type must be one of %s", ErrInvalidInput, strings.Join(allowedImageContentTypes, ", "))
	}

	if _, err := s.vehicles.FindByID(ctx, vehicleID); err != nil {
		return VehicleImageUpload{}, mapRepositoryError(err, "vehicle")
	}

	upload, err := s.images.SignedUploadURL(ctx, vehicleID, fileName, contentType)
	if err != nil {
		return VehicleImageUpload{}, fmt.Errorf("%w: sign upload url: %v", ErrDependency, err)
	}
	return upload, nil
}

// apply copies input onto vehicle. When full is set every required field must be present;
// otherwise zero-valued input fields leave the stored value untouched.
func (s *vehicleService) apply(vehicle *Vehicle, in VehicleInput, full bool) error {
	var problems []string
	fail := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if name := strings.TrimSpace(in.Name); name != "" || full {
		vehicle.Name = name
	}
	if raw := strings.TrimSpace(in.Type); raw != "" || full {
		vehicleType, err := domain.ParseVehicleType(raw)
		if err != nil {
			fail("type must be either car, bike, or scooty")
		}
		vehicle.Type = vehicleType
	}
	if brand := strings.TrimSpace(in.Brand); brand != "" || full {
		vehicle.Brand = brand
	}
	if model := strings.TrimSpace(in.Model); model != "" || full {
		vehicle.Model = model
	}
	if in.Year != 0 || full {
		vehicle.Year = in.Year
	}
	if strings.TrimSpace(in.Description) != "" || full {
		vehicle.Description = plainText(s.sanitizer, in.Description)
	}
	if in.PricePerDay != 0 || full {
		vehicle.PricePerDay = in.PricePerDay
	}
	if raw := strings.TrimSpace(in.FuelType); raw != "" || full {
		fuel, err := domain.ParseFuelType(raw)
		if err != nil {
			fail("invalid fuel type")
		}
		vehicle.FuelType = fuel
	}
	if image := strings.TrimSpace(in.Image); image != "" || full {
		vehicle.Image = image
	}
	if in.SeatingCapacity != 0 || full {
		vehicle.SeatingCapacity = in.SeatingCapacity
	}
	if in.Features != nil || full {
		vehicle.Features = s.cleanFeatures(in.Features)
	}
	if in.IsAvailable != nil {
		vehicle.IsAvailable = *in.IsAvailable
	}

	switch {
	case vehicle.Name == "":
		fail("vehicle name is required")
	case utf8.RuneCountInString(vehicle.Name) > maxVehicleNameLen:
		fail("vehicle name cannot exceed %d characters", maxVehicleNameLen)
	}
	if vehicle.Brand == "" {
		fail("brand is required")
	}
	if vehicle.Model == "" {
		fail("model is required")
	}
	if maxYear := s.clock().Year() + 1; vehicle.Year < minVehicleYear || vehicle.Year > maxYear {
		fail("year must be between %d and %d", minVehicleYear, maxYear)
	}
	switch n := utf8.RuneCountInString(vehicle.Description); {
	case n < minDescriptionLen:
		fail("description must be at least %d characters", minDescriptionLen)
	case n > maxDescriptionLen:
		fail("description cannot exceed %d characters", maxDescriptionLen)
	}
	if vehicle.PricePerDay < minPricePerDay || vehicle.PricePerDay > maxPricePerDay {
		fail("price per day must be between %d and %d", minPricePerDay, maxPricePerDay)
	}
	if vehicle.Image == "" {
		fail("vehicle image is required")
	}
	switch {
	case vehicle.Type == domain.VehicleTypeCar && vehicle.SeatingCapacity == 0:
		fail("seating capacity is required for cars")
	case vehicle.SeatingCapacity != 0 && (vehicle.SeatingCapacity < minSeatingCapacity || vehicle.SeatingCapacity > maxSeatingCapacity):
		fail("seating capacity must be between %d and %d", minSeatingCapacity, maxSeatingCapacity)
	}
	if len(vehicle.Features) > maxVehicleFeatures {
		fail("at most %d features are allowed", maxVehicleFeatures)
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(problems, "; "))
	}
	return nil
}

func (s *vehicleService) cleanFeatures(features []string) []string {
	out := make([]string, 0, len(features))
	seen := make(map[string]struct{}, len(features))
	for _, feature := range features {
		feature = plainText(s.sanitizer, feature)
		if feature == "" {
			continue
		}
		if utf8.RuneCountInString(feature) > maxVehicleFeatureLen {
			feature = string([]rune(feature)[:maxVehicleFeatureLen])
		}
		key := strings.ToLower(feature)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, feature)
	}
	return out
}

// displayImage resolves gs:// references to signed URLs. Other values pass through unchanged.
func (s *vehicleService) displayImage(ctx context.Context, vehicle Vehicle) string {
	if s.images == nil || !strings.HasPrefix(vehicle.Image, gcsImageReferenceHead) {
		return vehicle.Image
	}
	signed, err := s.images.SignedImageURL(ctx, vehicle.Image)
	if err != nil {
		s.logger(ctx, "vehicle.image_sign_failed", map[string]any{
			"vehicleId": vehicle.ID,
			"error":     err.Error(),
		})
		return vehicle.Image
	}
	return signed
}
