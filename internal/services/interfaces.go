package services

import (
	"context"
	"time"

	domain "github.com/rentwheel/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Booking            = domain.Booking
	BookingStatus      = domain.BookingStatus
	Payment            = domain.Payment
	Vehicle            = domain.Vehicle
	DashboardStats     = domain.DashboardStats
	SystemHealthReport = domain.SystemHealthReport
)

// Actor identifies the authenticated caller of a service operation.
type Actor struct {
	ID      string
	IsAdmin bool
}

// AvailabilityChecker answers whether a vehicle is free for an inclusive date range.
type AvailabilityChecker interface {
	IsAvailable(ctx context.Context, vehicleID string, start, end domain.Date, excludeBookingID string) (bool, error)
}

// BookingService owns the booking lifecycle: creation, listing, cancellation, rescheduling and
// admin status changes.
type BookingService interface {
	CreateBooking(ctx context.Context, cmd CreateBookingCommand) (Booking, error)
	ListMyBookings(ctx context.Context, actor Actor) ([]Booking, error)
	GetBooking(ctx context.Context, actor Actor, bookingID string) (Booking, error)
	CancelBooking(ctx context.Context, cmd CancelBookingCommand) (Booking, error)
	RescheduleBooking(ctx context.Context, cmd RescheduleBookingCommand) (Booking, error)
	// TransitionBooking applies the lifecycle transition table. Disallowed moves fail with ErrConflict.
	TransitionBooking(ctx context.Context, cmd TransitionBookingCommand) (Booking, error)
	// ForceSetBookingStatus overwrites the status after enum validation only.
	ForceSetBookingStatus(ctx context.Context, cmd ForceSetBookingStatusCommand) (Booking, error)
	ListBookings(ctx context.Context, actor Actor, filter BookingListFilter) ([]Booking, error)
}

// CreateBookingCommand carries raw request values; dates are validated by the service.
type CreateBookingCommand struct {
	Actor     Actor
	VehicleID string
	StartDate string
	EndDate   string
}

// CancelBookingCommand cancels a booking on behalf of its owner.
type CancelBookingCommand struct {
	Actor     Actor
	BookingID string
	Reason    string
}

// RescheduleBookingCommand moves a pending booking to new dates.
type RescheduleBookingCommand struct {
	Actor     Actor
	BookingID string
	StartDate string
	EndDate   string
}

// TransitionBookingCommand requests a guarded status change.
type TransitionBookingCommand struct {
	Actor     Actor
	BookingID string
	Status    BookingStatus
	Reason    string
}

// ForceSetBookingStatusCommand requests an unconditional status overwrite.
type ForceSetBookingStatusCommand struct {
	Actor     Actor
	BookingID string
	Status    string
}

// BookingListFilter narrows the admin booking listing.
type BookingListFilter struct {
	Status string
}

// PaymentService simulates payment capture and keeps bookings consistent with their payments.
type PaymentService interface {
	ProcessPayment(ctx context.Context, cmd ProcessPaymentCommand) (Payment, error)
	GetPaymentByBooking(ctx context.Context, actor Actor, bookingID string) (Payment, error)
	// ReconcilePayments confirms pending bookings that already hold a successful payment.
	ReconcilePayments(ctx context.Context, cmd ReconcilePaymentsCommand) (ReconcileResult, error)
}

// ProcessPaymentCommand pays for a pending booking.
type ProcessPaymentCommand struct {
	Actor     Actor
	BookingID string
	Method    string
}

// ReconcilePaymentsCommand bounds a reconciliation pass. Zero values fall back to service defaults.
type ReconcilePaymentsCommand struct {
	Since time.Time
	Limit int
}

// ReconcileResult reports what a reconciliation pass did.
type ReconcileResult struct {
	Scanned  int
	Repaired int
	Skipped  int
	Failed   int
}

// VehicleService manages the rentable catalog.
type VehicleService interface {
	ListVehicles(ctx context.Context, filter VehicleListFilter) ([]Vehicle, error)
	GetVehicle(ctx context.Context, vehicleID string) (Vehicle, error)
	CreateVehicle(ctx context.Context, cmd UpsertVehicleCommand) (Vehicle, error)
	UpdateVehicle(ctx context.Context, cmd UpsertVehicleCommand) (Vehicle, error)
	DeleteVehicle(ctx context.Context, actor Actor, vehicleID string) error
	// ImageUploadURL issues a signed upload target for a vehicle image.
	ImageUploadURL(ctx context.Context, cmd VehicleImageUploadCommand) (VehicleImageUpload, error)
}

// VehicleListFilter carries raw query values for the public catalog.
type VehicleListFilter struct {
	Type      string
	Available *bool
}

// VehicleInput is the admin-supplied vehicle payload.
type VehicleInput struct {
	Name            string
	Type            string
	Brand           string
	Model           string
	Year            int
	Description     string
	PricePerDay     int64
	FuelType        string
	Image           string
	SeatingCapacity int
	Features        []string
	IsAvailable     *bool
}

// UpsertVehicleCommand creates a vehicle or, when VehicleID is set, replaces it.
type UpsertVehicleCommand struct {
	Actor     Actor
	VehicleID string
	Input     VehicleInput
}

// VehicleImageUploadCommand requests a signed upload for a vehicle image.
type VehicleImageUploadCommand struct {
	Actor       Actor
	VehicleID   string
	FileName    string
	ContentType string
}

// VehicleImageUpload describes where the client should PUT the image bytes.
type VehicleImageUpload struct {
	URL       string
	Method    string
	Headers   map[string]string
	ImageRef  string
	ExpiresAt time.Time
}

// StatsService assembles the admin dashboard.
type StatsService interface {
	DashboardStats(ctx context.Context, actor Actor) (DashboardStats, error)
}

// SystemService exposes operational metadata.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}
