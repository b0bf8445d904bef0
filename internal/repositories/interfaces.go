package repositories

import (
	"context"
	"time"

	domain "github.com/rentwheel/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Vehicles() VehicleRepository
	Bookings() BookingRepository
	Payments() PaymentRepository
	Stats() StatsRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository operations in one transactional boundary. Repository calls made
// with the callback context join the transaction. The callback may be retried on contention.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// VehicleRepository persists the rentable catalog.
type VehicleRepository interface {
	Insert(ctx context.Context, vehicle domain.Vehicle) error
	Update(ctx context.Context, vehicle domain.Vehicle) error
	Delete(ctx context.Context, vehicleID string) error
	FindByID(ctx context.Context, vehicleID string) (domain.Vehicle, error)
	// List returns vehicles matching the filter, newest first.
	List(ctx context.Context, filter domain.VehicleFilter) ([]domain.Vehicle, error)
}

// BookingRepository persists bookings.
type BookingRepository interface {
	// Insert stores a new booking and claims its reference. A taken reference yields an
	// Error with ErrorReferenceTaken. Inserting also marks the vehicle's schedule
	// as changed so concurrent units of work touching the same vehicle serialise.
	Insert(ctx context.Context, booking domain.Booking) error
	// Update overwrites a booking. Date changes mark the vehicle's schedule like Insert.
	Update(ctx context.Context, booking domain.Booking) error
	FindByID(ctx context.Context, bookingID string) (domain.Booking, error)
	// List returns bookings matching the filter, newest first.
	List(ctx context.Context, filter domain.BookingFilter) ([]domain.Booking, error)
	// ListHolding returns the pending and confirmed bookings of a vehicle.
	ListHolding(ctx context.Context, vehicleID string) ([]domain.Booking, error)
}

// PaymentRepository persists payment attempts.
type PaymentRepository interface {
	// Insert stores a payment and claims its transaction id. A successful payment also claims the
	// booking's single success slot. Collisions yield a coded Error.
	Insert(ctx context.Context, payment domain.Payment) error
	FindByID(ctx context.Context, paymentID string) (domain.Payment, error)
	// FindSuccessfulByBooking returns the successful payment for a booking.
	FindSuccessfulByBooking(ctx context.Context, bookingID string) (domain.Payment, error)
	// FindLatestByBooking returns the most recent payment of any status for a booking.
	FindLatestByBooking(ctx context.Context, bookingID string) (domain.Payment, error)
	// ListSuccessful pages through successful payments paid at or after since, oldest first.
	ListSuccessful(ctx context.Context, since time.Time, limit int) ([]domain.Payment, error)
}

// StatsRepository answers dashboard aggregate queries.
type StatsRepository interface {
	CountVehicles(ctx context.Context, filter domain.VehicleFilter) (int64, error)
	CountBookings(ctx context.Context, filter domain.BookingFilter) (int64, error)
	CountBookingUsers(ctx context.Context) (int64, error)
	SumSuccessfulPayments(ctx context.Context) (int64, error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
