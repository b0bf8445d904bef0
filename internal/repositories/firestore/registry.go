package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/rentwheel/api/internal/platform/firestore"
	"github.com/rentwheel/api/internal/repositories"
)

const (
	vehiclesCollection          = "vehicles"
	bookingsCollection          = "bookings"
	bookingReferencesCollection = "bookingReferences"
	paymentsCollection          = "payments"
	transactionIDsCollection    = "transactionIds"
	bookingPaymentsCollection   = "bookingPayments"
)

// markerDocument claims a unique key for the owning document.
type markerDocument struct {
	OwnerID string `firestore:"ownerId"`
}

// Registry wires the Firestore repositories around one provider and unit of work.
type Registry struct {
	provider *pfirestore.Provider
	uow      *pfirestore.UnitOfWork
	vehicles *VehicleRepository
	bookings *BookingRepository
	payments *PaymentRepository
	stats    *StatsRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds every repository over provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}
	uow := pfirestore.NewUnitOfWork(provider)
	return &Registry{
		provider: provider,
		uow:      uow,
		vehicles: NewVehicleRepository(provider),
		bookings: NewBookingRepository(provider, uow),
		payments: NewPaymentRepository(provider, uow),
		stats:    NewStatsRepository(provider),
	}, nil
}

func (r *Registry) Close(ctx context.Context) error { return r.provider.Close(ctx) }

func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.uow.RunInTx(ctx, fn)
}

func (r *Registry) Vehicles() repositories.VehicleRepository { return r.vehicles }
func (r *Registry) Bookings() repositories.BookingRepository { return r.bookings }
func (r *Registry) Payments() repositories.PaymentRepository { return r.payments }
func (r *Registry) Stats() repositories.StatsRepository      { return r.stats }
