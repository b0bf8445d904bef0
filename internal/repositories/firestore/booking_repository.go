package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/rentwheel/api/internal/domain"
	pfirestore "github.com/rentwheel/api/internal/platform/firestore"
	"github.com/rentwheel/api/internal/repositories"
)

type bookingDocument struct {
	Reference          string     `firestore:"bookingReference"`
	UserID             string     `firestore:"userId"`
	VehicleID          string     `firestore:"vehicleId"`
	StartDate          string     `firestore:"startDate"`
	EndDate            string     `firestore:"endDate"`
	PricePerDay        int64      `firestore:"pricePerDay"`
	TotalDays          int        `firestore:"totalDays"`
	TotalPrice         int64      `firestore:"totalPrice"`
	Status             string     `firestore:"status"`
	PaymentID          string     `firestore:"paymentId,omitempty"`
	CancellationReason string     `firestore:"cancellationReason,omitempty"`
	CancelledAt        *time.Time `firestore:"cancelledAt,omitempty"`
	CreatedAt          time.Time  `firestore:"createdAt"`
	UpdatedAt          time.Time  `firestore:"updatedAt"`
}

// BookingRepository stores bookings plus a reference marker per booking. Every write that can
// change a vehicle's schedule also increments the vehicle's bookingVersion, so two transactions
// planning bookings for the same vehicle contend on one document and Firestore serialises them.
type BookingRepository struct {
	uow        repositories.UnitOfWork
	bookings   *pfirestore.Collection[bookingDocument]
	references *pfirestore.Collection[markerDocument]
	vehicles   *VehicleRepository
}

// NewBookingRepository constructs a Firestore-backed booking repository.
func NewBookingRepository(provider *pfirestore.Provider, uow repositories.UnitOfWork) *BookingRepository {
	return &BookingRepository{
		uow:        uow,
		bookings:   pfirestore.NewCollection[bookingDocument](provider, bookingsCollection),
		references: pfirestore.NewCollection[markerDocument](provider, bookingReferencesCollection),
		vehicles:   NewVehicleRepository(provider),
	}
}

func (r *BookingRepository) Insert(ctx context.Context, booking domain.Booking) error {
	const op = "bookings.insert"
	err := r.uow.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := r.references.Get(ctx, booking.Reference); err == nil {
			return repositories.NewError(op, repositories.ErrorReferenceTaken, fmt.Sprintf("reference %s already taken", booking.Reference), nil)
		} else if !pfirestore.IsNotFound(err) {
			return err
		}
		if err := r.bookings.Create(ctx, booking.ID, encodeBooking(booking)); err != nil {
			return err
		}
		if err := r.references.Create(ctx, booking.Reference, markerDocument{OwnerID: booking.ID}); err != nil {
			return err
		}
		return r.vehicles.bumpBookingVersion(ctx, booking.VehicleID)
	})
	if pfirestore.IsAlreadyExists(err) {
		return repositories.NewError(op, repositories.ErrorReferenceTaken, "reference claimed concurrently", err)
	}
	return err
}

func (r *BookingRepository) Update(ctx context.Context, booking domain.Booking) error {
	return r.uow.RunInTx(ctx, func(ctx context.Context) error {
		if err := r.bookings.Set(ctx, booking.ID, encodeBooking(booking)); err != nil {
			return err
		}
		if !booking.Status.HoldsVehicle() {
			return nil
		}
		return r.vehicles.bumpBookingVersion(ctx, booking.VehicleID)
	})
}

func (r *BookingRepository) FindByID(ctx context.Context, bookingID string) (domain.Booking, error) {
	doc, err := r.bookings.Get(ctx, bookingID)
	if err != nil {
		return domain.Booking{}, err
	}
	return decodeBooking(doc.ID, doc.Data)
}

func (r *BookingRepository) List(ctx context.Context, filter domain.BookingFilter) ([]domain.Booking, error) {
	return r.query(ctx, func(q firestore.Query) firestore.Query {
		if filter.UserID != "" {
			q = q.Where("userId", "==", filter.UserID)
		}
		if filter.VehicleID != "" {
			q = q.Where("vehicleId", "==", filter.VehicleID)
		}
		if filter.Status != nil {
			q = q.Where("status", "==", string(*filter.Status))
		}
		return q.OrderBy("createdAt", firestore.Desc)
	})
}

func (r *BookingRepository) ListHolding(ctx context.Context, vehicleID string) ([]domain.Booking, error) {
	return r.query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("vehicleId", "==", vehicleID).
			Where("status", "in", []string{string(domain.BookingStatusPending), string(domain.BookingStatusConfirmed)})
	})
}

func (r *BookingRepository) query(ctx context.Context, build pfirestore.QueryBuilder) ([]domain.Booking, error) {
	docs, err := r.bookings.Query(ctx, build)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Booking, 0, len(docs))
	for _, doc := range docs {
		booking, err := decodeBooking(doc.ID, doc.Data)
		if err != nil {
			return nil, err
		}
		out = append(out, booking)
	}
	return out, nil
}

func encodeBooking(b domain.Booking) bookingDocument {
	doc := bookingDocument{
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
		CreatedAt:          b.CreatedAt.UTC(),
		UpdatedAt:          b.UpdatedAt.UTC(),
	}
	if b.CancelledAt != nil {
		at := b.CancelledAt.UTC()
		doc.CancelledAt = &at
	}
	return doc
}

func decodeBooking(id string, doc bookingDocument) (domain.Booking, error) {
	start, err := domain.ParseDate(doc.StartDate)
	if err != nil {
		return domain.Booking{}, fmt.Errorf("booking %s: startDate: %w", id, err)
	}
	end, err := domain.ParseDate(doc.EndDate)
	if err != nil {
		return domain.Booking{}, fmt.Errorf("booking %s: endDate: %w", id, err)
	}
	return domain.Booking{
		ID:                 id,
		Reference:          doc.Reference,
		UserID:             doc.UserID,
		VehicleID:          doc.VehicleID,
		StartDate:          start,
		EndDate:            end,
		PricePerDay:        doc.PricePerDay,
		TotalDays:          doc.TotalDays,
		TotalPrice:         doc.TotalPrice,
		Status:             domain.BookingStatus(doc.Status),
		PaymentID:          doc.PaymentID,
		CancellationReason: doc.CancellationReason,
		CancelledAt:        doc.CancelledAt,
		CreatedAt:          doc.CreatedAt,
		UpdatedAt:          doc.UpdatedAt,
	}, nil
}
