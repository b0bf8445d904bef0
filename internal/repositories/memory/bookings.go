package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	domain "github.com/rentwheel/api/internal/domain"
	"github.com/rentwheel/api/internal/repositories"
)

type bookingRepository struct{ s *Store }

func (r bookingRepository) Insert(ctx context.Context, booking domain.Booking) error {
	return r.s.with(ctx, func(st *state) error {
		if _, exists := st.bookings[booking.ID]; exists {
			return repositories.NewError("bookings.insert", repositories.ErrorUnknown, fmt.Sprintf("booking %s already exists", booking.ID), nil)
		}
		if _, taken := st.references[booking.Reference]; taken {
			return repositories.NewError("bookings.insert", repositories.ErrorReferenceTaken, fmt.Sprintf("reference %s already taken", booking.Reference), nil)
		}
		st.references[booking.Reference] = booking.ID
		st.bookings[booking.ID] = cloneBooking(booking)
		return nil
	})
}

func (r bookingRepository) Update(ctx context.Context, booking domain.Booking) error {
	return r.s.with(ctx, func(st *state) error {
		if _, exists := st.bookings[booking.ID]; !exists {
			return &NotFoundError{Kind: "booking", ID: booking.ID}
		}
		st.bookings[booking.ID] = cloneBooking(booking)
		return nil
	})
}

func (r bookingRepository) FindByID(ctx context.Context, bookingID string) (domain.Booking, error) {
	var out domain.Booking
	err := r.s.with(ctx, func(st *state) error {
		booking, ok := st.bookings[bookingID]
		if !ok {
			return &NotFoundError{Kind: "booking", ID: bookingID}
		}
		out = cloneBooking(booking)
		return nil
	})
	return out, err
}

func (r bookingRepository) List(ctx context.Context, filter domain.BookingFilter) ([]domain.Booking, error) {
	var out []domain.Booking
	err := r.s.with(ctx, func(st *state) error {
		for _, booking := range st.bookings {
			if matchBooking(booking, filter) {
				out = append(out, cloneBooking(booking))
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b domain.Booking) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return out, err
}

func (r bookingRepository) ListHolding(ctx context.Context, vehicleID string) ([]domain.Booking, error) {
	var out []domain.Booking
	err := r.s.with(ctx, func(st *state) error {
		for _, booking := range st.bookings {
			if booking.VehicleID == vehicleID && booking.Status.HoldsVehicle() {
				out = append(out, cloneBooking(booking))
			}
		}
		return nil
	})
	return out, err
}

func matchBooking(b domain.Booking, filter domain.BookingFilter) bool {
	if filter.UserID != "" && b.UserID != filter.UserID {
		return false
	}
	if filter.VehicleID != "" && b.VehicleID != filter.VehicleID {
		return false
	}
	if filter.Status != nil && b.Status != *filter.Status {
		return false
	}
	return true
}

func cloneBooking(b domain.Booking) domain.Booking {
	if b.CancelledAt != nil {
		at := *b.CancelledAt
		b.CancelledAt = &at
	}
	return b
}

func newestFirst(aTime, bTime time.Time, aID, bID string) int {
	if c := bTime.Compare(aTime); c != 0 {
		return c
	}
	return cmp.Compare(bID, aID)
}
