package memory

import (
	"context"

	domain "github.com/rentwheel/api/internal/domain"
)

type statsRepository struct{ s *Store }

func (r statsRepository) CountVehicles(ctx context.Context, filter domain.VehicleFilter) (int64, error) {
	var n int64
	err := r.s.with(ctx, func(st *state) error {
		for _, vehicle := range st.vehicles {
			if matchVehicle(vehicle, filter) {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r statsRepository) CountBookings(ctx context.Context, filter domain.BookingFilter) (int64, error) {
	var n int64
	err := r.s.with(ctx, func(st *state) error {
		for _, booking := range st.bookings {
			if matchBooking(booking, filter) {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r statsRepository) CountBookingUsers(ctx context.Context) (int64, error) {
	users := make(map[string]struct{})
	err := r.s.with(ctx, func(st *state) error {
		for _, booking := range st.bookings {
			users[booking.UserID] = struct{}{}
		}
		return nil
	})
	return int64(len(users)), err
}

func (r statsRepository) SumSuccessfulPayments(ctx context.Context) (int64, error) {
	var total int64
	err := r.s.with(ctx, func(st *state) error {
		for _, payment := range st.payments {
			if payment.Status == domain.PaymentStatusSuccess {
				total += payment.Amount
			}
		}
		return nil
	})
	return total, err
}
