package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	domain "github.com/rentwheel/api/internal/domain"
	"github.com/rentwheel/api/internal/repositories"
)

type paymentRepository struct{ s *Store }

func (r paymentRepository) Insert(ctx context.Context, payment domain.Payment) error {
	return r.s.with(ctx, func(st *state) error {
		if _, exists := st.payments[payment.ID]; exists {
			return repositories.NewError("payments.insert", repositories.ErrorUnknown, fmt.Sprintf("payment %s already exists", payment.ID), nil)
		}
		if _, taken := st.transactionIDs[payment.TransactionID]; taken {
			return repositories.NewError("payments.insert", repositories.ErrorTransactionIDTaken, fmt.Sprintf("transaction id %s already taken", payment.TransactionID), nil)
		}
		if payment.Status == domain.PaymentStatusSuccess {
			if _, paid := st.paidBookings[payment.BookingID]; paid {
				return repositories.NewError("payments.insert", repositories.ErrorBookingAlreadyPaid, fmt.Sprintf("booking %s already paid", payment.BookingID), nil)
			}
			st.paidBookings[payment.BookingID] = payment.ID
		}
		st.transactionIDs[payment.TransactionID] = payment.ID
		st.payments[payment.ID] = clonePayment(payment)
		return nil
	})
}

func (r paymentRepository) FindByID(ctx context.Context, paymentID string) (domain.Payment, error) {
	var out domain.Payment
	err := r.s.with(ctx, func(st *state) error {
		payment, ok := st.payments[paymentID]
		if !ok {
			return &NotFoundError{Kind: "payment", ID: paymentID}
		}
		out = clonePayment(payment)
		return nil
	})
	return out, err
}

func (r paymentRepository) FindSuccessfulByBooking(ctx context.Context, bookingID string) (domain.Payment, error) {
	var out domain.Payment
	err := r.s.with(ctx, func(st *state) error {
		paymentID, ok := st.paidBookings[bookingID]
		if !ok {
			return &NotFoundError{Kind: "payment for booking", ID: bookingID}
		}
		out = clonePayment(st.payments[paymentID])
		return nil
	})
	return out, err
}

func (r paymentRepository) FindLatestByBooking(ctx context.Context, bookingID string) (domain.Payment, error) {
	var (
		out   domain.Payment
		found bool
	)
	err := r.s.with(ctx, func(st *state) error {
		for _, payment := range st.payments {
			if payment.BookingID != bookingID {
				continue
			}
			if !found || newestFirst(payment.CreatedAt, out.CreatedAt, payment.ID, out.ID) < 0 {
				out = clonePayment(payment)
				found = true
			}
		}
		if !found {
			return &NotFoundError{Kind: "payment for booking", ID: bookingID}
		}
		return nil
	})
	return out, err
}

func (r paymentRepository) ListSuccessful(ctx context.Context, since time.Time, limit int) ([]domain.Payment, error) {
	var out []domain.Payment
	err := r.s.with(ctx, func(st *state) error {
		for _, payment := range st.payments {
			if payment.Status != domain.PaymentStatusSuccess || payment.PaidAt == nil || payment.PaidAt.Before(since) {
				continue
			}
			out = append(out, clonePayment(payment))
		}
		return nil
	})
	slices.SortFunc(out, func(a, b domain.Payment) int {
		return -newestFirst(*a.PaidAt, *b.PaidAt, a.ID, b.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func clonePayment(p domain.Payment) domain.Payment {
	p.GatewayResponse = maps.Clone(p.GatewayResponse)
	if p.PaidAt != nil {
		at := *p.PaidAt
		p.PaidAt = &at
	}
	if p.FailedAt != nil {
		at := *p.FailedAt
		p.FailedAt = &at
	}
	return p
}
