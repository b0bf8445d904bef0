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

type paymentDocument struct {
	BookingID       string         `firestore:"bookingId"`
	UserID          string         `firestore:"userId"`
	Amount          int64          `firestore:"amount"`
	Currency        string         `firestore:"currency"`
	Method          string         `firestore:"paymentMethod"`
	Status          string         `firestore:"paymentStatus"`
	TransactionID   string         `firestore:"transactionId"`
	GatewayResponse map[string]any `firestore:"gatewayResponse,omitempty"`
	PaidAt          *time.Time     `firestore:"paidAt,omitempty"`
	FailedAt        *time.Time     `firestore:"failedAt,omitempty"`
	FailureReason   string         `firestore:"failureReason,omitempty"`
	CreatedAt       time.Time      `firestore:"createdAt"`
	UpdatedAt       time.Time      `firestore:"updatedAt"`
}

// PaymentRepository stores payments with two marker collections: transactionIds keeps
// transaction ids unique and bookingPayments holds the single successful payment per booking.
type PaymentRepository struct {
	uow            repositories.UnitOfWork
	payments       *pfirestore.Collection[paymentDocument]
	transactionIDs *pfirestore.Collection[markerDocument]
	paidBookings   *pfirestore.Collection[markerDocument]
}

// NewPaymentRepository constructs a Firestore-backed payment repository.
func NewPaymentRepository(provider *pfirestore.Provider, uow repositories.UnitOfWork) *PaymentRepository {
	return &PaymentRepository{
		uow:            uow,
		payments:       pfirestore.NewCollection[paymentDocument](provider, paymentsCollection),
		transactionIDs: pfirestore.NewCollection[markerDocument](provider, transactionIDsCollection),
		paidBookings:   pfirestore.NewCollection[markerDocument](provider, bookingPaymentsCollection),
	}
}

func (r *PaymentRepository) Insert(ctx context.Context, payment domain.Payment) error {
	const op = "payments.insert"
	success := payment.Status == domain.PaymentStatusSuccess
	return r.uow.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := r.transactionIDs.Get(ctx, payment.TransactionID); err == nil {
			return repositories.NewError(op, repositories.ErrorTransactionIDTaken, fmt.Sprintf("transaction id %s already taken", payment.TransactionID), nil)
		} else if !pfirestore.IsNotFound(err) {
			return err
		}
		if success {
			if _, err := r.paidBookings.Get(ctx, payment.BookingID); err == nil {
				return repositories.NewError(op, repositories.ErrorBookingAlreadyPaid, fmt.Sprintf("booking %s already paid", payment.BookingID), nil)
			} else if !pfirestore.IsNotFound(err) {
				return err
			}
		}

		if err := r.payments.Create(ctx, payment.ID, encodePayment(payment)); err != nil {
			return err
		}
		if err := r.transactionIDs.Create(ctx, payment.TransactionID, markerDocument{OwnerID: payment.ID}); err != nil {
			return err
		}
		if success {
			return r.paidBookings.Create(ctx, payment.BookingID, markerDocument{OwnerID: payment.ID})
		}
		return nil
	})
}

func (r *PaymentRepository) FindByID(ctx context.Context, paymentID string) (domain.Payment, error) {
	doc, err := r.payments.Get(ctx, paymentID)
	if err != nil {
		return domain.Payment{}, err
	}
	return decodePayment(doc.ID, doc.Data), nil
}

func (r *PaymentRepository) FindSuccessfulByBooking(ctx context.Context, bookingID string) (domain.Payment, error) {
	marker, err := r.paidBookings.Get(ctx, bookingID)
	if err != nil {
		return domain.Payment{}, err
	}
	return r.FindByID(ctx, marker.Data.OwnerID)
}

func (r *PaymentRepository) FindLatestByBooking(ctx context.Context, bookingID string) (domain.Payment, error) {
	docs, err := r.payments.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("bookingId", "==", bookingID).OrderBy("createdAt", firestore.Desc).Limit(1)
	})
	if err != nil {
		return domain.Payment{}, err
	}
	if len(docs) == 0 {
		return domain.Payment{}, &notFoundError{what: fmt.Sprintf("payment for booking %s", bookingID)}
	}
	return decodePayment(docs[0].ID, docs[0].Data), nil
}

func (r *PaymentRepository) ListSuccessful(ctx context.Context, since time.Time, limit int) ([]domain.Payment, error) {
	docs, err := r.payments.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("paymentStatus", "==", string(domain.PaymentStatusSuccess)).
			Where("paidAt", ">=", since.UTC()).
			OrderBy("paidAt", firestore.Asc)
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Payment, 0, len(docs))
	for _, doc := range docs {
		out = append(out, decodePayment(doc.ID, doc.Data))
	}
	return out, nil
}

// notFoundError reports an empty query result where a document was required.
type notFoundError struct{ what string }

func (e *notFoundError) Error() string       { return e.what + " not found" }
func (e *notFoundError) IsNotFound() bool    { return true }
func (e *notFoundError) IsConflict() bool    { return false }
func (e *notFoundError) IsUnavailable() bool { return false }

var _ repositories.RepositoryError = (*notFoundError)(nil)

func encodePayment(p domain.Payment) paymentDocument {
	return paymentDocument{
		BookingID:       p.BookingID,
		UserID:          p.UserID,
		Amount:          p.Amount,
		Currency:        p.Currency,
		Method:          string(p.Method),
		Status:          string(p.Status),
		TransactionID:   p.TransactionID,
		GatewayResponse: p.GatewayResponse,
		PaidAt:          utcPtr(p.PaidAt),
		FailedAt:        utcPtr(p.FailedAt),
		FailureReason:   p.FailureReason,
		CreatedAt:       p.CreatedAt.UTC(),
		UpdatedAt:       p.UpdatedAt.UTC(),
	}
}

func decodePayment(id string, doc paymentDocument) domain.Payment {
	return domain.Payment{
		ID:              id,
		BookingID:       doc.BookingID,
		UserID:          doc.UserID,
		Amount:          doc.Amount,
		Currency:        doc.Currency,
		Method:          domain.PaymentMethod(doc.Method),
		Status:          domain.PaymentStatus(doc.Status),
		TransactionID:   doc.TransactionID,
		GatewayResponse: doc.GatewayResponse,
		PaidAt:          doc.PaidAt,
		FailedAt:        doc.FailedAt,
		FailureReason:   doc.FailureReason,
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
