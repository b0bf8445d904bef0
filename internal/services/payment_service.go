package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	domain "github.com/rentwheel/api/internal/domain"
	"github.com/rentwheel/api/internal/repositories"
)

const (
	paymentIDPrefix          = "pay_"
	defaultPaymentCurrency   = "INR"
	defaultReconcileLookback = 72 * time.Hour
	defaultReconcileBatch    = 100
	simulatedGatewayMessage  = "Dummy payment processed successfully"
)

// PaymentServiceDeps bundles the collaborators required to construct a payment service.
type PaymentServiceDeps struct {
	Bookings       repositories.BookingRepository
	Payments       repositories.PaymentRepository
	UnitOfWork     repositories.UnitOfWork
	Events         EventPublisher
	Currency       string
	TransactionIDs CodeGenerator
	IDAttempts     int
	// ReconcileLookback and ReconcileBatch bound a reconciliation pass that does not specify its own window.
	ReconcileLookback time.Duration
	ReconcileBatch    int
	Clock             func() time.Time
	IDGenerator       func() string
	Logger            func(ctx context.Context, event string, fields map[string]any)
	Meter             metric.Meter
}

type paymentService struct {
	bookings       repositories.BookingRepository
	payments       repositories.PaymentRepository
	uow            repositories.UnitOfWork
	events         EventPublisher
	currency       currency.Unit
	printer        *message.Printer
	transactionIDs CodeGenerator
	attempts       int
	lookback       time.Duration
	batch          int
	clock          func() time.Time
	newID          func() string
	logger         func(context.Context, string, map[string]any)
	outcomes       outcomeCounter
}

var _ PaymentService = (*paymentService)(nil)

// NewPaymentService wires dependencies into the simulated payment service.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Bookings == nil {
		return nil, errors.New("payment service: booking repository is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("payment service: payment repository is required")
	}

	code := strings.TrimSpace(deps.Currency)
	if code == "" {
		code = defaultPaymentCurrency
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return nil, fmt.Errorf("payment service: invalid currency %q: %w", code, err)
	}

	uow := deps.UnitOfWork
	if uow == nil {
		uow = noopUnitOfWork{}
	}

	transactionIDs := deps.TransactionIDs
	if transactionIDs == nil {
		transactionIDs = NewTransactionIDGenerator()
	}

	lookback := deps.ReconcileLookback
	if lookback <= 0 {
		lookback = defaultReconcileLookback
	}
	batch := deps.ReconcileBatch
	if batch <= 0 {
		batch = defaultReconcileBatch
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

	return &paymentService{
		bookings:       deps.Bookings,
		payments:       deps.Payments,
		uow:            uow,
		events:         deps.Events,
		currency:       unit,
		printer:        message.NewPrinter(language.MustParse("en-IN")),
		transactionIDs: transactionIDs,
		attempts:       deps.IDAttempts,
		lookback:       lookback,
		batch:          batch,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:    idGen,
		logger:   logger,
		outcomes: newOutcomeCounter(deps.Meter, "payments.operations", "Payment operations by outcome"),
	}, nil
}

func (s *paymentService) ProcessPayment(ctx context.Context, cmd ProcessPaymentCommand) (payment Payment, err error) {
	defer func() { s.outcomes.record(ctx, "process", err) }()

	if err := requireActor(cmd.Actor); err != nil {
		return Payment{}, err
	}
	bookingID := strings.TrimSpace(cmd.BookingID)
	if bookingID == "" {
		return Payment{}, fmt.Errorf("%w: booking id is required", ErrInvalidInput)
	}
	method, err := domain.ParsePaymentMethod(cmd.Method)
	if err != nil {
		return Payment{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	paymentID := ensurePrefixed(paymentIDPrefix, s.newID())
	var confirmed Booking
	err = withUniqueCode(ctx, s.attempts, s.clock, s.transactionIDs, repositories.ErrorTransactionIDTaken, func(ctx context.Context, transactionID string) error {
		return s.uow.RunInTx(ctx, func(ctx context.Context) error {
			booking, err := s.bookings.FindByID(ctx, bookingID)
			if err != nil {
				return mapRepositoryError(err, "booking")
			}
			if booking.UserID != cmd.Actor.ID {
				return fmt.Errorf("%w: not authorized to pay for this booking", ErrForbidden)
			}
			if booking.Status != domain.BookingStatusPending {
				return fmt.Errorf("%w: payment can only be made for pending bookings", ErrConflict)
			}
			if _, err := s.payments.FindSuccessfulByBooking(ctx, booking.ID); err == nil {
				return fmt.Errorf("%w: payment already completed for this booking", ErrConflict)
			} else if !isNotFound(err) {
				return mapRepositoryError(err, "payment")
			}

			now := s.clock()
			candidate := Payment{
				ID:              paymentID,
				BookingID:       booking.ID,
				UserID:          cmd.Actor.ID,
				Amount:          booking.TotalPrice,
				Currency:        s.currency.String(),
				Method:          method,
				Status:          domain.PaymentStatusPending,
				TransactionID:   transactionID,
				GatewayResponse: s.gatewayResponse(booking.TotalPrice, now),
				CreatedAt:       now,
			}
			candidate.MarkSucceeded(now)

			if err := s.payments.Insert(ctx, candidate); err != nil {
				if isCodeTaken(err, repositories.ErrorTransactionIDTaken) {
					return err
				}
				return mapRepositoryError(err, "payment")
			}

			booking.Status = domain.BookingStatusConfirmed
			booking.PaymentID = candidate.ID
			booking.UpdatedAt = now
			if err := s.bookings.Update(ctx, booking); err != nil {
				s.logger(ctx, "payment.confirm_failed", map[string]any{
					"bookingId": booking.ID,
					"paymentId": candidate.ID,
					"error":     err.Error(),
				})
				return fmt.Errorf("%w: booking confirmation failed; payment %s may need reconciliation", ErrDependency, candidate.ID)
			}
			payment = candidate
			confirmed = booking
			return nil
		})
	})
	if err != nil {
		return Payment{}, mapRepositoryError(err, "payment")
	}

	s.logger(ctx, "payment.succeeded", map[string]any{
		"bookingId":     payment.BookingID,
		"paymentId":     payment.ID,
		"transactionId": payment.TransactionID,
		"amount":        payment.Amount,
		"method":        string(payment.Method),
	})
	event := bookingEvent(EventPaymentSucceeded, confirmed, cmd.Actor, payment.CreatedAt)
	event.Metadata = map[string]any{
		"amount":        payment.Amount,
		"currency":      payment.Currency,
		"transactionId": payment.TransactionID,
	}
	publishEvent(ctx, s.events, s.logger, event)
	return payment, nil
}

func (s *paymentService) GetPaymentByBooking(ctx context.Context, actor Actor, bookingID string) (Payment, error) {
	if err := requireActor(actor); err != nil {
		return Payment{}, err
	}
	bookingID = strings.TrimSpace(bookingID)
	if bookingID == "" {
		return Payment{}, fmt.Errorf("%w: booking id is required", ErrInvalidInput)
	}
	payment, err := s.payments.FindLatestByBooking(ctx, bookingID)
	if err != nil {
		if isNotFound(err) {
			return Payment{}, fmt.Errorf("%w: payment not found for this booking", ErrNotFound)
		}
		return Payment{}, mapRepositoryError(err, "payment")
	}
	if !actor.IsAdmin && payment.UserID != actor.ID {
		return Payment{}, fmt.Errorf("%w: not authorized to access this payment", ErrForbidden)
	}
	return payment, nil
}

func (s *paymentService) ReconcilePayments(ctx context.Context, cmd ReconcilePaymentsCommand) (ReconcileResult, error) {
	since := cmd.Since
	if since.IsZero() {
		since = s.clock().Add(-s.lookback)
	}
	limit := cmd.Limit
	if limit <= 0 {
		limit = s.batch
	}

	payments, err := s.payments.ListSuccessful(ctx, since.UTC(), limit)
	if err != nil {
		return ReconcileResult{}, mapRepositoryError(err, "payment")
	}

	var result ReconcileResult
	for _, payment := range payments {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Scanned++

		repaired, booking, err := s.reconcileOne(ctx, payment)
		switch {
		case err != nil:
			result.Failed++
			s.logger(ctx, "payment.reconcile_failed", map[string]any{
				"paymentId": payment.ID,
				"bookingId": payment.BookingID,
				"error":     err.Error(),
			})
		case repaired:
			result.Repaired++
			s.logger(ctx, "payment.reconciled", map[string]any{
				"paymentId": payment.ID,
				"bookingId": payment.BookingID,
			})
			publishEvent(ctx, s.events, s.logger, bookingEvent(EventPaymentReconciled, booking, Actor{}, booking.UpdatedAt))
		default:
			result.Skipped++
		}
	}
	return result, nil
}

// reconcileOne confirms the payment's booking when it is still pending or lost its payment link.
func (s *paymentService) reconcileOne(ctx context.Context, payment Payment) (bool, Booking, error) {
	var (
		repaired bool
		updated  Booking
	)
	err := s.uow.RunInTx(ctx, func(ctx context.Context) error {
		repaired = false
		booking, err := s.bookings.FindByID(ctx, payment.BookingID)
		if err != nil {
			return mapRepositoryError(err, "booking")
		}
		// A pending booking already linked to this payment was put back by an admin.
		switch {
		case booking.Status == domain.BookingStatusPending && booking.PaymentID != payment.ID:
			booking.Status = domain.BookingStatusConfirmed
		case booking.Status == domain.BookingStatusConfirmed && booking.PaymentID == "":
		default:
			return nil
		}
		booking.PaymentID = payment.ID
		booking.UpdatedAt = s.clock()
		if err := s.bookings.Update(ctx, booking); err != nil {
			return mapRepositoryError(err, "booking")
		}
		repaired = true
		updated = booking
		return nil
	})
	if err != nil {
		return false, Booking{}, err
	}
	return repaired, updated, nil
}

func (s *paymentService) gatewayResponse(amount int64, at time.Time) map[string]any {
	return map[string]any{
		"message":           simulatedGatewayMessage,
		"timestamp":         at,
		"authorizationCode": strings.ToUpper(uuid.NewString()),
		"displayAmount":     s.printer.Sprint(currency.Symbol(s.currency.Amount(amount))),
		"simulated":         true,
	}
}

func isNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
