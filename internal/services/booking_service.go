package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/metric"

	domain "github.com/rentwheel/api/internal/domain"
	"github.com/rentwheel/api/internal/repositories"
)

const (
	bookingIDPrefix          = "bkg_"
	adminCancellationReason  = "Cancelled by administrator"
	maxCancellationReasonLen = 500
)

// BookingServiceDeps bundles the collaborators required to construct a booking service.
type BookingServiceDeps struct {
	Vehicles     repositories.VehicleRepository
	Bookings     repositories.BookingRepository
	UnitOfWork   repositories.UnitOfWork
	Availability AvailabilityChecker
	Events       EventPublisher
	// Location decides which calendar day counts as "today" for start date validation.
	Location          *time.Location
	ReferenceAttempts int
	References        CodeGenerator
	Clock             func() time.Time
	IDGenerator       func() string
	Logger            func(ctx context.Context, event string, fields map[string]any)
	Meter             metric.Meter
}

type bookingService struct {
	vehicles     repositories.VehicleRepository
	bookings     repositories.BookingRepository
	uow          repositories.UnitOfWork
	availability AvailabilityChecker
	events       EventPublisher
	location     *time.Location
	attempts     int
	references   CodeGenerator
	clock        func() time.Time
	newID        func() string
	logger       func(context.Context, string, map[string]any)
	sanitizer    *bluemonday.Policy
	outcomes     outcomeCounter
}

var _ BookingService = (*bookingService)(nil)

// NewBookingService wires dependencies into a concrete BookingService implementation.
func NewBookingService(deps BookingServiceDeps) (BookingService, error) {
	if deps.Vehicles == nil {
		return nil, errors.New("booking service: vehicle repository is required")
	}
	if deps.Bookings == nil {
		return nil, errors.New("booking service: booking repository is required")
	}

	availability := deps.Availability
	if availability == nil {
		checker, err := NewAvailabilityChecker(deps.Bookings)
		if err != nil {
			return nil, err
		}
		availability = checker
	}

	uow := deps.UnitOfWork
	if uow == nil {
		uow = noopUnitOfWork{}
	}

	location := deps.Location
	if location == nil {
		location = time.UTC
	}

	references := deps.References
	if references == nil {
		references = NewBookingReferenceGenerator()
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

	return &bookingService{
		vehicles:     deps.Vehicles,
		bookings:     deps.Bookings,
		uow:          uow,
		availability: availability,
		events:       deps.Events,
		location:     location,
		attempts:     deps.ReferenceAttempts,
		references:   references,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:     idGen,
		logger:    logger,
		sanitizer: bluemonday.StrictPolicy(),
		outcomes:  newOutcomeCounter(deps.Meter, "bookings.operations", "Booking operations by outcome"),
	}, nil
}

func (s *bookingService) CreateBooking(ctx context.Context, cmd CreateBookingCommand) (booking Booking, err error) {
	defer func() { s.outcomes.record(ctx, "create", err) }()

	if err := requireActor(cmd.Actor); err != nil {
		return Booking{}, err
	}
	if cmd.Actor.IsAdmin {
		return Booking{}, fmt.Errorf("%w: admins are not allowed to book vehicles", ErrForbidden)
	}
	vehicleID := strings.TrimSpace(cmd.VehicleID)
	if vehicleID == "" || strings.TrimSpace(cmd.StartDate) == "" || strings.TrimSpace(cmd.EndDate) == "" {
		return Booking{}, fmt.Errorf("%w: vehicle, start date and end date are required", ErrInvalidInput)
	}

	bookingID := ensurePrefixed(bookingIDPrefix, s.newID())
	err = withUniqueCode(ctx, s.attempts, s.clock, s.references, repositories.ErrorReferenceTaken, func(ctx context.Context, reference string) error {
		return s.uow.RunInTx(ctx, func(ctx context.Context) error {
			vehicle, err := s.vehicles.FindByID(ctx, vehicleID)
			if err != nil {
				return mapRepositoryError(err, "vehicle")
			}
			if !vehicle.IsAvailable {
				return fmt.Errorf("%w: vehicle is not available for booking", ErrConflict)
			}

			start, end, err := s.parseRange(cmd.StartDate, cmd.EndDate)
			if err != nil {
				return err
			}

			free, err := s.availability.IsAvailable(ctx, vehicle.ID, start, end, "")
			if err != nil {
				return err
			}
			if !free {
				return fmt.Errorf("%w: vehicle is already booked for the selected dates", ErrConflict)
			}

			now := s.clock()
			candidate := Booking{
				ID:          bookingID,
				Reference:   reference,
				UserID:      cmd.Actor.ID,
				VehicleID:   vehicle.ID,
				StartDate:   start,
				EndDate:     end,
				PricePerDay: vehicle.PricePerDay,
				Status:      domain.BookingStatusPending,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			candidate.RecomputePricing(domain.PricingInputStartDate | domain.PricingInputEndDate | domain.PricingInputPricePerDay)

			if err := s.bookings.Insert(ctx, candidate); err != nil {
				if isCodeTaken(err, repositories.ErrorReferenceTaken) {
					return err
				}
				return mapRepositoryError(err, "booking")
			}
			booking = candidate
			return nil
		})
	})
	if err != nil {
		return Booking{}, mapRepositoryError(err, "booking")
	}

	s.logger(ctx, "booking.created", map[string]any{
		"bookingId": booking.ID,
		"reference": booking.Reference,
		"vehicleId": booking.VehicleID,
		"userId":    booking.UserID,
		"totalDays": booking.TotalDays,
	})
	publishEvent(ctx, s.events, s.logger, bookingEvent(EventBookingCreated, booking, cmd.Actor, booking.CreatedAt))
	return booking, nil
}

func (s *bookingService) ListMyBookings(ctx context.Context, actor Actor) ([]Booking, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	bookings, err := s.bookings.List(ctx, domain.BookingFilter{UserID: actor.ID})
	if err != nil {
		return nil, mapRepositoryError(err, "booking")
	}
	return bookings, nil
}

func (s *bookingService) GetBooking(ctx context.Context, actor Actor, bookingID string) (Booking, error) {
	if err := requireActor(actor); err != nil {
		return Booking{}, err
	}
	booking, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return Booking{}, err
	}
	if !actor.IsAdmin && booking.UserID != actor.ID {
		return Booking{}, fmt.Errorf("%w: not authorized to access this booking", ErrForbidden)
	}
	return booking, nil
}

func (s *bookingService) CancelBooking(ctx context.Context, cmd CancelBookingCommand) (booking Booking, err error) {
	defer func() { s.outcomes.record(ctx, "cancel", err) }()

	if err := requireActor(cmd.Actor); err != nil {
		return Booking{}, err
	}
	reason, err := s.cleanReason(cmd.Reason)
	if err != nil {
		return Booking{}, err
	}

	err = s.uow.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.loadBooking(ctx, cmd.BookingID)
		if err != nil {
			return err
		}
		if current.UserID != cmd.Actor.ID {
			return fmt.Errorf("%w: not authorized to cancel this booking", ErrForbidden)
		}
		switch current.Status {
		case domain.BookingStatusCancelled:
			return fmt.Errorf("%w: booking is already cancelled", ErrConflict)
		case domain.BookingStatusCompleted:
			return fmt.Errorf("%w: cannot cancel completed booking", ErrConflict)
		}
		current.Cancel(reason, s.clock())
		if err := s.bookings.Update(ctx, current); err != nil {
			return mapRepositoryError(err, "booking")
		}
		booking = current
		return nil
	})
	if err != nil {
		return Booking{}, err
	}

	publishEvent(ctx, s.events, s.logger, bookingEvent(EventBookingCancelled, booking, cmd.Actor, booking.UpdatedAt))
	return booking, nil
}

func (s *bookingService) RescheduleBooking(ctx context.Context, cmd RescheduleBookingCommand) (booking Booking, err error) {
	defer func() { s.outcomes.record(ctx, "reschedule", err) }()

	if err := requireActor(cmd.Actor); err != nil {
		return Booking{}, err
	}
	if strings.TrimSpace(cmd.StartDate) == "" || strings.TrimSpace(cmd.EndDate) == "" {
		return Booking{}, fmt.Errorf("%w: start date and end date are required", ErrInvalidInput)
	}

	err = s.uow.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.loadBooking(ctx, cmd.BookingID)
		if err != nil {
			return err
		}
		if current.UserID != cmd.Actor.ID {
			return fmt.Errorf("%w: not authorized to change this booking", ErrForbidden)
		}
		if current.Status != domain.BookingStatusPending {
			return fmt.Errorf("%w: only pending bookings can be rescheduled", ErrConflict)
		}

		start, end, err := s.parseRange(cmd.StartDate, cmd.EndDate)
		if err != nil {
			return err
		}
		free, err := s.availability.IsAvailable(ctx, current.VehicleID, start, end, current.ID)
		if err != nil {
			return err
		}
		if !free {
			return fmt.Errorf("%w: vehicle is already booked for the selected dates", ErrConflict)
		}

		current.Reschedule(start, end)
		current.UpdatedAt = s.clock()
		if err := s.bookings.Update(ctx, current); err != nil {
			return mapRepositoryError(err, "booking")
		}
		booking = current
		return nil
	})
	if err != nil {
		return Booking{}, err
	}

	publishEvent(ctx, s.events, s.logger, bookingEvent(EventBookingRescheduled, booking, cmd.Actor, booking.UpdatedAt))
	return booking, nil
}

func (s *bookingService) TransitionBooking(ctx context.Context, cmd TransitionBookingCommand) (booking Booking, err error) {
	defer func() { s.outcomes.record(ctx, "transition", err) }()

	if err := requireAdmin(cmd.Actor); err != nil {
		return Booking{}, err
	}
	if !cmd.Status.Valid() {
		return Booking{}, fmt.Errorf("%w: invalid status value", ErrInvalidInput)
	}
	reason, err := s.cleanReason(cmd.Reason)
	if err != nil {
		return Booking{}, err
	}

	err = s.uow.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.loadBooking(ctx, cmd.BookingID)
		if err != nil {
			return err
		}
		if !current.Status.CanTransitionTo(cmd.Status) {
			return fmt.Errorf("%w: booking cannot move from %s to %s", ErrConflict, current.Status, cmd.Status)
		}
		now := s.clock()
		if cmd.Status == domain.BookingStatusCancelled {
			if reason == "" {
				reason = adminCancellationReason
			}
			current.Cancel(reason, now)
		} else {
			current.Status = cmd.Status
			current.UpdatedAt = now
		}
		if err := s.bookings.Update(ctx, current); err != nil {
			return mapRepositoryError(err, "booking")
		}
		booking = current
		return nil
	})
	if err != nil {
		return Booking{}, err
	}

	publishEvent(ctx, s.events, s.logger, bookingEvent(EventBookingStatusSet, booking, cmd.Actor, booking.UpdatedAt))
	return booking, nil
}

func (s *bookingService) ForceSetBookingStatus(ctx context.Context, cmd ForceSetBookingStatusCommand) (booking Booking, err error) {
	defer func() { s.outcomes.record(ctx, "force_set_status", err) }()

	if err := requireAdmin(cmd.Actor); err != nil {
		return Booking{}, err
	}
	status, err := domain.ParseBookingStatus(cmd.Status)
	if err != nil {
		return Booking{}, fmt.Errorf("%w: invalid status value", ErrInvalidInput)
	}

	var previous domain.BookingStatus
	err = s.uow.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.loadBooking(ctx, cmd.BookingID)
		if err != nil {
			return err
		}
		previous = current.Status
		current.Status = status
		current.UpdatedAt = s.clock()
		if err := s.bookings.Update(ctx, current); err != nil {
			return mapRepositoryError(err, "booking")
		}
		booking = current
		return nil
	})
	if err != nil {
		return Booking{}, err
	}

	s.logger(ctx, "booking.status_forced", map[string]any{
		"bookingId": booking.ID,
		"from":      string(previous),
		"to":        string(booking.Status),
		"actorId":   cmd.Actor.ID,
	})
	event := bookingEvent(EventBookingStatusSet, booking, cmd.Actor, booking.UpdatedAt)
	event.Metadata = map[string]any{"previousStatus": string(previous), "forced": true}
	publishEvent(ctx, s.events, s.logger, event)
	return booking, nil
}

func (s *bookingService) ListBookings(ctx context.Context, actor Actor, filter BookingListFilter) ([]Booking, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	var query domain.BookingFilter
	if raw := strings.TrimSpace(filter.Status); raw != "" {
		status, err := domain.ParseBookingStatus(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid status filter", ErrInvalidInput)
		}
		query.Status = &status
	}
	bookings, err := s.bookings.List(ctx, query)
	if err != nil {
		return nil, mapRepositoryError(err, "booking")
	}
	return bookings, nil
}

func (s *bookingService) loadBooking(ctx context.Context, bookingID string) (Booking, error) {
	bookingID = strings.TrimSpace(bookingID)
	if bookingID == "" {
		return Booking{}, fmt.Errorf("%w: booking id is required", ErrInvalidInput)
	}
	booking, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return Booking{}, mapRepositoryError(err, "booking")
	}
	return booking, nil
}

// parseRange validates a requested rental range against today in the booking location.
func (s *bookingService) parseRange(rawStart, rawEnd string) (domain.Date, domain.Date, error) {
	start, err := domain.ParseDate(rawStart)
	if err != nil {
		return domain.Date{}, domain.Date{}, fmt.Errorf("%w: start date: %v", ErrInvalidInput, err)
	}
	end, err := domain.ParseDate(rawEnd)
	if err != nil {
		return domain.Date{}, domain.Date{}, fmt.Errorf("%w: end date: %v", ErrInvalidInput, err)
	}
	today := domain.DateOf(s.clock().In(s.location))
	if start.Before(today) {
		return domain.Date{}, domain.Date{}, fmt.Errorf("%w: start date cannot be in the past", ErrInvalidInput)
	}
	if !end.After(start) {
		return domain.Date{}, domain.Date{}, fmt.Errorf("%w: end date must be after start date", ErrInvalidInput)
	}
	return start, end, nil
}

func (s *bookingService) cleanReason(raw string) (string, error) {
	reason := plainText(s.sanitizer, raw)
	if len(reason) > maxCancellationReasonLen {
		return "", fmt.Errorf("%w: cancellation reason must be at most %d characters", ErrInvalidInput, maxCancellationReasonLen)
	}
	return reason, nil
}

// plainText strips markup and returns the remaining text unescaped.
func plainText(policy *bluemonday.Policy, raw string) string {
	return strings.TrimSpace(html.UnescapeString(policy.Sanitize(raw)))
}

func requireActor(actor Actor) error {
	if strings.TrimSpace(actor.ID) == "" {
		return fmt.Errorf("%w: authentication required", ErrForbidden)
	}
	return nil
}

func requireAdmin(actor Actor) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if !actor.IsAdmin {
		return fmt.Errorf("%w: admin role required", ErrForbidden)
	}
	return nil
}

func ensurePrefixed(prefix, id string) string {
	id = strings.TrimSpace(id)
	if strings.HasPrefix(id, prefix) {
		return id
	}
	return prefix + id
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
