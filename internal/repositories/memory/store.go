// Package memory implements the repositories on process memory. It backs local development and
// service tests; units of work are serialised behind one lock and rolled back on error.
package memory

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	domain "github.com/rentwheel/api/internal/domain"
	"github.com/rentwheel/api/internal/repositories"
)

// NotFoundError reports a missing record.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("memory: %s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) IsNotFound() bool    { return true }
func (e *NotFoundError) IsConflict() bool    { return false }
func (e *NotFoundError) IsUnavailable() bool { return false }

// ErrClosed is returned after Close.
var ErrClosed = errors.New("memory: store is closed")

type state struct {
	vehicles       map[string]domain.Vehicle
	bookings       map[string]domain.Booking
	references     map[string]string
	payments       map[string]domain.Payment
	transactionIDs map[string]string
	paidBookings   map[string]string
}

func newState() state {
	return state{
		vehicles:       make(map[string]domain.Vehicle),
		bookings:       make(map[string]domain.Booking),
		references:     make(map[string]string),
		payments:       make(map[string]domain.Payment),
		transactionIDs: make(map[string]string),
		paidBookings:   make(map[string]string),
	}
}

func (s state) clone() state {
	return state{
		vehicles:       maps.Clone(s.vehicles),
		bookings:       maps.Clone(s.bookings),
		references:     maps.Clone(s.references),
		payments:       maps.Clone(s.payments),
		transactionIDs: maps.Clone(s.transactionIDs),
		paidBookings:   maps.Clone(s.paidBookings),
	}
}

// Store is an in-memory Registry.
type Store struct {
	mu     sync.Mutex
	data   state
	closed bool
}

var _ repositories.Registry = (*Store)(nil)

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{data: newState()}
}

type txKey struct{}

// RunInTx runs fn holding the store lock. Any error restores the state seen before fn started.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return errors.New("memory: unit of work function is nil")
	}
	if s.inTx(ctx) {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	snapshot := s.data.clone()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// with runs fn against the state, taking the lock unless ctx is already inside a unit of work.
func (s *Store) with(ctx context.Context, fn func(*state) error) error {
	if s.inTx(ctx) {
		return fn(&s.data)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return fn(&s.data)
}

// Close marks the store unusable.
func (s *Store) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Vehicles returns the vehicle repository.
func (s *Store) Vehicles() repositories.VehicleRepository { return vehicleRepository{s} }

// Bookings returns the booking repository.
func (s *Store) Bookings() repositories.BookingRepository { return bookingRepository{s} }

// Payments returns the payment repository.
func (s *Store) Payments() repositories.PaymentRepository { return paymentRepository{s} }

// Stats returns the aggregate repository.
func (s *Store) Stats() repositories.StatsRepository { return statsRepository{s} }
