package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/rentwheel/api/internal/domain"
	"github.com/rentwheel/api/internal/repositories/memory"
)

var (
	testNow   = time.Date(2025, time.May, 20, 4, 30, 0, 0, time.UTC)
	customer  = Actor{ID: "user-1"}
	otherUser = Actor{ID: "user-2"}
	admin     = Actor{ID: "admin-1", IsAdmin: true}
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []DomainEvent
	err    error
}

func (p *recordingPublisher) PublishEvent(_ context.Context, event DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, event := range p.events {
		out = append(out, event.Type)
	}
	return out
}

type fixture struct {
	store    *memory.Store
	bookings BookingService
	payments PaymentService
	events   *recordingPublisher
	vehicle  domain.Vehicle
}

func sequentialIDs(prefix string) func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("%s%04d", prefix, n.Add(1))
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	events := &recordingPublisher{}
	clock := func() time.Time { return testNow }

	vehicle := domain.Vehicle{
		ID:              "veh_swift",
		Name:            "Swift",
		Type:            domain.VehicleTypeCar,
		Brand:           "Maruti",
		Model:           "Swift",
		Year:            2023,
		PricePerDay:     1000,
		FuelType:        domain.FuelTypePetrol,
		Image:           "https://img.example/swift.png",
		SeatingCapacity: 5,
		IsAvailable:     true,
		CreatedAt:       testNow,
		UpdatedAt:       testNow,
	}
	require.NoError(t, store.Vehicles().Insert(context.Background(), vehicle))

	bookings, err := NewBookingService(BookingServiceDeps{
		Vehicles:    store.Vehicles(),
		Bookings:    store.Bookings(),
		UnitOfWork:  store,
		Events:      events,
		Clock:       clock,
		IDGenerator: sequentialIDs("b"),
	})
	require.NoError(t, err)

	payments, err := NewPaymentService(PaymentServiceDeps{
		Bookings:    store.Bookings(),
		Payments:    store.Payments(),
		UnitOfWork:  store,
		Events:      events,
		Clock:       clock,
		IDGenerator: sequentialIDs("p"),
	})
	require.NoError(t, err)

	return &fixture{store: store, bookings: bookings, payments: payments, events: events, vehicle: vehicle}
}

func (f *fixture) book(t *testing.T, actor Actor, start, end string) Booking {
	t.Helper()
	booking, err := f.bookings.CreateBooking(context.Background(), CreateBookingCommand{
		Actor:     actor,
		VehicleID: f.vehicle.ID,
		StartDate: start,
		EndDate:   end,
	})
	require.NoError(t, err)
	return booking
}

func fixedCodes(codes ...string) CodeGenerator {
	var mu sync.Mutex
	i := 0
	return func(time.Time) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		code := codes[min(i, len(codes)-1)]
		i++
		return code, nil
	}
}
