//go:build integration

package firestore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	domain "github.com/rentwheel/api/internal/domain"
	"github.com/rentwheel/api/internal/platform/firestore/firestoretest"
	"github.com/rentwheel/api/internal/repositories"
)

var errOverlap = errors.New("overlap")

func TestBookingInsertSerialisesPerVehicle(t *testing.T) {
	provider := firestoretest.Provider(t, "booking-test")
	registry, err := NewRegistry(provider)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	now := time.Date(2025, 5, 20, 9, 0, 0, 0, time.UTC)
	if err := registry.Vehicles().Insert(ctx, domain.Vehicle{ID: "veh_race", PricePerDay: 1000, IsAvailable: true, CreatedAt: now}); err != nil {
		t.Fatalf("insert vehicle: %v", err)
	}

	start := domain.NewDate(2025, time.June, 1)
	end := domain.NewDate(2025, time.June, 3)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			err := registry.RunInTx(ctx, func(ctx context.Context) error {
				if _, err := registry.Vehicles().FindByID(ctx, "veh_race"); err != nil {
					return err
				}
				holding, err := registry.Bookings().ListHolding(ctx, "veh_race")
				if err != nil {
					return err
				}
				for _, b := range holding {
					if b.Overlaps(start, end) {
						return errOverlap
					}
				}
				return registry.Bookings().Insert(ctx, domain.Booking{
					ID:        fmt.Sprintf("bkg_%d", i),
					Reference: fmt.Sprintf("BKRACE%d", i),
					UserID:    fmt.Sprintf("user-%d", i),
					VehicleID: "veh_race",
					StartDate: start,
					EndDate:   end,
					Status:    domain.BookingStatusPending,
					CreatedAt: now,
				})
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, errOverlap):
				conflicts++
			default:
				var repoErr repositories.RepositoryError
				if errors.As(err, &repoErr) && repoErr.IsConflict() {
					conflicts++
					return
				}
				t.Errorf("worker %d: unexpected error %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if successes != 1 || conflicts != workers-1 {
		t.Fatalf("expected exactly one winner, got successes=%d conflicts=%d", successes, conflicts)
	}
}

func TestBookingAndPaymentMarkersIntegration(t *testing.T) {
	provider := firestoretest.Provider(t, "marker-test")
	registry, err := NewRegistry(provider)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := time.Date(2025, 5, 20, 9, 0, 0, 0, time.UTC)
	if err := registry.Vehicles().Insert(ctx, domain.Vehicle{ID: "veh_1", IsAvailable: true, CreatedAt: now}); err != nil {
		t.Fatalf("insert vehicle: %v", err)
	}
	booking := domain.Booking{
		ID:        "bkg_1",
		Reference: "BKDUP",
		UserID:    "user-1",
		VehicleID: "veh_1",
		StartDate: domain.NewDate(2025, time.June, 1),
		EndDate:   domain.NewDate(2025, time.June, 3),
		Status:    domain.BookingStatusPending,
		CreatedAt: now,
	}
	if err := registry.Bookings().Insert(ctx, booking); err != nil {
		t.Fatalf("insert booking: %v", err)
	}

	dup := booking
	dup.ID = "bkg_2"
	var coded *repositories.Error
	if err := registry.Bookings().Insert(ctx, dup); !errors.As(err, &coded) || coded.Code != repositories.ErrorReferenceTaken {
		t.Fatalf("expected reference taken, got %v", err)
	}

	got, err := registry.Bookings().FindByID(ctx, "bkg_1")
	if err != nil {
		t.Fatalf("find booking: %v", err)
	}
	if got.StartDate != booking.StartDate || got.EndDate != booking.EndDate {
		t.Fatalf("dates did not round-trip: %v..%v", got.StartDate, got.EndDate)
	}

	paidAt := now.Add(time.Minute)
	payment := domain.Payment{
		ID:            "pay_1",
		BookingID:     "bkg_1",
		UserID:        "user-1",
		Amount:        2000,
		Status:        domain.PaymentStatusSuccess,
		TransactionID: "TXN1",
		PaidAt:        &paidAt,
		CreatedAt:     paidAt,
	}
	if err := registry.Payments().Insert(ctx, payment); err != nil {
		t.Fatalf("insert payment: %v", err)
	}
	second := payment
	second.ID = "pay_2"
	second.TransactionID = "TXN2"
	if err := registry.Payments().Insert(ctx, second); !errors.As(err, &coded) || coded.Code != repositories.ErrorBookingAlreadyPaid {
		t.Fatalf("expected already paid, got %v", err)
	}

	found, err := registry.Payments().FindSuccessfulByBooking(ctx, "bkg_1")
	if err != nil || found.ID != "pay_1" {
		t.Fatalf("unexpected successful payment %v %v", found.ID, err)
	}

	revenue, err := registry.Stats().SumSuccessfulPayments(ctx)
	if err != nil || revenue != 2000 {
		t.Fatalf("unexpected revenue %d %v", revenue, err)
	}
}
