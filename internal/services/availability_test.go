package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/rentwheel/api/internal/domain"
)

func TestAvailabilityCheckerExcludesBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	booking := f.book(t, customer, "2025-06-01", "2025-06-03")

	checker, err := NewAvailabilityChecker(f.store.Bookings())
	require.NoError(t, err)

	start := domain.NewDate(2025, time.June, 3)
	end := domain.NewDate(2025, time.June, 5)

	ok, err := checker.IsAvailable(ctx, f.vehicle.ID, start, end, "")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = checker.IsAvailable(ctx, f.vehicle.ID, start, end, booking.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = checker.IsAvailable(ctx, f.vehicle.ID, domain.NewDate(2025, time.June, 4), end, "")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = checker.IsAvailable(ctx, "", start, end, "")
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = checker.IsAvailable(ctx, f.vehicle.ID, domain.Date{}, end, "")
	require.ErrorIs(t, err, ErrInvalidInput)
}
