package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/rentwheel/api/internal/domain"
	"github.com/rentwheel/api/internal/repositories"
)

type availabilityChecker struct {
	bookings repositories.BookingRepository
}

// NewAvailabilityChecker answers availability from the vehicle's holding bookings. Called with a
// unit-of-work context, the read joins that transaction.
func NewAvailabilityChecker(bookings repositories.BookingRepository) (AvailabilityChecker, error) {
	if bookings == nil {
		return nil, errors.New("availability checker: booking repository is required")
	}
	return &availabilityChecker{bookings: bookings}, nil
}

func (c *availabilityChecker) IsAvailable(ctx context.Context, vehicleID string, start, end domain.Date, excludeBookingID string) (bool, error) {
	vehicleID = strings.TrimSpace(vehicleID)
	if vehicleID == "" {
		return false, fmt.Errorf("%w: vehicle id is required", ErrInvalidInput)
	}
	if start.IsZero() || end.IsZero() {
		return false, fmt.Errorf("%w: start and end dates are required", ErrInvalidInput)
	}

	holding, err := c.bookings.ListHolding(ctx, vehicleID)
	if err != nil {
		return false, mapRepositoryError(err, "booking")
	}
	excludeBookingID = strings.TrimSpace(excludeBookingID)
	for _, booking := range holding {
		if excludeBookingID != "" && booking.ID == excludeBookingID {
			continue
		}
		if booking.Overlaps(start, end) {
			return false, nil
		}
	}
	return true, nil
}
