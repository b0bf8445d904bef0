package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// BookingStatus is the closed set of booking lifecycle states.
type BookingStatus string

const (
	// BookingStatusPending is the initial state, awaiting payment.
	BookingStatusPending BookingStatus = "pending"
	// BookingStatusConfirmed indicates a successful payment is linked.
	BookingStatusConfirmed BookingStatus = "confirmed"
	// BookingStatusCancelled is terminal; the dates are released.
	BookingStatusCancelled BookingStatus = "cancelled"
	// BookingStatusCompleted is terminal; the trip finished and the vehicle was returned.
	BookingStatusCompleted BookingStatus = "completed"
)

// BookingStatuses lists every valid status in lifecycle order.
var BookingStatuses = []BookingStatus{
	BookingStatusPending,
	BookingStatusConfirmed,
	BookingStatusCompleted,
	BookingStatusCancelled,
}

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:   {BookingStatusConfirmed, BookingStatusCancelled},
	BookingStatusConfirmed: {BookingStatusCompleted, BookingStatusCancelled},
}

// ParseBookingStatus validates a raw status value.
func ParseBookingStatus(value string) (BookingStatus, error) {
	status := BookingStatus(strings.ToLower(strings.TrimSpace(value)))
	if !status.Valid() {
		return "", fmt.Errorf("invalid booking status %q", value)
	}
	return status, nil
}

// Valid reports whether s is one of the four lifecycle states.
func (s BookingStatus) Valid() bool {
	return slices.Contains(BookingStatuses, s)
}

// Terminal reports whether no guarded transition leaves s.
func (s BookingStatus) Terminal() bool {
	return s == BookingStatusCancelled || s == BookingStatusCompleted
}

// HoldsVehicle reports whether a booking in state s blocks its dates.
func (s BookingStatus) HoldsVehicle() bool {
	return s == BookingStatusPending || s == BookingStatusConfirmed
}

// CanTransitionTo applies the lifecycle transition table.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	return slices.Contains(bookingTransitions[s], next)
}

// DefaultCancellationReason is recorded when a cancellation carries no reason.
const DefaultCancellationReason = "User cancelled"

// Booking is a date-ranged reservation of one vehicle by one user.
type Booking struct {
	ID                 string
	Reference          string
	UserID             string
	VehicleID          string
	StartDate          Date
	EndDate            Date
	PricePerDay        int64
	TotalDays          int
	TotalPrice         int64
	Status             BookingStatus
	PaymentID          string
	CancellationReason string
	CancelledAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Overlaps reports whether b blocks the inclusive range [start, end]. Ranges that share a single
// day conflict; cancelled and completed bookings never do.
func (b Booking) Overlaps(start, end Date) bool {
	if !b.Status.HoldsVehicle() {
		return false
	}
	return !(b.EndDate.Before(start) || b.StartDate.After(end))
}

// PricingInput flags which pricing source fields changed in a mutation.
type PricingInput uint8

const (
	// PricingInputStartDate marks a start date change.
	PricingInputStartDate PricingInput = 1 << iota
	// PricingInputEndDate marks an end date change.
	PricingInputEndDate
	// PricingInputPricePerDay marks a per-day price change.
	PricingInputPricePerDay
)

// RentalDays returns the billable day count for a range, never less than one.
func RentalDays(start, end Date) int {
	days := start.DaysUntil(end)
	if days < 1 {
		return 1
	}
	return days
}

// RecomputePricing refreshes the derived fields affected by the changed inputs. Total days follow
// the dates; total price follows total days or the per-day price. Untouched fields keep their value.
func (b *Booking) RecomputePricing(changed PricingInput) {
	daysChanged := false
	if changed&(PricingInputStartDate|PricingInputEndDate) != 0 {
		days := RentalDays(b.StartDate, b.EndDate)
		daysChanged = days != b.TotalDays
		b.TotalDays = days
	}
	if daysChanged || changed&PricingInputPricePerDay != 0 {
		b.TotalPrice = int64(b.TotalDays) * b.PricePerDay
	}
}

// Reschedule moves the booking to a new range and reprices it.
func (b *Booking) Reschedule(start, end Date) {
	var changed PricingInput
	if start != b.StartDate {
		changed |= PricingInputStartDate
	}
	if end != b.EndDate {
		changed |= PricingInputEndDate
	}
	b.StartDate = start
	b.EndDate = end
	b.RecomputePricing(changed)
}

// Cancel moves the booking into the cancelled state.
func (b *Booking) Cancel(reason string, at time.Time) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultCancellationReason
	}
	b.Status = BookingStatusCancelled
	b.CancellationReason = reason
	cancelledAt := at
	b.CancelledAt = &cancelledAt
	b.UpdatedAt = at
}

// BookingFilter narrows booking listings. Results are ordered newest first.
type BookingFilter struct {
	UserID    string
	VehicleID string
	Status    *BookingStatus
}
