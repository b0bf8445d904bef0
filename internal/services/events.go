package services

import (
	"context"
	"time"
)

// Event types emitted by the booking and payment services.
const (
	EventBookingCreated     = "booking.created"
	EventBookingCancelled   = "booking.cancelled"
	EventBookingRescheduled = "booking.rescheduled"
	EventBookingStatusSet   = "booking.status_changed"
	EventPaymentSucceeded   = "payment.succeeded"
	EventPaymentReconciled  = "payment.reconciled"
)

// DomainEvent is the broker payload for booking and payment changes.
type DomainEvent struct {
	Type       string         `json:"type"`
	BookingID  string         `json:"bookingId"`
	Reference  string         `json:"bookingReference,omitempty"`
	VehicleID  string         `json:"vehicleId,omitempty"`
	UserID     string         `json:"userId,omitempty"`
	PaymentID  string         `json:"paymentId,omitempty"`
	Status     string         `json:"status,omitempty"`
	ActorID    string         `json:"actorId,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// EventPublisher delivers domain events to a broker. Publishing happens after the unit of work
// commits; failures are logged and never fail the originating operation.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event DomainEvent) error
}

func bookingEvent(eventType string, booking Booking, actor Actor, at time.Time) DomainEvent {
	return DomainEvent{
		Type:       eventType,
		BookingID:  booking.ID,
		Reference:  booking.Reference,
		VehicleID:  booking.VehicleID,
		UserID:     booking.UserID,
		PaymentID:  booking.PaymentID,
		Status:     string(booking.Status),
		ActorID:    actor.ID,
		OccurredAt: at,
	}
}

func publishEvent(ctx context.Context, publisher EventPublisher, logger func(context.Context, string, map[string]any), event DomainEvent) {
	if publisher == nil {
		return
	}
	if err := publisher.PublishEvent(ctx, event); err != nil {
		logger(ctx, "event_publish_failed", map[string]any{
			"eventType": event.Type,
			"bookingId": event.BookingID,
			"error":     err.Error(),
		})
	}
}
