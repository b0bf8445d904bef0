package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// PaymentStatus describes the outcome of a payment attempt.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusSuccess PaymentStatus = "success"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// PaymentMethod is the instrument the customer selected.
type PaymentMethod string

const (
	PaymentMethodCash       PaymentMethod = "cash"
	PaymentMethodCard       PaymentMethod = "card"
	PaymentMethodUPI        PaymentMethod = "upi"
	PaymentMethodNetBanking PaymentMethod = "netbanking"
	PaymentMethodDummy      PaymentMethod = "dummy"
)

var paymentMethods = []PaymentMethod{
	PaymentMethodCash,
	PaymentMethodCard,
	PaymentMethodUPI,
	PaymentMethodNetBanking,
	PaymentMethodDummy,
}

// ParsePaymentMethod validates a method, defaulting blank input to the dummy method.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return PaymentMethodDummy, nil
	}
	method := PaymentMethod(value)
	if !slices.Contains(paymentMethods, method) {
		return "", fmt.Errorf("invalid payment method %q", value)
	}
	return method, nil
}

// Payment records one payment attempt against a booking.
type Payment struct {
	ID              string
	BookingID       string
	UserID          string
	Amount          int64
	Currency        string
	Method          PaymentMethod
	Status          PaymentStatus
	TransactionID   string
	GatewayResponse map[string]any
	PaidAt          *time.Time
	FailedAt        *time.Time
	FailureReason   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// MarkSucceeded moves the payment to success. PaidAt is only recorded on the first transition.
func (p *Payment) MarkSucceeded(at time.Time) {
	if p.Status != PaymentStatusSuccess && p.PaidAt == nil {
		paidAt := at
		p.PaidAt = &paidAt
	}
	p.Status = PaymentStatusSuccess
	p.UpdatedAt = at
}

// MarkFailed moves the payment to failed. FailedAt and the reason are only recorded once.
func (p *Payment) MarkFailed(reason string, at time.Time) {
	if p.Status != PaymentStatusFailed && p.FailedAt == nil {
		failedAt := at
		p.FailedAt = &failedAt
		p.FailureReason = reason
	}
	p.Status = PaymentStatusFailed
	p.UpdatedAt = at
}
