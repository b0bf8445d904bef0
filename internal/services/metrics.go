package services

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const metricNamespace = "github.com/rentwheel/api/internal/services"

// outcomeCounter counts operation results by outcome. A nil counter records nothing.
type outcomeCounter struct {
	counter metric.Int64Counter
}

func newOutcomeCounter(meter metric.Meter, name, description string) outcomeCounter {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(metricNamespace)
	}
	counter, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		return outcomeCounter{}
	}
	return outcomeCounter{counter: counter}
}

func (c outcomeCounter) record(ctx context.Context, operation string, err error) {
	if c.counter == nil {
		return
	}
	c.counter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcomeOf(err)),
	))
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidInput):
		return "invalid"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrDependency):
		return "dependency"
	default:
		return "error"
	}
}
