package jobs

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/rentwheel/api/internal/services"
)

// ReconcileTask repairs bookings left pending after a successful payment.
func ReconcileTask(payments services.PaymentService, cfg ReconcileConfig, logger *zap.Logger) (Task, error) {
	if payments == nil {
		return Task{}, errors.New("jobs: payment service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return Task{
		Name:     "reconcile-payments",
		Interval: cfg.Interval,
		Run: func(ctx context.Context) error {
			result, err := payments.ReconcilePayments(ctx, services.ReconcilePaymentsCommand{Limit: cfg.BatchSize})
			if err != nil {
				return err
			}
			if result.Repaired > 0 || result.Failed > 0 {
				logger.Info("payment reconciliation finished",
					zap.Int("scanned", result.Scanned),
					zap.Int("repaired", result.Repaired),
					zap.Int("skipped", result.Skipped),
					zap.Int("failed", result.Failed),
				)
			}
			return nil
		},
	}, nil
}

// ReconcileConfig tunes the reconcile task.
type ReconcileConfig struct {
	Interval  time.Duration
	BatchSize int
}
