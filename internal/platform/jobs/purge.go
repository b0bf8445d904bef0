package jobs

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// ExpiredPurger deletes expired records in batches.
type ExpiredPurger interface {
	PurgeExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// PurgeTask removes expired idempotency records on every tick.
func PurgeTask(name string, purger ExpiredPurger, interval time.Duration, batch int, logger *zap.Logger) (Task, error) {
	if purger == nil {
		return Task{}, errors.New("jobs: purger is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return Task{
		Name:     name,
		Interval: interval,
		Run: func(ctx context.Context) error {
			removed, err := purger.PurgeExpired(ctx, time.Now().UTC(), batch)
			if err != nil {
				return err
			}
			if removed > 0 {
				logger.Info("expired records purged", zap.String("task", name), zap.Int("count", removed))
			}
			return nil
		},
	}, nil
}
