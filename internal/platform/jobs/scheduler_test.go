package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/rentwheel/api/internal/services"
)

func TestSchedulerRunsTaskUntilStopped(t *testing.T) {
	var runs atomic.Int32
	scheduler, err := NewScheduler(zap.NewNop(), Task{
		Name:     "tick",
		Interval: 5 * time.Millisecond,
		Run: func(context.Context) error {
			runs.Add(1)
			return errors.New("ignored")
		},
	})
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	scheduler.Start(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	scheduler.Stop()

	if runs.Load() < 3 {
		t.Fatalf("expected at least 3 runs, got %d", runs.Load())
	}
	after := runs.Load()
	time.Sleep(20 * time.Millisecond)
	if runs.Load() != after {
		t.Fatalf("task kept running after Stop")
	}
}

func TestNewSchedulerValidatesTasks(t *testing.T) {
	if _, err := NewScheduler(nil, Task{Name: "x", Interval: time.Second}); err == nil {
		t.Fatalf("expected error for missing run func")
	}
	if _, err := NewScheduler(nil, Task{Name: "x", Run: func(context.Context) error { return nil }}); err == nil {
		t.Fatalf("expected error for zero interval")
	}
}

type stubPayments struct {
	services.PaymentService
	cmds []services.ReconcilePaymentsCommand
}

func (s *stubPayments) ReconcilePayments(_ context.Context, cmd services.ReconcilePaymentsCommand) (services.ReconcileResult, error) {
	s.cmds = append(s.cmds, cmd)
	return services.ReconcileResult{Scanned: 2, Repaired: 1, Skipped: 1}, nil
}

func TestReconcileTaskPassesBatchSize(t *testing.T) {
	payments := &stubPayments{}
	task, err := ReconcileTask(payments, ReconcileConfig{Interval: time.Minute, BatchSize: 25}, nil)
	if err != nil {
		t.Fatalf("ReconcileTask: %v", err)
	}
	if err := task.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(payments.cmds) != 1 || payments.cmds[0].Limit != 25 {
		t.Fatalf("unexpected reconcile commands %#v", payments.cmds)
	}
	if task.Interval != time.Minute {
		t.Fatalf("unexpected interval %v", task.Interval)
	}
}

type countingPurger struct {
	limits []int
	err    error
}

func (p *countingPurger) PurgeExpired(_ context.Context, _ time.Time, limit int) (int, error) {
	p.limits = append(p.limits, limit)
	return 2, p.err
}

func TestPurgeTaskPassesBatchSize(t *testing.T) {
	purger := &countingPurger{}
	task, err := PurgeTask("purge", purger, time.Minute, 50, nil)
	if err != nil {
		t.Fatalf("PurgeTask: %v", err)
	}
	if err := task.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(purger.limits) != 1 || purger.limits[0] != 50 {
		t.Fatalf("unexpected limits %v", purger.limits)
	}

	purger.err = errors.New("firestore down")
	if err := task.Run(context.Background()); err == nil {
		t.Fatalf("expected purge error to surface")
	}

	if _, err := PurgeTask("purge", nil, time.Minute, 50, nil); err == nil {
		t.Fatalf("expected error for missing purger")
	}
}
