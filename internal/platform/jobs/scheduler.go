package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is a unit of periodic background work.
type Task struct {
	Name     string
	Interval time.Duration
	// Timeout bounds a single run. Zero means one minute.
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Scheduler runs tasks on fixed intervals until stopped.
type Scheduler struct {
	logger *zap.Logger
	tasks  []Task

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewScheduler builds a scheduler. Tasks with a non-positive interval are rejected.
func NewScheduler(logger *zap.Logger, tasks ...Task) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, task := range tasks {
		if task.Run == nil {
			return nil, errors.New("jobs: task run func is required")
		}
		if task.Interval <= 0 {
			return nil, errors.New("jobs: task interval must be positive")
		}
	}
	return &Scheduler{logger: logger, tasks: tasks}, nil
}

// Start launches one goroutine per task. Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	for _, task := range s.tasks {
		s.wg.Add(1)
		go s.loop(runCtx, task)
	}
}

// Stop cancels every task and waits for in-flight runs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.running = false
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, task Task) {
	defer s.wg.Done()
	logger := s.logger.With(zap.String("task", task.Name))
	timeout := task.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}

	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, timeout)
			err := task.Run(runCtx)
			cancel()
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("background task failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}
