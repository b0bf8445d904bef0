package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	domain "github.com/rentwheel/api/internal/domain"
	"github.com/rentwheel/api/internal/repositories"
)

// BuildInfo identifies the running binary on health responses.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// SystemServiceDeps wires the readiness reporter.
type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	Clock            func() time.Time
	Build            BuildInfo
	// CacheTTL reuses a collected report for this long. Zero collects on every call.
	CacheTTL time.Duration
}

type systemService struct {
	probes   repositories.HealthRepository
	now      func() time.Time
	build    BuildInfo
	cacheTTL time.Duration

	group  singleflight.Group
	mu     sync.Mutex
	cached *domain.SystemHealthReport
}

var _ SystemService = (*systemService)(nil)

// NewSystemService returns the service behind /readyz. Concurrent readiness probes share one
// dependency sweep.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("system service: health repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	svc := &systemService{
		probes:   deps.HealthRepository,
		now:      func() time.Time { return clock().UTC() },
		build:    deps.Build,
		cacheTTL: deps.CacheTTL,
	}
	if svc.build.StartedAt.IsZero() {
		svc.build.StartedAt = svc.now()
	}
	return svc, nil
}

func (s *systemService) HealthReport(ctx context.Context) (SystemHealthReport, error) {
	if ctx == nil {
		return SystemHealthReport{}, errors.New("system service: context is required")
	}
	if report, ok := s.fresh(); ok {
		return s.stamp(report), nil
	}

	value, err, _ := s.group.Do("readiness", func() (any, error) {
		report, err := s.probes.Collect(ctx)
		if err != nil {
			return SystemHealthReport{}, err
		}
		if report.GeneratedAt.IsZero() {
			report.GeneratedAt = s.now()
		}
		if report.Checks == nil {
			report.Checks = map[string]domain.SystemHealthCheck{}
		}
		if report.Status == "" {
			report.Status = overallStatus(report.Checks)
		}
		s.store(report)
		return report, nil
	})
	if err != nil {
		return SystemHealthReport{}, err
	}
	return s.stamp(value.(SystemHealthReport)), nil
}

func (s *systemService) fresh() (SystemHealthReport, bool) {
	if s.cacheTTL <= 0 {
		return SystemHealthReport{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached == nil || s.now().Sub(s.cached.GeneratedAt) >= s.cacheTTL {
		return SystemHealthReport{}, false
	}
	return *s.cached, true
}

func (s *systemService) store(report SystemHealthReport) {
	if s.cacheTTL <= 0 {
		return
	}
	s.mu.Lock()
	s.cached = &report
	s.mu.Unlock()
}

// stamp fills build metadata the probes do not know about.
func (s *systemService) stamp(report SystemHealthReport) SystemHealthReport {
	if report.Version == "" {
		report.Version = s.build.Version
	}
	if report.CommitSHA == "" {
		report.CommitSHA = s.build.CommitSHA
	}
	if report.Environment == "" {
		report.Environment = s.build.Environment
	}
	report.Uptime = s.now().Sub(s.build.StartedAt)
	return report
}

func overallStatus(checks map[string]domain.SystemHealthCheck) string {
	status := domain.HealthStatusOK
	for _, check := range checks {
		switch {
		case !check.Failed():
		case check.Status == domain.HealthStatusError:
			return domain.HealthStatusError
		default:
			status = domain.HealthStatusDegraded
		}
	}
	return status
}
