package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/rentwheel/api/internal/domain"
	"github.com/rentwheel/api/internal/repositories"
)

type countingHealthRepository struct {
	mu     sync.Mutex
	report domain.SystemHealthReport
	err    error
	calls  int
}

func (r *countingHealthRepository) Collect(context.Context) (domain.SystemHealthReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.report, r.err
}

func (r *countingHealthRepository) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

var _ repositories.HealthRepository = (*countingHealthRepository)(nil)

func TestHealthReportStampsBuildInfo(t *testing.T) {
	started := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	now := started.Add(90 * time.Second)
	repo := &countingHealthRepository{report: domain.SystemHealthReport{
		Checks: map[string]domain.SystemHealthCheck{"firestore": {Status: domain.HealthStatusOK}},
	}}

	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: repo,
		Clock:            func() time.Time { return now },
		Build:            BuildInfo{Version: "2.4.0", CommitSHA: "9f1c2e", Environment: "staging", StartedAt: started},
	})
	require.NoError(t, err)

	report, err := svc.HealthReport(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.HealthStatusOK, report.Status)
	assert.Equal(t, "2.4.0", report.Version)
	assert.Equal(t, "9f1c2e", report.CommitSHA)
	assert.Equal(t, "staging", report.Environment)
	assert.Equal(t, 90*time.Second, report.Uptime)
	assert.True(t, report.GeneratedAt.Equal(now))
}

func TestHealthReportDerivesStatusFromChecks(t *testing.T) {
	cases := []struct {
		name   string
		checks map[string]domain.SystemHealthCheck
		want   string
	}{
		{"no checks", nil, domain.HealthStatusOK},
		{"broker degraded", map[string]domain.SystemHealthCheck{
			"firestore": {Status: domain.HealthStatusOK},
			"broker":    {Status: domain.HealthStatusDegraded},
		}, domain.HealthStatusDegraded},
		{"store down", map[string]domain.SystemHealthCheck{
			"firestore": {Status: domain.HealthStatusError},
			"broker":    {Status: domain.HealthStatusDegraded},
		}, domain.HealthStatusError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, err := NewSystemService(SystemServiceDeps{
				HealthRepository: &countingHealthRepository{report: domain.SystemHealthReport{Checks: tc.checks}},
			})
			require.NoError(t, err)
			report, err := svc.HealthReport(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tc.want, report.Status)
			assert.NotNil(t, report.Checks)
		})
	}
}

func TestHealthReportKeepsRepositoryStatus(t *testing.T) {
	repo := &countingHealthRepository{report: domain.SystemHealthReport{Status: domain.HealthStatusError, Version: "probe"}}
	svc, err := NewSystemService(SystemServiceDeps{HealthRepository: repo, Build: BuildInfo{Version: "build"}})
	require.NoError(t, err)

	report, err := svc.HealthReport(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.HealthStatusError, report.Status)
	assert.Equal(t, "probe", report.Version)
}

func TestHealthReportCachesWithinTTL(t *testing.T) {
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	repo := &countingHealthRepository{report: domain.SystemHealthReport{Status: domain.HealthStatusOK}}
	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: repo,
		Clock:            func() time.Time { return now },
		CacheTTL:         5 * time.Second,
	})
	require.NoError(t, err)

	_, err = svc.HealthReport(context.Background())
	require.NoError(t, err)
	now = now.Add(4 * time.Second)
	report, err := svc.HealthReport(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, repo.callCount())
	assert.Equal(t, 4*time.Second, report.Uptime)

	now = now.Add(time.Second)
	_, err = svc.HealthReport(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, repo.callCount())
}

func TestHealthReportPropagatesCollectFailure(t *testing.T) {
	boom := errors.New("collect failed")
	svc, err := NewSystemService(SystemServiceDeps{HealthRepository: &countingHealthRepository{err: boom}, CacheTTL: time.Minute})
	require.NoError(t, err)

	_, err = svc.HealthReport(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestNewSystemServiceRequiresRepository(t *testing.T) {
	_, err := NewSystemService(SystemServiceDeps{})
	require.Error(t, err)
}
