package services

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	domain "github.com/rentwheel/api/internal/domain"
	"github.com/rentwheel/api/internal/repositories"
)

const statsConcurrency = 4

// StatsServiceDeps bundles the collaborators required to construct a stats service.
type StatsServiceDeps struct {
	Stats  repositories.StatsRepository
	Logger func(ctx context.Context, event string, fields map[string]any)
}

type statsService struct {
	stats  repositories.StatsRepository
	logger func(context.Context, string, map[string]any)
}

var _ StatsService = (*statsService)(nil)

// NewStatsService wires the dashboard aggregation service.
func NewStatsService(deps StatsServiceDeps) (StatsService, error) {
	if deps.Stats == nil {
		return nil, errors.New("stats service: stats repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &statsService{stats: deps.Stats, logger: logger}, nil
}

func (s *statsService) DashboardStats(ctx context.Context, actor Actor) (DashboardStats, error) {
	if err := requireAdmin(actor); err != nil {
		return DashboardStats{}, err
	}

	available := true
	stats := DashboardStats{
		BookingStatus:  make(map[domain.BookingStatus]int64, len(domain.BookingStatuses)),
		VehiclesByType: make(map[domain.VehicleType]int64, len(domain.VehicleTypes)),
	}
	var mu sync.Mutex

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(statsConcurrency)

	group.Go(func() error {
		n, err := s.stats.CountVehicles(gctx, domain.VehicleFilter{})
		stats.Overview.TotalVehicles = n
		return err
	})
	group.Go(func() error {
		n, err := s.stats.CountVehicles(gctx, domain.VehicleFilter{Available: &available})
		stats.Overview.AvailableVehicles = n
		return err
	})
	group.Go(func() error {
		n, err := s.stats.CountBookings(gctx, domain.BookingFilter{})
		stats.Overview.TotalBookings = n
		return err
	})
	group.Go(func() error {
		n, err := s.stats.CountBookingUsers(gctx)
		stats.Overview.TotalUsers = n
		return err
	})
	group.Go(func() error {
		n, err := s.stats.SumSuccessfulPayments(gctx)
		stats.Overview.TotalRevenue = n
		return err
	})
	for _, status := range domain.BookingStatuses {
		group.Go(func() error {
			n, err := s.stats.CountBookings(gctx, domain.BookingFilter{Status: &status})
			mu.Lock()
			stats.BookingStatus[status] = n
			mu.Unlock()
			return err
		})
	}
	for _, vehicleType := range domain.VehicleTypes {
		group.Go(func() error {
			n, err := s.stats.CountVehicles(gctx, domain.VehicleFilter{Type: &vehicleType})
			mu.Lock()
			stats.VehiclesByType[vehicleType] = n
			mu.Unlock()
			return err
		})
	}

	if err := group.Wait(); err != nil {
		s.logger(ctx, "stats.dashboard_failed", map[string]any{"error": err.Error()})
		return DashboardStats{}, mapRepositoryError(err, "stats")
	}
	return stats, nil
}
