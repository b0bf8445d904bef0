package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/rentwheel/api/internal/platform/auth"
	"github.com/rentwheel/api/internal/services"
)

var errStubNotImplemented = errors.New("not implemented")

type stubVehicleService struct {
	listFn   func(context.Context, services.VehicleListFilter) ([]services.Vehicle, error)
	getFn    func(context.Context, string) (services.Vehicle, error)
	createFn func(context.Context, services.UpsertVehicleCommand) (services.Vehicle, error)
	updateFn func(context.Context, services.UpsertVehicleCommand) (services.Vehicle, error)
	deleteFn func(context.Context, services.Actor, string) error
	uploadFn func(context.Context, services.VehicleImageUploadCommand) (services.VehicleImageUpload, error)
}

func (s *stubVehicleService) ListVehicles(ctx context.Context, filter services.VehicleListFilter) ([]services.Vehicle, error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return nil, nil
}

func (s *stubVehicleService) GetVehicle(ctx context.Context, id string) (services.Vehicle, error) {
	if s.getFn != nil {
		return s.getFn(ctx, id)
	}
	return services.Vehicle{}, errStubNotImplemented
}

func (s *stubVehicleService) CreateVehicle(ctx context.Context, cmd services.UpsertVehicleCommand) (services.Vehicle, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Vehicle{}, errStubNotImplemented
}

func (s *stubVehicleService) UpdateVehicle(ctx context.Context, cmd services.UpsertVehicleCommand) (services.Vehicle, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return services.Vehicle{}, errStubNotImplemented
}

func (s *stubVehicleService) DeleteVehicle(ctx context.Context, actor services.Actor, id string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, actor, id)
	}
	return errStubNotImplemented
}

func (s *stubVehicleService) ImageUploadURL(ctx context.Context, cmd services.VehicleImageUploadCommand) (services.VehicleImageUpload, error) {
	if s.uploadFn != nil {
		return s.uploadFn(ctx, cmd)
	}
	return services.VehicleImageUpload{}, errStubNotImplemented
}

type stubBookingService struct {
	createFn     func(context.Context, services.CreateBookingCommand) (services.Booking, error)
	listMineFn   func(context.Context, services.Actor) ([]services.Booking, error)
	getFn        func(context.Context, services.Actor, string) (services.Booking, error)
	cancelFn     func(context.Context, services.CancelBookingCommand) (services.Booking, error)
	rescheduleFn func(context.Context, services.RescheduleBookingCommand) (services.Booking, error)
	transitionFn func(context.Context, services.TransitionBookingCommand) (services.Booking, error)
	forceFn      func(context.Context, services.ForceSetBookingStatusCommand) (services.Booking, error)
	listFn       func(context.Context, services.Actor, services.BookingListFilter) ([]services.Booking, error)
}

func (s *stubBookingService) CreateBooking(ctx context.Context, cmd services.CreateBookingCommand) (services.Booking, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Booking{}, errStubNotImplemented
}

func (s *stubBookingService) ListMyBookings(ctx context.Context, actor services.Actor) ([]services.Booking, error) {
	if s.listMineFn != nil {
		return s.listMineFn(ctx, actor)
	}
	return nil, nil
}

func (s *stubBookingService) GetBooking(ctx context.Context, actor services.Actor, id string) (services.Booking, error) {
	if s.getFn != nil {
		return s.getFn(ctx, actor, id)
	}
	return services.Booking{}, errStubNotImplemented
}

func (s *stubBookingService) CancelBooking(ctx context.Context, cmd services.CancelBookingCommand) (services.Booking, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, cmd)
	}
	return services.Booking{}, errStubNotImplemented
}

func (s *stubBookingService) RescheduleBooking(ctx context.Context, cmd services.RescheduleBookingCommand) (services.Booking, error) {
	if s.rescheduleFn != nil {
		return s.rescheduleFn(ctx, cmd)
	}
	return services.Booking{}, errStubNotImplemented
}

func (s *stubBookingService) TransitionBooking(ctx context.Context, cmd services.TransitionBookingCommand) (services.Booking, error) {
	if s.transitionFn != nil {
		return s.transitionFn(ctx, cmd)
	}
	return services.Booking{}, errStubNotImplemented
}

func (s *stubBookingService) ForceSetBookingStatus(ctx context.Context, cmd services.ForceSetBookingStatusCommand) (services.Booking, error) {
	if s.forceFn != nil {
		return s.forceFn(ctx, cmd)
	}
	return services.Booking{}, errStubNotImplemented
}

func (s *stubBookingService) ListBookings(ctx context.Context, actor services.Actor, filter services.BookingListFilter) ([]services.Booking, error) {
	if s.listFn != nil {
		return s.listFn(ctx, actor, filter)
	}
	return nil, nil
}

type stubPaymentService struct {
	processFn   func(context.Context, services.ProcessPaymentCommand) (services.Payment, error)
	getFn       func(context.Context, services.Actor, string) (services.Payment, error)
	reconcileFn func(context.Context, services.ReconcilePaymentsCommand) (services.ReconcileResult, error)
}

func (s *stubPaymentService) ProcessPayment(ctx context.Context, cmd services.ProcessPaymentCommand) (services.Payment, error) {
	if s.processFn != nil {
		return s.processFn(ctx, cmd)
	}
	return services.Payment{}, errStubNotImplemented
}

func (s *stubPaymentService) GetPaymentByBooking(ctx context.Context, actor services.Actor, id string) (services.Payment, error) {
	if s.getFn != nil {
		return s.getFn(ctx, actor, id)
	}
	return services.Payment{}, errStubNotImplemented
}

func (s *stubPaymentService) ReconcilePayments(ctx context.Context, cmd services.ReconcilePaymentsCommand) (services.ReconcileResult, error) {
	if s.reconcileFn != nil {
		return s.reconcileFn(ctx, cmd)
	}
	return services.ReconcileResult{}, errStubNotImplemented
}

type stubStatsService struct {
	stats services.DashboardStats
	err   error
}

func (s *stubStatsService) DashboardStats(context.Context, services.Actor) (services.DashboardStats, error) {
	return s.stats, s.err
}

var (
	_ services.VehicleService = (*stubVehicleService)(nil)
	_ services.BookingService = (*stubBookingService)(nil)
	_ services.PaymentService = (*stubPaymentService)(nil)
	_ services.StatsService   = (*stubStatsService)(nil)
)

func newJSONRequest(method, target, body string) *http.Request {
	if body == "" {
		return httptest.NewRequest(method, target, nil)
	}
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func asUser(req *http.Request, uid string, roles ...string) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: uid, Roles: roles}))
}
