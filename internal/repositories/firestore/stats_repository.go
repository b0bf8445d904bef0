package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/api/iterator"

	domain "github.com/rentwheel/api/internal/domain"
	pfirestore "github.com/rentwheel/api/internal/platform/firestore"
)

const aggregateAlias = "value"

// StatsRepository answers dashboard questions with server-side aggregation queries.
type StatsRepository struct {
	vehicles *pfirestore.Collection[vehicleDocument]
	bookings *pfirestore.Collection[bookingDocument]
	payments *pfirestore.Collection[paymentDocument]
}

// NewStatsRepository constructs the aggregate repository.
func NewStatsRepository(provider *pfirestore.Provider) *StatsRepository {
	return &StatsRepository{
		vehicles: pfirestore.NewCollection[vehicleDocument](provider, vehiclesCollection),
		bookings: pfirestore.NewCollection[bookingDocument](provider, bookingsCollection),
		payments: pfirestore.NewCollection[paymentDocument](provider, paymentsCollection),
	}
}

func (r *StatsRepository) CountVehicles(ctx context.Context, filter domain.VehicleFilter) (int64, error) {
	coll, err := r.vehicles.CollectionRef(ctx)
	if err != nil {
		return 0, err
	}
	q := applyVehicleFilter(coll.Query, filter)
	return aggregate(ctx, "vehicles.count", q.NewAggregationQuery().WithCount(aggregateAlias))
}

func (r *StatsRepository) CountBookings(ctx context.Context, filter domain.BookingFilter) (int64, error) {
	coll, err := r.bookings.CollectionRef(ctx)
	if err != nil {
		return 0, err
	}
	q := coll.Query
	if filter.UserID != "" {
		q = q.Where("userId", "==", filter.UserID)
	}
	if filter.VehicleID != "" {
		q = q.Where("vehicleId", "==", filter.VehicleID)
	}
	if filter.Status != nil {
		q = q.Where("status", "==", string(*filter.Status))
	}
	return aggregate(ctx, "bookings.count", q.NewAggregationQuery().WithCount(aggregateAlias))
}

// CountBookingUsers counts distinct booking owners. Firestore has no distinct aggregation, so
// only the userId field is streamed.
func (r *StatsRepository) CountBookingUsers(ctx context.Context) (int64, error) {
	coll, err := r.bookings.CollectionRef(ctx)
	if err != nil {
		return 0, err
	}
	iter := coll.Select("userId").Documents(ctx)
	defer iter.Stop()

	users := make(map[string]struct{})
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return int64(len(users)), nil
		}
		if err != nil {
			return 0, pfirestore.WrapError("bookings.users", err)
		}
		if uid, ok := snap.Data()["userId"].(string); ok {
			users[uid] = struct{}{}
		}
	}
}

func (r *StatsRepository) SumSuccessfulPayments(ctx context.Context) (int64, error) {
	coll, err := r.payments.CollectionRef(ctx)
	if err != nil {
		return 0, err
	}
	q := coll.Where("paymentStatus", "==", string(domain.PaymentStatusSuccess))
	return aggregate(ctx, "payments.sum", q.NewAggregationQuery().WithSum("amount", aggregateAlias))
}

func aggregate(ctx context.Context, op string, q *firestore.AggregationQuery) (int64, error) {
	result, err := q.Get(ctx)
	if err != nil {
		return 0, pfirestore.WrapError(op, err)
	}
	value, ok := result[aggregateAlias].(*firestorepb.Value)
	if !ok {
		return 0, fmt.Errorf("%s: aggregation result missing", op)
	}
	switch v := value.GetValueType().(type) {
	case *firestorepb.Value_IntegerValue:
		return v.IntegerValue, nil
	case *firestorepb.Value_DoubleValue:
		return int64(v.DoubleValue), nil
	case *firestorepb.Value_NullValue:
		return 0, nil
	}
	return 0, fmt.Errorf("%s: unexpected aggregation type %T", op, value.GetValueType())
}
