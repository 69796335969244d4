package repository

import (
	"context"
	"errors"
	"fmt"
	bookingserrors "reservo/internal/bookings/errors"
	"reservo/pkg/config"
	mongotx "reservo/pkg/db/mongo"
	"reservo/pkg/model"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName = "Bookings"
)

// activeStatuses are the statuses that count against availability.
var activeStatuses = []string{model.StatusPending, model.StatusConfirmed}

type mongoBookingRepository struct {
	cfg        *config.Config
	db         *mongo.Database
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

type BookingRepository interface {
	Create(ctx context.Context, booking *model.Booking) error
	FindByID(ctx context.Context, id string) (*model.Booking, error)
	CountOverlapping(ctx context.Context, subject model.EntityRef, from, to time.Time, excludeID string) (int64, error)
	UpdateStatus(ctx context.Context, id string, status string, clearExpiry bool, notStatus string) error
	UpdateTimes(ctx context.Context, id string, from, to time.Time) error
	FindByBookable(ctx context.Context, subject model.EntityRef, filter model.ListFilter, limit int, offset int64) ([]*model.Booking, error)
	CountByBookable(ctx context.Context, subject model.EntityRef, filter model.ListFilter) (int64, error)
	FindByBooker(ctx context.Context, actor model.EntityRef, filter model.ListFilter, limit int, offset int64) ([]*model.Booking, error)
	CountByBooker(ctx context.Context, actor model.EntityRef, filter model.ListFilter) (int64, error)
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

func NewMongoBookingRepository(cfg *config.Config) BookingRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoBookingRepository{
		cfg:        cfg,
		db:         db,
		collection: db.Collection(CollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

// withTimeout wraps the context with a timeout unless already inside a
// transaction; a SessionContext cannot be wrapped without breaking
// transaction semantics.
func (r *mongoBookingRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}

	deadline, hasDeadline := ctx.Deadline()
	if hasDeadline && time.Until(deadline) < timeout {
		return context.WithTimeout(ctx, time.Until(deadline))
	}

	return context.WithTimeout(ctx, timeout)
}

func (r *mongoBookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}
	result, err := r.collection.InsertOne(ctx, booking)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		booking.ID = oid.Hex()
	}
	return nil
}

func (r *mongoBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}

	var booking model.Booking
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&booking)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}

	return &booking, nil
}

// CountOverlapping counts pending and confirmed bookings of subject whose
// [start_time, end_time) interval intersects [from, to). The three clauses
// cover: existing starts inside the range, existing ends inside the range,
// existing spans the whole range. excludeID omits one booking from the scan,
// used when a booking's own dates are being changed.
func (r *mongoBookingRepository) CountOverlapping(ctx context.Context, subject model.EntityRef, from, to time.Time, excludeID string) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"bookable_type": subject.Kind,
		"bookable_id":   subject.ID,
		"status":        bson.M{"$in": activeStatuses},
		"$or": []bson.M{
			{"start_time": bson.M{"$gte": from, "$lt": to}},
			{"end_time": bson.M{"$gt": from, "$lte": to}},
			{"start_time": bson.M{"$lte": from}, "end_time": bson.M{"$gte": to}},
		},
	}

	if excludeID != "" {
		objectID, err := primitive.ObjectIDFromHex(excludeID)
		if err != nil {
			return 0, fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, excludeID)
		}
		filter["_id"] = bson.M{"$ne": objectID}
	}

	count, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count overlapping bookings: %w", err)
	}
	return count, nil
}

// UpdateStatus flips the booking's status in a single atomic update. When
// notStatus is set the filter excludes rows currently in that status, so a
// concurrent writer that flipped the row first makes this update match
// nothing. A miss is reported as ErrNotFound; the caller re-reads to tell a
// lost race from a missing booking.
func (r *mongoBookingRepository) UpdateStatus(ctx context.Context, id string, status string, clearExpiry bool, notStatus string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}

	filter := bson.M{"_id": objectID}
	if notStatus != "" {
		filter["status"] = bson.M{"$ne": notStatus}
	}

	update := bson.M{"$set": bson.M{"status": status}}
	if clearExpiry {
		update["$unset"] = bson.M{"expires_at": ""}
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	if result.MatchedCount == 0 {
		return bookingserrors.ErrNotFound
	}
	return nil
}

// UpdateTimes moves a booking's interval. Cancelled rows never match: a
// booking cancelled or swept after the caller loaded it keeps its interval.
func (r *mongoBookingRepository) UpdateTimes(ctx context.Context, id string, from, to time.Time) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}

	filter := bson.M{
		"_id":    objectID,
		"status": bson.M{"$ne": model.StatusCancelled},
	}
	update := bson.M{"$set": bson.M{
		"start_time": from,
		"end_time":   to,
	}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update booking times: %w", err)
	}
	if result.MatchedCount == 0 {
		return bookingserrors.ErrNotFound
	}
	return nil
}

func (r *mongoBookingRepository) FindByBookable(ctx context.Context, subject model.EntityRef, filter model.ListFilter, limit int, offset int64) ([]*model.Booking, error) {
	return r.find(ctx, r.bookableFilter(subject, filter), limit, offset)
}

func (r *mongoBookingRepository) CountByBookable(ctx context.Context, subject model.EntityRef, filter model.ListFilter) (int64, error) {
	return r.count(ctx, r.bookableFilter(subject, filter))
}

func (r *mongoBookingRepository) FindByBooker(ctx context.Context, actor model.EntityRef, filter model.ListFilter, limit int, offset int64) ([]*model.Booking, error) {
	return r.find(ctx, r.bookerFilter(actor, filter), limit, offset)
}

func (r *mongoBookingRepository) CountByBooker(ctx context.Context, actor model.EntityRef, filter model.ListFilter) (int64, error) {
	return r.count(ctx, r.bookerFilter(actor, filter))
}

func (r *mongoBookingRepository) find(ctx context.Context, filter bson.M, limit int, offset int64) ([]*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "start_time", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find bookings: %w", err)
	}
	defer cursor.Close(ctx)

	var bookings []*model.Booking
	if err = cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("failed to decode bookings: %w", err)
	}

	return bookings, nil
}

func (r *mongoBookingRepository) count(ctx context.Context, filter bson.M) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count bookings: %w", err)
	}
	return count, nil
}

func (r *mongoBookingRepository) bookableFilter(subject model.EntityRef, filter model.ListFilter) bson.M {
	out := bson.M{
		"bookable_type": subject.Kind,
		"bookable_id":   subject.ID,
	}
	return applyWindowFilter(out, filter)
}

func (r *mongoBookingRepository) bookerFilter(actor model.EntityRef, filter model.ListFilter) bson.M {
	out := bson.M{
		"booked_by_type": actor.Kind,
		"booked_by_id":   actor.ID,
	}
	return applyWindowFilter(out, filter)
}

// applyWindowFilter selects bookings whose interval touches the window: any
// booking ending at or after From and starting at or before To, not only
// bookings fully contained in the window.
func applyWindowFilter(out bson.M, filter model.ListFilter) bson.M {
	if filter.From != nil {
		out["end_time"] = bson.M{"$gte": *filter.From}
	}
	if filter.To != nil {
		out["start_time"] = bson.M{"$lte": *filter.To}
	}
	if filter.Status != "" {
		out["status"] = filter.Status
	}
	return out
}

// SweepExpired cancels every pending booking whose hold deadline has passed.
// The pending-status predicate makes re-sweeps and races with confirm safe:
// once another writer flips the status, the row no longer matches.
func (r *mongoBookingRepository) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{
		"status":     model.StatusPending,
		"expires_at": bson.M{"$lt": now},
	}
	update := bson.M{"$set": bson.M{"status": model.StatusCancelled}}

	result, err := r.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired bookings: %w", err)
	}
	return result.ModifiedCount, nil
}

func (r *mongoBookingRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
