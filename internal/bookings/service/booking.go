package service

import (
	"context"
	"errors"
	"fmt"
	bookingserrors "reservo/internal/bookings/errors"
	"reservo/internal/bookings/events"
	"reservo/internal/bookings/repository"
	"reservo/internal/bookings/validator"
	"reservo/pkg/config"
	apperrors "reservo/pkg/errors"
	"reservo/pkg/model"
	"reservo/pkg/sanitizer"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
)

type BookingService interface {
	CheckAvailability(ctx context.Context, subject model.EntityRef, from, to time.Time) (bool, error)
	PreBook(ctx context.Context, subject model.EntityRef, from, to time.Time, bookedBy *model.EntityRef, notes string) (*model.Booking, error)
	Confirm(ctx context.Context, id string) error
	Cancel(ctx context.Context, id string) error
	Change(ctx context.Context, id string, from, to time.Time) error
	GetByID(ctx context.Context, id string) (*model.Booking, error)
	ListBookings(ctx context.Context, subject model.EntityRef, filter model.ListFilter, limit int, offset int64) ([]*model.Booking, int64, error)
	ListMyBookings(ctx context.Context, actor model.EntityRef, filter model.ListFilter, limit int, offset int64) ([]*model.Booking, int64, error)
	SweepExpired(ctx context.Context) (int64, error)
	RunSweeper(ctx context.Context)
}

type bookingService struct {
	repo      repository.BookingRepository
	lockRepo  repository.BookingLockRepository
	validator *validator.BookingValidator
	publisher *events.Publisher
	cfg       *config.Config

	// now is swappable so hold expiry can be tested deterministically.
	now func() time.Time
}

func NewBookingService(
	repo repository.BookingRepository,
	lockRepo repository.BookingLockRepository,
	validator *validator.BookingValidator,
	publisher *events.Publisher,
	cfg *config.Config,
) BookingService {
	return &bookingService{
		repo:      repo,
		lockRepo:  lockRepo,
		validator: validator,
		publisher: publisher,
		cfg:       cfg,
		now:       time.Now,
	}
}

// CheckAvailability reports whether subject is free for [from, to). A range is
// free when no pending or confirmed booking overlaps it.
func (s *bookingService) CheckAvailability(ctx context.Context, subject model.EntityRef, from, to time.Time) (bool, error) {
	subject = normalizeRef(subject)
	if err := s.requireBookable(subject); err != nil {
		return false, err
	}
	if err := s.validator.ValidateRange(from, to); err != nil {
		return false, apperrors.Validation("Invalid time range", map[string]any{"error": err.Error()})
	}

	count, err := s.repo.CountOverlapping(ctx, subject, from, to, "")
	if err != nil {
		s.cfg.Log.Error("Failed to check availability",
			"bookable_type", subject.Kind,
			"bookable_id", subject.ID,
			"error", err,
		)
		return false, apperrors.Internal("Failed to check availability", err)
	}

	return count == 0, nil
}

// PreBook places a pending hold on subject for [from, to). The overlap check
// and insert run under a per-subject advisory lock and inside a transaction,
// so two concurrent holds for overlapping ranges cannot both succeed. The hold
// expires after the configured grace period unless confirmed.
func (s *bookingService) PreBook(ctx context.Context, subject model.EntityRef, from, to time.Time, bookedBy *model.EntityRef, notes string) (*model.Booking, error) {
	subject = normalizeRef(subject)
	if err := s.requireBookable(subject); err != nil {
		return nil, err
	}
	if bookedBy != nil {
		normalized := normalizeRef(*bookedBy)
		bookedBy = &normalized
		if err := s.requireBooker(*bookedBy); err != nil {
			return nil, err
		}
	}

	now := s.now()
	expiresAt := now.Add(s.cfg.PendingExpiration)
	booking := &model.Booking{
		BookableKind: subject.Kind,
		BookableID:   subject.ID,
		StartTime:    from,
		EndTime:      to,
		Status:       model.StatusPending,
		ExpiresAt:    &expiresAt,
		Notes:        sanitizer.SanitizeNotes(notes),
		CreatedAt:    now.UTC().Truncate(time.Millisecond),
	}
	if bookedBy != nil {
		booking.BookedByKind = bookedBy.Kind
		booking.BookedByID = bookedBy.ID
	}

	if err := s.validate(booking); err != nil {
		return nil, err
	}

	lockID, err := s.acquireSubjectLock(ctx, subject)
	if err != nil {
		return nil, err
	}
	defer func() {
		if releaseErr := s.releaseSubjectLock(ctx, lockID); releaseErr != nil {
			s.cfg.Log.Warn("Failed to release booking lock", "lock_id", lockID, "error", releaseErr)
		}
	}()

	err = s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		count, err := s.repo.CountOverlapping(sessCtx, subject, from, to, "")
		if err != nil {
			return apperrors.Internal("Failed to check existing bookings", err)
		}
		if count > 0 {
			return apperrors.Conflict(fmt.Sprintf(
				"Requested range %s - %s is not available",
				from.Format(time.RFC3339),
				to.Format(time.RFC3339),
			))
		}
		if err := s.repo.Create(sessCtx, booking); err != nil {
			return apperrors.Internal("Failed to create booking", err)
		}
		return nil
	})
	if err != nil {
		s.cfg.Log.Error("Failed to pre-book",
			"bookable_type", subject.Kind,
			"bookable_id", subject.ID,
			"error", err,
		)
		return nil, err
	}

	s.publisher.BookingCreated(ctx, booking)
	s.cfg.Log.Info("Pending booking created",
		"id", booking.ID,
		"bookable_type", subject.Kind,
		"bookable_id", subject.ID,
		"start_time", from,
		"expires_at", expiresAt,
	)
	return booking, nil
}

// Confirm promotes a pending hold to confirmed and clears its expiry.
// Confirming an already confirmed booking rewrites the same fields; confirming
// a cancelled booking is rejected. The update itself carries the cancelled
// guard, so a cancel or sweep landing after the load cannot be overwritten.
func (s *bookingService) Confirm(ctx context.Context, id string) error {
	booking, err := s.loadBooking(ctx, id)
	if err != nil {
		return err
	}
	if booking.Status == model.StatusCancelled {
		return apperrors.Conflict("Cannot confirm a cancelled booking")
	}

	err = s.repo.UpdateStatus(ctx, id, model.StatusConfirmed, true, model.StatusCancelled)
	if errors.Is(err, bookingserrors.ErrNotFound) {
		return s.resolveGuardedUpdateMiss(ctx, id, "confirm")
	}
	if err != nil {
		return s.mapRepoError(err, id, "Failed to confirm booking")
	}

	booking.Status = model.StatusConfirmed
	booking.ExpiresAt = nil
	s.publisher.BookingConfirmed(ctx, booking)
	s.cfg.Log.Info("Booking confirmed", "id", id)
	return nil
}

// Cancel is valid from any state and is terminal.
func (s *bookingService) Cancel(ctx context.Context, id string) error {
	booking, err := s.loadBooking(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.UpdateStatus(ctx, id, model.StatusCancelled, false, ""); err != nil {
		return s.mapRepoError(err, id, "Failed to cancel booking")
	}

	booking.Status = model.StatusCancelled
	s.publisher.BookingCancelled(ctx, booking)
	s.cfg.Log.Info("Booking cancelled", "id", id)
	return nil
}

// Change moves a booking to a new range after re-checking availability. The
// booking's own row is excluded from the overlap scan, so a booking can shift
// within or across its current slot.
func (s *bookingService) Change(ctx context.Context, id string, from, to time.Time) error {
	booking, err := s.loadBooking(ctx, id)
	if err != nil {
		return err
	}
	if booking.Status == model.StatusCancelled {
		return apperrors.Conflict("Cannot change a cancelled booking")
	}
	if err := s.validator.ValidateRange(from, to); err != nil {
		return apperrors.Validation("Invalid time range", map[string]any{"error": err.Error()})
	}

	subject := booking.Bookable()
	err = s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		count, err := s.repo.CountOverlapping(sessCtx, subject, from, to, id)
		if err != nil {
			return apperrors.Internal("Failed to check existing bookings", err)
		}
		if count > 0 {
			return apperrors.Conflict(fmt.Sprintf(
				"Requested range %s - %s is not available",
				from.Format(time.RFC3339),
				to.Format(time.RFC3339),
			))
		}
		if err := s.repo.UpdateTimes(sessCtx, id, from, to); err != nil {
			if errors.Is(err, bookingserrors.ErrNotFound) {
				return s.resolveGuardedUpdateMiss(sessCtx, id, "change")
			}
			return s.mapRepoError(err, id, "Failed to change booking dates")
		}
		return nil
	})
	if err != nil {
		s.cfg.Log.Error("Failed to change booking", "id", id, "error", err)
		return err
	}

	booking.StartTime = from
	booking.EndTime = to
	s.publisher.BookingChanged(ctx, booking)
	s.cfg.Log.Info("Booking dates changed", "id", id, "start_time", from, "end_time", to)
	return nil
}

func (s *bookingService) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	return s.loadBooking(ctx, id)
}

func (s *bookingService) ListBookings(ctx context.Context, subject model.EntityRef, filter model.ListFilter, limit int, offset int64) ([]*model.Booking, int64, error) {
	subject = normalizeRef(subject)
	if err := s.requireBookable(subject); err != nil {
		return nil, 0, err
	}
	if err := validateStatusFilter(filter.Status); err != nil {
		return nil, 0, err
	}

	return s.list(ctx,
		func(ctx context.Context) (int64, error) {
			return s.repo.CountByBookable(ctx, subject, filter)
		},
		func(ctx context.Context) ([]*model.Booking, error) {
			return s.repo.FindByBookable(ctx, subject, filter, limit, offset)
		},
	)
}

func (s *bookingService) ListMyBookings(ctx context.Context, actor model.EntityRef, filter model.ListFilter, limit int, offset int64) ([]*model.Booking, int64, error) {
	actor = normalizeRef(actor)
	if err := s.requireBooker(actor); err != nil {
		return nil, 0, err
	}
	if err := validateStatusFilter(filter.Status); err != nil {
		return nil, 0, err
	}

	return s.list(ctx,
		func(ctx context.Context) (int64, error) {
			return s.repo.CountByBooker(ctx, actor, filter)
		},
		func(ctx context.Context) ([]*model.Booking, error) {
			return s.repo.FindByBooker(ctx, actor, filter, limit, offset)
		},
	)
}

// SweepExpired cancels all pending holds whose deadline has passed and returns
// how many were cancelled.
func (s *bookingService) SweepExpired(ctx context.Context) (int64, error) {
	now := s.now()
	count, err := s.repo.SweepExpired(ctx, now)
	if err != nil {
		s.cfg.Log.Error("Failed to sweep expired bookings", "error", err)
		return 0, apperrors.Internal("Failed to sweep expired bookings", err)
	}

	if count > 0 {
		s.publisher.BookingsSwept(ctx, count, now)
		s.cfg.Log.Info("Expired bookings swept", "cancelled", count)
	}
	return count, nil
}

// --- Helpers ---

func (s *bookingService) list(
	ctx context.Context,
	countFn func(ctx context.Context) (int64, error),
	findFn func(ctx context.Context) ([]*model.Booking, error),
) ([]*model.Booking, int64, error) {
	var count int64
	var bookings []*model.Booking
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = countFn(ctx)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count bookings", "error", errCount)
			errCount = apperrors.Internal("Failed to count bookings", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		bookings, errFind = findFn(ctx)
		if errFind != nil {
			s.cfg.Log.Error("Failed to list bookings", "error", errFind)
			errFind = apperrors.Internal("Failed to retrieve bookings", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}

	return bookings, count, nil
}

func (s *bookingService) loadBooking(ctx context.Context, id string) (*model.Booking, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}

	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.mapRepoError(err, id, "Failed to retrieve booking")
	}
	return booking, nil
}

func (s *bookingService) mapRepoError(err error, id, internalMsg string) error {
	if errors.Is(err, bookingserrors.ErrNotFound) {
		return apperrors.NotFoundWithID("Booking", id)
	}
	if errors.Is(err, bookingserrors.ErrInvalidID) {
		return apperrors.InvalidInput("Invalid booking ID format")
	}
	if apperrors.IsAppError(err) {
		return err
	}
	return apperrors.Internal(internalMsg, err)
}

// resolveGuardedUpdateMiss explains a status-guarded update that matched
// nothing: either the booking is gone, or a concurrent cancel or sweep flipped
// it to cancelled after the caller loaded it.
func (s *bookingService) resolveGuardedUpdateMiss(ctx context.Context, id, action string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return s.mapRepoError(err, id, "Failed to retrieve booking")
	}
	return apperrors.Conflict(fmt.Sprintf("Cannot %s a cancelled booking", action))
}

func (s *bookingService) validate(booking *model.Booking) error {
	if err := s.validator.Validate(booking); err != nil {
		s.cfg.Log.Warn("Booking validation failed", "error", err)
		return apperrors.Validation("Booking validation failed", map[string]any{"error": err.Error()})
	}
	return nil
}

// requireBookable rejects subjects whose kind is not registered for booking.
// Using an unregistered kind is a caller programming error, reported as a
// distinct invalid-input failure rather than a not-found or conflict.
func (s *bookingService) requireBookable(subject model.EntityRef) error {
	if subject.Kind == "" || subject.ID == "" {
		return apperrors.InvalidInput("Bookable kind and ID are required")
	}
	if !s.cfg.BookableKinds.IsRegistered(subject.Kind) {
		return apperrors.InvalidInput(fmt.Sprintf("Kind %q is not registered as bookable", subject.Kind))
	}
	return nil
}

func (s *bookingService) requireBooker(actor model.EntityRef) error {
	if actor.Kind == "" || actor.ID == "" {
		return apperrors.InvalidInput("Booker kind and ID are required")
	}
	if !s.cfg.BookerKinds.IsRegistered(actor.Kind) {
		return apperrors.InvalidInput(fmt.Sprintf("Kind %q is not registered as a booker", actor.Kind))
	}
	return nil
}

func validateStatusFilter(status string) error {
	switch status {
	case "", model.StatusPending, model.StatusConfirmed, model.StatusCancelled:
		return nil
	default:
		return apperrors.InvalidInput(fmt.Sprintf("Unknown status filter: %s", status))
	}
}

func normalizeRef(ref model.EntityRef) model.EntityRef {
	return model.EntityRef{
		Kind: sanitizer.SanitizeKind(ref.Kind),
		ID:   ref.ID,
	}
}

// acquireSubjectLock serializes concurrent pre-booking on one subject via a
// unique lock document. The duplicate-key error is the losing side of the race.
func (s *bookingService) acquireSubjectLock(ctx context.Context, subject model.EntityRef) (string, error) {
	lockID := fmt.Sprintf("booking_lock_%s_%s", subject.Kind, subject.ID)

	lock := &model.BookingLock{
		ID:        lockID,
		ExpiresAt: s.now().Add(s.cfg.LockTTL),
	}

	_, err := s.lockRepo.Create(ctx, lock)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", apperrors.Conflict("This subject is currently being booked by another request. Please try again.")
		}
		return "", apperrors.Internal("Failed to acquire booking lock", err)
	}

	return lockID, nil
}

func (s *bookingService) releaseSubjectLock(ctx context.Context, lockID string) error {
	return s.lockRepo.Delete(ctx, lockID)
}
