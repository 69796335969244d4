package service

import (
	"context"
	"fmt"
	bookingserrors "reservo/internal/bookings/errors"
	"reservo/internal/bookings/validator"
	"reservo/pkg/config"
	mongotx "reservo/pkg/db/mongo"
	apperrors "reservo/pkg/errors"
	"reservo/pkg/logger"
	"reservo/pkg/model"
	"sync"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// --- Mocks ---

type mockBookingRepo struct {
	mu       sync.Mutex
	bookings []*model.Booking
}

func (m *mockBookingRepo) Create(_ context.Context, booking *model.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	booking.ID = primitive.NewObjectID().Hex()
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = time.Now()
	}
	clone := *booking
	m.bookings = append(m.bookings, &clone)
	return nil
}

func (m *mockBookingRepo) FindByID(_ context.Context, id string) (*model.Booking, error) {
	if _, err := primitive.ObjectIDFromHex(id); err != nil {
		return nil, fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bookings {
		if b.ID == id {
			clone := *b
			return &clone, nil
		}
	}
	return nil, bookingserrors.ErrNotFound
}

func (m *mockBookingRepo) CountOverlapping(_ context.Context, subject model.EntityRef, from, to time.Time, excludeID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, b := range m.bookings {
		if b.BookableKind != subject.Kind || b.BookableID != subject.ID {
			continue
		}
		if b.Status != model.StatusPending && b.Status != model.StatusConfirmed {
			continue
		}
		if excludeID != "" && b.ID == excludeID {
			continue
		}
		startsInside := !b.StartTime.Before(from) && b.StartTime.Before(to)
		endsInside := b.EndTime.After(from) && !b.EndTime.After(to)
		spans := !b.StartTime.After(from) && !b.EndTime.Before(to)
		if startsInside || endsInside || spans {
			count++
		}
	}
	return count, nil
}

func (m *mockBookingRepo) UpdateStatus(_ context.Context, id string, status string, clearExpiry bool, notStatus string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bookings {
		if b.ID == id {
			if notStatus != "" && b.Status == notStatus {
				return bookingserrors.ErrNotFound
			}
			b.Status = status
			if clearExpiry {
				b.ExpiresAt = nil
			}
			return nil
		}
	}
	return bookingserrors.ErrNotFound
}

func (m *mockBookingRepo) UpdateTimes(_ context.Context, id string, from, to time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bookings {
		if b.ID == id {
			if b.Status == model.StatusCancelled {
				return bookingserrors.ErrNotFound
			}
			b.StartTime = from
			b.EndTime = to
			return nil
		}
	}
	return bookingserrors.ErrNotFound
}

func (m *mockBookingRepo) FindByBookable(_ context.Context, subject model.EntityRef, filter model.ListFilter, limit int, offset int64) ([]*model.Booking, error) {
	return m.filtered(func(b *model.Booking) bool {
		return b.BookableKind == subject.Kind && b.BookableID == subject.ID
	}, filter, limit, offset), nil
}

func (m *mockBookingRepo) CountByBookable(_ context.Context, subject model.EntityRef, filter model.ListFilter) (int64, error) {
	matches := m.filtered(func(b *model.Booking) bool {
		return b.BookableKind == subject.Kind && b.BookableID == subject.ID
	}, filter, 0, 0)
	return int64(len(matches)), nil
}

func (m *mockBookingRepo) FindByBooker(_ context.Context, actor model.EntityRef, filter model.ListFilter, limit int, offset int64) ([]*model.Booking, error) {
	return m.filtered(func(b *model.Booking) bool {
		return b.BookedByKind == actor.Kind && b.BookedByID == actor.ID
	}, filter, limit, offset), nil
}

func (m *mockBookingRepo) CountByBooker(_ context.Context, actor model.EntityRef, filter model.ListFilter) (int64, error) {
	matches := m.filtered(func(b *model.Booking) bool {
		return b.BookedByKind == actor.Kind && b.BookedByID == actor.ID
	}, filter, 0, 0)
	return int64(len(matches)), nil
}

func (m *mockBookingRepo) filtered(match func(*model.Booking) bool, filter model.ListFilter, limit int, offset int64) []*model.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Booking
	for _, b := range m.bookings {
		if !match(b) {
			continue
		}
		if filter.Status != "" && b.Status != filter.Status {
			continue
		}
		if filter.From != nil && b.EndTime.Before(*filter.From) {
			continue
		}
		if filter.To != nil && b.StartTime.After(*filter.To) {
			continue
		}
		clone := *b
		out = append(out, &clone)
	}
	if offset > 0 {
		if offset >= int64(len(out)) {
			return nil
		}
		out = out[offset:]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *mockBookingRepo) SweepExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, b := range m.bookings {
		if b.Status == model.StatusPending && b.ExpiresAt != nil && b.ExpiresAt.Before(now) {
			b.Status = model.StatusCancelled
			count++
		}
	}
	return count, nil
}

func (m *mockBookingRepo) ExecuteTransaction(_ context.Context, fn mongotx.TransactionFunc) error {
	return fn(nil)
}

// raceRepo injects a concurrent write between a load and its follow-up
// update, for exercising lost-update races.
type raceRepo struct {
	*mockBookingRepo
	beforeUpdateStatus func()
	beforeUpdateTimes  func()
}

func (r *raceRepo) UpdateStatus(ctx context.Context, id string, status string, clearExpiry bool, notStatus string) error {
	if r.beforeUpdateStatus != nil {
		r.beforeUpdateStatus()
	}
	return r.mockBookingRepo.UpdateStatus(ctx, id, status, clearExpiry, notStatus)
}

func (r *raceRepo) UpdateTimes(ctx context.Context, id string, from, to time.Time) error {
	if r.beforeUpdateTimes != nil {
		r.beforeUpdateTimes()
	}
	return r.mockBookingRepo.UpdateTimes(ctx, id, from, to)
}

type mockLockRepo struct {
	mu    sync.Mutex
	locks map[string]bool
	fail  bool
}

func newMockLockRepo() *mockLockRepo {
	return &mockLockRepo{locks: make(map[string]bool)}
}

func (m *mockLockRepo) Create(_ context.Context, lock *model.BookingLock) (*model.BookingLock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail || m.locks[lock.ID] {
		return nil, mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000}}}
	}
	m.locks[lock.ID] = true
	return lock, nil
}

func (m *mockLockRepo) Delete(_ context.Context, lockID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, lockID)
	return nil
}

func (m *mockLockRepo) held() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

// --- Helpers ---

func testConfig() *config.Config {
	log := logger.New(logger.Config{
		Level:   logger.LevelError,
		Format:  logger.FormatText,
		Service: "bookings-test",
	})
	return &config.Config{
		PendingExpiration: 30 * time.Minute,
		SweepInterval:     time.Minute,
		LockTTL:           10 * time.Second,
		BookableKinds:     model.NewKindRegistry("room", "equipment"),
		BookerKinds:       model.NewKindRegistry("user"),
		Log:               log,
	}
}

func newTestService(t *testing.T) (*bookingService, *mockBookingRepo, *mockLockRepo) {
	t.Helper()
	cfg := testConfig()
	repo := &mockBookingRepo{}
	locks := newMockLockRepo()
	svc := NewBookingService(repo, locks, validator.NewBookingValidator(cfg.Log), nil, cfg).(*bookingService)
	return svc, repo, locks
}

func assertAppErrorCode(t *testing.T, err error, wantCode string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %s, got nil", wantCode)
	}
	appErr, ok := err.(*apperrors.AppError)
	if !ok {
		t.Fatalf("expected AppError, got %T: %v", err, err)
	}
	if appErr.Code != wantCode {
		t.Errorf("expected code %s, got %s (%s)", wantCode, appErr.Code, appErr.Message)
	}
}

var (
	room    = model.EntityRef{Kind: "room", ID: "conf-a"}
	alice   = model.EntityRef{Kind: "user", ID: "alice"}
	baseDay = time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
)

func at(hour, min int) time.Time {
	return baseDay.Add(time.Duration(hour)*time.Hour + time.Duration(min)*time.Minute)
}

// --- Availability ---

func TestCheckAvailabilityEmptyCalendar(t *testing.T) {
	svc, _, _ := newTestService(t)

	available, err := svc.CheckAvailability(context.Background(), room, at(10, 0), at(11, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !available {
		t.Error("expected empty calendar to be available")
	}
}

func TestCheckAvailabilityOverlapBoundaries(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.PreBook(ctx, room, at(10, 0), at(11, 0), &alice, ""); err != nil {
		t.Fatalf("prebook failed: %v", err)
	}

	cases := []struct {
		name string
		from time.Time
		to   time.Time
		want bool
	}{
		{"identical range", at(10, 0), at(11, 0), false},
		{"starts inside", at(10, 30), at(11, 30), false},
		{"ends inside", at(9, 30), at(10, 30), false},
		{"spans existing", at(9, 0), at(12, 0), false},
		{"contained inside", at(10, 15), at(10, 45), false},
		{"back to back after", at(11, 0), at(12, 0), true},
		{"back to back before", at(9, 0), at(10, 0), true},
		{"disjoint", at(14, 0), at(15, 0), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			available, err := svc.CheckAvailability(ctx, room, tc.from, tc.to)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if available != tc.want {
				t.Errorf("availability for %s-%s: got %v, want %v",
					tc.from.Format("15:04"), tc.to.Format("15:04"), available, tc.want)
			}
		})
	}
}

func TestCheckAvailabilityIgnoresCancelled(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	booking, err := svc.PreBook(ctx, room, at(10, 0), at(11, 0), nil, "")
	if err != nil {
		t.Fatalf("prebook failed: %v", err)
	}
	if err := svc.Cancel(ctx, booking.ID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	available, err := svc.CheckAvailability(ctx, room, at(10, 0), at(11, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !available {
		t.Error("cancelled booking should not block availability")
	}
}

func TestCheckAvailabilityUnregisteredKind(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.CheckAvailability(context.Background(), model.EntityRef{Kind: "spaceship", ID: "x"}, at(10, 0), at(11, 0))
	assertAppErrorCode(t, err, apperrors.CodeInvalidInput)
}

func TestCheckAvailabilityInvalidRange(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.CheckAvailability(context.Background(), room, at(11, 0), at(10, 0))
	assertAppErrorCode(t, err, apperrors.CodeValidation)

	_, err = svc.CheckAvailability(context.Background(), room, at(11, 0), at(11, 0))
	assertAppErrorCode(t, err, apperrors.CodeValidation)
}

// --- PreBook ---

func TestPreBookCreatesPendingHold(t *testing.T) {
	svc, _, locks := newTestService(t)
	now := at(9, 0)
	svc.now = func() time.Time { return now }

	booking, err := svc.PreBook(context.Background(), room, at(10, 0), at(11, 0), &alice, "team sync")
	if err != nil {
		t.Fatalf("prebook failed: %v", err)
	}

	if booking.ID == "" {
		t.Error("expected booking ID to be assigned")
	}
	if booking.Status != model.StatusPending {
		t.Errorf("expected status pending, got %s", booking.Status)
	}
	if booking.ExpiresAt == nil {
		t.Fatal("expected expires_at to be set")
	}
	wantExpiry := now.Add(30 * time.Minute)
	if !booking.ExpiresAt.Equal(wantExpiry) {
		t.Errorf("expected expiry %v, got %v", wantExpiry, *booking.ExpiresAt)
	}
	if booking.BookedByKind != "user" || booking.BookedByID != "alice" {
		t.Errorf("unexpected booker: %s/%s", booking.BookedByKind, booking.BookedByID)
	}
	if !booking.CreatedAt.Equal(now) {
		t.Errorf("expected created_at from the service clock %v, got %v", now, booking.CreatedAt)
	}
	if locks.held() != 0 {
		t.Errorf("expected lock released, %d still held", locks.held())
	}
}

func TestPreBookConflictOnOverlap(t *testing.T) {
	svc, _, locks := newTestService(t)
	ctx := context.Background()

	if _, err := svc.PreBook(ctx, room, at(10, 0), at(11, 0), nil, ""); err != nil {
		t.Fatalf("first prebook failed: %v", err)
	}

	_, err := svc.PreBook(ctx, room, at(10, 30), at(11, 30), nil, "")
	assertAppErrorCode(t, err, apperrors.CodeConflict)

	if locks.held() != 0 {
		t.Errorf("expected lock released after conflict, %d still held", locks.held())
	}
}

func TestPreBookBackToBackSucceeds(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.PreBook(ctx, room, at(10, 0), at(11, 0), nil, ""); err != nil {
		t.Fatalf("first prebook failed: %v", err)
	}
	if _, err := svc.PreBook(ctx, room, at(11, 0), at(12, 0), nil, ""); err != nil {
		t.Fatalf("back-to-back prebook failed: %v", err)
	}
}

func TestPreBookLockContention(t *testing.T) {
	svc, _, locks := newTestService(t)
	locks.fail = true

	_, err := svc.PreBook(context.Background(), room, at(10, 0), at(11, 0), nil, "")
	assertAppErrorCode(t, err, apperrors.CodeConflict)
}

func TestPreBookUnregisteredBookerKind(t *testing.T) {
	svc, _, _ := newTestService(t)

	badBooker := model.EntityRef{Kind: "robot", ID: "r2"}
	_, err := svc.PreBook(context.Background(), room, at(10, 0), at(11, 0), &badBooker, "")
	assertAppErrorCode(t, err, apperrors.CodeInvalidInput)
}

func TestPreBookSanitizesNotes(t *testing.T) {
	svc, _, _ := newTestService(t)

	booking, err := svc.PreBook(context.Background(), room, at(10, 0), at(11, 0), nil, "  quarterly \x00 review  ")
	if err != nil {
		t.Fatalf("prebook failed: %v", err)
	}
	if booking.Notes != "quarterly review" {
		t.Errorf("expected sanitized notes, got %q", booking.Notes)
	}
}

// --- Confirm / Cancel ---

func TestConfirmClearsExpiry(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	booking, err := svc.PreBook(ctx, room, at(10, 0), at(11, 0), nil, "")
	if err != nil {
		t.Fatalf("prebook failed: %v", err)
	}

	if err := svc.Confirm(ctx, booking.ID); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}

	stored, err := repo.FindByID(ctx, booking.ID)
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if stored.Status != model.StatusConfirmed {
		t.Errorf("expected status confirmed, got %s", stored.Status)
	}
	if stored.ExpiresAt != nil {
		t.Error("expected expiry cleared on confirm")
	}
}

func TestConfirmCancelledBookingRejected(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	booking, err := svc.PreBook(ctx, room, at(10, 0), at(11, 0), nil, "")
	if err != nil {
		t.Fatalf("prebook failed: %v", err)
	}
	if err := svc.Cancel(ctx, booking.ID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	assertAppErrorCode(t, svc.Confirm(ctx, booking.ID), apperrors.CodeConflict)
}

func TestConfirmNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)

	assertAppErrorCode(t, svc.Confirm(context.Background(), primitive.NewObjectID().Hex()), apperrors.CodeNotFound)
	assertAppErrorCode(t, svc.Confirm(context.Background(), "not-an-object-id"), apperrors.CodeInvalidInput)
	assertAppErrorCode(t, svc.Confirm(context.Background(), ""), apperrors.CodeInvalidInput)
}

func TestConfirmLosesRaceWithSweep(t *testing.T) {
	cfg := testConfig()
	inner := &mockBookingRepo{}
	repo := &raceRepo{mockBookingRepo: inner}
	svc := NewBookingService(repo, newMockLockRepo(), validator.NewBookingValidator(cfg.Log), nil, cfg).(*bookingService)

	ctx := context.Background()
	holdTime := at(9, 0)
	svc.now = func() time.Time { return holdTime }

	booking, err := svc.PreBook(ctx, room, at(10, 0), at(11, 0), nil, "")
	if err != nil {
		t.Fatalf("prebook failed: %v", err)
	}

	// The sweep fires after Confirm loads the booking but before its update.
	repo.beforeUpdateStatus = func() {
		if _, err := inner.SweepExpired(ctx, holdTime.Add(31*time.Minute)); err != nil {
			t.Errorf("sweep failed: %v", err)
		}
	}

	assertAppErrorCode(t, svc.Confirm(ctx, booking.ID), apperrors.CodeConflict)

	stored, err := inner.FindByID(ctx, booking.ID)
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if stored.Status != model.StatusCancelled {
		t.Errorf("expected swept hold to stay cancelled, got %s", stored.Status)
	}
}

func TestChangeLosesRaceWithCancel(t *testing.T) {
	cfg := testConfig()
	inner := &mockBookingRepo{}
	repo := &raceRepo{mockBookingRepo: inner}
	svc := NewBookingService(repo, newMockLockRepo(), validator.NewBookingValidator(cfg.Log), nil, cfg).(*bookingService)

	ctx := context.Background()
	booking, err := svc.PreBook(ctx, room, at(10, 0), at(11, 0), nil, "")
	if err != nil {
		t.Fatalf("prebook failed: %v", err)
	}

	repo.beforeUpdateTimes = func() {
		if err := inner.UpdateStatus(ctx, booking.ID, model.StatusCancelled, false, ""); err != nil {
			t.Errorf("cancel failed: %v", err)
		}
	}

	assertAppErrorCode(t, svc.Change(ctx, booking.ID, at(14, 0), at(15, 0)), apperrors.CodeConflict)

	stored, err := inner.FindByID(ctx, booking.ID)
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if !stored.StartTime.Equal(at(10, 0)) || !stored.EndTime.Equal(at(11, 0)) {
		t.Errorf("expected interval untouched, got %v-%v", stored.StartTime, stored.EndTime)
	}
}

func TestCancelFreesRange(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	booking, err := svc.PreBook(ctx, room, at(10, 0), at(11, 0), nil, "")
	if err != nil {
		t.Fatalf("prebook failed: %v", err)
	}
	if err := svc.Confirm(ctx, booking.ID); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if err := svc.Cancel(ctx, booking.ID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	if _, err := svc.PreBook(ctx, room, at(10, 0), at(11, 0), nil, ""); err != nil {
		t.Errorf("expected range to be bookable after cancel: %v", err)
	}
}

// --- Change ---

func TestChangeExcludesOwnBooking(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	booking, err := svc.PreBook(ctx, room, at(10, 0), at(11, 0), nil, "")
	if err != nil {
		t.Fatalf("prebook failed: %v", err)
	}

	// Shifting into a range overlapping the booking's own slot must succeed.
	if err := svc.Change(ctx, booking.ID, at(10, 30), at(11, 30)); err != nil {
		t.Fatalf("change overlapping own slot failed: %v", err)
	}

	stored, err := repo.FindByID(ctx, booking.ID)
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if !stored.StartTime.Equal(at(10, 30)) || !stored.EndTime.Equal(at(11, 30)) {
		t.Errorf("expected 10:30-11:30, got %v-%v", stored.StartTime, stored.EndTime)
	}
}

func TestChangeConflictsWithOtherBooking(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	booking, err := svc.PreBook(ctx, room, at(10, 0), at(11, 0), nil, "")
	if err != nil {
		t.Fatalf("prebook failed: %v", err)
	}
	if _, err := svc.PreBook(ctx, room, at(12, 0), at(13, 0), nil, ""); err != nil {
		t.Fatalf("second prebook failed: %v", err)
	}

	assertAppErrorCode(t, svc.Change(ctx, booking.ID, at(12, 30), at(13, 30)), apperrors.CodeConflict)
}

func TestChangeCancelledBookingRejected(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	booking, err := svc.PreBook(ctx, room, at(10, 0), at(11, 0), nil, "")
	if err != nil {
		t.Fatalf("prebook failed: %v", err)
	}
	if err := svc.Cancel(ctx, booking.ID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	assertAppErrorCode(t, svc.Change(ctx, booking.ID, at(14, 0), at(15, 0)), apperrors.CodeConflict)
}

func TestChangeInvalidRange(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	booking, err := svc.PreBook(ctx, room, at(10, 0), at(11, 0), nil, "")
	if err != nil {
		t.Fatalf("prebook failed: %v", err)
	}

	assertAppErrorCode(t, svc.Change(ctx, booking.ID, at(15, 0), at(14, 0)), apperrors.CodeValidation)
}

// --- Sweep ---

func TestSweepRespectsGracePeriod(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	holdTime := at(9, 0)
	svc.now = func() time.Time { return holdTime }

	if _, err := svc.PreBook(ctx, room, at(10, 0), at(11, 0), nil, ""); err != nil {
		t.Fatalf("prebook failed: %v", err)
	}

	// 29 minutes in, the hold is still inside its grace period.
	svc.now = func() time.Time { return holdTime.Add(29 * time.Minute) }
	count, err := svc.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 swept at 29m, got %d", count)
	}
	available, _ := svc.CheckAvailability(ctx, room, at(10, 0), at(11, 0))
	if available {
		t.Error("hold should still block availability before expiry")
	}

	// 31 minutes in, the hold has lapsed and the range frees up.
	svc.now = func() time.Time { return holdTime.Add(31 * time.Minute) }
	count, err = svc.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 swept at 31m, got %d", count)
	}
	available, _ = svc.CheckAvailability(ctx, room, at(10, 0), at(11, 0))
	if !available {
		t.Error("range should be available after expired hold is swept")
	}
}

func TestSweepOnlyTouchesExpiredPending(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	holdTime := at(9, 0)
	svc.now = func() time.Time { return holdTime }

	expired, err := svc.PreBook(ctx, room, at(10, 0), at(11, 0), nil, "")
	if err != nil {
		t.Fatalf("prebook failed: %v", err)
	}
	confirmed, err := svc.PreBook(ctx, room, at(12, 0), at(13, 0), nil, "")
	if err != nil {
		t.Fatalf("prebook failed: %v", err)
	}
	if err := svc.Confirm(ctx, confirmed.ID); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}

	svc.now = func() time.Time { return holdTime.Add(time.Hour) }
	fresh, err := svc.PreBook(ctx, room, at(14, 0), at(15, 0), nil, "")
	if err != nil {
		t.Fatalf("prebook failed: %v", err)
	}

	count, err := svc.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected exactly 1 swept, got %d", count)
	}

	check := func(id, wantStatus string) {
		t.Helper()
		b, err := repo.FindByID(ctx, id)
		if err != nil {
			t.Fatalf("find failed: %v", err)
		}
		if b.Status != wantStatus {
			t.Errorf("booking %s: expected %s, got %s", id, wantStatus, b.Status)
		}
	}
	check(expired.ID, model.StatusCancelled)
	check(confirmed.ID, model.StatusConfirmed)
	check(fresh.ID, model.StatusPending)
}

// --- Listings ---

func TestListBookingsFiltersAndCounts(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.PreBook(ctx, room, at(10, 0), at(11, 0), &alice, "")
	if err != nil {
		t.Fatalf("prebook failed: %v", err)
	}
	if _, err := svc.PreBook(ctx, room, at(12, 0), at(13, 0), &alice, ""); err != nil {
		t.Fatalf("prebook failed: %v", err)
	}
	if err := svc.Confirm(ctx, first.ID); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}

	bookings, total, err := svc.ListBookings(ctx, room, model.ListFilter{}, 10, 0)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 2 || len(bookings) != 2 {
		t.Errorf("expected 2 bookings, got total=%d len=%d", total, len(bookings))
	}

	bookings, total, err = svc.ListBookings(ctx, room, model.ListFilter{Status: model.StatusConfirmed}, 10, 0)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 1 || len(bookings) != 1 {
		t.Errorf("expected 1 confirmed booking, got total=%d len=%d", total, len(bookings))
	}
	if bookings[0].ID != first.ID {
		t.Errorf("expected booking %s, got %s", first.ID, bookings[0].ID)
	}
}

func TestListBookingsWindowIncludesPartialOverlaps(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	endsAtFrom, err := svc.PreBook(ctx, room, at(9, 30), at(10, 30), nil, "")
	if err != nil {
		t.Fatalf("prebook failed: %v", err)
	}
	startsBeforeTo, err := svc.PreBook(ctx, room, at(12, 0), at(13, 0), nil, "")
	if err != nil {
		t.Fatalf("prebook failed: %v", err)
	}
	if _, err := svc.PreBook(ctx, room, at(15, 0), at(16, 0), nil, ""); err != nil {
		t.Fatalf("prebook failed: %v", err)
	}

	// Inclusive-overlap window: one booking ends exactly at the window start,
	// one starts inside it, one lies fully after it.
	from := at(10, 30)
	to := at(12, 30)
	bookings, total, err := svc.ListBookings(ctx, room, model.ListFilter{From: &from, To: &to}, 10, 0)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 2 || len(bookings) != 2 {
		t.Fatalf("expected 2 bookings touching the window, got total=%d len=%d", total, len(bookings))
	}

	got := map[string]bool{}
	for _, b := range bookings {
		got[b.ID] = true
	}
	if !got[endsAtFrom.ID] {
		t.Error("expected booking ending at the window start to be included")
	}
	if !got[startsBeforeTo.ID] {
		t.Error("expected booking starting inside the window to be included")
	}
}

func TestListBookingsRejectsUnknownStatus(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, _, err := svc.ListBookings(context.Background(), room, model.ListFilter{Status: "archived"}, 10, 0)
	assertAppErrorCode(t, err, apperrors.CodeInvalidInput)
}

func TestListMyBookings(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.PreBook(ctx, room, at(10, 0), at(11, 0), &alice, ""); err != nil {
		t.Fatalf("prebook failed: %v", err)
	}
	bob := model.EntityRef{Kind: "user", ID: "bob"}
	if _, err := svc.PreBook(ctx, room, at(12, 0), at(13, 0), &bob, ""); err != nil {
		t.Fatalf("prebook failed: %v", err)
	}

	bookings, total, err := svc.ListMyBookings(ctx, alice, model.ListFilter{}, 10, 0)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 1 || len(bookings) != 1 {
		t.Errorf("expected 1 booking for alice, got total=%d len=%d", total, len(bookings))
	}
	if bookings[0].BookedByID != "alice" {
		t.Errorf("expected alice's booking, got %s", bookings[0].BookedByID)
	}
}
