package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/habitora/reminders/internal/db"
)

type fakeEngine struct {
	createCalls  int
	createResult map[uuid.UUID]bool
	createErr    map[uuid.UUID]error
	dispatched   []*db.Reminder
	sendFails    bool
	lastToday    time.Time
}

func (f *fakeEngine) CreateIfDue(ctx context.Context, inv *db.OpenInvoice, today time.Time) (bool, error) {
	f.createCalls++
	f.lastToday = today
	if err := f.createErr[inv.ID]; err != nil {
		return false, err
	}
	return f.createResult[inv.ID], nil
}

func (f *fakeEngine) Dispatch(ctx context.Context, rem *db.Reminder) error {
	f.dispatched = append(f.dispatched, rem)
	if f.sendFails {
		rem.Status = db.ReminderFailed
	} else {
		rem.Status = db.ReminderSent
	}
	return nil
}

type fakeStore struct {
	invoices []*db.OpenInvoice
	due      []*db.Reminder
	listErr  error
}

func (f *fakeStore) FindOpenInvoicesWithContext(ctx context.Context) ([]*db.OpenInvoice, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.invoices, nil
}

func (f *fakeStore) ListDue(ctx context.Context, now time.Time) ([]*db.Reminder, error) {
	return f.due, nil
}

type fakeLocker struct {
	held     map[string]bool
	acquires []string
	releases []string
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[string]bool)}
}

func (f *fakeLocker) Acquire(ctx context.Context, scope string) (bool, error) {
	f.acquires = append(f.acquires, scope)
	if f.held[scope] {
		return false, nil
	}
	f.held[scope] = true
	return true, nil
}

func (f *fakeLocker) Release(ctx context.Context, scope string) error {
	f.releases = append(f.releases, scope)
	delete(f.held, scope)
	return nil
}

func openInvoice(propertyID uuid.UUID) *db.OpenInvoice {
	return &db.OpenInvoice{
		Invoice: db.Invoice{
			ID:      uuid.New(),
			LeaseID: uuid.New(),
			Status:  db.InvoiceOpen,
		},
		PropertyID: propertyID,
	}
}

func TestRunCycleCountsOutcomes(t *testing.T) {
	propertyID := uuid.New()
	invA := openInvoice(propertyID)
	invB := openInvoice(propertyID)
	invC := openInvoice(propertyID)

	engine := &fakeEngine{
		createResult: map[uuid.UUID]bool{invA.ID: true, invB.ID: true},
		createErr:    map[uuid.UUID]error{invC.ID: errors.New("config load failed")},
	}
	store := &fakeStore{
		invoices: []*db.OpenInvoice{invA, invB, invC},
		due: []*db.Reminder{
			{ID: uuid.New(), Status: db.ReminderScheduled},
			{ID: uuid.New(), Status: db.ReminderScheduled},
		},
	}

	s := New(engine, store, nil, time.UTC, 8, zap.NewNop())

	result, err := s.RunCycle(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if result.Created != 2 {
		t.Errorf("Created = %d, want 2", result.Created)
	}
	if result.Sent != 2 {
		t.Errorf("Sent = %d, want 2", result.Sent)
	}
	if result.Failed != 0 {
		t.Errorf("Failed = %d, want 0", result.Failed)
	}
	if engine.createCalls != 3 {
		t.Errorf("CreateIfDue called %d times, want 3, per-item errors must not abort", engine.createCalls)
	}
}

func TestRunCycleCountsFailures(t *testing.T) {
	engine := &fakeEngine{sendFails: true}
	store := &fakeStore{
		due: []*db.Reminder{{ID: uuid.New(), Status: db.ReminderScheduled}},
	}

	s := New(engine, store, nil, time.UTC, 8, zap.NewNop())

	result, err := s.RunCycle(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if result.Failed != 1 || result.Sent != 0 {
		t.Errorf("result = %+v, want 1 failed, 0 sent", result)
	}
}

func TestRunCycleListErrorFailsCycle(t *testing.T) {
	store := &fakeStore{listErr: errors.New("db down")}
	s := New(&fakeEngine{}, store, nil, time.UTC, 8, zap.NewNop())

	if _, err := s.RunCycle(context.Background(), time.Now()); err == nil {
		t.Fatal("expected error when invoice query fails")
	}
}

func TestRunCycleHoldsAndReleasesLock(t *testing.T) {
	locker := newFakeLocker()
	s := New(&fakeEngine{}, &fakeStore{}, locker, time.UTC, 8, zap.NewNop())

	if _, err := s.RunCycle(context.Background(), time.Now()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if len(locker.acquires) != 1 || locker.acquires[0] != "daily" {
		t.Errorf("acquires = %v, want [daily]", locker.acquires)
	}
	if len(locker.releases) != 1 {
		t.Errorf("lock not released: %v", locker.releases)
	}
}

func TestRunCycleRejectedWhenLockHeld(t *testing.T) {
	locker := newFakeLocker()
	locker.held["daily"] = true

	s := New(&fakeEngine{}, &fakeStore{}, locker, time.UTC, 8, zap.NewNop())

	if _, err := s.RunCycle(context.Background(), time.Now()); err == nil {
		t.Fatal("expected error when lock is held")
	}
}

func TestRunForPropertyFiltersInvoices(t *testing.T) {
	mine := uuid.New()
	other := uuid.New()
	invMine := openInvoice(mine)
	invOther := openInvoice(other)

	engine := &fakeEngine{
		createResult: map[uuid.UUID]bool{invMine.ID: true, invOther.ID: true},
	}
	store := &fakeStore{invoices: []*db.OpenInvoice{invMine, invOther}}

	s := New(engine, store, nil, time.UTC, 8, zap.NewNop())

	result, err := s.RunForProperty(context.Background(), mine, time.Now())
	if err != nil {
		t.Fatalf("RunForProperty: %v", err)
	}

	if engine.createCalls != 1 {
		t.Errorf("CreateIfDue called %d times, want 1, other property's invoice must be skipped", engine.createCalls)
	}
	if result.Created != 1 {
		t.Errorf("Created = %d, want 1", result.Created)
	}
}

func TestRunNormalizesClockToBusinessZone(t *testing.T) {
	lima := time.FixedZone("-05", -5*60*60)
	propertyID := uuid.New()
	inv := openInvoice(propertyID)

	engine := &fakeEngine{createResult: map[uuid.UUID]bool{inv.ID: true}}
	store := &fakeStore{invoices: []*db.OpenInvoice{inv}}

	s := New(engine, store, nil, lima, 8, zap.NewNop())

	// A manual run triggered from a UTC server at 01:00 on March 9 is still
	// the evening of March 8 in the business zone.
	serverClock := time.Date(2025, 3, 9, 1, 0, 0, 0, time.UTC)
	if _, err := s.RunForProperty(context.Background(), propertyID, serverClock); err != nil {
		t.Fatalf("RunForProperty: %v", err)
	}

	got := engine.lastToday
	if got.Location() != lima {
		t.Errorf("today passed in %v, want the business zone", got.Location())
	}
	if got.Day() != 8 {
		t.Errorf("business day = %d, want 8", got.Day())
	}
	if !got.Equal(serverClock) {
		t.Errorf("normalization changed the instant: %v != %v", got, serverClock)
	}
}

func TestNextRun(t *testing.T) {
	s := New(&fakeEngine{}, &fakeStore{}, nil, time.UTC, 8, zap.NewNop())

	before := time.Date(2025, 3, 10, 6, 30, 0, 0, time.UTC)
	next := s.nextRun(before)
	want := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("nextRun(%v) = %v, want %v", before, next, want)
	}

	after := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	next = s.nextRun(after)
	want = time.Date(2025, 3, 11, 8, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("nextRun(%v) = %v, want %v", after, next, want)
	}
}
