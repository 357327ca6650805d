// Package scheduler runs the daily reminder cycle: sweep open invoices,
// create the reminders due today, then dispatch everything whose send time
// has passed.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/habitora/reminders/internal/db"
	"github.com/habitora/reminders/internal/metrics"
)

// dailyLockScope names the run lock held for the platform-wide cycle.
const dailyLockScope = "daily"

// Engine is the slice of the reminder service the cycle drives.
type Engine interface {
	CreateIfDue(ctx context.Context, inv *db.OpenInvoice, today time.Time) (bool, error)
	Dispatch(ctx context.Context, rem *db.Reminder) error
}

// Store provides the two queries the cycle needs.
type Store interface {
	FindOpenInvoicesWithContext(ctx context.Context) ([]*db.OpenInvoice, error)
	ListDue(ctx context.Context, now time.Time) ([]*db.Reminder, error)
}

// Locker serializes cycles across instances. May be nil when Redis is not
// configured; a single instance does not need it.
type Locker interface {
	Acquire(ctx context.Context, scope string) (bool, error)
	Release(ctx context.Context, scope string) error
}

// CycleResult counts what one cycle did.
type CycleResult struct {
	Created int `json:"created"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
}

// Scheduler fires the reminder cycle once a day at a fixed local hour and
// exposes manual runs for the API.
type Scheduler struct {
	engine Engine
	store  Store
	locker Locker
	logger *zap.Logger

	location *time.Location
	runHour  int
}

// New creates a scheduler. locker may be nil.
func New(engine Engine, store Store, locker Locker, location *time.Location, runHour int, logger *zap.Logger) *Scheduler {
	if location == nil {
		location = time.UTC
	}
	return &Scheduler{
		engine:   engine,
		store:    store,
		locker:   locker,
		logger:   logger,
		location: location,
		runHour:  runHour,
	}
}

// Start blocks until ctx is cancelled, running one cycle at the configured
// hour each day. Run it in its own goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("reminder scheduler started",
		zap.Int("run_hour", s.runHour),
		zap.String("timezone", s.location.String()),
	)

	for {
		next := s.nextRun(time.Now().In(s.location))
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("reminder scheduler stopped")
			return
		case <-timer.C:
		}

		result, err := s.RunCycle(ctx, time.Now().In(s.location))
		if err != nil {
			s.logger.Error("daily reminder cycle failed", zap.Error(err))
			continue
		}
		s.logger.Info("daily reminder cycle finished",
			zap.Int("created", result.Created),
			zap.Int("sent", result.Sent),
			zap.Int("failed", result.Failed),
		)
	}
}

// nextRun returns the next occurrence of the run hour after now.
func (s *Scheduler) nextRun(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), s.runHour, 0, 0, 0, s.location)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// RunCycle executes one full cycle across all properties.
func (s *Scheduler) RunCycle(ctx context.Context, now time.Time) (*CycleResult, error) {
	return s.run(ctx, now, dailyLockScope, nil)
}

// RunForProperty executes a manual cycle that creates reminders only for
// the given property's invoices, under a property-scoped lock. The dispatch
// phase still drains everything due: a due reminder is sent regardless of
// which property triggered the run.
func (s *Scheduler) RunForProperty(ctx context.Context, propertyID uuid.UUID, now time.Time) (*CycleResult, error) {
	return s.run(ctx, now, propertyID.String(), &propertyID)
}

// run is the shared sweep. Per-item failures are logged and skipped, never
// aborting the cycle; only the listing queries and the lock can fail it.
func (s *Scheduler) run(ctx context.Context, now time.Time, lockScope string, propertyID *uuid.UUID) (*CycleResult, error) {
	// Manual runs arrive with the server's clock; the daily loop with the
	// business zone. Normalize here so both evaluate offsets and dedup
	// windows on the same business calendar day.
	now = now.In(s.location)

	if s.locker != nil {
		ok, err := s.locker.Acquire(ctx, lockScope)
		if err != nil {
			return nil, fmt.Errorf("acquire run lock: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("reminder cycle already in progress")
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), lockScope); err != nil {
				s.logger.Warn("failed to release run lock", zap.Error(err))
			}
		}()
	}

	start := time.Now()
	result := &CycleResult{}

	invoices, err := s.store.FindOpenInvoicesWithContext(ctx)
	if err != nil {
		metrics.RecordCycle("error", time.Since(start))
		return nil, fmt.Errorf("find open invoices: %w", err)
	}

	for _, inv := range invoices {
		if propertyID != nil && inv.PropertyID != *propertyID {
			continue
		}
		created, err := s.engine.CreateIfDue(ctx, inv, now)
		if err != nil {
			s.logger.Error("failed to evaluate invoice for reminder",
				zap.Error(err),
				zap.String("invoice_id", inv.ID.String()),
			)
			continue
		}
		if created {
			result.Created++
		}
	}

	due, err := s.store.ListDue(ctx, now)
	if err != nil {
		metrics.RecordCycle("error", time.Since(start))
		return nil, fmt.Errorf("list due reminders: %w", err)
	}

	for _, rem := range due {
		if err := s.engine.Dispatch(ctx, rem); err != nil {
			s.logger.Error("failed to persist dispatch outcome",
				zap.Error(err),
				zap.String("reminder_id", rem.ID.String()),
			)
			continue
		}
		switch rem.Status {
		case db.ReminderSent:
			result.Sent++
		case db.ReminderFailed:
			result.Failed++
		}
	}

	metrics.RecordCycle("ok", time.Since(start))

	s.logger.Info("reminder cycle completed",
		zap.Int("open_invoices", len(invoices)),
		zap.Int("created", result.Created),
		zap.Int("due", len(due)),
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed),
	)

	return result, nil
}
