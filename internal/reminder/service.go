// Package reminder implements the rent-reminder core: offset eligibility,
// message rendering, the reminder delivery state machine and its queries.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/habitora/reminders/internal/db"
	"github.com/habitora/reminders/internal/metrics"
	"github.com/habitora/reminders/internal/whatsapp"
)

var (
	// ErrNotScheduled is returned when cancelling a reminder that is not in
	// PROGRAMADO. Terminal states are final.
	ErrNotScheduled = errors.New("cannot cancel a non-scheduled reminder")

	// ErrUnknownPattern is returned for a manual batch with an unrecognized
	// pattern name.
	ErrUnknownPattern = errors.New("unknown reminder pattern")

	// ErrMissingDate is returned when a PERSONALIZADO batch omits the date.
	ErrMissingDate = errors.New("custom pattern requires an explicit date")
)

// InvoiceStore is the read-only projection of open invoices the engine
// consumes from the billing collaborator.
type InvoiceStore interface {
	FindOpenInvoicesWithContext(ctx context.Context) ([]*db.OpenInvoice, error)
}

// ReminderStore persists reminder records.
type ReminderStore interface {
	CreateReminder(ctx context.Context, rem *db.Reminder) error
	GetReminder(ctx context.Context, id uuid.UUID) (*db.ReminderWithContext, error)
	SaveReminder(ctx context.Context, rem *db.Reminder) error
	ListScheduledInWindow(ctx context.Context, invoiceID uuid.UUID, from, to time.Time) ([]*db.Reminder, error)
	ListDue(ctx context.Context, now time.Time) ([]*db.Reminder, error)
	ListByProperty(ctx context.Context, propertyID uuid.UUID, filter db.ReminderFilter) ([]*db.ReminderWithContext, error)
}

// ConfigStore persists per-property reminder configuration.
type ConfigStore interface {
	FindReminderConfig(ctx context.Context, propertyID uuid.UUID) (*db.ReminderConfig, error)
	SaveReminderConfig(ctx context.Context, cfg *db.ReminderConfig) error
}

// Store bundles everything the service needs from persistence.
type Store interface {
	InvoiceStore
	ReminderStore
	ConfigStore
}

// Sender delivers one message and returns the provider's message id. An
// error or empty id means the delivery failed; there is no retry.
type Sender interface {
	SendMessage(ctx context.Context, to, body string) (string, error)
}

// Service manages reminder records through their delivery state machine.
// The sender may be nil when the messaging channel is not configured; every
// dispatch then short-circuits to FALLIDO instead of leaving records in limbo.
// All calendar decisions (offsets, dedup windows, send times) are made in the
// configured business location, whatever zone a caller's clock is in.
type Service struct {
	store    Store
	sender   Sender
	location *time.Location
	logger   *zap.Logger
}

// NewService creates a reminder service. sender may be nil; a nil location
// defaults to UTC.
func NewService(store Store, sender Sender, location *time.Location, logger *zap.Logger) *Service {
	if location == nil {
		location = time.UTC
	}
	return &Service{
		store:    store,
		sender:   sender,
		location: location,
		logger:   logger,
	}
}

// loadConfig returns the saved configuration or the defaults.
func (s *Service) loadConfig(ctx context.Context, propertyID uuid.UUID) (*db.ReminderConfig, error) {
	cfg, err := s.store.FindReminderConfig(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return db.DefaultConfig(propertyID), nil
	}
	return cfg, nil
}

// CreateIfDue decides whether an open invoice earns a reminder today and, if
// so, creates one PROGRAMADO record. Returns true only when a record was
// created. Refusals (disabled config, offset not configured, missing phone,
// duplicate for the day, no message) are not errors: they keep the daily
// cycle idempotent.
func (s *Service) CreateIfDue(ctx context.Context, inv *db.OpenInvoice, today time.Time) (bool, error) {
	// The same instant must resolve to the same business day no matter what
	// zone the caller's clock carries, or a reminder could be created twice
	// within one local day.
	today = today.In(s.location)

	cfg, err := s.loadConfig(ctx, inv.PropertyID)
	if err != nil {
		return false, fmt.Errorf("load config: %w", err)
	}
	if !cfg.Enabled {
		return false, nil
	}

	offset := DayOffset(inv.DueDate, today)
	if !containsOffset(ParseOffsets(cfg.OffsetsCSV), offset) {
		return false, nil
	}

	if inv.TenantPhone == "" {
		s.logger.Warn("tenant has no registered phone, skipping reminder",
			zap.String("invoice_id", inv.ID.String()),
			zap.String("tenant", inv.TenantName),
		)
		return false, nil
	}

	dayStart, dayEnd := dayWindow(today)
	existing, err := s.store.ListScheduledInWindow(ctx, inv.ID, dayStart, dayEnd)
	if err != nil {
		return false, fmt.Errorf("dedup query: %w", err)
	}
	if len(existing) > 0 {
		s.logger.Debug("reminder already scheduled for today",
			zap.String("invoice_id", inv.ID.String()),
		)
		return false, nil
	}

	message, ok := s.render(cfg, offset, inv)
	if !ok {
		s.logger.Warn("no message template for offset",
			zap.Int("offset", offset),
			zap.String("invoice_id", inv.ID.String()),
		)
		return false, nil
	}

	hour, minute := ParseSendTime(cfg.SendTime)
	rem := &db.Reminder{
		ID:           uuid.New(),
		InvoiceID:    inv.ID,
		LeaseID:      inv.LeaseID,
		ScheduledFor: at(today, hour, minute, s.location),
		Channel:      db.ChannelWhatsApp,
		Phone:        whatsapp.FormatLocalPhone(inv.TenantPhone),
		Message:      message,
		Status:       db.ReminderScheduled,
		Kind:         db.KindAutomatic,
	}

	if err := s.store.CreateReminder(ctx, rem); err != nil {
		return false, fmt.Errorf("create reminder: %w", err)
	}

	metrics.RecordReminderCreated(db.KindAutomatic)

	s.logger.Info("reminder scheduled",
		zap.String("reminder_id", rem.ID.String()),
		zap.String("invoice_id", inv.ID.String()),
		zap.String("tenant", inv.TenantName),
		zap.Int("offset_days", offset),
	)

	return true, nil
}

// render picks the property's custom template when configured, otherwise the
// canned message for the offset.
func (s *Service) render(cfg *db.ReminderConfig, offset int, inv *db.OpenInvoice) (string, bool) {
	if cfg.Template != nil && *cfg.Template != "" {
		return RenderTemplate(*cfg.Template, inv.TenantName, inv.Amount, inv.RoomCode, offset), true
	}
	return RenderCanned(offset, inv.TenantName, inv.Amount, inv.RoomCode)
}

// Dispatch attempts to deliver a PROGRAMADO reminder and records the
// resulting terminal state. Send failures never escape as errors: the
// reminder goes to FALLIDO and the batch continues. Only storage failures
// are returned.
func (s *Service) Dispatch(ctx context.Context, rem *db.Reminder) error {
	if rem.Status != db.ReminderScheduled {
		s.logger.Warn("dispatch called on non-scheduled reminder",
			zap.String("reminder_id", rem.ID.String()),
			zap.String("status", rem.Status),
		)
		return nil
	}

	if s.sender == nil {
		s.logger.Warn("messaging channel not configured, marking reminder failed",
			zap.String("reminder_id", rem.ID.String()),
		)
		return s.transition(ctx, rem, db.ReminderFailed, nil, nil)
	}

	start := time.Now()
	providerID, err := s.sender.SendMessage(ctx, rem.Phone, rem.Message)
	metrics.ObserveDispatchDuration(time.Since(start))

	if err != nil || providerID == "" {
		if err != nil {
			s.logger.Error("failed to send reminder",
				zap.Error(err),
				zap.String("reminder_id", rem.ID.String()),
				zap.String("phone", rem.Phone),
			)
		} else {
			s.logger.Error("provider returned no message id",
				zap.String("reminder_id", rem.ID.String()),
			)
		}
		return s.transition(ctx, rem, db.ReminderFailed, nil, nil)
	}

	sentAt := time.Now()
	s.logger.Info("reminder sent",
		zap.String("reminder_id", rem.ID.String()),
		zap.String("provider_message_id", providerID),
	)
	return s.transition(ctx, rem, db.ReminderSent, &sentAt, &providerID)
}

func (s *Service) transition(ctx context.Context, rem *db.Reminder, status string, sentAt *time.Time, providerID *string) error {
	rem.Status = status
	rem.SentAt = sentAt
	rem.ProviderMessageID = providerID

	if err := s.store.SaveReminder(ctx, rem); err != nil {
		return fmt.Errorf("save reminder: %w", err)
	}

	metrics.RecordReminderDispatched(status)
	return nil
}

// Cancel moves a PROGRAMADO reminder to CANCELADO. The reminder must belong
// to the given property; any other state is ErrNotScheduled.
func (s *Service) Cancel(ctx context.Context, propertyID, reminderID uuid.UUID) error {
	rem, err := s.store.GetReminder(ctx, reminderID)
	if err != nil {
		return err
	}
	if rem.PropertyID != propertyID {
		return fmt.Errorf("reminder %s: %w", reminderID, db.ErrNotFound)
	}
	if rem.Status != db.ReminderScheduled {
		return fmt.Errorf("reminder %s is %s: %w", reminderID, rem.Status, ErrNotScheduled)
	}

	rem.Status = db.ReminderCancelled
	if err := s.store.SaveReminder(ctx, &rem.Reminder); err != nil {
		return fmt.Errorf("save reminder: %w", err)
	}

	s.logger.Info("reminder cancelled", zap.String("reminder_id", reminderID.String()))
	return nil
}

// Get returns one reminder scoped to a property.
func (s *Service) Get(ctx context.Context, propertyID, reminderID uuid.UUID) (*db.ReminderWithContext, error) {
	rem, err := s.store.GetReminder(ctx, reminderID)
	if err != nil {
		return nil, err
	}
	if rem.PropertyID != propertyID {
		return nil, fmt.Errorf("reminder %s: %w", reminderID, db.ErrNotFound)
	}
	return rem, nil
}

// List returns a property's reminders, filtered.
func (s *Service) List(ctx context.Context, propertyID uuid.UUID, filter db.ReminderFilter) ([]*db.ReminderWithContext, error) {
	return s.store.ListByProperty(ctx, propertyID, filter)
}

// Statistics summarizes a property's reminders.
type Statistics struct {
	Scheduled     int     `json:"scheduled"`
	Sent          int     `json:"sent"`
	Failed        int     `json:"failed"`
	Cancelled     int     `json:"cancelled"`
	SuccessRate   float64 `json:"success_rate"`
	UpcomingToday int     `json:"upcoming_today"`
}

// Statistics computes per-status counts, the delivery success rate and the
// number of reminders still scheduled for today. The rate is 0 when nothing
// has been attempted yet.
func (s *Service) Statistics(ctx context.Context, propertyID uuid.UUID, today time.Time) (*Statistics, error) {
	reminders, err := s.store.ListByProperty(ctx, propertyID, db.ReminderFilter{})
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}

	stats := &Statistics{}
	todayDate := dateOnly(today.In(s.location))
	for _, rem := range reminders {
		switch rem.Status {
		case db.ReminderScheduled:
			stats.Scheduled++
			if dateOnly(rem.ScheduledFor.In(s.location)).Equal(todayDate) {
				stats.UpcomingToday++
			}
		case db.ReminderSent:
			stats.Sent++
		case db.ReminderFailed:
			stats.Failed++
		case db.ReminderCancelled:
			stats.Cancelled++
		}
	}

	if attempts := stats.Sent + stats.Failed; attempts > 0 {
		stats.SuccessRate = float64(stats.Sent) * 100.0 / float64(attempts)
	}

	return stats, nil
}

// GetConfig returns the property's configuration, defaults when unset.
func (s *Service) GetConfig(ctx context.Context, propertyID uuid.UUID) (*db.ReminderConfig, error) {
	return s.loadConfig(ctx, propertyID)
}

// UpdateConfig upserts the property's configuration. The send time is
// normalized; an unparsable value becomes the default.
func (s *Service) UpdateConfig(ctx context.Context, cfg *db.ReminderConfig) error {
	hour, minute := ParseSendTime(cfg.SendTime)
	cfg.SendTime = fmt.Sprintf("%02d:%02d", hour, minute)

	if err := s.store.SaveReminderConfig(ctx, cfg); err != nil {
		return err
	}

	s.logger.Info("reminder config updated",
		zap.String("property_id", cfg.PropertyID.String()),
		zap.Bool("enabled", cfg.Enabled),
	)
	return nil
}

// ToggleConfig flips the enabled flag, creating the row with defaults if the
// property never saved one.
func (s *Service) ToggleConfig(ctx context.Context, propertyID uuid.UUID) (*db.ReminderConfig, error) {
	cfg, err := s.loadConfig(ctx, propertyID)
	if err != nil {
		return nil, err
	}

	cfg.Enabled = !cfg.Enabled
	if err := s.store.SaveReminderConfig(ctx, cfg); err != nil {
		return nil, err
	}

	s.logger.Info("reminder config toggled",
		zap.String("property_id", propertyID.String()),
		zap.Bool("enabled", cfg.Enabled),
	)
	return cfg, nil
}
