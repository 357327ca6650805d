package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a queried row does not exist.
var ErrNotFound = errors.New("not found")

// Repository handles database operations for the reminder engine.
type Repository struct {
	db     *DB
	logger *zap.Logger
}

// NewRepository creates a new repository.
func NewRepository(db *DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const reminderColumns = `
	id, invoice_id, lease_id, scheduled_for, sent_at, channel, phone,
	message, provider_message_id, status, kind, created_by,
	created_at, updated_at
`

func scanReminder(row pgx.Row, rem *Reminder) error {
	return row.Scan(
		&rem.ID,
		&rem.InvoiceID,
		&rem.LeaseID,
		&rem.ScheduledFor,
		&rem.SentAt,
		&rem.Channel,
		&rem.Phone,
		&rem.Message,
		&rem.ProviderMessageID,
		&rem.Status,
		&rem.Kind,
		&rem.CreatedBy,
		&rem.CreatedAt,
		&rem.UpdatedAt,
	)
}

// CreateReminder inserts a new reminder.
func (r *Repository) CreateReminder(ctx context.Context, rem *Reminder) error {
	query := `
		INSERT INTO reminders (
			id, invoice_id, lease_id, scheduled_for, channel, phone,
			message, status, kind, created_by
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
		RETURNING created_at, updated_at
	`

	err := r.db.Pool().QueryRow(
		ctx,
		query,
		rem.ID,
		rem.InvoiceID,
		rem.LeaseID,
		rem.ScheduledFor,
		rem.Channel,
		rem.Phone,
		rem.Message,
		rem.Status,
		rem.Kind,
		rem.CreatedBy,
	).Scan(&rem.CreatedAt, &rem.UpdatedAt)

	if err != nil {
		r.logger.Error("failed to create reminder",
			zap.Error(err),
			zap.String("reminder_id", rem.ID.String()),
		)
		return fmt.Errorf("insert reminder: %w", err)
	}

	r.logger.Info("reminder created",
		zap.String("reminder_id", rem.ID.String()),
		zap.String("invoice_id", rem.InvoiceID.String()),
		zap.String("kind", rem.Kind),
		zap.Time("scheduled_for", rem.ScheduledFor),
	)

	return nil
}

// GetReminder retrieves a reminder by ID with its joined context.
func (r *Repository) GetReminder(ctx context.Context, id uuid.UUID) (*ReminderWithContext, error) {
	query := `
		SELECT ` + reminderContextColumns + `
		FROM reminders r
		JOIN leases l ON l.id = r.lease_id
		JOIN tenants t ON t.id = l.tenant_id
		JOIN rooms rm ON rm.id = l.room_id
		WHERE r.id = $1
	`

	var rem ReminderWithContext
	err := scanReminderContext(r.db.Pool().QueryRow(ctx, query, id), &rem)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("reminder %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query reminder: %w", err)
	}

	return &rem, nil
}

// SaveReminder persists a state transition: status, sent_at and provider
// message id. Other columns are immutable after insert.
func (r *Repository) SaveReminder(ctx context.Context, rem *Reminder) error {
	query := `
		UPDATE reminders
		SET status = $1, sent_at = $2, provider_message_id = $3, updated_at = NOW()
		WHERE id = $4
	`

	result, err := r.db.Pool().Exec(ctx, query, rem.Status, rem.SentAt, rem.ProviderMessageID, rem.ID)
	if err != nil {
		r.logger.Error("failed to save reminder",
			zap.Error(err),
			zap.String("reminder_id", rem.ID.String()),
		)
		return fmt.Errorf("update reminder: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("reminder %s: %w", rem.ID, ErrNotFound)
	}

	return nil
}

// ListScheduledInWindow returns PROGRAMADO reminders for an invoice whose
// scheduled_for falls inside [from, to]. This window query is the dedup
// mechanism: a day window for the daily cycle, a ±1 minute window for manual
// batches.
func (r *Repository) ListScheduledInWindow(ctx context.Context, invoiceID uuid.UUID, from, to time.Time) ([]*Reminder, error) {
	query := `
		SELECT ` + reminderColumns + `
		FROM reminders
		WHERE invoice_id = $1 AND status = $2 AND scheduled_for BETWEEN $3 AND $4
	`

	rows, err := r.db.Pool().Query(ctx, query, invoiceID, ReminderScheduled, from, to)
	if err != nil {
		return nil, fmt.Errorf("query scheduled reminders: %w", err)
	}
	defer rows.Close()

	return collectReminders(rows)
}

// ListDue returns PROGRAMADO reminders whose scheduled time has arrived,
// earliest first so dispatch never starves older notifications.
func (r *Repository) ListDue(ctx context.Context, now time.Time) ([]*Reminder, error) {
	query := `
		SELECT ` + reminderColumns + `
		FROM reminders
		WHERE status = $1 AND scheduled_for <= $2
		ORDER BY scheduled_for ASC
	`

	rows, err := r.db.Pool().Query(ctx, query, ReminderScheduled, now)
	if err != nil {
		return nil, fmt.Errorf("query due reminders: %w", err)
	}
	defer rows.Close()

	return collectReminders(rows)
}

func collectReminders(rows pgx.Rows) ([]*Reminder, error) {
	var reminders []*Reminder
	for rows.Next() {
		var rem Reminder
		if err := scanReminder(rows, &rem); err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		reminders = append(reminders, &rem)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return reminders, nil
}

const reminderContextColumns = `
	r.id, r.invoice_id, r.lease_id, r.scheduled_for, r.sent_at, r.channel,
	r.phone, r.message, r.provider_message_id, r.status, r.kind, r.created_by,
	r.created_at, r.updated_at,
	l.property_id, t.id, t.full_name, rm.code
`

func scanReminderContext(row pgx.Row, rem *ReminderWithContext) error {
	return row.Scan(
		&rem.ID,
		&rem.InvoiceID,
		&rem.LeaseID,
		&rem.ScheduledFor,
		&rem.SentAt,
		&rem.Channel,
		&rem.Phone,
		&rem.Message,
		&rem.ProviderMessageID,
		&rem.Status,
		&rem.Kind,
		&rem.CreatedBy,
		&rem.CreatedAt,
		&rem.UpdatedAt,
		&rem.PropertyID,
		&rem.TenantID,
		&rem.TenantName,
		&rem.RoomCode,
	)
}

// ReminderFilter narrows ListByProperty. Zero values mean "no filter".
type ReminderFilter struct {
	Status     string
	Kind       string
	From       *time.Time
	To         *time.Time
	TenantName string
}

// ListByProperty returns all reminders of a property, optionally filtered by
// status, kind, scheduled date range and tenant-name substring.
func (r *Repository) ListByProperty(ctx context.Context, propertyID uuid.UUID, filter ReminderFilter) ([]*ReminderWithContext, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT ` + reminderContextColumns + `
		FROM reminders r
		JOIN leases l ON l.id = r.lease_id
		JOIN tenants t ON t.id = l.tenant_id
		JOIN rooms rm ON rm.id = l.room_id
		WHERE l.property_id = $1
	`)

	args := []any{propertyID}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Status != "" {
		sb.WriteString(" AND r.status = " + arg(filter.Status))
	}
	if filter.Kind != "" {
		sb.WriteString(" AND r.kind = " + arg(filter.Kind))
	}
	if filter.From != nil {
		sb.WriteString(" AND r.scheduled_for >= " + arg(*filter.From))
	}
	if filter.To != nil {
		sb.WriteString(" AND r.scheduled_for <= " + arg(*filter.To))
	}
	if filter.TenantName != "" {
		sb.WriteString(" AND t.full_name ILIKE " + arg("%"+filter.TenantName+"%"))
	}

	sb.WriteString(" ORDER BY r.scheduled_for DESC")

	rows, err := r.db.Pool().Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query reminders: %w", err)
	}
	defer rows.Close()

	var reminders []*ReminderWithContext
	for rows.Next() {
		var rem ReminderWithContext
		if err := scanReminderContext(rows, &rem); err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		reminders = append(reminders, &rem)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return reminders, nil
}

// FindOpenInvoicesWithContext returns every OPEN invoice joined with its
// lease, tenant and room.
func (r *Repository) FindOpenInvoicesWithContext(ctx context.Context) ([]*OpenInvoice, error) {
	query := `
		SELECT
			i.id, i.lease_id, i.period_start, i.period_end, i.due_date,
			i.amount, i.status, i.created_at,
			l.property_id, l.status, t.id, t.full_name, t.phone, rm.code
		FROM invoices i
		JOIN leases l ON l.id = i.lease_id
		JOIN tenants t ON t.id = l.tenant_id
		JOIN rooms rm ON rm.id = l.room_id
		WHERE i.status = $1
		ORDER BY i.due_date ASC
	`

	rows, err := r.db.Pool().Query(ctx, query, InvoiceOpen)
	if err != nil {
		return nil, fmt.Errorf("query open invoices: %w", err)
	}
	defer rows.Close()

	var invoices []*OpenInvoice
	for rows.Next() {
		var inv OpenInvoice
		err := rows.Scan(
			&inv.ID,
			&inv.LeaseID,
			&inv.PeriodStart,
			&inv.PeriodEnd,
			&inv.DueDate,
			&inv.Amount,
			&inv.Status,
			&inv.CreatedAt,
			&inv.PropertyID,
			&inv.LeaseStatus,
			&inv.TenantID,
			&inv.TenantName,
			&inv.TenantPhone,
			&inv.RoomCode,
		)
		if err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		invoices = append(invoices, &inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return invoices, nil
}

// GetLease retrieves a lease scoped to a property, with the monthly rent
// taken from its room.
func (r *Repository) GetLease(ctx context.Context, propertyID, leaseID uuid.UUID) (*Lease, error) {
	query := `
		SELECT l.id, l.property_id, l.tenant_id, l.room_id, l.status,
		       l.start_date, l.end_date, rm.rent
		FROM leases l
		JOIN rooms rm ON rm.id = l.room_id
		WHERE l.id = $1 AND l.property_id = $2
	`

	var lease Lease
	err := r.db.Pool().QueryRow(ctx, query, leaseID, propertyID).Scan(
		&lease.ID,
		&lease.PropertyID,
		&lease.TenantID,
		&lease.RoomID,
		&lease.Status,
		&lease.StartDate,
		&lease.EndDate,
		&lease.Rent,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("lease %s: %w", leaseID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query lease: %w", err)
	}

	return &lease, nil
}

// CreateInvoices persists a batch of invoice drafts for one lease inside a
// single transaction. The (lease, period) uniqueness constraint rejects
// regenerating a lease that already has its invoices.
func (r *Repository) CreateInvoices(ctx context.Context, invoices []*Invoice) error {
	if len(invoices) == 0 {
		return nil
	}

	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		INSERT INTO invoices (
			id, lease_id, period_start, period_end, due_date, amount, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`

	for _, inv := range invoices {
		err := tx.QueryRow(ctx, query,
			inv.ID,
			inv.LeaseID,
			inv.PeriodStart,
			inv.PeriodEnd,
			inv.DueDate,
			inv.Amount,
			inv.Status,
		).Scan(&inv.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert invoice: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	r.logger.Info("invoices created",
		zap.String("lease_id", invoices[0].LeaseID.String()),
		zap.Int("count", len(invoices)),
	)

	return nil
}

// FindReminderConfig returns the saved configuration for a property, or
// (nil, nil) when the property never saved one.
func (r *Repository) FindReminderConfig(ctx context.Context, propertyID uuid.UUID) (*ReminderConfig, error) {
	query := `
		SELECT id, property_id, enabled, offsets_csv, send_time, template,
		       sender_phone, updated_at
		FROM reminder_configs
		WHERE property_id = $1
	`

	var cfg ReminderConfig
	err := r.db.Pool().QueryRow(ctx, query, propertyID).Scan(
		&cfg.ID,
		&cfg.PropertyID,
		&cfg.Enabled,
		&cfg.OffsetsCSV,
		&cfg.SendTime,
		&cfg.Template,
		&cfg.SenderPhone,
		&cfg.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query reminder config: %w", err)
	}

	return &cfg, nil
}

// SaveReminderConfig upserts a property's configuration.
func (r *Repository) SaveReminderConfig(ctx context.Context, cfg *ReminderConfig) error {
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}

	query := `
		INSERT INTO reminder_configs (
			id, property_id, enabled, offsets_csv, send_time, template, sender_phone
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (property_id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			offsets_csv = EXCLUDED.offsets_csv,
			send_time = EXCLUDED.send_time,
			template = EXCLUDED.template,
			sender_phone = EXCLUDED.sender_phone,
			updated_at = NOW()
		RETURNING id, updated_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		cfg.ID,
		cfg.PropertyID,
		cfg.Enabled,
		cfg.OffsetsCSV,
		cfg.SendTime,
		cfg.Template,
		cfg.SenderPhone,
	).Scan(&cfg.ID, &cfg.UpdatedAt)
	if err != nil {
		r.logger.Error("failed to save reminder config",
			zap.Error(err),
			zap.String("property_id", cfg.PropertyID.String()),
		)
		return fmt.Errorf("upsert reminder config: %w", err)
	}

	return nil
}
