package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Invoice status constants
const (
	InvoiceOpen      = "OPEN"
	InvoicePaid      = "PAID"
	InvoiceOverdue   = "OVERDUE"
	InvoiceCancelled = "CANCELLED"
)

// Lease status constants
const (
	LeaseActive    = "ACTIVE"
	LeaseCancelled = "CANCELLED"
)

// Reminder status constants. A reminder is created PROGRAMADO and moves
// exactly once to ENVIADO, FALLIDO or CANCELADO; the terminal states are final.
const (
	ReminderScheduled = "PROGRAMADO"
	ReminderSent      = "ENVIADO"
	ReminderFailed    = "FALLIDO"
	ReminderCancelled = "CANCELADO"
)

// Reminder kind constants
const (
	KindAutomatic = "AUTOMATICO"
	KindManual    = "MANUAL"
)

// ChannelWhatsApp is the only outbound channel.
const ChannelWhatsApp = "WHATSAPP"

// Lease binds one tenant to one room for a date range. Rent is the monthly
// amount taken from the room. A nil EndDate means open-ended: no invoices are
// generated for it.
type Lease struct {
	ID         uuid.UUID       `json:"id"`
	PropertyID uuid.UUID       `json:"property_id"`
	TenantID   uuid.UUID       `json:"tenant_id"`
	RoomID     uuid.UUID       `json:"room_id"`
	Status     string          `json:"status"`
	StartDate  time.Time       `json:"start_date"`
	EndDate    *time.Time      `json:"end_date,omitempty"`
	Rent       decimal.Decimal `json:"rent"`
}

// Invoice is one billing period's rent obligation within a lease.
type Invoice struct {
	ID          uuid.UUID       `json:"id"`
	LeaseID     uuid.UUID       `json:"lease_id"`
	PeriodStart time.Time       `json:"period_start"`
	PeriodEnd   time.Time       `json:"period_end"`
	DueDate     time.Time       `json:"due_date"`
	Amount      decimal.Decimal `json:"amount"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
}

// OpenInvoice is an invoice joined with its lease, tenant and room, as the
// reminder engine consumes it.
type OpenInvoice struct {
	Invoice

	PropertyID  uuid.UUID `json:"property_id"`
	LeaseStatus string    `json:"lease_status"`
	TenantID    uuid.UUID `json:"tenant_id"`
	TenantName  string    `json:"tenant_name"`
	TenantPhone string    `json:"tenant_phone"`
	RoomCode    string    `json:"room_code"`
}

// Reminder is one scheduled outbound notification tied to an invoice.
type Reminder struct {
	ID                uuid.UUID  `json:"id"`
	InvoiceID         uuid.UUID  `json:"invoice_id"`
	LeaseID           uuid.UUID  `json:"lease_id"`
	ScheduledFor      time.Time  `json:"scheduled_for"`
	SentAt            *time.Time `json:"sent_at,omitempty"`
	Channel           string     `json:"channel"`
	Phone             string     `json:"phone"`
	Message           string     `json:"message"`
	ProviderMessageID *string    `json:"provider_message_id,omitempty"`
	Status            string     `json:"status"`
	Kind              string     `json:"kind"`
	CreatedBy         *uuid.UUID `json:"created_by,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// ReminderWithContext adds the joined tenant/room/property columns used by
// listings and filters.
type ReminderWithContext struct {
	Reminder

	PropertyID uuid.UUID `json:"property_id"`
	TenantID   uuid.UUID `json:"tenant_id"`
	TenantName string    `json:"tenant_name"`
	RoomCode   string    `json:"room_code"`
}

// ReminderConfig is the per-property reminder configuration. A property
// without a saved row gets DefaultConfig.
type ReminderConfig struct {
	ID          uuid.UUID `json:"id"`
	PropertyID  uuid.UUID `json:"property_id"`
	Enabled     bool      `json:"enabled"`
	OffsetsCSV  string    `json:"offsets_csv"`
	SendTime    string    `json:"send_time"` // "HH:MM"
	Template    *string   `json:"template,omitempty"`
	SenderPhone *string   `json:"sender_phone,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DefaultSendTime is used when a property has no configured send time.
const DefaultSendTime = "08:00"

// DefaultConfig returns the configuration applied to properties that never
// saved one. An empty OffsetsCSV means the default offset set.
func DefaultConfig(propertyID uuid.UUID) *ReminderConfig {
	return &ReminderConfig{
		PropertyID: propertyID,
		Enabled:    true,
		OffsetsCSV: "",
		SendTime:   DefaultSendTime,
	}
}
