// Package billing slices a lease's date range into consecutive billing
// periods. The reminder engine's correctness depends on how these periods are
// cut: the due date of each invoice anchors every offset computation.
package billing

import (
	"time"

	"github.com/google/uuid"

	"github.com/habitora/reminders/internal/db"
)

const (
	// PeriodDays is the fixed length of a billing window.
	PeriodDays = 30

	// DueDateOffsetDays is how many days after a period starts its invoice
	// falls due.
	DueDateOffsetDays = 5
)

// GenerateInvoices walks the lease's [start, end] interval in fixed 30-day
// windows and returns one invoice draft per window, in order. The final
// window is clipped to the lease end. The first draft is PAID (the tenant
// pays the first period up front at signing); the rest start OPEN.
//
// Open-ended leases never reach this function: callers skip leases with a
// nil end date. A degenerate range (end <= start) yields a single PAID draft
// covering [start, end].
func GenerateInvoices(lease *db.Lease) []*db.Invoice {
	if lease.EndDate == nil {
		return nil
	}

	start := dateOnly(lease.StartDate)
	end := dateOnly(*lease.EndDate)

	if !end.After(start) {
		return []*db.Invoice{draft(lease, start, end, db.InvoicePaid)}
	}

	var invoices []*db.Invoice
	cursor := start
	for !cursor.After(end) {
		periodEnd := cursor.AddDate(0, 0, PeriodDays-1)
		if periodEnd.After(end) {
			periodEnd = end
		}

		status := db.InvoiceOpen
		if len(invoices) == 0 {
			status = db.InvoicePaid
		}

		invoices = append(invoices, draft(lease, cursor, periodEnd, status))
		cursor = periodEnd.AddDate(0, 0, 1)
	}

	return invoices
}

func draft(lease *db.Lease, periodStart, periodEnd time.Time, status string) *db.Invoice {
	return &db.Invoice{
		ID:          uuid.New(),
		LeaseID:     lease.ID,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		DueDate:     periodStart.AddDate(0, 0, DueDateOffsetDays),
		Amount:      lease.Rent,
		Status:      status,
	}
}

// dateOnly truncates a timestamp to midnight UTC so period arithmetic is
// pure date math.
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
