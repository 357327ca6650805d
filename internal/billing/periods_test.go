package billing

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/habitora/reminders/internal/db"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testLease(start time.Time, end *time.Time) *db.Lease {
	return &db.Lease{
		ID:        uuid.New(),
		Status:    db.LeaseActive,
		StartDate: start,
		EndDate:   end,
		Rent:      decimal.NewFromInt(500),
	}
}

func TestGenerateInvoices_SixMonthLease(t *testing.T) {
	end := date(2025, time.June, 29)
	lease := testLease(date(2025, time.January, 1), &end)

	invoices := GenerateInvoices(lease)

	if len(invoices) != 6 {
		t.Fatalf("expected 6 invoices, got %d", len(invoices))
	}
	if invoices[0].Status != db.InvoicePaid {
		t.Errorf("first invoice should be PAID, got %s", invoices[0].Status)
	}
	for i, inv := range invoices[1:] {
		if inv.Status != db.InvoiceOpen {
			t.Errorf("invoice %d should be OPEN, got %s", i+1, inv.Status)
		}
	}
	for i, inv := range invoices {
		wantDue := inv.PeriodStart.AddDate(0, 0, DueDateOffsetDays)
		if !inv.DueDate.Equal(wantDue) {
			t.Errorf("invoice %d: due date %v, want %v", i, inv.DueDate, wantDue)
		}
	}
	last := invoices[len(invoices)-1]
	if !last.PeriodEnd.Equal(end) {
		t.Errorf("last period end %v, want lease end %v", last.PeriodEnd, end)
	}
}

func TestGenerateInvoices_PeriodsAreContiguous(t *testing.T) {
	end := date(2025, time.November, 12)
	lease := testLease(date(2025, time.March, 7), &end)

	invoices := GenerateInvoices(lease)
	if len(invoices) == 0 {
		t.Fatal("expected invoices")
	}

	if !invoices[0].PeriodStart.Equal(lease.StartDate) {
		t.Errorf("first period starts %v, want %v", invoices[0].PeriodStart, lease.StartDate)
	}
	for i := 1; i < len(invoices); i++ {
		prevEnd := invoices[i-1].PeriodEnd
		start := invoices[i].PeriodStart
		if !start.Equal(prevEnd.AddDate(0, 0, 1)) {
			t.Errorf("invoice %d starts %v, want day after %v", i, start, prevEnd)
		}
		if invoices[i].PeriodEnd.Before(start) {
			t.Errorf("invoice %d: period end %v before start %v", i, invoices[i].PeriodEnd, start)
		}
	}
	if !invoices[len(invoices)-1].PeriodEnd.Equal(end) {
		t.Errorf("union of periods must cover the lease end")
	}
}

func TestGenerateInvoices_DegenerateLease(t *testing.T) {
	end := date(2025, time.January, 1)
	lease := testLease(date(2025, time.January, 1), &end)

	invoices := GenerateInvoices(lease)

	if len(invoices) != 1 {
		t.Fatalf("expected 1 invoice for degenerate lease, got %d", len(invoices))
	}
	if invoices[0].Status != db.InvoicePaid {
		t.Errorf("degenerate invoice should be PAID, got %s", invoices[0].Status)
	}
	if !invoices[0].PeriodStart.Equal(end) || !invoices[0].PeriodEnd.Equal(end) {
		t.Errorf("degenerate invoice should cover [start, end] exactly")
	}
}

func TestGenerateInvoices_OpenEndedLease(t *testing.T) {
	lease := testLease(date(2025, time.January, 1), nil)

	if invoices := GenerateInvoices(lease); invoices != nil {
		t.Errorf("open-ended lease should generate nothing, got %d invoices", len(invoices))
	}
}

func TestGenerateInvoices_AmountCarriesRoomRent(t *testing.T) {
	end := date(2025, time.February, 28)
	lease := testLease(date(2025, time.January, 1), &end)
	lease.Rent = decimal.RequireFromString("750.50")

	for i, inv := range GenerateInvoices(lease) {
		if !inv.Amount.Equal(lease.Rent) {
			t.Errorf("invoice %d amount %s, want %s", i, inv.Amount, lease.Rent)
		}
	}
}
