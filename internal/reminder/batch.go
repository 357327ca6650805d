package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/habitora/reminders/internal/db"
	"github.com/habitora/reminders/internal/metrics"
	"github.com/habitora/reminders/internal/whatsapp"
)

// Named offset patterns for manual batches.
const (
	PatternComplete   = "COMPLETO"         // -3..+2
	PatternBeforeOnly = "SOLO_ANTES"       // -3,-2,-1
	PatternDueDay     = "SOLO_VENCIMIENTO" // 0
	PatternAfterOnly  = "SOLO_DESPUES"     // +1,+2
	PatternCustomDate = "PERSONALIZADO"    // one operator-supplied date
)

// resolvePattern maps a pattern name to its offsets. PERSONALIZADO resolves
// to a single zero offset: the real date comes from the request.
func resolvePattern(pattern string) ([]int, error) {
	switch pattern {
	case PatternComplete:
		return []int{-3, -2, -1, 0, 1, 2}, nil
	case PatternBeforeOnly:
		return []int{-3, -2, -1}, nil
	case PatternDueDay:
		return []int{0}, nil
	case PatternAfterOnly:
		return []int{1, 2}, nil
	case PatternCustomDate:
		return []int{0}, nil
	default:
		return nil, fmt.Errorf("%q: %w", pattern, ErrUnknownPattern)
	}
}

// manualDedupWindow is the ± range checked around a manual reminder's target
// timestamp. Coarser than the daily path's day window because pattern offsets
// from overlapping batches can collide on the exact minute.
const manualDedupWindow = time.Minute

// ManualBatchInput describes an operator-requested reminder batch.
type ManualBatchInput struct {
	PropertyID uuid.UUID
	TenantIDs  []uuid.UUID
	Pattern    string
	Template   string     // optional; falls back to canned per-offset messages
	SendTime   string     // optional "HH:MM"; default 08:00
	CustomDate *time.Time // required for PERSONALIZADO
	OperatorID uuid.UUID
}

// CreateManualBatch creates PROGRAMADO reminders for every open invoice of
// the selected tenants, one per offset in the pattern. Reminders already
// scheduled within a minute of the same target are skipped, as are tenants
// without a phone. Returns the number created.
func (s *Service) CreateManualBatch(ctx context.Context, in ManualBatchInput) (int, error) {
	offsets, err := resolvePattern(in.Pattern)
	if err != nil {
		return 0, err
	}
	if in.Pattern == PatternCustomDate && in.CustomDate == nil {
		return 0, ErrMissingDate
	}

	hour, minute := ParseSendTime(in.SendTime)

	tenants := make(map[uuid.UUID]bool, len(in.TenantIDs))
	for _, id := range in.TenantIDs {
		tenants[id] = true
	}

	invoices, err := s.store.FindOpenInvoicesWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("find open invoices: %w", err)
	}

	created := 0
	for _, inv := range invoices {
		if inv.PropertyID != in.PropertyID || inv.LeaseStatus != db.LeaseActive || !tenants[inv.TenantID] {
			continue
		}
		if inv.TenantPhone == "" {
			s.logger.Warn("tenant has no registered phone, skipping manual reminder",
				zap.String("invoice_id", inv.ID.String()),
				zap.String("tenant", inv.TenantName),
			)
			continue
		}

		for _, offset := range offsets {
			target := inv.DueDate.AddDate(0, 0, offset)
			if in.Pattern == PatternCustomDate {
				target = *in.CustomDate
			}
			scheduledFor := at(target, hour, minute, s.location)

			existing, err := s.store.ListScheduledInWindow(ctx, inv.ID,
				scheduledFor.Add(-manualDedupWindow), scheduledFor.Add(manualDedupWindow))
			if err != nil {
				return created, fmt.Errorf("dedup query: %w", err)
			}
			if len(existing) > 0 {
				continue
			}

			message := in.Template
			if message != "" {
				message = RenderTemplate(message, inv.TenantName, inv.Amount, inv.RoomCode, offset)
			} else {
				var ok bool
				message, ok = RenderCanned(offset, inv.TenantName, inv.Amount, inv.RoomCode)
				if !ok {
					continue
				}
			}

			operatorID := in.OperatorID
			rem := &db.Reminder{
				ID:           uuid.New(),
				InvoiceID:    inv.ID,
				LeaseID:      inv.LeaseID,
				ScheduledFor: scheduledFor,
				Channel:      db.ChannelWhatsApp,
				Phone:        whatsapp.FormatLocalPhone(inv.TenantPhone),
				Message:      message,
				Status:       db.ReminderScheduled,
				Kind:         db.KindManual,
				CreatedBy:    &operatorID,
			}

			if err := s.store.CreateReminder(ctx, rem); err != nil {
				return created, fmt.Errorf("create reminder: %w", err)
			}

			metrics.RecordReminderCreated(db.KindManual)
			created++
		}
	}

	s.logger.Info("manual batch created",
		zap.String("property_id", in.PropertyID.String()),
		zap.String("pattern", in.Pattern),
		zap.Int("tenants", len(in.TenantIDs)),
		zap.Int("created", created),
	)

	return created, nil
}
