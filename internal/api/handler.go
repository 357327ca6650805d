package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/habitora/reminders/internal/billing"
	"github.com/habitora/reminders/internal/db"
	"github.com/habitora/reminders/internal/reminder"
	"github.com/habitora/reminders/internal/scheduler"
)

// ReminderService defines the reminder operations the API exposes.
type ReminderService interface {
	Get(ctx context.Context, propertyID, reminderID uuid.UUID) (*db.ReminderWithContext, error)
	List(ctx context.Context, propertyID uuid.UUID, filter db.ReminderFilter) ([]*db.ReminderWithContext, error)
	Cancel(ctx context.Context, propertyID, reminderID uuid.UUID) error
	Statistics(ctx context.Context, propertyID uuid.UUID, today time.Time) (*reminder.Statistics, error)
	CreateManualBatch(ctx context.Context, in reminder.ManualBatchInput) (int, error)
	GetConfig(ctx context.Context, propertyID uuid.UUID) (*db.ReminderConfig, error)
	UpdateConfig(ctx context.Context, cfg *db.ReminderConfig) error
	ToggleConfig(ctx context.Context, propertyID uuid.UUID) (*db.ReminderConfig, error)
}

// CycleRunner triggers a reminder cycle outside the daily schedule.
type CycleRunner interface {
	RunForProperty(ctx context.Context, propertyID uuid.UUID, now time.Time) (*scheduler.CycleResult, error)
}

// LeaseRepository defines the lease and invoice operations the API needs.
type LeaseRepository interface {
	GetLease(ctx context.Context, propertyID, leaseID uuid.UUID) (*db.Lease, error)
	CreateInvoices(ctx context.Context, invoices []*db.Invoice) error
}

// ErrorResponse represents an error in problem+json format
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Handler holds dependencies for API handlers
type Handler struct {
	logger  *zap.Logger
	service ReminderService
	runner  CycleRunner
	leases  LeaseRepository
}

// NewHandler creates a new API handler
func NewHandler(logger *zap.Logger, service ReminderService, runner CycleRunner, leases LeaseRepository) *Handler {
	return &Handler{
		logger:  logger,
		service: service,
		runner:  runner,
		leases:  leases,
	}
}

// Routes mounts every property-scoped endpoint on the given router. The
// middlewares are attached inside the property subrouter so that the
// propertyID path parameter is already resolved when they run; attached any
// higher, chi has not matched the route yet and URLParam returns "".
func (h *Handler) Routes(r chi.Router, propertyMiddlewares ...func(http.Handler) http.Handler) {
	r.Route("/properties/{propertyID}", func(r chi.Router) {
		r.Use(propertyMiddlewares...)
		r.Route("/reminders", func(r chi.Router) {
			r.Post("/run", h.RunCycle)
			r.Post("/manual-batch", h.CreateManualBatch)
			r.Get("/", h.ListReminders)
			r.Get("/stats", h.GetStatistics)
			r.Get("/{reminderID}", h.GetReminder)
			r.Post("/{reminderID}/cancel", h.CancelReminder)
		})
		r.Route("/reminder-config", func(r chi.Router) {
			r.Get("/", h.GetConfig)
			r.Put("/", h.UpdateConfig)
			r.Post("/toggle", h.ToggleConfig)
		})
		r.Post("/leases/{leaseID}/invoices", h.GenerateInvoices)
	})
}

func (h *Handler) propertyID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "propertyID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid property ID", "propertyID must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// RunCycle handles POST /v1/properties/{propertyID}/reminders/run
func (h *Handler) RunCycle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	propertyID, ok := h.propertyID(w, r)
	if !ok {
		return
	}

	result, err := h.runner.RunForProperty(ctx, propertyID, time.Now())
	if err != nil {
		h.logger.Error("manual reminder run failed",
			zap.Error(err),
			zap.String("property_id", propertyID.String()),
		)
		h.writeError(w, http.StatusConflict, "run_failed", "Reminder run failed", err.Error())
		return
	}

	h.logger.Info("manual reminder run completed",
		zap.String("property_id", propertyID.String()),
		zap.Int("created", result.Created),
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed),
	)

	h.writeJSON(w, http.StatusOK, result)
}

// ManualBatchRequest is the body for POST .../reminders/manual-batch
type ManualBatchRequest struct {
	TenantIDs  []string `json:"tenant_ids"`
	Pattern    string   `json:"pattern"`
	Template   string   `json:"template,omitempty"`
	SendTime   string   `json:"send_time,omitempty"`
	CustomDate *string  `json:"custom_date,omitempty"` // "2006-01-02"
	OperatorID string   `json:"operator_id"`
}

// CreateManualBatch handles POST /v1/properties/{propertyID}/reminders/manual-batch
func (h *Handler) CreateManualBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	propertyID, ok := h.propertyID(w, r)
	if !ok {
		return
	}

	var req ManualBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	if len(req.TenantIDs) == 0 {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing tenant_ids", "at least one tenant is required")
		return
	}
	if req.OperatorID == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing operator_id", "operator_id is required")
		return
	}

	operatorID, err := uuid.Parse(req.OperatorID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid operator_id", "operator_id must be a valid UUID")
		return
	}

	tenantIDs := make([]uuid.UUID, 0, len(req.TenantIDs))
	for _, raw := range req.TenantIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid tenant id", "tenant_ids must be valid UUIDs")
			return
		}
		tenantIDs = append(tenantIDs, id)
	}

	var customDate *time.Time
	if req.CustomDate != nil && *req.CustomDate != "" {
		d, err := time.Parse("2006-01-02", *req.CustomDate)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid custom_date", "custom_date must be YYYY-MM-DD")
			return
		}
		customDate = &d
	}

	count, err := h.service.CreateManualBatch(ctx, reminder.ManualBatchInput{
		PropertyID: propertyID,
		TenantIDs:  tenantIDs,
		Pattern:    req.Pattern,
		Template:   req.Template,
		SendTime:   req.SendTime,
		CustomDate: customDate,
		OperatorID: operatorID,
	})
	if err != nil {
		switch {
		case errors.Is(err, reminder.ErrUnknownPattern):
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Unknown pattern",
				"pattern must be COMPLETO, SOLO_ANTES, SOLO_VENCIMIENTO, SOLO_DESPUES or PERSONALIZADO")
		case errors.Is(err, reminder.ErrMissingDate):
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing custom_date",
				"PERSONALIZADO requires custom_date")
		default:
			h.logger.Error("failed to create manual batch",
				zap.Error(err),
				zap.String("property_id", propertyID.String()),
			)
			h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to create manual batch", "")
		}
		return
	}

	h.logger.Info("manual batch created",
		zap.String("property_id", propertyID.String()),
		zap.Int("reminders", count),
		zap.String("pattern", req.Pattern),
	)

	h.writeJSON(w, http.StatusCreated, map[string]int{"created": count})
}

// ListReminders handles GET /v1/properties/{propertyID}/reminders
func (h *Handler) ListReminders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	propertyID, ok := h.propertyID(w, r)
	if !ok {
		return
	}

	filter := db.ReminderFilter{
		Status:     r.URL.Query().Get("status"),
		Kind:       r.URL.Query().Get("kind"),
		TenantName: r.URL.Query().Get("tenant"),
	}

	if fromStr := r.URL.Query().Get("from"); fromStr != "" {
		from, err := time.Parse("2006-01-02", fromStr)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid from date", "from must be YYYY-MM-DD")
			return
		}
		filter.From = &from
	}
	if toStr := r.URL.Query().Get("to"); toStr != "" {
		to, err := time.Parse("2006-01-02", toStr)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid to date", "to must be YYYY-MM-DD")
			return
		}
		filter.To = &to
	}

	reminders, err := h.service.List(ctx, propertyID, filter)
	if err != nil {
		h.logger.Error("failed to list reminders",
			zap.Error(err),
			zap.String("property_id", propertyID.String()),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list reminders", "")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":  reminders,
		"count": len(reminders),
	})
}

// GetReminder handles GET /v1/properties/{propertyID}/reminders/{reminderID}
func (h *Handler) GetReminder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	propertyID, ok := h.propertyID(w, r)
	if !ok {
		return
	}

	reminderID, err := uuid.Parse(chi.URLParam(r, "reminderID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid reminder ID", "reminderID must be a valid UUID")
		return
	}

	rem, err := h.service.Get(ctx, propertyID, reminderID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Reminder not found", "")
			return
		}
		h.logger.Error("failed to get reminder",
			zap.Error(err),
			zap.String("reminder_id", reminderID.String()),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to get reminder", "")
		return
	}

	h.writeJSON(w, http.StatusOK, rem)
}

// CancelReminder handles POST /v1/properties/{propertyID}/reminders/{reminderID}/cancel
func (h *Handler) CancelReminder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	propertyID, ok := h.propertyID(w, r)
	if !ok {
		return
	}

	reminderID, err := uuid.Parse(chi.URLParam(r, "reminderID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid reminder ID", "reminderID must be a valid UUID")
		return
	}

	if err := h.service.Cancel(ctx, propertyID, reminderID); err != nil {
		switch {
		case errors.Is(err, db.ErrNotFound):
			h.writeError(w, http.StatusNotFound, "not_found", "Reminder not found", "")
		case errors.Is(err, reminder.ErrNotScheduled):
			h.writeError(w, http.StatusConflict, "invalid_state", "Reminder is not cancellable",
				"only scheduled reminders can be cancelled")
		default:
			h.logger.Error("failed to cancel reminder",
				zap.Error(err),
				zap.String("reminder_id", reminderID.String()),
			)
			h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to cancel reminder", "")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"id":     reminderID.String(),
		"status": db.ReminderCancelled,
	})
}

// GetStatistics handles GET /v1/properties/{propertyID}/reminders/stats
func (h *Handler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	propertyID, ok := h.propertyID(w, r)
	if !ok {
		return
	}

	stats, err := h.service.Statistics(ctx, propertyID, time.Now())
	if err != nil {
		h.logger.Error("failed to compute reminder statistics",
			zap.Error(err),
			zap.String("property_id", propertyID.String()),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to compute statistics", "")
		return
	}

	h.writeJSON(w, http.StatusOK, stats)
}

// GetConfig handles GET /v1/properties/{propertyID}/reminder-config
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	propertyID, ok := h.propertyID(w, r)
	if !ok {
		return
	}

	cfg, err := h.service.GetConfig(ctx, propertyID)
	if err != nil {
		h.logger.Error("failed to get reminder config",
			zap.Error(err),
			zap.String("property_id", propertyID.String()),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to get config", "")
		return
	}

	h.writeJSON(w, http.StatusOK, cfg)
}

// ConfigRequest is the body for PUT .../reminder-config
type ConfigRequest struct {
	Enabled     bool    `json:"enabled"`
	Offsets     string  `json:"offsets"`   // CSV of day offsets, e.g. "-3,-1,0"
	SendTime    string  `json:"send_time"` // "HH:MM"
	Template    *string `json:"template,omitempty"`
	SenderPhone *string `json:"sender_phone,omitempty"`
}

// UpdateConfig handles PUT /v1/properties/{propertyID}/reminder-config
func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	propertyID, ok := h.propertyID(w, r)
	if !ok {
		return
	}

	var req ConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	cfg := &db.ReminderConfig{
		PropertyID:  propertyID,
		Enabled:     req.Enabled,
		OffsetsCSV:  req.Offsets,
		SendTime:    req.SendTime,
		Template:    req.Template,
		SenderPhone: req.SenderPhone,
	}

	if err := h.service.UpdateConfig(ctx, cfg); err != nil {
		h.logger.Error("failed to update reminder config",
			zap.Error(err),
			zap.String("property_id", propertyID.String()),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to update config", "")
		return
	}

	h.writeJSON(w, http.StatusOK, cfg)
}

// ToggleConfig handles POST /v1/properties/{propertyID}/reminder-config/toggle
func (h *Handler) ToggleConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	propertyID, ok := h.propertyID(w, r)
	if !ok {
		return
	}

	cfg, err := h.service.ToggleConfig(ctx, propertyID)
	if err != nil {
		h.logger.Error("failed to toggle reminder config",
			zap.Error(err),
			zap.String("property_id", propertyID.String()),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to toggle config", "")
		return
	}

	h.writeJSON(w, http.StatusOK, cfg)
}

// GenerateInvoices handles POST /v1/properties/{propertyID}/leases/{leaseID}/invoices.
// It materializes the lease's full invoice schedule; the unique period
// constraint makes a rerun fail instead of duplicating periods.
func (h *Handler) GenerateInvoices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	propertyID, ok := h.propertyID(w, r)
	if !ok {
		return
	}

	leaseID, err := uuid.Parse(chi.URLParam(r, "leaseID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid lease ID", "leaseID must be a valid UUID")
		return
	}

	lease, err := h.leases.GetLease(ctx, propertyID, leaseID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Lease not found", "")
			return
		}
		h.logger.Error("failed to get lease",
			zap.Error(err),
			zap.String("lease_id", leaseID.String()),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to get lease", "")
		return
	}

	if lease.EndDate == nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Lease has no end date",
			"invoice generation requires a bounded lease")
		return
	}

	invoices := billing.GenerateInvoices(lease)
	if len(invoices) == 0 {
		h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": invoices, "count": 0})
		return
	}

	if err := h.leases.CreateInvoices(ctx, invoices); err != nil {
		h.logger.Error("failed to create invoices",
			zap.Error(err),
			zap.String("lease_id", leaseID.String()),
		)
		h.writeError(w, http.StatusConflict, "conflict", "Failed to create invoices",
			"periods may already exist for this lease")
		return
	}

	h.logger.Info("invoices generated",
		zap.String("lease_id", leaseID.String()),
		zap.Int("count", len(invoices)),
	)

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"data":  invoices,
		"count": len(invoices),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}
