package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/workforcelab/intraday/internal/domain"
	"github.com/workforcelab/intraday/internal/gateway"
	"github.com/workforcelab/intraday/internal/modules/monitor"
)

// defaultAuditWindow bounds "recent" queries when the caller gives no since
// parameter.
const defaultAuditWindow = 7 * 24 * time.Hour

// AlertHandlers exposes the audit trail: violations, alerts, per-service
// thresholds and the monitor's own counters.
type AlertHandlers struct {
	gw  *gateway.Gateway
	mon *monitor.Monitor
	log zerolog.Logger
}

// NewAlertHandlers creates alert and violation endpoints.
func NewAlertHandlers(gw *gateway.Gateway, mon *monitor.Monitor, log zerolog.Logger) *AlertHandlers {
	return &AlertHandlers{
		gw:  gw,
		mon: mon,
		log: log.With().Str("component", "alert_handlers").Logger(),
	}
}

// RegisterRoutes mounts the audit routes.
func (h *AlertHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/violations", func(r chi.Router) {
		r.Get("/", h.HandleRecentViolations)
		r.Get("/employee/{employeeID}", h.HandleEmployeeViolations)
	})

	r.Route("/alerts", func(r chi.Router) {
		r.Get("/", h.HandleRecentAlerts)
		r.Post("/{alertID}/acknowledge", h.HandleAcknowledgeAlert)
	})

	r.Route("/thresholds", func(r chi.Router) {
		r.Get("/", h.HandleAllThresholds)
		r.Get("/{serviceID}", h.HandleServiceThresholds)
		r.Put("/", h.HandleUpsertThreshold)
	})

	r.Route("/monitor", func(r chi.Router) {
		r.Get("/stats", h.HandleMonitorStats)
		r.Get("/events", h.HandleMonitoringEvents)
		r.Post("/sweep", h.HandleSweep)
	})
}

// HandleRecentViolations handles GET /api/violations?since=...&limit=...
func (h *AlertHandlers) HandleRecentViolations(w http.ResponseWriter, r *http.Request) {
	since, err := queryTime(r, "since", time.Now().UTC().Add(-defaultAuditWindow))
	if err != nil {
		writeError(h.log, w, err)
		return
	}
	limit := queryLimit(r, 100)

	violations, err := h.gw.Violations.Recent(r.Context(), since, limit)
	if err != nil {
		writeError(h.log, w, err)
		return
	}
	if violations == nil {
		violations = []domain.Violation{}
	}

	writeJSON(h.log, w, http.StatusOK, map[string]any{
		"violations": violations,
		"count":      len(violations),
		"since":      since,
	})
}

// HandleEmployeeViolations handles GET /api/violations/employee/{employeeID}
// over a required start/end range.
func (h *AlertHandlers) HandleEmployeeViolations(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "employeeID")
	dr, err := queryRange(r)
	if err != nil {
		writeError(h.log, w, err)
		return
	}

	violations, err := h.gw.Violations.ForEmployee(r.Context(), employeeID, dr)
	if err != nil {
		writeError(h.log, w, err)
		return
	}
	if violations == nil {
		violations = []domain.Violation{}
	}

	writeJSON(h.log, w, http.StatusOK, map[string]any{
		"employee_id": employeeID,
		"violations":  violations,
		"count":       len(violations),
	})
}

// HandleRecentAlerts handles GET /api/alerts?since=...&limit=...
func (h *AlertHandlers) HandleRecentAlerts(w http.ResponseWriter, r *http.Request) {
	since, err := queryTime(r, "since", time.Now().UTC().Add(-defaultAuditWindow))
	if err != nil {
		writeError(h.log, w, err)
		return
	}
	limit := queryLimit(r, 100)

	alerts, err := h.gw.Alerts.Recent(r.Context(), since, limit)
	if err != nil {
		writeError(h.log, w, err)
		return
	}
	if alerts == nil {
		alerts = []domain.Alert{}
	}

	writeJSON(h.log, w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
		"since":  since,
	})
}

// HandleAcknowledgeAlert handles POST /api/alerts/{alertID}/acknowledge.
func (h *AlertHandlers) HandleAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "alertID")
	if alertID == "" {
		writeError(h.log, w, fmt.Errorf("%w: alert id is required", domain.ErrValidation))
		return
	}

	if err := h.gw.Alerts.UpdateStatus(r.Context(), alertID, domain.AlertAcknowledged); err != nil {
		writeError(h.log, w, err)
		return
	}

	writeJSON(h.log, w, http.StatusOK, map[string]any{
		"alert_id": alertID,
		"status":   domain.AlertAcknowledged,
	})
}

// HandleAllThresholds handles GET /api/thresholds.
func (h *AlertHandlers) HandleAllThresholds(w http.ResponseWriter, r *http.Request) {
	thresholds, err := h.gw.Thresholds.All(r.Context())
	if err != nil {
		writeError(h.log, w, err)
		return
	}
	if thresholds == nil {
		thresholds = []domain.ThresholdConfig{}
	}

	writeJSON(h.log, w, http.StatusOK, map[string]any{
		"thresholds": thresholds,
		"count":      len(thresholds),
	})
}

// HandleServiceThresholds handles GET /api/thresholds/{serviceID}. Services
// without stored rows fall back to the stock service-level thresholds, so the
// response is never empty.
func (h *AlertHandlers) HandleServiceThresholds(w http.ResponseWriter, r *http.Request) {
	serviceID := chi.URLParam(r, "serviceID")

	thresholds, err := h.gw.Thresholds.ForService(r.Context(), serviceID)
	if err != nil {
		writeError(h.log, w, err)
		return
	}
	if len(thresholds) == 0 {
		def := domain.DefaultServiceLevelThresholds
		def.ServiceID = serviceID
		thresholds = []domain.ThresholdConfig{def}
	}

	writeJSON(h.log, w, http.StatusOK, map[string]any{
		"service_id": serviceID,
		"thresholds": thresholds,
	})
}

type upsertThresholdRequest struct {
	ServiceID string  `json:"service_id" validate:"required"`
	Metric    string  `json:"metric" validate:"required"`
	Warning   float64 `json:"warning" validate:"required"`
	Critical  float64 `json:"critical" validate:"required"`
	Emergency float64 `json:"emergency" validate:"required"`
	Direction string  `json:"direction" validate:"required,oneof=below above"`
	AutoAlert bool    `json:"auto_alert"`
}

// HandleUpsertThreshold handles PUT /api/thresholds.
func (h *AlertHandlers) HandleUpsertThreshold(w http.ResponseWriter, r *http.Request) {
	var req upsertThresholdRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(h.log, w, err)
		return
	}

	cfg := domain.ThresholdConfig{
		ServiceID: req.ServiceID,
		Metric:    req.Metric,
		Warning:   req.Warning,
		Critical:  req.Critical,
		Emergency: req.Emergency,
		Direction: domain.ThresholdDirection(req.Direction),
		AutoAlert: req.AutoAlert,
	}
	if err := h.gw.Thresholds.Upsert(r.Context(), cfg); err != nil {
		writeError(h.log, w, err)
		return
	}

	writeJSON(h.log, w, http.StatusOK, cfg)
}

// HandleMonitorStats handles GET /api/monitor/stats.
func (h *AlertHandlers) HandleMonitorStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(h.log, w, http.StatusOK, h.mon.Stats())
}

// HandleMonitoringEvents handles GET /api/monitor/events?since=...&limit=...
func (h *AlertHandlers) HandleMonitoringEvents(w http.ResponseWriter, r *http.Request) {
	since, err := queryTime(r, "since", time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		writeError(h.log, w, err)
		return
	}
	limit := queryLimit(r, 200)

	events, err := h.gw.Monitoring.RecentEvents(r.Context(), since, limit)
	if err != nil {
		writeError(h.log, w, err)
		return
	}
	if events == nil {
		events = []domain.MonitoringEvent{}
	}

	writeJSON(h.log, w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
		"since":  since,
	})
}

// HandleSweep handles POST /api/monitor/sweep: one immediate full compliance
// sweep outside the monitor's own cadence.
func (h *AlertHandlers) HandleSweep(w http.ResponseWriter, r *http.Request) {
	if err := h.mon.Sweep(r.Context()); err != nil {
		writeError(h.log, w, err)
		return
	}

	writeJSON(h.log, w, http.StatusOK, map[string]any{
		"status": "completed",
		"stats":  h.mon.Stats(),
	})
}
