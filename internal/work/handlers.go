package work

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/workforcelab/intraday/internal/gateway"
)

// RunLister surfaces recorded runs for the history endpoint. Satisfied by
// the gateway job history repository.
type RunLister interface {
	Recent(ctx context.Context, jobType string, limit int) ([]gateway.JobRun, error)
}

// Handlers exposes the work processor over HTTP: listing registered types,
// manual execution, run history, and waking the processor.
type Handlers struct {
	processor *Processor
	registry  *Registry
	history   RunLister
}

// NewHandlers creates HTTP handlers for the work processor.
func NewHandlers(processor *Processor, registry *Registry) *Handlers {
	return &Handlers{
		processor: processor,
		registry:  registry,
	}
}

// SetHistory wires the run history source. Without it the history endpoint
// returns an empty list.
func (h *Handlers) SetHistory(history RunLister) {
	h.history = history
}

// RegisterRoutes mounts the work management routes under the caller's
// prefix, normally /api.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Route("/work", func(r chi.Router) {
		r.Get("/types", h.ListWorkTypes)
		r.Get("/history", h.History)
		r.Post("/{workType}/execute", h.ExecuteWorkType)
		r.Post("/{workType}/{subject}/execute", h.ExecuteWorkTypeWithSubject)
		r.Post("/trigger", h.TriggerProcessor)
	})
}

// ListWorkTypes returns the registered work types in priority order.
func (h *Handlers) ListWorkTypes(w http.ResponseWriter, r *http.Request) {
	types := h.registry.ByPriority()

	response := make([]map[string]any, 0, len(types))
	for _, wt := range types {
		response = append(response, map[string]any{
			"id":         wt.ID,
			"priority":   wt.Priority.String(),
			"timing":     wt.Timing.String(),
			"interval":   wt.Interval.String(),
			"depends_on": wt.DependsOn,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// ExecuteWorkType runs a global work type immediately, bypassing timing and
// interval checks.
func (h *Handlers) ExecuteWorkType(w http.ResponseWriter, r *http.Request) {
	workType := chi.URLParam(r, "workType")

	if err := h.processor.ExecuteNow(workType, ""); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":    "executed",
		"work_type": workType,
	})
}

// ExecuteWorkTypeWithSubject runs a work type for one service immediately.
func (h *Handlers) ExecuteWorkTypeWithSubject(w http.ResponseWriter, r *http.Request) {
	workType := chi.URLParam(r, "workType")
	subject := chi.URLParam(r, "subject")

	if err := h.processor.ExecuteNow(workType, subject); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":    "executed",
		"work_type": workType,
		"subject":   subject,
	})
}

// History lists recent recorded runs, newest first. Optional query
// parameters: job_type narrows to one work type, limit caps the page
// (default 50).
func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]gateway.JobRun{})
		return
	}

	jobType := r.URL.Query().Get("job_type")
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	runs, err := h.history.Recent(r.Context(), jobType, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []gateway.JobRun{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(runs)
}

// TriggerProcessor wakes the processor to look for due work.
func (h *Handlers) TriggerProcessor(w http.ResponseWriter, r *http.Request) {
	h.processor.Trigger()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "triggered",
	})
}
