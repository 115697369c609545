package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/workforcelab/intraday/internal/domain"
	"github.com/workforcelab/intraday/internal/modules/bulkvalidation"
)

// ValidationHandlers exposes department-scale validation runs: start,
// progress, result, cancel.
type ValidationHandlers struct {
	service *bulkvalidation.Service
	log     zerolog.Logger
}

// NewValidationHandlers creates bulk validation endpoints.
func NewValidationHandlers(service *bulkvalidation.Service, log zerolog.Logger) *ValidationHandlers {
	return &ValidationHandlers{
		service: service,
		log:     log.With().Str("component", "validation_handlers").Logger(),
	}
}

// RegisterRoutes mounts the validation routes.
func (h *ValidationHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/validations", func(r chi.Router) {
		r.Get("/", h.HandleListActive)
		r.Post("/", h.HandleStart)
		r.Post("/department/{departmentID}", h.HandleStartDepartment)
		r.Get("/{validationID}", h.HandleProgress)
		r.Get("/{validationID}/result", h.HandleResult)
		r.Delete("/{validationID}", h.HandleCancel)
	})
}

type startValidationRequest struct {
	EmployeeIDs  []string  `json:"employee_ids" validate:"required,min=1,dive,required"`
	Start        time.Time `json:"start" validate:"required"`
	End          time.Time `json:"end" validate:"required"`
	UseCache     bool      `json:"use_cache"`
	ValidationID string    `json:"validation_id,omitempty"`
}

// HandleStart handles POST /api/validations. The run proceeds in the
// background; poll the returned id for progress.
func (h *ValidationHandlers) HandleStart(w http.ResponseWriter, r *http.Request) {
	var req startValidationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(h.log, w, err)
		return
	}

	id, err := h.service.Start(r.Context(), req.EmployeeIDs, domain.NewDateRange(req.Start, req.End), bulkvalidation.Options{
		ValidationID: req.ValidationID,
		UseCache:     req.UseCache,
	})
	if err != nil {
		writeError(h.log, w, err)
		return
	}

	writeJSON(h.log, w, http.StatusAccepted, map[string]string{"validation_id": id})
}

type startDepartmentRequest struct {
	Start        time.Time `json:"start" validate:"required"`
	End          time.Time `json:"end" validate:"required"`
	UseCache     bool      `json:"use_cache"`
	ValidationID string    `json:"validation_id,omitempty"`
}

// HandleStartDepartment handles POST /api/validations/department/{departmentID}.
func (h *ValidationHandlers) HandleStartDepartment(w http.ResponseWriter, r *http.Request) {
	departmentID := chi.URLParam(r, "departmentID")

	var req startDepartmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(h.log, w, err)
		return
	}

	id, err := h.service.StartDepartment(r.Context(), departmentID, domain.NewDateRange(req.Start, req.End), bulkvalidation.Options{
		ValidationID: req.ValidationID,
		UseCache:     req.UseCache,
	})
	if err != nil {
		writeError(h.log, w, err)
		return
	}

	writeJSON(h.log, w, http.StatusAccepted, map[string]string{
		"validation_id": id,
		"department_id": departmentID,
	})
}

// HandleListActive handles GET /api/validations.
func (h *ValidationHandlers) HandleListActive(w http.ResponseWriter, r *http.Request) {
	active := h.service.Active()
	if active == nil {
		active = []bulkvalidation.Progress{}
	}
	writeJSON(h.log, w, http.StatusOK, active)
}

// HandleProgress handles GET /api/validations/{validationID}.
func (h *ValidationHandlers) HandleProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "validationID")

	progress, ok := h.service.Progress(id)
	if !ok {
		writeError(h.log, w, fmt.Errorf("%w: validation %s", domain.ErrNotFound, id))
		return
	}

	writeJSON(h.log, w, http.StatusOK, progress)
}

// HandleResult handles GET /api/validations/{validationID}/result. A run
// that is still going answers Conflict; poll progress until done.
func (h *ValidationHandlers) HandleResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "validationID")

	report, ok := h.service.Result(id)
	if !ok {
		if progress, running := h.service.Progress(id); running && !progress.Done {
			writeError(h.log, w, fmt.Errorf("%w: validation %s still running", domain.ErrConflict, id))
			return
		}
		writeError(h.log, w, fmt.Errorf("%w: validation %s", domain.ErrNotFound, id))
		return
	}

	writeJSON(h.log, w, http.StatusOK, report)
}

// HandleCancel handles DELETE /api/validations/{validationID}. Batches
// already finished keep their results; the report marks the run cancelled.
func (h *ValidationHandlers) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "validationID")

	if !h.service.Cancel(id) {
		writeError(h.log, w, fmt.Errorf("%w: validation %s", domain.ErrNotFound, id))
		return
	}

	writeJSON(h.log, w, http.StatusOK, map[string]any{
		"validation_id": id,
		"cancelled":     true,
	})
}
