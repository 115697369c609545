package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/workforcelab/intraday/internal/domain"
	"github.com/workforcelab/intraday/internal/modules/compliance"
)

// ComplianceHandlers exposes single and batch rule evaluation.
type ComplianceHandlers struct {
	service *compliance.Service
	log     zerolog.Logger
}

// NewComplianceHandlers creates compliance endpoints.
func NewComplianceHandlers(service *compliance.Service, log zerolog.Logger) *ComplianceHandlers {
	return &ComplianceHandlers{
		service: service,
		log:     log.With().Str("component", "compliance_handlers").Logger(),
	}
}

// RegisterRoutes mounts the compliance routes.
func (h *ComplianceHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/compliance", func(r chi.Router) {
		r.Post("/validate", h.HandleValidateOne)
		r.Post("/validate/batch", h.HandleValidateBatch)
	})
}

type validateOneRequest struct {
	EmployeeID string    `json:"employee_id" validate:"required"`
	Start      time.Time `json:"start" validate:"required"`
	End        time.Time `json:"end" validate:"required"`
	UseCache   *bool     `json:"use_cache,omitempty"`
}

// HandleValidateOne handles POST /api/compliance/validate.
func (h *ComplianceHandlers) HandleValidateOne(w http.ResponseWriter, r *http.Request) {
	var req validateOneRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(h.log, w, err)
		return
	}

	useCache := true
	if req.UseCache != nil {
		useCache = *req.UseCache
	}

	result, err := h.service.ValidateOne(r.Context(), req.EmployeeID, domain.NewDateRange(req.Start, req.End), useCache)
	if err != nil {
		writeError(h.log, w, err)
		return
	}

	writeJSON(h.log, w, http.StatusOK, result)
}

type validateBatchRequest struct {
	EmployeeIDs []string  `json:"employee_ids" validate:"required,min=1,dive,required"`
	Start       time.Time `json:"start" validate:"required"`
	End         time.Time `json:"end" validate:"required"`
	Parallel    bool      `json:"parallel"`
}

// HandleValidateBatch handles POST /api/compliance/validate/batch.
// Per-employee failures ride inside the result envelope; the batch itself
// only fails on bad input.
func (h *ComplianceHandlers) HandleValidateBatch(w http.ResponseWriter, r *http.Request) {
	var req validateBatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(h.log, w, err)
		return
	}

	result, err := h.service.ValidateBatch(r.Context(), req.EmployeeIDs, domain.NewDateRange(req.Start, req.End), req.Parallel)
	if err != nil {
		writeError(h.log, w, err)
		return
	}

	writeJSON(h.log, w, http.StatusOK, result)
}
