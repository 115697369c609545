package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/workforcelab/intraday/internal/domain"
	"github.com/workforcelab/intraday/internal/modules/optimizer"
)

// OptimizerHandlers exposes multi-skill assignment runs and proficiency
// audits of finished plans.
type OptimizerHandlers struct {
	service *optimizer.Service
	log     zerolog.Logger
}

// NewOptimizerHandlers creates optimizer endpoints.
func NewOptimizerHandlers(service *optimizer.Service, log zerolog.Logger) *OptimizerHandlers {
	return &OptimizerHandlers{
		service: service,
		log:     log.With().Str("component", "optimizer_handlers").Logger(),
	}
}

// RegisterRoutes mounts the optimizer routes.
func (h *OptimizerHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/optimizer", func(r chi.Router) {
		r.Post("/assign", h.HandleAssign)
		r.Post("/proficiency", h.HandleCheckProficiency)
	})
}

type assignRequest struct {
	EmployeeIDs []string           `json:"employee_ids" validate:"required,min=1,dive,required"`
	Start       time.Time          `json:"start" validate:"required"`
	End         time.Time          `json:"end" validate:"required"`
	Demands     []optimizer.Demand `json:"demands" validate:"required,min=1"`
	Mode        string             `json:"mode,omitempty"`
	HourlyCosts map[string]float64 `json:"hourly_costs,omitempty"`
}

// HandleAssign handles POST /api/optimizer/assign.
func (h *OptimizerHandlers) HandleAssign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(h.log, w, err)
		return
	}

	result, err := h.service.Assign(r.Context(), optimizer.Request{
		EmployeeIDs: req.EmployeeIDs,
		Range:       domain.NewDateRange(req.Start, req.End),
		Demands:     req.Demands,
		Mode:        optimizer.Mode(req.Mode),
		HourlyCosts: req.HourlyCosts,
	})
	if err != nil {
		writeError(h.log, w, err)
		return
	}

	writeJSON(h.log, w, http.StatusOK, result)
}

type proficiencyRequest struct {
	Demands     []optimizer.Demand     `json:"demands" validate:"required,min=1"`
	Assignments []optimizer.Assignment `json:"assignments" validate:"required"`
}

// HandleCheckProficiency handles POST /api/optimizer/proficiency. It audits
// an assignment plan against demand minimums without recomputing it.
func (h *OptimizerHandlers) HandleCheckProficiency(w http.ResponseWriter, r *http.Request) {
	var req proficiencyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(h.log, w, err)
		return
	}

	violations := optimizer.CheckProficiency(req.Demands, req.Assignments)
	if violations == nil {
		violations = []optimizer.ProficiencyViolation{}
	}

	writeJSON(h.log, w, http.StatusOK, map[string]any{
		"violations": violations,
		"clean":      len(violations) == 0,
	})
}
