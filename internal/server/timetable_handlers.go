package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/workforcelab/intraday/internal/domain"
	"github.com/workforcelab/intraday/internal/gateway"
	"github.com/workforcelab/intraday/internal/modules/timetable"
)

// TimetableHandlers exposes plan generation, manual adjustments, block
// queries and template management.
type TimetableHandlers struct {
	planner *timetable.Planner
	gateway *gateway.Gateway
	log     zerolog.Logger
}

// NewTimetableHandlers creates timetable endpoints.
func NewTimetableHandlers(planner *timetable.Planner, gw *gateway.Gateway, log zerolog.Logger) *TimetableHandlers {
	return &TimetableHandlers{
		planner: planner,
		gateway: gw,
		log:     log.With().Str("component", "timetable_handlers").Logger(),
	}
}

// RegisterRoutes mounts the timetable routes.
func (h *TimetableHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/timetable", func(r chi.Router) {
		r.Post("/plan", h.HandlePlan)
		r.Post("/adjust", h.HandleAdjust)
		r.Get("/blocks", h.HandleBlocks)
		r.Post("/templates", h.HandleRegisterTemplate)
		r.Get("/templates/{code}", h.HandleGetTemplate)
	})
}

type planRequest struct {
	EmployeeIDs  []string  `json:"employee_ids" validate:"required,min=1,dive,required"`
	Start        time.Time `json:"start" validate:"required"`
	End          time.Time `json:"end" validate:"required"`
	TemplateCode string    `json:"template_code,omitempty"`
	ServiceID    string    `json:"service_id,omitempty"`
	DryRun       bool      `json:"dry_run,omitempty"`
}

// HandlePlan handles POST /api/timetable/plan.
func (h *TimetableHandlers) HandlePlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(h.log, w, err)
		return
	}

	result, err := h.planner.PlanRange(r.Context(), timetable.PlanRequest{
		EmployeeIDs:  req.EmployeeIDs,
		Range:        domain.NewDateRange(req.Start, req.End),
		TemplateCode: req.TemplateCode,
		ServiceID:    req.ServiceID,
		DryRun:       req.DryRun,
	})
	if err != nil {
		writeError(h.log, w, err)
		return
	}

	writeJSON(h.log, w, http.StatusOK, result)
}

type adjustRequest struct {
	EmployeeID string    `json:"employee_id" validate:"required"`
	From       time.Time `json:"from" validate:"required"`
	To         time.Time `json:"to" validate:"required"`
	Op         string    `json:"op" validate:"required"`
	SkillID    string    `json:"skill_id,omitempty"`
	ProjectID  string    `json:"project_id,omitempty"`
	Event      string    `json:"event,omitempty"`
}

// HandleAdjust handles POST /api/timetable/adjust. Writes against locked
// blocks answer Conflict and leave the plan untouched.
func (h *TimetableHandlers) HandleAdjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(h.log, w, err)
		return
	}

	result, err := h.planner.Adjust(r.Context(), timetable.Adjustment{
		EmployeeID: req.EmployeeID,
		From:       req.From,
		To:         req.To,
		Op:         timetable.Op(req.Op),
		SkillID:    req.SkillID,
		ProjectID:  req.ProjectID,
		Event:      domain.ActivityType(req.Event),
	})
	if err != nil {
		writeError(h.log, w, err)
		return
	}

	writeJSON(h.log, w, http.StatusOK, result)
}

// HandleBlocks handles GET /api/timetable/blocks?employee_id=&start=&end=.
func (h *TimetableHandlers) HandleBlocks(w http.ResponseWriter, r *http.Request) {
	employeeID := r.URL.Query().Get("employee_id")
	if employeeID == "" {
		writeError(h.log, w, fmt.Errorf("%w: employee_id query parameter is required", domain.ErrValidation))
		return
	}
	dr, err := queryRange(r)
	if err != nil {
		writeError(h.log, w, err)
		return
	}

	blocks, err := h.gateway.LoadTimetableBlocks(r.Context(), dr, []string{employeeID})
	if err != nil {
		writeError(h.log, w, err)
		return
	}
	if blocks == nil {
		blocks = []domain.TimetableBlock{}
	}

	writeJSON(h.log, w, http.StatusOK, blocks)
}

// HandleRegisterTemplate handles POST /api/timetable/templates. Zero-valued
// knobs inherit from the default template.
func (h *TimetableHandlers) HandleRegisterTemplate(w http.ResponseWriter, r *http.Request) {
	var tmpl timetable.Template
	if err := decodeJSON(r, &tmpl); err != nil {
		writeError(h.log, w, err)
		return
	}
	if tmpl.Code == "" {
		writeError(h.log, w, fmt.Errorf("%w: template code is required", domain.ErrValidation))
		return
	}

	if err := h.planner.RegisterTemplate(tmpl); err != nil {
		writeError(h.log, w, err)
		return
	}

	registered, err := h.planner.Template(tmpl.Code)
	if err != nil {
		writeError(h.log, w, err)
		return
	}

	writeJSON(h.log, w, http.StatusCreated, registered)
}

// HandleGetTemplate handles GET /api/timetable/templates/{code}.
func (h *TimetableHandlers) HandleGetTemplate(w http.ResponseWriter, r *http.Request) {
	tmpl, err := h.planner.Template(chi.URLParam(r, "code"))
	if err != nil {
		writeError(h.log, w, err)
		return
	}
	writeJSON(h.log, w, http.StatusOK, tmpl)
}
