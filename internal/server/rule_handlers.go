package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/workforcelab/intraday/internal/domain"
	"github.com/workforcelab/intraday/internal/modules/rules"
)

// RuleHandlers exposes the labor rule catalog.
type RuleHandlers struct {
	catalog *rules.Catalog
	log     zerolog.Logger
}

// NewRuleHandlers creates rule catalog endpoints.
func NewRuleHandlers(catalog *rules.Catalog, log zerolog.Logger) *RuleHandlers {
	return &RuleHandlers{
		catalog: catalog,
		log:     log.With().Str("component", "rule_handlers").Logger(),
	}
}

// RegisterRoutes mounts the rule catalog routes.
func (h *RuleHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/rules", func(r chi.Router) {
		r.Get("/", h.HandleListRules)
		r.Get("/limits/{category}", h.HandleLimits)
		r.Post("/refresh", h.HandleRefresh)
	})
}

// ruleSetResponse is the catalog in evaluation order.
type ruleSetResponse struct {
	Version     string       `json:"version"`
	Fingerprint string       `json:"fingerprint"`
	LoadedAt    time.Time    `json:"loaded_at"`
	Rules       []rules.Rule `json:"rules"`
}

// HandleListRules handles GET /api/rules. Rules come back in evaluation
// order, the same order validation walks them.
func (h *RuleHandlers) HandleListRules(w http.ResponseWriter, r *http.Request) {
	matrix := h.catalog.Matrix()

	order := matrix.Order()
	out := make([]rules.Rule, 0, len(order))
	for _, id := range order {
		if rule, ok := matrix.Rule(id); ok {
			out = append(out, rule)
		}
	}

	writeJSON(h.log, w, http.StatusOK, ruleSetResponse{
		Version:     matrix.Version(),
		Fingerprint: fmt.Sprintf("%016x", matrix.Fingerprint()),
		LoadedAt:    matrix.LoadedAt(),
		Rules:       out,
	})
}

// limitsResponse flattens the per-category bounds the compliance checks
// enforce.
type limitsResponse struct {
	Category domain.AgeCategory `json:"category"`

	DailyStdHours  float64 `json:"daily_std_hours"`
	DailyMaxHours  float64 `json:"daily_max_hours"`
	WeeklyStdHours float64 `json:"weekly_std_hours"`
	WeeklyMaxHours float64 `json:"weekly_max_hours"`
	RestMinHours   float64 `json:"rest_min_hours"`

	BreakMinutes        float64 `json:"break_minutes"`
	BreakPerWorkedHours float64 `json:"break_per_worked_hours"`

	LunchMinMinutes         float64 `json:"lunch_min_minutes"`
	LunchMaxMinutes         float64 `json:"lunch_max_minutes"`
	LunchEarliestAfterHours float64 `json:"lunch_earliest_after_hours"`
	LunchLatestStart        string  `json:"lunch_latest_start"`
	LunchRequiredFromHours  float64 `json:"lunch_required_from_hours"`

	MaxConsecutiveDays int `json:"max_consecutive_days"`
}

// HandleLimits handles GET /api/rules/limits/{category} for adult or minor.
func (h *RuleHandlers) HandleLimits(w http.ResponseWriter, r *http.Request) {
	cat := domain.AgeCategory(chi.URLParam(r, "category"))
	if cat != domain.AgeAdult && cat != domain.AgeMinor {
		writeError(h.log, w, fmt.Errorf("%w: category must be adult or minor, got %q", domain.ErrValidation, cat))
		return
	}

	limits := h.catalog.Matrix().Limits(cat)
	writeJSON(h.log, w, http.StatusOK, limitsResponse{
		Category:                cat,
		DailyStdHours:           limits.DailyStdHours,
		DailyMaxHours:           limits.DailyMaxHours,
		WeeklyStdHours:          limits.WeeklyStdHours,
		WeeklyMaxHours:          limits.WeeklyMaxHours,
		RestMinHours:            limits.RestMinHours,
		BreakMinutes:            limits.BreakMinutes,
		BreakPerWorkedHours:     limits.BreakPerWorkedHours,
		LunchMinMinutes:         limits.LunchMinMinutes,
		LunchMaxMinutes:         limits.LunchMaxMinutes,
		LunchEarliestAfterHours: limits.LunchEarliestAfterHours,
		LunchLatestStart:        limits.LunchLatestStart.String(),
		LunchRequiredFromHours:  limits.LunchRequiredFromHours,
		MaxConsecutiveDays:      limits.MaxConsecutiveDays,
	})
}

// HandleRefresh handles POST /api/rules/refresh: reload the rule file now
// instead of waiting for the TTL. A bad file leaves the current matrix in
// place and reports the parse error.
func (h *RuleHandlers) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Refresh(); err != nil {
		writeError(h.log, w, err)
		return
	}

	matrix := h.catalog.Matrix()
	writeJSON(h.log, w, http.StatusOK, map[string]any{
		"version":   matrix.Version(),
		"loaded_at": matrix.LoadedAt(),
		"rules":     len(matrix.Order()),
	})
}
