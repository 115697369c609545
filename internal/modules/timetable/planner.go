// Package timetable turns published shifts into 15-minute activity block
// plans: work with rotating skills, lunches inside their legal window,
// short breaks on cadence, permission masking, and an optional
// service-level rebalancing pass. Plans persist through the gateway and
// manual adjustments ride the same change feed the violation monitor
// watches.
package timetable

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/workforcelab/intraday/internal/domain"
	"github.com/workforcelab/intraday/internal/events"
	"github.com/workforcelab/intraday/internal/modules/compliance"
)

// Store is the slice of the repository gateway the planner needs.
type Store interface {
	LoadEmployeeProfiles(ctx context.Context, ids []string) ([]domain.Employee, error)
	LoadShifts(ctx context.Context, r domain.DateRange, employeeIDs []string) ([]domain.Shift, error)
	LoadSchedulePreferences(ctx context.Context, r domain.DateRange, employeeIDs []string) ([]domain.SchedulePreference, error)
	LoadForecast(ctx context.Context, r domain.DateRange, serviceIDs []string) ([]domain.ForecastInterval, error)
	LoadTimetableBlocks(ctx context.Context, r domain.DateRange, employeeIDs []string) ([]domain.TimetableBlock, error)
	PersistTimetableBlocks(ctx context.Context, blocks []domain.TimetableBlock, kind string) error
}

// Checker re-validates freshly planned employees. Satisfied by
// *compliance.Service.
type Checker interface {
	ValidateBatch(ctx context.Context, employeeIDs []string, r domain.DateRange, parallel bool) (*compliance.BulkResult, error)
}

// Invalidator drops cached compliance verdicts before the post-plan check.
// Satisfied by *compliance.ResultCache.
type Invalidator interface {
	InvalidateEmployee(ctx context.Context, employeeID string)
}

// Planner builds and adjusts timetable block plans.
type Planner struct {
	store       Store
	checker     Checker     // optional
	invalidator Invalidator // optional
	bus         *events.Bus
	log         zerolog.Logger

	mu        sync.RWMutex
	templates map[string]Template
}

// New creates a planner carrying the built-in default template. checker and
// invalidator may be nil; without a checker, plan results report compliant.
func New(store Store, checker Checker, invalidator Invalidator, bus *events.Bus, log zerolog.Logger) *Planner {
	return &Planner{
		store:       store,
		checker:     checker,
		invalidator: invalidator,
		bus:         bus,
		log:         log.With().Str("module", "timetable").Logger(),
		templates:   map[string]Template{DefaultTemplateCode: DefaultTemplate()},
	}
}

// RegisterTemplate adds or replaces a named template. Zero-valued knobs are
// filled from the default template before validation.
func (p *Planner) RegisterTemplate(t Template) error {
	t = t.normalized()
	if err := t.validate(); err != nil {
		return err
	}
	p.mu.Lock()
	p.templates[t.Code] = t
	p.mu.Unlock()
	p.log.Debug().Str("template", t.Code).Str("objective", string(t.Objective)).Msg("Registered template")
	return nil
}

// Template returns a registered template. An empty code selects the
// default.
func (p *Planner) Template(code string) (Template, error) {
	if code == "" {
		code = DefaultTemplateCode
	}
	p.mu.RLock()
	t, ok := p.templates[code]
	p.mu.RUnlock()
	if !ok {
		return Template{}, fmt.Errorf("%w: template %s", domain.ErrNotFound, code)
	}
	return t, nil
}

// PlanRequest describes one planning run.
type PlanRequest struct {
	EmployeeIDs  []string         `json:"employee_ids"`
	Range        domain.DateRange `json:"range"`
	TemplateCode string           `json:"template_code,omitempty"`
	// ServiceID selects the forecast for the rebalancing pass; without it
	// the pass is skipped even when the template asks for it.
	ServiceID string `json:"service_id,omitempty"`
	// DryRun builds the plan without persisting, checking or emitting.
	DryRun bool `json:"dry_run,omitempty"`
}

// PlanResult is the outcome of one planning run.
type PlanResult struct {
	Blocks     []domain.TimetableBlock `json:"blocks"`
	Employees  int                     `json:"employees"`
	Days       int                     `json:"days"`
	BreakMoves int                     `json:"break_moves"`
	Compliant  bool                    `json:"compliant"`
	Score      float64                 `json:"score"`
	Duration   time.Duration           `json:"duration_ns"`
}

// PlanRange plans every shift of the requested employees inside the range.
// Shifts decompose independently; the rebalancing pass then shuffles breaks
// across the cohort when the template's objective and a service id call for
// it. Identical inputs produce identical plans.
func (p *Planner) PlanRange(ctx context.Context, req PlanRequest) (*PlanResult, error) {
	started := time.Now()
	if err := req.Range.Validate(); err != nil {
		return nil, err
	}
	if len(req.EmployeeIDs) == 0 {
		return nil, fmt.Errorf("%w: no employees to plan", domain.ErrValidation)
	}
	tmpl, err := p.Template(req.TemplateCode)
	if err != nil {
		return nil, err
	}

	employees, err := p.store.LoadEmployeeProfiles(ctx, req.EmployeeIDs)
	if err != nil {
		return nil, err
	}
	byID := lo.KeyBy(employees, func(e domain.Employee) string { return e.ID })
	for _, id := range req.EmployeeIDs {
		if _, ok := byID[id]; !ok {
			return nil, fmt.Errorf("%w: employee %s", domain.ErrNotFound, id)
		}
	}

	shifts, err := p.store.LoadShifts(ctx, req.Range, req.EmployeeIDs)
	if err != nil {
		return nil, err
	}
	prefs, err := p.store.LoadSchedulePreferences(ctx, req.Range, req.EmployeeIDs)
	if err != nil {
		return nil, err
	}
	prefByDay := make(map[string]*domain.SchedulePreference, len(prefs))
	for i := range prefs {
		prefByDay[prefKey(prefs[i].EmployeeID, prefs[i].Date)] = &prefs[i]
	}

	sort.Slice(shifts, func(i, j int) bool {
		if shifts[i].EmployeeID != shifts[j].EmployeeID {
			return shifts[i].EmployeeID < shifts[j].EmployeeID
		}
		return shifts[i].StartTime().Before(shifts[j].StartTime())
	})

	plans := make(map[string][]domain.TimetableBlock)
	for i := range shifts {
		sh := shifts[i]
		emp := byID[sh.EmployeeID]
		pref := prefByDay[prefKey(sh.EmployeeID, sh.Date)]
		plans[sh.EmployeeID] = append(plans[sh.EmployeeID], buildShiftBlocks(&emp, sh, pref, tmpl)...)
	}

	moves := 0
	if tmpl.Objective == ObjectiveServiceLevel && req.ServiceID != "" && len(plans) > 0 {
		// Midnight crossers spill blocks past the range end, so the
		// forecast covers one extra day.
		forecastRange := domain.DateRange{Start: req.Range.Start, End: req.Range.End.AddDate(0, 0, 1)}
		forecast, err := p.store.LoadForecast(ctx, forecastRange, []string{req.ServiceID})
		if err != nil {
			return nil, err
		}
		moves = rebalanceBreaks(plans, forecast, tmpl.Breaks)
	}

	all := flattenPlans(plans)
	res := &PlanResult{
		Blocks:     all,
		Employees:  len(plans),
		Days:       req.Range.DayCount(),
		BreakMoves: moves,
		Compliant:  true,
		Score:      1.0,
	}
	if req.DryRun || len(all) == 0 {
		res.Duration = time.Since(started)
		return res, nil
	}

	if err := p.store.PersistTimetableBlocks(ctx, all, "plan"); err != nil {
		return nil, err
	}
	p.check(ctx, req.Range, plans, res)
	res.Duration = time.Since(started)

	p.bus.Emit("timetable", &events.PlanGeneratedData{
		Employees:  res.Employees,
		Days:       res.Days,
		Blocks:     len(all),
		Compliant:  res.Compliant,
		Score:      res.Score,
		DurationMs: res.Duration.Milliseconds(),
	})
	p.log.Info().
		Int("employees", res.Employees).
		Int("shifts", len(shifts)).
		Int("blocks", len(all)).
		Int("break_moves", moves).
		Bool("compliant", res.Compliant).
		Dur("duration", res.Duration).
		Msg("Generated timetable plan")
	return res, nil
}

// check runs the post-plan compliance verdict over the planned employees.
// Cached verdicts are dropped first so the check sees the new blocks. A
// failed check marks the plan non-compliant rather than failing the run.
func (p *Planner) check(ctx context.Context, r domain.DateRange, plans map[string][]domain.TimetableBlock, res *PlanResult) {
	if p.checker == nil {
		return
	}
	ids := lo.Keys(plans)
	sort.Strings(ids)
	if p.invalidator != nil {
		for _, id := range ids {
			p.invalidator.InvalidateEmployee(ctx, id)
		}
	}
	sum, err := p.checker.ValidateBatch(ctx, ids, r, true)
	if err != nil {
		p.log.Warn().Err(err).Msg("Post-plan compliance check failed")
		res.Compliant, res.Score = false, 0
		return
	}
	res.Compliant = sum.NonCompliant == 0 && sum.Failed == 0
	res.Score = sum.AverageScore
}

// PlanDay previews one employee's blocks for a single day. Nothing is
// persisted and no events fire.
func (p *Planner) PlanDay(ctx context.Context, employeeID string, day time.Time, templateCode string) ([]domain.TimetableBlock, error) {
	day = domain.Day(day)
	res, err := p.PlanRange(ctx, PlanRequest{
		EmployeeIDs:  []string{employeeID},
		Range:        domain.DateRange{Start: day, End: day.AddDate(0, 0, 1)},
		TemplateCode: templateCode,
		DryRun:       true,
	})
	if err != nil {
		return nil, err
	}
	return res.Blocks, nil
}

func flattenPlans(plans map[string][]domain.TimetableBlock) []domain.TimetableBlock {
	ids := lo.Keys(plans)
	sort.Strings(ids)
	all := make([]domain.TimetableBlock, 0, len(plans)*32)
	for _, id := range ids {
		all = append(all, plans[id]...)
	}
	return all
}

func prefKey(employeeID string, day time.Time) string {
	return employeeID + "|" + domain.Day(day).Format("2006-01-02")
}
