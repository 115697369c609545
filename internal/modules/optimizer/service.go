// Package optimizer assigns multi-skill operator hours to skill demands.
// Four objectives are available: a deterministic four-tier priority
// hierarchy, utilization balancing, a cost-minimizing linear program with
// a priority fallback, and a skill-development mode that trades a slice
// of coverage for supervised practice hours.
package optimizer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/workforcelab/intraday/internal/domain"
	"github.com/workforcelab/intraday/internal/events"
)

// Store is the slice of the repository gateway the optimizer needs.
type Store interface {
	LoadEmployeeProfiles(ctx context.Context, ids []string) ([]domain.Employee, error)
	LoadShifts(ctx context.Context, r domain.DateRange, employeeIDs []string) ([]domain.Shift, error)
}

// Service turns skill demands and employee rosters into assignment plans.
type Service struct {
	cfg   Config
	store Store
	bus   *events.Bus
	log   zerolog.Logger
}

// New creates the assignment service. bus may be nil.
func New(cfg Config, store Store, bus *events.Bus, log zerolog.Logger) *Service {
	return &Service{
		cfg:   cfg.withDefaults(),
		store: store,
		bus:   bus,
		log:   log.With().Str("module", "optimizer").Logger(),
	}
}

// Request describes one assignment run. Operator capacity is the sum of
// the employee's shift hours inside Range scaled by their work rate.
type Request struct {
	EmployeeIDs []string         `json:"employee_ids"`
	Range       domain.DateRange `json:"range"`
	Demands     []Demand         `json:"demands"`
	Mode        Mode             `json:"mode,omitempty"`
	// HourlyCosts overrides the stock rate per employee for the
	// cost-minimizing objective.
	HourlyCosts map[string]float64 `json:"hourly_costs,omitempty"`
}

func (r *Request) validate() error {
	if err := r.Range.Validate(); err != nil {
		return err
	}
	if len(r.EmployeeIDs) == 0 {
		return fmt.Errorf("%w: no employees to assign", domain.ErrValidation)
	}
	if len(r.Demands) == 0 {
		return fmt.Errorf("%w: no skill demands", domain.ErrValidation)
	}
	for _, d := range r.Demands {
		if d.SkillID == "" {
			return fmt.Errorf("%w: demand without skill id", domain.ErrValidation)
		}
		if d.Hours <= 0 {
			return fmt.Errorf("%w: demand %s: hours must be positive", domain.ErrValidation, d.SkillID)
		}
		if d.MinProficiency < 0 || d.MinProficiency > 5 {
			return fmt.Errorf("%w: demand %s: min proficiency out of range", domain.ErrValidation, d.SkillID)
		}
	}
	if r.Mode != "" && !r.Mode.valid() {
		return fmt.Errorf("%w: unknown mode %s", domain.ErrValidation, r.Mode)
	}
	return nil
}

// Assign computes an assignment plan for the requested roster and
// demands. The priority objective is a pure function of its inputs; the
// cost objective falls back to it when the program is infeasible, with
// Feasible reporting which path produced the plan.
func (s *Service) Assign(ctx context.Context, req Request) (*Result, error) {
	started := time.Now()
	if err := req.validate(); err != nil {
		return nil, err
	}
	mode := req.Mode
	if mode == "" {
		mode = ModePriority
	}

	operators, err := s.loadOperators(ctx, req)
	if err != nil {
		return nil, err
	}

	var assignments []Assignment
	feasible := true
	switch mode {
	case ModePriority:
		assignments = assignPriority(req.Demands, operators, s.cfg.PrimaryShare)
	case ModeLoadBalance:
		assignments = assignBalanced(req.Demands, operators, s.cfg.TargetUtilization)
	case ModeCostMin:
		assignments, feasible = assignCostMin(req.Demands, operators)
		if !feasible {
			assignments = assignPriority(req.Demands, operators, s.cfg.PrimaryShare)
		}
	case ModeDevelopment:
		assignments = assignDevelopment(req.Demands, operators, s.cfg.DevelopmentReserve)
	}

	res := &Result{
		Mode:        mode,
		Assignments: assignments,
		Feasible:    feasible,
		Duration:    time.Since(started),
	}
	res.summarize(req.Demands, operators)

	if s.bus != nil {
		s.bus.Emit("optimizer", &events.AssignmentComputedData{
			Services:   len(req.Demands),
			Employees:  len(operators),
			Assigned:   len(assignments),
			Score:      res.Score,
			Strategy:   string(mode),
			Feasible:   feasible,
			DurationMs: res.Duration.Milliseconds(),
		})
	}
	s.log.Info().
		Str("mode", string(mode)).
		Int("employees", len(operators)).
		Int("demands", len(req.Demands)).
		Int("assignments", len(assignments)).
		Float64("score", res.Score).
		Bool("feasible", feasible).
		Dur("duration", res.Duration).
		Msg("Computed skill assignment")
	return res, nil
}

// loadOperators builds the solver roster: one operator per requested
// employee, ordered by id, with shift hours in the window scaled by the
// work rate.
func (s *Service) loadOperators(ctx context.Context, req Request) ([]Operator, error) {
	ids := lo.Uniq(req.EmployeeIDs)
	sort.Strings(ids)

	employees, err := s.store.LoadEmployeeProfiles(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := lo.KeyBy(employees, func(e domain.Employee) string { return e.ID })
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, fmt.Errorf("%w: employee %s", domain.ErrNotFound, id)
		}
	}

	shifts, err := s.store.LoadShifts(ctx, req.Range, ids)
	if err != nil {
		return nil, err
	}
	hours := make(map[string]float64, len(ids))
	for i := range shifts {
		hours[shifts[i].EmployeeID] += shifts[i].Duration().Hours()
	}

	operators := make([]Operator, 0, len(ids))
	for _, id := range ids {
		e := byID[id]
		rate := e.Constraints.WorkRate
		if rate <= 0 || rate > 1 {
			rate = 1
		}
		cost := req.HourlyCosts[id]
		if cost <= 0 {
			cost = s.cfg.HourlyCost
		}
		operators = append(operators, Operator{
			EmployeeID: id,
			Name:       e.Name,
			Hours:      hours[id] * rate,
			HourlyCost: cost,
			Skills:     e.Skills,
		})
	}
	return operators, nil
}
