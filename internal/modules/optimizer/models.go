package optimizer

import (
	"math"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/workforcelab/intraday/internal/domain"
)

const (
	// DefaultPrimaryShare caps how much of a multi-skill operator's
	// capacity their primary skill may take before the overflow tier
	// lifts the cap.
	DefaultPrimaryShare = 0.70
	// DefaultTargetUtilization ceils the load-balanced target when the
	// cohort has more capacity than demand.
	DefaultTargetUtilization = 0.85
	// DefaultDevelopmentReserve is the fraction of a developing
	// operator's hours held back for practice assignments.
	DefaultDevelopmentReserve = 0.20
	// DefaultHourlyCost prices an operator-hour in the cost objective
	// when no rate is supplied.
	DefaultHourlyCost = 35.0
	// proficientShare is the minimum share of each skill's demand that
	// development mode staffs with operators at or above the demanded
	// proficiency.
	proficientShare = 0.70
	// practiceRatio gates practice eligibility: an under-proficient
	// operator must already be at this fraction of the demanded level.
	practiceRatio = 0.5
	// epsilonHours swallows float drift when draining hour balances.
	epsilonHours = 1e-9
)

// Config tunes the assignment objectives.
type Config struct {
	PrimaryShare       float64
	TargetUtilization  float64
	DevelopmentReserve float64
	HourlyCost         float64
}

func (c Config) withDefaults() Config {
	if c.PrimaryShare <= 0 || c.PrimaryShare > 1 {
		c.PrimaryShare = DefaultPrimaryShare
	}
	if c.TargetUtilization <= 0 || c.TargetUtilization > 1 {
		c.TargetUtilization = DefaultTargetUtilization
	}
	if c.DevelopmentReserve <= 0 || c.DevelopmentReserve > 1 {
		c.DevelopmentReserve = DefaultDevelopmentReserve
	}
	if c.HourlyCost <= 0 {
		c.HourlyCost = DefaultHourlyCost
	}
	return c
}

// Mode selects the assignment objective.
type Mode string

const (
	ModePriority    Mode = "priority"
	ModeLoadBalance Mode = "load_balanced"
	ModeCostMin     Mode = "cost_min"
	ModeDevelopment Mode = "skill_development"
)

func (m Mode) valid() bool {
	switch m {
	case ModePriority, ModeLoadBalance, ModeCostMin, ModeDevelopment:
		return true
	}
	return false
}

// Demand asks for a number of operator-hours on one skill over the
// request window. MinProficiency is the level (1-5) the skill expects;
// zero means any level serves.
type Demand struct {
	SkillID        string  `json:"skill_id"`
	Hours          float64 `json:"hours"`
	MinProficiency int     `json:"min_proficiency,omitempty"`
}

// Operator is the solver's view of one employee: assignable hours in the
// window plus the capability set.
type Operator struct {
	EmployeeID string
	Name       string
	Hours      float64
	HourlyCost float64
	Skills     []domain.EmployeeSkill
}

// Proficiency returns the operator's level for a skill, or 0 when the
// skill is outside their capability set.
func (o *Operator) Proficiency(skillID string) int {
	for _, s := range o.Skills {
		if s.SkillID == skillID {
			return s.Proficiency
		}
	}
	return 0
}

// PrimarySkill returns the skill flagged primary, falling back to the
// first declared skill.
func (o *Operator) PrimarySkill() string {
	for _, s := range o.Skills {
		if s.Primary {
			return s.SkillID
		}
	}
	if len(o.Skills) > 0 {
		return o.Skills[0].SkillID
	}
	return ""
}

// MonoSkill reports whether the operator holds exactly one skill.
func (o *Operator) MonoSkill() bool {
	return len(o.Skills) == 1
}

// Assignment is one (operator, skill) slice of a plan. Tier records which
// priority tier granted it (0 outside priority mode); Practice marks
// development hours staffed below the demanded proficiency on purpose.
type Assignment struct {
	EmployeeID  string  `json:"employee_id"`
	SkillID     string  `json:"skill_id"`
	Hours       float64 `json:"hours"`
	Proficiency int     `json:"proficiency"`
	Tier        int     `json:"tier,omitempty"`
	Practice    bool    `json:"practice,omitempty"`
}

// Result is a finished assignment plan with its quality metrics.
// Coverage and Unmet are keyed by skill id, Utilization by employee id.
type Result struct {
	Mode        Mode               `json:"mode"`
	Assignments []Assignment       `json:"assignments"`
	Coverage    map[string]float64 `json:"coverage_pct"`
	Utilization map[string]float64 `json:"utilization_pct"`
	Unmet       map[string]float64 `json:"unmet_hours"`
	Score       float64            `json:"score"`
	Feasible    bool               `json:"feasible"`
	Duration    time.Duration      `json:"duration_ns"`
}

// summarize fills the metric maps and the blended score from the
// assignment set. Score = 0.4·avg coverage + 0.3·avg utilization +
// 0.3·hours-weighted proficiency, each term on a 0-100 scale.
func (r *Result) summarize(demands []Demand, operators []Operator) {
	demanded := make(map[string]float64, len(demands))
	for _, d := range demands {
		demanded[d.SkillID] += d.Hours
	}
	bySkill := make(map[string]float64, len(demanded))
	for _, a := range r.Assignments {
		bySkill[a.SkillID] += a.Hours
	}

	r.Coverage = make(map[string]float64, len(demanded))
	r.Unmet = make(map[string]float64, len(demanded))
	var coverageSum float64
	for skill, want := range demanded {
		pct := 0.0
		if want > 0 {
			pct = math.Min(bySkill[skill]/want, 1) * 100
		}
		r.Coverage[skill] = pct
		r.Unmet[skill] = math.Max(want-bySkill[skill], 0)
		coverageSum += pct
	}

	byEmployee := make(map[string]float64, len(operators))
	for _, a := range r.Assignments {
		byEmployee[a.EmployeeID] += a.Hours
	}
	r.Utilization = make(map[string]float64, len(operators))
	var utilSum float64
	for i := range operators {
		op := &operators[i]
		pct := 0.0
		if op.Hours > 0 {
			pct = byEmployee[op.EmployeeID] / op.Hours * 100
		}
		r.Utilization[op.EmployeeID] = pct
		utilSum += pct
	}

	var profHours, totalHours float64
	for _, a := range r.Assignments {
		profHours += float64(a.Proficiency) / 5 * a.Hours
		totalHours += a.Hours
	}

	var avgCoverage, avgUtil, avgProf float64
	if len(demanded) > 0 {
		avgCoverage = coverageSum / float64(len(demanded))
	}
	if len(operators) > 0 {
		avgUtil = utilSum / float64(len(operators))
	}
	if totalHours > 0 {
		avgProf = profHours / totalHours
	}
	r.Score = 0.4*avgCoverage + 0.3*avgUtil + 0.3*avgProf*100
}

// ProficiencyViolation flags one assignment staffed below the minimum
// the skill's demand asked for.
type ProficiencyViolation struct {
	EmployeeID     string  `json:"employee_id"`
	SkillID        string  `json:"skill_id"`
	Proficiency    int     `json:"proficiency"`
	MinProficiency int     `json:"min_proficiency"`
	Hours          float64 `json:"hours"`
	Practice       bool    `json:"practice"`
}

// CheckProficiency lists every assignment whose operator sits below the
// demanded minimum for the skill. Practice hours are reported too so
// callers that sanctioned them can filter on the flag. When a skill is
// demanded at several minimums the strictest one applies.
func CheckProficiency(demands []Demand, assignments []Assignment) []ProficiencyViolation {
	minBySkill := make(map[string]int, len(demands))
	for _, d := range demands {
		if d.MinProficiency > minBySkill[d.SkillID] {
			minBySkill[d.SkillID] = d.MinProficiency
		}
	}
	var out []ProficiencyViolation
	for _, a := range assignments {
		need, ok := minBySkill[a.SkillID]
		if !ok || need == 0 || a.Proficiency >= need {
			continue
		}
		out = append(out, ProficiencyViolation{
			EmployeeID:     a.EmployeeID,
			SkillID:        a.SkillID,
			Proficiency:    a.Proficiency,
			MinProficiency: need,
			Hours:          a.Hours,
			Practice:       a.Practice,
		})
	}
	return out
}

// grantKey identifies one (operator, demand, tier, practice) bucket of
// granted hours.
type grantKey struct {
	op, dem, tier int
	practice      bool
}

// solver tracks remaining capacity and demand while an objective drains
// them into grants.
type solver struct {
	demands   []Demand
	operators []Operator
	opLeft    []float64
	demLeft   []float64
	hours     map[grantKey]float64
}

func newSolver(demands []Demand, operators []Operator) *solver {
	s := &solver{
		demands:   demands,
		operators: operators,
		opLeft:    make([]float64, len(operators)),
		demLeft:   make([]float64, len(demands)),
		hours:     make(map[grantKey]float64),
	}
	for i := range operators {
		s.opLeft[i] = math.Max(operators[i].Hours, 0)
	}
	for j := range demands {
		s.demLeft[j] = math.Max(demands[j].Hours, 0)
	}
	return s
}

// grant moves up to h hours from operator op onto demand dem, clamped by
// both remaining balances. Returns the hours actually granted.
func (s *solver) grant(op, dem, tier int, practice bool, h float64) float64 {
	h = math.Min(h, math.Min(s.opLeft[op], s.demLeft[dem]))
	if h < epsilonHours {
		return 0
	}
	s.opLeft[op] -= h
	s.demLeft[dem] -= h
	s.hours[grantKey{op: op, dem: dem, tier: tier, practice: practice}] += h
	return h
}

// assignments flattens the grant buckets into a deterministically ordered
// slice: operator order, then demand order, then tier.
func (s *solver) assignments() []Assignment {
	keys := lo.Keys(s.hours)
	sort.Slice(keys, func(a, b int) bool {
		ka, kb := keys[a], keys[b]
		if ka.op != kb.op {
			return ka.op < kb.op
		}
		if ka.dem != kb.dem {
			return ka.dem < kb.dem
		}
		if ka.tier != kb.tier {
			return ka.tier < kb.tier
		}
		return !ka.practice && kb.practice
	})
	out := make([]Assignment, 0, len(keys))
	for _, k := range keys {
		op := &s.operators[k.op]
		skill := s.demands[k.dem].SkillID
		out = append(out, Assignment{
			EmployeeID:  op.EmployeeID,
			SkillID:     skill,
			Hours:       s.hours[k],
			Proficiency: op.Proficiency(skill),
			Tier:        k.tier,
			Practice:    k.practice,
		})
	}
	return out
}
