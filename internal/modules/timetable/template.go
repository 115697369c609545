package timetable

import (
	"fmt"
	"time"

	"github.com/workforcelab/intraday/internal/domain"
)

// DefaultTemplateCode names the built-in template every planner carries.
const DefaultTemplateCode = "default"

// Objective selects the planner's optional global rebalancing pass.
type Objective string

const (
	// ObjectiveNone stops the pipeline after break insertion.
	ObjectiveNone Objective = "none"
	// ObjectiveServiceLevel moves unlocked breaks out of understaffed
	// intervals to protect an 80/20 service level.
	ObjectiveServiceLevel Objective = "service_level_80_20"
)

// LunchPolicy bounds where and how long a lunch may be placed.
type LunchPolicy struct {
	EarliestStart domain.TimeOfDay `json:"earliest_start"`
	LatestStart   domain.TimeOfDay `json:"latest_start"`
	MinDuration   time.Duration    `json:"min_duration"`
	MaxDuration   time.Duration    `json:"max_duration"`
	// MinHoursBefore is how far into the shift the lunch may start at the
	// earliest.
	MinHoursBefore float64 `json:"min_hours_before"`
	// RequiredFromHours is the shift length at which a lunch is planned at
	// all.
	RequiredFromHours float64 `json:"required_from_hours"`
}

// BreakPolicy drives short-break cadence during the walk over a shift.
type BreakPolicy struct {
	Duration time.Duration `json:"duration"`
	// FrequencyHours places a break roughly every that many worked hours.
	FrequencyHours float64 `json:"frequency_hours"`
	// Spacing is the minimum rest-to-rest distance.
	Spacing time.Duration `json:"spacing"`
	// MaxDelay bounds how far past its due point a break may slip when the
	// due blocks cannot be converted.
	MaxDelay time.Duration `json:"max_delay"`
	// MaxConsecutiveWorkHours is the hard cap that forces a break
	// regardless of cadence.
	MaxConsecutiveWorkHours float64 `json:"max_consecutive_work_hours"`
}

// Template bundles the knobs one planning run works under.
type Template struct {
	Code         string      `json:"code"`
	Lunch        LunchPolicy `json:"lunch"`
	Breaks       BreakPolicy `json:"breaks"`
	PrimaryShare float64     `json:"primary_share"`
	Objective    Objective   `json:"objective"`
}

// DefaultTemplate returns the stock template: lunch window 11:00-14:00 at
// least two hours into the shift, 15-minute breaks every two worked hours,
// never more than four hours without rest, 70% of work on the primary skill.
func DefaultTemplate() Template {
	return Template{
		Code: DefaultTemplateCode,
		Lunch: LunchPolicy{
			EarliestStart:     domain.NewTimeOfDay(11, 0),
			LatestStart:       domain.NewTimeOfDay(14, 0),
			MinDuration:       30 * time.Minute,
			MaxDuration:       60 * time.Minute,
			MinHoursBefore:    2.0,
			RequiredFromHours: 6.0,
		},
		Breaks: BreakPolicy{
			Duration:                15 * time.Minute,
			FrequencyHours:          2.0,
			Spacing:                 90 * time.Minute,
			MaxDelay:                30 * time.Minute,
			MaxConsecutiveWorkHours: 4.0,
		},
		PrimaryShare: 0.70,
		Objective:    ObjectiveServiceLevel,
	}
}

// normalized fills zero-valued knobs from the stock template so partially
// specified templates behave predictably.
func (t Template) normalized() Template {
	def := DefaultTemplate()
	if t.Lunch.EarliestStart == 0 {
		t.Lunch.EarliestStart = def.Lunch.EarliestStart
	}
	if t.Lunch.LatestStart == 0 {
		t.Lunch.LatestStart = def.Lunch.LatestStart
	}
	if t.Lunch.MinDuration == 0 {
		t.Lunch.MinDuration = def.Lunch.MinDuration
	}
	if t.Lunch.MaxDuration == 0 {
		t.Lunch.MaxDuration = def.Lunch.MaxDuration
	}
	if t.Lunch.MinHoursBefore == 0 {
		t.Lunch.MinHoursBefore = def.Lunch.MinHoursBefore
	}
	if t.Lunch.RequiredFromHours == 0 {
		t.Lunch.RequiredFromHours = def.Lunch.RequiredFromHours
	}
	if t.Breaks.Duration == 0 {
		t.Breaks.Duration = def.Breaks.Duration
	}
	if t.Breaks.FrequencyHours == 0 {
		t.Breaks.FrequencyHours = def.Breaks.FrequencyHours
	}
	if t.Breaks.Spacing == 0 {
		t.Breaks.Spacing = def.Breaks.Spacing
	}
	if t.Breaks.MaxDelay == 0 {
		t.Breaks.MaxDelay = def.Breaks.MaxDelay
	}
	if t.Breaks.MaxConsecutiveWorkHours == 0 {
		t.Breaks.MaxConsecutiveWorkHours = def.Breaks.MaxConsecutiveWorkHours
	}
	if t.PrimaryShare <= 0 || t.PrimaryShare > 1 {
		t.PrimaryShare = def.PrimaryShare
	}
	if t.Objective == "" {
		t.Objective = ObjectiveNone
	}
	return t
}

// validate rejects templates whose knobs cannot yield a legal plan.
func (t Template) validate() error {
	if t.Code == "" {
		return fmt.Errorf("%w: template code is required", domain.ErrValidation)
	}
	if t.Lunch.LatestStart <= t.Lunch.EarliestStart {
		return fmt.Errorf("%w: template %s: lunch window %s-%s is empty",
			domain.ErrValidation, t.Code, t.Lunch.EarliestStart, t.Lunch.LatestStart)
	}
	if t.Lunch.MaxDuration < t.Lunch.MinDuration {
		return fmt.Errorf("%w: template %s: lunch max %s below min %s",
			domain.ErrValidation, t.Code, t.Lunch.MaxDuration, t.Lunch.MinDuration)
	}
	if t.Breaks.MaxConsecutiveWorkHours < t.Breaks.FrequencyHours {
		return fmt.Errorf("%w: template %s: consecutive-work cap %.1fh below break frequency %.1fh",
			domain.ErrValidation, t.Code, t.Breaks.MaxConsecutiveWorkHours, t.Breaks.FrequencyHours)
	}
	switch t.Objective {
	case ObjectiveNone, ObjectiveServiceLevel:
	default:
		return fmt.Errorf("%w: template %s: unknown objective %q",
			domain.ErrValidation, t.Code, t.Objective)
	}
	return nil
}
