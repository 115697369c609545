package compliance

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/workforcelab/intraday/internal/domain"
	"github.com/workforcelab/intraday/internal/modules/rules"
)

// hoursEpsilon absorbs float noise when comparing aggregated hours against
// rule thresholds.
const hoursEpsilon = 1e-9

// Evaluate applies every enabled rule to one employee's preloaded work data.
// Rules run in matrix order and days in date order, so identical inputs
// always produce identical violation lists. Violation ids are the
// (employee, rule, day) coalescing key, which keeps persists idempotent
// across repeated checks.
//
// Minor employees breaching their daily or weekly caps are reported as
// SPECIAL_CONDITION_VIOLATION at the serious tier instead of the base rule.
func Evaluate(emp *domain.Employee, data *domain.EmployeeWorkData, matrix *rules.Matrix) ([]domain.Violation, []CheckedRule) {
	e := &evaluation{
		emp:    emp,
		data:   data,
		matrix: matrix,
		limits: effectiveLimits(emp.Constraints, matrix.Limits(emp.AgeCategory)),
		minor:  emp.AgeCategory == domain.AgeMinor,
		now:    time.Now().UTC(),
	}

	for _, id := range matrix.Order() {
		switch id {
		case domain.RuleDailyHours:
			e.checkDailyHours()
		case domain.RuleWeeklyHours:
			e.checkWeeklyHours()
		case domain.RuleRestBetween:
			e.checkRestBetween()
		case domain.RuleBreakQuota:
			e.checkBreakQuota()
		case domain.RuleLunch:
			e.checkLunch()
		case domain.RuleConsecutiveDays:
			e.checkConsecutiveDays()
		}
	}

	return e.violations, e.checks
}

// effectiveLimits tightens the statutory caps with per-employee contract
// limits. Personal caps never loosen the statutory ones.
func effectiveLimits(c domain.Constraints, l rules.Limits) rules.Limits {
	if c.MaxDailyHours > 0 {
		if c.MaxDailyHours < l.DailyStdHours {
			l.DailyStdHours = c.MaxDailyHours
		}
		if c.MaxDailyHours < l.DailyMaxHours {
			l.DailyMaxHours = c.MaxDailyHours
		}
	}
	if c.MaxWeeklyHours > 0 {
		if c.MaxWeeklyHours < l.WeeklyStdHours {
			l.WeeklyStdHours = c.MaxWeeklyHours
		}
		if c.MaxWeeklyHours < l.WeeklyMaxHours {
			l.WeeklyMaxHours = c.MaxWeeklyHours
		}
	}
	return l
}

type evaluation struct {
	emp    *domain.Employee
	data   *domain.EmployeeWorkData
	matrix *rules.Matrix
	limits rules.Limits
	minor  bool
	now    time.Time

	violations []domain.Violation
	checks     []CheckedRule
}

func (e *evaluation) newViolation(ruleID domain.RuleID, day time.Time, observed, required float64, unit string, tier domain.PenaltyTier, msg string) domain.Violation {
	return domain.Violation{
		ID:          domain.CoalescingKey(e.data.EmployeeID, ruleID, day),
		EmployeeID:  e.data.EmployeeID,
		RuleID:      ruleID,
		OccurredAt:  e.now,
		ShiftDate:   domain.Day(day),
		Observed:    observed,
		Required:    required,
		Unit:        unit,
		Severity:    domain.SeverityFromMagnitude(observed, required),
		Penalty:     tier,
		Message:     msg,
		Suggestions: SuggestionsFor(ruleID),
	}
}

func (e *evaluation) addCheck(id domain.RuleID, observed, required float64, unit string, passed bool) {
	e.checks = append(e.checks, CheckedRule{
		RuleID:   id,
		Observed: observed,
		Required: required,
		Unit:     unit,
		Passed:   passed,
	})
}

func (e *evaluation) checkDailyHours() {
	rule, _ := e.matrix.Rule(domain.RuleDailyHours)
	std, max := e.limits.DailyStdHours, e.limits.DailyMaxHours

	worst := 0.0
	passed := true
	for _, d := range e.data.Days {
		if d.WorkedHours > worst {
			worst = d.WorkedHours
		}
		if d.WorkedHours <= std+hoursEpsilon {
			continue
		}
		passed = false
		ruleID := domain.RuleDailyHours
		tier := rule.Tier(d.WorkedHours > max+hoursEpsilon)
		if e.minor {
			ruleID, tier = domain.RuleSpecialCondition, domain.PenaltySerious
		}
		e.violations = append(e.violations, e.newViolation(ruleID, d.Date, d.WorkedHours, std, "hours", tier,
			fmt.Sprintf("Worked %.2f h on %s against a daily cap of %.1f h",
				d.WorkedHours, d.Date.Format("2006-01-02"), std)))
	}
	e.addCheck(domain.RuleDailyHours, worst, std, "hours", passed)
}

func (e *evaluation) checkWeeklyHours() {
	rule, _ := e.matrix.Rule(domain.RuleWeeklyHours)
	std, max := e.limits.WeeklyStdHours, e.limits.WeeklyMaxHours

	weeks := e.data.WeeklyHours()
	starts := make([]time.Time, 0, len(weeks))
	for week := range weeks {
		starts = append(starts, week)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })

	worst := 0.0
	passed := true
	for _, week := range starts {
		hours := weeks[week]
		if hours > worst {
			worst = hours
		}
		if hours <= std+hoursEpsilon {
			continue
		}
		passed = false
		ruleID := domain.RuleWeeklyHours
		tier := rule.Tier(hours > max+hoursEpsilon)
		if e.minor {
			ruleID, tier = domain.RuleSpecialCondition, domain.PenaltySerious
		}
		e.violations = append(e.violations, e.newViolation(ruleID, week, hours, std, "hours", tier,
			fmt.Sprintf("Worked %.2f h in the week of %s against a weekly cap of %.1f h",
				hours, week.Format("2006-01-02"), std)))
	}
	e.addCheck(domain.RuleWeeklyHours, worst, std, "hours", passed)
}

// checkRestBetween verifies the rest gap between consecutive shifts on
// different calendar days. Split shifts within one day are the break rules'
// concern, not a rest-period breach.
func (e *evaluation) checkRestBetween() {
	rule, _ := e.matrix.Rule(domain.RuleRestBetween)
	required := e.limits.RestMinHours

	worst := math.Inf(1)
	passed := true
	for i := 1; i < len(e.data.Shifts); i++ {
		prev, next := &e.data.Shifts[i-1], &e.data.Shifts[i]
		if domain.Day(prev.Date).Equal(domain.Day(next.Date)) {
			continue
		}
		rest := next.StartTime().Sub(prev.EndTime()).Hours()
		if rest < 0 {
			rest = 0
		}
		if rest < worst {
			worst = rest
		}
		if rest+hoursEpsilon >= required {
			continue
		}
		passed = false
		e.violations = append(e.violations, e.newViolation(domain.RuleRestBetween, next.Date, rest, required, "hours", rule.Penalty,
			fmt.Sprintf("Only %.2f h of rest before the shift on %s, %.1f h required",
				rest, next.Date.Format("2006-01-02"), required)))
	}
	if math.IsInf(worst, 1) {
		worst = required
	}
	e.addCheck(domain.RuleRestBetween, worst, required, "hours", passed)
}

// checkBreakQuota owes BreakMinutes of short breaks per completed
// BreakPerWorkedHours segment of a day. Lunch minutes do not count toward
// the quota; the lunch rule tracks them separately.
func (e *evaluation) checkBreakQuota() {
	rule, _ := e.matrix.Rule(domain.RuleBreakQuota)
	if e.limits.BreakPerWorkedHours <= 0 {
		return
	}

	worstObserved, worstRequired := 0.0, 0.0
	passed := true
	for _, d := range e.data.Days {
		segments := math.Floor(d.WorkedHours / e.limits.BreakPerWorkedHours)
		required := segments * e.limits.BreakMinutes
		if required <= 0 {
			continue
		}
		observed := float64(d.BreakMinutes)
		if required-observed > worstRequired-worstObserved {
			worstObserved, worstRequired = observed, required
		}
		if observed+hoursEpsilon >= required {
			continue
		}
		passed = false
		e.violations = append(e.violations, e.newViolation(domain.RuleBreakQuota, d.Date, observed, required, "minutes", rule.Penalty,
			fmt.Sprintf("%.0f min of short breaks on %s, %.0f min required for %.2f worked hours",
				observed, d.Date.Format("2006-01-02"), required, d.WorkedHours)))
	}
	e.addCheck(domain.RuleBreakQuota, worstObserved, worstRequired, "minutes", passed)
}

// checkLunch enforces the lunch window on qualifying days: length inside
// [min, max], started far enough into the shift and before the latest start.
// At most one lunch violation is emitted per day.
func (e *evaluation) checkLunch() {
	rule, _ := e.matrix.Rule(domain.RuleLunch)
	l := e.limits
	if l.LunchRequiredFromHours <= 0 {
		return
	}

	violatingDays := 0
	for _, d := range e.data.Days {
		if d.LongestShiftHr+hoursEpsilon < l.LunchRequiredFromHours {
			continue
		}
		lunch := float64(d.LunchMinutes)
		switch {
		case d.LunchMinutes == 0:
			violatingDays++
			e.violations = append(e.violations, e.newViolation(domain.RuleLunch, d.Date, 0, l.LunchMinMinutes, "minutes", rule.Penalty,
				fmt.Sprintf("No lunch scheduled on %s for a %.1f h shift",
					d.Date.Format("2006-01-02"), d.LongestShiftHr)))
		case lunch < l.LunchMinMinutes:
			violatingDays++
			e.violations = append(e.violations, e.newViolation(domain.RuleLunch, d.Date, lunch, l.LunchMinMinutes, "minutes", rule.Penalty,
				fmt.Sprintf("Lunch of %.0f min on %s is below the %.0f min minimum",
					lunch, d.Date.Format("2006-01-02"), l.LunchMinMinutes)))
		case lunch > l.LunchMaxMinutes:
			violatingDays++
			e.violations = append(e.violations, e.newViolation(domain.RuleLunch, d.Date, lunch, l.LunchMaxMinutes, "minutes", rule.Penalty,
				fmt.Sprintf("Lunch of %.0f min on %s exceeds the %.0f min maximum",
					lunch, d.Date.Format("2006-01-02"), l.LunchMaxMinutes)))
		case d.LunchStart != nil:
			into := d.LunchStart.Sub(d.FirstStart).Hours()
			clock := domain.ClockOf(*d.LunchStart)
			if into+hoursEpsilon < l.LunchEarliestAfterHours {
				violatingDays++
				e.violations = append(e.violations, e.newViolation(domain.RuleLunch, d.Date, into, l.LunchEarliestAfterHours, "hours", rule.Penalty,
					fmt.Sprintf("Lunch on %s starts %.2f h into the shift, at least %.1f h required",
						d.Date.Format("2006-01-02"), into, l.LunchEarliestAfterHours)))
			} else if clock >= l.LunchLatestStart {
				violatingDays++
				e.violations = append(e.violations, e.newViolation(domain.RuleLunch, d.Date, float64(clock), float64(l.LunchLatestStart), "minutes", rule.Penalty,
					fmt.Sprintf("Lunch on %s starts at %s, after the %s deadline",
						d.Date.Format("2006-01-02"), clock, l.LunchLatestStart)))
			}
		}
	}
	e.addCheck(domain.RuleLunch, float64(violatingDays), 0, "days", violatingDays == 0)
}

func (e *evaluation) checkConsecutiveDays() {
	rule, _ := e.matrix.Rule(domain.RuleConsecutiveDays)
	max := e.limits.MaxConsecutiveDays

	run, start := e.data.ConsecutiveWorkedDays()
	passed := run <= max
	if !passed {
		e.violations = append(e.violations, e.newViolation(domain.RuleConsecutiveDays, start, float64(run), float64(max), "days", rule.Penalty,
			fmt.Sprintf("%d consecutive worked days starting %s, at most %d allowed",
				run, start.Format("2006-01-02"), max)))
	}
	e.addCheck(domain.RuleConsecutiveDays, float64(run), float64(max), "days", passed)
}
