package compliance

import "github.com/workforcelab/intraday/internal/domain"

// remediations maps each rule to the fixes surfaced alongside its violations.
var remediations = map[domain.RuleID][]string{
	domain.RuleDailyHours: {
		"Reduce the daily workload by the excess hours",
		"Split the work across additional days",
		"Ensure overtime authorization is on file",
	},
	domain.RuleWeeklyHours: {
		"Redistribute hours across the week",
		"Defer non-urgent work to the next week",
		"Bring in temporary staff for the peak",
	},
	domain.RuleRestBetween: {
		"Delay the next shift start to restore the rest period",
		"Swap the shift with another employee",
	},
	domain.RuleBreakQuota: {
		"Schedule additional 15-minute breaks",
		"Rebalance the workload to open break slots",
	},
	domain.RuleLunch: {
		"Move the lunch into the allowed window",
		"Adjust the lunch length to the 30-60 minute band",
	},
	domain.RuleConsecutiveDays: {
		"Insert a mandatory rest day",
		"Rotate assignments to break the run",
	},
	domain.RuleSpecialCondition: {
		"Reduce the scheduled hours to the minor cap",
		"Review the employee's special-condition constraints",
	},
}

// SuggestionsFor returns the remediation hints for a rule.
func SuggestionsFor(ruleID domain.RuleID) []string {
	return remediations[ruleID]
}
