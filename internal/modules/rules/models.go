package rules

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/workforcelab/intraday/internal/domain"
)

// Bound holds the standard and maximum threshold for one age category.
// The standard value is the first enforcement boundary; the maximum is the
// hard cap. For rules without a std/max split the two values are equal.
type Bound struct {
	Standard float64 `yaml:"standard" json:"standard"`
	Maximum  float64 `yaml:"maximum" json:"maximum"`
}

// BreakParams configures the short-break quota rule: Minutes of break owed
// per PerWorkedHours of work.
type BreakParams struct {
	Minutes        float64 `yaml:"minutes" json:"minutes"`
	PerWorkedHours float64 `yaml:"per_worked_hours" json:"per_worked_hours"`
}

// LunchParams configures the lunch rule. LatestStart is "HH:MM" in the
// working day; RequiredFromHours is the shift length at which a lunch
// becomes mandatory.
type LunchParams struct {
	MinMinutes         float64 `yaml:"min_minutes" json:"min_minutes"`
	MaxMinutes         float64 `yaml:"max_minutes" json:"max_minutes"`
	EarliestAfterHours float64 `yaml:"earliest_after_hours" json:"earliest_after_hours"`
	LatestStart        string  `yaml:"latest_start" json:"latest_start"`
	RequiredFromHours  float64 `yaml:"required_from_hours" json:"required_from_hours"`
}

// Rule is one labor rule as declared in the catalog file.
// Exactly one of Limits, Break or Lunch carries the rule's parameters,
// depending on the rule id.
type Rule struct {
	ID              domain.RuleID                `yaml:"id" json:"id"`
	Category        domain.RuleCategory          `yaml:"category" json:"category"`
	Description     string                       `yaml:"description,omitempty" json:"description,omitempty"`
	Penalty         domain.PenaltyTier           `yaml:"penalty" json:"penalty"`
	PenaltyAboveMax domain.PenaltyTier           `yaml:"penalty_above_max,omitempty" json:"penalty_above_max,omitempty"`
	Limits          map[domain.AgeCategory]Bound `yaml:"limits,omitempty" json:"limits,omitempty"`
	Break           *BreakParams                 `yaml:"break,omitempty" json:"break,omitempty"`
	Lunch           *LunchParams                 `yaml:"lunch,omitempty" json:"lunch,omitempty"`
	Disabled        bool                         `yaml:"disabled,omitempty" json:"disabled,omitempty"`
}

// Tier returns the penalty tier for an observed value that exceeded the
// standard bound. aboveMax selects the escalated tier when the hard cap was
// also exceeded and the rule declares one.
func (r Rule) Tier(aboveMax bool) domain.PenaltyTier {
	if aboveMax && r.PenaltyAboveMax != "" {
		return r.PenaltyAboveMax
	}
	return r.Penalty
}

// Validate checks a single rule declaration for structural problems.
func (r Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: rule with empty id", domain.ErrValidation)
	}
	switch r.Category {
	case domain.RuleWorkingTime, domain.RuleOvertime, domain.RuleRestPeriods,
		domain.RuleBreaks, domain.RuleSpecialConditions:
	default:
		return fmt.Errorf("%w: rule %s has unknown category %q", domain.ErrValidation, r.ID, r.Category)
	}
	if !validTier(r.Penalty) {
		return fmt.Errorf("%w: rule %s has unknown penalty %q", domain.ErrValidation, r.ID, r.Penalty)
	}
	if r.PenaltyAboveMax != "" && !validTier(r.PenaltyAboveMax) {
		return fmt.Errorf("%w: rule %s has unknown penalty_above_max %q", domain.ErrValidation, r.ID, r.PenaltyAboveMax)
	}

	switch r.ID {
	case domain.RuleDailyHours, domain.RuleWeeklyHours, domain.RuleRestBetween, domain.RuleConsecutiveDays:
		if len(r.Limits) == 0 {
			return fmt.Errorf("%w: rule %s declares no limits", domain.ErrValidation, r.ID)
		}
		for cat, bound := range r.Limits {
			if cat != domain.AgeAdult && cat != domain.AgeMinor {
				return fmt.Errorf("%w: rule %s has limits for unknown age category %q", domain.ErrValidation, r.ID, cat)
			}
			if bound.Standard <= 0 || bound.Maximum < bound.Standard {
				return fmt.Errorf("%w: rule %s has invalid bound for %s (standard %.2f, maximum %.2f)",
					domain.ErrValidation, r.ID, cat, bound.Standard, bound.Maximum)
			}
		}
	case domain.RuleBreakQuota:
		if r.Break == nil || r.Break.Minutes <= 0 || r.Break.PerWorkedHours <= 0 {
			return fmt.Errorf("%w: rule %s requires positive break parameters", domain.ErrValidation, r.ID)
		}
	case domain.RuleLunch:
		if r.Lunch == nil {
			return fmt.Errorf("%w: rule %s requires lunch parameters", domain.ErrValidation, r.ID)
		}
		if r.Lunch.MinMinutes <= 0 || r.Lunch.MaxMinutes < r.Lunch.MinMinutes {
			return fmt.Errorf("%w: rule %s has invalid lunch duration window", domain.ErrValidation, r.ID)
		}
		if _, err := domain.ParseTimeOfDay(r.Lunch.LatestStart); err != nil {
			return fmt.Errorf("%w: rule %s has invalid latest_start %q", domain.ErrValidation, r.ID, r.Lunch.LatestStart)
		}
		if r.Lunch.RequiredFromHours <= 0 {
			return fmt.Errorf("%w: rule %s requires positive required_from_hours", domain.ErrValidation, r.ID)
		}
	default:
		// Unknown rule ids are tolerated so catalogs can carry site-specific
		// extensions; they still need well-formed category and penalty.
	}
	return nil
}

func validTier(t domain.PenaltyTier) bool {
	switch t {
	case domain.PenaltyWarning, domain.PenaltyFine, domain.PenaltySerious:
		return true
	}
	return false
}

// RuleSet is the parsed catalog file: a versioned list of rule declarations.
type RuleSet struct {
	Version string `yaml:"version" json:"version"`
	Rules   []Rule `yaml:"rules" json:"rules"`
}

// Validate checks the whole set, including duplicate ids.
func (s *RuleSet) Validate() error {
	if s.Version == "" {
		return fmt.Errorf("%w: rule set has no version", domain.ErrValidation)
	}
	if len(s.Rules) == 0 {
		return fmt.Errorf("%w: rule set declares no rules", domain.ErrValidation)
	}
	seen := make(map[domain.RuleID]bool, len(s.Rules))
	for _, rule := range s.Rules {
		if err := rule.Validate(); err != nil {
			return err
		}
		if seen[rule.ID] {
			return fmt.Errorf("%w: rule %s declared twice", domain.ErrValidation, rule.ID)
		}
		seen[rule.ID] = true
	}
	return nil
}

// ParseRuleSet decodes and validates a YAML catalog document.
func ParseRuleSet(data []byte) (*RuleSet, error) {
	var set RuleSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("%w: failed to parse rule catalog: %v", domain.ErrValidation, err)
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return &set, nil
}
