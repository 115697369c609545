package rules

import (
	"fmt"
	"time"

	"github.com/mitchellh/hashstructure/v2"

	"github.com/workforcelab/intraday/internal/domain"
)

// Limits is the flattened numeric threshold row for one age category.
// Batch evaluation paths read these values directly instead of walking the
// rule declarations, so per-employee checks stay branch-free.
type Limits struct {
	DailyStdHours  float64
	DailyMaxHours  float64
	WeeklyStdHours float64
	WeeklyMaxHours float64
	RestMinHours   float64

	BreakMinutes        float64
	BreakPerWorkedHours float64

	LunchMinMinutes         float64
	LunchMaxMinutes         float64
	LunchEarliestAfterHours float64
	LunchLatestStart        domain.TimeOfDay
	LunchRequiredFromHours  float64

	MaxConsecutiveDays int
}

// Matrix is an immutable, pre-flattened view of a rule set. A new matrix is
// built on every catalog (re)load; readers always see a complete one.
type Matrix struct {
	version     string
	fingerprint uint64
	loadedAt    time.Time

	order  []domain.RuleID
	rules  map[domain.RuleID]Rule
	limits map[domain.AgeCategory]Limits
}

// NewMatrix validates a rule set and flattens it into per-category rows.
func NewMatrix(set *RuleSet) (*Matrix, error) {
	if err := set.Validate(); err != nil {
		return nil, err
	}

	fingerprint, err := Fingerprint(set)
	if err != nil {
		return nil, err
	}

	m := &Matrix{
		version:     set.Version,
		fingerprint: fingerprint,
		loadedAt:    time.Now().UTC(),
		rules:       make(map[domain.RuleID]Rule, len(set.Rules)),
		limits:      make(map[domain.AgeCategory]Limits, 2),
	}

	for _, rule := range set.Rules {
		if rule.Disabled {
			continue
		}
		m.rules[rule.ID] = rule
		m.order = append(m.order, rule.ID)
	}

	for _, cat := range []domain.AgeCategory{domain.AgeAdult, domain.AgeMinor} {
		row, err := m.buildLimits(cat)
		if err != nil {
			return nil, err
		}
		m.limits[cat] = row
	}

	return m, nil
}

// buildLimits flattens the declarations for one age category. Categories
// without an explicit bound inherit the adult bound.
func (m *Matrix) buildLimits(cat domain.AgeCategory) (Limits, error) {
	var row Limits

	bound := func(id domain.RuleID) (Bound, bool) {
		rule, ok := m.rules[id]
		if !ok {
			return Bound{}, false
		}
		if b, ok := rule.Limits[cat]; ok {
			return b, true
		}
		b, ok := rule.Limits[domain.AgeAdult]
		return b, ok
	}

	if b, ok := bound(domain.RuleDailyHours); ok {
		row.DailyStdHours = b.Standard
		row.DailyMaxHours = b.Maximum
	}
	if b, ok := bound(domain.RuleWeeklyHours); ok {
		row.WeeklyStdHours = b.Standard
		row.WeeklyMaxHours = b.Maximum
	}
	if b, ok := bound(domain.RuleRestBetween); ok {
		row.RestMinHours = b.Standard
	}
	if b, ok := bound(domain.RuleConsecutiveDays); ok {
		row.MaxConsecutiveDays = int(b.Standard)
	}

	if rule, ok := m.rules[domain.RuleBreakQuota]; ok && rule.Break != nil {
		row.BreakMinutes = rule.Break.Minutes
		row.BreakPerWorkedHours = rule.Break.PerWorkedHours
	}

	if rule, ok := m.rules[domain.RuleLunch]; ok && rule.Lunch != nil {
		latest, err := domain.ParseTimeOfDay(rule.Lunch.LatestStart)
		if err != nil {
			return Limits{}, fmt.Errorf("%w: rule %s has invalid latest_start %q",
				domain.ErrValidation, domain.RuleLunch, rule.Lunch.LatestStart)
		}
		row.LunchMinMinutes = rule.Lunch.MinMinutes
		row.LunchMaxMinutes = rule.Lunch.MaxMinutes
		row.LunchEarliestAfterHours = rule.Lunch.EarliestAfterHours
		row.LunchLatestStart = latest
		row.LunchRequiredFromHours = rule.Lunch.RequiredFromHours
	}

	return row, nil
}

// Version returns the catalog document version the matrix was built from.
func (m *Matrix) Version() string { return m.version }

// Fingerprint returns the structural hash of the source rule set.
func (m *Matrix) Fingerprint() uint64 { return m.fingerprint }

// LoadedAt returns when the matrix was built.
func (m *Matrix) LoadedAt() time.Time { return m.loadedAt }

// Order returns the enabled rule ids in declaration order. Evaluation walks
// this slice so violation lists come out deterministic.
func (m *Matrix) Order() []domain.RuleID {
	out := make([]domain.RuleID, len(m.order))
	copy(out, m.order)
	return out
}

// Rule returns the declaration for a rule id.
func (m *Matrix) Rule(id domain.RuleID) (Rule, bool) {
	rule, ok := m.rules[id]
	return rule, ok
}

// Enabled reports whether a rule id is present and active.
func (m *Matrix) Enabled(id domain.RuleID) bool {
	_, ok := m.rules[id]
	return ok
}

// Limits returns the flattened threshold row for an age category. Unknown
// categories fall back to the adult row.
func (m *Matrix) Limits(cat domain.AgeCategory) Limits {
	if row, ok := m.limits[cat]; ok {
		return row
	}
	return m.limits[domain.AgeAdult]
}

// Fingerprint computes a structural hash of a rule set. Reloads that parse
// to the same hash are treated as no-ops so downstream caches keep warm.
func Fingerprint(set *RuleSet) (uint64, error) {
	hash, err := hashstructure.Hash(set, hashstructure.FormatV2, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to fingerprint rule set: %w", err)
	}
	return hash, nil
}
