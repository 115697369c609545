package compliance

import (
	"time"

	"github.com/workforcelab/intraday/internal/domain"
)

// CompliantThreshold is the score at and above which an employee counts as
// compliant.
const CompliantThreshold = 0.95

// CheckedRule records the worst observation for one rule over the validated
// range, whether or not it breached.
type CheckedRule struct {
	RuleID   domain.RuleID `json:"rule_id"`
	Observed float64       `json:"observed"`
	Required float64       `json:"required"`
	Unit     string        `json:"unit"`
	Passed   bool          `json:"passed"`
}

// Result is the outcome of validating one employee over a date range.
type Result struct {
	EmployeeID string             `json:"employee_id"`
	RangeStart time.Time          `json:"range_start"`
	RangeEnd   time.Time          `json:"range_end"`
	Score      float64            `json:"score"`
	Compliant  bool               `json:"compliant"`
	Violations []domain.Violation `json:"violations"`
	Checks     []CheckedRule      `json:"checks"`
	CacheHit   bool               `json:"cache_hit"`
	CheckedAt  time.Time          `json:"checked_at"`
	Duration   time.Duration      `json:"duration_ns"`
}

// BatchError records a per-employee failure inside a batch. Failures are
// isolated: one employee's evaluation error never aborts the batch.
type BatchError struct {
	EmployeeID string `json:"employee_id"`
	Error      string `json:"error"`
}

// BulkResult aggregates per-employee results for a batch validation.
type BulkResult struct {
	Total            int                   `json:"total"`
	Compliant        int                   `json:"compliant"`
	NonCompliant     int                   `json:"non_compliant"`
	Failed           int                   `json:"failed"`
	AverageScore     float64               `json:"average_score"`
	ViolationsByRule map[domain.RuleID]int `json:"violations_by_rule"`
	CacheHits        int                   `json:"cache_hits"`
	CacheHitRate     float64               `json:"cache_hit_rate"`
	Results          []Result              `json:"results"`
	Errors           []BatchError          `json:"errors,omitempty"`
	Duration         time.Duration         `json:"duration_ns"`
}

// Score folds a violation list into a compliance score. Each violation
// deducts its penalty-tier weight from 1.0; the score never goes below 0.
func Score(violations []domain.Violation) float64 {
	score := 1.0
	for _, v := range violations {
		score -= v.Penalty.Weight()
	}
	if score < 0 {
		return 0
	}
	return score
}
