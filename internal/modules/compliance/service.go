// Package compliance implements the labor-rule compliance engine: single
// and batch validation of employees against the rule matrix, with scoring,
// remediation suggestions and a two-tier result cache.
package compliance

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/workforcelab/intraday/internal/domain"
	"github.com/workforcelab/intraday/internal/modules/rules"
)

// DataSource is the slice of the repository gateway the engine reads.
type DataSource interface {
	LoadEmployeeProfiles(ctx context.Context, ids []string) ([]domain.Employee, error)
	LoadShifts(ctx context.Context, r domain.DateRange, employeeIDs []string) ([]domain.Shift, error)
	LoadTimetableBlocks(ctx context.Context, r domain.DateRange, employeeIDs []string) ([]domain.TimetableBlock, error)
}

// MatrixProvider yields the current rule matrix. Satisfied by rules.Catalog.
type MatrixProvider interface {
	Matrix() *rules.Matrix
}

// Service validates employees against the rule matrix.
type Service struct {
	source DataSource
	rules  MatrixProvider
	cache  *ResultCache // nil disables caching
	log    zerolog.Logger
}

// NewService creates a compliance service. cache may be nil.
func NewService(source DataSource, provider MatrixProvider, cache *ResultCache, log zerolog.Logger) *Service {
	return &Service{
		source: source,
		rules:  provider,
		cache:  cache,
		log:    log.With().Str("component", "compliance").Logger(),
	}
}

// ValidateOne checks a single employee over a date range.
//
// A missing employee returns ErrNotFound. An employee with no scheduled
// activity in the range returns a valid result with score 1.0. With useCache
// set, a previous result for the same (employee, range) within the TTL is
// returned with CacheHit set.
func (s *Service) ValidateOne(ctx context.Context, employeeID string, r domain.DateRange, useCache bool) (*Result, error) {
	start := time.Now()
	if err := r.Validate(); err != nil {
		return nil, err
	}

	if useCache && s.cache != nil {
		if res, ok := s.cache.Get(ctx, employeeID, r); ok {
			res.CacheHit = true
			res.Duration = time.Since(start)
			return res, nil
		}
	}

	emp, err := s.employee(ctx, employeeID)
	if err != nil {
		return nil, err
	}

	matrix := s.rules.Matrix()
	if matrix == nil {
		return nil, errors.New("rule matrix not loaded")
	}

	data, err := s.loadWorkData(ctx, emp, r)
	if err != nil {
		return nil, err
	}

	violations, checks := Evaluate(emp, data, matrix)
	score := Score(violations)
	res := &Result{
		EmployeeID: employeeID,
		RangeStart: r.Start,
		RangeEnd:   r.End,
		Score:      score,
		Compliant:  score >= CompliantThreshold,
		Violations: violations,
		Checks:     checks,
		CheckedAt:  time.Now().UTC(),
		Duration:   time.Since(start),
	}

	if s.cache != nil {
		s.cache.Set(ctx, res)
	}

	s.log.Debug().
		Str("employee_id", employeeID).
		Str("range", data.Range.String()).
		Float64("score", res.Score).
		Int("violations", len(res.Violations)).
		Dur("duration", res.Duration).
		Msg("Employee validated")
	return res, nil
}

// ValidateBatch checks many employees over one range and aggregates the
// outcomes. Per-employee failures are isolated into BulkResult.Errors; they
// never abort the rest of the batch. With parallel set, evaluation fans out
// over the CPUs.
func (s *Service) ValidateBatch(ctx context.Context, employeeIDs []string, r domain.DateRange, parallel bool) (*BulkResult, error) {
	start := time.Now()
	if err := r.Validate(); err != nil {
		return nil, err
	}

	results := make([]*Result, len(employeeIDs))
	failures := make([]error, len(employeeIDs))

	if parallel && len(employeeIDs) > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(runtime.NumCPU())
		for i, id := range employeeIDs {
			g.Go(func() error {
				results[i], failures[i] = s.ValidateOne(gctx, id, r, true)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, id := range employeeIDs {
			results[i], failures[i] = s.ValidateOne(ctx, id, r, true)
		}
	}

	bulk := &BulkResult{
		Total:            len(employeeIDs),
		ViolationsByRule: make(map[domain.RuleID]int),
	}
	scoreSum := 0.0
	for i, id := range employeeIDs {
		if failures[i] != nil {
			bulk.Failed++
			bulk.Errors = append(bulk.Errors, BatchError{EmployeeID: id, Error: failures[i].Error()})
			continue
		}
		res := results[i]
		bulk.Results = append(bulk.Results, *res)
		scoreSum += res.Score
		if res.Compliant {
			bulk.Compliant++
		} else {
			bulk.NonCompliant++
		}
		if res.CacheHit {
			bulk.CacheHits++
		}
		for _, v := range res.Violations {
			bulk.ViolationsByRule[v.RuleID]++
		}
	}
	if evaluated := len(bulk.Results); evaluated > 0 {
		bulk.AverageScore = scoreSum / float64(evaluated)
		bulk.CacheHitRate = float64(bulk.CacheHits) / float64(evaluated)
	}
	bulk.Duration = time.Since(start)

	s.log.Info().
		Int("total", bulk.Total).
		Int("compliant", bulk.Compliant).
		Int("non_compliant", bulk.NonCompliant).
		Int("failed", bulk.Failed).
		Float64("cache_hit_rate", bulk.CacheHitRate).
		Dur("duration", bulk.Duration).
		Msg("Batch validation finished")
	return bulk, nil
}

func (s *Service) employee(ctx context.Context, id string) (*domain.Employee, error) {
	profiles, err := s.source.LoadEmployeeProfiles(ctx, []string{id})
	if err != nil {
		return nil, fmt.Errorf("failed to load employee %s: %w", id, err)
	}
	for i := range profiles {
		if profiles[i].ID == id {
			return &profiles[i], nil
		}
	}
	return nil, fmt.Errorf("%w: employee %s", domain.ErrNotFound, id)
}

func (s *Service) loadWorkData(ctx context.Context, emp *domain.Employee, r domain.DateRange) (*domain.EmployeeWorkData, error) {
	ids := []string{emp.ID}
	shifts, err := s.source.LoadShifts(ctx, r, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load shifts for %s: %w", emp.ID, err)
	}
	blocks, err := s.source.LoadTimetableBlocks(ctx, r, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load timetable blocks for %s: %w", emp.ID, err)
	}
	data := domain.BuildWorkData(emp.ID, emp.AgeCategory, r, shifts, blocks)
	return &data, nil
}
