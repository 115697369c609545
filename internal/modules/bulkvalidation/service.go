// Package bulkvalidation validates whole departments against the rule
// matrix: adaptive batch sizing from host resources, batch-wide preload
// followed by parallel in-memory evaluation, live progress tracking per
// validation id, and cooperative cancellation with partial results.
package bulkvalidation

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/shirou/gopsutil/v3/mem"
	"golang.org/x/sync/errgroup"

	"github.com/workforcelab/intraday/internal/domain"
	"github.com/workforcelab/intraday/internal/modules/compliance"
)

// DefaultBatchTimeout bounds one batch's preload and evaluation.
const DefaultBatchTimeout = 30 * time.Second

// DefaultEmployeeTimeout bounds a single employee's evaluation.
const DefaultEmployeeTimeout = 5 * time.Second

// DataSource is the slice of the repository gateway bulk validation reads:
// the batch-shaped compliance preload queries plus department roster
// resolution.
type DataSource interface {
	compliance.DataSource
	LoadDepartmentEmployees(ctx context.Context, departmentID string) ([]domain.Employee, error)
}

// Service orchestrates department-scale validation runs.
type Service struct {
	source DataSource
	rules  compliance.MatrixProvider
	cache  *compliance.ResultCache // nil disables caching
	arena  *ProgressArena
	log    zerolog.Logger

	cores           int
	batchTimeout    time.Duration
	employeeTimeout time.Duration
	hostMemory      func() uint64
}

// NewService creates a bulk validator. cache may be nil.
func NewService(source DataSource, provider compliance.MatrixProvider, cache *compliance.ResultCache, log zerolog.Logger) *Service {
	l := log.With().Str("component", "bulk_validator").Logger()
	return &Service{
		source:          source,
		rules:           provider,
		cache:           cache,
		arena:           NewProgressArena(),
		log:             l,
		cores:           runtime.NumCPU(),
		batchTimeout:    DefaultBatchTimeout,
		employeeTimeout: DefaultEmployeeTimeout,
		hostMemory:      func() uint64 { return hostMemoryBytes(l) },
	}
}

// ValidateMany validates the given employees over the range and blocks until
// the run finishes or is cancelled.
func (s *Service) ValidateMany(ctx context.Context, employeeIDs []string, r domain.DateRange, opts Options) (*Report, error) {
	spec, err := s.prepare(employeeIDs, r, &opts)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, spec, opts), nil
}

// Start launches a validation in the background and returns its id
// immediately. Progress, cancellation and the final report are available via
// Progress, Cancel and Result. The run outlives ctx cancellation; use Cancel
// to stop it.
func (s *Service) Start(ctx context.Context, employeeIDs []string, r domain.DateRange, opts Options) (string, error) {
	spec, err := s.prepare(employeeIDs, r, &opts)
	if err != nil {
		return "", err
	}
	go s.run(context.WithoutCancel(ctx), spec, opts)
	return spec.id, nil
}

// ValidateDepartment validates every employee of one department.
func (s *Service) ValidateDepartment(ctx context.Context, departmentID string, r domain.DateRange, opts Options) (*Report, error) {
	ids, err := s.departmentRoster(ctx, departmentID)
	if err != nil {
		return nil, err
	}
	return s.ValidateMany(ctx, ids, r, opts)
}

// StartDepartment launches a department validation in the background.
func (s *Service) StartDepartment(ctx context.Context, departmentID string, r domain.DateRange, opts Options) (string, error) {
	ids, err := s.departmentRoster(ctx, departmentID)
	if err != nil {
		return "", err
	}
	return s.Start(ctx, ids, r, opts)
}

// Progress returns the live snapshot of a run.
func (s *Service) Progress(validationID string) (Progress, bool) {
	return s.arena.Snapshot(validationID)
}

// Cancel marks a run for cancellation. In-flight batches complete, no
// further batches start, and the partial report carries the cancelled flag.
func (s *Service) Cancel(validationID string) bool {
	return s.arena.Cancel(validationID)
}

// Result returns the final report of a finished run.
func (s *Service) Result(validationID string) (*Report, bool) {
	return s.arena.Report(validationID)
}

// Active lists runs that have not finished yet.
func (s *Service) Active() []Progress {
	return s.arena.Active()
}

type runSpec struct {
	id      string
	r       domain.DateRange
	plan    BatchPlan
	batches [][]string
	workers int
	total   int
}

func (s *Service) prepare(employeeIDs []string, r domain.DateRange, opts *Options) (*runSpec, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if len(employeeIDs) == 0 {
		return nil, fmt.Errorf("%w: no employees to validate", domain.ErrValidation)
	}
	if opts.ValidationID == "" {
		opts.ValidationID = uuid.NewString()
	}
	if err := s.arena.Begin(opts.ValidationID, len(employeeIDs)); err != nil {
		return nil, err
	}
	plan := PlanBatches(len(employeeIDs), s.cores, s.hostMemory()).ClampToMemory(r.DayCount())
	return &runSpec{
		id:      opts.ValidationID,
		r:       r,
		plan:    plan,
		batches: lo.Chunk(employeeIDs, plan.BatchSize),
		workers: max(1, s.cores/plan.MaxConcurrent),
		total:   len(employeeIDs),
	}, nil
}

func (s *Service) departmentRoster(ctx context.Context, departmentID string) ([]string, error) {
	employees, err := s.source.LoadDepartmentEmployees(ctx, departmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load department %s roster: %w", departmentID, err)
	}
	if len(employees) == 0 {
		return nil, fmt.Errorf("%w: department %s has no employees", domain.ErrNotFound, departmentID)
	}
	ids := make([]string, len(employees))
	for i := range employees {
		ids[i] = employees[i].ID
	}
	return ids, nil
}

// run executes the batch pipeline. Batch-level failures never abort the run;
// they surface as per-employee errors in the report.
func (s *Service) run(ctx context.Context, spec *runSpec, opts Options) *Report {
	started := time.Now()
	if opts.Progress != nil {
		defer close(opts.Progress)
	}

	s.log.Info().
		Str("validation_id", spec.id).
		Int("employees", spec.total).
		Int("batch_size", spec.plan.BatchSize).
		Int("max_concurrent", spec.plan.MaxConcurrent).
		Str("range", spec.r.String()).
		Msg("Bulk validation started")

	outcomes := make([]*batchOutcome, len(spec.batches))
	sem := make(chan struct{}, spec.plan.MaxConcurrent)
	var wg sync.WaitGroup
	var progressMu sync.Mutex // serializes updates into batch-completion order

dispatch:
	for i, batch := range spec.batches {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			break dispatch
		}
		// Re-check after the slot acquire: a cancel issued while waiting
		// must stop scheduling even though earlier batches are in flight.
		if s.arena.IsCancelled(spec.id) {
			<-sem
			break
		}
		wg.Add(1)
		go func(i int, ids []string) {
			defer wg.Done()
			defer func() { <-sem }()
			out := s.runBatch(ctx, ids, spec.r, spec.workers, opts.UseCache)
			outcomes[i] = out

			processed, compliant, violations, failed := out.tally()
			perEmployee := 0.0
			if processed > 0 {
				perEmployee = out.duration.Seconds() / float64(processed)
			}

			progressMu.Lock()
			snap := s.arena.Advance(spec.id, processed, compliant, violations, failed, perEmployee)
			if opts.Progress != nil {
				select {
				case opts.Progress <- snap:
				case <-ctx.Done():
				}
			}
			progressMu.Unlock()
		}(i, batch)
	}
	wg.Wait()

	cancelled := s.arena.IsCancelled(spec.id) || ctx.Err() != nil
	report := s.assemble(spec, outcomes, cancelled)
	report.Result.Duration = time.Since(started)
	final := s.arena.Finish(spec.id, report)
	if opts.Progress != nil {
		select {
		case opts.Progress <- final:
		case <-ctx.Done():
		}
	}

	s.log.Info().
		Str("validation_id", spec.id).
		Int("compliant", report.Result.Compliant).
		Int("non_compliant", report.Result.NonCompliant).
		Int("failed", report.Result.Failed).
		Int("skipped", report.Skipped).
		Bool("cancelled", report.Cancelled).
		Dur("duration", report.Result.Duration).
		Msg("Bulk validation finished")
	return report
}

// batchOutcome carries one batch's per-employee results, aligned with ids.
type batchOutcome struct {
	ids      []string
	results  []*compliance.Result
	failures []error
	duration time.Duration
}

func (o *batchOutcome) tally() (processed, compliant, violations, failed int) {
	for i := range o.ids {
		processed++
		if o.failures[i] != nil {
			failed++
			continue
		}
		if o.results[i].Compliant {
			compliant++
		}
		violations += len(o.results[i].Violations)
	}
	return
}

func (o *batchOutcome) fail(indices []int, err error) {
	for _, i := range indices {
		if o.results[i] == nil && o.failures[i] == nil {
			o.failures[i] = err
		}
	}
}

// runBatch preloads one batch with batch-wide gateway queries, then
// evaluates every employee in parallel against the preloaded data. The hot
// path makes no gateway calls.
func (s *Service) runBatch(ctx context.Context, ids []string, r domain.DateRange, workers int, useCache bool) *batchOutcome {
	started := time.Now()
	out := &batchOutcome{
		ids:      ids,
		results:  make([]*compliance.Result, len(ids)),
		failures: make([]error, len(ids)),
	}
	defer func() { out.duration = time.Since(started) }()

	bctx, cancel := context.WithTimeout(ctx, s.batchTimeout)
	defer cancel()

	need := make([]string, 0, len(ids))
	needIdx := make([]int, 0, len(ids))
	for i, id := range ids {
		if useCache && s.cache != nil {
			if res, ok := s.cache.Get(bctx, id, r); ok {
				res.CacheHit = true
				out.results[i] = res
				continue
			}
		}
		need = append(need, id)
		needIdx = append(needIdx, i)
	}
	if len(need) == 0 {
		return out
	}

	matrix := s.rules.Matrix()
	if matrix == nil {
		out.fail(needIdx, errors.New("rule matrix not loaded"))
		return out
	}

	profiles, err := s.source.LoadEmployeeProfiles(bctx, need)
	if err != nil {
		out.fail(needIdx, fmt.Errorf("failed to preload employee profiles: %w", classify(err)))
		return out
	}
	shifts, err := s.source.LoadShifts(bctx, r, need)
	if err != nil {
		out.fail(needIdx, fmt.Errorf("failed to preload shifts: %w", classify(err)))
		return out
	}
	blocks, err := s.source.LoadTimetableBlocks(bctx, r, need)
	if err != nil {
		out.fail(needIdx, fmt.Errorf("failed to preload timetable blocks: %w", classify(err)))
		return out
	}

	profileByID := make(map[string]*domain.Employee, len(profiles))
	for i := range profiles {
		profileByID[profiles[i].ID] = &profiles[i]
	}
	shiftsByID := make(map[string][]domain.Shift, len(need))
	for _, sh := range shifts {
		shiftsByID[sh.EmployeeID] = append(shiftsByID[sh.EmployeeID], sh)
	}
	blocksByID := make(map[string][]domain.TimetableBlock, len(need))
	for _, b := range blocks {
		blocksByID[b.EmployeeID] = append(blocksByID[b.EmployeeID], b)
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for n, id := range need {
		idx := needIdx[n]
		g.Go(func() error {
			if err := bctx.Err(); err != nil {
				out.failures[idx] = classify(err)
				return nil
			}
			emp, ok := profileByID[id]
			if !ok {
				out.failures[idx] = fmt.Errorf("%w: employee %s", domain.ErrNotFound, id)
				return nil
			}
			evalStart := time.Now()
			data := domain.BuildWorkData(id, emp.AgeCategory, r, shiftsByID[id], blocksByID[id])
			violations, checks := compliance.Evaluate(emp, &data, matrix)
			if elapsed := time.Since(evalStart); elapsed > s.employeeTimeout {
				out.failures[idx] = fmt.Errorf("%w: evaluating employee %s took %s",
					domain.ErrTimeout, id, elapsed.Round(time.Millisecond))
				return nil
			}
			score := compliance.Score(violations)
			res := &compliance.Result{
				EmployeeID: id,
				RangeStart: r.Start,
				RangeEnd:   r.End,
				Score:      score,
				Compliant:  score >= compliance.CompliantThreshold,
				Violations: violations,
				Checks:     checks,
				CheckedAt:  time.Now().UTC(),
				Duration:   time.Since(evalStart),
			}
			if useCache && s.cache != nil {
				s.cache.Set(bctx, res)
			}
			out.results[idx] = res
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// assemble folds batch outcomes into the final report, in batch order.
// Employees of batches that never ran count as skipped.
func (s *Service) assemble(spec *runSpec, outcomes []*batchOutcome, cancelled bool) *Report {
	bulk := compliance.BulkResult{ViolationsByRule: make(map[domain.RuleID]int)}
	skipped := 0
	scoreSum := 0.0
	for bi, batch := range spec.batches {
		out := outcomes[bi]
		if out == nil {
			skipped += len(batch)
			continue
		}
		for i, id := range out.ids {
			if err := out.failures[i]; err != nil {
				bulk.Failed++
				bulk.Errors = append(bulk.Errors, compliance.BatchError{EmployeeID: id, Error: err.Error()})
				continue
			}
			res := out.results[i]
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
	}
	bulk.Total = bulk.Failed + len(bulk.Results)
	if evaluated := len(bulk.Results); evaluated > 0 {
		bulk.AverageScore = scoreSum / float64(evaluated)
		bulk.CacheHitRate = float64(bulk.CacheHits) / float64(evaluated)
	}
	return &Report{
		ValidationID: spec.id,
		Range:        spec.r,
		Plan:         spec.plan,
		Cancelled:    cancelled,
		Skipped:      skipped,
		Result:       bulk,
	}
}

// classify maps context failures onto the timeout/cancelled kinds; anything
// else is an upstream gateway failure.
func classify(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %w", domain.ErrCancelled, err)
	default:
		return fmt.Errorf("%w: %w", domain.ErrUpstream, err)
	}
}

// hostMemoryBytes reads total host RAM, falling back to a conservative 8 GB
// when the probe fails.
func hostMemoryBytes(log zerolog.Logger) uint64 {
	stat, err := mem.VirtualMemory()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read host memory, assuming 8 GB")
		return 8 << 30
	}
	return stat.Total
}
