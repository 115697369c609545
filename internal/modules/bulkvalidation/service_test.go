package bulkvalidation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workforcelab/intraday/internal/domain"
	"github.com/workforcelab/intraday/internal/modules/compliance"
	"github.com/workforcelab/intraday/internal/modules/rules"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func week() domain.DateRange {
	return domain.NewDateRange(day(2025, 3, 10), day(2025, 3, 17))
}

func testMatrix(t *testing.T) *rules.Matrix {
	t.Helper()
	set, err := rules.DefaultRuleSet()
	require.NoError(t, err)
	matrix, err := rules.NewMatrix(set)
	require.NoError(t, err)
	return matrix
}

type staticRules struct{ matrix *rules.Matrix }

func (s staticRules) Matrix() *rules.Matrix { return s.matrix }

// fakeBulkSource serves employee data from memory. A nil gate passes loads
// through; a non-nil gate blocks LoadShifts until the channel is closed.
type fakeBulkSource struct {
	mu            sync.Mutex
	employees     map[string]domain.Employee
	shifts        []domain.Shift
	shiftErr      map[string]error
	departmentErr error
	shiftLoads    int
	onShiftLoad   func(ids []string)
	gate          chan struct{}
}

func newFakeBulkSource() *fakeBulkSource {
	return &fakeBulkSource{
		employees: make(map[string]domain.Employee),
		shiftErr:  make(map[string]error),
	}
}

// seed registers n adult employees in one department and returns their ids.
func (f *fakeBulkSource) seed(n int, departmentID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, n)
	for i := range ids {
		id := fmt.Sprintf("%s-emp-%03d", departmentID, i)
		f.employees[id] = domain.Employee{
			ID:           id,
			AgeCategory:  domain.AgeAdult,
			DepartmentID: departmentID,
			Constraints:  domain.Constraints{WorkRate: 1},
		}
		ids[i] = id
	}
	return ids
}

func (f *fakeBulkSource) LoadEmployeeProfiles(_ context.Context, ids []string) ([]domain.Employee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Employee
	for _, id := range ids {
		if e, ok := f.employees[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeBulkSource) LoadShifts(ctx context.Context, r domain.DateRange, employeeIDs []string) ([]domain.Shift, error) {
	f.mu.Lock()
	f.shiftLoads++
	hook := f.onShiftLoad
	gate := f.gate
	f.mu.Unlock()

	if hook != nil {
		hook(employeeIDs)
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range employeeIDs {
		if err := f.shiftErr[id]; err != nil {
			return nil, err
		}
	}
	var out []domain.Shift
	for _, s := range f.shifts {
		if !r.Contains(s.Date) {
			continue
		}
		for _, id := range employeeIDs {
			if s.EmployeeID == id {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeBulkSource) LoadTimetableBlocks(_ context.Context, _ domain.DateRange, _ []string) ([]domain.TimetableBlock, error) {
	return nil, nil
}

func (f *fakeBulkSource) LoadDepartmentEmployees(_ context.Context, departmentID string) ([]domain.Employee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.departmentErr != nil {
		return nil, f.departmentErr
	}
	var out []domain.Employee
	for _, e := range f.employees {
		if e.DepartmentID == departmentID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeBulkSource) loads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shiftLoads
}

// newBulkService pins cores and host memory so batch plans are deterministic
// regardless of the machine running the tests.
func newBulkService(t *testing.T, src *fakeBulkSource, cores int) *Service {
	t.Helper()
	svc := NewService(src, staticRules{testMatrix(t)}, nil, zerolog.Nop())
	svc.cores = cores
	svc.hostMemory = func() uint64 { return 16 << 30 }
	return svc
}

func TestValidateMany_RunsAllBatches(t *testing.T) {
	ctx := context.Background()
	src := newFakeBulkSource()
	ids := src.seed(120, "dept-1")
	svc := newBulkService(t, src, 2)

	progress := make(chan Progress, 8)
	report, err := svc.ValidateMany(ctx, ids, week(), Options{Progress: progress})
	require.NoError(t, err)

	assert.Equal(t, 50, report.Plan.BatchSize)
	assert.Equal(t, 2, report.Plan.MaxConcurrent)
	assert.Equal(t, 3, report.Plan.Batches)
	assert.False(t, report.Cancelled)
	assert.Zero(t, report.Skipped)
	assert.Equal(t, 120, report.Result.Total)
	assert.Equal(t, 120, report.Result.Compliant)
	assert.Zero(t, report.Result.Failed)
	assert.Len(t, report.Result.Results, 120)
	assert.Equal(t, 1.0, report.Result.AverageScore)
	assert.Positive(t, report.Result.Duration)

	var updates []Progress
	for p := range progress {
		updates = append(updates, p)
	}
	require.Len(t, updates, 4) // three batches plus the final snapshot
	prev := 0
	for _, u := range updates {
		assert.Equal(t, report.ValidationID, u.ValidationID)
		assert.GreaterOrEqual(t, u.Processed, prev)
		prev = u.Processed
	}
	assert.Equal(t, 120, updates[2].Processed)
	assert.True(t, updates[3].Done)

	final, ok := svc.Progress(report.ValidationID)
	require.True(t, ok)
	assert.True(t, final.Done)
	stored, ok := svc.Result(report.ValidationID)
	require.True(t, ok)
	assert.Same(t, report, stored)
}

func TestValidateMany_RejectsBadInput(t *testing.T) {
	ctx := context.Background()
	src := newFakeBulkSource()
	ids := src.seed(2, "dept-1")
	svc := newBulkService(t, src, 2)

	_, err := svc.ValidateMany(ctx, nil, week(), Options{})
	assert.ErrorIs(t, err, domain.ErrValidation)

	inverted := domain.NewDateRange(day(2025, 3, 17), day(2025, 3, 10))
	_, err = svc.ValidateMany(ctx, ids, inverted, Options{})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestValidateMany_MissingEmployeeIsIsolated(t *testing.T) {
	ctx := context.Background()
	src := newFakeBulkSource()
	ids := src.seed(2, "dept-1")
	ids = append(ids, "ghost")
	svc := newBulkService(t, src, 2)

	report, err := svc.ValidateMany(ctx, ids, week(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 3, report.Result.Total)
	assert.Equal(t, 2, report.Result.Compliant)
	assert.Equal(t, 1, report.Result.Failed)
	require.Len(t, report.Result.Errors, 1)
	assert.Equal(t, "ghost", report.Result.Errors[0].EmployeeID)
	assert.Contains(t, report.Result.Errors[0].Error, "not found")
}

func TestValidateMany_PreloadFailureFailsOnlyItsBatch(t *testing.T) {
	ctx := context.Background()
	src := newFakeBulkSource()
	ids := src.seed(30, "dept-1") // two batches of 25 and 5
	src.shiftErr[ids[29]] = assert.AnError
	svc := newBulkService(t, src, 2)

	report, err := svc.ValidateMany(ctx, ids, week(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 30, report.Result.Total)
	assert.Equal(t, 25, report.Result.Compliant)
	assert.Equal(t, 5, report.Result.Failed)
	require.Len(t, report.Result.Errors, 5)
	for _, batchErr := range report.Result.Errors {
		assert.Contains(t, batchErr.Error, "failed to preload shifts")
		assert.Contains(t, batchErr.Error, "upstream failure")
	}
}

func TestValidateMany_CancelStopsScheduling(t *testing.T) {
	ctx := context.Background()
	src := newFakeBulkSource()
	ids := src.seed(60, "dept-1") // three batches of 25, 25 and 10
	svc := newBulkService(t, src, 1)

	var once sync.Once
	src.onShiftLoad = func([]string) {
		once.Do(func() { svc.Cancel("cancel-run") })
	}

	progress := make(chan Progress, 8)
	report, err := svc.ValidateMany(ctx, ids, week(),
		Options{ValidationID: "cancel-run", Progress: progress})
	require.NoError(t, err)

	// With one concurrent batch the first batch completes, the cancel is
	// seen before the second is scheduled, and the rest are skipped.
	assert.True(t, report.Cancelled)
	assert.Equal(t, 25, report.Result.Total)
	assert.Equal(t, 25, report.Result.Compliant)
	assert.Equal(t, 35, report.Skipped)

	var updates []Progress
	for p := range progress {
		updates = append(updates, p)
	}
	require.Len(t, updates, 2)
	assert.Equal(t, 25, updates[0].Processed)
	assert.True(t, updates[0].Cancelled)
	assert.True(t, updates[1].Done)
	assert.True(t, updates[1].Cancelled)
}

func TestStart_BackgroundRun(t *testing.T) {
	ctx := context.Background()
	src := newFakeBulkSource()
	ids := src.seed(3, "dept-1")
	gate := make(chan struct{})
	src.gate = gate
	svc := newBulkService(t, src, 2)

	id, err := svc.Start(ctx, ids, week(), Options{ValidationID: "bg-run"})
	require.NoError(t, err)
	assert.Equal(t, "bg-run", id)

	snap, ok := svc.Progress(id)
	require.True(t, ok)
	assert.False(t, snap.Done)
	assert.Equal(t, 3, snap.Total)
	require.Len(t, svc.Active(), 1)

	// The id is taken while the run is active.
	_, err = svc.ValidateMany(ctx, ids, week(), Options{ValidationID: "bg-run"})
	assert.ErrorIs(t, err, domain.ErrConflict)

	close(gate)
	require.Eventually(t, func() bool {
		_, ok := svc.Result(id)
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	report, _ := svc.Result(id)
	assert.Equal(t, 3, report.Result.Total)
	assert.Equal(t, 3, report.Result.Compliant)
	assert.Empty(t, svc.Active())
}

func TestValidateMany_CacheSkipsPreload(t *testing.T) {
	ctx := context.Background()
	src := newFakeBulkSource()
	ids := src.seed(10, "dept-1")
	svc := newBulkService(t, src, 2)
	svc.cache = compliance.NewResultCache(time.Minute, nil, zerolog.Nop())

	first, err := svc.ValidateMany(ctx, ids, week(), Options{UseCache: true})
	require.NoError(t, err)
	assert.Zero(t, first.Result.CacheHits)
	assert.Equal(t, 1, src.loads())

	second, err := svc.ValidateMany(ctx, ids, week(), Options{UseCache: true})
	require.NoError(t, err)
	assert.Equal(t, 10, second.Result.CacheHits)
	assert.Equal(t, 1.0, second.Result.CacheHitRate)
	assert.Equal(t, 10, second.Result.Compliant)
	assert.Equal(t, 1, src.loads(), "fully cached batch must not touch the gateway")
}

func TestValidateDepartment(t *testing.T) {
	ctx := context.Background()
	src := newFakeBulkSource()
	src.seed(5, "dept-1")
	src.seed(2, "dept-2")
	svc := newBulkService(t, src, 2)

	report, err := svc.ValidateDepartment(ctx, "dept-1", week(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 5, report.Result.Total)
	assert.Equal(t, 5, report.Result.Compliant)
}

func TestValidateDepartment_Errors(t *testing.T) {
	ctx := context.Background()
	src := newFakeBulkSource()
	src.seed(5, "dept-1")
	svc := newBulkService(t, src, 2)

	_, err := svc.ValidateDepartment(ctx, "dept-9", week(), Options{})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	src.departmentErr = assert.AnError
	_, err = svc.ValidateDepartment(ctx, "dept-1", week(), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load department")
}
