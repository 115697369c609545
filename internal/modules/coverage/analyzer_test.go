package coverage

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workforcelab/intraday/internal/domain"
)

// fakeStore doubles as Store and SessionStore for the analyzer and live
// monitor tests.
type fakeStore struct {
	mu         sync.Mutex
	services   map[string]*domain.Service
	forecast   []domain.ForecastInterval
	activity   []domain.ActivityInterval
	snapshot   *domain.QueueSnapshot
	snapErr    error
	history    []domain.QueueSnapshot
	thresholds []domain.ThresholdConfig
	sessions   map[string]domain.MonitoringSession
	sealed     map[string]int
	events     []domain.MonitoringEvent
	eventCh    chan domain.MonitoringEvent
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		services: map[string]*domain.Service{
			"svc-voice": {ID: "svc-voice", Name: "Voice", HourlyCost: 35, ServiceTarget: 80, Active: true},
			"svc-idle":  {ID: "svc-idle", Name: "Idle", HourlyCost: 28, ServiceTarget: 85, Active: false},
		},
		sessions: make(map[string]domain.MonitoringSession),
		sealed:   make(map[string]int),
	}
}

func (f *fakeStore) ServiceByID(_ context.Context, id string) (*domain.Service, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if svc, ok := f.services[id]; ok {
		cp := *svc
		return &cp, nil
	}
	return nil, fmt.Errorf("%w: service %s", domain.ErrNotFound, id)
}

func (f *fakeStore) LoadForecast(_ context.Context, r domain.DateRange, serviceIDs []string) ([]domain.ForecastInterval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ForecastInterval
	for _, row := range f.forecast {
		if !r.Contains(row.Start) {
			continue
		}
		for _, id := range serviceIDs {
			if row.ServiceID == id {
				out = append(out, row)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) ActivityForService(_ context.Context, r domain.DateRange, serviceID string) ([]domain.ActivityInterval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ActivityInterval
	for _, row := range f.activity {
		if row.ServiceID == serviceID && r.Contains(row.Start) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeStore) LoadQueueSnapshot(_ context.Context, serviceID string) (*domain.QueueSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snapErr != nil {
		return nil, f.snapErr
	}
	if f.snapshot == nil || f.snapshot.ServiceID != serviceID {
		return nil, fmt.Errorf("%w: no snapshot for %s", domain.ErrNotFound, serviceID)
	}
	cp := *f.snapshot
	return &cp, nil
}

func (f *fakeStore) QueueHistory(_ context.Context, serviceID string, since time.Time) ([]domain.QueueSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.QueueSnapshot
	for _, s := range f.history {
		if s.ServiceID == serviceID && s.Timestamp.After(since) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) LoadThresholds(_ context.Context, serviceID string) ([]domain.ThresholdConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ThresholdConfig
	for _, t := range f.thresholds {
		if t.ServiceID == serviceID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) StartMonitoringSession(_ context.Context, s domain.MonitoringSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.ID] = s
	return nil
}

func (f *fakeStore) StopMonitoringSession(_ context.Context, sessionID string, _ time.Time, eventsEmitted int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sealed[sessionID] = eventsEmitted
	return nil
}

func (f *fakeStore) RecordMonitoringEvent(_ context.Context, e domain.MonitoringEvent) error {
	f.mu.Lock()
	f.events = append(f.events, e)
	ch := f.eventCh
	f.mu.Unlock()
	if ch != nil {
		select {
		case ch <- e:
		default:
		}
	}
	return nil
}

func (f *fakeStore) recordedKinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, e := range f.events {
		out[i] = e.Kind
	}
	return out
}

// staff adds n logged-in agents (and one logged-out row) for an interval.
func (f *fakeStore) staff(serviceID string, start time.Time, n int) {
	for i := 0; i < n; i++ {
		f.activity = append(f.activity, domain.ActivityInterval{
			AgentID:   fmt.Sprintf("agent-%02d", i),
			Start:     start,
			LoginSec:  900,
			ServiceID: serviceID,
		})
	}
	f.activity = append(f.activity, domain.ActivityInterval{
		AgentID:   "agent-offline",
		Start:     start,
		LoginSec:  0,
		ServiceID: serviceID,
	})
}

func newTestAnalyzer(store *fakeStore) *Analyzer {
	return NewAnalyzer(Config{}, store, zerolog.Nop())
}

func TestAnalyzeJoinsForecastAndStaffing(t *testing.T) {
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	at := day.Add(14 * time.Hour)
	store := newFakeStore()
	store.forecast = []domain.ForecastInterval{
		{ServiceID: "svc-voice", Start: at, RequiredAgents: 10, ServiceLevel: 80},
	}
	store.staff("svc-voice", at, 6)
	// A duplicate row for an already-counted agent must not inflate staffing.
	store.activity = append(store.activity, domain.ActivityInterval{
		AgentID: "agent-00", Start: at, LoginSec: 450, ServiceID: "svc-voice",
	})

	report, err := newTestAnalyzer(store).Analyze(context.Background(), "svc-voice", domain.NewDateRange(day, day.AddDate(0, 0, 1)))
	require.NoError(t, err)
	require.Len(t, report.Intervals, 96)

	iv := report.Intervals[14*4]
	assert.Equal(t, at, iv.Start)
	assert.Equal(t, 10.0, iv.ForecastAgents)
	assert.Equal(t, 6, iv.PlannedAgents)
	assert.Nil(t, iv.LiveAgents)
	assert.InDelta(t, 60.0, iv.CoveragePct, 1e-9)
	assert.Equal(t, domain.CoverageShortage, iv.Status)
	assert.InDelta(t, 30.0, iv.ProjectedSL, 1e-9)
	assert.InDelta(t, 4.0, iv.Gap, 1e-9)

	// Intervals with no demand and no staffing read as perfectly covered.
	empty := report.Intervals[0]
	assert.Equal(t, 100.0, empty.CoveragePct)
	assert.Equal(t, domain.CoverageOptimal, empty.Status)
}

func TestAnalyzeRequiresKnownService(t *testing.T) {
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	_, err := newTestAnalyzer(newFakeStore()).Analyze(context.Background(), "svc-ghost", domain.NewDateRange(day, day.AddDate(0, 0, 1)))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAnalyzeRejectsInvertedRange(t *testing.T) {
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	_, err := newTestAnalyzer(newFakeStore()).Analyze(context.Background(), "svc-voice", domain.DateRange{Start: day, End: day})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestStaffingAgainstNoDemandIsSurplus(t *testing.T) {
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.staff("svc-voice", day.Add(9*time.Hour), 3)

	report, err := newTestAnalyzer(store).Analyze(context.Background(), "svc-voice", domain.NewDateRange(day, day.AddDate(0, 0, 1)))
	require.NoError(t, err)

	iv := report.Intervals[9*4]
	assert.True(t, math.IsInf(iv.CoveragePct, 1))
	assert.Equal(t, domain.CoverageSurplus, iv.Status)
	assert.Empty(t, report.Gaps)
}

func TestErlangEstimateFillsMissingRequirement(t *testing.T) {
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	at := day.Add(10 * time.Hour)
	store := newFakeStore()
	// 30 calls at 180s AHT over 900s: traffic 6.0, ceil(6*1.3+1) = 9.
	store.forecast = []domain.ForecastInterval{
		{ServiceID: "svc-voice", Start: at, RequiredAgents: 0, CallVolume: 30, HandleTimeSec: 180},
	}
	store.staff("svc-voice", at, 9)

	report, err := newTestAnalyzer(store).Analyze(context.Background(), "svc-voice", domain.NewDateRange(day, day.AddDate(0, 0, 1)))
	require.NoError(t, err)

	iv := report.Intervals[10*4]
	assert.Equal(t, 9.0, iv.ForecastAgents)
	assert.InDelta(t, 100.0, iv.CoveragePct, 1e-9)
	assert.Equal(t, domain.CoverageOptimal, iv.Status)
}

func TestProjectServiceLevelBands(t *testing.T) {
	tests := []struct {
		pct  float64
		want float64
	}{
		{120, 85},
		{100, 85},
		{97, 80},
		{95, 80},
		{90, 70},
		{85, 70},
		{75, 50},
		{70, 50},
		{60, 30},
		{40, 20},
		{0, 0},
		{math.Inf(1), 85},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, ProjectServiceLevel(tt.pct), 1e-9, "pct=%v", tt.pct)
	}
}

func TestGapDetectionSpansContiguousShortage(t *testing.T) {
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	store := newFakeStore()
	for i := 0; i < 3; i++ {
		at := day.Add(14*time.Hour + time.Duration(i)*domain.IntervalDuration)
		store.forecast = append(store.forecast, domain.ForecastInterval{
			ServiceID: "svc-voice", Start: at, RequiredAgents: 10,
		})
		store.staff("svc-voice", at, 6)
	}
	// A separate, adequately staffed interval must not extend the gap.
	at := day.Add(16 * time.Hour)
	store.forecast = append(store.forecast, domain.ForecastInterval{
		ServiceID: "svc-voice", Start: at, RequiredAgents: 10,
	})
	store.staff("svc-voice", at, 9)

	report, err := newTestAnalyzer(store).Analyze(context.Background(), "svc-voice", domain.NewDateRange(day, day.AddDate(0, 0, 1)))
	require.NoError(t, err)
	require.Len(t, report.Gaps, 1)

	g := report.Gaps[0]
	assert.Equal(t, day.Add(14*time.Hour), g.Start)
	assert.Equal(t, day.Add(14*time.Hour+45*time.Minute), g.End)
	assert.Equal(t, 3, g.Intervals)
	assert.InDelta(t, 4.0, g.PeakShortage, 1e-9)
	assert.InDelta(t, 4.0, g.AvgShortage, 1e-9)
	assert.InDelta(t, 3.0, g.AgentHours, 1e-9) // 12 agent-intervals
	assert.InDelta(t, 30.0, g.WorstSL, 1e-9)
	assert.Equal(t, domain.SeverityCritical, g.Severity, "projected SL below 50 is critical")
	assert.InDelta(t, 4.5, g.RealImpact, 1e-9) // 3 x 1·(1+0.5)
	assert.False(t, g.Overtime)
	assert.InDelta(t, 105.0, g.Cost, 1e-9) // 3h at 35/h
	assert.InDelta(t, 105.0, report.TotalGapCost, 1e-9)
	assert.Equal(t, 3, report.ShortageIntervals)
}

func TestDeepShortageTriggersOvertimeCost(t *testing.T) {
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	store := newFakeStore()
	for i := 0; i < 2; i++ {
		at := day.Add(12*time.Hour + time.Duration(i)*domain.IntervalDuration)
		store.forecast = append(store.forecast, domain.ForecastInterval{
			ServiceID: "svc-voice", Start: at, RequiredAgents: 20,
		})
		store.staff("svc-voice", at, 10)
	}

	report, err := newTestAnalyzer(store).Analyze(context.Background(), "svc-voice", domain.NewDateRange(day, day.AddDate(0, 0, 1)))
	require.NoError(t, err)
	require.Len(t, report.Gaps, 1)

	g := report.Gaps[0]
	assert.InDelta(t, 10.0, g.PeakShortage, 1e-9)
	assert.True(t, g.Overtime, "peak shortage past five agents prices at overtime")
	assert.InDelta(t, 5.0, g.AgentHours, 1e-9)
	assert.InDelta(t, 5.0*35.0*OvertimeMultiplier, g.Cost, 1e-9)
}

func TestMildShortageGradesBySLBand(t *testing.T) {
	// Coverage 82% projects SL 50: below the 70 line, so the gap is high
	// even though no single interval is badly short.
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	at := day.Add(11 * time.Hour)
	store := newFakeStore()
	store.forecast = []domain.ForecastInterval{
		{ServiceID: "svc-voice", Start: at, RequiredAgents: 100},
	}
	store.staff("svc-voice", at, 82)

	report, err := newTestAnalyzer(store).Analyze(context.Background(), "svc-voice", domain.NewDateRange(day, day.AddDate(0, 0, 1)))
	require.NoError(t, err)
	require.Len(t, report.Gaps, 1)
	assert.Equal(t, domain.SeverityHigh, report.Gaps[0].Severity)
	assert.InDelta(t, 50.0, report.Gaps[0].WorstSL, 1e-9)
}

// seedCurrentInterval fixes demand and staffing for the interval containing
// "now" and the next one, so a test running across a grid boundary still
// finds its fixture.
func seedCurrentInterval(store *fakeStore, required float64, staffed int) {
	now := domain.AlignInterval(time.Now().UTC())
	for _, at := range []time.Time{now, now.Add(domain.IntervalDuration)} {
		store.forecast = append(store.forecast, domain.ForecastInterval{
			ServiceID: "svc-voice", Start: at, RequiredAgents: required,
		})
		store.staff("svc-voice", at, staffed)
	}
}

func TestCurrentUsesLiveSnapshotForNow(t *testing.T) {
	store := newFakeStore()
	seedCurrentInterval(store, 10, 8)
	snap := &domain.QueueSnapshot{
		ServiceID:       "svc-voice",
		Timestamp:       time.Now().UTC(),
		AgentsAvailable: 2,
		AgentsBusy:      4,
		ServiceLevel:    58,
	}

	iv, err := newTestAnalyzer(store).Current(context.Background(), "svc-voice", snap)
	require.NoError(t, err)
	require.NotNil(t, iv.LiveAgents)
	assert.Equal(t, 6, *iv.LiveAgents)
	assert.Equal(t, 8, iv.PlannedAgents)
	assert.InDelta(t, 60.0, iv.CoveragePct, 1e-9, "live staffing wins over planned")
	assert.Equal(t, domain.CoverageShortage, iv.Status)
	assert.InDelta(t, 30.0, iv.ProjectedSL, 1e-9)
}

func TestCurrentDegradesToPlannedWithoutSnapshot(t *testing.T) {
	store := newFakeStore()
	seedCurrentInterval(store, 10, 9)

	iv, err := newTestAnalyzer(store).Current(context.Background(), "svc-voice", nil)
	require.NoError(t, err)
	assert.Nil(t, iv.LiveAgents)
	assert.InDelta(t, 90.0, iv.CoveragePct, 1e-9)
	assert.Equal(t, domain.CoverageAdequate, iv.Status)
}
