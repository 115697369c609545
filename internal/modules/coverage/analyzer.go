package coverage

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/workforcelab/intraday/internal/domain"
)

// Store is the slice of the gateway the analyzer needs.
type Store interface {
	ServiceByID(ctx context.Context, id string) (*domain.Service, error)
	LoadForecast(ctx context.Context, r domain.DateRange, serviceIDs []string) ([]domain.ForecastInterval, error)
	ActivityForService(ctx context.Context, r domain.DateRange, serviceID string) ([]domain.ActivityInterval, error)
	LoadQueueSnapshot(ctx context.Context, serviceID string) (*domain.QueueSnapshot, error)
	QueueHistory(ctx context.Context, serviceID string, since time.Time) ([]domain.QueueSnapshot, error)
	LoadThresholds(ctx context.Context, serviceID string) ([]domain.ThresholdConfig, error)
}

// Analyzer joins forecast demand, planned staffing and live telemetry into
// per-interval coverage, and prices the shortage gaps.
type Analyzer struct {
	cfg   Config
	store Store
	log   zerolog.Logger
}

// NewAnalyzer creates an analyzer.
func NewAnalyzer(cfg Config, store Store, log zerolog.Logger) *Analyzer {
	return &Analyzer{
		cfg:   cfg.withDefaults(),
		store: store,
		log:   log.With().Str("module", "coverage").Logger(),
	}
}

// Analyze computes the coverage report for one service over a range. Live
// telemetry contributes only to the interval containing the current queue
// snapshot; historical ranges are judged on planned staffing alone.
func (a *Analyzer) Analyze(ctx context.Context, serviceID string, r domain.DateRange) (*Report, error) {
	started := time.Now()
	if err := r.Validate(); err != nil {
		return nil, err
	}
	svc, err := a.store.ServiceByID(ctx, serviceID)
	if err != nil {
		return nil, err
	}

	forecast, err := a.store.LoadForecast(ctx, r, []string{serviceID})
	if err != nil {
		return nil, err
	}
	activity, err := a.store.ActivityForService(ctx, r, serviceID)
	if err != nil {
		return nil, err
	}

	var snap *domain.QueueSnapshot
	if r.Contains(time.Now().UTC()) {
		snap, err = a.store.LoadQueueSnapshot(ctx, serviceID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}

	forecastByStart := lo.KeyBy(forecast, func(f domain.ForecastInterval) int64 {
		return f.Start.Unix()
	})
	planned := plannedAgents(activity)

	var intervals []domain.CoverageInterval
	for _, start := range domain.IntervalsBetween(r.Start, r.End) {
		var f *domain.ForecastInterval
		if row, ok := forecastByStart[start.Unix()]; ok {
			f = &row
		}
		var live *int
		if snap != nil && domain.AlignInterval(snap.Timestamp).Equal(start) {
			n := snap.AgentsAvailable + snap.AgentsBusy
			live = &n
		}
		intervals = append(intervals, buildInterval(serviceID, start, f, planned[start.Unix()], live))
	}

	gaps := a.detectGaps(serviceID, intervals, hourlyCost(svc, a.cfg))
	report := &Report{
		ServiceID:   serviceID,
		Range:       r,
		Intervals:   intervals,
		Gaps:        gaps,
		GeneratedAt: time.Now().UTC(),
		Duration:    time.Since(started),
	}
	for _, iv := range intervals {
		if iv.Status == domain.CoverageShortage {
			report.ShortageIntervals++
		}
	}
	for _, g := range gaps {
		report.TotalGapCost += g.Cost
	}

	a.log.Debug().
		Str("service_id", serviceID).
		Str("range", r.String()).
		Int("intervals", len(intervals)).
		Int("gaps", len(gaps)).
		Float64("gap_cost", report.TotalGapCost).
		Msg("Coverage analyzed")
	return report, nil
}

// Current computes the coverage interval for "now" with a caller-provided
// live snapshot. The live monitor reads the snapshot through its breaker and
// hands it in; a nil snapshot degrades to planned staffing.
func (a *Analyzer) Current(ctx context.Context, serviceID string, snap *domain.QueueSnapshot) (*domain.CoverageInterval, error) {
	start := domain.AlignInterval(time.Now().UTC())
	r := domain.DateRange{Start: start, End: start.Add(domain.IntervalDuration)}

	forecast, err := a.store.LoadForecast(ctx, r, []string{serviceID})
	if err != nil {
		return nil, err
	}
	activity, err := a.store.ActivityForService(ctx, r, serviceID)
	if err != nil {
		return nil, err
	}

	var f *domain.ForecastInterval
	if len(forecast) > 0 {
		f = &forecast[0]
	}
	// A snapshot younger than one grid slot is current; older ones describe
	// a past interval and would misstate the live floor.
	var live *int
	if snap != nil && time.Since(snap.Timestamp) <= domain.IntervalDuration {
		n := snap.AgentsAvailable + snap.AgentsBusy
		live = &n
	}
	iv := buildInterval(serviceID, start, f, plannedAgents(activity)[start.Unix()], live)
	return &iv, nil
}

// plannedAgents counts distinct logged-in agents per interval start.
func plannedAgents(activity []domain.ActivityInterval) map[int64]int {
	byStart := lo.GroupBy(activity, func(a domain.ActivityInterval) int64 {
		return a.Start.Unix()
	})
	out := make(map[int64]int, len(byStart))
	for start, rows := range byStart {
		logged := lo.Filter(rows, func(a domain.ActivityInterval, _ int) bool {
			return a.LoginSec > 0
		})
		out[start] = len(lo.UniqBy(logged, func(a domain.ActivityInterval) string {
			return a.AgentID
		}))
	}
	return out
}

func buildInterval(serviceID string, start time.Time, f *domain.ForecastInterval, planned int, live *int) domain.CoverageInterval {
	var required float64
	if f != nil {
		required = f.RequiredAgents
		if required <= 0 {
			required = erlangAgents(*f)
		}
	}

	staffed := planned
	if live != nil {
		staffed = *live
	}
	pct := coveragePct(required, staffed)

	return domain.CoverageInterval{
		ServiceID:      serviceID,
		Start:          start,
		ForecastAgents: required,
		PlannedAgents:  planned,
		LiveAgents:     live,
		CoveragePct:    pct,
		Status:         domain.CoverageStatusFor(pct),
		ProjectedSL:    ProjectServiceLevel(pct),
		Gap:            required - float64(staffed),
	}
}

// coveragePct follows the zero-demand convention: no demand and no staffing
// is perfect coverage, staffing against no demand is unbounded surplus.
func coveragePct(required float64, staffed int) float64 {
	if required <= 0 {
		if staffed == 0 {
			return 100
		}
		return math.Inf(1)
	}
	return float64(staffed) / required * 100
}

// erlangAgents estimates required agents from raw demand when the forecast
// row carries no explicit requirement. Traffic intensity is volume times
// handle time over the interval length; the 1.3 uplift plus one agent is a
// coarse stand-in for a calibrated Erlang-C solve.
func erlangAgents(f domain.ForecastInterval) float64 {
	if f.CallVolume <= 0 || f.HandleTimeSec <= 0 {
		return 0
	}
	traffic := f.CallVolume * f.HandleTimeSec / domain.IntervalDuration.Seconds()
	return math.Ceil(traffic*1.3 + 1)
}

// ProjectServiceLevel maps a coverage percentage onto the expected service
// level. Full cover projects the 85 ceiling; the named bands step down to
// 50 at 70% cover, and below that the projection falls linearly to zero.
func ProjectServiceLevel(pct float64) float64 {
	switch {
	case pct >= 100:
		return 85
	case pct >= 95:
		return 80
	case pct >= 85:
		return 70
	case pct >= 70:
		return 50
	case pct <= 0:
		return 0
	default:
		return pct * 0.5
	}
}

// detectGaps scans for contiguous shortage runs and prices them.
func (a *Analyzer) detectGaps(serviceID string, intervals []domain.CoverageInterval, hourly float64) []Gap {
	var gaps []Gap
	var run []domain.CoverageInterval

	flush := func() {
		if len(run) == 0 {
			return
		}
		gaps = append(gaps, a.buildGap(serviceID, run, hourly))
		run = nil
	}

	for _, iv := range intervals {
		if iv.Status == domain.CoverageShortage {
			run = append(run, iv)
			continue
		}
		flush()
	}
	flush()
	return gaps
}

func (a *Analyzer) buildGap(serviceID string, run []domain.CoverageInterval, hourly float64) Gap {
	g := Gap{
		ServiceID: serviceID,
		Start:     run[0].Start,
		End:       run[len(run)-1].Start.Add(domain.IntervalDuration),
		Intervals: len(run),
		WorstSL:   math.MaxFloat64,
	}
	var totalShortage float64
	for _, iv := range run {
		shortage := math.Max(0, iv.Gap)
		totalShortage += shortage
		if shortage > g.PeakShortage {
			g.PeakShortage = shortage
		}
		if iv.ProjectedSL < g.WorstSL {
			g.WorstSL = iv.ProjectedSL
		}
		g.RealImpact += realImpact(shortage, iv.ProjectedSL)
	}
	g.AvgShortage = totalShortage / float64(len(run))
	g.AgentHours = totalShortage * domain.IntervalDuration.Hours()
	g.Severity = gapSeverity(g.WorstSL, g.RealImpact)

	g.Cost = g.AgentHours * hourly
	if g.PeakShortage > OvertimeShortage {
		g.Cost *= OvertimeMultiplier
		g.Overtime = true
	}
	return g
}

// realImpact weighs an interval's shortage by how badly its projected
// service level trails the 80 target.
func realImpact(shortage, projectedSL float64) float64 {
	return shortage * domain.IntervalDuration.Hours() * (1 + math.Max(0, 80-projectedSL)/100)
}

func gapSeverity(worstSL, impact float64) domain.Severity {
	switch {
	case worstSL < 50 || impact > 20:
		return domain.SeverityCritical
	case worstSL < 70 || impact > 10:
		return domain.SeverityHigh
	case worstSL < 80 || impact > 5:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}

func hourlyCost(svc *domain.Service, cfg Config) float64 {
	if svc != nil && svc.HourlyCost > 0 {
		return svc.HourlyCost
	}
	return cfg.HourlyCost
}
