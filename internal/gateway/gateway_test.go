package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workforcelab/intraday/internal/domain"
	wfmtest "github.com/workforcelab/intraday/internal/testing"
)

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()
	wfm, cleanupWfm := wfmtest.NewTestDB(t, "wfm")
	audit, cleanupAudit := wfmtest.NewTestDB(t, "audit")
	cache, cleanupCache := wfmtest.NewTestDB(t, "cache")
	t.Cleanup(cleanupWfm)
	t.Cleanup(cleanupAudit)
	t.Cleanup(cleanupCache)
	return New(wfm.Conn(), audit.Conn(), cache.Conn(), zerolog.Nop())
}

func TestEmployeeProfilesRoundTrip(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	employees := wfmtest.NewEmployeeFixtures()
	require.NoError(t, g.Employees.SaveSkills(ctx, wfmtest.NewSkillFixtures()))
	require.NoError(t, g.Employees.Save(ctx, employees))

	loaded, err := g.LoadEmployeeProfiles(ctx, []string{"emp-001", "emp-003"})
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	byID := make(map[string]domain.Employee)
	for _, e := range loaded {
		byID[e.ID] = e
	}
	anna := byID["emp-001"]
	assert.Equal(t, domain.EmploymentFullTime, anna.Employment)
	assert.Equal(t, "skill-voice", anna.PrimarySkill())
	assert.Equal(t, 40.0, anna.Constraints.MaxWeeklyHours)
	assert.True(t, anna.Constraints.OvertimeAllowed)

	sofia := byID["emp-003"]
	assert.Equal(t, domain.AgeMinor, sofia.AgeCategory)
	assert.Len(t, sofia.Skills, 1)
}

func TestShiftRangeIsHalfOpen(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	monday := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	require.NoError(t, g.Shifts.Save(ctx, wfmtest.NewShiftFixtures("emp-001", monday)))

	// Monday through Wednesday: the Wednesday end day is excluded.
	r := domain.NewDateRange(monday, monday.AddDate(0, 0, 2))
	shifts, err := g.LoadShifts(ctx, r, []string{"emp-001"})
	require.NoError(t, err)
	require.Len(t, shifts, 2)
	assert.Equal(t, monday, shifts[0].Date)
	assert.Equal(t, monday.AddDate(0, 0, 1), shifts[1].Date)
}

func TestPersistBlocksConvergesAndFeedsChanges(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	blocks := wfmtest.NewBlockFixtures("emp-001", start, 8, "skill-voice")
	require.NoError(t, g.PersistTimetableBlocks(ctx, blocks, "plan"))
	require.NoError(t, g.PersistTimetableBlocks(ctx, blocks, "plan"))

	day := domain.Day(start)
	loaded, err := g.LoadTimetableBlocks(ctx, domain.NewDateRange(day, day.AddDate(0, 0, 1)), nil)
	require.NoError(t, err)
	assert.Len(t, loaded, 8, "re-persisting the same plan must not duplicate blocks")

	changes, err := g.RecentBlockChanges(ctx, day)
	require.NoError(t, err)
	require.Len(t, changes, 2, "each persist appends one feed row per touched day")
	assert.Equal(t, "plan", changes[0].Kind)
	assert.Equal(t, 8, changes[0].Blocks)
}

func TestUpdateBlockRejectsLocked(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	blocks := wfmtest.NewBlockFixtures("emp-001", start, 2, "skill-voice")
	blocks[0].Locked = true
	require.NoError(t, g.PersistTimetableBlocks(ctx, blocks, "plan"))

	day := domain.Day(start)
	loaded, err := g.LoadTimetableBlocks(ctx, domain.NewDateRange(day, day.AddDate(0, 0, 1)), nil)
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	lunch := domain.ActivityLunch
	_, err = g.UpdateBlock(ctx, loaded[0].ID, BlockUpdate{Activity: &lunch})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConflict))

	// Unlocking is the one change a locked block accepts.
	unlocked := false
	got, err := g.UpdateBlock(ctx, loaded[0].ID, BlockUpdate{Locked: &unlocked})
	require.NoError(t, err)
	assert.False(t, got.Locked)

	// The unlocked sibling takes the activity change.
	got, err = g.UpdateBlock(ctx, loaded[1].ID, BlockUpdate{Activity: &lunch})
	require.NoError(t, err)
	assert.Equal(t, domain.ActivityLunch, got.Activity)
}

func TestForecastSaveAlignsIntervals(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	start := time.Date(2025, 3, 10, 9, 7, 33, 0, time.UTC) // deliberately unaligned
	intervals := wfmtest.NewForecastFixtures("svc-voice", start, 4, 6.0)
	require.NoError(t, g.Forecast.Save(ctx, intervals))

	day := domain.Day(start)
	loaded, err := g.LoadForecast(ctx, domain.NewDateRange(day, day.AddDate(0, 0, 1)), []string{"svc-voice"})
	require.NoError(t, err)
	require.Len(t, loaded, 4)
	assert.Equal(t, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC), loaded[0].Start)
	assert.Equal(t, 6.0, loaded[0].RequiredAgents)
}

func TestQueueSnapshotLatestWins(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, g.Queue.Record(ctx, domain.QueueSnapshot{
			ServiceID:       "svc-voice",
			Timestamp:       base.Add(time.Duration(i) * 5 * time.Second),
			CallsWaiting:    i,
			AgentsAvailable: 10 - i,
			ServiceLevel:    82.5,
		}))
	}

	latest, err := g.LoadQueueSnapshot(ctx, "svc-voice")
	require.NoError(t, err)
	assert.Equal(t, 2, latest.CallsWaiting)
	assert.Equal(t, base.Add(10*time.Second), latest.Timestamp)

	_, err = g.LoadQueueSnapshot(ctx, "svc-missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	pruned, err := g.Queue.Prune(ctx, base.Add(6*time.Second))
	require.NoError(t, err)
	assert.EqualValues(t, 2, pruned)
}

func TestThresholdUpsertValidatesOrdering(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	valid := domain.ThresholdConfig{
		ServiceID: "svc-voice",
		Metric:    "service_level",
		Warning:   85, Critical: 75, Emergency: 60,
		Direction: domain.DirectionBelow,
		AutoAlert: true,
	}
	require.NoError(t, g.UpsertThresholdConfig(ctx, valid))

	// For a below-threshold the levels must fall, not rise.
	inverted := valid
	inverted.Warning, inverted.Emergency = inverted.Emergency, inverted.Warning
	err := g.UpsertThresholdConfig(ctx, inverted)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	loaded, err := g.LoadThresholds(ctx, "svc-voice")
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, domain.SeverityCritical, loaded[0].Breached(55))
	assert.Equal(t, domain.Severity(""), loaded[0].Breached(90))
}

func TestViolationPersistIsIdempotent(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	v := domain.Violation{
		ID:         "emp-001|DAILY_HOURS|2025-03-10",
		EmployeeID: "emp-001",
		RuleID:     domain.RuleDailyHours,
		OccurredAt: day.Add(18 * time.Hour),
		ShiftDate:  day,
		Observed:   9.5,
		Required:   8,
		Unit:       "hours",
		Severity:   domain.SeverityMedium,
		Penalty:    domain.PenaltySerious,
		Message:    "daily hours above limit",
		Suggestions: []string{
			"Shorten the shift by 1.5 hours",
		},
	}
	require.NoError(t, g.PersistViolations(ctx, []domain.Violation{v}))
	v.Observed = 10 // same finding, refined measurement
	require.NoError(t, g.PersistViolations(ctx, []domain.Violation{v}))

	r := domain.NewDateRange(day, day.AddDate(0, 0, 1))
	got, err := g.Violations.ForEmployee(ctx, "emp-001", r)
	require.NoError(t, err)
	require.Len(t, got, 1, "same id must converge on one row")
	assert.Equal(t, 10.0, got[0].Observed)
	assert.Equal(t, []string{"Shorten the shift by 1.5 hours"}, got[0].Suggestions)
}

func TestAlertRecentKeysSeedDedup(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	detected := day.Add(14 * time.Hour)
	alert := domain.Alert{
		ID:         "alert-1",
		EmployeeID: "emp-002",
		RuleID:     domain.RuleRestBetween,
		Severity:   domain.SeverityHigh,
		DetectedAt: detected,
		ShiftDate:  day,
		ManagerID:  "mgr-01",
		Status:     domain.AlertQueued,
	}
	require.NoError(t, g.PersistAlerts(ctx, []domain.Alert{alert}))

	keys, err := g.Alerts.RecentKeys(ctx, day)
	require.NoError(t, err)
	want := domain.CoalescingKey("emp-002", domain.RuleRestBetween, day)
	at, ok := keys[want]
	require.True(t, ok)
	assert.Equal(t, detected, at)

	require.NoError(t, g.Alerts.UpdateStatus(ctx, "alert-1", domain.AlertSent))
	err = g.Alerts.UpdateStatus(ctx, "alert-missing", domain.AlertSent)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestResultStoreHonorsExpiry(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	key := "emp-001|2025-03-10|2025-03-17"
	payload := []byte{0x81, 0xa1, 0x76, 0x01} // opaque to the store

	require.NoError(t, g.Results.PutResult(ctx, key, payload, time.Now().UTC().Add(time.Hour)))
	got, ok, err := g.Results.GetResult(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, payload, got)

	// Entries never outlive their expiry.
	require.NoError(t, g.Results.PutResult(ctx, key, payload, time.Now().UTC().Add(-time.Minute)))
	_, ok, err = g.Results.GetResult(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	purged, err := g.Results.PurgeResults(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, purged)

	require.NoError(t, g.Results.PutResult(ctx, key, payload, time.Now().UTC().Add(time.Hour)))
	require.NoError(t, g.Results.DeleteResults(ctx, "emp-001"))
	_, ok, err = g.Results.GetResult(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMonitoringSessionLifecycle(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	started := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	session := domain.MonitoringSession{ID: "sess-1", ServiceID: "svc-voice", StartedAt: started}
	require.NoError(t, g.Monitoring.StartSession(ctx, session))

	active, err := g.Monitoring.ActiveSession(ctx, "svc-voice")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", active.ID)
	assert.Nil(t, active.StoppedAt)

	require.NoError(t, g.RecordMonitoringEvent(ctx, domain.MonitoringEvent{
		SessionID: "sess-1",
		ServiceID: "svc-voice",
		Kind:      "coverage_tick",
		Payload:   map[string]any{"coverage_pct": 92.3},
		CreatedAt: started.Add(30 * time.Second),
	}))

	events, err := g.Monitoring.RecentEvents(ctx, started, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "coverage_tick", events[0].Kind)
	assert.InDelta(t, 92.3, events[0].Payload["coverage_pct"].(float64), 0.001)

	require.NoError(t, g.Monitoring.StopSession(ctx, "sess-1", started.Add(time.Hour), 120))
	_, err = g.Monitoring.ActiveSession(ctx, "svc-voice")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestActivityActiveAgents(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	require.NoError(t, g.Activity.Save(ctx, []domain.ActivityInterval{
		{AgentID: "emp-001", Start: base, LoginSec: 900, ProductiveSec: 800, ServiceID: "svc-voice"},
		{AgentID: "emp-002", Start: base.Add(-48 * time.Hour), LoginSec: 900, ServiceID: "svc-chat"},
	}))

	active, err := g.Activity.ActiveAgents(ctx, base.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"emp-001"}, active)
}

func TestJobHistoryRecentAndPrune(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 10, 3, 0, 0, 0, time.UTC)
	for i, outcome := range []string{"success", "failed", "success"} {
		require.NoError(t, g.JobHistory.Record(ctx, JobRun{
			JobType:   "sweep:compliance",
			StartedAt: base.Add(time.Duration(i) * time.Hour),
			Duration:  3 * time.Second,
			Outcome:   outcome,
		}))
	}

	runs, err := g.JobHistory.Recent(ctx, "sweep:compliance", 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "success", runs[0].Outcome)
	assert.Equal(t, base.Add(2*time.Hour), runs[0].StartedAt)

	pruned, err := g.JobHistory.Prune(ctx, base.Add(90*time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 2, pruned)
}
