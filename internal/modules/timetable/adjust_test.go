package timetable

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workforcelab/intraday/internal/domain"
	"github.com/workforcelab/intraday/internal/events"
)

// seedDayPlan lays a 09:00-12:00 plan: eleven work blocks on sk-voice and
// one short break at 10:30.
func seedDayPlan(store *fakeStore, employeeID string, d time.Time) {
	for i := 0; i < 12; i++ {
		b := domain.TimetableBlock{
			ID:           int64(i + 1),
			EmployeeID:   employeeID,
			Start:        d.Add(9 * time.Hour).Add(time.Duration(i) * domain.IntervalDuration),
			Activity:     domain.ActivityWork,
			SkillID:      "sk-voice",
			TemplateCode: DefaultTemplateCode,
		}
		if i == 6 {
			b.Activity = domain.ActivityShortBreak
			b.SkillID = ""
		}
		store.blocks = append(store.blocks, b)
	}
}

func TestAdjustAddBreakOverRange(t *testing.T) {
	d := day(2026, 3, 2)
	store := newFakeStore(planEmployee("emp-001"))
	seedDayPlan(store, "emp-001", d)
	checker := &fakeChecker{}
	p, bus := newTestPlanner(store, checker)

	var changes []*events.BlockChangedData
	bus.Subscribe(events.BlockChanged, func(e *events.Event) {
		changes = append(changes, e.Data.(*events.BlockChangedData))
	})

	res, err := p.Adjust(context.Background(), Adjustment{
		EmployeeID: "emp-001",
		From:       d.Add(11 * time.Hour),
		To:         d.Add(11*time.Hour + 30*time.Minute),
		Op:         OpAddBreak,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Changed)
	assert.Zero(t, res.Skipped)
	require.Len(t, res.Blocks, 2)
	for _, b := range res.Blocks {
		assert.Equal(t, domain.ActivityShortBreak, b.Activity)
		assert.Empty(t, b.SkillID)
	}

	assert.Equal(t, []string{"adjust"}, store.kinds)
	stored := store.storedBlocks()
	assert.Len(t, stored, 12, "the whole day is rewritten")
	assert.Equal(t, 3, countActivity(stored, domain.ActivityShortBreak))

	require.Len(t, changes, 1)
	assert.Equal(t, "emp-001", changes[0].EmployeeID)
	assert.Equal(t, d, changes[0].Day)
	assert.Equal(t, "adjust", changes[0].Kind)
	assert.Equal(t, 2, changes[0].Blocks)
	assert.Contains(t, checker.invalidated, "emp-001")
}

func TestAdjustSkipsLockedBlocks(t *testing.T) {
	d := day(2026, 3, 2)
	store := newFakeStore(planEmployee("emp-001"))
	seedDayPlan(store, "emp-001", d)
	store.blocks[8].Locked = true // 11:00
	p, _ := newTestPlanner(store, nil)

	res, err := p.Adjust(context.Background(), Adjustment{
		EmployeeID: "emp-001",
		From:       d.Add(11 * time.Hour),
		To:         d.Add(11*time.Hour + 30*time.Minute),
		Op:         OpAddLunch,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Changed)
	assert.Equal(t, 1, res.Skipped)

	stored := store.storedBlocks()
	for _, b := range stored {
		if b.Start.Equal(d.Add(11 * time.Hour)) {
			assert.Equal(t, domain.ActivityWork, b.Activity, "locked block stays put")
		}
		if b.Start.Equal(d.Add(11*time.Hour + 15*time.Minute)) {
			assert.Equal(t, domain.ActivityLunch, b.Activity)
		}
	}
}

func TestAdjustCancelBreaksRestoresWork(t *testing.T) {
	d := day(2026, 3, 2)
	store := newFakeStore(planEmployee("emp-001"))
	seedDayPlan(store, "emp-001", d)
	p, _ := newTestPlanner(store, nil)

	res, err := p.Adjust(context.Background(), Adjustment{
		EmployeeID: "emp-001",
		From:       d.Add(9 * time.Hour),
		To:         d.Add(12 * time.Hour),
		Op:         OpCancelBreaks,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Changed, "only the break changes")
	stored := store.storedBlocks()
	assert.Equal(t, 12, countActivity(stored, domain.ActivityWork))
	for _, b := range stored {
		if b.Start.Equal(d.Add(10*time.Hour + 30*time.Minute)) {
			assert.Equal(t, "sk-voice", b.SkillID, "cancelled break falls back to the primary skill")
		}
	}
}

func TestAdjustAssignProject(t *testing.T) {
	d := day(2026, 3, 2)
	store := newFakeStore(planEmployee("emp-001"))
	seedDayPlan(store, "emp-001", d)
	p, _ := newTestPlanner(store, nil)

	_, err := p.Adjust(context.Background(), Adjustment{
		EmployeeID: "emp-001",
		From:       d.Add(9 * time.Hour),
		To:         d.Add(9*time.Hour + 30*time.Minute),
		Op:         OpAssignProject,
	})
	assert.ErrorIs(t, err, domain.ErrValidation, "project id is required")

	res, err := p.Adjust(context.Background(), Adjustment{
		EmployeeID: "emp-001",
		From:       d.Add(9 * time.Hour),
		To:         d.Add(9*time.Hour + 30*time.Minute),
		Op:         OpAssignProject,
		ProjectID:  "prj-migration",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Changed)
	for _, b := range res.Blocks {
		assert.Equal(t, domain.ActivityProject, b.Activity)
		assert.Equal(t, "prj-migration", b.ProjectID)
		assert.Empty(t, b.SkillID)
	}
}

func TestAdjustEventValidatesKind(t *testing.T) {
	d := day(2026, 3, 2)
	store := newFakeStore(planEmployee("emp-001"))
	seedDayPlan(store, "emp-001", d)
	p, _ := newTestPlanner(store, nil)

	_, err := p.Adjust(context.Background(), Adjustment{
		EmployeeID: "emp-001",
		From:       d.Add(9 * time.Hour),
		To:         d.Add(9*time.Hour + 15*time.Minute),
		Op:         OpEvent,
		Event:      domain.ActivityLunch,
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	res, err := p.Adjust(context.Background(), Adjustment{
		EmployeeID: "emp-001",
		From:       d.Add(9 * time.Hour),
		To:         d.Add(9*time.Hour + 15*time.Minute),
		Op:         OpEvent,
		Event:      domain.ActivityMeeting,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Changed)
	assert.Equal(t, domain.ActivityMeeting, res.Blocks[0].Activity)
}

func TestAdjustNoCallsMarksDowntime(t *testing.T) {
	d := day(2026, 3, 2)
	store := newFakeStore(planEmployee("emp-001"))
	seedDayPlan(store, "emp-001", d)
	p, _ := newTestPlanner(store, nil)

	res, err := p.Adjust(context.Background(), Adjustment{
		EmployeeID: "emp-001",
		From:       d.Add(9*time.Hour + 45*time.Minute),
		To:         d.Add(10*time.Hour + 15*time.Minute),
		Op:         OpNoCalls,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Changed)
	for _, b := range res.Blocks {
		assert.Equal(t, domain.ActivityDowntime, b.Activity)
		assert.Empty(t, b.SkillID)
	}
}

func TestAdjustAddWorkFallsBackToPrimarySkill(t *testing.T) {
	d := day(2026, 3, 2)
	store := newFakeStore(planEmployee("emp-001"))
	seedDayPlan(store, "emp-001", d)
	p, _ := newTestPlanner(store, nil)

	// The 10:30 break turns back into work on the primary skill.
	res, err := p.Adjust(context.Background(), Adjustment{
		EmployeeID: "emp-001",
		From:       d.Add(10*time.Hour + 30*time.Minute),
		To:         d.Add(10*time.Hour + 45*time.Minute),
		Op:         OpAddWork,
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.Changed)
	assert.Equal(t, domain.ActivityWork, res.Blocks[0].Activity)
	assert.Equal(t, "sk-voice", res.Blocks[0].SkillID)
}

func TestAdjustAddWorkWithExplicitSkill(t *testing.T) {
	d := day(2026, 3, 2)
	store := newFakeStore(planEmployee("emp-001"))
	seedDayPlan(store, "emp-001", d)
	p, _ := newTestPlanner(store, nil)

	res, err := p.Adjust(context.Background(), Adjustment{
		EmployeeID: "emp-001",
		From:       d.Add(10*time.Hour + 30*time.Minute),
		To:         d.Add(10*time.Hour + 45*time.Minute),
		Op:         OpAddWork,
		SkillID:    "sk-chat",
	})
	require.NoError(t, err)
	assert.Equal(t, "sk-chat", res.Blocks[0].SkillID)
}

func TestAdjustOutsidePlanIsNotFound(t *testing.T) {
	d := day(2026, 3, 2)
	store := newFakeStore(planEmployee("emp-001"))
	seedDayPlan(store, "emp-001", d)
	p, _ := newTestPlanner(store, nil)

	_, err := p.Adjust(context.Background(), Adjustment{
		EmployeeID: "emp-001",
		From:       d.Add(15 * time.Hour),
		To:         d.Add(16 * time.Hour),
		Op:         OpAddBreak,
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = p.Adjust(context.Background(), Adjustment{
		EmployeeID: "ghost",
		From:       d.Add(9 * time.Hour),
		To:         d.Add(10 * time.Hour),
		Op:         OpAddBreak,
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// Re-applying an adjustment that matches the current state persists
// nothing and raises no event.
func TestAdjustAlreadyAppliedIsNoop(t *testing.T) {
	d := day(2026, 3, 2)
	store := newFakeStore(planEmployee("emp-001"))
	seedDayPlan(store, "emp-001", d)
	p, bus := newTestPlanner(store, nil)

	fired := 0
	bus.Subscribe(events.BlockChanged, func(*events.Event) { fired++ })

	res, err := p.Adjust(context.Background(), Adjustment{
		EmployeeID: "emp-001",
		From:       d.Add(10*time.Hour + 30*time.Minute),
		To:         d.Add(10*time.Hour + 45*time.Minute),
		Op:         OpAddBreak,
	})
	require.NoError(t, err)

	assert.Zero(t, res.Changed)
	assert.Zero(t, store.persists)
	assert.Zero(t, fired)
	require.Len(t, res.Blocks, 1)
}

// An adjustment across midnight rewrites both touched days and raises one
// change event per day.
func TestAdjustSpansMidnight(t *testing.T) {
	d := day(2026, 3, 2)
	store := newFakeStore(planEmployee("emp-001"))
	for i := 0; i < 4; i++ {
		store.blocks = append(store.blocks, domain.TimetableBlock{
			ID:         int64(i + 1),
			EmployeeID: "emp-001",
			Start:      d.Add(23*time.Hour + 30*time.Minute).Add(time.Duration(i) * domain.IntervalDuration),
			Activity:   domain.ActivityWork,
			SkillID:    "sk-voice",
		})
	}
	p, bus := newTestPlanner(store, nil)

	var changes []*events.BlockChangedData
	bus.Subscribe(events.BlockChanged, func(e *events.Event) {
		changes = append(changes, e.Data.(*events.BlockChangedData))
	})

	res, err := p.Adjust(context.Background(), Adjustment{
		EmployeeID: "emp-001",
		From:       d.Add(23*time.Hour + 30*time.Minute),
		To:         d.AddDate(0, 0, 1).Add(30 * time.Minute),
		Op:         OpNoCalls,
	})
	require.NoError(t, err)

	assert.Equal(t, 4, res.Changed)
	require.Len(t, changes, 2)
	assert.Equal(t, d, changes[0].Day)
	assert.Equal(t, d.AddDate(0, 0, 1), changes[1].Day)
	assert.Equal(t, 2, changes[0].Blocks)
	assert.Equal(t, 2, changes[1].Blocks)
}
