package work

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/workforcelab/intraday/internal/domain"
)

// stubState is a StateChecker with fixed answers.
type stubState struct {
	window  bool
	load    bool
	watched map[string]bool
}

func (s *stubState) InMaintenanceWindow() bool       { return s.window }
func (s *stubState) UnderLoad() bool                 { return s.load }
func (s *stubState) IsWatched(serviceID string) bool { return s.watched[serviceID] }

func clockAt(hour, minute int) func() time.Time {
	return func() time.Time {
		return time.Date(2026, 3, 9, hour, minute, 0, 0, time.UTC)
	}
}

func TestSystemStateMaintenanceWindow(t *testing.T) {
	state := NewSystemState(nil, nil)

	state.Now = clockAt(3, 30)
	assert.True(t, state.InMaintenanceWindow())

	state.Now = clockAt(2, 0)
	assert.True(t, state.InMaintenanceWindow(), "start is inclusive")

	state.Now = clockAt(6, 0)
	assert.False(t, state.InMaintenanceWindow(), "end is exclusive")

	state.Now = clockAt(14, 0)
	assert.False(t, state.InMaintenanceWindow())
}

func TestSystemStateWindowWrapsMidnight(t *testing.T) {
	state := NewSystemState(nil, nil)
	state.WindowStart = domain.NewTimeOfDay(22, 0)
	state.WindowEnd = domain.NewTimeOfDay(4, 0)

	state.Now = clockAt(23, 15)
	assert.True(t, state.InMaintenanceWindow())

	state.Now = clockAt(1, 0)
	assert.True(t, state.InMaintenanceWindow())

	state.Now = clockAt(12, 0)
	assert.False(t, state.InMaintenanceWindow())
}

func TestSystemStateNilCallbacks(t *testing.T) {
	state := NewSystemState(nil, nil)

	assert.False(t, state.UnderLoad())
	assert.False(t, state.IsWatched("billing"))
}

func TestSystemStateCallbacks(t *testing.T) {
	busy := false
	state := NewSystemState(
		func() bool { return busy },
		func(id string) bool { return id == "billing" },
	)

	assert.False(t, state.UnderLoad())
	busy = true
	assert.True(t, state.UnderLoad())

	assert.True(t, state.IsWatched("billing"))
	assert.False(t, state.IsWatched("support-tier1"))
}

func TestTimingCheckerAnyTime(t *testing.T) {
	checker := NewTimingChecker(&stubState{})
	assert.True(t, checker.CanExecute(AnyTime, ""))
	assert.True(t, checker.CanExecute(AnyTime, "billing"))
}

func TestTimingCheckerOffPeak(t *testing.T) {
	state := &stubState{}
	checker := NewTimingChecker(state)

	// Idle system, outside the window.
	assert.True(t, checker.CanExecute(OffPeak, ""))

	// Busy system defers off-peak work.
	state.load = true
	assert.False(t, checker.CanExecute(OffPeak, ""))

	// The maintenance window overrides load.
	state.window = true
	assert.True(t, checker.CanExecute(OffPeak, ""))
}

func TestTimingCheckerMaintenanceWindow(t *testing.T) {
	state := &stubState{}
	checker := NewTimingChecker(state)

	assert.False(t, checker.CanExecute(MaintenanceWindow, ""))
	state.window = true
	assert.True(t, checker.CanExecute(MaintenanceWindow, ""))
}

func TestTimingCheckerWhileWatched(t *testing.T) {
	state := &stubState{watched: map[string]bool{"billing": true}}
	checker := NewTimingChecker(state)

	assert.True(t, checker.CanExecute(WhileWatched, "billing"))
	assert.False(t, checker.CanExecute(WhileWatched, "support-tier1"))

	// Global work has no service to gate on.
	assert.True(t, checker.CanExecute(WhileWatched, ""))
}

func TestTimingCheckerUnknownTiming(t *testing.T) {
	checker := NewTimingChecker(&stubState{window: true})
	assert.False(t, checker.CanExecute(Timing(99), ""))
}
