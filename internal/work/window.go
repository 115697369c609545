package work

import (
	"time"

	"github.com/workforcelab/intraday/internal/domain"
)

// Default bounds of the nightly maintenance window, local clock.
var (
	DefaultWindowStart = domain.NewTimeOfDay(2, 0)
	DefaultWindowEnd   = domain.NewTimeOfDay(6, 0)
)

// StateChecker reports the operational state the processor consults before
// starting timed work. It lets this package gate on monitoring and
// validation activity without depending on those modules.
type StateChecker interface {
	// InMaintenanceWindow reports whether the clock is inside the nightly
	// maintenance window.
	InMaintenanceWindow() bool

	// UnderLoad reports whether live monitoring or a bulk validation is
	// currently keeping the system busy.
	UnderLoad() bool

	// IsWatched reports whether a service's live coverage monitor is running.
	IsWatched(serviceID string) bool
}

// SystemState is the standard StateChecker: a fixed nightly window plus
// callbacks into the live monitor and validation tracker. Nil callbacks
// report idle and unwatched.
type SystemState struct {
	WindowStart domain.TimeOfDay
	WindowEnd   domain.TimeOfDay

	// Busy reports foreground activity (live monitors running, validations
	// in flight).
	Busy func() bool

	// Watched reports whether a service is under live monitoring.
	Watched func(serviceID string) bool

	// Now is the clock source, overridable in tests.
	Now func() time.Time
}

// NewSystemState creates a SystemState with the default nightly window.
func NewSystemState(busy func() bool, watched func(string) bool) *SystemState {
	return &SystemState{
		WindowStart: DefaultWindowStart,
		WindowEnd:   DefaultWindowEnd,
		Busy:        busy,
		Watched:     watched,
	}
}

// InMaintenanceWindow reports whether the current clock time falls inside
// [WindowStart, WindowEnd). A window with start after end wraps midnight.
func (s *SystemState) InMaintenanceWindow() bool {
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	clock := domain.ClockOf(now)

	if s.WindowStart <= s.WindowEnd {
		return clock >= s.WindowStart && clock < s.WindowEnd
	}
	// Wrapping window, e.g. 22:00 to 04:00.
	return clock >= s.WindowStart || clock < s.WindowEnd
}

// UnderLoad reports foreground activity.
func (s *SystemState) UnderLoad() bool {
	return s.Busy != nil && s.Busy()
}

// IsWatched reports whether the service is live-monitored.
func (s *SystemState) IsWatched(serviceID string) bool {
	return s.Watched != nil && s.Watched(serviceID)
}

// TimingChecker decides whether work may execute given its timing constraint
// and the current system state.
type TimingChecker struct {
	state StateChecker
}

// NewTimingChecker creates a timing checker over a state source.
func NewTimingChecker(state StateChecker) *TimingChecker {
	return &TimingChecker{state: state}
}

// CanExecute returns true if work with the given timing may run now.
func (c *TimingChecker) CanExecute(timing Timing, subject string) bool {
	switch timing {
	case AnyTime:
		return true

	case OffPeak:
		// The maintenance window always qualifies; outside it the system
		// must be idle.
		return c.state.InMaintenanceWindow() || !c.state.UnderLoad()

	case MaintenanceWindow:
		return c.state.InMaintenanceWindow()

	case WhileWatched:
		if subject == "" {
			// Global work has no service to gate on.
			return true
		}
		return c.state.IsWatched(subject)

	default:
		// Unknown timing, refuse to execute.
		return false
	}
}
