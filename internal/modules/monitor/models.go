package monitor

import (
	"time"
)

// Defaults for the monitor's tasks. All of them are overridable through
// Config; zero values select the default.
const (
	// DefaultRealtimePoll is the idle change-feed polling period.
	DefaultRealtimePoll = 5 * time.Second
	// DefaultLoadedPoll is the polling period while changes keep arriving.
	DefaultLoadedPoll = 2 * time.Second
	// DefaultSweepInterval is the batch-sweep period.
	DefaultSweepInterval = 30 * time.Minute
	// DefaultSweepLookback selects the sweep roster: employees with any
	// telemetry inside the lookback.
	DefaultSweepLookback = 24 * time.Hour
	// DefaultChangeLookback bounds how far back a realtime poll reads the
	// change feed.
	DefaultChangeLookback = 5 * time.Minute
	// DefaultQueueCapacity bounds the alert queue.
	DefaultQueueCapacity = 1000
	// DefaultDrainBatch caps how many alerts one drain tick delivers.
	DefaultDrainBatch = 50
	// DefaultDrainInterval is the delivery cadence.
	DefaultDrainInterval = time.Minute
	// DefaultCooldown is the per-coalescing-key alert suppression window.
	DefaultCooldown = time.Hour
	// failureBackoff extends the next poll after a failed iteration.
	failureBackoff = 10 * time.Second
)

// Config tunes the monitor tasks.
type Config struct {
	RealtimePoll   time.Duration
	LoadedPoll     time.Duration
	SweepInterval  time.Duration
	SweepLookback  time.Duration
	ChangeLookback time.Duration
	QueueCapacity  int
	DrainBatch     int
	DrainInterval  time.Duration
	Cooldown       time.Duration
}

func (c Config) withDefaults() Config {
	if c.RealtimePoll <= 0 {
		c.RealtimePoll = DefaultRealtimePoll
	}
	if c.LoadedPoll <= 0 {
		c.LoadedPoll = DefaultLoadedPoll
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.SweepLookback <= 0 {
		c.SweepLookback = DefaultSweepLookback
	}
	if c.ChangeLookback <= 0 {
		c.ChangeLookback = DefaultChangeLookback
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}
	if c.DrainBatch <= 0 {
		c.DrainBatch = DefaultDrainBatch
	}
	if c.DrainInterval <= 0 {
		c.DrainInterval = DefaultDrainInterval
	}
	if c.Cooldown <= 0 {
		c.Cooldown = DefaultCooldown
	}
	return c
}

// Stats is a snapshot of the monitor's counters for the status API.
type Stats struct {
	Running         bool      `json:"running"`
	QueueDepth      int       `json:"queue_depth"`
	QueueDropped    int64     `json:"queue_dropped"`
	AlertsEnqueued  int64     `json:"alerts_enqueued"`
	AlertsDelivered int64     `json:"alerts_delivered"`
	Duplicates      int64     `json:"duplicates"`
	ChangesSeen     int64     `json:"changes_seen"`
	SweepsRun       int64     `json:"sweeps_run"`
	LastSweep       time.Time `json:"last_sweep,omitempty"`
	LastPoll        time.Time `json:"last_poll,omitempty"`
}
