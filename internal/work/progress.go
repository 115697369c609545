package work

import (
	"fmt"
	"sync"
	"time"

	"github.com/workforcelab/intraday/internal/events"
)

// EventEmitter publishes typed events. Satisfied by *events.Bus; kept as an
// interface so tests can capture emissions.
type EventEmitter interface {
	Emit(module string, data events.EventData)
}

// Throttle interval for progress events. Terminal reports (100%) bypass it.
const progressThrottleInterval = 100 * time.Millisecond

// ProgressReporter publishes the job lifecycle (JobStarted, JobProgress,
// JobCompleted, JobFailed) for one work item. A nil reporter or nil emitter
// is safe to call; every method becomes a no-op.
type ProgressReporter struct {
	emitter EventEmitter
	workID  string
	typeID  string

	mu         sync.Mutex
	lastReport time.Time
}

// NewProgressReporter creates a reporter for a work item.
func NewProgressReporter(emitter EventEmitter, workID, typeID string) *ProgressReporter {
	return &ProgressReporter{
		emitter: emitter,
		workID:  workID,
		typeID:  typeID,
	}
}

// Report publishes numeric progress as a percentage. Events are throttled to
// avoid flooding subscribers; a terminal report (current == total) always
// goes out.
func (r *ProgressReporter) Report(current, total int, message string) {
	if r == nil || r.emitter == nil {
		return
	}

	r.mu.Lock()
	if time.Since(r.lastReport) < progressThrottleInterval && current != total {
		r.mu.Unlock()
		return
	}
	r.lastReport = time.Now()
	r.mu.Unlock()

	pct := 0.0
	if total > 0 {
		pct = 100 * float64(current) / float64(total)
	}
	r.emitter.Emit("work", &events.JobStatusData{
		Type:     events.JobProgress,
		JobID:    r.workID,
		JobType:  r.typeID,
		Progress: pct,
		Message:  message,
	})
}

// Message publishes an indeterminate progress message, throttled.
func (r *ProgressReporter) Message(message string) {
	if r == nil || r.emitter == nil {
		return
	}

	r.mu.Lock()
	if time.Since(r.lastReport) < progressThrottleInterval {
		r.mu.Unlock()
		return
	}
	r.lastReport = time.Now()
	r.mu.Unlock()

	r.emitter.Emit("work", &events.JobStatusData{
		Type:    events.JobProgress,
		JobID:   r.workID,
		JobType: r.typeID,
		Message: message,
	})
}

// emitStarted marks the beginning of execution.
func (r *ProgressReporter) emitStarted() {
	if r == nil || r.emitter == nil {
		return
	}
	r.emitter.Emit("work", &events.JobStatusData{
		Type:    events.JobStarted,
		JobID:   r.workID,
		JobType: r.typeID,
	})
}

// emitCompleted marks a successful run.
func (r *ProgressReporter) emitCompleted(duration time.Duration) {
	if r == nil || r.emitter == nil {
		return
	}
	r.emitter.Emit("work", &events.JobStatusData{
		Type:     events.JobCompleted,
		JobID:    r.workID,
		JobType:  r.typeID,
		Progress: 100,
		Message:  fmt.Sprintf("completed in %s", duration.Round(time.Millisecond)),
	})
}

// emitFailed marks a failed run.
func (r *ProgressReporter) emitFailed(err error, duration time.Duration, retries int) {
	if r == nil || r.emitter == nil {
		return
	}
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	r.emitter.Emit("work", &events.JobStatusData{
		Type:    events.JobFailed,
		JobID:   r.workID,
		JobType: r.typeID,
		Message: fmt.Sprintf("failed after %s, attempt %d", duration.Round(time.Millisecond), retries+1),
		Error:   errMsg,
	})
}
