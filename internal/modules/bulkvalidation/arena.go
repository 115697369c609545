package bulkvalidation

import (
	"fmt"
	"sync"
	"time"

	"github.com/workforcelab/intraday/internal/domain"
)

// finishedRetention is how long finished runs stay readable before Begin
// prunes them.
const finishedRetention = time.Hour

// etaSmoothing is the exponential moving average weight given to the most
// recent batch's per-employee time when extrapolating the ETA.
const etaSmoothing = 0.3

// ProgressArena tracks every validation run by id. The orchestrator is the
// only writer; readers always see counts from whole completed batches.
type ProgressArena struct {
	mu      sync.RWMutex
	records map[string]*progressRecord
}

type progressRecord struct {
	snap           Progress
	started        time.Time
	avgPerEmployee float64 // seconds, moving average across batches
	report         *Report // set when the run finishes
}

// NewProgressArena creates an empty arena.
func NewProgressArena() *ProgressArena {
	return &ProgressArena{records: make(map[string]*progressRecord)}
}

// Begin registers a new run. A validation id can only be reused after its
// previous run finished; an active duplicate is a Conflict.
func (a *ProgressArena) Begin(validationID string, total int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now().UTC()
	for id, rec := range a.records {
		if rec.snap.Done && now.Sub(rec.snap.UpdatedAt) > finishedRetention {
			delete(a.records, id)
		}
	}

	if rec, ok := a.records[validationID]; ok && !rec.snap.Done {
		return fmt.Errorf("%w: validation %s is already running", domain.ErrConflict, validationID)
	}
	a.records[validationID] = &progressRecord{
		snap: Progress{
			ValidationID: validationID,
			Total:        total,
			UpdatedAt:    now,
		},
		started: now,
	}
	return nil
}

// Advance folds one completed batch into the run's counters and returns the
// updated snapshot. perEmployeeSec feeds the ETA moving average.
func (a *ProgressArena) Advance(validationID string, processed, compliant, violations, failed int, perEmployeeSec float64) Progress {
	a.mu.Lock()
	defer a.mu.Unlock()

	rec, ok := a.records[validationID]
	if !ok {
		return Progress{ValidationID: validationID}
	}
	rec.snap.Processed += processed
	rec.snap.Compliant += compliant
	rec.snap.Violations += violations
	rec.snap.Failed += failed
	if perEmployeeSec > 0 {
		if rec.avgPerEmployee == 0 {
			rec.avgPerEmployee = perEmployeeSec
		} else {
			rec.avgPerEmployee = rec.avgPerEmployee*(1-etaSmoothing) + perEmployeeSec*etaSmoothing
		}
	}
	rec.snap.UpdatedAt = time.Now().UTC()
	a.refresh(rec)
	return rec.snap
}

// Cancel marks a run for cancellation. In-flight batches complete; no
// further batches are scheduled. Returns false for unknown or finished runs.
func (a *ProgressArena) Cancel(validationID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	rec, ok := a.records[validationID]
	if !ok || rec.snap.Done {
		return false
	}
	rec.snap.Cancelled = true
	rec.snap.UpdatedAt = time.Now().UTC()
	return true
}

// IsCancelled reports whether a run has been marked for cancellation.
func (a *ProgressArena) IsCancelled(validationID string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	rec, ok := a.records[validationID]
	return ok && rec.snap.Cancelled
}

// Finish seals a run with its report and returns the final snapshot.
func (a *ProgressArena) Finish(validationID string, report *Report) Progress {
	a.mu.Lock()
	defer a.mu.Unlock()

	rec, ok := a.records[validationID]
	if !ok {
		return Progress{ValidationID: validationID}
	}
	rec.snap.Done = true
	rec.snap.Cancelled = report.Cancelled
	rec.snap.ETASec = 0
	rec.snap.UpdatedAt = time.Now().UTC()
	rec.snap.ElapsedSec = time.Since(rec.started).Seconds()
	rec.report = report
	return rec.snap
}

// Snapshot returns the current state of a run.
func (a *ProgressArena) Snapshot(validationID string) (Progress, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	rec, ok := a.records[validationID]
	if !ok {
		return Progress{}, false
	}
	snap := rec.snap
	if !snap.Done {
		snap.ElapsedSec = time.Since(rec.started).Seconds()
	}
	return snap, true
}

// Report returns the final report of a finished run.
func (a *ProgressArena) Report(validationID string) (*Report, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	rec, ok := a.records[validationID]
	if !ok || rec.report == nil {
		return nil, false
	}
	return rec.report, true
}

// Active lists the runs that have not finished yet.
func (a *ProgressArena) Active() []Progress {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var out []Progress
	for _, rec := range a.records {
		if rec.snap.Done {
			continue
		}
		snap := rec.snap
		snap.ElapsedSec = time.Since(rec.started).Seconds()
		out = append(out, snap)
	}
	return out
}

// Drop removes a run's record entirely.
func (a *ProgressArena) Drop(validationID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.records, validationID)
}

// refresh recomputes the derived elapsed/ETA fields. Callers hold the lock.
func (a *ProgressArena) refresh(rec *progressRecord) {
	rec.snap.ElapsedSec = time.Since(rec.started).Seconds()
	remaining := rec.snap.Total - rec.snap.Processed
	if remaining > 0 && rec.avgPerEmployee > 0 {
		rec.snap.ETASec = rec.avgPerEmployee * float64(remaining)
	} else {
		rec.snap.ETASec = 0
	}
}
