package work

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// HistorySink records finished runs for the status API. Satisfied by the
// gateway's job history repository.
type HistorySink interface {
	RecordRun(ctx context.Context, jobType string, startedAt time.Time, duration time.Duration, outcome, detail string) error
}

// Processor executes work items one at a time, respecting priorities,
// dependencies, intervals and timing windows. It wakes on Trigger, walks the
// registry for eligible work, and chains to the next item when one finishes.
type Processor struct {
	registry   *Registry
	completion *CompletionTracker
	timing     *TimingChecker
	emitter    EventEmitter // optional
	history    HistorySink  // optional
	timeout    time.Duration
	log        zerolog.Logger

	trigger    chan struct{}
	done       chan struct{}
	stop       chan struct{}
	stopped    chan struct{}
	retryQueue []*WorkItem
	inFlight   map[string]bool
	mu         sync.Mutex
}

// NewProcessor creates a processor with the standard work timeout. The
// emitter may be nil; lifecycle events are then skipped.
func NewProcessor(registry *Registry, completion *CompletionTracker, timing *TimingChecker, emitter EventEmitter, log zerolog.Logger) *Processor {
	return NewProcessorWithTimeout(registry, completion, timing, emitter, log, WorkTimeout)
}

// NewProcessorWithTimeout creates a processor with a custom per-item
// timeout. Used by tests.
func NewProcessorWithTimeout(registry *Registry, completion *CompletionTracker, timing *TimingChecker, emitter EventEmitter, log zerolog.Logger, timeout time.Duration) *Processor {
	return &Processor{
		registry:   registry,
		completion: completion,
		timing:     timing,
		emitter:    emitter,
		timeout:    timeout,
		log:        log.With().Str("component", "work_processor").Logger(),
		trigger:    make(chan struct{}, 1),
		done:       make(chan struct{}, 1),
		stop:       make(chan struct{}),
		stopped:    make(chan struct{}),
		retryQueue: make([]*WorkItem, 0),
		inFlight:   make(map[string]bool),
	}
}

// SetHistory attaches a sink that records every finished run.
func (p *Processor) SetHistory(h HistorySink) {
	p.history = h
}

// GetRegistry returns the registry this processor executes from.
func (p *Processor) GetRegistry() *Registry {
	return p.registry
}

// Run starts the processor loop and blocks until Stop is called.
func (p *Processor) Run() {
	defer close(p.stopped)

	for {
		select {
		case <-p.stop:
			return
		case <-p.trigger:
			p.processOne()
		case <-p.done:
			p.processOne()
		}
	}
}

// Stop halts the processor loop. An in-flight item keeps running until its
// timeout; its outcome is still recorded.
func (p *Processor) Stop() {
	close(p.stop)
	<-p.stopped
}

// Trigger wakes the processor to look for work. Non-blocking, safe from any
// goroutine.
func (p *Processor) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
		// A trigger is already pending.
	}
}

// ExecuteNow runs one work type synchronously, bypassing timing, interval
// and dependency checks. Used by the manual trigger API and the backup CLI.
func (p *Processor) ExecuteNow(workTypeID string, subject string) error {
	wt := p.registry.Get(workTypeID)
	if wt == nil {
		return fmt.Errorf("unknown work type: %s", workTypeID)
	}

	item := NewWorkItem(wt, subject)
	err := p.runItem(item, wt)
	if err == nil {
		p.completion.MarkCompleted(item)
	}
	return err
}

// processOne finds and launches the next eligible work item. Only one item
// runs at a time; the finished item signals done, which calls back here.
func (p *Processor) processOne() {
	p.mu.Lock()
	if len(p.inFlight) > 0 {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	item, wt := p.findNextWork()
	if item == nil {
		item, wt = p.popRetryQueue()
	}
	if item == nil {
		return
	}

	p.mu.Lock()
	p.inFlight[item.ID] = true
	p.mu.Unlock()

	go func() {
		defer func() {
			p.mu.Lock()
			delete(p.inFlight, item.ID)
			p.mu.Unlock()

			select {
			case p.done <- struct{}{}:
			default:
			}
		}()

		if err := p.runItem(item, wt); err != nil {
			item.Retries++
			if item.Retries < MaxRetries {
				p.pushRetryQueue(item)
			} else {
				p.log.Warn().
					Str("work", item.ID).
					Int("retries", item.Retries).
					Msg("Max retries reached, dropping work item")
				// Counts as done for interval purposes, otherwise a
				// permanently failing type would restart its retry cycle on
				// the very next scan. The next interval, or an explicit
				// clear, tries again.
				p.completion.MarkCompleted(item)
			}
		} else {
			p.completion.MarkCompleted(item)
		}
	}()
}

// runItem executes one item with the processor timeout, publishing lifecycle
// events and recording the run.
func (p *Processor) runItem(item *WorkItem, wt *WorkType) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	reporter := NewProgressReporter(p.emitter, item.ID, item.TypeID)
	reporter.emitStarted()

	started := time.Now()
	err := wt.Execute(ctx, item.Subject, reporter)
	duration := time.Since(started)

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			p.log.Error().Str("work", item.ID).Dur("timeout", p.timeout).Msg("Work timed out")
		} else {
			p.log.Error().Err(err).Str("work", item.ID).Msg("Work failed")
		}
		reporter.emitFailed(err, duration, item.Retries)
		p.recordRun(item.TypeID, started, duration, "failed", err.Error())
		return err
	}

	reporter.emitCompleted(duration)
	p.recordRun(item.TypeID, started, duration, "success", "")
	p.log.Debug().Str("work", item.ID).Dur("duration", duration).Msg("Work completed")
	return nil
}

// recordRun persists a run outcome on its own context, so a cancelled or
// timed-out work context cannot lose the record.
func (p *Processor) recordRun(jobType string, startedAt time.Time, duration time.Duration, outcome, detail string) {
	if p.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.history.RecordRun(ctx, jobType, startedAt, duration, outcome, detail); err != nil {
		p.log.Warn().Err(err).Str("job_type", jobType).Msg("Could not record job run")
	}
}

// findNextWork scans registered types in priority order and returns the
// first item that is due, allowed by its timing window, and whose
// dependencies have completed.
func (p *Processor) findNextWork() (*WorkItem, *WorkType) {
	for _, wt := range p.registry.ByPriority() {
		subjects := wt.FindSubjects()
		if subjects == nil {
			continue
		}

		for _, subject := range subjects {
			if !p.timing.CanExecute(wt.Timing, subject) {
				continue
			}
			if wt.Interval > 0 && !p.completion.IsStale(wt.ID, subject, wt.Interval) {
				continue
			}
			if !p.dependenciesMet(wt, subject) {
				continue
			}
			// A failed run already waits in the retry queue; do not mint a
			// fresh item for the same work.
			if p.waitingRetry(wt.ID, subject) {
				continue
			}
			return NewWorkItem(wt, subject), wt
		}
	}
	return nil, nil
}

// dependenciesMet checks that every dependency has completed. For
// per-service work the dependency must have completed for the same subject.
func (p *Processor) dependenciesMet(wt *WorkType, subject string) bool {
	for _, depID := range wt.DependsOn {
		if _, exists := p.completion.GetCompletion(depID, subject); !exists {
			return false
		}
	}
	return true
}

// waitingRetry reports whether an item for this type and subject is already
// queued for retry.
func (p *Processor) waitingRetry(typeID, subject string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, item := range p.retryQueue {
		if item.TypeID == typeID && item.Subject == subject {
			return true
		}
	}
	return false
}

// pushRetryQueue appends a failed item for a later attempt.
func (p *Processor) pushRetryQueue(item *WorkItem) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retryQueue = append(p.retryQueue, item)
}

// popRetryQueue takes the oldest retryable item. Items whose type has been
// unregistered since are dropped.
func (p *Processor) popRetryQueue() (*WorkItem, *WorkType) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.retryQueue) == 0 {
		return nil, nil
	}

	item := p.retryQueue[0]
	p.retryQueue = p.retryQueue[1:]

	wt := p.registry.Get(item.TypeID)
	if wt == nil {
		return nil, nil
	}
	return item, wt
}
