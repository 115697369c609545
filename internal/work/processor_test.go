package work

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workforcelab/intraday/internal/events"
)

func globalSubjects() []string { return []string{""} }

// captureEmitter collects job status events for assertions.
type captureEmitter struct {
	mu       sync.Mutex
	statuses []*events.JobStatusData
}

func (c *captureEmitter) Emit(module string, data events.EventData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if status, ok := data.(*events.JobStatusData); ok {
		c.statuses = append(c.statuses, status)
	}
}

func (c *captureEmitter) snapshot() []*events.JobStatusData {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*events.JobStatusData(nil), c.statuses...)
}

type recordedRun struct {
	jobType string
	outcome string
	detail  string
}

// captureHistory collects run records in place of the job history repo.
type captureHistory struct {
	mu   sync.Mutex
	runs []recordedRun
}

func (c *captureHistory) RecordRun(_ context.Context, jobType string, _ time.Time, _ time.Duration, outcome, detail string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runs = append(c.runs, recordedRun{jobType: jobType, outcome: outcome, detail: detail})
	return nil
}

func (c *captureHistory) snapshot() []recordedRun {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]recordedRun(nil), c.runs...)
}

// newTestProcessor builds a processor whose timing checker allows everything.
func newTestProcessor(registry *Registry) (*Processor, *CompletionTracker) {
	completion := NewCompletionTracker()
	timing := NewTimingChecker(&stubState{window: true})
	return NewProcessor(registry, completion, timing, nil, zerolog.Nop()), completion
}

func TestProcessorExecutesTriggeredWork(t *testing.T) {
	var runs atomic.Int32
	registry := NewRegistry()
	registry.Register(&WorkType{
		ID:           "rules:refresh",
		Timing:       AnyTime,
		Interval:     24 * time.Hour,
		Priority:     PriorityCritical,
		FindSubjects: globalSubjects,
		Execute: func(ctx context.Context, subject string, progress *ProgressReporter) error {
			runs.Add(1)
			return nil
		},
	})

	p, completion := newTestProcessor(registry)
	go p.Run()
	defer p.Stop()

	p.Trigger()
	time.Sleep(150 * time.Millisecond)

	assert.Equal(t, int32(1), runs.Load())
	_, completed := completion.GetCompletion("rules:refresh", "")
	assert.True(t, completed)
}

func TestProcessorRunsEverySubject(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	registry := NewRegistry()
	registry.Register(&WorkType{
		ID:           "coverage:refresh",
		Timing:       WhileWatched,
		Interval:     time.Hour,
		Priority:     PriorityMedium,
		FindSubjects: func() []string { return []string{"support-tier1", "billing"} },
		Execute: func(ctx context.Context, subject string, progress *ProgressReporter) error {
			mu.Lock()
			seen = append(seen, subject)
			mu.Unlock()
			return nil
		},
	})

	completion := NewCompletionTracker()
	timing := NewTimingChecker(&stubState{watched: map[string]bool{"support-tier1": true, "billing": true}})
	p := NewProcessor(registry, completion, timing, nil, zerolog.Nop())
	go p.Run()
	defer p.Stop()

	p.Trigger()
	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"support-tier1", "billing"}, seen)

	_, first := completion.GetCompletion("coverage:refresh", "support-tier1")
	_, second := completion.GetCompletion("coverage:refresh", "billing")
	assert.True(t, first)
	assert.True(t, second)
}

func TestProcessorPriorityOrder(t *testing.T) {
	var mu sync.Mutex
	var order []string
	record := func(id string) func(context.Context, string, *ProgressReporter) error {
		return func(context.Context, string, *ProgressReporter) error {
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			return nil
		}
	}

	registry := NewRegistry()
	registry.Register(&WorkType{
		ID:           "retention:cleanup",
		Timing:       AnyTime,
		Interval:     24 * time.Hour,
		Priority:     PriorityLow,
		FindSubjects: globalSubjects,
		Execute:      record("retention:cleanup"),
	})
	registry.Register(&WorkType{
		ID:           "rules:refresh",
		Timing:       AnyTime,
		Interval:     24 * time.Hour,
		Priority:     PriorityCritical,
		FindSubjects: globalSubjects,
		Execute:      record("rules:refresh"),
	})

	p, _ := newTestProcessor(registry)
	go p.Run()
	defer p.Stop()

	p.Trigger()
	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"rules:refresh", "retention:cleanup"}, order)
}

func TestProcessorDependencyChain(t *testing.T) {
	var mu sync.Mutex
	var order []string
	record := func(id string) func(context.Context, string, *ProgressReporter) error {
		return func(context.Context, string, *ProgressReporter) error {
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			return nil
		}
	}

	registry := NewRegistry()
	registry.Register(&WorkType{
		ID:           "backup:daily",
		Timing:       AnyTime,
		Interval:     24 * time.Hour,
		Priority:     PriorityLow,
		FindSubjects: globalSubjects,
		Execute:      record("backup:daily"),
	})
	registry.Register(&WorkType{
		ID:           "backup:upload",
		DependsOn:    []string{"backup:daily"},
		Timing:       AnyTime,
		Interval:     24 * time.Hour,
		Priority:     PriorityLow,
		FindSubjects: globalSubjects,
		Execute:      record("backup:upload"),
	})
	registry.Register(&WorkType{
		ID:           "backup:rotate",
		DependsOn:    []string{"backup:upload"},
		Timing:       AnyTime,
		Interval:     24 * time.Hour,
		Priority:     PriorityLow,
		FindSubjects: globalSubjects,
		Execute:      record("backup:rotate"),
	})

	p, _ := newTestProcessor(registry)
	go p.Run()
	defer p.Stop()

	p.Trigger()
	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"backup:daily", "backup:upload", "backup:rotate"}, order)
}

func TestProcessorSkipsFreshWork(t *testing.T) {
	var runs atomic.Int32
	registry := NewRegistry()
	registry.Register(&WorkType{
		ID:           "rules:refresh",
		Timing:       AnyTime,
		Interval:     24 * time.Hour,
		Priority:     PriorityCritical,
		FindSubjects: globalSubjects,
		Execute: func(ctx context.Context, subject string, progress *ProgressReporter) error {
			runs.Add(1)
			return nil
		},
	})

	p, completion := newTestProcessor(registry)
	wt := registry.Get("rules:refresh")
	completion.MarkCompleted(NewWorkItem(wt, ""))

	go p.Run()
	defer p.Stop()

	p.Trigger()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), runs.Load())

	// Age the completion past the interval and the work is due again.
	completion.MarkCompletedAt(NewWorkItem(wt, ""), time.Now().Add(-25*time.Hour))
	p.Trigger()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())
}

func TestProcessorSkipsWorkWithoutSubjects(t *testing.T) {
	var runs atomic.Int32
	registry := NewRegistry()
	registry.Register(&WorkType{
		ID:           "backup:daily",
		Timing:       AnyTime,
		Interval:     24 * time.Hour,
		Priority:     PriorityLow,
		FindSubjects: func() []string { return nil },
		Execute: func(ctx context.Context, subject string, progress *ProgressReporter) error {
			runs.Add(1)
			return nil
		},
	})

	p, _ := newTestProcessor(registry)
	go p.Run()
	defer p.Stop()

	p.Trigger()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), runs.Load())
}

func TestProcessorHonorsTimingWindow(t *testing.T) {
	var runs atomic.Int32
	registry := NewRegistry()
	registry.Register(&WorkType{
		ID:           "backup:daily",
		Timing:       MaintenanceWindow,
		Interval:     24 * time.Hour,
		Priority:     PriorityLow,
		FindSubjects: globalSubjects,
		Execute: func(ctx context.Context, subject string, progress *ProgressReporter) error {
			runs.Add(1)
			return nil
		},
	})

	completion := NewCompletionTracker()
	timing := NewTimingChecker(&stubState{window: false})
	p := NewProcessor(registry, completion, timing, nil, zerolog.Nop())
	go p.Run()
	defer p.Stop()

	p.Trigger()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), runs.Load())
}

func TestProcessorRetriesFailedWork(t *testing.T) {
	var attempts atomic.Int32
	registry := NewRegistry()
	registry.Register(&WorkType{
		ID:           "sweep:compliance",
		Timing:       AnyTime,
		Interval:     24 * time.Hour,
		Priority:     PriorityHigh,
		FindSubjects: globalSubjects,
		Execute: func(ctx context.Context, subject string, progress *ProgressReporter) error {
			if attempts.Add(1) < 3 {
				return errors.New("roster store unavailable")
			}
			return nil
		},
	})

	p, completion := newTestProcessor(registry)
	go p.Run()
	defer p.Stop()

	p.Trigger()
	time.Sleep(300 * time.Millisecond)

	assert.Equal(t, int32(3), attempts.Load())
	_, completed := completion.GetCompletion("sweep:compliance", "")
	assert.True(t, completed)
}

func TestProcessorGivesUpAfterMaxRetries(t *testing.T) {
	var attempts atomic.Int32
	registry := NewRegistry()
	registry.Register(&WorkType{
		ID:           "sweep:compliance",
		Timing:       AnyTime,
		Interval:     24 * time.Hour,
		Priority:     PriorityHigh,
		FindSubjects: globalSubjects,
		Execute: func(ctx context.Context, subject string, progress *ProgressReporter) error {
			attempts.Add(1)
			return errors.New("roster store unavailable")
		},
	})

	p, completion := newTestProcessor(registry)
	go p.Run()
	defer p.Stop()

	p.Trigger()
	time.Sleep(400 * time.Millisecond)

	assert.Equal(t, int32(MaxRetries), attempts.Load())

	// Giving up counts as a completion, so the retry cycle does not restart
	// until the interval elapses.
	_, completed := completion.GetCompletion("sweep:compliance", "")
	assert.True(t, completed)
}

func TestProcessorTimeoutCancelsWork(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&WorkType{
		ID:           "slow:import",
		Timing:       AnyTime,
		FindSubjects: globalSubjects,
		Execute: func(ctx context.Context, subject string, progress *ProgressReporter) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})

	completion := NewCompletionTracker()
	timing := NewTimingChecker(&stubState{window: true})
	p := NewProcessorWithTimeout(registry, completion, timing, nil, zerolog.Nop(), 50*time.Millisecond)

	err := p.ExecuteNow("slow:import", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, completed := completion.GetCompletion("slow:import", "")
	assert.False(t, completed)
}

func TestProcessorExecuteNow(t *testing.T) {
	var gotSubject string
	registry := NewRegistry()
	registry.Register(&WorkType{
		ID:           "coverage:refresh",
		Timing:       MaintenanceWindow,
		Interval:     time.Hour,
		Priority:     PriorityMedium,
		FindSubjects: globalSubjects,
		Execute: func(ctx context.Context, subject string, progress *ProgressReporter) error {
			gotSubject = subject
			return nil
		},
	})

	// Window closed: the loop would refuse this work, a manual run does not.
	completion := NewCompletionTracker()
	p := NewProcessor(registry, completion, NewTimingChecker(&stubState{}), nil, zerolog.Nop())

	require.NoError(t, p.ExecuteNow("coverage:refresh", "billing"))
	assert.Equal(t, "billing", gotSubject)

	_, completed := completion.GetCompletion("coverage:refresh", "billing")
	assert.True(t, completed)

	err := p.ExecuteNow("missing:type", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown work type")
}

func TestProcessorEmitsLifecycleEvents(t *testing.T) {
	emitter := &captureEmitter{}
	registry := NewRegistry()
	registry.Register(&WorkType{
		ID:           "rules:refresh",
		Timing:       AnyTime,
		FindSubjects: globalSubjects,
		Execute: func(ctx context.Context, subject string, progress *ProgressReporter) error {
			return nil
		},
	})
	registry.Register(&WorkType{
		ID:           "sweep:compliance",
		Timing:       AnyTime,
		FindSubjects: globalSubjects,
		Execute: func(ctx context.Context, subject string, progress *ProgressReporter) error {
			return errors.New("roster locked")
		},
	})

	completion := NewCompletionTracker()
	p := NewProcessor(registry, completion, NewTimingChecker(&stubState{window: true}), emitter, zerolog.Nop())

	require.NoError(t, p.ExecuteNow("rules:refresh", ""))
	require.Error(t, p.ExecuteNow("sweep:compliance", ""))

	statuses := emitter.snapshot()
	require.Len(t, statuses, 4)
	assert.Equal(t, events.JobStarted, statuses[0].Type)
	assert.Equal(t, "rules:refresh", statuses[0].JobType)
	assert.Equal(t, events.JobCompleted, statuses[1].Type)
	assert.Equal(t, float64(100), statuses[1].Progress)
	assert.Equal(t, events.JobStarted, statuses[2].Type)
	assert.Equal(t, events.JobFailed, statuses[3].Type)
	assert.Equal(t, "roster locked", statuses[3].Error)
}

func TestProcessorRecordsRunHistory(t *testing.T) {
	history := &captureHistory{}
	registry := NewRegistry()
	registry.Register(&WorkType{
		ID:           "rules:refresh",
		Timing:       AnyTime,
		FindSubjects: globalSubjects,
		Execute: func(ctx context.Context, subject string, progress *ProgressReporter) error {
			return nil
		},
	})
	registry.Register(&WorkType{
		ID:           "sweep:compliance",
		Timing:       AnyTime,
		FindSubjects: globalSubjects,
		Execute: func(ctx context.Context, subject string, progress *ProgressReporter) error {
			return errors.New("roster locked")
		},
	})

	completion := NewCompletionTracker()
	p := NewProcessor(registry, completion, NewTimingChecker(&stubState{window: true}), nil, zerolog.Nop())
	p.SetHistory(history)

	require.NoError(t, p.ExecuteNow("rules:refresh", ""))
	require.Error(t, p.ExecuteNow("sweep:compliance", ""))

	runs := history.snapshot()
	require.Len(t, runs, 2)
	assert.Equal(t, "rules:refresh", runs[0].jobType)
	assert.Equal(t, "success", runs[0].outcome)
	assert.Empty(t, runs[0].detail)
	assert.Equal(t, "sweep:compliance", runs[1].jobType)
	assert.Equal(t, "failed", runs[1].outcome)
	assert.Equal(t, "roster locked", runs[1].detail)
}

func TestProcessorSingleInFlight(t *testing.T) {
	var runs atomic.Int32
	registry := NewRegistry()
	registry.Register(&WorkType{
		ID:           "rules:refresh",
		Timing:       AnyTime,
		Interval:     24 * time.Hour,
		Priority:     PriorityCritical,
		FindSubjects: globalSubjects,
		Execute: func(ctx context.Context, subject string, progress *ProgressReporter) error {
			runs.Add(1)
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	})

	p, _ := newTestProcessor(registry)
	go p.Run()
	defer p.Stop()

	for i := 0; i < 5; i++ {
		p.Trigger()
	}
	time.Sleep(250 * time.Millisecond)

	assert.Equal(t, int32(1), runs.Load())
}
