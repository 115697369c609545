package work

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/workforcelab/intraday/internal/events"
)

func markDone(tracker *CompletionTracker, typeID, subject string) {
	tracker.MarkCompleted(&WorkItem{TypeID: typeID, Subject: subject})
}

func newTriggerFixture() (*events.Bus, *CompletionTracker) {
	bus := events.NewBus(zerolog.Nop())
	completion := NewCompletionTracker()
	timing := NewTimingChecker(&stubState{window: true})
	processor := NewProcessor(NewRegistry(), completion, timing, nil, zerolog.Nop())
	RegisterTriggers(&TriggerDeps{Bus: bus, Processor: processor, Completion: completion})
	return bus, completion
}

func TestTriggerRulesReloadedClearsSweep(t *testing.T) {
	bus, completion := newTriggerFixture()
	markDone(completion, "sweep:compliance", "")
	markDone(completion, "rules:refresh", "")

	bus.Emit("rules", &events.RulesReloadedData{Version: "v2", Rules: 12})

	_, sweepDone := completion.GetCompletion("sweep:compliance", "")
	assert.False(t, sweepDone)

	// Other completions are untouched.
	_, rulesDone := completion.GetCompletion("rules:refresh", "")
	assert.True(t, rulesDone)
}

func TestTriggerPlanChangesClearCoverage(t *testing.T) {
	bus, completion := newTriggerFixture()
	markDone(completion, "coverage:refresh", "support-tier1")
	markDone(completion, "coverage:refresh", "billing")

	bus.Emit("plans", &events.BlockChangedData{EmployeeID: "emp-7", Kind: "adjust", Blocks: 2})

	_, first := completion.GetCompletion("coverage:refresh", "support-tier1")
	_, second := completion.GetCompletion("coverage:refresh", "billing")
	assert.False(t, first)
	assert.False(t, second)

	markDone(completion, "coverage:refresh", "support-tier1")
	bus.Emit("plans", &events.PlanGeneratedData{Employees: 12, Days: 7})

	_, first = completion.GetCompletion("coverage:refresh", "support-tier1")
	assert.False(t, first)
}

func TestTriggerMonitoringStartClearsOneService(t *testing.T) {
	bus, completion := newTriggerFixture()
	markDone(completion, "coverage:refresh", "support-tier1")
	markDone(completion, "coverage:refresh", "billing")

	bus.Emit("monitor", &events.MonitoringStatusData{SessionID: "sess-1", ServiceID: "billing", Running: true})

	_, billingDone := completion.GetCompletion("coverage:refresh", "billing")
	assert.False(t, billingDone)

	_, tierDone := completion.GetCompletion("coverage:refresh", "support-tier1")
	assert.True(t, tierDone)

	// Stopping a monitor clears nothing.
	bus.Emit("monitor", &events.MonitoringStatusData{SessionID: "sess-2", ServiceID: "support-tier1", Running: false})
	_, tierDone = completion.GetCompletion("coverage:refresh", "support-tier1")
	assert.True(t, tierDone)
}

func TestTriggerSettingsChangeWakesProcessor(t *testing.T) {
	var runs atomic.Int32
	bus := events.NewBus(zerolog.Nop())
	completion := NewCompletionTracker()
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

	p := NewProcessor(registry, completion, NewTimingChecker(&stubState{window: true}), nil, zerolog.Nop())
	RegisterTriggers(&TriggerDeps{Bus: bus, Processor: p, Completion: completion})

	go p.Run()
	defer p.Stop()

	bus.Emit("settings", &events.SettingsChangedData{Settings: true})
	time.Sleep(150 * time.Millisecond)

	assert.Equal(t, int32(1), runs.Load())
}
