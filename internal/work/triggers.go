package work

import (
	"github.com/workforcelab/intraday/internal/events"
)

// TriggerDeps holds what the event triggers need.
type TriggerDeps struct {
	Bus        *events.Bus
	Processor  *Processor
	Completion *CompletionTracker
}

// RegisterTriggers subscribes the processor to the events that make
// background work stale. Each handler clears the affected completions and
// wakes the processor; the registry's own checks decide what actually runs.
func RegisterTriggers(deps *TriggerDeps) {
	// A swapped rule matrix invalidates every prior sweep verdict.
	deps.Bus.Subscribe(events.RulesReloaded, func(e *events.Event) {
		deps.Completion.ClearByTypeID("sweep:compliance")
		deps.Processor.Trigger()
	})

	// Block edits shift planned coverage; every watched service needs a
	// fresh report.
	deps.Bus.Subscribe(events.BlockChanged, func(e *events.Event) {
		deps.Completion.ClearByTypeID("coverage:refresh")
		deps.Processor.Trigger()
	})

	// A full plan regeneration invalidates coverage wholesale.
	deps.Bus.Subscribe(events.PlanGenerated, func(e *events.Event) {
		deps.Completion.ClearByTypeID("coverage:refresh")
		deps.Processor.Trigger()
	})

	// A service entering live monitoring deserves an immediate report.
	deps.Bus.Subscribe(events.MonitoringStarted, func(e *events.Event) {
		if d, ok := e.Data.(*events.MonitoringStatusData); ok && d.ServiceID != "" {
			deps.Completion.Clear("coverage:refresh", d.ServiceID)
		}
		deps.Processor.Trigger()
	})

	// Settings edits can change timing eligibility; just wake the processor.
	deps.Bus.Subscribe(events.SettingsChanged, func(e *events.Event) {
		deps.Processor.Trigger()
	})
}
