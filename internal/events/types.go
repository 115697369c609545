// Package events provides the in-process event bus and the typed events
// modules publish on it. The HTTP event stream bridges these to connected
// clients; background work subscribes to react to state changes.
package events

import "time"

// EventType identifies a kind of system event.
type EventType string

const (
	// Timetable and schedule state.
	BlockChanged  EventType = "BlockChanged"
	PlanGenerated EventType = "PlanGenerated"

	// Compliance pipeline.
	ViolationDetected  EventType = "ViolationDetected"
	AlertQueued        EventType = "AlertQueued"
	ValidationProgress EventType = "ValidationProgress"
	RulesReloaded      EventType = "RulesReloaded"

	// Coverage monitoring.
	CoverageTick       EventType = "CoverageTick"
	ThresholdBreached  EventType = "ThresholdBreached"
	MonitoringStarted  EventType = "MonitoringStarted"
	MonitoringStopped  EventType = "MonitoringStopped"
	AssignmentComputed EventType = "AssignmentComputed"

	// System plumbing.
	SettingsChanged EventType = "SettingsChanged"
	JobStarted      EventType = "JobStarted"
	JobProgress     EventType = "JobProgress"
	JobCompleted    EventType = "JobCompleted"
	JobFailed       EventType = "JobFailed"
	ErrorOccurred   EventType = "ErrorOccurred"
)

// Event is the envelope delivered to subscribers. Data is one of the typed
// payloads from event_data.go, or a GenericEventData for unknown types.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Module    string    `json:"module"`
	Data      any       `json:"data,omitempty"`
}

// NewEvent stamps an event with the current UTC time.
func NewEvent(module string, data EventData) *Event {
	return &Event{
		Type:      data.EventType(),
		Timestamp: time.Now().UTC(),
		Module:    module,
		Data:      data,
	}
}
