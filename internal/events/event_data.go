package events

import (
	"encoding/json"
	"time"
)

// EventData is the interface all typed event payloads implement. It keeps
// publishing type-safe: the envelope's type always comes from the payload.
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// BlockChangedData contains data for BlockChanged events.
type BlockChangedData struct {
	EmployeeID string    `json:"employee_id"`
	Day        time.Time `json:"day"`
	Kind       string    `json:"kind"` // plan, adjust, lock
	Blocks     int       `json:"blocks"`
}

// EventType returns the event type for BlockChangedData
func (d *BlockChangedData) EventType() EventType { return BlockChanged }

// PlanGeneratedData contains data for PlanGenerated events.
type PlanGeneratedData struct {
	Employees  int     `json:"employees"`
	Days       int     `json:"days"`
	Blocks     int     `json:"blocks"`
	Compliant  bool    `json:"compliant"`
	Score      float64 `json:"score"`
	DurationMs int64   `json:"duration_ms"`
}

// EventType returns the event type for PlanGeneratedData
func (d *PlanGeneratedData) EventType() EventType { return PlanGenerated }

// ViolationDetectedData contains data for ViolationDetected events.
type ViolationDetectedData struct {
	EmployeeID string    `json:"employee_id"`
	RuleID     string    `json:"rule_id"`
	Severity   string    `json:"severity"`
	ShiftDate  time.Time `json:"shift_date"`
	Observed   float64   `json:"observed"`
	Required   float64   `json:"required"`
}

// EventType returns the event type for ViolationDetectedData
func (d *ViolationDetectedData) EventType() EventType { return ViolationDetected }

// AlertQueuedData contains data for AlertQueued events.
type AlertQueuedData struct {
	AlertID    string `json:"alert_id"`
	EmployeeID string `json:"employee_id"`
	RuleID     string `json:"rule_id"`
	Severity   string `json:"severity"`
	ManagerID  string `json:"manager_id"`
	QueueDepth int    `json:"queue_depth"`
}

// EventType returns the event type for AlertQueuedData
func (d *AlertQueuedData) EventType() EventType { return AlertQueued }

// ValidationProgressData contains data for ValidationProgress events.
type ValidationProgressData struct {
	JobID     string  `json:"job_id"`
	Total     int     `json:"total"`
	Completed int     `json:"completed"`
	Failed    int     `json:"failed"`
	Percent   float64 `json:"percent"`
	Done      bool    `json:"done"`
}

// EventType returns the event type for ValidationProgressData
func (d *ValidationProgressData) EventType() EventType { return ValidationProgress }

// RulesReloadedData contains data for RulesReloaded events.
type RulesReloadedData struct {
	Version string `json:"version"`
	Rules   int    `json:"rules"`
	Enabled int    `json:"enabled"`
	Flushed bool   `json:"flushed"` // whether the result cache was dropped
}

// EventType returns the event type for RulesReloadedData
func (d *RulesReloadedData) EventType() EventType { return RulesReloaded }

// CoverageTickData contains data for CoverageTick events.
type CoverageTickData struct {
	ServiceID    string  `json:"service_id"`
	CoveragePct  float64 `json:"coverage_pct"`
	Status       string  `json:"status"`
	ProjectedSL  float64 `json:"projected_sl"`
	AgentsLive   int     `json:"agents_live"`
	AgentsNeeded float64 `json:"agents_needed"`
}

// EventType returns the event type for CoverageTickData
func (d *CoverageTickData) EventType() EventType { return CoverageTick }

// ThresholdBreachedData contains data for ThresholdBreached events.
type ThresholdBreachedData struct {
	ServiceID string  `json:"service_id"`
	Metric    string  `json:"metric"`
	Value     float64 `json:"value"`
	Level     string  `json:"level"` // warning, critical, emergency
	Severity  string  `json:"severity"`
}

// EventType returns the event type for ThresholdBreachedData
func (d *ThresholdBreachedData) EventType() EventType { return ThresholdBreached }

// MonitoringStatusData contains data for MonitoringStarted and
// MonitoringStopped events.
type MonitoringStatusData struct {
	SessionID string `json:"session_id"`
	ServiceID string `json:"service_id"`
	Running   bool   `json:"running"`
	Events    int    `json:"events,omitempty"`
}

// EventType returns the event type for MonitoringStatusData
func (d *MonitoringStatusData) EventType() EventType {
	if d.Running {
		return MonitoringStarted
	}
	return MonitoringStopped
}

// AssignmentComputedData contains data for AssignmentComputed events.
type AssignmentComputedData struct {
	Services   int     `json:"services"`
	Employees  int     `json:"employees"`
	Assigned   int     `json:"assigned"`
	Score      float64 `json:"score"`
	Strategy   string  `json:"strategy"`
	Feasible   bool    `json:"feasible"`
	DurationMs int64   `json:"duration_ms"`
}

// EventType returns the event type for AssignmentComputedData
func (d *AssignmentComputedData) EventType() EventType { return AssignmentComputed }

// SettingsChangedData contains data for SettingsChanged events.
type SettingsChangedData struct {
	Key      string `json:"key,omitempty"`
	Value    any    `json:"value,omitempty"`
	Settings bool   `json:"settings"`
}

// EventType returns the event type for SettingsChangedData
func (d *SettingsChangedData) EventType() EventType { return SettingsChanged }

// JobStatusData contains data for JobStarted, JobProgress, JobCompleted and
// JobFailed events.
type JobStatusData struct {
	Type     EventType `json:"-"`
	JobID    string    `json:"job_id"`
	JobType  string    `json:"job_type"`
	Progress float64   `json:"progress,omitempty"`
	Message  string    `json:"message,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// EventType returns the event type for JobStatusData
func (d *JobStatusData) EventType() EventType {
	if d.Type == "" {
		return JobStarted
	}
	return d.Type
}

// ErrorEventData contains data for ErrorOccurred events.
type ErrorEventData struct {
	Module  string `json:"module"`
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType { return ErrorOccurred }

// GenericEventData is a fallback for events that don't have a specific type
type GenericEventData struct {
	Type EventType      `json:"-"`
	Data map[string]any `json:"-"`
}

// EventType returns the event type for GenericEventData
func (d *GenericEventData) EventType() EventType { return d.Type }

// MarshalJSON customizes JSON serialization for GenericEventData
func (d *GenericEventData) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Data)
}

// UnmarshalJSON customizes JSON deserialization for GenericEventData
func (d *GenericEventData) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &d.Data)
}

// UnmarshalJSON reconstructs the typed payload for an envelope based on its
// event type, falling back to GenericEventData for unknown types.
func (e *Event) UnmarshalJSON(data []byte) error {
	type alias Event
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*alias
	}{alias: (*alias)(e)}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	if len(aux.Data) == 0 {
		return nil
	}

	var payload EventData
	switch aux.Type {
	case BlockChanged:
		payload = &BlockChangedData{}
	case PlanGenerated:
		payload = &PlanGeneratedData{}
	case ViolationDetected:
		payload = &ViolationDetectedData{}
	case AlertQueued:
		payload = &AlertQueuedData{}
	case ValidationProgress:
		payload = &ValidationProgressData{}
	case RulesReloaded:
		payload = &RulesReloadedData{}
	case CoverageTick:
		payload = &CoverageTickData{}
	case ThresholdBreached:
		payload = &ThresholdBreachedData{}
	case MonitoringStarted, MonitoringStopped:
		payload = &MonitoringStatusData{}
	case AssignmentComputed:
		payload = &AssignmentComputedData{}
	case SettingsChanged:
		payload = &SettingsChangedData{}
	case JobStarted, JobProgress, JobCompleted, JobFailed:
		payload = &JobStatusData{Type: aux.Type}
	case ErrorOccurred:
		payload = &ErrorEventData{}
	default:
		payload = &GenericEventData{Type: aux.Type}
	}

	if err := json.Unmarshal(aux.Data, payload); err != nil {
		return err
	}
	e.Data = payload
	return nil
}
