package work

import (
	"context"
	"strings"
	"time"
)

// WorkTimeout is the maximum duration a work item can run before its context
// is cancelled. Sized for the deep compliance sweep over a full roster.
const WorkTimeout = 7 * time.Minute

// MaxRetries is the maximum number of times a failed work item is retried
// before it is dropped.
const MaxRetries = 5

// Timing defines when a work type may run relative to system activity.
type Timing int

const (
	// AnyTime means the work runs regardless of system state.
	AnyTime Timing = iota
	// OffPeak defers the work while live monitoring or bulk validation is
	// holding the system busy. It becomes eligible again inside the
	// maintenance window even under load.
	OffPeak
	// MaintenanceWindow restricts the work to the nightly maintenance window.
	MaintenanceWindow
	// WhileWatched runs per-service work only while that service's live
	// coverage monitor is running.
	WhileWatched
)

// String returns a human-readable name for the timing constraint.
func (t Timing) String() string {
	switch t {
	case AnyTime:
		return "AnyTime"
	case OffPeak:
		return "OffPeak"
	case MaintenanceWindow:
		return "MaintenanceWindow"
	case WhileWatched:
		return "WhileWatched"
	default:
		return "Unknown"
	}
}

// Priority defines the execution priority of work types.
type Priority int

const (
	// PriorityLow is for housekeeping (backups, retention cleanup).
	PriorityLow Priority = iota
	// PriorityMedium is for regular background recomputes (coverage refresh).
	PriorityMedium
	// PriorityHigh is for compliance-relevant work (batch sweeps).
	PriorityHigh
	// PriorityCritical is for work the engine must not run stale on
	// (rule catalog refresh).
	PriorityCritical
)

// String returns a human-readable name for the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "Low"
	case PriorityMedium:
		return "Medium"
	case PriorityHigh:
		return "High"
	case PriorityCritical:
		return "Critical"
	default:
		return "Unknown"
	}
}

// WorkType defines a kind of background work. Types are registered once and
// generate work items on demand.
type WorkType struct {
	// ID is the unique identifier, "category:action"
	// (e.g. "sweep:compliance", "coverage:refresh").
	ID string

	// DependsOn lists work type IDs that must complete before this one runs.
	// For per-service work, dependencies are scoped to the same subject.
	DependsOn []string

	// Timing constrains when this work may execute.
	Timing Timing

	// Interval is the minimum time between runs (0 = on-demand only;
	// the FindSubjects hook must then gate eligibility itself).
	Interval time.Duration

	// Priority decides execution order when multiple items are eligible.
	Priority Priority

	// FindSubjects returns the subjects (service IDs) that need this work.
	// Global work returns []string{""}; nil means nothing to do.
	FindSubjects func() []string

	// Execute performs the work for one subject. Subject is the service ID
	// for per-service work and empty for global work. The progress reporter
	// may be used for long runs and is never nil.
	Execute func(ctx context.Context, subject string, progress *ProgressReporter) error
}

// WorkItem is one concrete unit of work derived from a work type.
type WorkItem struct {
	// ID is the full work ID including the subject
	// (e.g. "coverage:refresh:support-tier1").
	ID string

	// TypeID is the registered work type ID (e.g. "coverage:refresh").
	TypeID string

	// Subject is the service ID for per-service work, empty for global work.
	Subject string

	// Retries counts how many times this item has been re-attempted.
	Retries int

	// CreatedAt is when the item was generated.
	CreatedAt time.Time
}

// NewWorkItem creates a work item for a type and subject.
func NewWorkItem(workType *WorkType, subject string) *WorkItem {
	id := workType.ID
	if subject != "" {
		id = workType.ID + ":" + subject
	}

	return &WorkItem{
		ID:        id,
		TypeID:    workType.ID,
		Subject:   subject,
		CreatedAt: time.Now(),
	}
}

// ParseWorkID splits a full work ID into its type ID and subject.
// "coverage:refresh:support-tier1" yields ("coverage:refresh",
// "support-tier1"); "rules:refresh" yields ("rules:refresh", "").
func ParseWorkID(id string) (typeID string, subject string) {
	// Type IDs are "category:action"; anything beyond the second colon is
	// the subject.
	parts := strings.Split(id, ":")
	if len(parts) <= 2 {
		return id, ""
	}
	return strings.Join(parts[:2], ":"), strings.Join(parts[2:], ":")
}

// CompletionKey identifies one completed (type, subject) pair.
type CompletionKey struct {
	TypeID  string
	Subject string
}

// NewCompletionKey builds the completion key for a work item.
func NewCompletionKey(item *WorkItem) CompletionKey {
	return CompletionKey{TypeID: item.TypeID, Subject: item.Subject}
}

// String renders the key in the same form as a full work ID.
func (ck CompletionKey) String() string {
	if ck.Subject == "" {
		return ck.TypeID
	}
	return ck.TypeID + ":" + ck.Subject
}
