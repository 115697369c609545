package work

import (
	"strings"
	"sync"
	"time"
)

// CompletionTracker remembers when each (type, subject) pair last completed.
// The processor consults it for interval staleness and dependency checks;
// triggers clear entries to force re-runs after state changes.
type CompletionTracker struct {
	mu          sync.RWMutex
	completions map[CompletionKey]time.Time
}

// NewCompletionTracker creates an empty tracker.
func NewCompletionTracker() *CompletionTracker {
	return &CompletionTracker{
		completions: make(map[CompletionKey]time.Time),
	}
}

// MarkCompleted records that a work item completed now.
func (t *CompletionTracker) MarkCompleted(item *WorkItem) {
	t.MarkCompletedAt(item, time.Now())
}

// MarkCompletedAt records a completion at a specific time. Used by tests to
// age entries.
func (t *CompletionTracker) MarkCompletedAt(item *WorkItem, completedAt time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.completions[NewCompletionKey(item)] = completedAt
}

// GetCompletion returns when a (type, subject) pair last completed and
// whether it ever has.
func (t *CompletionTracker) GetCompletion(typeID, subject string) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	completedAt, exists := t.completions[CompletionKey{TypeID: typeID, Subject: subject}]
	return completedAt, exists
}

// IsStale reports whether the work should run again. Work is stale when it
// has never completed, when its interval is zero (on-demand, always
// eligible), or when the interval has elapsed since the last completion.
func (t *CompletionTracker) IsStale(typeID, subject string, interval time.Duration) bool {
	if interval == 0 {
		return true
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	completedAt, exists := t.completions[CompletionKey{TypeID: typeID, Subject: subject}]
	if !exists {
		return true
	}
	return time.Since(completedAt) > interval
}

// Clear drops the completion record for one (type, subject) pair.
func (t *CompletionTracker) Clear(typeID, subject string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.completions, CompletionKey{TypeID: typeID, Subject: subject})
}

// ClearByPrefix drops every completion whose type ID starts with the prefix.
// ClearByPrefix("backup:") forgets the whole backup chain.
func (t *CompletionTracker) ClearByPrefix(prefix string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key := range t.completions {
		if strings.HasPrefix(key.TypeID, prefix) {
			delete(t.completions, key)
		}
	}
}

// ClearByTypeID drops the completions of one type across all subjects.
// ClearByTypeID("coverage:refresh") marks every service's coverage stale.
func (t *CompletionTracker) ClearByTypeID(typeID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key := range t.completions {
		if key.TypeID == typeID {
			delete(t.completions, key)
		}
	}
}
