package work

import (
	"sort"
	"sync"

	"github.com/samber/lo"
)

// Registry holds the registered work types and serves them in priority
// order. Registration normally happens once at wiring time, but types may be
// replaced or removed at runtime (tests, feature toggles).
type Registry struct {
	mu      sync.RWMutex
	types   map[string]*WorkType
	ordered []*WorkType // cached priority order
	reorder bool        // ordered is stale
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		types:   make(map[string]*WorkType),
		ordered: make([]*WorkType, 0),
	}
}

// Register adds a work type, replacing any previous type with the same ID.
func (r *Registry) Register(wt *WorkType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[wt.ID] = wt
	r.reorder = true
}

// Get returns the work type with the given ID, or nil.
func (r *Registry) Get(id string) *WorkType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.types[id]
}

// Has reports whether a work type is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.types[id]
	return exists
}

// ByPriority returns every work type, highest priority first and
// alphabetical by ID within a priority, so scans are deterministic.
func (r *Registry) ByPriority() []*WorkType {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.reorder {
		r.ordered = lo.Values(r.types)
		sort.Slice(r.ordered, func(i, j int) bool {
			if r.ordered[i].Priority != r.ordered[j].Priority {
				return r.ordered[i].Priority > r.ordered[j].Priority
			}
			return r.ordered[i].ID < r.ordered[j].ID
		})
		r.reorder = false
	}

	// Copy so callers cannot disturb the cache.
	out := make([]*WorkType, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Count returns the number of registered work types.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.types)
}

// Remove unregisters a work type. Removing an unknown ID is harmless.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.types, id)
	r.reorder = true
}

// IDs returns the registered type IDs in alphabetical order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := lo.Keys(r.types)
	sort.Strings(ids)
	return ids
}

// GetDependencies returns the registered types the given type depends on.
// Unregistered dependencies are skipped.
func (r *Registry) GetDependencies(id string) []*WorkType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wt := r.types[id]
	if wt == nil {
		return nil
	}

	deps := make([]*WorkType, 0, len(wt.DependsOn))
	for _, depID := range wt.DependsOn {
		if dep := r.types[depID]; dep != nil {
			deps = append(deps, dep)
		}
	}
	return deps
}

// GetDependents returns the types that depend on the given type.
func (r *Registry) GetDependents(id string) []*WorkType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dependents := make([]*WorkType, 0)
	for _, wt := range r.types {
		if lo.Contains(wt.DependsOn, id) {
			dependents = append(dependents, wt)
		}
	}
	return dependents
}
