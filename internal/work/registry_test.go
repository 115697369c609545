package work

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&WorkType{ID: "rules:refresh"})

	require.True(t, registry.Has("rules:refresh"))
	assert.Equal(t, 1, registry.Count())

	wt := registry.Get("rules:refresh")
	require.NotNil(t, wt)
	assert.Equal(t, "rules:refresh", wt.ID)

	assert.Nil(t, registry.Get("unknown:type"))
	assert.False(t, registry.Has("unknown:type"))
}

func TestRegistryReplaceKeepsCount(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&WorkType{ID: "sweep:compliance", Priority: PriorityLow})
	registry.Register(&WorkType{ID: "sweep:compliance", Priority: PriorityHigh})

	assert.Equal(t, 1, registry.Count())
	assert.Equal(t, PriorityHigh, registry.Get("sweep:compliance").Priority)
}

func TestRegistryByPriorityOrdering(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&WorkType{ID: "backup:daily", Priority: PriorityLow})
	registry.Register(&WorkType{ID: "rules:refresh", Priority: PriorityCritical})
	registry.Register(&WorkType{ID: "coverage:refresh", Priority: PriorityMedium})
	registry.Register(&WorkType{ID: "sweep:compliance", Priority: PriorityHigh})
	// Same priority as backup:daily; alphabetical within the tier.
	registry.Register(&WorkType{ID: "retention:cleanup", Priority: PriorityLow})

	ordered := registry.ByPriority()
	require.Len(t, ordered, 5)
	assert.Equal(t, "rules:refresh", ordered[0].ID)
	assert.Equal(t, "sweep:compliance", ordered[1].ID)
	assert.Equal(t, "coverage:refresh", ordered[2].ID)
	assert.Equal(t, "backup:daily", ordered[3].ID)
	assert.Equal(t, "retention:cleanup", ordered[4].ID)
}

func TestRegistryByPriorityReflectsChanges(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&WorkType{ID: "a:one", Priority: PriorityLow})
	require.Len(t, registry.ByPriority(), 1)

	registry.Register(&WorkType{ID: "b:two", Priority: PriorityHigh})
	ordered := registry.ByPriority()
	require.Len(t, ordered, 2)
	assert.Equal(t, "b:two", ordered[0].ID)

	registry.Remove("b:two")
	ordered = registry.ByPriority()
	require.Len(t, ordered, 1)
	assert.Equal(t, "a:one", ordered[0].ID)
}

func TestRegistryIDs(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&WorkType{ID: "sweep:compliance"})
	registry.Register(&WorkType{ID: "backup:daily"})
	registry.Register(&WorkType{ID: "rules:refresh"})

	assert.Equal(t, []string{"backup:daily", "rules:refresh", "sweep:compliance"}, registry.IDs())
}

func TestRegistryDependencies(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&WorkType{ID: "backup:daily"})
	registry.Register(&WorkType{ID: "backup:upload", DependsOn: []string{"backup:daily"}})
	registry.Register(&WorkType{ID: "backup:rotate", DependsOn: []string{"backup:upload"}})

	deps := registry.GetDependencies("backup:upload")
	require.Len(t, deps, 1)
	assert.Equal(t, "backup:daily", deps[0].ID)

	// Unregistered dependencies are skipped, unknown IDs yield nil.
	registry.Register(&WorkType{ID: "x:orphan", DependsOn: []string{"missing:dep"}})
	assert.Empty(t, registry.GetDependencies("x:orphan"))
	assert.Nil(t, registry.GetDependencies("missing:type"))

	dependents := registry.GetDependents("backup:daily")
	require.Len(t, dependents, 1)
	assert.Equal(t, "backup:upload", dependents[0].ID)

	assert.Empty(t, registry.GetDependents("backup:rotate"))
}
