package bulkvalidation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workforcelab/intraday/internal/domain"
)

func TestProgressArena_Lifecycle(t *testing.T) {
	arena := NewProgressArena()

	require.NoError(t, arena.Begin("v1", 100))

	snap := arena.Advance("v1", 25, 20, 7, 5, 0.1)
	assert.Equal(t, 25, snap.Processed)
	assert.Equal(t, 20, snap.Compliant)
	assert.Equal(t, 7, snap.Violations)
	assert.Equal(t, 5, snap.Failed)
	// First batch seeds the moving average: 0.1s x 75 remaining.
	assert.InDelta(t, 7.5, snap.ETASec, 1e-9)

	snap = arena.Advance("v1", 25, 25, 0, 0, 0.3)
	assert.Equal(t, 50, snap.Processed)
	// EMA with smoothing 0.3: 0.7*0.1 + 0.3*0.3 = 0.16s x 50 remaining.
	assert.InDelta(t, 8.0, snap.ETASec, 1e-9)

	require.True(t, arena.Cancel("v1"))
	assert.True(t, arena.IsCancelled("v1"))

	live, ok := arena.Snapshot("v1")
	require.True(t, ok)
	assert.True(t, live.Cancelled)
	assert.False(t, live.Done)

	report := &Report{ValidationID: "v1", Cancelled: true}
	final := arena.Finish("v1", report)
	assert.True(t, final.Done)
	assert.Zero(t, final.ETASec)

	got, ok := arena.Report("v1")
	require.True(t, ok)
	assert.Same(t, report, got)

	// Finished runs no longer cancel, no longer count as active, and free
	// the id for reuse.
	assert.False(t, arena.Cancel("v1"))
	assert.Empty(t, arena.Active())
	assert.NoError(t, arena.Begin("v1", 10))
}

func TestProgressArena_DuplicateActiveID(t *testing.T) {
	arena := NewProgressArena()

	require.NoError(t, arena.Begin("v1", 10))

	err := arena.Begin("v1", 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestProgressArena_UnknownID(t *testing.T) {
	arena := NewProgressArena()

	_, ok := arena.Snapshot("nope")
	assert.False(t, ok)
	assert.False(t, arena.Cancel("nope"))
	assert.False(t, arena.IsCancelled("nope"))
	_, ok = arena.Report("nope")
	assert.False(t, ok)

	snap := arena.Advance("nope", 1, 1, 0, 0, 0.1)
	assert.Zero(t, snap.Processed)
}

func TestProgressArena_Active(t *testing.T) {
	arena := NewProgressArena()

	require.NoError(t, arena.Begin("a", 10))
	require.NoError(t, arena.Begin("b", 20))
	arena.Finish("b", &Report{ValidationID: "b"})

	active := arena.Active()
	require.Len(t, active, 1)
	assert.Equal(t, "a", active[0].ValidationID)
}

func TestProgressArena_PrunesOldFinishedRuns(t *testing.T) {
	arena := NewProgressArena()

	require.NoError(t, arena.Begin("old", 1))
	arena.Finish("old", &Report{ValidationID: "old"})

	arena.mu.Lock()
	arena.records["old"].snap.UpdatedAt = time.Now().Add(-2 * finishedRetention)
	arena.mu.Unlock()

	require.NoError(t, arena.Begin("new", 1))

	_, ok := arena.Snapshot("old")
	assert.False(t, ok)
	_, ok = arena.Snapshot("new")
	assert.True(t, ok)
}

func TestProgressArena_Drop(t *testing.T) {
	arena := NewProgressArena()

	require.NoError(t, arena.Begin("v1", 10))
	arena.Drop("v1")

	_, ok := arena.Snapshot("v1")
	assert.False(t, ok)
}
