package monitor

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCooldownAdmitsOncePerWindow(t *testing.T) {
	c := newCooldownSet(time.Hour)
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	assert.True(t, c.Admit("emp-001|DAILY_HOURS|2025-03-10", base))
	assert.False(t, c.Admit("emp-001|DAILY_HOURS|2025-03-10", base.Add(30*time.Minute)))
	assert.False(t, c.Admit("emp-001|DAILY_HOURS|2025-03-10", base.Add(59*time.Minute)))

	// A different key is independent.
	assert.True(t, c.Admit("emp-001|DAILY_HOURS|2025-03-11", base.Add(30*time.Minute)))

	// Past the window the key fires again.
	assert.True(t, c.Admit("emp-001|DAILY_HOURS|2025-03-10", base.Add(61*time.Minute)))
}

func TestCooldownSeedBlocksRecentKeys(t *testing.T) {
	c := newCooldownSet(time.Hour)
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	c.Seed(map[string]time.Time{
		"emp-001|LUNCH|2025-03-10":       base.Add(-10 * time.Minute),
		"emp-002|BREAK_QUOTA|2025-03-10": base.Add(-2 * time.Hour),
	})

	assert.False(t, c.Admit("emp-001|LUNCH|2025-03-10", base), "seeded recent key must stay suppressed")
	assert.True(t, c.Admit("emp-002|BREAK_QUOTA|2025-03-10", base), "seeded stale key is past its window")
}

func TestCooldownSeedKeepsNewestTimestamp(t *testing.T) {
	c := newCooldownSet(time.Hour)
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	assert.True(t, c.Admit("k", base))
	c.Seed(map[string]time.Time{"k": base.Add(-2 * time.Hour)})

	last, ok := c.Last("k")
	require.True(t, ok)
	assert.Equal(t, base, last, "seeding must not rewind an existing key")
}

func TestCooldownTrimsExpiredKeys(t *testing.T) {
	c := newCooldownSet(time.Minute)
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 255; i++ {
		c.Admit(fmt.Sprintf("key-%d", i), base.Add(time.Duration(i)*time.Millisecond))
	}
	require.Equal(t, 255, c.Len())

	// Everything above is expired an hour later, so the admit that crosses
	// the trim threshold shrinks the set down to itself.
	c.Admit("fresh", base.Add(time.Hour))
	assert.Equal(t, 1, c.Len())
	_, ok := c.Last("key-0")
	assert.False(t, ok)
}
