package monitor

import (
	"sync"
	"time"
)

// cooldownSet suppresses repeat alerts for a coalescing key within a window.
// Entries expire lazily; a trim runs whenever the set doubles past its last
// trimmed size so an idle monitor never holds dead keys forever.
type cooldownSet struct {
	mu       sync.Mutex
	window   time.Duration
	seen     map[string]time.Time
	trimSize int
}

func newCooldownSet(window time.Duration) *cooldownSet {
	if window <= 0 {
		window = DefaultCooldown
	}
	return &cooldownSet{
		window:   window,
		seen:     make(map[string]time.Time),
		trimSize: 64,
	}
}

// Seed preloads keys from persisted alerts so a process restart does not
// re-alert inside the window.
func (c *cooldownSet) Seed(keys map[string]time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, at := range keys {
		if cur, ok := c.seen[k]; !ok || at.After(cur) {
			c.seen[k] = at
		}
	}
}

// Admit reports whether an alert for the key may fire at the given time, and
// records it when admitted. A key inside its window is refused.
func (c *cooldownSet) Admit(key string, at time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if last, ok := c.seen[key]; ok && at.Sub(last) < c.window {
		return false
	}
	c.seen[key] = at

	if len(c.seen) >= c.trimSize {
		c.trim(at)
	}
	return true
}

// Last returns when the key last fired, for duplicate counters. Second
// return is false when the key is unknown.
func (c *cooldownSet) Last(key string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	at, ok := c.seen[key]
	return at, ok
}

func (c *cooldownSet) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// trim drops expired entries. Caller holds the lock.
func (c *cooldownSet) trim(now time.Time) {
	for k, at := range c.seen {
		if now.Sub(at) >= c.window {
			delete(c.seen, k)
		}
	}
	next := len(c.seen) * 2
	if next < 64 {
		next = 64
	}
	c.trimSize = next
}
