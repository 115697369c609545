package compliance

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/workforcelab/intraday/internal/domain"
)

// DefaultResultTTL is how long a validation result stays reusable.
const DefaultResultTTL = 4 * time.Hour

// ResultStore is the persistent second tier of the result cache. Results
// survive process restarts there as msgpack payloads with an expiry.
type ResultStore interface {
	GetResult(ctx context.Context, key string) ([]byte, bool, error)
	PutResult(ctx context.Context, key string, payload []byte, expiresAt time.Time) error
	DeleteResults(ctx context.Context, employeeID string) error
	// FlushResults drops every cached result; PurgeResults only expired ones.
	FlushResults(ctx context.Context) error
	PurgeResults(ctx context.Context) (int64, error)
}

// CacheStats counts cache traffic since process start.
type CacheStats struct {
	Hits      int64 `json:"hits"`
	L2Hits    int64 `json:"l2_hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

// ResultCache is the two-tier validation result cache: an in-memory TTL
// tier in front of an optional persistent store. Keys are
// (employee, range start date, range end date).
type ResultCache struct {
	l1    *gocache.Cache
	store ResultStore // optional
	ttl   time.Duration
	log   zerolog.Logger

	mu    sync.Mutex
	stats CacheStats
}

// NewResultCache builds a cache with the given TTL (<= 0 selects
// DefaultResultTTL). store may be nil for a memory-only cache.
func NewResultCache(ttl time.Duration, store ResultStore, log zerolog.Logger) *ResultCache {
	if ttl <= 0 {
		ttl = DefaultResultTTL
	}
	return &ResultCache{
		l1:    gocache.New(ttl, 10*time.Minute),
		store: store,
		ttl:   ttl,
		log:   log.With().Str("component", "compliance_cache").Logger(),
	}
}

// CacheKey builds the canonical result key for an employee and range.
func CacheKey(employeeID string, r domain.DateRange) string {
	return fmt.Sprintf("%s|%s|%s",
		employeeID, r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"))
}

// Get returns a cached result, consulting the memory tier first and falling
// back to the persistent store. Store hits are re-warmed into memory.
func (c *ResultCache) Get(ctx context.Context, employeeID string, r domain.DateRange) (*Result, bool) {
	key := CacheKey(employeeID, r)

	if cached, ok := c.l1.Get(key); ok {
		if res, ok := cached.(*Result); ok {
			c.count(func(s *CacheStats) { s.Hits++ })
			copied := *res
			return &copied, true
		}
	}

	if c.store != nil {
		payload, ok, err := c.store.GetResult(ctx, key)
		if err != nil {
			c.log.Warn().Err(err).Str("key", key).Msg("Result store read failed")
		} else if ok {
			var res Result
			if err := msgpack.Unmarshal(payload, &res); err != nil {
				c.log.Warn().Err(err).Str("key", key).Msg("Failed to decode cached result, dropping entry")
				_ = c.store.DeleteResults(ctx, employeeID)
			} else {
				c.l1.SetDefault(key, &res)
				c.count(func(s *CacheStats) { s.Hits++; s.L2Hits++ })
				copied := res
				return &copied, true
			}
		}
	}

	c.count(func(s *CacheStats) { s.Misses++ })
	return nil, false
}

// Set stores a result in both tiers.
func (c *ResultCache) Set(ctx context.Context, res *Result) {
	r := domain.NewDateRange(res.RangeStart, res.RangeEnd)
	key := CacheKey(res.EmployeeID, r)

	stored := *res
	stored.CacheHit = false
	c.l1.SetDefault(key, &stored)

	if c.store == nil {
		return
	}
	payload, err := msgpack.Marshal(&stored)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Failed to encode result for persistent cache")
		return
	}
	if err := c.store.PutResult(ctx, key, payload, time.Now().UTC().Add(c.ttl)); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Result store write failed")
	}
}

// InvalidateEmployee drops every cached result for one employee. Called on
// any block change touching the employee, regardless of range overlap:
// over-invalidation is cheap, stale results are not.
func (c *ResultCache) InvalidateEmployee(ctx context.Context, employeeID string) {
	prefix := employeeID + "|"
	dropped := 0
	for key := range c.l1.Items() {
		if strings.HasPrefix(key, prefix) {
			c.l1.Delete(key)
			dropped++
		}
	}
	if c.store != nil {
		if err := c.store.DeleteResults(ctx, employeeID); err != nil {
			c.log.Warn().Err(err).Str("employee_id", employeeID).Msg("Result store invalidation failed")
		}
	}
	if dropped > 0 {
		c.count(func(s *CacheStats) { s.Evictions += int64(dropped) })
	}
}

// Flush empties both tiers. Used when the rule matrix is swapped: every
// cached verdict may be stale under new thresholds.
func (c *ResultCache) Flush(ctx context.Context) {
	c.l1.Flush()
	if c.store != nil {
		if err := c.store.FlushResults(ctx); err != nil {
			c.log.Warn().Err(err).Msg("Result store flush failed")
		}
	}
	c.log.Info().Msg("Compliance result cache flushed")
}

// Stats returns a snapshot of the traffic counters.
func (c *ResultCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *ResultCache) count(fn func(*CacheStats)) {
	c.mu.Lock()
	fn(&c.stats)
	c.mu.Unlock()
}
