// Package rules loads the labor rule catalog and flattens it into the
// numeric Rule Matrix used by compliance evaluation. The catalog is read
// once per process from an embedded default or a configured YAML file and
// refreshed on a TTL, with file watching for immediate hot reloads. Readers
// always see a complete, immutable matrix; swaps happen under a refresh
// lock and are suppressed when the reloaded set fingerprints identically.
package rules

import (
	_ "embed"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/workforcelab/intraday/internal/domain"
)

//go:embed rules.yaml
var defaultCatalog []byte

// DefaultRefreshTTL is how long a loaded matrix is trusted before the
// catalog re-reads its source.
const DefaultRefreshTTL = 24 * time.Hour

// DefaultRuleSet parses the embedded catalog shipped with the binary.
func DefaultRuleSet() (*RuleSet, error) {
	return ParseRuleSet(defaultCatalog)
}

// Catalog owns the current rule matrix. Path is optional: when empty the
// embedded defaults are used and file watching is disabled.
type Catalog struct {
	path string
	ttl  time.Duration
	log  zerolog.Logger

	mu     sync.RWMutex // guards matrix
	matrix *Matrix

	refreshMu sync.Mutex // serializes reload-and-swap
	onReload  func(*Matrix)

	watcher   *fsnotify.Watcher
	ticker    *time.Ticker
	stopChan  chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewCatalog creates a catalog reading from path (or the embedded defaults
// when path is empty). ttl <= 0 selects DefaultRefreshTTL.
func NewCatalog(path string, ttl time.Duration, log zerolog.Logger) *Catalog {
	if ttl <= 0 {
		ttl = DefaultRefreshTTL
	}
	return &Catalog{
		path: path,
		ttl:  ttl,
		log:  log.With().Str("component", "rule_catalog").Logger(),
	}
}

// SetOnReload registers a callback invoked after every successful matrix
// swap. Used to invalidate compliance caches when thresholds change.
// Must be called before Start.
func (c *Catalog) SetOnReload(fn func(*Matrix)) {
	c.onReload = fn
}

// Load performs the initial synchronous load. Failure here is fatal: the
// engine cannot evaluate anything without a matrix.
func (c *Catalog) Load() error {
	set, err := c.read()
	if err != nil {
		return err
	}
	matrix, err := NewMatrix(set)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.matrix = matrix
	c.mu.Unlock()

	c.log.Info().
		Str("version", matrix.Version()).
		Int("rules", len(matrix.Order())).
		Uint64("fingerprint", matrix.Fingerprint()).
		Msg("Rule catalog loaded")
	return nil
}

// Matrix returns the current matrix. It never blocks on refreshes.
func (c *Catalog) Matrix() *Matrix {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.matrix
}

// Refresh re-reads the catalog source and swaps the matrix if the content
// changed. A reload that fingerprints identically to the current matrix is
// a no-op, so downstream caches keyed on the matrix stay warm.
func (c *Catalog) Refresh() error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	set, err := c.read()
	if err != nil {
		return err
	}
	fingerprint, err := Fingerprint(set)
	if err != nil {
		return err
	}

	current := c.Matrix()
	if current != nil && current.Fingerprint() == fingerprint {
		c.log.Debug().Uint64("fingerprint", fingerprint).Msg("Rule catalog unchanged, keeping current matrix")
		return nil
	}

	matrix, err := NewMatrix(set)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.matrix = matrix
	c.mu.Unlock()

	c.log.Info().
		Str("version", matrix.Version()).
		Int("rules", len(matrix.Order())).
		Uint64("fingerprint", matrix.Fingerprint()).
		Msg("Rule catalog reloaded")

	if c.onReload != nil {
		c.onReload(matrix)
	}
	return nil
}

// Start begins TTL-based refreshing and, when a file path is configured,
// watches it for writes. Safe to call multiple times.
func (c *Catalog) Start() {
	c.startOnce.Do(func() {
		c.ticker = time.NewTicker(c.ttl)
		c.stopChan = make(chan struct{})

		if c.path != "" {
			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				c.log.Warn().Err(err).Msg("Failed to create rules file watcher, hot reload disabled")
			} else if err := watcher.Add(c.path); err != nil {
				c.log.Warn().Err(err).Str("path", c.path).Msg("Failed to watch rules file, hot reload disabled")
				watcher.Close()
			} else {
				c.watcher = watcher
			}
		}

		c.log.Info().
			Dur("ttl", c.ttl).
			Bool("watching", c.watcher != nil).
			Msg("Rule catalog refresh started")

		go c.run()
	})
}

// Stop halts refreshing and file watching. Safe to call multiple times.
func (c *Catalog) Stop() {
	c.stopOnce.Do(func() {
		if c.ticker != nil {
			c.ticker.Stop()
		}
		if c.stopChan != nil {
			close(c.stopChan)
		}
		c.log.Info().Msg("Rule catalog refresh stopped")
	})
}

func (c *Catalog) run() {
	var events <-chan fsnotify.Event
	var errors <-chan error
	if c.watcher != nil {
		defer c.watcher.Close()
		events = c.watcher.Events
		errors = c.watcher.Errors
	}

	for {
		select {
		case <-c.ticker.C:
			if err := c.Refresh(); err != nil {
				c.log.Warn().Err(err).Msg("Scheduled rule refresh failed, keeping current matrix")
			}
		case event, ok := <-events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if err := c.Refresh(); err != nil {
					c.log.Warn().Err(err).Str("path", event.Name).Msg("Rule file reload failed, keeping current matrix")
				}
			}
		case err, ok := <-errors:
			if !ok {
				return
			}
			c.log.Warn().Err(err).Msg("Rules file watcher error")
		case <-c.stopChan:
			return
		}
	}
}

// read fetches the raw rule set from the configured source.
func (c *Catalog) read() (*RuleSet, error) {
	if c.path == "" {
		return DefaultRuleSet()
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: rules file %s", domain.ErrNotFound, c.path)
		}
		return nil, fmt.Errorf("failed to read rules file %s: %w", c.path, err)
	}
	return ParseRuleSet(data)
}
