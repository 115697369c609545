// Package database provides SQLite connection management for the three
// application stores: wfm.db (scheduling state), audit.db (violations,
// alerts and monitoring history) and cache.db (ephemeral operational data).
package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

//go:embed schemas/*.sql
var schemaFS embed.FS

// DatabaseProfile selects the durability/speed trade-off for one store.
type DatabaseProfile string

const (
	// ProfileLedger favors safety. The audit trail backs labor-law
	// reporting, so every write is fsynced and pages are never reclaimed.
	ProfileLedger DatabaseProfile = "ledger"
	// ProfileCache favors speed. Everything in it can be rebuilt.
	ProfileCache DatabaseProfile = "cache"
	// ProfileStandard is the balanced default for scheduling state.
	ProfileStandard DatabaseProfile = "standard"
)

// profilePragmas holds the per-profile connection pragmas. WAL journaling,
// foreign keys and the shared cache settings apply to every profile.
var profilePragmas = map[DatabaseProfile][]string{
	ProfileLedger: {
		"synchronous(FULL)",
		"auto_vacuum(NONE)",
	},
	ProfileCache: {
		"synchronous(OFF)",
		"auto_vacuum(FULL)",
		"temp_store(MEMORY)",
	},
	ProfileStandard: {
		"synchronous(NORMAL)",
		"auto_vacuum(INCREMENTAL)",
		"temp_store(MEMORY)",
	},
}

// Config describes one database to open.
type Config struct {
	Path    string
	Profile DatabaseProfile
	Name    string // short name used in logs and to pick the schema
}

// DB wraps one SQLite connection pool with its profile and identity.
type DB struct {
	conn    *sql.DB
	path    string
	profile DatabaseProfile
	name    string
}

// New opens the database, creating its directory as needed, and verifies
// the connection with a ping before handing it out.
func New(cfg Config) (*DB, error) {
	// file: URIs (in-memory databases in tests) skip filepath handling.
	if !strings.HasPrefix(cfg.Path, "file:") {
		abs, err := filepath.Abs(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("resolving database path %s: %w", cfg.Path, err)
		}
		if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		cfg.Path = abs
	}
	if cfg.Profile == "" {
		cfg.Profile = ProfileStandard
	}

	conn, err := sql.Open("sqlite", connString(cfg.Path, cfg.Profile))
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", cfg.Name, err)
	}
	tunePool(conn, cfg.Profile)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("pinging database %s: %w", cfg.Name, err)
	}

	return &DB{conn: conn, path: cfg.Path, profile: cfg.Profile, name: cfg.Name}, nil
}

func connString(path string, profile DatabaseProfile) string {
	pragmas := []string{"journal_mode(WAL)"}
	pragmas = append(pragmas, profilePragmas[profile]...)
	pragmas = append(pragmas,
		"foreign_keys(1)",
		"wal_autocheckpoint(1000)",
		"cache_size(-64000)", // 64 MB, negative means KB
	)
	return path + "?_pragma=" + strings.Join(pragmas, "&_pragma=")
}

// tunePool sizes the connection pool for a long-lived process. Lifetimes
// are generous so monitor loops do not churn connections.
func tunePool(conn *sql.DB, profile DatabaseProfile) {
	conn.SetMaxOpenConns(20)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(24 * time.Hour)
	conn.SetConnMaxIdleTime(30 * time.Minute)

	if profile == ProfileCache {
		conn.SetMaxOpenConns(10)
		conn.SetMaxIdleConns(2)
	}
}

// Conn returns the underlying pool for repositories.
func (db *DB) Conn() *sql.DB { return db.conn }

// Name returns the short database name.
func (db *DB) Name() string { return db.name }

// Path returns the database file path.
func (db *DB) Path() string { return db.path }

// Close closes the connection pool.
func (db *DB) Close() error { return db.conn.Close() }

// ExecContext executes a statement outside any repository, such as the
// backup service's VACUUM INTO.
func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.conn.ExecContext(ctx, query, args...)
}

// Migrate applies the embedded schema matching the database name. The
// schema files ship inside the binary, so migration works identically in
// tests, CI and production. Unknown names apply nothing.
func (db *DB) Migrate() error {
	schemas := map[string]string{
		"wfm":   "wfm_schema.sql",
		"audit": "audit_schema.sql",
		"cache": "cache_schema.sql",
	}
	file, ok := schemas[db.name]
	if !ok {
		return nil
	}

	ddl, err := schemaFS.ReadFile("schemas/" + file)
	if err != nil {
		return fmt.Errorf("reading embedded schema %s: %w", file, err)
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("beginning migration of %s: %w", db.name, err)
	}
	if _, err := tx.Exec(string(ddl)); err != nil {
		_ = tx.Rollback()
		// Schemas are IF NOT EXISTS; tolerate re-applied column additions
		// from older deployments.
		msg := err.Error()
		if strings.Contains(msg, "duplicate column") || strings.Contains(msg, "already exists") {
			return nil
		}
		return fmt.Errorf("applying schema %s to %s: %w", file, db.name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing schema %s: %w", file, err)
	}
	return nil
}

// HealthCheck pings the database and runs a full integrity check. The
// integrity check reads every page; callers should treat this as an
// expensive probe, not a liveness poll.
func (db *DB) HealthCheck(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed for %s: %w", db.name, err)
	}

	var result string
	if err := db.conn.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed for %s: %w", db.name, err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed for %s: %s", db.name, result)
	}
	return nil
}

// WALCheckpoint folds the write-ahead log back into the main file. Mode is
// one of PASSIVE, FULL, RESTART or TRUNCATE; empty defaults to TRUNCATE,
// which also resets the WAL file size.
func (db *DB) WALCheckpoint(mode string) error {
	if mode == "" {
		mode = "TRUNCATE"
	}
	if _, err := db.conn.Exec(fmt.Sprintf("PRAGMA wal_checkpoint(%s)", mode)); err != nil {
		return fmt.Errorf("WAL checkpoint failed for %s: %w", db.name, err)
	}
	return nil
}

// Stats describes the on-disk footprint of one database.
type Stats struct {
	SizeBytes     int64
	WALSizeBytes  int64
	PageCount     int64
	PageSize      int64
	FreelistCount int64
}

// GetStats reads file sizes and page counters for the status endpoint.
func (db *DB) GetStats() (*Stats, error) {
	stats := &Stats{}

	if info, err := os.Stat(db.path); err == nil {
		stats.SizeBytes = info.Size()
	}
	if info, err := os.Stat(db.path + "-wal"); err == nil {
		stats.WALSizeBytes = info.Size()
	}

	for _, probe := range []struct {
		pragma string
		dest   *int64
	}{
		{"page_count", &stats.PageCount},
		{"page_size", &stats.PageSize},
		{"freelist_count", &stats.FreelistCount},
	} {
		if err := db.conn.QueryRow("PRAGMA " + probe.pragma).Scan(probe.dest); err != nil {
			return nil, fmt.Errorf("reading %s for %s: %w", probe.pragma, db.name, err)
		}
	}
	return stats, nil
}

// WithTransaction runs fn inside a transaction, committing on success and
// rolling back on error or panic.
func WithTransaction(db *sql.DB, fn func(*sql.Tx) error) (err error) {
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("panic in transaction: %v", p)
		} else if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = fmt.Errorf("transaction failed: %w (rollback also failed: %v)", err, rbErr)
			} else {
				err = fmt.Errorf("transaction failed: %w", err)
			}
		} else if commitErr := tx.Commit(); commitErr != nil {
			err = fmt.Errorf("failed to commit transaction: %w", commitErr)
		}
	}()

	return fn(tx)
}
