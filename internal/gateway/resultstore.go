package gateway

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/workforcelab/intraday/internal/database"
	"github.com/workforcelab/intraday/internal/domain"
)

// ResultStoreRepo is the persistent tier of the compliance result cache,
// backed by cache.db. Keys are "employee|start|end"; payloads are opaque
// msgpack blobs owned by the caller.
type ResultStoreRepo struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewResultStoreRepo creates a new result store repository.
func NewResultStoreRepo(db *sql.DB, log zerolog.Logger) *ResultStoreRepo {
	return &ResultStoreRepo{db: db, log: log.With().Str("repo", "result_store").Logger()}
}

// GetResult returns the payload for a key if present and unexpired.
func (r *ResultStoreRepo) GetResult(ctx context.Context, key string) ([]byte, bool, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT payload, expires_at FROM compliance_cache WHERE cache_key = ?", key)

	var payload []byte
	var expires string
	err := row.Scan(&payload, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: reading cached result: %w", domain.ErrUpstream, err)
	}
	expiresAt, err := parseTimestamp(expires)
	if err != nil {
		return nil, false, err
	}
	if time.Now().UTC().After(expiresAt) {
		return nil, false, nil
	}
	return payload, true, nil
}

// PutResult stores a payload under a key with an expiry.
func (r *ResultStoreRepo) PutResult(ctx context.Context, key string, payload []byte, expiresAt time.Time) error {
	employeeID := key
	if i := strings.IndexByte(key, '|'); i >= 0 {
		employeeID = key[:i]
	}
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO compliance_cache (cache_key, employee_id, payload, expires_at)
			VALUES (?, ?, ?, ?)`,
			key, employeeID, payload, fmtTime(expiresAt))
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: storing cached result: %w", domain.ErrUpstream, err)
	}
	return nil
}

// DeleteResults drops every cached result for one employee.
func (r *ResultStoreRepo) DeleteResults(ctx context.Context, employeeID string) error {
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"DELETE FROM compliance_cache WHERE employee_id = ?", employeeID)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: invalidating cached results: %w", domain.ErrUpstream, err)
	}
	return nil
}

// FlushResults drops every cached result.
func (r *ResultStoreRepo) FlushResults(ctx context.Context) error {
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "DELETE FROM compliance_cache")
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: flushing cached results: %w", domain.ErrUpstream, err)
	}
	return nil
}

// PurgeResults drops only expired entries and reports how many went.
func (r *ResultStoreRepo) PurgeResults(ctx context.Context) (int64, error) {
	var purged int64
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"DELETE FROM compliance_cache WHERE expires_at < ?", fmtTime(time.Now().UTC()))
		if err != nil {
			return fmt.Errorf("purging cached results: %w", err)
		}
		purged, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrUpstream, err)
	}
	if purged > 0 {
		r.log.Debug().Int64("rows", purged).Msg("Purged expired compliance results")
	}
	return purged, nil
}
