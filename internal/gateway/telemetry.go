package gateway

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/workforcelab/intraday/internal/database"
	"github.com/workforcelab/intraday/internal/domain"
)

// QueueRepo handles realtime queue snapshots in cache.db. Snapshots arrive
// every few seconds per service; the live monitor reads only the newest one
// and old rows are pruned on a schedule.
type QueueRepo struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewQueueRepo creates a new queue snapshot repository.
func NewQueueRepo(db *sql.DB, log zerolog.Logger) *QueueRepo {
	return &QueueRepo{db: db, log: log.With().Str("repo", "queue").Logger()}
}

// Record stores one snapshot, replacing any snapshot already captured at the
// same instant for the service.
func (r *QueueRepo) Record(ctx context.Context, s domain.QueueSnapshot) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO queue_snapshots
		(service_id, captured_at, calls_waiting, longest_wait_sec,
		 agents_available, agents_busy, service_level)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ServiceID, fmtTime(s.Timestamp), s.CallsWaiting, s.LongestWaitSec,
		s.AgentsAvailable, s.AgentsBusy, s.ServiceLevel)
	if err != nil {
		return fmt.Errorf("%w: recording queue snapshot: %w", domain.ErrUpstream, err)
	}
	return nil
}

// Latest returns the newest snapshot for a service.
func (r *QueueRepo) Latest(ctx context.Context, serviceID string) (*domain.QueueSnapshot, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT service_id, captured_at, calls_waiting, longest_wait_sec,
		       agents_available, agents_busy, service_level
		FROM queue_snapshots WHERE service_id = ?
		ORDER BY captured_at DESC LIMIT 1`, serviceID)

	var s domain.QueueSnapshot
	var captured string
	err := row.Scan(&s.ServiceID, &captured, &s.CallsWaiting, &s.LongestWaitSec,
		&s.AgentsAvailable, &s.AgentsBusy, &s.ServiceLevel)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no queue snapshot for service %s", domain.ErrNotFound, serviceID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: querying queue snapshot: %w", domain.ErrUpstream, err)
	}
	if s.Timestamp, err = parseTimestamp(captured); err != nil {
		return nil, err
	}
	return &s, nil
}

// History returns a service's snapshots since the cutoff, oldest first. The
// trend estimator feeds these into its regression window.
func (r *QueueRepo) History(ctx context.Context, serviceID string, since time.Time) ([]domain.QueueSnapshot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT service_id, captured_at, calls_waiting, longest_wait_sec,
		       agents_available, agents_busy, service_level
		FROM queue_snapshots
		WHERE service_id = ? AND captured_at >= ?
		ORDER BY captured_at`, serviceID, fmtTime(since))
	if err != nil {
		return nil, fmt.Errorf("%w: querying queue history: %w", domain.ErrUpstream, err)
	}
	defer rows.Close()

	var out []domain.QueueSnapshot
	for rows.Next() {
		var s domain.QueueSnapshot
		var captured string
		if err := rows.Scan(&s.ServiceID, &captured, &s.CallsWaiting, &s.LongestWaitSec,
			&s.AgentsAvailable, &s.AgentsBusy, &s.ServiceLevel); err != nil {
			return nil, fmt.Errorf("scanning queue snapshot: %w", err)
		}
		if s.Timestamp, err = parseTimestamp(captured); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating queue snapshots: %w", err)
	}
	return out, nil
}

// Prune drops snapshots older than the cutoff and reports how many went.
func (r *QueueRepo) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	var pruned int64
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"DELETE FROM queue_snapshots WHERE captured_at < ?", fmtTime(olderThan))
		if err != nil {
			return fmt.Errorf("pruning queue snapshots: %w", err)
		}
		pruned, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrUpstream, err)
	}
	if pruned > 0 {
		r.log.Debug().Int64("rows", pruned).Msg("Pruned queue snapshots")
	}
	return pruned, nil
}
