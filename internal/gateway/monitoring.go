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

// MonitoringRepo handles monitor sessions and their audited events in
// audit.db.
type MonitoringRepo struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewMonitoringRepo creates a new monitoring repository.
func NewMonitoringRepo(db *sql.DB, log zerolog.Logger) *MonitoringRepo {
	return &MonitoringRepo{db: db, log: log.With().Str("repo", "monitoring").Logger()}
}

// StartSession records the beginning of a live monitoring span.
func (r *MonitoringRepo) StartSession(ctx context.Context, s domain.MonitoringSession) error {
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO monitoring_sessions
			(id, service_id, started_at, stopped_at, events_emitted)
			VALUES (?, ?, ?, NULL, 0)`,
			s.ID, s.ServiceID, fmtTime(s.StartedAt))
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: starting monitoring session: %w", domain.ErrUpstream, err)
	}
	r.log.Info().Str("session", s.ID).Str("service", s.ServiceID).Msg("Monitoring session started")
	return nil
}

// StopSession closes a session and records its final event count.
func (r *MonitoringRepo) StopSession(ctx context.Context, sessionID string, stoppedAt time.Time, eventsEmitted int) error {
	var affected int64
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE monitoring_sessions SET stopped_at = ?, events_emitted = ?
			WHERE id = ?`,
			fmtTime(stoppedAt), eventsEmitted, sessionID)
		if err != nil {
			return fmt.Errorf("stopping monitoring session: %w", err)
		}
		affected, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrUpstream, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: monitoring session %s", domain.ErrNotFound, sessionID)
	}
	return nil
}

// ActiveSession returns the open session for a service, if any.
func (r *MonitoringRepo) ActiveSession(ctx context.Context, serviceID string) (*domain.MonitoringSession, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, service_id, started_at, stopped_at, events_emitted
		FROM monitoring_sessions
		WHERE service_id = ? AND stopped_at IS NULL
		ORDER BY started_at DESC LIMIT 1`, serviceID)

	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no active session for service %s", domain.ErrNotFound, serviceID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: querying active session: %w", domain.ErrUpstream, err)
	}
	return s, nil
}

// RecordEvent appends one audited monitor event.
func (r *MonitoringRepo) RecordEvent(ctx context.Context, e domain.MonitoringEvent) error {
	payload, err := jsonEncode(e.Payload)
	if err != nil {
		return fmt.Errorf("encoding event payload: %w", err)
	}
	txErr := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO monitoring_events (session_id, service_id, kind, payload, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			e.SessionID, e.ServiceID, e.Kind, payload, fmtTime(e.CreatedAt))
		return err
	})
	if txErr != nil {
		return fmt.Errorf("%w: recording monitoring event: %w", domain.ErrUpstream, txErr)
	}
	return nil
}

// RecentEvents returns events since the cutoff, newest first.
func (r *MonitoringRepo) RecentEvents(ctx context.Context, since time.Time, limit int) ([]domain.MonitoringEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, service_id, kind, payload, created_at
		FROM monitoring_events WHERE created_at >= ?
		ORDER BY created_at DESC LIMIT ?`,
		fmtTime(since), limit)
	if err != nil {
		return nil, fmt.Errorf("%w: querying monitoring events: %w", domain.ErrUpstream, err)
	}
	defer rows.Close()

	var out []domain.MonitoringEvent
	for rows.Next() {
		var e domain.MonitoringEvent
		var payload, created string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.ServiceID, &e.Kind, &payload, &created); err != nil {
			return nil, fmt.Errorf("scanning monitoring event: %w", err)
		}
		if e.CreatedAt, err = parseTimestamp(created); err != nil {
			return nil, err
		}
		if e.Payload, err = jsonDecodeMap(payload); err != nil {
			return nil, fmt.Errorf("decoding event payload: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating monitoring events: %w", err)
	}
	return out, nil
}

// PruneEvents drops events older than the cutoff.
func (r *MonitoringRepo) PruneEvents(ctx context.Context, olderThan time.Time) (int64, error) {
	var pruned int64
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"DELETE FROM monitoring_events WHERE created_at < ?", fmtTime(olderThan))
		if err != nil {
			return fmt.Errorf("pruning monitoring events: %w", err)
		}
		pruned, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrUpstream, err)
	}
	return pruned, nil
}

func scanSession(row *sql.Row) (*domain.MonitoringSession, error) {
	var s domain.MonitoringSession
	var started string
	var stopped sql.NullString
	if err := row.Scan(&s.ID, &s.ServiceID, &started, &stopped, &s.EventsEmitted); err != nil {
		return nil, err
	}
	var err error
	if s.StartedAt, err = parseTimestamp(started); err != nil {
		return nil, err
	}
	if stopped.Valid {
		at, err := parseTimestamp(stopped.String)
		if err != nil {
			return nil, err
		}
		s.StoppedAt = &at
	}
	return &s, nil
}
