package gateway

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/workforcelab/intraday/internal/database"
	"github.com/workforcelab/intraday/internal/domain"
)

// ActivityRepo handles agent telemetry intervals in wfm.db. Telemetry is
// ingested from the contact platform and read by the coverage analyzer and
// the batch-sweep roster query.
type ActivityRepo struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewActivityRepo creates a new activity repository.
func NewActivityRepo(db *sql.DB, log zerolog.Logger) *ActivityRepo {
	return &ActivityRepo{db: db, log: log.With().Str("repo", "activity").Logger()}
}

// InRange returns activity intervals whose start falls in r, ordered by
// agent and interval start. A nil or empty agent filter returns everyone.
func (r *ActivityRepo) InRange(ctx context.Context, dr domain.DateRange, agentIDs []string) ([]domain.ActivityInterval, error) {
	query := `SELECT agent_id, start_at, login_sec, productive_sec, break_sec,
		group_id, service_id, handled_contacts
		FROM agent_activity WHERE start_at >= ? AND start_at < ?`
	args := []any{fmtTime(dr.Start), fmtTime(dr.End)}
	if len(agentIDs) > 0 {
		query += " AND agent_id IN (" + placeholders(len(agentIDs)) + ")"
		args = append(args, inArgs(agentIDs)...)
	}
	query += " ORDER BY agent_id, start_at"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: querying agent activity: %w", domain.ErrUpstream, err)
	}
	defer rows.Close()
	return scanActivity(rows)
}

// ForService returns activity intervals for one service in r, ordered by
// interval start then agent.
func (r *ActivityRepo) ForService(ctx context.Context, dr domain.DateRange, serviceID string) ([]domain.ActivityInterval, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT agent_id, start_at, login_sec, productive_sec, break_sec,
		       group_id, service_id, handled_contacts
		FROM agent_activity
		WHERE service_id = ? AND start_at >= ? AND start_at < ?
		ORDER BY start_at, agent_id`,
		serviceID, fmtTime(dr.Start), fmtTime(dr.End))
	if err != nil {
		return nil, fmt.Errorf("%w: querying service activity: %w", domain.ErrUpstream, err)
	}
	defer rows.Close()
	return scanActivity(rows)
}

// ActiveAgents returns the distinct agents with any telemetry since the
// cutoff. The batch sweep uses this as its roster.
func (r *ActivityRepo) ActiveAgents(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT DISTINCT agent_id FROM agent_activity WHERE start_at >= ? ORDER BY agent_id",
		fmtTime(since))
	if err != nil {
		return nil, fmt.Errorf("%w: querying active agents: %w", domain.ErrUpstream, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning active agent: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Save upserts telemetry intervals keyed by (agent, interval start).
func (r *ActivityRepo) Save(ctx context.Context, intervals []domain.ActivityInterval) error {
	if len(intervals) == 0 {
		return nil
	}
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		for _, a := range intervals {
			_, err := tx.ExecContext(ctx, `
				INSERT OR REPLACE INTO agent_activity
				(agent_id, start_at, login_sec, productive_sec, break_sec,
				 group_id, service_id, handled_contacts)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				a.AgentID, fmtTime(domain.AlignInterval(a.Start)), a.LoginSec,
				a.ProductiveSec, a.BreakSec, a.GroupID, a.ServiceID, a.HandledContact)
			if err != nil {
				return fmt.Errorf("upserting activity for %s: %w", a.AgentID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrUpstream, err)
	}
	return nil
}

func scanActivity(rows *sql.Rows) ([]domain.ActivityInterval, error) {
	var out []domain.ActivityInterval
	for rows.Next() {
		var a domain.ActivityInterval
		var start string
		if err := rows.Scan(&a.AgentID, &start, &a.LoginSec, &a.ProductiveSec,
			&a.BreakSec, &a.GroupID, &a.ServiceID, &a.HandledContact); err != nil {
			return nil, fmt.Errorf("scanning activity interval: %w", err)
		}
		var err error
		if a.Start, err = parseTimestamp(start); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating activity intervals: %w", err)
	}
	return out, nil
}
