package gateway

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/workforcelab/intraday/internal/database"
	"github.com/workforcelab/intraday/internal/domain"
)

// ForecastRepo handles demand forecast intervals in wfm.db. Forecasts are
// produced upstream; the core only consumes them.
type ForecastRepo struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewForecastRepo creates a new forecast repository.
func NewForecastRepo(db *sql.DB, log zerolog.Logger) *ForecastRepo {
	return &ForecastRepo{db: db, log: log.With().Str("repo", "forecast").Logger()}
}

// InRange returns forecast intervals whose start falls in r, ordered by
// service and interval start. A nil or empty service filter returns every
// service's intervals.
func (r *ForecastRepo) InRange(ctx context.Context, dr domain.DateRange, serviceIDs []string) ([]domain.ForecastInterval, error) {
	query := `SELECT service_id, start_at, required_agents, service_level,
		handle_time_sec, call_volume
		FROM forecast_intervals WHERE start_at >= ? AND start_at < ?`
	args := []any{fmtTime(dr.Start), fmtTime(dr.End)}
	if len(serviceIDs) > 0 {
		query += " AND service_id IN (" + placeholders(len(serviceIDs)) + ")"
		args = append(args, inArgs(serviceIDs)...)
	}
	query += " ORDER BY service_id, start_at"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: querying forecast intervals: %w", domain.ErrUpstream, err)
	}
	defer rows.Close()

	var out []domain.ForecastInterval
	for rows.Next() {
		var f domain.ForecastInterval
		var start string
		if err := rows.Scan(&f.ServiceID, &start, &f.RequiredAgents, &f.ServiceLevel,
			&f.HandleTimeSec, &f.CallVolume); err != nil {
			return nil, fmt.Errorf("scanning forecast interval: %w", err)
		}
		if f.Start, err = parseTimestamp(start); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Save upserts forecast intervals keyed by (service, interval start).
func (r *ForecastRepo) Save(ctx context.Context, intervals []domain.ForecastInterval) error {
	if len(intervals) == 0 {
		return nil
	}
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		for _, f := range intervals {
			_, err := tx.ExecContext(ctx, `
				INSERT OR REPLACE INTO forecast_intervals
				(service_id, start_at, required_agents, service_level,
				 handle_time_sec, call_volume)
				VALUES (?, ?, ?, ?, ?, ?)`,
				f.ServiceID, fmtTime(domain.AlignInterval(f.Start)), f.RequiredAgents,
				f.ServiceLevel, f.HandleTimeSec, f.CallVolume)
			if err != nil {
				return fmt.Errorf("upserting forecast for %s: %w", f.ServiceID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrUpstream, err)
	}
	return nil
}
