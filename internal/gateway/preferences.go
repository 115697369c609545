package gateway

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/workforcelab/intraday/internal/database"
	"github.com/workforcelab/intraday/internal/domain"
)

// PreferenceRepo handles schedule preferences in wfm.db.
type PreferenceRepo struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPreferenceRepo creates a new preference repository.
func NewPreferenceRepo(db *sql.DB, log zerolog.Logger) *PreferenceRepo {
	return &PreferenceRepo{db: db, log: log.With().Str("repo", "preferences").Logger()}
}

// InRange returns preferences for days inside r, optionally filtered by
// employee, ordered by employee then day.
func (r *PreferenceRepo) InRange(ctx context.Context, dr domain.DateRange, employeeIDs []string) ([]domain.SchedulePreference, error) {
	query := `SELECT employee_id, pref_date, day_off, preferred_start, preferred_end
		FROM schedule_preferences WHERE pref_date >= ? AND pref_date < ?`
	args := []any{fmtDate(dr.Start), fmtDate(dr.End)}
	if len(employeeIDs) > 0 {
		query += " AND employee_id IN (" + placeholders(len(employeeIDs)) + ")"
		args = append(args, inArgs(employeeIDs)...)
	}
	query += " ORDER BY employee_id, pref_date"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: querying schedule preferences: %w", domain.ErrUpstream, err)
	}
	defer rows.Close()

	var out []domain.SchedulePreference
	for rows.Next() {
		var p domain.SchedulePreference
		var date string
		var dayOff int
		var start, end sql.NullInt64
		if err := rows.Scan(&p.EmployeeID, &date, &dayOff, &start, &end); err != nil {
			return nil, fmt.Errorf("scanning schedule preference: %w", err)
		}
		p.DayOff = dayOff != 0
		if start.Valid {
			t := domain.TimeOfDay(start.Int64)
			p.PreferredStart = &t
		}
		if end.Valid {
			t := domain.TimeOfDay(end.Int64)
			p.PreferredEnd = &t
		}
		var err error
		if p.Date, err = parseDate(date); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating schedule preferences: %w", err)
	}
	return out, nil
}

// Save upserts preferences keyed by (employee, day).
func (r *PreferenceRepo) Save(ctx context.Context, prefs []domain.SchedulePreference) error {
	if len(prefs) == 0 {
		return nil
	}
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		for _, p := range prefs {
			var start, end any
			if p.PreferredStart != nil {
				start = int64(*p.PreferredStart)
			}
			if p.PreferredEnd != nil {
				end = int64(*p.PreferredEnd)
			}
			_, err := tx.ExecContext(ctx, `
				INSERT OR REPLACE INTO schedule_preferences
				(employee_id, pref_date, day_off, preferred_start, preferred_end)
				VALUES (?, ?, ?, ?, ?)`,
				p.EmployeeID, fmtDate(p.Date), boolToInt(p.DayOff), start, end)
			if err != nil {
				return fmt.Errorf("upserting preference for %s: %w", p.EmployeeID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrUpstream, err)
	}
	return nil
}
