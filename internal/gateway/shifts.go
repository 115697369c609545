package gateway

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/workforcelab/intraday/internal/database"
	"github.com/workforcelab/intraday/internal/domain"
)

// ShiftRepo handles shift rows in wfm.db. Shifts arrive from upstream
// scheduling; the compute core reads them and the planner expands them into
// timetable blocks.
type ShiftRepo struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewShiftRepo creates a new shift repository.
func NewShiftRepo(db *sql.DB, log zerolog.Logger) *ShiftRepo {
	return &ShiftRepo{db: db, log: log.With().Str("repo", "shifts").Logger()}
}

// InRange returns shifts whose calendar day falls in r. A nil or empty
// employee filter returns every employee's shifts.
func (r *ShiftRepo) InRange(ctx context.Context, dr domain.DateRange, employeeIDs []string) ([]domain.Shift, error) {
	query := `SELECT id, employee_id, shift_date, start_minutes, end_minutes, status
		FROM shifts WHERE shift_date >= ? AND shift_date < ?`
	args := []any{fmtDate(dr.Start), fmtDate(dr.End)}
	if len(employeeIDs) > 0 {
		query += " AND employee_id IN (" + placeholders(len(employeeIDs)) + ")"
		args = append(args, inArgs(employeeIDs)...)
	}
	query += " ORDER BY employee_id, shift_date, start_minutes"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: querying shifts: %w", domain.ErrUpstream, err)
	}
	defer rows.Close()

	var out []domain.Shift
	for rows.Next() {
		var s domain.Shift
		var date, status string
		var start, end int
		if err := rows.Scan(&s.ID, &s.EmployeeID, &date, &start, &end, &status); err != nil {
			return nil, fmt.Errorf("scanning shift: %w", err)
		}
		if s.Date, err = parseDate(date); err != nil {
			return nil, err
		}
		s.Start = domain.TimeOfDay(start)
		s.End = domain.TimeOfDay(end)
		s.Status = domain.ShiftStatus(status)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Save upserts shifts by id in one transaction.
func (r *ShiftRepo) Save(ctx context.Context, shifts []domain.Shift) error {
	if len(shifts) == 0 {
		return nil
	}
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		for _, s := range shifts {
			_, err := tx.ExecContext(ctx, `
				INSERT OR REPLACE INTO shifts
				(id, employee_id, shift_date, start_minutes, end_minutes, status)
				VALUES (?, ?, ?, ?, ?, ?)`,
				s.ID, s.EmployeeID, fmtDate(s.Date), int(s.Start), int(s.End), string(s.Status))
			if err != nil {
				return fmt.Errorf("upserting shift %s: %w", s.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrUpstream, err)
	}
	return nil
}
