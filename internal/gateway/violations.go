package gateway

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/workforcelab/intraday/internal/database"
	"github.com/workforcelab/intraday/internal/domain"
	"github.com/workforcelab/intraday/internal/utils"
)

// ViolationRepo handles the compliance audit trail in audit.db. Violation ids
// are deterministic (employee + rule + shift day), so persisting the same
// finding twice converges on one row.
type ViolationRepo struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewViolationRepo creates a new violation repository.
func NewViolationRepo(db *sql.DB, log zerolog.Logger) *ViolationRepo {
	return &ViolationRepo{db: db, log: log.With().Str("repo", "violations").Logger()}
}

// Persist stores a batch of violations in one transaction.
func (r *ViolationRepo) Persist(ctx context.Context, violations []domain.Violation) error {
	if len(violations) == 0 {
		return nil
	}
	done := utils.MeasureDBQuery("persist_violations", r.log)
	now := fmtTime(time.Now().UTC())
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		for _, v := range violations {
			suggestions, err := jsonEncode(v.Suggestions)
			if err != nil {
				return fmt.Errorf("encoding suggestions for %s: %w", v.ID, err)
			}
			_, err = tx.ExecContext(ctx, `
				INSERT OR REPLACE INTO violations
				(id, employee_id, rule_id, occurred_at, shift_date, observed,
				 required, unit, severity, penalty, message, suggestions, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				v.ID, v.EmployeeID, string(v.RuleID), fmtTime(v.OccurredAt),
				fmtDate(v.ShiftDate), v.Observed, v.Required, v.Unit,
				string(v.Severity), string(v.Penalty), v.Message, suggestions, now)
			if err != nil {
				return fmt.Errorf("persisting violation %s: %w", v.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrUpstream, err)
	}
	done(int64(len(violations)))
	return nil
}

// ForEmployee returns an employee's violations with shift dates inside r,
// newest shift first.
func (r *ViolationRepo) ForEmployee(ctx context.Context, employeeID string, dr domain.DateRange) ([]domain.Violation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, employee_id, rule_id, occurred_at, shift_date, observed,
		       required, unit, severity, penalty, message, suggestions
		FROM violations
		WHERE employee_id = ? AND shift_date >= ? AND shift_date < ?
		ORDER BY shift_date DESC, rule_id`,
		employeeID, fmtDate(dr.Start), fmtDate(dr.End))
	if err != nil {
		return nil, fmt.Errorf("%w: querying violations: %w", domain.ErrUpstream, err)
	}
	defer rows.Close()
	return scanViolations(rows)
}

// Recent returns violations detected since the cutoff, newest first.
func (r *ViolationRepo) Recent(ctx context.Context, since time.Time, limit int) ([]domain.Violation, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, employee_id, rule_id, occurred_at, shift_date, observed,
		       required, unit, severity, penalty, message, suggestions
		FROM violations WHERE occurred_at >= ?
		ORDER BY occurred_at DESC LIMIT ?`,
		fmtTime(since), limit)
	if err != nil {
		return nil, fmt.Errorf("%w: querying recent violations: %w", domain.ErrUpstream, err)
	}
	defer rows.Close()
	return scanViolations(rows)
}

// Purge drops violations whose shift day is older than the cutoff. Retention
// cleanup runs this nightly.
func (r *ViolationRepo) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	var purged int64
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"DELETE FROM violations WHERE shift_date < ?", fmtDate(olderThan))
		if err != nil {
			return fmt.Errorf("purging violations: %w", err)
		}
		purged, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrUpstream, err)
	}
	return purged, nil
}

func scanViolations(rows *sql.Rows) ([]domain.Violation, error) {
	var out []domain.Violation
	for rows.Next() {
		var v domain.Violation
		var ruleID, occurred, shiftDate, severity, penalty, suggestions string
		if err := rows.Scan(&v.ID, &v.EmployeeID, &ruleID, &occurred, &shiftDate,
			&v.Observed, &v.Required, &v.Unit, &severity, &penalty,
			&v.Message, &suggestions); err != nil {
			return nil, fmt.Errorf("scanning violation: %w", err)
		}
		v.RuleID = domain.RuleID(ruleID)
		v.Severity = domain.Severity(severity)
		v.Penalty = domain.PenaltyTier(penalty)
		var err error
		if v.OccurredAt, err = parseTimestamp(occurred); err != nil {
			return nil, err
		}
		if v.ShiftDate, err = parseDate(shiftDate); err != nil {
			return nil, err
		}
		if v.Suggestions, err = jsonDecodeStrings(suggestions); err != nil {
			return nil, fmt.Errorf("decoding suggestions for %s: %w", v.ID, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating violations: %w", err)
	}
	return out, nil
}
