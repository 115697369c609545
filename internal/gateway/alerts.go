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

// AlertRepo handles manager alerts in audit.db.
type AlertRepo struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewAlertRepo creates a new alert repository.
func NewAlertRepo(db *sql.DB, log zerolog.Logger) *AlertRepo {
	return &AlertRepo{db: db, log: log.With().Str("repo", "alerts").Logger()}
}

// Persist stores a batch of alerts in one transaction.
func (r *AlertRepo) Persist(ctx context.Context, alerts []domain.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		for _, a := range alerts {
			suggestions, err := jsonEncode(a.Suggestions)
			if err != nil {
				return fmt.Errorf("encoding suggestions for %s: %w", a.ID, err)
			}
			_, err = tx.ExecContext(ctx, `
				INSERT OR REPLACE INTO alerts
				(alert_id, employee_id, violation_type, severity, detected_at,
				 shift_date, description, observed_value, threshold_value,
				 department_id, manager_id, remediation_suggestions, status, duplicates)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				a.ID, a.EmployeeID, string(a.RuleID), string(a.Severity),
				fmtTime(a.DetectedAt), fmtDate(a.ShiftDate), a.Description,
				a.Observed, a.Threshold, a.DepartmentID, a.ManagerID,
				suggestions, string(a.Status), a.Duplicates)
			if err != nil {
				return fmt.Errorf("persisting alert %s: %w", a.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrUpstream, err)
	}
	return nil
}

// UpdateStatus moves one alert through its delivery lifecycle.
func (r *AlertRepo) UpdateStatus(ctx context.Context, alertID string, status domain.AlertStatus) error {
	var affected int64
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE alerts SET status = ? WHERE alert_id = ?", string(status), alertID)
		if err != nil {
			return fmt.Errorf("updating alert status: %w", err)
		}
		affected, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrUpstream, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: alert %s", domain.ErrNotFound, alertID)
	}
	return nil
}

// Recent returns alerts detected since the cutoff, newest first.
func (r *AlertRepo) Recent(ctx context.Context, since time.Time, limit int) ([]domain.Alert, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT alert_id, employee_id, violation_type, severity, detected_at,
		       shift_date, description, observed_value, threshold_value,
		       department_id, manager_id, remediation_suggestions, status, duplicates
		FROM alerts WHERE detected_at >= ?
		ORDER BY detected_at DESC LIMIT ?`,
		fmtTime(since), limit)
	if err != nil {
		return nil, fmt.Errorf("%w: querying recent alerts: %w", domain.ErrUpstream, err)
	}
	defer rows.Close()
	return scanAlerts(rows)
}

// RecentKeys returns the coalescing key and detection time of every alert
// since the cutoff. The monitor seeds its dedup set from these at startup so
// a restart does not re-alert inside the cooldown window.
func (r *AlertRepo) RecentKeys(ctx context.Context, since time.Time) (map[string]time.Time, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT employee_id, violation_type, shift_date, MAX(detected_at)
		FROM alerts WHERE detected_at >= ?
		GROUP BY employee_id, violation_type, shift_date`,
		fmtTime(since))
	if err != nil {
		return nil, fmt.Errorf("%w: querying alert keys: %w", domain.ErrUpstream, err)
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var employeeID, ruleID, shiftDate, detected string
		if err := rows.Scan(&employeeID, &ruleID, &shiftDate, &detected); err != nil {
			return nil, fmt.Errorf("scanning alert key: %w", err)
		}
		day, err := parseDate(shiftDate)
		if err != nil {
			return nil, err
		}
		at, err := parseTimestamp(detected)
		if err != nil {
			return nil, err
		}
		out[domain.CoalescingKey(employeeID, domain.RuleID(ruleID), day)] = at
	}
	return out, rows.Err()
}

// Purge drops alerts whose shift day is older than the cutoff.
func (r *AlertRepo) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	var purged int64
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"DELETE FROM alerts WHERE shift_date < ?", fmtDate(olderThan))
		if err != nil {
			return fmt.Errorf("purging alerts: %w", err)
		}
		purged, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrUpstream, err)
	}
	return purged, nil
}

func scanAlerts(rows *sql.Rows) ([]domain.Alert, error) {
	var out []domain.Alert
	for rows.Next() {
		var a domain.Alert
		var ruleID, severity, detected, shiftDate, suggestions, status string
		if err := rows.Scan(&a.ID, &a.EmployeeID, &ruleID, &severity, &detected,
			&shiftDate, &a.Description, &a.Observed, &a.Threshold,
			&a.DepartmentID, &a.ManagerID, &suggestions, &status, &a.Duplicates); err != nil {
			return nil, fmt.Errorf("scanning alert: %w", err)
		}
		a.RuleID = domain.RuleID(ruleID)
		a.Severity = domain.Severity(severity)
		a.Status = domain.AlertStatus(status)
		var err error
		if a.DetectedAt, err = parseTimestamp(detected); err != nil {
			return nil, err
		}
		if a.ShiftDate, err = parseDate(shiftDate); err != nil {
			return nil, err
		}
		if a.Suggestions, err = jsonDecodeStrings(suggestions); err != nil {
			return nil, fmt.Errorf("decoding suggestions for %s: %w", a.ID, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating alerts: %w", err)
	}
	return out, nil
}
