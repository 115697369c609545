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

// ThresholdRepo handles per-service metric thresholds in wfm.db.
type ThresholdRepo struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewThresholdRepo creates a new threshold repository.
func NewThresholdRepo(db *sql.DB, log zerolog.Logger) *ThresholdRepo {
	return &ThresholdRepo{db: db, log: log.With().Str("repo", "thresholds").Logger()}
}

// ForService returns every threshold configured for a service.
func (r *ThresholdRepo) ForService(ctx context.Context, serviceID string) ([]domain.ThresholdConfig, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT service_id, metric, warning, critical, emergency, direction, auto_alert
		FROM thresholds WHERE service_id = ? ORDER BY metric`, serviceID)
	if err != nil {
		return nil, fmt.Errorf("%w: querying thresholds: %w", domain.ErrUpstream, err)
	}
	defer rows.Close()
	return scanThresholds(rows)
}

// All returns every configured threshold grouped in service order.
func (r *ThresholdRepo) All(ctx context.Context) ([]domain.ThresholdConfig, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT service_id, metric, warning, critical, emergency, direction, auto_alert
		FROM thresholds ORDER BY service_id, metric`)
	if err != nil {
		return nil, fmt.Errorf("%w: querying thresholds: %w", domain.ErrUpstream, err)
	}
	defer rows.Close()
	return scanThresholds(rows)
}

// Upsert validates and stores one threshold config. Levels must escalate in
// the breach direction: warning before critical before emergency.
func (r *ThresholdRepo) Upsert(ctx context.Context, t domain.ThresholdConfig) error {
	if t.ServiceID == "" || t.Metric == "" {
		return fmt.Errorf("%w: threshold needs service_id and metric", domain.ErrValidation)
	}
	switch t.Direction {
	case domain.DirectionAbove:
		if !(t.Warning <= t.Critical && t.Critical <= t.Emergency) {
			return fmt.Errorf("%w: levels must rise for direction above (%.1f/%.1f/%.1f)",
				domain.ErrValidation, t.Warning, t.Critical, t.Emergency)
		}
	case domain.DirectionBelow:
		if !(t.Warning >= t.Critical && t.Critical >= t.Emergency) {
			return fmt.Errorf("%w: levels must fall for direction below (%.1f/%.1f/%.1f)",
				domain.ErrValidation, t.Warning, t.Critical, t.Emergency)
		}
	default:
		return fmt.Errorf("%w: unknown threshold direction %q", domain.ErrValidation, t.Direction)
	}

	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO thresholds
			(service_id, metric, warning, critical, emergency, direction, auto_alert, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ServiceID, t.Metric, t.Warning, t.Critical, t.Emergency,
			string(t.Direction), boolToInt(t.AutoAlert), fmtTime(time.Now().UTC()))
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: upserting threshold: %w", domain.ErrUpstream, err)
	}
	r.log.Info().Str("service", t.ServiceID).Str("metric", t.Metric).Msg("Threshold updated")
	return nil
}

func scanThresholds(rows *sql.Rows) ([]domain.ThresholdConfig, error) {
	var out []domain.ThresholdConfig
	for rows.Next() {
		var t domain.ThresholdConfig
		var direction string
		var autoAlert int
		if err := rows.Scan(&t.ServiceID, &t.Metric, &t.Warning, &t.Critical,
			&t.Emergency, &direction, &autoAlert); err != nil {
			return nil, fmt.Errorf("scanning threshold: %w", err)
		}
		t.Direction = domain.ThresholdDirection(direction)
		t.AutoAlert = autoAlert != 0
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating thresholds: %w", err)
	}
	return out, nil
}

// ServiceRepo handles the monitored service catalog in wfm.db.
type ServiceRepo struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewServiceRepo creates a new service repository.
func NewServiceRepo(db *sql.DB, log zerolog.Logger) *ServiceRepo {
	return &ServiceRepo{db: db, log: log.With().Str("repo", "services").Logger()}
}

// All returns every service; activeOnly narrows to active ones.
func (r *ServiceRepo) All(ctx context.Context, activeOnly bool) ([]domain.Service, error) {
	query := "SELECT id, name, hourly_cost, service_target, active FROM services"
	if activeOnly {
		query += " WHERE active = 1"
	}
	query += " ORDER BY id"

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: querying services: %w", domain.ErrUpstream, err)
	}
	defer rows.Close()

	var out []domain.Service
	for rows.Next() {
		var s domain.Service
		var active int
		if err := rows.Scan(&s.ID, &s.Name, &s.HourlyCost, &s.ServiceTarget, &active); err != nil {
			return nil, fmt.Errorf("scanning service: %w", err)
		}
		s.Active = active != 0
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating services: %w", err)
	}
	return out, nil
}

// ByID returns one service.
func (r *ServiceRepo) ByID(ctx context.Context, id string) (*domain.Service, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT id, name, hourly_cost, service_target, active FROM services WHERE id = ?", id)

	var s domain.Service
	var active int
	err := row.Scan(&s.ID, &s.Name, &s.HourlyCost, &s.ServiceTarget, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: service %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: querying service: %w", domain.ErrUpstream, err)
	}
	s.Active = active != 0
	return &s, nil
}

// Save upserts one service.
func (r *ServiceRepo) Save(ctx context.Context, s domain.Service) error {
	if s.ID == "" {
		return fmt.Errorf("%w: service needs an id", domain.ErrValidation)
	}
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO services (id, name, hourly_cost, service_target, active)
			VALUES (?, ?, ?, ?, ?)`,
			s.ID, s.Name, s.HourlyCost, s.ServiceTarget, boolToInt(s.Active))
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: saving service: %w", domain.ErrUpstream, err)
	}
	return nil
}
