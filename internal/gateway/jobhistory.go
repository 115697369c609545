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

// JobRun is one completed background job execution.
type JobRun struct {
	ID        int64         `json:"id"`
	JobType   string        `json:"job_type"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Outcome   string        `json:"outcome"` // success, failed, skipped
	Detail    string        `json:"detail,omitempty"`
}

// JobHistoryRepo records background job runs in cache.db for the status API.
type JobHistoryRepo struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewJobHistoryRepo creates a new job history repository.
func NewJobHistoryRepo(db *sql.DB, log zerolog.Logger) *JobHistoryRepo {
	return &JobHistoryRepo{db: db, log: log.With().Str("repo", "job_history").Logger()}
}

// Record appends one job run.
func (r *JobHistoryRepo) Record(ctx context.Context, run JobRun) error {
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO job_history (job_type, started_at, duration_ms, outcome, detail)
			VALUES (?, ?, ?, ?, ?)`,
			run.JobType, fmtTime(run.StartedAt), run.Duration.Milliseconds(),
			run.Outcome, run.Detail)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: recording job run: %w", domain.ErrUpstream, err)
	}
	return nil
}

// RecordRun appends one run from its parts. It satisfies the work
// processor's history sink.
func (r *JobHistoryRepo) RecordRun(ctx context.Context, jobType string, startedAt time.Time, duration time.Duration, outcome, detail string) error {
	return r.Record(ctx, JobRun{
		JobType:   jobType,
		StartedAt: startedAt,
		Duration:  duration,
		Outcome:   outcome,
		Detail:    detail,
	})
}

// Recent returns the latest runs, newest first, optionally filtered by type.
func (r *JobHistoryRepo) Recent(ctx context.Context, jobType string, limit int) ([]JobRun, error) {
	if limit <= 0 {
		limit = 50
	}
	query := "SELECT id, job_type, started_at, duration_ms, outcome, detail FROM job_history"
	args := []any{}
	if jobType != "" {
		query += " WHERE job_type = ?"
		args = append(args, jobType)
	}
	query += " ORDER BY started_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: querying job history: %w", domain.ErrUpstream, err)
	}
	defer rows.Close()

	var out []JobRun
	for rows.Next() {
		var run JobRun
		var started string
		var durationMs int64
		if err := rows.Scan(&run.ID, &run.JobType, &started, &durationMs,
			&run.Outcome, &run.Detail); err != nil {
			return nil, fmt.Errorf("scanning job run: %w", err)
		}
		run.Duration = time.Duration(durationMs) * time.Millisecond
		if run.StartedAt, err = parseTimestamp(started); err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating job history: %w", err)
	}
	return out, nil
}

// Prune drops runs older than the cutoff.
func (r *JobHistoryRepo) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	var pruned int64
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"DELETE FROM job_history WHERE started_at < ?", fmtTime(olderThan))
		if err != nil {
			return fmt.Errorf("pruning job history: %w", err)
		}
		pruned, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrUpstream, err)
	}
	return pruned, nil
}
