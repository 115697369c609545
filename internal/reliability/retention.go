package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/workforcelab/intraday/internal/database"
	"github.com/workforcelab/intraday/internal/gateway"
	"github.com/workforcelab/intraday/internal/utils"
)

// RetentionConfig sets how long each store keeps history, in days.
type RetentionConfig struct {
	ChangeLogDays  int
	ViolationDays  int
	AlertDays      int
	TelemetryDays  int
	JobRunDays     int
	MonitoringDays int
}

// DefaultRetention returns the standard horizons. Violations keep the
// longest history because they feed adherence reviews long after the shift.
func DefaultRetention() RetentionConfig {
	return RetentionConfig{
		ChangeLogDays:  60,
		ViolationDays:  180,
		AlertDays:      90,
		TelemetryDays:  14,
		JobRunDays:     30,
		MonitoringDays: 30,
	}
}

// RetentionRepos collects the repositories the cleanup sweeps.
type RetentionRepos struct {
	Timetable  *gateway.TimetableRepo
	Violations *gateway.ViolationRepo
	Alerts     *gateway.AlertRepo
	Queues     *gateway.QueueRepo
	Jobs       *gateway.JobHistoryRepo
	Monitoring *gateway.MonitoringRepo
	Results    *gateway.ResultStoreRepo
}

// RetentionService trims aged rows across the three databases on behalf of
// the retention work type.
type RetentionService struct {
	repos RetentionRepos
	dbs   []*database.DB
	cfg   RetentionConfig
	log   zerolog.Logger
}

// NewRetentionService creates the cleanup service. dbs are checkpointed
// after pruning so the freed pages leave the write-ahead logs.
func NewRetentionService(repos RetentionRepos, dbs []*database.DB, cfg RetentionConfig, log zerolog.Logger) *RetentionService {
	return &RetentionService{
		repos: repos,
		dbs:   dbs,
		cfg:   cfg,
		log:   log.With().Str("service", "retention").Logger(),
	}
}

// Cleanup runs every retention step. A failing step is logged and the sweep
// continues; the returned error counts the failures so the work engine
// retries the whole pass.
func (s *RetentionService) Cleanup(ctx context.Context) error {
	defer utils.OperationTimer("retention_cleanup", s.log)()
	now := time.Now()

	steps := []struct {
		name string
		run  func() (int64, error)
	}{
		{"block_changes", func() (int64, error) {
			return s.repos.Timetable.PruneChanges(ctx, now.AddDate(0, 0, -s.cfg.ChangeLogDays))
		}},
		{"violations", func() (int64, error) {
			return s.repos.Violations.Purge(ctx, now.AddDate(0, 0, -s.cfg.ViolationDays))
		}},
		{"alerts", func() (int64, error) {
			return s.repos.Alerts.Purge(ctx, now.AddDate(0, 0, -s.cfg.AlertDays))
		}},
		{"queue_snapshots", func() (int64, error) {
			return s.repos.Queues.Prune(ctx, now.AddDate(0, 0, -s.cfg.TelemetryDays))
		}},
		{"job_history", func() (int64, error) {
			return s.repos.Jobs.Prune(ctx, now.AddDate(0, 0, -s.cfg.JobRunDays))
		}},
		{"monitoring_events", func() (int64, error) {
			return s.repos.Monitoring.PruneEvents(ctx, now.AddDate(0, 0, -s.cfg.MonitoringDays))
		}},
		{"compliance_cache", func() (int64, error) {
			// The result cache carries its own expiry column.
			return s.repos.Results.PurgeResults(ctx)
		}},
	}

	failed := 0
	var totalRemoved int64

	for _, step := range steps {
		removed, err := step.run()
		if err != nil {
			s.log.Error().Err(err).Str("store", step.name).Msg("Retention step failed")
			failed++
			continue
		}

		totalRemoved += removed
		if removed > 0 {
			s.log.Info().
				Str("store", step.name).
				Int64("removed", removed).
				Msg("Pruned aged rows")
		}
	}

	// Deletes land in the WAL; fold them back so the space actually frees.
	// A failed checkpoint is advisory, the prune itself already happened.
	for _, db := range s.dbs {
		if db == nil {
			continue
		}
		if err := db.WALCheckpoint(""); err != nil {
			s.log.Warn().Err(err).Str("database", db.Name()).Msg("WAL checkpoint failed")
		}
	}

	s.log.Info().
		Int64("removed", totalRemoved).
		Int("steps", len(steps)).
		Int("failed", failed).
		Msg("Retention cleanup completed")

	if failed > 0 {
		return fmt.Errorf("retention cleanup: %d of %d steps failed", failed, len(steps))
	}

	return nil
}
