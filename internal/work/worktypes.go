package work

import (
	"context"
	"fmt"
	"time"
)

// Operational intervals for the standard work types. See doc.go for the
// rationale; these are deliberately not configurable.
const (
	rulesRefreshInterval    = 24 * time.Hour
	sweepInterval           = 24 * time.Hour
	coverageRefreshInterval = 1 * time.Hour
	retentionInterval       = 24 * time.Hour
	backupInterval          = 24 * time.Hour
)

// ComplianceSweeper runs one deep batch sweep over the active roster.
// Satisfied by the violation monitor.
type ComplianceSweeper interface {
	Sweep(ctx context.Context) error
}

// RuleRefresher re-reads the rule catalog from disk. Satisfied by the rules
// catalog.
type RuleRefresher interface {
	Refresh() error
}

// CoverageRefresher recomputes the coverage picture for one service; the
// processor asks Watched for the services that need it.
type CoverageRefresher interface {
	Watched() []string
	Refresh(ctx context.Context, serviceID string) error
}

// RetentionCleaner trims aged rows across the databases.
type RetentionCleaner interface {
	Cleanup(ctx context.Context) error
}

// BackupService writes local database backups.
type BackupService interface {
	RunDailyBackup(ctx context.Context) error
	BackedUpToday() bool
}

// RemoteBackupService mirrors backups to S3-compatible storage.
type RemoteBackupService interface {
	Configured() bool
	UploadBackup(ctx context.Context) error
	RotateBackups(ctx context.Context) error
}

// Deps collects everything the standard work types call into. Remote may be
// nil when no remote store is configured.
type Deps struct {
	Sweeper   ComplianceSweeper
	Rules     RuleRefresher
	Coverage  CoverageRefresher
	Retention RetentionCleaner
	Backup    BackupService
	Remote    RemoteBackupService
}

// RegisterWorkTypes registers the standard background work types.
func RegisterWorkTypes(registry *Registry, deps *Deps) {
	// rules:refresh keeps the compliance engine on a current rule matrix
	// even if the file watcher misses an edit.
	registry.Register(&WorkType{
		ID:       "rules:refresh",
		Priority: PriorityCritical,
		Timing:   AnyTime,
		Interval: rulesRefreshInterval,
		FindSubjects: func() []string {
			return []string{""}
		},
		Execute: func(ctx context.Context, subject string, progress *ProgressReporter) error {
			if err := deps.Rules.Refresh(); err != nil {
				return fmt.Errorf("refreshing rule catalog: %w", err)
			}
			return nil
		},
	})

	// sweep:compliance revalidates everyone with recent activity, catching
	// violations the change feed cannot see.
	registry.Register(&WorkType{
		ID:       "sweep:compliance",
		Priority: PriorityHigh,
		Timing:   OffPeak,
		Interval: sweepInterval,
		FindSubjects: func() []string {
			return []string{""}
		},
		Execute: func(ctx context.Context, subject string, progress *ProgressReporter) error {
			progress.Message("sweeping active roster")
			if err := deps.Sweeper.Sweep(ctx); err != nil {
				return fmt.Errorf("compliance sweep: %w", err)
			}
			return nil
		},
	})

	// coverage:refresh recomputes the day's coverage report per watched
	// service. Triggers clear its completions when plans change.
	registry.Register(&WorkType{
		ID:       "coverage:refresh",
		Priority: PriorityMedium,
		Timing:   WhileWatched,
		Interval: coverageRefreshInterval,
		FindSubjects: func() []string {
			return deps.Coverage.Watched()
		},
		Execute: func(ctx context.Context, subject string, progress *ProgressReporter) error {
			if err := deps.Coverage.Refresh(ctx, subject); err != nil {
				return fmt.Errorf("refreshing coverage for %s: %w", subject, err)
			}
			return nil
		},
	})

	// retention:cleanup trims snapshots, change log, alerts, job history and
	// expired cached verdicts.
	registry.Register(&WorkType{
		ID:       "retention:cleanup",
		Priority: PriorityLow,
		Timing:   MaintenanceWindow,
		Interval: retentionInterval,
		FindSubjects: func() []string {
			return []string{""}
		},
		Execute: func(ctx context.Context, subject string, progress *ProgressReporter) error {
			if err := deps.Retention.Cleanup(ctx); err != nil {
				return fmt.Errorf("retention cleanup: %w", err)
			}
			return nil
		},
	})

	// backup:daily writes the local backup set once per day.
	registry.Register(&WorkType{
		ID:       "backup:daily",
		Priority: PriorityLow,
		Timing:   MaintenanceWindow,
		Interval: backupInterval,
		FindSubjects: func() []string {
			if deps.Backup.BackedUpToday() {
				return nil
			}
			return []string{""}
		},
		Execute: func(ctx context.Context, subject string, progress *ProgressReporter) error {
			if err := deps.Backup.RunDailyBackup(ctx); err != nil {
				return fmt.Errorf("daily backup: %w", err)
			}
			return nil
		},
	})

	if deps.Remote == nil {
		return
	}

	// backup:upload mirrors the fresh local backup to the remote store.
	registry.Register(&WorkType{
		ID:        "backup:upload",
		DependsOn: []string{"backup:daily"},
		Priority:  PriorityLow,
		Timing:    MaintenanceWindow,
		Interval:  backupInterval,
		FindSubjects: func() []string {
			if !deps.Remote.Configured() {
				return nil
			}
			return []string{""}
		},
		Execute: func(ctx context.Context, subject string, progress *ProgressReporter) error {
			progress.Message("uploading backup set")
			if err := deps.Remote.UploadBackup(ctx); err != nil {
				return fmt.Errorf("uploading backup: %w", err)
			}
			return nil
		},
	})

	// backup:rotate drops remote backups past the retention horizon.
	registry.Register(&WorkType{
		ID:        "backup:rotate",
		DependsOn: []string{"backup:upload"},
		Priority:  PriorityLow,
		Timing:    MaintenanceWindow,
		Interval:  backupInterval,
		FindSubjects: func() []string {
			if !deps.Remote.Configured() {
				return nil
			}
			return []string{""}
		},
		Execute: func(ctx context.Context, subject string, progress *ProgressReporter) error {
			if err := deps.Remote.RotateBackups(ctx); err != nil {
				return fmt.Errorf("rotating backups: %w", err)
			}
			return nil
		},
	})
}
