package di

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/workforcelab/intraday/internal/config"
	"github.com/workforcelab/intraday/internal/domain"
	"github.com/workforcelab/intraday/internal/modules/coverage"
	"github.com/workforcelab/intraday/internal/scheduler"
	"github.com/workforcelab/intraday/internal/work"
)

// coverageRefresher satisfies work.CoverageRefresher: the live monitor
// knows which services are watched, the analyzer rebuilds today's report.
type coverageRefresher struct {
	live     *coverage.LiveMonitor
	analyzer *coverage.Analyzer
}

func (c *coverageRefresher) Watched() []string { return c.live.Watched() }

func (c *coverageRefresher) Refresh(ctx context.Context, serviceID string) error {
	today := domain.Day(time.Now().UTC())
	_, err := c.analyzer.Analyze(ctx, serviceID, domain.NewDateRange(today, today.AddDate(0, 0, 1)))
	return err
}

// InitializeWork assembles the work engine over the wired services: the
// registry of standard work types, the processor that drains it, the event
// triggers that mark work stale, and the cron jobs that wake it all up.
func InitializeWork(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	registry := work.NewRegistry()
	completion := work.NewCompletionTracker()

	state := work.NewSystemState(
		func() bool {
			return len(container.BulkValidator.Active()) > 0 ||
				len(container.CoverageLive.Watched()) > 0
		},
		func(serviceID string) bool {
			for _, id := range container.CoverageLive.Watched() {
				if id == serviceID {
					return true
				}
			}
			return false
		},
	)
	timing := work.NewTimingChecker(state)

	processor := work.NewProcessor(registry, completion, timing, container.EventBus, log)
	processor.SetHistory(container.Gateway.JobHistory)

	deps := &work.Deps{
		Sweeper: container.Monitor,
		Rules:   container.RulesCatalog,
		Coverage: &coverageRefresher{
			live:     container.CoverageLive,
			analyzer: container.CoverageAnalyzer,
		},
		Retention: container.Retention,
		Backup:    container.BackupService,
	}
	// A nil *RemoteBackupService must stay a nil interface, or the backup
	// chain registers against a broken mirror.
	if container.RemoteBackup != nil {
		deps.Remote = container.RemoteBackup
	}
	work.RegisterWorkTypes(registry, deps)

	work.RegisterTriggers(&work.TriggerDeps{
		Bus:        container.EventBus,
		Processor:  processor,
		Completion: completion,
	})

	handlers := work.NewHandlers(processor, registry)
	handlers.SetHistory(container.Gateway.JobHistory)

	container.Work = &WorkComponents{
		Registry:   registry,
		Completion: completion,
		State:      state,
		Timing:     timing,
		Processor:  processor,
		Handlers:   handlers,
	}

	sched := scheduler.New(log)
	if err := scheduler.RegisterStandardJobs(sched, processor, completion, cfg.Backup.Schedule); err != nil {
		return fmt.Errorf("failed to register scheduler jobs: %w", err)
	}
	container.Scheduler = sched

	log.Info().
		Int("work_types", len(registry.ByPriority())).
		Int("cron_jobs", len(sched.Names())).
		Msg("Work engine initialized")
	return nil
}
