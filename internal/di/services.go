package di

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/workforcelab/intraday/internal/config"
	"github.com/workforcelab/intraday/internal/database"
	"github.com/workforcelab/intraday/internal/events"
	"github.com/workforcelab/intraday/internal/gateway"
	"github.com/workforcelab/intraday/internal/modules/bulkvalidation"
	"github.com/workforcelab/intraday/internal/modules/compliance"
	"github.com/workforcelab/intraday/internal/modules/coverage"
	"github.com/workforcelab/intraday/internal/modules/monitor"
	"github.com/workforcelab/intraday/internal/modules/optimizer"
	"github.com/workforcelab/intraday/internal/modules/rules"
	"github.com/workforcelab/intraday/internal/modules/settings"
	"github.com/workforcelab/intraday/internal/modules/timetable"
	"github.com/workforcelab/intraday/internal/reliability"
)

// InitializeRepositories creates the repository gateway and the settings
// repository over the open databases.
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	container.Gateway = gateway.New(
		container.WfmDB.Conn(),
		container.AuditDB.Conn(),
		container.CacheDB.Conn(),
		log,
	)
	container.SettingsRepo = settings.NewRepository(container.WfmDB.Conn(), log)

	log.Info().Msg("Repositories initialized")
	return nil
}

// InitializeServices creates the domain services in dependency order.
// Stored settings are layered over the environment configuration first, so
// every service below sees the merged values.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	container.SettingsService = settings.NewService(container.SettingsRepo, log)

	if err := cfg.UpdateFromSettings(container.SettingsRepo); err != nil {
		return fmt.Errorf("failed to apply stored settings: %w", err)
	}

	container.EventBus = events.NewBus(log)

	// Rule catalog. The initial load is fatal: nothing can evaluate without
	// a matrix. The reload hook drops cached verdicts because a new matrix
	// invalidates every prior result.
	ttls := container.SettingsService.ComplianceCacheTTLs()
	container.RulesCatalog = rules.NewCatalog(cfg.RulesPath, ttls.Rules, log)
	container.ComplianceCache = compliance.NewResultCache(ttls.Employee, container.Gateway.Results, log)
	container.RulesCatalog.SetOnReload(func(m *rules.Matrix) {
		container.ComplianceCache.Flush(context.Background())
		enabled := 0
		for _, id := range m.Order() {
			if m.Enabled(id) {
				enabled++
			}
		}
		container.EventBus.Emit("rules", &events.RulesReloadedData{
			Version: m.Version(),
			Rules:   len(m.Order()),
			Enabled: enabled,
			Flushed: true,
		})
	})
	if err := container.RulesCatalog.Load(); err != nil {
		return fmt.Errorf("failed to load rule catalog: %w", err)
	}

	// Compliance engine and the bulk validator on top of it.
	container.Compliance = compliance.NewService(
		container.Gateway, container.RulesCatalog, container.ComplianceCache, log)
	container.BulkValidator = bulkvalidation.NewService(
		container.Gateway, container.RulesCatalog, container.ComplianceCache, log)

	// Planner re-validates what it writes; the optimizer only reads.
	container.Planner = timetable.New(
		container.Gateway, container.Compliance, container.ComplianceCache, container.EventBus, log)

	opt := container.SettingsService.Optimizer()
	cov := container.SettingsService.Coverage()
	container.Optimizer = optimizer.New(optimizer.Config{
		PrimaryShare:       opt.PrimarySkillLoadPct / 100,
		TargetUtilization:  opt.TargetUtilization,
		DevelopmentReserve: opt.DevelopmentReservePct / 100,
		HourlyCost:         cov.HourlyCost,
	}, container.Gateway, container.EventBus, log)

	container.CoverageAnalyzer = coverage.NewAnalyzer(coverage.Config{
		LivePeriod:  cov.LivePeriod,
		HourlyCost:  cov.HourlyCost,
		TrendWindow: cov.TrendWindow,
	}, container.Gateway, log)
	container.CoverageLive = coverage.NewLiveMonitor(coverage.Config{
		LivePeriod:  cov.LivePeriod,
		HourlyCost:  cov.HourlyCost,
		TrendWindow: cov.TrendWindow,
	}, container.CoverageAnalyzer, container.Gateway, container.EventBus, log)

	mon := container.SettingsService.Monitor()
	container.Monitor = monitor.New(monitor.Config{
		RealtimePoll:  mon.RealtimePeriod,
		LoadedPoll:    mon.RealtimeUnderLoad,
		SweepInterval: mon.BatchPeriod,
		QueueCapacity: mon.QueueCapacity,
		DrainBatch:    mon.BatchSize,
		Cooldown:      mon.Cooldown,
	}, container.Gateway, container.Compliance, container.ComplianceCache, container.EventBus, log)

	// Reliability: local backups always, the remote mirror only when a
	// complete target is configured. A bad target never blocks startup.
	container.BackupService = reliability.NewBackupService(
		[]*database.DB{container.WfmDB, container.AuditDB, container.CacheDB},
		filepath.Join(cfg.DataDir, "backups"),
		log,
	)
	if cfg.Backup.Enabled && cfg.Backup.S3Bucket != "" {
		s3, err := reliability.NewS3Client(context.Background(), reliability.Target{
			Endpoint:  cfg.Backup.S3Endpoint,
			Region:    cfg.Backup.S3Region,
			Bucket:    cfg.Backup.S3Bucket,
			AccessKey: cfg.Backup.S3AccessKeyID,
			SecretKey: cfg.Backup.S3SecretAccessKey,
		}, log)
		if err != nil {
			log.Warn().Err(err).Msg("Remote backup target rejected, continuing with local backups only")
		} else {
			container.RemoteBackup = reliability.NewRemoteBackupService(
				s3, container.BackupService, cfg.Backup.RetentionDays, log)
			log.Info().Str("bucket", cfg.Backup.S3Bucket).Msg("Remote backup mirror configured")
		}
	}

	container.Retention = reliability.NewRetentionService(reliability.RetentionRepos{
		Timetable:  container.Gateway.Timetable,
		Violations: container.Gateway.Violations,
		Alerts:     container.Gateway.Alerts,
		Queues:     container.Gateway.Queue,
		Jobs:       container.Gateway.JobHistory,
		Monitoring: container.Gateway.Monitoring,
		Results:    container.Gateway.Results,
	}, []*database.DB{container.WfmDB, container.AuditDB, container.CacheDB},
		reliability.DefaultRetention(), log)

	log.Info().Msg("Services initialized")
	return nil
}
