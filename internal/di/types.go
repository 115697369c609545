// Package di wires the compute core together: databases, the repository
// gateway, the domain services and the background work engine, in that
// order. Wire() is the single entry point; the Container it returns is the
// source of truth for every service instance the server and CLI touch.
package di

import (
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
	"github.com/workforcelab/intraday/internal/scheduler"
	"github.com/workforcelab/intraday/internal/work"
)

// Container holds every wired dependency.
type Container struct {
	// Databases. wfm.db carries scheduling state, audit.db the compliance
	// trail, cache.db the rebuildable tier.
	WfmDB   *database.DB
	AuditDB *database.DB
	CacheDB *database.DB

	// Data access.
	Gateway      *gateway.Gateway
	SettingsRepo *settings.Repository

	// Services.
	SettingsService  *settings.Service
	EventBus         *events.Bus
	RulesCatalog     *rules.Catalog
	ComplianceCache  *compliance.ResultCache
	Compliance       *compliance.Service
	BulkValidator    *bulkvalidation.Service
	Planner          *timetable.Planner
	Optimizer        *optimizer.Service
	CoverageAnalyzer *coverage.Analyzer
	CoverageLive     *coverage.LiveMonitor
	Monitor          *monitor.Monitor
	BackupService    *reliability.BackupService
	RemoteBackup     *reliability.RemoteBackupService // nil unless configured
	Retention        *reliability.RetentionService

	// Background execution.
	Work      *WorkComponents
	Scheduler *scheduler.Scheduler
}

// WorkComponents holds the work engine parts the server and tests reach.
type WorkComponents struct {
	Registry   *work.Registry
	Completion *work.CompletionTracker
	State      *work.SystemState
	Timing     *work.TimingChecker
	Processor  *work.Processor
	Handlers   *work.Handlers
}

// CloseDatabases closes whichever databases opened. Safe on a partially
// wired container.
func (c *Container) CloseDatabases() {
	if c.WfmDB != nil {
		c.WfmDB.Close()
	}
	if c.AuditDB != nil {
		c.AuditDB.Close()
	}
	if c.CacheDB != nil {
		c.CacheDB.Close()
	}
}
