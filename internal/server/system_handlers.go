package server

import (
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/workforcelab/intraday/internal/database"
	"github.com/workforcelab/intraday/internal/di"
	"github.com/workforcelab/intraday/internal/gateway"
	"github.com/workforcelab/intraday/internal/modules/monitor"
)

// SystemHandlers serves the operational endpoints: process health, job
// history, database statistics, disk usage and the manual backup trigger.
type SystemHandlers struct {
	log         zerolog.Logger
	dataDir     string
	container   *di.Container
	startupTime time.Time
}

// NewSystemHandlers creates system endpoints over the wired container.
func NewSystemHandlers(log zerolog.Logger, dataDir string, container *di.Container) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("component", "system_handlers").Logger(),
		dataDir:     dataDir,
		container:   container,
		startupTime: time.Now(),
	}
}

// SystemStatusResponse summarizes process and scheduling health in one call.
type SystemStatusResponse struct {
	Status          string            `json:"status"`
	Uptime          string            `json:"uptime"`
	StartedAt       time.Time         `json:"started_at"`
	CPUPercent      float64           `json:"cpu_percent"`
	MemoryPercent   float64           `json:"memory_percent"`
	Goroutines      int               `json:"goroutines"`
	Databases       map[string]string `json:"databases"`
	Employees       int               `json:"employees"`
	Services        int               `json:"services"`
	RulesVersion    string            `json:"rules_version"`
	ActiveRuns      int               `json:"active_validation_runs"`
	WatchedServices []string          `json:"watched_services"`
	Monitor         monitor.Stats     `json:"monitor"`
	LastChecked     time.Time         `json:"last_checked"`
}

// HandleSystemStatus handles GET /api/system/status.
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cpuPct, memPct := h.getSystemStats()

	status := "healthy"
	databases := make(map[string]string, 3)
	for _, db := range []*database.DB{h.container.WfmDB, h.container.AuditDB, h.container.CacheDB} {
		if db == nil {
			continue
		}
		if err := db.HealthCheck(ctx); err != nil {
			databases[db.Name()] = err.Error()
			status = "degraded"
		} else {
			databases[db.Name()] = "ok"
		}
	}

	var employees, services int
	if err := h.container.WfmDB.Conn().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM employees WHERE active = 1").Scan(&employees); err != nil {
		h.log.Warn().Err(err).Msg("Failed to count employees")
	}
	if err := h.container.WfmDB.Conn().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM services WHERE active = 1").Scan(&services); err != nil {
		h.log.Warn().Err(err).Msg("Failed to count services")
	}

	watched := h.container.CoverageLive.Watched()

	writeJSON(h.log, w, http.StatusOK, SystemStatusResponse{
		Status:          status,
		Uptime:          time.Since(h.startupTime).Round(time.Second).String(),
		StartedAt:       h.startupTime,
		CPUPercent:      cpuPct,
		MemoryPercent:   memPct,
		Goroutines:      runtime.NumGoroutine(),
		Databases:       databases,
		Employees:       employees,
		Services:        services,
		RulesVersion:    h.container.RulesCatalog.Matrix().Version(),
		ActiveRuns:      len(h.container.BulkValidator.Active()),
		WatchedServices: watched,
		Monitor:         h.container.Monitor.Stats(),
		LastChecked:     time.Now().UTC(),
	})
}

// JobsStatusResponse lists cron entries, registered work types and the most
// recent recorded runs.
type JobsStatusResponse struct {
	Scheduled   []string         `json:"scheduled"`
	WorkTypes   []string         `json:"work_types"`
	History     []gateway.JobRun `json:"history"`
	LastRun     *time.Time       `json:"last_run,omitempty"`
	LastChecked time.Time        `json:"last_checked"`
}

// HandleJobsStatus handles GET /api/system/jobs.
func (h *SystemHandlers) HandleJobsStatus(w http.ResponseWriter, r *http.Request) {
	history, err := h.container.Gateway.JobHistory.Recent(r.Context(), "", queryLimit(r, 50))
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to load job history")
		history = []gateway.JobRun{}
	}
	if history == nil {
		history = []gateway.JobRun{}
	}

	var lastRun *time.Time
	if len(history) > 0 {
		lastRun = &history[0].StartedAt
	}

	writeJSON(h.log, w, http.StatusOK, JobsStatusResponse{
		Scheduled:   h.container.Scheduler.Names(),
		WorkTypes:   h.container.Work.Registry.IDs(),
		History:     history,
		LastRun:     lastRun,
		LastChecked: time.Now().UTC(),
	})
}

// DBInfo describes one database file.
type DBInfo struct {
	Name          string  `json:"name"`
	Path          string  `json:"path"`
	SizeMB        float64 `json:"size_mb"`
	WALSizeMB     float64 `json:"wal_size_mb"`
	PageCount     int64   `json:"page_count"`
	FreelistCount int64   `json:"freelist_count"`
}

// DatabaseStatsResponse covers all three databases.
type DatabaseStatsResponse struct {
	Databases   []DBInfo  `json:"databases"`
	TotalSizeMB float64   `json:"total_size_mb"`
	LastChecked time.Time `json:"last_checked"`
}

// HandleDatabaseStats handles GET /api/system/database/stats.
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	infos := make([]DBInfo, 0, 3)
	totalMB := 0.0

	for _, db := range []*database.DB{h.container.WfmDB, h.container.AuditDB, h.container.CacheDB} {
		if db == nil {
			continue
		}
		stats, err := db.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Str("database", db.Name()).Msg("Failed to collect database stats")
			continue
		}
		sizeMB := float64(stats.SizeBytes) / 1024 / 1024
		totalMB += sizeMB
		infos = append(infos, DBInfo{
			Name:          db.Name(),
			Path:          db.Path(),
			SizeMB:        sizeMB,
			WALSizeMB:     float64(stats.WALSizeBytes) / 1024 / 1024,
			PageCount:     stats.PageCount,
			FreelistCount: stats.FreelistCount,
		})
	}

	writeJSON(h.log, w, http.StatusOK, DatabaseStatsResponse{
		Databases:   infos,
		TotalSizeMB: totalMB,
		LastChecked: time.Now().UTC(),
	})
}

// DiskUsageResponse breaks the data directory down by purpose.
type DiskUsageResponse struct {
	DataDirMB float64 `json:"data_dir_mb"`
	BackupsMB float64 `json:"backups_mb"`
	TotalMB   float64 `json:"total_mb"`
}

// HandleDiskUsage handles GET /api/system/disk.
func (h *SystemHandlers) HandleDiskUsage(w http.ResponseWriter, r *http.Request) {
	dataDirMB := h.getDirSize(h.dataDir)
	backupsMB := h.getDirSize(filepath.Join(h.dataDir, "backups"))

	writeJSON(h.log, w, http.StatusOK, DiskUsageResponse{
		DataDirMB: dataDirMB,
		BackupsMB: backupsMB,
		TotalMB:   dataDirMB,
	})
}

// HandleTriggerBackup handles POST /api/system/backup: run the local backup
// now, outside the daily cadence. The upload to remote storage, when
// configured, follows through its normal dependency.
func (h *SystemHandlers) HandleTriggerBackup(w http.ResponseWriter, r *http.Request) {
	if err := h.container.Work.Processor.ExecuteNow("backup:daily", ""); err != nil {
		writeError(h.log, w, err)
		return
	}

	set, ok := h.container.BackupService.LatestSet()
	resp := map[string]any{"status": "completed"}
	if ok {
		resp["backup_set"] = set
	}
	writeJSON(h.log, w, http.StatusOK, resp)
}

// getDirSize walks a directory and returns its total size in MB. Unreadable
// entries are skipped.
func (h *SystemHandlers) getDirSize(dirPath string) float64 {
	var totalSize int64
	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})
	if err != nil {
		h.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}
	return float64(totalSize) / 1024 / 1024
}

// getSystemStats samples CPU and RAM usage. The CPU sample window is 100ms so
// the status endpoint stays fast.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}
	return cpuAvg, memStat.UsedPercent
}
