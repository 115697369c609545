package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/workforcelab/intraday/internal/config"
	"github.com/workforcelab/intraday/internal/database"
)

// InitializeDatabases opens the three databases and applies their schemas.
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// wfm.db - scheduling state (employees, shifts, blocks, forecasts,
	// thresholds, settings)
	wfmDB, err := database.New(database.Config{
		Path:    cfg.DataDir + "/wfm.db",
		Profile: database.ProfileStandard,
		Name:    "wfm",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize wfm database: %w", err)
	}
	container.WfmDB = wfmDB

	// audit.db - append-heavy compliance trail (violations, alerts,
	// monitoring events, block changes)
	auditDB, err := database.New(database.Config{
		Path:    cfg.DataDir + "/audit.db",
		Profile: database.ProfileLedger,
		Name:    "audit",
	})
	if err != nil {
		wfmDB.Close()
		return nil, fmt.Errorf("failed to initialize audit database: %w", err)
	}
	container.AuditDB = auditDB

	// cache.db - rebuildable tier (queue snapshots, cached verdicts, job
	// history)
	cacheDB, err := database.New(database.Config{
		Path:    cfg.DataDir + "/cache.db",
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		wfmDB.Close()
		auditDB.Close()
		return nil, fmt.Errorf("failed to initialize cache database: %w", err)
	}
	container.CacheDB = cacheDB

	for _, db := range []*database.DB{wfmDB, auditDB, cacheDB} {
		if err := db.Migrate(); err != nil {
			container.CloseDatabases()
			return nil, fmt.Errorf("failed to apply schema to %s: %w", db.Name(), err)
		}
	}

	log.Info().Msg("All databases initialized and schemas applied")

	return container, nil
}
