package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/workforcelab/intraday/internal/config"
)

// Wire initializes all dependencies and returns a fully configured
// container. Order of operations:
// 1. Open databases and apply schemas
// 2. Build repositories
// 3. Build services
// 4. Assemble the work engine and schedule
// On any failure the databases opened so far are closed before returning.
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container, err := InitializeDatabases(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := InitializeRepositories(container, log); err != nil {
		container.CloseDatabases()
		return nil, fmt.Errorf("failed to initialize repositories: %w", err)
	}

	if err := InitializeServices(container, cfg, log); err != nil {
		container.CloseDatabases()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := InitializeWork(container, cfg, log); err != nil {
		container.CloseDatabases()
		return nil, fmt.Errorf("failed to initialize work engine: %w", err)
	}

	log.Info().Msg("Dependency injection wiring completed")

	return container, nil
}
