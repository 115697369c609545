// Package main is the entry point for the intraday workforce scheduling
// core. The serve command runs the long-lived daemon: HTTP API, compliance
// monitor, work processor and cron schedule. The validate, plan and backup
// commands are one-shots over the same wiring, for operators and cron.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/workforcelab/intraday/internal/config"
	"github.com/workforcelab/intraday/internal/di"
	"github.com/workforcelab/intraday/internal/domain"
	"github.com/workforcelab/intraday/internal/modules/bulkvalidation"
	"github.com/workforcelab/intraday/internal/modules/timetable"
	"github.com/workforcelab/intraday/internal/server"
	"github.com/workforcelab/intraday/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "wfmd",
		Short:         "Intraday workforce scheduling core",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newServeCmd(),
		newValidateCmd(),
		newPlanCmd(),
		newBackupCmd(),
	)

	return root
}

// boot loads configuration and wires the full container. Every command goes
// through here so one-shots see exactly what the daemon sees.
func boot() (*config.Config, zerolog.Logger, *di.Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("loading configuration: %w", err)
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	container, err := di.Wire(cfg, log)
	if err != nil {
		return nil, log, nil, fmt.Errorf("wiring dependencies: %w", err)
	}

	return cfg, log, container, nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduling daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, log, container, err := boot()
	if err != nil {
		return err
	}
	defer container.CloseDatabases()

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting intraday core")

	// Rule catalog watches its file and refreshes on TTL from here on; the
	// initial load already happened during wiring.
	container.RulesCatalog.Start()
	defer container.RulesCatalog.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := container.Monitor.Start(ctx); err != nil {
		return fmt.Errorf("starting compliance monitor: %w", err)
	}

	go container.Work.Processor.Run()
	container.Scheduler.Start()

	srv := server.New(server.Config{
		Log:       log,
		Config:    cfg,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
		Container: container,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	// Stop taking requests first, then drain the background machinery in
	// reverse start order. The monitor flushes its alert queue in Stop.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	container.CoverageLive.StopAll(shutdownCtx)
	container.Monitor.Stop(shutdownCtx)
	container.Scheduler.Stop()
	container.Work.Processor.Stop()
	cancel()

	log.Info().Msg("Stopped")
	return nil
}

func newValidateCmd() *cobra.Command {
	var departmentID, startStr, endStr string
	var noCache bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a department's schedule over a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, container, err := boot()
			if err != nil {
				return err
			}
			defer container.CloseDatabases()

			dr, err := flagRange(startStr, endStr)
			if err != nil {
				return err
			}

			report, err := container.BulkValidator.ValidateDepartment(
				cmd.Context(), departmentID, dr,
				bulkvalidation.Options{UseCache: !noCache},
			)
			if err != nil {
				return err
			}
			return printJSON(report)
		},
	}

	cmd.Flags().StringVar(&departmentID, "department", "", "Department ID to validate")
	cmd.Flags().StringVar(&startStr, "start", "", "Range start, YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&endStr, "end", "", "Range end, exclusive, YYYY-MM-DD (default start+7d)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Skip the compliance result cache")
	_ = cmd.MarkFlagRequired("department")

	return cmd
}

func newPlanCmd() *cobra.Command {
	var employeeIDs []string
	var startStr, endStr, templateCode, serviceID string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Build timetables for employees over a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, container, err := boot()
			if err != nil {
				return err
			}
			defer container.CloseDatabases()

			dr, err := flagRange(startStr, endStr)
			if err != nil {
				return err
			}

			result, err := container.Planner.PlanRange(cmd.Context(), timetable.PlanRequest{
				EmployeeIDs:  employeeIDs,
				Range:        dr,
				TemplateCode: templateCode,
				ServiceID:    serviceID,
				DryRun:       dryRun,
			})
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}

	cmd.Flags().StringSliceVar(&employeeIDs, "employees", nil, "Employee IDs to plan")
	cmd.Flags().StringVar(&startStr, "start", "", "Range start, YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&endStr, "end", "", "Range end, exclusive, YYYY-MM-DD (default start+7d)")
	cmd.Flags().StringVar(&templateCode, "template", "", "Day template code (default per shift length)")
	cmd.Flags().StringVar(&serviceID, "service", "", "Service whose forecast drives break rebalancing")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Build without persisting")
	_ = cmd.MarkFlagRequired("employees")

	return cmd
}

func newBackupCmd() *cobra.Command {
	var upload bool

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot all databases now",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, log, container, err := boot()
			if err != nil {
				return err
			}
			defer container.CloseDatabases()

			if err := container.BackupService.RunDailyBackup(cmd.Context()); err != nil {
				return err
			}
			if upload {
				if container.RemoteBackup == nil {
					return fmt.Errorf("remote backup target is not configured")
				}
				if err := container.RemoteBackup.UploadBackup(cmd.Context()); err != nil {
					return err
				}
			}

			if set, ok := container.BackupService.LatestSet(); ok {
				log.Info().Str("set", set).Bool("uploaded", upload).Msg("Backup completed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&upload, "upload", false, "Mirror the backup set to remote storage")

	return cmd
}

// flagRange builds the [start, end) day range from CLI flags. Start defaults
// to today, end to a week after start.
func flagRange(startStr, endStr string) (domain.DateRange, error) {
	start := domain.Day(time.Now().UTC())
	if startStr != "" {
		t, err := time.Parse("2006-01-02", startStr)
		if err != nil {
			return domain.DateRange{}, fmt.Errorf("start must be YYYY-MM-DD: %w", err)
		}
		start = t
	}

	end := start.AddDate(0, 0, 7)
	if endStr != "" {
		t, err := time.Parse("2006-01-02", endStr)
		if err != nil {
			return domain.DateRange{}, fmt.Errorf("end must be YYYY-MM-DD: %w", err)
		}
		end = t
	}

	dr := domain.NewDateRange(start, end)
	if err := dr.Validate(); err != nil {
		return domain.DateRange{}, err
	}
	return dr, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
