// Package server provides the HTTP surface of the intraday core: module
// endpoints, the system status API, and the websocket event stream.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/workforcelab/intraday/internal/config"
	"github.com/workforcelab/intraday/internal/di"
	settingshandlers "github.com/workforcelab/intraday/internal/modules/settings/handlers"
)

// Config holds server configuration.
type Config struct {
	Log       zerolog.Logger
	Config    *config.Config
	Port      int
	DevMode   bool
	Container *di.Container
}

// Server is the HTTP server. All handlers draw their services from the DI
// container; the server owns no domain state of its own.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	log       zerolog.Logger
	cfg       *config.Config
	container *di.Container
	system    *SystemHandlers
}

// New creates the HTTP server and mounts every route.
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		cfg:       cfg.Config,
		container: cfg.Container,
	}

	s.system = NewSystemHandlers(cfg.Log, cfg.Config.DataDir, cfg.Container)

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	// Health check
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// The event stream lives outside the request timeout: connections
		// stay open until the client hangs up.
		r.Group(func(r chi.Router) {
			stream := NewEventsStreamHandler(s.container.EventBus, s.log)
			r.Get("/events/stream", stream.ServeHTTP)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			// Compliance engine
			complianceHandlers := NewComplianceHandlers(s.container.Compliance, s.log)
			complianceHandlers.RegisterRoutes(r)

			// Bulk validation runs
			validationHandlers := NewValidationHandlers(s.container.BulkValidator, s.log)
			validationHandlers.RegisterRoutes(r)

			// Timetable planning and manual adjustments
			timetableHandlers := NewTimetableHandlers(s.container.Planner, s.container.Gateway, s.log)
			timetableHandlers.RegisterRoutes(r)

			// Multi-skill assignment
			optimizerHandlers := NewOptimizerHandlers(s.container.Optimizer, s.log)
			optimizerHandlers.RegisterRoutes(r)

			// Coverage reports and live monitoring sessions
			coverageHandlers := NewCoverageHandlers(s.container.CoverageAnalyzer, s.container.CoverageLive, s.log)
			coverageHandlers.RegisterRoutes(r)

			// Violations, alerts, thresholds, monitor counters
			alertHandlers := NewAlertHandlers(s.container.Gateway, s.container.Monitor, s.log)
			alertHandlers.RegisterRoutes(r)

			// Rule catalog
			ruleHandlers := NewRuleHandlers(s.container.RulesCatalog, s.log)
			ruleHandlers.RegisterRoutes(r)

			// Settings module
			settingsHandler := settingshandlers.NewHandler(s.container.SettingsService, s.container.EventBus, s.log)
			r.Mount("/settings", settingsHandler.Routes())

			// Work processor management
			s.container.Work.Handlers.RegisterRoutes(r)

			// System monitoring and operations
			r.Route("/system", func(r chi.Router) {
				r.Get("/status", s.system.HandleSystemStatus)
				r.Get("/jobs", s.system.HandleJobsStatus)
				r.Get("/database/stats", s.system.HandleDatabaseStats)
				r.Get("/disk", s.system.HandleDiskUsage)
				r.Post("/backup", s.system.HandleTriggerBackup)
			})
		})
	})
}

// handleHealth reports process liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(s.log, w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "intraday",
		"uptime":  time.Since(s.system.startupTime).Round(time.Second).String(),
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
