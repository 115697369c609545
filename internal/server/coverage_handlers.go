package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/workforcelab/intraday/internal/domain"
	"github.com/workforcelab/intraday/internal/modules/coverage"
)

// CoverageHandlers exposes coverage reports, service-level trends and the
// live monitoring sessions.
type CoverageHandlers struct {
	analyzer *coverage.Analyzer
	live     *coverage.LiveMonitor
	log      zerolog.Logger
}

// NewCoverageHandlers creates coverage endpoints.
func NewCoverageHandlers(analyzer *coverage.Analyzer, live *coverage.LiveMonitor, log zerolog.Logger) *CoverageHandlers {
	return &CoverageHandlers{
		analyzer: analyzer,
		live:     live,
		log:      log.With().Str("component", "coverage_handlers").Logger(),
	}
}

// RegisterRoutes mounts the coverage routes.
func (h *CoverageHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/coverage", func(r chi.Router) {
		r.Route("/live", func(r chi.Router) {
			r.Get("/", h.HandleWatched)
			r.Post("/{serviceID}", h.HandleStartLive)
			r.Delete("/{serviceID}", h.HandleStopLive)
		})
		r.Get("/{serviceID}", h.HandleReport)
		r.Get("/{serviceID}/trend", h.HandleTrend)
	})
}

// HandleReport handles GET /api/coverage/{serviceID}?start=...&end=...
func (h *CoverageHandlers) HandleReport(w http.ResponseWriter, r *http.Request) {
	serviceID := chi.URLParam(r, "serviceID")
	dr, err := queryRange(r)
	if err != nil {
		writeError(h.log, w, err)
		return
	}

	report, err := h.analyzer.Analyze(r.Context(), serviceID, dr)
	if err != nil {
		writeError(h.log, w, err)
		return
	}

	writeJSON(h.log, w, http.StatusOK, report)
}

// HandleTrend handles GET /api/coverage/{serviceID}/trend. A service with too
// little queue history rejects with a validation error rather than a guess.
func (h *CoverageHandlers) HandleTrend(w http.ResponseWriter, r *http.Request) {
	serviceID := chi.URLParam(r, "serviceID")

	trend, err := h.analyzer.ServiceLevelTrend(r.Context(), serviceID)
	if err != nil {
		if errors.Is(err, coverage.ErrNoHistory) {
			h.log.Debug().Str("service_id", serviceID).Msg("Trend requested without enough history")
		}
		writeError(h.log, w, err)
		return
	}

	writeJSON(h.log, w, http.StatusOK, trend)
}

// HandleStartLive handles POST /api/coverage/live/{serviceID}.
func (h *CoverageHandlers) HandleStartLive(w http.ResponseWriter, r *http.Request) {
	serviceID := chi.URLParam(r, "serviceID")
	if serviceID == "" {
		writeError(h.log, w, fmt.Errorf("%w: service id is required", domain.ErrValidation))
		return
	}

	sessionID, err := h.live.StartService(r.Context(), serviceID)
	if err != nil {
		writeError(h.log, w, err)
		return
	}

	writeJSON(h.log, w, http.StatusCreated, map[string]any{
		"session_id": sessionID,
		"service_id": serviceID,
		"status":     "monitoring",
	})
}

// HandleStopLive handles DELETE /api/coverage/live/{serviceID}.
func (h *CoverageHandlers) HandleStopLive(w http.ResponseWriter, r *http.Request) {
	serviceID := chi.URLParam(r, "serviceID")

	if err := h.live.StopService(r.Context(), serviceID); err != nil {
		writeError(h.log, w, err)
		return
	}

	writeJSON(h.log, w, http.StatusOK, map[string]any{
		"service_id": serviceID,
		"status":     "stopped",
	})
}

// HandleWatched handles GET /api/coverage/live.
func (h *CoverageHandlers) HandleWatched(w http.ResponseWriter, r *http.Request) {
	watched := h.live.Watched()
	writeJSON(h.log, w, http.StatusOK, map[string]any{
		"services": watched,
		"count":    len(watched),
	})
}
