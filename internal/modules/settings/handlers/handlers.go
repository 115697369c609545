// Package handlers exposes the settings HTTP endpoints.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/workforcelab/intraday/internal/domain"
	"github.com/workforcelab/intraday/internal/events"
	"github.com/workforcelab/intraday/internal/modules/settings"
)

// Handler serves the settings endpoints.
type Handler struct {
	service *settings.Service
	bus     *events.Bus
	log     zerolog.Logger
}

// NewHandler creates a settings handler. bus may be nil.
func NewHandler(service *settings.Service, bus *events.Bus, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		bus:     bus,
		log:     log.With().Str("handler", "settings").Logger(),
	}
}

// Routes mounts the settings endpoints on a fresh router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.HandleGetAll)
	r.Get("/{key}", h.HandleGet)
	r.Put("/{key}", h.HandleUpdate)
	r.Delete("/{key}", h.HandleReset)
	return r
}

// HandleGetAll handles GET /api/settings.
func (h *Handler) HandleGetAll(w http.ResponseWriter, r *http.Request) {
	all, err := h.service.GetAll()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get all settings")
		http.Error(w, "Failed to get settings", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(all); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode settings response")
	}
}

// HandleGet handles GET /api/settings/{key}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	value, err := h.service.Get(key)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{key: value})
}

// HandleUpdate handles PUT /api/settings/{key}.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var update settings.SettingUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.service.Set(key, update.Value); err != nil {
		h.log.Error().
			Err(err).
			Str("key", key).
			Interface("value", update.Value).
			Msg("Failed to update setting")
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	if h.bus != nil {
		h.bus.Emit("settings", &events.SettingsChangedData{
			Key:   key,
			Value: update.Value,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{key: update.Value})
}

// HandleReset handles DELETE /api/settings/{key}, reverting the option to
// its default.
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	if err := h.service.Reset(key); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	if h.bus != nil {
		h.bus.Emit("settings", &events.SettingsChangedData{
			Key:   key,
			Value: settings.SettingDefaults[key],
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{key: settings.SettingDefaults[key]})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
