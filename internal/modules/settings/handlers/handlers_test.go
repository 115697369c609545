package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workforcelab/intraday/internal/events"
	"github.com/workforcelab/intraday/internal/modules/settings"
	wfmtest "github.com/workforcelab/intraday/internal/testing"
)

func newTestHandler(t *testing.T) (*Handler, *events.Bus) {
	t.Helper()
	db, cleanup := wfmtest.NewTestDB(t, "wfm")
	t.Cleanup(cleanup)

	repo := settings.NewRepository(db.Conn(), zerolog.Nop())
	svc := settings.NewService(repo, zerolog.Nop())
	bus := events.NewBus(zerolog.Nop())
	return NewHandler(svc, bus, zerolog.Nop()), bus
}

func serve(h *Handler, method, target, body string) *httptest.ResponseRecorder {
	var rd *strings.Reader
	if body == "" {
		rd = strings.NewReader("")
	} else {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, req)
	return w
}

func TestGetAllMergesDefaults(t *testing.T) {
	h, _ := newTestHandler(t)

	w := serve(h, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, w.Code)

	var all map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&all))
	assert.Equal(t, 12.0, all["shift.max_hours"])
	assert.Equal(t, "daily", all["backup.schedule"])
}

func TestGetUnknownKey(t *testing.T) {
	h, _ := newTestHandler(t)

	w := serve(h, http.MethodGet, "/no.such_option", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateSettingEmitsEvent(t *testing.T) {
	h, bus := newTestHandler(t)

	var changed []*events.Event
	bus.Subscribe(events.SettingsChanged, func(e *events.Event) {
		changed = append(changed, e)
	})

	w := serve(h, http.MethodPut, "/shift.max_hours", `{"value": 10}`)
	require.Equal(t, http.StatusOK, w.Code)

	got := serve(h, http.MethodGet, "/shift.max_hours", "")
	require.Equal(t, http.StatusOK, got.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(got.Body).Decode(&body))
	assert.Equal(t, 10.0, body["shift.max_hours"])

	require.Len(t, changed, 1)
	data, ok := changed[0].Data.(*events.SettingsChangedData)
	require.True(t, ok)
	assert.Equal(t, "shift.max_hours", data.Key)
}

func TestUpdateValidatesValue(t *testing.T) {
	h, _ := newTestHandler(t)

	t.Run("bad clock string", func(t *testing.T) {
		w := serve(h, http.MethodPut, "/lunch.earliest_start", `{"value": "25:99"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("bad backup schedule", func(t *testing.T) {
		w := serve(h, http.MethodPut, "/backup.schedule", `{"value": "hourly"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown key", func(t *testing.T) {
		w := serve(h, http.MethodPut, "/no.such_option", `{"value": 1}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		w := serve(h, http.MethodPut, "/shift.max_hours", `{"value"`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestResetRestoresDefault(t *testing.T) {
	h, _ := newTestHandler(t)

	require.Equal(t, http.StatusOK, serve(h, http.MethodPut, "/shift.max_hours", `{"value": 10}`).Code)

	w := serve(h, http.MethodDelete, "/shift.max_hours", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, 12.0, body["shift.max_hours"])

	got := serve(h, http.MethodGet, "/shift.max_hours", "")
	require.Equal(t, http.StatusOK, got.Code)
	var after map[string]any
	require.NoError(t, json.NewDecoder(got.Body).Decode(&after))
	assert.Equal(t, 12.0, after["shift.max_hours"])
}
