package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/workforcelab/intraday/internal/config"
	"github.com/workforcelab/intraday/internal/di"
	"github.com/workforcelab/intraday/internal/domain"
	"github.com/workforcelab/intraday/internal/events"
	"github.com/workforcelab/intraday/internal/modules/monitor"
)

func newTestServer(t *testing.T) (*Server, *di.Container) {
	t.Helper()

	cfg := &config.Config{
		DataDir: t.TempDir(),
		Port:    8080,
		Backup: &config.BackupConfig{
			Schedule:      "daily",
			RetentionDays: 30,
			S3Region:      "auto",
		},
	}

	container, err := di.Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(container.CloseDatabases)

	srv := New(Config{
		Log:       zerolog.Nop(),
		Config:    cfg,
		Port:      cfg.Port,
		Container: container,
	})
	return srv, container
}

func doRequest(t *testing.T, srv *Server, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(w.Body).Decode(v))
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doRequest(t, srv, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	decodeBody(t, w, &body)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "intraday", body["service"])
}

func TestListRules(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doRequest(t, srv, http.MethodGet, "/api/rules", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body ruleSetResponse
	decodeBody(t, w, &body)
	assert.NotEmpty(t, body.Version)
	assert.Len(t, body.Fingerprint, 16)
	assert.NotEmpty(t, body.Rules)
	assert.False(t, body.LoadedAt.IsZero())
}

func TestRuleLimits(t *testing.T) {
	srv, _ := newTestServer(t)

	t.Run("adult limits", func(t *testing.T) {
		w := doRequest(t, srv, http.MethodGet, "/api/rules/limits/adult", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var body limitsResponse
		decodeBody(t, w, &body)
		assert.Equal(t, domain.AgeAdult, body.Category)
		assert.Greater(t, body.DailyMaxHours, 0.0)
		assert.Greater(t, body.WeeklyMaxHours, body.DailyMaxHours)
	})

	t.Run("minor limits are tighter", func(t *testing.T) {
		adult := doRequest(t, srv, http.MethodGet, "/api/rules/limits/adult", nil)
		minor := doRequest(t, srv, http.MethodGet, "/api/rules/limits/minor", nil)
		require.Equal(t, http.StatusOK, adult.Code)
		require.Equal(t, http.StatusOK, minor.Code)

		var a, m limitsResponse
		decodeBody(t, adult, &a)
		decodeBody(t, minor, &m)
		assert.LessOrEqual(t, m.DailyMaxHours, a.DailyMaxHours)
	})

	t.Run("unknown category rejected", func(t *testing.T) {
		w := doRequest(t, srv, http.MethodGet, "/api/rules/limits/teen", nil)
		require.Equal(t, http.StatusBadRequest, w.Code)

		var body errorBody
		decodeBody(t, w, &body)
		assert.Equal(t, "validation_error", body.Kind)
	})
}

func TestThresholdEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	t.Run("upsert then read back", func(t *testing.T) {
		put := doRequest(t, srv, http.MethodPut, "/api/thresholds", map[string]any{
			"service_id": "billing",
			"metric":     "service_level",
			"warning":    75.0,
			"critical":   60.0,
			"emergency":  45.0,
			"direction":  "below",
			"auto_alert": true,
		})
		require.Equal(t, http.StatusOK, put.Code)

		get := doRequest(t, srv, http.MethodGet, "/api/thresholds/billing", nil)
		require.Equal(t, http.StatusOK, get.Code)

		var body struct {
			ServiceID  string                   `json:"service_id"`
			Thresholds []domain.ThresholdConfig `json:"thresholds"`
		}
		decodeBody(t, get, &body)
		require.Len(t, body.Thresholds, 1)
		assert.Equal(t, "billing", body.Thresholds[0].ServiceID)
		assert.Equal(t, 75.0, body.Thresholds[0].Warning)
		assert.Equal(t, domain.DirectionBelow, body.Thresholds[0].Direction)
	})

	t.Run("unknown service falls back to defaults", func(t *testing.T) {
		w := doRequest(t, srv, http.MethodGet, "/api/thresholds/ghost", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			Thresholds []domain.ThresholdConfig `json:"thresholds"`
		}
		decodeBody(t, w, &body)
		require.Len(t, body.Thresholds, 1)
		assert.Equal(t, "ghost", body.Thresholds[0].ServiceID)
		assert.Equal(t, domain.MetricServiceLevel, body.Thresholds[0].Metric)
	})

	t.Run("bad direction rejected", func(t *testing.T) {
		w := doRequest(t, srv, http.MethodPut, "/api/thresholds", map[string]any{
			"service_id": "billing",
			"metric":     "service_level",
			"warning":    75.0,
			"critical":   60.0,
			"emergency":  45.0,
			"direction":  "sideways",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("inverted levels rejected", func(t *testing.T) {
		w := doRequest(t, srv, http.MethodPut, "/api/thresholds", map[string]any{
			"service_id": "billing",
			"metric":     "service_level",
			"warning":    45.0,
			"critical":   60.0,
			"emergency":  75.0,
			"direction":  "below",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAcknowledgeUnknownAlert(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doRequest(t, srv, http.MethodPost, "/api/alerts/a-missing/acknowledge", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	var body errorBody
	decodeBody(t, w, &body)
	assert.Equal(t, "not_found", body.Kind)
}

func TestRecentViolationsEmpty(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doRequest(t, srv, http.MethodGet, "/api/violations", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Violations []domain.Violation `json:"violations"`
		Count      int                `json:"count"`
	}
	decodeBody(t, w, &body)
	assert.Equal(t, 0, body.Count)
	assert.NotNil(t, body.Violations)
}

func TestCoverageLiveSessions(t *testing.T) {
	srv, container := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, container.Gateway.Services.Save(ctx, domain.Service{
		ID: "billing", Name: "Billing", HourlyCost: 24, ServiceTarget: 80, Active: true,
	}))
	require.NoError(t, container.Gateway.Services.Save(ctx, domain.Service{
		ID: "night-desk", Name: "Night desk", HourlyCost: 24, ServiceTarget: 80, Active: false,
	}))

	t.Run("nothing watched initially", func(t *testing.T) {
		w := doRequest(t, srv, http.MethodGet, "/api/coverage/live", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			Count int `json:"count"`
		}
		decodeBody(t, w, &body)
		assert.Equal(t, 0, body.Count)
	})

	t.Run("unknown service rejected", func(t *testing.T) {
		w := doRequest(t, srv, http.MethodPost, "/api/coverage/live/ghost", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("inactive service rejected", func(t *testing.T) {
		w := doRequest(t, srv, http.MethodPost, "/api/coverage/live/night-desk", nil)
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
	})

	t.Run("start watch stop", func(t *testing.T) {
		start := doRequest(t, srv, http.MethodPost, "/api/coverage/live/billing", nil)
		require.Equal(t, http.StatusCreated, start.Code)

		var started struct {
			SessionID string `json:"session_id"`
			Status    string `json:"status"`
		}
		decodeBody(t, start, &started)
		assert.NotEmpty(t, started.SessionID)
		assert.Equal(t, "monitoring", started.Status)

		dup := doRequest(t, srv, http.MethodPost, "/api/coverage/live/billing", nil)
		assert.Equal(t, http.StatusConflict, dup.Code)

		watched := doRequest(t, srv, http.MethodGet, "/api/coverage/live", nil)
		require.Equal(t, http.StatusOK, watched.Code)
		var list struct {
			Services []string `json:"services"`
			Count    int      `json:"count"`
		}
		decodeBody(t, watched, &list)
		assert.Equal(t, 1, list.Count)
		assert.Contains(t, list.Services, "billing")

		stop := doRequest(t, srv, http.MethodDelete, "/api/coverage/live/billing", nil)
		require.Equal(t, http.StatusOK, stop.Code)

		again := doRequest(t, srv, http.MethodDelete, "/api/coverage/live/billing", nil)
		assert.Equal(t, http.StatusNotFound, again.Code)
	})
}

func TestMonitorStats(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doRequest(t, srv, http.MethodGet, "/api/monitor/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats monitor.Stats
	decodeBody(t, w, &stats)
	assert.False(t, stats.Running)
	assert.Zero(t, stats.SweepsRun)
}

func TestSystemStatus(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doRequest(t, srv, http.MethodGet, "/api/system/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body SystemStatusResponse
	decodeBody(t, w, &body)
	assert.Equal(t, "healthy", body.Status)
	assert.Len(t, body.Databases, 3)
	for name, state := range body.Databases {
		assert.Equal(t, "ok", state, "database %s", name)
	}
	assert.NotEmpty(t, body.RulesVersion)
	assert.Greater(t, body.Goroutines, 0)
	assert.Zero(t, body.Employees)
}

func TestSystemJobs(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doRequest(t, srv, http.MethodGet, "/api/system/jobs", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body JobsStatusResponse
	decodeBody(t, w, &body)
	assert.ElementsMatch(t, []string{"work-pump", "nightly-reset", "backup-reset"}, body.Scheduled)
	assert.Contains(t, body.WorkTypes, "rules:refresh")
	assert.Contains(t, body.WorkTypes, "sweep:compliance")
	assert.Contains(t, body.WorkTypes, "coverage:refresh")
	assert.Contains(t, body.WorkTypes, "retention:cleanup")
	assert.Contains(t, body.WorkTypes, "backup:daily")
}

func TestDatabaseStats(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doRequest(t, srv, http.MethodGet, "/api/system/database/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body DatabaseStatsResponse
	decodeBody(t, w, &body)
	require.Len(t, body.Databases, 3)

	names := make([]string, 0, 3)
	for _, db := range body.Databases {
		names = append(names, db.Name)
		assert.Greater(t, db.SizeMB, 0.0)
	}
	assert.ElementsMatch(t, []string{"wfm", "audit", "cache"}, names)
}

func TestEventsStreamFiltersTypes(t *testing.T) {
	srv, container := newTestServer(t)

	ts := httptest.NewServer(srv.router)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	baseline := container.EventBus.Subscribers(events.AnyEvent)

	conn, _, err := websocket.Dial(ctx, ts.URL+"/api/events/stream?types=RulesReloaded", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	// The handler subscribes after the handshake; wait for it before
	// publishing.
	require.Eventually(t, func() bool {
		return container.EventBus.Subscribers(events.AnyEvent) > baseline
	}, 2*time.Second, 10*time.Millisecond)

	container.EventBus.Emit("timetable", &events.BlockChangedData{
		EmployeeID: "emp-001", Kind: "adjust", Blocks: 3,
	})
	container.EventBus.Emit("rules", &events.RulesReloadedData{
		Version: "v2", Rules: 12, Enabled: 12,
	})

	typ, data, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, websocket.MessageText, typ)

	var got struct {
		Type   string `json:"type"`
		Module string `json:"module"`
	}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "RulesReloaded", got.Type)
	assert.Equal(t, "rules", got.Module)
}
