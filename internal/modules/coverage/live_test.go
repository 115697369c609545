package coverage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workforcelab/intraday/internal/domain"
	"github.com/workforcelab/intraday/internal/events"
)

func newTestLiveMonitor(store *fakeStore, bus *events.Bus) *LiveMonitor {
	analyzer := NewAnalyzer(Config{}, store, zerolog.Nop())
	return NewLiveMonitor(Config{LivePeriod: time.Hour}, analyzer, store, bus, zerolog.Nop())
}

func newTickSession(serviceID string) *liveSession {
	return &liveSession{
		id:        "session-test",
		serviceID: serviceID,
		stop:      make(chan struct{}),
		stopped:   make(chan struct{}),
		breaker:   newQueueBreaker(serviceID, time.Hour),
	}
}

func TestStartServiceValidatesTarget(t *testing.T) {
	store := newFakeStore()
	lm := newTestLiveMonitor(store, nil)

	_, err := lm.StartService(context.Background(), "svc-ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = lm.StartService(context.Background(), "svc-idle")
	assert.ErrorIs(t, err, domain.ErrCapacity, "inactive services cannot be monitored")
}

func TestStartServiceRejectsDoubleWatch(t *testing.T) {
	store := newFakeStore()
	lm := newTestLiveMonitor(store, nil)

	_, err := lm.StartService(context.Background(), "svc-voice")
	require.NoError(t, err)
	defer lm.StopAll(context.Background())

	_, err = lm.StartService(context.Background(), "svc-voice")
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestLifecycleSealsSessionWithEventCount(t *testing.T) {
	store := newFakeStore()
	seedCurrentInterval(store, 10, 8)
	store.eventCh = make(chan domain.MonitoringEvent, 8)
	bus := events.NewBus(zerolog.Nop())

	var lifecycle []events.EventType
	bus.Subscribe(events.MonitoringStarted, func(e *events.Event) { lifecycle = append(lifecycle, e.Type) })
	bus.Subscribe(events.MonitoringStopped, func(e *events.Event) { lifecycle = append(lifecycle, e.Type) })

	lm := newTestLiveMonitor(store, bus)
	sessionID, err := lm.StartService(context.Background(), "svc-voice")
	require.NoError(t, err)
	assert.Equal(t, []string{"svc-voice"}, lm.Watched())

	// The loop ticks immediately; wait for its first recorded event.
	select {
	case e := <-store.eventCh:
		assert.Equal(t, "coverage_tick", e.Kind)
		assert.Equal(t, sessionID, e.SessionID)
	case <-time.After(2 * time.Second):
		t.Fatal("no tick recorded")
	}

	require.NoError(t, lm.StopService(context.Background(), "svc-voice"))
	assert.Empty(t, lm.Watched())

	store.mu.Lock()
	sealed, ok := store.sealed[sessionID]
	session := store.sessions[sessionID]
	store.mu.Unlock()
	require.True(t, ok, "session must be sealed on stop")
	assert.GreaterOrEqual(t, sealed, 1)
	assert.Equal(t, "svc-voice", session.ServiceID)
	assert.Equal(t, []events.EventType{events.MonitoringStarted, events.MonitoringStopped}, lifecycle)
}

func TestStopServiceUnknownIsNotFound(t *testing.T) {
	lm := newTestLiveMonitor(newFakeStore(), nil)
	err := lm.StopService(context.Background(), "svc-voice")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTickEmitsCoverageAndThresholdEvents(t *testing.T) {
	store := newFakeStore()
	seedCurrentInterval(store, 10, 8)
	store.snapshot = &domain.QueueSnapshot{
		ServiceID:       "svc-voice",
		Timestamp:       time.Now().UTC(),
		AgentsAvailable: 2,
		AgentsBusy:      4,
		ServiceLevel:    58, // under the stock critical line of 65
		CallsWaiting:    12,
	}
	bus := events.NewBus(zerolog.Nop())
	var ticks []*events.CoverageTickData
	var breaches []*events.ThresholdBreachedData
	bus.Subscribe(events.CoverageTick, func(e *events.Event) {
		ticks = append(ticks, e.Data.(*events.CoverageTickData))
	})
	bus.Subscribe(events.ThresholdBreached, func(e *events.Event) {
		breaches = append(breaches, e.Data.(*events.ThresholdBreachedData))
	})

	lm := newTestLiveMonitor(store, bus)
	s := newTickSession("svc-voice")
	require.NoError(t, lm.tick(context.Background(), s))

	require.Len(t, ticks, 1, "exactly one coverage tick per cycle")
	assert.Equal(t, "svc-voice", ticks[0].ServiceID)
	assert.Equal(t, 6, ticks[0].AgentsLive)
	assert.InDelta(t, 60.0, ticks[0].CoveragePct, 1e-9)
	assert.Equal(t, string(domain.CoverageShortage), ticks[0].Status)

	require.Len(t, breaches, 1)
	assert.Equal(t, domain.MetricServiceLevel, breaches[0].Metric)
	assert.InDelta(t, 58.0, breaches[0].Value, 1e-9)
	assert.Equal(t, "critical", breaches[0].Level)
	assert.Equal(t, string(domain.SeverityHigh), breaches[0].Severity)

	assert.Contains(t, store.recordedKinds(), "coverage_tick")
	assert.Contains(t, store.recordedKinds(), "threshold_breached")
	assert.Equal(t, 1, s.events, "only the tick counts toward the session")
}

func TestTickWithoutSnapshotStillTicks(t *testing.T) {
	store := newFakeStore()
	seedCurrentInterval(store, 10, 9)

	lm := newTestLiveMonitor(store, nil)
	s := newTickSession("svc-voice")
	require.NoError(t, lm.tick(context.Background(), s))

	kinds := store.recordedKinds()
	assert.Equal(t, []string{"coverage_tick"}, kinds, "no snapshot means no threshold checks")
	assert.Equal(t, 1, s.events)
}

func TestTickIncludesBreachPredictionWhenTrendFalls(t *testing.T) {
	store := newFakeStore()
	seedCurrentInterval(store, 10, 10)
	store.snapshot = &domain.QueueSnapshot{
		ServiceID:    "svc-voice",
		Timestamp:    time.Now().UTC(),
		ServiceLevel: 72,
	}
	seedHistory(store, "svc-voice", 80, 78, 76, 74, 72)

	lm := newTestLiveMonitor(store, nil)
	require.NoError(t, lm.tick(context.Background(), newTickSession("svc-voice")))

	store.mu.Lock()
	defer store.mu.Unlock()
	var tick *domain.MonitoringEvent
	for i := range store.events {
		if store.events[i].Kind == "coverage_tick" {
			tick = &store.events[i]
			break
		}
	}
	require.NotNil(t, tick)
	require.Contains(t, tick.Payload, "breach_in_sec")
	assert.InDelta(t, 210.0, tick.Payload["breach_in_sec"].(float64), 60.0)
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	store := newFakeStore()
	seedCurrentInterval(store, 10, 9)
	store.snapErr = fmt.Errorf("%w: telemetry feed down", domain.ErrUpstream)

	lm := newTestLiveMonitor(store, nil)
	s := newTickSession("svc-voice")

	for i := 0; i < 3; i++ {
		err := lm.tick(context.Background(), s)
		require.Error(t, err, "tick %d", i)
	}

	// The circuit is open now: the store is no longer consulted.
	store.mu.Lock()
	store.snapErr = fmt.Errorf("should not be reached")
	store.mu.Unlock()
	err := lm.tick(context.Background(), s)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstream)
	assert.Contains(t, err.Error(), "circuit open")

	assert.Empty(t, store.recordedKinds(), "failed ticks record nothing")
}
