package coverage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/workforcelab/intraday/internal/domain"
	"github.com/workforcelab/intraday/internal/events"
)

// SessionStore persists monitoring sessions and their audit events.
type SessionStore interface {
	StartMonitoringSession(ctx context.Context, s domain.MonitoringSession) error
	StopMonitoringSession(ctx context.Context, sessionID string, stoppedAt time.Time, eventsEmitted int) error
	RecordMonitoringEvent(ctx context.Context, e domain.MonitoringEvent) error
}

// LiveMonitor runs one refresh loop per watched service. Each tick reads the
// queue snapshot through a circuit breaker, recomputes the current coverage
// interval, checks thresholds and emits exactly one coverage tick.
type LiveMonitor struct {
	cfg      Config
	analyzer *Analyzer
	sessions SessionStore
	bus      *events.Bus // optional
	log      zerolog.Logger

	mu      sync.Mutex
	watched map[string]*liveSession
}

type liveSession struct {
	id        string
	serviceID string
	breaker   *gobreaker.CircuitBreaker
	stop      chan struct{}
	stopped   chan struct{}

	mu     sync.Mutex
	events int
}

// NewLiveMonitor creates the live monitor around an analyzer.
func NewLiveMonitor(cfg Config, analyzer *Analyzer, sessions SessionStore, bus *events.Bus, log zerolog.Logger) *LiveMonitor {
	return &LiveMonitor{
		cfg:      cfg.withDefaults(),
		analyzer: analyzer,
		sessions: sessions,
		bus:      bus,
		log:      log.With().Str("module", "coverage").Logger(),
		watched:  make(map[string]*liveSession),
	}
}

// newQueueBreaker guards one service's snapshot reads. Three consecutive
// failures open the circuit for two periods.
func newQueueBreaker(serviceID string, period time.Duration) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "queue:" + serviceID,
		Timeout: 2 * period,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 3
		},
		IsSuccessful: func(err error) bool {
			// A missing snapshot is an answer, not an outage.
			return err == nil || errors.Is(err, domain.ErrNotFound)
		},
	})
}

// StartService begins live monitoring for one service and returns the
// session id. Unknown services fail with NotFound, inactive ones with
// Capacity, already-watched ones with Conflict. The loop stops on
// StopService and on ctx cancellation.
func (lm *LiveMonitor) StartService(ctx context.Context, serviceID string) (string, error) {
	svc, err := lm.analyzer.store.ServiceByID(ctx, serviceID)
	if err != nil {
		return "", err
	}
	if !svc.Active {
		return "", fmt.Errorf("%w: service %s is not active", domain.ErrCapacity, serviceID)
	}

	lm.mu.Lock()
	if _, ok := lm.watched[serviceID]; ok {
		lm.mu.Unlock()
		return "", fmt.Errorf("%w: service %s is already monitored", domain.ErrConflict, serviceID)
	}
	s := &liveSession{
		id:        uuid.NewString(),
		serviceID: serviceID,
		stop:      make(chan struct{}),
		stopped:   make(chan struct{}),
		breaker:   newQueueBreaker(serviceID, lm.cfg.LivePeriod),
	}
	lm.watched[serviceID] = s
	lm.mu.Unlock()

	session := domain.MonitoringSession{
		ID:        s.id,
		ServiceID: serviceID,
		StartedAt: time.Now().UTC(),
	}
	if err := lm.sessions.StartMonitoringSession(ctx, session); err != nil {
		lm.mu.Lock()
		delete(lm.watched, serviceID)
		lm.mu.Unlock()
		return "", err
	}

	// The loop outlives the request that started it; only StopService or
	// process shutdown ends it.
	go lm.run(context.WithoutCancel(ctx), s)

	if lm.bus != nil {
		lm.bus.Emit("coverage", &events.MonitoringStatusData{
			SessionID: s.id,
			ServiceID: serviceID,
			Running:   true,
		})
	}
	lm.log.Info().Str("service_id", serviceID).Str("session_id", s.id).Msg("Live monitoring started")
	return s.id, nil
}

// StopService halts one service's loop and seals its session.
func (lm *LiveMonitor) StopService(ctx context.Context, serviceID string) error {
	lm.mu.Lock()
	s, ok := lm.watched[serviceID]
	if !ok {
		lm.mu.Unlock()
		return fmt.Errorf("%w: service %s is not monitored", domain.ErrNotFound, serviceID)
	}
	delete(lm.watched, serviceID)
	lm.mu.Unlock()

	close(s.stop)
	<-s.stopped

	s.mu.Lock()
	emitted := s.events
	s.mu.Unlock()
	if err := lm.sessions.StopMonitoringSession(ctx, s.id, time.Now().UTC(), emitted); err != nil {
		return err
	}

	if lm.bus != nil {
		lm.bus.Emit("coverage", &events.MonitoringStatusData{
			SessionID: s.id,
			ServiceID: serviceID,
			Running:   false,
			Events:    emitted,
		})
	}
	lm.log.Info().Str("service_id", serviceID).Int("events", emitted).Msg("Live monitoring stopped")
	return nil
}

// StopAll halts every loop, for shutdown.
func (lm *LiveMonitor) StopAll(ctx context.Context) {
	lm.mu.Lock()
	ids := make([]string, 0, len(lm.watched))
	for id := range lm.watched {
		ids = append(ids, id)
	}
	lm.mu.Unlock()

	for _, id := range ids {
		if err := lm.StopService(ctx, id); err != nil && !errors.Is(err, domain.ErrNotFound) {
			lm.log.Warn().Err(err).Str("service_id", id).Msg("Could not stop live monitoring")
		}
	}
}

// Watched returns the currently monitored service ids.
func (lm *LiveMonitor) Watched() []string {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	out := make([]string, 0, len(lm.watched))
	for id := range lm.watched {
		out = append(out, id)
	}
	return out
}

// run ticks immediately, then on the period. A failed tick pushes the next
// one out by the backoff instead of tightening the loop on a broken store.
func (lm *LiveMonitor) run(ctx context.Context, s *liveSession) {
	defer close(s.stopped)

	period := lm.cfg.LivePeriod
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if err := lm.tick(ctx, s); err != nil {
			lm.log.Warn().Err(err).Str("service_id", s.serviceID).Msg("Live tick failed, backing off")
			period = lm.cfg.LivePeriod + failureBackoff
		} else {
			period = lm.cfg.LivePeriod
		}
		timer.Reset(period)
	}
}

func (lm *LiveMonitor) tick(ctx context.Context, s *liveSession) error {
	var snap *domain.QueueSnapshot
	v, err := s.breaker.Execute(func() (interface{}, error) {
		return lm.analyzer.store.LoadQueueSnapshot(ctx, s.serviceID)
	})
	switch {
	case err == nil:
		snap = v.(*domain.QueueSnapshot)
	case errors.Is(err, domain.ErrNotFound):
		// Degrade to planned staffing.
	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		return fmt.Errorf("%w: queue snapshot circuit open for %s", domain.ErrUpstream, s.serviceID)
	default:
		return err
	}

	iv, err := lm.analyzer.Current(ctx, s.serviceID, snap)
	if err != nil {
		return err
	}

	payload := map[string]any{
		"coverage_pct": iv.CoveragePct,
		"status":       string(iv.Status),
		"projected_sl": iv.ProjectedSL,
		"planned":      iv.PlannedAgents,
		"forecast":     iv.ForecastAgents,
	}
	if snap != nil {
		payload["service_level"] = snap.ServiceLevel
		payload["calls_waiting"] = snap.CallsWaiting

		if trend, err := lm.analyzer.ServiceLevelTrend(ctx, s.serviceID); err == nil {
			if trend.TimeToBreach != nil {
				payload["breach_in_sec"] = trend.TimeToBreach.Seconds()
			}
		} else if !errors.Is(err, ErrNoHistory) {
			lm.log.Warn().Err(err).Str("service_id", s.serviceID).Msg("Trend computation failed")
		}

		lm.checkThresholds(ctx, s, snap)
	}

	if err := lm.sessions.RecordMonitoringEvent(ctx, domain.MonitoringEvent{
		SessionID: s.id,
		ServiceID: s.serviceID,
		Kind:      "coverage_tick",
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return err
	}

	live := 0
	if iv.LiveAgents != nil {
		live = *iv.LiveAgents
	}
	if lm.bus != nil {
		lm.bus.Emit("coverage", &events.CoverageTickData{
			ServiceID:    s.serviceID,
			CoveragePct:  iv.CoveragePct,
			Status:       string(iv.Status),
			ProjectedSL:  iv.ProjectedSL,
			AgentsLive:   live,
			AgentsNeeded: iv.ForecastAgents,
		})
	}
	s.mu.Lock()
	s.events++
	s.mu.Unlock()
	return nil
}

// checkThresholds tests the snapshot against every configured auto-alerting
// threshold and records breaches.
func (lm *LiveMonitor) checkThresholds(ctx context.Context, s *liveSession, snap *domain.QueueSnapshot) {
	thresholds, err := lm.analyzer.store.LoadThresholds(ctx, s.serviceID)
	if err != nil {
		lm.log.Warn().Err(err).Str("service_id", s.serviceID).Msg("Could not load thresholds")
		return
	}
	if len(thresholds) == 0 {
		def := domain.DefaultServiceLevelThresholds
		def.ServiceID = s.serviceID
		thresholds = []domain.ThresholdConfig{def}
	}

	for _, t := range thresholds {
		if !t.AutoAlert {
			continue
		}
		value, ok := metricValue(t.Metric, snap)
		if !ok {
			continue
		}
		sev := t.Breached(value)
		if sev == "" {
			continue
		}

		level := breachLevel(sev)
		if err := lm.sessions.RecordMonitoringEvent(ctx, domain.MonitoringEvent{
			SessionID: s.id,
			ServiceID: s.serviceID,
			Kind:      "threshold_breached",
			Payload: map[string]any{
				"metric":   t.Metric,
				"value":    value,
				"level":    level,
				"severity": string(sev),
			},
			CreatedAt: time.Now().UTC(),
		}); err != nil {
			lm.log.Warn().Err(err).Str("metric", t.Metric).Msg("Could not record threshold breach")
		}
		if lm.bus != nil {
			lm.bus.Emit("coverage", &events.ThresholdBreachedData{
				ServiceID: s.serviceID,
				Metric:    t.Metric,
				Value:     value,
				Level:     level,
				Severity:  string(sev),
			})
		}
		lm.log.Warn().
			Str("service_id", s.serviceID).
			Str("metric", t.Metric).
			Float64("value", value).
			Str("level", level).
			Msg("Queue threshold breached")
	}
}

// metricValue reads one monitored metric off a snapshot. Metrics the
// snapshot does not carry report ok=false and are skipped.
func metricValue(metric string, snap *domain.QueueSnapshot) (float64, bool) {
	switch metric {
	case domain.MetricServiceLevel:
		return snap.ServiceLevel, true
	case domain.MetricLongestWait:
		return float64(snap.LongestWaitSec), true
	case domain.MetricCallsWaiting:
		return float64(snap.CallsWaiting), true
	default:
		return 0, false
	}
}

// breachLevel names the threshold level that produced a severity, matching
// how Breached maps levels upward.
func breachLevel(sev domain.Severity) string {
	switch sev {
	case domain.SeverityCritical:
		return "emergency"
	case domain.SeverityHigh:
		return "critical"
	default:
		return "warning"
	}
}
