package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/google/uuid"
	"github.com/mitchellh/hashstructure/v2"
	"github.com/rs/zerolog"

	"github.com/workforcelab/intraday/internal/domain"
	"github.com/workforcelab/intraday/internal/events"
	"github.com/workforcelab/intraday/internal/modules/compliance"
)

// Store is the slice of the gateway the monitor needs.
type Store interface {
	RecentBlockChanges(ctx context.Context, since time.Time) ([]domain.BlockChange, error)
	LoadTimetableBlocks(ctx context.Context, r domain.DateRange, employeeIDs []string) ([]domain.TimetableBlock, error)
	LoadEmployeeProfiles(ctx context.Context, ids []string) ([]domain.Employee, error)
	ActiveAgents(ctx context.Context, since time.Time) ([]string, error)
	RecentAlertKeys(ctx context.Context, since time.Time) (map[string]time.Time, error)
	PersistViolations(ctx context.Context, violations []domain.Violation) error
	PersistAlerts(ctx context.Context, alerts []domain.Alert) error
	RecordMonitoringEvent(ctx context.Context, e domain.MonitoringEvent) error
}

// Validator runs compliance checks. Satisfied by compliance.Service.
type Validator interface {
	ValidateOne(ctx context.Context, employeeID string, r domain.DateRange, useCache bool) (*compliance.Result, error)
	ValidateBatch(ctx context.Context, employeeIDs []string, r domain.DateRange, parallel bool) (*compliance.BulkResult, error)
}

// Invalidator drops cached verdicts for an employee whose plan changed.
// Satisfied by compliance.ResultCache.
type Invalidator interface {
	InvalidateEmployee(ctx context.Context, employeeID string)
}

// Monitor runs the violation watchdogs: a realtime task reacting to the
// block change feed, a batch sweep over recently active employees, and an
// alert processor draining the shared queue to managers.
type Monitor struct {
	cfg         Config
	store       Store
	validator   Validator
	invalidator Invalidator // optional
	bus         *events.Bus // optional
	log         zerolog.Logger

	queue    *alertQueue
	cooldown *cooldownSet

	mu        sync.Mutex
	snapshots map[string]uint64 // per (employee|day) plan hash
	highWater time.Time         // change feed position
	stats     Stats

	stop    chan struct{}
	stopped chan struct{}
	running bool
}

// New creates a monitor. invalidator and bus may be nil.
func New(cfg Config, store Store, validator Validator, invalidator Invalidator, bus *events.Bus, log zerolog.Logger) *Monitor {
	cfg = cfg.withDefaults()
	return &Monitor{
		cfg:         cfg,
		store:       store,
		validator:   validator,
		invalidator: invalidator,
		bus:         bus,
		log:         log.With().Str("module", "monitor").Logger(),
		queue:       newAlertQueue(cfg.QueueCapacity),
		cooldown:    newCooldownSet(cfg.Cooldown),
		snapshots:   make(map[string]uint64),
	}
}

// Start seeds the dedup window from persisted alerts and launches the three
// loops. Calling Start on a running monitor is an error.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("%w: monitor already running", domain.ErrConflict)
	}
	m.running = true
	m.stats.Running = true
	m.highWater = time.Now().UTC().Add(-m.cfg.ChangeLookback)
	m.stop = make(chan struct{})
	m.stopped = make(chan struct{})
	m.mu.Unlock()

	if keys, err := m.store.RecentAlertKeys(ctx, time.Now().UTC().Add(-m.cfg.Cooldown)); err != nil {
		m.log.Warn().Err(err).Msg("Could not seed alert dedup window, starting cold")
	} else {
		m.cooldown.Seed(keys)
		m.log.Info().Int("keys", len(keys)).Msg("Seeded alert dedup window")
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); m.realtimeLoop(ctx) }()
	go func() { defer wg.Done(); m.sweepLoop(ctx) }()
	go func() { defer wg.Done(); m.drainLoop(ctx) }()
	go func() {
		wg.Wait()
		close(m.stopped)
	}()

	m.log.Info().
		Dur("realtime_poll", m.cfg.RealtimePoll).
		Dur("sweep_interval", m.cfg.SweepInterval).
		Int("queue_capacity", m.cfg.QueueCapacity).
		Msg("Violation monitor started")
	return nil
}

// Stop halts the loops, then drains every remaining alert so nothing
// detected before the stop signal is lost. In-flight evaluations are
// cancelled through ctx.
func (m *Monitor) Stop(ctx context.Context) {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.stats.Running = false
	m.mu.Unlock()

	close(m.stop)
	<-m.stopped

	if remaining := m.queue.DrainAll(); len(remaining) > 0 {
		m.deliver(ctx, remaining)
		m.log.Info().Int("alerts", len(remaining)).Msg("Drained alert queue on shutdown")
	}
	m.log.Info().Msg("Violation monitor stopped")
}

// Sweep runs one batch sweep immediately, outside the loop cadence. The
// background work processor uses it for the daily deep sweep; it works
// whether or not the loops are running.
func (m *Monitor) Sweep(ctx context.Context) error {
	return m.sweepOnce(ctx)
}

// Stats returns a snapshot of the counters.
func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	s.QueueDepth = m.queue.Len()
	s.QueueDropped = m.queue.Dropped()
	return s
}

// realtimeLoop polls the change feed. The period tightens while changes keep
// arriving and relaxes again when the feed goes quiet; a failed iteration
// backs the next poll off.
func (m *Monitor) realtimeLoop(ctx context.Context) {
	period := m.cfg.RealtimePoll
	timer := time.NewTimer(period)
	defer timer.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		changed, err := m.pollOnce(ctx)
		switch {
		case err != nil:
			m.log.Warn().Err(err).Msg("Realtime poll failed, backing off")
			period = m.cfg.RealtimePoll + failureBackoff
		case changed > 0:
			period = m.cfg.LoadedPoll
		default:
			period = m.cfg.RealtimePoll
		}
		timer.Reset(period)
	}
}

// pollOnce reads the change feed past the high-water mark and evaluates each
// distinct (employee, day) exactly once.
func (m *Monitor) pollOnce(ctx context.Context) (int, error) {
	m.mu.Lock()
	since := m.highWater
	m.mu.Unlock()

	var changes []domain.BlockChange
	err := retry.Do(
		func() error {
			var err error
			changes, err = m.store.RecentBlockChanges(ctx, since)
			return err
		},
		retry.Attempts(3),
		retry.Delay(100*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
	if err != nil {
		return 0, fmt.Errorf("reading change feed: %w", err)
	}

	m.mu.Lock()
	m.stats.LastPoll = time.Now().UTC()
	m.mu.Unlock()

	if len(changes) == 0 {
		return 0, nil
	}

	type subject struct {
		employeeID string
		day        time.Time
	}
	seen := make(map[subject]bool)
	highWater := since
	for _, ch := range changes {
		if ch.ChangedAt.After(highWater) {
			highWater = ch.ChangedAt
		}
		seen[subject{ch.EmployeeID, domain.Day(ch.Day)}] = true
	}

	evaluated := 0
	for s := range seen {
		select {
		case <-m.stop:
			return evaluated, nil
		case <-ctx.Done():
			return evaluated, ctx.Err()
		default:
		}
		if err := m.evaluateChange(ctx, s.employeeID, s.day); err != nil {
			m.log.Warn().Err(err).
				Str("employee_id", s.employeeID).
				Time("day", s.day).
				Msg("Change evaluation failed")
			continue
		}
		evaluated++
	}

	m.mu.Lock()
	// Keep a lookback overlap so a change committed slightly out of order is
	// still observed; the snapshot hash makes the re-read idempotent.
	m.highWater = highWater.Add(-time.Second)
	m.stats.ChangesSeen += int64(len(changes))
	m.mu.Unlock()
	return evaluated, nil
}

// evaluateChange re-validates one changed day for one employee. The plan
// hash suppresses evaluations for feed rows that did not actually alter the
// day, including the monitor observing the same write twice.
func (m *Monitor) evaluateChange(ctx context.Context, employeeID string, day time.Time) error {
	dayRange := domain.NewDateRange(day, day.AddDate(0, 0, 1))

	blocks, err := m.store.LoadTimetableBlocks(ctx, dayRange, []string{employeeID})
	if err != nil {
		return fmt.Errorf("loading changed blocks: %w", err)
	}
	hash, err := planHash(blocks)
	if err != nil {
		return fmt.Errorf("hashing plan: %w", err)
	}

	key := employeeID + "|" + day.Format("2006-01-02")
	m.mu.Lock()
	if m.snapshots[key] == hash {
		m.mu.Unlock()
		return nil
	}
	m.snapshots[key] = hash
	m.mu.Unlock()

	if m.invalidator != nil {
		m.invalidator.InvalidateEmployee(ctx, employeeID)
	}

	// A single-day window keeps the hot path under the latency budget: the
	// day-scoped rules (daily hours, break quota, lunch, minor caps) fire
	// here, the sweep covers the cross-day ones.
	res, err := m.validator.ValidateOne(ctx, employeeID, dayRange, false)
	if err != nil {
		return fmt.Errorf("validating changed day: %w", err)
	}
	if len(res.Violations) == 0 {
		return nil
	}
	if err := m.store.PersistViolations(ctx, res.Violations); err != nil {
		return fmt.Errorf("persisting violations: %w", err)
	}
	m.raiseAlerts(ctx, res.Violations)
	return nil
}

// sweepLoop periodically batch-validates everyone with recent telemetry,
// catching what the change feed cannot see.
func (m *Monitor) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.sweepOnce(ctx); err != nil {
				m.log.Warn().Err(err).Msg("Batch sweep failed")
			}
		}
	}
}

func (m *Monitor) sweepOnce(ctx context.Context) error {
	now := time.Now().UTC()
	roster, err := m.store.ActiveAgents(ctx, now.Add(-m.cfg.SweepLookback))
	if err != nil {
		return fmt.Errorf("loading sweep roster: %w", err)
	}
	if len(roster) == 0 {
		return nil
	}

	// The sweep window spans the current ISO week plus the trailing day, so
	// weekly-hour and rest-between rules see their full context.
	day := domain.Day(now)
	r := domain.NewDateRange(domain.WeekStart(day).AddDate(0, 0, -1), day.AddDate(0, 0, 1))
	bulk, err := m.validator.ValidateBatch(ctx, roster, r, true)
	if err != nil {
		return fmt.Errorf("sweep validation: %w", err)
	}

	var violations []domain.Violation
	for _, res := range bulk.Results {
		violations = append(violations, res.Violations...)
	}
	if len(violations) > 0 {
		if err := m.store.PersistViolations(ctx, violations); err != nil {
			return fmt.Errorf("persisting sweep violations: %w", err)
		}
		m.raiseAlerts(ctx, violations)
	}

	m.mu.Lock()
	m.stats.SweepsRun++
	m.stats.LastSweep = now
	m.mu.Unlock()

	m.recordEvent(ctx, "sweep_completed", map[string]any{
		"employees":  bulk.Total,
		"compliant":  bulk.Compliant,
		"violations": len(violations),
		"failed":     bulk.Failed,
	})
	m.log.Info().
		Int("employees", bulk.Total).
		Int("violations", len(violations)).
		Int("failed", bulk.Failed).
		Msg("Batch sweep completed")
	return nil
}

// raiseAlerts turns violations into queued alerts, applying the cooldown
// window per coalescing key.
func (m *Monitor) raiseAlerts(ctx context.Context, violations []domain.Violation) {
	employees := make(map[string]domain.Employee)
	ids := make([]string, 0, len(violations))
	for _, v := range violations {
		if _, ok := employees[v.EmployeeID]; !ok {
			employees[v.EmployeeID] = domain.Employee{}
			ids = append(ids, v.EmployeeID)
		}
	}
	if loaded, err := m.store.LoadEmployeeProfiles(ctx, ids); err != nil {
		m.log.Warn().Err(err).Msg("Could not resolve alert recipients")
	} else {
		for _, e := range loaded {
			employees[e.ID] = e
		}
	}

	now := time.Now().UTC()
	for _, v := range violations {
		key := domain.CoalescingKey(v.EmployeeID, v.RuleID, v.ShiftDate)
		if !m.cooldown.Admit(key, now) {
			m.mu.Lock()
			m.stats.Duplicates++
			m.mu.Unlock()
			continue
		}

		emp := employees[v.EmployeeID]
		alert := domain.Alert{
			ID:           uuid.NewString(),
			EmployeeID:   v.EmployeeID,
			RuleID:       v.RuleID,
			Severity:     v.Severity,
			DetectedAt:   now,
			ShiftDate:    v.ShiftDate,
			Description:  v.Message,
			Observed:     v.Observed,
			Threshold:    v.Required,
			DepartmentID: emp.DepartmentID,
			ManagerID:    emp.ManagerID,
			Suggestions:  v.Suggestions,
			Status:       domain.AlertQueued,
		}
		if !m.queue.Push(alert) {
			m.log.Warn().Str("employee_id", v.EmployeeID).Msg("Alert queue full, dropping alert")
			continue
		}
		m.mu.Lock()
		m.stats.AlertsEnqueued++
		m.mu.Unlock()

		if m.bus != nil {
			m.bus.Emit("monitor", &events.AlertQueuedData{
				AlertID:    alert.ID,
				EmployeeID: alert.EmployeeID,
				RuleID:     string(alert.RuleID),
				Severity:   string(alert.Severity),
				ManagerID:  alert.ManagerID,
				QueueDepth: m.queue.Len(),
			})
		}
	}
}

// drainLoop delivers queued alerts in severity order on a fixed cadence.
func (m *Monitor) drainLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if batch := m.queue.DrainBatch(m.cfg.DrainBatch); len(batch) > 0 {
				m.deliver(ctx, batch)
			}
		}
	}
}

// deliver persists a drained batch grouped by manager. Grouping keeps each
// recipient's alerts together in the audit trail and in the per-group
// monitoring event.
func (m *Monitor) deliver(ctx context.Context, batch []domain.Alert) {
	byManager := make(map[string][]domain.Alert)
	order := make([]string, 0, 4)
	for i := range batch {
		batch[i].Status = domain.AlertSent
		mgr := batch[i].ManagerID
		if _, ok := byManager[mgr]; !ok {
			order = append(order, mgr)
		}
		byManager[mgr] = append(byManager[mgr], batch[i])
	}

	for _, mgr := range order {
		group := byManager[mgr]
		if err := m.store.PersistAlerts(ctx, group); err != nil {
			m.log.Error().Err(err).Str("manager_id", mgr).
				Int("alerts", len(group)).Msg("Alert delivery failed")
			continue
		}
		m.mu.Lock()
		m.stats.AlertsDelivered += int64(len(group))
		m.mu.Unlock()
		m.recordEvent(ctx, "alerts_delivered", map[string]any{
			"manager_id": mgr,
			"alerts":     len(group),
			"top":        string(group[0].Severity),
		})
	}
}

func (m *Monitor) recordEvent(ctx context.Context, kind string, payload map[string]any) {
	err := m.store.RecordMonitoringEvent(ctx, domain.MonitoringEvent{
		Kind:      kind,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		m.log.Warn().Err(err).Str("kind", kind).Msg("Could not record monitoring event")
	}
}

// planHash fingerprints the schedule-relevant fields of a day's blocks.
// Volatile columns (row id, created_at) stay out so a rewrite of the same
// plan hashes identically.
func planHash(blocks []domain.TimetableBlock) (uint64, error) {
	type entry struct {
		Start    int64
		Activity string
		SkillID  string
		Project  string
		Locked   bool
	}
	entries := make([]entry, len(blocks))
	for i, b := range blocks {
		entries[i] = entry{
			Start:    b.Start.Unix(),
			Activity: string(b.Activity),
			SkillID:  b.SkillID,
			Project:  b.ProjectID,
			Locked:   b.Locked,
		}
	}
	return hashstructure.Hash(entries, hashstructure.FormatV2, nil)
}
