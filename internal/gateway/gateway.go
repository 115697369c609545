package gateway

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"

	"github.com/workforcelab/intraday/internal/domain"
)

// Gateway is the single data boundary of the compute core. Every module
// loads and persists through it; nothing else touches the databases. Reads
// run against snapshots, writes in transactions, and batch writes are
// idempotent, so callers may retry freely.
type Gateway struct {
	Employees   *EmployeeRepo
	Shifts      *ShiftRepo
	Timetable   *TimetableRepo
	Forecast    *ForecastRepo
	Activity    *ActivityRepo
	Queue       *QueueRepo
	Thresholds  *ThresholdRepo
	Services    *ServiceRepo
	Preferences *PreferenceRepo
	Violations  *ViolationRepo
	Alerts      *AlertRepo
	Monitoring  *MonitoringRepo
	Results     *ResultStoreRepo
	JobHistory  *JobHistoryRepo

	log zerolog.Logger
}

// New wires repositories over the three databases: wfm holds scheduling
// state, audit the compliance trail, cache the rebuildable tier.
func New(wfm, audit, cache *sql.DB, log zerolog.Logger) *Gateway {
	return &Gateway{
		Employees:   NewEmployeeRepo(wfm, log),
		Shifts:      NewShiftRepo(wfm, log),
		Timetable:   NewTimetableRepo(wfm, log),
		Forecast:    NewForecastRepo(wfm, log),
		Activity:    NewActivityRepo(wfm, log),
		Queue:       NewQueueRepo(cache, log),
		Thresholds:  NewThresholdRepo(wfm, log),
		Services:    NewServiceRepo(wfm, log),
		Preferences: NewPreferenceRepo(wfm, log),
		Violations:  NewViolationRepo(audit, log),
		Alerts:      NewAlertRepo(audit, log),
		Monitoring:  NewMonitoringRepo(audit, log),
		Results:     NewResultStoreRepo(cache, log),
		JobHistory:  NewJobHistoryRepo(cache, log),
		log:         log.With().Str("component", "gateway").Logger(),
	}
}

// The Load*/Persist* methods below are the stable vocabulary modules program
// against. They delegate to the repositories; keeping them on the facade
// lets a module depend on a two-method slice of the gateway in tests.

// LoadEmployeeProfiles returns employees with skills and constraints attached.
func (g *Gateway) LoadEmployeeProfiles(ctx context.Context, ids []string) ([]domain.Employee, error) {
	return g.Employees.Profiles(ctx, ids)
}

// LoadShifts returns shifts for days inside r.
func (g *Gateway) LoadShifts(ctx context.Context, r domain.DateRange, employeeIDs []string) ([]domain.Shift, error) {
	return g.Shifts.InRange(ctx, r, employeeIDs)
}

// LoadTimetableBlocks returns planned blocks for days inside r.
func (g *Gateway) LoadTimetableBlocks(ctx context.Context, r domain.DateRange, employeeIDs []string) ([]domain.TimetableBlock, error) {
	return g.Timetable.InRange(ctx, r, employeeIDs)
}

// LoadForecast returns demand intervals inside r.
func (g *Gateway) LoadForecast(ctx context.Context, r domain.DateRange, serviceIDs []string) ([]domain.ForecastInterval, error) {
	return g.Forecast.InRange(ctx, r, serviceIDs)
}

// LoadActivity returns agent telemetry inside r.
func (g *Gateway) LoadActivity(ctx context.Context, r domain.DateRange, agentIDs []string) ([]domain.ActivityInterval, error) {
	return g.Activity.InRange(ctx, r, agentIDs)
}

// LoadQueueSnapshot returns the newest live reading for a service.
func (g *Gateway) LoadQueueSnapshot(ctx context.Context, serviceID string) (*domain.QueueSnapshot, error) {
	return g.Queue.Latest(ctx, serviceID)
}

// LoadThresholds returns the thresholds configured for a service.
func (g *Gateway) LoadThresholds(ctx context.Context, serviceID string) ([]domain.ThresholdConfig, error) {
	return g.Thresholds.ForService(ctx, serviceID)
}

// LoadSchedulePreferences returns preferences for days inside r.
func (g *Gateway) LoadSchedulePreferences(ctx context.Context, r domain.DateRange, employeeIDs []string) ([]domain.SchedulePreference, error) {
	return g.Preferences.InRange(ctx, r, employeeIDs)
}

// LoadDepartmentEmployees returns the active roster of one department.
func (g *Gateway) LoadDepartmentEmployees(ctx context.Context, departmentID string) ([]domain.Employee, error) {
	return g.Employees.ByDepartment(ctx, departmentID)
}

// RecentBlockChanges returns the change feed since the cutoff.
func (g *Gateway) RecentBlockChanges(ctx context.Context, since time.Time) ([]domain.BlockChange, error) {
	return g.Timetable.RecentChanges(ctx, since)
}

// PersistTimetableBlocks replaces each touched (employee, day) plan with the
// given blocks and records the change in the feed.
func (g *Gateway) PersistTimetableBlocks(ctx context.Context, blocks []domain.TimetableBlock, kind string) error {
	return g.Timetable.PersistBlocks(ctx, blocks, kind)
}

// UpdateBlock applies a manual adjustment to one block. Locked blocks are
// rejected with a conflict.
func (g *Gateway) UpdateBlock(ctx context.Context, id int64, upd BlockUpdate) (domain.TimetableBlock, error) {
	return g.Timetable.UpdateBlock(ctx, id, upd)
}

// PersistViolations stores compliance findings idempotently.
func (g *Gateway) PersistViolations(ctx context.Context, violations []domain.Violation) error {
	return g.Violations.Persist(ctx, violations)
}

// PersistAlerts stores manager alerts idempotently.
func (g *Gateway) PersistAlerts(ctx context.Context, alerts []domain.Alert) error {
	return g.Alerts.Persist(ctx, alerts)
}

// RecordMonitoringEvent appends one audited monitor event.
func (g *Gateway) RecordMonitoringEvent(ctx context.Context, e domain.MonitoringEvent) error {
	return g.Monitoring.RecordEvent(ctx, e)
}

// UpsertThresholdConfig validates and stores a threshold.
func (g *Gateway) UpsertThresholdConfig(ctx context.Context, t domain.ThresholdConfig) error {
	return g.Thresholds.Upsert(ctx, t)
}

// ActiveAgents returns the ids of agents with telemetry since the cutoff.
func (g *Gateway) ActiveAgents(ctx context.Context, since time.Time) ([]string, error) {
	return g.Activity.ActiveAgents(ctx, since)
}

// RecentAlertKeys returns the coalescing keys of alerts raised since the
// cutoff, with their latest detection time.
func (g *Gateway) RecentAlertKeys(ctx context.Context, since time.Time) (map[string]time.Time, error) {
	return g.Alerts.RecentKeys(ctx, since)
}

// ActivityForService returns telemetry for every agent of one service.
func (g *Gateway) ActivityForService(ctx context.Context, r domain.DateRange, serviceID string) ([]domain.ActivityInterval, error) {
	return g.Activity.ForService(ctx, r, serviceID)
}

// QueueHistory returns a service's snapshots since the cutoff, oldest first.
func (g *Gateway) QueueHistory(ctx context.Context, serviceID string, since time.Time) ([]domain.QueueSnapshot, error) {
	return g.Queue.History(ctx, serviceID, since)
}

// ServiceByID resolves one service.
func (g *Gateway) ServiceByID(ctx context.Context, id string) (*domain.Service, error) {
	return g.Services.ByID(ctx, id)
}

// StartMonitoringSession opens a live-monitoring session row.
func (g *Gateway) StartMonitoringSession(ctx context.Context, s domain.MonitoringSession) error {
	return g.Monitoring.StartSession(ctx, s)
}

// StopMonitoringSession seals a session with its final event count.
func (g *Gateway) StopMonitoringSession(ctx context.Context, sessionID string, stoppedAt time.Time, eventsEmitted int) error {
	return g.Monitoring.StopSession(ctx, sessionID, stoppedAt, eventsEmitted)
}
