// Package domain provides core domain models and types shared by all modules.
package domain

import (
	"fmt"
	"time"
)

// EmploymentType classifies the contractual relationship of an employee.
type EmploymentType string

const (
	EmploymentFullTime   EmploymentType = "full-time"
	EmploymentPartTime   EmploymentType = "part-time"
	EmploymentContract   EmploymentType = "contract"
	EmploymentIntern     EmploymentType = "intern"
	EmploymentConsultant EmploymentType = "consultant"
)

// AgeCategory selects which labor-law threshold column applies to an employee.
type AgeCategory string

const (
	AgeAdult AgeCategory = "adult"
	AgeMinor AgeCategory = "minor"
)

// SkillCategory classifies a skill.
type SkillCategory string

const (
	SkillTechnical     SkillCategory = "technical"
	SkillSoft          SkillCategory = "soft"
	SkillLanguage      SkillCategory = "language"
	SkillDomain        SkillCategory = "domain"
	SkillCertification SkillCategory = "certification"
)

// Skill is an immutable capability definition.
type Skill struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Category      SkillCategory `json:"category"`
	ParentSkillID string        `json:"parent_skill_id,omitempty"`
}

// EmployeeSkill links an employee to a skill with a proficiency level (1-5).
type EmployeeSkill struct {
	SkillID     string `json:"skill_id"`
	Proficiency int    `json:"proficiency"`
	Certified   bool   `json:"certified"`
	Primary     bool   `json:"primary"`
}

// Constraints holds per-employee scheduling limits. WorkRate scales the
// employee's effective capacity and must be in (0, 1].
type Constraints struct {
	MaxDailyHours   float64 `json:"max_daily_hours"`
	MaxWeeklyHours  float64 `json:"max_weekly_hours"`
	NightWork       bool    `json:"night_work"`
	WeekendWork     bool    `json:"weekend_work"`
	OvertimeAllowed bool    `json:"overtime_allowed"`
	WorkRate        float64 `json:"work_rate"`
}

// Employee is the scheduling subject. Employees are created externally and
// mutated only via the gateway.
type Employee struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Number         string          `json:"number"`
	Employment     EmploymentType  `json:"employment"`
	AgeCategory    AgeCategory     `json:"age_category"`
	OrganizationID string          `json:"organization_id"`
	DepartmentID   string          `json:"department_id"`
	GroupID        string          `json:"group_id"`
	ManagerID      string          `json:"manager_id,omitempty"`
	Skills         []EmployeeSkill `json:"skills"`
	Constraints    Constraints     `json:"constraints"`
}

// PrimarySkill returns the employee's primary skill id, or the first skill
// when none is flagged primary, or "" for an employee with no skills.
func (e *Employee) PrimarySkill() string {
	for _, s := range e.Skills {
		if s.Primary {
			return s.SkillID
		}
	}
	if len(e.Skills) > 0 {
		return e.Skills[0].SkillID
	}
	return ""
}

// SecondarySkills returns all non-primary skill ids in declaration order.
func (e *Employee) SecondarySkills() []string {
	primary := e.PrimarySkill()
	out := make([]string, 0, len(e.Skills))
	for _, s := range e.Skills {
		if s.SkillID != primary {
			out = append(out, s.SkillID)
		}
	}
	return out
}

// ShiftStatus tracks the publication state of a shift.
type ShiftStatus string

const (
	ShiftScheduled ShiftStatus = "scheduled"
	ShiftConfirmed ShiftStatus = "confirmed"
	ShiftPublished ShiftStatus = "published"
)

// Shift is the contracted start/end boundary produced upstream. Start and End
// are clock times on Date; End less than or equal to Start means the shift
// crosses midnight into the next calendar day.
type Shift struct {
	ID         string      `json:"id"`
	EmployeeID string      `json:"employee_id"`
	Date       time.Time   `json:"date"` // midnight UTC of the shift's calendar day
	Start      TimeOfDay   `json:"start"`
	End        TimeOfDay   `json:"end"`
	Status     ShiftStatus `json:"status"`
}

// StartTime returns the absolute UTC start of the shift.
func (s *Shift) StartTime() time.Time {
	return Day(s.Date).Add(time.Duration(s.Start) * time.Minute)
}

// EndTime returns the absolute UTC end of the shift, rolling into the next
// day when the shift crosses midnight.
func (s *Shift) EndTime() time.Time {
	return s.StartTime().Add(s.Duration())
}

// Duration returns the shift length derived from (end - start) with midnight
// wrap-around.
func (s *Shift) Duration() time.Duration {
	minutes := int(s.End) - int(s.Start)
	if minutes <= 0 {
		minutes += MinutesPerDay
	}
	return time.Duration(minutes) * time.Minute
}

// CrossesMidnight reports whether the shift ends on the following day.
func (s *Shift) CrossesMidnight() bool {
	return int(s.End) <= int(s.Start)
}

// ActivityType labels what an employee does during one timetable block.
type ActivityType string

const (
	ActivityWork         ActivityType = "work"
	ActivityLunch        ActivityType = "lunch"
	ActivityShortBreak   ActivityType = "short_break"
	ActivityProject      ActivityType = "project"
	ActivityTraining     ActivityType = "training"
	ActivityMeeting      ActivityType = "meeting"
	ActivityDowntime     ActivityType = "downtime"
	ActivityNotAvailable ActivityType = "not_available"
)

// IsBreak reports whether the activity is a lunch or short break.
func (a ActivityType) IsBreak() bool {
	return a == ActivityLunch || a == ActivityShortBreak
}

// IsProductive reports whether the activity counts toward worked time.
func (a ActivityType) IsProductive() bool {
	switch a {
	case ActivityWork, ActivityProject, ActivityTraining, ActivityMeeting:
		return true
	}
	return false
}

// TimetableBlock is one 15-minute interval of one employee with a single
// activity label. Blocks are produced by the planner and mutated only through
// audited adjustments.
type TimetableBlock struct {
	ID           int64        `json:"id"`
	EmployeeID   string       `json:"employee_id"`
	Start        time.Time    `json:"start"` // UTC, aligned to a 15-minute boundary
	Activity     ActivityType `json:"activity"`
	SkillID      string       `json:"skill_id,omitempty"`
	ProjectID    string       `json:"project_id,omitempty"`
	Locked       bool         `json:"locked"`
	TemplateCode string       `json:"template_code,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// End returns the exclusive end of the block's interval.
func (b *TimetableBlock) End() time.Time {
	return b.Start.Add(IntervalDuration)
}

// ForecastInterval holds upstream demand for one service at one interval.
type ForecastInterval struct {
	ServiceID      string    `json:"service_id"`
	Start          time.Time `json:"start"`
	RequiredAgents float64   `json:"required_agents"`
	ServiceLevel   float64   `json:"service_level"` // target, percent (80 = 80%)
	HandleTimeSec  float64   `json:"handle_time_sec"`
	CallVolume     float64   `json:"call_volume"`
}

// QueueSnapshot is a live reading of one service queue.
type QueueSnapshot struct {
	ServiceID       string    `json:"service_id"`
	Timestamp       time.Time `json:"timestamp"`
	CallsWaiting    int       `json:"calls_waiting"`
	LongestWaitSec  int       `json:"longest_wait_sec"`
	AgentsAvailable int       `json:"agents_available"`
	AgentsBusy      int       `json:"agents_busy"`
	ServiceLevel    float64   `json:"service_level"` // percent
}

// ActivityInterval aggregates one agent's telemetry for one 15-minute interval.
type ActivityInterval struct {
	AgentID        string    `json:"agent_id"`
	Start          time.Time `json:"start"`
	LoginSec       int       `json:"login_sec"`
	ProductiveSec  int       `json:"productive_sec"`
	BreakSec       int       `json:"break_sec"`
	GroupID        string    `json:"group_id"`
	ServiceID      string    `json:"service_id"`
	HandledContact int       `json:"handled_contacts"`
}

// SchedulePreference captures an employee's wishes for one day. A day-off
// preference forces a not_available envelope.
type SchedulePreference struct {
	EmployeeID     string     `json:"employee_id"`
	Date           time.Time  `json:"date"`
	DayOff         bool       `json:"day_off"`
	PreferredStart *TimeOfDay `json:"preferred_start,omitempty"`
	PreferredEnd   *TimeOfDay `json:"preferred_end,omitempty"`
}

// RuleCategory groups labor-law rules.
type RuleCategory string

const (
	RuleWorkingTime       RuleCategory = "working_time"
	RuleBreaks            RuleCategory = "breaks"
	RuleOvertime          RuleCategory = "overtime"
	RuleRestPeriods       RuleCategory = "rest_periods"
	RuleSpecialConditions RuleCategory = "special_conditions"
)

// RuleID identifies a labor-law rule. The set is fixed and versioned in
// configuration; evaluation order is the declaration order below.
type RuleID string

const (
	RuleDailyHours       RuleID = "DAILY_HOURS"
	RuleWeeklyHours      RuleID = "WEEKLY_HOURS"
	RuleRestBetween      RuleID = "REST_BETWEEN"
	RuleBreakQuota       RuleID = "BREAK_QUOTA"
	RuleLunch            RuleID = "LUNCH"
	RuleConsecutiveDays  RuleID = "CONSECUTIVE_DAYS"
	RuleSpecialCondition RuleID = "SPECIAL_CONDITION_VIOLATION"
)

// PenaltyTier is the statutory penalty class of a rule breach.
type PenaltyTier string

const (
	PenaltyWarning PenaltyTier = "warning"
	PenaltyFine    PenaltyTier = "fine"
	PenaltySerious PenaltyTier = "serious"
)

// Weight returns the compliance-score deduction for one violation of the tier.
func (p PenaltyTier) Weight() float64 {
	switch p {
	case PenaltyWarning:
		return 0.1
	case PenaltyFine:
		return 0.2
	case PenaltySerious:
		return 0.4
	}
	return 0.0
}

// Severity ranks violations and alerts for triage.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank returns a sortable weight, higher is more severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// SeverityFromMagnitude derives a severity from the relative breach magnitude
// |observed - threshold| / threshold.
func SeverityFromMagnitude(observed, threshold float64) Severity {
	if threshold == 0 {
		return SeverityCritical
	}
	magnitude := (observed - threshold) / threshold
	if magnitude < 0 {
		magnitude = -magnitude
	}
	switch {
	case magnitude >= 1.0:
		return SeverityCritical
	case magnitude >= 0.5:
		return SeverityHigh
	case magnitude >= 0.25:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Violation records a concrete breach of a rule by an employee. Observed and
// Required are always present; a violation without them is invalid.
type Violation struct {
	ID          string      `json:"id"`
	EmployeeID  string      `json:"employee_id"`
	RuleID      RuleID      `json:"rule_id"`
	OccurredAt  time.Time   `json:"occurred_at"`
	ShiftDate   time.Time   `json:"shift_date"` // midnight UTC of the violating day
	Observed    float64     `json:"observed"`
	Required    float64     `json:"required"`
	Unit        string      `json:"unit"`
	Severity    Severity    `json:"severity"`
	Penalty     PenaltyTier `json:"penalty"`
	Message     string      `json:"message"`
	Suggestions []string    `json:"suggestions,omitempty"`
}

// AlertStatus tracks an alert through its delivery lifecycle.
type AlertStatus string

const (
	AlertQueued       AlertStatus = "queued"
	AlertSent         AlertStatus = "sent"
	AlertAcknowledged AlertStatus = "acknowledged"
)

// Alert is a deliverable notification derived from one or more violations.
type Alert struct {
	ID           string      `json:"id"`
	EmployeeID   string      `json:"employee_id"`
	RuleID       RuleID      `json:"rule_id"`
	Severity     Severity    `json:"severity"`
	DetectedAt   time.Time   `json:"detected_at"`
	ShiftDate    time.Time   `json:"shift_date"`
	Description  string      `json:"description"`
	Observed     float64     `json:"observed"`
	Threshold    float64     `json:"threshold"`
	DepartmentID string      `json:"department_id"`
	ManagerID    string      `json:"manager_id"`
	Suggestions  []string    `json:"suggestions,omitempty"`
	Status       AlertStatus `json:"status"`
	Duplicates   int         `json:"duplicates"` // suppressed repeats within cooldown
}

// CoalescingKey identifies the (employee, rule, shift day) bucket used for
// alert deduplication within the cooldown window.
func (a *Alert) CoalescingKey() string {
	return CoalescingKey(a.EmployeeID, a.RuleID, a.ShiftDate)
}

// CoalescingKey builds the alert dedup key for an (employee, rule, day) triple.
func CoalescingKey(employeeID string, ruleID RuleID, shiftDate time.Time) string {
	return fmt.Sprintf("%s|%s|%s", employeeID, ruleID, Day(shiftDate).Format("2006-01-02"))
}

// ThresholdDirection states on which side of a level a metric breaches.
type ThresholdDirection string

const (
	DirectionBelow ThresholdDirection = "below"
	DirectionAbove ThresholdDirection = "above"
)

// Monitored queue metrics with configurable thresholds.
const (
	MetricServiceLevel    = "service_level"
	MetricAbandonmentRate = "abandonment_rate"
	MetricLongestWait     = "longest_wait_sec"
	MetricCallsWaiting    = "calls_waiting"
)

// ThresholdConfig defines breach levels for one metric of one service.
type ThresholdConfig struct {
	ServiceID string             `json:"service_id"`
	Metric    string             `json:"metric"`
	Warning   float64            `json:"warning"`
	Critical  float64            `json:"critical"`
	Emergency float64            `json:"emergency"`
	Direction ThresholdDirection `json:"direction"`
	AutoAlert bool               `json:"auto_alert"`
}

// Stock thresholds applied when a service has none configured.
var (
	DefaultServiceLevelThresholds = ThresholdConfig{
		Metric:    MetricServiceLevel,
		Warning:   75,
		Critical:  65,
		Emergency: 55,
		Direction: DirectionBelow,
		AutoAlert: true,
	}
	DefaultAbandonmentThresholds = ThresholdConfig{
		Metric:    MetricAbandonmentRate,
		Warning:   5,
		Critical:  10,
		Emergency: 15,
		Direction: DirectionAbove,
		AutoAlert: true,
	}
)

// Breached returns the strongest breached severity for a value, or "" when the
// value is inside all levels. Emergency maps to critical severity, critical to
// high and warning to medium, matching alert triage semantics.
func (t *ThresholdConfig) Breached(value float64) Severity {
	breaches := func(level float64) bool {
		if t.Direction == DirectionAbove {
			return value >= level
		}
		return value <= level
	}
	switch {
	case breaches(t.Emergency):
		return SeverityCritical
	case breaches(t.Critical):
		return SeverityHigh
	case breaches(t.Warning):
		return SeverityMedium
	}
	return ""
}

// CoverageStatus classifies an interval's staffing level.
type CoverageStatus string

const (
	CoverageOptimal  CoverageStatus = "optimal"  // 95-105%
	CoverageAdequate CoverageStatus = "adequate" // 85-95%
	CoverageShortage CoverageStatus = "shortage" // <85%
	CoverageSurplus  CoverageStatus = "surplus"  // >105%
)

// CoverageStatusFor maps a coverage percentage onto its status band. The 95
// and 105 boundaries are optimal, 85 is adequate.
func CoverageStatusFor(pct float64) CoverageStatus {
	switch {
	case pct < 85:
		return CoverageShortage
	case pct < 95:
		return CoverageAdequate
	case pct <= 105:
		return CoverageOptimal
	default:
		return CoverageSurplus
	}
}

// CoverageInterval is the joined forecast/planned/live view of one service
// interval.
type CoverageInterval struct {
	ServiceID      string         `json:"service_id"`
	Start          time.Time      `json:"start"`
	ForecastAgents float64        `json:"forecast_agents"`
	PlannedAgents  int            `json:"planned_agents"`
	LiveAgents     *int           `json:"live_agents,omitempty"`
	CoveragePct    float64        `json:"coverage_pct"`
	Status         CoverageStatus `json:"status"`
	ProjectedSL    float64        `json:"projected_sl"`
	Gap            float64        `json:"gap"` // forecast minus staffed, >0 means short
}

// Service describes one monitored contact queue/service.
type Service struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	HourlyCost    float64 `json:"hourly_cost"`
	ServiceTarget float64 `json:"service_target"` // percent
	Active        bool    `json:"active"`
}

// MonitoringSession records one start/stop span of live coverage monitoring.
type MonitoringSession struct {
	ID            string     `json:"id"`
	ServiceID     string     `json:"service_id"`
	StartedAt     time.Time  `json:"started_at"`
	StoppedAt     *time.Time `json:"stopped_at,omitempty"`
	EventsEmitted int        `json:"events_emitted"`
}

// MonitoringEvent is one audited occurrence from a monitor loop: a coverage
// tick, a threshold breach, an alert drain, a sweep summary.
type MonitoringEvent struct {
	ID        int64          `json:"id"`
	SessionID string         `json:"session_id,omitempty"`
	ServiceID string         `json:"service_id,omitempty"`
	Kind      string         `json:"kind"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// BlockChange is one audited mutation of timetable blocks, the unit of the
// change feed consumed by the violation monitor and cache invalidation.
type BlockChange struct {
	ID         int64     `json:"id"`
	EmployeeID string    `json:"employee_id"`
	Day        time.Time `json:"day"`
	ChangedAt  time.Time `json:"changed_at"`
	Kind       string    `json:"kind"` // plan, adjust, lock
	Blocks     int       `json:"blocks"`
}
