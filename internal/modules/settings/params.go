package settings

import (
	"time"

	"github.com/workforcelab/intraday/internal/domain"
)

// LunchParams bounds where and how long a planned lunch may sit.
type LunchParams struct {
	EarliestStart  domain.TimeOfDay `json:"earliest_start"`
	LatestStart    domain.TimeOfDay `json:"latest_start"`
	MinDuration    time.Duration    `json:"min_duration"`
	MaxDuration    time.Duration    `json:"max_duration"`
	MinHoursBefore float64          `json:"min_hours_before"`
}

// BreakParams drives short-break cadence during a shift.
type BreakParams struct {
	Duration                time.Duration `json:"duration"`
	FrequencyHours          float64       `json:"frequency_hours"`
	Spacing                 time.Duration `json:"spacing"`
	MaxDelay                time.Duration `json:"max_delay"`
	MaxConsecutiveWorkHours float64       `json:"max_consecutive_work_hours"`
}

// ShiftLimits are the shift shape bounds compliance checks against.
type ShiftLimits struct {
	MinHours     float64 `json:"min_hours"`
	MaxHours     float64 `json:"max_hours"`
	MinRestHours float64 `json:"min_rest_hours"`
}

// CacheTTLs are the compliance result cache lifetimes.
type CacheTTLs struct {
	Employee time.Duration `json:"employee"`
	Rules    time.Duration `json:"rules"`
}

// MonitorParams tunes the violation monitor's cadence and queueing.
type MonitorParams struct {
	RealtimePeriod    time.Duration `json:"realtime_period"`
	RealtimeUnderLoad time.Duration `json:"realtime_under_load"`
	BatchPeriod       time.Duration `json:"batch_period"`
	Cooldown          time.Duration `json:"cooldown"`
	QueueCapacity     int           `json:"queue_capacity"`
	BatchSize         int           `json:"batch_size"`
}

// ThresholdBand holds the three escalation levels for one coverage metric.
type ThresholdBand struct {
	Warning   float64 `json:"warning"`
	Critical  float64 `json:"critical"`
	Emergency float64 `json:"emergency"`
}

// OptimizerParams tunes multi-skill assignment. Percentages are kept as
// stored; callers building an assignment config divide by 100.
type OptimizerParams struct {
	PrimarySkillLoadPct   float64 `json:"primary_skill_load_pct"`
	TargetUtilization     float64 `json:"target_utilization"`
	DevelopmentReservePct float64 `json:"development_reserve_pct"`
}

// CoverageParams tunes coverage analysis and gap pricing.
type CoverageParams struct {
	LivePeriod  time.Duration `json:"live_period"`
	HourlyCost  float64       `json:"hourly_cost"`
	TrendWindow time.Duration `json:"trend_window"`
}

// BackupParams configures the S3-compatible database backup. The secret
// never serializes.
type BackupParams struct {
	Enabled       bool   `json:"enabled"`
	Schedule      string `json:"schedule"`
	RetentionDays int    `json:"retention_days"`
	S3Endpoint    string `json:"s3_endpoint"`
	S3Region      string `json:"s3_region"`
	S3Bucket      string `json:"s3_bucket"`
	S3AccessKeyID string `json:"s3_access_key_id"`
	S3SecretKey   string `json:"-"`
}

// Configured reports whether the target is complete enough to attempt an
// upload.
func (p BackupParams) Configured() bool {
	return p.S3Endpoint != "" && p.S3Bucket != "" && p.S3AccessKeyID != "" && p.S3SecretKey != ""
}
