package settings

// SettingDefaults holds the stock value for every recognized option. Values
// live as strings in the settings table; numeric options round-trip through
// float64 so "30" and "30.0" read the same.
var SettingDefaults = map[string]interface{}{
	// Lunch placement during timetable planning.
	"lunch.earliest_start":               "11:00",
	"lunch.latest_start":                 "14:00",
	"lunch.min_duration_min":             30.0,
	"lunch.max_duration_min":             60.0,
	"lunch.min_hours_before_shift_start": 2.0,

	// Short-break cadence over a shift.
	"short_break.duration_min":               15.0,
	"short_break.frequency_hours":            2.0,
	"short_break.spacing_min":                90.0,
	"short_break.max_delay_min":              30.0,
	"short_break.max_consecutive_work_hours": 4.0,

	// Shift shape limits used by compliance checks.
	"shift.min_hours":      4.0,
	"shift.max_hours":      12.0,
	"shift.min_rest_hours": 11.0,

	// Compliance result caching.
	"compliance.cache_ttl_employee_sec": 14400.0, // 4 hours
	"compliance.cache_ttl_rules_sec":    86400.0, // 24 hours

	// Violation monitor cadence and queueing.
	"monitor.realtime_period_sec":            5.0,
	"monitor.realtime_period_under_load_sec": 2.0,
	"monitor.batch_period_sec":               1800.0,
	"monitor.cooldown_sec":                   3600.0,
	"monitor.queue_capacity":                 1000.0,
	"monitor.batch_size":                     50.0,

	// Stock alerting bands, used when a service carries no stored
	// thresholds. Service level degrades downward, abandonment upward.
	"threshold.service_level.warning":      75.0,
	"threshold.service_level.critical":     65.0,
	"threshold.service_level.emergency":    55.0,
	"threshold.abandonment_rate.warning":   5.0,
	"threshold.abandonment_rate.critical":  10.0,
	"threshold.abandonment_rate.emergency": 15.0,

	// Multi-skill assignment.
	"optimizer.primary_skill_load_pct":  70.0,
	"optimizer.target_utilization":      0.85,
	"optimizer.development_reserve_pct": 20.0,

	// Coverage analysis.
	"coverage.live_period_sec":  30.0,
	"coverage.hourly_cost":      35.0,
	"coverage.trend_window_min": 120.0,

	// S3-compatible database backup. Credentials stored here override the
	// environment; empty means not configured.
	"backup.enabled":              false,
	"backup.schedule":             "daily",
	"backup.retention_days":       90.0, // 0 keeps backups forever
	"backup.s3_endpoint":          "",
	"backup.s3_region":            "auto",
	"backup.s3_bucket":            "",
	"backup.s3_access_key_id":     "",
	"backup.s3_secret_access_key": "",
}

// StringSettings marks the options stored and served verbatim rather than
// parsed as floats.
var StringSettings = map[string]bool{
	"lunch.earliest_start":        true,
	"lunch.latest_start":          true,
	"backup.schedule":             true,
	"backup.s3_endpoint":          true,
	"backup.s3_region":            true,
	"backup.s3_bucket":            true,
	"backup.s3_access_key_id":     true,
	"backup.s3_secret_access_key": true,
}

// BoolSettings marks the on/off options.
var BoolSettings = map[string]bool{
	"backup.enabled": true,
}

// clockSettings are the string options that must parse as "HH:MM".
var clockSettings = map[string]bool{
	"lunch.earliest_start": true,
	"lunch.latest_start":   true,
}

// SettingDescriptions documents the options whose meaning is not obvious
// from the key alone.
var SettingDescriptions = map[string]string{
	"lunch.min_hours_before_shift_start":     "Hours an employee works before lunch may start",
	"short_break.max_delay_min":              "How far past its due point a break may slip when the due interval cannot take one",
	"short_break.max_consecutive_work_hours": "Hard cap that forces a break regardless of cadence",
	"shift.min_rest_hours":                   "Minimum rest between consecutive shifts",
	"monitor.realtime_period_under_load_sec": "Realtime polling period while schedule changes keep arriving",
	"monitor.cooldown_sec":                   "Alert suppression window per (employee, violation type, shift date)",
	"optimizer.primary_skill_load_pct":       "Share of a multi-skill operator's hours reserved for the primary skill",
	"optimizer.target_utilization":           "Utilization ceiling for load-balanced assignment, as a fraction",
	"optimizer.development_reserve_pct":      "Share of a developing operator's hours held back for practice",
	"coverage.hourly_cost":                   "Stock hourly rate pricing coverage gaps when a service has no rate",
	"backup.schedule":                        "Backup cadence: daily, weekly or monthly",
	"backup.retention_days":                  "Days to keep old backups, 0 keeps them forever",
}

// SettingUpdate is the body of a setting update request.
type SettingUpdate struct {
	Value interface{} `json:"value"`
}
