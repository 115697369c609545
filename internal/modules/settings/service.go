// Package settings stores runtime-tunable options in the operational
// database and serves them to the rest of the system as typed parameter
// bundles. Stored values override the compiled-in defaults, so planners and
// monitors can be retuned without a restart; unknown keys are rejected on
// write so a typo never silently configures nothing.
package settings

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/workforcelab/intraday/internal/domain"
)

// Service provides validated access to the settings table plus the typed
// parameter getters the planning and monitoring stacks consume.
type Service struct {
	repo *Repository
	log  zerolog.Logger
}

// NewService creates a settings service over the repository.
func NewService(repo *Repository, log zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With().Str("service", "settings").Logger(),
	}
}

// GetAll returns every recognized option with stored values overriding
// defaults. Numeric options come back as float64, string options verbatim.
func (s *Service) GetAll() (map[string]interface{}, error) {
	stored, err := s.repo.GetAll()
	if err != nil {
		return nil, err
	}

	result := make(map[string]interface{}, len(SettingDefaults))
	for key, defaultValue := range SettingDefaults {
		value, ok := stored[key]
		if !ok {
			result[key] = defaultValue
			continue
		}
		result[key] = parseStored(key, value, defaultValue)
	}

	return result, nil
}

// parseStored converts a stored string to the option's natural type,
// falling back to the default when it does not parse.
func parseStored(key, value string, defaultValue interface{}) interface{} {
	if BoolSettings[key] {
		return truthy(value)
	}
	if StringSettings[key] {
		return value
	}
	if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
		return floatVal
	}
	return defaultValue
}

func truthy(value string) bool {
	switch strings.ToLower(value) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

// Get returns one option, stored value first, default otherwise.
func (s *Service) Get(key string) (interface{}, error) {
	defaultValue, known := SettingDefaults[key]
	if !known {
		return nil, fmt.Errorf("%w: unknown setting %s", domain.ErrNotFound, key)
	}

	stored, err := s.repo.Get(key)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return defaultValue, nil
	}
	return parseStored(key, *stored, defaultValue), nil
}

// Set validates and stores one option.
func (s *Service) Set(key string, value interface{}) error {
	if _, known := SettingDefaults[key]; !known {
		return fmt.Errorf("%w: unknown setting %s", domain.ErrNotFound, key)
	}
	if err := validateSetting(key, value); err != nil {
		return err
	}

	var strValue string
	switch v := value.(type) {
	case string:
		strValue = v
	case bool:
		strValue = strconv.FormatBool(v)
	case float64:
		strValue = fmt.Sprintf("%f", v)
	case int:
		strValue = fmt.Sprintf("%d", v)
	default:
		return fmt.Errorf("%w: unsupported value type for setting %s", domain.ErrValidation, key)
	}

	if err := s.repo.Set(key, strValue, nil); err != nil {
		return err
	}

	s.log.Info().Str("key", key).Str("value", strValue).Msg("Setting updated")
	return nil
}

// Reset removes the stored value so reads fall back to the default.
func (s *Service) Reset(key string) error {
	if _, known := SettingDefaults[key]; !known {
		return fmt.Errorf("%w: unknown setting %s", domain.ErrNotFound, key)
	}
	return s.repo.Delete(key)
}

// validateSetting rejects values a stored option could never legally hold.
func validateSetting(key string, value interface{}) error {
	if BoolSettings[key] {
		switch v := value.(type) {
		case bool:
			return nil
		case string:
			switch strings.ToLower(v) {
			case "true", "false", "1", "0", "yes", "no", "on", "off":
				return nil
			}
		}
		return fmt.Errorf("%w: setting %s must be a boolean", domain.ErrValidation, key)
	}

	if StringSettings[key] {
		str, ok := value.(string)
		if !ok {
			return fmt.Errorf("%w: setting %s must be a string", domain.ErrValidation, key)
		}
		switch {
		case clockSettings[key]:
			if _, err := domain.ParseTimeOfDay(str); err != nil {
				return fmt.Errorf("%w: setting %s: %v", domain.ErrValidation, key, err)
			}
		case key == "backup.schedule":
			switch str {
			case "daily", "weekly", "monthly":
			default:
				return fmt.Errorf("%w: setting %s must be daily, weekly or monthly", domain.ErrValidation, key)
			}
		}
		return nil
	}

	var floatVal float64
	switch v := value.(type) {
	case float64:
		floatVal = v
	case int:
		floatVal = float64(v)
	default:
		return fmt.Errorf("%w: setting %s must be a number", domain.ErrValidation, key)
	}

	switch {
	case key == "optimizer.target_utilization":
		if floatVal <= 0 || floatVal > 1 {
			return fmt.Errorf("%w: setting %s must be in (0, 1], got %g", domain.ErrValidation, key, floatVal)
		}
	case strings.HasSuffix(key, "_pct"):
		if floatVal <= 0 || floatVal > 100 {
			return fmt.Errorf("%w: setting %s must be in (0, 100], got %g", domain.ErrValidation, key, floatVal)
		}
	case strings.HasPrefix(key, "threshold."):
		if floatVal < 0 || floatVal > 100 {
			return fmt.Errorf("%w: setting %s must be in [0, 100], got %g", domain.ErrValidation, key, floatVal)
		}
	case key == "backup.retention_days":
		if floatVal < 0 {
			return fmt.Errorf("%w: setting %s must be zero or more days, got %g", domain.ErrValidation, key, floatVal)
		}
	default:
		if floatVal <= 0 {
			return fmt.Errorf("%w: setting %s must be positive, got %g", domain.ErrValidation, key, floatVal)
		}
	}
	return nil
}

// float reads a numeric option, falling back to its default on a missing
// row, a parse failure, or a storage error.
func (s *Service) float(key string) float64 {
	def, _ := SettingDefaults[key].(float64)
	value, err := s.repo.GetFloat(key, def)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Failed to read setting, using default")
		return def
	}
	return value
}

// str reads a string option, falling back to its default.
func (s *Service) str(key string) string {
	def, _ := SettingDefaults[key].(string)
	value, err := s.repo.GetString(key, def)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Failed to read setting, using default")
		return def
	}
	return value
}

// flag reads an on/off option, falling back to its default.
func (s *Service) flag(key string) bool {
	def, _ := SettingDefaults[key].(bool)
	value, err := s.repo.GetBool(key, def)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Failed to read setting, using default")
		return def
	}
	return value
}

func (s *Service) minutes(key string) time.Duration {
	return time.Duration(s.float(key) * float64(time.Minute))
}

func (s *Service) seconds(key string) time.Duration {
	return time.Duration(s.float(key) * float64(time.Second))
}

// clock reads a "HH:MM" option, falling back to its default when the stored
// value does not parse.
func (s *Service) clock(key string) domain.TimeOfDay {
	def, _ := SettingDefaults[key].(string)
	stored, err := s.repo.GetString(key, def)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Failed to read setting, using default")
		stored = def
	}
	t, err := domain.ParseTimeOfDay(stored)
	if err != nil {
		s.log.Warn().Str("key", key).Str("value", stored).Msg("Stored clock time does not parse, using default")
		t, _ = domain.ParseTimeOfDay(def)
	}
	return t
}

// Lunch returns the lunch placement parameters.
func (s *Service) Lunch() LunchParams {
	return LunchParams{
		EarliestStart:  s.clock("lunch.earliest_start"),
		LatestStart:    s.clock("lunch.latest_start"),
		MinDuration:    s.minutes("lunch.min_duration_min"),
		MaxDuration:    s.minutes("lunch.max_duration_min"),
		MinHoursBefore: s.float("lunch.min_hours_before_shift_start"),
	}
}

// ShortBreaks returns the short-break cadence parameters.
func (s *Service) ShortBreaks() BreakParams {
	return BreakParams{
		Duration:                s.minutes("short_break.duration_min"),
		FrequencyHours:          s.float("short_break.frequency_hours"),
		Spacing:                 s.minutes("short_break.spacing_min"),
		MaxDelay:                s.minutes("short_break.max_delay_min"),
		MaxConsecutiveWorkHours: s.float("short_break.max_consecutive_work_hours"),
	}
}

// Shifts returns the shift shape limits.
func (s *Service) Shifts() ShiftLimits {
	return ShiftLimits{
		MinHours:     s.float("shift.min_hours"),
		MaxHours:     s.float("shift.max_hours"),
		MinRestHours: s.float("shift.min_rest_hours"),
	}
}

// ComplianceCacheTTLs returns the validation result cache lifetimes.
func (s *Service) ComplianceCacheTTLs() CacheTTLs {
	return CacheTTLs{
		Employee: s.seconds("compliance.cache_ttl_employee_sec"),
		Rules:    s.seconds("compliance.cache_ttl_rules_sec"),
	}
}

// Monitor returns the violation monitor parameters.
func (s *Service) Monitor() MonitorParams {
	return MonitorParams{
		RealtimePeriod:    s.seconds("monitor.realtime_period_sec"),
		RealtimeUnderLoad: s.seconds("monitor.realtime_period_under_load_sec"),
		BatchPeriod:       s.seconds("monitor.batch_period_sec"),
		Cooldown:          s.seconds("monitor.cooldown_sec"),
		QueueCapacity:     int(s.float("monitor.queue_capacity")),
		BatchSize:         int(s.float("monitor.batch_size")),
	}
}

// ServiceLevelThresholds returns the stock service-level alerting band.
func (s *Service) ServiceLevelThresholds() ThresholdBand {
	return ThresholdBand{
		Warning:   s.float("threshold.service_level.warning"),
		Critical:  s.float("threshold.service_level.critical"),
		Emergency: s.float("threshold.service_level.emergency"),
	}
}

// AbandonmentThresholds returns the stock abandonment-rate alerting band.
func (s *Service) AbandonmentThresholds() ThresholdBand {
	return ThresholdBand{
		Warning:   s.float("threshold.abandonment_rate.warning"),
		Critical:  s.float("threshold.abandonment_rate.critical"),
		Emergency: s.float("threshold.abandonment_rate.emergency"),
	}
}

// Optimizer returns the multi-skill assignment parameters.
func (s *Service) Optimizer() OptimizerParams {
	return OptimizerParams{
		PrimarySkillLoadPct:   s.float("optimizer.primary_skill_load_pct"),
		TargetUtilization:     s.float("optimizer.target_utilization"),
		DevelopmentReservePct: s.float("optimizer.development_reserve_pct"),
	}
}

// Coverage returns the coverage analysis parameters.
func (s *Service) Coverage() CoverageParams {
	return CoverageParams{
		LivePeriod:  s.seconds("coverage.live_period_sec"),
		HourlyCost:  s.float("coverage.hourly_cost"),
		TrendWindow: s.minutes("coverage.trend_window_min"),
	}
}

// Backup returns the database backup target and cadence.
func (s *Service) Backup() BackupParams {
	return BackupParams{
		Enabled:       s.flag("backup.enabled"),
		Schedule:      s.str("backup.schedule"),
		RetentionDays: int(s.float("backup.retention_days")),
		S3Endpoint:    s.str("backup.s3_endpoint"),
		S3Region:      s.str("backup.s3_region"),
		S3Bucket:      s.str("backup.s3_bucket"),
		S3AccessKeyID: s.str("backup.s3_access_key_id"),
		S3SecretKey:   s.str("backup.s3_secret_access_key"),
	}
}
