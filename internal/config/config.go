// Package config loads process configuration from the environment, with
// runtime overrides from the settings table layered on top after the
// databases open.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/workforcelab/intraday/internal/modules/settings"
)

// Config holds the process configuration.
type Config struct {
	// DataDir is the base directory for all databases, always absolute.
	DataDir  string
	Port     int
	DevMode  bool
	LogLevel string
	// RulesPath points at an external rules file; empty selects the
	// embedded ruleset.
	RulesPath string
	Backup    *BackupConfig
}

// BackupConfig holds the S3-compatible backup target. Values from the
// settings table override these after UpdateFromSettings runs.
type BackupConfig struct {
	Enabled           bool
	Schedule          string
	RetentionDays     int
	S3Endpoint        string
	S3Region          string
	S3Bucket          string
	S3AccessKeyID     string
	S3SecretAccessKey string
}

// Load reads configuration from the environment. A .env file in the working
// directory is honored when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("WFM_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:   absDataDir,
		Port:      getEnvAsInt("WFM_PORT", 8080),
		DevMode:   getEnvAsBool("DEV_MODE", false),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		RulesPath: getEnv("WFM_RULES_PATH", ""),
		Backup: &BackupConfig{
			Enabled:           getEnvAsBool("BACKUP_ENABLED", false),
			Schedule:          getEnv("BACKUP_SCHEDULE", "daily"),
			RetentionDays:     getEnvAsInt("BACKUP_RETENTION_DAYS", 90),
			S3Endpoint:        getEnv("BACKUP_S3_ENDPOINT", ""),
			S3Region:          getEnv("BACKUP_S3_REGION", "auto"),
			S3Bucket:          getEnv("BACKUP_S3_BUCKET", ""),
			S3AccessKeyID:     getEnv("BACKUP_S3_ACCESS_KEY_ID", ""),
			S3SecretAccessKey: getEnv("BACKUP_S3_SECRET_ACCESS_KEY", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// UpdateFromSettings layers stored settings over the environment values.
// Call it once the operational database is open; stored values win, empty
// stored values keep the environment fallback.
func (c *Config) UpdateFromSettings(repo *settings.Repository) error {
	enabled, err := repo.GetBool("backup.enabled", c.Backup.Enabled)
	if err != nil {
		return fmt.Errorf("failed to get backup.enabled from settings: %w", err)
	}
	c.Backup.Enabled = enabled

	retention, err := repo.GetInt("backup.retention_days", c.Backup.RetentionDays)
	if err != nil {
		return fmt.Errorf("failed to get backup.retention_days from settings: %w", err)
	}
	if retention >= 0 {
		c.Backup.RetentionDays = retention
	}

	overrides := []struct {
		key string
		dst *string
	}{
		{"backup.schedule", &c.Backup.Schedule},
		{"backup.s3_endpoint", &c.Backup.S3Endpoint},
		{"backup.s3_region", &c.Backup.S3Region},
		{"backup.s3_bucket", &c.Backup.S3Bucket},
		{"backup.s3_access_key_id", &c.Backup.S3AccessKeyID},
		{"backup.s3_secret_access_key", &c.Backup.S3SecretAccessKey},
	}
	for _, o := range overrides {
		stored, err := repo.Get(o.key)
		if err != nil {
			return fmt.Errorf("failed to get %s from settings: %w", o.key, err)
		}
		if stored != nil && *stored != "" {
			*o.dst = *stored
		}
	}

	return nil
}

// Validate checks the loaded configuration for values the process cannot
// start with.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	switch c.Backup.Schedule {
	case "daily", "weekly", "monthly":
	default:
		return fmt.Errorf("invalid backup schedule %q, want daily, weekly or monthly", c.Backup.Schedule)
	}
	if c.Backup.RetentionDays < 0 {
		return fmt.Errorf("backup retention days must be zero or more, got %d", c.Backup.RetentionDays)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
