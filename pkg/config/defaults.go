package config

import (
	"strings"
	"time"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero numeric and string values (0, "") are replaced with defaults;
// explicit values are preserved. Booleans are left untouched.
func ApplyDefaults(cfg *Config) {
	if cfg.Format == "" {
		cfg.Format = "table"
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}
	if cfg.DebounceWindow == 0 {
		cfg.DebounceWindow = 50 * time.Millisecond
	}

	// Populate is not defaulted here: its true default comes from
	// viper.SetDefault in setupViper, and --no-populate is the explicit
	// opt-out that sets it to false.

	applyLoggingDefaults(&cfg.Logging)
	applyMetricsDefaults(&cfg.Metrics)

	if cfg.Verbose {
		cfg.Logging.Level = "DEBUG"
	}
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

// applyMetricsDefaults sets metrics endpoint defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.ListenAddr == "" {
		cfg.ListenAddr = ":9090"
	}
}

// GetDefaultConfig returns a Config struct with all default values applied,
// for config-file generation and tests.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Volume:   "C",
		Populate: true,
	}
	ApplyDefaults(cfg)
	return cfg
}
