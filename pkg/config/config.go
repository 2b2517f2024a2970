package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/marmos91/usnwatcher/internal/appdata"
)

// Config is the daemon's complete runtime configuration.
//
// Configuration sources, in order of precedence (highest first):
//  1. CLI flags
//  2. Environment variables (USNWATCHER_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values
type Config struct {
	// Volume is the single drive letter to watch, e.g. "C".
	Volume string `mapstructure:"volume" validate:"required,len=1"`

	// Format selects the stdout rendering: "table" for a human-readable
	// summary line per event, "json" for raw NDJSON.
	Format string `mapstructure:"format" validate:"required,oneof=table json"`

	// PollInterval is how long the main loop sleeps between journal
	// reads when a batch came back empty.
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"required,gt=0"`

	// DebounceWindow is the coalescer's quiet-window before a pending
	// FRN's merged event is flushed.
	DebounceWindow time.Duration `mapstructure:"debounce_window" validate:"required,gt=0"`

	// Filter is an optional filter expression (see internal/filter);
	// empty means pass everything.
	Filter string `mapstructure:"filter"`

	// Populate enables the background MFT scan that bootstraps the
	// FRN→path map. Disabling it (--no-populate) relies solely on the
	// cached snapshot, if any, plus live create/rename observations.
	Populate bool `mapstructure:"populate"`

	// Verbose raises the log level to DEBUG regardless of Logging.Level.
	Verbose bool `mapstructure:"verbose"`

	// Pipe enables the named-pipe broadcaster for this volume.
	Pipe bool `mapstructure:"pipe"`

	// PipeName overrides the per-volume pipe name
	// (\\.\pipe\usn-watcher-<LETTER>) with a fixed name, for operators
	// standardizing on a single consumer-side pipe name across volumes.
	PipeName string `mapstructure:"pipe_name"`

	// FilterLog, if non-empty, names a file that receives one line per
	// event the filter predicate rejected, for auditing filter behavior.
	FilterLog string `mapstructure:"filter_log"`

	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging"`

	// Metrics controls the optional Prometheus exposition endpoint.
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase).
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format names the log output format.
	// Valid values: text, json. Only the value is validated; the logger
	// writes text lines either way.
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written: "stdout", or "stderr" (the
	// default). Any other value, including a file path, is accepted by
	// validation and sends logs to stderr.
	Output string `mapstructure:"output" validate:"required"`
}

// MetricsConfig controls the optional Prometheus exposition endpoint.
type MetricsConfig struct {
	// Enabled turns on the /metrics HTTP endpoint.
	Enabled bool `mapstructure:"enabled"`

	// ListenAddr is the address the metrics server binds to, e.g. ":9090".
	ListenAddr string `mapstructure:"listen_addr" validate:"required_if=Enabled true"`
}

// Load loads configuration from file, environment, and defaults. flagOverrides,
// if non-nil, is applied last and wins over everything else — it is how
// the CLI's parsed pflag values reach the final Config.
func Load(configPath string, flagOverrides map[string]any) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	for key, value := range flagOverrides {
		v.Set(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the USNWATCHER_ prefix and underscores.
	// Example: USNWATCHER_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("USNWATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// populate has no usable Go zero value: false both means "user wants
	// it off" and "key absent everywhere". viper.SetDefault resolves the
	// ambiguity because it sits below every other source, including an
	// explicit flagOverrides["populate"] = false from --no-populate.
	v.SetDefault("populate", true)

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}

	configDir := appdata.Dir("usn-watcher")
	v.AddConfigPath(configDir)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper, configPath string) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		// An explicit path set via SetConfigFile surfaces a missing file
		// as a plain not-exist error rather than ConfigFileNotFoundError.
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return appdata.Dir("usn-watcher") + "/config.yaml"
}
