// Package config provides configuration management for flowline using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort         = 8080
	defaultServerTimeout      = 30 * time.Second
	defaultShutdownTimeout    = 10 * time.Second
	defaultDatabaseDSN        = "flowline.db"
	defaultMaxOpenConns       = 10
	defaultMaxIdleConns       = 5
	defaultConnMaxIdleTime    = 30 * time.Minute
	defaultSanitizerMaxArray  = 3
	defaultSanitizerMaxString = 500
	defaultSanitizerMaxDepth  = 3
	defaultConcurrencyLimit   = 10
	defaultRetryAttempts      = 3
	defaultRetryBackoffMs     = 100
	defaultProgressThrottleMs = 2000
	defaultSchedulerCron      = "0 * * * * *" // every minute, 6-field cron
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Sanitizer SanitizerConfig `mapstructure:"sanitizer"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// ServerConfig holds HTTP server configuration for the progress/run
// introspection API.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// MaxRequestBodyBytes caps request bodies the HTTP API will read,
	// enforced by internal/httpapi via http.MaxBytesReader.
	MaxRequestBodyBytes ByteSize `mapstructure:"max_request_body_bytes"`
}

// DatabaseConfig holds the run-history store connection configuration.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
	// RunRetention is how long a completed run record is kept before
	// internal/store.PruneRuns deletes it; accepts day/week units ("30d",
	// "2w") beyond what time.ParseDuration understands.
	RunRetention Duration `mapstructure:"run_retention"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// SanitizerConfig holds limits for the telemetry payload sanitizer that
// guards verbose log fields (large arrays, long strings, deeply nested
// objects, embedding vectors) before they reach the log handler.
type SanitizerConfig struct {
	MaxArrayLength  int `mapstructure:"max_array_length"`
	MaxStringLength int `mapstructure:"max_string_length"`
	MaxDepth        int `mapstructure:"max_depth"`
}

// PipelineConfig holds default execution policy for the batch/streaming
// pipeline engines and the parallel/list-adapter components they compose.
type PipelineConfig struct {
	EnableGCHints      bool `mapstructure:"enable_gc_hints"`
	DefaultConcurrency int  `mapstructure:"default_concurrency"`
	RetryAttempts      int  `mapstructure:"retry_attempts"`
	// RetryBackoffMs is the linear backoff unit in milliseconds: the Nth
	// retry waits RetryBackoffMs*N before re-invoking the stage.
	RetryBackoffMs int `mapstructure:"retry_backoff_ms"`
	// ProgressThrottleMs is loaded and defaulted but read by no component:
	// the progress tracker broadcasts every event as soon as it is emitted.
	ProgressThrottleMs int `mapstructure:"progress_throttle_ms"`
}

// SchedulerConfig holds cron-driven recurring pipeline execution
// configuration.
type SchedulerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Cron    string `mapstructure:"cron"` // 6-field cron expression
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with FLOWLINE_ and use underscores for
// nesting. Example: FLOWLINE_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	SetDefaults(v)

	// Config file settings
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/flowline")
		v.AddConfigPath("$HOME/.flowline")
	}

	// Environment variable settings
	v.SetEnvPrefix("FLOWLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	// Sanitizer thresholds that do not parse as integers fall back to their
	// defaults rather than failing the load.
	for key, def := range map[string]int{
		"sanitizer.max_array_length":  defaultSanitizerMaxArray,
		"sanitizer.max_string_length": defaultSanitizerMaxString,
		"sanitizer.max_depth":         defaultSanitizerMaxDepth,
	} {
		if _, err := strconv.Atoi(strings.TrimSpace(v.GetString(key))); err != nil {
			v.Set(key, def)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults
// are in place.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.max_request_body_bytes", "1MB")

	// Database defaults
	v.SetDefault("database.dsn", defaultDatabaseDSN)
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.run_retention", "30d")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Sanitizer defaults (spec.md §6 defaults: 3/500/3)
	v.SetDefault("sanitizer.max_array_length", defaultSanitizerMaxArray)
	v.SetDefault("sanitizer.max_string_length", defaultSanitizerMaxString)
	v.SetDefault("sanitizer.max_depth", defaultSanitizerMaxDepth)

	// Pipeline defaults
	v.SetDefault("pipeline.enable_gc_hints", true)
	v.SetDefault("pipeline.default_concurrency", defaultConcurrencyLimit)
	v.SetDefault("pipeline.retry_attempts", defaultRetryAttempts)
	v.SetDefault("pipeline.retry_backoff_ms", defaultRetryBackoffMs)
	v.SetDefault("pipeline.progress_throttle_ms", defaultProgressThrottleMs)

	// Scheduler defaults
	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.cron", defaultSchedulerCron)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.Sanitizer.MaxArrayLength < 1 {
		return fmt.Errorf("sanitizer.max_array_length must be at least 1")
	}
	if c.Sanitizer.MaxStringLength < 1 {
		return fmt.Errorf("sanitizer.max_string_length must be at least 1")
	}
	if c.Sanitizer.MaxDepth < 1 {
		return fmt.Errorf("sanitizer.max_depth must be at least 1")
	}

	if c.Pipeline.DefaultConcurrency < 1 {
		return fmt.Errorf("pipeline.default_concurrency must be at least 1")
	}
	if c.Pipeline.RetryAttempts < 0 {
		return fmt.Errorf("pipeline.retry_attempts must be at least 0")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
