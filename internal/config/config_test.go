package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Server defaults
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)

	// Database defaults
	assert.Equal(t, "flowline.db", cfg.Database.DSN)
	assert.Equal(t, 10, cfg.Database.MaxOpenConns)

	// Logging defaults
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	// Sanitizer defaults (spec.md §6: 3/500/3)
	assert.Equal(t, 3, cfg.Sanitizer.MaxArrayLength)
	assert.Equal(t, 500, cfg.Sanitizer.MaxStringLength)
	assert.Equal(t, 3, cfg.Sanitizer.MaxDepth)

	// Pipeline defaults
	assert.True(t, cfg.Pipeline.EnableGCHints)
	assert.Equal(t, 10, cfg.Pipeline.DefaultConcurrency)
	assert.Equal(t, 3, cfg.Pipeline.RetryAttempts)

	// Scheduler defaults
	assert.False(t, cfg.Scheduler.Enabled)

	// Human-readable size/duration defaults
	assert.Equal(t, ByteSize(1024*1024), cfg.Server.MaxRequestBodyBytes)
	assert.Equal(t, 30*24*time.Hour, cfg.Database.RunRetention.Duration())
}

func TestLoad_FromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  host: "127.0.0.1"
  port: 9090
  read_timeout: 60s

database:
  dsn: "/var/lib/flowline/runs.db"
  max_open_conns: 20

logging:
  level: "debug"
  format: "text"

sanitizer:
  max_array_length: 5
  max_string_length: 1000
  max_depth: 4

pipeline:
  default_concurrency: 20
  retry_attempts: 5
`
	err := os.WriteFile(configPath, []byte(configContent), 0o600)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "/var/lib/flowline/runs.db", cfg.Database.DSN)
	assert.Equal(t, 20, cfg.Database.MaxOpenConns)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 5, cfg.Sanitizer.MaxArrayLength)
	assert.Equal(t, 1000, cfg.Sanitizer.MaxStringLength)
	assert.Equal(t, 4, cfg.Sanitizer.MaxDepth)
	assert.Equal(t, 20, cfg.Pipeline.DefaultConcurrency)
	assert.Equal(t, 5, cfg.Pipeline.RetryAttempts)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("FLOWLINE_SERVER_PORT", "3000")
	t.Setenv("FLOWLINE_DATABASE_DSN", "test-override.db")
	t.Setenv("FLOWLINE_LOGGING_LEVEL", "warn")
	t.Setenv("FLOWLINE_SANITIZER_MAX_ARRAY_LENGTH", "7")
	t.Setenv("FLOWLINE_PIPELINE_DEFAULT_CONCURRENCY", "16")

	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "test-override.db", cfg.Database.DSN)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 7, cfg.Sanitizer.MaxArrayLength)
	assert.Equal(t, 16, cfg.Pipeline.DefaultConcurrency)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: 8080
database:
  dsn: "test.db"
`
	err := os.WriteFile(configPath, []byte(configContent), 0o600)
	require.NoError(t, err)

	t.Setenv("FLOWLINE_SERVER_PORT", "9000")

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "test.db", cfg.Database.DSN)
}

func baseValidConfig() *Config {
	return &Config{
		Server:    ServerConfig{Host: "0.0.0.0", Port: 8080},
		Database:  DatabaseConfig{DSN: "test.db"},
		Logging:   LoggingConfig{Level: "info", Format: "json"},
		Sanitizer: SanitizerConfig{MaxArrayLength: 3, MaxStringLength: 500, MaxDepth: 3},
		Pipeline:  PipelineConfig{DefaultConcurrency: 10, RetryAttempts: 3},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	err := baseValidConfig().Validate()
	assert.NoError(t, err)
}

func TestValidate_InvalidPort(t *testing.T) {
	tests := []struct {
		name string
		port int
	}{
		{"zero port", 0},
		{"negative port", -1},
		{"port too high", 70000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseValidConfig()
			cfg.Server.Port = tt.port
			err := cfg.Validate()
			assert.Error(t, err)
			assert.Contains(t, err.Error(), "server.port")
		})
	}
}

func TestValidate_EmptyDSN(t *testing.T) {
	cfg := baseValidConfig()
	cfg.Database.DSN = ""
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "database.dsn")
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := baseValidConfig()
	cfg.Logging.Level = "invalid"
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "logging.level")
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := baseValidConfig()
	cfg.Logging.Format = "xml"
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "logging.format")
}

func TestValidate_InvalidSanitizerLimits(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		errContains string
	}{
		{"zero max array", func(c *Config) { c.Sanitizer.MaxArrayLength = 0 }, "max_array_length"},
		{"zero max string", func(c *Config) { c.Sanitizer.MaxStringLength = 0 }, "max_string_length"},
		{"zero max depth", func(c *Config) { c.Sanitizer.MaxDepth = 0 }, "max_depth"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseValidConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			assert.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestValidate_InvalidConcurrency(t *testing.T) {
	cfg := baseValidConfig()
	cfg.Pipeline.DefaultConcurrency = 0
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "default_concurrency")
}

func TestServerConfig_Address(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		port     int
		expected string
	}{
		{"localhost", "127.0.0.1", 8080, "127.0.0.1:8080"},
		{"all interfaces", "0.0.0.0", 3000, "0.0.0.0:3000"},
		{"hostname", "example.com", 443, "example.com:443"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &ServerConfig{Host: tt.host, Port: tt.port}
			assert.Equal(t, tt.expected, cfg.Address())
		})
	}
}

func TestLoad_InvalidConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	invalidContent := `
server:
  port: "not a number"
  invalid yaml structure
`
	err := os.WriteFile(configPath, []byte(invalidContent), 0o600)
	require.NoError(t, err)

	_, err = Load(configPath)
	assert.Error(t, err)
}

func TestLoad_NonExistentFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}
