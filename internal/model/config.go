package model

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	// Addr is the listen address for the API server.
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// DatabaseConfig holds the record store settings.
type DatabaseConfig struct {
	// Path is the SQLite database file location.
	Path string `mapstructure:"path" yaml:"path"`
}

// IngestConfig holds tunables for the email ingestion pipeline.
type IngestConfig struct {
	// DedupWindowDays is the date tolerance used when matching a
	// candidate to a stored application without an external id.
	DedupWindowDays int `mapstructure:"dedup_window_days" yaml:"dedup_window_days"`
}

// JobsConfig holds background-job runner settings.
type JobsConfig struct {
	// RetentionMinutes is how long terminal jobs stay pollable.
	RetentionMinutes int `mapstructure:"retention_minutes" yaml:"retention_minutes"`
}

// EnrichmentConfig holds the rate-limit and breaker parameters for the
// page enrichment worker. All of these are configuration, not hard-coded:
// the worker must stay polite toward the target site.
type EnrichmentConfig struct {
	RequestsPerMinute      int `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	MaxConsecutiveFailures int `mapstructure:"max_consecutive_failures" yaml:"max_consecutive_failures"`
	StandardDelayMs        int `mapstructure:"standard_delay_ms" yaml:"standard_delay_ms"`
	BackoffDelayMs         int `mapstructure:"backoff_delay_ms" yaml:"backoff_delay_ms"`
	RequestTimeoutSec      int `mapstructure:"request_timeout_sec" yaml:"request_timeout_sec"`
	MaxRedirects           int `mapstructure:"max_redirects" yaml:"max_redirects"`
}

// StandardDelay returns the minimum gap between enrichment requests.
func (c EnrichmentConfig) StandardDelay() time.Duration {
	return time.Duration(c.StandardDelayMs) * time.Millisecond
}

// BackoffDelay returns the breaker pause after repeated failures.
func (c EnrichmentConfig) BackoffDelay() time.Duration {
	return time.Duration(c.BackoffDelayMs) * time.Millisecond
}

// RequestTimeout returns the per-request HTTP timeout.
func (c EnrichmentConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

// LoggingConfig holds log output preferences.
type LoggingConfig struct {
	// Level is one of trace, debug, info, warn, error.
	Level string `mapstructure:"level" yaml:"level"`

	// Console switches to human-readable console output instead of JSON.
	Console bool `mapstructure:"console" yaml:"console"`
}

// AppConfig is the top-level service configuration.
type AppConfig struct {
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Database   DatabaseConfig   `mapstructure:"database" yaml:"database"`
	Ingest     IngestConfig     `mapstructure:"ingest" yaml:"ingest"`
	Jobs       JobsConfig       `mapstructure:"jobs" yaml:"jobs"`
	Enrichment EnrichmentConfig `mapstructure:"enrichment" yaml:"enrichment"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
}

// DedupWindow returns the ingest dedup tolerance as a duration.
func (c *AppConfig) DedupWindow() time.Duration {
	return time.Duration(c.Ingest.DedupWindowDays) * 24 * time.Hour
}

// JobRetention returns how long terminal background jobs stay pollable.
func (c *AppConfig) JobRetention() time.Duration {
	return time.Duration(c.Jobs.RetentionMinutes) * time.Minute
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/jobtrack/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "jobtrack", "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Server:   ServerConfig{Addr: ":8080"},
		Database: DatabaseConfig{Path: defaultDatabasePath()},
		Ingest:   IngestConfig{DedupWindowDays: 3},
		Jobs:     JobsConfig{RetentionMinutes: 5},
		Enrichment: EnrichmentConfig{
			RequestsPerMinute:      10,
			MaxConsecutiveFailures: 3,
			StandardDelayMs:        5000,
			BackoffDelayMs:         600000,
			RequestTimeoutSec:      15,
			MaxRedirects:           5,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

func defaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "jobtrack.db"
	}
	return filepath.Join(home, ".config", "jobtrack", "jobtrack.db")
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns the default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("database.path", defaultDatabasePath())
	v.SetDefault("ingest.dedup_window_days", 3)
	v.SetDefault("jobs.retention_minutes", 5)
	v.SetDefault("enrichment.requests_per_minute", 10)
	v.SetDefault("enrichment.max_consecutive_failures", 3)
	v.SetDefault("enrichment.standard_delay_ms", 5000)
	v.SetDefault("enrichment.backoff_delay_ms", 600000)
	v.SetDefault("enrichment.request_timeout_sec", 15)
	v.SetDefault("enrichment.max_redirects", 5)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", false)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaultAppConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultAppConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}
