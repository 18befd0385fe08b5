// Package config loads the coordinator application configuration.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/compose-network/reqcoord/server/api"
)

// Config holds the complete application configuration.
type Config struct {
	API         api.Config        `mapstructure:"api"         yaml:"api"`
	Coordinator CoordinatorConfig `mapstructure:"coordinator" yaml:"coordinator"`
	Fetch       FetchConfig       `mapstructure:"fetch"       yaml:"fetch"`
	Metrics     MetricsConfig     `mapstructure:"metrics"     yaml:"metrics"`
	Log         LogConfig         `mapstructure:"log"         yaml:"log"`
}

// CoordinatorConfig holds request coordination settings.
type CoordinatorConfig struct {
	MaxConcurrentRequests int           `mapstructure:"max_concurrent_requests" yaml:"max_concurrent_requests" env:"COORDINATOR_MAX_CONCURRENT_REQUESTS"`
	DefaultTimeout        time.Duration `mapstructure:"default_timeout"         yaml:"default_timeout"         env:"COORDINATOR_DEFAULT_TIMEOUT"`
	DefaultCacheTTL       time.Duration `mapstructure:"default_cache_ttl"       yaml:"default_cache_ttl"       env:"COORDINATOR_DEFAULT_CACHE_TTL"`
	SweepInterval         time.Duration `mapstructure:"sweep_interval"          yaml:"sweep_interval"          env:"COORDINATOR_SWEEP_INTERVAL"`
	StaleThreshold        time.Duration `mapstructure:"stale_threshold"         yaml:"stale_threshold"         env:"COORDINATOR_STALE_THRESHOLD"`
}

// FetchConfig holds settings for the outbound fetch work unit.
type FetchConfig struct {
	UserAgent        string `mapstructure:"user_agent"         yaml:"user_agent"`
	MaxResponseBytes int64  `mapstructure:"max_response_bytes" yaml:"max_response_bytes"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" env:"METRICS_ENABLED"`
	Path    string `mapstructure:"path"    yaml:"path"    env:"METRICS_PATH"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"  env:"LOG_LEVEL"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty" env:"LOG_PRETTY"`
}

// Load loads configuration from file and environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("api.listen_addr", ":8080")
	v.SetDefault("api.read_header_timeout", "5s")
	v.SetDefault("api.read_timeout", "15s")
	v.SetDefault("api.write_timeout", "60s")
	v.SetDefault("api.idle_timeout", "120s")
	v.SetDefault("api.max_header_bytes", 1048576)

	v.SetDefault("coordinator.max_concurrent_requests", 5)
	v.SetDefault("coordinator.default_timeout", "30s")
	v.SetDefault("coordinator.default_cache_ttl", "30s")
	v.SetDefault("coordinator.sweep_interval", "10s")
	v.SetDefault("coordinator.stale_threshold", "5m")

	v.SetDefault("fetch.user_agent", "reqcoord/1.0")
	v.SetDefault("fetch.max_response_bytes", 4*1024*1024)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.API.ListenAddr) == "" {
		return errors.New("api.listen_addr is required")
	}
	if c.Coordinator.MaxConcurrentRequests <= 0 {
		return errors.New("coordinator.max_concurrent_requests must be positive")
	}
	if c.Coordinator.DefaultTimeout <= 0 {
		return errors.New("coordinator.default_timeout must be positive")
	}
	if c.Coordinator.DefaultCacheTTL <= 0 {
		return errors.New("coordinator.default_cache_ttl must be positive")
	}
	if c.Coordinator.SweepInterval <= 0 {
		return errors.New("coordinator.sweep_interval must be positive")
	}
	if c.Coordinator.StaleThreshold < c.Coordinator.DefaultTimeout {
		return fmt.Errorf("coordinator.stale_threshold (%s) must not undercut coordinator.default_timeout (%s)",
			c.Coordinator.StaleThreshold, c.Coordinator.DefaultTimeout)
	}
	if c.Fetch.MaxResponseBytes <= 0 {
		return errors.New("fetch.max_response_bytes must be positive")
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return errors.New("metrics.path must start with /")
	}
	return nil
}
