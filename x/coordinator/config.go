package coordinator

import (
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// Config contains all settings and dependencies for a Coordinator.
type Config struct {
	Logger zerolog.Logger

	// MaxConcurrentRequests caps how many operations run at once; further
	// admissions queue until a slot frees.
	MaxConcurrentRequests int

	// DefaultTimeout bounds operations that do not set their own timeout.
	DefaultTimeout time.Duration

	// DefaultCacheTTL applies to successful keyed results whose options do
	// not set a TTL.
	DefaultCacheTTL time.Duration

	// SweepInterval is the cadence of the background pass evicting expired
	// cache entries and reaping stale operations.
	SweepInterval time.Duration

	// StaleThreshold is the age past which an unsettled operation is treated
	// as leaked and force-cancelled. This is a safety net; per-operation
	// timeouts are the primary bound.
	StaleThreshold time.Duration

	// Now returns the current time; defaults to time.Now.
	Now func() time.Time

	// EnableMetrics registers Prometheus metrics for this coordinator.
	EnableMetrics bool
}

// DefaultConfig returns a config with all optional fields at their defaults.
func DefaultConfig(logger zerolog.Logger) Config {
	return Config{
		Logger:                logger.With().Str("component", "coordinator").Logger(),
		MaxConcurrentRequests: DefaultMaxConcurrentRequests,
		DefaultTimeout:        DefaultTimeout,
		DefaultCacheTTL:       DefaultCacheTTL,
		SweepInterval:         DefaultSweepInterval,
		StaleThreshold:        DefaultStaleThreshold,
		Now:                   time.Now,
	}
}

func (cfg *Config) apply() error {
	if cfg.MaxConcurrentRequests < 0 {
		return errors.New("coordinator: max concurrent requests must not be negative")
	}
	if cfg.MaxConcurrentRequests == 0 {
		cfg.MaxConcurrentRequests = DefaultMaxConcurrentRequests
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultTimeout
	}
	if cfg.DefaultCacheTTL <= 0 {
		cfg.DefaultCacheTTL = DefaultCacheTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.StaleThreshold <= 0 {
		cfg.StaleThreshold = DefaultStaleThreshold
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return nil
}
