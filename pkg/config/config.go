package config

import "time"

// Config is the root configuration structure. It selects and configures
// the bucket store backend, declares the per-key limits, and tunes the
// waiting and telemetry behavior.
type Config struct {
	// Store selects and configures the bucket state backend.
	Store StoreConfig `yaml:"store"`

	// Limits declares the rate limits per logical key. Keys are arbitrary
	// identifiers (e.g., "chat", "embeddings").
	Limits map[string]LimitConfig `yaml:"limits"`

	// Wait tunes how callers wait for admission when a bucket is empty.
	Wait WaitConfig `yaml:"wait"`

	// Telemetry contains logging and metrics configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// StoreConfig selects the bucket store backend and its settings. Exactly
// one backend is active, named by Backend; the other sections are ignored.
type StoreConfig struct {
	// Backend is one of "memory", "redis", "sqlite", "remote".
	// Default: "memory"
	Backend string `yaml:"backend"`

	// FailOpen admits calls without consuming when the backend is
	// unreachable. The default fails closed.
	// Default: false
	FailOpen bool `yaml:"fail_open"`

	// Redis configures the Redis backend.
	Redis RedisConfig `yaml:"redis"`

	// SQLite configures the embedded SQLite backend.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// Remote configures the hosted bucket service backend.
	Remote RemoteConfig `yaml:"remote"`
}

// RedisConfig contains settings for the Redis bucket store.
type RedisConfig struct {
	// Addr is the Redis server address.
	// Default: "localhost:6379"
	Addr string `yaml:"addr"`

	// Password authenticates to Redis. Empty means no auth.
	Password string `yaml:"password"`

	// DB is the Redis database number.
	// Default: 0
	DB int `yaml:"db"`

	// KeyPrefix namespaces all bucket keys.
	// Default: "choked:"
	KeyPrefix string `yaml:"key_prefix"`

	// Timeout bounds each Redis operation.
	// Default: 5s
	Timeout time.Duration `yaml:"timeout"`
}

// SQLiteConfig contains settings for the embedded SQLite bucket store.
type SQLiteConfig struct {
	// Path is the database file path.
	// Default: "data/choked.db"
	Path string `yaml:"path"`

	// BusyTimeout is how long a write waits on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// SweepSchedule is a cron expression for deleting idle bucket rows.
	// Empty disables the sweep.
	// Default: "0 * * * *" (hourly)
	SweepSchedule string `yaml:"sweep_schedule"`

	// IdleTTL is how long an untouched bucket row survives sweeps.
	// Default: 1h
	IdleTTL time.Duration `yaml:"idle_ttl"`
}

// RemoteConfig contains settings for the hosted bucket service backend.
type RemoteConfig struct {
	// Endpoint is the service base URL.
	Endpoint string `yaml:"endpoint"`

	// Token is the bearer token for the service. Usually supplied through
	// the CHOKED_API_TOKEN environment variable rather than the file.
	Token string `yaml:"token"`

	// Timeout bounds each HTTP call to the service.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// LimitConfig declares the limits for one logical key. At least one of
// RequestLimit and TokenLimit is required.
type LimitConfig struct {
	// RequestLimit caps how many calls may start, as "count/unit" where
	// unit is s, m, or h (e.g., "50/s"). Empty disables the dimension.
	RequestLimit string `yaml:"request_limit"`

	// TokenLimit caps the total call cost, in the same "count/unit" form
	// (e.g., "100000/m"). Empty disables the dimension.
	TokenLimit string `yaml:"token_limit"`

	// TokenEstimator names the built-in cost estimator used when callers
	// do not supply their own ("default", "openai", "anthropic", "words").
	// Only valid together with TokenLimit.
	// Default: "default"
	TokenEstimator string `yaml:"token_estimator"`
}

// WaitConfig tunes admission waiting.
type WaitConfig struct {
	// Timeout bounds the total time a caller may wait for admission.
	// Zero waits until the caller's context is done.
	// Default: 0
	Timeout time.Duration `yaml:"timeout"`

	// MaxInterval caps any single pause between admission attempts.
	// Default: 30s
	MaxInterval time.Duration `yaml:"max_interval"`

	// BaseInterval seeds the exponential pause used when the store gave no
	// wait estimate.
	// Default: 500ms
	BaseInterval time.Duration `yaml:"base_interval"`

	// JitterFraction is the maximum fraction of a pause added as random
	// jitter, in [0, 1].
	// Default: 0.2
	JitterFraction float64 `yaml:"jitter_fraction"`
}

// TelemetryConfig contains logging and metrics configuration.
type TelemetryConfig struct {
	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics configures Prometheus metrics.
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	// Default: "info"
	Level string `yaml:"level"`

	// Format is "json" or "text".
	// Default: "json"
	Format string `yaml:"format"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	// Enabled controls whether metrics are registered and served.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path metrics are exposed on when a server is run.
	// Default: "/metrics"
	Path string `yaml:"path"`
}
