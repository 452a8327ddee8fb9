package config

import "time"

// Default values for configuration fields.
const (
	// Store defaults
	DefaultStoreBackend = "memory"

	// Redis defaults
	DefaultRedisAddr      = "localhost:6379"
	DefaultRedisKeyPrefix = "choked:"
	DefaultRedisTimeout   = 5 * time.Second

	// SQLite defaults
	DefaultSQLitePath          = "data/choked.db"
	DefaultSQLiteBusyTimeout   = 5 * time.Second
	DefaultSQLiteSweepSchedule = "0 * * * *"
	DefaultSQLiteIdleTTL       = time.Hour

	// Remote defaults
	DefaultRemoteTimeout = 10 * time.Second

	// Limit defaults
	DefaultTokenEstimator = "default"

	// Wait defaults
	DefaultWaitMaxInterval   = 30 * time.Second
	DefaultWaitBaseInterval  = 500 * time.Millisecond
	DefaultWaitJitterFraction = 0.2

	// Telemetry defaults
	DefaultLoggingLevel  = "info"
	DefaultLoggingFormat = "json"
	DefaultMetricsPath   = "/metrics"
)

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Store defaults
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = DefaultStoreBackend
	}

	// Redis defaults
	if cfg.Store.Redis.Addr == "" {
		cfg.Store.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Store.Redis.KeyPrefix == "" {
		cfg.Store.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}
	if cfg.Store.Redis.Timeout == 0 {
		cfg.Store.Redis.Timeout = DefaultRedisTimeout
	}

	// SQLite defaults
	if cfg.Store.SQLite.Path == "" {
		cfg.Store.SQLite.Path = DefaultSQLitePath
	}
	if cfg.Store.SQLite.BusyTimeout == 0 {
		cfg.Store.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}
	if cfg.Store.SQLite.SweepSchedule == "" {
		cfg.Store.SQLite.SweepSchedule = DefaultSQLiteSweepSchedule
	}
	if cfg.Store.SQLite.IdleTTL == 0 {
		cfg.Store.SQLite.IdleTTL = DefaultSQLiteIdleTTL
	}

	// Remote defaults
	if cfg.Store.Remote.Timeout == 0 {
		cfg.Store.Remote.Timeout = DefaultRemoteTimeout
	}

	// Limit defaults - applied per key
	for key, limit := range cfg.Limits {
		if limit.TokenLimit != "" && limit.TokenEstimator == "" {
			limit.TokenEstimator = DefaultTokenEstimator
		}
		cfg.Limits[key] = limit
	}

	// Wait defaults
	if cfg.Wait.MaxInterval == 0 {
		cfg.Wait.MaxInterval = DefaultWaitMaxInterval
	}
	if cfg.Wait.BaseInterval == 0 {
		cfg.Wait.BaseInterval = DefaultWaitBaseInterval
	}
	if cfg.Wait.JitterFraction == 0 {
		cfg.Wait.JitterFraction = DefaultWaitJitterFraction
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
}
