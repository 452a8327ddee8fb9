package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any
// errors. The configuration is not modified by environment variables; use
// LoadWithEnvOverrides for that functionality.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention CHOKED_SECTION_FIELD (e.g., CHOKED_REDIS_ADDR) and always take
// precedence over file-based configuration.
//
// As a special case, a non-empty CHOKED_API_TOKEN both supplies the hosted
// service token and switches the backend to "remote", unless the file named
// a different non-default backend explicitly.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadWithEnvOverrides(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	fileBackend := cfg.Store.Backend
	ApplyDefaults(&cfg)
	applyEnvOverrides(&cfg, fileBackend)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the
// configuration. fileBackend is the backend named in the file before
// defaulting, used to decide whether CHOKED_API_TOKEN may switch it.
func applyEnvOverrides(cfg *Config, fileBackend string) {
	// Store overrides
	explicitBackend := fileBackend
	if val := os.Getenv("CHOKED_STORE_BACKEND"); val != "" {
		cfg.Store.Backend = val
		explicitBackend = val
	}
	if val := os.Getenv("CHOKED_STORE_FAIL_OPEN"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Store.FailOpen = b
		}
	}

	// Redis overrides
	if val := os.Getenv("CHOKED_REDIS_ADDR"); val != "" {
		cfg.Store.Redis.Addr = val
	}
	if val := os.Getenv("CHOKED_REDIS_PASSWORD"); val != "" {
		cfg.Store.Redis.Password = val
	}
	if val := os.Getenv("CHOKED_REDIS_DB"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Store.Redis.DB = i
		}
	}
	if val := os.Getenv("CHOKED_REDIS_KEY_PREFIX"); val != "" {
		cfg.Store.Redis.KeyPrefix = val
	}
	if val := os.Getenv("CHOKED_REDIS_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Store.Redis.Timeout = d
		}
	}

	// SQLite overrides
	if val := os.Getenv("CHOKED_SQLITE_PATH"); val != "" {
		cfg.Store.SQLite.Path = val
	}
	if val := os.Getenv("CHOKED_SQLITE_BUSY_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Store.SQLite.BusyTimeout = d
		}
	}
	if val := os.Getenv("CHOKED_SQLITE_SWEEP_SCHEDULE"); val != "" {
		cfg.Store.SQLite.SweepSchedule = val
	}
	if val := os.Getenv("CHOKED_SQLITE_IDLE_TTL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Store.SQLite.IdleTTL = d
		}
	}

	// Remote overrides. CHOKED_API_TOKEN selects the hosted service unless
	// the file or CHOKED_STORE_BACKEND chose another backend explicitly.
	if val := os.Getenv("CHOKED_API_TOKEN"); val != "" {
		cfg.Store.Remote.Token = val
		if explicitBackend == "" || explicitBackend == "remote" {
			cfg.Store.Backend = "remote"
		}
	}
	if val := os.Getenv("CHOKED_REMOTE_ENDPOINT"); val != "" {
		cfg.Store.Remote.Endpoint = val
	}
	if val := os.Getenv("CHOKED_REMOTE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Store.Remote.Timeout = d
		}
	}

	// Wait overrides
	if val := os.Getenv("CHOKED_WAIT_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Wait.Timeout = d
		}
	}
	if val := os.Getenv("CHOKED_WAIT_MAX_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Wait.MaxInterval = d
		}
	}
	if val := os.Getenv("CHOKED_WAIT_BASE_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Wait.BaseInterval = d
		}
	}
	if val := os.Getenv("CHOKED_WAIT_JITTER_FRACTION"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Wait.JitterFraction = f
		}
	}

	// Telemetry overrides
	if val := os.Getenv("CHOKED_LOGGING_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("CHOKED_LOGGING_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
	if val := os.Getenv("CHOKED_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Metrics.Enabled = b
		}
	}
	if val := os.Getenv("CHOKED_METRICS_PATH"); val != "" {
		cfg.Telemetry.Metrics.Path = val
	}
}
