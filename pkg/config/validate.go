package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/choked/choked/pkg/estimator"
	"github.com/choked/choked/pkg/rate"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "store.backend").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateStore(&cfg.Store)...)
	errs = append(errs, validateLimits(cfg.Limits)...)
	errs = append(errs, validateWait(&cfg.Wait)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// validateStore validates the store backend selection and its settings.
func validateStore(cfg *StoreConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory":
		// No further settings.

	case "redis":
		if cfg.Redis.Addr == "" {
			errs = append(errs, FieldError{
				Field:   "store.redis.addr",
				Message: "address is required",
			})
		}
		if cfg.Redis.DB < 0 {
			errs = append(errs, FieldError{
				Field:   "store.redis.db",
				Message: "database number must not be negative",
			})
		}
		if cfg.Redis.Timeout < 0 {
			errs = append(errs, FieldError{
				Field:   "store.redis.timeout",
				Message: "timeout must not be negative",
			})
		}

	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{
				Field:   "store.sqlite.path",
				Message: "database path is required",
			})
		}
		if cfg.SQLite.BusyTimeout < 0 {
			errs = append(errs, FieldError{
				Field:   "store.sqlite.busy_timeout",
				Message: "busy timeout must not be negative",
			})
		}
		if cfg.SQLite.SweepSchedule != "" {
			if _, err := cron.ParseStandard(cfg.SQLite.SweepSchedule); err != nil {
				errs = append(errs, FieldError{
					Field:   "store.sqlite.sweep_schedule",
					Message: fmt.Sprintf("invalid cron expression: %v", err),
				})
			}
		}
		if cfg.SQLite.IdleTTL < 0 {
			errs = append(errs, FieldError{
				Field:   "store.sqlite.idle_ttl",
				Message: "idle TTL must not be negative",
			})
		}

	case "remote":
		if cfg.Remote.Endpoint == "" {
			errs = append(errs, FieldError{
				Field:   "store.remote.endpoint",
				Message: "endpoint is required",
			})
		} else if u, err := url.Parse(cfg.Remote.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, FieldError{
				Field:   "store.remote.endpoint",
				Message: fmt.Sprintf("invalid URL: %q", cfg.Remote.Endpoint),
			})
		}
		if cfg.Remote.Token == "" {
			errs = append(errs, FieldError{
				Field:   "store.remote.token",
				Message: "token is required (set CHOKED_API_TOKEN)",
			})
		}
		if cfg.Remote.Timeout < 0 {
			errs = append(errs, FieldError{
				Field:   "store.remote.timeout",
				Message: "timeout must not be negative",
			})
		}

	default:
		errs = append(errs, FieldError{
			Field:   "store.backend",
			Message: fmt.Sprintf("unknown backend %q (expected memory, redis, sqlite, or remote)", cfg.Backend),
		})
	}

	return errs
}

// validateLimits validates the per-key limit declarations.
func validateLimits(limits map[string]LimitConfig) []FieldError {
	var errs []FieldError

	for key, limit := range limits {
		if key == "" {
			errs = append(errs, FieldError{
				Field:   "limits",
				Message: "limit keys must not be empty",
			})
			continue
		}

		if limit.RequestLimit == "" && limit.TokenLimit == "" {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("limits.%s", key),
				Message: "at least one of request_limit and token_limit is required",
			})
		}
		if limit.RequestLimit != "" {
			if _, err := rate.ParseRate(limit.RequestLimit); err != nil {
				errs = append(errs, FieldError{
					Field:   fmt.Sprintf("limits.%s.request_limit", key),
					Message: err.Error(),
				})
			}
		}
		if limit.TokenLimit != "" {
			if _, err := rate.ParseRate(limit.TokenLimit); err != nil {
				errs = append(errs, FieldError{
					Field:   fmt.Sprintf("limits.%s.token_limit", key),
					Message: err.Error(),
				})
			}
			if _, err := estimator.ByName(limit.TokenEstimator); err != nil {
				errs = append(errs, FieldError{
					Field:   fmt.Sprintf("limits.%s.token_estimator", key),
					Message: err.Error(),
				})
			}
		} else if limit.TokenEstimator != "" {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("limits.%s.token_estimator", key),
				Message: "token_estimator requires token_limit",
			})
		}
	}

	return errs
}

// validateWait validates the admission wait tuning.
func validateWait(cfg *WaitConfig) []FieldError {
	var errs []FieldError

	if cfg.Timeout < 0 {
		errs = append(errs, FieldError{
			Field:   "wait.timeout",
			Message: "timeout must not be negative",
		})
	}
	if cfg.MaxInterval <= 0 {
		errs = append(errs, FieldError{
			Field:   "wait.max_interval",
			Message: "max interval must be positive",
		})
	}
	if cfg.BaseInterval <= 0 {
		errs = append(errs, FieldError{
			Field:   "wait.base_interval",
			Message: "base interval must be positive",
		})
	}
	if cfg.JitterFraction < 0 || cfg.JitterFraction > 1 {
		errs = append(errs, FieldError{
			Field:   "wait.jitter_fraction",
			Message: "jitter fraction must be in [0, 1]",
		})
	}

	return errs
}

// validateTelemetry validates logging and metrics settings.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("unknown level %q (expected debug, info, warn, or error)", cfg.Logging.Level),
		})
	}

	switch cfg.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("unknown format %q (expected json or text)", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "path must start with /",
		})
	}

	return errs
}
