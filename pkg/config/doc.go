// Package config provides configuration management for choked.
//
// This package handles loading, validating, and managing configuration from
// YAML files with environment variable overrides. It provides a type-safe
// configuration system with validation and sensible defaults.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.Load("choked.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadWithEnvOverrides("choked.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention CHOKED_SECTION_FIELD.
// For example:
//
//   - CHOKED_STORE_BACKEND overrides store.backend
//   - CHOKED_REDIS_ADDR overrides store.redis.addr
//   - CHOKED_LOGGING_LEVEL overrides telemetry.logging.level
//
// Environment variables always take precedence over file-based
// configuration. CHOKED_API_TOKEN is special: setting it supplies the
// hosted bucket service token and selects the "remote" backend unless
// another backend was named explicitly.
//
// # Configuration Precedence
//
// Configuration values are applied in the following order (later overrides earlier):
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Validation
//
// All configuration is validated automatically during loading. Validation
// errors include field paths and helpful messages:
//
//	configuration validation failed with 2 errors:
//	  - limits.chat.request_limit: invalid rate "fifty/s"
//	  - store.backend: unknown backend "postgres" (expected memory, redis, sqlite, or remote)
//
// # Example Configuration
//
// Here is a minimal configuration file:
//
//	store:
//	  backend: "redis"
//	  redis:
//	    addr: "localhost:6379"
//
//	limits:
//	  chat:
//	    request_limit: "50/s"
//	    token_limit: "100000/m"
//	    token_estimator: "openai"
//	  embeddings:
//	    request_limit: "100/s"
//
//	telemetry:
//	  logging:
//	    level: "info"
//	    format: "json"
//
// # Hot Reload
//
// A Watcher reloads the file on change, debounced, keeping the previous
// configuration when the new file fails validation.
package config
