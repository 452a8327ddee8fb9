package main

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/choked/choked/pkg/config"
	"github.com/choked/choked/pkg/limiter"
	"github.com/choked/choked/pkg/store"
	"github.com/choked/choked/pkg/telemetry/logging"
)

// loadConfig loads the configured file with environment overrides and
// installs the configured logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, err
	}

	level := cfg.Telemetry.Logging.Level
	if verbose {
		level = "debug"
	}
	if _, err := logging.Setup(logging.Config{
		Level:  level,
		Format: cfg.Telemetry.Logging.Format,
	}); err != nil {
		return nil, err
	}

	return cfg, nil
}

// buildStore constructs the configured bucket store backend.
func buildStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case "memory":
		return store.NewMemoryStore(), nil

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
		return store.NewRedisStore(client,
			store.WithPrefix(cfg.Store.Redis.KeyPrefix),
			store.WithTimeout(cfg.Store.Redis.Timeout),
		)

	case "sqlite":
		return store.NewSQLiteStore(store.SQLiteConfig{
			Path:          cfg.Store.SQLite.Path,
			BusyTimeout:   cfg.Store.SQLite.BusyTimeout,
			SweepSchedule: cfg.Store.SQLite.SweepSchedule,
			IdleTTL:       cfg.Store.SQLite.IdleTTL,
		})

	case "remote":
		return store.NewRemoteStore(store.RemoteConfig{
			Endpoint: cfg.Store.Remote.Endpoint,
			Token:    cfg.Store.Remote.Token,
			Timeout:  cfg.Store.Remote.Timeout,
		})

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// buildRegistry constructs the store and registers every configured key.
// The caller owns the registry and closes it (which closes the store).
func buildRegistry(cfg *config.Config) (*limiter.Registry, error) {
	s, err := buildStore(cfg)
	if err != nil {
		return nil, err
	}

	opts := []limiter.Option{
		limiter.WithBackoff(limiter.Backoff{
			JitterFraction: cfg.Wait.JitterFraction,
			MaxInterval:    cfg.Wait.MaxInterval,
			BaseInterval:   cfg.Wait.BaseInterval,
		}),
		limiter.WithWaitTimeout(cfg.Wait.Timeout),
		limiter.WithFailOpen(cfg.Store.FailOpen),
	}

	reg := limiter.NewRegistry(s, opts...)
	for key, lc := range cfg.Limits {
		if _, err := reg.Register(key, limiter.Spec{
			RequestLimit:   lc.RequestLimit,
			TokenLimit:     lc.TokenLimit,
			TokenEstimator: lc.TokenEstimator,
		}); err != nil {
			s.Close()
			return nil, err
		}
	}
	return reg, nil
}
