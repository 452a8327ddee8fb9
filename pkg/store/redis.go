package store

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/choked/choked/pkg/rate"
)

//go:embed consume.lua
var consumeScript string

//go:embed refund.lua
var refundScript string

// RedisStore is a distributed bucket store backed by Redis. The
// load/refill/decide/commit cycle runs inside a Lua script, so Redis
// serializes it per key and many processes can safely share one budget.
type RedisStore struct {
	client     redis.UniversalClient
	prefix     string
	timeout    time.Duration
	consumeSHA string
	refundSHA  string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithPrefix sets the Redis key prefix (default "choked:").
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

// WithTimeout sets the per-operation timeout applied when the caller's
// context has no earlier deadline (default 5s).
func WithTimeout(d time.Duration) RedisOption {
	return func(s *RedisStore) { s.timeout = d }
}

// NewRedisStore verifies connectivity, loads the bucket scripts into the
// Redis script cache, and returns a ready store.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) (*RedisStore, error) {
	s := &RedisStore{
		client:  client,
		prefix:  "choked:",
		timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: ping failed: %w", ErrUnavailable, err)
	}

	sha, err := client.ScriptLoad(ctx, consumeScript).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: loading consume script: %w", ErrUnavailable, err)
	}
	s.consumeSHA = sha

	sha, err = client.ScriptLoad(ctx, refundScript).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: loading refund script: %w", ErrUnavailable, err)
	}
	s.refundSHA = sha

	return s, nil
}

// TryConsume implements Store.
func (s *RedisStore) TryConsume(ctx context.Context, key string, cost float64, limit rate.Limit) (Result, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	now := float64(time.Now().UnixMicro()) / 1e6
	args := []interface{}{
		limit.Capacity,
		limit.RefillPerSecond,
		now,
		cost,
		bucketTTL(limit).Milliseconds(),
	}

	raw, err := s.eval(ctx, s.consumeSHA, consumeScript, []string{s.prefix + key}, args)
	if err != nil {
		return Result{}, fmt.Errorf("%w: consume %q: %w", ErrUnavailable, key, err)
	}

	values, ok := raw.([]interface{})
	if !ok || len(values) != 3 {
		return Result{}, fmt.Errorf("%w: unexpected consume reply %v", ErrUnavailable, raw)
	}

	granted, _ := values[0].(int64)
	return Result{
		Granted:   granted == 1,
		Available: replyFloat(values[1]),
		Wait:      time.Duration(replyFloat(values[2]) * float64(time.Second)),
	}, nil
}

// Refund implements Store.
func (s *RedisStore) Refund(ctx context.Context, key string, units float64, limit rate.Limit) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	now := float64(time.Now().UnixMicro()) / 1e6
	args := []interface{}{
		limit.Capacity,
		units,
		now,
		bucketTTL(limit).Milliseconds(),
	}

	if _, err := s.eval(ctx, s.refundSHA, refundScript, []string{s.prefix + key}, args); err != nil {
		return fmt.Errorf("%w: refund %q: %w", ErrUnavailable, key, err)
	}
	return nil
}

// Close implements Store. The Redis client is owned by the caller and is
// not closed here.
func (s *RedisStore) Close() error {
	return nil
}

// eval runs a cached script, reloading it transparently if the Redis script
// cache was flushed (for example after a server restart).
func (s *RedisStore) eval(ctx context.Context, sha, script string, keys []string, args []interface{}) (interface{}, error) {
	raw, err := s.client.EvalSha(ctx, sha, keys, args...).Result()
	if err != nil && redis.HasErrorPrefix(err, "NOSCRIPT") {
		raw, err = s.client.Eval(ctx, script, keys, args...).Result()
	}
	return raw, err
}

func (s *RedisStore) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// replyFloat decodes a numeric Lua reply, which Redis may deliver as an
// integer, a float, or a string.
func replyFloat(val interface{}) float64 {
	switch v := val.(type) {
	case int64:
		return float64(v)
	case float64:
		return v
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return 0
	}
}
