package store

import (
	"context"
	"sync"
	"time"

	"github.com/choked/choked/pkg/rate"
)

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// MemoryStore is an in-process bucket store backed by a mutex-guarded map.
// It enforces limits only within a single process; use it for tests, local
// development, and single-instance deployments.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// TryConsume implements Store.
func (m *MemoryStore) TryConsume(ctx context.Context, key string, cost float64, limit rate.Limit) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	b, ok := m.buckets[key]
	if !ok {
		b = &bucket{tokens: limit.Capacity, lastRefill: now}
		m.buckets[key] = b
	}

	elapsed := now.Sub(b.lastRefill)
	if elapsed < 0 {
		elapsed = 0
	}
	b.tokens += elapsed.Seconds() * limit.RefillPerSecond
	if b.tokens > limit.Capacity {
		b.tokens = limit.Capacity
	}
	b.lastRefill = now

	if b.tokens >= cost {
		b.tokens -= cost
		return Result{Granted: true, Available: b.tokens}, nil
	}

	return Result{
		Granted:   false,
		Available: b.tokens,
		Wait:      limit.WaitFor(cost - b.tokens),
	}, nil
}

// Refund implements Store. The refill timestamp is left untouched so the
// credit does not also count as elapsed time.
func (m *MemoryStore) Refund(ctx context.Context, key string, units float64, limit rate.Limit) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[key]
	if !ok {
		// Expired or never consumed: the bucket would start full anyway.
		m.buckets[key] = &bucket{tokens: limit.Capacity, lastRefill: m.now()}
		return nil
	}

	b.tokens += units
	if b.tokens > limit.Capacity {
		b.tokens = limit.Capacity
	}
	return nil
}

// Close implements Store. It is a no-op for the in-process store.
func (m *MemoryStore) Close() error {
	return nil
}
