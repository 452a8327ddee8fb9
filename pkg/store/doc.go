// Package store provides the bucket store capability: atomically evaluating
// and updating a named token bucket's state against a shared backend.
//
// # Overview
//
// A bucket holds a floating-point number of available units that refill
// continuously over time up to a capacity. Consumption is evaluated with a
// lazy refill: on every call the elapsed time since the last update is
// converted into new units (capped at capacity) before the requested cost is
// checked. The refill is committed even when the request is denied, so the
// stored timestamp never goes stale.
//
// All of this happens inside one atomic operation per key. A naive
// read-then-write from the client is not allowed because two concurrent
// callers could both observe "4 available, cost 3" and overshoot the budget.
// Each backend serializes the read/compute/write cycle itself:
//
//   - MemoryStore guards its map with a mutex. State is process-local, so it
//     cannot enforce a global limit across replicas; use it for tests, local
//     development, and single-process deployments.
//   - RedisStore runs an embedded Lua script via EVALSHA, which Redis
//     executes atomically. This is the self-hosted backend for fleets of
//     processes sharing one budget.
//   - SQLiteStore serializes through an immediate write transaction. It
//     covers multiple processes on a single host sharing a database file.
//   - RemoteStore delegates the whole operation to a managed rate-limit
//     service over HTTPS, authenticated with an access token.
//
// All backends satisfy the same Store interface; the choice is made at
// construction time.
//
// # Error Policy
//
// Backends never silently grant on failure. When the backing service cannot
// be reached or returns an unexpected response, TryConsume returns an error
// wrapping ErrUnavailable and the caller decides whether to fail closed
// (default) or open.
//
// # State Lifetime
//
// Bucket state is owned by the backend, not by any client process. Backends
// expire idle buckets (Redis key TTLs, the SQLite sweep job); a bucket that
// reappears after expiry starts full, exactly like a first access.
package store
