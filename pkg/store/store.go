package store

import (
	"context"
	"errors"
	"time"

	"github.com/choked/choked/pkg/rate"
)

// ErrUnavailable is returned when the backing service cannot be reached or
// answers with something other than a bucket decision. Callers must not
// treat it as an admission.
var ErrUnavailable = errors.New("bucket store unavailable")

// Result is the outcome of one atomic consume attempt.
type Result struct {
	// Granted reports whether the requested units were consumed.
	Granted bool

	// Available is the number of units left in the bucket after the
	// operation (post-consumption when granted, post-refill when denied).
	Available float64

	// Wait is the backend's estimate of how long until the requested cost
	// can be satisfied by refill alone. It is meaningful only when Granted
	// is false, and is recomputed on every attempt.
	Wait time.Duration
}

// Store is the bucket store capability. Implementations must perform the
// whole load/refill/decide/commit cycle atomically per key with respect to
// all concurrent callers, in-process or not.
type Store interface {
	// TryConsume attempts to consume cost units from the bucket named by
	// key. A bucket that does not exist starts full. The refill implied by
	// the elapsed time is committed even when the request is denied.
	TryConsume(ctx context.Context, key string, cost float64, limit rate.Limit) (Result, error)

	// Refund credits units back to the bucket, capped at the bucket's
	// capacity. It is used to compensate a committed consumption when a
	// later step of a multi-bucket admission fails.
	Refund(ctx context.Context, key string, units float64, limit rate.Limit) error

	// Close releases any resources held by the store.
	Close() error
}

// bucketTTL returns how long an idle bucket's state stays interesting: twice
// the time it takes to refill from empty to full. After that the stored
// state is indistinguishable from a fresh full bucket, so backends may
// expire it. A floor keeps very fast limits from churning.
func bucketTTL(limit rate.Limit) time.Duration {
	if limit.RefillPerSecond <= 0 {
		return time.Hour
	}
	ttl := 2 * limit.WaitFor(limit.Capacity)
	if ttl < time.Minute {
		ttl = time.Minute
	}
	return ttl
}
