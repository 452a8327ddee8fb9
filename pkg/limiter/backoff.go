package limiter

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff computes how long to sleep between admission attempts. It is a
// pure function of the attempt number, the backend's wait hint, and the
// injected random source, so it can be tested without a store or a clock.
type Backoff struct {
	// JitterFraction is the maximum fraction of the computed wait added as
	// random jitter, spreading out callers that were denied at the same
	// instant. Default: 0.2.
	JitterFraction float64

	// MaxInterval caps any single sleep. Default: 30 seconds.
	MaxInterval time.Duration

	// BaseInterval seeds the exponential fallback used when the backend
	// provided no wait hint, for example during a store outage.
	// Default: 500ms.
	BaseInterval time.Duration

	// Rand returns a uniform value in [0, 1). Defaults to the shared
	// math/rand/v2 source; tests inject a deterministic one.
	Rand func() float64
}

// withDefaults fills unset fields.
func (b Backoff) withDefaults() Backoff {
	if b.JitterFraction == 0 {
		b.JitterFraction = 0.2
	}
	if b.MaxInterval == 0 {
		b.MaxInterval = 30 * time.Second
	}
	if b.BaseInterval == 0 {
		b.BaseInterval = 500 * time.Millisecond
	}
	if b.Rand == nil {
		b.Rand = rand.Float64
	}
	return b
}

// Sleep returns the pause before retry number attempt (1-based).
//
// When the backend supplied a wait hint, the sleep is the hint plus jitter:
// the hint already says when refill will cover the cost, so doubling it
// would only add latency. Without a hint there is nothing to go on and the
// sleep grows exponentially from BaseInterval. Both paths are capped at
// MaxInterval.
func (b Backoff) Sleep(attempt int, hint time.Duration) time.Duration {
	b = b.withDefaults()

	var base time.Duration
	if hint > 0 {
		base = hint
	} else {
		if attempt < 1 {
			attempt = 1
		}
		base = time.Duration(float64(b.BaseInterval) * math.Pow(2, float64(attempt-1)))
		if base < 0 { // overflow on absurd attempt counts
			base = b.MaxInterval
		}
	}

	sleep := base + time.Duration(b.Rand()*b.JitterFraction*float64(base))
	if sleep > b.MaxInterval {
		sleep = b.MaxInterval
	}
	return sleep
}
