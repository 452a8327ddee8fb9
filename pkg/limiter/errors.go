package limiter

import (
	"errors"
	"fmt"
	"time"

	"github.com/choked/choked/pkg/store"
)

// Error types for limiter configuration and admission failures.
var (
	// ErrInvalidConfig is returned for unusable limiter configuration:
	// a malformed rate description, or a key with neither a request limit
	// nor a cost limit. It is fatal at construction time and never retried.
	ErrInvalidConfig = errors.New("invalid limiter configuration")

	// ErrEstimation is returned when the cost estimator for a call fails.
	// The call is aborted before any bucket is touched.
	ErrEstimation = errors.New("cost estimation failed")

	// ErrStoreUnavailable is the store backend failure sentinel, shared
	// with the store package so callers can test either.
	ErrStoreUnavailable = store.ErrUnavailable

	// ErrWaitTimeout is returned when the waiter's overall deadline
	// elapses while the limiter is still denying. The bound call is never
	// invoked.
	ErrWaitTimeout = errors.New("rate limit wait deadline exceeded")
)

// WaitTimeoutError carries context about an admission that timed out.
// It unwraps to ErrWaitTimeout.
type WaitTimeoutError struct {
	// Key is the logical limiter key.
	Key string

	// Attempts is how many admission attempts were made.
	Attempts int

	// Elapsed is how long the caller waited in total.
	Elapsed time.Duration

	// LastWait is the backend's last refill estimate, a hint for how far
	// over budget the caller was.
	LastWait time.Duration
}

// Error implements the error interface.
func (e *WaitTimeoutError) Error() string {
	return fmt.Sprintf("rate limit wait deadline exceeded for %q after %d attempts in %v (last wait hint %v)",
		e.Key, e.Attempts, e.Elapsed.Round(time.Millisecond), e.LastWait.Round(time.Millisecond))
}

// Unwrap returns ErrWaitTimeout for errors.Is checks.
func (e *WaitTimeoutError) Unwrap() error {
	return ErrWaitTimeout
}
