package limiter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/choked/choked/pkg/rate"
	"github.com/choked/choked/pkg/store"
)

// Bucket key prefixes for the two dimensions. Both dimensions of one
// logical key live under distinct store keys.
const (
	requestsPrefix = "req:"
	costPrefix     = "tok:"
)

// Limiter makes admit/deny decisions for one logical key against up to two
// bucket dimensions: request count (cost 1 per call) and call cost (units
// computed per call). Consumption across both dimensions is all-or-nothing.
//
// A Limiter holds no bucket state of its own; every decision is one or two
// atomic operations against the shared store, so any number of Limiters in
// any number of processes may share a key.
type Limiter struct {
	key      string
	store    store.Store
	requests rate.Limit
	cost     rate.Limit

	backoff  Backoff
	timeout  time.Duration
	failOpen bool
	metrics  *Metrics
	logger   *slog.Logger
}

// Decision is the outcome of an admission attempt.
type Decision struct {
	// Granted reports whether the call may proceed.
	Granted bool

	// Wait estimates how long until the denied cost could be satisfied by
	// refill. Meaningful only when Granted is false. When both dimensions
	// denied it is the larger of the two estimates.
	Wait time.Duration

	// RequestsRemaining is the request bucket's balance after the
	// decision, or -1 when no request limit is configured.
	RequestsRemaining float64

	// CostRemaining is the cost bucket's balance after the decision, or -1
	// when no cost limit is configured.
	CostRemaining float64

	// FailOpen reports that the call was admitted without consuming
	// because the store was unreachable and fail-open is configured.
	FailOpen bool
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithBackoff replaces the retry backoff policy.
func WithBackoff(b Backoff) Option {
	return func(l *Limiter) { l.backoff = b }
}

// WithWaitTimeout bounds the total time Await may spend waiting for
// admission. Zero (the default) waits until the context is done.
func WithWaitTimeout(d time.Duration) Option {
	return func(l *Limiter) { l.timeout = d }
}

// WithFailOpen admits calls without consuming when the store is
// unreachable. The default fails closed: store errors are retried under
// the backoff policy and eventually surface to the caller.
func WithFailOpen(open bool) Option {
	return func(l *Limiter) { l.failOpen = open }
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(l *Limiter) { l.metrics = m }
}

// WithLogger replaces the default slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

// New creates a Limiter for key. A zero Limit disables that dimension;
// disabling both is an ErrInvalidConfig.
func New(s store.Store, key string, requests, cost rate.Limit, opts ...Option) (*Limiter, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: key cannot be empty", ErrInvalidConfig)
	}
	if requests.IsZero() && cost.IsZero() {
		return nil, fmt.Errorf("%w: key %q has neither a request limit nor a cost limit", ErrInvalidConfig, key)
	}

	l := &Limiter{
		key:      key,
		store:    s,
		requests: requests,
		cost:     cost,
		logger:   slog.Default().With("component", "limiter", "key", key),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Key returns the logical key.
func (l *Limiter) Key() string {
	return l.key
}

// CostLimited reports whether a cost dimension is configured. Bindings use
// this to decide whether a cost estimator is required.
func (l *Limiter) CostLimited() bool {
	return !l.cost.IsZero()
}

// Acquire makes a single admission attempt, consuming 1 from the request
// bucket and cost from the cost bucket where those dimensions are
// configured. It never sleeps.
//
// When both dimensions are configured the consumption is all-or-nothing:
// a denial on the request side leaves the cost bucket untouched, and a
// denial on the cost side refunds the unit already taken from the request
// bucket. A refund that cannot be applied is reported as a store failure,
// because the request bucket may now undercount.
func (l *Limiter) Acquire(ctx context.Context, cost float64) (Decision, error) {
	dec := Decision{RequestsRemaining: -1, CostRemaining: -1}

	requestsTaken := false
	if !l.requests.IsZero() {
		res, err := l.store.TryConsume(ctx, requestsPrefix+l.key, 1, l.requests)
		if err != nil {
			l.metrics.RecordStoreError(l.key)
			return Decision{}, err
		}
		l.metrics.RecordCheck(l.key, "requests", res.Granted)
		dec.RequestsRemaining = res.Available
		if !res.Granted {
			dec.Wait = res.Wait
			return dec, nil
		}
		requestsTaken = true
	}

	if !l.cost.IsZero() {
		res, err := l.store.TryConsume(ctx, costPrefix+l.key, cost, l.cost)
		if err != nil {
			l.metrics.RecordStoreError(l.key)
			if requestsTaken {
				err = errors.Join(err, l.refundRequest(ctx))
			}
			return Decision{}, err
		}
		l.metrics.RecordCheck(l.key, "cost", res.Granted)
		dec.CostRemaining = res.Available
		if !res.Granted {
			dec.Wait = res.Wait
			if requestsTaken {
				if err := l.refundRequest(ctx); err != nil {
					return Decision{}, err
				}
				dec.RequestsRemaining += 1
			}
			return dec, nil
		}
	}

	dec.Granted = true
	return dec, nil
}

// refundRequest credits the unit taken from the request bucket back. A
// failed refund leaves the request budget undercounting until it refills,
// so it is surfaced as a store failure and logged rather than dropped.
func (l *Limiter) refundRequest(ctx context.Context) error {
	if err := l.store.Refund(ctx, requestsPrefix+l.key, 1, l.requests); err != nil {
		l.metrics.RecordRefundFailure(l.key)
		l.logger.Error("request bucket refund failed, budget may undercount until refill", "error", err)
		return err
	}
	return nil
}

// Await retries Acquire until admission, sleeping between attempts
// according to the backoff policy, until the context is done or the
// configured wait timeout elapses (ErrWaitTimeout). Each retry issues a
// fresh consume, because refill is continuous and other callers change the
// buckets in the interim.
//
// Cancellation at a wait point is always safe: no partial state is held
// between attempts, so abandoning the wait leaves the buckets exactly as
// the last committed operation did.
func (l *Limiter) Await(ctx context.Context, cost float64) (Decision, error) {
	start := time.Now()

	waitCtx := ctx
	if l.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	var lastWait time.Duration
	for attempt := 1; ; attempt++ {
		dec, err := l.Acquire(waitCtx, cost)

		var sleep time.Duration
		switch {
		case err == nil && dec.Granted:
			l.metrics.RecordAdmission(l.key, time.Since(start).Seconds(), attempt)
			return dec, nil

		case err == nil:
			lastWait = dec.Wait
			sleep = l.backoff.Sleep(attempt, dec.Wait)

		case errors.Is(err, store.ErrUnavailable):
			if waitCtx.Err() != nil {
				// The context ended mid-operation; report the deadline or
				// cancellation, not a store outage.
				return Decision{}, l.waitErr(ctx, waitCtx, attempt, time.Since(start), lastWait)
			}
			if l.failOpen {
				l.logger.Warn("store unreachable, admitting without consuming (fail-open)", "error", err)
				l.metrics.RecordFailOpen(l.key)
				return Decision{Granted: true, FailOpen: true, RequestsRemaining: -1, CostRemaining: -1}, nil
			}
			l.logger.Debug("store unreachable, retrying", "attempt", attempt, "error", err)
			sleep = l.backoff.Sleep(attempt, 0)

		default:
			return Decision{}, err
		}

		timer := time.NewTimer(sleep)
		select {
		case <-waitCtx.Done():
			timer.Stop()
			return Decision{}, l.waitErr(ctx, waitCtx, attempt, time.Since(start), lastWait)
		case <-timer.C:
		}
	}
}

// waitErr distinguishes the limiter's own deadline from the caller's
// context ending.
func (l *Limiter) waitErr(parent, waitCtx context.Context, attempts int, elapsed, lastWait time.Duration) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
		return &WaitTimeoutError{Key: l.key, Attempts: attempts, Elapsed: elapsed, LastWait: lastWait}
	}
	return waitCtx.Err()
}
