package limiter

import (
	"context"
	"fmt"

	"github.com/choked/choked/pkg/estimator"
)

// CostFunc computes the cost dimension's units for one call from the
// call's argument. It runs before any bucket is consumed; a failure aborts
// the call with ErrEstimation and no bucket state is touched.
type CostFunc[A any] func(A) (float64, error)

// ForTexts lifts a text estimator over an argument extractor, producing a
// CostFunc for targets whose cost is determined by the text they send.
func ForTexts[A any](est estimator.Estimator, extract func(A) []string) CostFunc[A] {
	return func(arg A) (float64, error) {
		tokens, err := est.EstimateTexts(extract(arg)...)
		if err != nil {
			return 0, err
		}
		return float64(tokens), nil
	}
}

// Binding associates a target callable with a limiter and an optional cost
// estimator. Every invocation runs the limiter's Await before the target,
// through either of two calling conventions with identical admission
// semantics: Call blocks the calling goroutine, Go suspends the work on a
// new goroutine and hands back a Future.
type Binding[A, R any] struct {
	limiter *Limiter
	cost    CostFunc[A]
	target  func(context.Context, A) (R, error)
}

// Bind creates a Binding. A cost function is required exactly when the
// limiter has a cost dimension; passing one without is an error so that a
// dead estimator does not go unnoticed.
func Bind[A, R any](l *Limiter, target func(context.Context, A) (R, error), cost CostFunc[A]) (*Binding[A, R], error) {
	if target == nil {
		return nil, fmt.Errorf("%w: binding for %q has no target", ErrInvalidConfig, l.Key())
	}
	if l.CostLimited() && cost == nil {
		return nil, fmt.Errorf("%w: key %q has a cost limit but the binding has no cost function", ErrInvalidConfig, l.Key())
	}
	if !l.CostLimited() && cost != nil {
		return nil, fmt.Errorf("%w: key %q has no cost limit but the binding has a cost function", ErrInvalidConfig, l.Key())
	}
	return &Binding[A, R]{limiter: l, cost: cost, target: target}, nil
}

// admit estimates the call's cost and waits for admission.
func (b *Binding[A, R]) admit(ctx context.Context, arg A) error {
	var cost float64
	if b.cost != nil {
		v, err := b.cost(arg)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrEstimation, err)
		}
		if v < 0 {
			return fmt.Errorf("%w: estimator returned negative cost %v", ErrEstimation, v)
		}
		cost = v
	}

	_, err := b.limiter.Await(ctx, cost)
	return err
}

// Call is the blocking calling convention: the calling goroutine waits
// inside the limiter until admitted, then invokes the target.
func (b *Binding[A, R]) Call(ctx context.Context, arg A) (R, error) {
	if err := b.admit(ctx, arg); err != nil {
		var zero R
		return zero, err
	}
	return b.target(ctx, arg)
}

// Go is the suspending calling convention: it returns immediately and the
// admission wait plus the target run on their own goroutine. The result is
// delivered through the Future. Cancelling ctx abandons the wait safely.
func (b *Binding[A, R]) Go(ctx context.Context, arg A) *Future[R] {
	f := &Future[R]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.value, f.err = b.Call(ctx, arg)
	}()
	return f
}

// Future is the pending result of a suspended call.
type Future[R any] struct {
	done  chan struct{}
	value R
	err   error
}

// Done is closed when the result is available.
func (f *Future[R]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the result is available or ctx ends.
func (f *Future[R]) Wait(ctx context.Context) (R, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}
