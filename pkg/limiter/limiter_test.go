package limiter

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/choked/choked/pkg/rate"
	"github.com/choked/choked/pkg/store"
)

func mustRate(t *testing.T, s string) rate.Limit {
	t.Helper()
	limit, err := rate.ParseRate(s)
	if err != nil {
		t.Fatal(err)
	}
	return limit
}

// near allows for the sliver of refill that accrues between operations in
// uncapped buckets.
func near(got, want float64) bool {
	return got >= want && got < want+0.01
}

// available peeks at a bucket's balance with a zero-cost consume.
func available(t *testing.T, s store.Store, key string, limit rate.Limit) float64 {
	t.Helper()
	res, err := s.TryConsume(context.Background(), key, 0, limit)
	if err != nil {
		t.Fatal(err)
	}
	return res.Available
}

// flakyStore wraps a real store and fails selected operations, for
// exercising outage and compensation-failure paths.
type flakyStore struct {
	inner         store.Store
	failConsumeOn string // key substring; "" disables
	failRefund    bool
	refundCalls   int
}

func (f *flakyStore) TryConsume(ctx context.Context, key string, cost float64, limit rate.Limit) (store.Result, error) {
	if f.failConsumeOn != "" && len(key) >= len(f.failConsumeOn) && key[:len(f.failConsumeOn)] == f.failConsumeOn {
		return store.Result{}, fmt.Errorf("%w: injected failure", store.ErrUnavailable)
	}
	return f.inner.TryConsume(ctx, key, cost, limit)
}

func (f *flakyStore) Refund(ctx context.Context, key string, units float64, limit rate.Limit) error {
	f.refundCalls++
	if f.failRefund {
		return fmt.Errorf("%w: injected refund failure", store.ErrUnavailable)
	}
	return f.inner.Refund(ctx, key, units, limit)
}

func (f *flakyStore) Close() error { return f.inner.Close() }

func TestNew_RequiresALimit(t *testing.T) {
	s := store.NewMemoryStore()

	if _, err := New(s, "k", rate.Limit{}, rate.Limit{}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("no limits: err = %v, want ErrInvalidConfig", err)
	}
	if _, err := New(s, "", mustRate(t, "1/s"), rate.Limit{}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("empty key: err = %v, want ErrInvalidConfig", err)
	}
	if _, err := New(s, "k", mustRate(t, "1/s"), rate.Limit{}); err != nil {
		t.Errorf("single dimension: err = %v, want nil", err)
	}
}

func TestAcquire_SingleRequestDimension(t *testing.T) {
	s := store.NewMemoryStore()
	lim, err := New(s, "reqs", mustRate(t, "2/h"), rate.Limit{})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		dec, err := lim.Acquire(ctx, 0)
		if err != nil {
			t.Fatal(err)
		}
		if !dec.Granted {
			t.Fatalf("call %d should be granted", i+1)
		}
		if dec.CostRemaining != -1 {
			t.Errorf("CostRemaining = %v, want -1 for unconfigured dimension", dec.CostRemaining)
		}
	}

	dec, err := lim.Acquire(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if dec.Granted {
		t.Fatal("3rd call should be denied")
	}
	if dec.Wait <= 0 {
		t.Errorf("denied decision should carry a wait, got %v", dec.Wait)
	}
}

func TestAcquire_SingleCostDimension(t *testing.T) {
	s := store.NewMemoryStore()
	lim, err := New(s, "toks", rate.Limit{}, mustRate(t, "100/h"))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	dec, err := lim.Acquire(ctx, 60)
	if err != nil || !dec.Granted {
		t.Fatalf("first consume: dec=%+v err=%v", dec, err)
	}
	if dec.RequestsRemaining != -1 {
		t.Errorf("RequestsRemaining = %v, want -1", dec.RequestsRemaining)
	}

	dec, err = lim.Acquire(ctx, 60)
	if err != nil {
		t.Fatal(err)
	}
	if dec.Granted {
		t.Fatal("second 60-unit consume should be denied at 40 available")
	}
}

func TestAcquire_DualDimensions(t *testing.T) {
	s := store.NewMemoryStore()
	reqLimit := mustRate(t, "10/h")
	costLimit := mustRate(t, "100/h")
	lim, err := New(s, "dual", reqLimit, costLimit)
	if err != nil {
		t.Fatal(err)
	}

	dec, err := lim.Acquire(context.Background(), 30)
	if err != nil {
		t.Fatal(err)
	}
	if !dec.Granted {
		t.Fatal("should be granted")
	}
	if !near(dec.RequestsRemaining, 9) {
		t.Errorf("RequestsRemaining = %v, want 9", dec.RequestsRemaining)
	}
	if !near(dec.CostRemaining, 70) {
		t.Errorf("CostRemaining = %v, want 70", dec.CostRemaining)
	}
}

func TestAcquire_RequestDenialLeavesCostUntouched(t *testing.T) {
	s := store.NewMemoryStore()
	reqLimit := mustRate(t, "1/h")
	costLimit := mustRate(t, "100/h")
	lim, err := New(s, "dual", reqLimit, costLimit)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if dec, _ := lim.Acquire(ctx, 10); !dec.Granted {
		t.Fatal("first call should be granted")
	}

	dec, err := lim.Acquire(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if dec.Granted {
		t.Fatal("second call should be denied on the request dimension")
	}

	if got := available(t, s, "tok:dual", costLimit); !near(got, 90) {
		t.Errorf("cost bucket = %v, want 90 (untouched by the request denial)", got)
	}
}

func TestAcquire_CostDenialRefundsRequest(t *testing.T) {
	// Scenario: requests 2/s, cost 100/s; a call costing 150 is denied on
	// the cost dimension and the request budget remains fully available.
	s := store.NewMemoryStore()
	reqLimit := mustRate(t, "2/s")
	costLimit := mustRate(t, "100/s")
	lim, err := New(s, "chat", reqLimit, costLimit)
	if err != nil {
		t.Fatal(err)
	}

	dec, err := lim.Acquire(context.Background(), 150)
	if err != nil {
		t.Fatal(err)
	}
	if dec.Granted {
		t.Fatal("150-unit call should be denied against a 100-capacity cost bucket")
	}
	if dec.Wait <= 0 {
		t.Errorf("Wait = %v, want positive", dec.Wait)
	}

	if got := available(t, s, "req:chat", reqLimit); got != 2 {
		t.Errorf("request bucket = %v, want 2 (refunded after cost denial)", got)
	}
}

func TestAcquire_DeniedWaitReflectsCostDeficit(t *testing.T) {
	s := store.NewMemoryStore()
	reqLimit := mustRate(t, "10/s")
	costLimit := mustRate(t, "10/s")
	lim, _ := New(s, "k", reqLimit, costLimit)
	ctx := context.Background()

	// Drain the cost bucket; requests stay plentiful.
	if dec, _ := lim.Acquire(ctx, 10); !dec.Granted {
		t.Fatal("drain should be granted")
	}

	dec, err := lim.Acquire(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if dec.Granted {
		t.Fatal("should be denied on cost")
	}
	// The refunded request side contributes no wait; the decision's wait
	// comes from the cost deficit (~0.5s at 10/s, minus the instants the
	// test itself consumed).
	if dec.Wait <= 0 || dec.Wait > 600*time.Millisecond {
		t.Errorf("Wait = %v, want ~0.5s", dec.Wait)
	}
}

func TestAcquire_RefundFailureSurfaces(t *testing.T) {
	inner := store.NewMemoryStore()
	flaky := &flakyStore{inner: inner, failRefund: true}
	lim, err := New(flaky, "k", mustRate(t, "10/s"), mustRate(t, "1/s"))
	if err != nil {
		t.Fatal(err)
	}

	// Cost 5 cannot fit a 1-capacity bucket, forcing a refund that fails.
	_, err = lim.Acquire(context.Background(), 5)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("err = %v, want ErrStoreUnavailable from failed compensation", err)
	}
	if flaky.refundCalls != 1 {
		t.Errorf("refund calls = %d, want 1", flaky.refundCalls)
	}
}

func TestAcquire_CostStoreErrorRefundsRequest(t *testing.T) {
	inner := store.NewMemoryStore()
	flaky := &flakyStore{inner: inner, failConsumeOn: "tok:"}
	reqLimit := mustRate(t, "5/h")
	lim, err := New(flaky, "k", reqLimit, mustRate(t, "100/h"))
	if err != nil {
		t.Fatal(err)
	}

	_, err = lim.Acquire(context.Background(), 10)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("err = %v, want ErrStoreUnavailable", err)
	}
	if got := available(t, inner, "req:k", reqLimit); got != 5 {
		t.Errorf("request bucket = %v, want 5 (refunded after cost-side store error)", got)
	}
}

func TestAwait_GrantsAfterRefill(t *testing.T) {
	s := store.NewMemoryStore()
	lim, err := New(s, "k", mustRate(t, "100/s"), rate.Limit{},
		WithBackoff(Backoff{MaxInterval: 50 * time.Millisecond}))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	// Drain the bucket.
	for i := 0; i < 100; i++ {
		if dec, _ := lim.Acquire(ctx, 0); !dec.Granted {
			t.Fatalf("drain call %d denied", i)
		}
	}

	start := time.Now()
	dec, err := lim.Await(ctx, 0)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if !dec.Granted {
		t.Fatal("Await returned without a grant")
	}
	// One unit refills in 10ms; a couple of retries should be plenty.
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Await took %v, want well under 1s", elapsed)
	}
}

func TestAwait_TimeoutReturnsWaitTimeoutError(t *testing.T) {
	s := store.NewMemoryStore()
	lim, err := New(s, "k", mustRate(t, "1/h"), rate.Limit{},
		WithWaitTimeout(80*time.Millisecond),
		WithBackoff(Backoff{MaxInterval: 20 * time.Millisecond}))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if dec, _ := lim.Acquire(ctx, 0); !dec.Granted {
		t.Fatal("drain should be granted")
	}

	_, err = lim.Await(ctx, 0)
	if !errors.Is(err, ErrWaitTimeout) {
		t.Fatalf("err = %v, want ErrWaitTimeout", err)
	}

	var timeoutErr *WaitTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatal("error should be a *WaitTimeoutError")
	}
	if timeoutErr.Attempts < 1 {
		t.Errorf("Attempts = %d, want >= 1", timeoutErr.Attempts)
	}
}

func TestAwait_CallerCancellationPropagates(t *testing.T) {
	s := store.NewMemoryStore()
	lim, err := New(s, "k", mustRate(t, "1/h"), rate.Limit{},
		WithBackoff(Backoff{MaxInterval: 20 * time.Millisecond}))
	if err != nil {
		t.Fatal(err)
	}

	lim.Acquire(context.Background(), 0) // drain

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err = lim.Await(ctx, 0)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if errors.Is(err, ErrWaitTimeout) {
		t.Error("caller cancellation must not be reported as a wait timeout")
	}
}

func TestAwait_FailClosedRetriesOutage(t *testing.T) {
	inner := store.NewMemoryStore()
	flaky := &flakyStore{inner: inner, failConsumeOn: "req:"}
	lim, err := New(flaky, "k", mustRate(t, "10/s"), rate.Limit{},
		WithWaitTimeout(100*time.Millisecond),
		WithBackoff(Backoff{BaseInterval: 10 * time.Millisecond, MaxInterval: 20 * time.Millisecond}))
	if err != nil {
		t.Fatal(err)
	}

	// The store never recovers, so the waiter retries until its deadline.
	_, err = lim.Await(context.Background(), 0)
	if !errors.Is(err, ErrWaitTimeout) {
		t.Errorf("err = %v, want ErrWaitTimeout after retrying a dead store", err)
	}
}

func TestAwait_FailOpenGrantsWithoutConsuming(t *testing.T) {
	inner := store.NewMemoryStore()
	flaky := &flakyStore{inner: inner, failConsumeOn: "req:"}
	reqLimit := mustRate(t, "10/s")
	lim, err := New(flaky, "k", reqLimit, rate.Limit{}, WithFailOpen(true))
	if err != nil {
		t.Fatal(err)
	}

	dec, err := lim.Await(context.Background(), 0)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if !dec.Granted || !dec.FailOpen {
		t.Fatalf("dec = %+v, want a fail-open grant", dec)
	}
	if got := available(t, inner, "req:k", reqLimit); got != 10 {
		t.Errorf("request bucket = %v, want 10 (nothing consumed)", got)
	}
}
