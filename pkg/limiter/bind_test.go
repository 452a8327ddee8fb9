package limiter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/choked/choked/pkg/estimator"
	"github.com/choked/choked/pkg/rate"
	"github.com/choked/choked/pkg/store"
)

func upper(_ context.Context, s string) (string, error) {
	return strings.ToUpper(s), nil
}

func perChar(s string) (float64, error) {
	return float64(len(s)), nil
}

func TestBind_Validation(t *testing.T) {
	s := store.NewMemoryStore()
	reqOnly, _ := New(s, "ro", mustRate(t, "10/s"), rate.Limit{})
	costLimited, _ := New(s, "cl", rate.Limit{}, mustRate(t, "100/s"))

	if _, err := Bind[string, string](reqOnly, nil, nil); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("nil target: err = %v, want ErrInvalidConfig", err)
	}
	if _, err := Bind(costLimited, upper, nil); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("cost limit without cost func: err = %v, want ErrInvalidConfig", err)
	}
	if _, err := Bind(reqOnly, upper, perChar); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("cost func without cost limit: err = %v, want ErrInvalidConfig", err)
	}
	if _, err := Bind(costLimited, upper, perChar); err != nil {
		t.Errorf("valid binding: err = %v", err)
	}
}

func TestCall_RunsTargetAfterAdmission(t *testing.T) {
	s := store.NewMemoryStore()
	lim, _ := New(s, "k", mustRate(t, "10/s"), mustRate(t, "100/s"))
	b, err := Bind(lim, upper, perChar)
	if err != nil {
		t.Fatal(err)
	}

	got, err := b.Call(context.Background(), "hello")
	if err != nil {
		t.Fatal(err)
	}
	if got != "HELLO" {
		t.Errorf("Call = %q, want %q", got, "HELLO")
	}
}

func TestCall_DeniedLimitSurfacesWithoutRunningTarget(t *testing.T) {
	s := store.NewMemoryStore()
	lim, _ := New(s, "k", mustRate(t, "1/h"), rate.Limit{},
		WithWaitTimeout(50*time.Millisecond),
		WithBackoff(Backoff{MaxInterval: 10 * time.Millisecond}))

	ran := false
	target := func(context.Context, string) (string, error) {
		ran = true
		return "", nil
	}
	b, _ := Bind(lim, target, nil)
	ctx := context.Background()

	if _, err := b.Call(ctx, "first"); err != nil {
		t.Fatal(err)
	}
	_, err := b.Call(ctx, "second")
	if !errors.Is(err, ErrWaitTimeout) {
		t.Fatalf("err = %v, want ErrWaitTimeout", err)
	}
	if !ran {
		t.Fatal("first call should have run the target")
	}
}

func TestCall_EstimationFailureTouchesNoBucket(t *testing.T) {
	s := store.NewMemoryStore()
	reqLimit := mustRate(t, "10/s")
	costLimit := mustRate(t, "100/s")
	lim, _ := New(s, "k", reqLimit, costLimit)

	failing := func(string) (float64, error) {
		return 0, fmt.Errorf("tokenizer unavailable")
	}
	b, _ := Bind(lim, upper, failing)

	_, err := b.Call(context.Background(), "x")
	if !errors.Is(err, ErrEstimation) {
		t.Fatalf("err = %v, want ErrEstimation", err)
	}
	if got := available(t, s, "req:k", reqLimit); !near(got, 10) {
		t.Errorf("request bucket = %v, want 10 (untouched)", got)
	}
	if got := available(t, s, "tok:k", costLimit); !near(got, 100) {
		t.Errorf("cost bucket = %v, want 100 (untouched)", got)
	}
}

func TestCall_NegativeEstimateRejected(t *testing.T) {
	s := store.NewMemoryStore()
	lim, _ := New(s, "k", rate.Limit{}, mustRate(t, "100/s"))

	negative := func(string) (float64, error) { return -5, nil }
	b, _ := Bind(lim, upper, negative)

	if _, err := b.Call(context.Background(), "x"); !errors.Is(err, ErrEstimation) {
		t.Errorf("err = %v, want ErrEstimation", err)
	}
}

func TestGo_DeliversThroughFuture(t *testing.T) {
	s := store.NewMemoryStore()
	lim, _ := New(s, "k", mustRate(t, "10/s"), rate.Limit{})
	b, _ := Bind(lim, upper, nil)

	f := b.Go(context.Background(), "async")
	got, err := f.Wait(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got != "ASYNC" {
		t.Errorf("Future = %q, want %q", got, "ASYNC")
	}

	select {
	case <-f.Done():
	default:
		t.Error("Done should be closed after Wait returned")
	}
}

func TestGo_SameAdmissionAsCall(t *testing.T) {
	s := store.NewMemoryStore()
	reqLimit := mustRate(t, "2/h")
	lim, _ := New(s, "k", reqLimit, rate.Limit{},
		WithWaitTimeout(50*time.Millisecond),
		WithBackoff(Backoff{MaxInterval: 10 * time.Millisecond}))
	b, _ := Bind(lim, upper, nil)
	ctx := context.Background()

	if _, err := b.Call(ctx, "one"); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Go(ctx, "two").Wait(ctx); err != nil {
		t.Fatal(err)
	}

	// Both conventions consumed from the same budget, so the third call is
	// over it regardless of which convention makes it.
	_, err := b.Go(ctx, "three").Wait(ctx)
	if !errors.Is(err, ErrWaitTimeout) {
		t.Errorf("err = %v, want ErrWaitTimeout", err)
	}
}

func TestGo_FutureWaitHonoursContext(t *testing.T) {
	s := store.NewMemoryStore()
	lim, _ := New(s, "k", mustRate(t, "10/s"), rate.Limit{})

	slow := func(ctx context.Context, s string) (string, error) {
		select {
		case <-time.After(5 * time.Second):
			return s, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	b, _ := Bind(lim, slow, nil)

	f := b.Go(context.Background(), "x")
	waitCtx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := f.Wait(waitCtx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want context.DeadlineExceeded", err)
	}
}

func TestForTexts(t *testing.T) {
	est, err := estimator.ByName("openai")
	if err != nil {
		t.Fatal(err)
	}
	cost := ForTexts(est, func(texts []string) []string { return texts })

	got, err := cost([]string{"hello world!"}) // 12 chars at 4 chars/token
	if err != nil {
		t.Fatal(err)
	}
	if got != 3 {
		t.Errorf("cost = %v, want 3", got)
	}
}
