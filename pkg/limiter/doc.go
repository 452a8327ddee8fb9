// Package limiter composes bucket stores into dual-dimension admission
// control for rate-limited callables.
//
// # Overview
//
// A Limiter guards one logical key with up to two token buckets held in a
// shared store (see package store): a request bucket consuming 1 unit per
// call and a cost bucket consuming an estimated number of units per call.
// A call is admitted only when every configured dimension grants, and the
// consumption is all-or-nothing: a denial on the cost dimension refunds
// the unit already taken from the request bucket, so callers blocked
// purely on cost do not bleed their request budget.
//
//	lim, err := limiter.New(st, "openai_chat", reqLimit, tokLimit)
//	dec, err := lim.Await(ctx, 1500) // blocks until admitted
//
// # Waiting
//
// Await retries until admission. Each denial carries the backend's estimate
// of when refill will cover the cost; the Backoff policy adds bounded
// random jitter so a crowd of waiters does not retry in lockstep, caps any
// single sleep, and falls back to exponential growth when there is no
// estimate (store outage). An overall deadline turns into ErrWaitTimeout.
// There is no fairness guarantee among waiters: a late arrival with a
// shorter computed wait may be admitted first.
//
// # Bindings
//
// Bind attaches a limiter (and, when a cost dimension is configured, a
// cost estimator) to a target function. The blocking convention waits in
// the calling goroutine; the suspending convention returns a Future and
// waits elsewhere. Both run the same admission path.
//
//	b, _ := limiter.Bind(lim, callOpenAI, limiter.ForTexts(est, promptOf))
//	resp, err := b.Call(ctx, req)       // blocking
//	fut := b.Go(ctx, req)               // suspending
//	resp, err = fut.Wait(ctx)
//
// # Registry
//
// A Registry owns the limiters for a set of keys over one shared store and
// builds them from string specs ("50/s", "100000/m"). Registries are
// explicit objects; multiple registries may coexist and there is no
// package-level default.
//
// # Failure Policy
//
// Store failures never grant silently. The default fails closed: Acquire
// surfaces ErrStoreUnavailable at once, and Await keeps retrying under
// backoff until its deadline. WithFailOpen(true) opts into admitting
// without consuming, which is counted and logged.
package limiter
