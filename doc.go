// Package throttler limits how often a critical section may be entered.
//
// A Throttler admits at most limit calls within any trailing period. It keeps
// the start times of the last limit admissions; a new call is admitted once
// the oldest of them is more than period in the past, otherwise the caller
// waits until it is. This is a true sliding window: unlike fixed buckets it
// never lets 2*limit calls through across a bucket boundary.
//
// # Quick Start
//
// Guard an outbound call:
//
//	t, err := throttler.New(10, time.Second) // 10 calls per second
//	if err != nil {
//	    return err
//	}
//
//	err = t.Do(ctx, func(ctx context.Context) error {
//	    return client.Call(ctx)
//	})
//
// Or open and close the section yourself:
//
//	if _, err := t.Acquire(ctx); err != nil {
//	    return err // ctx ended while waiting
//	}
//	defer t.Release()
//
// Only call starts are limited. How long the guarded section runs, and
// whether it fails, does not affect the window.
//
// # Waiting and Cancellation
//
// Acquire blocks until a slot frees up. Bound the wait with a context
// deadline; when the context ends Acquire returns an error wrapping
// ErrWaitCancelled and nothing is recorded:
//
//	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
//	defer cancel()
//	if _, err := t.Acquire(ctx); errors.Is(err, throttler.ErrWaitCancelled) {
//	    // gave up
//	}
//
// Waiters are not queued. When a slot frees up, any waiting goroutine may
// take it.
//
// # Hooks
//
// WithHook replaces waiting with custom backpressure. When the window is
// full the hook runs instead, and its value and error are what Acquire
// returns:
//
//	t, _ := throttler.New(100, time.Minute, throttler.WithHook(throttler.Reject))
//	if _, err := t.Acquire(ctx); errors.Is(err, throttler.ErrThrottled) {
//	    // window full
//	}
//
// Calls answered by the hook are not recorded. A hook that returns without
// an error therefore lets callers proceed past the limit; the hook fully owns
// backpressure for those calls.
//
// # HTTP
//
// NewRoundTripper throttles outbound requests:
//
//	rt, _ := throttler.NewRoundTripper(t, http.DefaultTransport)
//	client := &http.Client{Transport: rt}
//
// Middleware throttles inbound requests and sets X-RateLimit-* headers:
//
//	handler := throttler.Middleware(t,
//	    throttler.WithSkipFunc(throttler.SkipHealthChecks),
//	)(mux)
//
// # Observability
//
// WithLogger, WithObserver and WithTracerProvider attach a slog logger, an
// event observer (see the metrics subpackage for a Prometheus-backed one)
// and OpenTelemetry spans. All default to no-ops.
package throttler
