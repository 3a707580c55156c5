package throttler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const tracerName = "github.com/KARTIKrocks/go-throttler"

// minWait is the shortest wait. A slack of exactly zero still means the
// window is full, so the caller waits for the clock to move on.
const minWait = time.Nanosecond

// Throttler implements the sliding window log algorithm over a fixed history
// of the last limit admission times. A call is admitted once the oldest of
// those times is more than period in the past, so no window of length period
// ever holds more than limit admissions.
//
// Only the start of a guarded section counts against the limit; how long the
// section runs does not matter.
//
// Throttler is safe for concurrent use. Waiting callers are not served in
// arrival order: whichever re-checks first after a slot frees up wins it.
type Throttler struct {
	name     string
	limit    int
	period   time.Duration
	policy   policy
	clock    Clock
	logger   *slog.Logger
	observer Observer
	tracer   trace.Tracer
	fullLog  *rate.Sometimes

	mu    sync.Mutex
	times []time.Time // ring buffer, times[head] is the oldest
	head  int
}

// policy decides what a caller does when the window is full.
type policy interface {
	isPolicy()
}

// waitPolicy sleeps until the oldest admission leaves the window, then
// re-checks.
type waitPolicy struct{}

// hookPolicy hands a full window to a caller-supplied hook.
type hookPolicy struct {
	hook Hook
}

func (waitPolicy) isPolicy() {}
func (hookPolicy) isPolicy() {}

// New creates a throttler admitting at most limit calls in any period.
//
// All history slots start at the zero time, so the first limit calls are
// admitted without waiting. Invalid arguments return an error wrapping
// ErrInvalidConfiguration.
func New(limit int, period time.Duration, opts ...Option) (*Throttler, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit[%d] must be greater than zero", ErrInvalidConfiguration, limit)
	}
	if period <= 0 {
		return nil, fmt.Errorf("%w: period[%s] must be greater than zero", ErrInvalidConfiguration, period)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if len(o.errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfiguration, errors.Join(o.errs...))
	}

	return &Throttler{
		name:     o.name,
		limit:    limit,
		period:   period,
		policy:   o.policy,
		clock:    o.clock,
		logger:   o.logger.With("throttler", o.name),
		observer: o.observer,
		tracer:   o.tracer,
		fullLog:  &rate.Sometimes{First: 1, Interval: 10 * time.Second},
		times:    make([]time.Time, limit),
	}, nil
}

// MustNew is like New but panics on invalid arguments.
func MustNew(limit int, period time.Duration, opts ...Option) *Throttler {
	t, err := New(limit, period, opts...)
	if err != nil {
		panic("throttler: " + err.Error())
	}
	return t
}

// Name returns the throttler's label.
func (t *Throttler) Name() string { return t.name }

// Limit returns the maximum number of admissions per period.
func (t *Throttler) Limit() int { return t.limit }

// Period returns the window length.
func (t *Throttler) Period() time.Duration { return t.period }

// admit records an admission if the oldest entry has left the window. When
// it has not, admit returns how long until it does.
func (t *Throttler) admit() (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	slack := now.Sub(t.times[t.head].Add(t.period))
	if slack > 0 {
		t.times[t.head] = now
		t.head = (t.head + 1) % t.limit
		return 0, true
	}
	return -slack, false
}

// Acquire blocks until the call is admitted and records its start time.
//
// When the window is full and a hook is configured, the hook is called
// instead and its value and error are returned as-is; nothing is recorded.
// Otherwise Acquire sleeps until the oldest admission leaves the window and
// checks again, since another caller may have taken the slot in the meantime.
//
// If ctx ends first, Acquire returns an error wrapping ErrWaitCancelled and
// ctx.Err() without recording anything.
func (t *Throttler) Acquire(ctx context.Context) (any, error) {
	ctx, span := t.tracer.Start(ctx, "throttler.acquire", trace.WithAttributes(
		attribute.String("throttler.name", t.name),
		attribute.Int("throttler.limit", t.limit),
	))
	defer span.End()

	start := t.clock.Now()
	for {
		if err := ctx.Err(); err != nil {
			return nil, t.cancelled(span, start, err)
		}

		wait, ok := t.admit()
		if ok {
			waited := t.clock.Now().Sub(start)
			t.observer.Admitted(waited)
			span.SetAttributes(
				attribute.String("throttler.outcome", "admitted"),
				attribute.Int64("throttler.waited_ms", waited.Milliseconds()),
			)
			if waited > 0 {
				t.logger.Debug("throttle wait complete", "waited", waited.String())
			}
			return nil, nil
		}

		t.fullLog.Do(func() {
			t.logger.Info("throttle window full", "limit", t.limit, "period", t.period.String(), "wait", wait.String())
		})

		switch p := t.policy.(type) {
		case hookPolicy:
			t.observer.Hooked()
			span.SetAttributes(attribute.String("throttler.outcome", "hooked"))
			v, err := p.hook(ctx)
			if err != nil {
				span.RecordError(err)
			}
			return v, err

		case waitPolicy:
			if err := t.sleep(ctx, wait); err != nil {
				return nil, t.cancelled(span, start, err)
			}
		}
	}
}

// sleep waits for d or until ctx ends.
func (t *Throttler) sleep(ctx context.Context, d time.Duration) error {
	if d < minWait {
		d = minWait
	}
	t.observer.Delayed(d)

	timer := t.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C():
		return nil
	}
}

func (t *Throttler) cancelled(span trace.Span, start time.Time, cause error) error {
	waited := t.clock.Now().Sub(start)
	t.observer.Cancelled(waited)
	t.logger.Debug("throttle wait cancelled", "waited", waited.String(), "error", cause)

	err := fmt.Errorf("%w: %w", ErrWaitCancelled, cause)
	span.SetAttributes(attribute.String("throttler.outcome", "cancelled"))
	span.SetStatus(codes.Error, err.Error())
	return err
}

// TryAcquire records an admission if a slot is free and reports whether it
// did. It never waits and never calls the hook.
func (t *Throttler) TryAcquire() bool {
	if _, ok := t.admit(); ok {
		t.observer.Admitted(0)
		return true
	}
	return false
}

// Release closes a section opened by Acquire. Only starts are limited, so
// Release changes nothing; it exists so every exit path has a matching call.
func (t *Throttler) Release() {}

// Do acquires the throttler, runs fn and releases, including when fn panics.
// An error from Acquire is returned without running fn; an error from fn is
// returned unchanged.
func (t *Throttler) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, err := t.Acquire(ctx); err != nil {
		return err
	}
	defer t.Release()

	return fn(ctx)
}

// Guard is an open section returned by Enter.
type Guard struct {
	t     *Throttler
	value any
	once  sync.Once
}

// Enter acquires the throttler and returns a guard to be closed with Exit,
// typically via defer.
func (t *Throttler) Enter(ctx context.Context) (*Guard, error) {
	v, err := t.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &Guard{t: t, value: v}, nil
}

// Value returns the hook's value when the hook answered Enter, nil otherwise.
func (g *Guard) Value() any { return g.value }

// Exit releases the throttler. Calls after the first do nothing.
func (g *Guard) Exit() {
	g.once.Do(g.t.Release)
}

// Check reports the window state without recording anything.
func (t *Throttler) Check() Result {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	result := Result{Limit: t.limit}

	inWindow := 0
	for i := 0; i < t.limit; i++ {
		ts := t.times[(t.head+i)%t.limit]
		if now.Sub(ts.Add(t.period)) > 0 {
			continue
		}
		if inWindow == 0 {
			result.ResetAt = ts.Add(t.period)
		}
		inWindow++
	}
	result.Remaining = t.limit - inWindow

	oldest := t.times[t.head]
	if slack := now.Sub(oldest.Add(t.period)); slack > 0 {
		result.Allowed = true
	} else {
		result.RetryAfter = -slack
	}

	return result
}

// Count returns the number of admissions in the current window.
func (t *Throttler) Count() int {
	return t.limit - t.Check().Remaining
}
