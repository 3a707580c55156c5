// Package throttler provides a sliding-window throttler that guards a critical
// section shared by concurrent callers.
package throttler

import (
	"context"
	"errors"
	"time"
)

// Common errors.
var (
	// ErrInvalidConfiguration is returned by New when the limit, period or
	// hook are unusable.
	ErrInvalidConfiguration = errors.New("invalid throttler configuration")

	// ErrWaitCancelled is returned when the context ends while a caller is
	// waiting for a free slot.
	ErrWaitCancelled = errors.New("throttler wait cancelled")

	// ErrThrottled is returned by the Reject hook when the window is full.
	ErrThrottled = errors.New("throttled")
)

// Compile-time interface compliance checks.
var (
	_ Limiter  = (*Throttler)(nil)
	_ Clock    = systemClock{}
	_ Observer = nopObserver{}
)

// Limiter is the interface implemented by Throttler. It is provided so code
// that guards a section can accept a test double.
type Limiter interface {
	// Acquire blocks until an admission is recorded, the configured hook
	// answers for a full window, or ctx ends.
	Acquire(ctx context.Context) (any, error)

	// Release closes a section opened by Acquire.
	Release()

	// Do runs fn between Acquire and Release.
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// Hook is invoked instead of waiting when the window is full. Its value
// becomes the result of Acquire and its error is returned unchanged.
type Hook func(ctx context.Context) (any, error)

// Reject is a Hook that fails fast with ErrThrottled.
func Reject(ctx context.Context) (any, error) {
	return nil, ErrThrottled
}

// Result describes the state of the window at one instant.
type Result struct {
	Allowed    bool          // Whether an admission would succeed now
	Limit      int           // Maximum admissions per period
	Remaining  int           // Free slots in the window
	RetryAfter time.Duration // Time until the next slot frees up (if not allowed)
	ResetAt    time.Time     // When the oldest admission in the window expires
}

// Observer receives admission events. Implementations must be safe for
// concurrent use and must not block.
type Observer interface {
	// Admitted is called after an admission is recorded. waited is the total
	// time the caller spent waiting.
	Admitted(waited time.Duration)

	// Delayed is called each time a caller starts waiting for d.
	Delayed(d time.Duration)

	// Hooked is called when the hook answers for a full window.
	Hooked()

	// Cancelled is called when a waiting caller's context ends.
	Cancelled(waited time.Duration)
}

type nopObserver struct{}

func (nopObserver) Admitted(time.Duration)  {}
func (nopObserver) Delayed(time.Duration)   {}
func (nopObserver) Hooked()                 {}
func (nopObserver) Cancelled(time.Duration) {}
