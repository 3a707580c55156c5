package throttler

import (
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Option configures a Throttler.
type Option func(*options)

type options struct {
	name     string
	policy   policy
	clock    Clock
	logger   *slog.Logger
	observer Observer
	tracer   trace.Tracer
	errs     []error
}

func defaultOptions() options {
	return options{
		name:     "default",
		policy:   waitPolicy{},
		clock:    SystemClock(),
		logger:   slog.New(slog.DiscardHandler),
		observer: nopObserver{},
		tracer:   noop.NewTracerProvider().Tracer(tracerName),
	}
}

// WithHook replaces waiting with hook whenever the window is full. The hook
// owns backpressure completely: calls it answers are not recorded, so a hook
// that returns immediately lets callers through without limit.
func WithHook(hook Hook) Option {
	return func(o *options) {
		if hook == nil {
			o.errs = append(o.errs, errors.New("hook must not be nil"))
			return
		}
		o.policy = hookPolicy{hook: hook}
	}
}

// WithClock sets the clock used for timestamps and waiting.
func WithClock(c Clock) Option {
	return func(o *options) {
		if c == nil {
			o.errs = append(o.errs, errors.New("clock must not be nil"))
			return
		}
		o.clock = c
	}
}

// WithName labels the throttler in logs, spans and metrics.
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithLogger sets the logger. A nil logger keeps logging disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithObserver registers an observer for admission events.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithTracerProvider enables spans around Acquire.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracer = tp.Tracer(tracerName)
		}
	}
}
