package throttler

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
)

// OnThrottled writes the response when a request could not be admitted.
// err is the error returned by Acquire.
type OnThrottled func(w http.ResponseWriter, r *http.Request, result Result, err error)

// Middleware guards next with t. Each request is a guarded section: it waits
// for a slot (bounded by the request context) or, when t has a hook, gets
// whatever the hook decides. Requests that are not admitted are answered by
// the OnThrottled handler.
func Middleware(t *Throttler, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := &middlewareConfig{
		statusCode: http.StatusTooManyRequests,
		addHeaders: true,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.onThrottled == nil {
		cfg.onThrottled = cfg.defaultOnThrottled
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.skipFunc != nil && cfg.skipFunc(r) {
				next.ServeHTTP(w, r)
				return
			}

			if _, err := t.Acquire(r.Context()); err != nil {
				result := t.Check()
				if cfg.addHeaders {
					AddRateLimitHeaders(w, result)
				}
				cfg.onThrottled(w, r, result, err)
				return
			}
			defer t.Release()

			if cfg.addHeaders {
				AddRateLimitHeaders(w, t.Check())
			}

			next.ServeHTTP(w, r)
		})
	}
}

type middlewareConfig struct {
	onThrottled OnThrottled
	statusCode  int
	addHeaders  bool
	skipFunc    func(*http.Request) bool
}

// defaultOnThrottled returns a plain-text error using the configured status
// code. A cancelled wait means the client went away or its deadline passed,
// so it gets 503 instead.
func (cfg *middlewareConfig) defaultOnThrottled(w http.ResponseWriter, r *http.Request, result Result, err error) {
	if errors.Is(err, ErrWaitCancelled) {
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		return
	}
	http.Error(w, "Rate limit exceeded", cfg.statusCode)
}

// MiddlewareOption is an option for the middleware.
type MiddlewareOption func(*middlewareConfig)

// WithOnThrottled sets the handler for requests that were not admitted.
func WithOnThrottled(fn OnThrottled) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		cfg.onThrottled = fn
	}
}

// WithStatusCode sets the status code returned when a request is throttled.
func WithStatusCode(code int) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		cfg.statusCode = code
	}
}

// WithHeaders enables or disables rate limit headers.
func WithHeaders(enabled bool) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		cfg.addHeaders = enabled
	}
}

// WithSkipFunc sets a function to determine if throttling should be skipped.
func WithSkipFunc(fn func(*http.Request) bool) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		cfg.skipFunc = fn
	}
}

// AddRateLimitHeaders adds standard rate limit headers to the response.
func AddRateLimitHeaders(w http.ResponseWriter, result Result) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))

	if !result.ResetAt.IsZero() {
		h.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
	}

	if !result.Allowed && result.RetryAfter > 0 {
		h.Set("Retry-After", strconv.Itoa(int(math.Ceil(result.RetryAfter.Seconds()))))
	}
}

// JSONOnThrottled returns a JSON response with a 429 status code. Use
// JSONOnThrottledWithCode to customize.
func JSONOnThrottled(w http.ResponseWriter, r *http.Request, result Result, err error) {
	jsonOnThrottled(w, result, http.StatusTooManyRequests)
}

// JSONOnThrottledWithCode creates a JSON response handler with a custom status code.
func JSONOnThrottledWithCode(statusCode int) OnThrottled {
	return func(w http.ResponseWriter, r *http.Request, result Result, err error) {
		jsonOnThrottled(w, result, statusCode)
	}
}

func jsonOnThrottled(w http.ResponseWriter, result Result, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	retryAfter := int(math.Ceil(result.RetryAfter.Seconds()))
	_, _ = fmt.Fprintf(w, `{"error":"throttled","message":"Too many requests","retry_after":%d}`, retryAfter)
}

// Skip Functions

// SkipHealthChecks skips throttling for common health check paths.
func SkipHealthChecks(r *http.Request) bool {
	switch r.URL.Path {
	case "/health", "/healthz", "/ready", "/readyz", "/live", "/livez", "/ping":
		return true
	}
	return false
}

// SkipMethods creates a skip function that skips specific HTTP methods.
func SkipMethods(methods ...string) func(*http.Request) bool {
	methodSet := make(map[string]bool)
	for _, m := range methods {
		methodSet[strings.ToUpper(m)] = true
	}
	return func(r *http.Request) bool {
		return methodSet[r.Method]
	}
}

// SkipPaths creates a skip function that skips specific paths.
func SkipPaths(paths ...string) func(*http.Request) bool {
	pathSet := make(map[string]bool)
	for _, p := range paths {
		pathSet[p] = true
	}
	return func(r *http.Request) bool {
		return pathSet[r.URL.Path]
	}
}

// SkipIf combines multiple skip functions with OR logic.
func SkipIf(funcs ...func(*http.Request) bool) func(*http.Request) bool {
	return func(r *http.Request) bool {
		for _, fn := range funcs {
			if fn(r) {
				return true
			}
		}
		return false
	}
}

// Handler wraps handler with Middleware.
func Handler(handler http.Handler, t *Throttler, opts ...MiddlewareOption) http.Handler {
	return Middleware(t, opts...)(handler)
}
