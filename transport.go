package throttler

import (
	"fmt"
	"net/http"
)

// roundTripper is an http.RoundTripper that treats every outbound request as
// a section guarded by a Throttler.
type roundTripper struct {
	t    *Throttler
	next http.RoundTripper
}

// NewRoundTripper returns an http.RoundTripper that starts at most t.Limit()
// requests per t.Period(). The request context bounds the wait. A nil next
// uses http.DefaultTransport.
func NewRoundTripper(t *Throttler, next http.RoundTripper) (http.RoundTripper, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: throttler must not be nil", ErrInvalidConfiguration)
	}
	if next == nil {
		next = http.DefaultTransport
	}

	return &roundTripper{t: t, next: next}, nil
}

func (rt *roundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if _, err := rt.t.Acquire(r.Context()); err != nil {
		return nil, fmt.Errorf("throttle %s %s: %w", r.Method, r.URL.Redacted(), err)
	}
	defer rt.t.Release()

	return rt.next.RoundTrip(r)
}
