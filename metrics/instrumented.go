// Package metrics records throttler activity as counters and, optionally,
// Prometheus metrics.
package metrics

import (
	"time"

	throttler "github.com/KARTIKrocks/go-throttler"
)

var _ throttler.Observer = (*Observer)(nil)

// Observer feeds throttler events into a Collector. Pass it to
// throttler.WithObserver.
type Observer struct {
	name      string
	collector *Collector
}

// NewObserver creates an observer using the global collector.
func NewObserver(name string) *Observer {
	return NewObserverWithCollector(name, globalCollector)
}

// NewObserverWithCollector creates an observer with a custom collector.
func NewObserverWithCollector(name string, collector *Collector) *Observer {
	return &Observer{
		name:      name,
		collector: collector,
	}
}

// Admitted implements throttler.Observer.
func (o *Observer) Admitted(waited time.Duration) {
	o.collector.RecordAdmitted(o.name, waited)
}

// Delayed implements throttler.Observer.
func (o *Observer) Delayed(d time.Duration) {
	o.collector.RecordDelayed(o.name, d)
}

// Hooked implements throttler.Observer.
func (o *Observer) Hooked() {
	o.collector.RecordHooked(o.name)
}

// Cancelled implements throttler.Observer.
func (o *Observer) Cancelled(waited time.Duration) {
	o.collector.RecordCancelled(o.name, waited)
}

// GetStats returns statistics for this observer's throttler.
func (o *Observer) GetStats() Stats {
	return o.collector.GetStats(o.name)
}

// New creates a throttler named name that reports to the global collector.
func New(name string, limit int, period time.Duration, opts ...throttler.Option) (*throttler.Throttler, error) {
	opts = append([]throttler.Option{
		throttler.WithName(name),
		throttler.WithObserver(NewObserver(name)),
	}, opts...)
	return throttler.New(limit, period, opts...)
}
