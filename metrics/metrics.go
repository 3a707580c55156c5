package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stats holds throttler statistics.
type Stats struct {
	Admitted   uint64
	Delayed    uint64
	Hooked     uint64
	Cancelled  uint64
	TotalWait  time.Duration
	LastUpdate time.Time
}

// Collector collects throttler metrics.
type Collector struct {
	stats map[string]*throttlerStats
	mu    sync.RWMutex
}

type throttlerStats struct {
	admitted  atomic.Uint64
	delayed   atomic.Uint64
	hooked    atomic.Uint64
	cancelled atomic.Uint64
	waitNanos atomic.Int64
	updated   atomic.Int64
}

var (
	globalCollector = &Collector{
		stats: make(map[string]*throttlerStats),
	}

	// Prometheus metrics, nil until RegisterPrometheus
	prom atomic.Pointer[promVectors]
)

type promVectors struct {
	admissions   *prometheus.CounterVec
	delays       *prometheus.CounterVec
	hooks        *prometheus.CounterVec
	cancellation *prometheus.CounterVec
	waitSeconds  *prometheus.HistogramVec
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		stats: make(map[string]*throttlerStats),
	}
}

// getStats gets or creates stats for a name.
func (c *Collector) getStats(name string) *throttlerStats {
	c.mu.RLock()
	stats, ok := c.stats[name]
	c.mu.RUnlock()

	if ok {
		return stats
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock
	stats, ok = c.stats[name]
	if ok {
		return stats
	}

	stats = &throttlerStats{}
	stats.updated.Store(time.Now().Unix())
	c.stats[name] = stats
	return stats
}

// RecordAdmitted records an admission after waiting for waited.
func (c *Collector) RecordAdmitted(name string, waited time.Duration) {
	stats := c.getStats(name)
	stats.admitted.Add(1)
	stats.waitNanos.Add(int64(waited))
	stats.updated.Store(time.Now().Unix())

	if p := prom.Load(); p != nil {
		p.admissions.WithLabelValues(name).Inc()
		p.waitSeconds.WithLabelValues(name, "admitted").Observe(waited.Seconds())
	}
}

// RecordDelayed records a caller starting to wait for d.
func (c *Collector) RecordDelayed(name string, d time.Duration) {
	stats := c.getStats(name)
	stats.delayed.Add(1)
	stats.updated.Store(time.Now().Unix())

	if p := prom.Load(); p != nil {
		p.delays.WithLabelValues(name).Inc()
	}
}

// RecordHooked records a full window answered by the hook.
func (c *Collector) RecordHooked(name string) {
	stats := c.getStats(name)
	stats.hooked.Add(1)
	stats.updated.Store(time.Now().Unix())

	if p := prom.Load(); p != nil {
		p.hooks.WithLabelValues(name).Inc()
	}
}

// RecordCancelled records a wait abandoned after waited.
func (c *Collector) RecordCancelled(name string, waited time.Duration) {
	stats := c.getStats(name)
	stats.cancelled.Add(1)
	stats.waitNanos.Add(int64(waited))
	stats.updated.Store(time.Now().Unix())

	if p := prom.Load(); p != nil {
		p.cancellation.WithLabelValues(name).Inc()
		p.waitSeconds.WithLabelValues(name, "cancelled").Observe(waited.Seconds())
	}
}

func (s *throttlerStats) snapshot() Stats {
	return Stats{
		Admitted:   s.admitted.Load(),
		Delayed:    s.delayed.Load(),
		Hooked:     s.hooked.Load(),
		Cancelled:  s.cancelled.Load(),
		TotalWait:  time.Duration(s.waitNanos.Load()),
		LastUpdate: time.Unix(s.updated.Load(), 0),
	}
}

// GetStats returns statistics for a named throttler.
func (c *Collector) GetStats(name string) Stats {
	return c.getStats(name).snapshot()
}

// GetAllStats returns statistics for all throttlers.
func (c *Collector) GetAllStats() map[string]Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string]Stats, len(c.stats))
	for name, stats := range c.stats {
		result[name] = stats.snapshot()
	}
	return result
}

// Reset resets statistics for a named throttler.
func (c *Collector) Reset(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.stats, name)
}

// ResetAll resets all statistics.
func (c *Collector) ResetAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats = make(map[string]*throttlerStats)
}

// Global functions using the default collector

// GetStats returns statistics from the global collector.
func GetStats(name string) Stats {
	return globalCollector.GetStats(name)
}

// GetAllStats returns all statistics from the global collector.
func GetAllStats() map[string]Stats {
	return globalCollector.GetAllStats()
}

// RegisterPrometheus registers Prometheus metrics with reg. Collectors record
// to Prometheus only after this has been called. It is safe to call while
// throttlers are recording; a later call switches recording to the new
// registry.
func RegisterPrometheus(reg prometheus.Registerer) {
	factory := promauto.With(reg)

	p := &promVectors{
		admissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "throttler_admissions_total",
				Help: "Total number of admitted calls",
			},
			[]string{"throttler"},
		),
		delays: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "throttler_delays_total",
				Help: "Total number of waits for a full window",
			},
			[]string{"throttler"},
		),
		hooks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "throttler_hook_invocations_total",
				Help: "Total number of full windows answered by the hook",
			},
			[]string{"throttler"},
		),
		cancellation: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "throttler_cancellations_total",
				Help: "Total number of waits abandoned because the context ended",
			},
			[]string{"throttler"},
		),
		waitSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "throttler_wait_seconds",
				Help:    "Time callers spent waiting in Acquire",
				Buckets: []float64{0, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"throttler", "outcome"},
		),
	}

	prom.Store(p)
}
