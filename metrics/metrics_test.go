package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_RecordAdmitted(t *testing.T) {
	c := NewCollector()

	c.RecordAdmitted("api", 0)
	c.RecordAdmitted("api", 100*time.Millisecond)
	c.RecordAdmitted("api", 50*time.Millisecond)

	stats := c.GetStats("api")
	if stats.Admitted != 3 {
		t.Errorf("expected Admitted=3, got %d", stats.Admitted)
	}
	if stats.TotalWait != 150*time.Millisecond {
		t.Errorf("expected TotalWait=150ms, got %v", stats.TotalWait)
	}
}

func TestCollector_RecordDelayed(t *testing.T) {
	c := NewCollector()

	c.RecordDelayed("api", time.Second)
	c.RecordDelayed("api", time.Second)

	stats := c.GetStats("api")
	if stats.Delayed != 2 {
		t.Errorf("expected Delayed=2, got %d", stats.Delayed)
	}
	if stats.TotalWait != 0 {
		t.Errorf("delays are planned waits and must not count as waited time, got %v", stats.TotalWait)
	}
}

func TestCollector_RecordHookedAndCancelled(t *testing.T) {
	c := NewCollector()

	c.RecordHooked("api")
	c.RecordHooked("api")
	c.RecordHooked("api")
	c.RecordCancelled("api", 20*time.Millisecond)

	stats := c.GetStats("api")
	if stats.Hooked != 3 {
		t.Errorf("expected Hooked=3, got %d", stats.Hooked)
	}
	if stats.Cancelled != 1 {
		t.Errorf("expected Cancelled=1, got %d", stats.Cancelled)
	}
	if stats.TotalWait != 20*time.Millisecond {
		t.Errorf("expected TotalWait=20ms, got %v", stats.TotalWait)
	}
}

func TestCollector_GetStats_Empty(t *testing.T) {
	c := NewCollector()

	stats := c.GetStats("nonexistent")
	if stats.Admitted != 0 || stats.Delayed != 0 || stats.Hooked != 0 || stats.Cancelled != 0 {
		t.Errorf("expected zero stats for unknown name, got %+v", stats)
	}
}

func TestCollector_GetAllStats(t *testing.T) {
	c := NewCollector()

	c.RecordAdmitted("api", 0)
	c.RecordAdmitted("api", 0)
	c.RecordHooked("api")

	c.RecordAdmitted("web", 0)
	c.RecordCancelled("web", time.Millisecond)

	all := c.GetAllStats()

	if len(all) != 2 {
		t.Errorf("expected 2 entries in GetAllStats, got %d", len(all))
	}

	apiStats, ok := all["api"]
	if !ok {
		t.Errorf("expected 'api' entry in GetAllStats")
	} else {
		if apiStats.Admitted != 2 {
			t.Errorf("api: expected Admitted=2, got %d", apiStats.Admitted)
		}
		if apiStats.Hooked != 1 {
			t.Errorf("api: expected Hooked=1, got %d", apiStats.Hooked)
		}
	}

	webStats, ok := all["web"]
	if !ok {
		t.Errorf("expected 'web' entry in GetAllStats")
	} else if webStats.Cancelled != 1 {
		t.Errorf("web: expected Cancelled=1, got %d", webStats.Cancelled)
	}
}

func TestCollector_Reset(t *testing.T) {
	c := NewCollector()

	c.RecordAdmitted("api", time.Second)
	c.RecordHooked("api")

	c.Reset("api")

	stats := c.GetStats("api")
	if stats.Admitted != 0 {
		t.Errorf("expected Admitted=0 after reset, got %d", stats.Admitted)
	}
	if stats.TotalWait != 0 {
		t.Errorf("expected TotalWait=0 after reset, got %v", stats.TotalWait)
	}
}

func TestCollector_ResetAll(t *testing.T) {
	c := NewCollector()

	c.RecordAdmitted("api", 0)
	c.RecordHooked("web")
	c.RecordCancelled("db", 0)

	c.ResetAll()

	all := c.GetAllStats()
	if len(all) != 0 {
		t.Errorf("expected 0 entries after ResetAll, got %d", len(all))
	}
}

func TestCollector_Concurrent(t *testing.T) {
	c := NewCollector()

	var wg sync.WaitGroup
	goroutines := 100
	iterations := 50

	wg.Add(goroutines * 2)

	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				c.RecordAdmitted("concurrent", time.Millisecond)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				c.RecordDelayed("concurrent", time.Millisecond)
			}
		}()
	}

	wg.Wait()

	stats := c.GetStats("concurrent")

	expected := uint64(goroutines * iterations)
	if stats.Admitted != expected {
		t.Errorf("expected Admitted=%d, got %d", expected, stats.Admitted)
	}
	if stats.Delayed != expected {
		t.Errorf("expected Delayed=%d, got %d", expected, stats.Delayed)
	}
	if stats.TotalWait != time.Duration(expected)*time.Millisecond {
		t.Errorf("expected TotalWait=%v, got %v", time.Duration(expected)*time.Millisecond, stats.TotalWait)
	}
}

func TestCollector_LastUpdate(t *testing.T) {
	c := NewCollector()

	before := time.Now().Add(-time.Second)
	c.RecordAdmitted("api", 0)
	after := time.Now().Add(time.Second)

	stats := c.GetStats("api")

	if stats.LastUpdate.Before(before) {
		t.Errorf("LastUpdate %v is before the recording time %v", stats.LastUpdate, before)
	}
	if stats.LastUpdate.After(after) {
		t.Errorf("LastUpdate %v is after the recording time %v", stats.LastUpdate, after)
	}
}

func TestRegisterPrometheus(t *testing.T) {
	reg := prometheus.NewRegistry()
	RegisterPrometheus(reg)

	p := prom.Load()

	c := NewCollector()
	c.RecordAdmitted("prom", 0)
	c.RecordAdmitted("prom", 2*time.Second)
	c.RecordDelayed("prom", time.Second)
	c.RecordHooked("prom")
	c.RecordCancelled("prom", time.Second)

	if got := testutil.ToFloat64(p.admissions.WithLabelValues("prom")); got != 2 {
		t.Errorf("expected throttler_admissions_total=2, got %v", got)
	}
	if got := testutil.ToFloat64(p.delays.WithLabelValues("prom")); got != 1 {
		t.Errorf("expected throttler_delays_total=1, got %v", got)
	}
	if got := testutil.ToFloat64(p.hooks.WithLabelValues("prom")); got != 1 {
		t.Errorf("expected throttler_hook_invocations_total=1, got %v", got)
	}
	if got := testutil.ToFloat64(p.cancellation.WithLabelValues("prom")); got != 1 {
		t.Errorf("expected throttler_cancellations_total=1, got %v", got)
	}

	// one series per outcome label
	if n := testutil.CollectAndCount(p.waitSeconds, "throttler_wait_seconds"); n != 2 {
		t.Errorf("expected 2 throttler_wait_seconds series, got %d", n)
	}
}

func TestRegisterPrometheus_WhileRecording(t *testing.T) {
	c := NewCollector()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					c.RecordAdmitted("live", time.Millisecond)
					c.RecordDelayed("live", time.Millisecond)
					c.RecordHooked("live")
					c.RecordCancelled("live", time.Millisecond)
				}
			}
		}()
	}

	regs := make([]*prometheus.Registry, 3)
	for i := range regs {
		regs[i] = prometheus.NewRegistry()
		RegisterPrometheus(regs[i])
	}

	close(stop)
	wg.Wait()

	c.RecordAdmitted("live", 0)
	if got := testutil.ToFloat64(prom.Load().admissions.WithLabelValues("live")); got < 1 {
		t.Errorf("expected the last registry to receive admissions, got %v", got)
	}
}
