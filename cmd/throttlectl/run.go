package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	throttler "github.com/KARTIKrocks/go-throttler"
	"github.com/KARTIKrocks/go-throttler/config"
	"github.com/KARTIKrocks/go-throttler/metrics"
)

var runFlags struct {
	throttler   string
	workers     int
	calls       int
	work        time.Duration
	logLevel    string
	logFormat   string
	metricsAddr string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Drive a throttler with concurrent workers",
	Long: `Build one throttler from the config file and push a fixed number of
calls through it from a pool of workers. Every call goes through the
throttler's Do, so calls past the limit wait for a slot or, for throttlers
with on_full: reject, fail immediately.

When a metrics address is set, Prometheus metrics are served on /metrics
for the duration of the run.

Examples:
  # Run the first throttler in the config
  throttlectl run

  # 100 calls through "github" from 16 workers, each call taking 20ms
  throttlectl run --throttler github --workers 16 --calls 100 --work 20ms

  # Debug logs show every admission
  throttlectl run --log-level debug --log-format json`,
	RunE: runWorkload,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.throttler, "throttler", "t", "", "throttler to run (defaults to the first in the config)")
	runCmd.Flags().IntVarP(&runFlags.workers, "workers", "w", 4, "number of concurrent workers")
	runCmd.Flags().IntVarP(&runFlags.calls, "calls", "n", 20, "total number of calls")
	runCmd.Flags().DurationVar(&runFlags.work, "work", 0, "time each admitted call spends working")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().StringVar(&runFlags.logFormat, "log-format", "", "override log format (text, json)")
	runCmd.Flags().StringVar(&runFlags.metricsAddr, "metrics-addr", "", "override metrics listen address")
}

func runWorkload(cmd *cobra.Command, args []string) error {
	if runFlags.workers <= 0 {
		return fmt.Errorf("workers[%d] must be greater than zero", runFlags.workers)
	}
	if runFlags.calls <= 0 {
		return fmt.Errorf("calls[%d] must be greater than zero", runFlags.calls)
	}

	f, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	def, err := pickThrottler(f, runFlags.throttler)
	if err != nil {
		return err
	}

	level, format, addr := f.Log.Level, f.Log.Format, f.Metrics.Addr
	if runFlags.logLevel != "" {
		level = runFlags.logLevel
	}
	if runFlags.logFormat != "" {
		format = runFlags.logFormat
	}
	if runFlags.metricsAddr != "" {
		addr = runFlags.metricsAddr
	}

	logger, err := newLogger(cmd.ErrOrStderr(), level, format)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if addr != "" {
		shutdown, err := serveMetrics(addr, logger)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	collector := metrics.NewCollector()
	t, err := def.Build(
		throttler.WithLogger(logger),
		throttler.WithObserver(metrics.NewObserverWithCollector(def.Name, collector)),
	)
	if err != nil {
		return err
	}

	logger.Info("starting workload",
		"throttler", t.Name(),
		"limit", t.Limit(),
		"period", t.Period(),
		"on_full", def.OnFull,
		"workers", runFlags.workers,
		"calls", runFlags.calls,
	)

	sum, err := drive(ctx, t, workload{
		workers: runFlags.workers,
		calls:   runFlags.calls,
		work:    runFlags.work,
	}, logger)

	printSummary(cmd.OutOrStdout(), t, sum, collector.GetStats(def.Name))
	return err
}

func pickThrottler(f *config.File, name string) (config.Throttler, error) {
	if name == "" {
		return f.Throttlers[0], nil
	}

	def, ok := f.Lookup(name)
	if !ok {
		return config.Throttler{}, fmt.Errorf("throttler %q not found in %s", name, cfgFile)
	}
	return def, nil
}

// serveMetrics exposes Prometheus metrics on addr until the returned
// function is called.
func serveMetrics(addr string, logger *slog.Logger) (func(), error) {
	reg := prometheus.NewRegistry()
	metrics.RegisterPrometheus(reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen metrics: %w", err)
	}

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("metrics server shutdown", "error", err)
		}
	}, nil
}

type workload struct {
	workers int
	calls   int
	work    time.Duration
}

type summary struct {
	calls    int
	admitted int
	rejected int
	elapsed  time.Duration
}

// drive runs w against t. A call rejected by the throttler's hook is
// counted and the worker moves on; any other error stops the run.
func drive(ctx context.Context, t *throttler.Throttler, w workload, logger *slog.Logger) (summary, error) {
	var next, admitted, rejected atomic.Int64

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)

	for worker := 0; worker < w.workers; worker++ {
		g.Go(func() error {
			for {
				call := next.Add(1)
				if call > int64(w.calls) {
					return nil
				}

				err := t.Do(ctx, func(ctx context.Context) error {
					logger.Debug("call admitted",
						"worker", worker,
						"call", call,
						"elapsed", time.Since(start),
					)
					return doWork(ctx, w.work)
				})

				switch {
				case err == nil:
					admitted.Add(1)
				case errors.Is(err, throttler.ErrThrottled):
					rejected.Add(1)
					logger.Debug("call rejected", "worker", worker, "call", call)
				default:
					return fmt.Errorf("worker %d call %d: %w", worker, call, err)
				}
			}
		})
	}

	err := g.Wait()

	return summary{
		calls:    w.calls,
		admitted: int(admitted.Load()),
		rejected: int(rejected.Load()),
		elapsed:  time.Since(start),
	}, err
}

func doWork(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func printSummary(w io.Writer, t *throttler.Throttler, sum summary, stats metrics.Stats) {
	fmt.Fprintf(w, "Throttler:  %s (%d per %s)\n", t.Name(), t.Limit(), t.Period())
	fmt.Fprintf(w, "Calls:      %d\n", sum.calls)
	fmt.Fprintf(w, "Admitted:   %d\n", sum.admitted)
	fmt.Fprintf(w, "Rejected:   %d\n", sum.rejected)
	fmt.Fprintf(w, "Unfinished: %d\n", sum.calls-sum.admitted-sum.rejected)
	fmt.Fprintf(w, "Waits:      %d (total %s)\n", stats.Delayed, stats.TotalWait.Round(time.Millisecond))
	fmt.Fprintf(w, "Elapsed:    %s\n", sum.elapsed.Round(time.Millisecond))
	if secs := sum.elapsed.Seconds(); secs > 0 {
		fmt.Fprintf(w, "Rate:       %.2f calls/s\n", float64(sum.admitted)/secs)
	}
}
