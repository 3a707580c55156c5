// Throttlectl drives a configured throttler with a synthetic workload.
//
// It is a quick way to check that a throttler definition behaves as
// expected before wiring it into a service: the run command starts a pool
// of workers that all share one throttler and reports how the calls were
// spread over time.
//
// Usage:
//
//	# Check a config file
//	throttlectl validate --config throttlers.yaml
//
//	# Push 50 calls through the "github" throttler with 8 workers
//	throttlectl run --config throttlers.yaml --throttler github --workers 8 --calls 50
//
//	# Show version information
//	throttlectl version
package main

func main() {
	Execute()
}
