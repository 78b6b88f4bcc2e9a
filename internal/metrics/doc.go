// Package metrics provides real-time metrics collection for the gateway.
//
// It uses a channel-based event pipeline to asynchronously collect metrics
// about:
//   - Call counts, failures, timeouts, and fast rejections per dependency
//   - Response times with percentile calculations (P50, P95, P99)
//   - HTTP status code distribution
//   - Health status and circuit breaker state tracking
//
// The collector runs in a dedicated goroutine and processes events without
// blocking the call path. Events are sent via buffered channels with
// non-blocking semantics to prevent performance degradation under load.
//
// Example usage:
//
//	collector := metrics.NewCollector(1000, registry, logger)
//	collector.Start(ctx)
//
//	// Emit events during request handling
//	collector.Emit(metrics.MetricEvent{
//		Type:       metrics.EventCallSucceeded,
//		Dependency: "billing",
//		Duration:   150 * time.Millisecond,
//		StatusCode: 200,
//	})
//
//	// Get metrics snapshot merged with breaker snapshots
//	snapshot := collector.Snapshot()
//
// The package provides thread-safe metrics storage using sync.RWMutex and
// supports graceful shutdown with event draining to prevent data loss.
package metrics
