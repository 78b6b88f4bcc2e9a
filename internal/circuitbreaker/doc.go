// Package circuitbreaker implements a per-dependency circuit breaker with a
// sliding-window failure rate.
//
// Each breaker is a small state machine with three states:
//
//   - CLOSED: normal operation, calls pass through
//   - OPEN: dependency judged unhealthy, calls fail fast
//   - HALF_OPEN: a bounded number of probe calls test recovery
//
// Outcomes are tracked in a fixed-size ring buffer; once the windowed
// failure rate crosses the configured threshold (after a minimum number of
// calls) the breaker opens. Recovery is probed lazily: the first call
// attempted after the open-state wait has elapsed flips the breaker to
// half-open, with no background timers involved.
//
// Usage:
//
//	registry, _ := circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig(), logger)
//	err := registry.Execute(ctx, "billing", func(ctx context.Context) error {
//	    return callBilling(ctx)
//	})
//	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
//	    // fail fast: the operation was never invoked
//	}
package circuitbreaker
