package circuitbreaker

import "errors"

var (
	// ErrCircuitOpen is returned when a call is rejected without being
	// attempted, either because the breaker is open or because the
	// half-open probe budget is exhausted.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrCallTimeout is returned when an admitted call exceeds the
	// configured call timeout. It counts as a failure in the window.
	ErrCallTimeout = errors.New("circuit breaker call timed out")
)
