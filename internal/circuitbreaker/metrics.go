package circuitbreaker

import "time"

// Metrics is an immutable snapshot of one breaker, produced by
// CircuitBreaker.Metrics for the observability surfaces.
type Metrics struct {
	Name            string    `json:"name"`
	State           State     `json:"state"`
	TotalCalls      int64     `json:"total_calls"`
	SuccessfulCalls int64     `json:"successful_calls"`
	FailedCalls     int64     `json:"failed_calls"`
	FailureRate     float64   `json:"failure_rate"`
	LastTransition  time.Time `json:"last_transition"`
}

// SuccessRate returns the lifetime success percentage, or 0 before any call.
func (m Metrics) SuccessRate() float64 {
	if m.TotalCalls == 0 {
		return 0.0
	}

	return float64(m.SuccessfulCalls) / float64(m.TotalCalls) * 100
}

// TimeInState returns how long the breaker has been in its current state.
func (m Metrics) TimeInState() time.Duration {
	if m.LastTransition.IsZero() {
		return 0
	}

	return time.Since(m.LastTransition)
}

// IsHealthy is a convenience heuristic: closed with a windowed failure
// rate under 10%.
func (m Metrics) IsHealthy() bool {
	return m.State == StateClosed && m.FailureRate < 10.0
}
