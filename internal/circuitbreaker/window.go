package circuitbreaker

// SlidingWindow is a fixed-capacity ring buffer of call outcomes. It keeps
// running success/failure counts for the buffered entries plus a lifetime
// total, so the failure rate is an O(1) read.
//
// SlidingWindow is not safe for concurrent use on its own; the owning
// CircuitBreaker serializes access through its mutex.
type SlidingWindow struct {
	outcomes  []bool // true marks a failure
	position  int
	successes int
	failures  int
	total     int64 // lifetime recorded calls, may exceed capacity
}

// NewSlidingWindow creates a window with the given capacity.
// Capacities below 1 are clamped to 1.
func NewSlidingWindow(capacity int) *SlidingWindow {
	if capacity < 1 {
		capacity = 1
	}
	return &SlidingWindow{
		outcomes: make([]bool, capacity),
	}
}

// RecordSuccess appends a successful outcome.
func (w *SlidingWindow) RecordSuccess() {
	w.record(false)
}

// RecordFailure appends a failed outcome.
func (w *SlidingWindow) RecordFailure() {
	w.record(true)
}

// record overwrites the oldest slot once the buffer is full, adjusting the
// evicted entry's counter before counting the new one. Eviction and insert
// stay in the same critical section so the counts never drift from the
// buffer contents.
func (w *SlidingWindow) record(failed bool) {
	if w.total >= int64(len(w.outcomes)) {
		if w.outcomes[w.position] {
			w.failures--
		} else {
			w.successes--
		}
	}

	w.outcomes[w.position] = failed
	if failed {
		w.failures++
	} else {
		w.successes++
	}

	w.position = (w.position + 1) % len(w.outcomes)
	w.total++
}

// FailureRate returns the percentage of failures among the calls currently
// in the window, or 0 when the window is empty.
func (w *SlidingWindow) FailureRate() float64 {
	calls := w.CallsInWindow()
	if calls == 0 {
		return 0.0
	}

	return float64(w.failures) / float64(calls) * 100
}

// CallsInWindow returns how many outcomes the buffer currently holds.
func (w *SlidingWindow) CallsInWindow() int {
	if w.total < int64(len(w.outcomes)) {
		return int(w.total)
	}

	return len(w.outcomes)
}

// FailureCount returns the number of failures currently in the window.
func (w *SlidingWindow) FailureCount() int {
	return w.failures
}

// SuccessCount returns the number of successes currently in the window.
func (w *SlidingWindow) SuccessCount() int {
	return w.successes
}

// TotalCalls returns the lifetime number of recorded outcomes.
func (w *SlidingWindow) TotalCalls() int64 {
	return w.total
}

// Reset clears the buffer, the counts, and the lifetime counter.
func (w *SlidingWindow) Reset() {
	for i := range w.outcomes {
		w.outcomes[i] = false
	}

	w.position = 0
	w.successes = 0
	w.failures = 0
	w.total = 0
}
