package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Operation is one attempt against a remote dependency. Execute hands it a
// context bounded by the call timeout; the operation should respect it.
type Operation func(ctx context.Context) error

// StateChangeFunc is notified after a breaker moves between states. It is
// invoked with the breaker's mutex held and must not call back into the
// breaker.
type StateChangeFunc func(name string, from State, to State)

// CircuitBreaker tracks recent call outcomes for one dependency and stops
// admitting traffic once the windowed failure rate crosses the configured
// threshold. Recovery is probed lazily on the admission path; there is no
// background timer.
type CircuitBreaker struct {
	name string
	cfg  Config

	mutex             sync.Mutex
	state             State
	lastTransition    time.Time
	window            *SlidingWindow
	halfOpenAdmitted  int
	halfOpenSuccesses int
	totalCalls        int64
	successfulCalls   int64
	failedCalls       int64

	onStateChange StateChangeFunc
}

// New creates a closed breaker for the named dependency. The config is
// validated first; an invalid config is the only construction failure.
func New(name string, cfg Config) (*CircuitBreaker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &CircuitBreaker{
		name:           name,
		cfg:            cfg,
		state:          StateClosed,
		lastTransition: time.Now(),
		window:         NewSlidingWindow(cfg.SlidingWindowSize),
	}, nil
}

// Name returns the dependency name this breaker guards.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// State returns the current state without triggering any transition.
func (cb *CircuitBreaker) State() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}

// SetStateChangeFunc registers a listener for state transitions.
func (cb *CircuitBreaker) SetStateChangeFunc(fn StateChangeFunc) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	cb.onStateChange = fn
}

// Execute runs op if the breaker admits the call. Rejected calls fail with
// ErrCircuitOpen before op is invoked. Admitted calls run in their own
// goroutine under the call timeout; if the caller's context ends first,
// Execute returns the context error but the eventual outcome is still
// recorded exactly once.
func (cb *CircuitBreaker) Execute(ctx context.Context, op Operation) error {
	if err := cb.admit(time.Now()); err != nil {
		return err
	}

	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cb.cfg.CallTimeout)
	done := make(chan error, 1)

	go func() {
		done <- op(opCtx)
	}()

	select {
	case err := <-done:
		return cb.settle(cancel, err)
	case <-opCtx.Done():
		return cb.settle(cancel, opCtx.Err())
	case <-ctx.Done():
		// The caller gave up waiting. Keep watching so the outcome is
		// still counted.
		go func() {
			select {
			case err := <-done:
				cb.settle(cancel, err)
			case <-opCtx.Done():
				cb.settle(cancel, opCtx.Err())
			}
		}()
		return ctx.Err()
	}
}

// settle classifies the outcome of one admitted call and runs the
// bookkeeping. Timeouts surface as ErrCallTimeout; any other error from the
// operation is re-raised unchanged.
func (cb *CircuitBreaker) settle(cancel context.CancelFunc, err error) error {
	defer cancel()
	now := time.Now()

	switch {
	case err == nil:
		cb.onSuccess(now)
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		cb.onFailure(now)
		return ErrCallTimeout
	default:
		cb.onFailure(now)
		return err
	}
}

// admit decides whether a call may proceed. Checking admission and
// reserving a half-open slot happen under the same lock so the probe
// budget is exact.
func (cb *CircuitBreaker) admit(now time.Time) error {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.state {
	case StateClosed:
		return nil

	case StateOpen:
		if !cb.cfg.AutoHalfOpen {
			return ErrCircuitOpen
		}
		if now.Sub(cb.lastTransition) < cb.cfg.OpenStateWait {
			return ErrCircuitOpen
		}
		cb.transitionLocked(StateHalfOpen, now)
		cb.halfOpenAdmitted++
		return nil

	case StateHalfOpen:
		if cb.halfOpenAdmitted >= cb.cfg.HalfOpenMaxCalls {
			return ErrCircuitOpen
		}
		cb.halfOpenAdmitted++
		return nil

	default:
		return nil
	}
}

func (cb *CircuitBreaker) onSuccess(now time.Time) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.window.RecordSuccess()
	cb.totalCalls++
	cb.successfulCalls++

	if cb.state == StateHalfOpen {
		cb.halfOpenSuccesses++
		if cb.halfOpenSuccesses >= cb.cfg.HalfOpenMaxCalls {
			cb.transitionLocked(StateClosed, now)
		}
	}
}

func (cb *CircuitBreaker) onFailure(now time.Time) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.window.RecordFailure()
	cb.totalCalls++
	cb.failedCalls++

	switch cb.state {
	case StateHalfOpen:
		cb.transitionLocked(StateOpen, now)
	case StateClosed:
		if cb.window.CallsInWindow() >= cb.cfg.MinimumCalls &&
			cb.window.FailureRate() >= cb.cfg.FailureRateThreshold {
			cb.transitionLocked(StateOpen, now)
		}
	}
}

// TransitionTo forces the breaker into the given state. Transitioning into
// the current state only refreshes the transition timestamp.
func (cb *CircuitBreaker) TransitionTo(state State) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	cb.transitionLocked(state, time.Now())
}

// transitionLocked applies a state change. Entering the half-open state
// zeroes the probe counters; entering the closed state additionally clears
// the window. The caller must hold the mutex.
func (cb *CircuitBreaker) transitionLocked(to State, now time.Time) {
	from := cb.state
	cb.lastTransition = now

	if from == to {
		return
	}

	cb.state = to

	switch to {
	case StateHalfOpen:
		cb.halfOpenAdmitted = 0
		cb.halfOpenSuccesses = 0
	case StateClosed:
		cb.halfOpenAdmitted = 0
		cb.halfOpenSuccesses = 0
		cb.window.Reset()
	}

	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, from, to)
	}
}

// Reset forces the breaker back to closed and clears the window, the probe
// counters, and the lifetime counters, regardless of the prior state.
func (cb *CircuitBreaker) Reset() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.transitionLocked(StateClosed, time.Now())
	cb.window.Reset()
	cb.halfOpenAdmitted = 0
	cb.halfOpenSuccesses = 0
	cb.totalCalls = 0
	cb.successfulCalls = 0
	cb.failedCalls = 0
}

// Metrics returns a point-in-time snapshot. It never mutates breaker state.
func (cb *CircuitBreaker) Metrics() Metrics {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	return Metrics{
		Name:            cb.name,
		State:           cb.state,
		TotalCalls:      cb.totalCalls,
		SuccessfulCalls: cb.successfulCalls,
		FailedCalls:     cb.failedCalls,
		FailureRate:     cb.window.FailureRate(),
		LastTransition:  cb.lastTransition,
	}
}
