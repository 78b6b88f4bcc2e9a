package circuitbreaker

import (
	"context"
	"log/slog"
	"sync"
)

// Registry maps dependency names to their circuit breakers. Breakers are
// created lazily on first use and live for the process lifetime.
type Registry struct {
	mutex    sync.RWMutex
	breakers map[string]*CircuitBreaker
	defaults Config
	logger   *slog.Logger
	listener StateChangeFunc
}

// NewRegistry creates a registry whose lazily-created breakers use the
// given defaults. The defaults are validated once up front.
func NewRegistry(defaults Config, logger *slog.Logger) (*Registry, error) {
	if err := defaults.Validate(); err != nil {
		return nil, err
	}

	return &Registry{
		breakers: make(map[string]*CircuitBreaker),
		defaults: defaults,
		logger:   logger,
	}, nil
}

// OnStateChange registers a listener invoked for every state transition of
// every breaker in the registry, in addition to the registry's own logging.
func (r *Registry) OnStateChange(fn StateChangeFunc) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.listener = fn
}

// GetOrCreate returns the breaker for name, creating one with cfg if it
// does not exist yet. Under a creation race exactly one breaker wins;
// callers must not assume their own config was the one applied.
func (r *Registry) GetOrCreate(name string, cfg Config) (*CircuitBreaker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r.mutex.RLock()
	cb, exists := r.breakers[name]
	r.mutex.RUnlock()

	if exists {
		return cb, nil
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	// Double-check: another goroutine may have created it
	if cb, exists = r.breakers[name]; exists {
		return cb, nil
	}

	cb, err := New(name, cfg)
	if err != nil {
		return nil, err
	}

	cb.SetStateChangeFunc(r.notifyStateChange)
	r.breakers[name] = cb
	return cb, nil
}

// Execute resolves the breaker for name, creating it with the registry
// defaults if needed, and forwards the call to it.
func (r *Registry) Execute(ctx context.Context, name string, op Operation) error {
	cb, err := r.GetOrCreate(name, r.defaults)
	if err != nil {
		return err
	}

	return cb.Execute(ctx, op)
}

// State reports the breaker state for name. Unknown names report closed;
// a read never creates a breaker.
func (r *Registry) State(name string) State {
	r.mutex.RLock()
	cb, exists := r.breakers[name]
	r.mutex.RUnlock()

	if !exists {
		return StateClosed
	}

	return cb.State()
}

// Metrics reports a snapshot for name. Unknown names report an empty
// closed snapshot without creating a breaker.
func (r *Registry) Metrics(name string) Metrics {
	r.mutex.RLock()
	cb, exists := r.breakers[name]
	r.mutex.RUnlock()

	if !exists {
		return Metrics{Name: name, State: StateClosed}
	}

	return cb.Metrics()
}

// TransitionTo administratively forces the named breaker into a state.
// Unknown names are a no-op.
func (r *Registry) TransitionTo(name string, state State) {
	r.mutex.RLock()
	cb, exists := r.breakers[name]
	r.mutex.RUnlock()

	if exists {
		cb.TransitionTo(state)
	}
}

// Reset administratively resets the named breaker. Unknown names are a
// no-op.
func (r *Registry) Reset(name string) {
	r.mutex.RLock()
	cb, exists := r.breakers[name]
	r.mutex.RUnlock()

	if exists {
		cb.Reset()
	}
}

// Stats returns the state of every registered breaker.
func (r *Registry) Stats() map[string]State {
	stats := make(map[string]State)
	for name, cb := range r.list() {
		stats[name] = cb.State()
	}
	return stats
}

// Snapshot returns metrics for every registered breaker.
func (r *Registry) Snapshot() map[string]Metrics {
	snap := make(map[string]Metrics)
	for name, cb := range r.list() {
		snap[name] = cb.Metrics()
	}
	return snap
}

// list copies the breaker map so callers can query breakers without
// holding the registry lock. A breaker mutex is never taken while the
// registry lock is held; transition notifications take them in the
// opposite order.
func (r *Registry) list() map[string]*CircuitBreaker {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make(map[string]*CircuitBreaker, len(r.breakers))
	for name, cb := range r.breakers {
		out[name] = cb
	}
	return out
}

func (r *Registry) notifyStateChange(name string, from State, to State) {
	if r.logger != nil {
		r.logger.Info("Circuit breaker state changed",
			slog.String("dependency", name),
			slog.String("from", from.String()),
			slog.String("to", to.String()))
	}

	r.mutex.RLock()
	listener := r.listener
	r.mutex.RUnlock()

	if listener != nil {
		listener(name, from, to)
	}
}
