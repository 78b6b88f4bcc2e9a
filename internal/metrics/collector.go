package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/fireflyframework/resilient-gateway/internal/circuitbreaker"
)

type EventType string

const (
	EventCallSucceeded EventType = "call_succeeded"
	EventCallFailed    EventType = "call_failed"
	EventCallTimedOut  EventType = "call_timed_out"
	EventCallRejected  EventType = "call_rejected"
	EventStateChanged  EventType = "state_changed"
	EventHealthChanged EventType = "health_changed"
)

type MetricEvent struct {
	Type       EventType
	Timestamp  time.Time
	Dependency string
	Duration   time.Duration
	StatusCode int
	State      string
	Healthy    bool
}

type Collector struct {
	eventCh  chan MetricEvent
	metrics  *Metrics
	registry *circuitbreaker.Registry
	logger   *slog.Logger
}

func NewCollector(bufferSize int, registry *circuitbreaker.Registry, logger *slog.Logger) *Collector {
	return &Collector{
		eventCh:  make(chan MetricEvent, bufferSize),
		metrics:  NewMetrics(),
		registry: registry,
		logger:   logger,
	}
}

func (c *Collector) EventChannel() chan<- MetricEvent {
	return c.eventCh
}

// Emit sends an event without blocking; events are dropped when the buffer
// is full rather than stalling the call path.
func (c *Collector) Emit(event MetricEvent) {
	select {
	case c.eventCh <- event:
	default:
	}
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event MetricEvent) {
	switch event.Type {
	case EventCallSucceeded:
		c.metrics.RecordSuccess(event.Dependency)
		c.metrics.RecordResponse(event.Dependency, event.Duration, event.StatusCode)

	case EventCallFailed:
		c.metrics.RecordFailure(event.Dependency)
		c.metrics.RecordResponse(event.Dependency, event.Duration, event.StatusCode)

	case EventCallTimedOut:
		c.metrics.RecordTimeout(event.Dependency)

	case EventCallRejected:
		c.metrics.RecordRejection(event.Dependency)

	case EventStateChanged:
		c.logger.Debug("Recorded breaker state change",
			slog.String("dependency", event.Dependency),
			slog.String("state", event.State))

	case EventHealthChanged:
		c.metrics.UpdateHealthStatus(event.Dependency, event.Healthy)
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot() Snapshot {
	return c.metrics.Snapshot(c.registry)
}
