package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/fireflyframework/resilient-gateway/internal/circuitbreaker"
	"github.com/fireflyframework/resilient-gateway/internal/metrics"
	"github.com/fireflyframework/resilient-gateway/internal/upstream"
)

// errUpstreamStatus marks a completed round trip whose status code counts
// as a dependency failure. The buffered response is still relayed.
var errUpstreamStatus = errors.New("upstream returned server error")

// GatewayHandler routes each request to an upstream by the first path
// segment and forwards it through that dependency's circuit breaker.
type GatewayHandler struct {
	logger    *slog.Logger
	registry  *circuitbreaker.Registry
	upstreams map[string]*upstream.Upstream
	collector *metrics.Collector
}

func NewGatewayHandler(
	logger *slog.Logger,
	registry *circuitbreaker.Registry,
	upstreams map[string]*upstream.Upstream,
	collector *metrics.Collector,
) *GatewayHandler {
	return &GatewayHandler{
		logger:    logger,
		registry:  registry,
		upstreams: upstreams,
		collector: collector,
	}
}

func (h *GatewayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientIP := extractClientIP(r)

	name, rest := splitRoute(r.URL.Path)
	up, ok := h.upstreams[name]
	if !ok {
		http.Error(w, "Unknown dependency", http.StatusNotFound)
		return
	}

	h.logger.Info("Received request",
		slog.String("from", clientIP),
		slog.String("method", r.Method),
		slog.String("dependency", name),
		slog.String("path", rest))

	// The proxy round trip writes into a buffer, never into w: the
	// breaker may stop waiting (timeout or client abandon) while the
	// round trip is still in flight.
	buffered := newBufferedResponse()
	forwarded := forwardedRequest(r, rest)

	start := time.Now()
	err := h.registry.Execute(r.Context(), name, func(ctx context.Context) error {
		req, proxyErr := upstream.CaptureProxyError(forwarded.WithContext(ctx))
		up.ReverseProxy().ServeHTTP(buffered, req)

		if *proxyErr != nil {
			return *proxyErr
		}
		if buffered.statusCode >= http.StatusInternalServerError {
			return fmt.Errorf("%w: %s status %d", errUpstreamStatus, name, buffered.statusCode)
		}
		return nil
	})
	duration := time.Since(start)

	h.respond(w, name, buffered, err, duration)
}

func (h *GatewayHandler) respond(
	w http.ResponseWriter,
	name string,
	buffered *bufferedResponse,
	err error,
	duration time.Duration,
) {
	w.Header().Set("X-Upstream", name)

	switch {
	case err == nil:
		h.emitEvent(metrics.MetricEvent{
			Type:       metrics.EventCallSucceeded,
			Timestamp:  time.Now(),
			Dependency: name,
			Duration:   duration,
			StatusCode: buffered.statusCode,
		})
		if up := h.upstreams[name]; up != nil {
			up.RecordResponse(duration)
		}
		buffered.flush(w)

	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		h.logger.Warn("Rejected by circuit breaker", slog.String("dependency", name))
		h.emitEvent(metrics.MetricEvent{
			Type:       metrics.EventCallRejected,
			Timestamp:  time.Now(),
			Dependency: name,
		})
		http.Error(w, "Dependency unavailable (circuit open)", http.StatusServiceUnavailable)

	case errors.Is(err, circuitbreaker.ErrCallTimeout):
		h.logger.Warn("Upstream call timed out", slog.String("dependency", name))
		h.emitEvent(metrics.MetricEvent{
			Type:       metrics.EventCallTimedOut,
			Timestamp:  time.Now(),
			Dependency: name,
			Duration:   duration,
		})
		http.Error(w, "Dependency timed out", http.StatusGatewayTimeout)

	case errors.Is(err, errUpstreamStatus):
		// The round trip completed; relay the upstream's own error
		// response after counting the failure.
		h.emitEvent(metrics.MetricEvent{
			Type:       metrics.EventCallFailed,
			Timestamp:  time.Now(),
			Dependency: name,
			Duration:   duration,
			StatusCode: buffered.statusCode,
		})
		buffered.flush(w)

	default:
		h.logger.Warn("Upstream call failed",
			slog.String("dependency", name),
			slog.String("error", err.Error()))
		h.emitEvent(metrics.MetricEvent{
			Type:       metrics.EventCallFailed,
			Timestamp:  time.Now(),
			Dependency: name,
			Duration:   duration,
			StatusCode: http.StatusBadGateway,
		})
		http.Error(w, "Dependency call failed", http.StatusBadGateway)
	}
}

// splitRoute maps /billing/invoices/42 to ("billing", "/invoices/42").
func splitRoute(path string) (name string, rest string) {
	trimmed := strings.TrimPrefix(path, "/")
	name, rest, found := strings.Cut(trimmed, "/")
	if !found {
		return name, "/"
	}
	return name, "/" + rest
}

// forwardedRequest clones the request with the routing segment stripped.
func forwardedRequest(r *http.Request, rest string) *http.Request {
	clone := r.Clone(r.Context())
	clone.URL.Path = rest
	clone.URL.RawPath = ""
	return clone
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}

	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}

func (h *GatewayHandler) emitEvent(event metrics.MetricEvent) {
	if h.collector == nil {
		return
	}

	h.collector.Emit(event)
}
