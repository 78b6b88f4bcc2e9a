package healthcheck

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/fireflyframework/resilient-gateway/internal/circuitbreaker"
	"github.com/fireflyframework/resilient-gateway/internal/metrics"
	"github.com/fireflyframework/resilient-gateway/internal/upstream"
)

// HealthCheck periodically checks if an upstream is healthy by sending
// HTTP GET requests to its /health endpoint. The upstream's health status
// is updated based on the response, and a breaker left open for a
// dependency that reports healthy again is administratively reset so
// traffic resumes without waiting out the cool-down.
func HealthCheck(
	ctx context.Context,
	up *upstream.Upstream,
	registry *circuitbreaker.Registry,
	collector *metrics.Collector,
	interval time.Duration,
	logger *slog.Logger,
) {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Health check stopped",
				slog.String("dependency", up.Name()))
			return

		case <-ticker.C:
			healthy := probe(ctx, client, up)
			changed := up.SetHealthy(healthy)

			if !changed {
				continue
			}

			if collector != nil {
				collector.Emit(metrics.MetricEvent{
					Type:       metrics.EventHealthChanged,
					Timestamp:  time.Now(),
					Dependency: up.Name(),
					Healthy:    healthy,
				})
			}

			if healthy {
				logger.Info("Dependency is back up",
					slog.String("dependency", up.Name()))

				if registry != nil && registry.State(up.Name()) == circuitbreaker.StateOpen {
					logger.Info("Resetting open circuit breaker after recovery",
						slog.String("dependency", up.Name()))
					registry.Reset(up.Name())
				}
			} else {
				logger.Warn("Dependency is down",
					slog.String("dependency", up.Name()))
			}
		}
	}
}

func probe(ctx context.Context, client *http.Client, up *upstream.Upstream) bool {
	healthURL := up.URL().ResolveReference(&url.URL{Path: "/health"})

	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, healthURL.String(), nil)
	if err != nil {
		return false
	}

	res, err := client.Do(req)
	if err != nil {
		return false
	}
	defer res.Body.Close()

	return res.StatusCode == http.StatusOK
}
