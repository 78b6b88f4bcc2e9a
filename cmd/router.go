package main

import (
	"log/slog"
	"net/http"

	"github.com/fireflyframework/resilient-gateway/internal/admin"
	"github.com/fireflyframework/resilient-gateway/internal/circuitbreaker"
	"github.com/fireflyframework/resilient-gateway/internal/handler"
	"github.com/fireflyframework/resilient-gateway/internal/metrics"
)

func setupRouter(
	gatewayHandler *handler.GatewayHandler,
	registry *circuitbreaker.Registry,
	metricsCollector *metrics.Collector,
	adminLog *slog.Logger,
) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/", gatewayHandler.ServeHTTP)
	mux.HandleFunc("GET /metrics", metricsCollector.Handler())

	admin.NewHandler(adminLog, registry).Register(mux)

	return mux
}
