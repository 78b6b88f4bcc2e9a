package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fireflyframework/resilient-gateway/config"
	"github.com/fireflyframework/resilient-gateway/internal/circuitbreaker"
	"github.com/fireflyframework/resilient-gateway/internal/handler"
	"github.com/fireflyframework/resilient-gateway/internal/healthcheck"
	"github.com/fireflyframework/resilient-gateway/internal/httpserver"
	"github.com/fireflyframework/resilient-gateway/internal/metrics"
	"github.com/fireflyframework/resilient-gateway/internal/upstream"
	"github.com/fireflyframework/resilient-gateway/pkg/logger"
)

const metricsBufferSize = 1024

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	defaults, err := cfg.DefaultBreaker()
	if err != nil {
		log.Error("Invalid breaker defaults", slog.Any("err", err))
		os.Exit(1)
	}

	registry, err := circuitbreaker.NewRegistry(defaults, logger.Component(log, "circuitbreaker"))
	if err != nil {
		log.Error("Failed to create breaker registry", slog.Any("err", err))
		os.Exit(1)
	}

	collector := metrics.NewCollector(metricsBufferSize, registry, logger.Component(log, "metrics"))
	collector.Start(ctx)

	registry.OnStateChange(func(name string, from, to circuitbreaker.State) {
		collector.Emit(metrics.MetricEvent{
			Type:       metrics.EventStateChanged,
			Timestamp:  time.Now(),
			Dependency: name,
			State:      to.String(),
		})
	})

	upstreams, err := initializeUpstreams(ctx, cfg, registry, collector, log)
	if err != nil {
		log.Error("Failed to initialize upstreams", slog.Any("err", err))
		os.Exit(1)
	}

	gatewayHandler := handler.NewGatewayHandler(logger.Component(log, "gateway"), registry, upstreams, collector)

	mux := setupRouter(gatewayHandler, registry, collector, logger.Component(log, "admin"))

	srv, err := httpserver.New(cfg.Server.Address, mux)
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		os.Exit(1)
	}

	log.Info("Gateway listening",
		slog.String("addr", cfg.Server.Address),
		slog.Int("upstreams", len(upstreams)))

	srvErrCh := make(chan error, 1)

	go func() {
		srvErrCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
		}
	case err := <-srvErrCh:
		if err != nil {
			log.Error("Error starting gateway", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

func initializeUpstreams(
	ctx context.Context,
	cfg *config.Config,
	registry *circuitbreaker.Registry,
	collector *metrics.Collector,
	log *slog.Logger,
) (map[string]*upstream.Upstream, error) {
	healthCheckInterval, err := time.ParseDuration(cfg.HealthCheck.Interval)
	if err != nil {
		return nil, err
	}

	upstreams := make(map[string]*upstream.Upstream)

	for _, uc := range cfg.Upstreams {
		u, err := url.Parse(uc.URL)
		if err != nil {
			log.Error("Failed to parse URL",
				slog.String("upstream", uc.Name),
				slog.String("url", uc.URL),
				slog.String("error", err.Error()))
			continue
		}

		policy, err := cfg.BreakerFor(uc)
		if err != nil {
			return nil, err
		}

		if _, err := registry.GetOrCreate(uc.Name, policy); err != nil {
			return nil, err
		}

		up := upstream.New(uc.Name, u)
		upstreams[uc.Name] = up
		go healthcheck.HealthCheck(ctx, up, registry, collector, healthCheckInterval, logger.Component(log, "healthcheck"))
	}

	if len(upstreams) == 0 {
		return nil, os.ErrInvalid
	}

	return upstreams, nil
}
