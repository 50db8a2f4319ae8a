package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/angeloszaimis/trafficd/config"
	"github.com/angeloszaimis/trafficd/internal/circuitbreaker"
	"github.com/angeloszaimis/trafficd/internal/dispatch"
	"github.com/angeloszaimis/trafficd/internal/handler"
	"github.com/angeloszaimis/trafficd/internal/healthcheck"
	"github.com/angeloszaimis/trafficd/internal/httpserver"
	"github.com/angeloszaimis/trafficd/internal/metrics"
	"github.com/angeloszaimis/trafficd/internal/registry"
	"github.com/angeloszaimis/trafficd/pkg/logger"
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

	reg, err := registry.Build(cfg)
	if err != nil {
		log.Error("Failed to build routing registry", slog.Any("err", err))
		os.Exit(1)
	}

	interval, timeout, err := healthCheckTimings(cfg)
	if err != nil {
		log.Error("Invalid health check settings", slog.Any("err", err))
		os.Exit(1)
	}

	collector := metrics.NewCollector(metricsBufferSize, log)
	collector.Start(ctx)

	checker := healthcheck.NewChecker(timeout, log, collector)
	// First sweep runs before the listener opens so early requests see
	// real health flags instead of the optimistic defaults.
	checker.Refresh(ctx, reg)
	go checker.Watch(ctx, reg, interval)

	breakers := circuitbreaker.NewRegistry(
		circuitbreaker.DefaultFailureThreshold,
		circuitbreaker.DefaultResetTimeout,
	)
	dispatcher := dispatch.NewDispatcher(breakers, log)

	trafficHandler := handler.NewTrafficHandler(log, reg, dispatcher, collector)

	srv, err := httpserver.New(cfg.Server.Address, setupRouter(trafficHandler, collector, cfg.Strategy.Type))
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		os.Exit(1)
	}

	log.Info("Traffic engine listening",
		slog.String("addr", cfg.Server.Address),
		slog.String("strategy", cfg.Strategy.Type),
		slog.Int("routes", len(reg.Routes())))

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
			log.Error("Error starting traffic engine", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

func healthCheckTimings(cfg *config.Config) (interval, timeout time.Duration, err error) {
	interval, err = time.ParseDuration(cfg.HealthCheck.Interval)
	if err != nil {
		return 0, 0, fmt.Errorf("parsing health check interval %q: %w", cfg.HealthCheck.Interval, err)
	}

	timeout, err = time.ParseDuration(cfg.HealthCheck.Timeout)
	if err != nil {
		return 0, 0, fmt.Errorf("parsing health check timeout %q: %w", cfg.HealthCheck.Timeout, err)
	}

	return interval, timeout, nil
}
