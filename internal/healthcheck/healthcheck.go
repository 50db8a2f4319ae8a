package healthcheck

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/angeloszaimis/trafficd/internal/backend"
	"github.com/angeloszaimis/trafficd/internal/metrics"
	"github.com/angeloszaimis/trafficd/internal/registry"
)

// DefaultProbeTimeout bounds a single health probe when no timeout is
// configured.
const DefaultProbeTimeout = 1 * time.Second

// Checker probes every registered backend over HTTP and flips its health
// flag on state transitions. A backend is healthy when its health endpoint
// answers with any 2xx status; connection errors, timeouts and non-2xx
// responses all count as down.
type Checker struct {
	client    *http.Client
	logger    *slog.Logger
	collector *metrics.Collector
}

// NewChecker creates a Checker whose probes time out after the given
// duration. A non-positive timeout falls back to DefaultProbeTimeout.
func NewChecker(timeout time.Duration, logger *slog.Logger, collector *metrics.Collector) *Checker {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}

	return &Checker{
		client:    &http.Client{Timeout: timeout},
		logger:    logger,
		collector: collector,
	}
}

// Refresh probes every backend of every route once and waits for all
// probes to finish. Probes run concurrently; a slow backend delays the
// sweep but never blocks the others.
func (c *Checker) Refresh(ctx context.Context, reg *registry.Registry) {
	var wg sync.WaitGroup

	for _, route := range reg.Routes() {
		for _, b := range route.Backends {
			wg.Add(1)

			go func(route *registry.Route, b *backend.Backend) {
				defer wg.Done()
				c.probe(ctx, route, b)
			}(route, b)
		}
	}

	wg.Wait()
}

// Watch runs Refresh on a fixed interval until the context is cancelled.
func (c *Checker) Watch(ctx context.Context, reg *registry.Registry, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Health watcher stopped")
			return
		case <-ticker.C:
			c.Refresh(ctx, reg)
		}
	}
}

func (c *Checker) probe(ctx context.Context, route *registry.Route, b *backend.Backend) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.HealthURL(), nil)
	if err != nil {
		c.transition(route, b, false)
		return
	}

	res, err := c.client.Do(req)
	if err != nil {
		c.transition(route, b, false)
		return
	}
	defer res.Body.Close()

	healthy := res.StatusCode >= 200 && res.StatusCode < 300
	c.transition(route, b, healthy)
}

// transition records a health flip. Repeated probes with an unchanged
// verdict stay silent so logs only show actual state changes.
func (c *Checker) transition(route *registry.Route, b *backend.Backend, healthy bool) {
	if !b.SetHealthy(healthy) {
		return
	}

	if healthy {
		c.logger.Info("Server is back up",
			slog.String("server", b.Endpoint()),
			slog.String("route", route.Name()))
	} else {
		c.logger.Warn("Server is down",
			slog.String("server", b.Endpoint()),
			slog.String("route", route.Name()))
	}

	c.collector.Emit(metrics.MetricEvent{
		Type:    metrics.EventHealthChanged,
		Backend: b.Endpoint(),
		Healthy: healthy,
	})
}
