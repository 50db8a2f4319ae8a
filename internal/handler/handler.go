package handler

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/angeloszaimis/trafficd/internal/dispatch"
	"github.com/angeloszaimis/trafficd/internal/metrics"
	"github.com/angeloszaimis/trafficd/internal/registry"
)

// TrafficHandler is the single HTTP entry point. Each request walks the
// same pipeline: resolve a route, check its firewall, pick a healthy
// backend, apply the route's transformations, dispatch. The first stage
// that rejects the request answers it and stops the walk.
type TrafficHandler struct {
	logger     *slog.Logger
	registry   *registry.Registry
	dispatcher *dispatch.Dispatcher
	collector  *metrics.Collector
}

func NewTrafficHandler(logger *slog.Logger, reg *registry.Registry, dispatcher *dispatch.Dispatcher, collector *metrics.Collector) *TrafficHandler {
	return &TrafficHandler{
		logger:     logger,
		registry:   reg,
		dispatcher: dispatcher,
		collector:  collector,
	}
}

func (h *TrafficHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	clientIP := extractClientIP(r)

	h.logger.Info("Received request",
		slog.String("from", clientIP),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("proto", r.Proto),
		slog.String("host", r.Host),
		slog.String("user_agent", r.UserAgent()))

	route, err := h.registry.Resolve(r.Host, r.URL.Path)
	if err != nil {
		h.logger.Warn("No route matches request",
			slog.String("host", r.Host),
			slog.String("path", r.URL.Path))
		h.collector.Emit(metrics.MetricEvent{Type: metrics.EventRouteMiss})
		http.Error(w, "no matching route", http.StatusNotFound)
		return
	}

	h.collector.Emit(metrics.MetricEvent{
		Type:  metrics.EventRequestReceived,
		Route: route.Name(),
	})

	if !route.Firewall.Allow(clientIP, r.URL.Path) {
		h.logger.Warn("Request rejected by firewall",
			slog.String("client", clientIP),
			slog.String("path", r.URL.Path),
			slog.String("route", route.Name()))
		h.collector.Emit(metrics.MetricEvent{
			Type:  metrics.EventAccessDenied,
			Route: route.Name(),
		})
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	server, err := route.Selector.Select(route.Backends, clientIP)
	if err != nil {
		h.logger.Warn("No healthy backends available",
			slog.String("client", clientIP),
			slog.String("route", route.Name()))
		h.collector.Emit(metrics.MetricEvent{
			Type:  metrics.EventNoHealthyBackend,
			Route: route.Name(),
		})
		http.Error(w, "no backend servers available", http.StatusServiceUnavailable)
		return
	}

	h.collector.Emit(metrics.MetricEvent{
		Type:    metrics.EventBackendSelected,
		Backend: server.Endpoint(),
	})

	route.Transform.Apply(r)

	h.logger.Info("Forwarding to backend",
		slog.String("client", clientIP),
		slog.String("backend", server.Endpoint()),
		slog.String("route", route.Name()))

	w.Header().Set("X-Backend-Server", server.Endpoint())

	status, err := h.dispatcher.Dispatch(w, r, server)
	if err != nil {
		h.collector.Emit(metrics.MetricEvent{
			Type:    metrics.EventBackendUnreachable,
			Backend: server.Endpoint(),
		})
		return
	}

	h.collector.Emit(metrics.MetricEvent{
		Type:       metrics.EventResponseCompleted,
		Backend:    server.Endpoint(),
		Duration:   time.Since(start),
		StatusCode: status,
	})
}

// extractClientIP prefers the first hop recorded in X-Forwarded-For,
// falling back to the connection's remote address.
func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}

	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}
