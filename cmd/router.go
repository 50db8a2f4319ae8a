package main

import (
	"net/http"

	"github.com/angeloszaimis/trafficd/internal/handler"
	"github.com/angeloszaimis/trafficd/internal/metrics"
)

// setupRouter mounts the traffic handler as the catch-all and the metrics
// snapshot beside it. A configured route keyed "/metrics" is shadowed by
// the operational endpoint.
func setupRouter(trafficHandler *handler.TrafficHandler, collector *metrics.Collector, algorithm string) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/", trafficHandler.ServeHTTP)
	mux.HandleFunc("/metrics", collector.Handler(algorithm))

	return mux
}
