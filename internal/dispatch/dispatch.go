// Package dispatch forwards a request to one selected backend. It owns
// the per-backend concerns of that hop: open connection accounting,
// circuit breaking and upstream response-time tracking. Whatever happens,
// the response is fully written by the time Dispatch returns; callers
// only inspect the outcome.
package dispatch

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/angeloszaimis/trafficd/internal/backend"
	"github.com/angeloszaimis/trafficd/internal/circuitbreaker"
)

// ErrBackendUnreachable reports that the selected backend could not be
// reached, either because the transport failed or because its circuit
// breaker is open.
var ErrBackendUnreachable = errors.New("backend unreachable")

// Dispatcher proxies requests to backends through their circuit breakers.
type Dispatcher struct {
	breakers *circuitbreaker.Registry
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher. A nil breaker registry falls back
// to one with default settings.
func NewDispatcher(breakers *circuitbreaker.Registry, logger *slog.Logger) *Dispatcher {
	if breakers == nil {
		breakers = circuitbreaker.NewRegistry(
			circuitbreaker.DefaultFailureThreshold,
			circuitbreaker.DefaultResetTimeout,
		)
	}

	return &Dispatcher{
		breakers: breakers,
		logger:   logger,
	}
}

// Dispatch proxies the request to the given backend and returns the
// status code written to the client. The backend's open connection count
// is raised for exactly the duration of the attempt, on failures as much
// as on successes. An open breaker rejects the dispatch up front without
// touching the backend.
func (d *Dispatcher) Dispatch(w http.ResponseWriter, r *http.Request, b *backend.Backend) (int, error) {
	breaker := d.breakers.Breaker(b.Endpoint())
	if !breaker.Allow() {
		d.logger.Warn("Circuit open, rejecting dispatch", slog.String("server", b.Endpoint()))
		http.Error(w, "backend unreachable", http.StatusServiceUnavailable)
		return http.StatusServiceUnavailable, ErrBackendUnreachable
	}

	b.IncrementConn()
	defer b.DecrementConn()

	ctx, proxyErr := backend.WithProxyErrorCapture(r.Context())
	recorder := &statusRecorder{ResponseWriter: w}

	start := time.Now()
	b.ReverseProxy().ServeHTTP(recorder, r.WithContext(ctx))
	duration := time.Since(start)

	if err := proxyErr(); err != nil {
		breaker.RecordFailure()
		d.logger.Warn("Backend unreachable",
			slog.String("server", b.Endpoint()),
			slog.Any("err", err))
		return http.StatusServiceUnavailable, fmt.Errorf("%w: %v", ErrBackendUnreachable, err)
	}

	breaker.RecordSuccess()
	b.RecordResponse(duration)

	return recorder.Status(), nil
}

// statusRecorder remembers the status code the proxy wrote so the
// dispatcher can report it without buffering the response.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(p)
}

// Unwrap exposes the underlying writer so http.ResponseController can
// reach Flush during streamed responses.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (r *statusRecorder) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}
