package backend

import (
	"context"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"sync"
	"time"
)

// DefaultHealthPath is probed when a backend declares no health path.
const DefaultHealthPath = "/healthcheck"

const (
	ewmaAlpha = 0.2

	dialTimeout           = 5 * time.Second
	responseHeaderTimeout = 10 * time.Second
)

// Backend represents one upstream server instance within a single route.
// Endpoint and weight are fixed at construction; health status, open
// connection count and response-time average are the only mutable state.
// Two backends built from the same endpoint string share nothing.
type Backend struct {
	url        *url.URL
	healthPath string
	weight     float64
	proxy      *httputil.ReverseProxy

	mutex            sync.Mutex
	healthy          bool
	openConnections  int
	ewmaResponseTime time.Duration
	hasEWMA          bool
}

// New creates a Backend proxying to the given URL. A non-positive weight
// falls back to 1.0 and an empty health path falls back to
// DefaultHealthPath. The backend starts healthy; the health checker owns
// the flag from the first probe on.
func New(u *url.URL, weight float64, healthPath string) *Backend {
	if weight <= 0 {
		weight = 1.0
	}

	if healthPath == "" {
		healthPath = DefaultHealthPath
	}
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}

	b := &Backend{
		url:        u,
		healthPath: healthPath,
		weight:     weight,
		healthy:    true,
	}

	proxy := httputil.NewSingleHostReverseProxy(u)
	proxy.Transport = &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   dialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ResponseHeaderTimeout: responseHeaderTimeout,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		captureProxyError(r.Context(), err)
		http.Error(w, "backend unreachable", http.StatusServiceUnavailable)
	}
	b.proxy = proxy

	return b
}

// URL returns the backend base URL.
func (b *Backend) URL() *url.URL {
	return b.url
}

// Endpoint returns the host:port the backend serves on.
func (b *Backend) Endpoint() string {
	return b.url.Host
}

// Weight returns the selection weight declared for this backend.
func (b *Backend) Weight() float64 {
	return b.weight
}

// HealthPath returns the path probed by the health checker.
func (b *Backend) HealthPath() string {
	return b.healthPath
}

// HealthURL returns the full probe URL for this backend.
func (b *Backend) HealthURL() string {
	return b.url.ResolveReference(&url.URL{Path: b.healthPath}).String()
}

// ReverseProxy returns the HTTP reverse proxy for this backend.
func (b *Backend) ReverseProxy() *httputil.ReverseProxy {
	return b.proxy
}

// IsHealthy reports whether the last health probe passed.
func (b *Backend) IsHealthy() bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.healthy
}

// SetHealthy updates the health flag. Only the health checker calls this.
// Returns true if the status changed, false if it was already in that state.
func (b *Backend) SetHealthy(healthy bool) (changed bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.healthy == healthy {
		return false
	}

	b.healthy = healthy
	return true
}

// IncrementConn increments the open connection count.
func (b *Backend) IncrementConn() {
	b.mutex.Lock()
	b.openConnections++
	b.mutex.Unlock()
}

// DecrementConn decrements the open connection count, never below zero.
func (b *Backend) DecrementConn() {
	b.mutex.Lock()
	if b.openConnections > 0 {
		b.openConnections--
	}
	b.mutex.Unlock()
}

// OpenConnections returns the number of in-flight proxied requests.
func (b *Backend) OpenConnections() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.openConnections
}

// RecordResponse folds the latest request duration into the exponentially
// weighted moving average response time.
func (b *Backend) RecordResponse(duration time.Duration) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if !b.hasEWMA {
		b.ewmaResponseTime = duration
		b.hasEWMA = true
		return
	}
	//ewma = (1 - α) * ewma + α * latest
	b.ewmaResponseTime = time.Duration((1-ewmaAlpha)*float64(b.ewmaResponseTime) + ewmaAlpha*float64(duration))
}

// EWMATime returns the averaged response time, or 0 before the first sample.
func (b *Backend) EWMATime() time.Duration {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if !b.hasEWMA {
		return 0
	}

	return b.ewmaResponseTime
}

type proxyErrorCapture struct {
	mutex sync.Mutex
	err   error
}

type proxyErrorKey struct{}

// WithProxyErrorCapture arms ctx so a transport failure inside the reverse
// proxy can be read back after ServeHTTP returns. The returned func yields
// the captured error, or nil when the proxied call reached the upstream.
func WithProxyErrorCapture(ctx context.Context) (context.Context, func() error) {
	capture := &proxyErrorCapture{}

	read := func() error {
		capture.mutex.Lock()
		defer capture.mutex.Unlock()
		return capture.err
	}

	return context.WithValue(ctx, proxyErrorKey{}, capture), read
}

func captureProxyError(ctx context.Context, err error) {
	capture, ok := ctx.Value(proxyErrorKey{}).(*proxyErrorCapture)
	if !ok {
		return
	}

	capture.mutex.Lock()
	capture.err = err
	capture.mutex.Unlock()
}
