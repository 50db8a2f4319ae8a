package metrics

import (
	"sort"
	"sync"
	"time"
)

// maxSamples bounds the per-backend response-time window used for
// percentile calculations.
const maxSamples = 1000

type Metrics struct {
	mutex            sync.RWMutex
	requests         map[string]int64
	accessDenied     map[string]int64
	noHealthyBackend map[string]int64
	routeMisses      int64
	selections       map[string]int64
	unreachable      map[string]int64
	responseTimes    map[string][]time.Duration
	statusCodes      map[string]map[int]int64
	healthStatus     map[string]bool
	startTime        time.Time
}

type Snapshot struct {
	TotalRequests int64                     `json:"total_requests"`
	RouteMisses   int64                     `json:"route_misses"`
	Uptime        time.Duration             `json:"uptime"`
	Algorithm     string                    `json:"algorithm"`
	Routes        map[string]RouteMetrics   `json:"routes"`
	Backends      map[string]BackendMetrics `json:"backends"`
}

type RouteMetrics struct {
	Requests         int64 `json:"requests"`
	AccessDenied     int64 `json:"access_denied"`
	NoHealthyBackend int64 `json:"no_healthy_backend"`
}

type BackendMetrics struct {
	Selections  int64         `json:"selections"`
	Unreachable int64         `json:"unreachable"`
	Healthy     bool          `json:"healthy"`
	AvgResponse time.Duration `json:"avg_response"`
	P50Response time.Duration `json:"p50_response"`
	P95Response time.Duration `json:"p95_response"`
	P99Response time.Duration `json:"p99_response"`
	StatusCodes map[int]int64 `json:"status_codes"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		requests:         make(map[string]int64),
		accessDenied:     make(map[string]int64),
		noHealthyBackend: make(map[string]int64),
		selections:       make(map[string]int64),
		unreachable:      make(map[string]int64),
		responseTimes:    make(map[string][]time.Duration),
		statusCodes:      make(map[string]map[int]int64),
		healthStatus:     make(map[string]bool),
		startTime:        time.Now(),
	}
}

func (m *Metrics) IncrementRequests(route string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.requests[route]++
}

func (m *Metrics) IncrementRouteMisses() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.routeMisses++
}

func (m *Metrics) IncrementAccessDenied(route string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.accessDenied[route]++
}

func (m *Metrics) IncrementNoHealthyBackend(route string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.noHealthyBackend[route]++
}

func (m *Metrics) RecordBackendSelection(backend string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.selections[backend]++
}

func (m *Metrics) IncrementUnreachable(backend string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.unreachable[backend]++
}

func (m *Metrics) RecordResponse(backend string, duration time.Duration, statusCode int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.responseTimes[backend] = append(m.responseTimes[backend], duration)

	if len(m.responseTimes[backend]) > maxSamples {
		m.responseTimes[backend] = m.responseTimes[backend][1:]
	}

	if m.statusCodes[backend] == nil {
		m.statusCodes[backend] = make(map[int]int64)
	}
	m.statusCodes[backend][statusCode]++
}

func (m *Metrics) UpdateHealthStatus(backend string, healthy bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.healthStatus[backend] = healthy
}

func (m *Metrics) Snapshot(algorithm string) Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		RouteMisses: m.routeMisses,
		Uptime:      time.Since(m.startTime),
		Algorithm:   algorithm,
		Routes:      make(map[string]RouteMetrics),
		Backends:    make(map[string]BackendMetrics),
	}

	allRoutes := make(map[string]bool)
	for route := range m.requests {
		allRoutes[route] = true
	}
	for route := range m.accessDenied {
		allRoutes[route] = true
	}
	for route := range m.noHealthyBackend {
		allRoutes[route] = true
	}

	for route := range allRoutes {
		snap.TotalRequests += m.requests[route]
		snap.Routes[route] = RouteMetrics{
			Requests:         m.requests[route],
			AccessDenied:     m.accessDenied[route],
			NoHealthyBackend: m.noHealthyBackend[route],
		}
	}
	snap.TotalRequests += m.routeMisses

	allBackends := make(map[string]bool)
	for backend := range m.selections {
		allBackends[backend] = true
	}
	for backend := range m.unreachable {
		allBackends[backend] = true
	}
	for backend := range m.responseTimes {
		allBackends[backend] = true
	}
	for backend := range m.healthStatus {
		allBackends[backend] = true
	}

	for backend := range allBackends {
		bm := BackendMetrics{
			Selections:  m.selections[backend],
			Unreachable: m.unreachable[backend],
			Healthy:     m.healthStatus[backend],
		}

		if codes := m.statusCodes[backend]; len(codes) > 0 {
			bm.StatusCodes = make(map[int]int64, len(codes))
			for code, count := range codes {
				bm.StatusCodes[code] = count
			}
		}

		durations := m.responseTimes[backend]
		if len(durations) > 0 {
			sorted := make([]time.Duration, len(durations))
			copy(sorted, durations)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})

			bm.AvgResponse = average(sorted)
			bm.P50Response = percentile(sorted, 0.50)
			bm.P95Response = percentile(sorted, 0.95)
			bm.P99Response = percentile(sorted, 0.99)
		}

		snap.Backends[backend] = bm
	}

	return snap
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
