package circuitbreaker

import (
	"sync"
	"time"
)

// Registry hands out one breaker per backend endpoint, creating them
// lazily with shared threshold and timeout settings.
type Registry struct {
	mutex     sync.RWMutex
	breakers  map[string]*Breaker
	threshold int
	timeout   time.Duration
}

func NewRegistry(threshold int, timeout time.Duration) *Registry {
	return &Registry{
		breakers:  make(map[string]*Breaker),
		threshold: threshold,
		timeout:   timeout,
	}
}

// Breaker returns the breaker for the given endpoint, creating it on
// first use.
func (r *Registry) Breaker(endpoint string) *Breaker {
	r.mutex.RLock()
	b, ok := r.breakers[endpoint]
	r.mutex.RUnlock()

	if ok {
		return b
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	// Double-check: another goroutine may have created it
	if b, ok = r.breakers[endpoint]; ok {
		return b
	}

	b = NewBreaker(r.threshold, r.timeout)
	r.breakers[endpoint] = b
	return b
}

// Reset drops every breaker, returning all endpoints to closed.
func (r *Registry) Reset() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.breakers = make(map[string]*Breaker)
}

// Stats reports the current state of every known breaker by endpoint.
func (r *Registry) Stats() map[string]State {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	stats := make(map[string]State, len(r.breakers))
	for endpoint, b := range r.breakers {
		stats[endpoint] = b.State()
	}
	return stats
}
