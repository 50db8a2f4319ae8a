package strategy

import (
	"sync"

	"github.com/angeloszaimis/trafficd/internal/backend"
)

// weightedRoundRobinStrategy implements smooth weighted round-robin: each
// healthy backend accumulates its weight per selection, the highest
// accumulated value wins and is then reduced by the sum of all weights.
// Distribution is proportional to weights without bursts to one backend.
type weightedRoundRobinStrategy struct {
	mutex   sync.Mutex
	current map[*backend.Backend]float64
}

// NewWeightedRoundRobinStrategy distributes requests proportionally to
// backend weights while keeping the sequence smooth.
func NewWeightedRoundRobinStrategy() Strategy {
	return &weightedRoundRobinStrategy{
		current: make(map[*backend.Backend]float64),
	}
}

func (w *weightedRoundRobinStrategy) SelectBackend(backends []*backend.Backend) *backend.Backend {
	healthy := eligible(backends)
	if len(healthy) == 0 {
		return nil
	}

	w.mutex.Lock()
	defer w.mutex.Unlock()

	w.cleanup(backends)

	totalWeight := 0.0
	var chosen *backend.Backend

	for _, b := range healthy {
		weight := b.Weight()

		w.current[b] += weight
		totalWeight += weight

		if chosen == nil || w.current[b] > w.current[chosen] {
			chosen = b
		}
	}

	if chosen == nil || totalWeight == 0 {
		return nil
	}

	w.current[chosen] -= totalWeight
	return chosen
}

// cleanup drops accumulator entries for backends no longer in the
// candidate list, so the map cannot grow without bound.
func (w *weightedRoundRobinStrategy) cleanup(backends []*backend.Backend) {
	alive := make(map[*backend.Backend]struct{}, len(backends))

	for _, b := range backends {
		alive[b] = struct{}{}
	}

	for b := range w.current {
		if _, ok := alive[b]; !ok {
			delete(w.current, b)
		}
	}
}
