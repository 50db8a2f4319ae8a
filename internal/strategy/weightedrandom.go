package strategy

import (
	"math/rand/v2"

	"github.com/angeloszaimis/trafficd/internal/backend"
)

type weightedRandomStrategy struct{}

// NewWeightedRandomStrategy draws among healthy backends with probability
// proportional to their declared weight. Backends left at the default
// weight of 1.0 behave as uniform random.
func NewWeightedRandomStrategy() Strategy {
	return &weightedRandomStrategy{}
}

func (w *weightedRandomStrategy) SelectBackend(backends []*backend.Backend) *backend.Backend {
	healthy := eligible(backends)
	if len(healthy) == 0 {
		return nil
	}

	total := 0.0
	for _, b := range healthy {
		total += b.Weight()
	}

	if total <= 0 {
		return healthy[rand.IntN(len(healthy))]
	}

	draw := rand.Float64() * total
	for _, b := range healthy {
		draw -= b.Weight()
		if draw < 0 {
			return b
		}
	}

	// Floating-point rounding can leave draw at exactly the total.
	return healthy[len(healthy)-1]
}
