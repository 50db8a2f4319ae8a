package strategy

import (
	"math/rand/v2"

	"github.com/angeloszaimis/trafficd/internal/backend"
)

type randomStrategy struct{}

// NewRandomStrategy picks uniformly among the healthy backends.
func NewRandomStrategy() Strategy {
	return &randomStrategy{}
}

func (r *randomStrategy) SelectBackend(backends []*backend.Backend) *backend.Backend {
	healthy := eligible(backends)
	if len(healthy) == 0 {
		return nil
	}

	return healthy[rand.IntN(len(healthy))]
}
