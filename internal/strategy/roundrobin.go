package strategy

import (
	"sync/atomic"

	"github.com/angeloszaimis/trafficd/internal/backend"
)

// roundRobinStrategy walks the candidate list in declaration order with a
// monotonically advancing cursor. The cursor indexes the full list, not
// the healthy subset, so positions stay stable across health flaps: a
// backend that recovers slots back into its declared place in the cycle.
type roundRobinStrategy struct {
	cursor uint64
}

// NewRoundRobinStrategy cycles through healthy backends in declaration
// order.
func NewRoundRobinStrategy() Strategy {
	return &roundRobinStrategy{}
}

func (rb *roundRobinStrategy) SelectBackend(backends []*backend.Backend) *backend.Backend {
	if len(backends) == 0 {
		return nil
	}

	// Advancing once per probe keeps the cursor aligned with the full
	// list while unhealthy entries are skipped. Any len(backends)
	// consecutive cursor values cover every position exactly once, so a
	// healthy backend is always found within that many probes.
	for i := 0; i < len(backends); i++ {
		n := atomic.AddUint64(&rb.cursor, 1)
		idx := (n - 1) % uint64(len(backends))

		if backends[idx].IsHealthy() {
			return backends[idx]
		}
	}

	return nil
}
