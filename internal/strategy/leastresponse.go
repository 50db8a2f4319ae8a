package strategy

import (
	"time"

	"github.com/angeloszaimis/trafficd/internal/backend"
)

type leastResponseStrategy struct{}

// NewLeastResponseStrategy scores healthy backends by EWMA response time
// weighted by load and picks the lowest. A backend with no samples yet is
// taken immediately so new backends get traffic.
func NewLeastResponseStrategy() Strategy {
	return &leastResponseStrategy{}
}

func (l *leastResponseStrategy) SelectBackend(backends []*backend.Backend) *backend.Backend {
	var chosen *backend.Backend
	var best time.Duration

	for _, b := range eligible(backends) {
		ewma := b.EWMATime()

		if ewma == 0 {
			return b
		}

		score := ewma * (time.Duration(b.OpenConnections()) + 1)

		if chosen == nil || score < best {
			chosen = b
			best = score
		}
	}

	return chosen
}
