package strategy

import (
	"github.com/angeloszaimis/trafficd/internal/backend"
)

type leastConnStrategy struct{}

// NewLeastConnStrategy picks the healthy backend with the fewest open
// connections. Ties go to the earliest declared backend.
func NewLeastConnStrategy() Strategy {
	return &leastConnStrategy{}
}

func (l *leastConnStrategy) SelectBackend(backends []*backend.Backend) *backend.Backend {
	var chosen *backend.Backend
	var best int

	for _, b := range eligible(backends) {
		conns := b.OpenConnections()

		if chosen == nil || conns < best {
			chosen = b
			best = conns
		}
	}

	return chosen
}
