package strategy

import (
	"fmt"

	"github.com/angeloszaimis/trafficd/internal/backend"
)

// Algorithm names a selection algorithm. The set is closed: New rejects
// anything not declared here, and configuration is validated against
// Algorithms at load time.
type Algorithm string

const (
	AlgorithmRandom             Algorithm = "random"
	AlgorithmRoundRobin         Algorithm = "round-robin"
	AlgorithmLeastConn          Algorithm = "least-conn"
	AlgorithmWeightedRandom     Algorithm = "weighted-random"
	AlgorithmIPHash             Algorithm = "ip-hash"
	AlgorithmConsistentHash     Algorithm = "consistent-hash"
	AlgorithmLeastResponse      Algorithm = "least-response"
	AlgorithmWeightedRoundRobin Algorithm = "weighted-round-robin"
)

// Strategy picks one backend from a route's candidate list. Candidates
// arrive in declaration order and may contain unhealthy backends; every
// strategy restricts itself to the healthy subset and returns nil when
// that subset is empty.
type Strategy interface {
	SelectBackend(backends []*backend.Backend) *backend.Backend
}

// Keyed is implemented by strategies whose choice depends on a
// per-request key, such as the client IP. The caller must make SetKey
// and SelectBackend atomic with respect to other keyed selections.
type Keyed interface {
	SetKey(key string)
}

// New builds a strategy instance for one route. Strategies carry
// per-route state (cursors, accumulated weights, hash rings), so routes
// never share instances. virtualNodes only applies to consistent-hash.
func New(algorithm Algorithm, virtualNodes int) (Strategy, error) {
	switch algorithm {
	case AlgorithmRandom:
		return NewRandomStrategy(), nil
	case AlgorithmRoundRobin:
		return NewRoundRobinStrategy(), nil
	case AlgorithmLeastConn:
		return NewLeastConnStrategy(), nil
	case AlgorithmWeightedRandom:
		return NewWeightedRandomStrategy(), nil
	case AlgorithmIPHash:
		return NewIPHashStrategy(), nil
	case AlgorithmConsistentHash:
		return NewConsistentHashStrategy(virtualNodes), nil
	case AlgorithmLeastResponse:
		return NewLeastResponseStrategy(), nil
	case AlgorithmWeightedRoundRobin:
		return NewWeightedRoundRobinStrategy(), nil
	default:
		return nil, fmt.Errorf("unknown selection algorithm %q", algorithm)
	}
}

// Algorithms returns every valid algorithm name, for configuration
// validation.
func Algorithms() []interface{} {
	return []interface{}{
		string(AlgorithmRandom),
		string(AlgorithmRoundRobin),
		string(AlgorithmLeastConn),
		string(AlgorithmWeightedRandom),
		string(AlgorithmIPHash),
		string(AlgorithmConsistentHash),
		string(AlgorithmLeastResponse),
		string(AlgorithmWeightedRoundRobin),
	}
}

// eligible returns the healthy subset of backends in declaration order.
func eligible(backends []*backend.Backend) []*backend.Backend {
	healthy := make([]*backend.Backend, 0, len(backends))

	for _, b := range backends {
		if b.IsHealthy() {
			healthy = append(healthy, b)
		}
	}

	return healthy
}
