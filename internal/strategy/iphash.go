package strategy

import (
	"hash/crc32"
	"sync/atomic"

	"github.com/angeloszaimis/trafficd/internal/backend"
)

// ipHashStrategy maps a client key onto the healthy subset by reducing a
// stable hash modulo the subset size. Stickiness holds only while the
// healthy subset keeps its size and membership; churn can reassign
// clients. Consistent-hash is the variant to reach for when that matters.
type ipHashStrategy struct {
	hashKey atomic.Uint32
}

// NewIPHashStrategy pins clients to backends by hashing the client IP.
func NewIPHashStrategy() Strategy {
	return &ipHashStrategy{}
}

// SetKey stores the hash of the per-request key, normally the client IP.
func (s *ipHashStrategy) SetKey(key string) {
	s.hashKey.Store(crc32.ChecksumIEEE([]byte(key)))
}

func (s *ipHashStrategy) SelectBackend(backends []*backend.Backend) *backend.Backend {
	healthy := eligible(backends)
	if len(healthy) == 0 {
		return nil
	}

	idx := s.hashKey.Load() % uint32(len(healthy))
	return healthy[idx]
}
