package strategy

import (
	"hash/crc32"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/angeloszaimis/trafficd/internal/backend"
)

const defaultVirtualNodes = 100

// consistentHashStrategy places virtual nodes for every healthy backend
// on a hash ring and walks clockwise from the client key. Unlike ip-hash,
// membership churn only remaps the keys owned by the backends that
// actually changed.
type consistentHashStrategy struct {
	virtualNodes int
	mutex        sync.Mutex
	ring         atomic.Value // *ringSnapshot
	hashKey      atomic.Uint32
}

type ringSnapshot struct {
	fingerprint string
	positions   []uint32
	owners      map[uint32]*backend.Backend
}

// NewConsistentHashStrategy pins clients to backends with a hash ring of
// virtualNodes points per backend. Non-positive counts fall back to 100.
func NewConsistentHashStrategy(virtualNodes int) Strategy {
	if virtualNodes <= 0 {
		virtualNodes = defaultVirtualNodes
	}

	return &consistentHashStrategy{virtualNodes: virtualNodes}
}

// SetKey stores the hash of the per-request key, normally the client IP.
func (s *consistentHashStrategy) SetKey(key string) {
	s.hashKey.Store(crc32.ChecksumIEEE([]byte(key)))
}

func (s *consistentHashStrategy) SelectBackend(backends []*backend.Backend) *backend.Backend {
	healthy := eligible(backends)
	if len(healthy) == 0 {
		return nil
	}

	fp := membershipFingerprint(healthy)

	rs, _ := s.ring.Load().(*ringSnapshot)
	if rs == nil || rs.fingerprint != fp {
		s.mutex.Lock()
		rs, _ = s.ring.Load().(*ringSnapshot)
		if rs == nil || rs.fingerprint != fp {
			rs = buildRing(healthy, s.virtualNodes, fp)
			s.ring.Store(rs)
		}
		s.mutex.Unlock()
	}

	return rs.lookup(s.hashKey.Load())
}

func buildRing(backends []*backend.Backend, vnodes int, fp string) *ringSnapshot {
	rs := &ringSnapshot{
		fingerprint: fp,
		positions:   make([]uint32, 0, len(backends)*vnodes),
		owners:      make(map[uint32]*backend.Backend, len(backends)*vnodes),
	}

	for _, b := range backends {
		for i := 0; i < vnodes; i++ {
			key := b.URL().String() + "#" + strconv.Itoa(i)
			hash := crc32.ChecksumIEEE([]byte(key))

			rs.positions = append(rs.positions, hash)
			rs.owners[hash] = b
		}
	}

	sort.Slice(rs.positions, func(i, j int) bool { return rs.positions[i] < rs.positions[j] })
	return rs
}

func (r *ringSnapshot) lookup(hash uint32) *backend.Backend {
	if r == nil || len(r.positions) == 0 {
		return nil
	}

	idx := sort.Search(len(r.positions), func(i int) bool {
		return r.positions[i] >= hash
	})

	if idx == len(r.positions) {
		idx = 0
	}

	return r.owners[r.positions[idx]]
}

func membershipFingerprint(backends []*backend.Backend) string {
	var sb strings.Builder

	for _, b := range backends {
		sb.WriteString(b.URL().String())
		sb.WriteByte(0)
	}

	return sb.String()
}
