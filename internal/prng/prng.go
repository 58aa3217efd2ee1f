// Package prng provides the per-node pseudo-random source used for jitter,
// backoff, and tie-breaking throughout the tree and unicast protocols.
//
// Unlike the teacher's internal/random package, which draws from a single
// process-wide crypto/rand source, nodes here must diverge from each other
// immediately on startup (§9, "Randomness"): each node seeds its own
// math/rand.Rand from its 16-bit identifier so that independent nodes never
// share a stream, while a single run of one node stays reproducible for
// tests.
package prng

import (
	"math/rand"
	"sync"
)

// Source is a per-node random source safe for concurrent use from the
// cooperative loop's callbacks (reception handlers can fire between
// controller ticks even though nothing actually runs in parallel).
type Source struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// New seeds a Source from a node identifier.
func New(nodeID uint16) *Source {
	return &Source{rnd: rand.New(rand.NewSource(int64(nodeID)))} //nolint:gosec // deterministic per-node divergence, not security sensitive
}

// Float64 returns a pseudo-random value in [0, 1).
func (s *Source) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Float64()
}

// UniformIn returns a pseudo-random value in [lo, hi).
func (s *Source) UniformIn(lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + s.Float64()*(hi-lo)
}

// Bool returns true with probability p.
func (s *Source) Bool(p float64) bool {
	return s.Float64() < p
}
