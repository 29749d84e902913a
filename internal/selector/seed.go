package selector

import (
	"math/rand/v2"
	"sync"
	"time"
)

// SeedSource hands out fresh spot seeds on regeneration.
type SeedSource interface {
	NextSeed() int64
}

// StreamSource is a SeedSource backed by a seeded PCG stream.
type StreamSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSeedSource creates a deterministic seed stream. A zero seed is replaced
// by the current time, which gives up reproducibility.
func NewSeedSource(seed int64) *StreamSource {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &StreamSource{rng: rand.New(rand.NewPCG(uint64(seed), uint64(seed)>>1|1))}
}

// NextSeed returns the next non-negative seed of the stream.
func (s *StreamSource) NextSeed() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Int64()
}
