// Package selector resolves the mineral type of a spot from its probability table.
package selector

import (
	"encoding/binary"
	"math/rand/v2"

	"github.com/cespare/xxhash/v2"
	"github.com/ktgames/mining/pkg/core"
)

// PickType walks percentages in order keeping a running sum and returns the
// first type whose cumulative probability reaches randomValue.
//
// Tables that sum to less than randomValue are a configuration error. They
// resolve to fallback instead of failing; callers are expected to log it.
func PickType(percentages []core.TypeWeight, randomValue float64, fallback core.MineralType) core.MineralType {
	t, _ := pick(percentages, randomValue, fallback)
	return t
}

func pick(percentages []core.TypeWeight, randomValue float64, fallback core.MineralType) (core.MineralType, bool) {
	var cumulative float64
	for _, w := range percentages {
		cumulative += w.Probability
		if randomValue <= cumulative {
			return w.Type, false
		}
	}
	return fallback, true
}

// Draw returns the uniform value in [0,1) used for a spot's given generation.
// The value depends only on seed and generation.
func Draw(seed int64, generation uint32) float64 {
	var buf [12]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(seed))
	binary.LittleEndian.PutUint32(buf[8:], generation)
	h := xxhash.Sum64(buf[:])
	r := rand.New(rand.NewPCG(h, uint64(seed)))
	return r.Float64()
}

// Result is the outcome of resolving a spot's type.
type Result struct {
	Type        core.MineralType
	RandomValue float64
	Fallback    bool
}

// Selector resolves spot types with a fixed fallback.
type Selector struct {
	Fallback core.MineralType
}

// New creates a Selector that resolves malformed tables to fallback.
func New(fallback core.MineralType) *Selector {
	return &Selector{Fallback: fallback}
}

// Resolve draws the type for the spot's current generation.
func (s *Selector) Resolve(spot core.MineralSpot) Result {
	v := Draw(spot.Seed, spot.Generation)
	t, fb := pick(spot.Percentages, v, s.Fallback)
	return Result{Type: t, RandomValue: v, Fallback: fb}
}
