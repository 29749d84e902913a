// Package registry holds the configured mineral spots keyed by stable ID.
package registry

import (
	"sync"

	"github.com/ktgames/mining/pkg/core"
)

// SpotRegistry caches spots when they are registered so lifecycle handlers
// never go back to the configuration source.
type SpotRegistry struct {
	mu        sync.RWMutex
	spots     map[core.SpotID]core.MineralSpot
	order     []core.SpotID
	nextID    core.SpotID
	tolerance float64
}

// New creates a registry. tolerance is used by FindByTransform; a
// non-positive value selects core.DefaultTolerance.
func New(tolerance float64) *SpotRegistry {
	if tolerance <= 0 {
		tolerance = core.DefaultTolerance
	}
	return &SpotRegistry{
		spots:     make(map[core.SpotID]core.MineralSpot),
		tolerance: tolerance,
	}
}

// Reset drops every spot and restarts ID assignment.
func (r *SpotRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spots = make(map[core.SpotID]core.MineralSpot)
	r.order = nil
	r.nextID = 0
}

// Add registers a new spot and returns the ID assigned to it.
// Any ID already set on spot is ignored.
func (r *SpotRegistry) Add(spot core.MineralSpot) core.SpotID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addLocked(spot)
}

func (r *SpotRegistry) addLocked(spot core.MineralSpot) core.SpotID {
	r.nextID++
	spot.ID = r.nextID
	r.spots[spot.ID] = clone(spot)
	r.order = append(r.order, spot.ID)
	return spot.ID
}

// Upsert replaces the spot with the same ID, or adds it when the ID is zero
// or unknown. It returns the ID the spot is stored under.
func (r *SpotRegistry) Upsert(spot core.MineralSpot) core.SpotID {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.spots[spot.ID]; spot.ID == 0 || !ok {
		return r.addLocked(spot)
	}
	r.spots[spot.ID] = clone(spot)
	return spot.ID
}

// Get returns the spot registered under id.
func (r *SpotRegistry) Get(id core.SpotID) (core.MineralSpot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.spots[id]
	if !ok {
		return core.MineralSpot{}, false
	}
	return clone(s), true
}

// FindByTransform returns the first registered spot whose transform equals t
// within the registry tolerance. Spots closer together than the tolerance are
// indistinguishable here; lifecycle code keys by ID instead.
func (r *SpotRegistry) FindByTransform(t core.Transform) (core.MineralSpot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		s := r.spots[id]
		if s.Transform.Equals(t, r.tolerance) {
			return clone(s), true
		}
	}
	return core.MineralSpot{}, false
}

// All returns every spot in registration order.
func (r *SpotRegistry) All() []core.MineralSpot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.MineralSpot, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, clone(r.spots[id]))
	}
	return out
}

// Len returns the number of registered spots.
func (r *SpotRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.spots)
}

func clone(s core.MineralSpot) core.MineralSpot {
	if s.Percentages != nil {
		p := make([]core.TypeWeight, len(s.Percentages))
		copy(p, s.Percentages)
		s.Percentages = p
	}
	return s
}
