package actor

import (
	"github.com/ktgames/mining/pkg/core"
)

// Chaos is a fracturing body. Progress is the mass its pieces have shed.
type Chaos struct {
	base
}

// NewChaos wraps the chaos representation h holding totalMass.
func NewChaos(h core.Handle, at core.Transform, totalMass float64, cfg Config, physics Physics, timers Timers) *Chaos {
	return &Chaos{base: newBase(h, core.DestructibleChaos, at, totalMass, cfg, physics, timers)}
}

// Kind reports DestructibleChaos.
func (c *Chaos) Kind() core.DestructibleKind { return core.DestructibleChaos }

// OnRemoval adds removed mass. When the threshold is crossed the remaining
// clusters are crumbled and true is returned, exactly once.
func (c *Chaos) OnRemoval(mass float64) bool {
	if !c.alive {
		return false
	}
	if !c.tracker.Record(mass) {
		return false
	}
	c.physics.CrumbleActiveClusters(c.handle)
	return true
}
