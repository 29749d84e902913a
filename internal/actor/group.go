package actor

import (
	"github.com/ktgames/mining/pkg/core"
)

type member struct {
	name      string
	location  core.Vec3
	scale     core.Vec3
	physics   bool
	shrinking bool
	removed   bool
}

// Group is a set of static meshes standing in for a spot. Each mesh knocked
// loose counts one toward depletion.
type Group struct {
	base
	members  []*member
	centroid core.Vec3
}

// HitOutcome describes what one hit did to a group.
type HitOutcome struct {
	Member  bool
	Counted bool
	Crossed bool
}

// NewGroup wraps the group representation h made of meshes, all placed at.
func NewGroup(h core.Handle, at core.Transform, meshes []string, cfg Config, physics Physics, timers Timers) *Group {
	g := &Group{base: newBase(h, core.DestructibleGroup, at, float64(len(meshes)), cfg, physics, timers)}

	scale := at.Scale
	if scale == (core.Vec3{}) {
		scale = core.Vec3{X: 1, Y: 1, Z: 1}
	}
	for _, name := range meshes {
		g.members = append(g.members, &member{name: name, location: at.Translation, scale: scale})
		g.centroid = g.centroid.Add(at.Translation)
	}
	if len(g.members) > 0 {
		g.centroid = g.centroid.Scale(1 / float64(len(g.members)))
	}
	return g
}

// Kind reports DestructibleGroup.
func (g *Group) Kind() core.DestructibleKind { return core.DestructibleGroup }

// Meshes returns the number of meshes the group was built with.
func (g *Group) Meshes() int { return len(g.members) }

// Loose returns how many meshes are simulating physics.
func (g *Group) Loose() int {
	n := 0
	for _, m := range g.members {
		if m.physics {
			n++
		}
	}
	return n
}

// OnHit applies one sweep hit. Hits on meshes outside the group report
// Member false and change nothing.
func (g *Group) OnHit(hit core.HitResult) HitOutcome {
	if !g.alive || hit.Handle != g.handle || hit.Mesh < 0 || hit.Mesh >= len(g.members) {
		return HitOutcome{}
	}
	m := g.members[hit.Mesh]
	if m.removed {
		return HitOutcome{}
	}

	out := HitOutcome{Member: true}
	g.physics.AddImpulseAtLocation(g.handle, hit.Mesh, hit.ImpactNormal.Scale(g.cfg.ImpactForce), hit.ImpactPoint)
	if m.physics {
		return out
	}

	m.physics = true
	g.physics.SetSimulatePhysics(g.handle, hit.Mesh, true)
	out.Counted = true
	g.radialImpulse()
	out.Crossed = g.tracker.Record(1)
	if out.Crossed {
		g.looseAll()
	}
	g.shrink(hit.Mesh)
	return out
}

func (g *Group) radialImpulse() {
	for i, m := range g.members {
		if m.removed {
			continue
		}
		g.physics.AddRadialImpulse(g.handle, i, g.centroid, g.cfg.ImpulseRadius, g.cfg.ImpulseStrength)
	}
}

func (g *Group) looseAll() {
	for i, m := range g.members {
		if m.removed || m.physics {
			continue
		}
		m.physics = true
		g.physics.SetSimulatePhysics(g.handle, i, true)
	}
	for i := range g.members {
		g.shrink(i)
	}
	g.radialImpulse()
}

// shrink scales mesh i down every ScaleInterval until it is smaller than
// MinScale, then removes it with an effect.
func (g *Group) shrink(i int) {
	m := g.members[i]
	if m.shrinking || m.removed {
		return
	}
	m.shrinking = true

	g.timers.Every(g.owner, g.cfg.ScaleInterval, func() bool {
		if !g.alive || m.removed {
			return false
		}
		m.scale = m.scale.Scale(g.cfg.ScaleStep)
		g.physics.SetMeshScale(g.handle, i, m.scale)
		if m.scale.Min() >= g.cfg.MinScale {
			return true
		}

		m.removed = true
		g.physics.SetSimulatePhysics(g.handle, i, false)
		g.physics.RemoveMesh(g.handle, i)
		g.physics.SpawnEmitterAndSound(m.location)
		return false
	})
}
