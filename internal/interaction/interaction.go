// Package interaction turns a player's view into hits on mineral
// representations: a line trace for instanced meshes and a sphere sweep
// around the impact point for loose meshes.
package interaction

import (
	"sync"

	"github.com/ktgames/mining/internal/clock"
	"github.com/ktgames/mining/pkg/core"
)

const (
	DefaultTraceLength  = 10000.0
	DefaultSphereRadius = 100.0
)

// TraceHit is the closest hit of a line trace.
type TraceHit struct {
	Handle       core.Handle
	Mesh         int
	Instanced    bool
	ImpactPoint  core.Vec3
	ImpactNormal core.Vec3
}

// Tracer answers collision queries against the world.
type Tracer interface {
	LineTrace(start, end core.Vec3) (TraceHit, bool)
	SphereSweep(center core.Vec3, radius float64) []core.HitResult
}

// Component performs traces on behalf of a player and broadcasts the results.
type Component struct {
	tracer       Tracer
	clock        clock.Clock
	traceLength  float64
	sphereRadius float64

	mu         sync.RWMutex
	meshHit    []func(core.InstanceHitEvent)
	hitResults []func(core.HitResultsEvent)
}

// New creates a component. Non-positive lengths select the defaults.
func New(tracer Tracer, c clock.Clock, traceLength, sphereRadius float64) *Component {
	if traceLength <= 0 {
		traceLength = DefaultTraceLength
	}
	if sphereRadius <= 0 {
		sphereRadius = DefaultSphereRadius
	}
	if c == nil {
		c = clock.System{}
	}
	return &Component{
		tracer:       tracer,
		clock:        c,
		traceLength:  traceLength,
		sphereRadius: sphereRadius,
	}
}

// OnMeshHit registers fn to receive instanced mesh hits.
func (c *Component) OnMeshHit(fn func(core.InstanceHitEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.meshHit = append(c.meshHit, fn)
}

// OnHitResults registers fn to receive sphere sweep results.
func (c *Component) OnHitResults(fn func(core.HitResultsEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hitResults = append(c.hitResults, fn)
}

func (c *Component) traceEnd(view core.Viewpoint) core.Vec3 {
	return view.Location.Add(view.Direction.Normalized().Scale(c.traceLength))
}

// RayCast traces along view and broadcasts a hit on an instanced mesh.
func (c *Component) RayCast(view core.Viewpoint) (core.InstanceHitEvent, bool) {
	hit, ok := c.tracer.LineTrace(view.Location, c.traceEnd(view))
	if !ok || !hit.Instanced {
		return core.InstanceHitEvent{}, false
	}

	ev := core.InstanceHitEvent{Instance: hit.Handle, Time: c.clock.Now()}

	c.mu.RLock()
	listeners := append([]func(core.InstanceHitEvent){}, c.meshHit...)
	c.mu.RUnlock()
	for _, fn := range listeners {
		fn(ev)
	}
	return ev, true
}

// LineTraceAndSphereTrace traces along view, then sweeps a sphere at the
// impact point. Any sweep hits are broadcast and returned.
func (c *Component) LineTraceAndSphereTrace(view core.Viewpoint) []core.HitResult {
	hit, ok := c.tracer.LineTrace(view.Location, c.traceEnd(view))
	if !ok {
		return nil
	}

	hits := c.tracer.SphereSweep(hit.ImpactPoint, c.sphereRadius)
	if len(hits) == 0 {
		return hits
	}

	ev := core.HitResultsEvent{Hits: hits, Time: c.clock.Now()}

	c.mu.RLock()
	listeners := append([]func(core.HitResultsEvent){}, c.hitResults...)
	c.mu.RUnlock()
	for _, fn := range listeners {
		fn(ev)
	}
	return hits
}
