// Package world is a headless stand-in for the game engine. It places
// representations, answers traces and records physics requests so the
// lifecycle can run without a renderer or physics solver.
package world

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/ktgames/mining/internal/instance"
	"github.com/ktgames/mining/internal/interaction"
	"github.com/ktgames/mining/pkg/core"
)

var (
	ErrNoClass  = errors.New("world: no class")
	ErrNoMeshes = errors.New("world: empty mesh group")
)

// DefaultChaosMass is the total mass of a chaos body whose class has no entry.
const DefaultChaosMass = 1000.0

// Config tunes the headless world.
type Config struct {
	// ChaosMass maps a chaos class to the total mass of its body.
	ChaosMass map[string]float64
	// MeshRadius is the collision sphere radius of every mesh.
	MeshRadius float64
	Tolerance  float64
}

type repKind uint8

const (
	repField repKind = iota
	repChaos
	repGroup
)

type mesh struct {
	name     string
	location core.Vec3
	scale    core.Vec3
	physics  bool
	removed  bool
}

type representation struct {
	kind      repKind
	class     string
	transform core.Transform
	mass      float64
	crumbled  bool
	meshes    []*mesh
}

// Damage is one radial damage request.
type Damage struct {
	Origin core.Vec3
	Amount float64
	Radius float64
}

// Stats summarises what the world currently holds.
type Stats struct {
	Instances       int `json:"instances"`
	Representations int `json:"representations"`
	Effects         int `json:"effects"`
	Damage          int `json:"damage"`
}

// World implements the spawn, physics and trace services.
type World struct {
	mu        sync.Mutex
	logger    *slog.Logger
	cfg       Config
	next      core.Handle
	instances *instance.Manager
	reps      map[core.Handle]*representation
	effects   []core.Vec3
	damage    []Damage
}

// New creates an empty world.
func New(cfg Config, logger *slog.Logger) *World {
	if cfg.MeshRadius <= 0 {
		cfg.MeshRadius = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	w := &World{
		cfg:    cfg,
		logger: logger,
		reps:   make(map[core.Handle]*representation),
	}
	w.instances = instance.NewManager(w.allocate, cfg.Tolerance)
	return w
}

// allocate must be called with w.mu held.
func (w *World) allocate() core.Handle {
	w.next++
	return w.next
}

// Instances exposes the instanced mesh bookkeeping.
func (w *World) Instances() *instance.Manager {
	return w.instances
}

// SpawnInstance places an instance of mesh at t.
func (w *World) SpawnInstance(mesh string, t core.Transform, kind core.InstancedType) (core.Handle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	h, err := w.instances.Spawn(mesh, t, kind)
	if err != nil {
		return 0, fmt.Errorf("spawning %s instance: %w", kind, err)
	}
	w.logger.Debug("instance spawned", "handle", h, "mesh", mesh)
	return h, nil
}

// RemoveInstance removes the instance h.
func (w *World) RemoveInstance(h core.Handle) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.instances.Remove(h)
}

// InstanceMesh returns the mesh of instance h.
func (w *World) InstanceMesh(h core.Handle) (string, bool) {
	return w.instances.Mesh(h)
}

// InstanceTransform returns the transform of instance h.
func (w *World) InstanceTransform(h core.Handle) (core.Transform, bool) {
	return w.instances.Transform(h)
}

// SpawnField places a field actor of class at t.
func (w *World) SpawnField(class string, t core.Transform) (core.Handle, error) {
	if class == "" {
		return 0, ErrNoClass
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	h := w.allocate()
	w.reps[h] = &representation{kind: repField, class: class, transform: t}
	w.logger.Debug("field spawned", "handle", h, "class", class)
	return h, nil
}

// SpawnChaos places a chaos body of class at t and returns its total mass.
func (w *World) SpawnChaos(class string, t core.Transform) (core.Handle, float64, error) {
	if class == "" {
		return 0, 0, ErrNoClass
	}
	mass, ok := w.cfg.ChaosMass[class]
	if !ok || mass <= 0 {
		mass = DefaultChaosMass
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	h := w.allocate()
	w.reps[h] = &representation{kind: repChaos, class: class, transform: t, mass: mass}
	w.logger.Debug("chaos body spawned", "handle", h, "class", class, "mass", mass)
	return h, mass, nil
}

// SpawnGroup places meshes around t, spread on a ring so traces can tell them apart.
func (w *World) SpawnGroup(meshes []string, t core.Transform) (core.Handle, error) {
	if len(meshes) == 0 {
		return 0, ErrNoMeshes
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	h := w.allocate()
	rep := &representation{kind: repGroup, transform: t}
	spread := w.cfg.MeshRadius
	for i, name := range meshes {
		angle := 2 * math.Pi * float64(i) / float64(len(meshes))
		offset := core.Vec3{X: math.Cos(angle) * spread, Y: math.Sin(angle) * spread}
		if len(meshes) == 1 {
			offset = core.Vec3{}
		}
		rep.meshes = append(rep.meshes, &mesh{
			name:     name,
			location: t.Translation.Add(t.Rotation.Rotate(offset)),
			scale:    core.Vec3{X: 1, Y: 1, Z: 1},
		})
	}
	w.reps[h] = rep
	w.logger.Debug("mesh group spawned", "handle", h, "meshes", len(meshes))
	return h, nil
}

func (w *World) meshLocked(h core.Handle, i int) *mesh {
	rep, ok := w.reps[h]
	if !ok || i < 0 || i >= len(rep.meshes) {
		return nil
	}
	return rep.meshes[i]
}

// CrumbleActiveClusters breaks the chaos body h apart.
func (w *World) CrumbleActiveClusters(h core.Handle) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if rep, ok := w.reps[h]; ok && rep.kind == repChaos {
		rep.crumbled = true
		w.logger.Debug("clusters crumbled", "handle", h)
	}
}

// SetSimulatePhysics toggles physics on one mesh of h.
func (w *World) SetSimulatePhysics(h core.Handle, i int, on bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if m := w.meshLocked(h, i); m != nil {
		m.physics = on
	}
}

// AddImpulseAtLocation nudges one mesh of h.
func (w *World) AddImpulseAtLocation(h core.Handle, i int, impulse, at core.Vec3) {
	w.logger.Debug("impulse", "handle", h, "mesh", i, "impulse", impulse.Len())
}

// AddRadialImpulse pushes one mesh of h away from origin.
func (w *World) AddRadialImpulse(h core.Handle, i int, origin core.Vec3, radius, strength float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	m := w.meshLocked(h, i)
	if m == nil || !m.physics {
		return
	}
	dir := m.location.Sub(origin)
	if dir.Len() > radius {
		return
	}
	// a loose mesh drifts a fraction of the impulse; enough for traces to change
	m.location = m.location.Add(dir.Normalized().Scale(strength * 0.01))
}

// SetMeshScale sets the world scale of one mesh of h.
func (w *World) SetMeshScale(h core.Handle, i int, scale core.Vec3) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if m := w.meshLocked(h, i); m != nil {
		m.scale = scale
	}
}

// RemoveMesh takes one mesh of h out of the world.
func (w *World) RemoveMesh(h core.Handle, i int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if m := w.meshLocked(h, i); m != nil {
		m.removed = true
		m.physics = false
	}
}

// SpawnEmitterAndSound records a disappearance effect at at.
func (w *World) SpawnEmitterAndSound(at core.Vec3) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.effects = append(w.effects, at)
}

// ApplyRadialDamage records damage around origin.
func (w *World) ApplyRadialDamage(origin core.Vec3, amount, radius float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.damage = append(w.damage, Damage{Origin: origin, Amount: amount, Radius: radius})
	w.logger.Debug("radial damage", "amount", amount, "radius", radius)
}

// DestroyRepresentation removes a field, chaos body or mesh group.
func (w *World) DestroyRepresentation(h core.Handle) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.reps[h]; ok {
		delete(w.reps, h)
		w.logger.Debug("representation destroyed", "handle", h)
	}
}

// Exists reports whether h is a live representation or instance.
func (w *World) Exists(h core.Handle) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.reps[h]; ok {
		return true
	}
	_, ok := w.instances.Get(h)
	return ok
}

// Damage returns every radial damage request so far.
func (w *World) Damage() []Damage {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Damage(nil), w.damage...)
}

// Stats returns current counts.
func (w *World) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Stats{
		Instances:       len(w.instances.All()),
		Representations: len(w.reps),
		Effects:         len(w.effects),
		Damage:          len(w.damage),
	}
}

// LineTrace returns the closest instance, chaos body or group mesh hit
// between start and end.
func (w *World) LineTrace(start, end core.Vec3) (interaction.TraceHit, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	seg := end.Sub(start)
	length := seg.Len()
	if length == 0 {
		return interaction.TraceHit{}, false
	}
	dir := seg.Scale(1 / length)

	best := math.Inf(1)
	var hit interaction.TraceHit
	try := func(center core.Vec3, radius float64, candidate interaction.TraceHit) {
		d, ok := raySphere(start, dir, length, center, radius)
		if !ok || d >= best {
			return
		}
		best = d
		candidate.ImpactPoint = start.Add(dir.Scale(d))
		candidate.ImpactNormal = candidate.ImpactPoint.Sub(center).Normalized()
		hit = candidate
	}

	for _, inst := range w.instances.All() {
		try(inst.Transform.Translation, w.cfg.MeshRadius, interaction.TraceHit{Handle: inst.Handle, Mesh: -1, Instanced: true})
	}
	for h, rep := range w.reps {
		switch rep.kind {
		case repChaos:
			try(rep.transform.Translation, w.cfg.MeshRadius, interaction.TraceHit{Handle: h, Mesh: -1})
		case repGroup:
			for i, m := range rep.meshes {
				if m.removed {
					continue
				}
				try(m.location, w.cfg.MeshRadius*m.scale.Min(), interaction.TraceHit{Handle: h, Mesh: i})
			}
		}
	}
	return hit, !math.IsInf(best, 1)
}

// SphereSweep returns every group mesh and chaos body overlapping the sphere.
func (w *World) SphereSweep(center core.Vec3, radius float64) []core.HitResult {
	w.mu.Lock()
	defer w.mu.Unlock()

	var hits []core.HitResult
	add := func(h core.Handle, i int, at core.Vec3, r float64) {
		if at.Sub(center).Len() > radius+r {
			return
		}
		normal := center.Sub(at).Normalized()
		hits = append(hits, core.HitResult{
			Handle:       h,
			Mesh:         i,
			ImpactPoint:  at.Add(normal.Scale(r)),
			ImpactNormal: normal,
		})
	}

	for h, rep := range w.reps {
		switch rep.kind {
		case repChaos:
			add(h, -1, rep.transform.Translation, w.cfg.MeshRadius)
		case repGroup:
			for i, m := range rep.meshes {
				if !m.removed {
					add(h, i, m.location, w.cfg.MeshRadius*m.scale.Min())
				}
			}
		}
	}
	return hits
}

// raySphere returns the distance along dir at which the ray enters the sphere.
func raySphere(origin, dir core.Vec3, maxDist float64, center core.Vec3, radius float64) (float64, bool) {
	oc := origin.Sub(center)
	b := oc.Dot(dir)
	c := oc.Dot(oc) - radius*radius
	disc := b*b - c
	if disc < 0 {
		return 0, false
	}
	sq := math.Sqrt(disc)
	d := -b - sq
	if d < 0 {
		d = -b + sq
	}
	if d < 0 || d > maxDist {
		return 0, false
	}
	return d, true
}
