// Package actor implements the destructible representations a mineral spot
// turns into when hit: a fracturing chaos body or a group of loose meshes.
package actor

import (
	"time"

	"github.com/google/uuid"
	"github.com/ktgames/mining/internal/progress"
	"github.com/ktgames/mining/internal/scheduler"
	"github.com/ktgames/mining/pkg/core"
)

// Physics is the engine side of a destructible representation.
type Physics interface {
	CrumbleActiveClusters(h core.Handle)
	SetSimulatePhysics(h core.Handle, mesh int, on bool)
	AddImpulseAtLocation(h core.Handle, mesh int, impulse, at core.Vec3)
	AddRadialImpulse(h core.Handle, mesh int, origin core.Vec3, radius, strength float64)
	SetMeshScale(h core.Handle, mesh int, scale core.Vec3)
	RemoveMesh(h core.Handle, mesh int)
	SpawnEmitterAndSound(at core.Vec3)
	ApplyRadialDamage(origin core.Vec3, damage, radius float64)
	DestroyRepresentation(h core.Handle)
}

// Timers schedules callbacks owned by an actor.
type Timers interface {
	After(owner scheduler.Owner, delay time.Duration, fn func()) scheduler.Token
	Every(owner scheduler.Owner, interval time.Duration, fn func() bool) scheduler.Token
	CancelOwner(owner scheduler.Owner) int
}

// Actor is the behaviour shared by every destructible representation.
type Actor interface {
	Handle() core.Handle
	Kind() core.DestructibleKind
	Owner() scheduler.Owner
	Transform() core.Transform
	Progress() (accumulated, total float64)
	Depleted() bool
	Alive() bool
	Destroy()
}

// Config holds the tuning shared by both representations.
type Config struct {
	Threshold       float64
	ImpactForce     float64
	ImpulseStrength float64
	ImpulseRadius   float64
	ScaleStep       float64
	ScaleInterval   time.Duration
	MinScale        float64
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		Threshold:       progress.DefaultThreshold,
		ImpactForce:     1000,
		ImpulseStrength: 300,
		ImpulseRadius:   200,
		ScaleStep:       0.92,
		ScaleInterval:   100 * time.Millisecond,
		MinScale:        0.01,
	}
}

type base struct {
	handle    core.Handle
	owner     scheduler.Owner
	transform core.Transform
	cfg       Config
	physics   Physics
	timers    Timers
	tracker   *progress.Tracker
	alive     bool
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.ScaleStep <= 0 || c.ScaleStep >= 1 {
		c.ScaleStep = d.ScaleStep
	}
	if c.ScaleInterval <= 0 {
		c.ScaleInterval = d.ScaleInterval
	}
	if c.MinScale <= 0 {
		c.MinScale = d.MinScale
	}
	return c
}

func newBase(h core.Handle, kind core.DestructibleKind, at core.Transform, total float64, cfg Config, physics Physics, timers Timers) base {
	cfg = cfg.normalized()
	return base{
		handle:    h,
		owner:     scheduler.Owner(kind.String() + "-" + uuid.NewString()),
		transform: at,
		cfg:       cfg,
		physics:   physics,
		timers:    timers,
		tracker:   progress.New(total, cfg.Threshold),
		alive:     true,
	}
}

func (b *base) Handle() core.Handle { return b.handle }
func (b *base) Owner() scheduler.Owner { return b.owner }
func (b *base) Transform() core.Transform { return b.transform }
func (b *base) Depleted() bool { return b.tracker.Depleted() }
func (b *base) Alive() bool { return b.alive }

func (b *base) Progress() (float64, float64) {
	return b.tracker.Accumulated(), b.tracker.Total()
}

// Destroy cancels the actor's timers and removes its representation.
// Calling it again does nothing.
func (b *base) Destroy() {
	if !b.alive {
		return
	}
	b.alive = false
	b.timers.CancelOwner(b.owner)
	b.physics.DestroyRepresentation(b.handle)
}
