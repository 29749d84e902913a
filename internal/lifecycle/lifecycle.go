// Package lifecycle drives every mineral spot through its states:
// an instanced mesh (active), a destructible representation being mined
// (converting), a representation lingering after depletion (depleted) and a
// pause before a fresh spot appears (respawning).
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/ktgames/mining/internal/actor"
	"github.com/ktgames/mining/internal/datatable"
	"github.com/ktgames/mining/internal/logging"
	"github.com/ktgames/mining/internal/registry"
	"github.com/ktgames/mining/internal/scheduler"
	"github.com/ktgames/mining/internal/selector"
	"github.com/ktgames/mining/pkg/core"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrUnknownSpot     = errors.New("unknown spot")
	ErrUnknownInstance = errors.New("unknown instance")
	ErrStaleHandle     = errors.New("handle not owned by any spot")
	ErrNoDestructible  = errors.New("no destructible representation for mesh")
	ErrShutdown        = errors.New("orchestrator shut down")
	ErrAlreadyStarted  = errors.New("orchestrator already started")
	ErrInvalidAmount   = errors.New("removal amount is not finite")
)

// Spawner places and removes representations in the world.
type Spawner interface {
	SpawnInstance(mesh string, t core.Transform, kind core.InstancedType) (core.Handle, error)
	RemoveInstance(h core.Handle) bool
	InstanceMesh(h core.Handle) (string, bool)
	InstanceTransform(h core.Handle) (core.Transform, bool)
	SpawnField(class string, t core.Transform) (core.Handle, error)
	SpawnChaos(class string, t core.Transform) (core.Handle, float64, error)
	SpawnGroup(meshes []string, t core.Transform) (core.Handle, error)
}

// Timers is the scheduler as seen by the orchestrator.
type Timers interface {
	actor.Timers
	Now() time.Time
}

// Recorder receives lifecycle history. storage.Backend satisfies it.
type Recorder interface {
	RecordSpotGeneration(*core.SpotGeneration) error
	RecordConversion(*core.ConversionEvent) error
	RecordProgress(*core.ProgressEvent) error
	RecordDepletion(*core.DepletionEvent) error
}

// Config tunes the lifecycle.
type Config struct {
	UseChaos           bool
	Threshold          float64
	RespawnDelay       time.Duration
	CrumbleDelay       time.Duration
	DepleteDelay       time.Duration
	AnchorOffset       float64
	AnchorFieldClass   string
	FallbackType       core.MineralType
	TransformTolerance float64
	RadialDamage       float64
	DamageRadius       float64
	Actor              actor.Config
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		Threshold:          0.9,
		RespawnDelay:       10 * time.Second,
		CrumbleDelay:       3 * time.Second,
		DepleteDelay:       10 * time.Second,
		AnchorOffset:       7,
		FallbackType:       core.Gold,
		TransformTolerance: core.DefaultTolerance,
		RadialDamage:       3000,
		DamageRadius:       500,
		Actor:              actor.DefaultConfig(),
	}
}

// Dependencies are the collaborators of an Orchestrator.
type Dependencies struct {
	Spawner  Spawner
	Physics  actor.Physics
	Timers   Timers
	Tables   datatable.Tables
	Recorder Recorder
	Seeds    selector.SeedSource
	Logger   *slog.Logger
}

// SpotStatus is the observable state of one spot.
type SpotStatus struct {
	ID           core.SpotID `json:"id"`
	Name         string      `json:"name"`
	State        string      `json:"state"`
	MineralType  string      `json:"mineralType"`
	Generation   uint32      `json:"generation"`
	Instance     core.Handle `json:"instance,omitempty"`
	Destructible core.Handle `json:"destructible,omitempty"`
	Accumulated  float64     `json:"accumulated,omitempty"`
	Total        float64     `json:"total,omitempty"`
}

// Snapshot counts spots per state.
type Snapshot struct {
	Spots      int `json:"spots"`
	Active     int `json:"active"`
	Converting int `json:"converting"`
	Depleted   int `json:"depleted"`
	Respawning int `json:"respawning"`
}

type spotEntry struct {
	id       core.SpotID
	owner    scheduler.Owner
	state    core.SpotState
	mineral  core.MineralType
	instance core.Handle
	field    core.Handle
	actor    actor.Actor
}

// Orchestrator owns every spot and the representations spawned for it.
// All state changes happen under one lock, including timer callbacks.
type Orchestrator struct {
	mu   sync.Mutex
	cfg  Config
	deps Dependencies
	log  *slog.Logger

	registry *registry.SpotRegistry
	selector *selector.Selector

	meshes map[core.MineralType]string
	groups map[string]datatable.MeshGroupRow

	spots      map[core.SpotID]*spotEntry
	byInstance map[core.Handle]core.SpotID
	byActor    map[core.Handle]core.SpotID
	started    bool
	closed     bool

	conversions metric.Int64Counter
	depletions  metric.Int64Counter
	respawns    metric.Int64Counter
	fallbacks   metric.Int64Counter
}

// New creates an orchestrator. Call Start to load and activate spots.
func New(cfg Config, deps Dependencies) (*Orchestrator, error) {
	if deps.Spawner == nil || deps.Physics == nil || deps.Timers == nil {
		return nil, errors.New("lifecycle: spawner, physics and timers are required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Seeds == nil {
		deps.Seeds = selector.NewSeedSource(0)
	}
	if cfg.Threshold <= 0 || cfg.Threshold > 1 {
		cfg.Threshold = DefaultConfig().Threshold
	}
	cfg.Actor.Threshold = cfg.Threshold

	o := &Orchestrator{
		cfg:        cfg,
		deps:       deps,
		log:        deps.Logger.With("component", "lifecycle"),
		registry:   registry.New(cfg.TransformTolerance),
		selector:   selector.New(cfg.FallbackType),
		meshes:     make(map[core.MineralType]string),
		groups:     make(map[string]datatable.MeshGroupRow),
		spots:      make(map[core.SpotID]*spotEntry),
		byInstance: make(map[core.Handle]core.SpotID),
		byActor:    make(map[core.Handle]core.SpotID),
	}

	m := meter()
	var err error
	if o.conversions, err = m.Int64Counter("mining.spots.converted",
		metric.WithDescription("Instances converted to destructible representations")); err != nil {
		return nil, fmt.Errorf("creating conversions counter: %w", err)
	}
	if o.depletions, err = m.Int64Counter("mining.spots.depleted",
		metric.WithDescription("Representations that crossed the depletion threshold")); err != nil {
		return nil, fmt.Errorf("creating depletions counter: %w", err)
	}
	if o.respawns, err = m.Int64Counter("mining.spots.respawned",
		metric.WithDescription("Spots regenerated after depletion")); err != nil {
		return nil, fmt.Errorf("creating respawns counter: %w", err)
	}
	if o.fallbacks, err = m.Int64Counter("mining.draws.fallback",
		metric.WithDescription("Type draws that ran past the percentage table")); err != nil {
		return nil, fmt.Errorf("creating fallbacks counter: %w", err)
	}
	return o, nil
}

// Registry exposes the spot registry.
func (o *Orchestrator) Registry() *registry.SpotRegistry {
	return o.registry
}

// Start loads the tables and activates every spot. Missing tables are logged
// and leave the orchestrator without spots; Start itself never fails on them.
func (o *Orchestrator) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrShutdown
	}
	if o.started {
		return ErrAlreadyStarted
	}
	o.started = true

	if o.deps.Tables == nil {
		o.log.Error("no table source configured, mining disabled")
		return nil
	}

	meshes, err := o.deps.Tables.MineralMeshes()
	if err != nil {
		o.log.Error("mineral mesh table unavailable", "error", err)
	}
	for t, mesh := range meshes {
		o.meshes[t] = mesh
	}

	groups, err := o.deps.Tables.MeshGroups()
	if err != nil {
		o.log.Warn("mesh group table unavailable, spots cannot convert", "error", err)
	}
	for _, g := range groups {
		if o.cfg.UseChaos && g.ChaosClass == "" {
			o.log.Warn("mesh group has no chaos class", "keyMesh", g.KeyMesh)
		}
		o.groups[g.KeyMesh] = g
		o.log.Debug("destructible mapping added", "keyMesh", g.KeyMesh, "chaos", o.cfg.UseChaos)
	}

	rows, err := o.deps.Tables.Spots()
	if err != nil {
		o.log.Error("mineral spot table unavailable", "error", err)
		return nil
	}
	for _, issue := range datatable.Validate(rows) {
		o.log.Warn("mineral spot table issue", "spot", issue.Spot, "issue", issue.Message)
	}

	for _, row := range rows {
		id := o.registry.Add(core.MineralSpot{
			Name:        row.Name,
			Transform:   row.Transform,
			Percentages: row.Percentages,
			Seed:        row.Seed,
		})
		e := &spotEntry{id: id, owner: scheduler.Owner(fmt.Sprintf("spot-%d", id))}
		o.spots[id] = e

		spot, _ := o.registry.Get(id)
		o.activate(e, spot)
		o.spawnAnchor(e, spot)
	}
	o.log.Info("mineral spots activated", "spots", len(rows))
	return nil
}

// activate draws a type for spot and places its instanced mesh.
func (o *Orchestrator) activate(e *spotEntry, spot core.MineralSpot) {
	res := o.selector.Resolve(spot)
	e.state = core.SpotActive
	e.mineral = res.Type
	e.instance = 0

	if res.Fallback {
		o.fallbacks.Add(context.Background(), 1)
		o.log.Warn("draw ran past percentage table, using fallback",
			"spot", spot.Name, "value", res.RandomValue, "fallback", res.Type)
	}

	o.record(func(r Recorder) error {
		return r.RecordSpotGeneration(&core.SpotGeneration{
			Time:        o.deps.Timers.Now(),
			SpotID:      spot.ID,
			SpotName:    spot.Name,
			Generation:  spot.Generation,
			Seed:        spot.Seed,
			RandomValue: res.RandomValue,
			MineralType: res.Type,
			Fallback:    res.Fallback,
			Position:    spot.Transform.Translation,
			Percentages: spot.Percentages,
		})
	})

	mesh, ok := o.meshes[res.Type]
	if !ok {
		o.log.Error("no mesh for mineral type", "spot", spot.Name, "type", res.Type)
		return
	}
	h, err := o.deps.Spawner.SpawnInstance(mesh, spot.Transform, core.InstancedMinerals)
	if err != nil {
		o.log.Error("failed to spawn mineral instance", "spot", spot.Name, "error", err)
		return
	}
	e.instance = h
	o.byInstance[h] = e.id
}

func (o *Orchestrator) spawnAnchor(e *spotEntry, spot core.MineralSpot) {
	if o.cfg.AnchorFieldClass == "" {
		return
	}
	at := spot.Transform.AddTranslation(spot.Transform.UnitAxisZ().Scale(o.cfg.AnchorOffset))
	h, err := o.deps.Spawner.SpawnField(o.cfg.AnchorFieldClass, at)
	if err != nil {
		o.log.Error("failed to spawn anchor field", "spot", spot.Name, "error", err)
		return
	}
	e.field = h
}

// HandleInstanceHit converts the spot whose instance was hit.
func (o *Orchestrator) HandleInstanceHit(ev core.InstanceHitEvent) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrShutdown
	}
	id, ok := o.byInstance[ev.Instance]
	if !ok {
		return fmt.Errorf("instance %d: %w", ev.Instance, ErrUnknownInstance)
	}
	return o.convert(o.spots[id])
}

// HandleConvertAt converts the spot registered at ev.Transform.
func (o *Orchestrator) HandleConvertAt(ev core.ConvertAtEvent) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrShutdown
	}
	spot, ok := o.registry.FindByTransform(ev.Transform)
	if !ok {
		return fmt.Errorf("at %v: %w", ev.Transform.Translation, ErrUnknownSpot)
	}
	return o.convert(o.spots[spot.ID])
}

func (o *Orchestrator) convert(e *spotEntry) error {
	if e.state != core.SpotActive || e.instance == 0 {
		o.log.Debug("conversion ignored", "spot", e.id, "state", e.state)
		return nil
	}

	mesh, ok := o.deps.Spawner.InstanceMesh(e.instance)
	if !ok {
		return fmt.Errorf("spot %d instance %d: %w", e.id, e.instance, ErrStaleHandle)
	}
	at, _ := o.deps.Spawner.InstanceTransform(e.instance)

	group, ok := o.groups[mesh]
	if !ok {
		o.log.Warn("no destructible mapping for mesh", "spot", e.id, "mesh", mesh)
		return fmt.Errorf("mesh %s: %w", mesh, ErrNoDestructible)
	}

	timers := lockedTimers{o}
	var a actor.Actor
	if o.cfg.UseChaos {
		if group.ChaosClass == "" {
			return fmt.Errorf("mesh %s chaos class: %w", mesh, ErrNoDestructible)
		}
		h, mass, err := o.deps.Spawner.SpawnChaos(group.ChaosClass, at)
		if err != nil {
			return fmt.Errorf("spawning chaos body: %w", err)
		}
		a = actor.NewChaos(h, at, mass, o.cfg.Actor, o.deps.Physics, timers)
	} else {
		if len(group.GroupMeshes) == 0 {
			return fmt.Errorf("mesh %s group meshes: %w", mesh, ErrNoDestructible)
		}
		h, err := o.deps.Spawner.SpawnGroup(group.GroupMeshes, at)
		if err != nil {
			return fmt.Errorf("spawning mesh group: %w", err)
		}
		a = actor.NewGroup(h, at, group.GroupMeshes, o.cfg.Actor, o.deps.Physics, timers)
	}

	instance := e.instance
	if !o.deps.Spawner.RemoveInstance(instance) {
		o.log.Warn("instance already gone", "spot", e.id, "instance", instance)
	}
	delete(o.byInstance, instance)
	e.instance = 0
	e.actor = a
	e.state = core.SpotConverting
	o.byActor[a.Handle()] = e.id

	o.conversions.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", a.Kind().String())))
	spot, _ := o.registry.Get(e.id)
	o.record(func(r Recorder) error {
		return r.RecordConversion(&core.ConversionEvent{
			Time:         o.deps.Timers.Now(),
			SpotID:       e.id,
			Generation:   spot.Generation,
			Kind:         a.Kind(),
			Instance:     instance,
			Destructible: a.Handle(),
			Position:     at.Translation,
		})
	})
	o.log.Debug("spot converted", "spot", e.id, "kind", a.Kind(), "handle", a.Handle())
	return nil
}

// HandleRemoval feeds mass shed by a chaos body into its progress.
func (o *Orchestrator) HandleRemoval(ev core.RemovalEvent) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrShutdown
	}
	if math.IsNaN(ev.Mass) || math.IsInf(ev.Mass, 0) {
		return fmt.Errorf("removal on %d: %w", ev.Handle, ErrInvalidAmount)
	}
	id, ok := o.byActor[ev.Handle]
	if !ok {
		return fmt.Errorf("removal on %d: %w", ev.Handle, ErrStaleHandle)
	}
	e := o.spots[id]
	chaos, ok := e.actor.(*actor.Chaos)
	if !ok || e.state != core.SpotConverting {
		return nil
	}

	crossed := chaos.OnRemoval(ev.Mass)
	o.recordProgress(e, ev.Mass)
	if crossed {
		o.deplete(e, o.cfg.CrumbleDelay)
	}
	return nil
}

// HandleHits routes sweep hits to the groups that own them. Hits on anything
// else apply radial damage at the impact point.
func (o *Orchestrator) HandleHits(hits []core.HitResult) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrShutdown
	}
	for _, hit := range hits {
		var out actor.HitOutcome
		e, owned := o.ownerOf(hit.Handle)
		if owned {
			if group, ok := e.actor.(*actor.Group); ok {
				out = group.OnHit(hit)
			}
		}
		if !out.Member {
			o.deps.Physics.ApplyRadialDamage(hit.ImpactPoint, o.cfg.RadialDamage, o.cfg.DamageRadius)
			continue
		}
		if out.Counted {
			o.recordProgress(e, 1)
		}
		if out.Crossed && e.state == core.SpotConverting {
			o.deplete(e, o.cfg.DepleteDelay)
		}
	}
	return nil
}

func (o *Orchestrator) ownerOf(h core.Handle) (*spotEntry, bool) {
	id, ok := o.byActor[h]
	if !ok {
		return nil, false
	}
	e := o.spots[id]
	return e, e.actor != nil
}

func (o *Orchestrator) recordProgress(e *spotEntry, amount float64) {
	acc, total := e.actor.Progress()
	spot, _ := o.registry.Get(e.id)
	o.record(func(r Recorder) error {
		return r.RecordProgress(&core.ProgressEvent{
			Time:        o.deps.Timers.Now(),
			SpotID:      e.id,
			Generation:  spot.Generation,
			Amount:      amount,
			Accumulated: acc,
			Total:       total,
		})
	})
}

// deplete moves e to Depleted and schedules removal of its representation
// after linger.
func (o *Orchestrator) deplete(e *spotEntry, linger time.Duration) {
	e.state = core.SpotDepleted
	o.depletions.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", e.actor.Kind().String())))

	now := o.deps.Timers.Now()
	acc, total := e.actor.Progress()
	spot, _ := o.registry.Get(e.id)
	o.record(func(r Recorder) error {
		return r.RecordDepletion(&core.DepletionEvent{
			Time:        now,
			SpotID:      e.id,
			Generation:  spot.Generation,
			Kind:        e.actor.Kind(),
			MineralType: e.mineral,
			Accumulated: acc,
			Total:       total,
			RespawnAt:   now.Add(linger + o.cfg.RespawnDelay),
		})
	})
	o.log.Info("spot depleted", logging.SpotAttr(spot), "mineral", e.mineral)

	o.deps.Timers.After(e.owner, linger, o.locked(func() { o.removeDestructible(e) }))
}

func (o *Orchestrator) removeDestructible(e *spotEntry) {
	if e.state != core.SpotDepleted || e.actor == nil {
		return
	}
	delete(o.byActor, e.actor.Handle())
	e.actor.Destroy()
	e.actor = nil
	e.state = core.SpotRespawning

	o.deps.Timers.After(e.owner, o.cfg.RespawnDelay, o.locked(func() { o.respawn(e) }))
}

// respawn regenerates e with a fresh seed and a new draw.
func (o *Orchestrator) respawn(e *spotEntry) {
	if e.state != core.SpotRespawning {
		return
	}
	spot, ok := o.registry.Get(e.id)
	if !ok {
		o.log.Error("respawning spot missing from registry", "spot", e.id)
		return
	}
	spot.Seed = o.deps.Seeds.NextSeed()
	spot.Generation++
	o.registry.Upsert(spot)

	o.activate(e, spot)
	o.respawns.Add(context.Background(), 1)
	o.log.Info("spot respawned", logging.SpotAttr(spot), "mineral", e.mineral)
}

// locked wraps fn so it runs under the orchestrator lock and not at all
// after Shutdown.
func (o *Orchestrator) locked(fn func()) func() {
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if o.closed {
			return
		}
		fn()
	}
}

func (o *Orchestrator) record(fn func(Recorder) error) {
	if o.deps.Recorder == nil {
		return
	}
	if err := fn(o.deps.Recorder); err != nil {
		o.log.Error("failed to record lifecycle event", "error", err)
	}
}

// State returns the state of spot id.
func (o *Orchestrator) State(id core.SpotID) (core.SpotState, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.spots[id]
	if !ok {
		return 0, false
	}
	return e.state, true
}

// Spots returns the status of every spot in registration order.
func (o *Orchestrator) Spots() []SpotStatus {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]SpotStatus, 0, len(o.spots))
	for _, spot := range o.registry.All() {
		e := o.spots[spot.ID]
		st := SpotStatus{
			ID:          spot.ID,
			Name:        spot.Name,
			State:       e.state.String(),
			MineralType: e.mineral.String(),
			Generation:  spot.Generation,
			Instance:    e.instance,
		}
		if e.actor != nil {
			st.Destructible = e.actor.Handle()
			st.Accumulated, st.Total = e.actor.Progress()
		}
		out = append(out, st)
	}
	return out
}

// Snapshot counts spots per state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := Snapshot{Spots: len(o.spots)}
	for _, e := range o.spots {
		switch e.state {
		case core.SpotActive:
			s.Active++
		case core.SpotConverting:
			s.Converting++
		case core.SpotDepleted:
			s.Depleted++
		case core.SpotRespawning:
			s.Respawning++
		}
	}
	return s
}

// Shutdown cancels every pending timer and removes every representation the
// orchestrator spawned. Later events return ErrShutdown.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return
	}
	o.closed = true

	for _, e := range o.spots {
		o.deps.Timers.CancelOwner(e.owner)
		if e.actor != nil {
			e.actor.Destroy()
			e.actor = nil
		}
		if e.instance != 0 {
			o.deps.Spawner.RemoveInstance(e.instance)
			e.instance = 0
		}
		if e.field != 0 {
			o.deps.Physics.DestroyRepresentation(e.field)
			e.field = 0
		}
	}
	o.byInstance = make(map[core.Handle]core.SpotID)
	o.byActor = make(map[core.Handle]core.SpotID)
	o.log.Info("lifecycle shut down", "spots", len(o.spots))
}

// lockedTimers hands actors a scheduler whose callbacks run under the
// orchestrator lock.
type lockedTimers struct {
	o *Orchestrator
}

func (t lockedTimers) After(owner scheduler.Owner, delay time.Duration, fn func()) scheduler.Token {
	return t.o.deps.Timers.After(owner, delay, t.o.locked(fn))
}

func (t lockedTimers) Every(owner scheduler.Owner, interval time.Duration, fn func() bool) scheduler.Token {
	return t.o.deps.Timers.Every(owner, interval, func() bool {
		t.o.mu.Lock()
		defer t.o.mu.Unlock()
		if t.o.closed {
			return false
		}
		return fn()
	})
}

func (t lockedTimers) CancelOwner(owner scheduler.Owner) int {
	return t.o.deps.Timers.CancelOwner(owner)
}
