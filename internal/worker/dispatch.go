package worker

import (
	"fmt"

	"github.com/ktgames/mining/internal/dispatcher"
)

// removalLanes is the number of worker lanes for chaos removal events.
const removalLanes = 4

// RegisterHandlers registers all mining command handlers with the dispatcher.
// Hits and conversions stay synchronous. Removal events arrive in bursts while
// a chaos actor fractures, so they are queued on lanes keyed by the actor
// handle, which keeps each actor's removals in arrival order.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	// Session control
	d.Register(":MINE:SESSION:START:", m.handleSessionStart, dispatcher.Logged())
	d.Register(":MINE:SESSION:END:", m.handleSessionEnd, dispatcher.Logged())

	// Lifecycle events
	d.Register(":MINE:HIT:INSTANCE:", m.handleInstanceHit, dispatcher.Logged())
	d.Register(":MINE:HIT:", m.handleHits, dispatcher.Logged())
	d.Register(":MINE:REMOVAL:", m.handleRemoval,
		dispatcher.Buffered(1024), dispatcher.Blocking(),
		dispatcher.Sharded(removalLanes, dispatcher.ArgKey(0)),
		dispatcher.Logged())
	d.Register(":MINE:CONVERT:AT:", m.handleConvertAt, dispatcher.Logged())

	// Traces from a player view
	d.Register(":MINE:RAYCAST:", m.handleRayCast, dispatcher.Logged())
	d.Register(":MINE:SWEEP:", m.handleSweep, dispatcher.Logged())

	// Queries
	d.Register(":MINE:STATUS:", m.handleStatus)
	d.Register(":MINE:SPOTS:", m.handleSpots)
}

func (m *Manager) handleSessionStart(e dispatcher.Event) (any, error) {
	opts, err := m.deps.Parser.ParseSessionStart(e.Args, m.deps.SessionDefaults)
	if err != nil {
		return nil, fmt.Errorf("failed to parse session start: %w", err)
	}
	s, err := m.StartSession(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	return s.UUID, nil
}

func (m *Manager) handleSessionEnd(e dispatcher.Event) (any, error) {
	if err := m.EndSession(); err != nil {
		return nil, fmt.Errorf("failed to end session: %w", err)
	}
	return "ok", nil
}

func (m *Manager) handleInstanceHit(e dispatcher.Event) (any, error) {
	ev, err := m.deps.Parser.ParseInstanceHit(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to parse instance hit: %w", err)
	}
	if err := m.deps.Lifecycle.HandleInstanceHit(ev); err != nil {
		return nil, fmt.Errorf("failed to convert instance %d: %w", ev.Instance, err)
	}
	return nil, nil
}

func (m *Manager) handleHits(e dispatcher.Event) (any, error) {
	hits, err := m.deps.Parser.ParseHits(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to parse hits: %w", err)
	}
	if err := m.deps.Lifecycle.HandleHits(hits); err != nil {
		return nil, fmt.Errorf("failed to apply hits: %w", err)
	}
	return len(hits), nil
}

func (m *Manager) handleRemoval(e dispatcher.Event) (any, error) {
	ev, err := m.deps.Parser.ParseRemoval(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to parse removal: %w", err)
	}
	if err := m.deps.Lifecycle.HandleRemoval(ev); err != nil {
		return nil, fmt.Errorf("failed to record removal on %d: %w", ev.Handle, err)
	}
	return nil, nil
}

func (m *Manager) handleConvertAt(e dispatcher.Event) (any, error) {
	ev, err := m.deps.Parser.ParseConvertAt(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to parse convert request: %w", err)
	}
	if err := m.deps.Lifecycle.HandleConvertAt(ev); err != nil {
		return nil, fmt.Errorf("failed to convert at %v: %w", ev.Transform.Translation, err)
	}
	return nil, nil
}

func (m *Manager) handleRayCast(e dispatcher.Event) (any, error) {
	if m.deps.Tracer == nil {
		return nil, fmt.Errorf("no tracer configured")
	}
	view, err := m.deps.Parser.ParseViewpoint(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to parse viewpoint: %w", err)
	}
	ev, ok := m.deps.Tracer.RayCast(view)
	if !ok {
		return nil, nil
	}
	return uint64(ev.Instance), nil
}

func (m *Manager) handleSweep(e dispatcher.Event) (any, error) {
	if m.deps.Tracer == nil {
		return nil, fmt.Errorf("no tracer configured")
	}
	view, err := m.deps.Parser.ParseViewpoint(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to parse viewpoint: %w", err)
	}
	return len(m.deps.Tracer.LineTraceAndSphereTrace(view)), nil
}

func (m *Manager) handleStatus(e dispatcher.Event) (any, error) {
	return m.deps.Lifecycle.Snapshot(), nil
}

func (m *Manager) handleSpots(e dispatcher.Event) (any, error) {
	return m.deps.Lifecycle.Spots(), nil
}
