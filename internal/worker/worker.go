// Package worker binds dispatcher commands to the parser, the interaction
// component and the lifecycle orchestrator.
package worker

import (
	"errors"
	"log/slog"

	"github.com/ktgames/mining/internal/clock"
	"github.com/ktgames/mining/internal/lifecycle"
	"github.com/ktgames/mining/internal/parser"
	"github.com/ktgames/mining/internal/session"
	"github.com/ktgames/mining/internal/storage"
	"github.com/ktgames/mining/pkg/core"
)

// ErrNoActiveSession is returned when a session command needs a running session.
var ErrNoActiveSession = errors.New("no active session")

// Lifecycle is the orchestrator as seen by command handlers.
type Lifecycle interface {
	HandleInstanceHit(core.InstanceHitEvent) error
	HandleConvertAt(core.ConvertAtEvent) error
	HandleRemoval(core.RemovalEvent) error
	HandleHits([]core.HitResult) error
	Snapshot() lifecycle.Snapshot
	Spots() []lifecycle.SpotStatus
}

// Tracer performs view traces. Hits found by a trace reach the lifecycle
// through the tracer's own listeners.
type Tracer interface {
	RayCast(view core.Viewpoint) (core.InstanceHitEvent, bool)
	LineTraceAndSphereTrace(view core.Viewpoint) []core.HitResult
}

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	Parser         *parser.Parser
	Lifecycle      Lifecycle
	Tracer         Tracer
	SessionContext *session.Context
	Clock          clock.Clock
	Logger         *slog.Logger

	// SessionDefaults fill values a session start command leaves out.
	SessionDefaults session.Options

	// OnSessionEnd runs after the backend has closed a session.
	OnSessionEnd func(core.Session)
}

// Manager owns the command handlers.
type Manager struct {
	deps    Dependencies
	backend storage.Backend
	log     *slog.Logger
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies, backend storage.Backend) *Manager {
	if deps.Clock == nil {
		deps.Clock = clock.System{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.SessionContext == nil {
		deps.SessionContext = session.NewContext()
	}
	if deps.Parser == nil {
		deps.Parser = parser.NewParser(deps.Logger, deps.Clock)
	}
	return &Manager{
		deps:    deps,
		backend: backend,
		log:     deps.Logger.With("component", "worker"),
	}
}

// QueueLengthProvider is an optional interface that backends can implement
// to expose pending write counts for monitoring.
type QueueLengthProvider interface {
	QueueLengths() map[string]int
}

// QueueLengths sums the pending writes of every backend that reports them.
// Returns an empty map if no backend supports this.
func (m *Manager) QueueLengths() map[string]int {
	out := make(map[string]int)

	backends := []storage.Backend{m.backend}
	if multi, ok := m.backend.(*storage.Multi); ok {
		backends = multi.Backends()
	}
	for _, b := range backends {
		p, ok := b.(QueueLengthProvider)
		if !ok {
			continue
		}
		for k, v := range p.QueueLengths() {
			out[k] += v
		}
	}
	return out
}

// StartSession ends any running session, then begins a new one with opts and
// registers it with the backend.
func (m *Manager) StartSession(opts session.Options) (core.Session, error) {
	if m.deps.SessionContext.Active() {
		if err := m.EndSession(); err != nil {
			m.log.Warn("failed to end previous session", "error", err)
		}
	}

	s := m.deps.SessionContext.Begin(opts, m.deps.Clock.Now())
	if m.backend != nil {
		if err := m.backend.StartSession(&s); err != nil {
			return s, err
		}
		m.deps.SessionContext.SetID(s.ID)
	}
	m.log.Info("session started", "uuid", s.UUID, "world", s.WorldName, "id", s.ID)
	return s, nil
}

// EndSession closes the running session in the backend and runs OnSessionEnd.
func (m *Manager) EndSession() error {
	s, ok := m.deps.SessionContext.End(m.deps.Clock.Now())
	if !ok {
		return ErrNoActiveSession
	}
	if m.backend != nil {
		if err := m.backend.EndSession(); err != nil {
			return err
		}
	}
	m.log.Info("session ended", "uuid", s.UUID, "duration", s.EndTime.Sub(s.StartTime))
	if m.deps.OnSessionEnd != nil {
		m.deps.OnSessionEnd(s)
	}
	return nil
}
