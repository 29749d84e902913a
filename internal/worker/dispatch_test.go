package worker

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ktgames/mining/internal/clock"
	"github.com/ktgames/mining/internal/dispatcher"
	"github.com/ktgames/mining/internal/lifecycle"
	"github.com/ktgames/mining/internal/session"
	"github.com/ktgames/mining/internal/storage"
	"github.com/ktgames/mining/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements dispatcher.Logger for testing
type mockLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *mockLogger) Debug(msg string, keysAndValues ...any) { l.add("DEBUG", msg, keysAndValues) }
func (l *mockLogger) Info(msg string, keysAndValues ...any)  { l.add("INFO", msg, keysAndValues) }
func (l *mockLogger) Error(msg string, keysAndValues ...any) { l.add("ERROR", msg, keysAndValues) }

func (l *mockLogger) add(level, msg string, kv []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("%s: %s %v", level, msg, kv))
}

// mockLifecycle records every event it receives.
type mockLifecycle struct {
	mu        sync.Mutex
	hits      []core.InstanceHitEvent
	sweeps    [][]core.HitResult
	removals  []core.RemovalEvent
	converts  []core.ConvertAtEvent
	failWith  error
	snapshot  lifecycle.Snapshot
	spotState []lifecycle.SpotStatus
}

func (l *mockLifecycle) HandleInstanceHit(ev core.InstanceHitEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hits = append(l.hits, ev)
	return l.failWith
}

func (l *mockLifecycle) HandleConvertAt(ev core.ConvertAtEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.converts = append(l.converts, ev)
	return l.failWith
}

func (l *mockLifecycle) HandleRemoval(ev core.RemovalEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.removals = append(l.removals, ev)
	return l.failWith
}

func (l *mockLifecycle) HandleHits(hits []core.HitResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweeps = append(l.sweeps, hits)
	return l.failWith
}

func (l *mockLifecycle) Snapshot() lifecycle.Snapshot  { return l.snapshot }
func (l *mockLifecycle) Spots() []lifecycle.SpotStatus { return l.spotState }

// mockTracer returns canned trace results.
type mockTracer struct {
	views    []core.Viewpoint
	instance core.Handle
	hits     []core.HitResult
}

func (t *mockTracer) RayCast(view core.Viewpoint) (core.InstanceHitEvent, bool) {
	t.views = append(t.views, view)
	if t.instance == 0 {
		return core.InstanceHitEvent{}, false
	}
	return core.InstanceHitEvent{Instance: t.instance}, true
}

func (t *mockTracer) LineTraceAndSphereTrace(view core.Viewpoint) []core.HitResult {
	t.views = append(t.views, view)
	return t.hits
}

// mockBackend implements storage.Backend for testing
type mockBackend struct {
	mu        sync.Mutex
	sessions  []core.Session
	ended     int
	startErr  error
	queueLens map[string]int
}

func (b *mockBackend) Init() error  { return nil }
func (b *mockBackend) Close() error { return nil }

func (b *mockBackend) StartSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.startErr != nil {
		return b.startErr
	}
	s.ID = uint(len(b.sessions) + 1)
	b.sessions = append(b.sessions, *s)
	return nil
}

func (b *mockBackend) EndSession() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ended++
	return nil
}

func (b *mockBackend) RecordSpotGeneration(*core.SpotGeneration) error { return nil }
func (b *mockBackend) RecordConversion(*core.ConversionEvent) error    { return nil }
func (b *mockBackend) RecordProgress(*core.ProgressEvent) error        { return nil }
func (b *mockBackend) RecordDepletion(*core.DepletionEvent) error      { return nil }

func (b *mockBackend) QueueLengths() map[string]int { return b.queueLens }

type fixture struct {
	d       *dispatcher.Dispatcher
	m       *Manager
	life    *mockLifecycle
	tracer  *mockTracer
	backend *mockBackend
	clock   *clock.Manual
	ctx     *session.Context
	ended   []core.Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	d, err := dispatcher.New(&mockLogger{})
	require.NoError(t, err)
	t.Cleanup(d.Close)

	f := &fixture{
		d:       d,
		life:    &mockLifecycle{},
		tracer:  &mockTracer{},
		backend: &mockBackend{},
		clock:   clock.NewManual(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)),
		ctx:     session.NewContext(),
	}
	f.m = NewManager(Dependencies{
		Lifecycle:       f.life,
		Tracer:          f.tracer,
		SessionContext:  f.ctx,
		Clock:           f.clock,
		SessionDefaults: session.Options{WorldName: "Quarry", ExtensionVersion: "1.2.3"},
		OnSessionEnd:    func(s core.Session) { f.ended = append(f.ended, s) },
	}, f.backend)
	f.m.RegisterHandlers(d)
	return f
}

func (f *fixture) dispatch(cmd string, args ...string) (any, error) {
	return f.d.Dispatch(dispatcher.Event{Command: cmd, Args: args, Timestamp: time.Now()})
}

func TestRegisterHandlers(t *testing.T) {
	f := newFixture(t)

	for _, cmd := range []string{
		":MINE:SESSION:START:",
		":MINE:SESSION:END:",
		":MINE:HIT:INSTANCE:",
		":MINE:HIT:",
		":MINE:REMOVAL:",
		":MINE:CONVERT:AT:",
		":MINE:RAYCAST:",
		":MINE:SWEEP:",
		":MINE:STATUS:",
		":MINE:SPOTS:",
	} {
		assert.True(t, f.d.HasHandler(cmd), cmd)
	}
}

func TestHandleInstanceHit(t *testing.T) {
	f := newFixture(t)

	_, err := f.dispatch(":MINE:HIT:INSTANCE:", "12")
	require.NoError(t, err)

	require.Len(t, f.life.hits, 1)
	assert.Equal(t, core.Handle(12), f.life.hits[0].Instance)
	assert.Equal(t, f.clock.Now(), f.life.hits[0].Time)
}

func TestHandleInstanceHit_Errors(t *testing.T) {
	f := newFixture(t)

	_, err := f.dispatch(":MINE:HIT:INSTANCE:")
	assert.Error(t, err)
	assert.Empty(t, f.life.hits, "parse failures never reach the lifecycle")

	f.life.failWith = lifecycle.ErrUnknownInstance
	_, err = f.dispatch(":MINE:HIT:INSTANCE:", "12")
	assert.ErrorIs(t, err, lifecycle.ErrUnknownInstance)
}

func TestHandleHits(t *testing.T) {
	f := newFixture(t)

	res, err := f.dispatch(":MINE:HIT:", "4", "0", "[1,1,1]", "[0,0,1]", "4", "1", "[2,2,2]", "[0,0,1]")
	require.NoError(t, err)
	assert.Equal(t, 2, res)

	require.Len(t, f.life.sweeps, 1)
	assert.Len(t, f.life.sweeps[0], 2)
}

func TestHandleRemoval(t *testing.T) {
	f := newFixture(t)

	res, err := f.dispatch(":MINE:REMOVAL:", "8", "2.5")
	require.NoError(t, err)
	assert.Equal(t, dispatcher.Queued, res)

	_, err = f.dispatch(":MINE:REMOVAL:", "8", "1.5")
	require.NoError(t, err)
	_, err = f.dispatch(":MINE:REMOVAL:", "8")
	require.NoError(t, err, "parse errors are logged by the lane worker")

	f.d.Close()
	require.Len(t, f.life.removals, 2)
	assert.Equal(t, 2.5, f.life.removals[0].Mass)
	assert.Equal(t, 1.5, f.life.removals[1].Mass)
}

func TestHandleConvertAt(t *testing.T) {
	f := newFixture(t)

	_, err := f.dispatch(":MINE:CONVERT:AT:", "[5,6,7]")
	require.NoError(t, err)
	require.Len(t, f.life.converts, 1)
	assert.Equal(t, core.Vec3{X: 5, Y: 6, Z: 7}, f.life.converts[0].Transform.Translation)

	f.life.failWith = lifecycle.ErrUnknownSpot
	_, err = f.dispatch(":MINE:CONVERT:AT:", "[5,6,7]")
	assert.ErrorIs(t, err, lifecycle.ErrUnknownSpot)
}

func TestHandleRayCast(t *testing.T) {
	f := newFixture(t)

	res, err := f.dispatch(":MINE:RAYCAST:", "[0,0,2]", "[1,0,0]")
	require.NoError(t, err)
	assert.Nil(t, res, "a miss returns nothing")

	f.tracer.instance = 33
	res, err = f.dispatch(":MINE:RAYCAST:", "[0,0,2]", "[1,0,0]")
	require.NoError(t, err)
	assert.Equal(t, uint64(33), res)
	assert.Len(t, f.tracer.views, 2)

	_, err = f.dispatch(":MINE:RAYCAST:", "[0,0,2]")
	assert.Error(t, err)
}

func TestHandleSweep(t *testing.T) {
	f := newFixture(t)
	f.tracer.hits = []core.HitResult{{Handle: 1}, {Handle: 2}, {Handle: 3}}

	res, err := f.dispatch(":MINE:SWEEP:", "[0,0,2]", "[0,1,0]")
	require.NoError(t, err)
	assert.Equal(t, 3, res)
}

func TestHandleTrace_NoTracer(t *testing.T) {
	d, err := dispatcher.New(&mockLogger{})
	require.NoError(t, err)
	defer d.Close()

	m := NewManager(Dependencies{Lifecycle: &mockLifecycle{}}, nil)
	m.RegisterHandlers(d)

	_, err = d.Dispatch(dispatcher.Event{Command: ":MINE:RAYCAST:", Args: []string{"[0,0,0]", "[1,0,0]"}})
	assert.Error(t, err)
	_, err = d.Dispatch(dispatcher.Event{Command: ":MINE:SWEEP:", Args: []string{"[0,0,0]", "[1,0,0]"}})
	assert.Error(t, err)
}

func TestHandleStatusAndSpots(t *testing.T) {
	f := newFixture(t)
	f.life.snapshot = lifecycle.Snapshot{Spots: 3, Active: 2, Converting: 1}
	f.life.spotState = []lifecycle.SpotStatus{{ID: 1, Name: "a", State: "active"}}

	res, err := f.dispatch(":MINE:STATUS:")
	require.NoError(t, err)
	assert.Equal(t, f.life.snapshot, res)

	res, err = f.dispatch(":MINE:SPOTS:")
	require.NoError(t, err)
	assert.Equal(t, f.life.spotState, res)
}

func TestSessionStartAndEnd(t *testing.T) {
	f := newFixture(t)

	res, err := f.dispatch(":MINE:SESSION:START:", "Canyon", "weekly")
	require.NoError(t, err)
	assert.NotEmpty(t, res)

	require.Len(t, f.backend.sessions, 1)
	started := f.backend.sessions[0]
	assert.Equal(t, "Canyon", started.WorldName)
	assert.Equal(t, "weekly", started.Tag)
	assert.Equal(t, "1.2.3", started.ExtensionVersion)
	assert.Equal(t, res, started.UUID)
	assert.Equal(t, uint(1), f.ctx.Get().ID, "backend ID is stored in the context")

	f.clock.Advance(time.Minute)
	_, err = f.dispatch(":MINE:SESSION:END:")
	require.NoError(t, err)

	assert.Equal(t, 1, f.backend.ended)
	require.Len(t, f.ended, 1)
	assert.Equal(t, time.Minute, f.ended[0].EndTime.Sub(f.ended[0].StartTime))
	assert.False(t, f.ctx.Active())
}

func TestSessionStart_EndsPrevious(t *testing.T) {
	f := newFixture(t)

	_, err := f.dispatch(":MINE:SESSION:START:")
	require.NoError(t, err)
	_, err = f.dispatch(":MINE:SESSION:START:", "Canyon")
	require.NoError(t, err)

	assert.Len(t, f.backend.sessions, 2)
	assert.Equal(t, "Quarry", f.backend.sessions[0].WorldName)
	assert.Equal(t, 1, f.backend.ended)
	assert.Len(t, f.ended, 1)
	assert.True(t, f.ctx.Active())
}

func TestSessionEnd_WithoutSession(t *testing.T) {
	f := newFixture(t)

	_, err := f.dispatch(":MINE:SESSION:END:")
	assert.ErrorIs(t, err, ErrNoActiveSession)
	assert.Equal(t, 0, f.backend.ended)
}

func TestSessionStart_BackendError(t *testing.T) {
	f := newFixture(t)
	f.backend.startErr = errors.New("db down")

	_, err := f.dispatch(":MINE:SESSION:START:")
	assert.Error(t, err)
}

func TestQueueLengths(t *testing.T) {
	a := &mockBackend{queueLens: map[string]int{"progress_samples": 2}}
	b := &mockBackend{queueLens: map[string]int{"progress_samples": 3, "depletions": 1}}

	m := NewManager(Dependencies{}, storage.NewMulti(a, b))
	assert.Equal(t, map[string]int{"progress_samples": 5, "depletions": 1}, m.QueueLengths())

	single := NewManager(Dependencies{}, a)
	assert.Equal(t, map[string]int{"progress_samples": 2}, single.QueueLengths())

	none := NewManager(Dependencies{}, nil)
	assert.Empty(t, none.QueueLengths())
}
