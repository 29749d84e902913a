package storage_test

import (
	"errors"
	"testing"

	"github.com/ktgames/mining/internal/config"
	"github.com/ktgames/mining/internal/storage"
	gormstorage "github.com/ktgames/mining/internal/storage/gorm"
	"github.com/ktgames/mining/internal/storage/memory"
	"github.com/ktgames/mining/internal/storage/postgres"
	sqlitestorage "github.com/ktgames/mining/internal/storage/sqlite"
	"github.com/ktgames/mining/internal/storage/websocket"
	"github.com/ktgames/mining/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time interface checks.
var (
	_ storage.Backend    = (*gormstorage.Backend)(nil)
	_ storage.Backend    = (*postgres.Backend)(nil)
	_ storage.Backend    = (*sqlitestorage.Backend)(nil)
	_ storage.Backend    = (*memory.Backend)(nil)
	_ storage.Backend    = (*websocket.Backend)(nil)
	_ storage.Backend    = (*storage.Multi)(nil)
	_ storage.Uploadable = (*memory.Backend)(nil)
)

type fakeBackend struct {
	fail      error
	id        uint
	started   []core.Session
	progress  []*core.ProgressEvent
	depletion int
	ended     bool
}

func (f *fakeBackend) Init() error  { return f.fail }
func (f *fakeBackend) Close() error { return nil }
func (f *fakeBackend) StartSession(s *core.Session) error {
	s.ID = f.id
	f.started = append(f.started, *s)
	return f.fail
}
func (f *fakeBackend) EndSession() error {
	f.ended = true
	return f.fail
}
func (f *fakeBackend) RecordSpotGeneration(*core.SpotGeneration) error { return f.fail }
func (f *fakeBackend) RecordConversion(*core.ConversionEvent) error    { return f.fail }
func (f *fakeBackend) RecordProgress(e *core.ProgressEvent) error {
	e.ID = 77
	f.progress = append(f.progress, e)
	return f.fail
}
func (f *fakeBackend) RecordDepletion(*core.DepletionEvent) error {
	f.depletion++
	return f.fail
}

func TestMulti_SkipsNil(t *testing.T) {
	m := storage.NewMulti(nil, &fakeBackend{}, nil)
	assert.Len(t, m.Backends(), 1)
}

func TestMulti_FanOut(t *testing.T) {
	a := &fakeBackend{id: 0}
	b := &fakeBackend{id: 12}
	m := storage.NewMulti(a, b)

	s := &core.Session{UUID: "u"}
	require.NoError(t, m.StartSession(s))
	assert.Equal(t, uint(12), s.ID, "first non-zero id wins")
	assert.Len(t, a.started, 1)
	assert.Len(t, b.started, 1)

	e := &core.ProgressEvent{Amount: 1}
	require.NoError(t, m.RecordProgress(e))
	assert.Zero(t, e.ID, "backends get copies")
	assert.NotSame(t, a.progress[0], b.progress[0])

	require.NoError(t, m.EndSession())
	assert.True(t, a.ended)
	assert.True(t, b.ended)
}

func TestMulti_JoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	ok := &fakeBackend{}
	bad := &fakeBackend{fail: boom}
	m := storage.NewMulti(bad, ok)

	err := m.RecordDepletion(&core.DepletionEvent{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, ok.depletion, "later backends still run")
	assert.ErrorIs(t, m.Init(), boom)
}

func TestMulti_Uploadables(t *testing.T) {
	mem := memory.New(config.MemoryConfig{OutputDir: t.TempDir()})
	m := storage.NewMulti(&fakeBackend{}, mem)

	ups := m.Uploadables()
	require.Len(t, ups, 1)
	assert.Same(t, mem, ups[0])
}

func TestNewBackend(t *testing.T) {
	b, err := storage.NewBackend(config.StorageConfig{Type: "memory"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &memory.Backend{}, b)

	b, err = storage.NewBackend(config.StorageConfig{Type: "postgres"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &postgres.Backend{}, b)

	_, err = storage.NewBackend(config.StorageConfig{Type: "tape"}, nil)
	assert.ErrorContains(t, err, "unknown storage type: tape")

	_, err = storage.NewBackend(config.StorageConfig{Type: "websocket"}, nil)
	assert.Error(t, err)
}

func TestNewBackend_Combined(t *testing.T) {
	b, err := storage.NewBackend(config.StorageConfig{
		Type:      "memory, websocket",
		WebSocket: config.WebSocketConfig{URL: "ws://localhost:1"},
	}, nil)
	require.NoError(t, err)

	m, ok := b.(*storage.Multi)
	require.True(t, ok)
	require.Len(t, m.Backends(), 2)
	assert.IsType(t, &websocket.Backend{}, m.Backends()[1])
}
