// Package memory stores a session in memory and exports it as a JSON report
// when the session ends.
package memory

import (
	"errors"
	"sync"
	"time"

	"github.com/ktgames/mining/internal/config"
	"github.com/ktgames/mining/pkg/core"
)

// ErrNoSession is returned by record calls made outside a session.
var ErrNoSession = errors.New("no session started")

// Backend stores session data in memory and exports to JSON
type Backend struct {
	cfg     config.MemoryConfig
	history *core.SessionHistory

	idCounter      uint
	lastExportPath string
	now            func() time.Time
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{cfg: cfg, now: time.Now}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartSession begins recording a new session, dropping anything recorded before.
func (b *Backend) StartSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.history = &core.SessionHistory{Session: *s}
	b.idCounter = 0
	b.lastExportPath = ""
	return nil
}

// EndSession stamps the end time and exports the report.
func (b *Backend) EndSession() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.history == nil {
		return ErrNoSession
	}
	if b.history.Session.EndTime.IsZero() {
		b.history.Session.EndTime = b.now()
	}
	path, err := Export(b.cfg, *b.history)
	if err != nil {
		return err
	}
	b.lastExportPath = path
	return nil
}

func (b *Backend) nextID() uint {
	b.idCounter++
	return b.idCounter
}

// RecordSpotGeneration stores a type draw.
func (b *Backend) RecordSpotGeneration(e *core.SpotGeneration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.history == nil {
		return ErrNoSession
	}
	e.ID = b.nextID()
	e.SessionID = b.history.Session.ID
	b.history.Generations = append(b.history.Generations, *e)
	return nil
}

// RecordConversion stores a conversion.
func (b *Backend) RecordConversion(e *core.ConversionEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.history == nil {
		return ErrNoSession
	}
	e.ID = b.nextID()
	e.SessionID = b.history.Session.ID
	b.history.Conversions = append(b.history.Conversions, *e)
	return nil
}

// RecordProgress stores a progress sample.
func (b *Backend) RecordProgress(e *core.ProgressEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.history == nil {
		return ErrNoSession
	}
	e.ID = b.nextID()
	e.SessionID = b.history.Session.ID
	b.history.Progress = append(b.history.Progress, *e)
	return nil
}

// RecordDepletion stores a depletion.
func (b *Backend) RecordDepletion(e *core.DepletionEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.history == nil {
		return ErrNoSession
	}
	e.ID = b.nextID()
	e.SessionID = b.history.Session.ID
	b.history.Depletions = append(b.history.Depletions, *e)
	return nil
}

// History returns a copy of what has been recorded so far.
func (b *Backend) History() core.SessionHistory {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.history == nil {
		return core.SessionHistory{}
	}
	h := *b.history
	h.Generations = append([]core.SpotGeneration(nil), h.Generations...)
	h.Conversions = append([]core.ConversionEvent(nil), h.Conversions...)
	h.Progress = append([]core.ProgressEvent(nil), h.Progress...)
	h.Depletions = append([]core.DepletionEvent(nil), h.Depletions...)
	return h
}

// GetExportedFilePath returns the path of the last exported report.
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// GetExportMetadata returns the session information the upload needs.
func (b *Backend) GetExportMetadata() core.UploadMetadata {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.history == nil {
		return core.UploadMetadata{}
	}
	s := b.history.Session
	meta := core.UploadMetadata{
		WorldName:   s.WorldName,
		SessionUUID: s.UUID,
		Tag:         s.Tag,
	}
	if !s.EndTime.IsZero() {
		meta.SessionDuration = s.EndTime.Sub(s.StartTime).Seconds()
	}
	return meta
}
