// Package monitor periodically writes the service status to a file.
package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/ktgames/mining/internal/lifecycle"
	"github.com/ktgames/mining/internal/session"
	"github.com/ktgames/mining/pkg/core"
)

// DefaultInterval is how often the status file is rewritten.
const DefaultInterval = time.Second

// Source is the lifecycle as seen by the monitor.
type Source interface {
	Snapshot() lifecycle.Snapshot
	Spots() []lifecycle.SpotStatus
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Lifecycle      Source
	SessionContext *session.Context
	QueueLengths   func() map[string]int
	StatusPath     string
	Interval       time.Duration
	Logger         *slog.Logger
}

// Status is one status report.
type Status struct {
	Time         time.Time              `json:"time"`
	Session      core.Session           `json:"session"`
	Spots        lifecycle.Snapshot     `json:"spots"`
	WriteQueues  map[string]int         `json:"writeQueues,omitempty"`
	SpotStatuses []lifecycle.SpotStatus `json:"spotStatuses,omitempty"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
	now       func() time.Time
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	return &Service{
		deps: deps,
		now:  time.Now,
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetProgramStatus returns the current status. Per-spot detail is only
// included when spots is set.
func (s *Service) GetProgramStatus(spots bool) Status {
	st := Status{Time: s.now()}
	if s.deps.SessionContext != nil {
		st.Session = s.deps.SessionContext.Get()
	}
	if s.deps.Lifecycle != nil {
		st.Spots = s.deps.Lifecycle.Snapshot()
		if spots {
			st.SpotStatuses = s.deps.Lifecycle.Spots()
		}
	}
	if s.deps.QueueLengths != nil {
		st.WriteQueues = s.deps.QueueLengths()
	}
	return st
}

// Lines renders a status the way the status file shows it.
func (st Status) Lines() []string {
	var out []string
	for _, v := range []any{st.Session, st.Spots, st.WriteQueues} {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			data = []byte(fmt.Sprintf(`{"error": %q}`, err.Error()))
		}
		out = append(out, string(data))
	}
	return out
}

// WriteStatus replaces the content of f with the current status.
func (s *Service) WriteStatus(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	for _, line := range s.GetProgramStatus(false).Lines() {
		if _, err := f.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	return nil
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}

	statusFile, err := os.Create(s.deps.StatusPath)
	if err != nil {
		return fmt.Errorf("error creating status file: %w", err)
	}

	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})

	go s.loop(statusFile, s.stopChan, s.done)
	return nil
}

func (s *Service) loop(statusFile *os.File, stop, done chan struct{}) {
	defer close(done)
	defer statusFile.Close()

	logger := s.deps.Logger
	logger.Debug("Starting status monitor", "path", s.deps.StatusPath)

	ticker := time.NewTicker(s.deps.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if s.deps.SessionContext != nil && !s.deps.SessionContext.Active() {
				continue
			}
			if err := s.WriteStatus(statusFile); err != nil {
				logger.Error("Error writing status file", "error", err)
			}
		}
	}
}

// Stop stops the status monitor and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}
