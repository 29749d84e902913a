// Package gameinterface exposes the dispatcher to the game over a line
// protocol. Each request line is "COMMAND|arg|arg" and each reply is a JSON
// array starting with "ok" or "error". Unsolicited callbacks start with
// "callback".
package gameinterface

import (
	"io"
	"sync"

	"github.com/ktgames/mining/internal/dispatcher"
)

// TimestampCommand is answered directly with the current UTC time in nanoseconds.
const TimestampCommand = ":TIMESTAMP:"

// Server answers command lines from the game.
type Server struct {
	// version is returned for an empty request line
	version string

	// dispatcher handles event routing
	dispatcher *dispatcher.Dispatcher

	mu  sync.Mutex
	out io.Writer
}

// NewServer creates a server writing replies and callbacks to out.
func NewServer(d *dispatcher.Dispatcher, version string, out io.Writer) *Server {
	if version == "" {
		version = "No version set"
	}
	return &Server{version: version, dispatcher: d, out: out}
}

// SetDispatcher sets the event dispatcher for handling commands
func (s *Server) SetDispatcher(d *dispatcher.Dispatcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispatcher = d
}

// Dispatcher returns the configured dispatcher, or nil if not set
func (s *Server) Dispatcher() *dispatcher.Dispatcher {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dispatcher
}
