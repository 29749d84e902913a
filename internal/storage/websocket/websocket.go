// Package websocket streams session records to a remote server as they happen.
package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ktgames/mining/pkg/core"
	"github.com/ktgames/mining/pkg/streaming"
)

// Config holds WebSocket backend configuration.
type Config struct {
	URL        string
	Secret     string
	BufferSize int
}

// Backend streams session data over WebSocket.
// It implements storage.Backend but not storage.Uploadable.
type Backend struct {
	conn *connection
	cfg  Config
}

// New creates a new WebSocket storage backend.
func New(cfg Config, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		conn: newConnection(logger.With("component", "storage.websocket"), cfg.BufferSize),
		cfg:  cfg,
	}
}

// Init connects to the WebSocket server.
func (b *Backend) Init() error {
	if b.cfg.URL == "" {
		return fmt.Errorf("websocket URL not set")
	}
	return b.conn.dial(b.cfg.URL, b.cfg.Secret)
}

// Close disconnects from the WebSocket server.
func (b *Backend) Close() error {
	return b.conn.close()
}

// Dropped returns how many messages were dropped because the send buffer was full.
func (b *Backend) Dropped() uint64 {
	return b.conn.dropped.Load()
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env := streaming.Envelope{Type: msgType, Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// sendEnvelope marshals the payload into an Envelope and pushes it
// to the write loop (fire-and-forget).
func (b *Backend) sendEnvelope(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	b.conn.send(data)
	return nil
}

// StartSession sends the session header and waits for server ack.
func (b *Backend) StartSession(s *core.Session) error {
	data, err := marshalEnvelope(streaming.TypeStartSession, streaming.NewStartSession(*s))
	if err != nil {
		return err
	}

	b.conn.setReplay(data)
	return b.conn.sendAndWait(data, streaming.TypeStartSession, ackTimeout)
}

// EndSession sends end_session and waits for server ack.
func (b *Backend) EndSession() error {
	data, err := marshalEnvelope(streaming.TypeEndSession, nil)
	if err == nil {
		err = b.conn.sendAndWait(data, streaming.TypeEndSession, ackTimeout)
	}

	b.conn.setReplay(nil)

	return err
}

func (b *Backend) RecordSpotGeneration(e *core.SpotGeneration) error {
	return b.sendEnvelope(streaming.TypeSpotGeneration, streaming.NewSpotGeneration(*e))
}

func (b *Backend) RecordConversion(e *core.ConversionEvent) error {
	return b.sendEnvelope(streaming.TypeConversion, streaming.NewConversion(*e))
}

func (b *Backend) RecordProgress(e *core.ProgressEvent) error {
	return b.sendEnvelope(streaming.TypeProgress, streaming.NewProgress(*e))
}

func (b *Backend) RecordDepletion(e *core.DepletionEvent) error {
	return b.sendEnvelope(streaming.TypeDepletion, streaming.NewDepletion(*e))
}
