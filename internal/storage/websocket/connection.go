package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/ktgames/mining/pkg/streaming"
)

const (
	defaultQueueSize = 10_000
	maxRedials       = 10
	maxBackoff       = 30 * time.Second
	writeWait        = 10 * time.Second
	ackTimeout       = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = pongWait * 9 / 10
)

var errConnClosed = errors.New("websocket connection closed")

// connection owns one socket at a time. A single supervisor goroutine writes
// queued records in order, redials when the socket fails and replays the
// session header on every new socket.
type connection struct {
	dialer *ws.Dialer
	target string
	logger *slog.Logger

	queue   chan []byte
	dropped atomic.Uint64

	mu      sync.Mutex
	conn    *ws.Conn
	replay  []byte
	waiters map[string]chan struct{}

	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}
	running bool
}

func newConnection(logger *slog.Logger, queueSize int) *connection {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &connection{
		dialer:  &ws.Dialer{Proxy: ws.DefaultDialer.Proxy, HandshakeTimeout: writeWait},
		logger:  logger,
		queue:   make(chan []byte, queueSize),
		waiters: make(map[string]chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		stopped: make(chan struct{}),
	}
}

// dial opens the first socket and starts the supervisor.
func (c *connection) dial(rawURL, secret string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid websocket URL: %w", err)
	}
	q := u.Query()
	q.Set("secret", secret)
	u.RawQuery = q.Encode()
	c.target = u.String()

	conn, err := c.open()
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.running = true
	c.mu.Unlock()
	go c.supervise(conn)
	return nil
}

func (c *connection) open() (*ws.Conn, error) {
	conn, _, err := c.dialer.DialContext(c.ctx, c.target, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return conn, nil
}

func (c *connection) supervise(conn *ws.Conn) {
	defer close(c.stopped)
	for {
		err := c.serve(conn)
		_ = conn.Close()
		if c.ctx.Err() != nil {
			return
		}
		c.logger.Warn("WebSocket connection lost", "error", err)

		if conn = c.redial(); conn == nil {
			return
		}
	}
}

// serve pumps the queue into conn until the socket fails or the connection
// is closed.
func (c *connection) serve(conn *ws.Conn) error {
	readErr := make(chan error, 1)
	go func() { readErr <- c.readAcks(conn) }()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return errConnClosed
		case err := <-readErr:
			return err
		case <-ping.C:
			if err := c.write(conn, ws.PingMessage, nil); err != nil {
				return err
			}
		case data := <-c.queue:
			if err := c.write(conn, ws.TextMessage, data); err != nil {
				return err
			}
		}
	}
}

func (c *connection) write(conn *ws.Conn, kind int, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(kind, data)
}

// readAcks releases the waiter for every ack the server sends.
func (c *connection) readAcks(conn *ws.Conn) error {
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return err
	}
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var ack streaming.AckMessage
		if err := json.Unmarshal(msg, &ack); err != nil || ack.Type != "ack" {
			c.logger.Debug("Ignoring server message", "raw", string(msg))
			continue
		}
		c.mu.Lock()
		if ch, ok := c.waiters[ack.For]; ok {
			close(ch)
			delete(c.waiters, ack.For)
		}
		c.mu.Unlock()
	}
}

// redial retries with exponential backoff and writes the session header
// before anything else. It returns nil when it gives up or is closed.
func (c *connection) redial() *ws.Conn {
	backoff := time.Second
	for attempt := 1; attempt <= maxRedials; attempt++ {
		select {
		case <-c.ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)

		conn, err := c.open()
		if err != nil {
			c.logger.Warn("WebSocket redial failed", "attempt", attempt, "error", err)
			continue
		}

		c.mu.Lock()
		header := c.replay
		c.mu.Unlock()
		if header != nil {
			if err := c.write(conn, ws.TextMessage, header); err != nil {
				c.logger.Warn("Session header replay failed", "attempt", attempt, "error", err)
				_ = conn.Close()
				continue
			}
		}
		c.logger.Info("WebSocket reconnected", "attempt", attempt)
		return conn
	}
	c.logger.Error("WebSocket gave up reconnecting", "attempts", maxRedials)
	return nil
}

// setReplay stores the message written first on every new socket.
func (c *connection) setReplay(data []byte) {
	c.mu.Lock()
	c.replay = data
	c.mu.Unlock()
}

// send queues data without blocking. Records that do not fit are counted
// and dropped.
func (c *connection) send(data []byte) {
	select {
	case c.queue <- data:
	default:
		if c.dropped.Add(1) == 1 {
			c.logger.Warn("WebSocket queue full, dropping records")
		}
	}
}

// sendAndWait queues data and blocks until the server acks msgType.
func (c *connection) sendAndWait(data []byte, msgType string, timeout time.Duration) error {
	ack := make(chan struct{})
	c.mu.Lock()
	c.waiters[msgType] = ack
	c.mu.Unlock()

	c.send(data)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ack:
		return nil
	case <-timer.C:
		err := fmt.Errorf("timeout waiting for ack of %q", msgType)
		c.forget(msgType, ack)
		return err
	case <-c.ctx.Done():
		c.forget(msgType, ack)
		return fmt.Errorf("%w while waiting for ack of %q", errConnClosed, msgType)
	}
}

func (c *connection) forget(msgType string, ack chan struct{}) {
	c.mu.Lock()
	if c.waiters[msgType] == ack {
		delete(c.waiters, msgType)
	}
	c.mu.Unlock()
}

// close sends a close frame, stops the supervisor and waits for it.
func (c *connection) close() error {
	c.mu.Lock()
	if c.ctx.Err() != nil {
		c.mu.Unlock()
		return nil
	}
	conn, running := c.conn, c.running
	c.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.WriteControl(ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
	}
	c.cancel()
	if running {
		<-c.stopped
	}
	if errors.Is(err, ws.ErrCloseSent) {
		return nil
	}
	return err
}
