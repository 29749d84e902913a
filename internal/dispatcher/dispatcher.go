// Package dispatcher routes game commands to their handlers. Handlers run
// inline by default; buffered handlers run on worker lanes so a slow handler
// never stalls the command loop.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	// ErrClosed is returned for buffered commands dispatched after Close.
	ErrClosed = errors.New("dispatcher closed")
	// ErrQueueFull is returned when a non-blocking lane has no room left.
	ErrQueueFull = errors.New("queue full")
)

// Queued is the result of a command handed to a worker lane.
const Queued = "queued"

// defaultLaneSize is used by Sharded when no Buffered size is given.
const defaultLaneSize = 256

// Event represents an incoming command from the engine event source.
type Event struct {
	Command   string
	Args      []string
	Timestamp time.Time
}

// HandlerFunc processes an event and returns a result.
type HandlerFunc func(Event) (any, error)

// KeyFunc names the entity an event belongs to. Sharded handlers keep the
// arrival order of events with equal keys.
type KeyFunc func(Event) string

// ArgKey keys events by their i-th argument. Events without it share the
// empty key.
func ArgKey(i int) KeyFunc {
	return func(e Event) string {
		if i < len(e.Args) {
			return e.Args[i]
		}
		return ""
	}
}

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*config)

type config struct {
	bufferSize int
	blocking   bool
	logged     bool
	shards     int
	key        KeyFunc
}

// Buffered makes the handler async with a queue of the given size.
func Buffered(size int) Option {
	return func(c *config) {
		c.bufferSize = size
	}
}

// Blocking makes a buffered handler block when the queue is full instead of dropping.
func Blocking() Option {
	return func(c *config) {
		c.blocking = true
	}
}

// Logged adds debug logging around every handled event.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

// Sharded spreads events over n lanes by key. Each lane has its own worker
// and the Buffered size (or a default) as capacity.
func Sharded(n int, key KeyFunc) Option {
	return func(c *config) {
		c.shards = n
		c.key = key
	}
}

// Dispatcher routes events to registered handlers.
type Dispatcher struct {
	logger  Logger
	metrics *metrics

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	lanes    map[string]*lane
	closed   bool
	workers  sync.WaitGroup
}

// lane is a queue drained by one worker. A retired lane accepts no events.
type lane struct {
	command string
	ch      chan Event
	retired bool
}

// New creates a new Dispatcher with the given logger.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		logger:   logger,
		handlers: make(map[string]HandlerFunc),
		lanes:    make(map[string]*lane),
	}
	m, err := newMetrics(d.laneLengths)
	if err != nil {
		return nil, err
	}
	d.metrics = m
	return d, nil
}

// Register adds a handler for the given command with optional configuration.
// Registering a command again replaces its handler and retires its old lanes
// once they have drained.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}

	handler := h
	if cfg.logged {
		handler = d.withLogging(command, handler)
	}

	var lanes map[string]*lane
	switch {
	case cfg.shards > 0 && cfg.key != nil:
		handler, lanes = d.sharded(command, cfg, handler)
	case cfg.bufferSize > 0:
		l := d.startLane(command, cfg.bufferSize, handler)
		lanes = map[string]*lane{command: l}
		handler = func(e Event) (any, error) {
			return d.enqueue(l, e, cfg.blocking)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for name, l := range d.lanes {
		if l.command == command {
			l.retire()
			delete(d.lanes, name)
		}
	}
	for name, l := range lanes {
		if d.closed {
			l.retire()
			continue
		}
		d.lanes[name] = l
	}
	d.handlers[command] = handler
}

// Dispatch routes an event to its registered handler.
func (d *Dispatcher) Dispatch(e Event) (any, error) {
	d.mu.RLock()
	h, ok := d.handlers[e.Command]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown command: %s", e.Command)
	}
	return h(e)
}

// HasHandler returns true if a handler is registered for the command.
func (d *Dispatcher) HasHandler(command string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.handlers[command]
	return ok
}

// Commands returns the registered command names, sorted.
func (d *Dispatcher) Commands() []string {
	d.mu.RLock()
	out := make([]string, 0, len(d.handlers))
	for cmd := range d.handlers {
		out = append(out, cmd)
	}
	d.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Close stops accepting buffered events and waits until every queued event
// has been handled. Synchronous handlers keep working.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, l := range d.lanes {
		l.retire()
	}
	d.mu.Unlock()

	d.workers.Wait()
}

func (d *Dispatcher) sharded(command string, cfg config, h HandlerFunc) (HandlerFunc, map[string]*lane) {
	size := cfg.bufferSize
	if size <= 0 {
		size = defaultLaneSize
	}
	lanes := make([]*lane, cfg.shards)
	named := make(map[string]*lane, cfg.shards)
	for i := range lanes {
		lanes[i] = d.startLane(command, size, h)
		named[fmt.Sprintf("%s#%d", command, i)] = lanes[i]
	}
	return func(e Event) (any, error) {
		i := xxhash.Sum64String(cfg.key(e)) % uint64(len(lanes))
		return d.enqueue(lanes[i], e, cfg.blocking)
	}, named
}

// startLane creates a queue drained by one worker, so events on a lane are
// handled in the order they were queued.
func (d *Dispatcher) startLane(command string, size int, h HandlerFunc) *lane {
	l := &lane{command: command, ch: make(chan Event, size)}
	cmdAttr := metric.WithAttributes(attribute.String("command", command))

	d.workers.Add(1)
	go func() {
		defer d.workers.Done()
		for e := range l.ch {
			if _, err := h(e); err != nil {
				d.logger.Error("buffered event failed", "command", command, "error", err)
			}
			d.metrics.processed.Add(context.Background(), 1, cmdAttr)
		}
	}()
	return l
}

// retire closes the queue. The caller holds d.mu.
func (l *lane) retire() {
	if !l.retired {
		l.retired = true
		close(l.ch)
	}
}

func (d *Dispatcher) enqueue(l *lane, e Event, blocking bool) (any, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed || l.retired {
		return nil, ErrClosed
	}

	if blocking {
		l.ch <- e
		return Queued, nil
	}
	select {
	case l.ch <- e:
		return Queued, nil
	default:
		d.metrics.dropped.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("command", l.command)))
		return nil, fmt.Errorf("%w: %s", ErrQueueFull, l.command)
	}
}

// laneLengths reports the current depth of every lane.
func (d *Dispatcher) laneLengths() map[string]int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]int, len(d.lanes))
	for name, l := range d.lanes {
		out[name] = len(l.ch)
	}
	return out
}

func (d *Dispatcher) withLogging(command string, h HandlerFunc) HandlerFunc {
	return func(e Event) (any, error) {
		start := time.Now()
		d.logger.Debug("handling event", "command", command, "args", len(e.Args))

		result, err := h(e)

		if err != nil {
			d.logger.Error("event failed", "command", command, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("event complete", "command", command, "duration", time.Since(start))
		}
		return result, err
	}
}
