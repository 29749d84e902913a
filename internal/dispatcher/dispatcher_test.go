package dispatcher

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// testLogger implements Logger for testing
type testLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *testLogger) add(level, msg string, kv []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("%s: %s %v", level, msg, kv))
}

func (l *testLogger) Debug(msg string, kv ...any) { l.add("DEBUG", msg, kv) }
func (l *testLogger) Info(msg string, kv ...any)  { l.add("INFO", msg, kv) }
func (l *testLogger) Error(msg string, kv ...any) { l.add("ERROR", msg, kv) }

func (l *testLogger) count(prefix string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, m := range l.messages {
		if strings.HasPrefix(m, prefix) {
			n++
		}
	}
	return n
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *testLogger) {
	t.Helper()
	logger := &testLogger{}
	d, err := New(logger)
	if err != nil {
		t.Fatalf("failed to create dispatcher: %v", err)
	}
	t.Cleanup(d.Close)
	return d, logger
}

func TestDispatcher_SyncHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var got Event
	d.Register(":MINE:STATUS:", func(e Event) (any, error) {
		got = e
		return "result", nil
	})

	result, err := d.Dispatch(Event{Command: ":MINE:STATUS:", Args: []string{"arg1"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "result" {
		t.Errorf("expected 'result', got %v", result)
	}
	if !reflect.DeepEqual(got.Args, []string{"arg1"}) {
		t.Errorf("handler saw args %v", got.Args)
	}
}

func TestDispatcher_UnknownCommand(t *testing.T) {
	d, _ := newTestDispatcher(t)

	_, err := d.Dispatch(Event{Command: ":UNKNOWN:"})
	if err == nil || err.Error() != "unknown command: :UNKNOWN:" {
		t.Errorf("expected unknown command error, got %v", err)
	}
}

func TestDispatcher_RegisterReplaces(t *testing.T) {
	d, _ := newTestDispatcher(t)

	d.Register(":VERSION:", func(e Event) (any, error) { return "1", nil })
	d.Register(":VERSION:", func(e Event) (any, error) { return "2", nil })

	result, _ := d.Dispatch(Event{Command: ":VERSION:"})
	if result != "2" {
		t.Errorf("expected the later handler, got %v", result)
	}
	if len(d.Commands()) != 1 {
		t.Errorf("expected one command, got %v", d.Commands())
	}
}

func TestDispatcher_BufferedHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var processed atomic.Int32
	d.Register(":MINE:HIT:", func(e Event) (any, error) {
		processed.Add(1)
		return nil, nil
	}, Buffered(100))

	for i := 0; i < 3; i++ {
		result, err := d.Dispatch(Event{Command: ":MINE:HIT:"})
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if result != Queued {
			t.Errorf("expected %q, got %v", Queued, result)
		}
	}
	d.Close()

	if processed.Load() != 3 {
		t.Errorf("expected 3 processed, got %d", processed.Load())
	}
}

func TestDispatcher_BufferedDropsWhenFull(t *testing.T) {
	d, _ := newTestDispatcher(t)

	block := make(chan struct{})
	started := make(chan struct{}, 1)
	d.Register(":MINE:HIT:", func(e Event) (any, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		return nil, nil
	}, Buffered(2))

	d.Dispatch(Event{Command: ":MINE:HIT:"})
	<-started
	d.Dispatch(Event{Command: ":MINE:HIT:"})
	d.Dispatch(Event{Command: ":MINE:HIT:"})

	_, err := d.Dispatch(Event{Command: ":MINE:HIT:"})
	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
	close(block)
}

func TestDispatcher_BufferedBlocking(t *testing.T) {
	d, _ := newTestDispatcher(t)

	block := make(chan struct{})
	started := make(chan struct{}, 1)
	d.Register(":MINE:HIT:", func(e Event) (any, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		return nil, nil
	}, Buffered(1), Blocking())

	d.Dispatch(Event{Command: ":MINE:HIT:"})
	<-started
	d.Dispatch(Event{Command: ":MINE:HIT:"})

	done := make(chan struct{})
	go func() {
		d.Dispatch(Event{Command: ":MINE:HIT:"})
		close(done)
	}()

	select {
	case <-done:
		t.Error("dispatch should have blocked")
	case <-time.After(50 * time.Millisecond):
	}

	close(block)
	<-done
}

func TestDispatcher_LoggedHandler(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register(":MINE:SPOTS:", func(e Event) (any, error) {
		return "ok", nil
	}, Logged())
	d.Dispatch(Event{Command: ":MINE:SPOTS:", Args: []string{"a", "b"}})

	if n := logger.count("DEBUG"); n != 2 {
		t.Errorf("expected 2 debug messages, got %d", n)
	}
}

func TestDispatcher_LoggedHandlerError(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register(":MINE:CONVERT:AT:", func(e Event) (any, error) {
		return nil, fmt.Errorf("no spot at transform")
	}, Logged())
	d.Dispatch(Event{Command: ":MINE:CONVERT:AT:"})

	if logger.count("ERROR") != 1 {
		t.Error("expected error log message")
	}
}

func TestDispatcher_LoggedBufferedLogsHandling(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register(":MINE:REMOVAL:", func(e Event) (any, error) {
		return "done", nil
	}, Buffered(8), Logged())

	result, err := d.Dispatch(Event{Command: ":MINE:REMOVAL:"})
	if err != nil || result != Queued {
		t.Fatalf("expected queued, got %v, %v", result, err)
	}
	d.Close()

	if n := logger.count("DEBUG"); n != 2 {
		t.Errorf("expected handling to be logged by the worker, got %d debug messages", n)
	}
}

func TestDispatcher_BufferedErrorsAreLogged(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register(":MINE:REMOVAL:", func(e Event) (any, error) {
		return nil, fmt.Errorf("stale handle")
	}, Buffered(4))

	if _, err := d.Dispatch(Event{Command: ":MINE:REMOVAL:"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d.Close()

	if logger.count("ERROR") != 1 {
		t.Errorf("expected one error log, got %v", logger.messages)
	}
}

func TestDispatcher_ShardedKeepsPerKeyOrder(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var mu sync.Mutex
	seen := make(map[string][]int)
	d.Register(":MINE:REMOVAL:", func(e Event) (any, error) {
		n, _ := strconv.Atoi(e.Args[1])
		mu.Lock()
		seen[e.Args[0]] = append(seen[e.Args[0]], n)
		mu.Unlock()
		return nil, nil
	}, Buffered(16), Blocking(), Sharded(4, ArgKey(0)))

	keys := []string{"101", "202", "303", "404", "505"}
	for i := 0; i < 50; i++ {
		for _, k := range keys {
			if _, err := d.Dispatch(Event{Command: ":MINE:REMOVAL:", Args: []string{k, strconv.Itoa(i)}}); err != nil {
				t.Fatalf("dispatch: %v", err)
			}
		}
	}
	d.Close()

	for _, k := range keys {
		got := seen[k]
		if len(got) != 50 {
			t.Fatalf("key %s: expected 50 events, got %d", k, len(got))
		}
		for i, n := range got {
			if n != i {
				t.Fatalf("key %s: event %d arrived at position %d", k, n, i)
			}
		}
	}
}

func TestDispatcher_ShardedCreatesLanes(t *testing.T) {
	d, _ := newTestDispatcher(t)

	d.Register(":MINE:REMOVAL:", func(e Event) (any, error) { return nil, nil }, Sharded(3, ArgKey(0)))

	lanes := d.laneLengths()
	if len(lanes) != 3 {
		t.Fatalf("expected 3 lanes, got %v", lanes)
	}
	for _, name := range []string{":MINE:REMOVAL:#0", ":MINE:REMOVAL:#1", ":MINE:REMOVAL:#2"} {
		if _, ok := lanes[name]; !ok {
			t.Errorf("missing lane %s", name)
		}
	}
}

func TestDispatcher_ReregisterRetiresOldLane(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var first, second atomic.Int32
	d.Register(":MINE:HIT:", func(e Event) (any, error) {
		first.Add(1)
		return nil, nil
	}, Buffered(10), Blocking())

	d.mu.RLock()
	stale := d.handlers[":MINE:HIT:"]
	d.mu.RUnlock()
	if _, err := stale(Event{Command: ":MINE:HIT:"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	d.Register(":MINE:HIT:", func(e Event) (any, error) {
		second.Add(1)
		return nil, nil
	}, Buffered(10), Blocking())

	// a caller still holding the old handler must not reach the closed queue
	if _, err := stale(Event{Command: ":MINE:HIT:"}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed from the old handler, got %v", err)
	}
	if _, err := d.Dispatch(Event{Command: ":MINE:HIT:"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	d.Close()
	if first.Load() != 1 || second.Load() != 1 {
		t.Errorf("expected one event per handler, got %d and %d", first.Load(), second.Load())
	}
}

func TestDispatcher_ReregisterShrinksShards(t *testing.T) {
	d, _ := newTestDispatcher(t)
	noop := func(e Event) (any, error) { return nil, nil }

	d.Register(":MINE:REMOVAL:", noop, Sharded(4, ArgKey(0)))
	d.Register(":MINE:REMOVAL:", noop, Sharded(2, ArgKey(0)))
	d.Register(":MINE:HIT:", noop, Buffered(1))

	lanes := d.laneLengths()
	if len(lanes) != 3 {
		t.Fatalf("expected 3 lanes, got %v", lanes)
	}
	for _, name := range []string{":MINE:REMOVAL:#0", ":MINE:REMOVAL:#1", ":MINE:HIT:"} {
		if _, ok := lanes[name]; !ok {
			t.Errorf("missing lane %s", name)
		}
	}
}

func TestDispatcher_ReregisterWhileDispatching(t *testing.T) {
	d, _ := newTestDispatcher(t)
	noop := func(e Event) (any, error) { return nil, nil }
	d.Register(":MINE:HIT:", noop, Buffered(64), Blocking())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_, err := d.Dispatch(Event{Command: ":MINE:HIT:"})
				if err != nil && !errors.Is(err, ErrClosed) {
					t.Errorf("unexpected error: %v", err)
					return
				}
			}
		}()
	}
	for i := 0; i < 50; i++ {
		d.Register(":MINE:HIT:", noop, Buffered(64), Blocking())
	}
	wg.Wait()
}

func TestDispatcher_RegisterAfterClose(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.Close()

	d.Register(":MINE:HIT:", func(e Event) (any, error) { return nil, nil }, Buffered(1))
	if _, err := d.Dispatch(Event{Command: ":MINE:HIT:"}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if len(d.laneLengths()) != 0 {
		t.Errorf("expected no lanes, got %v", d.laneLengths())
	}
}

func TestArgKey(t *testing.T) {
	key := ArgKey(1)
	if got := key(Event{Args: []string{"a", "b"}}); got != "b" {
		t.Errorf("expected b, got %q", got)
	}
	if got := key(Event{Args: []string{"a"}}); got != "" {
		t.Errorf("expected empty key, got %q", got)
	}
}

func TestDispatcher_CloseDrainsQueue(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var processed atomic.Int32
	d.Register(":MINE:HIT:", func(e Event) (any, error) {
		time.Sleep(time.Millisecond)
		processed.Add(1)
		return nil, nil
	}, Buffered(10), Blocking())

	for i := 0; i < 5; i++ {
		d.Dispatch(Event{Command: ":MINE:HIT:"})
	}
	d.Close()

	if processed.Load() != 5 {
		t.Errorf("expected 5 processed after close, got %d", processed.Load())
	}

	_, err := d.Dispatch(Event{Command: ":MINE:HIT:"})
	if !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}

	// second close is a no-op
	d.Close()
}

func TestDispatcher_SyncHandlerAfterClose(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.Register(":MINE:STATUS:", func(e Event) (any, error) { return "ok", nil })
	d.Close()

	result, err := d.Dispatch(Event{Command: ":MINE:STATUS:"})
	if err != nil || result != "ok" {
		t.Errorf("expected sync handler to keep working, got %v, %v", result, err)
	}
}

func TestDispatcher_HasHandlerAndCommands(t *testing.T) {
	d, _ := newTestDispatcher(t)
	noop := func(e Event) (any, error) { return nil, nil }
	d.Register(":MINE:STATUS:", noop)
	d.Register(":MINE:HIT:", noop)
	d.Register(":MINE:CONVERT:AT:", noop)

	if !d.HasHandler(":MINE:HIT:") || d.HasHandler(":MINE:SWEEP:") {
		t.Error("HasHandler disagrees with registrations")
	}
	want := []string{":MINE:CONVERT:AT:", ":MINE:HIT:", ":MINE:STATUS:"}
	if got := d.Commands(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}
