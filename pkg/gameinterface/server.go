package gameinterface

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ktgames/mining/internal/dispatcher"
	"github.com/ktgames/mining/internal/util"
)

const (
	// maxLineSize bounds a single request line, terminator included.
	maxLineSize    = 1 << 20
	readBufferSize = 64 * 1024
)

var errLineTooLong = errors.New("line too long")

// HandleLine dispatches one request line and returns the reply.
func (s *Server) HandleLine(line string) string {
	line = strings.TrimSpace(line)
	if line == "" {
		return formatDispatchResponse("", s.version, nil)
	}
	if line == TimestampCommand {
		return formatDispatchResponse(line, getTimestamp(), nil)
	}

	command, args := util.SplitCommand(line)

	d := s.Dispatcher()
	if d == nil || !d.HasHandler(command) {
		return formatDispatchResponse(command, nil, fmt.Errorf("no handler registered for %s", command))
	}

	result, err := d.Dispatch(dispatcher.Event{
		Command:   command,
		Args:      args,
		Timestamp: time.Now(),
	})
	return formatDispatchResponse(command, result, err)
}

// Serve reads request lines from r until EOF or ctx is done, writing one reply
// per line. An oversized line is answered with an error and skipped.
func (s *Server) Serve(ctx context.Context, r io.Reader) error {
	br := bufio.NewReaderSize(r, readBufferSize)

	type request struct {
		line string
		err  error
	}
	requests := make(chan request)
	errc := make(chan error, 1)
	go func() {
		defer close(requests)
		for {
			line, err := readLine(br)
			if err != nil && !errors.Is(err, errLineTooLong) {
				if !errors.Is(err, io.EOF) {
					errc <- err
				}
				return
			}
			select {
			case requests <- request{line: line, err: err}:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req, ok := <-requests:
			if !ok {
				select {
				case err := <-errc:
					return err
				default:
					return nil
				}
			}
			reply := formatDispatchResponse("", nil, req.err)
			if req.err == nil {
				reply = s.HandleLine(req.line)
			}
			if err := s.write(reply); err != nil {
				return err
			}
		}
	}
}

// readLine returns the next line without its terminator. A line longer than
// maxLineSize is consumed up to its newline and reported as errLineTooLong.
func readLine(br *bufio.Reader) (string, error) {
	var buf []byte
	tooLong := false
	for {
		chunk, err := br.ReadSlice('\n')
		if !tooLong {
			if len(buf)+len(chunk) > maxLineSize {
				tooLong = true
				buf = nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && (len(buf) > 0 || tooLong):
		case err != nil:
			return "", err
		}
		if tooLong {
			return "", errLineTooLong
		}
		return strings.TrimRight(string(buf), "\r\n"), nil
	}
}

// Callback sends an unsolicited message to the game.
func (s *Server) Callback(function string, data ...any) error {
	msg := []any{"callback", function}
	msg = append(msg, data...)
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding callback %s: %w", function, err)
	}
	return s.write(string(b))
}

func (s *Server) write(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.out == nil {
		return nil
	}
	_, err := io.WriteString(s.out, line+"\n")
	return err
}

// formatDispatchResponse formats the dispatcher result for the game
func formatDispatchResponse(command string, result any, err error) string {
	if err != nil {
		msg, _ := json.Marshal(err.Error())
		return fmt.Sprintf(`["error", %s]`, msg)
	}
	if result == nil {
		return `["ok"]`
	}
	b, merr := json.Marshal(result)
	if merr != nil {
		msg, _ := json.Marshal(fmt.Sprintf("%s: cannot encode result: %v", command, merr))
		return fmt.Sprintf(`["error", %s]`, msg)
	}
	return fmt.Sprintf(`["ok", %s]`, b)
}

func getTimestamp() string {
	return fmt.Sprintf("%d", time.Now().UTC().UnixNano())
}
