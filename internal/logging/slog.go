package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// console is where records go when no log file is configured. Stdout carries
// protocol replies, so it is never used for logs.
var console io.Writer = os.Stderr

// ServiceName is the instrumentation scope used for OTel log records.
const ServiceName = "mining"

// SlogManager owns the slog logger shared by the lifecycle and the command
// handlers.
type SlogManager struct {
	logger *slog.Logger
	base   slog.Handler

	logProvider *sdklog.LoggerProvider
}

func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

func utcTime(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey && len(groups) == 0 {
		if t, ok := a.Value.Any().(time.Time); ok {
			a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
		}
	}
	return a
}

// Setup (re)builds the logger. Text records go to file, or to the console
// when file is nil. gelf, if set, receives JSON records. A nil provider
// disables OTel export.
func (m *SlogManager) Setup(file io.Writer, level string, provider *sdklog.LoggerProvider, gelf io.Writer) {
	opts := &slog.HandlerOptions{Level: parseLevel(level), ReplaceAttr: utcTime}
	m.logProvider = provider

	out := file
	if out == nil {
		out = console
	}
	handlers := []slog.Handler{slog.NewTextHandler(out, opts)}
	if gelf != nil {
		handlers = append(handlers, slog.NewJSONHandler(gelf, opts))
	}
	if provider != nil {
		handlers = append(handlers, otelslog.NewHandler(ServiceName, otelslog.WithLoggerProvider(provider)))
	}

	m.base = NewMultiHandler(handlers...)
	m.logger = slog.New(m.base)
	m.logger.Info("logging initialized", "level", level)
}

// SetContextProvider makes every later record carry the attributes returned
// by p under the "live" group. Loggers handed out before the call are
// unaffected.
func (m *SlogManager) SetContextProvider(p ContextProvider) {
	if m.base == nil {
		return
	}
	m.logger = slog.New(NewContextHandler(m.base, p))
}

// Logger returns the configured logger, or slog.Default before Setup.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Flush pushes pending OTel log records.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider == nil {
		return nil
	}
	return m.logProvider.ForceFlush(ctx)
}
