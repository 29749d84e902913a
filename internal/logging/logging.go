// Package logging builds the service loggers: slog for the lifecycle and
// command handlers, zerolog for the database, influx and dispatcher plumbing.
// Both write to the same log file and optionally to Graylog.
package logging

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type level struct {
	slog slog.Level
	zero zerolog.Level
}

// levels maps config names to both logger levels. Unknown names mean info.
var levels = map[string]level{
	"TRACE": {slog.LevelDebug, zerolog.TraceLevel},
	"DEBUG": {slog.LevelDebug, zerolog.DebugLevel},
	"INFO":  {slog.LevelInfo, zerolog.InfoLevel},
	"WARN":  {slog.LevelWarn, zerolog.WarnLevel},
	"ERROR": {slog.LevelError, zerolog.ErrorLevel},
}

func lookupLevel(name string) level {
	if l, ok := levels[strings.ToUpper(strings.TrimSpace(name))]; ok {
		return l
	}
	return levels["INFO"]
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(name string) slog.Level {
	return lookupLevel(name).slog
}

// ParseZerologLevel converts a string log level to zerolog.Level.
func ParseZerologLevel(name string) zerolog.Level {
	return lookupLevel(name).zero
}

// LogFilePath returns the log file for a service run started at start.
func LogFilePath(logsDir, serviceName string, start time.Time) string {
	return filepath.Join(
		logsDir,
		fmt.Sprintf("%s.%s.log", serviceName, start.Format("20060102_150405")),
	)
}
