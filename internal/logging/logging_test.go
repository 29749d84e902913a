package logging

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestLogFilePath(t *testing.T) {
	start := time.Date(2026, 2, 12, 21, 38, 36, 0, time.UTC)

	assert.Equal(t,
		filepath.Join("logs", "mining_server.20260212_213836.log"),
		LogFilePath("logs", "mining_server", start))
	assert.Equal(t,
		filepath.Join("/var", "log", "mining", "mining_server.20260212_213836.log"),
		LogFilePath(filepath.Join("/var", "log", "mining"), "mining_server", start))
}

func TestLevels(t *testing.T) {
	tests := []struct {
		in   string
		slog slog.Level
		zero zerolog.Level
	}{
		{"trace", slog.LevelDebug, zerolog.TraceLevel},
		{"DEBUG", slog.LevelDebug, zerolog.DebugLevel},
		{" info ", slog.LevelInfo, zerolog.InfoLevel},
		{"Warn", slog.LevelWarn, zerolog.WarnLevel},
		{"error", slog.LevelError, zerolog.ErrorLevel},
		{"", slog.LevelInfo, zerolog.InfoLevel},
		{"verbose", slog.LevelInfo, zerolog.InfoLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.slog, parseLevel(tt.in), tt.in)
		assert.Equal(t, tt.zero, ParseZerologLevel(tt.in), tt.in)
	}
}

func TestNewZerolog_FileAndGelf(t *testing.T) {
	var file, gelf bytes.Buffer
	logger := NewZerolog(&file, "info", &gelf)

	logger.Info().Str("table", "sessions").Msg("migrated")
	logger.Debug().Msg("hidden")

	assert.Contains(t, file.String(), "migrated")
	assert.Contains(t, file.String(), "table=sessions")
	assert.NotContains(t, file.String(), "hidden")
	assert.Contains(t, gelf.String(), `"message":"migrated"`)
}

func TestNewZerolog_NoFileUsesConsole(t *testing.T) {
	con := swapConsole(t)

	logger := NewZerolog(nil, "debug", nil)
	logger.Debug().Msg("connected")

	assert.Contains(t, con.String(), "connected")
}
