package logging

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

// NewZerolog builds the logger used by infrastructure managers (database,
// influx, dispatcher). Output goes to file as plain console text, or to a
// colored console when file is nil. gelf, if set, receives raw JSON.
func NewZerolog(file io.Writer, level string, gelf io.Writer) zerolog.Logger {
	text := zerolog.ConsoleWriter{Out: console, TimeFormat: time.RFC3339}
	if file != nil {
		text = zerolog.ConsoleWriter{Out: file, TimeFormat: time.RFC3339, NoColor: true}
	}

	writers := []io.Writer{text}
	if gelf != nil {
		writers = append(writers, gelf)
	}
	return zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(ParseZerologLevel(level)).
		With().Timestamp().Logger()
}
