package logging

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// DispatcherLogger adapts zerolog.Logger to the dispatcher.Logger interface.
type DispatcherLogger struct {
	logger zerolog.Logger
}

func NewDispatcherLogger(logger zerolog.Logger) *DispatcherLogger {
	return &DispatcherLogger{logger: logger}
}

func (l *DispatcherLogger) Debug(msg string, keysAndValues ...any) {
	withFields(l.logger.Debug(), keysAndValues).Msg(msg)
}

func (l *DispatcherLogger) Info(msg string, keysAndValues ...any) {
	withFields(l.logger.Info(), keysAndValues).Msg(msg)
}

func (l *DispatcherLogger) Error(msg string, keysAndValues ...any) {
	withFields(l.logger.Error(), keysAndValues).Msg(msg)
}

// withFields appends key/value pairs with typed zerolog fields. A trailing
// key without a value is dropped; non-string keys are formatted with %v.
func withFields(e *zerolog.Event, kv []any) *zerolog.Event {
	if e == nil {
		return nil
	}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		switch v := kv[i+1].(type) {
		case error:
			e = e.AnErr(key, v)
		case time.Duration:
			e = e.Dur(key, v)
		case string:
			e = e.Str(key, v)
		case int:
			e = e.Int(key, v)
		case bool:
			e = e.Bool(key, v)
		default:
			e = e.Interface(key, v)
		}
	}
	return e
}
