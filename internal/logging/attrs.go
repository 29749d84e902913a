package logging

import (
	"log/slog"

	"github.com/ktgames/mining/pkg/core"
)

// SpotAttr groups the identifying fields of a spot under "spot".
func SpotAttr(s core.MineralSpot) slog.Attr {
	return slog.Group("spot",
		slog.Uint64("id", uint64(s.ID)),
		slog.String("name", s.Name),
		slog.Uint64("generation", uint64(s.Generation)),
	)
}

// SessionAttrs describes the recorded session for the live log context.
// An inactive session yields no attributes.
func SessionAttrs(s core.Session) []slog.Attr {
	if s.UUID == "" {
		return nil
	}
	return []slog.Attr{
		slog.String("world", s.WorldName),
		slog.String("session", s.UUID),
	}
}
