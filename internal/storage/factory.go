package storage

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ktgames/mining/internal/config"
	"github.com/ktgames/mining/internal/storage/memory"
	"github.com/ktgames/mining/internal/storage/postgres"
	sqlitestorage "github.com/ktgames/mining/internal/storage/sqlite"
	"github.com/ktgames/mining/internal/storage/websocket"
)

// NewBackend creates a storage backend based on configuration. A comma
// separated type such as "memory,websocket" records to all of them.
func NewBackend(cfg config.StorageConfig, logger *slog.Logger) (Backend, error) {
	types := strings.Split(cfg.Type, ",")
	if len(types) == 1 {
		return newSingle(strings.TrimSpace(types[0]), cfg, logger)
	}

	var backends []Backend
	for _, t := range types {
		b, err := newSingle(strings.TrimSpace(t), cfg, logger)
		if err != nil {
			return nil, err
		}
		backends = append(backends, b)
	}
	return NewMulti(backends...), nil
}

func newSingle(kind string, cfg config.StorageConfig, logger *slog.Logger) (Backend, error) {
	switch kind {
	case "postgres":
		return postgres.New(nil, logger, 0), nil
	case "sqlite":
		return sqlitestorage.New(sqlitestorage.Config{
			DumpInterval: cfg.SQLite.DumpInterval,
			DumpPath:     cfg.SQLite.DumpPath,
		}, nil, logger)
	case "memory":
		return memory.New(cfg.Memory), nil
	case "websocket":
		if cfg.WebSocket.URL == "" {
			return nil, fmt.Errorf("websocket storage needs storage.websocket.url")
		}
		return websocket.New(websocket.Config{
			URL:    cfg.WebSocket.URL,
			Secret: cfg.WebSocket.Secret,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", kind)
	}
}
