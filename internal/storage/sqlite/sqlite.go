// Package sqlitestorage implements the storage.Backend interface using an in-memory
// SQLite database with periodic disk dumps via VACUUM INTO.
package sqlitestorage

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ktgames/mining/internal/database"
	gormstorage "github.com/ktgames/mining/internal/storage/gorm"
	"gorm.io/gorm"
)

// Config holds configuration for the SQLite storage backend.
type Config struct {
	DumpInterval time.Duration
	DumpPath     string // Path for periodic VACUUM INTO dumps
}

// Backend wraps the GORM backend for SQLite-specific behavior.
type Backend struct {
	*gormstorage.Backend
	db       *gorm.DB
	cfg      Config
	log      *slog.Logger
	stopChan chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// New creates a new SQLite storage backend on db, or on a fresh in-memory
// database when db is nil.
func New(cfg Config, db *gorm.DB, logger *slog.Logger) (*Backend, error) {
	if db == nil {
		var err error
		db, err = database.GetSqliteDB("")
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory SQLite DB: %w", err)
		}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Backend{
		Backend:  gormstorage.New(gormstorage.Dependencies{DB: db, Logger: logger}),
		db:       db,
		cfg:      cfg,
		log:      logger.With("component", "storage.sqlite"),
		stopChan: make(chan struct{}),
	}, nil
}

// Init initializes the embedded GORM backend and starts the dump goroutine.
func (b *Backend) Init() error {
	if err := b.Backend.Init(); err != nil {
		return err
	}

	if b.cfg.DumpPath != "" && b.cfg.DumpInterval > 0 {
		b.wg.Add(1)
		go b.dumpLoop()
	}

	return nil
}

// Close stops the dump goroutine, closes the embedded GORM backend and
// writes a last dump.
func (b *Backend) Close() error {
	b.once.Do(func() { close(b.stopChan) })
	b.wg.Wait()
	if err := b.Backend.Close(); err != nil {
		return err
	}
	if b.cfg.DumpPath == "" {
		return nil
	}
	return b.Dump()
}

// EndSession flushes the session and dumps it to disk.
func (b *Backend) EndSession() error {
	if err := b.Backend.EndSession(); err != nil {
		return err
	}
	if b.cfg.DumpPath == "" {
		return nil
	}
	return b.Dump()
}

// Dump flushes pending records and writes the database to DumpPath.
func (b *Backend) Dump() error {
	if err := b.Flush(); err != nil {
		return err
	}
	start := time.Now()
	if err := database.DumpMemoryDBToDisk(b.db, b.cfg.DumpPath); err != nil {
		return err
	}
	b.log.Debug("Dumped to disk", "path", b.cfg.DumpPath, "duration", time.Since(start))
	return nil
}

// GetExportedFilePath returns the dump file, for upload.
func (b *Backend) GetExportedFilePath() string {
	return b.cfg.DumpPath
}

// dumpLoop periodically dumps the in-memory SQLite database to disk via VACUUM INTO.
// VACUUM INTO creates a point-in-time snapshot, so no pause mechanism is needed.
func (b *Backend) dumpLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.cfg.DumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			if err := b.Dump(); err != nil {
				b.log.Error("Error dumping to disk", "error", err)
			}
		}
	}
}
