// Package postgres implements the storage.Backend interface on PostgreSQL by
// wrapping the GORM backend. It owns the connection when none is supplied.
package postgres

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ktgames/mining/internal/database"
	gormstorage "github.com/ktgames/mining/internal/storage/gorm"
	"gorm.io/gorm"
)

// Opener returns the Postgres connection. Tests replace it.
type Opener func() (*gorm.DB, error)

// Backend wraps the GORM backend for Postgres-specific behavior.
type Backend struct {
	*gormstorage.Backend
	open          Opener
	logger        *slog.Logger
	flushInterval time.Duration
	ownsDB        bool
}

// New creates a Postgres backend. A nil db connects with the db.* settings during Init.
func New(db *gorm.DB, logger *slog.Logger, flushInterval time.Duration) *Backend {
	b := &Backend{
		open:          database.GetPostgresDB,
		logger:        logger,
		flushInterval: flushInterval,
	}
	if db != nil {
		b.open = func() (*gorm.DB, error) { return db, nil }
	} else {
		b.ownsDB = true
	}
	return b
}

// Init connects, checks the connection and starts the GORM backend.
func (b *Backend) Init() error {
	db, err := b.open()
	if err != nil {
		return fmt.Errorf("failed to connect to Postgres DB: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql interface: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to validate connection: %w", err)
	}
	if b.ownsDB {
		sqlDB.SetMaxOpenConns(10)
	}

	b.Backend = gormstorage.New(gormstorage.Dependencies{
		DB:            db,
		Logger:        b.logger,
		FlushInterval: b.flushInterval,
	})
	return b.Backend.Init()
}

// Close stops the writer and closes a connection the backend opened itself.
func (b *Backend) Close() error {
	if b.Backend == nil {
		return nil
	}
	err := b.Backend.Close()
	if b.ownsDB {
		if sqlDB, dbErr := b.DB().DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
	}
	return err
}
