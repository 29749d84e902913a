package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ktgames/mining/internal/config"
	"github.com/ktgames/mining/internal/database"
	"github.com/ktgames/mining/internal/datatable"
	gormstorage "github.com/ktgames/mining/internal/storage/gorm"
	"github.com/ktgames/mining/internal/storage/memory"
	"gorm.io/gorm"
)

const usage = `usage: mining_server [command]

With no command the server reads game commands from stdin.

commands:
  setupdb                     migrate the configured database
  seed <tables file>          copy a tables file into the database
  validate <tables file>      check a tables file for bad weights
  schema <output file>        write the JSON schema of the tables file
  export <session id>...      write JSON reports for recorded sessions
  migratebackups              move sqlite backups into Postgres`

// runCommand executes a one-shot maintenance command instead of serving.
func runCommand(args []string) error {
	switch strings.ToLower(args[0]) {
	case "setupdb":
		return setupDB()
	case "seed":
		if len(args) < 2 {
			return errors.New("no tables file provided")
		}
		return seedTables(resolvePath(args[1]))
	case "validate":
		if len(args) < 2 {
			return errors.New("no tables file provided")
		}
		return validateTables(resolvePath(args[1]))
	case "schema":
		if len(args) < 2 {
			return errors.New("no output file provided")
		}
		out := resolvePath(args[1])
		if err := datatable.WriteSchema(out); err != nil {
			return err
		}
		fmt.Println("wrote", out)
		return nil
	case "export":
		if len(args) < 2 {
			return errors.New("no session IDs provided")
		}
		return exportSessions(args[1:])
	case "migratebackups":
		if err := migrateBackupsSqlite(); err != nil {
			return err
		}
		Logger.Info("Finished migrating backups.")
		return nil
	case "help", "-h", "--help":
		fmt.Println(usage)
		return nil
	default:
		fmt.Fprintln(os.Stderr, usage)
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func connectDB() (*database.Manager, error) {
	m := database.NewManager(ZLogger)
	m.SqliteFilePath = resolvePath(config.GetStorageConfig().SQLite.DumpPath)
	if err := m.Connect(); err != nil {
		return nil, err
	}
	if err := m.Setup(); err != nil {
		m.Close()
		return nil, err
	}
	return m, nil
}

func setupDB() error {
	m, err := connectDB()
	if err != nil {
		return err
	}
	defer m.Close()
	Logger.Info("DB setup complete.", "dialect", m.DB.Dialector.Name())
	return nil
}

func seedTables(path string) error {
	src, err := datatable.OpenFile(path)
	if err != nil {
		return err
	}
	rows, err := src.Spots()
	if err != nil {
		return err
	}
	if issues := datatable.Validate(rows); len(issues) > 0 {
		for _, issue := range issues {
			Logger.Warn("Table issue", "issue", issue.String())
		}
	}

	m, err := connectDB()
	if err != nil {
		return err
	}
	defer m.Close()

	if err := datatable.NewDBSource(m.DB).Seed(src); err != nil {
		return fmt.Errorf("seeding tables: %w", err)
	}
	Logger.Info("Seeded tables", "path", path, "spots", len(rows))
	return nil
}

func validateTables(path string) error {
	src, err := datatable.OpenFile(path)
	if err != nil {
		return err
	}
	rows, err := src.Spots()
	if err != nil {
		return err
	}

	issues := datatable.Validate(rows)
	for _, issue := range issues {
		fmt.Println(issue.String())
	}
	if len(issues) > 0 {
		return fmt.Errorf("%d issues in %s", len(issues), path)
	}
	fmt.Printf("%s: %d spots ok\n", path, len(rows))
	return nil
}

// recordingDB opens the database sessions were recorded into. The sqlite
// dump is read when the recorder was configured for sqlite.
func recordingDB() (*gorm.DB, error) {
	cfg := config.GetStorageConfig()
	if strings.EqualFold(cfg.Type, "sqlite") && cfg.SQLite.DumpPath != "" {
		return database.GetSqliteDB(resolvePath(cfg.SQLite.DumpPath))
	}
	return database.GetPostgresDB()
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}

func exportSessions(ids []string) error {
	db, err := recordingDB()
	if err != nil {
		return fmt.Errorf("error opening database: %w", err)
	}
	defer closeDB(db)

	memCfg := config.GetStorageConfig().Memory
	memCfg.OutputDir = resolvePath(memCfg.OutputDir)

	var errs []error
	for _, raw := range ids {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid session ID %q: %w", raw, err))
			continue
		}
		h, err := gormstorage.LoadHistory(db, uint(id))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		path, err := memory.Export(memCfg, h)
		if err != nil {
			errs = append(errs, fmt.Errorf("session %d: %w", id, err))
			continue
		}
		Logger.Info("Exported session", "id", id, "path", path)
		fmt.Println(path)
	}
	return errors.Join(errs...)
}

// migrateBackupsSqlite copies every session found in sqlite dumps next to
// the configured dump path into Postgres, renaming each file once done.
func migrateBackupsSqlite() error {
	dir := HomeDir
	if p := config.GetStorageConfig().SQLite.DumpPath; p != "" {
		dir = filepath.Dir(resolvePath(p))
	}

	sqlitePaths, err := database.GetBackupDBPaths(dir)
	if err != nil {
		return fmt.Errorf("error getting backup database paths: %w", err)
	}
	postgresDB, err := database.GetPostgresDB()
	if err != nil {
		return fmt.Errorf("error getting postgres database: %w", err)
	}
	defer closeDB(postgresDB)
	if err := gormstorage.Migrate(postgresDB); err != nil {
		return err
	}

	successfulMigrations := make([]string, 0)
	for _, sqlitePath := range sqlitePaths {
		sqliteDB, err := database.GetSqliteDB(sqlitePath)
		if err != nil {
			return fmt.Errorf("error getting sqlite database: %w", err)
		}

		copied, err := migrateSessions(sqliteDB, postgresDB)
		closeDB(sqliteDB)
		if err != nil {
			return fmt.Errorf("error migrating %s: %w", sqlitePath, err)
		}
		Logger.Info("Migrated backup", "path", sqlitePath, "sessions", copied)

		if err := os.Rename(sqlitePath, sqlitePath+".migrated"); err != nil {
			Logger.Error("Error renaming sqlite file", "error", err)
		}
		successfulMigrations = append(successfulMigrations, sqlitePath)
	}

	Logger.Info("Successfully migrated backups",
		"count", len(successfulMigrations),
		"paths", successfulMigrations)
	return nil
}

// migrateSessions copies each session of src into dst and returns how many
// were new to dst.
func migrateSessions(src, dst *gorm.DB) (int, error) {
	var ids []uint
	if err := src.Table("sessions").Order("id").Pluck("id", &ids).Error; err != nil {
		return 0, fmt.Errorf("listing sessions: %w", err)
	}

	copied := 0
	for _, id := range ids {
		h, err := gormstorage.LoadHistory(src, id)
		if err != nil {
			return copied, err
		}
		newID, ok, err := gormstorage.CopySession(dst, h)
		if err != nil {
			return copied, fmt.Errorf("session %d: %w", id, err)
		}
		if ok {
			copied++
			Logger.Debug("Copied session", "from", id, "to", newID, "uuid", h.Session.UUID)
		}
	}
	return copied, nil
}
