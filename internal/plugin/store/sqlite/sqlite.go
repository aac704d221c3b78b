// Package sqlite registers an embedded single-file store. It shares the GORM
// queries of the postgres plugin and only differs in schema, connection
// handling and error classification.
package sqlite

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/chirino/collection-service/internal/config"
	"github.com/chirino/collection-service/internal/plugin/store/postgres"
	registrymigrate "github.com/chirino/collection-service/internal/registry/migrate"
	registrystore "github.com/chirino/collection-service/internal/registry/store"
	"github.com/mattn/go-sqlite3"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

//go:embed db/schema.sql
var schemaSQL string

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "sqlite",
		Loader: func(ctx context.Context) (registrystore.CollectionStore, error) {
			cfg := config.FromContext(ctx)
			return Open(ctx, cfg.DBURL, cfg.DatastoreMigrateAtStart)
		},
	})
	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &sqliteMigrator{}})
}

type sqliteMigrator struct{}

func (m *sqliteMigrator) Name() string { return "sqlite-schema" }
func (m *sqliteMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.DatastoreMigrateAtStart || cfg.DatastoreType != "sqlite" {
		return nil
	}
	log.Info("Running migration", "name", m.Name())
	store, err := Open(ctx, cfg.DBURL, true)
	if err != nil {
		return err
	}
	return store.Close()
}

// Open connects to dsn and optionally applies the schema. SQLite allows a
// single writer, so the pool is limited to one connection and transactions
// queue behind each other.
func Open(ctx context.Context, dsn string, migrate bool) (*postgres.Store, error) {
	db, err := gorm.Open(gormsqlite.Open(dsn), postgres.GormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if migrate {
		if _, err := sqlDB.ExecContext(ctx, schemaSQL); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("sqlite migration: failed to execute schema: %w", err)
		}
	}
	return postgres.New(db, postgres.WithClassifier(classify)), nil
}

// classify maps lock contention to ConflictError so callers may retry.
func classify(op string, err error) error {
	var sqlErr sqlite3.Error
	if !errors.As(err, &sqlErr) {
		return nil
	}
	switch sqlErr.Code {
	case sqlite3.ErrBusy, sqlite3.ErrLocked:
		return &registrystore.ConflictError{Message: op + ": " + sqlErr.Error(), Code: "busy"}
	}
	return nil
}
