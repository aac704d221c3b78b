package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/collection-service/internal/config"
	registrymigrate "github.com/chirino/collection-service/internal/registry/migrate"
	registrystore "github.com/chirino/collection-service/internal/registry/store"
	"github.com/chirino/collection-service/internal/security"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "postgres",
		Loader: func(ctx context.Context) (registrystore.CollectionStore, error) {
			cfg := config.FromContext(ctx)
			db, err := gorm.Open(postgres.Open(cfg.DBURL), GormConfig())
			if err != nil {
				return nil, fmt.Errorf("failed to connect to postgres: %w", err)
			}
			sqlDB, err := db.DB()
			if err != nil {
				return nil, fmt.Errorf("failed to get underlying db: %w", err)
			}
			sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
			sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
			if security.DBPoolMaxConnections != nil {
				security.DBPoolMaxConnections.Set(float64(cfg.DBMaxOpenConns))
			}

			// Periodically update the open connections gauge.
			go func() {
				ticker := time.NewTicker(15 * time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						if security.DBPoolOpenConnections != nil {
							security.DBPoolOpenConnections.Set(float64(sqlDB.Stats().OpenConnections))
						}
					}
				}
			}()

			return New(db), nil
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &postgresMigrator{}})
}

// GormConfig returns the gorm settings shared by every relational dialect.
func GormConfig() *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

type postgresMigrator struct{}

func (m *postgresMigrator) Name() string { return "postgres-schema" }
func (m *postgresMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.DatastoreMigrateAtStart {
		return nil
	}
	if cfg.DatastoreType != "" && cfg.DatastoreType != "postgres" {
		return nil // skip if not using postgres
	}
	log.Info("Running migration", "name", m.Name())
	db, err := gorm.Open(postgres.Open(cfg.DBURL), GormConfig())
	if err != nil {
		return fmt.Errorf("migration: failed to connect: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if _, err := sqlDB.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migration: failed to execute schema: %w", err)
	}
	log.Info("Postgres schema migration complete")
	return nil
}

// Store implements CollectionStore using GORM. It serves every relational
// dialect the service ships with; only postgres takes row locks.
type Store struct {
	*queries
	db *gorm.DB
}

// Classifier maps dialect-specific driver errors to typed store errors. It
// returns nil for errors it does not recognise.
type Classifier func(op string, err error) error

// Option customises a Store.
type Option func(*queries)

// WithClassifier installs a dialect-specific error classifier.
func WithClassifier(c Classifier) Option {
	return func(q *queries) { q.classify = c }
}

// New wraps an open gorm connection.
func New(db *gorm.DB, opts ...Option) *Store {
	q := &queries{db: db, rowLocks: db.Dialector.Name() == "postgres"}
	for _, opt := range opts {
		opt(q)
	}
	return &Store{queries: q, db: db}
}

// DB exposes the underlying connection for tests and migrations.
func (s *Store) DB() *gorm.DB { return s.db }

// InTx runs fn inside one database transaction.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx registrystore.Tx) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &queries{db: tx, rowLocks: s.rowLocks, classify: s.classify})
	}, s.txOptions())
	return s.translate("transaction", err)
}

func (s *Store) txOptions() *sql.TxOptions {
	if s.rowLocks {
		return &sql.TxOptions{Isolation: sql.LevelReadCommitted}
	}
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ registrystore.CollectionStore = (*Store)(nil)
