package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/chirino/collection-service/internal/config"
	registrymigrate "github.com/chirino/collection-service/internal/registry/migrate"
	registrystore "github.com/chirino/collection-service/internal/registry/store"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "mongo",
		Loader: func(ctx context.Context) (registrystore.CollectionStore, error) {
			cfg := config.FromContext(ctx)
			opts := options.Client().ApplyURI(cfg.DBURL)
			if cfg.DBMaxOpenConns > 0 {
				opts.SetMaxPoolSize(uint64(cfg.DBMaxOpenConns))
			}
			if cfg.DBMaxIdleConns > 0 {
				opts.SetMinPoolSize(uint64(cfg.DBMaxIdleConns))
			}
			client, err := mongo.Connect(opts)
			if err != nil {
				return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
			}
			if err := client.Ping(ctx, nil); err != nil {
				return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
			}
			return New(client, databaseName(cfg)), nil
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &mongoMigrator{}})
}

func databaseName(cfg *config.Config) string {
	if cfg.MongoDatabase != "" {
		return cfg.MongoDatabase
	}
	return "collection_service"
}

// indexes lists the indexes every collection needs. The unique index on
// chat history backs the strictly increasing created_at invariant.
var indexes = map[string][]mongo.IndexModel{
	collectionsColl: {
		{Keys: bson.D{{Key: "created_by", Value: 1}, {Key: "created_at", Value: -1}}},
	},
	permissionsColl: {
		{
			Keys:    bson.D{{Key: "collection_id", Value: 1}, {Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "user_id", Value: 1}}},
	},
	logsColl: {
		{Keys: bson.D{{Key: "collection_id", Value: 1}, {Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}},
	},
	chatsColl: {
		{Keys: bson.D{{Key: "collection_id", Value: 1}, {Key: "created_at", Value: 1}}},
	},
	historyColl: {
		{
			Keys:    bson.D{{Key: "chat_id", Value: 1}, {Key: "created_at", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("unique_history_instant"),
		},
	},
	relationsColl: {
		{Keys: bson.D{{Key: "collection_id", Value: 1}, {Key: "created_at", Value: 1}}},
	},
	nodesColl: {
		{Keys: bson.D{{Key: "relation_id", Value: 1}, {Key: "created_at", Value: 1}}},
	},
	edgesColl: {
		{Keys: bson.D{{Key: "relation_id", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "source", Value: 1}}},
		{Keys: bson.D{{Key: "target", Value: 1}}},
	},
}

type mongoMigrator struct{}

func (m *mongoMigrator) Name() string { return "mongo-schema" }
func (m *mongoMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.DatastoreMigrateAtStart {
		return nil
	}
	if cfg.DatastoreType != "mongo" {
		return nil // skip if not using mongo
	}

	log.Info("Running migration", "name", m.Name())
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.DBURL))
	if err != nil {
		return fmt.Errorf("mongo migration: failed to connect: %w", err)
	}
	defer client.Disconnect(ctx)

	if err := EnsureIndexes(ctx, client.Database(databaseName(cfg))); err != nil {
		return err
	}
	log.Info("MongoDB schema migration complete")
	return nil
}

// EnsureIndexes creates every collection and its indexes. Collections are
// created up front so transactions never need to create one implicitly.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	existing, err := db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("mongo migration: failed to list collections: %w", err)
	}
	have := map[string]bool{}
	for _, name := range existing {
		have[name] = true
	}
	for name, models := range indexes {
		if !have[name] {
			if err := db.CreateCollection(ctx, name); err != nil {
				return fmt.Errorf("mongo migration: failed to create %s: %w", name, err)
			}
		}
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("mongo migration: failed to create indexes for %s: %w", name, err)
		}
	}
	return nil
}

// MongoStore implements CollectionStore using MongoDB. Multi-document
// operations run inside session transactions, which need a replica set.
// The permission log collection is append-only by convention: the store
// exposes no operation that updates or deletes a log document.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// New wraps a connected client.
func New(client *mongo.Client, database string) *MongoStore {
	return &MongoStore{client: client, db: client.Database(database)}
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

// InTx runs fn in a session transaction. The driver retries fn on transient
// write conflicts; conflicts that outlive the retries surface as ConflictError.
func (s *MongoStore) InTx(ctx context.Context, fn func(ctx context.Context, tx registrystore.Tx) error) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return translateError("start session", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sctx context.Context) (any, error) {
		return nil, fn(sctx, s)
	})
	return translateError("transaction", err)
}

func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}

// transientTransactionLabel marks server errors after which the whole
// transaction may be retried.
const transientTransactionLabel = "TransientTransactionError"

func translateError(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		notFound   *registrystore.NotFoundError
		validation *registrystore.ValidationError
		conflict   *registrystore.ConflictError
		authz      *registrystore.AuthorizationError
		storage    *registrystore.StorageError
	)
	switch {
	case errors.As(err, &notFound), errors.As(err, &validation), errors.As(err, &conflict),
		errors.As(err, &authz), errors.As(err, &storage):
		return err
	case mongo.IsDuplicateKeyError(err):
		return &registrystore.ConflictError{Message: op + ": duplicate key", Code: "duplicate_key"}
	}
	var labeled mongo.LabeledError
	if errors.As(err, &labeled) && labeled.HasErrorLabel(transientTransactionLabel) {
		return &registrystore.ConflictError{Message: op + ": write conflict", Code: "write_conflict"}
	}
	return &registrystore.StorageError{Op: op, Err: err}
}

var _ registrystore.CollectionStore = (*MongoStore)(nil)
