package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chirino/collection-service/internal/config"
	"github.com/chirino/collection-service/internal/model"
	"github.com/chirino/collection-service/internal/plugin/store/postgres"
	registrymigrate "github.com/chirino/collection-service/internal/registry/migrate"
	registrystore "github.com/chirino/collection-service/internal/registry/store"
	"github.com/chirino/collection-service/internal/testutil/storetest"
	"github.com/chirino/collection-service/internal/testutil/testpg"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func setupTestStore(t *testing.T) (*postgres.Store, context.Context) {
	t.Helper()

	dbURL := testpg.StartPostgres(t)

	cfg := config.DefaultConfig()
	cfg.DBURL = dbURL
	ctx, cancel := context.WithCancel(config.WithContext(context.Background(), &cfg))
	t.Cleanup(cancel)

	// Ensure postgres store plugin is registered
	_ = postgres.ForceImport

	require.NoError(t, registrymigrate.RunAll(ctx))

	loader, err := registrystore.Select("postgres")
	require.NoError(t, err)
	store, err := loader(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	pg, ok := store.(*postgres.Store)
	require.True(t, ok)
	return pg, ctx
}

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	store, ctx := setupTestStore(t)

	storetest.Run(t, ctx, store)

	t.Run("permission logs are append-only", func(t *testing.T) {
		entry := &model.PermissionLogEntry{
			CollectionID: uuid.New(), UserID: "bob", Action: model.ActionRevoke, PerformedBy: "alice",
		}
		require.NoError(t, store.AppendLog(ctx, entry))

		for _, stmt := range []string{
			"UPDATE permission_logs SET user_id = 'mallory' WHERE id = ?",
			"DELETE FROM permission_logs WHERE id = ?",
		} {
			err := store.DB().WithContext(ctx).Exec(stmt, entry.ID).Error
			var pgErr *pgconn.PgError
			require.True(t, errors.As(err, &pgErr), "statement %q should fail", stmt)
			assert.Equal(t, "55000", pgErr.Code)
		}
		err := store.DB().WithContext(ctx).Exec("TRUNCATE permission_logs").Error
		require.Error(t, err)

		logs, err := store.ListLogs(ctx, entry.CollectionID)
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Equal(t, "bob", logs[0].UserID)
	})

	t.Run("row lock serializes version advances", func(t *testing.T) {
		col := storetest.NewCollection(t, ctx, store, "alice", 0)
		chat := storetest.NewChat(t, ctx, store, col.ID, "alice")

		const workers = 8
		var g errgroup.Group
		for i := 0; i < workers; i++ {
			g.Go(func() error {
				return store.InTx(ctx, func(ctx context.Context, tx registrystore.Tx) error {
					locked, err := tx.LockChat(ctx, chat.ID)
					if err != nil {
						return err
					}
					time.Sleep(5 * time.Millisecond)
					return tx.AdvanceHistoryVersion(ctx, chat.ID, locked.HistoryVersion)
				})
			})
		}
		require.NoError(t, g.Wait())

		got, err := store.GetChat(ctx, chat.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(workers), got.HistoryVersion)
	})

	t.Run("foreign keys map to conflict", func(t *testing.T) {
		err := store.CreateChat(ctx, &model.CollectionChat{
			CollectionID: uuid.New(), Title: "orphan", CreatedBy: "alice", UpdatedBy: "alice",
		})
		var ce *registrystore.ConflictError
		require.True(t, errors.As(err, &ce), "got %v", err)
		assert.Equal(t, "foreign_key", ce.Code)
	})
}
