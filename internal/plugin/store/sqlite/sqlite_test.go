package sqlite_test

import (
	"context"
	"testing"

	"github.com/chirino/collection-service/internal/config"
	"github.com/chirino/collection-service/internal/model"
	"github.com/chirino/collection-service/internal/plugin/store/sqlite"
	registrystore "github.com/chirino/collection-service/internal/registry/store"
	"github.com/chirino/collection-service/internal/testutil/storetest"
	"github.com/chirino/collection-service/internal/testutil/testsqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	store := testsqlite.Open(t)

	storetest.Run(t, ctx, store)

	t.Run("permission logs are append-only", func(t *testing.T) {
		entry := &model.PermissionLogEntry{
			CollectionID: uuid.New(), UserID: "bob", Action: model.ActionRevoke, PerformedBy: "alice",
		}
		require.NoError(t, store.AppendLog(ctx, entry))

		err := store.DB().WithContext(ctx).Exec("UPDATE permission_logs SET user_id = 'mallory' WHERE id = ?", entry.ID).Error
		require.ErrorContains(t, err, "append-only")
		err = store.DB().WithContext(ctx).Exec("DELETE FROM permission_logs WHERE id = ?", entry.ID).Error
		require.ErrorContains(t, err, "append-only")

		logs, err := store.ListLogs(ctx, entry.CollectionID)
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Equal(t, "bob", logs[0].UserID)
	})
}

func TestLoaderRegistered(t *testing.T) {
	_ = sqlite.ForceImport

	cfg := config.DefaultConfig()
	cfg.DatastoreType = "sqlite"
	cfg.DBURL = testsqlite.DSN()
	ctx := config.WithContext(context.Background(), &cfg)

	loader, err := registrystore.Select("sqlite")
	require.NoError(t, err)
	store, err := loader(ctx)
	require.NoError(t, err)
	defer store.Close()

	list, err := store.ListCollections(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, list)
}
