package mongo_test

import (
	"context"
	"testing"
	"time"

	"github.com/chirino/collection-service/internal/config"
	"github.com/chirino/collection-service/internal/model"
	"github.com/chirino/collection-service/internal/plugin/store/mongo"
	registrymigrate "github.com/chirino/collection-service/internal/registry/migrate"
	registrystore "github.com/chirino/collection-service/internal/registry/store"
	"github.com/chirino/collection-service/internal/testutil/storetest"
	"github.com/chirino/collection-service/internal/testutil/testmongo"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) (registrystore.CollectionStore, context.Context) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.DBURL = testmongo.StartMongo(t)
	cfg.DatastoreType = "mongo"
	ctx := config.WithContext(context.Background(), &cfg)

	_ = mongo.ForceImport
	require.NoError(t, registrymigrate.RunAll(ctx))

	loader, err := registrystore.Select("mongo")
	require.NoError(t, err)
	store, err := loader(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, ctx
}

func TestMongoStore(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	store, ctx := setupTestStore(t)

	storetest.Run(t, ctx, store)

	t.Run("history keeps microsecond ordering", func(t *testing.T) {
		col := storetest.NewCollection(t, ctx, store, "alice", 0)
		chat := storetest.NewChat(t, ctx, store, col.ID, "alice")

		at := model.Timestamp(time.Now())
		for i := 0; i < 3; i++ {
			require.NoError(t, store.InsertHistoryEntry(ctx, &model.ChatHistoryEntry{
				ID:        uuid.New(),
				ChatID:    chat.ID,
				Role:      model.RoleAssistant,
				Content:   "same millisecond",
				CreatedBy: "alice",
				CreatedAt: at.Add(time.Duration(i) * time.Microsecond),
			}))
		}
		got, err := store.ListHistory(ctx, chat.ID, 10, 0)
		require.NoError(t, err)
		require.Len(t, got, 3)
		for i := 1; i < len(got); i++ {
			assert.True(t, got[i].CreatedAt.After(got[i-1].CreatedAt))
		}
	})
}
