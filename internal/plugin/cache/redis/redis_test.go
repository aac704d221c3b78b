package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/chirino/collection-service/internal/config"
	"github.com/chirino/collection-service/internal/plugin/cache/redis"
	registrycache "github.com/chirino/collection-service/internal/registry/cache"
	"github.com/chirino/collection-service/internal/testutil/testredis"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOwnerCache_Miniredis(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	c, err := redis.LoadFromURLWithTTL(ctx, "redis://"+mr.Addr(), time.Minute)
	require.NoError(t, err)
	require.True(t, c.Available())

	id := uuid.New()
	owner, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, owner)

	require.NoError(t, c.Set(ctx, id, "alice", 0))
	owner, err = c.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "alice", owner)
	assert.Equal(t, time.Minute, mr.TTL("collection-owner:"+id.String()))

	mr.FastForward(2 * time.Minute)
	owner, err = c.Get(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, owner, "entry expires after its ttl")

	require.NoError(t, c.Set(ctx, id, "alice", time.Hour))
	require.NoError(t, c.Remove(ctx, id))
	owner, err = c.Get(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, owner)
}

func TestOwnerCache_LoaderRequiresURL(t *testing.T) {
	cfg := config.DefaultConfig()
	ctx := config.WithContext(context.Background(), &cfg)

	loader, err := registrycache.Select("redis")
	require.NoError(t, err)
	_, err = loader(ctx)
	assert.ErrorContains(t, err, "REDIS_URL")
}

func TestOwnerCache_Container(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	ctx := context.Background()
	cfg := config.DefaultConfig()
	cfg.RedisURL = testredis.StartRedis(t)
	ctx = config.WithContext(ctx, &cfg)

	loader, err := registrycache.Select("redis")
	require.NoError(t, err)
	c, err := loader(ctx)
	require.NoError(t, err)

	id := uuid.New()
	require.NoError(t, c.Set(ctx, id, "bob", 0))
	owner, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "bob", owner)
}
