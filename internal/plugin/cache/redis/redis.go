package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chirino/collection-service/internal/config"
	registrycache "github.com/chirino/collection-service/internal/registry/cache"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const defaultTTL = time.Hour

func init() {
	registrycache.Register(registrycache.Plugin{
		Name:   "redis",
		Loader: load,
	})
}

func load(ctx context.Context) (registrycache.OwnerCache, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis cache: %sREDIS_URL is required", config.EnvPrefix)
	}
	return LoadFromURLWithTTL(ctx, cfg.RedisURL, cfg.CacheOwnerTTL)
}

// LoadFromURLWithTTL creates an OwnerCache from a Redis-compatible URL.
func LoadFromURLWithTTL(ctx context.Context, redisURL string, ttl time.Duration) (registrycache.OwnerCache, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis cache: invalid URL: %w", err)
	}
	return LoadFromOptionsWithTTL(ctx, opts, ttl)
}

// LoadFromOptionsWithTTL creates an OwnerCache from go-redis Options.
func LoadFromOptionsWithTTL(ctx context.Context, opts *goredis.Options, ttl time.Duration) (registrycache.OwnerCache, error) {
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis cache: ping failed: %w", err)
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &redisOwnerCache{client: client, ttl: ttl}, nil
}

type redisOwnerCache struct {
	client *goredis.Client
	ttl    time.Duration
}

func ownerKey(collectionID uuid.UUID) string {
	return "collection-owner:" + collectionID.String()
}

func (c *redisOwnerCache) Available() bool {
	return true
}

func (c *redisOwnerCache) Get(ctx context.Context, collectionID uuid.UUID) (string, error) {
	owner, err := c.client.Get(ctx, ownerKey(collectionID)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	return owner, err
}

func (c *redisOwnerCache) Set(ctx context.Context, collectionID uuid.UUID, createdBy string, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.ttl
	}
	return c.client.Set(ctx, ownerKey(collectionID), createdBy, ttl).Err()
}

func (c *redisOwnerCache) Remove(ctx context.Context, collectionID uuid.UUID) error {
	return c.client.Del(ctx, ownerKey(collectionID)).Err()
}

var _ registrycache.OwnerCache = (*redisOwnerCache)(nil)
