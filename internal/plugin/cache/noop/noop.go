package noop

import (
	"context"
	"time"

	"github.com/chirino/collection-service/internal/registry/cache"
	"github.com/google/uuid"
)

func init() {
	cache.Register(cache.Plugin{
		Name: "none",
		Loader: func(ctx context.Context) (cache.OwnerCache, error) {
			return New(), nil
		},
	})
}

// New returns a cache that never stores anything.
func New() cache.OwnerCache { return &noopOwnerCache{} }

type noopOwnerCache struct{}

func (n *noopOwnerCache) Available() bool { return false }
func (n *noopOwnerCache) Get(_ context.Context, _ uuid.UUID) (string, error) {
	return "", nil
}
func (n *noopOwnerCache) Set(_ context.Context, _ uuid.UUID, _ string, _ time.Duration) error {
	return nil
}
func (n *noopOwnerCache) Remove(_ context.Context, _ uuid.UUID) error { return nil }

var _ cache.OwnerCache = (*noopOwnerCache)(nil)
