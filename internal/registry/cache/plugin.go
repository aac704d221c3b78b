package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OwnerCache caches the creator of each collection. A collection's creator
// never changes, so entries only need removing when the collection is deleted.
type OwnerCache interface {
	Available() bool
	// Get returns "" without error on a miss.
	Get(ctx context.Context, collectionID uuid.UUID) (string, error)
	Set(ctx context.Context, collectionID uuid.UUID, createdBy string, ttl time.Duration) error
	Remove(ctx context.Context, collectionID uuid.UUID) error
}

// Loader creates a cache from config.
type Loader func(ctx context.Context) (OwnerCache, error)

// Plugin represents a cache plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a cache plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered cache plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named cache plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown cache %q; valid: %v", name, Names())
}
