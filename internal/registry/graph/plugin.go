package graph

import (
	"context"
	"fmt"

	"github.com/chirino/collection-service/internal/model"
	"github.com/google/uuid"
)

// Mirror projects relation graphs into an external graph database. Writes
// happen after the owning transaction commits and are best effort: the
// relational store stays the source of truth.
type Mirror interface {
	Available() bool
	UpsertRelation(ctx context.Context, r model.Relation) error
	UpsertNode(ctx context.Context, n model.Node) error
	UpsertEdge(ctx context.Context, e model.Edge) error
	DeleteRelation(ctx context.Context, id uuid.UUID) error
	DeleteNode(ctx context.Context, id uuid.UUID) error
	DeleteEdge(ctx context.Context, id uuid.UUID) error
	DeleteCollection(ctx context.Context, collectionID uuid.UUID) error
	Close(ctx context.Context) error
}

// Loader creates a Mirror from config.
type Loader func(ctx context.Context) (Mirror, error)

// Plugin represents a graph mirror plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a graph mirror plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered graph mirror plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named graph mirror plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown graph mirror %q; valid: %v", name, Names())
}
