package noop

import (
	"context"

	"github.com/chirino/collection-service/internal/model"
	"github.com/chirino/collection-service/internal/registry/graph"
	"github.com/google/uuid"
)

func init() {
	graph.Register(graph.Plugin{
		Name: "none",
		Loader: func(ctx context.Context) (graph.Mirror, error) {
			return New(), nil
		},
	})
}

// New returns a mirror that discards every write.
func New() graph.Mirror { return noopMirror{} }

type noopMirror struct{}

func (noopMirror) Available() bool { return false }
func (noopMirror) UpsertRelation(context.Context, model.Relation) error { return nil }
func (noopMirror) UpsertNode(context.Context, model.Node) error { return nil }
func (noopMirror) UpsertEdge(context.Context, model.Edge) error { return nil }
func (noopMirror) DeleteRelation(context.Context, uuid.UUID) error { return nil }
func (noopMirror) DeleteNode(context.Context, uuid.UUID) error { return nil }
func (noopMirror) DeleteEdge(context.Context, uuid.UUID) error { return nil }
func (noopMirror) DeleteCollection(context.Context, uuid.UUID) error { return nil }
func (noopMirror) Close(context.Context) error { return nil }

var _ graph.Mirror = noopMirror{}
