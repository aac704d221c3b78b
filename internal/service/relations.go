package service

import (
	"context"

	"github.com/chirino/collection-service/internal/model"
	"github.com/chirino/collection-service/internal/policy"
	registrystore "github.com/chirino/collection-service/internal/registry/store"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// RelationService manages relations and their node/edge graphs. Committed
// changes are projected into the graph mirror.
type RelationService struct {
	*base
}

// CreateRelation adds a relation to a collection the user can modify.
func (s *RelationService) CreateRelation(ctx context.Context, collectionID uuid.UUID, user string, in RelationInput) (rel *model.Relation, err error) {
	ctx, span := startSpan(ctx, "RelationService.CreateRelation", attribute.String("collection.id", collectionID.String()))
	defer func() { endSpan(span, err) }()

	if err := validateInput(in); err != nil {
		return nil, err
	}
	err = s.store.InTx(ctx, func(ctx context.Context, tx registrystore.Tx) error {
		_, a, err := s.collectionChain(ctx, tx, collectionID, user)
		if err != nil {
			return err
		}
		if err := policy.Authorize(a, user, policy.Write); err != nil {
			return err
		}
		now := s.now()
		r := &model.Relation{
			CollectionID: collectionID,
			Title:        in.Title,
			Description:  in.Description,
			CreatedBy:    user,
			UpdatedBy:    user,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.CreateRelation(ctx, r); err != nil {
			return err
		}
		rel = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.project(ctx, "upsert_relation", rel.ID, func(ctx context.Context) error {
		return s.mirror.UpsertRelation(ctx, *rel)
	})
	return rel, nil
}

// GetRelation returns a relation the user can read.
func (s *RelationService) GetRelation(ctx context.Context, id uuid.UUID, user string) (rel *model.Relation, err error) {
	ctx, span := startSpan(ctx, "RelationService.GetRelation", attribute.String("relation.id", id.String()))
	defer func() { endSpan(span, err) }()

	err = s.store.InTx(ctx, func(ctx context.Context, tx registrystore.Tx) error {
		r, _, err := s.authorizeRelation(ctx, tx, id, user, policy.Read)
		rel = r
		return err
	})
	return rel, err
}

// ListRelations returns the relations of a collection the user can read.
func (s *RelationService) ListRelations(ctx context.Context, collectionID uuid.UUID, user string) (out []model.Relation, err error) {
	ctx, span := startSpan(ctx, "RelationService.ListRelations", attribute.String("collection.id", collectionID.String()))
	defer func() { endSpan(span, err) }()

	err = s.store.InTx(ctx, func(ctx context.Context, tx registrystore.Tx) error {
		_, a, err := s.collectionChain(ctx, tx, collectionID, user)
		if err != nil {
			return err
		}
		if err := policy.Authorize(a, user, policy.Read); err != nil {
			return err
		}
		out, err = tx.ListRelations(ctx, collectionID)
		return err
	})
	return nonNil(out), err
}

// UpdateRelation applies patch to a relation the user can modify.
func (s *RelationService) UpdateRelation(ctx context.Context, id uuid.UUID, user string, patch RelationPatch) (rel *model.Relation, err error) {
	ctx, span := startSpan(ctx, "RelationService.UpdateRelation", attribute.String("relation.id", id.String()))
	defer func() { endSpan(span, err) }()

	if err := validateInput(patch); err != nil {
		return nil, err
	}
	err = s.store.InTx(ctx, func(ctx context.Context, tx registrystore.Tx) error {
		r, _, err := s.authorizeRelation(ctx, tx, id, user, policy.Write)
		if err != nil {
			return err
		}
		if patch.Title != nil {
			r.Title = *patch.Title
		}
		if patch.Description != nil {
			r.Description = *patch.Description
		}
		r.UpdatedBy = user
		r.UpdatedAt = s.now()
		if err := tx.UpdateRelation(ctx, r); err != nil {
			return err
		}
		rel = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.project(ctx, "upsert_relation", rel.ID, func(ctx context.Context) error {
		return s.mirror.UpsertRelation(ctx, *rel)
	})
	return rel, nil
}

// DeleteRelation removes a relation with its edges and nodes.
func (s *RelationService) DeleteRelation(ctx context.Context, id uuid.UUID, user string) (err error) {
	ctx, span := startSpan(ctx, "RelationService.DeleteRelation", attribute.String("relation.id", id.String()))
	defer func() { endSpan(span, err) }()

	err = s.store.InTx(ctx, func(ctx context.Context, tx registrystore.Tx) error {
		if _, _, err := s.authorizeRelation(ctx, tx, id, user, policy.Write); err != nil {
			return err
		}
		return deleteRelationTree(ctx, tx, id)
	})
	if err != nil {
		return err
	}
	s.project(ctx, "delete_relation", id, func(ctx context.Context) error {
		return s.mirror.DeleteRelation(ctx, id)
	})
	return nil
}

func deleteRelationTree(ctx context.Context, tx registrystore.Tx, id uuid.UUID) error {
	if err := tx.DeleteEdges(ctx, id); err != nil {
		return err
	}
	if err := tx.DeleteNodes(ctx, id); err != nil {
		return err
	}
	return tx.DeleteRelation(ctx, id)
}

// CreateNode adds a node to a relation the user can modify.
func (s *RelationService) CreateNode(ctx context.Context, relationID uuid.UUID, user string, in NodeInput) (node *model.Node, err error) {
	ctx, span := startSpan(ctx, "RelationService.CreateNode", attribute.String("relation.id", relationID.String()))
	defer func() { endSpan(span, err) }()

	if err := validateInput(in); err != nil {
		return nil, err
	}
	err = s.store.InTx(ctx, func(ctx context.Context, tx registrystore.Tx) error {
		if _, _, err := s.authorizeRelation(ctx, tx, relationID, user, policy.Write); err != nil {
			return err
		}
		now := s.now()
		n := &model.Node{
			RelationID:  relationID,
			Title:       in.Title,
			Description: in.Description,
			Type:        in.Type,
			Label:       in.Label,
			CreatedBy:   user,
			UpdatedBy:   user,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.CreateNode(ctx, n); err != nil {
			return err
		}
		node = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.project(ctx, "upsert_node", node.ID, func(ctx context.Context) error {
		return s.mirror.UpsertNode(ctx, *node)
	})
	return node, nil
}

// ListNodes returns the nodes of a relation the user can read.
func (s *RelationService) ListNodes(ctx context.Context, relationID uuid.UUID, user string) (out []model.Node, err error) {
	ctx, span := startSpan(ctx, "RelationService.ListNodes", attribute.String("relation.id", relationID.String()))
	defer func() { endSpan(span, err) }()

	err = s.store.InTx(ctx, func(ctx context.Context, tx registrystore.Tx) error {
		if _, _, err := s.authorizeRelation(ctx, tx, relationID, user, policy.Read); err != nil {
			return err
		}
		out, err = tx.ListNodes(ctx, relationID)
		return err
	})
	return nonNil(out), err
}

// DeleteNode removes a node and every edge attached to it.
func (s *RelationService) DeleteNode(ctx context.Context, nodeID uuid.UUID, user string) (err error) {
	ctx, span := startSpan(ctx, "RelationService.DeleteNode", attribute.String("node.id", nodeID.String()))
	defer func() { endSpan(span, err) }()

	err = s.store.InTx(ctx, func(ctx context.Context, tx registrystore.Tx) error {
		n, err := tx.GetNode(ctx, nodeID)
		if err != nil {
			return err
		}
		_, a, err := s.loadRelation(ctx, tx, n.RelationID, user)
		if err != nil {
			return err
		}
		if err := policy.Authorize(a.Child(policy.KindNode, n.ID, n.CreatedBy), user, policy.Write); err != nil {
			return err
		}
		if err := tx.DeleteEdgesForNode(ctx, nodeID); err != nil {
			return err
		}
		return tx.DeleteNode(ctx, nodeID)
	})
	if err != nil {
		return err
	}
	s.project(ctx, "delete_node", nodeID, func(ctx context.Context) error {
		return s.mirror.DeleteNode(ctx, nodeID)
	})
	return nil
}

// CreateEdge connects two nodes of a relation the user can modify.
func (s *RelationService) CreateEdge(ctx context.Context, relationID uuid.UUID, user string, in EdgeInput) (edge *model.Edge, err error) {
	ctx, span := startSpan(ctx, "RelationService.CreateEdge", attribute.String("relation.id", relationID.String()))
	defer func() { endSpan(span, err) }()

	if err := validateInput(in); err != nil {
		return nil, err
	}
	err = s.store.InTx(ctx, func(ctx context.Context, tx registrystore.Tx) error {
		if _, _, err := s.authorizeRelation(ctx, tx, relationID, user, policy.Write); err != nil {
			return err
		}
		if err := requireNodeOf(ctx, tx, relationID, "source", in.Source); err != nil {
			return err
		}
		if err := requireNodeOf(ctx, tx, relationID, "target", in.Target); err != nil {
			return err
		}
		now := s.now()
		e := &model.Edge{
			RelationID: relationID,
			Label:      in.Label,
			Source:     in.Source,
			Target:     in.Target,
			CreatedBy:  user,
			UpdatedBy:  user,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.CreateEdge(ctx, e); err != nil {
			return err
		}
		edge = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.project(ctx, "upsert_edge", edge.ID, func(ctx context.Context) error {
		return s.mirror.UpsertEdge(ctx, *edge)
	})
	return edge, nil
}

// ListEdges returns the edges of a relation the user can read.
func (s *RelationService) ListEdges(ctx context.Context, relationID uuid.UUID, user string) (out []model.Edge, err error) {
	ctx, span := startSpan(ctx, "RelationService.ListEdges", attribute.String("relation.id", relationID.String()))
	defer func() { endSpan(span, err) }()

	err = s.store.InTx(ctx, func(ctx context.Context, tx registrystore.Tx) error {
		if _, _, err := s.authorizeRelation(ctx, tx, relationID, user, policy.Read); err != nil {
			return err
		}
		out, err = tx.ListEdges(ctx, relationID)
		return err
	})
	return nonNil(out), err
}

// DeleteEdge removes a single edge.
func (s *RelationService) DeleteEdge(ctx context.Context, edgeID uuid.UUID, user string) (err error) {
	ctx, span := startSpan(ctx, "RelationService.DeleteEdge", attribute.String("edge.id", edgeID.String()))
	defer func() { endSpan(span, err) }()

	err = s.store.InTx(ctx, func(ctx context.Context, tx registrystore.Tx) error {
		e, err := tx.GetEdge(ctx, edgeID)
		if err != nil {
			return err
		}
		_, a, err := s.loadRelation(ctx, tx, e.RelationID, user)
		if err != nil {
			return err
		}
		if err := policy.Authorize(a.Child(policy.KindEdge, e.ID, e.CreatedBy), user, policy.Write); err != nil {
			return err
		}
		return tx.DeleteEdge(ctx, edgeID)
	})
	if err != nil {
		return err
	}
	s.project(ctx, "delete_edge", edgeID, func(ctx context.Context) error {
		return s.mirror.DeleteEdge(ctx, edgeID)
	})
	return nil
}

func requireNodeOf(ctx context.Context, tx registrystore.Tx, relationID uuid.UUID, field string, nodeID uuid.UUID) error {
	n, err := tx.GetNode(ctx, nodeID)
	if err != nil && !isNotFound(err) {
		return err
	}
	if n == nil || n.RelationID != relationID {
		return &registrystore.ValidationError{Field: field, Message: "must be a node of relation " + relationID.String()}
	}
	return nil
}

// authorizeRelation loads the relation and checks capability against it.
func (s *RelationService) authorizeRelation(ctx context.Context, tx registrystore.Tx, id uuid.UUID, user string, c policy.Capability) (*model.Relation, policy.Ancestry, error) {
	r, a, err := s.loadRelation(ctx, tx, id, user)
	if err != nil {
		return nil, policy.Ancestry{}, err
	}
	if err := policy.Authorize(a, user, c); err != nil {
		return nil, policy.Ancestry{}, err
	}
	return r, a, nil
}

func (s *RelationService) loadRelation(ctx context.Context, tx registrystore.Tx, id uuid.UUID, user string) (*model.Relation, policy.Ancestry, error) {
	r, err := tx.GetRelation(ctx, id)
	if err != nil {
		return nil, policy.Ancestry{}, err
	}
	a, err := s.relationChain(ctx, tx, r, user)
	if err != nil {
		return nil, policy.Ancestry{}, err
	}
	return r, a, nil
}
