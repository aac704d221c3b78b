package service

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/chirino/collection-service/internal/model"
	"github.com/chirino/collection-service/internal/policy"
	registrystore "github.com/chirino/collection-service/internal/registry/store"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// CollectionService manages collections.
type CollectionService struct {
	*base
}

// ChatWithHistory is a chat and its full history.
type ChatWithHistory struct {
	model.CollectionChat
	History []model.ChatHistoryEntry `json:"history"`
}

// RelationGraph is a relation with its nodes and edges.
type RelationGraph struct {
	model.Relation
	Nodes []model.Node `json:"nodes"`
	Edges []model.Edge `json:"edges"`
}

// CollectionDetails is a collection with everything it contains.
type CollectionDetails struct {
	model.Collection
	Chats     []ChatWithHistory `json:"chats"`
	Relations []RelationGraph   `json:"relations"`
}

// Create stores a new collection owned by user.
func (s *CollectionService) Create(ctx context.Context, user string, in CollectionInput) (c *model.Collection, err error) {
	ctx, span := startSpan(ctx, "CollectionService.Create")
	defer func() { endSpan(span, err) }()

	if err := validateInput(in); err != nil {
		return nil, err
	}
	now := s.now()
	c = &model.Collection{
		Name:        in.Name,
		Description: in.Description,
		CreatedBy:   user,
		UpdatedBy:   user,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateCollection(ctx, c); err != nil {
		return nil, err
	}
	s.rememberOwner(ctx, c)
	log.Debug("Collection created", "collection", c.ID, "user", user)
	return c, nil
}

// Get returns a collection the user can read.
func (s *CollectionService) Get(ctx context.Context, id uuid.UUID, user string) (c *model.Collection, err error) {
	ctx, span := startSpan(ctx, "CollectionService.Get", attribute.String("collection.id", id.String()))
	defer func() { endSpan(span, err) }()

	err = s.store.InTx(ctx, func(ctx context.Context, tx registrystore.Tx) error {
		found, a, err := s.collectionChain(ctx, tx, id, user)
		if err != nil {
			return err
		}
		if err := policy.Authorize(a, user, policy.Read); err != nil {
			return err
		}
		c = found
		return nil
	})
	return c, err
}

// List returns the user's own collections and the ones shared with them,
// newest first.
func (s *CollectionService) List(ctx context.Context, user string) (out []model.Collection, err error) {
	ctx, span := startSpan(ctx, "CollectionService.List")
	defer func() { endSpan(span, err) }()

	out, err = s.store.ListCollections(ctx, user)
	return nonNil(out), err
}

// Update applies patch to a collection the user can modify.
func (s *CollectionService) Update(ctx context.Context, id uuid.UUID, user string, patch CollectionPatch) (c *model.Collection, err error) {
	ctx, span := startSpan(ctx, "CollectionService.Update", attribute.String("collection.id", id.String()))
	defer func() { endSpan(span, err) }()

	if err := validateInput(patch); err != nil {
		return nil, err
	}
	err = s.store.InTx(ctx, func(ctx context.Context, tx registrystore.Tx) error {
		found, a, err := s.collectionChain(ctx, tx, id, user)
		if err != nil {
			return err
		}
		if err := policy.Authorize(a, user, policy.Write); err != nil {
			return err
		}
		if patch.Name != nil {
			found.Name = *patch.Name
		}
		if patch.Description != nil {
			found.Description = *patch.Description
		}
		found.UpdatedBy = user
		found.UpdatedAt = s.now()
		if err := tx.UpdateCollection(ctx, found); err != nil {
			return err
		}
		c = found
		return nil
	})
	return c, err
}

// Delete removes a collection and everything in it. Only an owner may delete.
// Permission log entries are kept.
func (s *CollectionService) Delete(ctx context.Context, id uuid.UUID, user string) (err error) {
	ctx, span := startSpan(ctx, "CollectionService.Delete", attribute.String("collection.id", id.String()))
	defer func() { endSpan(span, err) }()

	err = s.store.InTx(ctx, func(ctx context.Context, tx registrystore.Tx) error {
		_, a, err := s.collectionChain(ctx, tx, id, user)
		if err != nil {
			return err
		}
		if err := policy.Authorize(a, user, policy.Manage); err != nil {
			return err
		}
		return deleteCollectionTree(ctx, tx, id)
	})
	if err != nil {
		return err
	}
	s.forgetOwner(ctx, id)
	s.project(ctx, "delete_collection", id, func(ctx context.Context) error {
		return s.mirror.DeleteCollection(ctx, id)
	})
	log.Info("Collection deleted", "collection", id, "user", user)
	return nil
}

func deleteCollectionTree(ctx context.Context, tx registrystore.Tx, id uuid.UUID) error {
	chats, err := tx.ListChats(ctx, id)
	if err != nil {
		return err
	}
	for _, chat := range chats {
		if err := deleteChatTree(ctx, tx, chat.ID); err != nil {
			return err
		}
	}
	relations, err := tx.ListRelations(ctx, id)
	if err != nil {
		return err
	}
	for _, rel := range relations {
		if err := deleteRelationTree(ctx, tx, rel.ID); err != nil {
			return err
		}
	}
	if err := tx.DeletePermissions(ctx, id); err != nil {
		return err
	}
	return tx.DeleteCollection(ctx, id)
}

// GetDetails returns the collection with its chats, their history, and its
// relations with their nodes and edges.
func (s *CollectionService) GetDetails(ctx context.Context, id uuid.UUID, user string) (d *CollectionDetails, err error) {
	ctx, span := startSpan(ctx, "CollectionService.GetDetails", attribute.String("collection.id", id.String()))
	defer func() { endSpan(span, err) }()

	err = s.store.InTx(ctx, func(ctx context.Context, tx registrystore.Tx) error {
		c, a, err := s.collectionChain(ctx, tx, id, user)
		if err != nil {
			return err
		}
		if err := policy.Authorize(a, user, policy.Read); err != nil {
			return err
		}
		details := &CollectionDetails{Collection: *c, Chats: []ChatWithHistory{}, Relations: []RelationGraph{}}

		chats, err := tx.ListChats(ctx, id)
		if err != nil {
			return err
		}
		for _, chat := range chats {
			history, err := tx.ListHistory(ctx, chat.ID, 0, 0)
			if err != nil {
				return err
			}
			details.Chats = append(details.Chats, ChatWithHistory{CollectionChat: chat, History: nonNil(history)})
		}

		relations, err := tx.ListRelations(ctx, id)
		if err != nil {
			return err
		}
		for _, rel := range relations {
			nodes, err := tx.ListNodes(ctx, rel.ID)
			if err != nil {
				return err
			}
			edges, err := tx.ListEdges(ctx, rel.ID)
			if err != nil {
				return err
			}
			details.Relations = append(details.Relations, RelationGraph{Relation: rel, Nodes: nonNil(nodes), Edges: nonNil(edges)})
		}
		d = details
		return nil
	})
	return d, err
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
