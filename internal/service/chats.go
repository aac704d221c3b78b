package service

import (
	"context"

	"github.com/chirino/collection-service/internal/model"
	"github.com/chirino/collection-service/internal/policy"
	registrystore "github.com/chirino/collection-service/internal/registry/store"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// ChatService manages the chats of a collection.
type ChatService struct {
	*base
}

// Create adds a chat to a collection the user can modify.
func (s *ChatService) Create(ctx context.Context, collectionID uuid.UUID, user string, in ChatInput) (chat *model.CollectionChat, err error) {
	ctx, span := startSpan(ctx, "ChatService.Create", attribute.String("collection.id", collectionID.String()))
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
		c := &model.CollectionChat{
			CollectionID: collectionID,
			Title:        in.Title,
			Description:  in.Description,
			CreatedBy:    user,
			UpdatedBy:    user,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.CreateChat(ctx, c); err != nil {
			return err
		}
		chat = c
		return nil
	})
	return chat, err
}

// Get returns a chat the user can read.
func (s *ChatService) Get(ctx context.Context, chatID uuid.UUID, user string) (chat *model.CollectionChat, err error) {
	ctx, span := startSpan(ctx, "ChatService.Get", attribute.String("chat.id", chatID.String()))
	defer func() { endSpan(span, err) }()

	err = s.store.InTx(ctx, func(ctx context.Context, tx registrystore.Tx) error {
		c, err := tx.GetChat(ctx, chatID)
		if err != nil {
			return err
		}
		a, err := s.chatChain(ctx, tx, c, user)
		if err != nil {
			return err
		}
		if err := policy.Authorize(a, user, policy.Read); err != nil {
			return err
		}
		chat = c
		return nil
	})
	return chat, err
}

// List returns the chats of a collection the user can read.
func (s *ChatService) List(ctx context.Context, collectionID uuid.UUID, user string) (out []model.CollectionChat, err error) {
	ctx, span := startSpan(ctx, "ChatService.List", attribute.String("collection.id", collectionID.String()))
	defer func() { endSpan(span, err) }()

	err = s.store.InTx(ctx, func(ctx context.Context, tx registrystore.Tx) error {
		_, a, err := s.collectionChain(ctx, tx, collectionID, user)
		if err != nil {
			return err
		}
		if err := policy.Authorize(a, user, policy.Read); err != nil {
			return err
		}
		out, err = tx.ListChats(ctx, collectionID)
		return err
	})
	return nonNil(out), err
}

// Update applies patch to a chat the user can modify.
func (s *ChatService) Update(ctx context.Context, chatID uuid.UUID, user string, patch ChatPatch) (chat *model.CollectionChat, err error) {
	ctx, span := startSpan(ctx, "ChatService.Update", attribute.String("chat.id", chatID.String()))
	defer func() { endSpan(span, err) }()

	if err := validateInput(patch); err != nil {
		return nil, err
	}
	err = s.store.InTx(ctx, func(ctx context.Context, tx registrystore.Tx) error {
		c, err := tx.GetChat(ctx, chatID)
		if err != nil {
			return err
		}
		a, err := s.chatChain(ctx, tx, c, user)
		if err != nil {
			return err
		}
		if err := policy.Authorize(a, user, policy.Write); err != nil {
			return err
		}
		if patch.Title != nil {
			c.Title = *patch.Title
		}
		if patch.Description != nil {
			c.Description = *patch.Description
		}
		c.UpdatedBy = user
		c.UpdatedAt = s.now()
		if err := tx.UpdateChat(ctx, c); err != nil {
			return err
		}
		chat = c
		return nil
	})
	return chat, err
}

// Delete removes a chat and its history.
func (s *ChatService) Delete(ctx context.Context, chatID uuid.UUID, user string) (err error) {
	ctx, span := startSpan(ctx, "ChatService.Delete", attribute.String("chat.id", chatID.String()))
	defer func() { endSpan(span, err) }()

	return s.store.InTx(ctx, func(ctx context.Context, tx registrystore.Tx) error {
		c, err := tx.LockChat(ctx, chatID)
		if err != nil {
			return err
		}
		a, err := s.chatChain(ctx, tx, c, user)
		if err != nil {
			return err
		}
		if err := policy.Authorize(a, user, policy.Write); err != nil {
			return err
		}
		return deleteChatTree(ctx, tx, chatID)
	})
}

func deleteChatTree(ctx context.Context, tx registrystore.Tx, chatID uuid.UUID) error {
	if _, err := tx.DeleteHistory(ctx, chatID); err != nil {
		return err
	}
	return tx.DeleteChat(ctx, chatID)
}
