package service

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/collection-service/internal/model"
	"github.com/chirino/collection-service/internal/policy"
	registrystore "github.com/chirino/collection-service/internal/registry/store"
	"github.com/chirino/collection-service/internal/security"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// HistoryManager maintains the linear message history of chats.
//
// Every mutation locks the chat, advances its history version and then
// changes the history, all in one transaction. Writers on the same chat
// therefore either serialize or the loser gets a ConflictError.
type HistoryManager struct {
	*base
	defaultPage int
	maxPage     int
}

// Append adds a message after the current tail of the chat.
func (h *HistoryManager) Append(ctx context.Context, chatID uuid.UUID, role model.ChatRole, content, user string) (entry *model.ChatHistoryEntry, err error) {
	ctx, span := startSpan(ctx, "HistoryManager.Append", attribute.String("chat.id", chatID.String()))
	defer func() { endSpan(span, err) }()

	if err := validateInput(Message{Role: role, Content: content}); err != nil {
		return nil, err
	}
	err = h.mutate(ctx, chatID, user, func(ctx context.Context, tx registrystore.Tx) error {
		e, err := h.appendTail(ctx, tx, chatID, role, content, user)
		entry = e
		return err
	})
	return entry, err
}

// Clear deletes the whole history of the chat and returns how many entries
// were removed.
func (h *HistoryManager) Clear(ctx context.Context, chatID uuid.UUID, user string) (deleted int64, err error) {
	ctx, span := startSpan(ctx, "HistoryManager.Clear", attribute.String("chat.id", chatID.String()))
	defer func() { endSpan(span, err) }()

	err = h.mutate(ctx, chatID, user, func(ctx context.Context, tx registrystore.Tx) error {
		n, err := tx.DeleteHistory(ctx, chatID)
		deleted = n
		return err
	})
	if err == nil {
		log.Info("Chat history cleared", "chat", chatID, "deleted", deleted, "user", user)
	}
	return deleted, err
}

// Edit replaces entryID and everything after it with a single new message.
// It fails with NotFoundError before deleting anything when the entry does
// not exist.
func (h *HistoryManager) Edit(ctx context.Context, entryID uuid.UUID, replacement Message, user string) (entry *model.ChatHistoryEntry, err error) {
	ctx, span := startSpan(ctx, "HistoryManager.Edit", attribute.String("entry.id", entryID.String()))
	defer func() { endSpan(span, err) }()

	if err := validateInput(replacement); err != nil {
		return nil, err
	}
	err = h.store.InTx(ctx, func(ctx context.Context, tx registrystore.Tx) error {
		target, err := tx.GetHistoryEntry(ctx, entryID)
		if err != nil {
			return err
		}
		return h.locked(ctx, tx, target.ChatID, user, func(ctx context.Context, tx registrystore.Tx) error {
			// The entry may have been truncated away while we waited for the lock.
			if _, err := tx.GetHistoryEntry(ctx, entryID); err != nil {
				if isNotFound(err) {
					return &registrystore.ConflictError{
						Message: "history entry was removed concurrently: " + entryID.String(),
						Code:    "history_version",
					}
				}
				return err
			}
			deleted, err := tx.DeleteHistoryFrom(ctx, target.ChatID, target.CreatedAt)
			if err != nil {
				return err
			}
			e, err := h.appendTail(ctx, tx, target.ChatID, replacement.Role, replacement.Content, user)
			if err != nil {
				return err
			}
			log.Debug("Chat history truncated", "chat", target.ChatID, "from", entryID, "deleted", deleted)
			entry = e
			return nil
		})
	})
	h.countConflict(err)
	return entry, err
}

// ListMessages returns a page of the chat's history in chronological order.
// A limit <= 0 selects the default page size and larger limits are clamped.
func (h *HistoryManager) ListMessages(ctx context.Context, chatID uuid.UUID, limit, offset int) (out []model.ChatHistoryEntry, err error) {
	ctx, span := startSpan(ctx, "HistoryManager.ListMessages", attribute.String("chat.id", chatID.String()))
	defer func() { endSpan(span, err) }()

	limit, offset = h.page(limit, offset)
	err = h.store.InTx(ctx, func(ctx context.Context, tx registrystore.Tx) error {
		if _, err := tx.GetChat(ctx, chatID); err != nil {
			return err
		}
		out, err = tx.ListHistory(ctx, chatID, limit, offset)
		return err
	})
	return nonNil(out), err
}

func (h *HistoryManager) page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = h.defaultPage
	}
	if limit > h.maxPage {
		limit = h.maxPage
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// Get returns a single entry of a chat the user can read.
func (h *HistoryManager) Get(ctx context.Context, entryID uuid.UUID, user string) (entry *model.ChatHistoryEntry, err error) {
	ctx, span := startSpan(ctx, "HistoryManager.Get", attribute.String("entry.id", entryID.String()))
	defer func() { endSpan(span, err) }()

	err = h.store.InTx(ctx, func(ctx context.Context, tx registrystore.Tx) error {
		e, err := tx.GetHistoryEntry(ctx, entryID)
		if err != nil {
			return err
		}
		chat, err := tx.GetChat(ctx, e.ChatID)
		if err != nil {
			return err
		}
		a, err := h.chatChain(ctx, tx, chat, user)
		if err != nil {
			return err
		}
		if err := policy.Authorize(a, user, policy.Read); err != nil {
			return err
		}
		entry = e
		return nil
	})
	return entry, err
}

// Delete removes a single entry without touching the rest of the history.
func (h *HistoryManager) Delete(ctx context.Context, entryID uuid.UUID, user string) (err error) {
	ctx, span := startSpan(ctx, "HistoryManager.Delete", attribute.String("entry.id", entryID.String()))
	defer func() { endSpan(span, err) }()

	err = h.store.InTx(ctx, func(ctx context.Context, tx registrystore.Tx) error {
		e, err := tx.GetHistoryEntry(ctx, entryID)
		if err != nil {
			return err
		}
		return h.locked(ctx, tx, e.ChatID, user, func(ctx context.Context, tx registrystore.Tx) error {
			return tx.DeleteHistoryEntry(ctx, entryID)
		})
	})
	h.countConflict(err)
	return err
}

// mutate runs fn in a new transaction under the chat lock.
func (h *HistoryManager) mutate(ctx context.Context, chatID uuid.UUID, user string, fn func(ctx context.Context, tx registrystore.Tx) error) error {
	err := h.store.InTx(ctx, func(ctx context.Context, tx registrystore.Tx) error {
		return h.locked(ctx, tx, chatID, user, fn)
	})
	h.countConflict(err)
	return err
}

// locked takes the chat lock, checks that user may write to the chat and
// advances its history version before running fn.
func (h *HistoryManager) locked(ctx context.Context, tx registrystore.Tx, chatID uuid.UUID, user string, fn func(ctx context.Context, tx registrystore.Tx) error) error {
	chat, err := tx.LockChat(ctx, chatID)
	if err != nil {
		return err
	}
	a, err := h.chatChain(ctx, tx, chat, user)
	if err != nil {
		return err
	}
	if err := policy.Authorize(a, user, policy.Write); err != nil {
		return err
	}
	if err := tx.AdvanceHistoryVersion(ctx, chat.ID, chat.HistoryVersion); err != nil {
		return err
	}
	return fn(ctx, tx)
}

func (h *HistoryManager) appendTail(ctx context.Context, tx registrystore.Tx, chatID uuid.UUID, role model.ChatRole, content, user string) (*model.ChatHistoryEntry, error) {
	tail, err := tx.LastHistoryEntry(ctx, chatID)
	if err != nil {
		return nil, err
	}
	e := &model.ChatHistoryEntry{
		ChatID:    chatID,
		Role:      role,
		Content:   content,
		CreatedBy: user,
		CreatedAt: h.after(tail),
	}
	if err := tx.InsertHistoryEntry(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// after returns the current time, or one microsecond past the tail when the
// clock has not moved beyond it.
func (h *HistoryManager) after(tail *model.ChatHistoryEntry) time.Time {
	now := h.now()
	if tail != nil && !now.After(tail.CreatedAt) {
		return model.Timestamp(tail.CreatedAt).Add(time.Microsecond)
	}
	return now
}

func (h *HistoryManager) countConflict(err error) {
	if err != nil && isConflict(err) && security.HistoryConflictsTotal != nil {
		security.HistoryConflictsTotal.Inc()
	}
}
