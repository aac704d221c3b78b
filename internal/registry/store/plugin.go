package store

import (
	"context"
	"fmt"
	"time"

	"github.com/chirino/collection-service/internal/model"
	"github.com/google/uuid"
)

// CollectionRepository persists collections.
type CollectionRepository interface {
	CreateCollection(ctx context.Context, c *model.Collection) error
	GetCollection(ctx context.Context, id uuid.UUID) (*model.Collection, error)
	// ListCollections returns collections created by or explicitly shared with
	// userID, newest first.
	ListCollections(ctx context.Context, userID string) ([]model.Collection, error)
	UpdateCollection(ctx context.Context, c *model.Collection) error
	DeleteCollection(ctx context.Context, id uuid.UUID) error
}

// PermissionStore maps (collection, user) pairs to a single permission level.
type PermissionStore interface {
	// GetPermission returns a NotFoundError when the pair has no explicit grant.
	GetPermission(ctx context.Context, collectionID uuid.UUID, userID string) (*model.CollectionPermission, error)
	// UpsertPermission inserts or overwrites the grant for the pair. The original
	// CreatedAt is kept on overwrite.
	UpsertPermission(ctx context.Context, p *model.CollectionPermission) (*model.CollectionPermission, error)
	// RemovePermission is idempotent and reports whether a grant was removed.
	RemovePermission(ctx context.Context, collectionID uuid.UUID, userID string) (bool, error)
	// ListPermissions returns every explicit grant ordered by creation.
	ListPermissions(ctx context.Context, collectionID uuid.UUID) ([]model.CollectionPermission, error)
	DeletePermissions(ctx context.Context, collectionID uuid.UUID) error
}

// AuditLog is the append-only record of permission changes.
type AuditLog interface {
	AppendLog(ctx context.Context, e *model.PermissionLogEntry) error
	// ListLogs returns entries ordered by CreatedAt ascending.
	ListLogs(ctx context.Context, collectionID uuid.UUID) ([]model.PermissionLogEntry, error)
}

// ChatRepository persists chats.
type ChatRepository interface {
	CreateChat(ctx context.Context, c *model.CollectionChat) error
	GetChat(ctx context.Context, id uuid.UUID) (*model.CollectionChat, error)
	// LockChat reads the chat and holds a row lock until the transaction ends
	// on backends that support it.
	LockChat(ctx context.Context, id uuid.UUID) (*model.CollectionChat, error)
	ListChats(ctx context.Context, collectionID uuid.UUID) ([]model.CollectionChat, error)
	UpdateChat(ctx context.Context, c *model.CollectionChat) error
	// AdvanceHistoryVersion increments the chat's history version if it still
	// equals expected and returns a ConflictError otherwise.
	AdvanceHistoryVersion(ctx context.Context, chatID uuid.UUID, expected int64) error
	DeleteChat(ctx context.Context, id uuid.UUID) error
}

// HistoryRepository persists chat history entries.
type HistoryRepository interface {
	InsertHistoryEntry(ctx context.Context, e *model.ChatHistoryEntry) error
	GetHistoryEntry(ctx context.Context, id uuid.UUID) (*model.ChatHistoryEntry, error)
	// LastHistoryEntry returns nil without error when the chat has no history.
	LastHistoryEntry(ctx context.Context, chatID uuid.UUID) (*model.ChatHistoryEntry, error)
	ListHistory(ctx context.Context, chatID uuid.UUID, limit, offset int) ([]model.ChatHistoryEntry, error)
	DeleteHistoryEntry(ctx context.Context, id uuid.UUID) error
	// DeleteHistoryFrom deletes every entry of the chat with CreatedAt >= from.
	DeleteHistoryFrom(ctx context.Context, chatID uuid.UUID, from time.Time) (int64, error)
	DeleteHistory(ctx context.Context, chatID uuid.UUID) (int64, error)
}

// GraphRepository persists relations with their nodes and edges.
type GraphRepository interface {
	CreateRelation(ctx context.Context, r *model.Relation) error
	GetRelation(ctx context.Context, id uuid.UUID) (*model.Relation, error)
	ListRelations(ctx context.Context, collectionID uuid.UUID) ([]model.Relation, error)
	UpdateRelation(ctx context.Context, r *model.Relation) error
	DeleteRelation(ctx context.Context, id uuid.UUID) error

	CreateNode(ctx context.Context, n *model.Node) error
	GetNode(ctx context.Context, id uuid.UUID) (*model.Node, error)
	ListNodes(ctx context.Context, relationID uuid.UUID) ([]model.Node, error)
	DeleteNode(ctx context.Context, id uuid.UUID) error
	DeleteNodes(ctx context.Context, relationID uuid.UUID) error

	CreateEdge(ctx context.Context, e *model.Edge) error
	GetEdge(ctx context.Context, id uuid.UUID) (*model.Edge, error)
	ListEdges(ctx context.Context, relationID uuid.UUID) ([]model.Edge, error)
	DeleteEdge(ctx context.Context, id uuid.UUID) error
	DeleteEdges(ctx context.Context, relationID uuid.UUID) error
	// DeleteEdgesForNode deletes edges whose source or target is nodeID.
	DeleteEdgesForNode(ctx context.Context, nodeID uuid.UUID) error
}

// Tx is the set of operations available inside one transaction.
type Tx interface {
	CollectionRepository
	PermissionStore
	AuditLog
	ChatRepository
	HistoryRepository
	GraphRepository
}

// CollectionStore is a durable transactional store. Its own Tx methods run
// in an implicit single-statement transaction; InTx groups several calls.
type CollectionStore interface {
	Tx
	// InTx runs fn in one transaction. A non-nil error from fn rolls back
	// every mutation made through tx.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Close() error
}

// Loader creates a CollectionStore from config.
type Loader func(ctx context.Context) (CollectionStore, error)

// Plugin represents a store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown store %q; valid: %v", name, Names())
}
