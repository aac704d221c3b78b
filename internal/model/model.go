package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PermissionLevel is the delegated capability tier a user holds on a collection.
type PermissionLevel string

const (
	PermissionViewer PermissionLevel = "VIEWER"
	PermissionEditor PermissionLevel = "EDITOR"
	PermissionOwner  PermissionLevel = "OWNER"
)

// PermissionLevels lists every level from lowest to highest.
var PermissionLevels = []PermissionLevel{PermissionViewer, PermissionEditor, PermissionOwner}

// IsAtLeast returns true if the level is at least the given level. Unknown
// levels never satisfy any check.
func (l PermissionLevel) IsAtLeast(level PermissionLevel) bool {
	have, want := permissionRank(l), permissionRank(level)
	return have > 0 && want > 0 && have >= want
}

// Valid reports whether l is one of the known levels.
func (l PermissionLevel) Valid() bool {
	return permissionRank(l) > 0
}

func permissionRank(level PermissionLevel) int {
	switch level {
	case PermissionOwner:
		return 3
	case PermissionEditor:
		return 2
	case PermissionViewer:
		return 1
	default:
		return 0
	}
}

// ParsePermissionLevel converts a case-insensitive level name into a PermissionLevel.
func ParsePermissionLevel(s string) (PermissionLevel, error) {
	l := PermissionLevel(strings.ToUpper(strings.TrimSpace(s)))
	if !l.Valid() {
		return "", fmt.Errorf("unknown permission level %q", s)
	}
	return l, nil
}

// PermissionAction is the kind of change recorded in the permission audit log.
type PermissionAction string

const (
	ActionGrant  PermissionAction = "GRANT"
	ActionRevoke PermissionAction = "REVOKE"
)

// ChatRole identifies the author of a chat history entry.
type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
	RoleSystem    ChatRole = "system"
)

// Valid reports whether r is one of the known roles.
func (r ChatRole) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Collection is the root of an ownership chain.
type Collection struct {
	ID          uuid.UUID `json:"id"          gorm:"primaryKey;type:uuid"`
	Name        string    `json:"name"        gorm:"not null"`
	Description string    `json:"description" gorm:"not null;default:''"`
	CreatedBy   string    `json:"createdBy"   gorm:"not null"`
	UpdatedBy   string    `json:"updatedBy"   gorm:"not null"`
	CreatedAt   time.Time `json:"createdAt"   gorm:"not null"`
	UpdatedAt   time.Time `json:"updatedAt"   gorm:"not null"`
}

func (Collection) TableName() string { return "collections" }

// CollectionPermission is an explicit grant of a level to a user on a collection.
type CollectionPermission struct {
	CollectionID uuid.UUID       `json:"collectionId" gorm:"primaryKey;type:uuid"`
	UserID       string          `json:"userId"       gorm:"primaryKey"`
	Level        PermissionLevel `json:"level"        gorm:"not null"`
	GrantedBy    string          `json:"grantedBy"    gorm:"not null"`
	CreatedAt    time.Time       `json:"createdAt"    gorm:"not null"`
	UpdatedAt    time.Time       `json:"updatedAt"    gorm:"not null"`
}

func (CollectionPermission) TableName() string { return "collection_permissions" }

// PermissionLogEntry is an immutable record of a grant or revoke.
type PermissionLogEntry struct {
	ID           uuid.UUID        `json:"id"              gorm:"primaryKey;type:uuid"`
	CollectionID uuid.UUID        `json:"collectionId"    gorm:"not null;type:uuid"`
	UserID       string           `json:"userId"          gorm:"not null"`
	Action       PermissionAction `json:"action"          gorm:"not null"`
	Level        *PermissionLevel `json:"level,omitempty"`
	PerformedBy  string           `json:"performedBy"     gorm:"not null"`
	CreatedAt    time.Time        `json:"createdAt"       gorm:"not null"`
}

func (PermissionLogEntry) TableName() string { return "permission_logs" }

// CollectionChat is a chat scoped to a collection.
type CollectionChat struct {
	ID             uuid.UUID `json:"id"             gorm:"primaryKey;type:uuid"`
	CollectionID   uuid.UUID `json:"collectionId"   gorm:"not null;type:uuid"`
	Title          string    `json:"title"          gorm:"not null"`
	Description    string    `json:"description"    gorm:"not null;default:''"`
	CreatedBy      string    `json:"createdBy"      gorm:"not null"`
	UpdatedBy      string    `json:"updatedBy"      gorm:"not null"`
	HistoryVersion int64     `json:"historyVersion" gorm:"not null;default:0"`
	CreatedAt      time.Time `json:"createdAt"      gorm:"not null"`
	UpdatedAt      time.Time `json:"updatedAt"      gorm:"not null"`
}

func (CollectionChat) TableName() string { return "collection_chats" }

// ChatHistoryEntry is one message in a chat's linear history.
type ChatHistoryEntry struct {
	ID        uuid.UUID `json:"id"        gorm:"primaryKey;type:uuid"`
	ChatID    uuid.UUID `json:"chatId"    gorm:"not null;type:uuid"`
	Role      ChatRole  `json:"role"      gorm:"not null"`
	Content   string    `json:"content"   gorm:"not null"`
	CreatedBy string    `json:"createdBy" gorm:"not null"`
	CreatedAt time.Time `json:"createdAt" gorm:"not null"`
}

func (ChatHistoryEntry) TableName() string { return "collection_chat_history" }

// Relation owns a graph of nodes and edges inside a collection.
type Relation struct {
	ID           uuid.UUID `json:"id"           gorm:"primaryKey;type:uuid"`
	CollectionID uuid.UUID `json:"collectionId" gorm:"not null;type:uuid"`
	Title        string    `json:"title"        gorm:"not null"`
	Description  string    `json:"description"  gorm:"not null;default:''"`
	CreatedBy    string    `json:"createdBy"    gorm:"not null"`
	UpdatedBy    string    `json:"updatedBy"    gorm:"not null"`
	CreatedAt    time.Time `json:"createdAt"    gorm:"not null"`
	UpdatedAt    time.Time `json:"updatedAt"    gorm:"not null"`
}

func (Relation) TableName() string { return "collection_relations" }

// Node is a vertex of a relation graph.
type Node struct {
	ID          uuid.UUID `json:"id"          gorm:"primaryKey;type:uuid"`
	RelationID  uuid.UUID `json:"relationId"  gorm:"not null;type:uuid"`
	Title       string    `json:"title"       gorm:"not null"`
	Description string    `json:"description" gorm:"not null;default:''"`
	Type        string    `json:"type"        gorm:"not null;default:''"`
	Label       string    `json:"label"       gorm:"not null;default:''"`
	CreatedBy   string    `json:"createdBy"   gorm:"not null"`
	UpdatedBy   string    `json:"updatedBy"   gorm:"not null"`
	CreatedAt   time.Time `json:"createdAt"   gorm:"not null"`
	UpdatedAt   time.Time `json:"updatedAt"   gorm:"not null"`
}

func (Node) TableName() string { return "collection_nodes" }

// Edge connects two nodes of the same relation.
type Edge struct {
	ID         uuid.UUID `json:"id"         gorm:"primaryKey;type:uuid"`
	RelationID uuid.UUID `json:"relationId" gorm:"not null;type:uuid"`
	Label      string    `json:"label"      gorm:"not null;default:''"`
	Source     uuid.UUID `json:"source"     gorm:"not null;type:uuid"`
	Target     uuid.UUID `json:"target"     gorm:"not null;type:uuid"`
	CreatedBy  string    `json:"createdBy"  gorm:"not null"`
	UpdatedBy  string    `json:"updatedBy"  gorm:"not null"`
	CreatedAt  time.Time `json:"createdAt"  gorm:"not null"`
	UpdatedAt  time.Time `json:"updatedAt"  gorm:"not null"`
}

func (Edge) TableName() string { return "collection_edges" }

// Timestamp normalizes t to the precision every store preserves.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
