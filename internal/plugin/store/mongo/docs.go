package mongo

import (
	"time"

	"github.com/chirino/collection-service/internal/model"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

const (
	collectionsColl = "collections"
	permissionsColl = "collection_permissions"
	logsColl        = "permission_logs"
	chatsColl       = "collection_chats"
	historyColl     = "collection_chat_history"
	relationsColl   = "collection_relations"
	nodesColl       = "collection_nodes"
	edgesColl       = "collection_edges"
)

func (s *MongoStore) coll(name string) *mongo.Collection { return s.db.Collection(name) }

// --- UUID and time helpers ---

func uuidToStr(id uuid.UUID) string { return id.String() }
func strToUUID(s string) uuid.UUID  { u, _ := uuid.Parse(s); return u }

// BSON dates only keep milliseconds. Ordering keys are stored as unix
// microseconds instead.
func toMicros(t time.Time) int64 { return model.Timestamp(t).UnixMicro() }
func fromMicros(us int64) time.Time {
	return time.UnixMicro(us).UTC()
}

// --- MongoDB document types ---

type collectionDoc struct {
	ID          string `bson:"_id"`
	Name        string `bson:"name"`
	Description string `bson:"description"`
	CreatedBy   string `bson:"created_by"`
	UpdatedBy   string `bson:"updated_by"`
	CreatedAt   int64  `bson:"created_at"`
	UpdatedAt   int64  `bson:"updated_at"`
}

func collectionToDoc(c *model.Collection) collectionDoc {
	return collectionDoc{
		ID:          uuidToStr(c.ID),
		Name:        c.Name,
		Description: c.Description,
		CreatedBy:   c.CreatedBy,
		UpdatedBy:   c.UpdatedBy,
		CreatedAt:   toMicros(c.CreatedAt),
		UpdatedAt:   toMicros(c.UpdatedAt),
	}
}

func (d collectionDoc) toModel() model.Collection {
	return model.Collection{
		ID:          strToUUID(d.ID),
		Name:        d.Name,
		Description: d.Description,
		CreatedBy:   d.CreatedBy,
		UpdatedBy:   d.UpdatedBy,
		CreatedAt:   fromMicros(d.CreatedAt),
		UpdatedAt:   fromMicros(d.UpdatedAt),
	}
}

type permissionDoc struct {
	ID           string                `bson:"_id"`
	CollectionID string                `bson:"collection_id"`
	UserID       string                `bson:"user_id"`
	Level        model.PermissionLevel `bson:"level"`
	GrantedBy    string                `bson:"granted_by"`
	CreatedAt    int64                 `bson:"created_at"`
	UpdatedAt    int64                 `bson:"updated_at"`
}

func permissionKey(collectionID uuid.UUID, userID string) string {
	return uuidToStr(collectionID) + "/" + userID
}

func (d permissionDoc) toModel() model.CollectionPermission {
	return model.CollectionPermission{
		CollectionID: strToUUID(d.CollectionID),
		UserID:       d.UserID,
		Level:        d.Level,
		GrantedBy:    d.GrantedBy,
		CreatedAt:    fromMicros(d.CreatedAt),
		UpdatedAt:    fromMicros(d.UpdatedAt),
	}
}

type logDoc struct {
	ID           string                 `bson:"_id"`
	CollectionID string                 `bson:"collection_id"`
	UserID       string                 `bson:"user_id"`
	Action       model.PermissionAction `bson:"action"`
	Level        *model.PermissionLevel `bson:"level,omitempty"`
	PerformedBy  string                 `bson:"performed_by"`
	CreatedAt    int64                  `bson:"created_at"`
}

func (d logDoc) toModel() model.PermissionLogEntry {
	return model.PermissionLogEntry{
		ID:           strToUUID(d.ID),
		CollectionID: strToUUID(d.CollectionID),
		UserID:       d.UserID,
		Action:       d.Action,
		Level:        d.Level,
		PerformedBy:  d.PerformedBy,
		CreatedAt:    fromMicros(d.CreatedAt),
	}
}

type chatDoc struct {
	ID             string `bson:"_id"`
	CollectionID   string `bson:"collection_id"`
	Title          string `bson:"title"`
	Description    string `bson:"description"`
	CreatedBy      string `bson:"created_by"`
	UpdatedBy      string `bson:"updated_by"`
	HistoryVersion int64  `bson:"history_version"`
	CreatedAt      int64  `bson:"created_at"`
	UpdatedAt      int64  `bson:"updated_at"`
}

func chatToDoc(c *model.CollectionChat) chatDoc {
	return chatDoc{
		ID:             uuidToStr(c.ID),
		CollectionID:   uuidToStr(c.CollectionID),
		Title:          c.Title,
		Description:    c.Description,
		CreatedBy:      c.CreatedBy,
		UpdatedBy:      c.UpdatedBy,
		HistoryVersion: c.HistoryVersion,
		CreatedAt:      toMicros(c.CreatedAt),
		UpdatedAt:      toMicros(c.UpdatedAt),
	}
}

func (d chatDoc) toModel() model.CollectionChat {
	return model.CollectionChat{
		ID:             strToUUID(d.ID),
		CollectionID:   strToUUID(d.CollectionID),
		Title:          d.Title,
		Description:    d.Description,
		CreatedBy:      d.CreatedBy,
		UpdatedBy:      d.UpdatedBy,
		HistoryVersion: d.HistoryVersion,
		CreatedAt:      fromMicros(d.CreatedAt),
		UpdatedAt:      fromMicros(d.UpdatedAt),
	}
}

type historyDoc struct {
	ID        string         `bson:"_id"`
	ChatID    string         `bson:"chat_id"`
	Role      model.ChatRole `bson:"role"`
	Content   string         `bson:"content"`
	CreatedBy string         `bson:"created_by"`
	CreatedAt int64          `bson:"created_at"`
}

func (d historyDoc) toModel() model.ChatHistoryEntry {
	return model.ChatHistoryEntry{
		ID:        strToUUID(d.ID),
		ChatID:    strToUUID(d.ChatID),
		Role:      d.Role,
		Content:   d.Content,
		CreatedBy: d.CreatedBy,
		CreatedAt: fromMicros(d.CreatedAt),
	}
}

type relationDoc struct {
	ID           string `bson:"_id"`
	CollectionID string `bson:"collection_id"`
	Title        string `bson:"title"`
	Description  string `bson:"description"`
	CreatedBy    string `bson:"created_by"`
	UpdatedBy    string `bson:"updated_by"`
	CreatedAt    int64  `bson:"created_at"`
	UpdatedAt    int64  `bson:"updated_at"`
}

func (d relationDoc) toModel() model.Relation {
	return model.Relation{
		ID:           strToUUID(d.ID),
		CollectionID: strToUUID(d.CollectionID),
		Title:        d.Title,
		Description:  d.Description,
		CreatedBy:    d.CreatedBy,
		UpdatedBy:    d.UpdatedBy,
		CreatedAt:    fromMicros(d.CreatedAt),
		UpdatedAt:    fromMicros(d.UpdatedAt),
	}
}

type nodeDoc struct {
	ID          string `bson:"_id"`
	RelationID  string `bson:"relation_id"`
	Title       string `bson:"title"`
	Description string `bson:"description"`
	Type        string `bson:"type"`
	Label       string `bson:"label"`
	CreatedBy   string `bson:"created_by"`
	UpdatedBy   string `bson:"updated_by"`
	CreatedAt   int64  `bson:"created_at"`
	UpdatedAt   int64  `bson:"updated_at"`
}

func (d nodeDoc) toModel() model.Node {
	return model.Node{
		ID:          strToUUID(d.ID),
		RelationID:  strToUUID(d.RelationID),
		Title:       d.Title,
		Description: d.Description,
		Type:        d.Type,
		Label:       d.Label,
		CreatedBy:   d.CreatedBy,
		UpdatedBy:   d.UpdatedBy,
		CreatedAt:   fromMicros(d.CreatedAt),
		UpdatedAt:   fromMicros(d.UpdatedAt),
	}
}

type edgeDoc struct {
	ID         string `bson:"_id"`
	RelationID string `bson:"relation_id"`
	Label      string `bson:"label"`
	Source     string `bson:"source"`
	Target     string `bson:"target"`
	CreatedBy  string `bson:"created_by"`
	UpdatedBy  string `bson:"updated_by"`
	CreatedAt  int64  `bson:"created_at"`
	UpdatedAt  int64  `bson:"updated_at"`
}

func (d edgeDoc) toModel() model.Edge {
	return model.Edge{
		ID:         strToUUID(d.ID),
		RelationID: strToUUID(d.RelationID),
		Label:      d.Label,
		Source:     strToUUID(d.Source),
		Target:     strToUUID(d.Target),
		CreatedBy:  d.CreatedBy,
		UpdatedBy:  d.UpdatedBy,
		CreatedAt:  fromMicros(d.CreatedAt),
		UpdatedAt:  fromMicros(d.UpdatedAt),
	}
}
