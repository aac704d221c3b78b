package postgres

import (
	"context"
	"time"

	"github.com/chirino/collection-service/internal/model"
	registrystore "github.com/chirino/collection-service/internal/registry/store"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// queries implements registrystore.Tx on top of either the root connection or
// an open transaction.
type queries struct {
	db       *gorm.DB
	rowLocks bool
	classify Classifier
}

func (q *queries) translate(op string, err error) error {
	if err != nil && q.classify != nil {
		if typed := q.classify(op, err); typed != nil {
			return typed
		}
	}
	return translateError(op, err)
}

func notFound(resource string, id any) error {
	return &registrystore.NotFoundError{Resource: resource, ID: toString(id)}
}

func toString(id any) string {
	switch v := id.(type) {
	case uuid.UUID:
		return v.String()
	case string:
		return v
	default:
		return ""
	}
}

// --- Collections ---

func (q *queries) CreateCollection(ctx context.Context, c *model.Collection) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return q.translate("create collection", q.db.WithContext(ctx).Create(c).Error)
}

func (q *queries) GetCollection(ctx context.Context, id uuid.UUID) (*model.Collection, error) {
	var c model.Collection
	result := q.db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&c)
	if result.Error != nil {
		return nil, q.translate("get collection", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, notFound("collection", id)
	}
	return &c, nil
}

func (q *queries) ListCollections(ctx context.Context, userID string) ([]model.Collection, error) {
	shared := q.db.Model(&model.CollectionPermission{}).Select("collection_id").Where("user_id = ?", userID)
	var out []model.Collection
	err := q.db.WithContext(ctx).
		Where("created_by = ? OR id IN (?)", userID, shared).
		Order("created_at DESC, id DESC").
		Find(&out).Error
	return out, q.translate("list collections", err)
}

func (q *queries) UpdateCollection(ctx context.Context, c *model.Collection) error {
	result := q.db.WithContext(ctx).Model(&model.Collection{}).Where("id = ?", c.ID).
		Updates(map[string]any{
			"name":        c.Name,
			"description": c.Description,
			"updated_by":  c.UpdatedBy,
			"updated_at":  c.UpdatedAt,
		})
	if result.Error != nil {
		return q.translate("update collection", result.Error)
	}
	if result.RowsAffected == 0 {
		return notFound("collection", c.ID)
	}
	return nil
}

func (q *queries) DeleteCollection(ctx context.Context, id uuid.UUID) error {
	result := q.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Collection{})
	if result.Error != nil {
		return q.translate("delete collection", result.Error)
	}
	if result.RowsAffected == 0 {
		return notFound("collection", id)
	}
	return nil
}

// --- Permissions ---

func (q *queries) GetPermission(ctx context.Context, collectionID uuid.UUID, userID string) (*model.CollectionPermission, error) {
	var p model.CollectionPermission
	result := q.db.WithContext(ctx).
		Where("collection_id = ? AND user_id = ?", collectionID, userID).
		Limit(1).Find(&p)
	if result.Error != nil {
		return nil, q.translate("get permission", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, notFound("permission", collectionID.String()+"/"+userID)
	}
	return &p, nil
}

func (q *queries) UpsertPermission(ctx context.Context, p *model.CollectionPermission) (*model.CollectionPermission, error) {
	now := model.Timestamp(time.Now())
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}
	err := q.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "collection_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"level", "granted_by", "updated_at"}),
	}).Create(p).Error
	if err != nil {
		return nil, q.translate("upsert permission", err)
	}
	return q.GetPermission(ctx, p.CollectionID, p.UserID)
}

func (q *queries) RemovePermission(ctx context.Context, collectionID uuid.UUID, userID string) (bool, error) {
	result := q.db.WithContext(ctx).
		Where("collection_id = ? AND user_id = ?", collectionID, userID).
		Delete(&model.CollectionPermission{})
	if result.Error != nil {
		return false, q.translate("remove permission", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (q *queries) ListPermissions(ctx context.Context, collectionID uuid.UUID) ([]model.CollectionPermission, error) {
	var out []model.CollectionPermission
	err := q.db.WithContext(ctx).
		Where("collection_id = ?", collectionID).
		Order("created_at ASC, user_id ASC").
		Find(&out).Error
	return out, q.translate("list permissions", err)
}

func (q *queries) DeletePermissions(ctx context.Context, collectionID uuid.UUID) error {
	err := q.db.WithContext(ctx).Where("collection_id = ?", collectionID).Delete(&model.CollectionPermission{}).Error
	return q.translate("delete permissions", err)
}

// --- Audit log ---

func (q *queries) AppendLog(ctx context.Context, e *model.PermissionLogEntry) error {
	if e.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return &registrystore.StorageError{Op: "append log", Err: err}
		}
		e.ID = id
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = model.Timestamp(time.Now())
	}
	return q.translate("append log", q.db.WithContext(ctx).Create(e).Error)
}

func (q *queries) ListLogs(ctx context.Context, collectionID uuid.UUID) ([]model.PermissionLogEntry, error) {
	var out []model.PermissionLogEntry
	err := q.db.WithContext(ctx).
		Where("collection_id = ?", collectionID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, q.translate("list logs", err)
}

// --- Chats ---

func (q *queries) CreateChat(ctx context.Context, c *model.CollectionChat) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return q.translate("create chat", q.db.WithContext(ctx).Create(c).Error)
}

func (q *queries) GetChat(ctx context.Context, id uuid.UUID) (*model.CollectionChat, error) {
	return q.getChat(ctx, id, false)
}

func (q *queries) LockChat(ctx context.Context, id uuid.UUID) (*model.CollectionChat, error) {
	return q.getChat(ctx, id, true)
}

func (q *queries) getChat(ctx context.Context, id uuid.UUID, lock bool) (*model.CollectionChat, error) {
	db := q.db.WithContext(ctx)
	if lock && q.rowLocks {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var c model.CollectionChat
	result := db.Where("id = ?", id).Limit(1).Find(&c)
	if result.Error != nil {
		return nil, q.translate("get chat", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, notFound("chat", id)
	}
	return &c, nil
}

func (q *queries) ListChats(ctx context.Context, collectionID uuid.UUID) ([]model.CollectionChat, error) {
	var out []model.CollectionChat
	err := q.db.WithContext(ctx).
		Where("collection_id = ?", collectionID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, q.translate("list chats", err)
}

func (q *queries) UpdateChat(ctx context.Context, c *model.CollectionChat) error {
	result := q.db.WithContext(ctx).Model(&model.CollectionChat{}).Where("id = ?", c.ID).
		Updates(map[string]any{
			"title":       c.Title,
			"description": c.Description,
			"updated_by":  c.UpdatedBy,
			"updated_at":  c.UpdatedAt,
		})
	if result.Error != nil {
		return q.translate("update chat", result.Error)
	}
	if result.RowsAffected == 0 {
		return notFound("chat", c.ID)
	}
	return nil
}

func (q *queries) AdvanceHistoryVersion(ctx context.Context, chatID uuid.UUID, expected int64) error {
	result := q.db.WithContext(ctx).Model(&model.CollectionChat{}).
		Where("id = ? AND history_version = ?", chatID, expected).
		UpdateColumn("history_version", gorm.Expr("history_version + 1"))
	if result.Error != nil {
		return q.translate("advance history version", result.Error)
	}
	if result.RowsAffected == 0 {
		return &registrystore.ConflictError{
			Message: "chat history was modified concurrently: " + chatID.String(),
			Code:    "history_version",
		}
	}
	return nil
}

func (q *queries) DeleteChat(ctx context.Context, id uuid.UUID) error {
	result := q.db.WithContext(ctx).Where("id = ?", id).Delete(&model.CollectionChat{})
	if result.Error != nil {
		return q.translate("delete chat", result.Error)
	}
	if result.RowsAffected == 0 {
		return notFound("chat", id)
	}
	return nil
}

// --- History ---

func (q *queries) InsertHistoryEntry(ctx context.Context, e *model.ChatHistoryEntry) error {
	if e.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return &registrystore.StorageError{Op: "insert history entry", Err: err}
		}
		e.ID = id
	}
	return q.translate("insert history entry", q.db.WithContext(ctx).Create(e).Error)
}

func (q *queries) GetHistoryEntry(ctx context.Context, id uuid.UUID) (*model.ChatHistoryEntry, error) {
	var e model.ChatHistoryEntry
	result := q.db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&e)
	if result.Error != nil {
		return nil, q.translate("get history entry", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, notFound("history entry", id)
	}
	return &e, nil
}

func (q *queries) LastHistoryEntry(ctx context.Context, chatID uuid.UUID) (*model.ChatHistoryEntry, error) {
	var e model.ChatHistoryEntry
	result := q.db.WithContext(ctx).Where("chat_id = ?", chatID).
		Order("created_at DESC").Limit(1).Find(&e)
	if result.Error != nil {
		return nil, q.translate("last history entry", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &e, nil
}

func (q *queries) ListHistory(ctx context.Context, chatID uuid.UUID, limit, offset int) ([]model.ChatHistoryEntry, error) {
	var out []model.ChatHistoryEntry
	db := q.db.WithContext(ctx).Where("chat_id = ?", chatID).Order("created_at ASC")
	if limit > 0 {
		db = db.Limit(limit)
	}
	if offset > 0 {
		db = db.Offset(offset)
	}
	err := db.Find(&out).Error
	return out, q.translate("list history", err)
}

func (q *queries) DeleteHistoryEntry(ctx context.Context, id uuid.UUID) error {
	result := q.db.WithContext(ctx).Where("id = ?", id).Delete(&model.ChatHistoryEntry{})
	if result.Error != nil {
		return q.translate("delete history entry", result.Error)
	}
	if result.RowsAffected == 0 {
		return notFound("history entry", id)
	}
	return nil
}

func (q *queries) DeleteHistoryFrom(ctx context.Context, chatID uuid.UUID, from time.Time) (int64, error) {
	result := q.db.WithContext(ctx).
		Where("chat_id = ? AND created_at >= ?", chatID, model.Timestamp(from)).
		Delete(&model.ChatHistoryEntry{})
	return result.RowsAffected, q.translate("truncate history", result.Error)
}

func (q *queries) DeleteHistory(ctx context.Context, chatID uuid.UUID) (int64, error) {
	result := q.db.WithContext(ctx).Where("chat_id = ?", chatID).Delete(&model.ChatHistoryEntry{})
	return result.RowsAffected, q.translate("clear history", result.Error)
}

// --- Relations ---

func (q *queries) CreateRelation(ctx context.Context, r *model.Relation) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return q.translate("create relation", q.db.WithContext(ctx).Create(r).Error)
}

func (q *queries) GetRelation(ctx context.Context, id uuid.UUID) (*model.Relation, error) {
	var r model.Relation
	result := q.db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&r)
	if result.Error != nil {
		return nil, q.translate("get relation", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, notFound("relation", id)
	}
	return &r, nil
}

func (q *queries) ListRelations(ctx context.Context, collectionID uuid.UUID) ([]model.Relation, error) {
	var out []model.Relation
	err := q.db.WithContext(ctx).Where("collection_id = ?", collectionID).
		Order("created_at ASC, id ASC").Find(&out).Error
	return out, q.translate("list relations", err)
}

func (q *queries) UpdateRelation(ctx context.Context, r *model.Relation) error {
	result := q.db.WithContext(ctx).Model(&model.Relation{}).Where("id = ?", r.ID).
		Updates(map[string]any{
			"title":       r.Title,
			"description": r.Description,
			"updated_by":  r.UpdatedBy,
			"updated_at":  r.UpdatedAt,
		})
	if result.Error != nil {
		return q.translate("update relation", result.Error)
	}
	if result.RowsAffected == 0 {
		return notFound("relation", r.ID)
	}
	return nil
}

func (q *queries) DeleteRelation(ctx context.Context, id uuid.UUID) error {
	result := q.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Relation{})
	if result.Error != nil {
		return q.translate("delete relation", result.Error)
	}
	if result.RowsAffected == 0 {
		return notFound("relation", id)
	}
	return nil
}

// --- Nodes ---

func (q *queries) CreateNode(ctx context.Context, n *model.Node) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return q.translate("create node", q.db.WithContext(ctx).Create(n).Error)
}

func (q *queries) GetNode(ctx context.Context, id uuid.UUID) (*model.Node, error) {
	var n model.Node
	result := q.db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&n)
	if result.Error != nil {
		return nil, q.translate("get node", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, notFound("node", id)
	}
	return &n, nil
}

func (q *queries) ListNodes(ctx context.Context, relationID uuid.UUID) ([]model.Node, error) {
	var out []model.Node
	err := q.db.WithContext(ctx).Where("relation_id = ?", relationID).
		Order("created_at ASC, id ASC").Find(&out).Error
	return out, q.translate("list nodes", err)
}

func (q *queries) DeleteNode(ctx context.Context, id uuid.UUID) error {
	result := q.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Node{})
	if result.Error != nil {
		return q.translate("delete node", result.Error)
	}
	if result.RowsAffected == 0 {
		return notFound("node", id)
	}
	return nil
}

func (q *queries) DeleteNodes(ctx context.Context, relationID uuid.UUID) error {
	err := q.db.WithContext(ctx).Where("relation_id = ?", relationID).Delete(&model.Node{}).Error
	return q.translate("delete nodes", err)
}

// --- Edges ---

func (q *queries) CreateEdge(ctx context.Context, e *model.Edge) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return q.translate("create edge", q.db.WithContext(ctx).Create(e).Error)
}

func (q *queries) GetEdge(ctx context.Context, id uuid.UUID) (*model.Edge, error) {
	var e model.Edge
	result := q.db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&e)
	if result.Error != nil {
		return nil, q.translate("get edge", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, notFound("edge", id)
	}
	return &e, nil
}

func (q *queries) ListEdges(ctx context.Context, relationID uuid.UUID) ([]model.Edge, error) {
	var out []model.Edge
	err := q.db.WithContext(ctx).Where("relation_id = ?", relationID).
		Order("created_at ASC, id ASC").Find(&out).Error
	return out, q.translate("list edges", err)
}

func (q *queries) DeleteEdge(ctx context.Context, id uuid.UUID) error {
	result := q.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Edge{})
	if result.Error != nil {
		return q.translate("delete edge", result.Error)
	}
	if result.RowsAffected == 0 {
		return notFound("edge", id)
	}
	return nil
}

func (q *queries) DeleteEdges(ctx context.Context, relationID uuid.UUID) error {
	err := q.db.WithContext(ctx).Where("relation_id = ?", relationID).Delete(&model.Edge{}).Error
	return q.translate("delete edges", err)
}

func (q *queries) DeleteEdgesForNode(ctx context.Context, nodeID uuid.UUID) error {
	err := q.db.WithContext(ctx).Where("source = ? OR target = ?", nodeID, nodeID).Delete(&model.Edge{}).Error
	return q.translate("delete node edges", err)
}

var _ registrystore.Tx = (*queries)(nil)
