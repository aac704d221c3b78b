package metrics

import (
	"context"
	"time"

	"github.com/chirino/collection-service/internal/model"
	"github.com/chirino/collection-service/internal/registry/store"
	"github.com/chirino/collection-service/internal/security"
	"github.com/google/uuid"
)

// Wrap returns a CollectionStore that records StoreLatency for every
// operation, including the ones issued through InTx.
func Wrap(inner store.CollectionStore) store.CollectionStore {
	return &metricsStore{metricsTx: metricsTx{inner: inner}, inner: inner}
}

type metricsStore struct {
	metricsTx
	inner store.CollectionStore
}

type metricsTx struct {
	inner store.Tx
}

func observe(op string, start time.Time) {
	if security.StoreLatency == nil {
		return
	}
	security.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *metricsStore) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	defer observe("transaction", time.Now())
	return m.inner.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return fn(ctx, &metricsTx{inner: tx})
	})
}

func (m *metricsStore) Close() error {
	return m.inner.Close()
}

// --- Collections ---

func (m *metricsTx) CreateCollection(ctx context.Context, c *model.Collection) error {
	defer observe("create_collection", time.Now())
	return m.inner.CreateCollection(ctx, c)
}

func (m *metricsTx) GetCollection(ctx context.Context, id uuid.UUID) (*model.Collection, error) {
	defer observe("get_collection", time.Now())
	return m.inner.GetCollection(ctx, id)
}

func (m *metricsTx) ListCollections(ctx context.Context, userID string) ([]model.Collection, error) {
	defer observe("list_collections", time.Now())
	return m.inner.ListCollections(ctx, userID)
}

func (m *metricsTx) UpdateCollection(ctx context.Context, c *model.Collection) error {
	defer observe("update_collection", time.Now())
	return m.inner.UpdateCollection(ctx, c)
}

func (m *metricsTx) DeleteCollection(ctx context.Context, id uuid.UUID) error {
	defer observe("delete_collection", time.Now())
	return m.inner.DeleteCollection(ctx, id)
}

// --- Permissions ---

func (m *metricsTx) GetPermission(ctx context.Context, collectionID uuid.UUID, userID string) (*model.CollectionPermission, error) {
	defer observe("get_permission", time.Now())
	return m.inner.GetPermission(ctx, collectionID, userID)
}

func (m *metricsTx) UpsertPermission(ctx context.Context, p *model.CollectionPermission) (*model.CollectionPermission, error) {
	defer observe("upsert_permission", time.Now())
	return m.inner.UpsertPermission(ctx, p)
}

func (m *metricsTx) RemovePermission(ctx context.Context, collectionID uuid.UUID, userID string) (bool, error) {
	defer observe("remove_permission", time.Now())
	return m.inner.RemovePermission(ctx, collectionID, userID)
}

func (m *metricsTx) ListPermissions(ctx context.Context, collectionID uuid.UUID) ([]model.CollectionPermission, error) {
	defer observe("list_permissions", time.Now())
	return m.inner.ListPermissions(ctx, collectionID)
}

func (m *metricsTx) DeletePermissions(ctx context.Context, collectionID uuid.UUID) error {
	defer observe("delete_permissions", time.Now())
	return m.inner.DeletePermissions(ctx, collectionID)
}

// --- Audit log ---

func (m *metricsTx) AppendLog(ctx context.Context, e *model.PermissionLogEntry) error {
	defer observe("append_log", time.Now())
	return m.inner.AppendLog(ctx, e)
}

func (m *metricsTx) ListLogs(ctx context.Context, collectionID uuid.UUID) ([]model.PermissionLogEntry, error) {
	defer observe("list_logs", time.Now())
	return m.inner.ListLogs(ctx, collectionID)
}

// --- Chats ---

func (m *metricsTx) CreateChat(ctx context.Context, c *model.CollectionChat) error {
	defer observe("create_chat", time.Now())
	return m.inner.CreateChat(ctx, c)
}

func (m *metricsTx) GetChat(ctx context.Context, id uuid.UUID) (*model.CollectionChat, error) {
	defer observe("get_chat", time.Now())
	return m.inner.GetChat(ctx, id)
}

func (m *metricsTx) LockChat(ctx context.Context, id uuid.UUID) (*model.CollectionChat, error) {
	defer observe("lock_chat", time.Now())
	return m.inner.LockChat(ctx, id)
}

func (m *metricsTx) ListChats(ctx context.Context, collectionID uuid.UUID) ([]model.CollectionChat, error) {
	defer observe("list_chats", time.Now())
	return m.inner.ListChats(ctx, collectionID)
}

func (m *metricsTx) UpdateChat(ctx context.Context, c *model.CollectionChat) error {
	defer observe("update_chat", time.Now())
	return m.inner.UpdateChat(ctx, c)
}

func (m *metricsTx) AdvanceHistoryVersion(ctx context.Context, chatID uuid.UUID, expected int64) error {
	defer observe("advance_history_version", time.Now())
	return m.inner.AdvanceHistoryVersion(ctx, chatID, expected)
}

func (m *metricsTx) DeleteChat(ctx context.Context, id uuid.UUID) error {
	defer observe("delete_chat", time.Now())
	return m.inner.DeleteChat(ctx, id)
}

// --- History ---

func (m *metricsTx) InsertHistoryEntry(ctx context.Context, e *model.ChatHistoryEntry) error {
	defer observe("insert_history_entry", time.Now())
	return m.inner.InsertHistoryEntry(ctx, e)
}

func (m *metricsTx) GetHistoryEntry(ctx context.Context, id uuid.UUID) (*model.ChatHistoryEntry, error) {
	defer observe("get_history_entry", time.Now())
	return m.inner.GetHistoryEntry(ctx, id)
}

func (m *metricsTx) LastHistoryEntry(ctx context.Context, chatID uuid.UUID) (*model.ChatHistoryEntry, error) {
	defer observe("last_history_entry", time.Now())
	return m.inner.LastHistoryEntry(ctx, chatID)
}

func (m *metricsTx) ListHistory(ctx context.Context, chatID uuid.UUID, limit, offset int) ([]model.ChatHistoryEntry, error) {
	defer observe("list_history", time.Now())
	return m.inner.ListHistory(ctx, chatID, limit, offset)
}

func (m *metricsTx) DeleteHistoryEntry(ctx context.Context, id uuid.UUID) error {
	defer observe("delete_history_entry", time.Now())
	return m.inner.DeleteHistoryEntry(ctx, id)
}

func (m *metricsTx) DeleteHistoryFrom(ctx context.Context, chatID uuid.UUID, from time.Time) (int64, error) {
	defer observe("truncate_history", time.Now())
	return m.inner.DeleteHistoryFrom(ctx, chatID, from)
}

func (m *metricsTx) DeleteHistory(ctx context.Context, chatID uuid.UUID) (int64, error) {
	defer observe("clear_history", time.Now())
	return m.inner.DeleteHistory(ctx, chatID)
}

// --- Relations ---

func (m *metricsTx) CreateRelation(ctx context.Context, r *model.Relation) error {
	defer observe("create_relation", time.Now())
	return m.inner.CreateRelation(ctx, r)
}

func (m *metricsTx) GetRelation(ctx context.Context, id uuid.UUID) (*model.Relation, error) {
	defer observe("get_relation", time.Now())
	return m.inner.GetRelation(ctx, id)
}

func (m *metricsTx) ListRelations(ctx context.Context, collectionID uuid.UUID) ([]model.Relation, error) {
	defer observe("list_relations", time.Now())
	return m.inner.ListRelations(ctx, collectionID)
}

func (m *metricsTx) UpdateRelation(ctx context.Context, r *model.Relation) error {
	defer observe("update_relation", time.Now())
	return m.inner.UpdateRelation(ctx, r)
}

func (m *metricsTx) DeleteRelation(ctx context.Context, id uuid.UUID) error {
	defer observe("delete_relation", time.Now())
	return m.inner.DeleteRelation(ctx, id)
}

// --- Nodes ---

func (m *metricsTx) CreateNode(ctx context.Context, n *model.Node) error {
	defer observe("create_node", time.Now())
	return m.inner.CreateNode(ctx, n)
}

func (m *metricsTx) GetNode(ctx context.Context, id uuid.UUID) (*model.Node, error) {
	defer observe("get_node", time.Now())
	return m.inner.GetNode(ctx, id)
}

func (m *metricsTx) ListNodes(ctx context.Context, relationID uuid.UUID) ([]model.Node, error) {
	defer observe("list_nodes", time.Now())
	return m.inner.ListNodes(ctx, relationID)
}

func (m *metricsTx) DeleteNode(ctx context.Context, id uuid.UUID) error {
	defer observe("delete_node", time.Now())
	return m.inner.DeleteNode(ctx, id)
}

func (m *metricsTx) DeleteNodes(ctx context.Context, relationID uuid.UUID) error {
	defer observe("delete_nodes", time.Now())
	return m.inner.DeleteNodes(ctx, relationID)
}

// --- Edges ---

func (m *metricsTx) CreateEdge(ctx context.Context, e *model.Edge) error {
	defer observe("create_edge", time.Now())
	return m.inner.CreateEdge(ctx, e)
}

func (m *metricsTx) GetEdge(ctx context.Context, id uuid.UUID) (*model.Edge, error) {
	defer observe("get_edge", time.Now())
	return m.inner.GetEdge(ctx, id)
}

func (m *metricsTx) ListEdges(ctx context.Context, relationID uuid.UUID) ([]model.Edge, error) {
	defer observe("list_edges", time.Now())
	return m.inner.ListEdges(ctx, relationID)
}

func (m *metricsTx) DeleteEdge(ctx context.Context, id uuid.UUID) error {
	defer observe("delete_edge", time.Now())
	return m.inner.DeleteEdge(ctx, id)
}

func (m *metricsTx) DeleteEdges(ctx context.Context, relationID uuid.UUID) error {
	defer observe("delete_edges", time.Now())
	return m.inner.DeleteEdges(ctx, relationID)
}

func (m *metricsTx) DeleteEdgesForNode(ctx context.Context, nodeID uuid.UUID) error {
	defer observe("delete_node_edges", time.Now())
	return m.inner.DeleteEdgesForNode(ctx, nodeID)
}

var _ store.CollectionStore = (*metricsStore)(nil)
