// Package storetest holds behaviour checks shared by every CollectionStore
// plugin. Each plugin's tests call Run with a freshly migrated store.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chirino/collection-service/internal/model"
	registrystore "github.com/chirino/collection-service/internal/registry/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises store against the CollectionStore contract.
func Run(t *testing.T, ctx context.Context, store registrystore.CollectionStore) {
	t.Run("collections", func(t *testing.T) { testCollections(t, ctx, store) })
	t.Run("permissions", func(t *testing.T) { testPermissions(t, ctx, store) })
	t.Run("audit log", func(t *testing.T) { testAuditLog(t, ctx, store) })
	t.Run("chat history", func(t *testing.T) { testHistory(t, ctx, store) })
	t.Run("history version", func(t *testing.T) { testHistoryVersion(t, ctx, store) })
	t.Run("transaction rollback", func(t *testing.T) { testRollback(t, ctx, store) })
	t.Run("graph", func(t *testing.T) { testGraph(t, ctx, store) })
}

var base = model.Timestamp(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

// NewCollection inserts a collection created by owner at the given offset from a fixed base time.
func NewCollection(t *testing.T, ctx context.Context, store registrystore.Tx, owner string, offset time.Duration) *model.Collection {
	t.Helper()
	at := base.Add(offset)
	c := &model.Collection{
		ID:        uuid.New(),
		Name:      "collection " + owner,
		CreatedBy: owner,
		UpdatedBy: owner,
		CreatedAt: at,
		UpdatedAt: at,
	}
	require.NoError(t, store.CreateCollection(ctx, c))
	return c
}

// NewChat inserts a chat in the collection.
func NewChat(t *testing.T, ctx context.Context, store registrystore.Tx, collectionID uuid.UUID, owner string) *model.CollectionChat {
	t.Helper()
	c := &model.CollectionChat{
		ID:           uuid.New(),
		CollectionID: collectionID,
		Title:        "chat",
		CreatedBy:    owner,
		UpdatedBy:    owner,
		CreatedAt:    base,
		UpdatedAt:    base,
	}
	require.NoError(t, store.CreateChat(ctx, c))
	return c
}

func requireNotFound(t *testing.T, err error) {
	t.Helper()
	var nf *registrystore.NotFoundError
	require.True(t, errors.As(err, &nf), "expected NotFoundError, got %v", err)
}

func requireConflict(t *testing.T, err error) {
	t.Helper()
	var ce *registrystore.ConflictError
	require.True(t, errors.As(err, &ce), "expected ConflictError, got %v", err)
}

func sameInstant(t *testing.T, want, got time.Time) {
	t.Helper()
	assert.True(t, want.Equal(got), "want %s, got %s", want, got)
}

func testCollections(t *testing.T, ctx context.Context, store registrystore.CollectionStore) {
	owner := "owner-" + uuid.NewString()
	older := NewCollection(t, ctx, store, owner, 0)
	newer := NewCollection(t, ctx, store, owner, time.Second)

	other := NewCollection(t, ctx, store, "someone-else-"+uuid.NewString(), 2*time.Second)
	_, err := store.UpsertPermission(ctx, &model.CollectionPermission{
		CollectionID: other.ID, UserID: owner, Level: model.PermissionViewer, GrantedBy: other.CreatedBy,
	})
	require.NoError(t, err)
	NewCollection(t, ctx, store, "stranger-"+uuid.NewString(), 3*time.Second)

	got, err := store.GetCollection(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, older.Name, got.Name)
	sameInstant(t, older.CreatedAt, got.CreatedAt)

	list, err := store.ListCollections(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []uuid.UUID{other.ID, newer.ID, older.ID}, []uuid.UUID{list[0].ID, list[1].ID, list[2].ID})

	older.Name = "renamed"
	older.UpdatedAt = base.Add(time.Hour)
	require.NoError(t, store.UpdateCollection(ctx, older))
	got, err = store.GetCollection(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)

	require.NoError(t, store.DeleteCollection(ctx, newer.ID))
	_, err = store.GetCollection(ctx, newer.ID)
	requireNotFound(t, err)
	requireNotFound(t, store.DeleteCollection(ctx, newer.ID))
	requireNotFound(t, store.UpdateCollection(ctx, &model.Collection{ID: uuid.New()}))
}

func testPermissions(t *testing.T, ctx context.Context, store registrystore.CollectionStore) {
	col := NewCollection(t, ctx, store, "alice", 0)

	_, err := store.GetPermission(ctx, col.ID, "bob")
	requireNotFound(t, err)

	first, err := store.UpsertPermission(ctx, &model.CollectionPermission{
		CollectionID: col.ID, UserID: "bob", Level: model.PermissionViewer, GrantedBy: "alice",
		CreatedAt: base, UpdatedAt: base,
	})
	require.NoError(t, err)
	assert.Equal(t, model.PermissionViewer, first.Level)

	_, err = store.UpsertPermission(ctx, &model.CollectionPermission{
		CollectionID: col.ID, UserID: "carol", Level: model.PermissionEditor, GrantedBy: "alice",
		CreatedAt: base.Add(time.Second), UpdatedAt: base.Add(time.Second),
	})
	require.NoError(t, err)

	second, err := store.UpsertPermission(ctx, &model.CollectionPermission{
		CollectionID: col.ID, UserID: "bob", Level: model.PermissionOwner, GrantedBy: "carol",
		CreatedAt: base.Add(time.Minute), UpdatedAt: base.Add(time.Minute),
	})
	require.NoError(t, err)
	assert.Equal(t, model.PermissionOwner, second.Level)
	assert.Equal(t, "carol", second.GrantedBy)
	sameInstant(t, base, second.CreatedAt)

	list, err := store.ListPermissions(ctx, col.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "bob", list[0].UserID)
	assert.Equal(t, "carol", list[1].UserID)

	removed, err := store.RemovePermission(ctx, col.ID, "bob")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = store.RemovePermission(ctx, col.ID, "bob")
	require.NoError(t, err)
	assert.False(t, removed)

	require.NoError(t, store.DeletePermissions(ctx, col.ID))
	list, err = store.ListPermissions(ctx, col.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func testAuditLog(t *testing.T, ctx context.Context, store registrystore.CollectionStore) {
	collectionID := uuid.New()
	viewer := model.PermissionViewer

	for i, action := range []model.PermissionAction{model.ActionGrant, model.ActionRevoke, model.ActionRevoke} {
		e := &model.PermissionLogEntry{
			CollectionID: collectionID,
			UserID:       "bob",
			Action:       action,
			PerformedBy:  "alice",
			CreatedAt:    base.Add(time.Duration(i) * time.Millisecond),
		}
		if i < 2 {
			e.Level = &viewer
		}
		require.NoError(t, store.AppendLog(ctx, e))
		assert.NotEqual(t, uuid.Nil, e.ID)
	}

	logs, err := store.ListLogs(ctx, collectionID)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, model.ActionGrant, logs[0].Action)
	require.NotNil(t, logs[1].Level)
	assert.Equal(t, model.PermissionViewer, *logs[1].Level)
	assert.Nil(t, logs[2].Level)
}

func testHistory(t *testing.T, ctx context.Context, store registrystore.CollectionStore) {
	col := NewCollection(t, ctx, store, "alice", 0)
	chat := NewChat(t, ctx, store, col.ID, "alice")

	last, err := store.LastHistoryEntry(ctx, chat.ID)
	require.NoError(t, err)
	assert.Nil(t, last)

	var entries []*model.ChatHistoryEntry
	for i := 0; i < 4; i++ {
		e := &model.ChatHistoryEntry{
			ChatID:    chat.ID,
			Role:      model.RoleUser,
			Content:   "m",
			CreatedBy: "alice",
			CreatedAt: base.Add(time.Duration(i) * time.Microsecond),
		}
		require.NoError(t, store.InsertHistoryEntry(ctx, e))
		entries = append(entries, e)
	}

	dup := &model.ChatHistoryEntry{ChatID: chat.ID, Role: model.RoleUser, Content: "dup", CreatedBy: "alice", CreatedAt: entries[3].CreatedAt}
	requireConflict(t, store.InsertHistoryEntry(ctx, dup))

	last, err = store.LastHistoryEntry(ctx, chat.ID)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, entries[3].ID, last.ID)

	page, err := store.ListHistory(ctx, chat.ID, 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, entries[1].ID, page[0].ID)
	assert.Equal(t, entries[2].ID, page[1].ID)

	got, err := store.GetHistoryEntry(ctx, entries[2].ID)
	require.NoError(t, err)
	sameInstant(t, entries[2].CreatedAt, got.CreatedAt)

	n, err := store.DeleteHistoryFrom(ctx, chat.ID, got.CreatedAt)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	all, err := store.ListHistory(ctx, chat.ID, 100, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)

	require.NoError(t, store.DeleteHistoryEntry(ctx, entries[1].ID))
	requireNotFound(t, store.DeleteHistoryEntry(ctx, entries[1].ID))

	n, err = store.DeleteHistory(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, err = store.GetHistoryEntry(ctx, entries[0].ID)
	requireNotFound(t, err)
}

func testHistoryVersion(t *testing.T, ctx context.Context, store registrystore.CollectionStore) {
	col := NewCollection(t, ctx, store, "alice", 0)
	chat := NewChat(t, ctx, store, col.ID, "alice")

	err := store.InTx(ctx, func(ctx context.Context, tx registrystore.Tx) error {
		locked, err := tx.LockChat(ctx, chat.ID)
		if err != nil {
			return err
		}
		return tx.AdvanceHistoryVersion(ctx, chat.ID, locked.HistoryVersion)
	})
	require.NoError(t, err)

	got, err := store.GetChat(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.HistoryVersion)

	requireConflict(t, store.AdvanceHistoryVersion(ctx, chat.ID, 0))

	_, err = store.LockChat(ctx, uuid.New())
	requireNotFound(t, err)
}

func testRollback(t *testing.T, ctx context.Context, store registrystore.CollectionStore) {
	col := NewCollection(t, ctx, store, "alice", 0)
	boom := errors.New("boom")

	err := store.InTx(ctx, func(ctx context.Context, tx registrystore.Tx) error {
		if _, err := tx.UpsertPermission(ctx, &model.CollectionPermission{
			CollectionID: col.ID, UserID: "bob", Level: model.PermissionEditor, GrantedBy: "alice",
		}); err != nil {
			return err
		}
		if err := tx.AppendLog(ctx, &model.PermissionLogEntry{
			CollectionID: col.ID, UserID: "bob", Action: model.ActionGrant, PerformedBy: "alice",
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = store.GetPermission(ctx, col.ID, "bob")
	requireNotFound(t, err)
	logs, err := store.ListLogs(ctx, col.ID)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func testGraph(t *testing.T, ctx context.Context, store registrystore.CollectionStore) {
	col := NewCollection(t, ctx, store, "alice", 0)
	rel := &model.Relation{CollectionID: col.ID, Title: "rel", CreatedBy: "alice", UpdatedBy: "alice", CreatedAt: base, UpdatedAt: base}
	require.NoError(t, store.CreateRelation(ctx, rel))

	a := &model.Node{RelationID: rel.ID, Title: "a", CreatedBy: "alice", UpdatedBy: "alice", CreatedAt: base, UpdatedAt: base}
	b := &model.Node{RelationID: rel.ID, Title: "b", CreatedBy: "alice", UpdatedBy: "alice", CreatedAt: base.Add(time.Second), UpdatedAt: base}
	c := &model.Node{RelationID: rel.ID, Title: "c", CreatedBy: "alice", UpdatedBy: "alice", CreatedAt: base.Add(2 * time.Second), UpdatedAt: base}
	for _, n := range []*model.Node{a, b, c} {
		require.NoError(t, store.CreateNode(ctx, n))
	}
	ab := &model.Edge{RelationID: rel.ID, Label: "ab", Source: a.ID, Target: b.ID, CreatedBy: "alice", UpdatedBy: "alice", CreatedAt: base, UpdatedAt: base}
	bc := &model.Edge{RelationID: rel.ID, Label: "bc", Source: b.ID, Target: c.ID, CreatedBy: "alice", UpdatedBy: "alice", CreatedAt: base.Add(time.Second), UpdatedAt: base}
	require.NoError(t, store.CreateEdge(ctx, ab))
	require.NoError(t, store.CreateEdge(ctx, bc))

	nodes, err := store.ListNodes(ctx, rel.ID)
	require.NoError(t, err)
	require.Len(t, nodes, 3)
	assert.Equal(t, "a", nodes[0].Title)

	require.NoError(t, store.DeleteEdgesForNode(ctx, a.ID))
	edges, err := store.ListEdges(ctx, rel.ID)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, bc.ID, edges[0].ID)

	require.NoError(t, store.DeleteNode(ctx, a.ID))
	_, err = store.GetNode(ctx, a.ID)
	requireNotFound(t, err)

	rel.Title = "renamed"
	require.NoError(t, store.UpdateRelation(ctx, rel))
	got, err := store.GetRelation(ctx, rel.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)

	require.NoError(t, store.DeleteEdges(ctx, rel.ID))
	require.NoError(t, store.DeleteNodes(ctx, rel.ID))
	require.NoError(t, store.DeleteRelation(ctx, rel.ID))
	_, err = store.GetEdge(ctx, bc.ID)
	requireNotFound(t, err)
	rels, err := store.ListRelations(ctx, col.ID)
	require.NoError(t, err)
	assert.Empty(t, rels)
}
