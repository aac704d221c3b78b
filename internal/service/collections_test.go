package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/chirino/collection-service/internal/model"
	"github.com/chirino/collection-service/internal/plugin/cache/redis"
	"github.com/chirino/collection-service/internal/service"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectionService_CRUD(t *testing.T) {
	ctx := context.Background()
	svc, _ := newServices(t, service.Options{})

	_, err := svc.Collections.Create(ctx, "alice", service.CollectionInput{})
	requireValidation(t, err, "name")

	first := newCollection(t, svc, "alice")
	second := newCollection(t, svc, "bob")
	grant(t, svc, second.ID, "bob", "alice", model.PermissionViewer)
	newCollection(t, svc, "carol")

	list, err := svc.Collections.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)

	_, err = svc.Collections.Get(ctx, first.ID, "carol")
	requireAuthorization(t, err)

	name := "renamed"
	updated, err := svc.Collections.Update(ctx, first.ID, "alice", service.CollectionPatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)

	// VIEWER may read but not modify.
	_, err = svc.Collections.Get(ctx, second.ID, "alice")
	require.NoError(t, err)
	_, err = svc.Collections.Update(ctx, second.ID, "alice", service.CollectionPatch{Name: &name})
	requireAuthorization(t, err)

	_, err = svc.Collections.Get(ctx, uuid.New(), "alice")
	requireNotFound(t, err)
}

func TestCollectionService_DeleteCascades(t *testing.T) {
	ctx := context.Background()
	mirror := &recordingMirror{}
	svc, store := newServices(t, service.Options{Mirror: mirror})
	c := newCollection(t, svc, "alice")
	grant(t, svc, c.ID, "alice", "bob", model.PermissionEditor)

	chat := newChat(t, svc, c.ID, "bob")
	appendAll(t, svc, chat.ID, "bob", "m1", "m2")
	rel, err := svc.Relations.CreateRelation(ctx, c.ID, "alice", service.RelationInput{Title: "people"})
	require.NoError(t, err)
	a, err := svc.Relations.CreateNode(ctx, rel.ID, "alice", service.NodeInput{Title: "a"})
	require.NoError(t, err)
	b, err := svc.Relations.CreateNode(ctx, rel.ID, "alice", service.NodeInput{Title: "b"})
	require.NoError(t, err)
	_, err = svc.Relations.CreateEdge(ctx, rel.ID, "alice", service.EdgeInput{Source: a.ID, Target: b.ID, Label: "knows"})
	require.NoError(t, err)

	// EDITOR may modify but not delete the whole collection.
	requireAuthorization(t, svc.Collections.Delete(ctx, c.ID, "bob"))

	require.NoError(t, svc.Collections.Delete(ctx, c.ID, "alice"))

	_, err = store.GetCollection(ctx, c.ID)
	requireNotFound(t, err)
	_, err = store.GetChat(ctx, chat.ID)
	requireNotFound(t, err)
	history, err := store.ListHistory(ctx, chat.ID, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, history)
	_, err = store.GetRelation(ctx, rel.ID)
	requireNotFound(t, err)
	nodes, err := store.ListNodes(ctx, rel.ID)
	require.NoError(t, err)
	assert.Empty(t, nodes)
	perms, err := store.ListPermissions(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, perms)

	// The audit trail outlives the collection.
	logs, err := store.ListLogs(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	assert.Contains(t, mirror.Ops(), "delete_collection")
}

func TestCollectionService_GetDetails(t *testing.T) {
	ctx := context.Background()
	svc, _ := newServices(t, service.Options{})
	c := newCollection(t, svc, "alice")
	chat := newChat(t, svc, c.ID, "alice")
	appendAll(t, svc, chat.ID, "alice", "hello", "world")
	rel, err := svc.Relations.CreateRelation(ctx, c.ID, "alice", service.RelationInput{Title: "people"})
	require.NoError(t, err)
	_, err = svc.Relations.CreateNode(ctx, rel.ID, "alice", service.NodeInput{Title: "a"})
	require.NoError(t, err)

	d, err := svc.Collections.GetDetails(ctx, c.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, c.ID, d.ID)
	require.Len(t, d.Chats, 1)
	assert.Equal(t, []string{"hello", "world"}, contents(d.Chats[0].History))
	require.Len(t, d.Relations, 1)
	assert.Len(t, d.Relations[0].Nodes, 1)
	assert.Empty(t, d.Relations[0].Edges)

	_, err = svc.Collections.GetDetails(ctx, c.ID, "mallory")
	requireAuthorization(t, err)
}

func TestCollectionService_OwnerCache(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	owners, err := redis.LoadFromOptionsWithTTL(ctx, &goredis.Options{Addr: mr.Addr()}, time.Hour)
	require.NoError(t, err)

	svc, _ := newServices(t, service.Options{Owners: owners})
	c := newCollection(t, svc, "alice")

	owner, err := owners.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", owner)

	// Child resources resolve their root through the cache.
	chat := newChat(t, svc, c.ID, "alice")
	_, err = svc.Chats.Get(ctx, chat.ID, "alice")
	require.NoError(t, err)

	require.NoError(t, svc.Collections.Delete(ctx, c.ID, "alice"))
	owner, err = owners.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, owner)
}
