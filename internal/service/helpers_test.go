package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/chirino/collection-service/internal/model"
	registrygraph "github.com/chirino/collection-service/internal/registry/graph"
	registrystore "github.com/chirino/collection-service/internal/registry/store"
	"github.com/chirino/collection-service/internal/service"
	"github.com/chirino/collection-service/internal/testutil/testsqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newServices(t *testing.T, opts service.Options) (*service.Services, registrystore.CollectionStore) {
	t.Helper()
	store := testsqlite.Open(t)
	return service.New(store, opts), store
}

func newCollection(t *testing.T, svc *service.Services, owner string) *model.Collection {
	t.Helper()
	c, err := svc.Collections.Create(context.Background(), owner, service.CollectionInput{Name: "workspace"})
	require.NoError(t, err)
	return c
}

func newChat(t *testing.T, svc *service.Services, collectionID uuid.UUID, user string) *model.CollectionChat {
	t.Helper()
	chat, err := svc.Chats.Create(context.Background(), collectionID, user, service.ChatInput{Title: "chat"})
	require.NoError(t, err)
	return chat
}

func grant(t *testing.T, svc *service.Services, collectionID uuid.UUID, owner, user string, level model.PermissionLevel) {
	t.Helper()
	_, err := svc.Permissions.GrantPermissions(context.Background(), collectionID,
		[]service.Grant{{UserID: user, Level: level}}, owner)
	require.NoError(t, err)
}

func requireAuthorization(t *testing.T, err error) {
	t.Helper()
	var ae *registrystore.AuthorizationError
	require.Truef(t, errors.As(err, &ae), "expected AuthorizationError, got %v", err)
}

func requireNotFound(t *testing.T, err error) {
	t.Helper()
	var nf *registrystore.NotFoundError
	require.Truef(t, errors.As(err, &nf), "expected NotFoundError, got %v", err)
}

func requireValidation(t *testing.T, err error, field string) {
	t.Helper()
	var ve *registrystore.ValidationError
	require.Truef(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
	require.Equal(t, field, ve.Field)
}

// recordingMirror remembers every call and optionally fails them all.
type recordingMirror struct {
	mu   sync.Mutex
	ops  []string
	fail error
}

func (m *recordingMirror) record(op string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, op)
	return m.fail
}

func (m *recordingMirror) Ops() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ops...)
}

func (m *recordingMirror) Available() bool { return true }
func (m *recordingMirror) UpsertRelation(context.Context, model.Relation) error {
	return m.record("upsert_relation")
}
func (m *recordingMirror) UpsertNode(context.Context, model.Node) error { return m.record("upsert_node") }
func (m *recordingMirror) UpsertEdge(context.Context, model.Edge) error { return m.record("upsert_edge") }
func (m *recordingMirror) DeleteRelation(context.Context, uuid.UUID) error {
	return m.record("delete_relation")
}
func (m *recordingMirror) DeleteNode(context.Context, uuid.UUID) error { return m.record("delete_node") }
func (m *recordingMirror) DeleteEdge(context.Context, uuid.UUID) error { return m.record("delete_edge") }
func (m *recordingMirror) DeleteCollection(context.Context, uuid.UUID) error {
	return m.record("delete_collection")
}
func (m *recordingMirror) Close(context.Context) error { return nil }

var _ registrygraph.Mirror = (*recordingMirror)(nil)
