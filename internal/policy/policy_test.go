package policy

import (
	"errors"
	"testing"

	"github.com/chirino/collection-service/internal/model"
	registrystore "github.com/chirino/collection-service/internal/registry/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatChain(collectionOwner, chatCreator string) Ancestry {
	return ForCollection(uuid.New(), collectionOwner).Child(KindChat, uuid.New(), chatCreator)
}

func TestCanAccess_CreatorChain(t *testing.T) {
	a := chatChain("alice", "bob")

	assert.True(t, CanAccess(a, "alice"), "collection creator reaches descendants")
	assert.True(t, CanAccess(a, "bob"), "chat creator reaches own chat")
	assert.False(t, CanAccess(a, "carol"))
	assert.False(t, CanAccess(a, ""))

	parent, ok := a.Parent()
	require.True(t, ok)
	assert.False(t, CanAccess(parent, "bob"), "chat creator does not reach the collection")
}

func TestCanModify_NodeUnderRelation(t *testing.T) {
	a := ForCollection(uuid.New(), "alice").
		Child(KindRelation, uuid.New(), "bob").
		Child(KindNode, uuid.New(), "dave")

	assert.True(t, CanModify(a, "alice"))
	assert.True(t, CanModify(a, "bob"))
	assert.True(t, CanModify(a, "dave"))
	assert.False(t, CanModify(a, "carol"))
}

func TestChildDoesNotAliasParent(t *testing.T) {
	root := ForCollection(uuid.New(), "alice")
	a := root.Child(KindChat, uuid.New(), "bob")
	b := root.Child(KindRelation, uuid.New(), "carol")

	assert.Equal(t, KindChat, a.Resource().Kind)
	assert.Equal(t, KindRelation, b.Resource().Kind)
	assert.Equal(t, KindCollection, root.Resource().Kind)
}

func TestAuthorize_DelegatedLevels(t *testing.T) {
	base := chatChain("alice", "alice")

	cases := []struct {
		level model.PermissionLevel
		read  bool
		write bool
		owner bool
	}{
		{"", false, false, false},
		{model.PermissionViewer, true, false, false},
		{model.PermissionEditor, true, true, false},
		{model.PermissionOwner, true, true, true},
	}
	for _, tc := range cases {
		a := base.WithDelegated(tc.level)
		assert.Equal(t, tc.read, Authorize(a, "carol", Read) == nil, "read %q", tc.level)
		assert.Equal(t, tc.write, Authorize(a, "carol", Write) == nil, "write %q", tc.level)
		assert.Equal(t, tc.owner, Authorize(a, "carol", Manage) == nil, "manage %q", tc.level)
	}
}

func TestAuthorize_ManageRequiresCollectionOwnership(t *testing.T) {
	a := chatChain("alice", "bob")

	require.NoError(t, Authorize(a, "alice", Manage))

	err := Authorize(a, "bob", Manage)
	var authErr *registrystore.AuthorizationError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, "chat", authErr.Resource)
}

func TestAuthorize_UnknownLevelDenied(t *testing.T) {
	a := chatChain("alice", "alice").WithDelegated(model.PermissionLevel("ADMIN"))
	assert.Error(t, Authorize(a, "mallory", Read))
}
