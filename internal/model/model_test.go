package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermissionLevelOrdering(t *testing.T) {
	assert.True(t, PermissionOwner.IsAtLeast(PermissionEditor))
	assert.True(t, PermissionOwner.IsAtLeast(PermissionOwner))
	assert.True(t, PermissionEditor.IsAtLeast(PermissionViewer))
	assert.False(t, PermissionViewer.IsAtLeast(PermissionEditor))
	assert.False(t, PermissionEditor.IsAtLeast(PermissionOwner))
}

func TestPermissionLevelUnknownNeverSatisfies(t *testing.T) {
	assert.False(t, PermissionLevel("ADMIN").IsAtLeast(PermissionViewer))
	assert.False(t, PermissionLevel("owner").IsAtLeast(PermissionViewer))
	assert.False(t, PermissionOwner.IsAtLeast(PermissionLevel("")))
}

func TestParsePermissionLevel(t *testing.T) {
	l, err := ParsePermissionLevel(" editor ")
	require.NoError(t, err)
	assert.Equal(t, PermissionEditor, l)

	_, err = ParsePermissionLevel("superuser")
	require.Error(t, err)
}

func TestChatRoleValid(t *testing.T) {
	for _, r := range []ChatRole{RoleUser, RoleAssistant, RoleSystem} {
		assert.True(t, r.Valid(), r)
	}
	assert.False(t, ChatRole("tool").Valid())
}

func TestTimestampTruncatesToMicroseconds(t *testing.T) {
	in := time.Date(2024, 1, 1, 0, 0, 0, 1234567, time.FixedZone("x", 3600))
	out := Timestamp(in)
	assert.Equal(t, time.UTC, out.Location())
	assert.Equal(t, 1234000, out.Nanosecond())
}
