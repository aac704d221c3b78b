package prompt

import (
	"errors"
	"testing"
	"testing/fstest"

	registrystore "github.com/chirino/collection-service/internal/registry/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmbedded(t *testing.T) {
	m, err := Load("")
	require.NoError(t, err)

	names := []string{}
	for _, info := range m.List() {
		names = append(names, info.Name)
	}
	assert.Equal(t, []string{"chat_title", "collection_summary", "relation_extraction"}, names)
}

func TestRender(t *testing.T) {
	m, err := Load("")
	require.NoError(t, err)

	out, err := m.Render("chat_title", map[string]any{
		"messages": []any{
			map[string]any{"role": "user", "content": "how do I bake bread?"},
			map[string]any{"role": "assistant", "content": "start with flour"},
		},
	})
	require.NoError(t, err)
	assert.Contains(t, out, "user: how do I bake bread?")
	assert.Contains(t, out, "assistant: start with flour")

	out, err = m.Render("collection_summary", map[string]any{
		"collection": map[string]any{"name": "Recipes"},
		"chats":      []any{},
		"relations":  []any{map[string]any{"title": "ingredients"}},
	})
	require.NoError(t, err)
	assert.Contains(t, out, `collection "Recipes"`)
	assert.NotContains(t, out, "Description:")
	assert.Contains(t, out, "- (none)")
	assert.Contains(t, out, "- ingredients")
}

func TestRender_Errors(t *testing.T) {
	m, err := Load("")
	require.NoError(t, err)

	_, err = m.Render("missing", nil)
	var nf *registrystore.NotFoundError
	assert.True(t, errors.As(err, &nf))

	_, err = m.Render("relation_extraction", map[string]any{"relation": "people"})
	var ve *registrystore.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, ve.Message, "text")
}

func TestNewManager_CustomFS(t *testing.T) {
	fsys := fstest.MapFS{
		"catalog.yaml": {Data: []byte("templates:\n  - name: hello\n    file: hello.tmpl\n    variables: [who]\n")},
		"hello.tmpl":   {Data: []byte("hello {{ .who }}")},
	}
	m, err := NewManager(fsys)
	require.NoError(t, err)

	out, err := m.Render("hello", map[string]any{"who": "world"})
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)
}

func TestNewManager_RejectsBadCatalog(t *testing.T) {
	_, err := NewManager(fstest.MapFS{
		"catalog.yaml": {Data: []byte("templates:\n  - name: a\n    file: a.tmpl\n  - name: a\n    file: a.tmpl\n")},
		"a.tmpl":       {Data: []byte("x")},
	})
	assert.ErrorContains(t, err, "duplicate")

	_, err = NewManager(fstest.MapFS{
		"catalog.yaml": {Data: []byte("templates:\n  - name: b\n    file: b.tmpl\n")},
		"b.tmpl":       {Data: []byte("{{ .unclosed ")},
	})
	assert.ErrorContains(t, err, "parse b.tmpl")
}
