package prompts_test

import (
	"net/http"
	"testing"
	"testing/fstest"

	"github.com/chirino/collection-service/internal/plugin/route/prompts"
	"github.com/chirino/collection-service/internal/prompt"
	"github.com/chirino/collection-service/internal/testutil/testroute"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	m, err := prompt.NewManager(fstest.MapFS{
		"catalog.yaml": {Data: []byte(`templates:
  - name: greet
    file: greet.tmpl
    description: Says hello.
    variables: [name]
`)},
		"greet.tmpl": {Data: []byte("Hello {{.name}}!")},
	})
	require.NoError(t, err)
	router := testroute.Router()
	prompts.MountRoutes(router, m, testroute.Auth)
	return router
}

func TestPromptRoutes(t *testing.T) {
	router := newRouter(t)

	w := testroute.DoJSON(t, router, http.MethodGet, "/v1/prompts", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":[{"name":"greet","description":"Says hello.","variables":["name"]}]}`, w.Body.String())

	w = testroute.DoJSON(t, router, http.MethodPost, "/v1/prompts/greet/render", "alice", map[string]any{
		"variables": map[string]any{"name": "Ada"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"name":"greet","prompt":"Hello Ada!"}`, w.Body.String())

	w = testroute.DoJSON(t, router, http.MethodPost, "/v1/prompts/greet/render", "alice", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = testroute.DoJSON(t, router, http.MethodPost, "/v1/prompts/missing/render", "alice", map[string]any{})
	assert.Equal(t, http.StatusNotFound, w.Code)
}
