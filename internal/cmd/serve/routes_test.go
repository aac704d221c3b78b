package serve

import (
	"net/http"
	"testing"

	"github.com/chirino/collection-service/internal/prompt"
	registryroute "github.com/chirino/collection-service/internal/registry/route"
	"github.com/chirino/collection-service/internal/testutil/testroute"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisteredRoutePlugins(t *testing.T) {
	assert.Equal(t,
		[]string{"collections", "permissions", "chats", "history", "relations", "prompts"},
		registryroute.Names(registryroute.RouteTypeMain))
	assert.Equal(t, []string{"system"}, registryroute.Names(registryroute.RouteTypeManagement))

	prompts, err := prompt.Load("")
	require.NoError(t, err)
	router := testroute.Router()
	require.NoError(t, registryroute.MountMain(router, &registryroute.Deps{
		Services: testroute.Services(t),
		Prompts:  prompts,
		Auth:     testroute.Auth,
	}))
	require.NoError(t, registryroute.MountManagement(router))

	mounted := map[string]bool{}
	for _, r := range router.Routes() {
		mounted[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"POST /v1/collections",
		"GET /v1/collections/:id/details",
		"POST /v1/collections/:id/permissions",
		"GET /v1/chats/:chatId",
		"PUT /v1/history/:entryId",
		"POST /v1/relations/:relationId/edges",
		"POST /v1/prompts/:name/render",
		"GET /ready",
	} {
		assert.Truef(t, mounted[want], "route %s not mounted", want)
	}

	w := testroute.DoJSON(t, router, http.MethodPost, "/v1/collections", "alice", map[string]string{"name": "workspace"})
	assert.Equal(t, http.StatusCreated, w.Code)
}
