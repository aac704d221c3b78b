package collections_test

import (
	"net/http"
	"testing"

	"github.com/chirino/collection-service/internal/model"
	"github.com/chirino/collection-service/internal/plugin/route/collections"
	"github.com/chirino/collection-service/internal/testutil/testroute"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collectionResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedBy string `json:"createdBy"`
}

func TestCollectionRoutes(t *testing.T) {
	svc := testroute.Services(t)
	router := testroute.Router()
	collections.MountRoutes(router, svc, testroute.Auth)

	w := testroute.DoJSON(t, router, http.MethodPost, "/v1/collections", "alice", map[string]any{"name": "notes"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created collectionResponse
	testroute.Decode(t, w, &created)
	assert.Equal(t, "notes", created.Name)
	assert.Equal(t, "alice", created.CreatedBy)

	w = testroute.DoJSON(t, router, http.MethodPost, "/v1/collections", "alice", map[string]any{"description": "no name"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = testroute.DoJSON(t, router, http.MethodGet, "/v1/collections", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Data []collectionResponse `json:"data"`
	}
	testroute.Decode(t, w, &list)
	require.Len(t, list.Data, 1)

	w = testroute.DoJSON(t, router, http.MethodGet, "/v1/collections", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":[]}`, w.Body.String())

	path := "/v1/collections/" + created.ID
	w = testroute.DoJSON(t, router, http.MethodGet, path, "bob", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	testroute.Grant(t, svc, created.ID, "alice", "bob", model.PermissionEditor)
	w = testroute.DoJSON(t, router, http.MethodPatch, path, "bob", map[string]any{"name": "renamed"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated collectionResponse
	testroute.Decode(t, w, &updated)
	assert.Equal(t, "renamed", updated.Name)

	w = testroute.DoJSON(t, router, http.MethodGet, path+"/details", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var details struct {
		Name      string `json:"name"`
		Chats     []any  `json:"chats"`
		Relations []any  `json:"relations"`
	}
	testroute.Decode(t, w, &details)
	assert.Equal(t, "renamed", details.Name)
	assert.NotNil(t, details.Chats)
	assert.NotNil(t, details.Relations)

	w = testroute.DoJSON(t, router, http.MethodDelete, path, "bob", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = testroute.DoJSON(t, router, http.MethodDelete, path, "alice", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = testroute.DoJSON(t, router, http.MethodGet, path, "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCollectionRoutes_NotFound(t *testing.T) {
	svc := testroute.Services(t)
	router := testroute.Router()
	collections.MountRoutes(router, svc, testroute.Auth)

	w := testroute.DoJSON(t, router, http.MethodGet, "/v1/collections/not-a-uuid", "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"code":"not_found","error":"collection not found"}`, w.Body.String())

	w = testroute.DoJSON(t, router, http.MethodDelete, "/v1/collections/"+uuid.NewString(), "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
