package chats_test

import (
	"net/http"
	"testing"

	"github.com/chirino/collection-service/internal/model"
	"github.com/chirino/collection-service/internal/plugin/route/chats"
	"github.com/chirino/collection-service/internal/service"
	"github.com/chirino/collection-service/internal/testutil/testroute"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatResponse struct {
	ID           string `json:"id"`
	CollectionID string `json:"collectionId"`
	Title        string `json:"title"`
	CreatedBy    string `json:"createdBy"`
}

func TestChatRoutes(t *testing.T) {
	svc := testroute.Services(t)
	router := testroute.Router()
	chats.MountRoutes(router, svc, testroute.Auth)

	col, err := svc.Collections.Create(t.Context(), "alice", service.CollectionInput{Name: "notes"})
	require.NoError(t, err)
	testroute.Grant(t, svc, col.ID.String(), "alice", "carol", model.PermissionViewer)
	base := "/v1/collections/" + col.ID.String() + "/chats"

	w := testroute.DoJSON(t, router, http.MethodPost, base, "alice", map[string]any{"title": "planning"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var chat chatResponse
	testroute.Decode(t, w, &chat)
	assert.Equal(t, col.ID.String(), chat.CollectionID)
	assert.Equal(t, "alice", chat.CreatedBy)

	w = testroute.DoJSON(t, router, http.MethodPost, base, "alice", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = testroute.DoJSON(t, router, http.MethodPost, base, "carol", map[string]any{"title": "nope"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = testroute.DoJSON(t, router, http.MethodGet, base, "carol", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Data []chatResponse `json:"data"`
	}
	testroute.Decode(t, w, &list)
	require.Len(t, list.Data, 1)
	assert.Equal(t, chat.ID, list.Data[0].ID)

	path := "/v1/chats/" + chat.ID
	w = testroute.DoJSON(t, router, http.MethodPatch, path, "alice", map[string]any{"title": "renamed"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = testroute.DoJSON(t, router, http.MethodGet, path, "carol", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got chatResponse
	testroute.Decode(t, w, &got)
	assert.Equal(t, "renamed", got.Title)

	w = testroute.DoJSON(t, router, http.MethodGet, path, "mallory", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = testroute.DoJSON(t, router, http.MethodDelete, path, "carol", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = testroute.DoJSON(t, router, http.MethodDelete, path, "alice", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = testroute.DoJSON(t, router, http.MethodGet, path, "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = testroute.DoJSON(t, router, http.MethodGet, "/v1/chats/bogus", "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
