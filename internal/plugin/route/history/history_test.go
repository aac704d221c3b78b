package history_test

import (
	"net/http"
	"testing"

	"github.com/chirino/collection-service/internal/model"
	"github.com/chirino/collection-service/internal/plugin/route/history"
	"github.com/chirino/collection-service/internal/service"
	"github.com/chirino/collection-service/internal/testutil/testroute"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entryResponse struct {
	ID      string `json:"id"`
	ChatID  string `json:"chatId"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

type entryList struct {
	Data []entryResponse `json:"data"`
}

func setup(t *testing.T) (*gin.Engine, *service.Services, string) {
	t.Helper()
	svc := testroute.Services(t)
	router := testroute.Router()
	history.MountRoutes(router, svc, testroute.Auth)

	col, err := svc.Collections.Create(t.Context(), "alice", service.CollectionInput{Name: "notes"})
	require.NoError(t, err)
	testroute.Grant(t, svc, col.ID.String(), "alice", "carol", model.PermissionViewer)
	chat, err := svc.Chats.Create(t.Context(), col.ID, "alice", service.ChatInput{Title: "planning"})
	require.NoError(t, err)
	return router, svc, chat.ID.String()
}

func appendMessages(t *testing.T, router *gin.Engine, chatID string, contents ...string) []entryResponse {
	t.Helper()
	out := make([]entryResponse, 0, len(contents))
	for _, content := range contents {
		w := testroute.DoJSON(t, router, http.MethodPost, "/v1/chats/"+chatID+"/history", "alice",
			map[string]any{"role": "user", "content": content})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		var e entryResponse
		testroute.Decode(t, w, &e)
		out = append(out, e)
	}
	return out
}

func listContents(t *testing.T, router *gin.Engine, path, user string) []string {
	t.Helper()
	w := testroute.DoJSON(t, router, http.MethodGet, path, user, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var list entryList
	testroute.Decode(t, w, &list)
	out := make([]string, len(list.Data))
	for i, e := range list.Data {
		out[i] = e.Content
	}
	return out
}

func TestHistoryRoutes_AppendAndList(t *testing.T) {
	router, _, chatID := setup(t)
	entries := appendMessages(t, router, chatID, "m1", "m2", "m3")
	assert.Equal(t, chatID, entries[0].ChatID)
	assert.Equal(t, "user", entries[0].Role)

	base := "/v1/chats/" + chatID + "/history"
	assert.Equal(t, []string{"m1", "m2", "m3"}, listContents(t, router, base, "carol"))
	assert.Equal(t, []string{"m2"}, listContents(t, router, base+"?limit=1&offset=1", "alice"))

	w := testroute.DoJSON(t, router, http.MethodGet, base, "mallory", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = testroute.DoJSON(t, router, http.MethodPost, base, "carol", map[string]any{"role": "user", "content": "x"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = testroute.DoJSON(t, router, http.MethodPost, base, "alice", map[string]any{"role": "robot", "content": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = testroute.DoJSON(t, router, http.MethodGet, "/v1/chats/"+uuid.NewString()+"/history", "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHistoryRoutes_Edit(t *testing.T) {
	router, _, chatID := setup(t)
	entries := appendMessages(t, router, chatID, "m1", "m2", "m3")

	path := "/v1/history/" + entries[1].ID
	w := testroute.DoJSON(t, router, http.MethodPut, path, "carol", map[string]any{"role": "user", "content": "new"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = testroute.DoJSON(t, router, http.MethodPut, path, "alice", map[string]any{"role": "user", "content": "new"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var edited entryResponse
	testroute.Decode(t, w, &edited)
	assert.Equal(t, "new", edited.Content)
	assert.NotEqual(t, entries[1].ID, edited.ID)

	assert.Equal(t, []string{"m1", "new"}, listContents(t, router, "/v1/chats/"+chatID+"/history", "alice"))

	// The edited entry was truncated along with its tail.
	w = testroute.DoJSON(t, router, http.MethodPut, path, "alice", map[string]any{"role": "user", "content": "again"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = testroute.DoJSON(t, router, http.MethodGet, "/v1/history/"+entries[2].ID, "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = testroute.DoJSON(t, router, http.MethodGet, "/v1/history/"+edited.ID, "carol", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestHistoryRoutes_Delete(t *testing.T) {
	router, _, chatID := setup(t)
	entries := appendMessages(t, router, chatID, "m1", "m2", "m3")
	base := "/v1/chats/" + chatID + "/history"

	w := testroute.DoJSON(t, router, http.MethodDelete, "/v1/history/"+entries[0].ID, "alice", nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"m2", "m3"}, listContents(t, router, base, "alice"))

	w = testroute.DoJSON(t, router, http.MethodDelete, base, "carol", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = testroute.DoJSON(t, router, http.MethodDelete, base, "alice", nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, listContents(t, router, base, "alice"))
}
