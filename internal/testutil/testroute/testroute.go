// Package testroute holds helpers for exercising gin routes in tests.
package testroute

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/chirino/collection-service/internal/model"
	"github.com/chirino/collection-service/internal/security"
	"github.com/chirino/collection-service/internal/service"
	"github.com/chirino/collection-service/internal/testutil/testsqlite"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// Auth treats the bearer token as the user id.
func Auth(c *gin.Context) {
	c.Set(security.ContextKeyUserID, strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
	c.Next()
}

// Services returns services backed by a fresh in-memory store.
func Services(t *testing.T) *service.Services {
	t.Helper()
	return service.New(testsqlite.Open(t), service.Options{})
}

// Router returns a gin engine in test mode.
func Router() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

// DoJSON sends body as JSON on behalf of userID. A nil body sends no payload.
func DoJSON(t *testing.T, router *gin.Engine, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewReader(data)
	} else {
		payload = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, payload)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+userID)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// Decode unmarshals the response body into out.
func Decode(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), "body: %s", w.Body.String())
}

// Grant gives user level on the collection, on behalf of owner.
func Grant(t *testing.T, svc *service.Services, collectionID, owner, user string, level model.PermissionLevel) {
	t.Helper()
	id := mustUUID(t, collectionID)
	_, err := svc.Permissions.GrantPermissions(t.Context(), id, []service.Grant{{UserID: user, Level: level}}, owner)
	require.NoError(t, err)
}

func mustUUID(t *testing.T, s string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(s)
	require.NoError(t, err)
	return id
}
