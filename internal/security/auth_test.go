package security_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chirino/collection-service/internal/config"
	"github.com/chirino/collection-service/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResolver(mode string) *security.TokenResolver {
	cfg := config.DefaultConfig()
	cfg.Mode = mode
	cfg.APIKeys = map[string]string{"secret-key": "agent-1"}
	return security.NewTokenResolver(&cfg)
}

func TestResolve_APIKeyMode(t *testing.T) {
	r := newResolver(config.ModeProd)

	id, err := r.Resolve(t.Context(), "alice", "secret-key", "ignored")
	require.NoError(t, err)
	assert.Equal(t, "alice", id.UserID)
	assert.Equal(t, "agent-1", id.ClientID)

	id, err = r.Resolve(t.Context(), "alice", "wrong", "spoofed")
	require.NoError(t, err)
	assert.Empty(t, id.ClientID)

	_, err = r.Resolve(t.Context(), "  ", "", "")
	require.Error(t, err)
}

func TestResolve_TestingModeAcceptsClientHeader(t *testing.T) {
	r := newResolver(config.ModeTesting)

	id, err := r.Resolve(t.Context(), "bob", "", "agent-2")
	require.NoError(t, err)
	assert.Equal(t, "agent-2", id.ClientID)

	// A valid API key wins over the header.
	id, err = r.Resolve(t.Context(), "bob", "secret-key", "agent-2")
	require.NoError(t, err)
	assert.Equal(t, "agent-1", id.ClientID)
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/whoami", security.AuthMiddleware(newResolver(config.ModeProd)), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": security.GetUserID(c), "client": security.GetClientID(c)})
	})

	do := func(header map[string]string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		for k, v := range header {
			req.Header.Set(k, v)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	w := do(nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(map[string]string{"Authorization": "Basic abc"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(map[string]string{"Authorization": "Bearer alice", "X-API-Key": "secret-key"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":"alice","client":"agent-1"}`, w.Body.String())
}
