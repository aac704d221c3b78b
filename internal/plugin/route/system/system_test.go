package system

import (
	"net/http"
	"net/http/httptest"
	"testing"

	registryroute "github.com/chirino/collection-service/internal/registry/route"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagementRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	require.NoError(t, registryroute.MountManagement(router))

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	assert.Equal(t, http.StatusOK, get("/health").Code)

	state.Store(stateStarting)
	w := get("/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"starting"}`, w.Body.String())

	MarkReady()
	assert.Equal(t, http.StatusOK, get("/ready").Code)

	MarkDraining()
	w = get("/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"draining"}`, w.Body.String())

	assert.Equal(t, http.StatusOK, get("/metrics").Code)
}
