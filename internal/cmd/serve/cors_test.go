package serve

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestParseOrigins_DefaultsToWildcard(t *testing.T) {
	origins := parseOrigins("")
	require.True(t, origins["*"])
}

func newCORSRouter(origins string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(corsMiddleware(origins, router.Routes))
	router.GET("/v1/collections", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.PATCH("/v1/collections/:id", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func TestCorsMiddleware_AllowsConfiguredOrigin(t *testing.T) {
	router := newCORSRouter("https://example.com, https://other.example.com")

	req := httptest.NewRequest(http.MethodGet, "/v1/collections", nil)
	req.Header.Set("Origin", "https://other.example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "https://other.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "GET, OPTIONS, PATCH", rec.Header().Get("Access-Control-Allow-Methods"))
}

func TestCorsMiddleware_IgnoresUnknownOrigin(t *testing.T) {
	router := newCORSRouter("https://example.com")

	req := httptest.NewRequest(http.MethodGet, "/v1/collections", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCorsMiddleware_AnswersPreflight(t *testing.T) {
	router := newCORSRouter("*")

	req := httptest.NewRequest(http.MethodOptions, "/v1/collections", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "https://example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "600", rec.Header().Get("Access-Control-Max-Age"))
}

func TestRouteMethods(t *testing.T) {
	methods := routeMethods(gin.RoutesInfo{
		{Method: http.MethodPost, Path: "/v1/collections"},
		{Method: http.MethodGet, Path: "/v1/collections"},
		{Method: http.MethodGet, Path: "/v1/collections/:id"},
		{Method: http.MethodDelete, Path: "/v1/collections/:id"},
	})
	require.Equal(t, []string{"DELETE", "GET", "OPTIONS", "POST"}, methods)
}
