package prompts

import (
	"errors"
	"net/http"

	"github.com/chirino/collection-service/internal/prompt"
	registryroute "github.com/chirino/collection-service/internal/registry/route"
	registrystore "github.com/chirino/collection-service/internal/registry/store"
	"github.com/gin-gonic/gin"
)

func init() {
	registryroute.Register(registryroute.Plugin{
		Name:  "prompts",
		Order: 200,
		Type:  registryroute.RouteTypeMain,
		Loader: func(r *gin.Engine, deps *registryroute.Deps) error {
			MountRoutes(r, deps.Prompts, deps.Auth)
			return nil
		},
	})
}

// MountRoutes mounts the prompt template routes.
func MountRoutes(r *gin.Engine, prompts *prompt.Manager, auth gin.HandlerFunc) {
	g := r.Group("/v1", auth)

	g.GET("/prompts", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"data": prompts.List()})
	})
	g.POST("/prompts/:name/render", func(c *gin.Context) {
		renderPrompt(c, prompts)
	})
}

func renderPrompt(c *gin.Context, prompts *prompt.Manager) {
	var req struct {
		Variables map[string]any `json:"variables"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	name := c.Param("name")
	out, err := prompts.Render(name, req.Variables)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "prompt": out})
}

func handleError(c *gin.Context, err error) {
	var notFound *registrystore.NotFoundError
	var validation *registrystore.ValidationError

	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": err.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
