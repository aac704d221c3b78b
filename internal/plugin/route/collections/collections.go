package collections

import (
	"errors"
	"net/http"

	registryroute "github.com/chirino/collection-service/internal/registry/route"
	registrystore "github.com/chirino/collection-service/internal/registry/store"
	"github.com/chirino/collection-service/internal/security"
	"github.com/chirino/collection-service/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func init() {
	registryroute.Register(registryroute.Plugin{
		Name:  "collections",
		Order: 100,
		Type:  registryroute.RouteTypeMain,
		Loader: func(r *gin.Engine, deps *registryroute.Deps) error {
			MountRoutes(r, deps.Services, deps.Auth)
			return nil
		},
	})
}

// MountRoutes mounts collection routes.
func MountRoutes(r *gin.Engine, svc *service.Services, auth gin.HandlerFunc) {
	g := r.Group("/v1", auth)

	g.POST("/collections", func(c *gin.Context) {
		createCollection(c, svc)
	})
	g.GET("/collections", func(c *gin.Context) {
		listCollections(c, svc)
	})
	g.GET("/collections/:id", func(c *gin.Context) {
		getCollection(c, svc)
	})
	g.PATCH("/collections/:id", func(c *gin.Context) {
		updateCollection(c, svc)
	})
	g.DELETE("/collections/:id", func(c *gin.Context) {
		deleteCollection(c, svc)
	})
	g.GET("/collections/:id/details", func(c *gin.Context) {
		getDetails(c, svc)
	})
}

func createCollection(c *gin.Context, svc *service.Services) {
	var req service.CollectionInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	col, err := svc.Collections.Create(c.Request.Context(), security.GetUserID(c), req)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, col)
}

func listCollections(c *gin.Context, svc *service.Services) {
	cols, err := svc.Collections.List(c.Request.Context(), security.GetUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": cols})
}

func getCollection(c *gin.Context, svc *service.Services) {
	id, ok := collectionID(c)
	if !ok {
		return
	}
	col, err := svc.Collections.Get(c.Request.Context(), id, security.GetUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, col)
}

func updateCollection(c *gin.Context, svc *service.Services) {
	id, ok := collectionID(c)
	if !ok {
		return
	}
	var req service.CollectionPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	col, err := svc.Collections.Update(c.Request.Context(), id, security.GetUserID(c), req)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, col)
}

func deleteCollection(c *gin.Context, svc *service.Services) {
	id, ok := collectionID(c)
	if !ok {
		return
	}
	if err := svc.Collections.Delete(c.Request.Context(), id, security.GetUserID(c)); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func getDetails(c *gin.Context, svc *service.Services) {
	id, ok := collectionID(c)
	if !ok {
		return
	}
	details, err := svc.Collections.GetDetails(c.Request.Context(), id, security.GetUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

func collectionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "collection not found"})
		return uuid.Nil, false
	}
	return id, true
}

func handleError(c *gin.Context, err error) {
	var notFound *registrystore.NotFoundError
	var validation *registrystore.ValidationError
	var conflict *registrystore.ConflictError
	var forbidden *registrystore.AuthorizationError

	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": err.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"code": "conflict", "error": err.Error()})
	case errors.As(err, &forbidden):
		c.JSON(http.StatusForbidden, gin.H{"code": "forbidden", "error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
