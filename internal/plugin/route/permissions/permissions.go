package permissions

import (
	"errors"
	"net/http"

	"github.com/chirino/collection-service/internal/model"
	registryroute "github.com/chirino/collection-service/internal/registry/route"
	registrystore "github.com/chirino/collection-service/internal/registry/store"
	"github.com/chirino/collection-service/internal/security"
	"github.com/chirino/collection-service/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type myPermissionResponse struct {
	CollectionID uuid.UUID             `json:"collectionId"`
	UserID       string                `json:"userId"`
	Level        model.PermissionLevel `json:"level"`
}

type grantRequest struct {
	Permissions []service.Grant `json:"permissions" binding:"required"`
}

func init() {
	registryroute.Register(registryroute.Plugin{
		Name:  "permissions",
		Order: 110,
		Type:  registryroute.RouteTypeMain,
		Loader: func(r *gin.Engine, deps *registryroute.Deps) error {
			MountRoutes(r, deps.Services, deps.Auth)
			return nil
		},
	})
}

// MountRoutes mounts collection permission routes.
func MountRoutes(r *gin.Engine, svc *service.Services, auth gin.HandlerFunc) {
	g := r.Group("/v1", auth)

	g.POST("/collections/:id/permissions", func(c *gin.Context) {
		grantPermissions(c, svc)
	})
	g.GET("/collections/:id/permissions", func(c *gin.Context) {
		listPermissions(c, svc)
	})
	g.GET("/collections/:id/permissions/me", func(c *gin.Context) {
		myPermission(c, svc)
	})
	g.GET("/collections/:id/permissions/logs", func(c *gin.Context) {
		auditLog(c, svc)
	})
	g.DELETE("/collections/:id/permissions/:userId", func(c *gin.Context) {
		revokePermission(c, svc)
	})
}

func grantPermissions(c *gin.Context, svc *service.Services) {
	collectionID, ok := collectionID(c)
	if !ok {
		return
	}
	var req grantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	perms, err := svc.Permissions.GrantPermissions(c.Request.Context(), collectionID, req.Permissions, security.GetUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": perms})
}

func listPermissions(c *gin.Context, svc *service.Services) {
	collectionID, ok := collectionID(c)
	if !ok {
		return
	}
	perms, err := svc.Permissions.ListPermissions(c.Request.Context(), collectionID, security.GetUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": perms})
}

func myPermission(c *gin.Context, svc *service.Services) {
	collectionID, ok := collectionID(c)
	if !ok {
		return
	}
	userID := security.GetUserID(c)
	level, found, err := svc.Permissions.GetUserPermission(c.Request.Context(), collectionID, userID)
	if err != nil {
		handleError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "no permission found for this user"})
		return
	}
	c.JSON(http.StatusOK, myPermissionResponse{CollectionID: collectionID, UserID: userID, Level: level})
}

func auditLog(c *gin.Context, svc *service.Services) {
	collectionID, ok := collectionID(c)
	if !ok {
		return
	}
	logs, err := svc.Permissions.GetAuditLog(c.Request.Context(), collectionID, security.GetUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": logs})
}

func revokePermission(c *gin.Context, svc *service.Services) {
	collectionID, ok := collectionID(c)
	if !ok {
		return
	}
	if err := svc.Permissions.RevokePermission(c.Request.Context(), collectionID, c.Param("userId"), security.GetUserID(c)); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
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
