package chats

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
		Name:  "chats",
		Order: 120,
		Type:  registryroute.RouteTypeMain,
		Loader: func(r *gin.Engine, deps *registryroute.Deps) error {
			MountRoutes(r, deps.Services, deps.Auth)
			return nil
		},
	})
}

// MountRoutes mounts chat routes.
func MountRoutes(r *gin.Engine, svc *service.Services, auth gin.HandlerFunc) {
	g := r.Group("/v1", auth)

	g.POST("/collections/:id/chats", func(c *gin.Context) {
		createChat(c, svc)
	})
	g.GET("/collections/:id/chats", func(c *gin.Context) {
		listChats(c, svc)
	})
	g.GET("/chats/:chatId", func(c *gin.Context) {
		getChat(c, svc)
	})
	g.PATCH("/chats/:chatId", func(c *gin.Context) {
		updateChat(c, svc)
	})
	g.DELETE("/chats/:chatId", func(c *gin.Context) {
		deleteChat(c, svc)
	})
}

func createChat(c *gin.Context, svc *service.Services) {
	collectionID, ok := parseID(c, "id", "collection")
	if !ok {
		return
	}
	var req service.ChatInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	chat, err := svc.Chats.Create(c.Request.Context(), collectionID, security.GetUserID(c), req)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, chat)
}

func listChats(c *gin.Context, svc *service.Services) {
	collectionID, ok := parseID(c, "id", "collection")
	if !ok {
		return
	}
	chats, err := svc.Chats.List(c.Request.Context(), collectionID, security.GetUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": chats})
}

func getChat(c *gin.Context, svc *service.Services) {
	chatID, ok := parseID(c, "chatId", "chat")
	if !ok {
		return
	}
	chat, err := svc.Chats.Get(c.Request.Context(), chatID, security.GetUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, chat)
}

func updateChat(c *gin.Context, svc *service.Services) {
	chatID, ok := parseID(c, "chatId", "chat")
	if !ok {
		return
	}
	var req service.ChatPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	chat, err := svc.Chats.Update(c.Request.Context(), chatID, security.GetUserID(c), req)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, chat)
}

func deleteChat(c *gin.Context, svc *service.Services) {
	chatID, ok := parseID(c, "chatId", "chat")
	if !ok {
		return
	}
	if err := svc.Chats.Delete(c.Request.Context(), chatID, security.GetUserID(c)); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func parseID(c *gin.Context, param, resource string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": resource + " not found"})
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
