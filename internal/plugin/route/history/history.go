package history

import (
	"errors"
	"fmt"
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
		Name:  "history",
		Order: 130,
		Type:  registryroute.RouteTypeMain,
		Loader: func(r *gin.Engine, deps *registryroute.Deps) error {
			MountRoutes(r, deps.Services, deps.Auth)
			return nil
		},
	})
}

// MountRoutes mounts chat history routes.
func MountRoutes(r *gin.Engine, svc *service.Services, auth gin.HandlerFunc) {
	g := r.Group("/v1", auth)

	g.POST("/chats/:chatId/history", func(c *gin.Context) {
		appendMessage(c, svc)
	})
	g.GET("/chats/:chatId/history", func(c *gin.Context) {
		listMessages(c, svc)
	})
	g.DELETE("/chats/:chatId/history", func(c *gin.Context) {
		clearHistory(c, svc)
	})
	g.GET("/history/:entryId", func(c *gin.Context) {
		getEntry(c, svc)
	})
	g.PUT("/history/:entryId", func(c *gin.Context) {
		editEntry(c, svc)
	})
	g.DELETE("/history/:entryId", func(c *gin.Context) {
		deleteEntry(c, svc)
	})
}

func appendMessage(c *gin.Context, svc *service.Services) {
	chatID, ok := parseID(c, "chatId", "chat")
	if !ok {
		return
	}
	var req service.Message
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	entry, err := svc.History.Append(c.Request.Context(), chatID, req.Role, req.Content, security.GetUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

// listMessages authorizes the read through the chat before paging its history.
func listMessages(c *gin.Context, svc *service.Services) {
	chatID, ok := parseID(c, "chatId", "chat")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := svc.Chats.Get(ctx, chatID, security.GetUserID(c)); err != nil {
		handleError(c, err)
		return
	}
	limit := queryInt(c, "limit", 0)
	offset := queryInt(c, "offset", 0)
	entries, err := svc.History.ListMessages(ctx, chatID, limit, offset)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entries})
}

func clearHistory(c *gin.Context, svc *service.Services) {
	chatID, ok := parseID(c, "chatId", "chat")
	if !ok {
		return
	}
	if _, err := svc.History.Clear(c.Request.Context(), chatID, security.GetUserID(c)); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func getEntry(c *gin.Context, svc *service.Services) {
	entryID, ok := parseID(c, "entryId", "history entry")
	if !ok {
		return
	}
	entry, err := svc.History.Get(c.Request.Context(), entryID, security.GetUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func editEntry(c *gin.Context, svc *service.Services) {
	entryID, ok := parseID(c, "entryId", "history entry")
	if !ok {
		return
	}
	var req service.Message
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	entry, err := svc.History.Edit(c.Request.Context(), entryID, req, security.GetUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func deleteEntry(c *gin.Context, svc *service.Services) {
	entryID, ok := parseID(c, "entryId", "history entry")
	if !ok {
		return
	}
	if err := svc.History.Delete(c.Request.Context(), entryID, security.GetUserID(c)); err != nil {
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

func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	var i int
	if n, _ := fmt.Sscanf(v, "%d", &i); n == 1 {
		return i
	}
	return def
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
