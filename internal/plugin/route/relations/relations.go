package relations

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
		Name:  "relations",
		Order: 140,
		Type:  registryroute.RouteTypeMain,
		Loader: func(r *gin.Engine, deps *registryroute.Deps) error {
			MountRoutes(r, deps.Services, deps.Auth)
			return nil
		},
	})
}

// MountRoutes mounts relation, node and edge routes.
func MountRoutes(r *gin.Engine, svc *service.Services, auth gin.HandlerFunc) {
	g := r.Group("/v1", auth)

	g.POST("/collections/:id/relations", func(c *gin.Context) {
		createRelation(c, svc)
	})
	g.GET("/collections/:id/relations", func(c *gin.Context) {
		listRelations(c, svc)
	})
	g.GET("/relations/:relationId", func(c *gin.Context) {
		getRelation(c, svc)
	})
	g.PATCH("/relations/:relationId", func(c *gin.Context) {
		updateRelation(c, svc)
	})
	g.DELETE("/relations/:relationId", func(c *gin.Context) {
		deleteRelation(c, svc)
	})

	g.POST("/relations/:relationId/nodes", func(c *gin.Context) {
		createNode(c, svc)
	})
	g.GET("/relations/:relationId/nodes", func(c *gin.Context) {
		listNodes(c, svc)
	})
	g.DELETE("/nodes/:nodeId", func(c *gin.Context) {
		deleteNode(c, svc)
	})

	g.POST("/relations/:relationId/edges", func(c *gin.Context) {
		createEdge(c, svc)
	})
	g.GET("/relations/:relationId/edges", func(c *gin.Context) {
		listEdges(c, svc)
	})
	g.DELETE("/edges/:edgeId", func(c *gin.Context) {
		deleteEdge(c, svc)
	})
}

func createRelation(c *gin.Context, svc *service.Services) {
	collectionID, ok := parseID(c, "id", "collection")
	if !ok {
		return
	}
	var req service.RelationInput
	if !bind(c, &req) {
		return
	}
	rel, err := svc.Relations.CreateRelation(c.Request.Context(), collectionID, security.GetUserID(c), req)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rel)
}

func listRelations(c *gin.Context, svc *service.Services) {
	collectionID, ok := parseID(c, "id", "collection")
	if !ok {
		return
	}
	rels, err := svc.Relations.ListRelations(c.Request.Context(), collectionID, security.GetUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rels})
}

func getRelation(c *gin.Context, svc *service.Services) {
	relationID, ok := parseID(c, "relationId", "relation")
	if !ok {
		return
	}
	rel, err := svc.Relations.GetRelation(c.Request.Context(), relationID, security.GetUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, rel)
}

func updateRelation(c *gin.Context, svc *service.Services) {
	relationID, ok := parseID(c, "relationId", "relation")
	if !ok {
		return
	}
	var req service.RelationPatch
	if !bind(c, &req) {
		return
	}
	rel, err := svc.Relations.UpdateRelation(c.Request.Context(), relationID, security.GetUserID(c), req)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, rel)
}

func deleteRelation(c *gin.Context, svc *service.Services) {
	relationID, ok := parseID(c, "relationId", "relation")
	if !ok {
		return
	}
	if err := svc.Relations.DeleteRelation(c.Request.Context(), relationID, security.GetUserID(c)); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func createNode(c *gin.Context, svc *service.Services) {
	relationID, ok := parseID(c, "relationId", "relation")
	if !ok {
		return
	}
	var req service.NodeInput
	if !bind(c, &req) {
		return
	}
	node, err := svc.Relations.CreateNode(c.Request.Context(), relationID, security.GetUserID(c), req)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, node)
}

func listNodes(c *gin.Context, svc *service.Services) {
	relationID, ok := parseID(c, "relationId", "relation")
	if !ok {
		return
	}
	nodes, err := svc.Relations.ListNodes(c.Request.Context(), relationID, security.GetUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": nodes})
}

func deleteNode(c *gin.Context, svc *service.Services) {
	nodeID, ok := parseID(c, "nodeId", "node")
	if !ok {
		return
	}
	if err := svc.Relations.DeleteNode(c.Request.Context(), nodeID, security.GetUserID(c)); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func createEdge(c *gin.Context, svc *service.Services) {
	relationID, ok := parseID(c, "relationId", "relation")
	if !ok {
		return
	}
	var req service.EdgeInput
	if !bind(c, &req) {
		return
	}
	edge, err := svc.Relations.CreateEdge(c.Request.Context(), relationID, security.GetUserID(c), req)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, edge)
}

func listEdges(c *gin.Context, svc *service.Services) {
	relationID, ok := parseID(c, "relationId", "relation")
	if !ok {
		return
	}
	edges, err := svc.Relations.ListEdges(c.Request.Context(), relationID, security.GetUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": edges})
}

func deleteEdge(c *gin.Context, svc *service.Services) {
	edgeID, ok := parseID(c, "edgeId", "edge")
	if !ok {
		return
	}
	if err := svc.Relations.DeleteEdge(c.Request.Context(), edgeID, security.GetUserID(c)); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return false
	}
	return true
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
