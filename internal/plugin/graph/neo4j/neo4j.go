package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/collection-service/internal/config"
	"github.com/chirino/collection-service/internal/model"
	registrygraph "github.com/chirino/collection-service/internal/registry/graph"
	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

func init() {
	registrygraph.Register(registrygraph.Plugin{
		Name:   "neo4j",
		Loader: load,
	})
}

func load(ctx context.Context) (registrygraph.Mirror, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.Neo4jURL == "" {
		return nil, fmt.Errorf("neo4j graph: %sNEO4J_URL is required", config.EnvPrefix)
	}
	return Connect(ctx, cfg.Neo4jURL, cfg.Neo4jUsername, cfg.Neo4jPassword, cfg.Neo4jDatabase)
}

var schema = []string{
	`CREATE CONSTRAINT relation_id_unique IF NOT EXISTS FOR (r:Relation) REQUIRE r.id IS UNIQUE`,
	`CREATE CONSTRAINT node_id_unique IF NOT EXISTS FOR (n:GraphNode) REQUIRE n.id IS UNIQUE`,
	`CREATE INDEX relation_collection IF NOT EXISTS FOR (r:Relation) ON (r.collection_id)`,
}

// Connect opens a driver, verifies connectivity and ensures the constraints exist.
func Connect(ctx context.Context, uri, username, password, database string) (*Mirror, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""), func(cfg *neo4j.Config) {
		cfg.SocketConnectTimeout = 10 * time.Second
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j graph: init driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j graph: verify connectivity: %w", err)
	}
	m := &Mirror{driver: driver, database: database}

	session := m.session(ctx)
	defer session.Close(ctx)
	for _, stmt := range schema {
		res, err := session.Run(ctx, stmt, nil)
		if err == nil {
			_, err = res.Consume(ctx)
		}
		if err != nil {
			log.Warn("neo4j schema init failed (continuing)", "error", err)
		}
	}
	return m, nil
}

// Mirror writes relations as (:Relation)-[:HAS_NODE]->(:GraphNode) and edges
// as [:EDGE] relationships between nodes.
type Mirror struct {
	driver   neo4j.DriverWithContext
	database string
}

func (m *Mirror) session(ctx context.Context) neo4j.SessionWithContext {
	return m.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: m.database,
	})
}

func (m *Mirror) write(ctx context.Context, cypher string, params map[string]any) error {
	session := m.session(ctx)
	defer session.Close(ctx)
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	return err
}

func (m *Mirror) Available() bool { return true }

func (m *Mirror) UpsertRelation(ctx context.Context, r model.Relation) error {
	return m.write(ctx, `
MERGE (r:Relation {id: $id})
SET r += $props`, map[string]any{
		"id":    r.ID.String(),
		"props": relationProps(r),
	})
}

func (m *Mirror) UpsertNode(ctx context.Context, n model.Node) error {
	return m.write(ctx, `
MERGE (r:Relation {id: $relation_id})
MERGE (n:GraphNode {id: $id})
SET n += $props
MERGE (r)-[:HAS_NODE]->(n)`, map[string]any{
		"id":          n.ID.String(),
		"relation_id": n.RelationID.String(),
		"props":       nodeProps(n),
	})
}

func (m *Mirror) UpsertEdge(ctx context.Context, e model.Edge) error {
	return m.write(ctx, `
MATCH (a:GraphNode {id: $source}), (b:GraphNode {id: $target})
MERGE (a)-[x:EDGE {id: $id}]->(b)
SET x += $props`, map[string]any{
		"id":     e.ID.String(),
		"source": e.Source.String(),
		"target": e.Target.String(),
		"props":  edgeProps(e),
	})
}

func (m *Mirror) DeleteRelation(ctx context.Context, id uuid.UUID) error {
	return m.write(ctx, `
MATCH (r:Relation {id: $id})
OPTIONAL MATCH (r)-[:HAS_NODE]->(n:GraphNode)
DETACH DELETE n, r`, map[string]any{"id": id.String()})
}

func (m *Mirror) DeleteNode(ctx context.Context, id uuid.UUID) error {
	return m.write(ctx, `MATCH (n:GraphNode {id: $id}) DETACH DELETE n`, map[string]any{"id": id.String()})
}

func (m *Mirror) DeleteEdge(ctx context.Context, id uuid.UUID) error {
	return m.write(ctx, `MATCH ()-[x:EDGE {id: $id}]->() DELETE x`, map[string]any{"id": id.String()})
}

func (m *Mirror) DeleteCollection(ctx context.Context, collectionID uuid.UUID) error {
	return m.write(ctx, `
MATCH (r:Relation {collection_id: $collection_id})
OPTIONAL MATCH (r)-[:HAS_NODE]->(n:GraphNode)
DETACH DELETE n, r`, map[string]any{"collection_id": collectionID.String()})
}

func (m *Mirror) Close(ctx context.Context) error {
	return m.driver.Close(ctx)
}

func relationProps(r model.Relation) map[string]any {
	return map[string]any{
		"collection_id": r.CollectionID.String(),
		"title":         r.Title,
		"description":   r.Description,
		"created_by":    r.CreatedBy,
		"updated_at":    r.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func nodeProps(n model.Node) map[string]any {
	return map[string]any{
		"relation_id": n.RelationID.String(),
		"title":       n.Title,
		"description": n.Description,
		"type":        n.Type,
		"label":       n.Label,
		"created_by":  n.CreatedBy,
		"updated_at":  n.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func edgeProps(e model.Edge) map[string]any {
	return map[string]any{
		"relation_id": e.RelationID.String(),
		"label":       e.Label,
		"created_by":  e.CreatedBy,
		"updated_at":  e.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

var _ registrygraph.Mirror = (*Mirror)(nil)
