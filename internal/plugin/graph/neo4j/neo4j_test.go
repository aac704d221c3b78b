package neo4j_test

import (
	"context"
	"testing"

	"github.com/chirino/collection-service/internal/config"
	"github.com/chirino/collection-service/internal/model"
	graphneo4j "github.com/chirino/collection-service/internal/plugin/graph/neo4j"
	registrygraph "github.com/chirino/collection-service/internal/registry/graph"
	"github.com/chirino/collection-service/internal/testutil/testneo4j"
	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoaderRequiresURL(t *testing.T) {
	cfg := config.DefaultConfig()
	ctx := config.WithContext(context.Background(), &cfg)

	loader, err := registrygraph.Select("neo4j")
	require.NoError(t, err)
	_, err = loader(ctx)
	assert.ErrorContains(t, err, "NEO4J_URL")
}

func countNodes(t *testing.T, ctx context.Context, url string, label string) int64 {
	t.Helper()
	driver, err := neo4j.NewDriverWithContext(url, neo4j.BasicAuth(testneo4j.Username, testneo4j.Password, ""))
	require.NoError(t, err)
	defer driver.Close(ctx)

	res, err := neo4j.ExecuteQuery(ctx, driver, "MATCH (n:"+label+") RETURN count(n) AS c", nil, neo4j.EagerResultTransformer)
	require.NoError(t, err)
	c, _, err := neo4j.GetRecordValue[int64](res.Records[0], "c")
	require.NoError(t, err)
	return c
}

func TestMirror(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	ctx := context.Background()
	url := testneo4j.StartNeo4j(t)

	m, err := graphneo4j.Connect(ctx, url, testneo4j.Username, testneo4j.Password, "neo4j")
	require.NoError(t, err)
	defer m.Close(ctx)

	collectionID := uuid.New()
	rel := model.Relation{ID: uuid.New(), CollectionID: collectionID, Title: "people"}
	a := model.Node{ID: uuid.New(), RelationID: rel.ID, Title: "ada"}
	b := model.Node{ID: uuid.New(), RelationID: rel.ID, Title: "bob"}
	edge := model.Edge{ID: uuid.New(), RelationID: rel.ID, Source: a.ID, Target: b.ID, Label: "knows"}

	require.NoError(t, m.UpsertRelation(ctx, rel))
	require.NoError(t, m.UpsertNode(ctx, a))
	require.NoError(t, m.UpsertNode(ctx, b))
	require.NoError(t, m.UpsertEdge(ctx, edge))
	require.NoError(t, m.UpsertNode(ctx, a), "upserts are idempotent")

	assert.Equal(t, int64(2), countNodes(t, ctx, url, "GraphNode"))

	require.NoError(t, m.DeleteNode(ctx, b.ID))
	assert.Equal(t, int64(1), countNodes(t, ctx, url, "GraphNode"))

	require.NoError(t, m.DeleteCollection(ctx, collectionID))
	assert.Equal(t, int64(0), countNodes(t, ctx, url, "GraphNode"))
	assert.Equal(t, int64(0), countNodes(t, ctx, url, "Relation"))
}
