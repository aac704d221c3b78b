package metrics_test

import (
	"context"
	"testing"

	"github.com/chirino/collection-service/internal/model"
	"github.com/chirino/collection-service/internal/plugin/store/metrics"
	registrystore "github.com/chirino/collection-service/internal/registry/store"
	"github.com/chirino/collection-service/internal/security"
	"github.com/chirino/collection-service/internal/testutil/testsqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapObservesInsideTransactions(t *testing.T) {
	security.InitMetrics(prometheus.Labels{"service": "test"})
	ctx := context.Background()
	store := metrics.Wrap(testsqlite.Open(t))

	before := testutil.CollectAndCount(security.StoreLatency)

	err := store.InTx(ctx, func(ctx context.Context, tx registrystore.Tx) error {
		return tx.CreateCollection(ctx, &model.Collection{Name: "c", CreatedBy: "alice", UpdatedBy: "alice"})
	})
	require.NoError(t, err)

	list, err := store.ListCollections(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 1)

	// One series each for transaction, create_collection and list_collections.
	assert.GreaterOrEqual(t, testutil.CollectAndCount(security.StoreLatency)-before, 3)
}
