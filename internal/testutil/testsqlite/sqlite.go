package testsqlite

import (
	"context"
	"fmt"
	"testing"

	"github.com/chirino/collection-service/internal/plugin/store/postgres"
	"github.com/chirino/collection-service/internal/plugin/store/sqlite"
	"github.com/google/uuid"
)

// DSN returns a private in-memory database name that lives as long as one
// connection to it stays open.
func DSN() string {
	return fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
}

// Open returns a migrated in-memory store that is closed when the test ends.
func Open(tb testing.TB) *postgres.Store {
	tb.Helper()

	store, err := sqlite.Open(context.Background(), DSN(), true)
	if err != nil {
		tb.Fatalf("open sqlite store: %v", err)
	}
	tb.Cleanup(func() { _ = store.Close() })
	return store
}
