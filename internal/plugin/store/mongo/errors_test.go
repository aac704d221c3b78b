package mongo

import (
	"errors"
	"fmt"
	"testing"

	registrystore "github.com/chirino/collection-service/internal/registry/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

func TestTranslateError(t *testing.T) {
	assert.NoError(t, translateError("noop", nil))

	t.Run("typed errors pass through", func(t *testing.T) {
		nf := &registrystore.NotFoundError{Resource: "chat", ID: "x"}
		assert.Same(t, nf, translateError("get chat", nf))
	})

	t.Run("duplicate key", func(t *testing.T) {
		err := translateError("insert chat", mongo.CommandError{Code: 11000, Message: "E11000 duplicate key error"})
		var conflict *registrystore.ConflictError
		require.True(t, errors.As(err, &conflict))
		assert.Equal(t, "duplicate_key", conflict.Code)
	})

	t.Run("transient transaction error", func(t *testing.T) {
		cause := mongo.CommandError{Code: 112, Name: "WriteConflict", Labels: []string{transientTransactionLabel}}
		err := translateError("transaction", fmt.Errorf("commit: %w", cause))
		var conflict *registrystore.ConflictError
		require.True(t, errors.As(err, &conflict))
		assert.Equal(t, "write_conflict", conflict.Code)
	})

	t.Run("anything else is a storage error", func(t *testing.T) {
		cause := errors.New("connection reset")
		err := translateError("list chats", cause)
		var storage *registrystore.StorageError
		require.True(t, errors.As(err, &storage))
		assert.Equal(t, "list chats", storage.Op)
		assert.ErrorIs(t, err, cause)
	})
}
