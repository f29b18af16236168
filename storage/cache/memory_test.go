package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryChallengeStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	store := NewMemoryChallengeStore()
	store.Now = func() time.Time { return now }

	require.NoError(t, store.Put(ctx, "jti-1", "user-1", time.Minute))
	require.NoError(t, store.Put(ctx, "jti-2", "user-2", time.Minute))

	t.Run("consume once", func(t *testing.T) {
		userID, ok, err := store.Consume(ctx, "jti-1")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "user-1", userID)

		_, ok, err = store.Consume(ctx, "jti-1")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("unknown", func(t *testing.T) {
		_, ok, err := store.Consume(ctx, "nope")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("expired", func(t *testing.T) {
		now = now.Add(time.Minute)
		_, ok, err := store.Consume(ctx, "jti-2")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
