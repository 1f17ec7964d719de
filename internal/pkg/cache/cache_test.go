package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/TickerFox/internal/pkg/cache/cachetest"
)

func TestStoreRoundTrip(t *testing.T) {
	rdb := cachetest.NewIsolatedClient(t, 13)
	store := NewStore(rdb, "test:")
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, store.Set(ctx, "k", "v", time.Minute))
	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	raw, err := rdb.Get(ctx, "test:k").Result()
	require.NoError(t, err)
	assert.Equal(t, "v", raw)

	require.NoError(t, store.Delete(ctx, "k"))
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}
