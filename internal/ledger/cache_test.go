package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *SummaryCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSummaryCache(client, time.Minute)
}

func TestSummaryCacheLoadsOnceAndServesHits(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	loads := 0
	load := func(ctx context.Context) (ProductSummary, error) {
		loads++
		return ProductSummary{ProductID: 7, ProductName: "Etiópia Yirgacheffe", TotalAvailableG: 1280, BatchCount: 2}, nil
	}

	first, err := cache.Get(ctx, 7, load)
	require.NoError(t, err)
	require.Equal(t, 1, loads)

	second, err := cache.Get(ctx, 7, load)
	require.NoError(t, err)
	require.Equal(t, 1, loads)
	require.Equal(t, first, second)
}

func TestSummaryCacheInvalidateForcesReload(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	loads := 0
	load := func(ctx context.Context) (ProductSummary, error) {
		loads++
		return ProductSummary{ProductID: 7, TotalAvailableG: float64(loads * 100)}, nil
	}

	sum, err := cache.Get(ctx, 7, load)
	require.NoError(t, err)
	require.InDelta(t, 100.0, sum.TotalAvailableG, 0.0001)

	require.NoError(t, cache.Invalidate(ctx, 7))

	sum, err = cache.Get(ctx, 7, load)
	require.NoError(t, err)
	require.Equal(t, 2, loads)
	require.InDelta(t, 200.0, sum.TotalAvailableG, 0.0001)
}

func TestSummaryCacheNilPassesThrough(t *testing.T) {
	var cache *SummaryCache
	sum, err := cache.Get(context.Background(), 1, func(ctx context.Context) (ProductSummary, error) {
		return ProductSummary{ProductID: 1}, nil
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), sum.ProductID)
	require.NoError(t, cache.Invalidate(context.Background(), 1))
}
