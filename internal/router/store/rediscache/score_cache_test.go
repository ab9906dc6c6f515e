package rediscache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/developer-mesh/agent-router/internal/router/scorer"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *ScoreCache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache, err := New(client, 16)
	require.NoError(t, err)
	return cache
}

func TestSetThenGetRoundTrips(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	want := scorer.Score{Overall: 0.83, Reliability: 0.9}
	require.NoError(t, cache.Set(ctx, "a1", "summarize_MODERATE", want, 5*time.Minute))

	got, found, err := cache.Get(ctx, "a1", "summarize_MODERATE")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, want, got)
}

func TestGetMissReturnsNotFound(t *testing.T) {
	cache := newTestCache(t)
	_, found, err := cache.Get(context.Background(), "unknown", "summarize_MODERATE")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestInvalidateRemovesEveryTaskKeyForAgent(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "a1", "summarize_MODERATE", scorer.Score{Overall: 0.8}, 5*time.Minute))
	require.NoError(t, cache.Set(ctx, "a1", "code_review_COMPLEX", scorer.Score{Overall: 0.7}, 5*time.Minute))
	require.NoError(t, cache.Set(ctx, "a2", "summarize_MODERATE", scorer.Score{Overall: 0.6}, 5*time.Minute))

	require.NoError(t, cache.Invalidate(ctx, "a1"))

	_, found1, _ := cache.Get(ctx, "a1", "summarize_MODERATE")
	_, found2, _ := cache.Get(ctx, "a1", "code_review_COMPLEX")
	_, found3, _ := cache.Get(ctx, "a2", "summarize_MODERATE")

	assert.False(t, found1)
	assert.False(t, found2)
	assert.True(t, found3, "invalidating one agent must not affect another")
}

func TestLocalLRUServesWithoutRedisRoundTrip(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "a1", "summarize_MODERATE", scorer.Score{Overall: 0.8}, 5*time.Minute))
	cache.client.Close()

	got, found, err := cache.Get(ctx, "a1", "summarize_MODERATE")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 0.8, got.Overall)
}

func TestCacheStatsCountsHitsAndMisses(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	_, _, _ = cache.Get(ctx, "a1", "summarize_MODERATE") // miss
	require.NoError(t, cache.Set(ctx, "a1", "summarize_MODERATE", scorer.Score{Overall: 0.5}, 5*time.Minute))
	_, _, _ = cache.Get(ctx, "a1", "summarize_MODERATE") // local hit

	localHits, _, misses, localItems := cache.CacheStats()
	assert.Equal(t, int64(1), localHits)
	assert.Equal(t, int64(1), misses)
	assert.Equal(t, 1, localItems)
}
