// Package rediscache adapts go-redis into the PerformanceScore cache
// (§5): single-writer-per-entry, reader-tolerant staleness up to the
// configured TTL, with an in-process LRU front that Get consults before
// redis. Scorer does not read this cache.
package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/developer-mesh/agent-router/internal/router/scorer"
	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2"
)

const keyPrefix = "router:score:"

// ScoreCache is a redis-backed cache of PerformanceScore, fronted by an
// in-process LRU so a hot agent/task pairing costs zero network I/O
// between PerformanceRefresh ticks.
type ScoreCache struct {
	client *redis.Client
	local  *lru.Cache[string, scorer.Score]

	localHits, redisHits, misses int64
}

// CacheStats returns a snapshot of hit/miss counters since process start,
// grounded on the teacher's GetCacheStats (pkg/agents/service.go).
// Implements api.CacheStatter.
func (c *ScoreCache) CacheStats() (localHits, redisHits, misses int64, localItems int) {
	return atomic.LoadInt64(&c.localHits), atomic.LoadInt64(&c.redisHits), atomic.LoadInt64(&c.misses), c.local.Len()
}

// New creates a ScoreCache. localSize bounds the in-process LRU; a small
// multiple of the expected active-agent count is enough since entries are
// refreshed by the PerformanceRefresh loop well before they expire.
func New(client *redis.Client, localSize int) (*ScoreCache, error) {
	local, err := lru.New[string, scorer.Score](localSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create local score cache: %w", err)
	}
	return &ScoreCache{client: client, local: local}, nil
}

func cacheKey(agentID, taskKey string) string {
	return keyPrefix + agentID + ":" + taskKey
}

// Get returns the cached score for (agentID, taskKey), checking the local
// LRU before falling back to redis.
func (c *ScoreCache) Get(ctx context.Context, agentID, taskKey string) (scorer.Score, bool, error) {
	key := cacheKey(agentID, taskKey)
	if v, ok := c.local.Get(key); ok {
		atomic.AddInt64(&c.localHits, 1)
		return v, true, nil
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			atomic.AddInt64(&c.misses, 1)
			return scorer.Score{}, false, nil
		}
		return scorer.Score{}, false, fmt.Errorf("failed to read cached score for %s: %w", key, err)
	}

	var score scorer.Score
	if err := json.Unmarshal(data, &score); err != nil {
		return scorer.Score{}, false, fmt.Errorf("failed to unmarshal cached score for %s: %w", key, err)
	}
	c.local.Add(key, score)
	atomic.AddInt64(&c.redisHits, 1)
	return score, true, nil
}

// Set implements loops.ScoreCacheWriter: it is the single writer for a
// given (agentID, taskKey) entry, called by PerformanceRefresh. Get does
// not fill the cache on a miss.
func (c *ScoreCache) Set(ctx context.Context, agentID, taskKey string, score scorer.Score, ttl time.Duration) error {
	key := cacheKey(agentID, taskKey)

	data, err := json.Marshal(score)
	if err != nil {
		return fmt.Errorf("failed to marshal score for %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache score for %s: %w", key, err)
	}
	c.local.Add(key, score)
	return nil
}

// Invalidate implements outcome.ScoreCache: it drops every cached entry
// for agentID, local and remote, across every task key by scanning the
// agent's key prefix.
func (c *ScoreCache) Invalidate(ctx context.Context, agentID string) error {
	for _, key := range c.local.Keys() {
		if hasAgentPrefix(key, agentID) {
			c.local.Remove(key)
		}
	}

	pattern := keyPrefix + agentID + ":*"
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys for %s: %w", agentID, err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cache keys for %s: %w", agentID, err)
	}
	return nil
}

func hasAgentPrefix(key, agentID string) bool {
	prefix := keyPrefix + agentID + ":"
	return len(key) >= len(prefix) && key[:len(prefix)] == prefix
}
