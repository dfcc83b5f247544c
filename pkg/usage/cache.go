package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/academy/pkg/observability"
	"github.com/platinummonkey/academy/pkg/storage/postgres"
)

// Cache is the subset of the Redis client used for snapshots
type Cache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// CachedAggregator serves recent snapshots from Redis.
// Only successful aggregations are cached; cache failures fall through to the inner aggregator.
type CachedAggregator struct {
	inner   Aggregator
	cache   Cache
	ttl     time.Duration
	metrics *observability.Metrics
}

// NewCachedAggregator wraps inner with a cache entry lifetime of ttl
func NewCachedAggregator(inner Aggregator, cache Cache, ttl time.Duration, metrics *observability.Metrics) *CachedAggregator {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedAggregator{inner: inner, cache: cache, ttl: ttl, metrics: metrics}
}

func cacheKey(orgID int64, period Period) string {
	return fmt.Sprintf("usage:%d:%s", orgID, period.Key())
}

// Snapshot returns a cached snapshot when present, otherwise aggregates and caches
func (c *CachedAggregator) Snapshot(ctx context.Context, orgID int64, period Period) (*Snapshot, error) {
	key := cacheKey(orgID, period)
	logger := observability.FromContext(ctx).WithField("cache_key", key)

	var cached Snapshot
	err := c.cache.GetJSON(ctx, key, &cached)
	switch {
	case err == nil:
		c.observe("hit")
		return &cached, nil
	case errors.Is(err, postgres.ErrCacheMiss):
		c.observe("miss")
	default:
		c.observe("error")
		logger.WithError(err).Warn("Usage cache read failed")
	}

	snap, err := c.inner.Snapshot(ctx, orgID, period)
	if err != nil {
		return nil, err
	}

	if err := c.cache.SetJSON(ctx, key, snap, c.ttl); err != nil {
		logger.WithError(err).Warn("Usage cache write failed")
	}
	return snap, nil
}

func (c *CachedAggregator) observe(result string) {
	if c.metrics != nil {
		c.metrics.UsageCacheResultsTotal.WithLabelValues(result).Inc()
	}
}
