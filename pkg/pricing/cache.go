package pricing

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/academy/pkg/observability"
)

const activeKey = "active"

// CachedStore memoizes the active config. Concurrent misses share one database read.
type CachedStore struct {
	Store
	cache   *lru.LRU[string, *Config]
	group   singleflight.Group
	metrics *observability.Metrics
}

// NewCachedStore wraps store with a cache whose entries expire after ttl
func NewCachedStore(store Store, ttl time.Duration, metrics *observability.Metrics) *CachedStore {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedStore{
		Store:   store,
		cache:   lru.NewLRU[string, *Config](1, nil, ttl),
		metrics: metrics,
	}
}

// Active returns a copy of the cached active config, loading it on miss
func (c *CachedStore) Active(ctx context.Context) (*Config, error) {
	if cfg, ok := c.cache.Get(activeKey); ok {
		c.observe("hit")
		copied := *cfg
		return &copied, nil
	}
	c.observe("miss")

	v, err, _ := c.group.Do(activeKey, func() (interface{}, error) {
		cfg, err := c.Store.Active(ctx)
		if err != nil {
			return nil, err
		}
		c.cache.Add(activeKey, cfg)
		return cfg, nil
	})
	if err != nil {
		return nil, err
	}
	copied := *v.(*Config)
	return &copied, nil
}

// Create stores a new config and drops the cached active config
func (c *CachedStore) Create(ctx context.Context, cfg *Config) error {
	defer c.Invalidate()
	return c.Store.Create(ctx, cfg)
}

// Activate switches the active config and drops the cached one
func (c *CachedStore) Activate(ctx context.Context, id int64) error {
	defer c.Invalidate()
	return c.Store.Activate(ctx, id)
}

// Invalidate drops the cached active config
func (c *CachedStore) Invalidate() {
	c.cache.Purge()
}

func (c *CachedStore) observe(result string) {
	if c.metrics != nil {
		c.metrics.PricingCacheResultsTotal.WithLabelValues(result).Inc()
	}
}
