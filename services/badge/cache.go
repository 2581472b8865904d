package badge

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{Name: "badge_catalog_cache_hits_total"})
	cacheMiss = promauto.NewCounter(prometheus.CounterOpts{Name: "badge_catalog_cache_miss_total"})
)

type catalogSnapshot struct {
	badges   []*Badge
	loadedAt time.Time
}

// CatalogCache holds the active badge catalog. Concurrent misses share one load.
type CatalogCache struct {
	mu    sync.RWMutex
	snap  *catalogSnapshot
	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group
}

func NewCatalogCache(ttl time.Duration) *CatalogCache {
	return &CatalogCache{ttl: ttl, now: time.Now}
}

func (c *CatalogCache) get() ([]*Badge, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil || (c.ttl > 0 && c.now().Sub(c.snap.loadedAt) > c.ttl) {
		return nil, false
	}
	return c.snap.badges, true
}

// Get returns the cached catalog or loads it with load.
func (c *CatalogCache) Get(ctx context.Context, load func(context.Context) ([]*Badge, error)) ([]*Badge, error) {
	if badges, ok := c.get(); ok {
		cacheHits.Inc()
		return badges, nil
	}
	cacheMiss.Inc()

	v, err, _ := c.group.Do("catalog", func() (any, error) {
		badges, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.snap = &catalogSnapshot{badges: badges, loadedAt: c.now()}
		c.mu.Unlock()
		return badges, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]*Badge), nil
}

func (c *CatalogCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = nil
}
