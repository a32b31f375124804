package windcontext

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"github.com/driftline/constellation-tracker/internal/domain"
	"github.com/driftline/constellation-tracker/internal/observability"
)

// CachedProvider wraps a ContextProvider with an in-memory LRU cache.
// Keys are coordinates rounded to two decimals (~1 km), matching the
// resolution of the collaborator's precomputed grid.
type CachedProvider struct {
	inner   domain.ContextProvider
	cache   *lruCache
	metrics *observability.Metrics
}

// NewCachedProvider creates a cache decorator around a context provider.
func NewCachedProvider(inner domain.ContextProvider, maxEntries int, metrics *observability.Metrics) *CachedProvider {
	return &CachedProvider{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		metrics: metrics,
	}
}

func (c *CachedProvider) Lookup(ctx context.Context, lat, lon float64) (domain.LocalContext, error) {
	key := fmt.Sprintf("%.2f,%.2f", lat, lon)
	if result, ok := c.cache.get(key); ok {
		c.metrics.ContextCache.WithLabelValues("hit").Inc()
		return result, nil
	}
	c.metrics.ContextCache.WithLabelValues("miss").Inc()

	result, err := c.inner.Lookup(ctx, lat, lon)
	if err != nil {
		return result, err
	}
	// Only cache non-empty results so transient gaps can be retried.
	if result != (domain.LocalContext{}) {
		c.cache.put(key, result)
	}
	return result, nil
}

// lruCache is a thread-safe fixed-capacity LRU over container/list.
type lruCache struct {
	maxEntries int

	mu    sync.Mutex
	order *list.List // front = most recently used
	index map[string]*list.Element
}

type lruEntry struct {
	key   string
	value domain.LocalContext
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		order:      list.New(),
		index:      make(map[string]*list.Element),
	}
}

func (c *lruCache) get(key string) (domain.LocalContext, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	if !ok {
		return domain.LocalContext{}, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*lruEntry).value, true
}

func (c *lruCache) put(key string, value domain.LocalContext) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[key]; ok {
		el.Value.(*lruEntry).value = value
		c.order.MoveToFront(el)
		return
	}

	c.index[key] = c.order.PushFront(&lruEntry{key: key, value: value})

	if c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.index, oldest.Value.(*lruEntry).key)
		}
	}
}
