package nasa

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/couchcryptid/nasa-explorer/internal/observability"
)

// Upstream is the set of NASA calls a CachedClient decorates.
type Upstream interface {
	APOD(ctx context.Context, date string) (APOD, error)
	EarthAssets(ctx context.Context, q EarthQuery) (EarthAsset, error)
	SearchGranules(ctx context.Context, q GranuleQuery) ([]Granule, error)
	DONKI(ctx context.Context, eventType, start, end string) ([]SpaceWeatherEvent, error)
	GIBSTile(q TileQuery) (TileRef, error)
}

// CachedClient wraps an Upstream with an in-memory LRU cache whose entries
// expire after a TTL. Concurrent misses for the same key share one upstream call.
type CachedClient struct {
	inner        Upstream
	cache        *lruCache
	group        singleflight.Group
	fetchTimeout time.Duration
	metrics      *observability.Metrics
}

// NewCachedClient creates a cache decorator around a NASA client. A shared
// upstream fetch outlives the caller that started it, bounded by fetchTimeout.
func NewCachedClient(inner Upstream, maxEntries int, ttl, fetchTimeout time.Duration, metrics *observability.Metrics) *CachedClient {
	return newCachedClient(inner, maxEntries, ttl, fetchTimeout, metrics, clockwork.NewRealClock())
}

func newCachedClient(inner Upstream, maxEntries int, ttl, fetchTimeout time.Duration, metrics *observability.Metrics, clock clockwork.Clock) *CachedClient {
	return &CachedClient{
		inner:        inner,
		cache:        newLRUCache(maxEntries, ttl, clock),
		fetchTimeout: fetchTimeout,
		metrics:      metrics,
	}
}

func (c *CachedClient) APOD(ctx context.Context, date string) (APOD, error) {
	return cached(ctx, c, apiAPOD, "apod:"+date, func(ctx context.Context) (APOD, error) {
		return c.inner.APOD(ctx, date)
	})
}

func (c *CachedClient) EarthAssets(ctx context.Context, q EarthQuery) (EarthAsset, error) {
	key := fmt.Sprintf("earth:%.4f,%.4f|%s|%g", q.Coordinate.Latitude, q.Coordinate.Longitude, q.Date, q.Dim)
	return cached(ctx, c, apiEarth, key, func(ctx context.Context) (EarthAsset, error) {
		return c.inner.EarthAssets(ctx, q)
	})
}

func (c *CachedClient) SearchGranules(ctx context.Context, q GranuleQuery) ([]Granule, error) {
	key := fmt.Sprintf("cmr:%s|%.4f,%.4f|%s|%s|%d", q.ShortName, q.Coordinate.Latitude, q.Coordinate.Longitude, q.Start, q.End, q.Limit)
	return cached(ctx, c, apiCMR, key, func(ctx context.Context) ([]Granule, error) {
		return c.inner.SearchGranules(ctx, q)
	})
}

func (c *CachedClient) DONKI(ctx context.Context, eventType, start, end string) ([]SpaceWeatherEvent, error) {
	key := fmt.Sprintf("donki:%s|%s|%s", eventType, start, end)
	return cached(ctx, c, apiDONKI, key, func(ctx context.Context) ([]SpaceWeatherEvent, error) {
		return c.inner.DONKI(ctx, eventType, start, end)
	})
}

// GIBSTile is computed locally and never cached.
func (c *CachedClient) GIBSTile(q TileQuery) (TileRef, error) {
	return c.inner.GIBSTile(q)
}

// cached serves key from the cache or loads it with fetch. Only successful
// responses are stored so failures are retried on the next call.
func cached[T any](ctx context.Context, c *CachedClient, api, key string, fetch func(context.Context) (T, error)) (T, error) {
	if v, ok := c.cache.get(key); ok {
		c.metrics.NASACache.WithLabelValues(api, "hit").Inc()
		return v.(T), nil
	}
	c.metrics.NASACache.WithLabelValues(api, "miss").Inc()

	ch := c.group.DoChan(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()
		res, err := fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		c.cache.put(key, res)
		return res, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return zero, r.Err
		}
		return r.Val.(T), nil
	}
}

// lruCache is a thread-safe LRU cache with per-entry expiry.
type lruCache struct {
	maxEntries int
	ttl        time.Duration
	clock      clockwork.Clock
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key       string
	value     any
	expiresAt time.Time
	prev      *entry
	next      *entry
}

func newLRUCache(maxEntries int, ttl time.Duration, clock clockwork.Clock) *lruCache {
	return &lruCache{
		maxEntries: max(maxEntries, 1),
		ttl:        ttl,
		clock:      clock,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.clock.Now().Before(e.expiresAt) {
		c.remove(e)
		delete(c.entries, key)
		return nil, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.clock.Now().Add(c.ttl)
	if e, ok := c.entries[key]; ok {
		e.value = value
		e.expiresAt = expiresAt
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value, expiresAt: expiresAt}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
