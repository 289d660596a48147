package jartic

import (
	"context"
	"fmt"
	"sync"

	"github.com/couchcryptid/traffic-congestion-etl/internal/domain"
	"github.com/couchcryptid/traffic-congestion-etl/internal/observability"
)

// Source fetches observations for one bounding box and 5-minute slot.
type Source interface {
	FetchObservations(ctx context.Context, bbox domain.BBox, timeCode int64) ([]domain.Observation, error)
}

// CachedSource wraps a Source with an in-memory LRU cache keyed by box and
// time code. A published slot never changes, so hits are served as-is.
type CachedSource struct {
	inner   Source
	cache   *lruCache[[]domain.Observation]
	metrics *observability.Metrics
}

// NewCachedSource creates a cache decorator around a feed source.
func NewCachedSource(inner Source, maxEntries int, metrics *observability.Metrics) *CachedSource {
	return &CachedSource{
		inner:   inner,
		cache:   newLRUCache[[]domain.Observation](maxEntries),
		metrics: metrics,
	}
}

// FetchObservations returns the cached slot or fetches it from the inner source.
func (c *CachedSource) FetchObservations(ctx context.Context, bbox domain.BBox, timeCode int64) ([]domain.Observation, error) {
	key := fmt.Sprintf("%s@%d", bbox.String(), timeCode)
	if obs, ok := c.cache.get(key); ok {
		c.metrics.FeedCache.WithLabelValues("hit").Inc()
		return obs, nil
	}
	c.metrics.FeedCache.WithLabelValues("miss").Inc()

	obs, err := c.inner.FetchObservations(ctx, bbox, timeCode)
	if err != nil {
		return nil, err
	}
	// An empty slot may still be filling upstream; leave it uncached so the next cycle retries.
	if len(obs) > 0 {
		c.cache.put(key, obs)
	}
	return obs, nil
}

// lruCache is a simple thread-safe LRU cache.
type lruCache[V any] struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry[V]
	head       *entry[V] // most recently used
	tail       *entry[V] // least recently used
}

type entry[V any] struct {
	key   string
	value V
	prev  *entry[V]
	next  *entry[V]
}

func newLRUCache[V any](maxEntries int) *lruCache[V] {
	return &lruCache[V]{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry[V]),
	}
}

func (c *lruCache[V]) get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache[V]) put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry[V]{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache[V]) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache[V]) moveToFront(e *entry[V]) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache[V]) addToFront(e *entry[V]) {
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

func (c *lruCache[V]) remove(e *entry[V]) {
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

func (c *lruCache[V]) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
