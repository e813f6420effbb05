package product

import (
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/couchcryptid/swath-rectifier/internal/observability"
	"github.com/couchcryptid/swath-rectifier/internal/rectify"
)

// coordSet names the latitude/longitude datasets of one resolution.
type coordSet struct {
	lat, lon string
	family   rectify.CoordFamily
}

func (k coordSet) key() string {
	return k.lat + "|" + k.lon + "|" + string(k.family)
}

// geolocation is a descaled coordinate grid with its disk mask. err is set
// when either could not be produced; it is cached like a value so every unit
// sharing the coordinates fails the same way.
type geolocation struct {
	coords *rectify.Coords
	disk   *rectify.Mask
	err    error
}

// coordCache descales each coordinate set of one source at most once.
type coordCache struct {
	src     Source
	disk    rectify.Disk
	metrics *observability.Metrics
	lru     *lruCache[geolocation]
	group   singleflight.Group
}

func newCoordCache(src Source, disk rectify.Disk, size int, metrics *observability.Metrics) *coordCache {
	if size <= 0 {
		size = DefaultCoordCacheSize
	}
	return &coordCache{src: src, disk: disk, metrics: metrics, lru: newLRUCache[geolocation](size)}
}

func (c *coordCache) get(set coordSet) geolocation {
	key := set.key()
	if g, ok := c.lru.get(key); ok {
		c.observe("hit")
		return g
	}
	v, _, _ := c.group.Do(key, func() (any, error) {
		if g, ok := c.lru.get(key); ok {
			return g, nil
		}
		c.observe("miss")
		g := c.load(set)
		c.lru.put(key, g)
		return g, nil
	})
	return v.(geolocation)
}

func (c *coordCache) load(set coordSet) geolocation {
	lat, err := c.src.ReadGrid(set.lat)
	if err != nil {
		return geolocation{err: err}
	}
	lon, err := c.src.ReadGrid(set.lon)
	if err != nil {
		return geolocation{err: err}
	}
	coords, err := rectify.Descale(lat, lon, set.family)
	if err != nil {
		return geolocation{err: err}
	}
	disk, err := c.disk.Mask(coords)
	return geolocation{coords: coords, disk: disk, err: err}
}

func (c *coordCache) observe(result string) {
	if c.metrics == nil {
		return
	}
	c.metrics.CoordCache.WithLabelValues(result).Inc()
}

// lruCache is a small thread-safe LRU cache.
type lruCache[V any] struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*lruEntry[V]
	head       *lruEntry[V] // most recently used
	tail       *lruEntry[V] // least recently used
}

type lruEntry[V any] struct {
	key   string
	value V
	prev  *lruEntry[V]
	next  *lruEntry[V]
}

func newLRUCache[V any](maxEntries int) *lruCache[V] {
	return &lruCache[V]{
		maxEntries: maxEntries,
		entries:    make(map[string]*lruEntry[V]),
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

	e := &lruEntry[V]{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache[V]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache[V]) moveToFront(e *lruEntry[V]) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache[V]) addToFront(e *lruEntry[V]) {
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

func (c *lruCache[V]) remove(e *lruEntry[V]) {
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
