package engine

import (
	"container/list"
	"sync"
	"time"

	"github.com/tracklens/tracklens/internal/core"
)

const (
	defaultCacheTTL      = 5 * time.Minute
	minCacheTTL          = time.Minute
	maxCacheTTL          = 60 * time.Minute
	defaultCacheCapacity = 256
	minCacheCapacity     = 16
	maxCacheCapacity     = 1024

	sweepInterval = time.Minute
)

// RecommendationCache memoizes finished recommendation sets per request
// fingerprint. Entries expire lazily on access and eagerly via a background
// sweep; insertion beyond capacity evicts oldest-expired entries first, then
// the least recently used.
type RecommendationCache struct {
	clock func() time.Time

	mu      sync.Mutex
	ttl     time.Duration
	cap     int
	entries map[string]*list.Element
	order   *list.List // front = most recently used

	stopOnce sync.Once
	stop     chan struct{}
}

type cacheEntry struct {
	key        string
	recs       []core.Recommendation
	insertedAt time.Time
}

// NewRecommendationCache builds a cache with ttl clamped to [1m, 60m] and
// capacity clamped to [16, 1024]. Zero values select the defaults.
func NewRecommendationCache(ttl time.Duration, capacity int) *RecommendationCache {
	if ttl == 0 {
		ttl = defaultCacheTTL
	}
	if ttl < minCacheTTL {
		ttl = minCacheTTL
	}
	if ttl > maxCacheTTL {
		ttl = maxCacheTTL
	}
	if capacity == 0 {
		capacity = defaultCacheCapacity
	}
	if capacity < minCacheCapacity {
		capacity = minCacheCapacity
	}
	if capacity > maxCacheCapacity {
		capacity = maxCacheCapacity
	}

	return &RecommendationCache{
		ttl:     ttl,
		cap:     capacity,
		entries: make(map[string]*list.Element),
		order:   list.New(),
		stop:    make(chan struct{}),
	}
}

// TTL reports the effective entry lifetime after clamping.
func (c *RecommendationCache) TTL() time.Duration { return c.ttl }

// Capacity reports the effective entry limit after clamping.
func (c *RecommendationCache) Capacity() int { return c.cap }

// StartSweeper launches the background expiry sweep. Call Close to stop it.
func (c *RecommendationCache) StartSweeper() {
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-c.stop:
				return
			case <-ticker.C:
				c.sweep()
			}
		}
	}()
}

// Close stops the background sweeper. Safe to call multiple times.
func (c *RecommendationCache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Set stores a recommendation list under key. A nil value records a cached
// negative result: the key occupies a slot but Get reports a miss.
func (c *RecommendationCache) Set(key string, recs []core.Recommendation) {
	if key == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.recs = recs
		entry.insertedAt = now
		c.order.MoveToFront(elem)
		return
	}

	for len(c.entries) >= c.cap {
		c.evictOneLocked(now)
	}

	elem := c.order.PushFront(&cacheEntry{key: key, recs: recs, insertedAt: now})
	c.entries[key] = elem
}

// Get returns the cached list for key. Expired or negative (nil payload)
// entries report a miss; expired entries are removed on the spot.
func (c *RecommendationCache) Get(key string) ([]core.Recommendation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}

	entry := elem.Value.(*cacheEntry)
	if c.expiredLocked(entry, c.now()) {
		c.removeLocked(elem)
		return nil, false
	}

	c.order.MoveToFront(elem)
	if entry.recs == nil {
		return nil, false
	}
	return entry.recs, true
}

// Clear removes every entry.
func (c *RecommendationCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

// Len reports the number of live entries, counting not-yet-swept expired ones.
func (c *RecommendationCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// sweep removes every expired entry.
func (c *RecommendationCache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for elem := c.order.Back(); elem != nil; {
		prev := elem.Prev()
		if c.expiredLocked(elem.Value.(*cacheEntry), now) {
			c.removeLocked(elem)
		}
		elem = prev
	}
}

// evictOneLocked frees one slot: the oldest expired entry if any exists,
// otherwise the least recently used.
func (c *RecommendationCache) evictOneLocked(now time.Time) {
	var oldestExpired *list.Element
	var oldestAt time.Time
	for elem := c.order.Back(); elem != nil; elem = elem.Prev() {
		entry := elem.Value.(*cacheEntry)
		if !c.expiredLocked(entry, now) {
			continue
		}
		if oldestExpired == nil || entry.insertedAt.Before(oldestAt) {
			oldestExpired = elem
			oldestAt = entry.insertedAt
		}
	}
	if oldestExpired != nil {
		c.removeLocked(oldestExpired)
		return
	}
	if back := c.order.Back(); back != nil {
		c.removeLocked(back)
	}
}

func (c *RecommendationCache) expiredLocked(entry *cacheEntry, now time.Time) bool {
	return now.Sub(entry.insertedAt) >= c.ttl
}

func (c *RecommendationCache) removeLocked(elem *list.Element) {
	entry := elem.Value.(*cacheEntry)
	delete(c.entries, entry.key)
	c.order.Remove(elem)
}

func (c *RecommendationCache) now() time.Time {
	if c != nil && c.clock != nil {
		return c.clock()
	}
	return time.Now().UTC()
}
