package pathrank

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultCacheCapacity = 10_000
	defaultCacheTTL      = 10 * time.Minute
)

// Cache stores ranked results per RequestKey with LRU eviction and a per-entry TTL.
// Reads lock only inside the LRU; mu orders writers against the removal of stale entries.
type Cache struct {
	mu      sync.Mutex
	entries *lru.Cache[RequestKey, *RankedResult]
	ttl     time.Duration
	nowFn   func() time.Time
}

// NewCache returns a Cache holding at most capacity rankings for ttl each.
func NewCache(capacity int, ttl time.Duration) (*Cache, error) {
	if capacity <= 0 {
		capacity = defaultCacheCapacity
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	entries, err := lru.NewWithEvict(capacity, func(RequestKey, *RankedResult) {
		cacheEvictions.Inc()
	})
	if err != nil {
		return nil, fmt.Errorf("create result cache: %w", err)
	}
	return &Cache{entries: entries, ttl: ttl, nowFn: time.Now}, nil
}

// WithClock overrides the time provider (used primarily in tests).
func (c *Cache) WithClock(nowFn func() time.Time) {
	if nowFn != nil {
		c.nowFn = nowFn
	}
}

// TTL returns the freshness window applied by Put.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Get returns the fresh ranking for key. Stale entries are removed and reported absent.
// Only the stale entry that was read is removed; a ranking stored since then survives.
func (c *Cache) Get(key RequestKey) (*RankedResult, bool) {
	res, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	if !res.Fresh(c.nowFn()) {
		c.mu.Lock()
		if cur, ok := c.entries.Peek(key); ok && cur == res {
			c.entries.Remove(key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return res, true
}

// Put stores res under key, replacing any previous ranking. The expiry is stamped
// here unless the caller already set one.
func (c *Cache) Put(key RequestKey, res *RankedResult) {
	if res == nil {
		return
	}
	if res.ExpiresAt.IsZero() {
		stamped := *res
		stamped.ExpiresAt = c.nowFn().Add(c.ttl)
		res = &stamped
	}
	c.mu.Lock()
	c.entries.Add(key, res)
	c.mu.Unlock()
}

// Page returns the path at index from the stored ranking. It never triggers computation.
func (c *Cache) Page(key RequestKey, index int) (Path, error) {
	res, ok := c.Get(key)
	if !ok {
		return Path{}, fmt.Errorf("%w: %s", ErrNotCached, key)
	}
	return pageOf(res, index)
}

// Invalidate drops the ranking for key.
func (c *Cache) Invalidate(key RequestKey) {
	c.mu.Lock()
	c.entries.Remove(key)
	c.mu.Unlock()
}

// Purge drops every ranking.
func (c *Cache) Purge() {
	c.entries.Purge()
}

// Len returns the number of stored rankings, fresh or not.
func (c *Cache) Len() int {
	return c.entries.Len()
}

func pageOf(res *RankedResult, index int) (Path, error) {
	if index < 0 {
		return Path{}, fmt.Errorf("%w: negative path index %d", ErrInvalidRequest, index)
	}
	if index >= res.Len() {
		return Path{}, fmt.Errorf("%w: index %d of %d", ErrIndexOutOfRange, index, res.Len())
	}
	return res.Paths[index], nil
}
