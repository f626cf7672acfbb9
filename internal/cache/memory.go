package cache

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryCache is an in-process LRU cache with per-entry TTL. It is the
// default read cache in front of storage backends and the fallback when
// Redis is unreachable.
type MemoryCache struct {
	mu         sync.Mutex
	items      map[string]*list.Element
	order      *list.List // Front is most recently used
	defaultTTL time.Duration
	maxSize    int // 0 = unlimited
	closed     bool
	stopCh     chan struct{}

	hits, misses, sets int64
	size               int64 // Bytes held
}

type memoryItem struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// MemoryCacheOptions configures the memory cache.
type MemoryCacheOptions struct {
	DefaultTTL      time.Duration
	MaxSize         int           // Maximum number of entries (0 = unlimited)
	CleanupInterval time.Duration // Interval for expired entry cleanup (0 = no cleanup)
}

// NewMemoryCache creates a memory cache. A background sweep runs when
// CleanupInterval is set.
func NewMemoryCache(opts MemoryCacheOptions) *MemoryCache {
	c := &MemoryCache{
		items:      make(map[string]*list.Element),
		order:      list.New(),
		defaultTTL: opts.DefaultTTL,
		maxSize:    opts.MaxSize,
		stopCh:     make(chan struct{}),
	}
	if opts.CleanupInterval > 0 {
		go c.sweepLoop(opts.CleanupInterval)
	}
	return c
}

// lookup returns the live element for key, dropping it when expired.
// Callers hold mu.
func (c *MemoryCache) lookup(key string, now time.Time) *list.Element {
	el, ok := c.items[key]
	if !ok {
		return nil
	}
	if now.After(el.Value.(*memoryItem).expiresAt) {
		c.remove(el)
		return nil
	}
	return el
}

func (c *MemoryCache) remove(el *list.Element) {
	it := c.order.Remove(el).(*memoryItem)
	delete(c.items, it.key)
	c.size -= int64(len(it.value))
}

// Get returns a copy of the cached value.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrCacheClosed
	}

	el := c.lookup(key, time.Now())
	if el == nil {
		c.misses++
		return nil, ErrCacheMiss
	}
	c.order.MoveToFront(el)
	c.hits++
	return append([]byte(nil), el.Value.(*memoryItem).value...), nil
}

// Set stores a copy of value. A zero ttl uses the default. When the cache is
// full the least recently used entry is evicted.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrCacheClosed
	}
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	it := &memoryItem{key: key, value: append([]byte(nil), value...), expiresAt: time.Now().Add(ttl)}
	if el, ok := c.items[key]; ok {
		c.size -= int64(len(el.Value.(*memoryItem).value))
		el.Value = it
		c.order.MoveToFront(el)
	} else {
		c.items[key] = c.order.PushFront(it)
		for c.maxSize > 0 && c.order.Len() > c.maxSize {
			c.remove(c.order.Back())
		}
	}
	c.size += int64(len(it.value))
	c.sets++
	return nil
}

// Delete removes a key.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrCacheClosed
	}
	if el, ok := c.items[key]; ok {
		c.remove(el)
	}
	return nil
}

// DeleteByPrefix removes every key starting with prefix.
func (c *MemoryCache) DeleteByPrefix(_ context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrCacheClosed
	}
	for key, el := range c.items {
		if strings.HasPrefix(key, prefix) {
			c.remove(el)
		}
	}
	return nil
}

// Clear removes all entries.
func (c *MemoryCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrCacheClosed
	}
	clear(c.items)
	c.order.Init()
	c.size = 0
	return nil
}

// Has reports whether a live entry exists without counting a hit.
func (c *MemoryCache) Has(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, ErrCacheClosed
	}
	return c.lookup(key, time.Now()) != nil, nil
}

// Close stops the sweep goroutine. Further calls return ErrCacheClosed.
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.stopCh)
	}
	return nil
}

// Stats returns current cache statistics.
func (c *MemoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:    c.hits,
		Misses:  c.misses,
		Sets:    c.sets,
		Items:   c.order.Len(),
		HitRate: hitRate(c.hits, c.misses),
		Size:    c.size,
	}
}

// ResetStats zeroes the counters.
func (c *MemoryCache) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hits, c.misses, c.sets = 0, 0, 0
}

func (c *MemoryCache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if now.After(el.Value.(*memoryItem).expiresAt) {
			c.remove(el)
		}
		el = prev
	}
}

func (c *MemoryCache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stopCh:
			return
		}
	}
}

var (
	_ Cache         = (*MemoryCache)(nil)
	_ StatsProvider = (*MemoryCache)(nil)
)
