package fetch

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dkwon/alpharank/internal/contracts"
	"github.com/dkwon/alpharank/pkg/redis"
)

// CacheKey builds the content address for one external call: the source
// name, the resolved parameters in sorted order and the sorted entity
// batch. Two calls with the same key are the same call.
func CacheKey(source string, params map[string]string, codes []string) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	sortedCodes := make([]string, len(codes))
	copy(sortedCodes, codes)
	sort.Strings(sortedCodes)

	var b strings.Builder
	b.WriteString(source)
	for _, name := range names {
		b.WriteByte('|')
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(params[name])
	}
	b.WriteByte('|')
	b.WriteString(strings.Join(sortedCodes, ","))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

type cacheEntry struct {
	key       string
	table     contracts.Table
	expiresAt time.Time
}

// Cache is the read-through table cache in front of the providers.
// L1 is an in-process TTL+LRU map; L2 is an optional shared Redis layer.
// Concurrent requests for the same key are coalesced so each key causes
// at most one external call at a time.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List // front = most recently used
	maxSize int

	group singleflight.Group
	l2    *redis.Cache // nil when Redis is disabled

	now func() time.Time
}

// NewCache creates a cache with the given L1 capacity. l2 may be nil.
func NewCache(maxSize int, l2 *redis.Cache) *Cache {
	if maxSize < 1 {
		maxSize = 1
	}
	return &Cache{
		entries: make(map[string]*list.Element),
		lru:     list.New(),
		maxSize: maxSize,
		l2:      l2,
		now:     time.Now,
	}
}

// GetOrFetch returns the cached table for key, consulting L1 then L2,
// and falls back to fn on a miss. The fetched table is stored in both
// layers with the given TTL.
func (c *Cache) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fn func() (contracts.Table, error)) (contracts.Table, error) {
	if table, ok := c.getLocal(key); ok {
		return table, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// A concurrent caller may have filled the entry while we
		// waited on the flight.
		if table, ok := c.getLocal(key); ok {
			return table, nil
		}

		if c.l2 != nil {
			var table contracts.Table
			if hit, err := c.l2.Get(ctx, key, &table); err == nil && hit {
				c.putLocal(key, table, ttl)
				return table, nil
			}
		}

		table, err := fn()
		if err != nil {
			return nil, err
		}

		c.putLocal(key, table, ttl)
		if c.l2 != nil {
			if err := c.l2.Set(ctx, key, table, ttl); err != nil {
				// L2 is best effort; the table is already served.
				_ = err
			}
		}
		return table, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(contracts.Table), nil
}

// Len reports the number of live L1 entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Sweep drops expired L1 entries and returns how many were removed.
// The scheduler calls this periodically.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for el := c.lru.Back(); el != nil; {
		prev := el.Prev()
		entry := el.Value.(*cacheEntry)
		if now.After(entry.expiresAt) {
			c.lru.Remove(el)
			delete(c.entries, entry.key)
			removed++
		}
		el = prev
	}
	return removed
}

func (c *Cache) getLocal(key string) (contracts.Table, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if c.now().After(entry.expiresAt) {
		c.lru.Remove(el)
		delete(c.entries, key)
		return nil, false
	}
	c.lru.MoveToFront(el)
	return entry.table, true
}

func (c *Cache) putLocal(key string, table contracts.Table, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*cacheEntry)
		entry.table = table
		entry.expiresAt = c.now().Add(ttl)
		c.lru.MoveToFront(el)
		return
	}

	c.entries[key] = c.lru.PushFront(&cacheEntry{
		key:       key,
		table:     table,
		expiresAt: c.now().Add(ttl),
	})

	for c.lru.Len() > c.maxSize {
		el := c.lru.Back()
		entry := el.Value.(*cacheEntry)
		c.lru.Remove(el)
		delete(c.entries, entry.key)
	}
}
