package querycache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/rizardo-maker/aiva-server-sub000/internal/observability"
	"github.com/rizardo-maker/aiva-server-sub000/internal/tabular"
)

// DefaultTTL is how long an executed query result stays reusable.
const DefaultTTL = 300 * time.Second

// Cache stores normalized query results under fingerprint keys.
type Cache interface {
	Get(key string) (tabular.Result, bool)
	Set(key string, value tabular.Result, ttl time.Duration)
	Delete(key string)
}

// Fingerprint derives the cache key for a query. Workspace and connection
// identifiers are folded in so textually identical SQL from different
// connections never collides.
func Fingerprint(q tabular.Query) string {
	sum := sha256.Sum256([]byte(q.Text))
	parts := []string{
		string(q.Dialect),
		q.DatasetID,
		q.WorkspaceID,
		q.ConnectionID,
		hex.EncodeToString(sum[:]),
	}
	return strings.Join(parts, "|")
}

type entry struct {
	value     tabular.Result
	expiresAt time.Time
}

type Stats struct {
	Entries int `json:"entries"`
	Hits    int `json:"hits"`
	Misses  int `json:"misses"`
}

// MemoryCache is a mutex-guarded in-process cache. Expired entries are
// dropped lazily on read; StartSweeper bounds memory under low read traffic.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]entry
	hits    int
	misses  int
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: map[string]entry{},
		now:     time.Now,
	}
}

// NewMemoryCacheWithClock injects the time source, used by tests.
func NewMemoryCacheWithClock(now func() time.Time) *MemoryCache {
	cache := NewMemoryCache()
	if now != nil {
		cache.now = now
	}
	return cache
}

func (c *MemoryCache) Get(key string) (tabular.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored, ok := c.entries[key]
	if !ok {
		c.misses++
		observability.ObserveCacheLookup(false)
		return tabular.Result{}, false
	}
	if c.now().After(stored.expiresAt) {
		delete(c.entries, key)
		c.misses++
		observability.ObserveCacheLookup(false)
		return tabular.Result{}, false
	}
	c.hits++
	observability.ObserveCacheLookup(true)
	return stored.value.Clone(), true
}

func (c *MemoryCache) Set(key string, value tabular.Result, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value.Clone(), expiresAt: c.now().Add(ttl)}
	observability.SetCacheEntries(len(c.entries))
}

func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	observability.SetCacheEntries(len(c.entries))
}

func (c *MemoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Entries: len(c.entries), Hits: c.hits, Misses: c.misses}
}

// Sweep removes every expired entry and reports how many were dropped.
func (c *MemoryCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	now := c.now()
	for key, stored := range c.entries {
		if now.After(stored.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	if removed > 0 {
		observability.ObserveCacheEvictions(removed)
	}
	observability.SetCacheEntries(len(c.entries))
	return removed
}

// StartSweeper runs Sweep on a ticker until the context is cancelled.
func (c *MemoryCache) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Sweep()
			}
		}
	}()
}
