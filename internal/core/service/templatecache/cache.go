// Package templatecache implements the C3 contract: a process-local,
// content-addressed, strict-LRU byte cache for template binaries.
//
// The teacher's template_cache.go (internal/core/service/template) wraps
// dgraph-io/ristretto's probabilistic TinyLFU cache, which cannot
// guarantee the deterministic eviction order SPEC_FULL.md §8 requires
// ("eviction preserves strict LRU order"). container/list is the stdlib
// building block documented for exactly this use — see DESIGN.md for the
// full justification; ristretto remains wired for the JWKS 5-minute TTL
// cache where its probabilistic semantics are the right fit.
package templatecache

import (
	"container/list"
	"context"
	"sync"

	"github.com/docgen/docgen-sub000/internal/core/port"
)

type entry struct {
	id    string
	bytes []byte
}

// Cache is a strict-LRU, content-addressed byte cache. Keys are treated
// as immutable: a second Put for an existing key is a no-op.
type Cache struct {
	mu       sync.Mutex
	maxBytes int64

	ll    *list.List // front = most-recently-used
	index map[string]*list.Element

	totalBytes int64
	hits       int64
	misses     int64
	evictions  int64
}

func New(maxBytes int64) *Cache {
	return &Cache{
		maxBytes: maxBytes,
		ll:       list.New(),
		index:    make(map[string]*list.Element),
	}
}

// Get returns the cached bytes for id and bumps its recency, or reports a
// miss.
func (c *Cache) Get(_ context.Context, id string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[id]
	if !ok {
		c.misses++
		return nil, false
	}
	c.ll.MoveToFront(el)
	c.hits++
	return el.Value.(*entry).bytes, true
}

// Put admits bytes under id. A second Put for an existing key is a no-op
// per §4.3's immutable-key contract. Eviction removes least-recently-used
// entries until the new entry fits, unless the new entry alone exceeds
// maxBytes, in which case it is admitted and stands alone.
func (c *Cache) Put(_ context.Context, id string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.index[id]; exists {
		return
	}

	incoming := int64(len(data))
	for c.totalBytes+incoming > c.maxBytes && c.ll.Len() > 0 {
		back := c.ll.Back()
		c.evict(back)
	}

	el := c.ll.PushFront(&entry{id: id, bytes: data})
	c.index[id] = el
	c.totalBytes += incoming
}

// evict removes el from the list/index and accounts for its size. Caller
// must hold c.mu.
func (c *Cache) evict(el *list.Element) {
	e := el.Value.(*entry)
	c.ll.Remove(el)
	delete(c.index, e.id)
	c.totalBytes -= int64(len(e.bytes))
	c.evictions++
}

func (c *Cache) Stats() port.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return port.CacheStats{
		Hits:       c.hits,
		Misses:     c.misses,
		Evictions:  c.evictions,
		SizeBytes:  c.totalBytes,
		EntryCount: int64(c.ll.Len()),
	}
}

var _ port.TemplateCache = (*Cache)(nil)
