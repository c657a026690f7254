package commerce

import (
	"sync"
	"time"
)

// entry is one cached response with its expiry and invalidation tags.
type entry struct {
	resp    *Response
	expires time.Time
	tags    []string
}

// cache is an in-process response cache with TTL expiry and tag-based bulk
// invalidation. Expired entries are evicted lazily on read.
type cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	byTag   map[string]map[string]struct{}
}

func newCache() *cache {
	return &cache{
		entries: make(map[string]*entry),
		byTag:   make(map[string]map[string]struct{}),
	}
}

func (c *cache) get(key string, now time.Time) (*Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if now.After(e.expires) {
		c.removeLocked(key, e)
		return nil, false
	}
	return e.resp, true
}

func (c *cache) put(key string, resp *Response, ttl time.Duration, tags []string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[key]; ok {
		c.removeLocked(key, old)
	}

	c.entries[key] = &entry{
		resp:    resp,
		expires: now.Add(ttl),
		tags:    tags,
	}
	for _, tag := range tags {
		keys, ok := c.byTag[tag]
		if !ok {
			keys = make(map[string]struct{})
			c.byTag[tag] = keys
		}
		keys[key] = struct{}{}
	}
}

func (c *cache) invalidate(tag string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.byTag[tag] {
		if e, ok := c.entries[key]; ok {
			c.removeLocked(key, e)
		}
	}
	delete(c.byTag, tag)
}

// removeLocked drops the entry and its tag index records. Caller holds mu.
func (c *cache) removeLocked(key string, e *entry) {
	delete(c.entries, key)
	for _, tag := range e.tags {
		if keys, ok := c.byTag[tag]; ok {
			delete(keys, key)
			if len(keys) == 0 {
				delete(c.byTag, tag)
			}
		}
	}
}
