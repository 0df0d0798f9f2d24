// ABOUTME: Thread-safe TTL cache for single-use tokens and duplicate suppression
// ABOUTME: Size-bounded with O(1) oldest-entry eviction via linked list

package ttlcache

import (
	"container/list"
	"sync"
	"time"
)

// entry tracks when a key was inserted and where it sits in insertion order.
type entry struct {
	insertedAt time.Time
	element    *list.Element
}

// Cache is a thread-safe, TTL-based, size-limited set of keys. It backs two
// uses: single-use login state nonces (Put/TakeOnce) and duplicate activity
// suppression (Seen). A background goroutine sweeps expired entries.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   *list.List // keys in insertion order, oldest at front
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a cache whose entries expire after ttl and which holds at most
// maxSize keys, evicting the oldest when full.
func New(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		entries: make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.sweep()
	return c
}

// Put inserts or refreshes a key.
func (c *Cache) Put(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.putLocked(key)
}

// TakeOnce removes the key and reports whether it was present and unexpired.
// A second TakeOnce for the same key returns false, which makes stored login
// states single-use.
func (c *Cache) TakeOnce(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	c.order.Remove(e.element)
	delete(c.entries, key)
	return time.Since(e.insertedAt) < c.ttl
}

// Seen atomically reports whether the key is already present and inserts it
// if not. True means duplicate.
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok && time.Since(e.insertedAt) < c.ttl {
		return true
	}
	c.putLocked(key)
	return false
}

// Len returns the number of live entries, counting any not yet swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) putLocked(key string) {
	now := time.Now()
	if e, ok := c.entries[key]; ok {
		e.insertedAt = now
		c.order.MoveToBack(e.element)
		return
	}
	if len(c.entries) >= c.maxSize {
		if front := c.order.Front(); front != nil {
			delete(c.entries, front.Value.(string))
			c.order.Remove(front)
		}
	}
	c.entries[key] = &entry{insertedAt: now, element: c.order.PushBack(key)}
}

// sweep periodically drops expired entries.
func (c *Cache) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for key, e := range c.entries {
				if now.Sub(e.insertedAt) > c.ttl {
					c.order.Remove(e.element)
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		}
	}
}

// Close stops the sweeper. Safe to call more than once.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
