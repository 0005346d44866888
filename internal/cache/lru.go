package cache

import (
	"container/list"
	"sync"
	"time"
)

// LRU is a size-bounded cache whose entries expire after a TTL measured from
// their last access. Evicted and expired values are handed to OnEvict.
type LRU[T any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	items   map[string]*list.Element
	order   *list.List
	now     func() time.Time

	// OnEvict is called outside the lock for every value dropped by the cache.
	OnEvict func(key string, value T)
}

type entry[T any] struct {
	key       string
	value     T
	expiresAt time.Time
}

// NewLRU creates a cache holding at most maxSize entries for ttl after last use.
func NewLRU[T any](maxSize int, ttl time.Duration) *LRU[T] {
	if maxSize < 1 {
		maxSize = 1
	}
	return &LRU[T]{
		maxSize: maxSize,
		ttl:     ttl,
		items:   make(map[string]*list.Element),
		order:   list.New(),
		now:     time.Now,
	}
}

// Get returns the value for key and refreshes its TTL.
func (c *LRU[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	v, ok, expired := c.get(key)
	c.mu.Unlock()
	c.evicted(expired)
	return v, ok
}

func (c *LRU[T]) get(key string) (T, bool, []*entry[T]) {
	var zero T
	elem, ok := c.items[key]
	if !ok {
		return zero, false, nil
	}
	e := elem.Value.(*entry[T])
	if c.now().After(e.expiresAt) {
		c.remove(elem)
		return zero, false, []*entry[T]{e}
	}
	e.expiresAt = c.now().Add(c.ttl)
	c.order.MoveToFront(elem)
	return e.value, true, nil
}

// GetOrCreate returns the cached value for key, building and storing it with
// create when absent. create runs under the cache lock and must not call back
// into the cache.
func (c *LRU[T]) GetOrCreate(key string, create func() T) T {
	c.mu.Lock()
	v, ok, dropped := c.get(key)
	if !ok {
		v = create()
		dropped = append(dropped, c.set(key, v)...)
	}
	c.mu.Unlock()
	c.evicted(dropped)
	return v
}

// Set stores value under key, evicting the least recently used entry when full.
func (c *LRU[T]) Set(key string, value T) {
	c.mu.Lock()
	dropped := c.set(key, value)
	c.mu.Unlock()
	c.evicted(dropped)
}

func (c *LRU[T]) set(key string, value T) []*entry[T] {
	e := &entry[T]{key: key, value: value, expiresAt: c.now().Add(c.ttl)}
	if elem, ok := c.items[key]; ok {
		elem.Value = e
		c.order.MoveToFront(elem)
		return nil
	}
	c.items[key] = c.order.PushFront(e)

	var dropped []*entry[T]
	for c.order.Len() > c.maxSize {
		oldest := c.order.Back()
		dropped = append(dropped, oldest.Value.(*entry[T]))
		c.remove(oldest)
	}
	return dropped
}

// Delete removes key without calling OnEvict.
func (c *LRU[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.remove(elem)
	}
}

func (c *LRU[T]) remove(elem *list.Element) {
	delete(c.items, elem.Value.(*entry[T]).key)
	c.order.Remove(elem)
}

func (c *LRU[T]) evicted(entries []*entry[T]) {
	if c.OnEvict == nil {
		return
	}
	for _, e := range entries {
		c.OnEvict(e.key, e.value)
	}
}

// CleanExpired drops every expired entry and reports how many were removed.
func (c *LRU[T]) CleanExpired() int {
	c.mu.Lock()
	now := c.now()
	var dropped []*entry[T]
	for elem := c.order.Front(); elem != nil; {
		next := elem.Next()
		e := elem.Value.(*entry[T])
		if now.After(e.expiresAt) {
			dropped = append(dropped, e)
			c.remove(elem)
		}
		elem = next
	}
	c.mu.Unlock()
	c.evicted(dropped)
	return len(dropped)
}

// Values returns the live values, most recently used first.
func (c *LRU[T]) Values() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]T, 0, c.order.Len())
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		out = append(out, elem.Value.(*entry[T]).value)
	}
	return out
}

// Size returns the current number of items in the cache
func (c *LRU[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
