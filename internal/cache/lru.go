package cache

import (
	"sync"
)

// lruNode is a node in the doubly-linked list used for recency tracking.
type lruNode[V any] struct {
	key   string
	value V
	prev  *lruNode[V]
	next  *lruNode[V]
}

// LRU is a fixed-capacity cache with least-recently-used eviction. Reads
// promote entries to the front. Used for query embeddings, where the same
// query text recurs across retrieval calls.
type LRU[V any] struct {
	mu       sync.Mutex
	items    map[string]*lruNode[V]
	head     *lruNode[V] // most recently used
	tail     *lruNode[V] // least recently used
	capacity int
}

// NewLRU creates an LRU cache. Capacity must be at least 1.
func NewLRU[V any](capacity int) *LRU[V] {
	if capacity < 1 {
		capacity = 1
	}
	return &LRU[V]{
		items:    make(map[string]*lruNode[V]),
		capacity: capacity,
	}
}

// Get retrieves a value and promotes it to most recently used.
func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.moveToFront(node)
	return node.value, true
}

// Set adds or updates a value, evicting the least recently used entry when
// over capacity.
func (c *LRU[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if node, exists := c.items[key]; exists {
		node.value = value
		c.moveToFront(node)
		return
	}

	node := &lruNode[V]{key: key, value: value}
	c.items[key] = node
	c.addToFront(node)

	if len(c.items) > c.capacity {
		c.evictOldest()
	}
}

// Len returns the number of cached entries.
func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Clear removes all entries.
func (c *LRU[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*lruNode[V])
	c.head = nil
	c.tail = nil
}

func (c *LRU[V]) moveToFront(node *lruNode[V]) {
	if node == c.head {
		return
	}
	c.removeNode(node)
	c.addToFront(node)
}

func (c *LRU[V]) addToFront(node *lruNode[V]) {
	node.prev = nil
	node.next = c.head
	if c.head != nil {
		c.head.prev = node
	}
	c.head = node
	if c.tail == nil {
		c.tail = node
	}
}

func (c *LRU[V]) removeNode(node *lruNode[V]) {
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		c.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		c.tail = node.prev
	}
}

func (c *LRU[V]) evictOldest() {
	if c.tail == nil {
		return
	}
	delete(c.items, c.tail.key)
	if c.tail.prev != nil {
		c.tail.prev.next = nil
		c.tail = c.tail.prev
	} else {
		c.head = nil
		c.tail = nil
	}
}
