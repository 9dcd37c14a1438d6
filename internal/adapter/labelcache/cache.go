// Package labelcache memoizes event label classification. The Storm Events
// table repeats a few hundred distinct labels across close to a million rows.
package labelcache

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/couchcryptid/storm-data-normalizer/internal/domain"
	"github.com/couchcryptid/storm-data-normalizer/internal/observability"
)

// CachedClassifier wraps a Classifier with a bounded LRU keyed by the
// lower-cased label. It is safe for concurrent use.
type CachedClassifier struct {
	inner  domain.Classifier
	cache  *lruCache[string]
	hits   prometheus.Counter
	misses prometheus.Counter
}

// New creates a cache decorator around inner holding at most maxEntries labels.
func New(inner domain.Classifier, maxEntries int, metrics *observability.Metrics) *CachedClassifier {
	return &CachedClassifier{
		inner:  inner,
		cache:  newLRUCache[string](maxEntries),
		hits:   metrics.ClassifierCache.WithLabelValues("hit"),
		misses: metrics.ClassifierCache.WithLabelValues("miss"),
	}
}

func (c *CachedClassifier) Classify(label string) string {
	key := strings.ToLower(label)
	if category, ok := c.cache.get(key); ok {
		c.hits.Inc()
		return category
	}
	c.misses.Inc()
	category := c.inner.Classify(label)
	c.cache.put(key, category)
	return category
}

// Len returns the number of cached labels.
func (c *CachedClassifier) Len() int { return c.cache.len() }

// lruCache is a thread-safe LRU map from string keys to V.
type lruCache[V any] struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry[V]
	head       *entry[V] // most recently used
	tail       *entry[V] // least recently used
}

type entry[V any] struct {
	key   string
	value V
	prev  *entry[V]
	next  *entry[V]
}

func newLRUCache[V any](maxEntries int) *lruCache[V] {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &lruCache[V]{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry[V]),
	}
}

func (c *lruCache[V]) get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache[V]) put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry[V]{key: key, value: value}
	c.entries[key] = e
	c.pushFront(e)

	if len(c.entries) > c.maxEntries {
		victim := c.tail
		delete(c.entries, victim.key)
		c.unlink(victim)
	}
}

func (c *lruCache[V]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache[V]) moveToFront(e *entry[V]) {
	if e == c.head {
		return
	}
	c.unlink(e)
	c.pushFront(e)
}

func (c *lruCache[V]) pushFront(e *entry[V]) {
	e.prev, e.next = nil, c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache[V]) unlink(e *entry[V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}
