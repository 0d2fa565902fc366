package translate

import (
	"container/list"
	"context"
	"crypto/sha256"
	"sync"
)

// Caching wraps a Translator with a bounded LRU keyed by content hash.
// Repeat calls for the same cleaned text return identical output without
// touching the provider, which is what keeps re-verification stable when
// the upstream service is nondeterministic.
type Caching struct {
	inner    Translator
	capacity int

	mu      sync.Mutex
	entries map[[32]byte]*list.Element
	order   *list.List
}

type cacheEntry struct {
	key   [32]byte
	value string
}

// NewCaching wraps inner with an LRU of the given capacity.
func NewCaching(inner Translator, capacity int) *Caching {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Caching{
		inner:    inner,
		capacity: capacity,
		entries:  make(map[[32]byte]*list.Element),
		order:    list.New(),
	}
}

// Translate returns the cached translation when present; otherwise it
// calls the provider and caches the success.
func (c *Caching) Translate(ctx context.Context, text, sourceLang string) (string, error) {
	key := sha256.Sum256([]byte(sourceLang + "\x00" + text))

	c.mu.Lock()
	if el, ok := c.entries[key]; ok {
		c.order.MoveToFront(el)
		v := el.Value.(*cacheEntry).value
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	out, err := c.inner.Translate(ctx, text, sourceLang)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	if el, ok := c.entries[key]; ok {
		c.order.MoveToFront(el)
		el.Value.(*cacheEntry).value = out
	} else {
		c.entries[key] = c.order.PushFront(&cacheEntry{key: key, value: out})
		if c.order.Len() > c.capacity {
			oldest := c.order.Back()
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).key)
		}
	}
	c.mu.Unlock()

	return out, nil
}

// Close closes the wrapped translator.
func (c *Caching) Close() error { return c.inner.Close() }

// Len returns the number of cached translations.
func (c *Caching) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
