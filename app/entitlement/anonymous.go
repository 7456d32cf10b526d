package entitlement

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// AnonymousCounter tracks free MOT lookups per client address. It is process-local and
// volatile: a restart, an eviction or the TTL resets a client's count.
type AnonymousCounter struct {
	mu    sync.Mutex
	limit int
	seen  *expirable.LRU[string, int]
}

// NewAnonymousCounter keeps up to size clients. A ttl of 0 never expires entries.
func NewAnonymousCounter(limit, size int, ttl time.Duration) *AnonymousCounter {
	return &AnonymousCounter{
		limit: limit,
		seen:  expirable.NewLRU[string, int](size, nil, ttl),
	}
}

// Reserve takes one slot for key, reporting false once the limit is reached.
func (c *AnonymousCounter) Reserve(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, _ := c.seen.Get(key)
	if n >= c.limit {
		return false
	}
	c.seen.Add(key, n+1)
	return true
}

// Release returns a slot taken by Reserve.
func (c *AnonymousCounter) Release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.seen.Get(key)
	if !ok || n == 0 {
		return
	}
	c.seen.Add(key, n-1)
}

// Used reports how many slots key holds.
func (c *AnonymousCounter) Used(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, _ := c.seen.Get(key)
	return n
}
