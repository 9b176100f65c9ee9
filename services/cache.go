package services

import (
	"sync"
	"time"

	"github.com/yourusername/escrow-demo/metrics"
	"github.com/zoobzio/clockz"
)

// DefaultViewTTL is how long a dashboard view is served from cache.
const DefaultViewTTL = 3 * time.Second

// viewCache holds the most recent value of one view. It is not keyed by query
// arguments: any caller inside the TTL gets the stored value.
type viewCache[T any] struct {
	mu      sync.Mutex
	name    string
	clock   clockz.Clock
	ttl     time.Duration
	metrics *metrics.EscrowMetrics

	value  T
	stored time.Time
	ok     bool
}

func newViewCache[T any](name string, clock clockz.Clock, ttl time.Duration, m *metrics.EscrowMetrics) *viewCache[T] {
	return &viewCache[T]{name: name, clock: clock, ttl: ttl, metrics: m}
}

func (c *viewCache[T]) get() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ok && c.clock.Now().Sub(c.stored) < c.ttl {
		c.metrics.CacheResult(c.name, true)
		return c.value, true
	}
	c.metrics.CacheResult(c.name, false)
	var zero T
	return zero, false
}

func (c *viewCache[T]) put(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = v
	c.stored = c.clock.Now()
	c.ok = true
}

func (c *viewCache[T]) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ok = false
}
