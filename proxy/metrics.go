package proxy

import (
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// Metrics receives cache events per method name.
type Metrics interface {
	Hit(method string)
	Miss(method string)
	Invalidated(method string, keys int)
}

// NoopMetrics discards every event.
type NoopMetrics struct{}

func (NoopMetrics) Hit(string) {}
func (NoopMetrics) Miss(string) {}
func (NoopMetrics) Invalidated(string, int) {}

// Counters is an in-process Metrics implementation keeping per-method totals.
type Counters struct {
	hits        *xsync.MapOf[string, *atomic.Int64]
	misses      *xsync.MapOf[string, *atomic.Int64]
	invalidated *xsync.MapOf[string, *atomic.Int64]
}

// NewCounters returns zeroed counters.
func NewCounters() *Counters {
	return &Counters{
		hits:        xsync.NewMapOf[string, *atomic.Int64](),
		misses:      xsync.NewMapOf[string, *atomic.Int64](),
		invalidated: xsync.NewMapOf[string, *atomic.Int64](),
	}
}

func counter(m *xsync.MapOf[string, *atomic.Int64], method string) *atomic.Int64 {
	c, _ := m.LoadOrCompute(method, func() *atomic.Int64 { return new(atomic.Int64) })
	return c
}

func read(m *xsync.MapOf[string, *atomic.Int64], method string) int64 {
	if c, ok := m.Load(method); ok {
		return c.Load()
	}
	return 0
}

func (c *Counters) Hit(method string) { counter(c.hits, method).Add(1) }
func (c *Counters) Miss(method string) { counter(c.misses, method).Add(1) }

func (c *Counters) Invalidated(method string, keys int) {
	counter(c.invalidated, method).Add(int64(keys))
}

// Hits returns the cache hits recorded for method.
func (c *Counters) Hits(method string) int64 { return read(c.hits, method) }

// Misses returns the cache misses recorded for method.
func (c *Counters) Misses(method string) int64 { return read(c.misses, method) }

// InvalidatedKeys returns how many keys method has purged.
func (c *Counters) InvalidatedKeys(method string) int64 { return read(c.invalidated, method) }
