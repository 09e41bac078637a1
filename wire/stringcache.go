package wire

import (
	"sync"
	"sync/atomic"
)

// StringCache maps frequently sent strings to their encoded bytes so they are not
// re-encoded on every message. Returned slices are shared and must not be modified.
type StringCache interface {
	Encode(s string) []byte
}

// NewStringCache returns a goroutine-safe StringCache.
//
// With maxEntries == 0 the cache is unbounded and append-only: every distinct string
// ever passed with caching enabled stays in memory for the life of the cache. That is
// the intended trade-off for a small set of literals (region names, function ids), but
// it grows without limit if callers cache peer-controlled strings.
//
// With maxEntries > 0 the cache stops admitting new strings once full. Nothing is
// evicted; strings that missed admission are encoded on each call.
func NewStringCache(maxEntries int) StringCache {
	return &stringCache{max: int64(maxEntries)}
}

// DefaultStringCache is the process-wide unbounded cache used when a Message is not
// given its own.
var DefaultStringCache = NewStringCache(0)

type stringCache struct {
	entries sync.Map // string -> []byte
	size    atomic.Int64
	max     int64
}

func (c *stringCache) Encode(s string) []byte {
	if b, ok := c.entries.Load(s); ok {
		return b.([]byte)
	}

	b := []byte(s)
	if c.max > 0 && c.size.Load() >= c.max {
		return b
	}

	actual, loaded := c.entries.LoadOrStore(s, b)
	if !loaded {
		c.size.Add(1)
	}
	return actual.([]byte)
}

// Len returns the number of cached strings.
func (c *stringCache) Len() int {
	return int(c.size.Load())
}
