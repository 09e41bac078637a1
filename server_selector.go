package cachewire

import (
	"github.com/pior/cachewire/internal"
)

// ServerSelector picks the index of the server that owns a routing key.
// serverCount is always at least 1.
type ServerSelector func(key string, serverCount int) int

// DefaultServerSelector uses Jump Hash over an xxh3 digest of the key.
// Jump Hash moves few keys when servers are added or removed at the end of the list.
func DefaultServerSelector(key string, serverCount int) int {
	return internal.Bucket(key, serverCount)
}

// staticSelector is used in tests to always select a specific server.
func staticSelector(index int) ServerSelector {
	return func(key string, serverCount int) int {
		return index % serverCount
	}
}
