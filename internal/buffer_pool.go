package internal

import (
	"sync"
)

// BufferPool recycles the fixed-size byte slices that back comm buffers.
// Slices are grouped by capacity so a connection always gets back the size it asked for.
type BufferPool struct {
	pools sync.Map // int -> *sync.Pool
}

func NewBufferPool() *BufferPool {
	return &BufferPool{}
}

func (p *BufferPool) pool(size int) *sync.Pool {
	if sp, ok := p.pools.Load(size); ok {
		return sp.(*sync.Pool)
	}
	sp, _ := p.pools.LoadOrStore(size, &sync.Pool{
		New: func() any {
			b := make([]byte, size)
			return &b
		},
	})
	return sp.(*sync.Pool)
}

// Get returns a slice of exactly size bytes. Its content is unspecified.
func (p *BufferPool) Get(size int) []byte {
	return *p.pool(size).Get().(*[]byte)
}

// Put hands b back for reuse. b must not be used afterwards.
func (p *BufferPool) Put(b []byte) {
	if cap(b) == 0 {
		return
	}
	b = b[:cap(b)]
	p.pool(len(b)).Put(&b)
}
