package cachewire

import (
	"context"
	"sync"
	"time"

	"github.com/pior/cachewire/internal/coarsetime"
)

// NewChannelPool creates the default pool: idle connections wait in a buffered channel
// and a counter bounds how many exist.
func NewChannelPool(constructor func(ctx context.Context) (*Connection, error), maxSize int32) (Pool, error) {
	return &channelPool{
		dial: constructor,
		max:  maxSize,
		idle: make(chan *pooledConn, maxSize),
	}, nil
}

// pooledConn is a connection checked out of, or waiting in, a channelPool.
type pooledConn struct {
	conn     *Connection
	owner    *channelPool
	created  time.Time
	lastUsed time.Time
}

func (c *pooledConn) Value() *Connection          { return c.conn }
func (c *pooledConn) CreationTime() time.Time     { return c.created }
func (c *pooledConn) IdleDuration() time.Duration { return coarsetime.Since(c.lastUsed) }

func (c *pooledConn) Release() {
	c.lastUsed = coarsetime.Now()
	c.owner.checkIn(c)
}

func (c *pooledConn) ReleaseUnused() {
	c.owner.checkIn(c)
}

func (c *pooledConn) Destroy() {
	_ = c.conn.Close()
	c.owner.forget()
}

type channelPool struct {
	dial func(ctx context.Context) (*Connection, error)
	max  int32

	mu     sync.Mutex
	idle   chan *pooledConn
	open   int32
	closed bool

	stats poolStatsCollector
}

func (p *channelPool) Acquire(ctx context.Context) (Resource, error) {
	p.stats.recordAcquire()

	for {
		c, err := p.acquireOnce(ctx)
		if err != nil {
			p.stats.recordAcquireError()
			return nil, err
		}
		// closed while idle
		if c.conn.IsClosed() {
			c.Destroy()
			continue
		}
		return c, nil
	}
}

func (p *channelPool) acquireOnce(ctx context.Context) (*pooledConn, error) {
	select {
	case c, ok := <-p.idle:
		return p.fromIdle(c, ok, 0)
	default:
	}

	if c, grew, err := p.grow(ctx); grew {
		return c, err
	}

	start := time.Now()
	select {
	case c, ok := <-p.idle:
		return p.fromIdle(c, ok, time.Since(start))
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *channelPool) fromIdle(c *pooledConn, ok bool, waited time.Duration) (*pooledConn, error) {
	if !ok {
		return nil, ErrPoolClosed
	}
	if waited > 0 {
		p.stats.recordAcquireWait(waited)
	}
	p.stats.recordAcquireFromIdle()
	return c, nil
}

// grow dials a new connection when the pool is below its size. grew is false when
// the caller must wait for an idle connection instead.
func (p *channelPool) grow(ctx context.Context) (c *pooledConn, grew bool, err error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, true, ErrPoolClosed
	}
	if p.open >= p.max {
		p.mu.Unlock()
		return nil, false, nil
	}
	p.open++
	p.mu.Unlock()

	conn, err := p.dial(ctx)
	if err != nil {
		p.mu.Lock()
		p.open--
		p.mu.Unlock()
		return nil, true, err
	}

	p.stats.recordCreate()
	p.stats.recordActivate()
	now := coarsetime.Now()
	return &pooledConn{conn: conn, owner: p, created: now, lastUsed: now}, true, nil
}

func (p *channelPool) checkIn(c *pooledConn) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.closed && !c.conn.IsClosed() {
		select {
		case p.idle <- c:
			p.stats.recordRelease()
			return
		default:
		}
	}

	_ = c.conn.Close()
	p.open--
	p.stats.recordDeactivate()
	p.stats.recordDestroy()
}

// forget accounts for a checked out connection that was closed.
func (p *channelPool) forget() {
	p.mu.Lock()
	p.open--
	p.mu.Unlock()

	p.stats.recordDestroy()
	p.stats.recordDeactivate()
}

func (p *channelPool) AcquireAllIdle() []Resource {
	var taken []Resource
	for {
		select {
		case c, ok := <-p.idle:
			if !ok {
				return taken
			}
			p.stats.recordAcquireFromIdle()
			taken = append(taken, c)
		default:
			return taken
		}
	}
}

func (p *channelPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true

	close(p.idle)
	for c := range p.idle {
		_ = c.conn.Close()
		p.open--
		p.stats.recordIdleDestroy()
		p.stats.recordDestroy()
	}
}

func (p *channelPool) Stats() PoolStats {
	return p.stats.snapshot()
}
