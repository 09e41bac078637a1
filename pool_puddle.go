package cachewire

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/jackc/puddle/v2"
)

// NewPuddlePool creates a pool backed by github.com/jackc/puddle.
func NewPuddlePool(constructor func(ctx context.Context) (*Connection, error), maxSize int32) (Pool, error) {
	p := &puddlePool{}

	pool, err := puddle.NewPool(&puddle.Config[*Connection]{
		Constructor: func(ctx context.Context) (*Connection, error) {
			conn, err := constructor(ctx)
			if err != nil {
				return nil, err
			}
			p.created.Add(1)
			return conn, nil
		},
		Destructor: func(c *Connection) {
			p.destroyed.Add(1)
			_ = c.Close()
		},
		MaxSize: maxSize,
	})
	if err != nil {
		return nil, err
	}
	p.pool = pool
	return p, nil
}

type puddlePool struct {
	pool      *puddle.Pool[*Connection]
	created   atomic.Uint64
	destroyed atomic.Uint64
	errors    atomic.Uint64
}

func (p *puddlePool) Acquire(ctx context.Context) (Resource, error) {
	for {
		res, err := p.pool.Acquire(ctx)
		switch {
		case errors.Is(err, puddle.ErrClosedPool):
			p.errors.Add(1)
			return nil, ErrPoolClosed
		case err != nil:
			p.errors.Add(1)
			return nil, err
		case res.Value().IsClosed():
			// closed while idle
			res.Destroy()
			continue
		}
		return res, nil
	}
}

func (p *puddlePool) AcquireAllIdle() []Resource {
	idle := p.pool.AcquireAllIdle()
	resources := make([]Resource, 0, len(idle))
	for _, res := range idle {
		resources = append(resources, res)
	}
	return resources
}

func (p *puddlePool) Close() {
	p.pool.Close()
}

func (p *puddlePool) Stats() PoolStats {
	s := p.pool.Stat()

	return PoolStats{
		AcquireCount:      uint64(s.AcquireCount()),
		AcquireWaitCount:  uint64(s.EmptyAcquireCount()),
		CreatedConns:      p.created.Load(),
		DestroyedConns:    p.destroyed.Load(),
		AcquireErrors:     p.errors.Load(),
		AcquireWaitTimeNs: uint64(s.EmptyAcquireWaitTime().Nanoseconds()),
		TotalConns:        s.TotalResources(),
		IdleConns:         s.IdleResources(),
		ActiveConns:       s.AcquiredResources(),
	}
}
