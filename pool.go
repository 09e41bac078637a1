package cachewire

import (
	"context"
	"errors"
	"time"
)

var ErrPoolClosed = errors.New("cachewire: pool closed")

// Pool is a set of connections to a single server.
type Pool interface {
	// Acquire returns an idle connection, creates one, or waits for one to be released.
	Acquire(ctx context.Context) (Resource, error)

	// AcquireAllIdle takes every idle connection, for health checks.
	AcquireAllIdle() []Resource

	Close()

	Stats() PoolStats
}

// Resource is a connection checked out of a Pool.
type Resource interface {
	Value() *Connection

	// Release returns the connection to the pool.
	Release()

	// ReleaseUnused returns the connection without touching its last-used time.
	ReleaseUnused()

	// Destroy closes the connection and removes it from the pool.
	Destroy()

	CreationTime() time.Time
	IdleDuration() time.Duration
}

// PoolFactory builds a Pool from a connection constructor.
type PoolFactory func(constructor func(ctx context.Context) (*Connection, error), maxSize int32) (Pool, error)
