package cachewire

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pior/cachewire/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var poolFactories = []struct {
	name    string
	factory PoolFactory
}{
	{"channel", NewChannelPool},
	{"puddle", NewPuddlePool},
}

func newMockPool(t *testing.T, factory PoolFactory, maxSize int32) Pool {
	t.Helper()
	pool, err := factory(func(ctx context.Context) (*Connection, error) {
		return NewConnection(testutils.NewConnectionMock(), 0, nil), nil
	}, maxSize)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestPool_AcquireRelease(t *testing.T) {
	for _, tt := range poolFactories {
		t.Run(tt.name, func(t *testing.T) {
			pool := newMockPool(t, tt.factory, 2)
			ctx := testContext(t)

			res, err := pool.Acquire(ctx)
			require.NoError(t, err)
			conn := res.Value()
			require.NotNil(t, conn)

			stats := pool.Stats()
			assert.Equal(t, int32(1), stats.TotalConns)
			assert.Equal(t, int32(1), stats.ActiveConns)
			assert.Equal(t, uint64(1), stats.CreatedConns)

			res.Release()
			stats = pool.Stats()
			assert.Equal(t, int32(1), stats.IdleConns)
			assert.Equal(t, int32(0), stats.ActiveConns)

			res, err = pool.Acquire(ctx)
			require.NoError(t, err)
			assert.Same(t, conn, res.Value())
			assert.Equal(t, uint64(1), pool.Stats().CreatedConns)
			assert.Equal(t, uint64(2), pool.Stats().AcquireCount)
			res.Release()
		})
	}
}

func TestPool_MaxSizeBlocks(t *testing.T) {
	for _, tt := range poolFactories {
		t.Run(tt.name, func(t *testing.T) {
			pool := newMockPool(t, tt.factory, 1)

			res, err := pool.Acquire(testContext(t))
			require.NoError(t, err)

			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer cancel()
			_, err = pool.Acquire(ctx)
			require.ErrorIs(t, err, context.DeadlineExceeded)

			go func() {
				time.Sleep(10 * time.Millisecond)
				res.Release()
			}()
			res2, err := pool.Acquire(testContext(t))
			require.NoError(t, err)
			assert.Same(t, res.Value(), res2.Value())
			res2.Release()
		})
	}
}

func TestPool_Destroy(t *testing.T) {
	for _, tt := range poolFactories {
		t.Run(tt.name, func(t *testing.T) {
			pool := newMockPool(t, tt.factory, 1)

			res, err := pool.Acquire(testContext(t))
			require.NoError(t, err)
			conn := res.Value()
			res.Destroy()

			// puddle destroys in the background
			require.Eventually(t, func() bool {
				stats := pool.Stats()
				return conn.IsClosed() && stats.DestroyedConns == 1 && stats.TotalConns == 0
			}, time.Second, time.Millisecond)

			// the slot is free again
			res, err = pool.Acquire(testContext(t))
			require.NoError(t, err)
			assert.NotSame(t, conn, res.Value())
			res.Release()
		})
	}
}

func TestPool_ConstructorError(t *testing.T) {
	boom := errors.New("dial failed")
	for _, tt := range poolFactories {
		t.Run(tt.name, func(t *testing.T) {
			pool, err := tt.factory(func(ctx context.Context) (*Connection, error) {
				return nil, boom
			}, 1)
			require.NoError(t, err)
			defer pool.Close()

			_, err = pool.Acquire(testContext(t))
			require.ErrorIs(t, err, boom)
			require.Eventually(t, func() bool {
				return pool.Stats().TotalConns == 0
			}, time.Second, time.Millisecond)
		})
	}
}

func TestPool_AcquireAllIdle(t *testing.T) {
	for _, tt := range poolFactories {
		t.Run(tt.name, func(t *testing.T) {
			pool := newMockPool(t, tt.factory, 3)
			ctx := testContext(t)

			first, err := pool.Acquire(ctx)
			require.NoError(t, err)
			second, err := pool.Acquire(ctx)
			require.NoError(t, err)
			first.Release()
			second.Release()

			idle := pool.AcquireAllIdle()
			require.Len(t, idle, 2)
			assert.Equal(t, int32(0), pool.Stats().IdleConns)
			assert.Empty(t, pool.AcquireAllIdle())

			for _, res := range idle {
				res.ReleaseUnused()
			}
			assert.Equal(t, int32(2), pool.Stats().IdleConns)
		})
	}
}

func TestPool_Close(t *testing.T) {
	for _, tt := range poolFactories {
		t.Run(tt.name, func(t *testing.T) {
			pool := newMockPool(t, tt.factory, 2)

			res, err := pool.Acquire(testContext(t))
			require.NoError(t, err)
			conn := res.Value()
			res.Release()

			pool.Close()
			require.Eventually(t, conn.IsClosed, time.Second, time.Millisecond)

			_, err = pool.Acquire(testContext(t))
			require.ErrorIs(t, err, ErrPoolClosed)
		})
	}
}

func TestPool_DropsClosedIdleConnection(t *testing.T) {
	for _, tt := range poolFactories {
		t.Run(tt.name, func(t *testing.T) {
			pool := newMockPool(t, tt.factory, 1)

			res, err := pool.Acquire(testContext(t))
			require.NoError(t, err)
			stale := res.Value()
			res.Release()
			require.NoError(t, stale.Close())

			res, err = pool.Acquire(testContext(t))
			require.NoError(t, err)
			assert.NotSame(t, stale, res.Value())
			assert.False(t, res.Value().IsClosed())
			res.Release()

			require.Eventually(t, func() bool {
				return pool.Stats().CreatedConns == 2 && pool.Stats().DestroyedConns == 1
			}, time.Second, time.Millisecond)
		})
	}
}

func TestChannelPool_ReleaseAfterClose(t *testing.T) {
	pool := newMockPool(t, NewChannelPool, 1)

	res, err := pool.Acquire(testContext(t))
	require.NoError(t, err)

	pool.Close()
	res.Release()

	assert.True(t, res.Value().IsClosed())
	stats := pool.Stats()
	assert.Equal(t, int32(0), stats.TotalConns)
	assert.Equal(t, int32(0), stats.ActiveConns)
	assert.Equal(t, uint64(1), stats.DestroyedConns)
}

func TestChannelPool_IdleDuration(t *testing.T) {
	pool := newMockPool(t, NewChannelPool, 1)

	res, err := pool.Acquire(testContext(t))
	require.NoError(t, err)
	assert.False(t, res.CreationTime().IsZero())
	assert.Less(t, res.IdleDuration(), time.Second)
	res.Release()
}
