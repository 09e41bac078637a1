package cachewire

import (
	"context"
	"time"

	"github.com/pior/cachewire/wire"
	"github.com/sony/gobreaker/v2"
)

// NewServerPool creates the connection pool and circuit breaker for one server.
func NewServerPool(addr string, config Config) (*ServerPool, error) {
	config = config.withDefaults()

	constructor := config.constructor
	if constructor == nil {
		constructor = func(ctx context.Context) (*Connection, error) {
			netConn, err := config.Dialer.DialContext(ctx, "tcp", addr)
			if err != nil {
				return nil, err
			}
			return NewConnection(netConn, config.BufferSize, config.Stats), nil
		}
	}

	pool, err := config.NewPool(constructor, config.MaxSize)
	if err != nil {
		return nil, err
	}

	sp := &ServerPool{
		addr: addr,
		pool: pool,
	}
	if config.NewCircuitBreaker != nil {
		sp.circuitBreaker = config.NewCircuitBreaker(addr)
	}
	return sp, nil
}

// ServerPool wraps a pool, a circuit breaker with its server address.
type ServerPool struct {
	addr           string
	pool           Pool
	circuitBreaker *gobreaker.CircuitBreaker[*wire.Message]
}

func (sp *ServerPool) Address() string {
	return sp.addr
}

// ServerPoolStats contains stats for a single server pool
type ServerPoolStats struct {
	Addr                 string
	PoolStats            PoolStats
	CircuitBreakerState  gobreaker.State
	CircuitBreakerCounts gobreaker.Counts
}

func (sp *ServerPool) Stats() ServerPoolStats {
	stats := ServerPoolStats{
		Addr:      sp.addr,
		PoolStats: sp.pool.Stats(),
	}
	if sp.circuitBreaker != nil {
		stats.CircuitBreakerState = sp.circuitBreaker.State()
		stats.CircuitBreakerCounts = sp.circuitBreaker.Counts()
	}
	return stats
}

// Execute sends req on a pooled connection and reads the reply into resp.
// A connection is destroyed when the error left it in an unknown state, and released
// otherwise. The request goes through the server's circuit breaker when one is set.
func (sp *ServerPool) Execute(ctx context.Context, req, resp *wire.Message) error {
	if sp.circuitBreaker == nil {
		return sp.execDirect(ctx, req, resp)
	}

	_, err := sp.circuitBreaker.Execute(func() (*wire.Message, error) {
		if err := sp.execDirect(ctx, req, resp); err != nil {
			return nil, err
		}
		return resp, nil
	})
	return err
}

func (sp *ServerPool) execDirect(ctx context.Context, req, resp *wire.Message) error {
	resource, err := sp.pool.Acquire(ctx)
	if err != nil {
		return err
	}

	if err := resource.Value().Execute(ctx, req, resp); err != nil {
		if wire.ShouldCloseConnection(err) {
			resource.Destroy()
		} else {
			resource.Release()
		}
		return err
	}

	resource.Release()
	return nil
}

// checkIdle destroys idle connections past their lifetime or idle limits and pings the
// others.
func (sp *ServerPool) checkIdle(ctx context.Context, config Config) (destroyed int) {
	for _, res := range sp.pool.AcquireAllIdle() {
		switch {
		case config.MaxConnLifetime > 0 && time.Since(res.CreationTime()) > config.MaxConnLifetime,
			config.MaxConnIdleTime > 0 && res.IdleDuration() > config.MaxConnIdleTime:
			res.Destroy()
			destroyed++
			continue
		}

		if err := res.Value().Ping(ctx, config.Version); err != nil {
			res.Destroy()
			destroyed++
			continue
		}
		res.ReleaseUnused()
	}
	return destroyed
}

func (sp *ServerPool) Close() {
	sp.pool.Close()
}
