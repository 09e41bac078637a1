package cachewire

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pior/cachewire/wire"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// Config holds configuration for the client connection pools.
type Config struct {
	// MaxSize is the maximum number of connections per server.
	// Defaults to 8.
	MaxSize int32

	// MaxConnLifetime is the maximum duration a connection can be reused.
	// Zero means no limit.
	MaxConnLifetime time.Duration

	// MaxConnIdleTime is the maximum duration a connection can be idle before being closed.
	// Zero means no limit.
	MaxConnIdleTime time.Duration

	// HealthCheckInterval is how often idle connections are pinged and checked against
	// the lifetime limits. Zero disables health checks.
	HealthCheckInterval time.Duration

	// Dialer is the net.Dialer used to create new connections.
	// If nil, the default net.Dialer is used.
	Dialer *net.Dialer

	// NewPool is the connection pool factory function.
	// If nil, uses the channel-based pool. NewPuddlePool is the alternative.
	NewPool PoolFactory

	// SelectServer picks which server owns a routing key.
	// If nil, uses DefaultServerSelector.
	SelectServer ServerSelector

	// NewCircuitBreaker creates a circuit breaker for a server.
	// Called once per server address when the pool is created.
	// If nil, no circuit breaker is used.
	NewCircuitBreaker func(serverAddr string) *gobreaker.CircuitBreaker[*wire.Message]

	// BufferSize is the comm buffer size of each connection.
	// Defaults to wire.DefaultChunkSize.
	BufferSize int

	// MaxMessageSize bounds outgoing messages. Defaults to wire.DefaultMaxMessageSize.
	MaxMessageSize int

	// Version is the protocol version spoken to the servers. Defaults to wire.CurrentVersion.
	Version wire.Version

	// RetryAttempts is how many other servers a request is resent to after a transport
	// failure. Zero disables retries.
	RetryAttempts int

	// Stats receives the byte accounting of every connection. May be nil.
	Stats wire.Stats

	// Metrics records request outcomes. When Stats is nil, Metrics also serves as Stats.
	Metrics *Metrics

	// Logger defaults to a disabled logger.
	Logger *zerolog.Logger

	// for testing purposes only
	constructor func(ctx context.Context) (*Connection, error)
}

func (c Config) withDefaults() Config {
	if c.MaxSize <= 0 {
		c.MaxSize = 8
	}
	if c.Dialer == nil {
		c.Dialer = &net.Dialer{}
	}
	if c.NewPool == nil {
		c.NewPool = NewChannelPool
	}
	if c.SelectServer == nil {
		c.SelectServer = DefaultServerSelector
	}
	if c.BufferSize <= 0 {
		c.BufferSize = wire.DefaultChunkSize
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = wire.DefaultMaxMessageSize
	}
	if c.Version.IsZero() {
		c.Version = wire.CurrentVersion
	}
	if c.Stats == nil && c.Metrics != nil {
		c.Stats = c.Metrics
	}
	if c.Logger == nil {
		nop := zerolog.Nop()
		c.Logger = &nop
	}
	return c
}

// ServerError is the exception message a server answered a request with.
// The connection stays usable.
type ServerError struct {
	Addr    string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("cachewire: server %s: %s", e.Addr, e.Message)
}

func (e *ServerError) ShouldCloseConnection() bool {
	return false
}

// Client sends requests to a set of servers, routing each one by key.
type Client struct {
	servers Servers
	config  Config
	logger  zerolog.Logger

	mu    sync.RWMutex
	pools map[string]*ServerPool

	txid atomic.Int32

	stopHealthCheck chan struct{}
	closeOnce       sync.Once

	stats clientStatsCollector
}

// NewClient creates a client for servers.
// For a single server, use: NewClient(NewStaticServers("host:port"), config)
func NewClient(servers Servers, config Config) (*Client, error) {
	if len(servers.List()) == 0 {
		return nil, ErrNoServers
	}

	config = config.withDefaults()
	client := &Client{
		servers:         servers,
		config:          config,
		logger:          *config.Logger,
		pools:           make(map[string]*ServerPool),
		stopHealthCheck: make(chan struct{}),
	}

	if config.HealthCheckInterval > 0 {
		go client.healthCheckLoop()
	}

	return client, nil
}

// Close stops health checks and closes every pool.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.stopHealthCheck)

		c.mu.Lock()
		defer c.mu.Unlock()
		for _, sp := range c.pools {
			sp.Close()
		}
	})
}

// NewRequest creates a request message with room for numberOfParts parts, in the
// client's protocol version and size limit.
func (c *Client) NewRequest(t wire.MessageType, numberOfParts int) *wire.Message {
	m := wire.NewMessage(numberOfParts, c.config.Version)
	m.SetMessageType(t)
	m.SetMaxMessageSize(c.config.MaxMessageSize)
	return m
}

// nextTransactionID returns ids in [0, MaxInt32], skipping wire.NoTransaction.
func (c *Client) nextTransactionID() int32 {
	return c.txid.Add(1) & math.MaxInt32
}

// Execute sends req to the server owning routingKey and returns the reply.
//
// The request is assigned a fresh transaction id. On a transport failure or an open
// circuit, it is resent unchanged, marked as a retry, to the next servers in the list,
// up to RetryAttempts times. A server exception is returned as *ServerError.
//
// The caller must Clear the returned message when done with it.
func (c *Client) Execute(ctx context.Context, routingKey string, req *wire.Message) (*wire.Message, error) {
	servers := c.servers.List()
	if len(servers) == 0 {
		c.recordError()
		return nil, ErrNoServers
	}

	req.SetTransactionID(c.nextTransactionID())
	c.stats.recordRequest()

	start := c.config.SelectServer(routingKey, len(servers))
	attempts := min(c.config.RetryAttempts+1, len(servers))

	var lastErr error
	for attempt := range attempts {
		addr := servers[(start+attempt)%len(servers)]
		if attempt > 0 {
			req.SetIsRetry()
			c.stats.recordRetry()
			if c.config.Metrics != nil {
				c.config.Metrics.recordRetry()
			}
			c.logger.Warn().Err(lastErr).Str("addr", addr).Int32("txid", req.TransactionID()).Msg("retrying request")
		}

		resp, err := c.executeOn(ctx, addr, req)
		if err == nil {
			c.recordOutcome(outcomeOK)
			return resp, nil
		}
		lastErr = err

		var serverErr *ServerError
		if errors.As(err, &serverErr) {
			c.stats.recordException()
			c.recordOutcome(outcomeException)
			return nil, err
		}
		if !c.retryable(ctx, err) {
			break
		}
	}

	c.recordError()
	return nil, lastErr
}

func (c *Client) executeOn(ctx context.Context, addr string, req *wire.Message) (*wire.Message, error) {
	sp, err := c.getOrCreatePool(addr)
	if err != nil {
		return nil, err
	}

	resp := wire.NewMessage(0, c.config.Version)
	if err := sp.Execute(ctx, req, resp); err != nil {
		resp.Clear()
		if wire.ShouldCloseConnection(err) {
			c.logger.Debug().Err(err).Str("addr", addr).Msg("connection destroyed")
		}
		return nil, err
	}

	if resp.MessageType() == wire.Exception {
		defer resp.Clear()
		serverErr := &ServerError{Addr: addr}
		if p := resp.Part(0); p != nil {
			serverErr.Message = p.StringValue()
		}
		return nil, serverErr
	}
	return resp, nil
}

func (c *Client) retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return true
	case errors.Is(err, ErrPoolClosed):
		return false
	}
	return wire.ShouldCloseConnection(err)
}

func (c *Client) recordError() {
	c.stats.recordError()
	c.recordOutcome(outcomeError)
}

func (c *Client) recordOutcome(outcome string) {
	if c.config.Metrics != nil {
		c.config.Metrics.recordRequest(outcome)
	}
}

// getOrCreatePool gets or creates a pool for the given server address.
func (c *Client) getOrCreatePool(addr string) (*ServerPool, error) {
	c.mu.RLock()
	sp, exists := c.pools[addr]
	c.mu.RUnlock()
	if exists {
		return sp, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if sp, exists := c.pools[addr]; exists {
		return sp, nil
	}
	select {
	case <-c.stopHealthCheck:
		return nil, ErrPoolClosed
	default:
	}

	sp, err := NewServerPool(addr, c.config)
	if err != nil {
		return nil, err
	}
	c.pools[addr] = sp
	return sp, nil
}

func (c *Client) allPools() []*ServerPool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	pools := make([]*ServerPool, 0, len(c.pools))
	for _, sp := range c.pools {
		pools = append(pools, sp)
	}
	return pools
}

// healthCheckLoop periodically checks idle connections for health and lifecycle limits.
func (c *Client) healthCheckLoop() {
	ticker := time.NewTicker(c.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopHealthCheck:
			return
		case <-ticker.C:
			c.checkAllPools()
		}
	}
}

func (c *Client) checkAllPools() {
	ctx, cancel := context.WithTimeout(context.Background(), max(c.config.HealthCheckInterval, time.Second))
	defer cancel()

	for _, sp := range c.allPools() {
		if n := sp.checkIdle(ctx, c.config); n > 0 {
			c.logger.Debug().Str("addr", sp.Address()).Int("destroyed", n).Msg("health check destroyed idle connections")
		}
	}
}

// Stats returns a snapshot of client statistics.
func (c *Client) Stats() ClientStats {
	return c.stats.snapshot()
}

// AllPoolStats returns stats for all server pools
func (c *Client) AllPoolStats() []ServerPoolStats {
	pools := c.allPools()
	stats := make([]ServerPoolStats, 0, len(pools))
	for _, sp := range pools {
		stats = append(stats, sp.Stats())
	}
	return stats
}
