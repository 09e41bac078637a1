package cachewire

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/pior/cachewire/internal"
	"github.com/pior/cachewire/wire"
)

var ErrConnectionClosed = errors.New("cachewire: connection closed")

var commBuffers = internal.NewBufferPool()

// Connection is a single client or server connection together with the comm buffer
// every message exchanged on it goes through.
type Connection struct {
	net.Conn

	buf   *wire.CommBuffer
	stats wire.Stats

	closeOnce sync.Once
	closed    atomic.Bool
}

// NewConnection wraps conn with a comm buffer of bufferSize bytes (wire.DefaultChunkSize
// when zero). stats may be nil.
func NewConnection(conn net.Conn, bufferSize int, stats wire.Stats) *Connection {
	if bufferSize <= 0 {
		bufferSize = wire.DefaultChunkSize
	}
	bufferSize = max(bufferSize, wire.HeaderLength)
	return &Connection{
		Conn:  conn,
		buf:   wire.NewCommBufferFrom(commBuffers.Get(bufferSize)),
		stats: stats,
	}
}

// Bind attaches m to this connection.
func (c *Connection) Bind(m *wire.Message) {
	m.Bind(c.Conn, c.buf, c.stats)
}

// Execute sends req and reads the matching response into resp.
// The request parts are kept so the caller can send req again elsewhere.
// A response carrying another transaction id is a protocol error.
func (c *Connection) Execute(ctx context.Context, req, resp *wire.Message) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	c.Bind(req)
	defer req.Unbind()
	if err := req.SendKeepParts(ctx); err != nil {
		return err
	}

	c.Bind(resp)
	defer resp.Unbind()
	if err := resp.Receive(ctx); err != nil {
		return err
	}

	if resp.TransactionID() != req.TransactionID() {
		return &wire.ProtocolError{
			Message: fmt.Sprintf("response transaction id %d does not match request %d", resp.TransactionID(), req.TransactionID()),
		}
	}
	return nil
}

// Ping sends a ping and waits for the reply.
func (c *Connection) Ping(ctx context.Context, version wire.Version) error {
	req := wire.NewMessage(0, version)
	req.SetMessageType(wire.Ping)
	resp := wire.NewMessage(0, version)
	defer resp.Clear()

	if err := c.Execute(ctx, req, resp); err != nil {
		return err
	}
	if resp.MessageType() != wire.Reply {
		return fmt.Errorf("cachewire: unexpected ping response %s", resp.MessageType())
	}
	return nil
}

// IsClosed reports whether Close was called.
func (c *Connection) IsClosed() bool {
	return c.closed.Load()
}

// Close closes the network connection and recycles the comm buffer.
// The connection must not be in use.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		err = c.Conn.Close()
		commBuffers.Put(c.buf.Storage())
	})
	return err
}
