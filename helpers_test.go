package cachewire

import (
	"bytes"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/pior/cachewire/internal/testutils"
	"github.com/pior/cachewire/wire"
	"github.com/stretchr/testify/require"
)

// encodeMessage returns the bytes m puts on the wire.
func encodeMessage(t testing.TB, m *wire.Message) []byte {
	t.Helper()
	conn := testutils.NewConnectionMock()
	m.Bind(conn, wire.NewCommBuffer(0), nil)
	defer m.Unbind()
	require.NoError(t, m.SendKeepParts(context.Background()))
	return conn.Written()
}

func replyWire(t testing.TB, msgType wire.MessageType, txid int32, build func(m *wire.Message)) []byte {
	t.Helper()
	m := wire.NewMessage(0, wire.CurrentVersion)
	m.SetMessageType(msgType)
	m.SetTransactionID(txid)
	if build != nil {
		build(m)
	}
	return encodeMessage(t, m)
}

func testContext(t testing.TB) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// startServer serves on a loopback port until the test ends.
func startServer(t testing.TB, config ServerConfig, handler Handler) (*Server, string) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := NewServer(config, handler)
	errc := make(chan error, 1)
	go func() { errc <- s.Serve(l) }()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
		require.ErrorIs(t, <-errc, ErrServerClosed)
	})
	return s, l.Addr().String()
}

func newTestClient(t testing.TB, config Config, addrs ...string) *Client {
	t.Helper()
	client, err := NewClient(NewStaticServers(addrs...), config)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

// unusedAddr returns a loopback address nothing listens on.
func unusedAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func mockConnection(responses ...[]byte) (*Connection, *testutils.ConnectionMock) {
	mock := testutils.NewConnectionMock(responses...)
	return NewConnection(mock, 0, nil), mock
}

// syncBuffer is a bytes.Buffer safe for a logger writing from server goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bytes.Clone(b.buf.Bytes())
}
