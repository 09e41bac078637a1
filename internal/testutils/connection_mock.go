package testutils

import (
	"bytes"
	"errors"
	"net"
	"sync"
	"time"
)

// ConnectionMock is a mock implementation of net.Conn for testing.
// Reads are served from pre-configured data, optionally in fixed-size fragments, and
// every write is recorded.
type ConnectionMock struct {
	mu sync.Mutex

	readBuf   *bytes.Buffer
	readChunk int

	writeBuf   *bytes.Buffer
	writeCalls int
	writeErr   error

	readDeadlines  []time.Time
	writeDeadlines []time.Time

	closed bool
}

// NewConnectionMock creates a new mock connection with pre-configured response data.
func NewConnectionMock(responseData ...[]byte) *ConnectionMock {
	return &ConnectionMock{
		readBuf:  bytes.NewBuffer(bytes.Join(responseData, nil)),
		writeBuf: &bytes.Buffer{},
	}
}

// WithReadChunk makes every Read return at most n bytes, so decoders see the data
// fragmented the way a slow socket delivers it.
func (m *ConnectionMock) WithReadChunk(n int) *ConnectionMock {
	m.readChunk = n
	return m
}

// WithWriteError makes every Write fail with err.
func (m *ConnectionMock) WithWriteError(err error) *ConnectionMock {
	m.writeErr = err
	return m
}

// AppendResponse queues more bytes for Read.
func (m *ConnectionMock) AppendResponse(b []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readBuf.Write(b)
}

// Reset drops everything read and written so far and queues b for Read.
func (m *ConnectionMock) Reset(b []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readBuf.Reset()
	m.readBuf.Write(b)
	m.writeBuf.Reset()
	m.writeCalls = 0
	m.readDeadlines = m.readDeadlines[:0]
	m.writeDeadlines = m.writeDeadlines[:0]
}

func (m *ConnectionMock) Read(b []byte) (n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, net.ErrClosed
	}
	if m.readChunk > 0 && len(b) > m.readChunk {
		b = b[:m.readChunk]
	}
	return m.readBuf.Read(b)
}

func (m *ConnectionMock) Write(b []byte) (n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, net.ErrClosed
	}
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	m.writeCalls++
	return m.writeBuf.Write(b)
}

func (m *ConnectionMock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("already closed")
	}
	m.closed = true
	return nil
}

func (m *ConnectionMock) LocalAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0}
}

func (m *ConnectionMock) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40404}
}

func (m *ConnectionMock) SetDeadline(t time.Time) error {
	_ = m.SetReadDeadline(t)
	return m.SetWriteDeadline(t)
}

func (m *ConnectionMock) SetReadDeadline(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readDeadlines = append(m.readDeadlines, t)
	return nil
}

func (m *ConnectionMock) SetWriteDeadline(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeDeadlines = append(m.writeDeadlines, t)
	return nil
}

// Written returns a copy of every byte written to the mock connection.
func (m *ConnectionMock) Written() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return bytes.Clone(m.writeBuf.Bytes())
}

// WriteCalls returns the number of successful Write calls.
func (m *ConnectionMock) WriteCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeCalls
}

// ReadDeadlines returns the deadlines passed to SetReadDeadline, in order.
func (m *ConnectionMock) ReadDeadlines() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Time(nil), m.readDeadlines...)
}

// Closed reports whether Close was called.
func (m *ConnectionMock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
