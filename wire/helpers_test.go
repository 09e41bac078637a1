package wire

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"

	"github.com/pior/cachewire/internal/testutils"
	"github.com/stretchr/testify/require"
)

// encode sends m on a mock connection and returns the bytes written.
func encode(t testing.TB, m *Message) []byte {
	t.Helper()
	conn := testutils.NewConnectionMock()
	m.Bind(conn, NewCommBuffer(0), nil)
	require.NoError(t, m.SendKeepParts(context.Background()))
	m.Unbind()
	return conn.Written()
}

func header(msgType MessageType, length, numParts, txid int32, flags byte) []byte {
	b := make([]byte, HeaderLength)
	binary.BigEndian.PutUint32(b[0:], uint32(msgType))
	binary.BigEndian.PutUint32(b[4:], uint32(length))
	binary.BigEndian.PutUint32(b[8:], uint32(numParts))
	binary.BigEndian.PutUint32(b[12:], uint32(txid))
	b[16] = flags
	return b
}

func rawPart(typeCode byte, data []byte) []byte {
	b := make([]byte, PartHeaderLength, PartHeaderLength+len(data))
	binary.BigEndian.PutUint32(b, uint32(len(data)))
	b[4] = typeCode
	return append(b, data...)
}

// sampleMessage is the three part message used across the tests: "abc", 42, [0 1 2].
func sampleMessage() *Message {
	m := NewMessage(3, CurrentVersion)
	m.SetMessageType(Put)
	m.SetTransactionID(7)
	m.AddStringPart("abc", false)
	m.AddIntPart(42)
	m.AddBytesPart([]byte{0, 1, 2})
	return m
}

var sampleWire = concat(
	header(Put, 25, 3, 7, 0),
	rawPart(TypeCodeBytes, []byte("abc")),
	rawPart(TypeCodeBytes, []byte{0, 0, 0, 42}),
	rawPart(TypeCodeBytes, []byte{0, 1, 2}),
)

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

type recordingStats struct {
	mu                 sync.Mutex
	sent               int
	received           int
	beingReceived      int
	bytesBeingReceived int
	timedOut           int
}

func (s *recordingStats) IncSentBytes(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent += n
}

func (s *recordingStats) IncReceivedBytes(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received += n
}

func (s *recordingStats) IncMessagesBeingReceived(bytes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beingReceived++
	s.bytesBeingReceived += bytes
}

func (s *recordingStats) DecMessagesBeingReceived(bytes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beingReceived--
	s.bytesBeingReceived -= bytes
}

func (s *recordingStats) IncConnectionsTimedOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timedOut++
}
