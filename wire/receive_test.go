package wire

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/pior/cachewire/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, data []byte, readChunk, bufSize int) (*Message, error) {
	t.Helper()
	conn := testutils.NewConnectionMock(data).WithReadChunk(readChunk)
	m := NewMessage(1, CurrentVersion)
	m.Bind(conn, NewCommBuffer(bufSize), nil)
	return m, m.Receive(context.Background())
}

func TestReceive_RoundTrip(t *testing.T) {
	for _, chunk := range []int{1, 7, 4096} {
		for _, bufSize := range []int{HeaderLength, 64, DefaultChunkSize} {
			t.Run(fmt.Sprintf("chunk=%d/buf=%d", chunk, bufSize), func(t *testing.T) {
				m, err := receive(t, sampleWire, chunk, bufSize)
				require.NoError(t, err)

				assert.Equal(t, Put, m.MessageType())
				assert.Equal(t, int32(7), m.TransactionID())
				assert.Equal(t, 3, m.NumberOfParts())
				assert.Equal(t, 25, m.PayloadLength())
				assert.Equal(t, StateComplete, m.State())

				assert.Equal(t, "abc", m.Part(0).StringValue())
				n, err := m.Part(1).Int()
				require.NoError(t, err)
				assert.Equal(t, int32(42), n)
				assert.Equal(t, []byte{0, 1, 2}, m.Part(2).Bytes())
			})
		}
	}
}

func TestReceive_LargePartFragmented(t *testing.T) {
	big := bytes.Repeat([]byte("0123456789"), 1000)

	src := NewMessage(3, CurrentVersion)
	src.AddBytesPart([]byte("head"))
	src.AddBytesPart(big)
	src.AddLongPart(-1)
	data := encode(t, src)

	for _, chunk := range []int{1, 7, 4096} {
		t.Run(fmt.Sprintf("chunk=%d", chunk), func(t *testing.T) {
			m, err := receive(t, data, chunk, 32)
			require.NoError(t, err)
			assert.Equal(t, "head", m.Part(0).StringValue())
			assert.Equal(t, big, m.Part(1).Bytes())
			l, err := m.Part(2).Long()
			require.NoError(t, err)
			assert.Equal(t, int64(-1), l)
		})
	}
}

func TestReceive_PartsAreOwned(t *testing.T) {
	data := bytes.Clone(sampleWire)
	m, err := receive(t, data, 0, 0)
	require.NoError(t, err)

	m.CommBuffer().Storage()[PartHeaderLength] = 'X'
	assert.Equal(t, "abc", m.Part(0).StringValue())
}

func TestReceive_EmptyAndNilBytes(t *testing.T) {
	data := concat(
		header(Response, 10, 2, 1, 0),
		rawPart(TypeCodeBytes, nil),
		rawPart(TypeCodeEmptyBytes, nil),
	)
	m, err := receive(t, data, 0, 0)
	require.NoError(t, err)

	assert.Nil(t, m.Part(0).Bytes())
	assert.NotNil(t, m.Part(1).Bytes())
	assert.Empty(t, m.Part(1).Bytes())
}

func TestReceive_ObjectPart(t *testing.T) {
	src := NewMessage(1, CurrentVersion)
	require.NoError(t, src.AddObjPart(ObjectPayload{Value: map[string]int{"x": 1}}))

	m, err := receive(t, encode(t, src), 3, 0)
	require.NoError(t, err)

	var got map[string]int
	require.NoError(t, m.Part(0).Object(&got))
	assert.Equal(t, map[string]int{"x": 1}, got)
}

func TestReceive_ProtocolErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		opts ReceiveOptions
	}{
		{
			name: "length without parts",
			data: header(Request, 10, 0, 1, 0),
		},
		{
			name: "parts without length",
			data: header(Request, 0, 2, 1, 0),
		},
		{
			name: "negative length",
			data: header(Request, -5, 1, 1, 0),
		},
		{
			name: "invalid message type",
			data: header(MessageType(4), 0, 0, 1, 0),
		},
		{
			name: "too many ping parts",
			data: header(Ping, 55, 11, 1, 0),
		},
		{
			name: "exceeds max incoming length",
			data: sampleWire,
			opts: ReceiveOptions{MaxIncomingLength: 24},
		},
		{
			name: "part overruns payload",
			data: concat(header(Request, 8, 1, 1, 0), rawPart(TypeCodeBytes, []byte("abcd"))),
		},
		{
			name: "bytes left after last part",
			data: concat(header(Request, 9, 1, 1, 0), rawPart(TypeCodeBytes, []byte("abc")), []byte{0}),
		},
		{
			name: "part headers do not fit in length",
			data: concat(header(Request, 3, 1, 1, 0), []byte{0, 0, 0}),
		},
		{
			name: "huge part count with tiny length",
			data: concat(header(Request, 1, 1<<24, 1, 0), []byte{0}),
			opts: ReceiveOptions{MaxIncomingLength: 1 << 16},
		},
		{
			name: "secure part header does not fit in length",
			data: concat(header(Request, 8, 1, 1, FlagHasSecurePart), rawPart(TypeCodeBytes, []byte("abc"))),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := testutils.NewConnectionMock(tt.data)
			m := NewMessage(0, CurrentVersion)
			m.Bind(conn, NewCommBuffer(0), nil)

			err := m.ReceiveWith(context.Background(), tt.opts)
			var perr *ProtocolError
			require.ErrorAs(t, err, &perr)
			assert.True(t, ShouldCloseConnection(err))
			assert.LessOrEqual(t, cap(m.parts), 16, "part slots allocated for a rejected header")
		})
	}
}

func TestReceive_PairingErrorMessage(t *testing.T) {
	_, err := receive(t, header(Request, 10, 0, 1, 0), 0, 0)
	require.EqualError(t, err, "wire: protocol error: part length (10) and number of parts (0) inconsistent")
}

func TestReceive_ConnectionReset(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		op   string
	}{
		{"empty stream", nil, "header"},
		{"partial header", sampleWire[:10], "header"},
		{"partial payload", sampleWire[:HeaderLength+3], "payload"},
		{"partial part", concat(header(Request, 105, 1, 1, 0), rawPart(TypeCodeBytes, make([]byte, 100))[:60]), "part"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := receive(t, tt.data, 0, HeaderLength)
			var reset *ConnectionResetError
			require.ErrorAs(t, err, &reset)
			assert.Equal(t, tt.op, reset.Op)
			assert.True(t, ShouldCloseConnection(err))
		})
	}
}

func TestReceive_NotBound(t *testing.T) {
	err := NewMessage(0, CurrentVersion).Receive(context.Background())
	var closed *ConnectionClosedError
	require.ErrorAs(t, err, &closed)
}

func TestReceive_RetryFlagStripped(t *testing.T) {
	src := sampleMessage()
	src.SetIsRetry()
	wire := encode(t, src)
	require.Equal(t, FlagIsRetry, wire[16])

	m, err := receive(t, wire, 0, 0)
	require.NoError(t, err)
	assert.True(t, m.IsRetry())
	assert.Equal(t, byte(0), m.Flags())

	m.Clear()
	assert.False(t, m.IsRetry())
}

func TestReceive_SecurePart(t *testing.T) {
	src := sampleMessage()
	src.SetSecurePart([]byte{9, 9, 9, 9})
	wire := encode(t, src)
	require.Equal(t, FlagHasSecurePart, wire[16])

	for _, chunk := range []int{1, 7, 4096} {
		m, err := receive(t, wire, chunk, HeaderLength)
		require.NoError(t, err)

		assert.Equal(t, 3, m.NumberOfParts())
		assert.True(t, m.HasSecurePart())
		assert.Equal(t, []byte{9, 9, 9, 9}, m.SecureBytes())
		assert.Equal(t, byte(0), m.Flags())
		assert.Equal(t, []byte{0, 1, 2}, m.Part(2).Bytes())

		m.Clear()
		assert.False(t, m.HasSecurePart())
	}
}

func TestReceive_ReusedMessage(t *testing.T) {
	second := NewMessage(1, CurrentVersion)
	second.SetMessageType(Response)
	second.SetTransactionID(8)
	second.AddStringPart("done", false)

	conn := testutils.NewConnectionMock(sampleWire, encode(t, second)).WithReadChunk(5)
	m := NewMessage(0, CurrentVersion)
	m.Bind(conn, NewCommBuffer(0), nil)

	require.NoError(t, m.Receive(context.Background()))
	assert.Equal(t, 3, m.NumberOfParts())
	m.Clear()

	require.NoError(t, m.Receive(context.Background()))
	assert.Equal(t, Response, m.MessageType())
	assert.Equal(t, int32(8), m.TransactionID())
	assert.Equal(t, 1, m.NumberOfParts())
	assert.Equal(t, "done", m.Part(0).StringValue())
}

func TestReceive_Stats(t *testing.T) {
	stats := &recordingStats{}
	conn := testutils.NewConnectionMock(sampleWire)
	m := NewMessage(0, CurrentVersion)
	m.Bind(conn, NewCommBuffer(0), stats)

	require.NoError(t, m.Receive(context.Background()))
	assert.Equal(t, len(sampleWire), stats.received)
	assert.Equal(t, 1, stats.beingReceived)
	assert.Equal(t, 25, stats.bytesBeingReceived)

	m.Clear()
	assert.Equal(t, 0, stats.beingReceived)
	assert.Equal(t, 0, stats.bytesBeingReceived)
}

func TestReceive_HeaderReadTimeout(t *testing.T) {
	conn := testutils.NewConnectionMock(sampleWire)
	m := NewMessage(0, CurrentVersion)
	m.Bind(conn, NewCommBuffer(0), nil)

	require.NoError(t, m.ReceiveWithHeaderReadTimeout(context.Background(), time.Second))

	deadlines := conn.ReadDeadlines()
	require.Len(t, deadlines, 2)
	assert.False(t, deadlines[0].IsZero(), "header deadline")
	assert.True(t, deadlines[1].IsZero(), "body has no deadline")
}

func TestReceive_HeaderReadTimeoutKeepsEarlierContextDeadline(t *testing.T) {
	conn := testutils.NewConnectionMock(sampleWire)
	m := NewMessage(0, CurrentVersion)
	m.Bind(conn, NewCommBuffer(0), nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ctxDeadline, _ := ctx.Deadline()

	require.NoError(t, m.ReceiveWithHeaderReadTimeout(ctx, time.Hour))

	deadlines := conn.ReadDeadlines()
	require.Len(t, deadlines, 2)
	assert.Equal(t, ctxDeadline, deadlines[0])
	assert.Equal(t, ctxDeadline, deadlines[1])
}

func TestReceive_FlowGateTimeout(t *testing.T) {
	gate := NewFlowGate(FlowGateConfig{MaxBytes: 30, CheckInterval: 5 * time.Millisecond})
	held, err := gate.Acquire(context.Background(), 20, 0, nil)
	require.NoError(t, err)
	defer held.Release()

	stats := &recordingStats{}
	conn := testutils.NewConnectionMock(sampleWire)
	m := NewMessage(0, CurrentVersion)
	m.Bind(conn, NewCommBuffer(0), stats)

	err = m.ReceiveWith(context.Background(), ReceiveOptions{Gate: gate, Timeout: 30 * time.Millisecond})
	var exhausted *ResourceExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, "data", exhausted.Limiter)
	assert.False(t, ShouldCloseConnection(err))

	assert.Equal(t, 1, stats.timedOut)
	assert.Equal(t, 0, stats.beingReceived)

	m.Clear()
	held.Release()
	p, err := gate.Acquire(context.Background(), 30, 10*time.Millisecond, nil)
	require.NoError(t, err, "no permit leaked")
	p.Release()
}

func TestReceive_FlowGateCancel(t *testing.T) {
	gate := NewFlowGate(FlowGateConfig{MaxMessages: 1, CheckInterval: 5 * time.Millisecond})
	held, err := gate.Acquire(context.Background(), 0, 0, nil)
	require.NoError(t, err)
	defer held.Release()

	errShutdown := errors.New("server shutting down")
	conn := testutils.NewConnectionMock(sampleWire)
	m := NewMessage(0, CurrentVersion)
	m.Bind(conn, NewCommBuffer(0), nil)

	err = m.ReceiveWith(context.Background(), ReceiveOptions{
		Gate:   gate,
		Cancel: func() error { return errShutdown },
	})
	require.ErrorIs(t, err, errShutdown)
}

func TestReceive_FlowGateWaitsForRelease(t *testing.T) {
	gate := NewFlowGate(FlowGateConfig{MaxMessages: 1, MaxBytes: 1024, CheckInterval: 5 * time.Millisecond})

	first := NewMessage(0, CurrentVersion)
	first.Bind(testutils.NewConnectionMock(sampleWire), NewCommBuffer(0), nil)
	require.NoError(t, first.ReceiveWith(context.Background(), ReceiveOptions{Gate: gate}))

	second := NewMessage(0, CurrentVersion)
	second.Bind(testutils.NewConnectionMock(sampleWire), NewCommBuffer(0), nil)

	done := make(chan error, 1)
	go func() {
		done <- second.ReceiveWith(context.Background(), ReceiveOptions{Gate: gate})
	}()

	select {
	case err := <-done:
		t.Fatalf("second receive returned before the first was cleared: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	first.Clear()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("second receive did not proceed after the permit was released")
	}
	second.Clear()
}

func TestReceive_PartsCarryCodec(t *testing.T) {
	m, err := receive(t, sampleWire, 0, 0)
	require.NoError(t, err)

	for i := range m.NumberOfParts() {
		assert.Equal(t, CurrentVersion, m.Part(i).version)
		assert.Equal(t, DefaultCodec, m.Part(i).codec)
	}

	m.SetCodec(failingCodec{})
	assert.Equal(t, failingCodec{}, m.Part(0).codec)
}
