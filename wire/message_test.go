package wire

import (
	"context"
	"testing"
	"time"

	"github.com/pior/cachewire/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessage_RequiresVersion(t *testing.T) {
	assert.Panics(t, func() { NewMessage(1, Version{}) })
	assert.NotPanics(t, func() { NewMessage(1, Version1_12) })
}

func TestMessage_AddParts(t *testing.T) {
	m := NewMessage(8, CurrentVersion)
	m.AddStringPart("region", true)
	m.AddBytesPart([]byte{1})
	m.AddIntPart(7)
	m.AddLongPart(8)
	m.AddBytePart(9)
	m.AddRawPart([]byte{0xac}, true)
	require.NoError(t, m.AddObjPart(ObjectPayload{Value: "obj"}))
	require.NoError(t, m.AddObjPart(NilPayload{}))

	assert.Equal(t, 8, m.NextPartNumber())
	assert.Equal(t, "region", m.Part(0).StringValue())
	assert.Equal(t, []byte{1}, m.Part(1).Bytes())

	i, err := m.Part(2).Int()
	require.NoError(t, err)
	assert.Equal(t, int32(7), i)

	l, err := m.Part(3).Long()
	require.NoError(t, err)
	assert.Equal(t, int64(8), l)

	b, err := m.Part(4).Byte()
	require.NoError(t, err)
	assert.Equal(t, byte(9), b)

	assert.True(t, m.Part(5).IsObject())

	var s string
	require.NoError(t, m.Part(6).Object(&s))
	assert.Equal(t, "obj", s)

	assert.Nil(t, m.Part(7).Bytes())
	assert.Nil(t, m.Part(8))
}

func TestMessage_AddTooManyPartsPanics(t *testing.T) {
	m := NewMessage(1, CurrentVersion)
	m.AddIntPart(1)
	assert.Panics(t, func() { m.AddIntPart(2) })
	assert.Panics(t, func() { _ = m.AddObjPart(ObjectPayload{Value: 1}) })
}

func TestMessage_AddObjPartCopiesBytes(t *testing.T) {
	data := []byte("abc")

	m := NewMessage(2, CurrentVersion)
	require.NoError(t, m.AddObjPart(BytesPayload(data)))
	require.NoError(t, m.AddObjPartNoCopying(BytesPayload(data)))

	data[0] = 'X'
	assert.Equal(t, "abc", m.Part(0).StringValue())
	assert.Equal(t, "Xbc", m.Part(1).StringValue())
}

func TestMessage_AddStringOrObjPart(t *testing.T) {
	m := NewMessage(2, CurrentVersion)
	require.NoError(t, m.AddStringOrObjPart(StringPayload("key")))
	require.NoError(t, m.AddStringOrObjPart(BytesPayload("raw")))

	assert.False(t, m.Part(0).IsObject())
	assert.Equal(t, "key", m.Part(0).StringValue())

	assert.True(t, m.Part(1).IsObject())
	var got []byte
	require.NoError(t, m.Part(1).Object(&got))
	assert.Equal(t, []byte("raw"), got)
}

func TestMessage_AddPartInAnyForm(t *testing.T) {
	m := NewMessage(2, CurrentVersion)
	require.NoError(t, m.AddPartInAnyForm(BytesPayload{1, 2}, true))
	require.NoError(t, m.AddPartInAnyForm(LongPayload(5), false))

	assert.True(t, m.Part(0).IsObject())
	assert.Equal(t, []byte{1, 2}, m.Part(0).Bytes())

	var v int64
	require.NoError(t, m.Part(1).Object(&v))
	assert.Equal(t, int64(5), v)
}

func TestMessage_AddPayloadPart(t *testing.T) {
	m := NewMessage(8, CurrentVersion)
	for _, p := range []PartPayload{
		NilPayload{},
		StringPayload("s"),
		BytesPayload{7},
		IntPayload(1),
		LongPayload(2),
		BytePayload(3),
		BoolPayload(true),
		ObjectPayload{Value: []string{"x"}},
	} {
		require.NoError(t, m.AddPayloadPart(p))
	}

	assert.Nil(t, m.Part(0).Bytes())
	assert.Equal(t, "s", m.Part(1).StringValue())
	assert.Equal(t, []byte{7}, m.Part(2).Bytes())
	assert.Equal(t, 4, m.Part(3).Len())
	assert.Equal(t, 8, m.Part(4).Len())
	assert.Equal(t, 1, m.Part(5).Len())

	v, err := m.Part(6).Bool()
	require.NoError(t, err)
	assert.True(t, v)

	var xs []string
	require.NoError(t, m.Part(7).Object(&xs))
	assert.Equal(t, []string{"x"}, xs)
}

func TestMessage_SerializationFailureKeepsCursor(t *testing.T) {
	m := NewMessage(2, CurrentVersion)
	m.SetCodec(failingCodec{})
	m.AddStringPart("first", false)

	err := m.AddObjPart(ObjectPayload{Value: 1})
	var serr *SerializationError
	require.ErrorAs(t, err, &serr)

	assert.Equal(t, 1, m.NextPartNumber())
	assert.Equal(t, "first", m.Part(0).StringValue())
	assert.Equal(t, 0, m.Part(1).Len())
}

func TestMessage_SetNumberOfPartsKeepsSlots(t *testing.T) {
	m := NewMessage(1, CurrentVersion)
	first := m.Part(0)

	m.SetNumberOfParts(4)
	assert.Equal(t, 4, m.NumberOfParts())
	assert.Equal(t, 0, m.NextPartNumber())
	assert.Same(t, first, m.Part(0))

	m.SetNumberOfParts(1)
	assert.Nil(t, m.Part(1))
	m.SetNumberOfParts(4)
	assert.NotNil(t, m.Part(3))
}

func TestMessage_StringCache(t *testing.T) {
	cache := NewStringCache(1)
	m := NewMessage(3, CurrentVersion)
	m.SetStringCache(cache)

	m.AddStringPart("a", true)
	m.AddStringPart("a", true)
	m.AddStringPart("b", true)

	assert.Equal(t, "b", m.Part(2).StringValue())
	assert.Equal(t, 1, cache.(*stringCache).Len())
	assert.Same(t, &m.Part(0).Bytes()[0], &m.Part(1).Bytes()[0])
}

func TestMessage_MetaRegion(t *testing.T) {
	m := NewMessage(0, CurrentVersion)
	m.SetMetaRegion(true)
	assert.True(t, m.GetAndResetIsMetaRegion())
	assert.False(t, m.GetAndResetIsMetaRegion())
}

func TestMessage_SecurePartFlag(t *testing.T) {
	m := NewMessage(0, CurrentVersion)
	m.SetMessageHasSecurePartFlag()
	assert.Equal(t, FlagHasSecurePart, m.Flags())
	m.ClearMessageHasSecurePartFlag()
	assert.Equal(t, byte(0), m.Flags())
}

func TestMessage_ClearWithoutReceiveReleasesNothing(t *testing.T) {
	stats := &recordingStats{}
	m := sampleMessage()
	m.Bind(testutils.NewConnectionMock(), NewCommBuffer(0), stats)

	m.Clear()
	m.Clear()

	assert.Equal(t, 0, stats.beingReceived)
	assert.Equal(t, 0, m.NextPartNumber())
	assert.Equal(t, StateIdle, m.State())
}

func TestMessage_ClearReleasesPermit(t *testing.T) {
	gate := NewFlowGate(FlowGateConfig{MaxMessages: 1, MaxBytes: 100})
	stats := &recordingStats{}

	conn := testutils.NewConnectionMock(sampleWire, sampleWire)
	m := NewMessage(0, CurrentVersion)
	m.Bind(conn, NewCommBuffer(0), stats)

	opts := ReceiveOptions{Gate: gate, Timeout: 50 * time.Millisecond}
	require.NoError(t, m.ReceiveWith(context.Background(), opts))
	assert.Equal(t, 1, stats.beingReceived)
	assert.Equal(t, 25, stats.bytesBeingReceived)

	other := NewMessage(0, CurrentVersion)
	other.Bind(testutils.NewConnectionMock(sampleWire), NewCommBuffer(0), stats)
	err := other.ReceiveWith(context.Background(), ReceiveOptions{Gate: gate, Timeout: 20 * time.Millisecond})
	require.True(t, IsResourceExhausted(err))

	m.Clear()
	m.Clear()
	assert.Equal(t, 0, stats.beingReceived)
	assert.Equal(t, 0, stats.bytesBeingReceived)

	require.NoError(t, m.ReceiveWith(context.Background(), opts))
	m.Clear()
}

func TestMessage_String(t *testing.T) {
	s := sampleMessage().String()
	assert.Contains(t, s, "type=PUT")
	assert.Contains(t, s, "numberOfParts=3")
	assert.Contains(t, s, "transactionId=7")
	assert.Contains(t, s, "part[2]={partCode=0 partLength=3}")
}

func TestMessage_PartsCarryCodecAndVersion(t *testing.T) {
	m := NewMessage(2, Version1_14)
	m.AddStringPart("first", false)

	p := m.Part(0)
	assert.Equal(t, Version1_14, p.version)
	assert.Equal(t, DefaultCodec, p.codec)

	m.SetCodec(failingCodec{})
	m.SetVersion(Version1_12)
	assert.Equal(t, failingCodec{}, p.codec)
	assert.Equal(t, Version1_12, p.version)

	// reading a part leaves it untouched
	p.codec = nil
	assert.Nil(t, m.Part(0).codec)
}
