package wire

import (
	"bytes"
	"io"
	"strconv"
	"strings"
	"time"
)

// Conn is the part of net.Conn a Message reads from and writes to.
type Conn interface {
	io.Reader
	io.Writer
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// SecurePartProvider supplies the authentication part appended to outgoing messages.
// It takes precedence over a secure part set directly on the message. Returning nil
// means no secure part.
type SecurePartProvider interface {
	SecurePart() []byte
}

// State is the position of a Message in the receive state machine.
type State int

const (
	StateIdle State = iota
	StateHeaderPending
	StateHeaderRead
	StatePartsPending
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateHeaderPending:
		return "header-pending"
	case StateHeaderRead:
		return "header-read"
	case StatePartsPending:
		return "parts-pending"
	case StateComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Message is the envelope exchanged between clients and servers.
//
// A Message is built by appending typed parts, then sent; or it is bound to a
// connection and filled by Receive. The same Message is meant to be cleared and reused
// for the next request or response on its connection.
//
// Building is not goroutine-safe. Send and Receive take the bound CommBuffer's lock,
// so two messages sharing a buffer never interleave on it.
type Message struct {
	messageType   MessageType
	payloadLength int
	numberOfParts int
	transactionID int32
	flags         byte
	isRetry       bool
	isMetaRegion  bool

	currentPart int
	parts       []*Part

	securePart   *Part
	secureSlot   Part
	providedPart Part

	version        Version
	codec          Codec
	stringCache    StringCache
	chunkSize      int
	maxMessageSize int

	conn           Conn
	commBuffer     *CommBuffer
	stats          Stats
	secureProvider SecurePartProvider

	state           State
	messageModified bool

	permit        *Permit
	receivedBytes int // bytes reported to Stats.IncMessagesBeingReceived, -1 when none
	receivedStats Stats
}

// NewMessage creates a message with numberOfParts empty part slots.
// It panics if version is unset: every message must know its peer's version.
func NewMessage(numberOfParts int, version Version) *Message {
	if version.IsZero() {
		panic("wire: attempt to create an unversioned message")
	}
	m := &Message{
		numberOfParts:   numberOfParts,
		transactionID:   NoTransaction,
		parts:           make([]*Part, numberOfParts),
		version:         version,
		codec:           DefaultCodec,
		stringCache:     DefaultStringCache,
		chunkSize:       DefaultChunkSize,
		maxMessageSize:  DefaultMaxMessageSize,
		stats:           nopStats{},
		messageModified: true,
		receivedBytes:   -1,
	}
	for i := range m.parts {
		m.parts[i] = &Part{}
	}
	return m
}

// Bind attaches the connection and comm buffer used by Send and Receive.
// stats may be nil.
func (m *Message) Bind(conn Conn, buf *CommBuffer, stats Stats) {
	if stats == nil {
		stats = nopStats{}
	}
	m.conn = conn
	m.commBuffer = buf
	m.stats = stats
}

// Unbind detaches everything Bind attached.
func (m *Message) Unbind() {
	m.conn = nil
	m.commBuffer = nil
	m.stats = nopStats{}
	m.secureProvider = nil
}

// SetSecurePartProvider installs the source of the secure part for Send.
func (m *Message) SetSecurePartProvider(p SecurePartProvider) {
	m.secureProvider = p
}

// CommBuffer returns the bound buffer, or nil.
func (m *Message) CommBuffer() *CommBuffer {
	return m.commBuffer
}

func (m *Message) SetMessageType(t MessageType) {
	m.messageModified = true
	m.messageType = t
}

func (m *Message) MessageType() MessageType {
	return m.messageType
}

func (m *Message) SetVersion(v Version) {
	m.version = v
	m.restampParts()
}

func (m *Message) Version() Version {
	return m.version
}

// SetCodec sets the codec used for object parts. nil restores DefaultCodec.
func (m *Message) SetCodec(c Codec) {
	if c == nil {
		c = DefaultCodec
	}
	m.codec = c
	m.restampParts()
}

// restampParts carries a version or codec change to the parts already filled.
func (m *Message) restampParts() {
	for _, p := range m.parts[:m.numberOfParts] {
		m.stamp(p)
	}
	if m.securePart != nil {
		m.stamp(m.securePart)
	}
}

// SetStringCache sets the cache used by AddStringPart. nil restores DefaultStringCache.
func (m *Message) SetStringCache(c StringCache) {
	if c == nil {
		c = DefaultStringCache
	}
	m.stringCache = c
}

// SetChunkSize sets the initial buffer size for serializing objects.
// Values <= 0 restore DefaultChunkSize.
func (m *Message) SetChunkSize(n int) {
	if n <= 0 {
		n = DefaultChunkSize
	}
	m.chunkSize = n
}

func (m *Message) ChunkSize() int {
	return m.chunkSize
}

// SetMaxMessageSize sets the largest message Send accepts. Values <= 0 restore
// DefaultMaxMessageSize.
func (m *Message) SetMaxMessageSize(n int) {
	if n <= 0 {
		n = DefaultMaxMessageSize
	}
	m.maxMessageSize = n
}

func (m *Message) SetTransactionID(id int32) {
	m.messageModified = true
	m.transactionID = id
}

func (m *Message) TransactionID() int32 {
	return m.transactionID
}

// SetIsRetry marks the message as a resend of a message already sent to another server.
func (m *Message) SetIsRetry() {
	m.isRetry = true
}

// IsRetry reports whether the message was marked, or received, as a retry.
func (m *Message) IsRetry() bool {
	return m.isRetry
}

// Flags returns the header flags. On a received message the retry and secure part
// bits are removed; use IsRetry and HasSecurePart.
func (m *Message) Flags() byte {
	return m.flags
}

func (m *Message) SetMessageHasSecurePartFlag() {
	m.flags |= FlagHasSecurePart
}

func (m *Message) ClearMessageHasSecurePartFlag() {
	m.flags &^= FlagHasSecurePart
}

// SetSecurePart attaches an authentication payload sent after the numbered parts.
func (m *Message) SetSecurePart(b []byte) {
	m.secureSlot.SetBytes(b, false)
	m.securePart = &m.secureSlot
}

// HasSecurePart reports whether a secure part is attached or was received.
func (m *Message) HasSecurePart() bool {
	return m.securePart != nil
}

// SecurePart returns the secure part, or nil.
func (m *Message) SecurePart() *Part {
	return m.securePart
}

// SecureBytes returns the secure part content, or nil.
func (m *Message) SecureBytes() []byte {
	if m.securePart == nil {
		return nil
	}
	return m.securePart.Bytes()
}

func (m *Message) SetMetaRegion(v bool) {
	m.isMetaRegion = v
}

// GetAndResetIsMetaRegion returns the meta region marker and clears it.
func (m *Message) GetAndResetIsMetaRegion() bool {
	v := m.isMetaRegion
	m.isMetaRegion = false
	return v
}

// SetNumberOfParts resets the write cursor and makes room for n parts.
// Existing part slots are kept for reuse; shrinking never frees them.
func (m *Message) SetNumberOfParts(n int) {
	m.messageModified = true
	m.currentPart = 0
	m.numberOfParts = n
	for len(m.parts) < n {
		m.parts = append(m.parts, &Part{})
	}
}

func (m *Message) NumberOfParts() int {
	return m.numberOfParts
}

// NextPartNumber returns the index the next Add call writes to.
func (m *Message) NextPartNumber() int {
	return m.currentPart
}

func (m *Message) PayloadLength() int {
	return m.payloadLength
}

// HeaderLength returns the fixed header size.
func (m *Message) HeaderLength() int {
	return HeaderLength
}

// State returns the receive state.
func (m *Message) State() State {
	return m.state
}

// Part returns part i, or nil if i is not below NumberOfParts.
func (m *Message) Part(i int) *Part {
	if i < 0 || i >= m.numberOfParts {
		return nil
	}
	return m.parts[i]
}

// stamp gives p the version and codec its object reads decode with.
func (m *Message) stamp(p *Part) {
	p.version = m.version
	p.codec = m.codec
}

// nextPart returns the slot for the next Add call and advances the cursor.
func (m *Message) nextPart() *Part {
	if m.currentPart >= m.numberOfParts {
		panic("wire: adding part " + strconv.Itoa(m.currentPart+1) + " to a message sized for " +
			strconv.Itoa(m.numberOfParts))
	}
	m.messageModified = true
	p := m.parts[m.currentPart]
	m.currentPart++
	m.stamp(p)
	return p
}

// AddStringPart adds s as its UTF-8 bytes. With cache set the encoding is shared
// through the message's StringCache.
func (m *Message) AddStringPart(s string, cache bool) {
	if cache {
		m.nextPart().SetBytes(m.stringCache.Encode(s), false)
		return
	}
	m.nextPart().SetBytes([]byte(s), false)
}

// AddBytesPart adds raw bytes (not a serialized object).
func (m *Message) AddBytesPart(b []byte) {
	m.AddRawPart(b, false)
}

// AddRawPart adds bytes that may already hold a serialized object.
func (m *Message) AddRawPart(b []byte, isObject bool) {
	m.nextPart().SetBytes(b, isObject)
}

func (m *Message) AddIntPart(v int32) {
	m.nextPart().SetInt(v)
}

func (m *Message) AddLongPart(v int64) {
	m.nextPart().SetLong(v)
}

func (m *Message) AddBytePart(v byte) {
	m.nextPart().SetByte(v)
}

// AddObjPart adds an object part. Nil and byte payloads are added raw (bytes are
// copied), everything else goes through the codec.
func (m *Message) AddObjPart(p PartPayload) error {
	switch v := p.(type) {
	case nil, NilPayload:
		m.AddRawPart(nil, false)
		return nil
	case BytesPayload:
		m.AddRawPart(bytes.Clone(v), false)
		return nil
	default:
		return m.serializeAndAddPart(payloadValue(p))
	}
}

// AddObjPartNoCopying is AddObjPart for callers that hand over ownership of byte
// payloads; they are referenced, not copied.
func (m *Message) AddObjPartNoCopying(p PartPayload) error {
	switch v := p.(type) {
	case nil, NilPayload:
		m.AddRawPart(nil, false)
		return nil
	case BytesPayload:
		m.AddRawPart(v, false)
		return nil
	default:
		return m.serializeAndAddPart(payloadValue(p))
	}
}

// AddStringOrObjPart adds strings as string parts and serializes everything else,
// byte payloads included.
func (m *Message) AddStringOrObjPart(p PartPayload) error {
	switch v := p.(type) {
	case nil, NilPayload:
		m.AddRawPart(nil, false)
		return nil
	case StringPayload:
		m.AddStringPart(string(v), false)
		return nil
	default:
		return m.serializeAndAddPart(payloadValue(p))
	}
}

// AddPartInAnyForm adds bytes as-is with the given object marker and serializes any
// other payload.
func (m *Message) AddPartInAnyForm(p PartPayload, isObject bool) error {
	switch v := p.(type) {
	case nil, NilPayload:
		m.AddRawPart(nil, false)
		return nil
	case BytesPayload:
		m.AddRawPart(v, isObject)
		return nil
	default:
		return m.serializeAndAddPart(payloadValue(p))
	}
}

// AddPayloadPart adds p in its natural form: strings, bytes and numbers raw,
// booleans and objects through the codec.
func (m *Message) AddPayloadPart(p PartPayload) error {
	switch v := p.(type) {
	case nil, NilPayload:
		m.AddRawPart(nil, false)
	case StringPayload:
		m.AddStringPart(string(v), false)
	case BytesPayload:
		m.AddRawPart(v, false)
	case IntPayload:
		m.AddIntPart(int32(v))
	case LongPayload:
		m.AddLongPart(int64(v))
	case BytePayload:
		m.AddBytePart(byte(v))
	case BoolPayload:
		return m.serializeAndAddPart(bool(v))
	case ObjectPayload:
		return m.serializeAndAddPart(v.Value)
	}
	return nil
}

func payloadValue(p PartPayload) any {
	switch v := p.(type) {
	case StringPayload:
		return string(v)
	case BytesPayload:
		return []byte(v)
	case BoolPayload:
		return bool(v)
	case IntPayload:
		return int32(v)
	case LongPayload:
		return int64(v)
	case BytePayload:
		return byte(v)
	case ObjectPayload:
		return v.Value
	default:
		return nil
	}
}

// serializeAndAddPart encodes v before claiming a slot, so a codec failure leaves
// the cursor and the already added parts untouched.
func (m *Message) serializeAndAddPart(v any) error {
	if m.currentPart >= m.numberOfParts {
		m.nextPart() // panics with the sizing message
	}
	if bc, ok := m.codec.(BufferedCodec); ok {
		buf := bytes.NewBuffer(make([]byte, 0, m.chunkSize))
		if err := bc.MarshalTo(buf, v, m.version); err != nil {
			return &SerializationError{Err: err}
		}
		m.nextPart().SetBytes(buf.Bytes(), true)
		return nil
	}

	var tmp Part
	if err := tmp.SetFromSerializable(v, m.version, m.codec); err != nil {
		return err
	}
	m.nextPart().SetBytes(tmp.data, true)
	return nil
}

// ClearParts drops the content of every part and rewinds the write cursor.
func (m *Message) ClearParts() {
	for _, p := range m.parts {
		p.Clear()
	}
	m.currentPart = 0
}

// Clear resets the message for reuse on its connection and returns any flow gate
// permit held since the last Receive. Calling it again is harmless.
func (m *Message) Clear() {
	m.isRetry = false
	m.payloadLength = 0
	m.releaseReceive()
	m.ClearParts()
	m.securePart = nil
	m.flags = 0
	m.state = StateIdle
}

// releaseReceive undoes the accounting done after a header was read.
func (m *Message) releaseReceive() {
	if m.receivedBytes >= 0 {
		m.receivedStats.DecMessagesBeingReceived(m.receivedBytes)
		m.receivedBytes = -1
		m.receivedStats = nil
	}
	if m.permit != nil {
		m.permit.Release()
		m.permit = nil
	}
}

func (m *Message) String() string {
	var sb strings.Builder
	sb.WriteString("type=")
	sb.WriteString(m.messageType.String())
	sb.WriteString("; payloadLength=")
	sb.WriteString(strconv.Itoa(m.payloadLength))
	sb.WriteString("; numberOfParts=")
	sb.WriteString(strconv.Itoa(m.numberOfParts))
	sb.WriteString("; hasSecurePart=")
	sb.WriteString(strconv.FormatBool(m.HasSecurePart()))
	sb.WriteString("; transactionId=")
	sb.WriteString(strconv.Itoa(int(m.transactionID)))
	sb.WriteString("; currentPart=")
	sb.WriteString(strconv.Itoa(m.currentPart))
	sb.WriteString("; messageModified=")
	sb.WriteString(strconv.FormatBool(m.messageModified))
	sb.WriteString("; flags=")
	sb.WriteString(strconv.FormatInt(int64(m.flags), 16))
	for i := 0; i < m.numberOfParts && i < len(m.parts); i++ {
		sb.WriteString("; part[")
		sb.WriteString(strconv.Itoa(i))
		sb.WriteString("]={")
		sb.WriteString(m.parts[i].String())
		sb.WriteString("}")
	}
	return sb.String()
}
