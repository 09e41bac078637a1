package wire

import (
	"context"
	"math"
	"time"
)

// Send writes the message to the bound connection and clears its parts on success.
// The write deadline is taken from ctx.
func (m *Message) Send(ctx context.Context) error {
	return m.send(ctx, true)
}

// SendKeepParts writes the message and leaves the parts in place, so the same
// message can be sent again (to another server on retry, for instance).
func (m *Message) SendKeepParts(ctx context.Context) error {
	return m.send(ctx, false)
}

func (m *Message) send(ctx context.Context, clearParts bool) error {
	if m.conn == nil || m.commBuffer == nil {
		return &ConnectionClosedError{}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	secure := m.outgoingSecurePart()

	msgLen := int64(0)
	for i := 0; i < m.numberOfParts; i++ {
		msgLen += int64(PartHeaderLength + m.parts[i].Len())
	}
	if secure != nil {
		msgLen += int64(PartHeaderLength + secure.Len())
	}
	if msgLen > math.MaxInt32 {
		return &MessageTooLargeError{Size: msgLen, Max: math.MaxInt32}
	}
	if msgLen > int64(m.maxMessageSize) {
		return &MessageTooLargeError{Size: msgLen, Max: int64(m.maxMessageSize)}
	}

	var deadline time.Time
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if err := m.conn.SetWriteDeadline(deadline); err != nil {
		return &ConnectionError{Op: "write", Err: err}
	}

	buf := m.commBuffer
	buf.mu.Lock()
	defer buf.mu.Unlock()

	buf.reset()

	flags := m.flags
	if secure != nil {
		flags |= FlagHasSecurePart
	}
	if m.isRetry {
		flags |= FlagIsRetry
	}

	buf.putInt32(int32(m.messageType))
	buf.putInt32(int32(msgLen))
	buf.putInt32(int32(m.numberOfParts))
	buf.putInt32(m.transactionID)
	buf.putByte(flags)

	for i := 0; i < m.numberOfParts; i++ {
		if err := m.writePart(buf, m.parts[i]); err != nil {
			return err
		}
	}
	if secure != nil {
		if err := m.writePart(buf, secure); err != nil {
			return err
		}
	}

	if err := buf.flushTo(m.conn, m.stats); err != nil {
		return err
	}

	m.messageModified = false
	m.payloadLength = int(msgLen)
	if clearParts {
		m.ClearParts()
	}
	return nil
}

// writePart appends the part header and, when it fits, the content to buf.
// Content that does not fit goes straight to the connection after a flush.
func (m *Message) writePart(buf *CommBuffer, p *Part) error {
	if buf.available() < PartHeaderLength {
		if err := buf.flushTo(m.conn, m.stats); err != nil {
			return err
		}
	}
	buf.putInt32(int32(p.Len()))
	buf.putByte(p.TypeCode())

	if p.Len() <= buf.available() {
		buf.put(p.Bytes())
		return nil
	}

	if err := buf.flushTo(m.conn, m.stats); err != nil {
		return err
	}
	return p.writeChunked(m.conn, buf.Cap(), m.stats)
}

// outgoingSecurePart returns the provider's part when it yields one, otherwise the
// part set with SetSecurePart. A message without parts never carries one.
func (m *Message) outgoingSecurePart() *Part {
	if m.numberOfParts == 0 {
		return nil
	}
	if m.secureProvider != nil {
		if b := m.secureProvider.SecurePart(); b != nil {
			m.providedPart.SetBytes(b, false)
			return &m.providedPart
		}
	}
	return m.securePart
}
