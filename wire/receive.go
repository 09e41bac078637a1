package wire

import (
	"context"
	"fmt"
	"io"
	"time"
)

// maxPingParts bounds the part count of a ping, which carries no real payload.
const maxPingParts = 10

// ReceiveOptions controls a single receive.
type ReceiveOptions struct {
	// HeaderReadTimeout bounds the wait for the 17 header bytes only. The body is read
	// under the ctx deadline. Zero disables it.
	HeaderReadTimeout time.Duration

	// Gate, when set, must grant a message slot and payload bytes before the body is
	// read.
	Gate *FlowGate

	// Timeout is the budget for acquiring Gate permits. Zero waits indefinitely.
	Timeout time.Duration

	// MaxIncomingLength rejects larger payloads with a ProtocolError. Zero disables it.
	MaxIncomingLength int

	// Cancel is polled while waiting on Gate.
	Cancel CancelCriterion
}

// Receive reads the next message from the bound connection into m, with read
// deadlines from ctx.
func (m *Message) Receive(ctx context.Context) error {
	return m.ReceiveWith(ctx, ReceiveOptions{})
}

// ReceiveWithHeaderReadTimeout is Receive with a separate deadline for the header.
func (m *Message) ReceiveWithHeaderReadTimeout(ctx context.Context, d time.Duration) error {
	return m.ReceiveWith(ctx, ReceiveOptions{HeaderReadTimeout: d})
}

// ReceiveWith reads the next message from the bound connection into m.
//
// Anything still held from a previous receive (permit, stats) is released first.
// On success the message holds its permit until Clear.
func (m *Message) ReceiveWith(ctx context.Context, opts ReceiveOptions) error {
	if m.conn == nil || m.commBuffer == nil {
		return &ConnectionClosedError{}
	}
	m.releaseReceive()
	m.state = StateIdle
	if err := ctx.Err(); err != nil {
		return err
	}

	buf := m.commBuffer
	buf.mu.Lock()
	defer buf.mu.Unlock()

	var bodyDeadline time.Time
	if d, ok := ctx.Deadline(); ok {
		bodyDeadline = d
	}

	headerDeadline := bodyDeadline
	if opts.HeaderReadTimeout > 0 {
		hd := time.Now().Add(opts.HeaderReadTimeout)
		if headerDeadline.IsZero() || hd.Before(headerDeadline) {
			headerDeadline = hd
		}
	}
	if err := m.conn.SetReadDeadline(headerDeadline); err != nil {
		return &ConnectionError{Op: "read", Err: err}
	}

	buf.reset()
	m.state = StateHeaderPending
	if err := buf.fill(m.conn, HeaderLength, "header", m.stats); err != nil {
		return err
	}

	if opts.HeaderReadTimeout > 0 {
		if err := m.conn.SetReadDeadline(bodyDeadline); err != nil {
			return &ConnectionError{Op: "read", Err: err}
		}
	}

	msgType := MessageType(buf.getInt32())
	length := int(buf.getInt32())
	numParts := int(buf.getInt32())
	txid := buf.getInt32()
	flags := buf.getByte()
	m.state = StateHeaderRead

	if !msgType.Valid() {
		return &ProtocolError{Message: fmt.Sprintf("invalid message type %d while reading header", int32(msgType))}
	}
	if length < 0 || numParts < 0 {
		return &ProtocolError{Message: fmt.Sprintf("negative part length (%d) or number of parts (%d)", length, numParts)}
	}
	if (length > 0) != (numParts > 0) {
		return &ProtocolError{Message: fmt.Sprintf("part length (%d) and number of parts (%d) inconsistent", length, numParts)}
	}
	if numParts == 0 && flags&FlagHasSecurePart != 0 {
		return &ProtocolError{Message: "secure part flag set on a message without parts"}
	}
	if msgType == Ping && numParts > maxPingParts {
		return &ProtocolError{Message: fmt.Sprintf("number of parts (%d) is inconsistent for %s", numParts, msgType)}
	}
	if opts.MaxIncomingLength > 0 && length > opts.MaxIncomingLength {
		return &ProtocolError{Message: fmt.Sprintf("message size (%d) exceeded max limit of (%d)", length, opts.MaxIncomingLength)}
	}
	// every part, the secure one included, needs at least its own header
	declared := int64(numParts)
	if flags&FlagHasSecurePart != 0 {
		declared++
	}
	if declared*PartHeaderLength > int64(length) {
		return &ProtocolError{Message: fmt.Sprintf("number of parts (%d) does not fit in part length (%d)", numParts, length)}
	}

	if opts.Gate != nil {
		permit, err := opts.Gate.Acquire(ctx, length, opts.Timeout, opts.Cancel)
		if err != nil {
			if IsResourceExhausted(err) {
				m.stats.IncConnectionsTimedOut()
			}
			return err
		}
		m.permit = permit
	}
	m.stats.IncMessagesBeingReceived(length)
	m.receivedBytes = length
	m.receivedStats = m.stats

	m.messageType = msgType
	m.payloadLength = length
	m.transactionID = txid
	m.isRetry = flags&FlagIsRetry != 0
	hasSecurePart := flags&FlagHasSecurePart != 0
	m.flags = flags &^ (FlagIsRetry | FlagHasSecurePart)
	m.securePart = nil

	m.SetNumberOfParts(numParts)
	m.state = StatePartsPending
	if err := m.readPayloadFields(buf, numParts, length, hasSecurePart); err != nil {
		return err
	}

	m.currentPart = numParts
	m.messageModified = false
	m.state = StateComplete
	return nil
}

// readPayloadFields reassembles the parts of a payload of length bytes. Bytes that
// arrive with a part header are copied out of buf; the rest of a large part is read
// straight into its own slice.
func (m *Message) readPayloadFields(buf *CommBuffer, numParts, length int, hasSecurePart bool) error {
	if numParts == 0 {
		return nil
	}

	buf.reset()
	remaining := length // payload bytes not yet read from the connection

	total := numParts
	if hasSecurePart {
		total++
	}

	for i := 0; i < total; i++ {
		n, err := m.readPartChunk(buf, remaining)
		if err != nil {
			return err
		}
		remaining -= n

		if buf.buffered() < PartHeaderLength {
			return &ProtocolError{Message: fmt.Sprintf("payload ended inside the header of part %d", i)}
		}
		partLen := int(buf.getInt32())
		partType := buf.getByte()

		if partLen < 0 || partLen > buf.buffered()+remaining {
			return &ProtocolError{Message: fmt.Sprintf("part %d length (%d) exceeds the remaining payload (%d)",
				i, partLen, buf.buffered()+remaining)}
		}

		var data []byte
		if partLen > 0 {
			data = make([]byte, partLen)
			off := buf.get(data)
			if off < partLen {
				got, err := io.ReadFull(m.conn, data[off:])
				m.stats.IncReceivedBytes(got)
				remaining -= got
				if err != nil {
					return readError("part", err)
				}
			}
		}

		var p *Part
		if i < numParts {
			p = m.parts[i]
		} else {
			p = &m.secureSlot
			m.securePart = p
		}
		p.init(data, partType)
		m.stamp(p)
	}

	if buf.buffered() > 0 || remaining > 0 {
		return &ProtocolError{Message: fmt.Sprintf("%d payload bytes left after the last part",
			buf.buffered()+remaining)}
	}
	return nil
}

// readPartChunk makes sure buf holds the next part header, refilling it from the
// connection without reading past the end of the payload. It returns how many bytes
// were read.
func (m *Message) readPartChunk(buf *CommBuffer, remaining int) (int, error) {
	if buf.buffered() >= PartHeaderLength || remaining == 0 {
		return 0, nil
	}
	buf.compact()
	n := min(buf.available(), remaining)
	before := buf.w
	err := buf.fill(m.conn, n, "payload", m.stats)
	return buf.w - before, err
}
