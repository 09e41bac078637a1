package wire

import (
	"encoding/binary"
	"errors"
	"io"
	"sync"
)

// CommBuffer is the fixed-capacity scratch buffer that sits between a Message and
// its connection. It is owned by the connection and lent to each Send and Receive,
// which hold its lock for their whole duration. It never grows.
type CommBuffer struct {
	mu  sync.Mutex
	buf []byte
	r   int // next byte to consume
	w   int // next byte to fill
}

// NewCommBuffer allocates a buffer of the given capacity.
// Sizes below HeaderLength are raised to HeaderLength; zero means DefaultChunkSize.
func NewCommBuffer(size int) *CommBuffer {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return &CommBuffer{buf: make([]byte, max(size, HeaderLength))}
}

// NewCommBufferFrom wraps an existing slice, using its full capacity.
func NewCommBufferFrom(b []byte) *CommBuffer {
	b = b[:cap(b)]
	if len(b) < HeaderLength {
		b = make([]byte, HeaderLength)
	}
	return &CommBuffer{buf: b}
}

// Cap returns the buffer capacity.
func (b *CommBuffer) Cap() int {
	return len(b.buf)
}

// Storage returns the backing slice, for returning the buffer to a pool.
func (b *CommBuffer) Storage() []byte {
	return b.buf
}

func (b *CommBuffer) reset() {
	b.r, b.w = 0, 0
}

func (b *CommBuffer) available() int {
	return len(b.buf) - b.w
}

func (b *CommBuffer) buffered() int {
	return b.w - b.r
}

// compact moves unread bytes to the front.
func (b *CommBuffer) compact() {
	if b.r == 0 {
		return
	}
	n := copy(b.buf, b.buf[b.r:b.w])
	b.r, b.w = 0, n
}

func (b *CommBuffer) putInt32(v int32) {
	binary.BigEndian.PutUint32(b.buf[b.w:], uint32(v))
	b.w += 4
}

func (b *CommBuffer) putByte(v byte) {
	b.buf[b.w] = v
	b.w++
}

func (b *CommBuffer) put(p []byte) {
	b.w += copy(b.buf[b.w:], p)
}

func (b *CommBuffer) getInt32() int32 {
	v := int32(binary.BigEndian.Uint32(b.buf[b.r:]))
	b.r += 4
	return v
}

func (b *CommBuffer) getByte() byte {
	v := b.buf[b.r]
	b.r++
	return v
}

// get copies up to len(dst) buffered bytes into dst.
func (b *CommBuffer) get(dst []byte) int {
	n := copy(dst, b.buf[b.r:b.w])
	b.r += n
	return n
}

// flushTo writes the buffered bytes to w and empties the buffer.
func (b *CommBuffer) flushTo(w io.Writer, stats Stats) error {
	if n := b.buffered(); n > 0 {
		if _, err := w.Write(b.buf[b.r:b.w]); err != nil {
			return &ConnectionError{Op: "write", Err: err}
		}
		stats.IncSentBytes(n)
	}
	b.reset()
	return nil
}

// fill reads exactly n bytes from r after the buffered ones.
func (b *CommBuffer) fill(r io.Reader, n int, op string, stats Stats) error {
	got, err := io.ReadFull(r, b.buf[b.w:b.w+n])
	b.w += got
	stats.IncReceivedBytes(got)
	if err != nil {
		return readError(op, err)
	}
	return nil
}

func readError(op string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &ConnectionResetError{Op: op}
	}
	return &ConnectionError{Op: "read", Err: err}
}
