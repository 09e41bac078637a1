package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
)

// Part is one length-prefixed, type-tagged field of a message payload.
//
// While a message is being built, Data may be a view of a caller-owned slice (the
// caller must not modify it until Send returns). After Receive, every part owns a
// freshly allocated slice.
type Part struct {
	data     []byte
	typeCode byte

	// scratch backs fixed-width numeric values so SetInt/SetLong do not allocate
	scratch [8]byte

	version Version
	codec   Codec
}

// SetBytes stores data as the part content. No copy is made.
func (p *Part) SetBytes(data []byte, isObject bool) {
	p.data = data
	switch {
	case isObject:
		p.typeCode = TypeCodeObject
	case data != nil && len(data) == 0:
		p.typeCode = TypeCodeEmptyBytes
	default:
		p.typeCode = TypeCodeBytes
	}
}

// SetInt stores v as 4 big-endian bytes.
func (p *Part) SetInt(v int32) {
	binary.BigEndian.PutUint32(p.scratch[:4], uint32(v))
	p.data = p.scratch[:4]
	p.typeCode = TypeCodeBytes
}

// SetLong stores v as 8 big-endian bytes.
func (p *Part) SetLong(v int64) {
	binary.BigEndian.PutUint64(p.scratch[:8], uint64(v))
	p.data = p.scratch[:8]
	p.typeCode = TypeCodeBytes
}

// SetByte stores a single byte.
func (p *Part) SetByte(v byte) {
	p.scratch[0] = v
	p.data = p.scratch[:1]
	p.typeCode = TypeCodeBytes
}

// SetFromSerializable serializes v with codec for the given peer version.
// On failure the part keeps its previous content and a SerializationError is returned.
func (p *Part) SetFromSerializable(v any, version Version, codec Codec) error {
	if codec == nil {
		codec = DefaultCodec
	}
	b, err := codec.Marshal(v, version)
	if err != nil {
		return &SerializationError{Err: err}
	}
	p.data = b
	p.typeCode = TypeCodeObject
	return nil
}

// init sets the state of a received part.
func (p *Part) init(data []byte, typeCode byte) {
	if data == nil && typeCode == TypeCodeEmptyBytes {
		data = []byte{}
	}
	p.data = data
	p.typeCode = typeCode
}

// Clear drops the content. It is safe to call repeatedly.
func (p *Part) Clear() {
	p.data = nil
	p.typeCode = TypeCodeBytes
}

// Len returns the number of payload bytes.
func (p *Part) Len() int {
	return len(p.data)
}

// TypeCode returns the raw type tag.
func (p *Part) TypeCode() byte {
	return p.typeCode
}

// IsObject reports whether the part holds codec output.
func (p *Part) IsObject() bool {
	return p.typeCode&TypeCodeObject != 0
}

// Bytes returns the part content. The slice is not copied.
func (p *Part) Bytes() []byte {
	return p.data
}

// StringValue returns the content as a string.
func (p *Part) StringValue() string {
	return string(p.data)
}

// Int decodes a 4 byte big-endian integer.
func (p *Part) Int() (int32, error) {
	if len(p.data) != 4 {
		return 0, &ProtocolError{Message: "int part has length " + strconv.Itoa(len(p.data))}
	}
	return int32(binary.BigEndian.Uint32(p.data)), nil
}

// Long decodes an 8 byte big-endian integer.
func (p *Part) Long() (int64, error) {
	if len(p.data) != 8 {
		return 0, &ProtocolError{Message: "long part has length " + strconv.Itoa(len(p.data))}
	}
	return int64(binary.BigEndian.Uint64(p.data)), nil
}

// Byte decodes a single byte.
func (p *Part) Byte() (byte, error) {
	if len(p.data) != 1 {
		return 0, &ProtocolError{Message: "byte part has length " + strconv.Itoa(len(p.data))}
	}
	return p.data[0], nil
}

// Object decodes an object part into the value pointed to by into.
func (p *Part) Object(into any) error {
	if !p.IsObject() {
		return &ProtocolError{Message: "part is not an object"}
	}
	codec := p.codec
	if codec == nil {
		codec = DefaultCodec
	}
	if err := codec.Unmarshal(p.data, p.version, into); err != nil {
		return &SerializationError{Err: err}
	}
	return nil
}

// Bool decodes an object part holding a boolean.
func (p *Part) Bool() (bool, error) {
	var v bool
	err := p.Object(&v)
	return v, err
}

// WriteTo writes the part content to w. It never modifies the part.
func (p *Part) WriteTo(w io.Writer) (int64, error) {
	if len(p.data) == 0 {
		return 0, nil
	}
	n, err := w.Write(p.data)
	return int64(n), err
}

// writeChunked writes the content to w in writes of at most chunk bytes.
func (p *Part) writeChunked(w io.Writer, chunk int, stats Stats) error {
	data := p.data
	for len(data) > 0 {
		n := min(chunk, len(data))
		if _, err := w.Write(data[:n]); err != nil {
			return &ConnectionError{Op: "write", Err: err}
		}
		stats.IncSentBytes(n)
		data = data[n:]
	}
	return nil
}

func (p *Part) String() string {
	return fmt.Sprintf("partCode=%d partLength=%d", p.typeCode, len(p.data))
}
