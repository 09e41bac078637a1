package wire

import (
	"errors"
	"fmt"
)

// Error types for wire operations.
// Each one tells the caller whether the connection it happened on can still be used.

// ProtocolError is returned when the peer sent something that does not follow the
// wire format: an unknown message type, a payload length that disagrees with the part
// count, a part that overruns its message.
//
// Connection handling: CLOSE, the stream position is unknown.
type ProtocolError struct {
	Message string
}

func (e *ProtocolError) Error() string {
	return "wire: protocol error: " + e.Message
}

// ShouldCloseConnection returns true - the stream cannot be resynchronized
func (e *ProtocolError) ShouldCloseConnection() bool {
	return true
}

// MessageTooLargeError is returned by Send when the encoded message would exceed the
// int32 range or the configured maximum message size. Nothing has been written.
//
// Connection handling: connection can be REUSED
type MessageTooLargeError struct {
	Size int64
	Max  int64
}

func (e *MessageTooLargeError) Error() string {
	return fmt.Sprintf("wire: message size (%d) exceeds maximum (%d)", e.Size, e.Max)
}

// ShouldCloseConnection returns false - no byte reached the connection
func (e *MessageTooLargeError) ShouldCloseConnection() bool {
	return false
}

// ConnectionResetError is returned when the peer closed the stream before a complete
// header or part could be read.
//
// Connection handling: CLOSE
type ConnectionResetError struct {
	Op string // what was being read: header, payload, part
}

func (e *ConnectionResetError) Error() string {
	return "wire: the connection has been reset while reading the " + e.Op
}

// ShouldCloseConnection returns true
func (e *ConnectionResetError) ShouldCloseConnection() bool {
	return true
}

// ConnectionClosedError is returned when a message is sent or received without a bound
// connection.
//
// Connection handling: connection is already gone
type ConnectionClosedError struct{}

func (e *ConnectionClosedError) Error() string {
	return "wire: dead connection"
}

// ShouldCloseConnection returns true
func (e *ConnectionClosedError) ShouldCloseConnection() bool {
	return true
}

// ConnectionError wraps an I/O error from the underlying connection.
//
// Connection handling: CLOSE
type ConnectionError struct {
	Op  string // read or write
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("wire: connection error during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error chain inspection
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ShouldCloseConnection returns true
func (e *ConnectionError) ShouldCloseConnection() bool {
	return true
}

// ResourceExhaustedError is returned when a flow gate permit could not be obtained
// within the receive budget. Callers count it separately from transport failures.
//
// Connection handling: the error itself does not corrupt anything, but a receive that
// fails with it has consumed the header and left the body unread.
type ResourceExhaustedError struct {
	Limiter string // "message" or "data"
	Waited  int64  // milliseconds actually spent waiting
}

func (e *ResourceExhaustedError) Error() string {
	return fmt.Sprintf("wire: operation timed out waiting on concurrent %s limiter after waiting %d milliseconds",
		e.Limiter, e.Waited)
}

// ShouldCloseConnection returns false - capacity may free up later
func (e *ResourceExhaustedError) ShouldCloseConnection() bool {
	return false
}

// SerializationError is returned when the Codec fails while building a part.
// Parts added before the failing call are untouched.
type SerializationError struct {
	Err error
}

func (e *SerializationError) Error() string {
	return "wire: failed serializing object: " + e.Err.Error()
}

// Unwrap returns the underlying error for error chain inspection
func (e *SerializationError) Unwrap() error {
	return e.Err
}

// ShouldCloseConnection returns false - nothing was sent
func (e *SerializationError) ShouldCloseConnection() bool {
	return false
}

// ErrorWithConnectionState is implemented by all wire error types.
type ErrorWithConnectionState interface {
	error
	ShouldCloseConnection() bool
}

// ShouldCloseConnection reports whether err leaves the connection unusable.
// Unknown error types are treated conservatively and return true.
func ShouldCloseConnection(err error) bool {
	if err == nil {
		return false
	}

	var e ErrorWithConnectionState
	if errors.As(err, &e) {
		return e.ShouldCloseConnection()
	}

	return true
}

// IsResourceExhausted reports whether err is a flow gate timeout.
func IsResourceExhausted(err error) bool {
	var e *ResourceExhaustedError
	return errors.As(err, &e)
}
