// Package wire implements the binary message envelope exchanged between cache
// clients and servers over a stream socket.
//
// A message is a fixed 17 byte header followed by length-prefixed, type-tagged
// parts. All integers are big-endian:
//
//	offset 0  : int32 messageType
//	offset 4  : int32 payloadLength
//	offset 8  : int32 numberOfParts
//	offset 12 : int32 transactionId
//	offset 16 : uint8 flags (0x02 has secure part, 0x04 is retry)
//	part      : int32 length | uint8 typeTag | length bytes
//
// The package has no opinion on connection pooling, routing or what message types
// mean. It only frames, admits and reassembles.
//
// # Building and Sending
//
// A Message is built by appending parts, then sent through a bound connection and
// CommBuffer. The CommBuffer belongs to the connection and is reused by every
// message sent or received on it:
//
//	buf := wire.NewCommBuffer(wire.DefaultChunkSize)
//
//	req := wire.NewMessage(3, wire.CurrentVersion)
//	req.SetMessageType(wire.Put)
//	req.SetTransactionID(7)
//	req.AddStringPart("region", true)
//	req.AddBytesPart(key)
//	if err := req.AddObjPart(wire.ObjectPayload{Value: value}); err != nil {
//	    return err
//	}
//
//	req.Bind(conn, buf, stats)
//	if err := req.Send(ctx); err != nil {
//	    if wire.ShouldCloseConnection(err) {
//	        conn.Close()
//	    }
//	    return err
//	}
//
// Parts larger than the CommBuffer are streamed to the connection in buffer-sized
// writes; the buffer never grows. Messages above the configured maximum are rejected
// before a single byte is written.
//
// # Receiving
//
// Receive reads one message and reassembles its parts into freshly allocated slices,
// whatever the fragmentation of the underlying reads:
//
//	resp := wire.NewMessage(1, wire.CurrentVersion)
//	resp.Bind(conn, buf, stats)
//	if err := resp.Receive(ctx); err != nil {
//	    return err
//	}
//	defer resp.Clear()
//
//	n, err := resp.Part(0).Int()
//
// Servers pass a FlowGate through ReceiveWith to bound the number and aggregate size
// of messages being processed. The permit obtained by a receive is held by the
// message until Clear.
//
// # Error Handling
//
// Every error type reports whether the connection it came from is still usable:
//
//   - ProtocolError: the peer broke the framing - close
//   - ConnectionResetError, ConnectionError, ConnectionClosedError - close
//   - MessageTooLargeError: nothing was written - reuse
//   - ResourceExhaustedError: the flow gate timed out - reuse
//   - SerializationError: the codec failed while building - reuse
//
// Use ShouldCloseConnection(err) rather than matching types.
package wire
