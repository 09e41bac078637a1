package wire

// Fixed sizes of the wire format.
const (
	// HeaderLength is the size of the fixed message header:
	// messageType(4) payloadLength(4) numberOfParts(4) transactionId(4) flags(1)
	HeaderLength = 17

	// PartHeaderLength is the size of the per-part header: length(4) typeTag(1)
	PartHeaderLength = 5
)

// Header flag bits.
const (
	// FlagHasSecurePart marks a trailing authentication part after the numbered parts.
	FlagHasSecurePart byte = 0x02

	// FlagIsRetry marks a message that was previously sent to a different server.
	// It is stripped from the exposed flags on receive and surfaced through IsRetry.
	FlagIsRetry byte = 0x04
)

// Part type codes.
const (
	// TypeCodeBytes marks raw bytes (strings, numbers, byte arrays).
	TypeCodeBytes byte = 0x00

	// TypeCodeObject marks bytes produced by a Codec.
	TypeCodeObject byte = 0x01

	// TypeCodeEmptyBytes marks a non-nil, zero-length byte array.
	TypeCodeEmptyBytes byte = 0x02
)

// Defaults for the values supplied by the connection layer.
const (
	// DefaultMaxMessageSize bounds outgoing messages (1 GiB).
	DefaultMaxMessageSize = 1 << 30

	// DefaultChunkSize is the default comm buffer capacity.
	DefaultChunkSize = 1024

	// NoTransaction is the transaction id of a message outside any transaction.
	NoTransaction int32 = -1
)
