package wire

// PartPayload is the closed set of values a part can be built from.
// The concrete type is resolved once, when the part is added.
type PartPayload interface {
	partPayload()
}

type (
	// NilPayload adds a zero-length raw part that decodes back to a nil slice.
	NilPayload struct{}

	// StringPayload is sent as its UTF-8 bytes.
	StringPayload string

	// BytesPayload is sent as-is.
	BytesPayload []byte

	// BoolPayload is serialized with the message codec.
	BoolPayload bool

	// IntPayload is sent as 4 big-endian bytes.
	IntPayload int32

	// LongPayload is sent as 8 big-endian bytes.
	LongPayload int64

	// BytePayload is sent as a single byte.
	BytePayload byte

	// ObjectPayload is serialized with the message codec.
	ObjectPayload struct {
		Value any
	}
)

func (NilPayload) partPayload()    {}
func (StringPayload) partPayload() {}
func (BytesPayload) partPayload()  {}
func (BoolPayload) partPayload()   {}
func (IntPayload) partPayload()    {}
func (LongPayload) partPayload()   {}
func (BytePayload) partPayload()   {}
func (ObjectPayload) partPayload() {}
