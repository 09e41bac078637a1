package wire

import (
	"bytes"
	"encoding/gob"
)

// Codec turns arbitrary values into object part bytes and back.
// The version of the peer is passed through so a codec can pick a compatible form.
type Codec interface {
	Marshal(v any, version Version) ([]byte, error)
	Unmarshal(data []byte, version Version, into any) error
}

// BufferedCodec is implemented by codecs that can encode into a caller-sized buffer.
// Messages use it to honor their chunk size when serializing objects.
type BufferedCodec interface {
	Codec
	MarshalTo(buf *bytes.Buffer, v any, version Version) error
}

// GobCodec is the default Codec. Gob streams are self-describing, so the version is
// not consulted.
type GobCodec struct{}

func (c GobCodec) Marshal(v any, version Version) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.MarshalTo(&buf, v, version); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (GobCodec) MarshalTo(buf *bytes.Buffer, v any, _ Version) error {
	return gob.NewEncoder(buf).Encode(v)
}

func (GobCodec) Unmarshal(data []byte, _ Version, into any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(into)
}

// DefaultCodec is used by messages that were not given a codec.
var DefaultCodec Codec = GobCodec{}
