// Package codec provides the byte serialization used for spilled state.
// Keys and accumulator values are opaque to the engine; it only ever copies
// or moves their encoded form.
package codec

import "github.com/hashicorp/go-msgpack/v2/codec"

// Serializer encodes values to bytes and back.
type Serializer interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Msgpack is the default Serializer.
type Msgpack struct {
	handle codec.MsgpackHandle
}

var _ Serializer = (*Msgpack)(nil)

// NewMsgpack returns a msgpack-backed serializer.
func NewMsgpack() *Msgpack {
	m := &Msgpack{}
	// decode integers back as int64 so accumulators round-trip unchanged
	m.handle.SignedInteger = true
	return m
}

func (m *Msgpack) Marshal(v any) ([]byte, error) {
	var buf []byte
	if err := codec.NewEncoderBytes(&buf, &m.handle).Encode(v); err != nil {
		return nil, err
	}
	return buf, nil
}

func (m *Msgpack) Unmarshal(data []byte, v any) error {
	return codec.NewDecoderBytes(data, &m.handle).Decode(v)
}
