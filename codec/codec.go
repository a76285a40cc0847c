// Package codec provides the serialization boundary for relaygo.
//
// relaygo treats the codec as an opaque external collaborator:
// pack(value) -> bytes, unpack<T>(bytes) -> T. This package pins that
// boundary down as the Codec interface and ships two concrete
// implementations:
//
//   - JSONCodec:    encoding/json, human-readable, the default
//   - MsgpackCodec: github.com/hashicorp/go-msgpack, compact binary
package codec

// Type identifies the serialization format. relaygo fixes one codec per
// session/server rather than per-frame — the frame header itself carries
// no codec tag.
type Type byte

const (
	TypeJSON    Type = 0
	TypeMsgpack Type = 1
)

// Codec is the interface every relaygo component programs against for
// argument and return-value serialization.
type Codec interface {
	// Pack serializes v to bytes.
	Pack(v any) ([]byte, error)
	// Unpack deserializes data into v, which must be a non-nil pointer.
	Unpack(data []byte, v any) error
	// Type reports the codec's identifier.
	Type() Type
}

// Get returns the codec implementation for the given type, defaulting to
// JSON for any unrecognized value.
func Get(t Type) Codec {
	if t == TypeMsgpack {
		return &MsgpackCodec{}
	}
	return &JSONCodec{}
}
