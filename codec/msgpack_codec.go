package codec

import (
	"bytes"

	"github.com/hashicorp/go-msgpack/codec"
)

// msgpackHandle is stateless and safe for concurrent reuse across
// encoders/decoders, per the hashicorp/go-msgpack documentation.
var msgpackHandle = &codec.MsgpackHandle{}

// MsgpackCodec serializes with msgpack, the same wire format the reference
// a reference msgpack-based RPC implementation relies on. It is the
// compact binary alternative to JSONCodec, grounded in boxcast-serf's
// go.mod dependency on hashicorp/go-msgpack.
type MsgpackCodec struct{}

func (c *MsgpackCodec) Pack(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf, msgpackHandle)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *MsgpackCodec) Unpack(data []byte, v any) error {
	dec := codec.NewDecoder(bytes.NewReader(data), msgpackHandle)
	return dec.Decode(v)
}

func (c *MsgpackCodec) Type() Type {
	return TypeMsgpack
}
