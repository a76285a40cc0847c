package codec

import (
	"encoding/json"
)

// JSONCodec uses the standard library encoding/json for serialization.
// Pros: human-readable, cross-language, easy to debug.
// Cons: slower due to reflection + string parsing, larger payload (field
// names repeated per message).
type JSONCodec struct{}

func (c *JSONCodec) Pack(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (c *JSONCodec) Unpack(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (c *JSONCodec) Type() Type {
	return TypeJSON
}
