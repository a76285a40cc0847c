// Package envelope defines the codec-packed body structures exchanged
// inside a frame.Frame, one per frame.ReqKind.
//
// Every envelope is serialized by a codec.Codec before being handed to
// frame.Encode as the body, and deserialized by the same codec on the
// other side once frame.Decode has split header from body.
package envelope

// RequestEnvelope is the body of an frame.RpcRequest frame: the method
// name plus the already-packed argument tuple. This is the "one packed
// tuple (name, args)" layout, an alternative to a
// separately packed method-name string.
type RequestEnvelope struct {
	Method string
	Args   []byte // codec-packed tuple of argument values
}

// ResponseEnvelope is the body of an frame.RpcResponse frame.
// Status 0 means success and Payload is the codec-packed return value;
// a nonzero status means error and Payload is a codec-packed error string.
type ResponseEnvelope struct {
	Status  byte
	Payload []byte
}

const (
	StatusOK    byte = 0
	StatusError byte = 1
)

// SubscribeEnvelope is the body of an frame.SubscribeRequest frame.
// An empty Token is synonymous with "no token".
type SubscribeEnvelope struct {
	Key   string
	Token string
}

// PublishEnvelope is the body of an frame.PublishRequest frame.
type PublishEnvelope struct {
	Key     string
	Token   string
	Payload []byte
}
