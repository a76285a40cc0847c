package session

import "relaygo/codec"

// RawResult is the undecoded body of a successful response, handed to
// callers of AsyncCallFuture/AsyncCallCallback so they can defer decoding
// (or skip it for a void reply): RawResult.As[T] decodes,
// RawResult.As(&struct{}{}) or Bytes() discards a void-typed reply.
type RawResult struct {
	body  []byte
	codec codec.Codec
}

// As decodes the raw body into v, which must be a non-nil pointer.
func (r RawResult) As(v any) error {
	return r.codec.Unpack(r.body, v)
}

// Bytes returns the raw undecoded body.
func (r RawResult) Bytes() []byte {
	return r.body
}

// As decodes a RawResult into T. Go methods cannot carry their own type
// parameters, so this is a package-level helper rather than RawResult.As[T].
func As[T any](r RawResult) (T, error) {
	var out T
	err := r.As(&out)
	return out, err
}
