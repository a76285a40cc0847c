package session

import (
	"time"

	"relaygo/envelope"
	"relaygo/frame"
)

// issue implements the shared request-issuance sequence every call
// shape builds on: allocate an id, register a waiter, write the frame.
// allocate a request id, pack the envelope, register a Waiter, and write
// the RpcRequest frame. It does not block for the response — sync, future,
// and callback calls all share this and differ only in what they do next.
// Errors raised before the waiter is registered are returned; a failed
// frame write is delivered through the waiter instead.
func (s *ClientSession) issue(name string, timeout time.Duration, resultCh chan Result, cb func(Result), args ...any) (uint64, error) {
	t, err := s.currentTransport()
	if err != nil {
		return 0, err
	}

	packedArgs, err := s.codec.Pack(args)
	if err != nil {
		return 0, err
	}
	body, err := s.codec.Pack(&envelope.RequestEnvelope{Method: name, Args: packedArgs})
	if err != nil {
		return 0, err
	}

	id := s.reqTable.NextID()
	w := newWaiter(time.Time{}, resultCh, cb)
	s.reqTable.Insert(id, w, timeout)

	h := frame.Header{ReqType: frame.RpcRequest, ReqID: id}
	if err := s.writeFrame(t, h, body); err != nil {
		// Resolving the waiter stops its timer, so resultCh or cb sees
		// exactly one outcome even if the timeout would otherwise fire later.
		s.reqTable.Remove(id)
		w.resolve(Result{Err: err})
	}
	return id, nil
}

// call is the blocking primitive behind Call/CallTimeout: issue the
// request, then block on the waiter's result channel up to the deadline.
// Removes the table entry on completion either way
// step 5: "a sync call that times out must also remove and discard any
// late response for that id" — handled by the Waiter's CAS, not by this
// function racing the timer.
func (s *ClientSession) call(name string, timeout time.Duration, args ...any) (RawResult, error) {
	resultCh := make(chan Result, 1)
	if _, err := s.issue(name, timeout, resultCh, nil, args...); err != nil {
		return RawResult{}, err
	}

	r := <-resultCh
	if r.Err != nil {
		return RawResult{}, r.Err
	}
	return RawResult{body: r.Body, codec: s.codec}, nil
}

// Call performs a synchronous RPC call with DefaultCallTimeout, decoding
// the response body into T.
func Call[T any](s *ClientSession, name string, args ...any) (T, error) {
	return CallTimeout[T](s, DefaultCallTimeout, name, args...)
}

// CallTimeout performs a synchronous RPC call with an explicit timeout.
// timeout == 0 means "no timeout".
func CallTimeout[T any](s *ClientSession, timeout time.Duration, name string, args ...any) (T, error) {
	var zero T
	raw, err := s.call(name, timeout, args...)
	if err != nil {
		return zero, err
	}
	return As[T](raw)
}

// CallVoid performs a synchronous call whose reply carries no meaningful
// payload, discarding the body.
func CallVoid(s *ClientSession, name string, args ...any) error {
	return CallVoidTimeout(s, DefaultCallTimeout, name, args...)
}

// CallVoidTimeout is CallVoid with an explicit timeout.
func CallVoidTimeout(s *ClientSession, timeout time.Duration, name string, args ...any) error {
	_, err := s.call(name, timeout, args...)
	return err
}
