package session

import (
	"time"

	"relaygo/codec"
)

// Future is returned by AsyncCallFuture. It resolves when the response
// frame arrives, or when the per-call timeout or a connection close fires
// — whichever comes first.
type Future struct {
	resultCh chan Result
	codec    codec.Codec
}

// Wait blocks until the future resolves and returns the raw result.
// A timeout firing before Wait is called records the timeout state
// eagerly; Wait then returns immediately with ErrTimeout instead of
// blocking on a result that will never arrive.
func (f *Future) Wait() (RawResult, error) {
	r := <-f.resultCh
	if r.Err != nil {
		return RawResult{}, r.Err
	}
	return RawResult{body: r.Body, codec: f.codec}, nil
}

// AsyncCallFuture issues name(args...) and returns immediately with a
// Future that resolves when the response arrives or the timeout/
// connection-close fires. timeout == 0 means "no timeout".
func (s *ClientSession) AsyncCallFuture(name string, timeout time.Duration, args ...any) *Future {
	resultCh := make(chan Result, 1)
	f := &Future{resultCh: resultCh, codec: s.codec}

	if _, err := s.issue(name, timeout, resultCh, nil, args...); err != nil {
		resultCh <- Result{Err: err}
	}
	return f
}

// FutureAs waits on f and decodes the result into T, the free-function
// counterpart to RawResult.As for callers who want a typed future result
// in one step.
func FutureAs[T any](f *Future) (T, error) {
	var zero T
	raw, err := f.Wait()
	if err != nil {
		return zero, err
	}
	return As[T](raw)
}
