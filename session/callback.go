package session

import "time"

// CallbackFunc is invoked exactly once, either with a successful RawResult
// or with an error (timeout or connection error).
type CallbackFunc func(RawResult, error)

// AsyncCallCallback issues name(args...) and invokes cb exactly once when
// the call resolves — by response, timeout, or connection loss.
// timeout == 0 means "never" (no timeout), matching the sync and future
// call shapes' convention.
func (s *ClientSession) AsyncCallCallback(name string, timeout time.Duration, cb CallbackFunc, args ...any) {
	wrapped := func(r Result) {
		if r.Err != nil {
			cb(RawResult{}, r.Err)
			return
		}
		cb(RawResult{body: r.Body, codec: s.codec}, nil)
	}
	if _, err := s.issue(name, timeout, nil, wrapped, args...); err != nil {
		cb(RawResult{}, err)
	}
}
