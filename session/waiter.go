package session

import (
	"sync/atomic"
	"time"
)

// waiterState values. The only transitions are pending->resolved and
// pending->timedOut; both are performed with a CAS so a response arriving
// the instant before the timeout timer fires cannot double-resolve the
// waiter.
const (
	waiterPending int32 = iota
	waiterResolved
	waiterTimedOut
)

// Result is what a Waiter resolves to: either a successful response body
// or an error (ErrTimeout, ErrConnectionClosed, or a *ServerError).
type Result struct {
	Body []byte
	Err  error
}

// Waiter is the client-side record for one outstanding request id: a
// deadline plus a resolution sink. Sync and future calls resolve into
// resultCh; callback calls resolve by invoking cb directly.
type Waiter struct {
	state int32 // atomic: waiterPending | waiterResolved | waiterTimedOut

	deadline time.Time // zero means no deadline
	timer    *time.Timer

	resultCh chan Result    // non-nil for sync/future calls
	cb       func(Result)   // non-nil for callback calls
}

func newWaiter(deadline time.Time, resultCh chan Result, cb func(Result)) *Waiter {
	return &Waiter{
		state:    waiterPending,
		deadline: deadline,
		resultCh: resultCh,
		cb:       cb,
	}
}

// resolve delivers r to the waiter if it is still pending. Returns false
// if the waiter had already been resolved or timed out (a late response
// or a double-fire), in which case the caller must discard r.
func (w *Waiter) resolve(r Result) bool {
	if !atomic.CompareAndSwapInt32(&w.state, waiterPending, waiterResolved) {
		return false
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.deliver(r)
	return true
}

// fireTimeout is invoked by the deadline timer. Returns false if the
// waiter had already resolved by the time the timer fired.
func (w *Waiter) fireTimeout() bool {
	if !atomic.CompareAndSwapInt32(&w.state, waiterPending, waiterTimedOut) {
		return false
	}
	w.deliver(Result{Err: ErrTimeout})
	return true
}

func (w *Waiter) deliver(r Result) {
	if w.cb != nil {
		w.cb(r)
		return
	}
	w.resultCh <- r
}
