package middleware

import (
	"context"
	"errors"
	"time"

	"relaygo/envelope"
)

// ErrHandlerTimeout is returned by TimeOutMiddleware when a handler does
// not complete within the configured timeout.
var ErrHandlerTimeout = errors.New("request timed out")

// TimeOutMiddleware enforces a maximum duration for each RPC call.
// If the handler doesn't complete within the timeout, it returns an error immediately.
//
// Implementation:
//  1. Create a context with timeout (ctx.Done() fires when timeout expires)
//  2. Run the next handler in a goroutine, sending its result to a channel
//  3. Select between the result channel and ctx.Done()
//
// Note: the handler goroutine is NOT cancelled — it continues running in the background.
// The timeout only controls when the caller gives up waiting. For true cancellation,
// the handler must check ctx.Done() internally.
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *envelope.RequestEnvelope) *Response {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			// Run handler in a goroutine so we can race it against the timeout
			done := make(chan *Response, 1) // Buffered: prevent goroutine leak if timeout fires
			go func() {
				done <- next(ctx, req)
			}()

			select {
			case resp := <-done:
				return resp // Handler completed before timeout
			case <-ctx.Done():
				return &Response{Err: ErrHandlerTimeout}
			}
		}
	}
}
