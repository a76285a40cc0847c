package middleware

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"relaygo/envelope"
)

// RetryMiddleware re-invokes next up to maxRetries times, with exponential
// backoff, when the handler's error is retryable (ErrHandlerTimeout or
// context.DeadlineExceeded). Any other error returns immediately.
func RetryMiddleware(logger *zap.Logger, maxRetries int, baseDelay time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *envelope.RequestEnvelope) *Response {
			resp := next(ctx, req)
			for i := 0; i < maxRetries; i++ {
				if resp.Err == nil {
					return resp
				}
				if !retryable(resp.Err) {
					return resp
				}
				logger.Info("retrying rpc call",
					zap.Int("attempt", i+1),
					zap.String("method", req.Method),
					zap.Error(resp.Err))
				time.Sleep(baseDelay * time.Duration(uint(1)<<uint(i)))
				resp = next(ctx, req)
			}
			return resp
		}
	}
}

func retryable(err error) bool {
	return errors.Is(err, ErrHandlerTimeout) || errors.Is(err, context.DeadlineExceeded)
}
