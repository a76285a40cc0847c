package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"relaygo/envelope"
)

// LoggingMiddleware records the method, duration, and any error for each
// RPC call using the given zap.Logger. It captures the start time before
// calling next, and logs the elapsed time after next returns.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *envelope.RequestEnvelope) *Response {
			start := time.Now()

			resp := next(ctx, req)

			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.Duration("duration", time.Since(start)),
			}
			if resp.Err != nil {
				logger.Warn("rpc call failed", append(fields, zap.Error(resp.Err))...)
			} else {
				logger.Debug("rpc call", fields...)
			}
			return resp
		}
	}
}
