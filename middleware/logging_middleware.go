package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mayingwei/MyRPC/message"
)

// LoggingMiddleware records the interface/method, duration, and any errors
// for each RPC call as structured fields on logger, rather than a format
// string — so log lines stay greppable/aggregable in production.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.RpcRequest) *message.RpcResponse {
			start := time.Now()

			resp := next(ctx, req)

			fields := []zap.Field{
				zap.String("requestId", req.RequestID),
				zap.String("interface", req.InterfaceName),
				zap.String("method", req.MethodName),
				zap.Duration("duration", time.Since(start)),
			}
			if resp.Exception != nil {
				logger.Warn("rpc call failed", append(fields, zap.String("kind", resp.Exception.Kind), zap.String("error", resp.Exception.Message))...)
			} else {
				logger.Info("rpc call completed", fields...)
			}
			return resp
		}
	}
}
