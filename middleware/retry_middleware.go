package middleware

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mayingwei/MyRPC/errs"
	"github.com/mayingwei/MyRPC/message"
)

// RetryMiddleware retries a call when the handler fails with a transport-ish
// error (timeout, connection refused). Other exception kinds are returned
// immediately since retrying a handler error or a bad request won't help.
func RetryMiddleware(logger *zap.Logger, maxRetries int, baseDelay time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.RpcRequest) *message.RpcResponse {
			resp := next(ctx, req)
			for i := 0; i < maxRetries; i++ {
				if resp.Exception == nil {
					return resp
				}
				if !isRetryable(resp.Exception) {
					return resp
				}
				logger.Warn("retrying rpc call",
					zap.Int("attempt", i+1),
					zap.String("interface", req.InterfaceName),
					zap.String("method", req.MethodName),
					zap.String("error", resp.Exception.Message),
				)
				time.Sleep(baseDelay * time.Duration(1<<i))
				resp = next(ctx, req)
			}
			return resp
		}
	}
}

func isRetryable(exc *message.RpcException) bool {
	if exc.Kind != string(errs.KindTransport) {
		return false
	}
	return strings.Contains(exc.Message, "timed out") || strings.Contains(exc.Message, "connection refused")
}
