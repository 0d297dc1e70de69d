// Package middleware implements the onion-model middleware chain that wraps
// every RPC handler with cross-cutting request/response behavior.
//
// Middleware wraps the business handler to add cross-cutting concerns
// (logging, timeout, rate limiting) without modifying the handler itself.
//
// Onion model execution order:
//
//	Chain(A, B, C)(handler)  →  A(B(C(handler)))
//
//	Request:   A.before → B.before → C.before → handler
//	Response:  handler → C.after → B.after → A.after
//
// Each middleware can:
//   - Do pre-processing (before calling next)
//   - Call next(ctx, req) to pass to the next layer
//   - Do post-processing (after next returns)
//   - Short-circuit by returning early without calling next (e.g., rate limiting)
package middleware

import (
	"context"
	"fmt"

	"github.com/mayingwei/MyRPC/errs"
	"github.com/mayingwei/MyRPC/message"
)

// HandlerFunc is the function signature for request handlers.
// Both the business handler and middleware-wrapped handlers share this signature.
type HandlerFunc func(ctx context.Context, req *message.RpcRequest) *message.RpcResponse

// Middleware takes a handler and returns a new handler that wraps it.
// This is the decorator pattern — each middleware adds behavior around the next handler.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares into a single middleware and wraps the result
// with panic recovery, so a handler panic turns into an errs.KindHandler
// exception on the wire instead of taking down the worker pool goroutine
// that's running it (server.WorkerPool has no per-task recover of its own).
// It builds the chain from right to left so that the first middleware in the
// list is the outermost layer (executed first on request, last on response).
//
// Example:
//
//	chain := Chain(Logging, Timeout, RateLimit)
//	handler := chain(businessHandler)
//	// Execution: Logging → Timeout → RateLimit → businessHandler → RateLimit → Timeout → Logging
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return recoverHandler(next)
	}
}

// recoverHandler catches a panic from the wrapped handler and converts it
// into a normal RpcResponse carrying an errs.KindHandler exception, so the
// caller still gets exactly one response frame per spec.md §4.3's contract
// even when the handler itself misbehaves.
func recoverHandler(next HandlerFunc) HandlerFunc {
	return func(ctx context.Context, req *message.RpcRequest) (resp *message.RpcResponse) {
		defer func() {
			if r := recover(); r != nil {
				resp = &message.RpcResponse{
					RequestID: req.RequestID,
					Exception: &message.RpcException{
						Kind:    string(errs.KindHandler),
						Message: fmt.Sprintf("panic: %v", r),
					},
				}
			}
		}()
		return next(ctx, req)
	}
}
