// Package server implements the RPC server: service registration, the
// middleware chain, an acceptor/worker pool split, and graceful shutdown.
//
// Request processing pipeline (one request per connection, spec.md §9):
//
//	Accept conn → WorkerPool.Submit → handleConn
//	  → idle watchdog (SetReadDeadline) → ReadFrame → DecodeEnvelope(RpcRequest)
//	  → Middleware chain → businessHandler (precomputed methodInvoker)
//	  → EncodeEnvelope(RpcResponse) → EncodeFrame → close
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mayingwei/MyRPC/codec"
	"github.com/mayingwei/MyRPC/errs"
	"github.com/mayingwei/MyRPC/message"
	"github.com/mayingwei/MyRPC/middleware"
	"github.com/mayingwei/MyRPC/protocol"
	"github.com/mayingwei/MyRPC/registry"
)

// defaultReadIdle matches spec.md §5's READ_IDLE: a connection that sends
// no bytes within this window is considered dead and closed.
const defaultReadIdle = 30 * time.Second

const defaultWorkerPoolSize = 256

// Server is the RPC server: it owns a HandlerRegistry, a listener, and a
// bounded worker pool that drains the accept loop.
type Server struct {
	handlers    *HandlerRegistry
	listener    net.Listener
	pool        *WorkerPool
	middlewares []middleware.Middleware
	handler     middleware.HandlerFunc

	codecType     codec.CodecType
	readIdle      time.Duration
	maxFrame      int
	log           *zap.Logger
	reg           registry.Registry
	advertiseAddr string

	shutdown atomic.Bool
}

// ServerOption configures optional Server behavior.
type ServerOption func(*Server)

// WithLogger overrides the default no-op logger.
func WithLogger(l *zap.Logger) ServerOption {
	return func(s *Server) { s.log = l }
}

// WithCodec selects the wire codec used to encode outbound responses
// (inbound requests self-describe their codec via the envelope byte).
func WithCodec(t codec.CodecType) ServerOption {
	return func(s *Server) { s.codecType = t }
}

// WithReadIdle overrides the default 30s idle watchdog window.
func WithReadIdle(d time.Duration) ServerOption {
	return func(s *Server) { s.readIdle = d }
}

// WithMaxFrame overrides protocol.DefaultMaxFrame for this server.
func WithMaxFrame(n int) ServerOption {
	return func(s *Server) { s.maxFrame = n }
}

// WithWorkerPoolSize overrides how many connections are processed at once.
func WithWorkerPoolSize(n int) ServerOption {
	return func(s *Server) { s.pool = NewWorkerPool(n) }
}

// NewServer creates a server with an empty handler registry.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		handlers:  NewHandlerRegistry(),
		codecType: codec.CodecTypeBinary,
		readIdle:  defaultReadIdle,
		maxFrame:  protocol.DefaultMaxFrame,
		log:       zap.NewNop(),
		pool:      NewWorkerPool(defaultWorkerPoolSize),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds handler under the ServiceKey derived from interfaceName and
// version (spec.md §4.2). Must be called before Serve.
func (svr *Server) Register(interfaceName, version string, handler any) error {
	return svr.handlers.Register(interfaceName, version, handler)
}

// Use appends a middleware to the chain. Order matches spec.md's onion
// model: the first middleware added is outermost.
func (svr *Server) Use(mw middleware.Middleware) {
	svr.middlewares = append(svr.middlewares, mw)
}

// Serve listens on address, optionally registers every handled ServiceKey
// with reg under advertiseAddr, and runs the accept loop until Shutdown is
// called or the listener fails.
func (svr *Server) Serve(network, address, advertiseAddr string, reg registry.Registry) error {
	listener, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	svr.listener = listener
	svr.handler = middleware.Chain(svr.middlewares...)(svr.businessHandler)

	svr.advertiseAddr = advertiseAddr
	if reg != nil {
		svr.reg = reg
		for key := range svr.handlers.services {
			if err := svr.reg.Register(key, registry.ServiceInstance{Addr: advertiseAddr}, 10); err != nil {
				svr.log.Error("failed to register service", zap.String("serviceKey", key), zap.Error(err))
			}
		}
	}

	for {
		conn, err := listener.Accept()
		if err != nil {
			if svr.shutdown.Load() {
				return nil
			}
			return err
		}
		svr.pool.Submit(func() { svr.handleConn(conn) })
	}
}

// handleConn runs the one-shot pipeline for a single connection: read
// exactly one request frame, dispatch it, write exactly one response
// frame, close. spec.md §9 drops multiplexing from this core, so there is
// no read loop here — every connection carries one request and one reply.
func (svr *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(svr.readIdle)); err != nil {
		svr.log.Warn("failed to set read idle deadline", zap.Error(err))
		return
	}

	payload, err := protocol.ReadFrame(conn, svr.maxFrame)
	if err != nil {
		svr.log.Debug("connection closed before a complete frame arrived", zap.Error(err))
		return
	}

	var req message.RpcRequest
	if err := codec.DecodeEnvelope(payload, &req); err != nil {
		svr.log.Warn("malformed request frame", zap.Error(err))
		return
	}

	resp := svr.handler(context.Background(), &req)

	out, err := codec.EncodeEnvelope(svr.codecType, resp)
	if err != nil {
		svr.log.Error("failed to encode response", zap.Error(err))
		return
	}
	if err := protocol.EncodeFrame(conn, out); err != nil {
		svr.log.Warn("failed to write response frame", zap.Error(err))
	}
}

// businessHandler is the innermost handler in the middleware chain: it
// resolves (interfaceName, version, methodName) to a precomputed
// methodInvoker and calls it (spec.md §4.3 steps 2-4).
func (svr *Server) businessHandler(ctx context.Context, req *message.RpcRequest) *message.RpcResponse {
	inv, err := svr.handlers.lookup(req.InterfaceName, req.ServiceVersion, req.MethodName)
	if err != nil {
		return &message.RpcResponse{RequestID: req.RequestID, Exception: toException(err)}
	}

	result, err := inv.invoke(req.Parameters)
	if err != nil {
		return &message.RpcResponse{RequestID: req.RequestID, Exception: toException(errs.Wrap(errs.KindHandler, err))}
	}
	return &message.RpcResponse{RequestID: req.RequestID, Result: result}
}

// toException converts a Go error into the wire-level exception record,
// preserving the taxonomy Kind when err is (or wraps) an *errs.RpcError.
func toException(err error) *message.RpcException {
	var rpcErr *errs.RpcError
	if errors.As(err, &rpcErr) {
		return &message.RpcException{Kind: string(rpcErr.Kind), Message: rpcErr.Message}
	}
	return &message.RpcException{Kind: string(errs.KindHandler), Message: err.Error()}
}

// Shutdown performs graceful shutdown (spec.md §5):
//  1. Deregister every ServiceKey from the registry, so clients stop
//     routing new calls here.
//  2. Stop the acceptor (close the listener).
//  3. Wait for in-flight connections to drain from the worker pool.
func (svr *Server) Shutdown(timeout time.Duration) error {
	if svr.reg != nil {
		for key := range svr.handlers.services {
			if err := svr.reg.Deregister(key, svr.advertiseAddr); err != nil {
				svr.log.Warn("failed to deregister service", zap.String("serviceKey", key), zap.Error(err))
			}
		}
	}

	svr.shutdown.Store(true)
	svr.listener.Close()

	done := make(chan struct{})
	go func() {
		svr.pool.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for in-flight connections to finish")
	}
}
