// Package client implements the RPC client: service discovery, load
// balancing, and the fresh-dial-per-call transport spec.md §9 settles on
// once multiplexing is ruled out of this core.
//
// Call flow:
//
//	Call(ctx, "Arith", "", "Add", paramTypes, params, &reply)
//	  → Registry.Discover(ServiceKey)  → instance list from etcd/consul
//	  → Balancer.Pick(instances)       → select one address
//	  → net.Dial                       → fresh connection, one request, one reply
//	  → EncodeFrame(RpcRequest)        → ReadFrame → RpcResponse
//	  → Exception != nil → typed error; else json.Unmarshal(Result, out)
package client

import (
	"context"
	"encoding/json"
	"net"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mayingwei/MyRPC/codec"
	"github.com/mayingwei/MyRPC/errs"
	"github.com/mayingwei/MyRPC/loadbalance"
	"github.com/mayingwei/MyRPC/message"
	"github.com/mayingwei/MyRPC/protocol"
	"github.com/mayingwei/MyRPC/registry"
)

const defaultDialTimeout = 5 * time.Second

// Client resolves a ServiceKey to a live instance and performs a single
// request/response round trip against it.
type Client struct {
	reg         registry.Registry
	bal         loadbalance.Balancer
	codecType   codec.CodecType
	dialTimeout time.Duration
	maxFrame    int
	log         *zap.Logger
}

// ClientOption configures optional Client behavior.
type ClientOption func(*Client)

// WithLogger overrides the default no-op logger.
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) { c.log = l }
}

// WithBalancer overrides the default RandomBalancer with any other
// loadbalance.Balancer implementation a caller supplies.
func WithBalancer(b loadbalance.Balancer) ClientOption {
	return func(c *Client) { c.bal = b }
}

// WithCodec selects the wire codec used to encode outbound requests.
func WithCodec(t codec.CodecType) ClientOption {
	return func(c *Client) { c.codecType = t }
}

// WithDialTimeout overrides the default 5s dial timeout.
func WithDialTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.dialTimeout = d }
}

// WithMaxFrame overrides protocol.DefaultMaxFrame for this client.
func WithMaxFrame(n int) ClientOption {
	return func(c *Client) { c.maxFrame = n }
}

// NewClient creates a client backed by reg for discovery. spec.md §4.6
// mandates uniform-random selection by default; a caller may swap in any
// other loadbalance.Balancer via WithBalancer.
func NewClient(reg registry.Registry, opts ...ClientOption) *Client {
	c := &Client{
		reg:         reg,
		bal:         &loadbalance.RandomBalancer{},
		codecType:   codec.CodecTypeBinary,
		dialTimeout: defaultDialTimeout,
		maxFrame:    protocol.DefaultMaxFrame,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call performs one RPC: discover an instance for (interfaceName, version),
// dial it, send a freshly-built RpcRequest, and wait for the single
// response frame. Discovery failures are returned as plain Go errors
// (errs.ErrNoSuchService / errs.ErrNoProviders) — spec.md §9's resolved
// open question — never smuggled into the result.
func (c *Client) Call(ctx context.Context, interfaceName, version, methodName string, paramTypes []string, params [][]byte, out any) error {
	addr, err := c.resolveAddr(interfaceName, version)
	if err != nil {
		return err
	}

	conn, err := net.DialTimeout("tcp", addr, c.dialTimeout)
	if err != nil {
		return errs.Wrap(errs.KindTransport, err)
	}
	defer conn.Close()

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
		_ = tcpConn.SetKeepAlive(true)
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return errs.Wrap(errs.KindTransport, err)
		}
	}

	req := &message.RpcRequest{
		RequestID:      uuid.NewString(),
		InterfaceName:  interfaceName,
		ServiceVersion: version,
		MethodName:     methodName,
		ParameterTypes: paramTypes,
		Parameters:     params,
	}

	payload, err := codec.EncodeEnvelope(c.codecType, req)
	if err != nil {
		return errs.Wrap(errs.KindProtocol, err)
	}
	if err := protocol.EncodeFrame(conn, payload); err != nil {
		return errs.Wrap(errs.KindTransport, err)
	}

	respPayload, err := protocol.ReadFrame(conn, c.maxFrame)
	if err != nil {
		return errs.Wrap(errs.KindTransport, err)
	}

	var resp message.RpcResponse
	if err := codec.DecodeEnvelope(respPayload, &resp); err != nil {
		return errs.Wrap(errs.KindProtocol, err)
	}

	if resp.Exception != nil {
		return errs.New(errs.Kind(resp.Exception.Kind), "%s", resp.Exception.Message)
	}
	if out == nil || resp.Result == nil {
		return nil
	}
	return json.Unmarshal(resp.Result, out)
}

// resolveAddr runs discovery + load balancing for (interfaceName, version).
func (c *Client) resolveAddr(interfaceName, version string) (string, error) {
	key := message.ServiceKey(interfaceName, version)
	instances, err := c.reg.Discover(key)
	if err != nil {
		return "", err
	}
	instance, err := c.bal.Pick(instances)
	if err != nil {
		return "", errs.NoProviders(key)
	}
	return instance.Addr, nil
}
