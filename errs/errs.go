// Package errs defines the typed error taxonomy shared by the codec,
// server, and client layers so that a remote failure and a local failure
// can be told apart with errors.Is/errors.As instead of string matching.
package errs

import (
	"errors"
	"fmt"
)

// Kind tags a structured error with its taxonomy category so it can be
// carried across the wire inside an RpcResponse.Exception and reconstructed
// on the other side without losing its class.
type Kind string

const (
	KindProtocol       Kind = "ProtocolError"
	KindNoSuchService  Kind = "NoSuchService"
	KindNoProviders    Kind = "NoProviders"
	KindHandler        Kind = "HandlerError"
	KindTransport      Kind = "TransportError"
	KindRegistrySession Kind = "RegistrySessionError"
)

// sentinels for errors.Is comparisons against a Kind regardless of message.
var (
	ErrProtocol        = errors.New("protocol error")
	ErrNoSuchService   = errors.New("no such service")
	ErrNoProviders     = errors.New("no providers")
	ErrHandler         = errors.New("handler error")
	ErrTransport       = errors.New("transport error")
	ErrRegistrySession = errors.New("registry session error")
)

func sentinelFor(k Kind) error {
	switch k {
	case KindProtocol:
		return ErrProtocol
	case KindNoSuchService:
		return ErrNoSuchService
	case KindNoProviders:
		return ErrNoProviders
	case KindHandler:
		return ErrHandler
	case KindTransport:
		return ErrTransport
	case KindRegistrySession:
		return ErrRegistrySession
	default:
		return errors.New(string(k))
	}
}

// RpcError is a structured error that travels from a handler (or a server
// pipeline fault) to the proxy caller. It satisfies errors.Unwrap so
// callers can errors.Is against the Kind's sentinel.
type RpcError struct {
	Kind    Kind
	Message string
}

func New(kind Kind, format string, args ...any) *RpcError {
	return &RpcError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error) *RpcError {
	if err == nil {
		return nil
	}
	return &RpcError{Kind: kind, Message: err.Error()}
}

func (e *RpcError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *RpcError) Unwrap() error {
	return sentinelFor(e.Kind)
}

// NoSuchService builds the structured error for an unknown ServiceKey,
// used identically by server dispatch (spec.md §4.3 step 2) and registry
// lookup (spec.md §4.6 step 2).
func NoSuchService(key string) *RpcError {
	return New(KindNoSuchService, "no handler registered for %q", key)
}

// NoProviders builds the structured error for a service node with zero
// live endpoint children (spec.md §4.6 step 3).
func NoProviders(serviceName string) *RpcError {
	return New(KindNoProviders, "no live providers for %q", serviceName)
}
