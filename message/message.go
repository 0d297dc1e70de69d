// Package message defines the wire-level records exchanged between an RPC
// client and server: RpcRequest, RpcResponse, and the ServiceKey derivation
// shared by handler dispatch and registry paths.
package message

import "strings"

// RpcRequest is the value record a proxy call marshals and a server
// dispatches. Field order is significant: codec.BinaryCodec serializes
// fields in declaration order via reflection.
type RpcRequest struct {
	RequestID      string
	InterfaceName  string
	ServiceVersion string
	MethodName     string
	ParameterTypes []string
	Parameters     [][]byte
}

// RpcException is the structured form of a remote error, carried inside an
// RpcResponse and reconstructed into an *errs.RpcError at the proxy.
type RpcException struct {
	Kind    string
	Message string
}

// RpcResponse is the value record a server sends back. Exactly one of
// Result / Exception is populated; when Exception is nil and Result is
// absent, the call's return value is a null/unit result (spec invariant).
type RpcResponse struct {
	RequestID string
	Result    []byte
	Exception *RpcException
}

// ServiceKey derives the sole lookup token used by both handler dispatch
// and registry paths: interfaceName alone if version is empty after
// trimming, else "interfaceName-trimmedVersion".
func ServiceKey(interfaceName, version string) string {
	v := strings.TrimSpace(version)
	if v == "" {
		return interfaceName
	}
	return interfaceName + "-" + v
}
