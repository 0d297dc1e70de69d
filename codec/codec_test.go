package codec

import (
	"reflect"
	"testing"

	"github.com/mayingwei/MyRPC/message"
)

func sampleRequest() *message.RpcRequest {
	return &message.RpcRequest{
		RequestID:      "req-1",
		InterfaceName:  "HelloService",
		ServiceVersion: "v1.0",
		MethodName:     "hello",
		ParameterTypes: []string{"string"},
		Parameters:     [][]byte{[]byte(`"Jack1"`)},
	}
}

func TestJSONCodecRequestRoundTrip(t *testing.T) {
	c := &JSONCodec{}
	original := sampleRequest()

	data, err := c.Encode(original)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	var decoded message.RpcRequest
	if err := c.Decode(data, &decoded); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !reflect.DeepEqual(*original, decoded) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, *original)
	}
}

func TestJSONCodecDecodeEmptyPayload(t *testing.T) {
	c := &JSONCodec{}
	var decoded message.RpcRequest
	if err := c.Decode(nil, &decoded); err == nil {
		t.Fatal("expect error decoding an empty payload")
	}
}

func TestBinaryCodecRequestRoundTrip(t *testing.T) {
	c := &BinaryCodec{}
	original := sampleRequest()

	data, err := c.Encode(original)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	var decoded message.RpcRequest
	if err := c.Decode(data, &decoded); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !reflect.DeepEqual(*original, decoded) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, *original)
	}
}

func TestBinaryCodecResponseWithResult(t *testing.T) {
	c := &BinaryCodec{}
	original := &message.RpcResponse{
		RequestID: "req-1",
		Result:    []byte(`"server1: Jack1 Hello from HelloServiceImpl1"`),
	}

	data, err := c.Encode(original)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	var decoded message.RpcResponse
	if err := c.Decode(data, &decoded); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !reflect.DeepEqual(*original, decoded) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, *original)
	}
}

func TestBinaryCodecResponseWithException(t *testing.T) {
	c := &BinaryCodec{}
	original := &message.RpcResponse{
		RequestID: "req-2",
		Exception: &message.RpcException{Kind: "HandlerError", Message: "boom"},
	}

	data, err := c.Encode(original)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	var decoded message.RpcResponse
	if err := c.Decode(data, &decoded); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !reflect.DeepEqual(*original, decoded) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, *original)
	}
}

func TestBinaryCodecEmptyParameters(t *testing.T) {
	c := &BinaryCodec{}
	original := &message.RpcRequest{
		RequestID:      "req-3",
		InterfaceName:  "HelloService",
		ServiceVersion: "",
		MethodName:     "ping",
		ParameterTypes: nil,
		Parameters:     nil,
	}

	data, err := c.Encode(original)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	var decoded message.RpcRequest
	if err := c.Decode(data, &decoded); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.InterfaceName != original.InterfaceName || decoded.MethodName != original.MethodName {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, *original)
	}
}

func TestSchemaCacheReused(t *testing.T) {
	// Encoding the same type twice must hit the same cached schema entry
	// rather than growing the cache unboundedly.
	c := &BinaryCodec{}
	req := sampleRequest()
	if _, err := c.Encode(req); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if _, err := c.Encode(req); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	count := 0
	schemaCache.Range(func(k, v any) bool {
		if k == reflect.TypeOf(*req) {
			count++
		}
		return true
	})
	if count != 1 {
		t.Fatalf("expect exactly one cache entry for RpcRequest, got %d", count)
	}
}
