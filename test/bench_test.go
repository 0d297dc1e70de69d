package test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mayingwei/MyRPC/client"
	"github.com/mayingwei/MyRPC/codec"
	"github.com/mayingwei/MyRPC/message"
	"github.com/mayingwei/MyRPC/registry"
	"github.com/mayingwei/MyRPC/server"
)

type benchArgs struct {
	A, B int
}

type benchService struct{}

func (s *benchService) Add(args benchArgs) (int, error) {
	return args.A + args.B, nil
}

func setupBenchServerAndClient(b *testing.B, addr string) (*server.Server, *client.Client) {
	svr := server.NewServer(server.WithCodec(codec.CodecTypeJSON))
	if err := svr.Register("Arith", "", &benchService{}); err != nil {
		b.Fatal(err)
	}
	go svr.Serve("tcp", addr, "", nil)
	time.Sleep(100 * time.Millisecond)

	reg := NewMockRegistry()
	reg.Register("Arith", registry.ServiceInstance{Addr: addr}, 10)

	cli := client.NewClient(reg, client.WithCodec(codec.CodecTypeJSON))
	return svr, cli
}

// BenchmarkSerialCall measures one goroutine issuing calls back to back,
// each paying the full fresh-dial cost the one-request-per-connection
// model requires.
func BenchmarkSerialCall(b *testing.B) {
	svr, cli := setupBenchServerAndClient(b, "127.0.0.1:29090")
	b.Cleanup(func() { svr.Shutdown(3 * time.Second) })

	argsPayload, _ := json.Marshal(benchArgs{A: 1, B: 2})
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		var result int
		if err := cli.Call(context.Background(), "Arith", "", "Add", []string{"test.benchArgs"}, [][]byte{argsPayload}, &result); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkConcurrentCall measures many goroutines dialing concurrently —
// each call owns its own connection, so this exercises the server's
// acceptor/worker pool split rather than any shared-connection contention.
func BenchmarkConcurrentCall(b *testing.B) {
	svr, cli := setupBenchServerAndClient(b, "127.0.0.1:29091")
	b.Cleanup(func() { svr.Shutdown(3 * time.Second) })

	argsPayload, _ := json.Marshal(benchArgs{A: 1, B: 2})
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			var result int
			if err := cli.Call(context.Background(), "Arith", "", "Add", []string{"test.benchArgs"}, [][]byte{argsPayload}, &result); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

// BenchmarkCodecJSON measures JSON envelope round-trip cost without any
// network I/O.
func BenchmarkCodecJSON(b *testing.B) {
	req := &message.RpcRequest{
		RequestID:      "bench",
		InterfaceName:  "Arith",
		MethodName:     "Add",
		ParameterTypes: []string{"test.benchArgs"},
		Parameters:     [][]byte{[]byte(`{"A":1,"B":2}`)},
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		data, err := codec.EncodeEnvelope(codec.CodecTypeJSON, req)
		if err != nil {
			b.Fatal(err)
		}
		var out message.RpcRequest
		if err := codec.DecodeEnvelope(data, &out); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkCodecBinary measures the reflective binary codec's envelope
// round-trip cost against the same record as BenchmarkCodecJSON, without
// any network I/O; after the first iteration the schema is served from
// the cache.
func BenchmarkCodecBinary(b *testing.B) {
	req := &message.RpcRequest{
		RequestID:      "bench",
		InterfaceName:  "Arith",
		MethodName:     "Add",
		ParameterTypes: []string{"test.benchArgs"},
		Parameters:     [][]byte{[]byte(`{"A":1,"B":2}`)},
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		data, err := codec.EncodeEnvelope(codec.CodecTypeBinary, req)
		if err != nil {
			b.Fatal(err)
		}
		var out message.RpcRequest
		if err := codec.DecodeEnvelope(data, &out); err != nil {
			b.Fatal(err)
		}
	}
}
