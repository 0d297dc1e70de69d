package client

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mayingwei/MyRPC/codec"
	"github.com/mayingwei/MyRPC/registry"
	"github.com/mayingwei/MyRPC/server"
)

type Args struct {
	A, B int
}

type Reply struct {
	Result int
}

type Arith struct{}

func (a *Arith) Add(args Args) (Reply, error) {
	return Reply{Result: args.A + args.B}, nil
}

// MockRegistry is an in-memory registry.Registry for tests that don't need
// a live etcd/Consul cluster.
type MockRegistry struct {
	instances map[string][]registry.ServiceInstance
}

func NewMockRegistry() *MockRegistry {
	return &MockRegistry{instances: make(map[string][]registry.ServiceInstance)}
}

func (m *MockRegistry) Register(serviceKey string, inst registry.ServiceInstance, ttl int64) error {
	m.instances[serviceKey] = append(m.instances[serviceKey], inst)
	return nil
}

func (m *MockRegistry) Deregister(serviceKey string, addr string) error {
	insts := m.instances[serviceKey]
	for i, inst := range insts {
		if inst.Addr == addr {
			m.instances[serviceKey] = append(insts[:i], insts[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MockRegistry) Discover(serviceKey string) ([]registry.ServiceInstance, error) {
	return m.instances[serviceKey], nil
}

func (m *MockRegistry) Watch(serviceKey string) <-chan []registry.ServiceInstance {
	return nil
}

func TestClientCallRoundTrip(t *testing.T) {
	svr := server.NewServer(server.WithCodec(codec.CodecTypeJSON))
	if err := svr.Register("Arith", "", &Arith{}); err != nil {
		t.Fatal(err)
	}
	go svr.Serve("tcp", ":19080", "", nil)
	time.Sleep(100 * time.Millisecond)

	reg := NewMockRegistry()
	reg.Register("Arith", registry.ServiceInstance{Addr: "127.0.0.1:19080", Weight: 1}, 10)

	cli := NewClient(reg, WithCodec(codec.CodecTypeJSON))

	argsPayload, err := json.Marshal(Args{A: 1, B: 2})
	if err != nil {
		t.Fatal(err)
	}

	var reply Reply
	err = cli.Call(context.Background(), "Arith", "", "Add", []string{"client.Args"}, [][]byte{argsPayload}, &reply)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if reply.Result != 3 {
		t.Fatalf("expect 3, got %d", reply.Result)
	}
}

func TestClientNoProviders(t *testing.T) {
	reg := NewMockRegistry()
	cli := NewClient(reg, WithCodec(codec.CodecTypeJSON))

	var reply Reply
	err := cli.Call(context.Background(), "Arith", "", "Add", nil, nil, &reply)
	if err == nil {
		t.Fatal("expect error when no providers are registered")
	}
}

func TestClientMultipleInstances(t *testing.T) {
	svr1 := server.NewServer(server.WithCodec(codec.CodecTypeJSON))
	svr1.Register("Arith", "", &Arith{})
	go svr1.Serve("tcp", ":19081", "", nil)

	svr2 := server.NewServer(server.WithCodec(codec.CodecTypeJSON))
	svr2.Register("Arith", "", &Arith{})
	go svr2.Serve("tcp", ":19082", "", nil)

	time.Sleep(100 * time.Millisecond)

	reg := NewMockRegistry()
	reg.Register("Arith", registry.ServiceInstance{Addr: "127.0.0.1:19081", Weight: 1}, 10)
	reg.Register("Arith", registry.ServiceInstance{Addr: "127.0.0.1:19082", Weight: 1}, 10)

	cli := NewClient(reg, WithCodec(codec.CodecTypeJSON))

	for i := 0; i < 10; i++ {
		argsPayload, err := json.Marshal(Args{A: i, B: i})
		if err != nil {
			t.Fatal(err)
		}
		var reply Reply
		err = cli.Call(context.Background(), "Arith", "", "Add", []string{"client.Args"}, [][]byte{argsPayload}, &reply)
		if err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
		if reply.Result != i*2 {
			t.Fatalf("request %d: expect %d, got %d", i, i*2, reply.Result)
		}
	}
}

func TestClientMissingVersion(t *testing.T) {
	svr := server.NewServer(server.WithCodec(codec.CodecTypeJSON))
	svr.Register("Arith", "1.0", &Arith{})
	go svr.Serve("tcp", ":19083", "", nil)
	time.Sleep(100 * time.Millisecond)

	reg := NewMockRegistry()
	reg.Register("Arith-1.0", registry.ServiceInstance{Addr: "127.0.0.1:19083", Weight: 1}, 10)

	cli := NewClient(reg, WithCodec(codec.CodecTypeJSON))

	var reply Reply
	err := cli.Call(context.Background(), "Arith", "4.0", "Add", nil, nil, &reply)
	if err == nil {
		t.Fatal("expect error when requesting an unregistered version")
	}
}
