// Package registry defines the service discovery interface and data types.
//
// Service discovery solves the problem of "how does the client find the
// server?" Instead of hardcoding IP:port, servers register an ephemeral
// endpoint under a persistent ServiceKey node (message.ServiceKey), and
// clients query the registry to find the live instances under that node.
package registry

// ServiceInstance represents a single running instance of a service,
// identified by the ServiceKey it is registered under.
type ServiceInstance struct {
	Addr    string // Network address, e.g., "127.0.0.1:8080"
	Weight  int    // Weight for load balancing (higher = more traffic)
	Version string // Service version for canary deployments
}

// Registry is the interface for service registration and discovery.
// Implementations include EtcdRegistry and ConsulRegistry (production) and
// a MockRegistry (testing, see client package tests).
type Registry interface {
	// Register adds a service instance under serviceKey (spec.md §3's
	// ServiceKey) with an ephemeral, session-bound lifetime of roughly
	// ttl seconds. The instance disappears automatically if the
	// registering process stops renewing before ttl elapses.
	Register(serviceKey string, instance ServiceInstance, ttl int64) error

	// Deregister removes a service instance from the registry.
	// Called during graceful shutdown BEFORE closing the listener.
	Deregister(serviceKey string, addr string) error

	// Discover returns all currently registered instances for a
	// serviceKey. The client calls this to get the instance list for
	// load balancing.
	Discover(serviceKey string) ([]ServiceInstance, error)

	// Watch returns a channel that emits updated instance lists whenever
	// the service's instances change (new instances, removals, etc.).
	// This enables real-time service discovery without polling.
	Watch(serviceKey string) <-chan []ServiceInstance
}
