// Package loadbalance picks a target instance from the addresses a Registry
// lookup returns. RandomBalancer is the only strategy the discovery
// contract requires (uniform random, no weighting, no locality); Balancer
// is kept as an interface rather than RandomBalancer's own concrete method
// so a caller can supply a different policy via client.WithBalancer without
// the client package depending on a specific strategy.
package loadbalance

import "github.com/mayingwei/MyRPC/registry"

// Balancer is the interface for load balancing strategies.
// The client calls Pick() before each RPC to select a target instance.
type Balancer interface {
	// Pick selects one instance from the available list.
	// Called on every RPC call — must be goroutine-safe.
	Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}
