package loadbalance

import (
	"fmt"
	"math/rand"

	"github.com/mayingwei/MyRPC/registry"
)

// RandomBalancer picks one instance uniformly at random, using
// math/rand's shared top-level source (its top-level functions are
// safe for concurrent use). This is the load-balancing policy spec.md
// §4.6 mandates for discovery: "stateless, no weighting, no locality".
type RandomBalancer struct{}

func (b *RandomBalancer) Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, fmt.Errorf("no instances available")
	}
	if len(instances) == 1 {
		return &instances[0], nil
	}
	return &instances[rand.Intn(len(instances))], nil
}

func (b *RandomBalancer) Name() string {
	return "Random"
}
