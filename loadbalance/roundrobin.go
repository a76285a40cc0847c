package loadbalance

import (
	"fmt"
	"relaygo/registry"
	"sync/atomic"
)

// RoundRobinBalancer cycles through instances in order, ignoring any
// affinity key. Uses an atomic counter for lock-free, goroutine-safe
// operation.
//
// Best for: the default case — stateless handlers, similar-capacity
// instances, no reason to pin a caller to one of them.
type RoundRobinBalancer struct {
	counter int64 // atomic counter, incremented on each Pick
}

// Pick selects the next instance in round-robin order.
func (b *RoundRobinBalancer) Pick(key string, instances []registry.ServiceInstance) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, fmt.Errorf("loadbalance: no instances available")
	}
	index := atomic.AddInt64(&b.counter, 1) % int64(len(instances))
	return &instances[index], nil
}

func (b *RoundRobinBalancer) Name() string {
	return "RoundRobin"
}
