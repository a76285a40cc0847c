// Package loadbalance picks which discovered relaygo server instance a
// client.Client call lands on.
//
// Three strategies are implemented:
//   - RoundRobin:      stateless handlers, equal-capacity instances
//   - WeightedRandom:  heterogeneous instances (different CPU/memory)
//   - ConsistentHash:  handlers that pin state to one instance (the
//     demo upload/download handlers write files to local disk, so a
//     download of a given name must land back on whichever instance
//     served the matching upload)
package loadbalance

import "relaygo/registry"

// Balancer is the interface client.Client calls before every RPC to pick a
// target instance.
type Balancer interface {
	// Pick selects one instance from the available list. key is an
	// affinity hint derived from the call (e.g. a handler argument);
	// strategies that don't need affinity ignore it. Called on every RPC
	// call — must be goroutine-safe.
	Pick(key string, instances []registry.ServiceInstance) (*registry.ServiceInstance, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}
