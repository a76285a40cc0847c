package loadbalance

import (
	"fmt"
	"math/rand"
	"relaygo/registry"
)

// WeightedRandomBalancer selects an instance probabilistically based on its
// registered weight, ignoring any affinity key. An instance registered with
// weight 10 gets roughly 2x the traffic of one with weight 5.
//
// Best for: heterogeneous relayd instances (some boxes have more CPU/memory
// than others and registered a higher Weight at startup).
//
// Algorithm:
//  1. Sum all weights → totalWeight
//  2. Generate random number r in [0, totalWeight)
//  3. Subtract each instance's weight from r until r < 0
//  4. The instance that makes r negative is selected
type WeightedRandomBalancer struct{}

func (b *WeightedRandomBalancer) Pick(key string, instances []registry.ServiceInstance) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, fmt.Errorf("loadbalance: no instances available")
	}

	totalWeight := 0
	for _, v := range instances {
		totalWeight += v.Weight
	}

	r := rand.Intn(totalWeight)
	for _, v := range instances {
		r -= v.Weight
		if r < 0 {
			return &v, nil
		}
	}

	return nil, fmt.Errorf("loadbalance: weighted selection failed to converge")
}

func (b *WeightedRandomBalancer) Name() string {
	return "WeightedRandom"
}
