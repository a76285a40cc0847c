package loadbalance

import (
	"fmt"
	"hash/crc32"
	"relaygo/registry"
	"sort"
)

// ConsistentHashBalancer maps an affinity key to the same instance for as
// long as the discovered instance set doesn't change, giving calls that
// share a key server affinity. relayd's demo upload/download handlers
// write files to local disk, so a client must route a download of a given
// name back to whichever instance served the matching upload; the client
// passes the file name as the key for those two methods.
//
// Virtual nodes: each real instance is hashed onto the ring replicas times.
// Without virtual nodes, a handful of instances can cluster together on
// the ring and take a disproportionate share of keys; 100 virtual nodes per
// instance keeps the split close to even.
type ConsistentHashBalancer struct {
	replicas int // virtual nodes per real instance
}

// NewConsistentHashBalancer creates a balancer with 100 virtual nodes per
// instance.
func NewConsistentHashBalancer() *ConsistentHashBalancer {
	return &ConsistentHashBalancer{replicas: 100}
}

// Pick hashes key onto a ring built fresh from instances and returns the
// instance owning the first ring position at or after the key's hash
// (wrapping around to the first position if the key's hash is the
// largest). The ring is rebuilt on every call instead of held as mutable
// state, since the instance set returned by discovery can change between
// calls and a stale ring would route to an instance that's gone.
func (b *ConsistentHashBalancer) Pick(key string, instances []registry.ServiceInstance) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, fmt.Errorf("loadbalance: no instances available")
	}

	type node struct {
		hash uint32
		inst *registry.ServiceInstance
	}
	ring := make([]node, 0, len(instances)*b.replicas)
	for i := range instances {
		inst := &instances[i]
		for r := 0; r < b.replicas; r++ {
			h := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", inst.Addr, r)))
			ring = append(ring, node{hash: h, inst: inst})
		}
	}
	sort.Slice(ring, func(i, j int) bool { return ring[i].hash < ring[j].hash })

	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(ring), func(i int) bool { return ring[i].hash >= hash })
	if idx == len(ring) {
		idx = 0
	}
	return ring[idx].inst, nil
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}
