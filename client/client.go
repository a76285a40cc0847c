// Package client implements a discovery-backed convenience client: service
// discovery → load balancing → a shared session.ClientSession pool.
//
// This sits above session.ClientSession rather than replacing it: a
// session already knows how to frame requests, correlate responses, and
// survive reconnects. Client adds what a bare session cannot: picking
// *which* server to talk to for a named service, picking among
// discovered addresses with a Balancer.
//
// Call flow:
//
//	Call[Reply](c, "Arith.Add", args)
//	  → Registry.Discover("Arith")        → get instance list from etcd
//	  → Balancer.Pick(key, instances)      → select one address
//	  → getSession(addr)                   → get a shared session (round-robin)
//	  → session.CallTimeout                 → send request, get response
package client

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"

	"relaygo/codec"
	"relaygo/loadbalance"
	"relaygo/registry"
	"relaygo/session"
)

// Client manages the full RPC call lifecycle: service discovery → load
// balancing → session pool → call.
type Client struct {
	registry registry.Registry
	balancer loadbalance.Balancer
	codec    codec.Codec
	timeout  time.Duration

	mu       sync.Mutex
	sessions map[string][]*session.ClientSession // address -> pool
	poolSize int
	counter  uint64
}

// NewClient creates a client with the given registry, load balancer,
// codec, and pool size.
//
// poolSize determines how many ClientSessions are maintained per server
// address. Each session multiplexes concurrent calls on its own
// connection, so even poolSize=1 handles concurrency; a larger pool
// spreads write-lock contention across more connections under very high
// throughput.
func NewClient(reg registry.Registry, bal loadbalance.Balancer, c codec.Codec, poolSize int) *Client {
	if poolSize < 1 {
		poolSize = 1
	}
	return &Client{
		registry: reg,
		balancer: bal,
		codec:    c,
		timeout:  session.DefaultCallTimeout,
		sessions: make(map[string][]*session.ClientSession),
		poolSize: poolSize,
	}
}

// getSession returns a shared session for addr, selected round-robin from
// its pool. Sessions are shared, not borrowed/returned — a
// session.ClientSession already multiplexes calls on one connection, so
// exclusive checkout would only add idle-lock contention.
func (c *Client) getSession(addr string) (*session.ClientSession, error) {
	n := atomic.AddUint64(&c.counter, 1)

	c.mu.Lock()
	pool, ok := c.sessions[addr]
	if !ok {
		host, port, err := splitHostPort(addr)
		if err != nil {
			c.mu.Unlock()
			return nil, err
		}
		pool = make([]*session.ClientSession, c.poolSize)
		for i := 0; i < c.poolSize; i++ {
			s := session.New(c.codec)
			if err := s.Connect(host, port, false, 5*time.Second); err != nil {
				c.mu.Unlock()
				return nil, err
			}
			pool[i] = s
		}
		c.sessions[addr] = pool
	}
	c.mu.Unlock()

	return pool[n%uint64(c.poolSize)], nil
}

func splitHostPort(addr string) (string, int, error) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return "", 0, fmt.Errorf("relaygo/client: invalid address %q", addr)
	}
	port, err := strconv.Atoi(addr[idx+1:])
	if err != nil {
		return "", 0, fmt.Errorf("relaygo/client: invalid port in %q: %w", addr, err)
	}
	return addr[:idx], port, nil
}

// pickSession resolves serviceMethod's "Service.Method" prefix through
// discovery and the balancer to get a connected session to call on.
//
// The affinity key passed to the balancer is the first argument stringified
// if there is one, else serviceMethod itself. A RoundRobin or
// WeightedRandom balancer ignores it; a ConsistentHashBalancer uses it to
// keep repeated calls sharing a key (e.g. relayd's upload/download file
// name) on the same instance.
func (c *Client) pickSession(serviceMethod string, args []any) (*session.ClientSession, error) {
	split := strings.SplitN(serviceMethod, ".", 2)
	if len(split) != 2 {
		return nil, fmt.Errorf("relaygo/client: invalid serviceMethod %q, expected \"Service.Method\"", serviceMethod)
	}
	serviceName := split[0]

	instances, err := c.registry.Discover(serviceName)
	if err != nil {
		return nil, err
	}

	key := serviceMethod
	if len(args) > 0 {
		key = fmt.Sprint(args[0])
	}
	instance, err := c.balancer.Pick(key, instances)
	if err != nil {
		return nil, err
	}
	return c.getSession(instance.Addr)
}

// Close closes every pooled session, across every resolved address.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs *multierror.Error
	for _, pool := range c.sessions {
		for _, s := range pool {
			if err := s.Close(); err != nil {
				errs = multierror.Append(errs, err)
			}
		}
	}
	return errs.ErrorOrNil()
}

// Call performs a synchronous call to serviceMethod ("Service.Method"),
// decoding the response into T, using the client's default timeout.
func Call[T any](c *Client, serviceMethod string, args ...any) (T, error) {
	return CallTimeout[T](c, c.timeout, serviceMethod, args...)
}

// CallTimeout is Call with an explicit timeout.
func CallTimeout[T any](c *Client, timeout time.Duration, serviceMethod string, args ...any) (T, error) {
	var zero T
	s, err := c.pickSession(serviceMethod, args)
	if err != nil {
		return zero, err
	}
	return session.CallTimeout[T](s, timeout, serviceMethod, args...)
}

// CallVoid performs a synchronous call whose reply carries no meaningful
// payload.
func CallVoid(c *Client, serviceMethod string, args ...any) error {
	s, err := c.pickSession(serviceMethod, args)
	if err != nil {
		return err
	}
	return session.CallVoidTimeout(s, c.timeout, serviceMethod, args...)
}
