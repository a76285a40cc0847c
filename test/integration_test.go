// Package test holds package-external integration and benchmark coverage
// that exercises relaygo across package boundaries: registry → balancer →
// client → server → dispatcher → codec, end to end over real sockets.
package test

import (
	"testing"
	"time"

	"relaygo/client"
	"relaygo/codec"
	"relaygo/loadbalance"
	"relaygo/registry"
	"relaygo/server"
)

func startArith(t testing.TB, addr string) *server.Server {
	t.Helper()
	s := server.New(server.WithCodec(codec.Get(codec.TypeJSON)))
	s.Handle("Arith.Add", func(ctx *server.ConnectionContext, a, b int) (int, error) {
		return a + b, nil
	})
	s.Handle("Arith.Multiply", func(ctx *server.ConnectionContext, a, b int) (int, error) {
		return a * b, nil
	})
	if err := s.Listen(addr); err != nil {
		t.Fatalf("listen %s: %v", addr, err)
	}
	return s
}

// TestFullIntegrationWithEtcd exercises the full discovery path:
// Client → Registry(etcd) → Balancer → Session → frame/codec → dispatcher
// → reflection call. Skipped when no etcd instance is reachable at
// 127.0.0.1:2379, since that's an external dependency this package
// cannot bring up itself.
func TestFullIntegrationWithEtcd(t *testing.T) {
	reg, err := registry.NewEtcdRegistry([]string{"127.0.0.1:2379"})
	if err != nil {
		t.Skipf("etcd unavailable: %v", err)
	}

	svr := startArith(t, "127.0.0.1:19090")
	go svr.Serve("Arith", svr.Addr(), nil)
	t.Cleanup(func() { svr.Shutdown(3 * time.Second) })

	if err := reg.Register("Arith", registry.ServiceInstance{Addr: svr.Addr(), Weight: 10}, 10); err != nil {
		t.Skipf("etcd register failed, treating as unavailable: %v", err)
	}
	t.Cleanup(func() { reg.Deregister("Arith", svr.Addr()) })

	cli := client.NewClient(reg, &loadbalance.RoundRobinBalancer{}, codec.Get(codec.TypeJSON), 4)
	t.Cleanup(func() { cli.Close() })

	sum, err := client.Call[int](cli, "Arith.Add", 3, 5)
	if err != nil {
		t.Fatalf("Call Add failed: %v", err)
	}
	if sum != 8 {
		t.Fatalf("Add: expect 8, got %d", sum)
	}

	product, err := client.Call[int](cli, "Arith.Multiply", 4, 6)
	if err != nil {
		t.Fatalf("Call Multiply failed: %v", err)
	}
	if product != 24 {
		t.Fatalf("Multiply: expect 24, got %d", product)
	}
}

// TestMultiServerWithEtcd registers two server instances and checks that
// every one of 10 sequential calls, load balanced round-robin, succeeds.
func TestMultiServerWithEtcd(t *testing.T) {
	reg, err := registry.NewEtcdRegistry([]string{"127.0.0.1:2379"})
	if err != nil {
		t.Skipf("etcd unavailable: %v", err)
	}

	svr1 := startArith(t, "127.0.0.1:19091")
	go svr1.Serve("Arith", svr1.Addr(), nil)
	t.Cleanup(func() { svr1.Shutdown(3 * time.Second) })

	svr2 := startArith(t, "127.0.0.1:19092")
	go svr2.Serve("Arith", svr2.Addr(), nil)
	t.Cleanup(func() { svr2.Shutdown(3 * time.Second) })

	if err := reg.Register("Arith", registry.ServiceInstance{Addr: svr1.Addr(), Weight: 10}, 10); err != nil {
		t.Skipf("etcd register failed, treating as unavailable: %v", err)
	}
	t.Cleanup(func() { reg.Deregister("Arith", svr1.Addr()) })
	if err := reg.Register("Arith", registry.ServiceInstance{Addr: svr2.Addr(), Weight: 10}, 10); err != nil {
		t.Fatalf("register second instance: %v", err)
	}
	t.Cleanup(func() { reg.Deregister("Arith", svr2.Addr()) })

	cli := client.NewClient(reg, &loadbalance.RoundRobinBalancer{}, codec.Get(codec.TypeJSON), 4)
	t.Cleanup(func() { cli.Close() })

	for i := 1; i <= 10; i++ {
		sum, err := client.Call[int](cli, "Arith.Add", i, i*10)
		if err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
		if expected := i + i*10; sum != expected {
			t.Fatalf("request %d: expect %d, got %d", i, expected, sum)
		}
	}
}
