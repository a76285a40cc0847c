// Command relayd is the demonstration server binary, reproducing the
// reference rest_rpc implementation's server/main.cpp handler roster on
// top of the relaygo framework.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"relaygo/codec"
	"relaygo/middleware"
	"relaygo/registry"
	"relaygo/server"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:9000", "address to listen on")
	advertiseAddr := flag.String("advertise", "", "address to advertise in the registry (defaults to -addr)")
	serviceName := flag.String("service", "demo", "service name to register under")
	etcdEndpoints := flag.String("etcd", "", "comma-separated etcd endpoints; when empty, discovery is skipped")
	workers := flag.Int("workers", 0, "dispatcher worker pool size (0 = runtime.NumCPU())")
	rateLimit := flag.Float64("rate-limit", 200, "requests/sec allowed across all connections before rate limiting kicks in")
	rateBurst := flag.Int("rate-burst", 50, "token bucket burst size")
	certFile := flag.String("cert", "", "TLS certificate file (enables TLS when set with -key)")
	keyFile := flag.String("key", "", "TLS key file")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	s := server.New(
		server.WithLogger(logger),
		server.WithCodec(codec.Get(codec.TypeMsgpack)),
		server.WithWorkers(*workers),
	)
	s.Use(middleware.LoggingMiddleware(logger))
	s.Use(middleware.RateLimitMiddleware(*rateLimit, *rateBurst))
	s.Use(middleware.RetryMiddleware(logger, 2, 50*time.Millisecond))

	registerDemoHandlers(s, logger)

	if *certFile != "" && *keyFile != "" {
		err = s.ListenTLS(*addr, *certFile, *keyFile)
	} else {
		err = s.Listen(*addr)
	}
	if err != nil {
		logger.Fatal("listen failed", zap.Error(err))
	}

	advertise := *advertiseAddr
	if advertise == "" {
		advertise = s.Addr()
	}

	var reg registry.Registry
	if *etcdEndpoints != "" {
		reg, err = registry.NewEtcdRegistry(splitEndpoints(*etcdEndpoints))
		if err != nil {
			logger.Fatal("etcd registry setup failed", zap.Error(err))
		}
	}

	go func() {
		if err := s.Serve(*serviceName, advertise, reg); err != nil {
			logger.Error("serve stopped", zap.Error(err))
		}
	}()
	logger.Info("relayd listening", zap.String("addr", s.Addr()), zap.String("service", *serviceName))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down")
	if err := s.Shutdown(10 * time.Second); err != nil {
		logger.Warn("shutdown did not complete cleanly", zap.Error(err))
	}
}

func splitEndpoints(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
