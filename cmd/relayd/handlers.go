package main

import (
	"os"
	"strings"

	"go.uber.org/zap"

	"relaygo/server"
)

// person mirrors the reference implementation's demo struct, exercising
// struct-arg and struct-return handler shapes.
type person struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Age  int    `json:"age"`
}

// registerDemoHandlers wires the same handler roster as the reference
// implementation's server/main.cpp, translated to relaygo's sync/async
// handler shapes. None of this lives in the server package: the
// framework stays free of example handler bodies.
func registerDemoHandlers(s *server.Server, logger *zap.Logger) {
	s.Handle("echo", func(ctx *server.ConnectionContext, src string) (string, error) {
		return src, nil
	})

	s.Handle("add", func(ctx *server.ConnectionContext, a, b int) (int, error) {
		return a + b, nil
	})

	s.Handle("translate", func(ctx *server.ConnectionContext, original string) (string, error) {
		return strings.ToUpper(original), nil
	})

	s.Handle("hello", func(ctx *server.ConnectionContext, str string) (string, error) {
		return str, nil
	})

	s.Handle("get_person", func(ctx *server.ConnectionContext) (person, error) {
		return person{ID: 1, Name: "tom", Age: 20}, nil
	})

	s.Handle("get_person_name", func(ctx *server.ConnectionContext, p person) (string, error) {
		return p.Name, nil
	})

	// async_echo answers from a separate goroutine, holding onto reqID
	// after the handler returns the way the reference implementation's
	// detached std::thread does.
	s.HandleAsync("async_echo", func(ctx *server.ConnectionContext, reqID uint64, src string) {
		go func() {
			if err := ctx.PackAndRespond(reqID, src); err != nil {
				logger.Warn("async_echo response failed", zap.Error(err))
			}
		}()
	})

	s.Handle("upload", func(ctx *server.ConnectionContext, filename string, content []byte) (bool, error) {
		logger.Info("upload", zap.String("filename", filename), zap.Int("bytes", len(content)))
		if err := os.WriteFile(filename, content, 0o644); err != nil {
			return false, err
		}
		return true, nil
	})

	s.Handle("download", func(ctx *server.ConnectionContext, filename string) ([]byte, error) {
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
		logger.Info("download", zap.String("filename", filename), zap.Int("bytes", len(data)))
		return data, nil
	})

	// publish/publish_by_token expose the broker to any connected client,
	// not just a server-internal API, matching the reference's lambda
	// handlers that forward straight into rpc_server::publish(_by_token).
	s.Handle("publish", func(ctx *server.ConnectionContext, key, val string) (bool, error) {
		ctx.Broker().Publish(key, []byte(val))
		return true, nil
	})

	s.Handle("publish_by_token", func(ctx *server.ConnectionContext, key, token, val string) (bool, error) {
		ctx.Broker().PublishByToken(key, token, []byte(val))
		return true, nil
	})

	s.Handle("get_token_list", func(ctx *server.ConnectionContext) ([]string, error) {
		return ctx.Broker().GetTokenList(), nil
	})
}
