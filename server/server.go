// Package server implements relaygo's listening side: service
// registration, a worker-pool dispatcher, connection lifecycle, and the
// pub/sub broker wiring.
// package (Register/Serve/Use/Shutdown) while generalizing its
// reflection-based dispatch and fixed func(*Args, *Reply) error service
// methods to heterogeneous sync/async handler signatures.
package server

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	uuid "github.com/hashicorp/go-uuid"
	"go.uber.org/zap"

	"relaygo/broker"
	"relaygo/codec"
	"relaygo/envelope"
	"relaygo/frame"
	"relaygo/middleware"
	"relaygo/registry"
	"relaygo/transport"
)

// Option configures a Server at construction time.
type Option func(*Server)

// WithLogger installs a zap.Logger. The default is zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithCodec selects the wire codec used to decode requests and encode
// responses. The default is JSON.
func WithCodec(c codec.Codec) Option {
	return func(s *Server) { s.codec = c }
}

// WithWorkers overrides the dispatcher's worker pool size. The default
// is runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(s *Server) { s.workers = n }
}

// Server accepts connections, decodes RpcRequest/SubscribeRequest/
// PublishRequest frames, and dispatches them to registered handlers or
// the broker.
type Server struct {
	registryTbl   *HandlerRegistry
	dispatcher    *dispatcher
	broker        *broker.Broker
	codec         codec.Codec
	workers       int
	middlewares   []middleware.Middleware
	logger        *zap.Logger
	listener      *transport.Listener
	wg            sync.WaitGroup
	shutdown      atomic.Bool
	discovery     registry.Registry
	advertiseAddr string
	serviceName   string
}

// New creates a Server ready for handler registration.
func New(opts ...Option) *Server {
	s := &Server{
		registryTbl: newHandlerRegistry(),
		codec:       codec.Get(codec.TypeJSON),
		logger:      zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	s.broker = broker.New(s.logger)
	return s
}

// Use registers a middleware, applied to every sync RPC handler in
// registration order, using the same onion-model chain the dispatcher
// already wraps its terminal handler in.
func (s *Server) Use(mw middleware.Middleware) {
	s.middlewares = append(s.middlewares, mw)
}

// Handle registers a synchronous handler: func(*ConnectionContext, A1,
// A2, ...) (R, error). The dispatcher packs R and writes the response
// itself once the handler returns.
func (s *Server) Handle(method string, fn any) error {
	return s.registryTbl.registerSync(method, fn)
}

// HandleAsync registers an async handler: func(*ConnectionContext, uint64,
// A1, A2, ...) with no return values, where the uint64 is the request id
// injected by the dispatcher. The handler owns the request id and
// must call ConnectionContext.PackAndRespond itself, from any goroutine,
// at any later time.
func (s *Server) HandleAsync(method string, fn any) error {
	return s.registryTbl.registerAsync(method, fn)
}

// Broker exposes the pub/sub broker so a handler outside the server
// package (e.g. an admin endpoint) can publish directly.
func (s *Server) Broker() *broker.Broker { return s.broker }

// Listen binds a plain TCP listener at address without accepting
// connections yet. Split from Serve, net/http.Server style, so callers
// that bind an ephemeral port (":0") can read back the actual address
// via Addr before the accept loop starts.
func (s *Server) Listen(address string) error {
	ln, err := transport.Listen("tcp", address)
	if err != nil {
		return err
	}
	s.listener = ln
	return nil
}

// ListenTLS is Listen's TLS counterpart, using a certificate/key pair
// instead of a TLSConfigFunc, matching transport.ListenTLS.
func (s *Server) ListenTLS(address, certPath, keyPath string) error {
	ln, err := transport.ListenTLS("tcp", address, certPath, keyPath)
	if err != nil {
		return err
	}
	s.listener = ln
	return nil
}

// Addr returns the bound listener's address. Only meaningful after
// Listen/ListenTLS has succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Serve optionally self-registers in reg under serviceName/advertiseAddr
// (pass reg == nil to skip discovery) and runs the accept loop until
// Shutdown is called. Listen or ListenTLS must be called first.
func (s *Server) Serve(serviceName, advertiseAddr string, reg registry.Registry) error {
	if s.listener == nil {
		return fmt.Errorf("relaygo: Serve called before Listen")
	}
	ln := s.listener
	s.dispatcher = newDispatcher(s.registryTbl, s.codec, s.middlewares, s.workers)
	s.serviceName = serviceName
	s.advertiseAddr = advertiseAddr

	if reg != nil {
		s.discovery = reg
		if err := reg.Register(serviceName, registry.ServiceInstance{Addr: advertiseAddr}, 10); err != nil {
			s.logger.Warn("service registration failed", zap.Error(err))
		}
	}

	s.logger.Info("serving", zap.String("addr", ln.Addr().String()))
	for {
		t, err := ln.Accept()
		if err != nil {
			if s.shutdown.Load() {
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go s.handleConn(t)
	}
}

func (s *Server) handleConn(t transport.Transport) {
	defer s.wg.Done()
	defer t.Close()

	connID, err := uuid.GenerateUUID()
	if err != nil {
		connID = t.RemoteAddr() + "-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	writeMu := &sync.Mutex{}
	ctx := newConnectionContext(connID, t, writeMu, s.codec, s.broker)

	defer ctx.close()
	defer s.broker.RemoveConnection(connID)

	for {
		f, err := t.ReadFrame()
		if err != nil {
			return
		}
		switch f.Header.ReqType {
		case frame.Heartbeat:
			continue
		case frame.RpcRequest:
			var req envelope.RequestEnvelope
			if err := s.codec.Unpack(f.Body, &req); err != nil {
				s.logger.Warn("malformed request", zap.String("conn", connID), zap.Error(err))
				continue
			}
			s.dispatcher.submit(job{ctx: ctx, reqID: f.Header.ReqID, req: req})
		case frame.SubscribeRequest:
			s.handleSubscribe(ctx, f)
		case frame.PublishRequest:
			s.dispatcher.submitFunc(func() { s.handlePublish(f) })
		default:
			s.logger.Warn("unexpected frame type", zap.String("type", f.Header.ReqType.String()))
		}
	}
}

func (s *Server) handleSubscribe(ctx *ConnectionContext, f *frame.Frame) {
	var sub envelope.SubscribeEnvelope
	if err := s.codec.Unpack(f.Body, &sub); err != nil {
		return
	}
	s.broker.Subscribe(sub.Key, sub.Token, ctx.connID, func(key, token string, payload []byte) error {
		body, err := s.codec.Pack(&envelope.PublishEnvelope{Key: key, Token: token, Payload: payload})
		if err != nil {
			return err
		}
		if !ctx.enqueuePublish(frame.Header{ReqType: frame.PublishRequest}, body) {
			return fmt.Errorf("server: publish queue full for conn %s", ctx.connID)
		}
		return nil
	})
}

func (s *Server) handlePublish(f *frame.Frame) {
	var pub envelope.PublishEnvelope
	if err := s.codec.Unpack(f.Body, &pub); err != nil {
		return
	}
	if pub.Token != "" {
		s.broker.PublishByToken(pub.Key, pub.Token, pub.Payload)
	} else {
		s.broker.Publish(pub.Key, pub.Payload)
	}
}

// Shutdown deregisters from discovery, stops accepting new connections,
// and waits up to timeout for in-flight connections to drain, mirroring
// this ordering deliberately: deregister before close, so clients
// stop routing new work here before the listener actually stops).
func (s *Server) Shutdown(timeout time.Duration) error {
	if s.discovery != nil {
		if err := s.discovery.Deregister(s.serviceName, s.advertiseAddr); err != nil {
			s.logger.Warn("deregister failed", zap.Error(err))
		}
	}

	s.shutdown.Store(true)
	if s.listener != nil {
		s.listener.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		if s.dispatcher != nil {
			s.dispatcher.close()
		}
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("relaygo: timeout waiting for connections to drain")
	}
}
