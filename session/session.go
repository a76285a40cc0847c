// Package session implements ClientSession: the client-side
// connection state machine, request/response correlation engine, and
// subscribe surface.
package session

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"relaygo/codec"
	"relaygo/envelope"
	"relaygo/frame"
	"relaygo/transport"
)

// DefaultCallTimeout is the sync Call's default per-request deadline when
// none is given.
const DefaultCallTimeout = 5 * time.Second

// DefaultHeartbeatInterval is how often EnableAutoHeartbeat sends an empty
// Heartbeat frame.
const DefaultHeartbeatInterval = 15 * time.Second

// ErrorCallback is invoked on every transport-level error (not per-call
// timeouts).
type ErrorCallback func(error)

// Option configures a ClientSession at construction time.
type Option func(*ClientSession)

// WithLogger installs a structured logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *ClientSession) { s.logger = l }
}

// WithHeartbeatInterval overrides DefaultHeartbeatInterval.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(s *ClientSession) { s.heartbeatInterval = d }
}

// WithReconnectBackoff overrides the min/max reconnect backoff bounds.
func WithReconnectBackoff(min, max time.Duration) Option {
	return func(s *ClientSession) { s.reconnectMin, s.reconnectMax = min, max }
}

// ClientSession owns one Transport, one RequestTable, the reconnect and
// heartbeat background tasks, and the subscribe table.
type ClientSession struct {
	codec codec.Codec

	mu        sync.Mutex
	transport transport.Transport
	connected atomic.Bool
	closed    atomic.Bool

	host   string
	port   int
	useTLS bool
	dialTO time.Duration

	writeMu sync.Mutex

	reqTable *RequestTable
	subTable *subscribeTable

	autoReconnect atomic.Bool
	autoHeartbeat atomic.Bool

	errorCB     atomic.Pointer[ErrorCallback]
	tlsConfigCB atomic.Pointer[transport.TLSConfigFunc]

	heartbeatInterval time.Duration
	reconnectMin      time.Duration
	reconnectMax      time.Duration

	lastActivity atomic.Int64 // unix nanos

	stopCh chan struct{} // closed once, signals background loops to exit
	wg     sync.WaitGroup

	logger *zap.Logger
}

// New creates a ClientSession using codec for argument/return
// serialization. The session is not connected until Connect succeeds.
func New(c codec.Codec, opts ...Option) *ClientSession {
	s := &ClientSession{
		codec:             c,
		reqTable:          NewRequestTable(),
		subTable:          newSubscribeTable(),
		heartbeatInterval: DefaultHeartbeatInterval,
		reconnectMin:      200 * time.Millisecond,
		reconnectMax:      10 * time.Second,
		stopCh:            make(chan struct{}),
		logger:            zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HasConnected observes current connection state without blocking.
func (s *ClientSession) HasConnected() bool {
	return s.connected.Load()
}

// EnableAutoReconnect is a one-shot latch: once set, it applies for the
// session's lifetime.
func (s *ClientSession) EnableAutoReconnect() {
	s.autoReconnect.Store(true)
}

// EnableAutoHeartbeat is a one-shot latch: once set, it applies for the
// session's lifetime and starts the heartbeat loop as soon as connected.
func (s *ClientSession) EnableAutoHeartbeat() {
	s.autoHeartbeat.Store(true)
}

// SetErrorCallback installs fn to be invoked on every transport-level
// error. Not called for per-call timeouts.
func (s *ClientSession) SetErrorCallback(fn ErrorCallback) {
	s.errorCB.Store(&fn)
}

// SetTLSContextCallback installs fn to be invoked once immediately before
// the TLS handshake, letting the caller set verification mode and trust
// roots.
func (s *ClientSession) SetTLSContextCallback(fn transport.TLSConfigFunc) {
	s.tlsConfigCB.Store(&fn)
}

func (s *ClientSession) emitError(err error) {
	if cb := s.errorCB.Load(); cb != nil && *cb != nil {
		(*cb)(err)
	}
}

// Connect blocks the caller until the transport is up or timeout elapses.
// Idempotent if already connected. On success it starts the receive loop
// and, if enabled, the heartbeat loop.
func (s *ClientSession) Connect(host string, port int, useTLS bool, timeout time.Duration) error {
	if s.HasConnected() {
		return nil
	}

	s.host, s.port, s.useTLS, s.dialTO = host, port, useTLS, timeout
	return s.dialAndStart()
}

func (s *ClientSession) dialAndStart() error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)

	var t transport.Transport
	var err error
	if s.useTLS {
		var cfgFn transport.TLSConfigFunc
		if cb := s.tlsConfigCB.Load(); cb != nil {
			cfgFn = *cb
		}
		t, err = transport.DialTLS(addr, s.dialTO, cfgFn)
	} else {
		t, err = transport.DialTCP(addr, s.dialTO)
	}
	if err != nil {
		var te *transport.ErrConnectTimeout
		if errors.As(err, &te) {
			return fmt.Errorf("%w: %w", ErrConnectTimeout, err)
		}
		return fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	s.mu.Lock()
	s.transport = t
	s.mu.Unlock()

	s.connected.Store(true)
	s.lastActivity.Store(time.Now().UnixNano())

	s.mu.Lock()
	closed := s.closed.Load()
	if !closed {
		s.wg.Add(1)
	}
	startHeartbeat := !closed && s.autoHeartbeat.Load()
	if startHeartbeat {
		s.wg.Add(1)
	}
	s.mu.Unlock()
	if closed {
		t.Close()
		return ErrConnectionClosed
	}
	go s.receiveLoop(t)
	if startHeartbeat {
		go s.heartbeatLoop(t)
	}

	s.replaySubscriptions()
	s.logger.Info("session connected", zap.String("addr", addr), zap.Bool("tls", s.useTLS))
	return nil
}

// Close fails all outstanding waiters with ErrConnectionClosed and stops
// reconnect. Safe to call multiple times.
func (s *ClientSession) Close() error {
	// The CAS and every background wg.Add(1) that spawns a
	// receive/heartbeat/reconnect goroutine share s.mu, so a goroutine
	// racing this Close either observes closed==true before adding (and
	// skips the spawn) or adds strictly before this call reaches
	// wg.Wait() below — either way Add never races Wait, which
	// sync.WaitGroup forbids.
	s.mu.Lock()
	alreadyClosed := !s.closed.CompareAndSwap(false, true)
	s.mu.Unlock()
	if alreadyClosed {
		return nil
	}
	close(s.stopCh)
	s.connected.Store(false)

	var errs *multierror.Error
	s.mu.Lock()
	t := s.transport
	s.mu.Unlock()
	if t != nil {
		if err := t.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	s.reqTable.DrainAll(ErrConnectionClosed)
	s.wg.Wait()
	return errs.ErrorOrNil()
}

func (s *ClientSession) currentTransport() (transport.Transport, error) {
	if s.closed.Load() {
		return nil, ErrConnectionClosed
	}
	s.mu.Lock()
	t := s.transport
	s.mu.Unlock()
	if t == nil || !s.HasConnected() {
		return nil, ErrNotConnected
	}
	return t, nil
}

// writeFrame serializes the write path: a single writer per connection
// preserves frame boundaries even when many goroutines issue calls
// concurrently.
func (s *ClientSession) writeFrame(t transport.Transport, h frame.Header, body []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return t.WriteFrame(h, body)
}

// onDisconnect runs once per lost connection: fail every outstanding
// waiter, notify the error callback, and start reconnecting if enabled.
func (s *ClientSession) onDisconnect(cause error) {
	if s.closed.Load() {
		return
	}
	if !s.connected.CompareAndSwap(true, false) {
		return // another goroutine already handled this disconnect
	}

	s.logger.Warn("session disconnected", zap.Error(cause))
	s.emitError(cause)
	s.reqTable.DrainAll(ErrConnectionClosed)

	if s.autoReconnect.Load() {
		s.mu.Lock()
		closed := s.closed.Load()
		if !closed {
			s.wg.Add(1)
		}
		s.mu.Unlock()
		if !closed {
			go s.reconnectLoop()
		}
	}
}

func (s *ClientSession) replaySubscriptions() {
	for _, k := range s.subTable.snapshot() {
		if err := s.sendSubscribe(k.key, k.token); err != nil {
			s.logger.Warn("failed to replay subscription", zap.String("key", k.key), zap.Error(err))
		}
	}
}

func (s *ClientSession) sendSubscribe(key, token string) error {
	t, err := s.currentTransport()
	if err != nil {
		return err
	}
	body, err := s.codec.Pack(&envelope.SubscribeEnvelope{Key: key, Token: token})
	if err != nil {
		return err
	}
	h := frame.Header{ReqType: frame.SubscribeRequest, ReqID: s.reqTable.NextID()}
	return s.writeFrame(t, h, body)
}
