package session

import (
	"net"
	"testing"
	"time"

	"relaygo/codec"
	"relaygo/envelope"
	"relaygo/frame"
	"relaygo/transport"
)

// fakeServer is a minimal hand-rolled server used only to exercise
// ClientSession without depending on the server package.
type fakeServer struct {
	ln net.Listener
	c  codec.Codec
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	ln, err := transport.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	return &fakeServer{ln: ln, c: &codec.JSONCodec{}}
}

func (fs *fakeServer) addr() string {
	return fs.ln.Addr().(*net.TCPAddr).IP.String()
}

func (fs *fakeServer) port() int {
	return fs.ln.Addr().(*net.TCPAddr).Port
}

// serveEcho accepts one connection and echoes every RpcRequest body's sole
// string argument back as the response payload, after delay.
func (fs *fakeServer) serveEcho(t *testing.T, delay time.Duration) {
	t.Helper()
	ln := fs.ln.(*transport.Listener)
	go func() {
		tr, err := ln.Accept()
		if err != nil {
			return
		}
		defer tr.Close()
		for {
			f, err := tr.ReadFrame()
			if err != nil {
				return
			}
			if f.Header.ReqType == frame.Heartbeat {
				continue
			}
			var req envelope.RequestEnvelope
			if err := fs.c.Unpack(f.Body, &req); err != nil {
				return
			}
			var args []string
			fs.c.Unpack(req.Args, &args)

			reqID := f.Header.ReqID
			go func() {
				if delay > 0 {
					time.Sleep(delay)
				}
				payload, _ := fs.c.Pack(args[0])
				body, _ := fs.c.Pack(&envelope.ResponseEnvelope{Status: envelope.StatusOK, Payload: payload})
				tr.WriteFrame(frame.Header{ReqType: frame.RpcResponse, ReqID: reqID}, body)
			}()
		}
	}()
}

func TestCallEchoRoundTrip(t *testing.T) {
	fs := newFakeServer(t)
	defer fs.ln.Close()
	fs.serveEcho(t, 0)

	s := New(&codec.JSONCodec{})
	defer s.Close()
	if err := s.Connect(fs.addr(), fs.port(), false, time.Second); err != nil {
		t.Fatalf("connect: %v", err)
	}

	got, err := Call[string](s, "echo", "abc")
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if got != "abc" {
		t.Fatalf("expect abc, got %q", got)
	}
}

func TestCallTimeoutThenLateResponseDiscarded(t *testing.T) {
	fs := newFakeServer(t)
	defer fs.ln.Close()
	fs.serveEcho(t, 200*time.Millisecond)

	s := New(&codec.JSONCodec{})
	defer s.Close()
	if err := s.Connect(fs.addr(), fs.port(), false, time.Second); err != nil {
		t.Fatalf("connect: %v", err)
	}

	_, err := CallTimeout[string](s, 50*time.Millisecond, "slow_echo", "x")
	if err != ErrTimeout {
		t.Fatalf("expect ErrTimeout, got %v", err)
	}

	// A fresh call on the same session should not receive the first
	// call's late response.
	got, err := CallTimeout[string](s, time.Second, "slow_echo", "x")
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if got != "x" {
		t.Fatalf("expect x, got %q", got)
	}
}

func TestAsyncCallFuture(t *testing.T) {
	fs := newFakeServer(t)
	defer fs.ln.Close()
	fs.serveEcho(t, 50*time.Millisecond)

	s := New(&codec.JSONCodec{})
	defer s.Close()
	if err := s.Connect(fs.addr(), fs.port(), false, time.Second); err != nil {
		t.Fatalf("connect: %v", err)
	}

	f := s.AsyncCallFuture("async_echo", time.Second, "p")
	got, err := FutureAs[string](f)
	if err != nil {
		t.Fatalf("future: %v", err)
	}
	if got != "p" {
		t.Fatalf("expect p, got %q", got)
	}
}

func TestAsyncCallCallback(t *testing.T) {
	fs := newFakeServer(t)
	defer fs.ln.Close()
	fs.serveEcho(t, 0)

	s := New(&codec.JSONCodec{})
	defer s.Close()
	if err := s.Connect(fs.addr(), fs.port(), false, time.Second); err != nil {
		t.Fatalf("connect: %v", err)
	}

	done := make(chan struct{})
	var got string
	var cbErr error
	s.AsyncCallCallback("echo", time.Second, func(r RawResult, err error) {
		cbErr = err
		if err == nil {
			r.As(&got)
		}
		close(done)
	}, "cb")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("callback never fired")
	}
	if cbErr != nil {
		t.Fatalf("callback error: %v", cbErr)
	}
	if got != "cb" {
		t.Fatalf("expect cb, got %q", got)
	}
}

func TestCloseFailsOutstandingWaiters(t *testing.T) {
	fs := newFakeServer(t)
	defer fs.ln.Close()
	fs.serveEcho(t, 5*time.Second) // never resolves before Close

	s := New(&codec.JSONCodec{})
	if err := s.Connect(fs.addr(), fs.port(), false, time.Second); err != nil {
		t.Fatalf("connect: %v", err)
	}

	resultCh := make(chan error, 1)
	go func() {
		_, err := CallTimeout[string](s, 0, "slow", "x")
		resultCh <- err
	}()

	time.Sleep(50 * time.Millisecond) // let the call register its waiter
	s.Close()

	select {
	case err := <-resultCh:
		if err != ErrConnectionClosed {
			t.Fatalf("expect ErrConnectionClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("call never resolved after Close")
	}
}

// subscribingFakeServer accepts a sequence of connections on one listener
// (simulating a server that's still up when the client's TCP connection to
// it drops) and, for each one, reports every SubscribeRequest it sees and
// lets the test publish back over the current connection.
type subscribingFakeServer struct {
	ln   net.Listener
	c    codec.Codec
	subs chan subKey // one entry per SubscribeRequest received, any connection
	tr   chan transport.Transport
}

func newSubscribingFakeServer(t *testing.T) *subscribingFakeServer {
	t.Helper()
	ln, err := transport.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	return &subscribingFakeServer{
		ln:   ln,
		c:    &codec.JSONCodec{},
		subs: make(chan subKey, 8),
		tr:   make(chan transport.Transport, 8),
	}
}

func (fs *subscribingFakeServer) addr() string { return fs.ln.Addr().(*net.TCPAddr).IP.String() }
func (fs *subscribingFakeServer) port() int    { return fs.ln.Addr().(*net.TCPAddr).Port }

// acceptConnections accepts n connections in order, handing each accepted
// transport to the test over fs.tr, and reporting every SubscribeRequest it
// reads on fs.subs, until the connection closes.
func (fs *subscribingFakeServer) acceptConnections(n int) {
	go func() {
		for i := 0; i < n; i++ {
			tr, err := fs.ln.(*transport.Listener).Accept()
			if err != nil {
				return
			}
			fs.tr <- tr
			go func(tr transport.Transport) {
				for {
					f, err := tr.ReadFrame()
					if err != nil {
						return
					}
					switch f.Header.ReqType {
					case frame.SubscribeRequest:
						var sub envelope.SubscribeEnvelope
						if err := fs.c.Unpack(f.Body, &sub); err == nil {
							fs.subs <- subKey{key: sub.Key, token: sub.Token}
						}
					case frame.Heartbeat:
						continue
					}
				}
			}(tr)
		}
	}()
}

// publish sends a PublishRequest for key/payload over tr, matching the
// wire shape server.Broker.Publish produces.
func (fs *subscribingFakeServer) publish(tr transport.Transport, key string, payload string) error {
	packedPayload, err := fs.c.Pack(payload)
	if err != nil {
		return err
	}
	body, err := fs.c.Pack(&envelope.PublishEnvelope{Key: key, Payload: packedPayload})
	if err != nil {
		return err
	}
	return tr.WriteFrame(frame.Header{ReqType: frame.PublishRequest}, body)
}

// TestReconnectReplaysSubscriptions forces the live connection closed,
// lets auto-reconnect bring up a new one, and asserts the session replays
// its subscription on the new connection and a publish sent afterward
// still reaches the original callback.
func TestReconnectReplaysSubscriptions(t *testing.T) {
	fs := newSubscribingFakeServer(t)
	defer fs.ln.Close()
	fs.acceptConnections(2)

	s := New(&codec.JSONCodec{},
		WithReconnectBackoff(10*time.Millisecond, 50*time.Millisecond))
	defer s.Close()
	s.EnableAutoReconnect()

	if err := s.Connect(fs.addr(), fs.port(), false, time.Second); err != nil {
		t.Fatalf("connect: %v", err)
	}

	var firstConn transport.Transport
	select {
	case firstConn = <-fs.tr:
	case <-time.After(time.Second):
		t.Fatal("server never accepted the first connection")
	}

	received := make(chan string, 1)
	if err := s.Subscribe("news", func(payload []byte) {
		var msg string
		_ = s.codec.Unpack(payload, &msg)
		received <- msg
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	select {
	case k := <-fs.subs:
		if k.key != "news" {
			t.Fatalf("expect subscribe for news, got %q", k.key)
		}
	case <-time.After(time.Second):
		t.Fatal("server never saw the initial SubscribeRequest")
	}

	// Force the connection closed; auto-reconnect should bring up a new
	// one and replay the subscription without the caller re-subscribing.
	firstConn.Close()

	var secondConn transport.Transport
	select {
	case secondConn = <-fs.tr:
	case <-time.After(2 * time.Second):
		t.Fatal("client never reconnected")
	}

	select {
	case k := <-fs.subs:
		if k.key != "news" {
			t.Fatalf("expect replayed subscribe for news, got %q", k.key)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscription was never replayed after reconnect")
	}

	if err := fs.publish(secondConn, "news", "hello-after-reconnect"); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case msg := <-received:
		if msg != "hello-after-reconnect" {
			t.Fatalf("expect hello-after-reconnect, got %q", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("publish after reconnect never reached the subscriber callback")
	}
}
