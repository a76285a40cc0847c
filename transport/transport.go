// Package transport implements the stream layer carrying relaygo frames,
// in a plain TCP and a TLS variant behind one abstraction.
package transport

import (
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"relaygo/frame"
)

// Transport is the capability set relaygo requires: connect, read a
// frame, write a frame, close. Connection establishment is a pair of free
// functions (DialTCP, DialTLS) rather than a method, since only a
// connected Transport satisfies this interface.
type Transport interface {
	ReadFrame() (*frame.Frame, error)
	WriteFrame(h frame.Header, body []byte) error
	Close() error
	RemoteAddr() string

	// SetWriteDeadline bounds the next WriteFrame call. A zero time.Time
	// clears any existing deadline. Lets a writer give up on a peer
	// that accepted the TCP handshake but stopped draining its receive
	// buffer, instead of blocking on Write forever.
	SetWriteDeadline(t time.Time) error
}

// ErrConnectTimeout is returned when a Dial* call's wall-clock timeout
// elapses before the connection (and, for TLS, the handshake) completes.
type ErrConnectTimeout struct {
	Addr string
}

func (e *ErrConnectTimeout) Error() string {
	return fmt.Sprintf("transport: connect to %s timed out", e.Addr)
}

type connTransport struct {
	conn net.Conn
}

func (t *connTransport) ReadFrame() (*frame.Frame, error) {
	return frame.Decode(t.conn)
}

func (t *connTransport) WriteFrame(h frame.Header, body []byte) error {
	return frame.Encode(t.conn, h, body)
}

func (t *connTransport) Close() error {
	return t.conn.Close()
}

func (t *connTransport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}

func (t *connTransport) SetWriteDeadline(deadline time.Time) error {
	return t.conn.SetWriteDeadline(deadline)
}

// NewTransport wraps an already-established net.Conn (plain or TLS) as a
// Transport. Used on the server side, where net.Listener has already done
// the accept (and, for a TLS listener, the handshake).
func NewTransport(conn net.Conn) Transport {
	return &connTransport{conn: conn}
}

// DialTCP opens a plain TCP connection to addr, respecting timeout.
// timeout <= 0 means no deadline.
func DialTCP(addr string, timeout time.Duration) (Transport, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
			return nil, &ErrConnectTimeout{Addr: addr}
		}
		return nil, err
	}
	return &connTransport{conn: conn}, nil
}

// TLSConfigFunc installs verification mode and trust roots on a freshly
// created tls.Config before the handshake, mirroring
// set_tls_context_callback.
type TLSConfigFunc func(*tls.Config)

// DialTLS opens a TCP connection, then performs a TLS handshake over it.
// configure, if non-nil, is invoked once on the tls.Config immediately
// before the handshake.
func DialTLS(addr string, timeout time.Duration, configure TLSConfigFunc) (Transport, error) {
	dialer := &net.Dialer{Timeout: timeout}
	cfg := &tls.Config{}
	if configure != nil {
		configure(cfg)
	}

	conn, err := tls.DialWithDialer(dialer, "tcp", addr, cfg)
	if err != nil {
		if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
			return nil, &ErrConnectTimeout{Addr: addr}
		}
		return nil, err
	}
	return &connTransport{conn: conn}, nil
}

// Listener wraps net.Listener so server.Server can accept plain or TLS
// connections through the same call site.
type Listener struct {
	net.Listener
}

// Listen creates a plain TCP listener.
func Listen(network, address string) (*Listener, error) {
	l, err := net.Listen(network, address)
	if err != nil {
		return nil, err
	}
	return &Listener{Listener: l}, nil
}

// ListenTLS creates a TLS listener using the given certificate/key pair.
// server.Server.ListenTLS passes its (certPath, keyPath) pair through here.
func ListenTLS(network, address, certPath, keyPath string) (*Listener, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("transport: load TLS key pair: %w", err)
	}
	cfg := &tls.Config{Certificates: []tls.Certificate{cert}}

	l, err := tls.Listen(network, address, cfg)
	if err != nil {
		return nil, err
	}
	return &Listener{Listener: l}, nil
}

// Accept blocks until a connection arrives and wraps it as a Transport.
func (l *Listener) Accept() (Transport, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	return NewTransport(conn), nil
}
