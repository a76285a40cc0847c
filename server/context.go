package server

import (
	"sync"
	"time"

	"relaygo/broker"
	"relaygo/codec"
	"relaygo/envelope"
	"relaygo/frame"
	"relaygo/transport"
)

// publishWriteTimeout bounds how long a connection's publish writer will
// block on a single WriteFrame before giving up on that recipient.
const publishWriteTimeout = 5 * time.Second

// publishQueueSize is the bounded queue depth behind each connection's
// publish writer. Once it's full, broker.Sender drops the publication to
// this connection instead of blocking the publisher.
const publishQueueSize = 64

type outgoingPublish struct {
	header frame.Header
	body   []byte
}

// ConnectionContext is handed to every registered handler. It carries the
// connection's identity and gives async handlers a way to respond later,
// after the dispatcher has already moved on to the next request — the
// weak-reference pattern: the context outlives any
// single request but must never keep a closed connection's resources
// pinned beyond what the transport itself already holds.
type ConnectionContext struct {
	connID  string
	t       transport.Transport
	writeMu *sync.Mutex
	codec   codec.Codec
	broker  *broker.Broker

	pubCh   chan outgoingPublish
	pubDone chan struct{}
}

func newConnectionContext(connID string, t transport.Transport, writeMu *sync.Mutex, c codec.Codec, b *broker.Broker) *ConnectionContext {
	ctx := &ConnectionContext{
		connID:  connID,
		t:       t,
		writeMu: writeMu,
		codec:   c,
		broker:  b,
		pubCh:   make(chan outgoingPublish, publishQueueSize),
		pubDone: make(chan struct{}),
	}
	go ctx.publishWriterLoop()
	return ctx
}

// close stops this connection's publish writer goroutine. Called once the
// connection's read loop exits.
func (c *ConnectionContext) close() {
	close(c.pubDone)
}

// publishWriterLoop drains pubCh on a dedicated goroutine, so delivering a
// publication to this connection never runs on another connection's read
// loop and never blocks past publishWriteTimeout on a peer that accepted
// the handshake but stopped draining its receive buffer.
func (c *ConnectionContext) publishWriterLoop() {
	for {
		select {
		case <-c.pubDone:
			return
		case out := <-c.pubCh:
			c.writeMu.Lock()
			c.t.SetWriteDeadline(time.Now().Add(publishWriteTimeout))
			err := c.t.WriteFrame(out.header, out.body)
			c.t.SetWriteDeadline(time.Time{})
			c.writeMu.Unlock()
			if err != nil {
				return // wedged or closed; the read loop will notice and clean up
			}
		}
	}
}

// enqueuePublish hands a publish frame to this connection's writer without
// blocking the caller. Returns false if the queue is already full, meaning
// broker.deliver should drop this recipient's copy rather than wait.
func (c *ConnectionContext) enqueuePublish(h frame.Header, body []byte) bool {
	select {
	case c.pubCh <- outgoingPublish{header: h, body: body}:
		return true
	default:
		return false
	}
}

// ConnID identifies the underlying connection, stable for its lifetime.
func (c *ConnectionContext) ConnID() string { return c.connID }

// Broker exposes the server-wide pub/sub broker so handlers can publish
// from within a request (e.g. a "publish" RPC method).
func (c *ConnectionContext) Broker() *broker.Broker { return c.broker }

// PackAndRespond encodes value with the connection's codec and writes it
// back as a successful RpcResponse for reqID. Sync handlers never need to
// call this directly — the dispatcher does it for them — but async
// handlers call it once, whenever their deferred work completes
// (the response for an async request may be produced on
// any goroutine, at any later time, after the handler itself returns").
func (c *ConnectionContext) PackAndRespond(reqID uint64, value any) error {
	payload, err := c.codec.Pack(value)
	if err != nil {
		return c.RespondError(reqID, err.Error())
	}
	return c.writeResponse(reqID, envelope.StatusOK, payload)
}

// RespondError writes a failed RpcResponse carrying msg as the payload.
func (c *ConnectionContext) RespondError(reqID uint64, msg string) error {
	payload, _ := c.codec.Pack(msg)
	return c.writeResponse(reqID, envelope.StatusError, payload)
}

func (c *ConnectionContext) writeResponse(reqID uint64, status byte, payload []byte) error {
	body, err := c.codec.Pack(&envelope.ResponseEnvelope{Status: status, Payload: payload})
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.t.WriteFrame(frame.Header{ReqType: frame.RpcResponse, ReqID: reqID}, body)
}
