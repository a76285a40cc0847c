package session

import (
	"time"

	"go.uber.org/zap"

	"relaygo/envelope"
	"relaygo/frame"
	"relaygo/transport"
)

// receiveLoop blocks on ReadFrame, routing every frame that arrives on t.
// Exactly one receiveLoop runs per Transport instance; reads on a
// connection must be sequential to correctly parse frame boundaries
//
func (s *ClientSession) receiveLoop(t transport.Transport) {
	defer s.wg.Done()
	for {
		f, err := t.ReadFrame()
		if err != nil {
			s.onDisconnect(err)
			return
		}
		s.lastActivity.Store(time.Now().UnixNano())
		s.dispatchFrame(f)
	}
}

func (s *ClientSession) dispatchFrame(f *frame.Frame) {
	switch f.Header.ReqType {
	case frame.RpcResponse:
		s.handleResponse(f)
	case frame.PublishRequest:
		s.handlePublish(f)
	case frame.Heartbeat:
		// Fire-and-forget: a Heartbeat frame never carries a response
		// Receiving one only resets the
		// dead-connection clock, already done in receiveLoop above.
	default:
		s.logger.Error("unknown frame type, closing connection", zap.Uint8("reqType", uint8(f.Header.ReqType)))
		s.mu.Lock()
		t := s.transport
		s.mu.Unlock()
		if t != nil {
			t.Close()
		}
	}
}

func (s *ClientSession) handleResponse(f *frame.Frame) {
	w, ok := s.reqTable.Remove(f.Header.ReqID)
	if !ok {
		// Late response after timeout/cancel, or a response for an id we
		// never issued: drop.
		return
	}

	var resp envelope.ResponseEnvelope
	if err := s.codec.Unpack(f.Body, &resp); err != nil {
		w.resolve(Result{Err: err})
		return
	}

	if resp.Status != envelope.StatusOK {
		var msg string
		_ = s.codec.Unpack(resp.Payload, &msg)
		w.resolve(Result{Err: &ServerError{Message: msg}})
		return
	}
	w.resolve(Result{Body: resp.Payload})
}

func (s *ClientSession) handlePublish(f *frame.Frame) {
	var pub envelope.PublishEnvelope
	if err := s.codec.Unpack(f.Body, &pub); err != nil {
		s.logger.Warn("failed to decode publish frame", zap.Error(err))
		return
	}
	cb := s.subTable.lookup(pub.Key, pub.Token)
	if cb == nil {
		return
	}
	cb(pub.Payload)
}
