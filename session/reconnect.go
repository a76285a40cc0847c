package session

import (
	"math/rand"
	"time"

	"go.uber.org/zap"

	"relaygo/frame"
	"relaygo/transport"
)

// heartbeatLoop sends an empty Heartbeat frame every heartbeatInterval and
// treats the absence of any server activity for 3×heartbeatInterval as a
// dead connection. Exits when t is no longer the session's
// current transport (a reconnect replaced it) or when the session closes.
func (s *ClientSession) heartbeatLoop(t transport.Transport) {
	defer s.wg.Done()

	interval := s.heartbeatInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if !s.isCurrentTransport(t) {
				return
			}

			deadline := time.Duration(3) * interval
			if time.Since(time.Unix(0, s.lastActivity.Load())) > deadline {
				s.logger.Warn("heartbeat: no server activity, treating connection as dead")
				t.Close()
				return
			}

			h := frame.Header{ReqType: frame.Heartbeat, ReqID: 0}
			if err := s.writeFrame(t, h, nil); err != nil {
				s.logger.Warn("heartbeat write failed", zap.Error(err))
				t.Close()
				return
			}
		}
	}
}

func (s *ClientSession) isCurrentTransport(t transport.Transport) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport == t
}

// reconnectLoop attempts to reconnect with a bounded exponential backoff
// (plus jitter) until it succeeds or the session is closed. On success
// it replays every recorded subscription but never
// replays in-flight RPC calls — those already failed with
// ErrConnectionClosed when the connection dropped.
func (s *ClientSession) reconnectLoop() {
	defer s.wg.Done()

	backoff := s.reconnectMin
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		if err := s.dialAndStart(); err != nil {
			s.logger.Warn("reconnect attempt failed", zap.Error(err))
			s.emitError(err)

			jitter := time.Duration(rand.Int63n(int64(backoff) + 1))
			select {
			case <-s.stopCh:
				return
			case <-time.After(backoff + jitter/2):
			}

			backoff *= 2
			if backoff > s.reconnectMax {
				backoff = s.reconnectMax
			}
			continue
		}

		return
	}
}
