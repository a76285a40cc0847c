// Package broker implements relaygo's in-memory, best-effort pub/sub fan-
// out: a topic table and a token table, used by Server's
// publish and publish_by_token operations.
package broker

import (
	"sync"

	uuid "github.com/hashicorp/go-uuid"
	"go.uber.org/zap"
)

// Sender delivers a raw frame body to one connection's write queue. It
// must be non-blocking and best-effort: if the queue is full or the
// connection is closed, the publication to that recipient is dropped
// silently.
type Sender func(key, token string, payload []byte) error

// Subscriber is one connection's subscription to a (key, token) pair.
// Subscriber entries never outlive their connection; RemoveConnection
// purges them from every topic on disconnect.
type Subscriber struct {
	ID     string // go-uuid-generated correlation id, for logging
	ConnID string // the owning connection's id, used to purge on disconnect
	Token  string // empty string means "no token"
	Send   Sender
}

// Broker holds the topic table (key -> subscribers) and the token table
// (the flat union of every token ever subscribed with), surviving beyond
// any one connection's lifetime.
type Broker struct {
	mu     sync.RWMutex
	topics map[string][]*Subscriber
	tokens map[string]struct{}
	logger *zap.Logger
}

// New creates an empty Broker. logger may be nil, in which case a no-op
// logger is used.
func New(logger *zap.Logger) *Broker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broker{
		topics: make(map[string][]*Subscriber),
		tokens: make(map[string]struct{}),
		logger: logger,
	}
}

// Subscribe registers send for publications on key bearing token, owned by
// connID. An empty token means no token.
func (b *Broker) Subscribe(key, token, connID string, send Sender) *Subscriber {
	id, err := uuid.GenerateUUID()
	if err != nil {
		id = connID + ":" + key // fallback, still unique enough for logging
	}
	sub := &Subscriber{ID: id, ConnID: connID, Token: token, Send: send}

	b.mu.Lock()
	b.topics[key] = append(b.topics[key], sub)
	if token != "" {
		b.tokens[token] = struct{}{}
	}
	b.mu.Unlock()

	b.logger.Debug("subscribed", zap.String("key", key), zap.String("token", token), zap.String("conn", connID))
	return sub
}

// RemoveConnection purges every subscription owned by connID from every
// topic. Called when a connection closes.
func (b *Broker) RemoveConnection(connID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for key, subs := range b.topics {
		filtered := subs[:0]
		for _, s := range subs {
			if s.ConnID != connID {
				filtered = append(filtered, s)
			}
		}
		if len(filtered) == 0 {
			delete(b.topics, key)
		} else {
			b.topics[key] = filtered
		}
	}
}

// Publish delivers payload to every subscriber of key, regardless of
// token. Delivery is best-effort and non-blocking: a failing Sender only
// drops that one recipient's copy.
func (b *Broker) Publish(key string, payload []byte) {
	b.deliver(key, "", payload, func(*Subscriber) bool { return true })
}

// PublishByToken delivers payload only to subscribers of key whose token
// equals token. Subscribers without a token are never matched, even when
// token is the empty string (an empty-token publish matches nothing,
// mirroring that an empty-token subscription means "no token" rather than
// "token == \"\"").
func (b *Broker) PublishByToken(key, token string, payload []byte) {
	b.deliver(key, token, payload, func(s *Subscriber) bool { return s.Token == token && token != "" })
}

func (b *Broker) deliver(key, token string, payload []byte, match func(*Subscriber) bool) {
	b.mu.RLock()
	subs := make([]*Subscriber, len(b.topics[key]))
	copy(subs, b.topics[key])
	b.mu.RUnlock()

	for _, s := range subs {
		if !match(s) {
			continue
		}
		if err := s.Send(key, s.Token, payload); err != nil {
			b.logger.Debug("dropped publication", zap.String("key", key), zap.String("conn", s.ConnID), zap.Error(err))
		}
	}
}

// GetTokenList enumerates every token known to the broker (the union over
// all subscribers who supplied one). Iteration order is unspecified.
func (b *Broker) GetTokenList() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.tokens))
	for t := range b.tokens {
		out = append(out, t)
	}
	return out
}
