package session

// Subscribe registers cb for publications on key with no token. Sugar for
// SubscribeToken(key, "", cb), since an empty token is a synonym for "no
// token".
func (s *ClientSession) Subscribe(key string, cb SubscribeCallback) error {
	return s.SubscribeToken(key, "", cb)
}

// SubscribeToken registers cb for publications on key bearing token. The
// same (key, token) pair may be registered only once per session; a
// second registration replaces the callback. Subscriptions are replayed
// automatically after a reconnect.
func (s *ClientSession) SubscribeToken(key, token string, cb SubscribeCallback) error {
	s.subTable.set(key, token, cb)
	if !s.HasConnected() {
		// Recorded for replay on Connect/reconnect; nothing to send yet.
		return nil
	}
	return s.sendSubscribe(key, token)
}
