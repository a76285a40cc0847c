package broker

import (
	"errors"
	"testing"
)

func TestPublishFanOutToAllSubscribers(t *testing.T) {
	b := New(nil)
	var gotA, gotB []byte
	b.Subscribe("news", "", "connA", func(key, token string, payload []byte) error {
		gotA = payload
		return nil
	})
	b.Subscribe("news", "", "connB", func(key, token string, payload []byte) error {
		gotB = payload
		return nil
	})

	b.Publish("news", []byte("hello"))

	if string(gotA) != "hello" || string(gotB) != "hello" {
		t.Fatalf("expected both subscribers to receive, got %q %q", gotA, gotB)
	}
}

func TestPublishByTokenOnlyMatchesToken(t *testing.T) {
	b := New(nil)
	var gotVIP, gotOther []byte
	b.Subscribe("alerts", "vip", "connA", func(key, token string, payload []byte) error {
		gotVIP = payload
		return nil
	})
	b.Subscribe("alerts", "other", "connB", func(key, token string, payload []byte) error {
		gotOther = payload
		return nil
	})

	b.PublishByToken("alerts", "vip", []byte("urgent"))

	if string(gotVIP) != "urgent" {
		t.Fatalf("expected vip subscriber to receive, got %q", gotVIP)
	}
	if gotOther != nil {
		t.Fatalf("expected other-token subscriber untouched, got %q", gotOther)
	}
}

func TestPublishByTokenNeverMatchesNoTokenSubscribers(t *testing.T) {
	b := New(nil)
	called := false
	b.Subscribe("alerts", "", "connA", func(key, token string, payload []byte) error {
		called = true
		return nil
	})

	b.PublishByToken("alerts", "", []byte("x"))

	if called {
		t.Fatal("empty-token publish must not match no-token subscribers")
	}
}

func TestRemoveConnectionPurgesAllTopics(t *testing.T) {
	b := New(nil)
	called := false
	b.Subscribe("a", "", "connX", func(key, token string, payload []byte) error {
		called = true
		return nil
	})
	b.Subscribe("b", "", "connX", func(key, token string, payload []byte) error {
		called = true
		return nil
	})

	b.RemoveConnection("connX")
	b.Publish("a", []byte("x"))
	b.Publish("b", []byte("x"))

	if called {
		t.Fatal("expected no delivery after RemoveConnection")
	}
}

func TestPublishDropsFailingSenderWithoutPanicking(t *testing.T) {
	b := New(nil)
	delivered := false
	b.Subscribe("x", "", "connA", func(key, token string, payload []byte) error {
		return errors.New("queue full")
	})
	b.Subscribe("x", "", "connB", func(key, token string, payload []byte) error {
		delivered = true
		return nil
	})

	b.Publish("x", []byte("y"))

	if !delivered {
		t.Fatal("a failing sender must not prevent delivery to other subscribers")
	}
}

func TestGetTokenListUnion(t *testing.T) {
	b := New(nil)
	b.Subscribe("a", "t1", "c1", func(string, string, []byte) error { return nil })
	b.Subscribe("b", "t2", "c2", func(string, string, []byte) error { return nil })
	b.Subscribe("c", "", "c3", func(string, string, []byte) error { return nil })

	tokens := b.GetTokenList()
	if len(tokens) != 2 {
		t.Fatalf("expected 2 tokens, got %v", tokens)
	}
	seen := map[string]bool{}
	for _, tk := range tokens {
		seen[tk] = true
	}
	if !seen["t1"] || !seen["t2"] {
		t.Fatalf("expected t1 and t2, got %v", tokens)
	}
}
