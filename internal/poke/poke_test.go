package poke

import (
	"testing"
	"time"
)

func receiveWithin(t *testing.T, ch <-chan string, d time.Duration) string {
	t.Helper()
	select {
	case got := <-ch:
		return got
	case <-time.After(d):
		t.Fatalf("timed out waiting for poke")
		return ""
	}
}

func TestHubDeliversToSubscribers(t *testing.T) {
	hub := NewHub(nil)
	ch, cancel := hub.Subscribe([]string{"list/l1", "user/u1"})
	defer cancel()

	hub.Poke("list/l1")
	if got := receiveWithin(t, ch, time.Second); got != "list/l1" {
		t.Fatalf("expected list/l1, got %q", got)
	}

	hub.Poke("user/u1")
	if got := receiveWithin(t, ch, time.Second); got != "user/u1" {
		t.Fatalf("expected user/u1, got %q", got)
	}
}

func TestHubIgnoresOtherChannels(t *testing.T) {
	hub := NewHub(nil)
	ch, cancel := hub.Subscribe([]string{"list/l1"})
	defer cancel()

	hub.Poke("list/other")
	select {
	case got := <-ch:
		t.Fatalf("unexpected poke %q", got)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHubCancelRemovesSubscription(t *testing.T) {
	hub := NewHub(nil)
	_, cancel := hub.Subscribe([]string{"list/l1"})
	if got := hub.Subscribers("list/l1"); got != 1 {
		t.Fatalf("expected 1 subscriber, got %d", got)
	}
	cancel()
	if got := hub.Subscribers("list/l1"); got != 0 {
		t.Fatalf("expected 0 subscribers after cancel, got %d", got)
	}
	// Poking an empty channel must not block or panic.
	hub.Poke("list/l1")
}

func TestHubDropsWhenSubscriberIsSlow(t *testing.T) {
	hub := NewHub(nil)
	ch, cancel := hub.Subscribe([]string{"list/l1"})
	defer cancel()

	// Never reading: the buffer fills, later pokes drop, Poke stays
	// non-blocking.
	for i := 0; i < subscriberBuffer*2; i++ {
		hub.Poke("list/l1")
	}
	for i := 0; i < subscriberBuffer; i++ {
		receiveWithin(t, ch, time.Second)
	}
	select {
	case got := <-ch:
		t.Fatalf("expected overflow pokes dropped, got %q", got)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHubFansOut(t *testing.T) {
	hub := NewHub(nil)
	first, cancelFirst := hub.Subscribe([]string{"user/u1"})
	defer cancelFirst()
	second, cancelSecond := hub.Subscribe([]string{"user/u1"})
	defer cancelSecond()

	hub.Poke("user/u1")
	receiveWithin(t, first, time.Second)
	receiveWithin(t, second, time.Second)
}

func TestNopPoker(t *testing.T) {
	// Just must not panic.
	NopPoker{}.Poke("list/l1")
}
