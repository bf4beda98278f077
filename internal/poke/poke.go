// Package poke carries change notifications. A poke is content-free: it
// tells a listener that something on a channel changed and it should
// re-pull. Delivery is best effort; listeners must never treat pokes as
// the source of truth.
package poke

import (
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
)

// Poker announces a change on a channel. Channel names are arbitrary
// strings; the sync core uses "list/<id>" and "user/<id>".
type Poker interface {
	Poke(channel string)
}

// NopPoker discards pokes.
type NopPoker struct{}

func (NopPoker) Poke(string) {}

// subscriberBuffer bounds per-subscriber pending pokes; beyond it, pokes
// for a slow subscriber are dropped. The subscriber catches up on its
// next pull anyway.
const subscriberBuffer = 16

type subscriber struct {
	id string
	ch chan string
}

// Hub is an in-process fan-out Poker. Listeners subscribe to a set of
// channels and receive the channel name of every poke on any of them.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[string]*subscriber // channel -> subscriber id -> subscriber
	lg   log.Logger
}

func NewHub(lg log.Logger) *Hub {
	if lg == nil {
		lg = log.NewNopLogger()
	}
	return &Hub{
		subs: map[string]map[string]*subscriber{},
		lg:   lg,
	}
}

// Poke wakes every subscriber of channel. It never blocks.
func (h *Hub) Poke(channel string) {
	if channel == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs[channel] {
		select {
		case sub.ch <- channel:
		default:
			level.Debug(h.lg).Log("msg", "dropping poke for slow subscriber", "channel", channel, "subscriber", sub.id)
		}
	}
}

// Subscribe registers a listener for the given channels. The returned
// cancel func must be called when the listener goes away.
func (h *Hub) Subscribe(channels []string) (<-chan string, func()) {
	sub := &subscriber{
		id: uuid.NewString(),
		ch: make(chan string, subscriberBuffer),
	}
	h.mu.Lock()
	for _, channel := range channels {
		if channel == "" {
			continue
		}
		if h.subs[channel] == nil {
			h.subs[channel] = map[string]*subscriber{}
		}
		h.subs[channel][sub.id] = sub
	}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		for _, channel := range channels {
			delete(h.subs[channel], sub.id)
			if len(h.subs[channel]) == 0 {
				delete(h.subs, channel)
			}
		}
	}
	return sub.ch, cancel
}

// Subscribers reports how many listeners a channel currently has.
func (h *Hub) Subscribers(channel string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[channel])
}
