// Package notify fans session state changes out to connected observers.
package notify

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"shopassist/internal/domain"
	"shopassist/internal/obs"
)

// Notification actions.
const (
	ActionAdd      = "add"
	ActionRemove   = "remove"
	ActionEdit     = "edit"
	ActionCheckout = "checkout"
	ActionDiscount = "discount"
)

// Notification is a tagged state-change event. Only the fields relevant to
// Action are set.
type Notification struct {
	Action      string   `json:"action"`
	Item        any      `json:"item,omitempty"`
	URL         string   `json:"url,omitempty"`
	Discount    *int     `json:"discount,omitempty"`
	FinalAmount *float64 `json:"final_amount,omitempty"`
}

func Added(item domain.CartItem) Notification {
	return Notification{Action: ActionAdd, Item: item}
}

func Removed(description string) Notification {
	return Notification{Action: ActionRemove, Item: description}
}

func Edited(item domain.CartItem) Notification {
	return Notification{Action: ActionEdit, Item: item}
}

func CheckedOut(url string) Notification {
	return Notification{Action: ActionCheckout, URL: url}
}

func Discounted(percent int, finalAmount float64) Notification {
	return Notification{Action: ActionDiscount, Discount: &percent, FinalAmount: &finalAmount}
}

// Subscriber is one registered observer. Messages are delivered on C in
// broadcast order until the subscriber is unregistered, at which point C is
// closed.
type Subscriber struct {
	id      uint64
	C       <-chan []byte
	ch      chan []byte
	dropped atomic.Uint64
}

// Dropped returns how many messages were discarded because the queue was full.
func (s *Subscriber) Dropped() uint64 { return s.dropped.Load() }

// Hub is a registry of observers with bounded, non-blocking delivery.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscriber
	nextID uint64
	buffer int
}

// NewHub creates a Hub whose subscribers queue up to buffer messages each.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 32
	}
	return &Hub{subs: make(map[uint64]*Subscriber), buffer: buffer}
}

func (h *Hub) Register() *Subscriber {
	ch := make(chan []byte, h.buffer)
	h.mu.Lock()
	h.nextID++
	s := &Subscriber{id: h.nextID, C: ch, ch: ch}
	h.subs[s.id] = s
	n := len(h.subs)
	h.mu.Unlock()
	obs.Logger.Debug("observer_registered", "subscriber", s.id, "observers", n)
	return s
}

// Unregister removes s and closes its channel. Calling it more than once is safe.
func (h *Hub) Unregister(s *Subscriber) {
	if s == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s.id]; !ok {
		return
	}
	delete(h.subs, s.id)
	close(s.ch)
	obs.Logger.Debug("observer_unregistered", "subscriber", s.id, "observers", len(h.subs))
}

// Broadcast encodes n and delivers it to every registered observer.
func (h *Hub) Broadcast(n Notification) {
	data, err := json.Marshal(n)
	if err != nil {
		obs.Logger.Error("notification_encode_failed", "action", n.Action, "error", err)
		return
	}
	h.BroadcastRaw(data)
}

// BroadcastRaw delivers msg to every registered observer. A full queue drops
// the message for that observer only.
func (h *Hub) BroadcastRaw(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		select {
		case s.ch <- msg:
		default:
			s.dropped.Add(1)
			obs.Logger.Warn("observer_queue_full", "subscriber", s.id)
		}
	}
}

// Len returns the number of registered observers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
