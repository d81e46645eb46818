package app

import (
	"sync"

	"cricket-trivia-service/internal/domain"
)

// Hub fans live leaderboard snapshots out to subscribers of a slot.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]map[chan domain.Leaderboard]struct{}
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]map[chan domain.Leaderboard]struct{})}
}

// Subscribe registers a listener for slotID. The caller must invoke the returned
// cancel function to avoid leaks.
func (h *Hub) Subscribe(slotID string) (<-chan domain.Leaderboard, func()) {
	return h.subscribe(slotID, nil)
}

// SubscribeWith is Subscribe with initial queued on the new channel only, ahead of
// any later Publish. Existing subscribers see nothing.
func (h *Hub) SubscribeWith(slotID string, initial domain.Leaderboard) (<-chan domain.Leaderboard, func()) {
	return h.subscribe(slotID, &initial)
}

func (h *Hub) subscribe(slotID string, initial *domain.Leaderboard) (<-chan domain.Leaderboard, func()) {
	ch := make(chan domain.Leaderboard, 8)
	if initial != nil {
		ch <- *initial
	}

	h.mu.Lock()
	subs, ok := h.subscribers[slotID]
	if !ok {
		subs = make(map[chan domain.Leaderboard]struct{})
		h.subscribers[slotID] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs := h.subscribers[slotID]
		if _, ok := subs[ch]; !ok {
			return
		}
		delete(subs, ch)
		close(ch)
		if len(subs) == 0 {
			delete(h.subscribers, slotID)
		}
	}
	return ch, cancel
}

// Publish delivers lb to every subscriber of its slot. A subscriber that has not
// drained its buffer loses its oldest snapshot instead of blocking the publisher.
func (h *Hub) Publish(lb domain.Leaderboard) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers[lb.SlotID] {
		select {
		case ch <- lb:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- lb
		}
	}
}

// Subscribers returns the number of listeners on slotID.
func (h *Hub) Subscribers(slotID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[slotID])
}
