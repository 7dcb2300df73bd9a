package game

import (
	"sync"

	"github.com/google/uuid"
)

// Hub fans GameEvents out to every live feed a user has open.
type Hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[uuid.UUID]map[int]chan GameEvent
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uuid.UUID]map[int]chan GameEvent)}
}

// Subscribe registers a feed for the user. The returned cancel func must be
// called once the reader is done; it closes the channel.
func (h *Hub) Subscribe(userID uuid.UUID, buffer int) (<-chan GameEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	ch := make(chan GameEvent, buffer)
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[int]chan GameEvent)
	}
	h.subs[userID][id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[userID], id)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			close(ch)
		})
	}
}

// Publish delivers ev to the user's feeds without blocking.
// A feed whose buffer is full misses the event.
func (h *Hub) Publish(userID uuid.UUID, ev GameEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs[userID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers is the number of open feeds for the user.
func (h *Hub) Subscribers(userID uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[userID])
}
