package notify

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
)

const subscriberBuffer = 16

// Hub fans events out to in-process subscribers keyed by user.
type Hub struct {
	mu   sync.RWMutex
	subs map[uuid.UUID][]chan Event
	log  *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{subs: make(map[uuid.UUID][]chan Event), log: log}
}

// Subscribe registers a listener for userID. The returned cancel func must be called once.
func (h *Hub) Subscribe(userID uuid.UUID) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	h.subs[userID] = append(h.subs[userID], ch)
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			list := h.subs[userID]
			if i := slices.Index(list, ch); i >= 0 {
				list = slices.Delete(list, i, i+1)
			}
			if len(list) == 0 {
				delete(h.subs, userID)
			} else {
				h.subs[userID] = list
			}
			close(ch)
		})
	}
}

// Publish delivers ev to every subscriber of every recipient. A full subscriber buffer drops the event.
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, userID := range ev.Recipients {
		for _, ch := range h.subs[userID] {
			select {
			case ch <- ev:
			default:
				h.log.Warn("dropping event for slow subscriber", "user_id", userID, "type", ev.Type)
			}
		}
	}
}
