package core

import "sync"

// Listener receives change events. It must not block for long: listeners
// run synchronously on the goroutine that committed the change.
type Listener func(ChangeEvent)

// Hub fans change events out to subscribers.
type Hub struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[int]Listener
	order     []int
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{listeners: make(map[int]Listener)}
}

// Subscribe registers l and returns a function that removes it.
func (h *Hub) Subscribe(l Listener) (unsubscribe func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	h.listeners[id] = l
	h.order = append(h.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.listeners, id)
			for i, v := range h.order {
				if v == id {
					h.order = append(h.order[:i:i], h.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish delivers e to every listener in subscription order.
func (h *Hub) Publish(e ChangeEvent) {
	h.mu.RLock()
	ls := make([]Listener, 0, len(h.order))
	for _, id := range h.order {
		ls = append(ls, h.listeners[id])
	}
	h.mu.RUnlock()

	for _, l := range ls {
		l(e)
	}
}

// Publisher is what the stores need from the hub.
type Publisher interface {
	Publish(ChangeEvent)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(ChangeEvent) {}
