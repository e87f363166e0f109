package live

import (
	"context"
	"sync"
	"time"

	"attendsync/internal/metrics"
)

// Memory is an in-process hub. Publish calls handlers synchronously.
type Memory struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]func(Event)
}

// NewMemory creates an in-process hub.
func NewMemory() *Memory {
	return &Memory{subs: make(map[string]map[int]func(Event))}
}

func (h *Memory) Publish(_ context.Context, e Event) error {
	if e.At == 0 {
		e.At = time.Now().UnixMilli()
	}
	h.mu.RLock()
	fns := make([]func(Event), 0, len(h.subs[e.Topic]))
	for _, fn := range h.subs[e.Topic] {
		fns = append(fns, fn)
	}
	h.mu.RUnlock()
	for _, fn := range fns {
		fn(e)
	}
	return nil
}

func (h *Memory) Subscribe(topic string, fn func(Event)) func() {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[int]func(Event))
	}
	h.subs[topic][id] = fn
	h.mu.Unlock()
	metrics.LiveSubscribers.Inc()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[topic], id)
			if len(h.subs[topic]) == 0 {
				delete(h.subs, topic)
			}
			h.mu.Unlock()
			metrics.LiveSubscribers.Dec()
		})
	}
}

// Subscribers returns the number of handlers on topic.
func (h *Memory) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}
