package live

import (
	"context"
	"strings"
)

// Event announces a change to the data behind a topic. Subscribers refetch;
// events carry no payload beyond what changed.
type Event struct {
	Topic string `json:"topic"`
	Kind  string `json:"kind"`
	ID    string `json:"id,omitempty"`
	At    int64  `json:"at"`
}

// Hub fans events out to subscribers of a topic.
type Hub interface {
	Publish(ctx context.Context, e Event) error
	// Subscribe calls fn for every event on topic until the returned func is called.
	Subscribe(topic string, fn func(Event)) (unsubscribe func())
}

// ClassSessionsTopic carries session writes for one class.
func ClassSessionsTopic(classID string) string {
	return "class:" + classID + ":sessions"
}

// FacultyClassesTopic carries class list changes for one faculty account.
func FacultyClassesTopic(email string) string {
	return "faculty:" + strings.ToLower(email) + ":classes"
}

// Signal coalesces events into a buffered channel of size one: a burst of
// events while the consumer is busy produces a single wake-up.
func Signal(hub Hub, topics ...string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	unsubs := make([]func(), 0, len(topics))
	for _, t := range topics {
		unsubs = append(unsubs, hub.Subscribe(t, func(Event) {
			select {
			case ch <- struct{}{}:
			default:
			}
		}))
	}
	return ch, func() {
		for _, u := range unsubs {
			u()
		}
	}
}
