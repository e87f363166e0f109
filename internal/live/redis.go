package live

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"attendsync/internal/metrics"
)

const subscribeTimeout = 5 * time.Second

// RedisHub fans events out through Redis pub/sub so several API replicas
// see each other's writes.
type RedisHub struct {
	client *redis.Client
	prefix string
	log    zerolog.Logger
}

// NewRedisHub creates a hub on client. Channels are prefix+topic.
func NewRedisHub(client *redis.Client, prefix string, logger zerolog.Logger) *RedisHub {
	if prefix == "" {
		prefix = "attendsync:live:"
	}
	return &RedisHub{client: client, prefix: prefix, log: logger.With().Str("component", "live").Logger()}
}

func (h *RedisHub) Publish(ctx context.Context, e Event) error {
	if e.At == 0 {
		e.At = time.Now().UnixMilli()
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return h.client.Publish(ctx, h.prefix+e.Topic, raw).Err()
}

func (h *RedisHub) Subscribe(topic string, fn func(Event)) func() {
	ctx, cancel := context.WithCancel(context.Background())
	ps := h.client.Subscribe(ctx, h.prefix+topic)
	// Events published after Subscribe returns must be delivered.
	confirmCtx, confirmCancel := context.WithTimeout(ctx, subscribeTimeout)
	if _, err := ps.Receive(confirmCtx); err != nil {
		h.log.Warn().Err(err).Str("topic", topic).Msg("subscription not confirmed")
	}
	confirmCancel()
	metrics.LiveSubscribers.Inc()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range ps.Channel() {
			var e Event
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				h.log.Warn().Err(err).Str("channel", msg.Channel).Msg("dropping malformed event")
				continue
			}
			fn(e)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			_ = ps.Close()
			<-done
			metrics.LiveSubscribers.Dec()
		})
	}
}
