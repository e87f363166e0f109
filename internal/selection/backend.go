package selection

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"

	"attendsync/internal/attendance"
)

// Memory keeps selections in process.
type Memory struct {
	mu sync.RWMutex
	m  map[string]attendance.Class
}

// NewMemory creates an empty in-process backend.
func NewMemory() *Memory {
	return &Memory{m: make(map[string]attendance.Class)}
}

func (b *Memory) Load(_ context.Context, owner string) (*attendance.Class, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c, ok := b.m[owner]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (b *Memory) Save(_ context.Context, owner string, c attendance.Class) error {
	b.mu.Lock()
	b.m[owner] = c
	b.mu.Unlock()
	return nil
}

func (b *Memory) Clear(_ context.Context, owner string) error {
	b.mu.Lock()
	delete(b.m, owner)
	b.mu.Unlock()
	return nil
}

// Redis stores each owner's selection as a JSON string under a prefixed key.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis creates a Redis-backed selection store.
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "attendsync:selection:"
	}
	return &Redis{client: client, prefix: prefix}
}

func (b *Redis) Load(ctx context.Context, owner string) (*attendance.Class, error) {
	raw, err := b.client.Get(ctx, b.prefix+owner).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var c attendance.Class
	if err := json.Unmarshal(raw, &c); err != nil {
		// A corrupt entry is treated as no selection.
		return nil, nil
	}
	return &c, nil
}

func (b *Redis) Save(ctx context.Context, owner string, c attendance.Class) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return b.client.Set(ctx, b.prefix+owner, raw, 0).Err()
}

func (b *Redis) Clear(ctx context.Context, owner string) error {
	return b.client.Del(ctx, b.prefix+owner).Err()
}
