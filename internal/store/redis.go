package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const sheetKeyPrefix = "attendsync:sheet:"

// Redis wraps the redis client shared by the live hub, the job queue, the
// selection store and the sheet URL cache.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to redis with short timeouts.
func NewRedis(addr string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &Redis{Client: client}
}

// Healthy verifies redis connectivity.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

// Close closes the client.
func (r *Redis) Close() error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Close()
}

func sheetKey(classID, sessionKey string) string {
	return sheetKeyPrefix + classID + ":" + sessionKey
}

// SetSheetURL caches the uploaded sheet location of a session.
func (r *Redis) SetSheetURL(ctx context.Context, classID, sessionKey, url string, ttl time.Duration) error {
	return r.Client.Set(ctx, sheetKey(classID, sessionKey), url, ttl).Err()
}

// SheetURL returns the cached sheet location, or "" when none is cached.
func (r *Redis) SheetURL(ctx context.Context, classID, sessionKey string) (string, error) {
	url, err := r.Client.Get(ctx, sheetKey(classID, sessionKey)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return url, err
}
