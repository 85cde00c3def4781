package checkpoint

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists checkpoints to Redis with a per-session TTL, so idle
// sessions expire instead of accumulating forever.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	mu     sync.RWMutex
	closed bool
}

// NewRedisStore creates a Redis-backed checkpoint store. The URL uses the
// standard redis:// form. A zero TTL keeps sessions until deleted.
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisStore{
		client: client,
		ttl:    ttl,
	}, nil
}

func sessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}

// Save implements Store. Each save refreshes the TTL.
func (r *RedisStore) Save(ctx context.Context, sessionID string, data []byte) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return ErrStoreClosed
	}

	if err := r.client.Set(ctx, sessionKey(sessionID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// Load implements Store.
func (r *RedisStore) Load(ctx context.Context, sessionID string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, ErrStoreClosed
	}

	data, err := r.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	return data, nil
}

// Delete implements Store.
func (r *RedisStore) Delete(ctx context.Context, sessionID string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return ErrStoreClosed
	}

	if err := r.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

// Ping verifies the Redis connection is alive.
func (r *RedisStore) Ping(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return ErrStoreClosed
	}
	return r.client.Ping(ctx).Err()
}

// Close implements Store.
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}

	r.closed = true
	return r.client.Close()
}
