package redisx

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper claims a key for ttl. Claim reports false when the key is already
// held, Release drops a claim so a retry can take it again.
type Deduper interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type RedisDedup struct {
	RDB *redis.Client
}

func (d *RedisDedup) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return d.RDB.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
}

func (d *RedisDedup) Release(ctx context.Context, key string) error {
	return d.RDB.Del(ctx, key).Err()
}

// MemoryDedup is the single-process fallback when Redis is not configured.
type MemoryDedup struct {
	mu      sync.Mutex
	entries map[string]time.Time // key -> expiresAt
	now     func() time.Time
}

func NewMemoryDedup() *MemoryDedup {
	return &MemoryDedup{entries: map[string]time.Time{}, now: time.Now}
}

func (d *MemoryDedup) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	d.cleanupExpiredLocked(now)
	if _, held := d.entries[key]; held {
		return false, nil
	}
	d.entries[key] = now.Add(ttl)
	return true, nil
}

func (d *MemoryDedup) Release(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.entries, key)
	return nil
}

func (d *MemoryDedup) cleanupExpiredLocked(now time.Time) {
	for k, exp := range d.entries {
		if !now.Before(exp) {
			delete(d.entries, k)
		}
	}
}
