package redisx

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLocked = errors.New("redisx: lock held by another worker")

type Unlock func(ctx context.Context) error

// Locker hands out advisory locks. Lock waits up to the locker's wait budget
// and returns ErrLocked when the key stays held.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (Unlock, error)
}

// only the owner may delete the key
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

type RedisLocker struct {
	RDB   *redis.Client
	Wait  time.Duration
	Retry time.Duration
}

func (l *RedisLocker) Lock(ctx context.Context, key string, ttl time.Duration) (Unlock, error) {
	owner := uuid.NewString()
	retry := l.Retry
	if retry <= 0 {
		retry = 100 * time.Millisecond
	}
	deadline := time.Now().Add(l.Wait)
	for {
		ok, err := l.RDB.SetNX(ctx, key, owner, ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func(ctx context.Context) error {
				return unlockScript.Run(ctx, l.RDB, []string{key}, owner).Err()
			}, nil
		}
		if !time.Now().Add(retry).Before(deadline) {
			return nil, ErrLocked
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retry):
		}
	}
}

// MemoryLocker serializes callers inside one process.
type MemoryLocker struct {
	Wait  time.Duration
	Retry time.Duration

	mu   sync.Mutex
	held map[string]memLock
}

type memLock struct {
	owner     string
	expiresAt time.Time
}

func (l *MemoryLocker) tryLock(key, owner string, ttl time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = map[string]memLock{}
	}
	now := time.Now()
	if cur, ok := l.held[key]; ok && now.Before(cur.expiresAt) {
		return false
	}
	l.held[key] = memLock{owner: owner, expiresAt: now.Add(ttl)}
	return true
}

func (l *MemoryLocker) Lock(ctx context.Context, key string, ttl time.Duration) (Unlock, error) {
	owner := uuid.NewString()
	retry := l.Retry
	if retry <= 0 {
		retry = 10 * time.Millisecond
	}
	deadline := time.Now().Add(l.Wait)
	for !l.tryLock(key, owner, ttl) {
		if !time.Now().Add(retry).Before(deadline) {
			return nil, ErrLocked
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retry):
		}
	}
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		// only the owner may delete the key
		if cur, ok := l.held[key]; ok && cur.owner == owner {
			delete(l.held, key)
		}
		return nil
	}, nil
}
