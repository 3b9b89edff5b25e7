package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// TriggerLocker guards a single record's trigger across scheduler instances
type TriggerLocker interface {
	// Acquire returns false when another holder owns key
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// TriggerLockKey is the lock key for one DAG info record
func TriggerLockKey(id int64) string {
	return fmt.Sprintf("dagsched:trigger:%d", id)
}

// releaseScript deletes the key only when it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a TriggerLocker backed by SET NX with a TTL
type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
	token  string
}

// NewRedisLocker creates a Redis locker. Locks expire after ttl even if
// the holder never releases them
func NewRedisLocker(client redis.UniversalClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl, token: uuid.NewString()}
}

// Acquire tries to set key with NX and expiration
func (l *RedisLocker) Acquire(ctx context.Context, key string) (bool, error) {
	ok, err := l.client.SetNX(ctx, key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	return ok, nil
}

// Release deletes key if this locker still holds it
func (l *RedisLocker) Release(ctx context.Context, key string) error {
	if err := releaseScript.Run(ctx, l.client, []string{key}, l.token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// MemoryLocker is a process-local TriggerLocker
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]time.Time // key -> expiry
	ttl  time.Duration
	now  func() time.Time
}

// NewMemoryLocker creates a process-local locker
func NewMemoryLocker(ttl time.Duration) *MemoryLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &MemoryLocker{held: make(map[string]time.Time), ttl: ttl, now: time.Now}
}

func (l *MemoryLocker) Acquire(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if expiry, exists := l.held[key]; exists && now.Before(expiry) {
		return false, nil
	}
	l.held[key] = now.Add(l.ttl)
	return true, nil
}

func (l *MemoryLocker) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}
