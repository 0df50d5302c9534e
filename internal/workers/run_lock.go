package workers

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RunLock guards against two processes running acquisition at the same time
type RunLock interface {
	// Acquire takes the lock for token. It returns false when someone else holds it.
	Acquire(ctx context.Context, token string) (bool, error)
	// Release frees the lock if token still owns it
	Release(ctx context.Context, token string) error
}

// LocalRunLock is an in-process RunLock
type LocalRunLock struct {
	mu    sync.Mutex
	owner string
}

func NewLocalRunLock() *LocalRunLock {
	return &LocalRunLock{}
}

func (l *LocalRunLock) Acquire(_ context.Context, token string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owner != "" {
		return false, nil
	}
	l.owner = token
	return true, nil
}

func (l *LocalRunLock) Release(_ context.Context, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owner == token {
		l.owner = ""
	}
	return nil
}

const redisReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

const defaultRunLockKey = "gscout:run_lock"

type redisLocker interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// RedisRunLock is a RunLock shared by every process talking to the same Redis.
// The key expires after ttl so a crashed holder cannot block runs forever.
type RedisRunLock struct {
	client redisLocker
	key    string
	ttl    time.Duration
}

func NewRedisRunLock(client *redis.Client, ttl time.Duration) *RedisRunLock {
	return newRedisRunLock(client, ttl)
}

func newRedisRunLock(client redisLocker, ttl time.Duration) *RedisRunLock {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &RedisRunLock{client: client, key: defaultRunLockKey, ttl: ttl}
}

func (l *RedisRunLock) Acquire(ctx context.Context, token string) (bool, error) {
	return l.client.SetNX(ctx, l.key, token, l.ttl).Result()
}

func (l *RedisRunLock) Release(ctx context.Context, token string) error {
	return l.client.Eval(ctx, redisReleaseScript, []string{l.key}, token).Err()
}
