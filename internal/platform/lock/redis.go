package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix = "idlock"
	defaultLockTTL     = 10 * time.Second
	defaultRetryEvery  = 25 * time.Millisecond
)

// releaseLua deletes the lock only when it still holds the caller's token.
//
// KEYS[1] = lock key, ARGV[1] = token
var releaseLua = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisLocker is a Locker shared across processes. A lock expires after TTL so a crashed holder
// cannot block an account forever; sequences guarded by it are expected to finish well within TTL.
type RedisLocker struct {
	client     *redis.Client
	prefix     string
	ttl        time.Duration
	retryEvery time.Duration
}

// NewRedisLocker returns a RedisLocker using client. ttl <= 0 uses the 10s default.
func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLocker{
		client:     client,
		prefix:     defaultRedisPrefix,
		ttl:        ttl,
		retryEvery: defaultRetryEvery,
	}
}

func (l *RedisLocker) key(k string) string { return l.prefix + ":" + k }

// Lock polls SET NX until it wins or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	rk := l.key(key)
	ticker := time.NewTicker(l.retryEvery)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, rk, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.Join(ErrNotAcquired, ctx.Err())
			}
			return nil, fmt.Errorf("lock: redis set: %w", err)
		}
		if ok {
			return l.releaser(rk, token), nil
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrNotAcquired, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *RedisLocker) releaser(rk, token string) func() {
	return func() {
		// Release must run even when the request context was cancelled.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseLua.Run(ctx, l.client, []string{rk}, token).Err()
	}
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
