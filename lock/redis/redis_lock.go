// Package redis provides Redis-backed trial locking for campaign workers
// sharing one store.
package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"saboteur/lock"

	"github.com/redis/go-redis/v9"
)

var (
	_ lock.Locker     = (*RedisLocker)(nil)
	_ lock.LockHandle = (*redisLockHandle)(nil)
)

// The scripts compare the stored token first, so a worker can only extend
// or delete locks it still owns. Registered once; repeat calls run EVALSHA.
var (
	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// RedisLocker hands out distributed trial locks. Each acquisition writes a
// holder token under every key, so ownership survives worker identity and a
// crashed worker's locks expire on their TTL instead of wedging the
// campaign.
type RedisLocker struct {
	client redis.Cmdable
	prefix string
}

// Option configures a RedisLocker.
type Option func(*RedisLocker)

// WithPrefix overrides the keyspace prefix trial locks are written under.
func WithPrefix(prefix string) Option {
	return func(l *RedisLocker) {
		l.prefix = prefix
	}
}

// NewRedisLocker creates a locker on the given client.
func NewRedisLocker(client redis.Cmdable, opts ...Option) *RedisLocker {
	l := &RedisLocker{
		client: client,
		prefix: "saboteur:lock:",
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire locks every key or none. Keys are taken in sorted order, so two
// workers wanting overlapping sets cannot deadlock; on the first key that
// cannot be taken, everything acquired so far is rolled back.
func (l *RedisLocker) Acquire(ctx context.Context, keys []string, ttl time.Duration) (lock.LockHandle, error) {
	if len(keys) == 0 {
		return nil, errors.New("acquire needs at least one key")
	}

	order := append([]string(nil), keys...)
	sort.Strings(order)

	token, err := newHolderToken()
	if err != nil {
		return nil, fmt.Errorf("lock token: %w", err)
	}

	held := make([]string, 0, len(order))
	for _, key := range order {
		ok, err := l.client.SetNX(ctx, l.prefix+key, token, ttl).Result()
		if err == nil && !ok {
			err = errors.New("held by another worker")
		}
		if err != nil {
			l.releaseOwned(ctx, held, token)
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}
		held = append(held, key)
	}

	return &redisLockHandle{locker: l, token: token, held: held}, nil
}

// releaseOwned deletes the keys still carrying the token. Keys that expired
// or changed hands are left alone.
func (l *RedisLocker) releaseOwned(ctx context.Context, keys []string, token string) error {
	var errs error
	for _, key := range keys {
		if _, err := releaseScript.Run(ctx, l.client, []string{l.prefix + key}, token).Result(); err != nil {
			errs = errors.Join(errs, fmt.Errorf("release %s: %w", key, err))
		}
	}
	return errs
}

// redisLockHandle tracks the keys one acquisition holds.
type redisLockHandle struct {
	locker *RedisLocker
	token  string

	mu   sync.Mutex
	held []string
}

// Extend pushes every held lock's expiry out to ttl. A lock that expired or
// was taken over reports an error; the remaining locks are still extended.
func (h *redisLockHandle) Extend(ctx context.Context, ttl time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.held) == 0 {
		return errors.New("no locks held")
	}

	var errs error
	for _, key := range h.held {
		n, err := extendScript.Run(ctx, h.locker.client,
			[]string{h.locker.prefix + key}, h.token, ttl.Milliseconds()).Int()
		if err == nil && n == 0 {
			err = errors.New("lock expired or taken over")
		}
		if err != nil {
			errs = errors.Join(errs, fmt.Errorf("extend %s: %w", key, err))
		}
	}
	return errs
}

// Release drops every lock this handle still owns and empties the handle,
// even when individual releases fail.
func (h *redisLockHandle) Release(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	err := h.locker.releaseOwned(ctx, h.held, h.token)
	h.held = nil
	return err
}

// Keys returns the locked keys in acquisition order.
func (h *redisLockHandle) Keys() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.held...)
}

// newHolderToken mints the value identifying one acquisition's locks.
func newHolderToken() (string, error) {
	raw := make([]byte, 20)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}
