package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"engagement-backend/internal/logger"
)

// Locker serializes critical sections by key. The returned release func
// must be called exactly once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

func sessionLockKey(userID, contentID uuid.UUID) string {
	return "session:" + userID.String() + ":" + contentID.String()
}

func progressLockKey(userID, contentID uuid.UUID) string {
	return "progress:" + userID.String() + ":" + contentID.String()
}

func courseLockKey(userID, courseID uuid.UUID) string {
	return "course:" + userID.String() + ":" + courseID.String()
}

// KeyedMutex is an in-process Locker for single-instance deployments.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedEntry)}
}

func (k *KeyedMutex) Acquire(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{ch: make(chan struct{}, 1)}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		k.drop(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			k.drop(key, e)
		})
	}, nil
}

func (k *KeyedMutex) drop(key string, e *keyedEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
}

// size reports the number of tracked keys.
func (k *KeyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

var ErrLockTimeout = errors.New("lock acquisition timed out")

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a Locker shared by every instance behind the load balancer.
// The TTL bounds how long a crashed holder can block the key.
type RedisLocker struct {
	client    *redis.Client
	log       *logger.Logger
	ttl       time.Duration
	retry     time.Duration
	maxWait   time.Duration
	keyPrefix string
	unlock    func(ctx context.Context, lockKey, token string) error
}

func NewRedisLocker(client *redis.Client, ttl time.Duration, log *logger.Logger) *RedisLocker {
	l := &RedisLocker{
		client:    client,
		log:       log,
		ttl:       ttl,
		retry:     25 * time.Millisecond,
		maxWait:   ttl,
		keyPrefix: "lock:",
	}
	l.unlock = func(ctx context.Context, lockKey, token string) error {
		return releaseScript.Run(ctx, l.client, []string{lockKey}, token).Err()
	}
	return l
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	lockKey := l.keyPrefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(l.maxWait)

	for {
		ok, err := l.client.SetNX(ctx, lockKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(lockKey, token) })
	}, nil
}

// release frees the key if we still own it. A failed release leaves the key
// held until its TTL expires, so it is logged rather than dropped.
func (l *RedisLocker) release(lockKey, token string) {
	// Use a fresh context so a cancelled request still frees the key.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := l.unlock(ctx, lockKey, token); err != nil {
		l.log.Warn("lock release failed", "key", lockKey, "ttl", l.ttl.String(), "error", err)
	}
}
