package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"social-publisher/domain/model"
	"social-publisher/domain/repository"
	"social-publisher/infrastructure/logger"
)

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

const lockRetryInterval = 50 * time.Millisecond

// Locker serialises work on a key. Within one process a keyed mutex is held;
// across processes a Redis SET NX PX lock is held on top of it. A nil client
// gives in-process locking only.
type Locker struct {
	client *redis.Client
	prefix string

	mu    sync.Mutex
	local map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func NewLocker(client *redis.Client, prefix string) repository.ILocker {
	return &Locker{client: client, prefix: prefix, local: make(map[string]*keyLock)}
}

func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	unlockLocal, err := l.lockLocal(ctx, key)
	if err != nil {
		return nil, err
	}
	if l.client == nil {
		return unlockLocal, nil
	}

	redisKey := l.prefix + key
	token := uuid.NewString()
	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, ttl).Result()
		if err != nil {
			unlockLocal()
			return nil, err
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			unlockLocal()
			return nil, errors.Join(model.ErrLockNotAcquired, ctx.Err())
		case <-time.After(lockRetryInterval):
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// release must run even when the caller's ctx is already cancelled
			relCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(relCtx, l.client, []string{redisKey}, token).Err(); err != nil {
				logger.GetLogger().WithField("key", redisKey).WithField("error", err).Warn("Failed to release lock")
			}
			unlockLocal()
		})
	}, nil
}

func (l *Locker) lockLocal(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.local[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.local[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, kl)
		return nil, errors.Join(model.ErrLockNotAcquired, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-kl.ch
			l.unref(key, kl)
		})
	}, nil
}

func (l *Locker) unref(key string, kl *keyLock) {
	l.mu.Lock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.local, key)
	}
	l.mu.Unlock()
}
