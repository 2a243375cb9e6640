package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-publisher/domain/model"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestLocker_AcquireRelease(t *testing.T) {
	mr, client := newTestRedis(t)
	locker := NewLocker(client, "lock:")

	release, err := locker.Acquire(context.Background(), "refresh:7", time.Second)
	require.NoError(t, err)
	assert.True(t, mr.Exists("lock:refresh:7"))

	release()
	assert.False(t, mr.Exists("lock:refresh:7"))
	release()
}

func TestLocker_ReleaseKeepsForeignToken(t *testing.T) {
	mr, client := newTestRedis(t)
	locker := NewLocker(client, "lock:")

	release, err := locker.Acquire(context.Background(), "k", time.Second)
	require.NoError(t, err)

	// the lock expired and someone else took it
	require.NoError(t, mr.Set("lock:k", "other-holder"))
	release()

	v, err := mr.Get("lock:k")
	require.NoError(t, err)
	assert.Equal(t, "other-holder", v)
}

func TestLocker_HeldByOtherProcess(t *testing.T) {
	mr, client := newTestRedis(t)
	require.NoError(t, mr.Set("lock:k", "other-process"))

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	_, err := NewLocker(client, "lock:").Acquire(ctx, "k", time.Second)
	assert.ErrorIs(t, err, model.ErrLockNotAcquired)
}

func TestLocker_WaitsForExpiry(t *testing.T) {
	mr, client := newTestRedis(t)
	require.NoError(t, mr.Set("lock:k", "other-process"))

	go func() {
		time.Sleep(80 * time.Millisecond)
		mr.Del("lock:k")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	release, err := NewLocker(client, "lock:").Acquire(ctx, "k", time.Second)
	require.NoError(t, err)
	release()
}

func TestLocker_SerialisesInProcess(t *testing.T) {
	locker := NewLocker(nil, "")
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Acquire(context.Background(), "same", time.Second)
			assert.NoError(t, err)
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
	assert.Empty(t, locker.(*Locker).local)
}

func TestNewCache(t *testing.T) {
	mr, _ := newTestRedis(t)
	client, err := NewCache(context.Background(), mr.Addr(), "", "", 0)
	require.NoError(t, err)
	defer client.Close()
	assert.NoError(t, client.Set(context.Background(), "a", "b", 0).Err())
}
