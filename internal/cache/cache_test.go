package cache_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amarnathcjd/hybridgram/internal/cache"
)

func newRedis(t *testing.T) (*cache.Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.NewRedis(client, "test:"), mr
}

func stores(t *testing.T) map[string]cache.Store {
	r, _ := newRedis(t)
	return map[string]cache.Store{
		"memory": cache.NewMemory(),
		"redis":  r,
	}
}

func TestStore_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := store.Get(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))
			v, ok, err := store.Get(ctx, "k")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, []byte("v"), v)

			require.NoError(t, store.Delete(ctx, "k"))
			_, ok, err = store.Get(ctx, "k")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStore_Incr(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for i := int64(1); i <= 3; i++ {
				n, err := store.Incr(ctx, "seq")
				require.NoError(t, err)
				assert.Equal(t, i, n)
			}
		})
	}
}

func TestMemory_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1000, 0)
	m := cache.NewMemory()
	m.SetClock(func() time.Time { return now })

	require.NoError(t, m.Set(ctx, "k", []byte("v"), time.Second))
	_, ok, _ := m.Get(ctx, "k")
	assert.True(t, ok)

	now = now.Add(time.Second)
	_, ok, _ = m.Get(ctx, "k")
	assert.False(t, ok)
}

func TestRedis_Expiry(t *testing.T) {
	ctx := context.Background()
	r, mr := newRedis(t)

	require.NoError(t, r.Set(ctx, "k", []byte("v"), time.Second))
	mr.FastForward(2 * time.Second)
	_, ok, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLock_Timeout(t *testing.T) {
	ctx := context.Background()
	r, _ := newRedis(t)
	lockers := map[string]cache.Locker{"memory": cache.NewMemory(), "redis": r}

	for name, l := range lockers {
		t.Run(name, func(t *testing.T) {
			unlock, err := l.Lock(ctx, "lock", time.Minute, 0)
			require.NoError(t, err)

			_, err = l.Lock(ctx, "lock", time.Minute, 30*time.Millisecond)
			assert.ErrorIs(t, err, cache.ErrLockTimeout)

			unlock()
			unlock2, err := l.Lock(ctx, "lock", time.Minute, 0)
			require.NoError(t, err)
			unlock2()
		})
	}
}

func TestLock_MutualExclusion(t *testing.T) {
	ctx := context.Background()
	m := cache.NewMemory()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.WithLock(ctx, m, "k", time.Second, 2*time.Second, func() error {
				mu.Lock()
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				mu.Unlock()
				time.Sleep(2 * time.Millisecond)
				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

type plainStore struct{ cache.Store }

func TestWithLock_BestEffort(t *testing.T) {
	called := false
	locked, err := cache.WithLock(context.Background(), plainStore{cache.NewMemory()}, "k", time.Second, time.Second, func() error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, locked)
	assert.True(t, called)
}
