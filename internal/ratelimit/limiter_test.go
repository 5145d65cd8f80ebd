package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amarnathcjd/hybridgram/internal/cache"
	"github.com/amarnathcjd/hybridgram/internal/ratelimit"
)

type clock struct{ ms int64 }

func (c *clock) now() time.Time { return time.UnixMilli(c.ms) }

type plainStore struct{ cache.Store }

// hookStore runs afterGet once, right after the next Get returns.
type hookStore struct {
	*cache.Memory
	afterGet func()
}

func (s *hookStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, ok, err := s.Memory.Get(ctx, key)
	if fn := s.afterGet; fn != nil {
		s.afterGet = nil
		fn()
	}
	return raw, ok, err
}

func newLimiter(store cache.Store, c *clock, total, reserved int) *ratelimit.Limiter {
	return ratelimit.New(store, ratelimit.Config{PerMinute: total, ReserveHigh: reserved, Now: c.now})
}

func TestLimiter_SlidingWindowBoundary(t *testing.T) {
	ctx := context.Background()
	c := &clock{}
	l := newLimiter(cache.NewMemory(), c, 2, 0)

	c.ms = 0
	require.NoError(t, l.Record(ctx, "main"))
	c.ms = 1000
	require.NoError(t, l.Record(ctx, "main"))

	c.ms = 2000
	d, err := l.Check(ctx, "main", ratelimit.High)
	require.NoError(t, err)
	assert.False(t, d.Allow)
	assert.Equal(t, 58000*time.Millisecond, d.Delay)

	c.ms = 59999
	d, err = l.Check(ctx, "main", ratelimit.High)
	require.NoError(t, err)
	assert.False(t, d.Allow)
	assert.Equal(t, time.Millisecond, d.Delay)

	// the entry at t=0 expires exactly at 60000
	c.ms = 60000
	d, err = l.Check(ctx, "main", ratelimit.High)
	require.NoError(t, err)
	assert.True(t, d.Allow)
}

func TestLimiter_ReservedCapacity(t *testing.T) {
	ctx := context.Background()
	c := &clock{ms: 10_000}
	l := newLimiter(cache.NewMemory(), c, 10, 3)

	for i := 0; i < 7; i++ {
		c.ms += 10
		require.NoError(t, l.Record(ctx, "main"))
	}

	low, err := l.Check(ctx, "main", ratelimit.Low)
	require.NoError(t, err)
	assert.False(t, low.Allow)

	high, err := l.Check(ctx, "main", ratelimit.High)
	require.NoError(t, err)
	assert.True(t, high.Allow)

	remaining, err := l.Remaining(ctx, "main", ratelimit.High)
	require.NoError(t, err)
	assert.Equal(t, 3, remaining)

	remaining, err = l.Remaining(ctx, "main", ratelimit.Low)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
}

func TestLimiter_DelayPicksNthOldest(t *testing.T) {
	ctx := context.Background()
	c := &clock{}
	l := newLimiter(cache.NewMemory(), c, 5, 2)

	for _, ts := range []int64{0, 100, 200, 300, 400} {
		c.ms = ts
		require.NoError(t, l.Record(ctx, "main"))
	}

	c.ms = 1000
	// LOW cap is 3 with 5 entries: two must expire, the second oldest at 100
	d, err := l.Check(ctx, "main", ratelimit.Low)
	require.NoError(t, err)
	assert.False(t, d.Allow)
	assert.Equal(t, (100+60000-1000)*time.Millisecond, d.Delay)
}

func TestLimiter_AcquireReserves(t *testing.T) {
	ctx := context.Background()
	c := &clock{ms: 5000}
	stores := map[string]cache.Store{
		"locking":     cache.NewMemory(),
		"best-effort": plainStore{cache.NewMemory()},
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			l := newLimiter(store, c, 2, 0)

			for i := 0; i < 2; i++ {
				d, err := l.Acquire(ctx, "main", ratelimit.High)
				require.NoError(t, err)
				assert.True(t, d.Allow)
			}

			d, err := l.Acquire(ctx, "main", ratelimit.High)
			require.NoError(t, err)
			assert.False(t, d.Allow)
			assert.Equal(t, 60*time.Second, d.Delay)

			used, err := l.Usage(ctx, "main")
			require.NoError(t, err)
			assert.Equal(t, 2, used)
		})
	}
}

func TestLimiter_WindowsArePerBot(t *testing.T) {
	ctx := context.Background()
	c := &clock{}
	l := newLimiter(cache.NewMemory(), c, 1, 0)

	d, err := l.Acquire(ctx, "a", ratelimit.High)
	require.NoError(t, err)
	assert.True(t, d.Allow)

	d, err = l.Acquire(ctx, "b", ratelimit.High)
	require.NoError(t, err)
	assert.True(t, d.Allow)
}

func TestLimiter_LockTimeoutDegradesToDelay(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the lock budget")
	}
	ctx := context.Background()
	store := cache.NewMemory()
	l := newLimiter(store, &clock{}, 10, 0)

	unlock, err := store.Lock(ctx, "tg:out:main:global:window_ms:lock", time.Minute, 0)
	require.NoError(t, err)
	defer unlock()

	d, err := l.Acquire(ctx, "main", ratelimit.High)
	require.NoError(t, err)
	assert.False(t, d.Allow)
	assert.Equal(t, 50*time.Millisecond, d.Delay)
}

func TestLimiter_ZeroLowBudget(t *testing.T) {
	l := newLimiter(cache.NewMemory(), &clock{}, 3, 5)
	assert.Equal(t, 0, l.EffectiveLimit(ratelimit.Low))

	d, err := l.Check(context.Background(), "main", ratelimit.Low)
	require.NoError(t, err)
	assert.False(t, d.Allow)
	assert.Equal(t, ratelimit.Window, d.Delay)
}

func TestLimiter_CheckDoesNotOverwriteConcurrentAcquire(t *testing.T) {
	ctx := context.Background()
	c := &clock{ms: 1_000_000}
	store := &hookStore{Memory: cache.NewMemory()}
	l := newLimiter(store, c, 10, 0)

	require.NoError(t, l.Record(ctx, "main"))
	c.ms += 61_000

	// Check reads the stale window, then an Acquire lands before it returns
	store.afterGet = func() {
		d, err := l.Acquire(ctx, "main", ratelimit.Low)
		require.NoError(t, err)
		assert.True(t, d.Allow)
	}
	d, err := l.Check(ctx, "main", ratelimit.Low)
	require.NoError(t, err)
	assert.True(t, d.Allow)

	used, err := l.Usage(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, 1, used)
}
