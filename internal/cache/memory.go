// Copyright (c) 2025 @AmarnathCJD

package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const lockPollInterval = 5 * time.Millisecond

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

func (i memoryItem) expired(now time.Time) bool {
	return !i.expiresAt.IsZero() && !now.Before(i.expiresAt)
}

// Memory is an in-process Store and Locker.
type Memory struct {
	mu    sync.Mutex
	items map[string]memoryItem
	locks map[string]time.Time
	now   func() time.Time
}

var (
	_ Store  = (*Memory)(nil)
	_ Locker = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{
		items: make(map[string]memoryItem),
		locks: make(map[string]time.Time),
		now:   time.Now,
	}
}

// SetClock replaces the time source used for expiry.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[key]
	if !ok {
		return nil, false, nil
	}
	if item.expired(m.now()) {
		delete(m.items, key)
		return nil, false, nil
	}
	out := make([]byte, len(item.value))
	copy(out, item.value)
	return out, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := memoryItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		item.expiresAt = m.now().Add(ttl)
	}
	m.items[key] = item
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	item, ok := m.items[key]
	if ok && !item.expired(m.now()) {
		var err error
		n, err = strconv.ParseInt(string(item.value), 10, 64)
		if err != nil {
			return 0, errors.Wrapf(err, "incr %s: value is not an integer", key)
		}
	} else {
		item = memoryItem{}
	}
	n++
	item.value = []byte(strconv.FormatInt(n, 10))
	m.items[key] = item
	return n, nil
}

func (m *Memory) Lock(ctx context.Context, key string, hold, wait time.Duration) (func(), error) {
	deadline := time.Now().Add(wait)
	for {
		m.mu.Lock()
		now := m.now()
		if until, held := m.locks[key]; !held || !now.Before(until) {
			m.locks[key] = now.Add(hold)
			m.mu.Unlock()
			var once sync.Once
			return func() {
				once.Do(func() {
					m.mu.Lock()
					delete(m.locks, key)
					m.mu.Unlock()
				})
			}, nil
		}
		m.mu.Unlock()

		if !time.Now().Before(deadline) {
			return nil, ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), "waiting for lock "+key)
		case <-time.After(lockPollInterval):
		}
	}
}
