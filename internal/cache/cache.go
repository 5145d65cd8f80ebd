// Copyright (c) 2025 @AmarnathCJD

// Package cache is the shared key/value collaborator used for conversation
// state, the outgoing rate-limit window and FIFO pointers.
package cache

import (
	"context"
	"time"

	"github.com/amarnathcjd/hybridgram"
)

// Store is a byte-oriented key/value store with per-key TTL.
type Store interface {
	// Get returns ok=false for missing or expired keys.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set stores value; ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Incr atomically increments an integer counter, creating it at 1.
	Incr(ctx context.Context, key string) (int64, error)
}

// Locker is implemented by stores that can provide mutual exclusion across
// every process sharing the store.
type Locker interface {
	// Lock takes key for at most hold, waiting at most wait. It returns
	// hybridgram.ErrLockTimeout when the wait budget runs out.
	Lock(ctx context.Context, key string, hold, wait time.Duration) (unlock func(), err error)
}

// ErrLockTimeout is re-exported for callers that only import this package.
var ErrLockTimeout = hybridgram.ErrLockTimeout

// WithLock runs fn under key when store is a Locker, otherwise runs it
// best-effort without exclusion. locked reports which path was taken.
func WithLock(ctx context.Context, store Store, key string, hold, wait time.Duration, fn func() error) (locked bool, err error) {
	locker, ok := store.(Locker)
	if !ok {
		return false, fn()
	}
	unlock, err := locker.Lock(ctx, key, hold, wait)
	if err != nil {
		return false, err
	}
	defer unlock()
	return true, fn()
}
