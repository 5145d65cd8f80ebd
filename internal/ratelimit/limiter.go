// Copyright (c) 2025 @AmarnathCJD

// Package ratelimit implements the per-bot outgoing sliding window.
package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/amarnathcjd/hybridgram/internal/cache"
	"github.com/amarnathcjd/hybridgram/internal/utils"
)

const (
	Window = 60 * time.Second

	windowTTL     = 180 * time.Second
	lockHold      = 3 * time.Second
	lockWait      = 2 * time.Second
	lockedOutWait = 50 * time.Millisecond
	keyPrefix     = "tg:out:"
)

// Priority selects the effective cap: HIGH may use the whole budget, LOW
// everything except the reserved share.
type Priority int

const (
	High Priority = iota
	Low
)

func (p Priority) String() string {
	if p == High {
		return "high"
	}
	return "low"
}

// ParsePriority maps "high"/"low"; anything else is Low.
func ParsePriority(s string) Priority {
	if s == "high" {
		return High
	}
	return Low
}

// Decision is the outcome of Check or Acquire.
type Decision struct {
	Allow bool
	Delay time.Duration
}

func allow() Decision { return Decision{Allow: true} }

func wait(d time.Duration) Decision {
	if d < 0 {
		d = 0
	}
	return Decision{Delay: d}
}

type Config struct {
	PerMinute   int
	ReserveHigh int
	Now         func() time.Time
	Log         *utils.Logger
}

// Limiter is a sliding-window limiter persisted in a cache.Store so that
// every worker sharing the store shares the budget.
type Limiter struct {
	store       cache.Store
	perMinute   int
	reserveHigh int
	now         func() time.Time
	log         *utils.Logger
}

func New(store cache.Store, cfg Config) *Limiter {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Log == nil {
		cfg.Log = utils.NopLogger()
	}
	return &Limiter{
		store:       store,
		perMinute:   cfg.PerMinute,
		reserveHigh: cfg.ReserveHigh,
		now:         cfg.Now,
		log:         cfg.Log,
	}
}

// EffectiveLimit returns the cap that applies to p.
func (l *Limiter) EffectiveLimit(p Priority) int {
	if p == High {
		return l.perMinute
	}
	if n := l.perMinute - l.reserveHigh; n > 0 {
		return n
	}
	return 0
}

// Acquire checks and, when allowed, records a send atomically. A lock
// timeout degrades to a short delay instead of an error.
func (l *Limiter) Acquire(ctx context.Context, botID string, p Priority) (Decision, error) {
	var d Decision
	_, err := cache.WithLock(ctx, l.store, l.key(botID)+":lock", lockHold, lockWait, func() error {
		window, err := l.load(ctx, botID)
		if err != nil {
			return err
		}
		d = l.decide(window, p)
		if d.Allow {
			return l.save(ctx, botID, append(window, utils.UnixMilli(l.now())))
		}
		return nil
	})
	if errors.Is(err, cache.ErrLockTimeout) {
		l.log.WithField("bot_id", botID).Debug("rate limit lock busy, retrying shortly")
		return wait(lockedOutWait), nil
	}
	if err != nil {
		return Decision{}, errors.Wrap(err, "acquiring outgoing slot")
	}
	return d, nil
}

// Check peeks at the window. It never writes to the store.
func (l *Limiter) Check(ctx context.Context, botID string, p Priority) (Decision, error) {
	window, err := l.load(ctx, botID)
	if err != nil {
		return Decision{}, errors.Wrap(err, "checking outgoing window")
	}
	return l.decide(window, p), nil
}

// Record appends a send at the current time.
func (l *Limiter) Record(ctx context.Context, botID string) error {
	_, err := cache.WithLock(ctx, l.store, l.key(botID)+":lock", lockHold, lockWait, func() error {
		window, err := l.load(ctx, botID)
		if err != nil {
			return err
		}
		return l.save(ctx, botID, append(window, utils.UnixMilli(l.now())))
	})
	if errors.Is(err, cache.ErrLockTimeout) {
		// counting the send late is better than dropping it
		window, lerr := l.load(ctx, botID)
		if lerr != nil {
			return errors.Wrap(lerr, "recording outgoing send")
		}
		return l.save(ctx, botID, append(window, utils.UnixMilli(l.now())))
	}
	return errors.Wrap(err, "recording outgoing send")
}

// Usage returns the number of sends inside the current window.
func (l *Limiter) Usage(ctx context.Context, botID string) (int, error) {
	window, err := l.load(ctx, botID)
	return len(window), err
}

// Remaining returns how many more sends p may make right now.
func (l *Limiter) Remaining(ctx context.Context, botID string, p Priority) (int, error) {
	used, err := l.Usage(ctx, botID)
	if err != nil {
		return 0, err
	}
	if n := l.EffectiveLimit(p) - used; n > 0 {
		return n, nil
	}
	return 0, nil
}

func (l *Limiter) decide(window []int64, p Priority) Decision {
	limit := l.EffectiveLimit(p)
	count := len(window)
	if count < limit {
		return allow()
	}
	nowMs := utils.UnixMilli(l.now())
	if limit <= 0 || count == 0 {
		// nothing will ever free up for this class; check back after a full window
		return wait(Window)
	}
	// the entry whose expiry brings count back under the limit
	target := window[count-limit]
	return wait(time.Duration(target+Window.Milliseconds()-nowMs) * time.Millisecond)
}

func (l *Limiter) key(botID string) string {
	return fmt.Sprintf("%s%s:global:window_ms", keyPrefix, botID)
}

// load returns the pruned window without writing it back. Only the locked
// Acquire and Record paths persist a window.
func (l *Limiter) load(ctx context.Context, botID string) ([]int64, error) {
	raw, ok, err := l.store.Get(ctx, l.key(botID))
	if err != nil || !ok {
		return nil, err
	}

	var stored []int64
	if err := json.Unmarshal(raw, &stored); err != nil {
		l.log.WithError(err).WithField("bot_id", botID).Warn("dropping unreadable rate limit window")
		return nil, nil
	}

	cutoff := utils.UnixMilli(l.now()) - Window.Milliseconds()
	window := stored[:0:0]
	for _, ts := range stored {
		if ts > cutoff {
			window = append(window, ts)
		}
	}
	sort.Slice(window, func(i, j int) bool { return window[i] < window[j] })
	return window, nil
}

func (l *Limiter) save(ctx context.Context, botID string, window []int64) error {
	raw, err := json.Marshal(window)
	if err != nil {
		return errors.Wrap(err, "encoding rate limit window")
	}
	return l.store.Set(ctx, l.key(botID), raw, windowTTL)
}
