// Copyright (c) 2025 @AmarnathCJD

package sender

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/amarnathcjd/hybridgram"
	"github.com/amarnathcjd/hybridgram/internal/ratelimit"
	"github.com/amarnathcjd/hybridgram/internal/utils"
)

const (
	DefaultMaxWait = 2000 * time.Millisecond

	// floor for the sleep when the limiter reports a zero delay
	minSleep = 5 * time.Millisecond
)

type SyncConfig struct {
	MaxWait   time.Duration
	Reporting Reporting
	Log       *utils.Logger
	Now       func() time.Time
	Sleep     func(ctx context.Context, d time.Duration) error
}

// Sync waits in-process for a free slot, up to MaxWait, then calls the API.
type Sync struct {
	caller  Caller
	limiter *ratelimit.Limiter
	cfg     SyncConfig
	log     *utils.Logger
}

var _ Dispatcher = (*Sync)(nil)

func NewSync(caller Caller, limiter *ratelimit.Limiter, cfg SyncConfig) *Sync {
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = DefaultMaxWait
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepCtx
	}
	if cfg.Log == nil {
		cfg.Log = utils.NopLogger()
	}
	return &Sync{caller: caller, limiter: limiter, cfg: cfg, log: cfg.Log.WithPrefix("hybridgram [sender]")}
}

func (s *Sync) Dispatch(ctx context.Context, botID string, m Method, p ratelimit.Priority) (json.RawMessage, error) {
	deadline := s.cfg.Now().Add(s.cfg.MaxWait)

	for {
		d, err := s.limiter.Check(ctx, botID, p)
		if err != nil {
			return nil, err
		}
		if d.Allow {
			break
		}

		remaining := deadline.Sub(s.cfg.Now())
		if remaining <= 0 {
			return nil, &hybridgram.RateLimitedError{BotID: botID, Delay: d.Delay}
		}
		pause := utils.MinDuration(d.Delay, remaining)
		if pause <= 0 {
			pause = utils.MinDuration(minSleep, remaining)
		}
		s.log.WithField("bot_id", botID).Debug("outgoing budget exhausted, waiting %s", pause)
		if err := s.cfg.Sleep(ctx, pause); err != nil {
			return nil, err
		}
	}

	res, err := s.caller.Call(ctx, botID, m)
	if err != nil {
		s.cfg.Reporting.report(s.log, botID, map[string]any{"priority": p.String()}, err)
		return nil, err
	}
	if err := s.limiter.Record(ctx, botID); err != nil {
		return res, errors.Wrap(err, "recording outgoing send")
	}
	return res, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
