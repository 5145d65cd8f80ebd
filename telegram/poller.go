// Copyright (c) 2025 @AmarnathCJD

package telegram

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/amarnathcjd/hybridgram"
	"github.com/amarnathcjd/hybridgram/internal/session"
	"github.com/amarnathcjd/hybridgram/internal/utils"
)

const (
	DefaultPollLimit   = 100
	DefaultPollTimeout = 30
)

// PollerConfig tunes getUpdates. Limit is the batch size (1..100) and
// Timeout the long poll timeout in seconds, where 0 polls short. A nil
// Offsets keeps the offset in memory only.
type PollerConfig struct {
	Limit          int
	Timeout        int
	AllowedUpdates []string

	Offsets     session.OffsetStore
	MediaGroups *MediaGroupGrouper
	Logger      Logger

	ErrorBackoff time.Duration
	IdleDelay    time.Duration

	// OnUpdate is called for every received update before it is routed.
	OnUpdate func(botID string, u *Update)
}

// Poller long-polls getUpdates for one bot and routes every update in
// order. The offset advances after each update, whether or not its
// handler failed.
type Poller struct {
	bot    *Bot
	router *Router
	cfg    PollerConfig
	log    *utils.Logger
	offset int64
}

func NewPoller(bot *Bot, router *Router, cfg PollerConfig) *Poller {
	if cfg.Limit <= 0 || cfg.Limit > 100 {
		cfg.Limit = DefaultPollLimit
	}
	if cfg.Timeout < 0 {
		cfg.Timeout = 0
	}
	if cfg.Offsets == nil {
		cfg.Offsets = session.NewInMemory()
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = time.Second
	}
	if cfg.IdleDelay <= 0 {
		cfg.IdleDelay = 200 * time.Millisecond
	}
	return &Poller{
		bot:    bot,
		router: router,
		cfg:    cfg,
		log:    internalLogger(cfg.Logger).WithPrefix("hybridgram [poller]").WithField("bot_id", bot.ID()),
	}
}

// Offset is the offset the next getUpdates call will use.
func (p *Poller) Offset() int64 { return p.offset }

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	offset, err := p.cfg.Offsets.Load(p.bot.ID())
	if err != nil {
		p.log.WithError(err).Warn("loading stored offset, starting from 0")
	}
	p.offset = offset
	p.log.Info("polling started at offset %d", p.offset)

	for {
		if err := ctx.Err(); err != nil {
			p.log.Info("polling stopped")
			return err
		}

		n, err := p.Poll(ctx)
		var delay time.Duration
		switch {
		case err != nil && ctx.Err() != nil:
			continue
		case err != nil:
			delay = p.cfg.ErrorBackoff
		case n == 0 && p.cfg.Timeout <= 0:
			delay = p.cfg.IdleDelay
		}
		if delay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(delay):
			}
		}
	}
}

// Poll fetches one batch and routes it. A 409 conflict deletes the webhook
// so the next call can succeed.
func (p *Poller) Poll(ctx context.Context) (int, error) {
	updates, err := p.bot.GetUpdates(ctx, GetUpdatesParams{
		Offset:         p.offset,
		Limit:          p.cfg.Limit,
		Timeout:        p.cfg.Timeout,
		AllowedUpdates: p.cfg.AllowedUpdates,
	})
	if err != nil {
		var apiErr *hybridgram.RemoteAPIError
		if errors.As(err, &apiErr) && apiErr.Code == 409 {
			p.log.Warn("getUpdates conflicts with an active webhook, deleting it")
			if derr := p.bot.DeleteWebhook(ctx, false); derr != nil {
				p.log.WithError(derr).Error("deleting webhook")
				return 0, derr
			}
			return 0, nil
		}
		if ctx.Err() == nil {
			p.log.WithError(err).Error("getUpdates failed")
		}
		return 0, err
	}
	if len(updates) == 0 {
		return 0, nil
	}

	dispatch := updates
	if p.cfg.MediaGroups != nil {
		dispatch = p.cfg.MediaGroups.Group(ctx, updates)
	}
	keep := make(map[int64]bool, len(dispatch))
	for _, u := range dispatch {
		keep[u.UpdateID] = true
	}

	for i := range updates {
		u := &updates[i]
		if p.cfg.OnUpdate != nil {
			p.cfg.OnUpdate(p.bot.ID(), u)
		}
		if keep[u.UpdateID] {
			p.route(ctx, u)
		}
		if next := u.UpdateID + 1; next > p.offset {
			p.offset = next
		}
	}

	if err := p.cfg.Offsets.Store(p.bot.ID(), p.offset); err != nil {
		p.log.WithError(err).Warn("storing offset")
	}
	return len(updates), nil
}

func (p *Poller) route(ctx context.Context, u *Update) {
	defer func() {
		if r := recover(); r != nil {
			p.log.WithField("update_id", u.UpdateID).Error("[UpdatePanic] %v\n%s", r, utils.Stack())
		}
	}()
	if err := p.router.Dispatch(ctx, p.bot.ID(), u); err != nil {
		p.log.WithError(err).WithField("update_id", u.UpdateID).Debug("update not handled")
	}
}
