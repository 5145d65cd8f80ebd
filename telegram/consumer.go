// Copyright (c) 2025 @AmarnathCJD

package telegram

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/amarnathcjd/hybridgram/internal/queue"
	"github.com/amarnathcjd/hybridgram/internal/utils"
)

type ConsumerConfig struct {
	Lane        string
	Concurrency int
	PopTimeout  time.Duration
	Logger      Logger
}

// UpdateConsumer routes updates queued by an async WebhookServer.
type UpdateConsumer struct {
	queue  queue.Queue
	router *Router
	cfg    ConsumerConfig
	log    *utils.Logger
}

func NewUpdateConsumer(q queue.Queue, router *Router, cfg ConsumerConfig) *UpdateConsumer {
	if cfg.Lane == "" {
		cfg.Lane = queue.LaneUpdates
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.PopTimeout <= 0 {
		cfg.PopTimeout = time.Second
	}
	return &UpdateConsumer{
		queue:  q,
		router: router,
		cfg:    cfg,
		log:    internalLogger(cfg.Logger).WithPrefix("hybridgram [consumer]"),
	}
}

// Run drains the lane until ctx is cancelled.
func (c *UpdateConsumer) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < c.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				if _, err := c.Next(ctx); err != nil && !errors.Is(err, queue.ErrEmpty) && ctx.Err() == nil {
					c.log.WithError(err).Warn("consuming update")
					time.Sleep(100 * time.Millisecond)
				}
			}
		}()
	}
	wg.Wait()
	return ctx.Err()
}

// Next pops and routes one update. Handler errors are logged, not
// returned; the update is not retried.
func (c *UpdateConsumer) Next(ctx context.Context) (*Update, error) {
	job, _, err := c.queue.Pop(ctx, c.cfg.PopTimeout, c.cfg.Lane)
	if err != nil {
		return nil, err
	}
	if job.Kind != UpdateJobKind {
		return nil, errors.Errorf("unexpected job kind %q", job.Kind)
	}
	var u Update
	if err := json.Unmarshal(job.Payload, &u); err != nil {
		return nil, errors.Wrapf(err, "decoding update job %s", job.ID)
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				c.log.WithField("bot_id", job.BotID).Error("[UpdatePanic] %v\n%s", r, utils.Stack())
			}
		}()
		if err := c.router.Dispatch(ctx, job.BotID, &u); err != nil {
			c.log.WithError(err).WithFields(map[string]any{"bot_id": job.BotID, "update_id": u.UpdateID}).Debug("update not handled")
		}
	}()
	return &u, nil
}
