// Copyright (c) 2025 @AmarnathCJD

package sender

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/amarnathcjd/hybridgram"
	"github.com/amarnathcjd/hybridgram/internal/fifo"
	"github.com/amarnathcjd/hybridgram/internal/queue"
	"github.com/amarnathcjd/hybridgram/internal/ratelimit"
	"github.com/amarnathcjd/hybridgram/internal/utils"
)

const (
	DefaultMaxAttempts = 5
	defaultPopTimeout  = time.Second
	transientBackoff   = time.Second
)

// Outcome is what Process did with a job.
type Outcome int

const (
	Sent Outcome = iota
	Skipped
	Requeued
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Sent:
		return "sent"
	case Skipped:
		return "skipped"
	case Requeued:
		return "requeued"
	default:
		return "failed"
	}
}

type WorkerConfig struct {
	Queue       queue.Queue
	Caller      Caller
	Limiter     *ratelimit.Limiter
	Sequencer   *fifo.Sequencer
	Lanes       Lanes
	MaxAttempts int
	Concurrency int
	PopTimeout  time.Duration
	Reporting   Reporting
	Log         *utils.Logger
}

// Worker drains the send lanes. It never sleeps on a busy limiter or a
// closed gate; it puts the job back with a delay instead.
type Worker struct {
	cfg WorkerConfig
	log *utils.Logger
}

func NewWorker(cfg WorkerConfig) *Worker {
	if cfg.Lanes.High == "" && cfg.Lanes.Low == "" {
		cfg.Lanes = DefaultLanes()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.PopTimeout <= 0 {
		cfg.PopTimeout = defaultPopTimeout
	}
	if cfg.Log == nil {
		cfg.Log = utils.NopLogger()
	}
	return &Worker{cfg: cfg, log: cfg.Log.WithPrefix("hybridgram [worker]")}
}

// Run pops jobs, high lane first, until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx)
		}()
	}
	wg.Wait()
	return ctx.Err()
}

func (w *Worker) loop(ctx context.Context) {
	lanes := []string{w.cfg.Lanes.High, w.cfg.Lanes.Low}
	for ctx.Err() == nil {
		job, lane, err := w.cfg.Queue.Pop(ctx, w.cfg.PopTimeout, lanes...)
		if errors.Is(err, queue.ErrEmpty) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.WithError(err).Warn("queue pop failed")
			_ = sleepCtx(ctx, transientBackoff)
			continue
		}
		if _, err := w.Process(ctx, job, lane); err != nil {
			w.log.WithFields(map[string]any{"job_id": job.ID, "bot_id": job.BotID}).WithError(err).Error("job failed")
		}
	}
}

// Process runs one job through gate, limiter and API. The returned error is
// non-nil only when the job failed for good.
func (w *Worker) Process(ctx context.Context, job *queue.Job, lane string) (Outcome, error) {
	if job.Kind != JobKind {
		return Failed, errors.Errorf("unexpected job kind %q on %s", job.Kind, lane)
	}
	var m Method
	if err := json.Unmarshal(job.Payload, &m); err != nil {
		return Failed, errors.Wrap(err, "decoding queued method")
	}

	p := ratelimit.ParsePriority(job.Priority)
	fl := fifo.Lane{BotID: job.BotID, Priority: p}
	log := w.log.WithFields(map[string]any{"bot_id": job.BotID, "priority": job.Priority, "sequence": job.Seq})

	verdict, err := w.cfg.Sequencer.Enter(ctx, fl, job.Seq)
	if err != nil {
		return w.requeue(ctx, job, lane, w.cfg.Sequencer.Backoff())
	}
	switch verdict {
	case fifo.Skip:
		log.Debug("sequence already consumed, dropping %s", m.Name)
		return Skipped, nil
	case fifo.Wait:
		return w.requeue(ctx, job, lane, w.cfg.Sequencer.Backoff())
	}

	d, err := w.cfg.Limiter.Acquire(ctx, job.BotID, p)
	if err != nil || !d.Allow {
		delay := d.Delay
		if err != nil {
			log.WithError(err).Warn("rate limiter unavailable")
			delay = w.cfg.Sequencer.Backoff()
		}
		_ = w.cfg.Sequencer.Release(ctx, fl, job.Seq)
		return w.requeue(ctx, job, lane, delay)
	}

	_, err = w.cfg.Caller.Call(ctx, job.BotID, m)
	if err == nil {
		return Sent, w.complete(ctx, fl, job.Seq)
	}

	w.cfg.Reporting.report(w.log, job.BotID, map[string]any{"priority": job.Priority, "sequence": job.Seq}, err)

	if hybridgram.IsTerminal(err) {
		// a rejected send must not block the rest of the lane
		if cerr := w.complete(ctx, fl, job.Seq); cerr != nil {
			log.WithError(cerr).Warn("advancing fifo pointer failed")
		}
		return Failed, err
	}

	job.Attempts++
	if job.Attempts >= w.cfg.MaxAttempts {
		log.Warn("giving up on %s after %d attempts", m.Name, job.Attempts)
		if cerr := w.complete(ctx, fl, job.Seq); cerr != nil {
			log.WithError(cerr).Warn("advancing fifo pointer failed")
		}
		return Failed, errors.Wrapf(err, "%s failed after %d attempts", m.Name, job.Attempts)
	}

	_ = w.cfg.Sequencer.Release(ctx, fl, job.Seq)
	delay := hybridgram.RetryAfter(err)
	if delay == 0 {
		delay = transientBackoff
	}
	return w.requeue(ctx, job, lane, delay)
}

func (w *Worker) complete(ctx context.Context, fl fifo.Lane, seq int64) error {
	return w.cfg.Sequencer.Complete(ctx, fl, seq)
}

func (w *Worker) requeue(ctx context.Context, job *queue.Job, lane string, delay time.Duration) (Outcome, error) {
	if err := w.cfg.Queue.Push(ctx, lane, job, delay); err != nil {
		return Failed, errors.Wrap(err, "requeueing job")
	}
	return Requeued, nil
}
