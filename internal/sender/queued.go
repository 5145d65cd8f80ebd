// Copyright (c) 2025 @AmarnathCJD

package sender

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/amarnathcjd/hybridgram/internal/fifo"
	"github.com/amarnathcjd/hybridgram/internal/queue"
	"github.com/amarnathcjd/hybridgram/internal/ratelimit"
	"github.com/amarnathcjd/hybridgram/internal/utils"
)

// JobKind tags queue jobs that carry an outgoing Method.
const JobKind = "send"

// Lanes maps priorities to queue lane names.
type Lanes struct {
	High string
	Low  string
}

func DefaultLanes() Lanes {
	return Lanes{High: queue.LaneHigh, Low: queue.LaneLow}
}

func (l Lanes) For(p ratelimit.Priority) string {
	if p == ratelimit.Low && l.Low != "" {
		return l.Low
	}
	if l.High == "" {
		return queue.LaneHigh
	}
	return l.High
}

// Queued assigns a lane sequence number and enqueues the call for a Worker.
// Dispatch always returns a nil result.
type Queued struct {
	queue queue.Queue
	seq   *fifo.Sequencer
	lanes Lanes
	log   *utils.Logger
}

var _ Dispatcher = (*Queued)(nil)

func NewQueued(q queue.Queue, seq *fifo.Sequencer, lanes Lanes, log *utils.Logger) *Queued {
	if log == nil {
		log = utils.NopLogger()
	}
	return &Queued{queue: q, seq: seq, lanes: lanes, log: log.WithPrefix("hybridgram [sender]")}
}

func (q *Queued) Dispatch(ctx context.Context, botID string, m Method, p ratelimit.Priority) (json.RawMessage, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return nil, errors.Wrapf(err, "encoding %s", m.Name)
	}

	fl := fifo.Lane{BotID: botID, Priority: p}
	n, err := q.seq.Assign(ctx, fl)
	if err != nil {
		return nil, err
	}

	job := queue.NewJob(JobKind, botID, payload)
	job.Priority = p.String()
	job.Seq = n

	lane := q.lanes.For(p)
	if err := q.queue.Push(ctx, lane, job, 0); err != nil {
		// the number was handed out; retire it so later jobs are not stuck behind it
		if aerr := q.seq.Abandon(context.WithoutCancel(ctx), fl, n); aerr != nil {
			q.log.WithError(aerr).WithField("bot_id", botID).Error("lane %s may stall at #%d", fl, n)
		}
		return nil, errors.Wrapf(err, "enqueueing %s", m.Name)
	}
	q.log.WithFields(map[string]any{"bot_id": botID, "seq": n, "lane": lane}).Trace("queued %s", m.Name)
	return nil, nil
}
