// Copyright (c) 2025 @AmarnathCJD

// Package queue is a small at-least-once job queue with named lanes and
// delayed re-delivery.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Lane names used by the module.
const (
	LaneHigh    = "telegram-high"
	LaneLow     = "telegram-low"
	LaneUpdates = "telegram-updates"
)

// ErrEmpty is returned by Pop when nothing became ready before the timeout.
var ErrEmpty = errors.New("queue: no job ready")

// Job is the envelope stored on a lane.
type Job struct {
	ID       string          `json:"id"`
	Kind     string          `json:"kind"`
	BotID    string          `json:"bot_id"`
	Priority string          `json:"priority,omitempty"`
	Seq      int64           `json:"seq,omitempty"`
	Attempts int             `json:"attempts"`
	PushedAt time.Time       `json:"pushed_at"`
	Payload  json.RawMessage `json:"payload"`
}

// NewJob stamps a job with a fresh id.
func NewJob(kind, botID string, payload json.RawMessage) *Job {
	return &Job{
		ID:       uuid.NewString(),
		Kind:     kind,
		BotID:    botID,
		PushedAt: time.Now().UTC(),
		Payload:  payload,
	}
}

type Queue interface {
	// Push makes job available on lane after delay.
	Push(ctx context.Context, lane string, job *Job, delay time.Duration) error
	// Pop blocks up to timeout for a ready job, checking lanes in the given
	// order. It returns ErrEmpty when nothing is ready.
	Pop(ctx context.Context, timeout time.Duration, lanes ...string) (*Job, string, error)
	// Len counts ready and delayed jobs on lane.
	Len(ctx context.Context, lane string) (int, error)
}

func encode(job *Job) ([]byte, error) {
	b, err := json.Marshal(job)
	return b, errors.Wrap(err, "encoding job")
}

func decode(raw []byte) (*Job, error) {
	job := new(Job)
	if err := json.Unmarshal(raw, job); err != nil {
		return nil, errors.Wrap(err, "decoding job")
	}
	return job, nil
}
