// Copyright (c) 2025 @AmarnathCJD

// Package fifo keeps queued sends of one (bot, priority) lane in strict
// sequence order across any number of workers.
package fifo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/amarnathcjd/hybridgram/internal/cache"
	"github.com/amarnathcjd/hybridgram/internal/ratelimit"
	"github.com/amarnathcjd/hybridgram/internal/utils"
)

const (
	DefaultBackoff = 100 * time.Millisecond

	pointerTTL    = 30 * 24 * time.Hour
	processingTTL = 30 * time.Second
	lockHold      = 5 * time.Second
	lockWait      = 2 * time.Second
)

// Lane identifies one ordered stream of sends.
type Lane struct {
	BotID    string
	Priority ratelimit.Priority
}

func (l Lane) String() string { return l.BotID + ":" + l.Priority.String() }

func (l Lane) key(suffix string) string {
	return fmt.Sprintf("tg:out:%s:%s:%s", l.BotID, l.Priority, suffix)
}

func (l Lane) abandonedKey(seq int64) string {
	return l.key("fifo:abandoned:" + strconv.FormatInt(seq, 10))
}

// Verdict tells the worker what to do with a job at the gate.
type Verdict int

const (
	Proceed Verdict = iota
	// Skip means the sequence was already consumed; drop the job silently.
	Skip
	// Wait means it is not this job's turn yet; reschedule after Backoff.
	Wait
)

func (v Verdict) String() string {
	switch v {
	case Proceed:
		return "proceed"
	case Skip:
		return "skip"
	default:
		return "wait"
	}
}

type Sequencer struct {
	store   cache.Store
	backoff time.Duration
	log     *utils.Logger
}

func New(store cache.Store, log *utils.Logger) *Sequencer {
	if log == nil {
		log = utils.NopLogger()
	}
	return &Sequencer{store: store, backoff: DefaultBackoff, log: log}
}

// Backoff is the reschedule delay that goes with a Wait verdict.
func (s *Sequencer) Backoff() time.Duration { return s.backoff }

// Assign hands out the next sequence number for lane, starting at 1.
func (s *Sequencer) Assign(ctx context.Context, lane Lane) (int64, error) {
	seq, err := s.store.Incr(ctx, lane.key("seq"))
	return seq, errors.Wrapf(err, "assigning sequence for %s", lane)
}

// Enter decides whether seq may be sent now and, if so, marks it in flight.
func (s *Sequencer) Enter(ctx context.Context, lane Lane, seq int64) (Verdict, error) {
	verdict := Wait
	err := s.locked(ctx, lane, func() error {
		next, err := s.next(ctx, lane)
		if err != nil {
			return err
		}
		switch {
		case seq < next:
			verdict = Skip
			return nil
		case seq > next:
			verdict = Wait
			return nil
		}

		processing, ok, err := s.readInt(ctx, lane.key("fifo:processing"))
		if err != nil {
			return err
		}
		if ok && processing != seq {
			verdict = Wait
			return nil
		}

		verdict = Proceed
		return s.store.Set(ctx, lane.key("fifo:processing"), []byte(strconv.FormatInt(seq, 10)), processingTTL)
	})
	if errors.Is(err, cache.ErrLockTimeout) {
		return Wait, nil
	}
	return verdict, errors.Wrapf(err, "entering fifo gate for %s #%d", lane, seq)
}

// Complete advances the lane past seq and clears the marker. Called on
// success and on terminal failures so one rejected send cannot wedge the lane.
func (s *Sequencer) Complete(ctx context.Context, lane Lane, seq int64) error {
	err := s.locked(ctx, lane, func() error {
		next, err := s.next(ctx, lane)
		if err != nil {
			return err
		}
		if seq+1 > next {
			next = seq + 1
		}
		if err := s.advance(ctx, lane, next); err != nil {
			return err
		}
		return s.clearMarker(ctx, lane, seq)
	})
	return errors.Wrapf(err, "advancing fifo pointer for %s #%d", lane, seq)
}

// Abandon retires a sequence that was assigned but never enqueued. Earlier
// sequences keep their turn; the lane steps over seq once they complete.
func (s *Sequencer) Abandon(ctx context.Context, lane Lane, seq int64) error {
	err := s.locked(ctx, lane, func() error {
		next, err := s.next(ctx, lane)
		if err != nil {
			return err
		}
		switch {
		case seq < next:
			return nil
		case seq > next:
			return s.store.Set(ctx, lane.abandonedKey(seq), []byte("1"), pointerTTL)
		}
		return s.advance(ctx, lane, seq+1)
	})
	return errors.Wrapf(err, "abandoning %s #%d", lane, seq)
}

// advance moves the lane pointer to next, stepping over abandoned sequences.
func (s *Sequencer) advance(ctx context.Context, lane Lane, next int64) error {
	for {
		key := lane.abandonedKey(next)
		_, ok, err := s.store.Get(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if err := s.store.Delete(ctx, key); err != nil {
			return err
		}
		next++
	}
	return s.store.Set(ctx, lane.key("fifo:next"), []byte(strconv.FormatInt(next, 10)), pointerTTL)
}

// Release clears the in-flight marker without advancing, so the same
// sequence is retried next.
func (s *Sequencer) Release(ctx context.Context, lane Lane, seq int64) error {
	err := s.locked(ctx, lane, func() error {
		return s.clearMarker(ctx, lane, seq)
	})
	return errors.Wrapf(err, "releasing fifo gate for %s #%d", lane, seq)
}

// Next returns the lowest unconsumed sequence of lane.
func (s *Sequencer) Next(ctx context.Context, lane Lane) (int64, error) {
	return s.next(ctx, lane)
}

func (s *Sequencer) next(ctx context.Context, lane Lane) (int64, error) {
	n, ok, err := s.readInt(ctx, lane.key("fifo:next"))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 1, nil
	}
	return n, nil
}

func (s *Sequencer) clearMarker(ctx context.Context, lane Lane, seq int64) error {
	processing, ok, err := s.readInt(ctx, lane.key("fifo:processing"))
	if err != nil {
		return err
	}
	if ok && processing == seq {
		return s.store.Delete(ctx, lane.key("fifo:processing"))
	}
	return nil
}

func (s *Sequencer) readInt(ctx context.Context, key string) (int64, bool, error) {
	raw, ok, err := s.store.Get(ctx, key)
	if err != nil || !ok {
		return 0, false, err
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		s.log.WithField("key", key).Warn("ignoring malformed fifo value %q", raw)
		return 0, false, nil
	}
	return n, true, nil
}

func (s *Sequencer) locked(ctx context.Context, lane Lane, fn func() error) error {
	locked, err := cache.WithLock(ctx, s.store, lane.key("fifo:lock"), lockHold, lockWait, fn)
	if !locked && err == nil {
		s.log.WithField("lane", lane.String()).Trace("fifo gate running without a lock")
	}
	return err
}
