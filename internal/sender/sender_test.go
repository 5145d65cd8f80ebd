package sender_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amarnathcjd/hybridgram"
	"github.com/amarnathcjd/hybridgram/internal/cache"
	"github.com/amarnathcjd/hybridgram/internal/fifo"
	"github.com/amarnathcjd/hybridgram/internal/queue"
	"github.com/amarnathcjd/hybridgram/internal/ratelimit"
	"github.com/amarnathcjd/hybridgram/internal/sender"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock { return &fakeClock{now: time.UnixMilli(1_700_000_000_000)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recorder is a Caller that remembers calls and fails on demand.
type recorder struct {
	mu    sync.Mutex
	calls []sender.Method
	fail  func(m sender.Method) error
}

func (r *recorder) Call(_ context.Context, _ string, m sender.Method) (json.RawMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		if err := r.fail(m); err != nil {
			return nil, err
		}
	}
	r.calls = append(r.calls, m)
	return json.RawMessage(`true`), nil
}

func (r *recorder) texts() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []any
	for _, c := range r.calls {
		out = append(out, c.Params["text"])
	}
	return out
}

func sendMessage(text string) sender.Method {
	return sender.Method{Name: "sendMessage", Params: map[string]any{"chat_id": 123, "text": text}}
}

func TestDirect_PassesThrough(t *testing.T) {
	rec := &recorder{}
	d := sender.NewDirect(rec, sender.DefaultReporting(), nil)

	res, err := d.Dispatch(context.Background(), "main", sendMessage("hi"), ratelimit.Low)
	require.NoError(t, err)
	assert.JSONEq(t, `true`, string(res))
	assert.Equal(t, []any{"hi"}, rec.texts())
}

func TestIsServiceMethod(t *testing.T) {
	for _, name := range []string{"getUpdates", "setWebhook", "deleteWebhook", "getWebhookInfo", "getMe", "logOut", "close"} {
		assert.True(t, sender.IsServiceMethod(name), name)
	}
	assert.False(t, sender.IsServiceMethod("sendMessage"))
}

func newSync(t *testing.T, perMinute int, clock *fakeClock, maxWait time.Duration, slept *[]time.Duration) (*sender.Sync, *ratelimit.Limiter, *recorder) {
	t.Helper()
	limiter := ratelimit.New(cache.NewMemory(), ratelimit.Config{PerMinute: perMinute, Now: clock.Now})
	rec := &recorder{}
	s := sender.NewSync(rec, limiter, sender.SyncConfig{
		MaxWait: maxWait,
		Now:     clock.Now,
		Sleep: func(_ context.Context, d time.Duration) error {
			*slept = append(*slept, d)
			clock.Advance(d)
			return nil
		},
	})
	return s, limiter, rec
}

func TestSync_AllowsAndRecords(t *testing.T) {
	ctx := context.Background()
	var slept []time.Duration
	s, limiter, rec := newSync(t, 2, newClock(), time.Second, &slept)

	_, err := s.Dispatch(ctx, "main", sendMessage("a"), ratelimit.High)
	require.NoError(t, err)

	used, err := limiter.Usage(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, 1, used)
	assert.Empty(t, slept)
	assert.Equal(t, []any{"a"}, rec.texts())
}

func TestSync_WaitsForSlot(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	var slept []time.Duration
	s, limiter, rec := newSync(t, 1, clock, 2*time.Second, &slept)

	require.NoError(t, limiter.Record(ctx, "main"))
	clock.Advance(59500 * time.Millisecond)

	_, err := s.Dispatch(ctx, "main", sendMessage("late"), ratelimit.High)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{500 * time.Millisecond}, slept)
	assert.Equal(t, []any{"late"}, rec.texts())
}

func TestSync_GivesUpAfterMaxWait(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	var slept []time.Duration
	s, limiter, rec := newSync(t, 1, clock, 2*time.Second, &slept)

	require.NoError(t, limiter.Record(ctx, "main"))

	_, err := s.Dispatch(ctx, "main", sendMessage("never"), ratelimit.High)
	require.Error(t, err)
	assert.True(t, hybridgram.IsRateLimited(err))

	var rl *hybridgram.RateLimitedError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, "main", rl.BotID)
	assert.Equal(t, 58*time.Second, rl.Delay)
	assert.Equal(t, []time.Duration{2 * time.Second}, slept)
	assert.Empty(t, rec.texts())
}

type rig struct {
	queue   *queue.Memory
	seq     *fifo.Sequencer
	limiter *ratelimit.Limiter
	rec     *recorder
	worker  *sender.Worker
	queued  *sender.Queued
}

func newRig(perMinute, maxAttempts int) *rig {
	store := cache.NewMemory()
	r := &rig{
		queue:   queue.NewMemory(),
		seq:     fifo.New(store, nil),
		limiter: ratelimit.New(store, ratelimit.Config{PerMinute: perMinute}),
		rec:     &recorder{},
	}
	r.queued = sender.NewQueued(r.queue, r.seq, sender.DefaultLanes(), nil)
	r.worker = sender.NewWorker(sender.WorkerConfig{
		Queue:       r.queue,
		Caller:      r.rec,
		Limiter:     r.limiter,
		Sequencer:   r.seq,
		MaxAttempts: maxAttempts,
	})
	return r
}

func (r *rig) pop(t *testing.T) (*queue.Job, string) {
	t.Helper()
	job, lane, err := r.queue.Pop(context.Background(), 50*time.Millisecond, queue.LaneHigh, queue.LaneLow)
	require.NoError(t, err)
	return job, lane
}

func TestQueued_AssignsSequenceAndLane(t *testing.T) {
	ctx := context.Background()
	r := newRig(100, 0)

	res, err := r.queued.Dispatch(ctx, "main", sendMessage("a"), ratelimit.Low)
	require.NoError(t, err)
	assert.Nil(t, res)
	_, err = r.queued.Dispatch(ctx, "main", sendMessage("b"), ratelimit.Low)
	require.NoError(t, err)
	_, err = r.queued.Dispatch(ctx, "main", sendMessage("urgent"), ratelimit.High)
	require.NoError(t, err)

	job, lane := r.pop(t)
	assert.Equal(t, queue.LaneHigh, lane)
	assert.Equal(t, int64(1), job.Seq)
	assert.Equal(t, "high", job.Priority)

	job, lane = r.pop(t)
	assert.Equal(t, queue.LaneLow, lane)
	assert.Equal(t, int64(1), job.Seq)

	job, _ = r.pop(t)
	assert.Equal(t, int64(2), job.Seq)
	assert.Equal(t, sender.JobKind, job.Kind)
}

// flakyQueue fails the next `failures` pushes.
type flakyQueue struct {
	*queue.Memory
	failures int
}

func (q *flakyQueue) Push(ctx context.Context, lane string, job *queue.Job, delay time.Duration) error {
	if q.failures > 0 {
		q.failures--
		return errors.New("queue unavailable")
	}
	return q.Memory.Push(ctx, lane, job, delay)
}

func TestQueued_FailedPushDoesNotStallLane(t *testing.T) {
	ctx := context.Background()
	r := newRig(100, 0)
	flaky := &flakyQueue{Memory: r.queue, failures: 1}
	queued := sender.NewQueued(flaky, r.seq, sender.DefaultLanes(), nil)

	_, err := queued.Dispatch(ctx, "main", sendMessage("a"), ratelimit.Low)
	require.Error(t, err)
	_, err = queued.Dispatch(ctx, "main", sendMessage("b"), ratelimit.Low)
	require.NoError(t, err)

	job, lane := r.pop(t)
	assert.Equal(t, int64(2), job.Seq)
	out, err := r.worker.Process(ctx, job, lane)
	require.NoError(t, err)
	assert.Equal(t, sender.Sent, out)
	assert.Equal(t, []any{"b"}, r.rec.texts())

	next, err := r.seq.Next(ctx, fifo.Lane{BotID: "main", Priority: ratelimit.Low})
	require.NoError(t, err)
	assert.Equal(t, int64(3), next)
}

func TestWorker_TerminalFailureAdvancesLane(t *testing.T) {
	ctx := context.Background()
	r := newRig(100, 0)
	r.rec.fail = func(m sender.Method) error {
		if m.Params["text"] == "2" {
			return hybridgram.NewRemoteAPIError("sendMessage", 400, "Bad Request: chat not found", 0, 400, `{"ok":false}`)
		}
		return nil
	}
	for _, text := range []string{"1", "2", "3"} {
		_, err := r.queued.Dispatch(ctx, "main", sendMessage(text), ratelimit.Low)
		require.NoError(t, err)
	}

	var outcomes []sender.Outcome
	for i := 0; i < 3; i++ {
		job, lane := r.pop(t)
		out, _ := r.worker.Process(ctx, job, lane)
		outcomes = append(outcomes, out)
	}

	assert.Equal(t, []sender.Outcome{sender.Sent, sender.Failed, sender.Sent}, outcomes)
	assert.Equal(t, []any{"1", "3"}, r.rec.texts())

	next, err := r.seq.Next(ctx, fifo.Lane{BotID: "main", Priority: ratelimit.Low})
	require.NoError(t, err)
	assert.Equal(t, int64(4), next)
}

func TestWorker_OutOfOrderWaits(t *testing.T) {
	ctx := context.Background()
	r := newRig(100, 0)
	for _, text := range []string{"1", "2"} {
		_, err := r.queued.Dispatch(ctx, "main", sendMessage(text), ratelimit.Low)
		require.NoError(t, err)
	}
	first, lane := r.pop(t)
	second, _ := r.pop(t)

	out, err := r.worker.Process(ctx, second, lane)
	require.NoError(t, err)
	assert.Equal(t, sender.Requeued, out)

	out, err = r.worker.Process(ctx, first, lane)
	require.NoError(t, err)
	assert.Equal(t, sender.Sent, out)

	// a duplicate delivery of an already sent job is dropped
	out, err = r.worker.Process(ctx, first, lane)
	require.NoError(t, err)
	assert.Equal(t, sender.Skipped, out)

	time.Sleep(150 * time.Millisecond)
	again, lane := r.pop(t)
	out, err = r.worker.Process(ctx, again, lane)
	require.NoError(t, err)
	assert.Equal(t, sender.Sent, out)
	assert.Equal(t, []any{"1", "2"}, r.rec.texts())
}

func TestWorker_LimiterDenialRequeues(t *testing.T) {
	ctx := context.Background()
	r := newRig(0, 0)
	_, err := r.queued.Dispatch(ctx, "main", sendMessage("x"), ratelimit.High)
	require.NoError(t, err)

	job, lane := r.pop(t)
	out, err := r.worker.Process(ctx, job, lane)
	require.NoError(t, err)
	assert.Equal(t, sender.Requeued, out)
	assert.Empty(t, r.rec.texts())

	n, err := r.queue.Len(ctx, queue.LaneHigh)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// the gate was released, so the same sequence may enter again
	v, err := r.seq.Enter(ctx, fifo.Lane{BotID: "main", Priority: ratelimit.High}, 1)
	require.NoError(t, err)
	assert.Equal(t, fifo.Proceed, v)
}

func TestWorker_TransientFailureRetries(t *testing.T) {
	ctx := context.Background()
	r := newRig(100, 0)
	failures := 1
	r.rec.fail = func(sender.Method) error {
		if failures > 0 {
			failures--
			return hybridgram.NewRemoteAPIError("sendMessage", 429, "Too Many Requests: retry after 0", 0, 429, "")
		}
		return nil
	}
	_, err := r.queued.Dispatch(ctx, "main", sendMessage("x"), ratelimit.Low)
	require.NoError(t, err)

	job, lane := r.pop(t)
	out, err := r.worker.Process(ctx, job, lane)
	require.NoError(t, err)
	assert.Equal(t, sender.Requeued, out)
	assert.Equal(t, 1, job.Attempts)

	out, err = r.worker.Process(ctx, job, lane)
	require.NoError(t, err)
	assert.Equal(t, sender.Sent, out)
	assert.Equal(t, []any{"x"}, r.rec.texts())
}

func TestWorker_MaxAttemptsAdvancesLane(t *testing.T) {
	ctx := context.Background()
	r := newRig(100, 1)
	r.rec.fail = func(sender.Method) error {
		return hybridgram.NewRemoteAPIError("sendMessage", 500, "Internal Server Error", 0, 500, "")
	}
	_, err := r.queued.Dispatch(ctx, "main", sendMessage("x"), ratelimit.Low)
	require.NoError(t, err)

	job, lane := r.pop(t)
	out, err := r.worker.Process(ctx, job, lane)
	require.Error(t, err)
	assert.Equal(t, sender.Failed, out)

	next, err := r.seq.Next(ctx, fifo.Lane{BotID: "main", Priority: ratelimit.Low})
	require.NoError(t, err)
	assert.Equal(t, int64(2), next)
}

func TestWorker_RunDrainsLanes(t *testing.T) {
	r := newRig(100, 0)
	for _, text := range []string{"1", "2", "3"} {
		_, err := r.queued.Dispatch(context.Background(), "main", sendMessage(text), ratelimit.Low)
		require.NoError(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.worker.Run(ctx) }()

	assert.Eventually(t, func() bool { return len(r.rec.texts()) == 3 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, []any{"1", "2", "3"}, r.rec.texts())
}
