package telegram_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/amarnathcjd/hybridgram/internal/queue"
	"github.com/amarnathcjd/hybridgram/telegram"
)

const startUpdate = `{"update_id":77,"message":{"message_id":5,"date":1,"chat":{"id":123,"type":"private"},` +
	`"from":{"id":456,"is_bot":false,"first_name":"Ann"},"text":"/start"}}`

func webhookRequest(method, path, secret, body string) *fasthttp.RequestCtx {
	var req fasthttp.Request
	req.Header.SetMethod(method)
	req.SetRequestURI(path)
	if secret != "" {
		req.Header.Set(telegram.SecretTokenHeader, secret)
	}
	req.SetBodyString(body)

	ctx := &fasthttp.RequestCtx{}
	ctx.Init(&req, nil, nil)
	return ctx
}

func commandRouter(t *testing.T, c *capture) *telegram.Router {
	r := newRouter(telegram.RouterConfig{DisableDefaultFallback: true})
	_, err := r.Route().OnCommand(c.action("start"), "start")
	require.NoError(t, err)
	return r
}

func TestWebhook_SyncDispatch(t *testing.T) {
	c := &capture{}
	s := telegram.NewWebhookServer(commandRouter(t, c), telegram.WebhookConfig{Secret: "s3cret", Logger: telegram.NopLogger()})

	ctx := webhookRequest(fasthttp.MethodPost, "/telegram/bot/webhook/main", "s3cret", startUpdate)
	s.Handler(ctx)

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	require.Equal(t, []string{"start"}, c.calls)
	assert.Equal(t, "main", c.last.BotID)
	assert.Equal(t, int64(77), c.last.Update.UpdateID)
}

func TestWebhook_SecretMismatch(t *testing.T) {
	c := &capture{}
	s := telegram.NewWebhookServer(commandRouter(t, c), telegram.WebhookConfig{
		Secret:  "global",
		Secrets: map[string]string{"support": "support-secret"},
		Logger:  telegram.NopLogger(),
	})

	for _, tc := range []struct{ bot, secret string }{
		{"main", ""},
		{"main", "wrong"},
		{"main", "support-secret"},
		{"support", "global"},
	} {
		ctx := webhookRequest(fasthttp.MethodPost, "/telegram/bot/webhook/"+tc.bot, tc.secret, startUpdate)
		s.Handler(ctx)
		assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	}
	assert.Empty(t, c.calls)

	ctx := webhookRequest(fasthttp.MethodPost, "/telegram/bot/webhook/support", "support-secret", startUpdate)
	s.Handler(ctx)
	assert.Equal(t, []string{"start"}, c.calls)
}

func TestWebhook_RejectsAndIgnores(t *testing.T) {
	c := &capture{}
	s := telegram.NewWebhookServer(commandRouter(t, c), telegram.WebhookConfig{Logger: telegram.NopLogger()})

	ctx := webhookRequest(fasthttp.MethodPost, "/telegram/bot/webhook/main", "", "{not json")
	s.Handler(ctx)
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())

	for _, req := range []struct{ method, path string }{
		{fasthttp.MethodGet, "/telegram/bot/webhook/main"},
		{fasthttp.MethodPost, "/telegram/bot/webhook/"},
		{fasthttp.MethodPost, "/other/main"},
	} {
		ctx := webhookRequest(req.method, req.path, "", startUpdate)
		s.Handler(ctx)
		assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode(), req.path)
	}
	assert.Empty(t, c.calls)
}

func TestWebhook_DuplicateUpdatesDropped(t *testing.T) {
	c := &capture{}
	s := telegram.NewWebhookServer(commandRouter(t, c), telegram.WebhookConfig{Logger: telegram.NopLogger()})

	for i := 0; i < 3; i++ {
		s.Handler(webhookRequest(fasthttp.MethodPost, "/telegram/bot/webhook/main", "", startUpdate))
	}
	// the same update id for another bot is a different delivery
	s.Handler(webhookRequest(fasthttp.MethodPost, "/telegram/bot/webhook/support", "", startUpdate))

	assert.Equal(t, []string{"start", "start"}, c.calls)
}

func TestWebhook_AsyncQueueAndConsumer(t *testing.T) {
	c := &capture{}
	router := commandRouter(t, c)
	q := queue.NewMemory()
	s := telegram.NewWebhookServer(router, telegram.WebhookConfig{Queue: q, Logger: telegram.NopLogger()})

	ctx := webhookRequest(fasthttp.MethodPost, "/telegram/bot/webhook/main", "", startUpdate)
	s.Handler(ctx)
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Empty(t, c.calls)

	n, err := q.Len(context.Background(), queue.LaneUpdates)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	consumer := telegram.NewUpdateConsumer(q, router, telegram.ConsumerConfig{PopTimeout: 50 * time.Millisecond, Logger: telegram.NopLogger()})
	u, err := consumer.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(77), u.UpdateID)
	assert.Equal(t, []string{"start"}, c.calls)
	assert.Equal(t, "main", c.last.BotID)

	_, err = consumer.Next(context.Background())
	assert.ErrorIs(t, err, queue.ErrEmpty)
}

// switchQueue fails every Push while down is set.
type switchQueue struct {
	*queue.Memory
	down bool
}

func (q *switchQueue) Push(ctx context.Context, lane string, job *queue.Job, delay time.Duration) error {
	if q.down {
		return errors.New("queue unavailable")
	}
	return q.Memory.Push(ctx, lane, job, delay)
}

func TestWebhook_AsyncPushFailureAsksForRedelivery(t *testing.T) {
	q := &switchQueue{Memory: queue.NewMemory(), down: true}
	s := telegram.NewWebhookServer(commandRouter(t, &capture{}), telegram.WebhookConfig{Queue: q, Logger: telegram.NopLogger()})

	ctx := webhookRequest(fasthttp.MethodPost, "/telegram/bot/webhook/main", "", startUpdate)
	s.Handler(ctx)
	assert.Equal(t, fasthttp.StatusServiceUnavailable, ctx.Response.StatusCode())

	// Telegram redelivers the same update once the queue is back
	q.down = false
	ctx = webhookRequest(fasthttp.MethodPost, "/telegram/bot/webhook/main", "", startUpdate)
	s.Handler(ctx)
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())

	n, err := q.Len(context.Background(), queue.LaneUpdates)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestWebhook_PanickingActionIsRecovered(t *testing.T) {
	r := newRouter(telegram.RouterConfig{})
	_, err := r.Route().OnCommand(func(*telegram.MatchedData) error { panic("boom") }, "start")
	require.NoError(t, err)
	s := telegram.NewWebhookServer(r, telegram.WebhookConfig{Logger: telegram.NopLogger()})

	ctx := webhookRequest(fasthttp.MethodPost, "/telegram/bot/webhook/main", "", startUpdate)
	assert.NotPanics(t, func() { s.Handler(ctx) })
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
}
