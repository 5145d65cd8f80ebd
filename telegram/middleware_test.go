package telegram_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amarnathcjd/hybridgram/internal/cache"
	"github.com/amarnathcjd/hybridgram/telegram"
)

func tracer(trace *[]string, name string) telegram.Middleware {
	return func(ctx context.Context, d *telegram.MatchedData, next telegram.HandlerFunc) error {
		*trace = append(*trace, name+":before")
		err := next(ctx, d)
		*trace = append(*trace, name+":after")
		return err
	}
}

func TestPipeline_Order(t *testing.T) {
	var trace []string
	p := telegram.NewPipeline(tracer(&trace, "a"), tracer(&trace, "b")).Add(tracer(&trace, "c"))
	assert.Equal(t, 3, p.Len())

	d := &telegram.MatchedData{Update: textUpdate(telegram.ChatPrivate, "x")}
	err := p.Process(context.Background(), d, func(context.Context, *telegram.MatchedData) error {
		trace = append(trace, "handler")
		return nil
	})
	require.NoError(t, err)
	assert.True(t, d.Handled())
	assert.Equal(t, []string{"a:before", "b:before", "c:before", "handler", "c:after", "b:after", "a:after"}, trace)
}

func TestPipeline_ShortCircuit(t *testing.T) {
	var trace []string
	stop := func(context.Context, *telegram.MatchedData, telegram.HandlerFunc) error {
		trace = append(trace, "stop")
		return nil
	}
	p := telegram.NewPipeline(tracer(&trace, "a"), stop, tracer(&trace, "b"))

	d := &telegram.MatchedData{Update: textUpdate(telegram.ChatPrivate, "x")}
	err := p.Process(context.Background(), d, func(context.Context, *telegram.MatchedData) error {
		trace = append(trace, "handler")
		return nil
	})
	require.NoError(t, err)
	assert.False(t, d.Handled())
	assert.Equal(t, []string{"a:before", "stop", "a:after"}, trace)
}

func TestRouter_GlobalMiddlewaresWrapRouteMiddlewares(t *testing.T) {
	var trace []string
	r := newRouter(telegram.RouterConfig{Middlewares: []telegram.Middleware{tracer(&trace, "global")}})
	r.Use(tracer(&trace, "use"))

	_, err := r.Route().Middlewares(tracer(&trace, "route")).OnTextMessage(func(*telegram.MatchedData) error {
		trace = append(trace, "handler")
		return nil
	}, nil)
	require.NoError(t, err)

	require.NoError(t, r.Dispatch(context.Background(), "main", textUpdate(telegram.ChatPrivate, "x")))
	assert.Equal(t, []string{
		"global:before", "use:before", "route:before", "handler", "route:after", "use:after", "global:after",
	}, trace)
}

func TestRecover(t *testing.T) {
	var buf bytes.Buffer
	log := telegram.NewLogger(telegram.LogError, telegram.LoggerConfig{Output: &buf})

	p := telegram.NewPipeline(telegram.Recover(log))
	err := p.Process(context.Background(), &telegram.MatchedData{Update: textUpdate(telegram.ChatPrivate, "x")},
		func(context.Context, *telegram.MatchedData) error { panic("boom") })

	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Contains(t, buf.String(), "[HandlerPanic]")
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	log := telegram.NewLogger(telegram.LogDebug, telegram.LoggerConfig{Output: &buf, JSONOutput: true})

	d := &telegram.MatchedData{Type: telegram.RouteTextMessage, BotID: "main", Update: textUpdate(telegram.ChatPrivate, "x")}
	require.NoError(t, telegram.NewPipeline(telegram.Logging(log)).Process(context.Background(), d,
		func(context.Context, *telegram.MatchedData) error { return nil }))

	out := buf.String()
	assert.Contains(t, out, `"message":"update handled"`)
	assert.Contains(t, out, `"type":"TEXT_MESSAGE"`)
	assert.Contains(t, out, `"chat_id":123`)
}

func TestThrottle(t *testing.T) {
	calls := 0
	p := telegram.NewPipeline(telegram.Throttle(0.001, 2))
	handler := func(context.Context, *telegram.MatchedData) error {
		calls++
		return nil
	}
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Process(context.Background(), &telegram.MatchedData{Update: textUpdate(telegram.ChatPrivate, "x")}, handler))
	}
	assert.Equal(t, 2, calls)

	other := textUpdate(telegram.ChatPrivate, "x")
	other.Message.From = &telegram.User{ID: 789}
	require.NoError(t, p.Process(context.Background(), &telegram.MatchedData{Update: other}, handler))
	assert.Equal(t, 3, calls)
}

func TestRequireChatState(t *testing.T) {
	ctx := context.Background()
	states := telegram.NewStateManager(cache.NewMemory())
	r := newRouter(telegram.RouterConfig{States: states})

	calls := 0
	_, err := r.Route().Middlewares(telegram.RequireChatState("open")).OnTextMessage(func(*telegram.MatchedData) error {
		calls++
		return nil
	}, nil)
	require.NoError(t, err)

	require.NoError(t, r.Dispatch(ctx, "main", textUpdate(telegram.ChatPrivate, "x")))
	assert.Zero(t, calls)

	require.NoError(t, states.SetChatState(ctx, 123, "open", 0, nil))
	require.NoError(t, r.Dispatch(ctx, "main", textUpdate(telegram.ChatPrivate, "x")))
	assert.Equal(t, 1, calls)
}

func TestToUserState_SkippedWhenShortCircuited(t *testing.T) {
	ctx := context.Background()
	states := telegram.NewStateManager(cache.NewMemory())
	r := newRouter(telegram.RouterConfig{States: states})

	_, err := r.Route().
		Middlewares(telegram.RequireUserState("never")).
		ToUserState("next", 0, nil).
		OnTextMessage(func(*telegram.MatchedData) error { return nil }, nil)
	require.NoError(t, err)

	require.NoError(t, r.Dispatch(ctx, "main", textUpdate(telegram.ChatPrivate, "x")))
	st, err := states.UserState(ctx, 123, 456)
	require.NoError(t, err)
	assert.Nil(t, st)
}
