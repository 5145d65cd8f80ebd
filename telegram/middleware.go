// Copyright (c) 2025 @AmarnathCJD

package telegram

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/amarnathcjd/hybridgram/internal/utils"
)

// Pipeline composes middlewares around a final handler. Middlewares run in
// the order they were added and unwind in reverse.
type Pipeline struct {
	middlewares []Middleware
}

func NewPipeline(middlewares ...Middleware) *Pipeline {
	return &Pipeline{middlewares: append([]Middleware(nil), middlewares...)}
}

func (p *Pipeline) Add(middlewares ...Middleware) *Pipeline {
	p.middlewares = append(p.middlewares, middlewares...)
	return p
}

func (p *Pipeline) Len() int { return len(p.middlewares) }

// Process runs data through the chain. A middleware that returns without
// calling next leaves data.Handled() false and Process returns its result.
func (p *Pipeline) Process(ctx context.Context, data *MatchedData, final HandlerFunc) error {
	h := func(ctx context.Context, d *MatchedData) error {
		d.handled = true
		return final(ctx, d)
	}
	for i := len(p.middlewares) - 1; i >= 0; i-- {
		mw, next := p.middlewares[i], h
		h = func(ctx context.Context, d *MatchedData) error {
			return mw(ctx, d, next)
		}
	}
	return h(ctx, data)
}

// Recover turns a panic in the rest of the chain into an error.
func Recover(log Logger) Middleware {
	return func(ctx context.Context, d *MatchedData, next HandlerFunc) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = errors.Errorf("handler panic: %v", r)
				if log != nil {
					log.WithFields(map[string]any{"bot_id": d.BotID, "type": d.Type.String()}).
						Error("[HandlerPanic] recovered: %v\n%s", r, utils.Stack())
				}
			}
		}()
		return next(ctx, d)
	}
}

// Logging writes one debug line per handled update.
func Logging(log Logger) Middleware {
	return func(ctx context.Context, d *MatchedData, next HandlerFunc) error {
		start := time.Now()
		err := next(ctx, d)

		l := log.WithFields(map[string]any{
			"bot_id":   d.BotID,
			"type":     d.Type.String(),
			"duration": time.Since(start).Round(time.Microsecond).String(),
		})
		if c := d.Chat(); c != nil {
			l = l.WithField("chat_id", c.ID)
		}
		if u := d.User(); u != nil {
			l = l.WithField("user_id", u.ID)
		}
		if err != nil {
			l.WithError(err).Debug("update handled with error")
		} else {
			l.Debug("update handled")
		}
		return err
	}
}

// Throttle allows each user perSecond updates with the given burst and
// drops the rest silently. Updates without a user are not throttled.
func Throttle(perSecond float64, burst int) Middleware {
	var (
		mu       sync.Mutex
		limiters = make(map[int64]*rate.Limiter)
	)
	limiterFor := func(userID int64) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		l, ok := limiters[userID]
		if !ok {
			l = rate.NewLimiter(rate.Limit(perSecond), burst)
			limiters[userID] = l
		}
		return l
	}

	return func(ctx context.Context, d *MatchedData, next HandlerFunc) error {
		if u := d.User(); u != nil && !limiterFor(u.ID).Allow() {
			return nil
		}
		return next(ctx, d)
	}
}

// RequireChatState continues only when the chat state is one of names.
func RequireChatState(names ...string) Middleware {
	return func(ctx context.Context, d *MatchedData, next HandlerFunc) error {
		if !d.States.Chat.Is(names...) {
			return nil
		}
		return next(ctx, d)
	}
}

// RequireUserState continues only when the user state is one of names.
func RequireUserState(names ...string) Middleware {
	return func(ctx context.Context, d *MatchedData, next HandlerFunc) error {
		if !d.States.User.Is(names...) {
			return nil
		}
		return next(ctx, d)
	}
}

// SendChatAction shows action in the chat before the handler runs.
func SendChatAction(action ChatAction) Middleware {
	return func(ctx context.Context, d *MatchedData, next HandlerFunc) error {
		if c := d.Chat(); c != nil && d.Bot != nil {
			if err := d.Bot.SendChatAction(ctx, c.ID, action); err != nil {
				d.Bot.log.WithError(err).Debug("sendChatAction failed")
			}
		}
		return next(ctx, d)
	}
}

// ToChatState writes the chat state after the handler returned without error.
func ToChatState(name string, ttl time.Duration, data any) Middleware {
	return toState(StateTransition{Name: name, TTL: ttl, Data: data})
}

// ToUserState writes the user state after the handler returned without error.
func ToUserState(name string, ttl time.Duration, data any) Middleware {
	return toState(StateTransition{Name: name, TTL: ttl, Data: data, User: true})
}

func toState(t StateTransition) Middleware {
	return func(ctx context.Context, d *MatchedData, next HandlerFunc) error {
		if err := next(ctx, d); err != nil {
			return err
		}
		if !d.handled || d.state == nil {
			return nil
		}
		chat := d.Chat()
		if chat == nil {
			return nil
		}
		if !t.User {
			return errors.Wrap(d.state.SetChatState(ctx, chat.ID, t.Name, t.TTL, t.Data), "writing chat state")
		}
		user := d.User()
		if user == nil {
			return nil
		}
		return errors.Wrap(d.state.SetUserState(ctx, chat.ID, user.ID, t.Name, t.TTL, t.Data), "writing user state")
	}
}
