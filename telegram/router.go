// Copyright (c) 2025 @AmarnathCJD

package telegram

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/amarnathcjd/hybridgram"
)

type RouterConfig struct {
	Logger Logger

	// States enables state filters and transitions. Without it every
	// update resolves with an empty state snapshot.
	States StateStore

	// MediaGroups fills MatchedData.Photos for PHOTO_MEDIA_GROUP routes.
	MediaGroups *MediaGroupGrouper

	// DisableDefaultFallback turns unmatched updates into
	// hybridgram.ErrRouteNotFound instead of a logging no-op route.
	DisableDefaultFallback bool

	// Middlewares run before the route's own middlewares for every update.
	Middlewares []Middleware
}

// Router owns the route collection, the global middleware chain and the
// named actions, and dispatches updates for any number of bots.
type Router struct {
	routes   *RouteCollection
	states   StateStore
	log      Logger
	fallback *Route

	mu      sync.RWMutex
	global  []Middleware
	actions map[string]HandlerFunc
	bots    map[string]*Bot
}

func NewRouter(cfg RouterConfig) *Router {
	if cfg.Logger == nil {
		cfg.Logger = NewDefaultLogger("hybridgram [router]")
	}
	r := &Router{
		routes:  NewRouteCollection(),
		states:  cfg.States,
		log:     cfg.Logger.WithPrefix("hybridgram [router]"),
		global:  append([]Middleware(nil), cfg.Middlewares...),
		actions: make(map[string]HandlerFunc),
		bots:    make(map[string]*Bot),
	}
	if cfg.MediaGroups != nil {
		r.routes.photos = cfg.MediaGroups
	}
	if !cfg.DisableDefaultFallback {
		r.fallback = &Route{
			Type:       RouteFallback,
			BotID:      WildcardBot,
			Action:     r.defaultFallback,
			ActionName: "default-fallback",
		}
	}
	return r
}

func (r *Router) defaultFallback(_ context.Context, d *MatchedData) error {
	l := r.log.WithFields(map[string]any{"bot_id": d.BotID, "type": d.Type.String(), "update_id": d.Update.UpdateID})
	if c := d.Chat(); c != nil {
		l = l.WithField("chat_id", c.ID)
	}
	l.Debug("no route matched update")
	return nil
}

// Use appends global middlewares.
func (r *Router) Use(middlewares ...Middleware) *Router {
	r.mu.Lock()
	r.global = append(r.global, middlewares...)
	r.mu.Unlock()
	return r
}

// RegisterAction names an action so routes can refer to it by string.
func (r *Router) RegisterAction(name string, action any) error {
	if _, isName := action.(string); isName {
		return &hybridgram.InvalidRouteActionError{Action: action}
	}
	h, err := r.toHandler(action)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.actions[name] = h
	r.mu.Unlock()
	return nil
}

// AttachBot makes b available to handlers as MatchedData.Bot.
func (r *Router) AttachBot(b *Bot) *Router {
	r.mu.Lock()
	r.bots[b.ID()] = b
	r.mu.Unlock()
	return r
}

func (r *Router) Bot(id string) *Bot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bots[id]
}

// Routes returns the registered routes in registration order.
func (r *Router) Routes() []*Route { return r.routes.Routes() }

func (r *Router) Collection() *RouteCollection { return r.routes }

// Route starts a builder for routes that apply to every bot.
func (r *Router) Route() *RouteBuilder { return r.ForBot(WildcardBot) }

// ForBot starts a builder for routes of one bot.
func (r *Router) ForBot(botID string) *RouteBuilder {
	b := newRouteBuilder(r)
	b.route.BotID = botID
	b.reset = func(nb *RouteBuilder) { nb.route.BotID = botID }
	return b
}

// Group calls fn with a builder preset from attrs. After every
// registration the builder returns to those presets.
func (r *Router) Group(attrs GroupAttributes, fn func(b *RouteBuilder)) {
	b := newRouteBuilder(r)
	attrs.apply(b)
	b.reset = attrs.apply
	fn(b)
}

// Register validates and stores a fully built route.
func (r *Router) Register(route *Route, action any) (*Route, error) {
	h, err := r.toHandler(action)
	if err != nil {
		return nil, err
	}
	route.Action = h
	if name, ok := action.(string); ok {
		route.ActionName = name
	}
	r.routes.Add(route)
	r.log.WithFields(map[string]any{"type": route.Type.String(), "bot_id": route.BotID}).Trace("route registered")
	return route, nil
}

func (r *Router) toHandler(action any) (HandlerFunc, error) {
	switch a := action.(type) {
	case HandlerFunc:
		if a != nil {
			return a, nil
		}
	case func(context.Context, *MatchedData) error:
		if a != nil {
			return a, nil
		}
	case func(*MatchedData) error:
		if a != nil {
			return func(_ context.Context, d *MatchedData) error { return a(d) }, nil
		}
	case Handler:
		if a != nil {
			return a.Handle, nil
		}
	case string:
		r.mu.RLock()
		h, ok := r.actions[a]
		r.mu.RUnlock()
		if ok {
			return h, nil
		}
	}
	return nil, &hybridgram.InvalidRouteActionError{Action: action}
}

// Resolve loads the state snapshot and finds the route for u. Without a
// match it returns the default fallback, or hybridgram.ErrRouteNotFound
// when that was disabled.
func (r *Router) Resolve(ctx context.Context, botID string, u *Update) (*Route, *MatchedData, error) {
	states, err := loadStates(ctx, r.states, u)
	if err != nil {
		r.log.WithError(err).WithField("bot_id", botID).Warn("loading conversation state")
	}

	route, d, err := r.routes.Find(ctx, u, botID, states)
	if err != nil {
		if r.fallback == nil || errors.Cause(err) != hybridgram.ErrRouteNotFound {
			return nil, nil, err
		}
		route = r.fallback
		d = &MatchedData{Type: Classify(u), BotID: botID, Update: u, Route: route, States: states}
	}
	d.state = r.states
	d.Bot = r.Bot(botID)
	return route, d, nil
}

// Dispatch resolves u and runs the global and route middlewares around the
// route action.
func (r *Router) Dispatch(ctx context.Context, botID string, u *Update) error {
	route, d, err := r.Resolve(ctx, botID, u)
	if err != nil {
		return err
	}

	r.mu.RLock()
	p := NewPipeline(r.global...)
	r.mu.RUnlock()
	p.Add(route.Middlewares...)

	if err := p.Process(ctx, d, route.Action); err != nil {
		r.log.WithError(err).WithFields(map[string]any{
			"bot_id":    botID,
			"type":      d.Type.String(),
			"update_id": u.UpdateID,
		}).Error("handler failed")
		return err
	}
	return nil
}
