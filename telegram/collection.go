// Copyright (c) 2025 @AmarnathCJD

package telegram

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/amarnathcjd/hybridgram"
)

// RouteCollection indexes routes by (category, bot).
type RouteCollection struct {
	mu     sync.RWMutex
	routes map[RouteType]map[string][]*Route
	all    []*Route
	seq    int
	photos photoSource
}

func NewRouteCollection() *RouteCollection {
	return &RouteCollection{routes: make(map[RouteType]map[string][]*Route)}
}

// Add stores r. Registration order is global across bots and categories.
func (c *RouteCollection) Add(r *Route) *Route {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r.BotID == "" {
		r.BotID = WildcardBot
	}
	c.seq++
	r.seq = c.seq

	byBot, ok := c.routes[r.Type]
	if !ok {
		byBot = make(map[string][]*Route)
		c.routes[r.Type] = byBot
	}
	byBot[r.BotID] = append(byBot[r.BotID], r)
	c.all = append(c.all, r)
	return r
}

// Routes returns every route in registration order.
func (c *RouteCollection) Routes() []*Route {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*Route(nil), c.all...)
}

func (c *RouteCollection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.all)
}

// candidates merges the bot specific and wildcard routes of t by
// registration order.
func (c *RouteCollection) candidates(t RouteType, botID string) []*Route {
	c.mu.RLock()
	defer c.mu.RUnlock()

	byBot := c.routes[t]
	if byBot == nil {
		return nil
	}
	out := append([]*Route(nil), byBot[botID]...)
	if botID != WildcardBot {
		out = append(out, byBot[WildcardBot]...)
		sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	}
	return out
}

func (c *RouteCollection) fallbacks(botID string) []*Route {
	c.mu.RLock()
	defer c.mu.RUnlock()

	byBot := c.routes[RouteFallback]
	if byBot == nil {
		return nil
	}
	out := append([]*Route(nil), byBot[botID]...)
	if botID != WildcardBot {
		out = append(out, byBot[WildcardBot]...)
	}
	return out
}

// Find resolves u for botID. Exact category first, then ANY, then the bot's
// own FALLBACK and finally a wildcard FALLBACK. It returns
// hybridgram.ErrRouteNotFound when none of those exist.
func (c *RouteCollection) Find(ctx context.Context, u *Update, botID string, states RouteStates) (*Route, *MatchedData, error) {
	t := Classify(u)
	chatType := u.ChatType()

	for _, category := range []RouteType{t, RouteAny} {
		for _, r := range c.candidates(category, botID) {
			if !r.accepts(chatType, states) {
				continue
			}
			if d := r.match(ctx, u, c.photos); d != nil {
				d.Type, d.BotID, d.States = t, botID, states
				return r, d, nil
			}
		}
	}

	for _, r := range c.fallbacks(botID) {
		if !r.accepts(chatType, states) {
			continue
		}
		if d := r.match(ctx, u, c.photos); d != nil {
			d.Type, d.BotID, d.States = t, botID, states
			return r, d, nil
		}
	}

	return nil, nil, errors.Wrapf(hybridgram.ErrRouteNotFound, "%s for bot %q", t, botID)
}

// accepts applies the chat type and state filters in order.
func (r *Route) accepts(chatType ChatType, states RouteStates) bool {
	if r.ChatTypes != nil && !containsChatType(r.ChatTypes, chatType) {
		return false
	}
	if len(r.ExceptChatState) > 0 && states.Chat.Is(r.ExceptChatState...) {
		return false
	}
	if len(r.ExceptUserState) > 0 && states.User.Is(r.ExceptUserState...) {
		return false
	}
	if r.FromUserState != nil {
		return states.User.Is(r.FromUserState...)
	}
	if r.FromChatState != nil {
		return states.Chat.Is(r.FromChatState...)
	}
	return true
}

func containsChatType(list []ChatType, t ChatType) bool {
	for _, v := range list {
		if v == t {
			return true
		}
	}
	return false
}
