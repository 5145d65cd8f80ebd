// Copyright (c) 2025 @AmarnathCJD

package telegram

import "time"

// GroupAttributes are the defaults every route registered inside
// Router.Group starts from.
type GroupAttributes struct {
	ForBot string

	// ChatTypes overrides the category default for every route in the group.
	ChatTypes []ChatType

	// AnyChatType removes the chat type filter for every route in the group.
	AnyChatType bool

	FromChatState   []string
	FromUserState   []string
	ExceptChatState []string
	ExceptUserState []string
	ToChatState     string
	ToUserState     string
	StateTTL        time.Duration

	Middlewares []Middleware
	SendAction  ChatAction
}

func (g GroupAttributes) apply(b *RouteBuilder) {
	if g.ForBot != "" {
		b.ForBot(g.ForBot)
	}
	switch {
	case g.AnyChatType:
		b.ChatTypes()
	case len(g.ChatTypes) > 0:
		b.ChatTypes(g.ChatTypes...)
	}
	if len(g.FromChatState) > 0 {
		b.FromChatState(g.FromChatState...)
	}
	if len(g.FromUserState) > 0 {
		b.FromUserState(g.FromUserState...)
	}
	if len(g.ExceptChatState) > 0 {
		b.ExceptChatState(g.ExceptChatState...)
	}
	if len(g.ExceptUserState) > 0 {
		b.ExceptUserState(g.ExceptUserState...)
	}
	if g.ToChatState != "" {
		b.ToChatState(g.ToChatState, g.StateTTL, nil)
	}
	if g.ToUserState != "" {
		b.ToUserState(g.ToUserState, g.StateTTL, nil)
	}
	if len(g.Middlewares) > 0 {
		b.route.Middlewares = append([]Middleware(nil), g.Middlewares...)
	}
	if g.SendAction != "" {
		b.SendAction(g.SendAction)
	}
}
