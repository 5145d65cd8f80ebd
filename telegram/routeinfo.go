// Copyright (c) 2025 @AmarnathCJD

package telegram

import (
	"regexp"
	"sort"
)

// RouteInfo is a printable summary of a Route.
type RouteInfo struct {
	BotID           string   `yaml:"bot_id" json:"bot_id"`
	Type            string   `yaml:"type" json:"type"`
	Pattern         string   `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Action          string   `yaml:"action" json:"action"`
	ChatTypes       []string `yaml:"chat_types,omitempty" json:"chat_types,omitempty"`
	FromChatState   []string `yaml:"from_chat_state,omitempty" json:"from_chat_state,omitempty"`
	FromUserState   []string `yaml:"from_user_state,omitempty" json:"from_user_state,omitempty"`
	ExceptChatState []string `yaml:"except_chat_state,omitempty" json:"except_chat_state,omitempty"`
	ExceptUserState []string `yaml:"except_user_state,omitempty" json:"except_user_state,omitempty"`
	ToState         string   `yaml:"to_state,omitempty" json:"to_state,omitempty"`
	Middlewares     int      `yaml:"middlewares,omitempty" json:"middlewares,omitempty"`
}

func (r *Route) Info() RouteInfo {
	info := RouteInfo{
		BotID:           r.BotID,
		Type:            r.Type.String(),
		Pattern:         describePattern(r.Pattern),
		Action:          r.ActionName,
		FromChatState:   r.FromChatState,
		FromUserState:   r.FromUserState,
		ExceptChatState: r.ExceptChatState,
		ExceptUserState: r.ExceptUserState,
		Middlewares:     len(r.Middlewares),
	}
	if info.Action == "" {
		info.Action = "<func>"
	}
	if r.TopicEvent != "" && info.Pattern == "" {
		info.Pattern = r.TopicEvent
	}
	for _, t := range r.ChatTypes {
		info.ChatTypes = append(info.ChatTypes, string(t))
	}
	if r.ToState != nil {
		scope := "chat"
		if r.ToState.User {
			scope = "user"
		}
		info.ToState = scope + ":" + r.ToState.Name
	}
	return info
}

func describePattern(p any) string {
	switch v := p.(type) {
	case nil:
		return ""
	case string:
		return v
	case *regexp.Regexp:
		return "/" + v.String() + "/"
	default:
		return "<func>"
	}
}

// DescribeRoutes summarizes routes ordered by bot id, then type, then
// pattern. Routes that compare equal keep registration order.
func DescribeRoutes(routes []*Route) []RouteInfo {
	out := make([]RouteInfo, len(routes))
	for i, r := range routes {
		out[i] = r.Info()
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.BotID != b.BotID {
			return a.BotID < b.BotID
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return a.Pattern < b.Pattern
	})
	return out
}
