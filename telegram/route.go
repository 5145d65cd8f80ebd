// Copyright (c) 2025 @AmarnathCJD

package telegram

import (
	"context"
	"time"
)

// HandlerFunc handles a matched update.
type HandlerFunc func(ctx context.Context, data *MatchedData) error

// Middleware wraps the rest of the chain. Returning without calling next
// short-circuits the chain; that is not an error.
type Middleware func(ctx context.Context, data *MatchedData, next HandlerFunc) error

// Handler is the interface form of HandlerFunc.
type Handler interface {
	Handle(ctx context.Context, data *MatchedData) error
}

// WildcardBot registers a route for every bot.
const WildcardBot = "*"

type PollType string

const (
	PollRegular PollType = "regular"
	PollQuiz    PollType = "quiz"
)

// PollOptions narrows POLL and POLL_CLOSED routes.
type PollOptions struct {
	Type      PollType
	Anonymous *bool
}

// Chat member statuses as reported in ChatMember.Status.
const (
	MemberCreator       = "creator"
	MemberAdministrator = "administrator"
	MemberMember        = "member"
	MemberRestricted    = "restricted"
	MemberLeft          = "left"
	MemberKicked        = "kicked"
)

// ChatMemberOptions narrows MY_CHAT_MEMBER and CHAT_MEMBER routes by the
// new member.
type ChatMemberOptions struct {
	IsBot    *bool
	Statuses []string
}

// StateTransition is written after the handler succeeded.
type StateTransition struct {
	Name string
	TTL  time.Duration
	Data any
	User bool
}

// Route is a registered rule. Routes are not modified after registration;
// per-update results live in MatchedData.
type Route struct {
	Type        RouteType
	BotID       string
	Pattern     any // nil, string glob, *regexp.Regexp or func(*Update) bool
	Action      HandlerFunc
	ActionName  string
	Middlewares []Middleware

	ChatTypes       []ChatType // nil means any chat type
	FromChatState   []string
	FromUserState   []string
	ExceptChatState []string
	ExceptUserState []string
	ToState         *StateTransition
	SendAction      ChatAction

	CommandArgs func(u *Update, args []string) bool
	Poll        *PollOptions
	MimeTypes   []string
	QueryParams []QueryParam
	ChatMember  *ChatMemberOptions
	TopicEvent  string

	seq int
}

// MatchedData is produced fresh for every resolution.
type MatchedData struct {
	Type   RouteType
	BotID  string
	Update *Update
	Route  *Route
	Bot    *Bot
	States RouteStates

	Text           string
	Command        string
	Args           []string
	CallbackAction string
	CallbackParams map[string]string
	TopicEvent     string
	Photos         [][]PhotoSize

	state   StateStore
	handled bool
}

// Handled reports whether the route action ran.
func (d *MatchedData) Handled() bool { return d.handled }

func (d *MatchedData) Chat() *Chat { return d.Update.EffectiveChat() }

func (d *MatchedData) User() *User { return d.Update.EffectiveUser() }

func (d *MatchedData) Message() *Message { return d.Update.EffectiveMessage() }

// StateStore returns the store the router was configured with, or nil.
func (d *MatchedData) StateStore() StateStore { return d.state }
