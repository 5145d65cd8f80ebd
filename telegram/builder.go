// Copyright (c) 2025 @AmarnathCJD

package telegram

import (
	"time"
)

// RouteBuilder collects route attributes and registers a route with one of
// its On methods. After every registration the builder returns to its
// defaults (the group attributes inside Router.Group).
type RouteBuilder struct {
	router       *Router
	route        Route
	chatTypesSet bool
	reset        func(b *RouteBuilder)
}

func newRouteBuilder(r *Router) *RouteBuilder {
	return &RouteBuilder{router: r, route: Route{BotID: WildcardBot}}
}

func (b *RouteBuilder) ForBot(botID string) *RouteBuilder {
	b.route.BotID = botID
	return b
}

// ChatType restricts the route to one chat type.
func (b *RouteBuilder) ChatType(t ChatType) *RouteBuilder {
	return b.ChatTypes(t)
}

// ChatTypes restricts the route to types. Called without arguments it
// allows every chat type, overriding the category default.
func (b *RouteBuilder) ChatTypes(types ...ChatType) *RouteBuilder {
	b.chatTypesSet = true
	if len(types) == 0 {
		b.route.ChatTypes = nil
	} else {
		b.route.ChatTypes = append([]ChatType(nil), types...)
	}
	return b
}

func (b *RouteBuilder) FromChatState(names ...string) *RouteBuilder {
	b.route.FromChatState = append([]string(nil), names...)
	return b
}

func (b *RouteBuilder) FromUserState(names ...string) *RouteBuilder {
	b.route.FromUserState = append([]string(nil), names...)
	return b
}

func (b *RouteBuilder) ExceptChatState(names ...string) *RouteBuilder {
	b.route.ExceptChatState = append([]string(nil), names...)
	return b
}

func (b *RouteBuilder) ExceptUserState(names ...string) *RouteBuilder {
	b.route.ExceptUserState = append([]string(nil), names...)
	return b
}

// ToChatState moves the chat to name once the action succeeded. An empty
// name clears the state.
func (b *RouteBuilder) ToChatState(name string, ttl time.Duration, data any) *RouteBuilder {
	b.route.ToState = &StateTransition{Name: name, TTL: ttl, Data: data}
	return b
}

// ToUserState moves the sender to name once the action succeeded.
func (b *RouteBuilder) ToUserState(name string, ttl time.Duration, data any) *RouteBuilder {
	b.route.ToState = &StateTransition{Name: name, TTL: ttl, Data: data, User: true}
	return b
}

func (b *RouteBuilder) Middlewares(middlewares ...Middleware) *RouteBuilder {
	b.route.Middlewares = append(b.route.Middlewares, middlewares...)
	return b
}

// Pattern is used by On methods that are not given one. On ANY and
// fallback routes a glob or regexp is matched against the message text or
// caption.
func (b *RouteBuilder) Pattern(pattern any) *RouteBuilder {
	b.route.Pattern = pattern
	return b
}

func (b *RouteBuilder) SendAction(action ChatAction) *RouteBuilder {
	b.route.SendAction = action
	return b
}

// CommandArgs adds an argument filter to the next command route.
func (b *RouteBuilder) CommandArgs(fn func(u *Update, args []string) bool) *RouteBuilder {
	b.route.CommandArgs = fn
	return b
}

func (b *RouteBuilder) register(t RouteType, action any, pattern any, configure func(r *Route)) (*Route, error) {
	defer b.restore()

	route := b.route
	route.Type = t
	route.Middlewares = append([]Middleware(nil), b.route.Middlewares...)
	if pattern != nil {
		route.Pattern = pattern
	}
	if configure != nil {
		configure(&route)
	}
	if !b.chatTypesSet {
		route.ChatTypes = defaultChatTypes(t)
	}
	if route.ToState != nil {
		route.Middlewares = append(route.Middlewares, toState(*route.ToState))
	}
	if route.SendAction != "" {
		route.Middlewares = append(route.Middlewares, SendChatAction(route.SendAction))
	}
	return b.router.Register(&route, action)
}

func (b *RouteBuilder) restore() {
	b.route = Route{BotID: WildcardBot}
	b.chatTypesSet = false
	if b.reset != nil {
		b.reset(b)
	}
}

// defaultChatTypes is the chat type filter a route gets when none was set.
// nil allows every chat type.
func defaultChatTypes(t RouteType) []ChatType {
	switch t {
	case RouteNewChatMembers, RouteLeftChatMember, RouteNewChatTitle, RouteNewChatPhoto,
		RouteDeleteChatPhoto, RouteAutoDeleteTimerChanged, RoutePinnedMessage,
		RouteForumTopicEvent, RouteGeneralForumTopicEvent, RouteBoostAdded:
		return nil
	case RouteMyChatMember, RouteChatMember:
		return AllChatTypesExceptPrivate()
	case RouteChannelPost, RouteEditedChannelPost:
		return []ChatType{ChatChannel}
	case RouteInlineQuery, RouteChosenInlineResult, RouteShippingQuery, RoutePreCheckoutQuery,
		RoutePollAnswer, RoutePollClosed, RouteBusinessConnection, RouteBusinessMessageCommand,
		RouteBusinessMessageText, RouteEditedBusinessMessage, RouteDeletedBusinessMessages,
		RouteMessageReaction, RouteMessageReactionCount, RouteChatBoost, RouteRemovedChatBoost,
		RoutePurchasedPaidMedia, RouteChatJoinRequest, RouteAny, RouteFallback, RouteUnknown:
		return nil
	default:
		return []ChatType{ChatPrivate}
	}
}

func (b *RouteBuilder) OnAny(action any) (*Route, error) {
	return b.register(RouteAny, action, nil, nil)
}

// OnFallback registers the route used when nothing else matched.
func (b *RouteBuilder) OnFallback(action any) (*Route, error) {
	return b.register(RouteFallback, action, nil, nil)
}

// OnCommand matches "/command args". command may carry the leading slash
// and glob wildcards; "*" or nil matches any command.
func (b *RouteBuilder) OnCommand(action any, command any) (*Route, error) {
	return b.register(RouteCommand, action, command, nil)
}

func (b *RouteBuilder) OnTextMessage(action any, pattern any) (*Route, error) {
	return b.register(RouteTextMessage, action, pattern, nil)
}

func (b *RouteBuilder) OnPoll(action any, opts *PollOptions) (*Route, error) {
	return b.register(RoutePoll, action, nil, func(r *Route) { r.Poll = opts })
}

func (b *RouteBuilder) OnPollClosed(action any, opts *PollOptions) (*Route, error) {
	return b.register(RoutePollClosed, action, nil, func(r *Route) { r.Poll = opts })
}

func (b *RouteBuilder) OnPollAnswer(action any) (*Route, error) {
	return b.register(RoutePollAnswer, action, nil, nil)
}

func (b *RouteBuilder) OnPhoto(action any, caption any) (*Route, error) {
	return b.register(RoutePhoto, action, caption, nil)
}

// OnPhotoMediaGroup receives the first update of an album with every photo
// of the album in MatchedData.Photos.
func (b *RouteBuilder) OnPhotoMediaGroup(action any, caption any) (*Route, error) {
	return b.register(RoutePhotoMediaGroup, action, caption, nil)
}

func (b *RouteBuilder) OnDocument(action any, caption any, mimeTypes ...string) (*Route, error) {
	return b.register(RouteDocument, action, caption, func(r *Route) { r.MimeTypes = mimeTypes })
}

func (b *RouteBuilder) OnDocumentMediaGroup(action any, caption any, mimeTypes ...string) (*Route, error) {
	return b.register(RouteDocumentMediaGroup, action, caption, func(r *Route) { r.MimeTypes = mimeTypes })
}

func (b *RouteBuilder) OnVideo(action any, caption any) (*Route, error) {
	return b.register(RouteVideo, action, caption, nil)
}

func (b *RouteBuilder) OnVideoMediaGroup(action any, caption any) (*Route, error) {
	return b.register(RouteVideoMediaGroup, action, caption, nil)
}

func (b *RouteBuilder) OnVenue(action any) (*Route, error) {
	return b.register(RouteVenue, action, nil, nil)
}

func (b *RouteBuilder) OnLocation(action any) (*Route, error) {
	return b.register(RouteLocation, action, nil, nil)
}

func (b *RouteBuilder) OnAnimation(action any, caption any) (*Route, error) {
	return b.register(RouteAnimation, action, caption, nil)
}

func (b *RouteBuilder) OnAudio(action any, caption any) (*Route, error) {
	return b.register(RouteAudio, action, caption, nil)
}

func (b *RouteBuilder) OnSticker(action any) (*Route, error) {
	return b.register(RouteSticker, action, nil, nil)
}

func (b *RouteBuilder) OnVideoNote(action any) (*Route, error) {
	return b.register(RouteVideoNote, action, nil, nil)
}

func (b *RouteBuilder) OnVoice(action any, caption any) (*Route, error) {
	return b.register(RouteVoice, action, caption, nil)
}

func (b *RouteBuilder) OnStory(action any) (*Route, error) {
	return b.register(RouteStory, action, nil, nil)
}

func (b *RouteBuilder) OnPaidMedia(action any, caption any) (*Route, error) {
	return b.register(RoutePaidMedia, action, caption, nil)
}

func (b *RouteBuilder) OnContact(action any) (*Route, error) {
	return b.register(RouteContact, action, nil, nil)
}

func (b *RouteBuilder) OnChecklist(action any) (*Route, error) {
	return b.register(RouteChecklist, action, nil, nil)
}

func (b *RouteBuilder) OnDice(action any) (*Route, error) {
	return b.register(RouteDice, action, nil, nil)
}

func (b *RouteBuilder) OnGame(action any) (*Route, error) {
	return b.register(RouteGame, action, nil, nil)
}

func (b *RouteBuilder) OnInvoice(action any) (*Route, error) {
	return b.register(RouteInvoice, action, nil, nil)
}

func (b *RouteBuilder) OnSuccessfulPayment(action any) (*Route, error) {
	return b.register(RouteSuccessfulPayment, action, nil, nil)
}

func (b *RouteBuilder) OnPassportData(action any) (*Route, error) {
	return b.register(RoutePassportData, action, nil, nil)
}

func (b *RouteBuilder) OnWebAppData(action any, data any) (*Route, error) {
	return b.register(RouteWebAppData, action, data, nil)
}

func (b *RouteBuilder) OnUsersShared(action any) (*Route, error) {
	return b.register(RouteUsersShared, action, nil, nil)
}

func (b *RouteBuilder) OnChatShared(action any) (*Route, error) {
	return b.register(RouteChatShared, action, nil, nil)
}

func (b *RouteBuilder) OnExternalReply(action any, pattern any) (*Route, error) {
	return b.register(RouteExternalReplyMessage, action, pattern, nil)
}

// OnQuotedMessage matches pattern against the quoted text.
func (b *RouteBuilder) OnQuotedMessage(action any, pattern any) (*Route, error) {
	return b.register(RouteQuotedMessage, action, pattern, nil)
}

func (b *RouteBuilder) OnReplyToStory(action any, pattern any) (*Route, error) {
	return b.register(RouteReplyToStory, action, pattern, nil)
}

func (b *RouteBuilder) OnReplyToMessage(action any, pattern any) (*Route, error) {
	return b.register(RouteReplyToMessage, action, pattern, nil)
}

func (b *RouteBuilder) OnNewChatMembers(action any) (*Route, error) {
	return b.register(RouteNewChatMembers, action, nil, nil)
}

func (b *RouteBuilder) OnLeftChatMember(action any) (*Route, error) {
	return b.register(RouteLeftChatMember, action, nil, nil)
}

func (b *RouteBuilder) OnNewChatTitle(action any) (*Route, error) {
	return b.register(RouteNewChatTitle, action, nil, nil)
}

func (b *RouteBuilder) OnNewChatPhoto(action any) (*Route, error) {
	return b.register(RouteNewChatPhoto, action, nil, nil)
}

func (b *RouteBuilder) OnDeleteChatPhoto(action any) (*Route, error) {
	return b.register(RouteDeleteChatPhoto, action, nil, nil)
}

func (b *RouteBuilder) OnAutoDeleteTimerChanged(action any) (*Route, error) {
	return b.register(RouteAutoDeleteTimerChanged, action, nil, nil)
}

func (b *RouteBuilder) OnPinnedMessage(action any) (*Route, error) {
	return b.register(RoutePinnedMessage, action, nil, nil)
}

// OnForumTopicEvent matches topic service messages; event narrows it to
// one of the Topic* names, "" accepts all of them.
func (b *RouteBuilder) OnForumTopicEvent(action any, event string) (*Route, error) {
	return b.register(RouteForumTopicEvent, action, nil, func(r *Route) { r.TopicEvent = event })
}

func (b *RouteBuilder) OnTopicCreated(action any) (*Route, error) {
	return b.OnForumTopicEvent(action, TopicCreated)
}

func (b *RouteBuilder) OnTopicEdited(action any) (*Route, error) {
	return b.OnForumTopicEvent(action, TopicEdited)
}

func (b *RouteBuilder) OnTopicClosed(action any) (*Route, error) {
	return b.OnForumTopicEvent(action, TopicClosed)
}

func (b *RouteBuilder) OnTopicReopened(action any) (*Route, error) {
	return b.OnForumTopicEvent(action, TopicReopened)
}

func (b *RouteBuilder) OnGeneralForumTopicEvent(action any, event string) (*Route, error) {
	return b.register(RouteGeneralForumTopicEvent, action, nil, func(r *Route) { r.TopicEvent = event })
}

func (b *RouteBuilder) OnGeneralTopicHidden(action any) (*Route, error) {
	return b.OnGeneralForumTopicEvent(action, GeneralTopicHidden)
}

func (b *RouteBuilder) OnGeneralTopicUnhidden(action any) (*Route, error) {
	return b.OnGeneralForumTopicEvent(action, GeneralTopicUnhidden)
}

func (b *RouteBuilder) OnBoostAdded(action any) (*Route, error) {
	return b.register(RouteBoostAdded, action, nil, nil)
}

func (b *RouteBuilder) OnEditedMessage(action any, pattern any) (*Route, error) {
	return b.register(RouteEditedMessage, action, pattern, nil)
}

func (b *RouteBuilder) OnChannelPost(action any, pattern any) (*Route, error) {
	return b.register(RouteChannelPost, action, pattern, nil)
}

func (b *RouteBuilder) OnEditedChannelPost(action any, pattern any) (*Route, error) {
	return b.register(RouteEditedChannelPost, action, pattern, nil)
}

func (b *RouteBuilder) OnBusinessConnection(action any) (*Route, error) {
	return b.register(RouteBusinessConnection, action, nil, nil)
}

func (b *RouteBuilder) OnBusinessMessageCommand(action any, command any) (*Route, error) {
	return b.register(RouteBusinessMessageCommand, action, command, nil)
}

func (b *RouteBuilder) OnBusinessMessageText(action any, pattern any) (*Route, error) {
	return b.register(RouteBusinessMessageText, action, pattern, nil)
}

func (b *RouteBuilder) OnEditedBusinessMessage(action any, pattern any) (*Route, error) {
	return b.register(RouteEditedBusinessMessage, action, pattern, nil)
}

func (b *RouteBuilder) OnDeletedBusinessMessages(action any) (*Route, error) {
	return b.register(RouteDeletedBusinessMessages, action, nil, nil)
}

func (b *RouteBuilder) OnMessageReaction(action any) (*Route, error) {
	return b.register(RouteMessageReaction, action, nil, nil)
}

func (b *RouteBuilder) OnMessageReactionCount(action any) (*Route, error) {
	return b.register(RouteMessageReactionCount, action, nil, nil)
}

func (b *RouteBuilder) OnInlineQuery(action any, query any) (*Route, error) {
	return b.register(RouteInlineQuery, action, query, nil)
}

func (b *RouteBuilder) OnChosenInlineResult(action any, query any) (*Route, error) {
	return b.register(RouteChosenInlineResult, action, query, nil)
}

// OnCallbackQuery matches the decoded callback action against pattern.
// Without params the callback must carry no parameters; with params at
// least one of them has to match.
func (b *RouteBuilder) OnCallbackQuery(action any, pattern any, params ...QueryParam) (*Route, error) {
	return b.register(RouteCallbackQuery, action, pattern, func(r *Route) { r.QueryParams = params })
}

func (b *RouteBuilder) OnShippingQuery(action any, payload any) (*Route, error) {
	return b.register(RouteShippingQuery, action, payload, nil)
}

func (b *RouteBuilder) OnPreCheckoutQuery(action any, payload any) (*Route, error) {
	return b.register(RoutePreCheckoutQuery, action, payload, nil)
}

func (b *RouteBuilder) OnPurchasedPaidMedia(action any) (*Route, error) {
	return b.register(RoutePurchasedPaidMedia, action, nil, nil)
}

func (b *RouteBuilder) OnMyChatMember(action any, opts *ChatMemberOptions) (*Route, error) {
	return b.register(RouteMyChatMember, action, nil, func(r *Route) { r.ChatMember = opts })
}

func (b *RouteBuilder) OnChatMember(action any, opts *ChatMemberOptions) (*Route, error) {
	return b.register(RouteChatMember, action, nil, func(r *Route) { r.ChatMember = opts })
}

func (b *RouteBuilder) OnChatJoinRequest(action any) (*Route, error) {
	return b.register(RouteChatJoinRequest, action, nil, nil)
}

func (b *RouteBuilder) OnChatBoost(action any) (*Route, error) {
	return b.register(RouteChatBoost, action, nil, nil)
}

func (b *RouteBuilder) OnRemovedChatBoost(action any) (*Route, error) {
	return b.register(RouteRemovedChatBoost, action, nil, nil)
}

// OnUnknown matches updates none of the other categories recognise.
func (b *RouteBuilder) OnUnknown(action any) (*Route, error) {
	return b.register(RouteUnknown, action, nil, nil)
}
