// Copyright (c) 2025 @AmarnathCJD

package telegram

import "strings"

// RouteType is the category an update is classified into. ANY and FALLBACK
// are wildcard categories consulted when nothing more specific matched.
type RouteType int

const (
	RouteAny RouteType = iota
	RouteCommand
	RouteTextMessage
	RoutePoll
	RoutePollAnswer
	RoutePollClosed
	RoutePhoto
	RoutePhotoMediaGroup
	RouteDocument
	RouteDocumentMediaGroup
	RouteVideo
	RouteVideoMediaGroup
	RouteVenue
	RouteLocation
	RouteAnimation
	RouteAudio
	RouteSticker
	RouteVideoNote
	RouteVoice
	RouteStory
	RoutePaidMedia
	RouteContact
	RouteChecklist
	RouteDice
	RouteGame
	RouteInvoice
	RouteSuccessfulPayment
	RoutePassportData
	RouteWebAppData
	RouteUsersShared
	RouteChatShared
	RouteExternalReplyMessage
	RouteQuotedMessage
	RouteReplyToStory
	RouteReplyToMessage
	RouteNewChatMembers
	RouteLeftChatMember
	RouteNewChatTitle
	RouteNewChatPhoto
	RouteDeleteChatPhoto
	RouteAutoDeleteTimerChanged
	RoutePinnedMessage
	RouteForumTopicEvent
	RouteGeneralForumTopicEvent
	RouteBoostAdded
	RouteEditedMessage
	RouteChannelPost
	RouteEditedChannelPost
	RouteBusinessConnection
	RouteBusinessMessageCommand
	RouteBusinessMessageText
	RouteEditedBusinessMessage
	RouteDeletedBusinessMessages
	RouteMessageReaction
	RouteMessageReactionCount
	RouteInlineQuery
	RouteChosenInlineResult
	RouteCallbackQuery
	RouteShippingQuery
	RoutePreCheckoutQuery
	RoutePurchasedPaidMedia
	RouteMyChatMember
	RouteChatMember
	RouteChatJoinRequest
	RouteChatBoost
	RouteRemovedChatBoost
	RouteUnknown
	RouteFallback
)

var routeTypeNames = [...]string{
	RouteAny:                     "ANY",
	RouteCommand:                 "COMMAND",
	RouteTextMessage:             "TEXT_MESSAGE",
	RoutePoll:                    "POLL",
	RoutePollAnswer:              "POLL_ANSWER",
	RoutePollClosed:              "POLL_CLOSED",
	RoutePhoto:                   "PHOTO",
	RoutePhotoMediaGroup:         "PHOTO_MEDIA_GROUP",
	RouteDocument:                "DOCUMENT",
	RouteDocumentMediaGroup:      "DOCUMENT_MEDIA_GROUP",
	RouteVideo:                   "VIDEO",
	RouteVideoMediaGroup:         "VIDEO_MEDIA_GROUP",
	RouteVenue:                   "VENUE",
	RouteLocation:                "LOCATION",
	RouteAnimation:               "ANIMATION",
	RouteAudio:                   "AUDIO",
	RouteSticker:                 "STICKER",
	RouteVideoNote:               "VIDEO_NOTE",
	RouteVoice:                   "VOICE",
	RouteStory:                   "STORY",
	RoutePaidMedia:               "PAID_MEDIA",
	RouteContact:                 "CONTACT",
	RouteChecklist:               "CHECKLIST",
	RouteDice:                    "DICE",
	RouteGame:                    "GAME",
	RouteInvoice:                 "INVOICE",
	RouteSuccessfulPayment:       "SUCCESSFUL_PAYMENT",
	RoutePassportData:            "PASSPORT_DATA",
	RouteWebAppData:              "WEBAPP_DATA",
	RouteUsersShared:             "USERS_SHARED",
	RouteChatShared:              "CHAT_SHARED",
	RouteExternalReplyMessage:    "EXTERNAL_REPLY_MESSAGE",
	RouteQuotedMessage:           "QUOTED_MESSAGE",
	RouteReplyToStory:            "REPLY_TO_STORY",
	RouteReplyToMessage:          "REPLY_TO_MESSAGE",
	RouteNewChatMembers:          "NEW_CHAT_MEMBERS",
	RouteLeftChatMember:          "LEFT_CHAT_MEMBER",
	RouteNewChatTitle:            "NEW_CHAT_TITLE",
	RouteNewChatPhoto:            "NEW_CHAT_PHOTO",
	RouteDeleteChatPhoto:         "DELETE_CHAT_PHOTO",
	RouteAutoDeleteTimerChanged:  "AUTO_DELETE_TIMER_CHANGED",
	RoutePinnedMessage:           "PINNED_MESSAGE",
	RouteForumTopicEvent:         "FORUM_TOPIC_EVENT",
	RouteGeneralForumTopicEvent:  "GENERAL_FORUM_TOPIC_EVENT",
	RouteBoostAdded:              "BOOST_ADDED",
	RouteEditedMessage:           "EDITED_MESSAGE",
	RouteChannelPost:             "CHANNEL_POST",
	RouteEditedChannelPost:       "EDITED_CHANNEL_POST",
	RouteBusinessConnection:      "BUSINESS_CONNECTION",
	RouteBusinessMessageCommand:  "BUSINESS_MESSAGE_COMMAND",
	RouteBusinessMessageText:     "BUSINESS_MESSAGE_TEXT",
	RouteEditedBusinessMessage:   "EDITED_BUSINESS_MESSAGE",
	RouteDeletedBusinessMessages: "DELETED_BUSINESS_MESSAGES",
	RouteMessageReaction:         "MESSAGE_REACTION",
	RouteMessageReactionCount:    "MESSAGE_REACTION_COUNT",
	RouteInlineQuery:             "INLINE_QUERY",
	RouteChosenInlineResult:      "CHOSEN_INLINE_RESULT",
	RouteCallbackQuery:           "CALLBACK_QUERY",
	RouteShippingQuery:           "SHIPPING_QUERY",
	RoutePreCheckoutQuery:        "PRE_CHECKOUT_QUERY",
	RoutePurchasedPaidMedia:      "PURCHASED_PAID_MEDIA",
	RouteMyChatMember:            "MY_CHAT_MEMBER",
	RouteChatMember:              "CHAT_MEMBER",
	RouteChatJoinRequest:         "CHAT_JOIN_REQUEST",
	RouteChatBoost:               "CHAT_BOOST",
	RouteRemovedChatBoost:        "REMOVED_CHAT_BOOST",
	RouteUnknown:                 "UNKNOWN",
	RouteFallback:                "FALLBACK",
}

var routeTypesByName = func() map[string]RouteType {
	m := make(map[string]RouteType, len(routeTypeNames))
	for i, name := range routeTypeNames {
		m[name] = RouteType(i)
	}
	return m
}()

func (t RouteType) String() string {
	if t < 0 || int(t) >= len(routeTypeNames) {
		return "UNKNOWN"
	}
	return routeTypeNames[t]
}

// ParseRouteType is the inverse of String. Names are case insensitive.
func ParseRouteType(s string) (RouteType, bool) {
	t, ok := routeTypesByName[strings.ToUpper(strings.TrimSpace(s))]
	return t, ok
}

// RouteTypes returns every category in declaration order.
func RouteTypes() []RouteType {
	out := make([]RouteType, len(routeTypeNames))
	for i := range out {
		out[i] = RouteType(i)
	}
	return out
}

func (t RouteType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }
