// Copyright (c) 2025 @AmarnathCJD

package telegram

import (
	"encoding/json"
	"strings"
)

// Classify maps an update to its RouteType. It is total: shapes it does not
// know classify as RouteUnknown.
func Classify(u *Update) RouteType {
	if u == nil {
		return RouteUnknown
	}
	switch {
	case u.EditedMessage != nil:
		return RouteEditedMessage
	case u.ChannelPost != nil:
		return RouteChannelPost
	case u.EditedChannelPost != nil:
		return RouteEditedChannelPost
	case u.BusinessConnection != nil:
		return RouteBusinessConnection
	case u.BusinessMessage != nil:
		if isCommand(u.BusinessMessage.Text) {
			return RouteBusinessMessageCommand
		}
		return RouteBusinessMessageText
	case u.EditedBusinessMessage != nil:
		return RouteEditedBusinessMessage
	case u.DeletedBusinessMessages != nil:
		return RouteDeletedBusinessMessages
	case u.MessageReaction != nil:
		return RouteMessageReaction
	case u.MessageReactionCount != nil:
		return RouteMessageReactionCount
	case u.InlineQuery != nil:
		return RouteInlineQuery
	case u.ChosenInlineResult != nil:
		return RouteChosenInlineResult
	case u.CallbackQuery != nil:
		return RouteCallbackQuery
	case u.ShippingQuery != nil:
		return RouteShippingQuery
	case u.PreCheckoutQuery != nil:
		return RoutePreCheckoutQuery
	case u.PollAnswer != nil:
		return RoutePollAnswer
	case u.Poll != nil:
		return RoutePollClosed
	case u.Message != nil && u.Message.Poll != nil:
		return RoutePoll
	case u.MyChatMember != nil:
		return RouteMyChatMember
	case u.ChatMember != nil:
		return RouteChatMember
	case u.ChatJoinRequest != nil:
		return RouteChatJoinRequest
	case u.ChatBoost != nil:
		return RouteChatBoost
	case u.RemovedChatBoost != nil:
		return RouteRemovedChatBoost
	case u.PurchasedPaidMedia != nil:
		return RoutePurchasedPaidMedia
	case u.Message != nil:
		return classifyMessage(u.Message)
	}
	return RouteUnknown
}

// classifyMessage checks structural service fields first, then media kinds,
// then reply context, then content, then the simple payloads, and only then
// falls back to command or plain text.
func classifyMessage(m *Message) RouteType {
	switch {
	case len(m.NewChatMembers) > 0:
		return RouteNewChatMembers
	case m.LeftChatMember != nil:
		return RouteLeftChatMember
	case m.NewChatTitle != "":
		return RouteNewChatTitle
	case len(m.NewChatPhoto) > 0:
		return RouteNewChatPhoto
	case m.DeleteChatPhoto:
		return RouteDeleteChatPhoto
	case m.MessageAutoDeleteTimerChanged != nil:
		return RouteAutoDeleteTimerChanged
	case m.PinnedMessage != nil:
		return RoutePinnedMessage
	case topicEvent(m) != "":
		return RouteForumTopicEvent
	case generalTopicEvent(m) != "":
		return RouteGeneralForumTopicEvent
	case m.BoostAdded != nil:
		return RouteBoostAdded
	}

	switch {
	case m.Animation != nil:
		return RouteAnimation
	case m.Audio != nil:
		return RouteAudio
	case m.Sticker != nil:
		return RouteSticker
	case m.VideoNote != nil:
		return RouteVideoNote
	case m.Voice != nil:
		return RouteVoice
	case present(m.PaidMedia):
		return RoutePaidMedia
	}

	switch {
	case m.ExternalReply != nil:
		return RouteExternalReplyMessage
	case m.Quote != nil:
		return RouteQuotedMessage
	case m.ReplyToStory != nil:
		return RouteReplyToStory
	case m.Story != nil:
		return RouteStory
	}

	switch {
	case len(m.Photo) > 0:
		if m.MediaGroupID != "" {
			return RoutePhotoMediaGroup
		}
		return RoutePhoto
	case m.Document != nil:
		if m.MediaGroupID != "" {
			return RouteDocumentMediaGroup
		}
		return RouteDocument
	case m.Video != nil:
		if m.MediaGroupID != "" {
			return RouteVideoMediaGroup
		}
		return RouteVideo
	case m.Venue != nil:
		return RouteVenue
	case m.Location != nil:
		return RouteLocation
	}

	switch {
	case m.Contact != nil:
		return RouteContact
	case present(m.Checklist):
		return RouteChecklist
	case m.Dice != nil:
		return RouteDice
	case present(m.Game):
		return RouteGame
	case m.Invoice != nil:
		return RouteInvoice
	case m.SuccessfulPayment != nil:
		return RouteSuccessfulPayment
	case present(m.PassportData):
		return RoutePassportData
	case m.WebAppData != nil:
		return RouteWebAppData
	case m.UsersShared != nil:
		return RouteUsersShared
	case m.ChatShared != nil:
		return RouteChatShared
	}

	switch {
	case isCommand(m.Text):
		return RouteCommand
	case m.ReplyToMessage != nil:
		return RouteReplyToMessage
	}
	return RouteTextMessage
}

func isCommand(text string) bool {
	return strings.HasPrefix(text, "/")
}

// topicEvent names the forum topic service field set on m, if any.
func topicEvent(m *Message) string {
	switch {
	case m.ForumTopicCreated != nil:
		return TopicCreated
	case m.ForumTopicEdited != nil:
		return TopicEdited
	case m.ForumTopicClosed != nil:
		return TopicClosed
	case m.ForumTopicReopened != nil:
		return TopicReopened
	}
	return ""
}

func generalTopicEvent(m *Message) string {
	switch {
	case m.GeneralForumTopicHidden != nil:
		return GeneralTopicHidden
	case m.GeneralForumTopicUnhidden != nil:
		return GeneralTopicUnhidden
	}
	return ""
}

// Forum topic event names carried in MatchedData.TopicEvent.
const (
	TopicCreated         = "forum_topic_created"
	TopicEdited          = "forum_topic_edited"
	TopicClosed          = "forum_topic_closed"
	TopicReopened        = "forum_topic_reopened"
	GeneralTopicHidden   = "general_forum_topic_hidden"
	GeneralTopicUnhidden = "general_forum_topic_unhidden"
)

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}
