// Copyright (c) 2025 @AmarnathCJD

package telegram

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"
)

// photoSource resolves the photos collected for a media group.
type photoSource interface {
	GroupedPhotos(ctx context.Context, groupID string) [][]PhotoSize
}

// match runs the category specific check of r against u. It returns nil
// when the route does not apply.
func (r *Route) match(ctx context.Context, u *Update, photos photoSource) *MatchedData {
	if pred, ok := r.Pattern.(func(*Update) bool); ok && !pred(u) {
		return nil
	}

	d := &MatchedData{Type: r.Type, BotID: r.BotID, Update: u, Route: r}
	if m := u.EffectiveMessage(); m != nil {
		d.Text = m.Content()
	}

	switch r.Type {
	case RouteAny, RouteFallback:
		if !patternMatches(r.Pattern, d.Text) {
			return nil
		}
		return d

	case RouteCommand:
		if u.Message == nil {
			return nil
		}
		return r.matchCommand(d, u.Message.Text)
	case RouteBusinessMessageCommand:
		if u.BusinessMessage == nil {
			return nil
		}
		return r.matchCommand(d, u.BusinessMessage.Text)

	case RouteCallbackQuery:
		return r.matchCallback(d, u.CallbackQuery)

	case RoutePoll:
		if u.Message == nil || u.Message.Poll == nil {
			return nil
		}
		return r.matchPoll(d, u.Message.Poll)
	case RoutePollClosed:
		if u.Poll == nil {
			return nil
		}
		return r.matchPoll(d, u.Poll)

	case RouteMyChatMember:
		return r.matchChatMember(d, u.MyChatMember)
	case RouteChatMember:
		return r.matchChatMember(d, u.ChatMember)

	case RouteForumTopicEvent:
		if u.Message == nil {
			return nil
		}
		return r.matchTopicEvent(d, topicEvent(u.Message))
	case RouteGeneralForumTopicEvent:
		if u.Message == nil {
			return nil
		}
		return r.matchTopicEvent(d, generalTopicEvent(u.Message))

	case RouteDocument, RouteDocumentMediaGroup:
		if u.Message == nil || u.Message.Document == nil {
			return nil
		}
		if len(r.MimeTypes) > 0 && !contains(r.MimeTypes, u.Message.Document.MimeType) {
			return nil
		}
		return r.matchText(d, u.Message.Caption)

	case RoutePhoto:
		if u.Message == nil || len(u.Message.Photo) == 0 {
			return nil
		}
		d.Photos = [][]PhotoSize{u.Message.Photo}
		return r.matchText(d, u.Message.Caption)
	case RoutePhotoMediaGroup:
		if u.Message == nil || len(u.Message.Photo) == 0 {
			return nil
		}
		if photos != nil {
			d.Photos = photos.GroupedPhotos(ctx, u.Message.MediaGroupID)
		}
		if len(d.Photos) == 0 {
			d.Photos = [][]PhotoSize{u.Message.Photo}
		}
		return r.matchText(d, u.Message.Caption)
	}

	text, ok := canonicalText(r.Type, u)
	if !ok {
		return d
	}
	return r.matchText(d, text)
}

// canonicalText is the field string patterns are compared against. ok is
// false for categories that carry no text, where only predicates apply.
func canonicalText(t RouteType, u *Update) (string, bool) {
	switch t {
	case RouteTextMessage, RouteReplyToMessage, RouteReplyToStory, RouteExternalReplyMessage:
		if u.Message != nil {
			return u.Message.Text, true
		}
	case RouteQuotedMessage:
		if u.Message != nil && u.Message.Quote != nil {
			return u.Message.Quote.Text, true
		}
	case RouteVideo, RouteVideoMediaGroup, RouteAnimation, RouteAudio, RouteSticker,
		RouteVideoNote, RouteVoice, RouteStory, RoutePaidMedia:
		if u.Message != nil {
			return u.Message.Caption, true
		}
	case RouteBusinessMessageText:
		if u.BusinessMessage != nil {
			return u.BusinessMessage.Text, true
		}
	case RouteEditedMessage, RouteChannelPost, RouteEditedChannelPost, RouteEditedBusinessMessage:
		if m := u.EffectiveMessage(); m != nil {
			return m.Content(), true
		}
	case RouteWebAppData:
		if u.Message != nil && u.Message.WebAppData != nil {
			return u.Message.WebAppData.Data, true
		}
	case RouteInlineQuery:
		if u.InlineQuery != nil {
			return u.InlineQuery.Query, true
		}
	case RouteChosenInlineResult:
		if u.ChosenInlineResult != nil {
			return u.ChosenInlineResult.Query, true
		}
	case RouteShippingQuery:
		if u.ShippingQuery != nil {
			return u.ShippingQuery.InvoicePayload, true
		}
	case RoutePreCheckoutQuery:
		if u.PreCheckoutQuery != nil {
			return u.PreCheckoutQuery.InvoicePayload, true
		}
	}
	return "", false
}

func (r *Route) matchText(d *MatchedData, text string) *MatchedData {
	d.Text = text
	if !patternMatches(r.Pattern, text) {
		return nil
	}
	return d
}

func patternMatches(pattern any, text string) bool {
	switch p := pattern.(type) {
	case nil:
		return true
	case string:
		return p == "" || p == "*" || globMatch(p, text)
	case *regexp.Regexp:
		return p.MatchString(text)
	case func(*Update) bool:
		// already evaluated against the whole update
		return true
	}
	return false
}

func (r *Route) matchCommand(d *MatchedData, text string) *MatchedData {
	if !isCommand(text) {
		return nil
	}
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}
	command := strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(command, '@'); at >= 0 {
		command = command[:at]
	}

	switch p := r.Pattern.(type) {
	case string:
		want := strings.TrimPrefix(p, "/")
		if want != "" && want != "*" && !globMatch(want, command) {
			return nil
		}
	case *regexp.Regexp:
		if !p.MatchString(command) {
			return nil
		}
	}

	args := append([]string{}, fields[1:]...)
	if r.CommandArgs != nil && !r.CommandArgs(d.Update, args) {
		return nil
	}

	d.Text = text
	d.Command = command
	d.Args = args
	return d
}

func (r *Route) matchCallback(d *MatchedData, q *CallbackQuery) *MatchedData {
	if q == nil {
		return nil
	}
	action, params, err := DecodeCallbackData(q.Data)
	if err != nil {
		// malformed wire data never matches
		return nil
	}
	if !patternMatches(r.Pattern, action) {
		return nil
	}

	if len(r.QueryParams) > 0 {
		matched := false
		for _, qp := range r.QueryParams {
			if qp.Matches(params) {
				matched = true
				break
			}
		}
		if !matched {
			return nil
		}
	} else if len(params) > 0 {
		return nil
	}

	d.Text = q.Data
	d.CallbackAction = action
	d.CallbackParams = params
	return d
}

func (r *Route) matchPoll(d *MatchedData, p *Poll) *MatchedData {
	if o := r.Poll; o != nil {
		if o.Type != "" && string(o.Type) != p.Type {
			return nil
		}
		if o.Anonymous != nil && *o.Anonymous != p.IsAnonymous {
			return nil
		}
	}
	d.Text = p.Question
	return d
}

func (r *Route) matchChatMember(d *MatchedData, upd *ChatMemberUpdated) *MatchedData {
	if upd == nil {
		return nil
	}
	if o := r.ChatMember; o != nil {
		if o.IsBot != nil && *o.IsBot != upd.NewChatMember.User.IsBot {
			return nil
		}
		if len(o.Statuses) > 0 && !contains(o.Statuses, upd.NewChatMember.Status) {
			return nil
		}
	}
	return d
}

func (r *Route) matchTopicEvent(d *MatchedData, event string) *MatchedData {
	if event == "" {
		return nil
	}
	if r.TopicEvent != "" && r.TopicEvent != event {
		return nil
	}
	d.TopicEvent = event
	return d
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// globMatch reports whether s matches pattern, where '*' matches any run of
// characters (including none) and '?' matches exactly one character.
func globMatch(pattern, s string) bool {
	var (
		px, sx         int
		starPx, starSx = -1, -1
	)
	for sx < len(s) {
		if px < len(pattern) {
			pc, pw := utf8.DecodeRuneInString(pattern[px:])
			sc, sw := utf8.DecodeRuneInString(s[sx:])
			switch {
			case pc == '*':
				starPx, starSx = px, sx
				px += pw
				continue
			case pc == '?' || pc == sc:
				px += pw
				sx += sw
				continue
			}
		}
		if starPx < 0 {
			return false
		}
		// let the last star swallow one more character
		_, sw := utf8.DecodeRuneInString(s[starSx:])
		starSx += sw
		px, sx = starPx+1, starSx
	}
	for px < len(pattern) && pattern[px] == '*' {
		px++
	}
	return px == len(pattern)
}
