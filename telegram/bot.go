// Copyright (c) 2025 @AmarnathCJD

package telegram

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/amarnathcjd/hybridgram/internal/ratelimit"
	"github.com/amarnathcjd/hybridgram/internal/sender"
	"github.com/amarnathcjd/hybridgram/internal/utils"
)

type ChatAction string

const (
	ActionTyping          ChatAction = "typing"
	ActionUploadPhoto     ChatAction = "upload_photo"
	ActionRecordVideo     ChatAction = "record_video"
	ActionUploadVideo     ChatAction = "upload_video"
	ActionRecordVoice     ChatAction = "record_voice"
	ActionUploadVoice     ChatAction = "upload_voice"
	ActionUploadDocument  ChatAction = "upload_document"
	ActionChooseSticker   ChatAction = "choose_sticker"
	ActionFindLocation    ChatAction = "find_location"
	ActionRecordVideoNote ChatAction = "record_video_note"
	ActionUploadVideoNote ChatAction = "upload_video_note"
)

type (
	Priority   = ratelimit.Priority
	Method     = sender.Method
	Dispatcher = sender.Dispatcher
)

const (
	PriorityHigh = ratelimit.High
	PriorityLow  = ratelimit.Low
)

// Bot is the per-bot handle passed to handlers. Regular methods go through
// the configured dispatcher; service methods are always called directly.
type Bot struct {
	id         string
	api        *BotAPI
	dispatcher sender.Dispatcher
	priority   ratelimit.Priority
	log        *utils.Logger
}

// NewBot binds id to api. A nil dispatcher sends every method directly.
func NewBot(id string, api *BotAPI, dispatcher sender.Dispatcher, log Logger) *Bot {
	l := internalLogger(log).WithPrefix("hybridgram [bot]").WithField("bot_id", id)
	if dispatcher == nil {
		dispatcher = sender.NewDirect(api, sender.DefaultReporting(), l)
	}
	return &Bot{
		id:         id,
		api:        api,
		dispatcher: dispatcher,
		priority:   ratelimit.High,
		log:        l,
	}
}

func (b *Bot) ID() string { return b.id }

func (b *Bot) API() *BotAPI { return b.api }

// WithPriority returns a copy of b sending at p.
func (b *Bot) WithPriority(p Priority) *Bot {
	c := *b
	c.priority = p
	return &c
}

// Send calls method with params. Queued dispatchers return a nil result.
func (b *Bot) Send(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	m := sender.Method{Name: method, Params: params}
	if sender.IsServiceMethod(method) {
		return b.api.Call(ctx, b.id, m)
	}
	return b.dispatcher.Dispatch(ctx, b.id, m, b.priority)
}

func (b *Bot) call(ctx context.Context, method string, params map[string]any, out any) error {
	raw, err := b.Send(ctx, method, params)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return errors.Wrapf(json.Unmarshal(raw, out), "decoding %s result", method)
}

// SendMessage sends text to chatID. extra is merged into the request.
// The returned message is nil when the dispatcher queued the call.
func (b *Bot) SendMessage(ctx context.Context, chatID int64, text string, extra map[string]any) (*Message, error) {
	params := map[string]any{"chat_id": chatID, "text": text}
	for k, v := range extra {
		params[k] = v
	}
	var m *Message
	if err := b.call(ctx, "sendMessage", params, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func (b *Bot) AnswerCallbackQuery(ctx context.Context, queryID, text string, showAlert bool) error {
	params := map[string]any{"callback_query_id": queryID}
	if text != "" {
		params["text"] = text
	}
	if showAlert {
		params["show_alert"] = true
	}
	return b.call(ctx, "answerCallbackQuery", params, nil)
}

func (b *Bot) SendChatAction(ctx context.Context, chatID int64, action ChatAction) error {
	return b.call(ctx, "sendChatAction", map[string]any{"chat_id": chatID, "action": string(action)}, nil)
}

// GetUpdatesParams mirrors the getUpdates request. Timeout is in seconds.
type GetUpdatesParams struct {
	Offset         int64
	Limit          int
	Timeout        int
	AllowedUpdates []string
}

func (b *Bot) GetUpdates(ctx context.Context, p GetUpdatesParams) ([]Update, error) {
	params := map[string]any{"timeout": p.Timeout}
	if p.Offset != 0 {
		params["offset"] = p.Offset
	}
	if p.Limit > 0 {
		params["limit"] = p.Limit
	}
	if len(p.AllowedUpdates) > 0 {
		params["allowed_updates"] = p.AllowedUpdates
	}
	var updates []Update
	if err := b.call(ctx, "getUpdates", params, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

type WebhookParams struct {
	URL                string   `json:"url" yaml:"url"`
	SecretToken        string   `json:"secret_token,omitempty" yaml:"secret_token,omitempty"`
	MaxConnections     int      `json:"max_connections,omitempty" yaml:"max_connections,omitempty"`
	AllowedUpdates     []string `json:"allowed_updates,omitempty" yaml:"allowed_updates,omitempty"`
	DropPendingUpdates bool     `json:"drop_pending_updates,omitempty" yaml:"drop_pending_updates,omitempty"`
	IPAddress          string   `json:"ip_address,omitempty" yaml:"ip_address,omitempty"`
}

func (b *Bot) SetWebhook(ctx context.Context, p WebhookParams) error {
	params := map[string]any{"url": p.URL}
	if p.SecretToken != "" {
		params["secret_token"] = p.SecretToken
	}
	if p.MaxConnections > 0 {
		params["max_connections"] = p.MaxConnections
	}
	if len(p.AllowedUpdates) > 0 {
		params["allowed_updates"] = p.AllowedUpdates
	}
	if p.DropPendingUpdates {
		params["drop_pending_updates"] = true
	}
	if p.IPAddress != "" {
		params["ip_address"] = p.IPAddress
	}
	return b.call(ctx, "setWebhook", params, nil)
}

func (b *Bot) DeleteWebhook(ctx context.Context, dropPending bool) error {
	params := map[string]any{}
	if dropPending {
		params["drop_pending_updates"] = true
	}
	return b.call(ctx, "deleteWebhook", params, nil)
}

type WebhookInfo struct {
	URL                  string   `json:"url" yaml:"url"`
	HasCustomCertificate bool     `json:"has_custom_certificate" yaml:"has_custom_certificate"`
	PendingUpdateCount   int      `json:"pending_update_count" yaml:"pending_update_count"`
	IPAddress            string   `json:"ip_address,omitempty" yaml:"ip_address,omitempty"`
	LastErrorDate        int64    `json:"last_error_date,omitempty" yaml:"last_error_date,omitempty"`
	LastErrorMessage     string   `json:"last_error_message,omitempty" yaml:"last_error_message,omitempty"`
	MaxConnections       int      `json:"max_connections,omitempty" yaml:"max_connections,omitempty"`
	AllowedUpdates       []string `json:"allowed_updates,omitempty" yaml:"allowed_updates,omitempty"`
}

func (b *Bot) GetWebhookInfo(ctx context.Context) (*WebhookInfo, error) {
	var info WebhookInfo
	if err := b.call(ctx, "getWebhookInfo", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (b *Bot) GetMe(ctx context.Context) (*User, error) {
	var u User
	if err := b.call(ctx, "getMe", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (b *Bot) LogOut(ctx context.Context) error {
	return b.call(ctx, "logOut", nil, nil)
}

func (b *Bot) Close(ctx context.Context) error {
	return b.call(ctx, "close", nil, nil)
}
