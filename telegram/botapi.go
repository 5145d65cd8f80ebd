// Copyright (c) 2025 @AmarnathCJD

package telegram

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"

	"github.com/amarnathcjd/hybridgram"
	"github.com/amarnathcjd/hybridgram/internal/sender"
	"github.com/amarnathcjd/hybridgram/internal/utils"
)

const (
	DefaultBaseURL = "https://api.telegram.org"
	DefaultTimeout = 30 * time.Second
)

// BotAPIConfig configures the HTTP client used for every bot. Tokens maps
// a bot id to its token.
type BotAPIConfig struct {
	BaseURL string
	Tokens  map[string]string
	Timeout time.Duration
	Logger  Logger
	Client  *fasthttp.Client
}

// BotAPI performs Bot API calls over fasthttp. It is safe for concurrent use
// and serves any number of bots.
type BotAPI struct {
	client  *fasthttp.Client
	baseURL string
	timeout time.Duration
	log     *utils.Logger

	mu     sync.RWMutex
	tokens map[string]string
}

var _ sender.Caller = (*BotAPI)(nil)

func NewBotAPI(cfg BotAPIConfig) *BotAPI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Client == nil {
		cfg.Client = &fasthttp.Client{
			Name:                "hybridgram",
			MaxIdleConnDuration: time.Minute,
			ReadTimeout:         cfg.Timeout + 60*time.Second,
			WriteTimeout:        cfg.Timeout,
		}
	}
	a := &BotAPI{
		client:  cfg.Client,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		log:     internalLogger(cfg.Logger).WithPrefix("hybridgram [api]"),
		tokens:  make(map[string]string, len(cfg.Tokens)),
	}
	for id, token := range cfg.Tokens {
		a.tokens[id] = token
	}
	return a
}

func (a *BotAPI) SetToken(botID, token string) {
	a.mu.Lock()
	a.tokens[botID] = token
	a.mu.Unlock()
}

func (a *BotAPI) token(botID string) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	t, ok := a.tokens[botID]
	return t, ok && t != ""
}

// BotIDs lists the bots that have a token.
func (a *BotAPI) BotIDs() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ids := make([]string, 0, len(a.tokens))
	for id := range a.tokens {
		ids = append(ids, id)
	}
	return ids
}

type apiResponse struct {
	Ok          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Parameters  *struct {
		RetryAfter      int   `json:"retry_after"`
		MigrateToChatID int64 `json:"migrate_to_chat_id"`
	} `json:"parameters"`
}

// Call posts m as JSON to /bot{token}/{method} and returns the result field.
// A response with ok=false becomes a *hybridgram.RemoteAPIError.
func (a *BotAPI) Call(ctx context.Context, botID string, m sender.Method) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	token, ok := a.token(botID)
	if !ok {
		return nil, errors.Errorf("no token configured for bot %q", botID)
	}

	body := []byte("{}")
	if len(m.Params) > 0 {
		var err error
		if body, err = json.Marshal(m.Params); err != nil {
			return nil, errors.Wrapf(err, "encoding %s params", m.Name)
		}
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(a.baseURL + "/bot" + token + "/" + m.Name)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	a.log.WithField("bot_id", botID).Trace("-> %s %s", m.Name, body)

	if err := a.client.DoTimeout(req, resp, a.requestTimeout(ctx, m)); err != nil {
		return nil, errors.Wrapf(err, "calling %s", m.Name)
	}

	raw := append([]byte(nil), resp.Body()...)
	status := resp.StatusCode()

	var r apiResponse
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, hybridgram.NewRemoteAPIError(m.Name, status, "unreadable response", 0, status, string(raw))
	}
	if !r.Ok {
		code := r.ErrorCode
		if code == 0 {
			code = status
		}
		retryAfter := 0
		if r.Parameters != nil {
			retryAfter = r.Parameters.RetryAfter
		}
		return nil, hybridgram.NewRemoteAPIError(m.Name, code, r.Description, retryAfter, status, string(raw))
	}
	return r.Result, nil
}

// requestTimeout extends the client timeout by the long poll duration and
// clamps it to the context deadline.
func (a *BotAPI) requestTimeout(ctx context.Context, m sender.Method) time.Duration {
	timeout := a.timeout
	if m.Name == "getUpdates" {
		switch v := m.Params["timeout"].(type) {
		case int:
			timeout += time.Duration(v) * time.Second
		case int64:
			timeout += time.Duration(v) * time.Second
		case float64:
			timeout += time.Duration(v * float64(time.Second))
		}
	}
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	return timeout
}
