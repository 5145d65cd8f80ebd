// Copyright (c) 2025 @AmarnathCJD

// Package sender implements the outgoing dispatch strategies: direct calls,
// synchronous waits on the rate limiter, and FIFO queued delivery.
package sender

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/amarnathcjd/hybridgram"
	"github.com/amarnathcjd/hybridgram/internal/ratelimit"
	"github.com/amarnathcjd/hybridgram/internal/utils"
)

// Method is one Bot API call.
type Method struct {
	Name   string         `json:"method"`
	Params map[string]any `json:"params,omitempty"`
}

// Caller performs the HTTP round trip for a bot.
type Caller interface {
	Call(ctx context.Context, botID string, m Method) (json.RawMessage, error)
}

// CallerFunc adapts a function to Caller.
type CallerFunc func(ctx context.Context, botID string, m Method) (json.RawMessage, error)

func (f CallerFunc) Call(ctx context.Context, botID string, m Method) (json.RawMessage, error) {
	return f(ctx, botID, m)
}

// Dispatcher sends a method for a bot at the given priority. Queued
// implementations return a nil result.
type Dispatcher interface {
	Dispatch(ctx context.Context, botID string, m Method, p ratelimit.Priority) (json.RawMessage, error)
}

var serviceMethods = map[string]bool{
	"getUpdates":     true,
	"setWebhook":     true,
	"deleteWebhook":  true,
	"getWebhookInfo": true,
	"getMe":          true,
	"logOut":         true,
	"close":          true,
}

// IsServiceMethod reports whether name is an infrastructure call that
// never goes through a dispatcher.
func IsServiceMethod(name string) bool {
	return serviceMethods[name]
}

// Reporting controls how remote failures are logged.
type Reporting struct {
	LogFailures     bool
	LogResponseBody bool
}

// DefaultReporting logs failures together with the response body.
func DefaultReporting() Reporting {
	return Reporting{LogFailures: true, LogResponseBody: true}
}

func (r Reporting) report(log *utils.Logger, botID string, fields map[string]any, err error) {
	if !r.LogFailures {
		return
	}
	var apiErr *hybridgram.RemoteAPIError
	if !errors.As(err, &apiErr) {
		return
	}
	l := log.WithField("bot_id", botID).WithFields(fields).WithFields(map[string]any{
		"method":      apiErr.Method,
		"error_code":  apiErr.Code,
		"description": apiErr.Description,
		"status_code": apiErr.StatusCode,
	})
	if r.LogResponseBody && apiErr.Body != "" {
		l = l.WithField("telegram_response", apiErr.Body)
	}
	l.Error("telegram outgoing request failed")
}

// Direct calls the API immediately with no limiting.
type Direct struct {
	caller    Caller
	reporting Reporting
	log       *utils.Logger
}

var _ Dispatcher = (*Direct)(nil)

func NewDirect(caller Caller, reporting Reporting, log *utils.Logger) *Direct {
	if log == nil {
		log = utils.NopLogger()
	}
	return &Direct{caller: caller, reporting: reporting, log: log.WithPrefix("hybridgram [sender]")}
}

func (d *Direct) Dispatch(ctx context.Context, botID string, m Method, _ ratelimit.Priority) (json.RawMessage, error) {
	res, err := d.caller.Call(ctx, botID, m)
	if err != nil {
		d.reporting.report(d.log, botID, nil, err)
		return nil, err
	}
	return res, nil
}
