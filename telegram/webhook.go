// Copyright (c) 2025 @AmarnathCJD

package telegram

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"

	"github.com/amarnathcjd/hybridgram/internal/queue"
	"github.com/amarnathcjd/hybridgram/internal/utils"
)

const (
	DefaultWebhookPath = "/telegram/bot/webhook/"
	SecretTokenHeader  = "X-Telegram-Bot-Api-Secret-Token"

	// UpdateJobKind marks queued incoming updates.
	UpdateJobKind = "update"
)

type WebhookConfig struct {
	Addr string
	Path string

	// Secret is checked for bots without an entry in Secrets. Empty
	// disables the check.
	Secret  string
	Secrets map[string]string

	// Queue switches the server to async mode: updates are pushed to Lane
	// and routed by an UpdateConsumer.
	Queue queue.Queue
	Lane  string

	// DedupeSize is how many recent update ids are remembered per server.
	DedupeSize int

	Logger Logger
}

// WebhookServer receives updates on POST {Path}{botId}. It answers 200 to
// anything that looks like a delivery so Telegram does not retry, and 400
// when the body is not an update.
type WebhookServer struct {
	router *Router
	cfg    WebhookConfig
	log    *utils.Logger
	seen   *utils.RecentSet[string]
	server *fasthttp.Server
}

func NewWebhookServer(router *Router, cfg WebhookConfig) *WebhookServer {
	if cfg.Addr == "" {
		cfg.Addr = ":9070"
	}
	if cfg.Path == "" {
		cfg.Path = DefaultWebhookPath
	}
	if !strings.HasSuffix(cfg.Path, "/") {
		cfg.Path += "/"
	}
	if cfg.Lane == "" {
		cfg.Lane = queue.LaneUpdates
	}
	s := &WebhookServer{
		router: router,
		cfg:    cfg,
		log:    internalLogger(cfg.Logger).WithPrefix("hybridgram [webhook]"),
		seen:   utils.NewRecentSet[string](cfg.DedupeSize),
	}
	s.server = &fasthttp.Server{
		Handler:            s.Handler,
		Name:               "hybridgram",
		ReadTimeout:        5 * time.Second,
		WriteTimeout:       5 * time.Second,
		MaxConnsPerIP:      100,
		MaxRequestsPerConn: 10000,
		Concurrency:        10000,
	}
	return s
}

// ListenAndServe serves until ctx is cancelled.
func (s *WebhookServer) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", s.cfg.Addr)
	}
	return s.Serve(ctx, ln)
}

func (s *WebhookServer) Serve(ctx context.Context, ln net.Listener) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = s.server.Shutdown()
		case <-done:
		}
	}()

	s.log.Info("listening on %s%s{botId}", ln.Addr(), s.cfg.Path)
	if err := s.server.Serve(ln); err != nil {
		return err
	}
	return ctx.Err()
}

func (s *WebhookServer) secretFor(botID string) string {
	if v, ok := s.cfg.Secrets[botID]; ok && v != "" {
		return v
	}
	return s.cfg.Secret
}

// Handler is the fasthttp request handler.
func (s *WebhookServer) Handler(ctx *fasthttp.RequestCtx) {
	ctx.SetStatusCode(fasthttp.StatusOK)

	path := string(ctx.Path())
	if !ctx.IsPost() || !strings.HasPrefix(path, s.cfg.Path) {
		s.log.Debug("ignoring %s %s", ctx.Method(), path)
		return
	}
	botID := strings.TrimPrefix(path, s.cfg.Path)
	if botID == "" || strings.Contains(botID, "/") {
		s.log.Debug("ignoring request without bot id")
		return
	}
	l := s.log.WithField("bot_id", botID)

	if want := s.secretFor(botID); want != "" {
		got := ctx.Request.Header.Peek(SecretTokenHeader)
		if subtle.ConstantTimeCompare(got, []byte(want)) != 1 {
			l.Warn("invalid secret token from %s", ctx.RemoteIP())
			return
		}
	}

	body := append([]byte(nil), ctx.PostBody()...)
	var u Update
	if err := json.Unmarshal(body, &u); err != nil {
		l.WithError(err).Warn("undecodable update")
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		return
	}
	key := botID + ":" + strconv.FormatInt(u.UpdateID, 10)
	if !s.seen.Add(key) {
		l.WithField("update_id", u.UpdateID).Debug("duplicate update dropped")
		return
	}

	if s.cfg.Queue != nil {
		job := queue.NewJob(UpdateJobKind, botID, body)
		if err := s.cfg.Queue.Push(ctx, s.cfg.Lane, job, 0); err != nil {
			// let Telegram redeliver it
			s.seen.Remove(key)
			l.WithError(err).Error("queueing update %d", u.UpdateID)
			ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
			return
		}
		l.Trace("update %d queued as %s", u.UpdateID, job.ID)
		return
	}

	s.dispatch(ctx, l, botID, &u)
}

func (s *WebhookServer) dispatch(ctx context.Context, l *utils.Logger, botID string, u *Update) {
	defer func() {
		if r := recover(); r != nil {
			l.WithField("update_id", u.UpdateID).Error("[UpdatePanic] %v\n%s", r, utils.Stack())
		}
	}()
	if err := s.router.Dispatch(ctx, botID, u); err != nil {
		l.WithError(err).WithField("update_id", u.UpdateID).Debug("update not handled")
	}
}
