// Package app assembles the configured bots, stores, dispatchers and
// receivers into one runnable unit.
package app

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"

	"github.com/amarnathcjd/hybridgram/config"
	"github.com/amarnathcjd/hybridgram/internal/cache"
	"github.com/amarnathcjd/hybridgram/internal/fifo"
	"github.com/amarnathcjd/hybridgram/internal/queue"
	"github.com/amarnathcjd/hybridgram/internal/ratelimit"
	"github.com/amarnathcjd/hybridgram/internal/sender"
	"github.com/amarnathcjd/hybridgram/internal/session"
	"github.com/amarnathcjd/hybridgram/internal/utils"
	"github.com/amarnathcjd/hybridgram/telegram"
)

// Options overrides parts of the assembly. Zero values are derived from the
// configuration.
type Options struct {
	Logger      telegram.Logger
	Store       cache.Store
	Queue       queue.Queue
	Client      *fasthttp.Client
	Middlewares []telegram.Middleware

	// OnUpdate is handed to every poller.
	OnUpdate func(botID string, u *telegram.Update)
}

type App struct {
	cfg *config.Config
	log telegram.Logger
	l   *utils.Logger

	store   cache.Store
	queue   queue.Queue
	redis   *cache.Redis
	limiter *ratelimit.Limiter
	seq     *fifo.Sequencer

	reporting  sender.Reporting
	lanes      sender.Lanes
	dispatcher sender.Dispatcher

	api    *telegram.BotAPI
	states *telegram.StateManager
	media  *telegram.MediaGroupGrouper
	router *telegram.Router
	bots   map[string]*telegram.Bot

	onUpdate func(botID string, u *telegram.Update)
}

// New wires cfg. With a redis url every store and queue lives in redis,
// otherwise in process memory. Queue mode selects the Queued dispatcher,
// anything else the rate limited Sync dispatcher.
func New(cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	log := opts.Logger
	if log == nil {
		log = telegram.NewLogger(utils.ParseLevel(cfg.LogLevel), telegram.LoggerConfig{Prefix: "hybridgram", Color: true})
	}
	a := &App{
		cfg:   cfg,
		log:   log,
		l:     log.CloneInternal().WithPrefix("hybridgram [app]"),
		store: opts.Store,
		queue: opts.Queue,
		reporting: sender.Reporting{
			LogFailures:     cfg.Sending.LogFailures,
			LogResponseBody: cfg.Sending.LogResponseBody,
		},
		lanes: sender.Lanes{High: cfg.Sending.Queues.High, Low: cfg.Sending.Queues.Low},
		bots:  make(map[string]*telegram.Bot, len(cfg.Bots)),

		onUpdate: opts.OnUpdate,
	}

	if cfg.Redis.Enabled() && (a.store == nil || a.queue == nil) {
		r, err := cache.NewRedisFromURL(cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.Prefix)
		if err != nil {
			return nil, errors.Wrap(err, "connecting to redis")
		}
		a.redis = r
		if a.store == nil {
			a.store = r
		}
		if a.queue == nil {
			a.queue = queue.NewRedis(r.Client(), cfg.Redis.Prefix)
		}
	}
	if a.store == nil {
		a.store = cache.NewMemory()
	}
	if a.queue == nil {
		a.queue = queue.NewMemory()
	}

	internal := log.CloneInternal()
	a.limiter = ratelimit.New(a.store, ratelimit.Config{
		PerMinute:   cfg.Sending.RateLimitPerMinute,
		ReserveHigh: cfg.Sending.ReserveHighPerMinute,
		Log:         internal.WithPrefix("hybridgram [ratelimit]"),
	})
	a.seq = fifo.New(a.store, internal.WithPrefix("hybridgram [fifo]"))

	a.api = telegram.NewBotAPI(telegram.BotAPIConfig{
		BaseURL: cfg.BaseURL,
		Tokens:  cfg.Tokens(),
		Logger:  log,
		Client:  opts.Client,
	})

	if cfg.Sending.QueueEnabled {
		a.dispatcher = sender.NewQueued(a.queue, a.seq, a.lanes, internal.WithPrefix("hybridgram [sender]"))
	} else {
		a.dispatcher = sender.NewSync(a.api, a.limiter, sender.SyncConfig{
			MaxWait:   cfg.Sending.SyncMaxWait(),
			Reporting: a.reporting,
			Log:       internal.WithPrefix("hybridgram [sender]"),
		})
	}

	a.states = telegram.NewStateManager(a.store)
	a.media = telegram.NewMediaGroupGrouper(a.store, log)
	a.router = telegram.NewRouter(telegram.RouterConfig{
		Logger:      log,
		States:      a.states,
		MediaGroups: a.media,
		Middlewares: opts.Middlewares,
	})

	for _, bc := range cfg.Bots {
		b := telegram.NewBot(bc.BotID, a.api, a.dispatcher, log)
		a.bots[bc.BotID] = b
		a.router.AttachBot(b)
	}
	return a, nil
}

func (a *App) Config() *config.Config { return a.cfg }

func (a *App) Logger() telegram.Logger { return a.log }

func (a *App) Router() *telegram.Router { return a.router }

func (a *App) API() *telegram.BotAPI { return a.api }

func (a *App) States() *telegram.StateManager { return a.states }

func (a *App) Store() cache.Store { return a.store }

func (a *App) Queue() queue.Queue { return a.queue }

func (a *App) Limiter() *ratelimit.Limiter { return a.limiter }

func (a *App) Bot(id string) (*telegram.Bot, bool) {
	b, ok := a.bots[id]
	return b, ok
}

// BotIDs lists the configured bots sorted by id.
func (a *App) BotIDs() []string {
	ids := make([]string, 0, len(a.bots))
	for id := range a.bots {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Poller builds the long poll loop of one bot. The offset is kept in the
// bot's offset_file when set.
func (a *App) Poller(id string) (*telegram.Poller, error) {
	b, ok := a.bots[id]
	if !ok {
		return nil, errors.Errorf("unknown bot %q", id)
	}
	bc, _ := a.cfg.Bot(id)

	var offsets session.OffsetStore
	if bc.OffsetFile != "" {
		offsets = session.NewFromFile(bc.OffsetFile)
	}
	return telegram.NewPoller(b, a.router, telegram.PollerConfig{
		Limit:          bc.PollingLimit,
		Timeout:        bc.PollingTimeout,
		AllowedUpdates: bc.AllowedUpdates,
		Offsets:        offsets,
		MediaGroups:    a.media,
		Logger:         a.log,
		OnUpdate:       a.onUpdate,
	}), nil
}

// WebhookServers returns one server per distinct webhook port, each
// serving every webhook bot bound to that port.
func (a *App) WebhookServers() []*telegram.WebhookServer {
	byPort := make(map[int][]string)
	var ports []int
	for _, bc := range a.cfg.Bots {
		if bc.UpdateMode != config.ModeWebhook {
			continue
		}
		if _, ok := byPort[bc.WebhookPort]; !ok {
			ports = append(ports, bc.WebhookPort)
		}
		byPort[bc.WebhookPort] = append(byPort[bc.WebhookPort], bc.BotID)
	}
	sort.Ints(ports)

	secrets := a.cfg.Secrets()
	servers := make([]*telegram.WebhookServer, 0, len(ports))
	for _, port := range ports {
		wc := telegram.WebhookConfig{
			Addr:       ":" + strconv.Itoa(port),
			Path:       a.cfg.Webhook.Path,
			Secrets:    make(map[string]string),
			DedupeSize: a.cfg.Webhook.DedupeSize,
			Logger:     a.log,
		}
		for _, id := range byPort[port] {
			if s, ok := secrets[id]; ok {
				wc.Secrets[id] = s
			}
		}
		if a.cfg.Webhook.Async {
			wc.Queue = a.queue
			wc.Lane = a.cfg.Sending.Queues.Updates
		}
		servers = append(servers, telegram.NewWebhookServer(a.router, wc))
	}
	return servers
}

// Consumer drains the updates lane filled by async webhook servers.
func (a *App) Consumer(concurrency int) *telegram.UpdateConsumer {
	return telegram.NewUpdateConsumer(a.queue, a.router, telegram.ConsumerConfig{
		Lane:        a.cfg.Sending.Queues.Updates,
		Concurrency: concurrency,
		Logger:      a.log,
	})
}

// Worker delivers the methods queued by the Queued dispatcher.
func (a *App) Worker() *sender.Worker {
	return sender.NewWorker(sender.WorkerConfig{
		Queue:       a.queue,
		Caller:      a.api,
		Limiter:     a.limiter,
		Sequencer:   a.seq,
		Lanes:       a.lanes,
		MaxAttempts: a.cfg.Sending.MaxAttempts,
		Concurrency: a.cfg.Sending.WorkerConcurrency,
		Reporting:   a.reporting,
		Log:         a.log.CloneInternal().WithPrefix("hybridgram [worker]"),
	})
}

// SetupWebhooks registers the webhook of every webhook bot that has a url.
func (a *App) SetupWebhooks(ctx context.Context) error {
	for _, bc := range a.cfg.Bots {
		if bc.UpdateMode != config.ModeWebhook || bc.WebhookURL == "" {
			continue
		}
		err := a.bots[bc.BotID].SetWebhook(ctx, telegram.WebhookParams{
			URL:                bc.WebhookURL,
			SecretToken:        bc.SecretToken,
			AllowedUpdates:     bc.AllowedUpdates,
			DropPendingUpdates: bc.WebhookDropPending,
		})
		if err != nil {
			return errors.Wrapf(err, "setting webhook of bot %q", bc.BotID)
		}
		a.l.WithField("bot_id", bc.BotID).Info("webhook set to %s", bc.WebhookURL)
	}
	return nil
}

type task struct {
	name string
	run  func(context.Context) error
}

// Run starts a poller per polling bot, the webhook servers, the update
// consumer in async webhook mode and the send worker in queue mode. It
// returns when ctx is cancelled or any of them fails.
func (a *App) Run(ctx context.Context) error {
	tasks, err := a.pollerTasks(a.PollingBotIDs())
	if err != nil {
		return err
	}
	tasks = append(tasks, a.webhookTasks()...)
	return a.supervise(ctx, append(tasks, a.workerTasks()...))
}

// RunPolling polls the given bots, or every polling bot when ids is empty.
func (a *App) RunPolling(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		ids = a.PollingBotIDs()
	}
	tasks, err := a.pollerTasks(ids)
	if err != nil {
		return err
	}
	return a.supervise(ctx, append(tasks, a.workerTasks()...))
}

// RunWebhooks serves the webhook bots.
func (a *App) RunWebhooks(ctx context.Context) error {
	return a.supervise(ctx, append(a.webhookTasks(), a.workerTasks()...))
}

// RunWorker only delivers queued methods.
func (a *App) RunWorker(ctx context.Context) error {
	return a.supervise(ctx, []task{{"worker", a.Worker().Run}})
}

// PollingBotIDs lists the bots configured for polling, in config order.
func (a *App) PollingBotIDs() []string {
	var ids []string
	for _, bc := range a.cfg.Bots {
		if bc.UpdateMode != config.ModeWebhook {
			ids = append(ids, bc.BotID)
		}
	}
	return ids
}

func (a *App) pollerTasks(ids []string) ([]task, error) {
	tasks := make([]task, 0, len(ids))
	for _, id := range ids {
		p, err := a.Poller(id)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task{"poller " + id, p.Run})
	}
	return tasks, nil
}

func (a *App) webhookTasks() []task {
	servers := a.WebhookServers()
	tasks := make([]task, 0, len(servers)+1)
	for _, s := range servers {
		tasks = append(tasks, task{"webhook", s.ListenAndServe})
	}
	if len(servers) > 0 && a.cfg.Webhook.Async {
		tasks = append(tasks, task{"consumer", a.Consumer(a.cfg.Sending.WorkerConcurrency).Run})
	}
	return tasks
}

func (a *App) workerTasks() []task {
	if !a.cfg.Sending.QueueEnabled {
		return nil
	}
	return []task{{"worker", a.Worker().Run}}
}

// supervise runs every task until ctx is cancelled. The first failure
// cancels the others and is returned.
func (a *App) supervise(ctx context.Context, tasks []task) error {
	if len(tasks) == 0 {
		return errors.New("nothing to run")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() { firstErr = err })
		cancel()
	}
	for _, t := range tasks {
		wg.Add(1)
		go func(t task) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					a.l.Error("[TaskPanic] %s: %v\n%s", t.name, r, utils.Stack())
					fail(errors.Errorf("%s panicked: %v", t.name, r))
				}
			}()
			if err := t.run(ctx); err != nil && ctx.Err() == nil {
				a.l.WithError(err).Error("%s stopped", t.name)
				fail(errors.Wrap(err, t.name))
			}
		}(t)
	}

	wg.Wait()
	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}

// Close releases the redis connection opened by New.
func (a *App) Close() error {
	if a.redis == nil {
		return nil
	}
	return a.redis.Client().Close()
}
