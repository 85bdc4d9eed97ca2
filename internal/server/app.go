// Package server builds the application's dependencies and runs them.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadpipe/internal/ai"
	"github.com/JakeFAU/leadpipe/internal/analyzer"
	"github.com/JakeFAU/leadpipe/internal/api"
	"github.com/JakeFAU/leadpipe/internal/clock/system"
	"github.com/JakeFAU/leadpipe/internal/config"
	"github.com/JakeFAU/leadpipe/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/leadpipe/internal/fetcher/colly"
	"github.com/JakeFAU/leadpipe/internal/finder"
	"github.com/JakeFAU/leadpipe/internal/hash/sha256"
	"github.com/JakeFAU/leadpipe/internal/id/uuid"
	"github.com/JakeFAU/leadpipe/internal/lead"
	"github.com/JakeFAU/leadpipe/internal/metrics"
	"github.com/JakeFAU/leadpipe/internal/parser"
	"github.com/JakeFAU/leadpipe/internal/policy/ratelimit"
	"github.com/JakeFAU/leadpipe/internal/proposal"
	memorypublisher "github.com/JakeFAU/leadpipe/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/leadpipe/internal/publisher/pubsub"
	"github.com/JakeFAU/leadpipe/internal/qualifier"
	queueMemory "github.com/JakeFAU/leadpipe/internal/queue/memory"
	"github.com/JakeFAU/leadpipe/internal/scheduler"
	memoryStorage "github.com/JakeFAU/leadpipe/internal/storage/memory"
	pgstore "github.com/JakeFAU/leadpipe/internal/storage/postgres"
	"github.com/JakeFAU/leadpipe/internal/worker"
)

const enqueueTimeout = 5 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	store        lead.Store
	pgStore      *pgstore.Store
	redisClient  *redis.Client
	pubsubClient *pubsub.Client
	gcpPublisher *gcppublisher.Publisher
	queue        *queueMemory.Queue
	dispatch     *dispatcher.Dispatcher
	finder       *finder.Finder
	processor    *worker.Worker
	apiServer    *api.Server
	ids          lead.IDGenerator
	clock        lead.Clock
	closeOnce    sync.Once
}

// Build creates the application's dependencies. Nothing starts running
// until Run is called.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	app := &App{
		cfg:    cfg,
		logger: logger,
		ids:    uuid.New(),
		clock:  system.New(),
	}
	app.logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.Int("ai_providers", len(cfg.AI.Providers)),
		zap.Int("workers", cfg.Worker.Concurrency),
	)

	if err := app.setupStore(ctx); err != nil {
		app.Close(ctx)
		return nil, err
	}
	if err := app.seedSources(ctx); err != nil {
		app.Close(ctx)
		return nil, err
	}
	publisher, err := app.setupPublisher(ctx)
	if err != nil {
		app.Close(ctx)
		return nil, err
	}

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.HTTP.UserAgent,
		RespectRobots: cfg.HTTP.RespectRobots,
		Timeout:       cfg.HTTP.Timeout,
	})
	httpClient := &http.Client{Timeout: cfg.HTTP.Timeout}

	aiService := ai.NewService(
		ai.FromConfig(ctx, cfg.AI.Providers, &http.Client{}, logger),
		ai.Config{Budget: cfg.AI.Budget, Retries: cfg.AI.Retries},
		logger,
	)
	app.logger.Info("ai fallback chain", zap.Strings("providers", aiService.Providers()))

	siteAnalyzer := analyzer.New(fetcher, analyzer.Config{
		Weights: analyzer.Weights{
			TLS:         cfg.Analyzer.Weights.TLS,
			Performance: cfg.Analyzer.Weights.Performance,
			Mobile:      cfg.Analyzer.Weights.Mobile,
			SEO:         cfg.Analyzer.Weights.SEO,
		},
		CheckThreshold: cfg.Analyzer.CheckThreshold,
		Timeout:        cfg.Analyzer.Timeout,
	}, logger)

	qual := qualifier.New(aiService, app.setupCache(ctx), sha256.New(), qualifier.Config{
		Hot:    cfg.Thresholds.Hot,
		Reject: cfg.Thresholds.Reject,
	}, logger)

	drafter, err := proposal.New(proposal.Sender{
		Name:     cfg.Proposal.SenderName,
		Company:  cfg.Proposal.SenderCompany,
		Contacts: cfg.Proposal.SenderContacts,
	}, app.ids, app.clock)
	if err != nil {
		app.Close(ctx)
		return nil, fmt.Errorf("proposal generator init failed: %w", err)
	}

	app.queue = queueMemory.NewQueue(cfg.Worker.QueueDepth)
	workerCfg := worker.Config{HotTopic: cfg.PubSub.TopicName, MaxAttempts: cfg.Worker.MaxAttempts}
	workers := make([]*worker.Worker, 0, cfg.Worker.Concurrency)
	for range cfg.Worker.Concurrency {
		workers = append(workers, worker.New(app.queue, app.store, siteAnalyzer, qual, publisher, app.clock, workerCfg, logger))
	}
	// synchronous qualification shares the collaborators but never reads the queue
	app.processor = worker.New(app.queue, app.store, siteAnalyzer, qual, publisher, app.clock, workerCfg, logger)
	app.dispatch = dispatcher.New(app.queue, workers, app.clock)
	app.logger.Info("worker config",
		zap.Int("concurrency", cfg.Worker.Concurrency),
		zap.Int("queue_depth", cfg.Worker.QueueDepth),
		zap.Int("max_attempts", workerCfg.MaxAttempts),
		zap.String("hot_topic", workerCfg.HotTopic),
	)

	parserDeps := parser.Deps{
		Client:    httpClient,
		Limiter:   ratelimit.New(ratelimit.Config{DefaultRPS: cfg.RateLimit.RPS, DefaultBurst: cfg.RateLimit.Burst}),
		Fetcher:   fetcher,
		UserAgent: cfg.HTTP.UserAgent,
		Now:       app.clock.Now,
		Logger:    logger,
	}
	app.finder = finder.New(app.store, func(src lead.Source) (parser.Parser, error) {
		return parser.New(src, parserDeps)
	}, app.ids, app.clock, finder.Config{
		FanOut:              cfg.Search.FanOut,
		SourceTimeout:       cfg.Search.SourceTimeout,
		CycleDeadline:       cfg.Search.CycleDeadline,
		SimilarityThreshold: cfg.Dedup.SimilarityThreshold,
		Window:              cfg.Dedup.Window,
	}, logger)

	app.apiServer = api.NewServer(api.Deps{
		Store:     app.store,
		Searcher:  app,
		Processor: app.processor,
		Enqueuer:  app.dispatch,
		Drafter:   drafter,
		IDs:       app.ids,
		Clock:     app.clock,
	}, cfg, logger)

	return app, nil
}

func (a *App) setupStore(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		a.logger.Warn("no database DSN configured, using in-memory store")
		a.store = memoryStorage.NewStore()
		return nil
	}
	pg, err := pgstore.New(ctx, pgstore.Config{
		DSN:             a.cfg.DB.DSN,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: a.cfg.DB.MaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("postgres store init failed: %w", err)
	}
	a.pgStore = pg
	if err := pg.Migrate(ctx); err != nil {
		return fmt.Errorf("postgres migrate failed: %w", err)
	}
	a.store = pg
	a.logger.Info("postgres store initialized", zap.Int32("max_conns", a.cfg.DB.MaxConns))
	return nil
}

// setupCache prefers Redis and falls back to memory when it is not
// configured or not reachable.
func (a *App) setupCache(ctx context.Context) qualifier.Cache {
	if a.cfg.Redis.Addr == "" {
		a.logger.Info("no redis address configured, caching ai signals in memory")
		return qualifier.NewMemoryCache()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		a.logger.Warn("redis unavailable, caching ai signals in memory", zap.String("addr", a.cfg.Redis.Addr), zap.Error(err))
		if cerr := client.Close(); cerr != nil {
			a.logger.Warn("redis client close failed", zap.Error(cerr))
		}
		return qualifier.NewMemoryCache()
	}
	a.redisClient = client
	a.logger.Info("redis ai signal cache initialized", zap.String("addr", a.cfg.Redis.Addr), zap.Duration("ttl", a.cfg.Redis.TTL))
	return qualifier.NewRedisCache(client, a.cfg.Redis.TTL)
}

func (a *App) setupPublisher(ctx context.Context) (lead.Publisher, error) {
	if a.cfg.PubSub.TopicName == "" || a.cfg.PubSub.ProjectID == "" {
		a.logger.Warn("no Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(a.logger), nil
	}
	var err error
	a.pubsubClient, err = pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.gcpPublisher = gcppublisher.New(a.pubsubClient.Topic(a.cfg.PubSub.TopicName))
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return a.gcpPublisher, nil
}

// Store exposes the persistence layer to commands.
func (a *App) Store() lead.Store {
	return a.store
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Handler returns the HTTP API.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Search runs a cycle and queues the created or updated leads for the
// background workers. A queueing failure is logged; the summary still stands.
func (a *App) Search(ctx context.Context, trigger string, types []lead.SourceType) (finder.Summary, error) {
	summary, err := a.finder.SearchActive(ctx, trigger, types, a.cfg.Search.MaxLeads)
	if err != nil {
		return summary, fmt.Errorf("search: %w", err)
	}
	queueCtx, cancel := context.WithTimeout(ctx, enqueueTimeout)
	defer cancel()
	if n, err := a.dispatch.EnqueueLeads(queueCtx, summary.LeadIDs); err != nil {
		a.logger.Warn("queue found leads",
			zap.Int("queued", n),
			zap.Int("total", len(summary.LeadIDs)),
			zap.Error(err),
		)
	}
	return summary, nil
}

// SearchAndQualify runs a cycle and qualifies what it found inline, for
// one-shot use without background workers.
func (a *App) SearchAndQualify(ctx context.Context, types []lead.SourceType) (finder.Summary, error) {
	summary, err := a.finder.SearchActive(ctx, finder.TriggerManual, types, a.cfg.Search.MaxLeads)
	if err != nil {
		return summary, fmt.Errorf("search: %w", err)
	}
	a.qualifyAll(ctx, summary.LeadIDs)
	return summary, nil
}

// Qualify analyzes and qualifies one lead synchronously.
func (a *App) Qualify(ctx context.Context, leadID string) (qualifier.Result, error) {
	res, err := a.processor.Process(ctx, leadID)
	switch {
	case errors.Is(err, worker.ErrPublish):
		a.logger.Warn("hot lead notification failed", zap.String("lead_id", leadID), zap.Error(err))
	case err != nil:
		return res, fmt.Errorf("qualify %s: %w", leadID, err)
	}
	return res, nil
}

// QualifyNew qualifies every lead still in the new status and reports how
// many succeeded.
func (a *App) QualifyNew(ctx context.Context) (int, error) {
	leads, err := a.store.ListLeads(ctx, lead.LeadFilter{Status: lead.StatusNew})
	if err != nil {
		return 0, fmt.Errorf("list new leads: %w", err)
	}
	ids := make([]string, 0, len(leads))
	for _, l := range leads {
		ids = append(ids, l.ID)
	}
	return a.qualifyAll(ctx, ids), nil
}

func (a *App) qualifyAll(ctx context.Context, ids []string) int {
	ok := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		if _, err := a.processor.Process(ctx, id); err != nil && !errors.Is(err, worker.ErrPublish) {
			a.logger.Warn("qualify lead", zap.String("lead_id", id), zap.Error(err))
			continue
		}
		ok++
	}
	return ok
}

// Run starts the workers, the search scheduler, and the HTTP server, and
// blocks until the context is canceled or a signal arrives.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		a.logger.Info("dispatcher started")
		a.dispatch.Run(ctx)
	}()

	if a.cfg.Search.Interval > 0 {
		go scheduler.Every(ctx, a.cfg.Search.Interval, "search", func(ctx context.Context) error {
			_, err := a.Search(ctx, finder.TriggerScheduled, nil)
			return err
		}, a.logger)
	} else {
		a.logger.Info("scheduled search disabled")
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.Close(shutdownCtx)
	return nil
}

// Close releases infrastructure clients. It is safe on a partially built App
// and after a previous Close.
func (a *App) Close(_ context.Context) {
	a.closeOnce.Do(a.close)
}

func (a *App) close() {
	if a.queue != nil {
		a.queue.Close()
	}
	if a.gcpPublisher != nil {
		a.gcpPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("redis client close failed", zap.Error(err))
		}
	}
	if a.pgStore != nil {
		a.pgStore.Close()
	}
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
}
