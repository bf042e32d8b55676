package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/kt-search/internal/config"
	"github.com/kirillkom/kt-search/internal/core/ports"
	"github.com/kirillkom/kt-search/internal/core/usecase"
	"github.com/kirillkom/kt-search/internal/infrastructure/embedcache"
	"github.com/kirillkom/kt-search/internal/infrastructure/heuristics"
	redisstore "github.com/kirillkom/kt-search/internal/infrastructure/jobstore/redis"
	"github.com/kirillkom/kt-search/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/kt-search/internal/infrastructure/llm/openai"
	"github.com/kirillkom/kt-search/internal/infrastructure/queue/nats"
	"github.com/kirillkom/kt-search/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/kt-search/internal/infrastructure/resilience"
	"github.com/kirillkom/kt-search/internal/infrastructure/similarity"
	"github.com/kirillkom/kt-search/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/kt-search/internal/observability/metrics"
)

// Options select which parts of the graph a binary needs.
type Options struct {
	Service string
	// Registerer receives the search pipeline metrics. Nil disables them.
	Registerer prometheus.Registerer
	// Offline skips Postgres, Redis and NATS. Only the synchronous pipeline
	// is built.
	Offline bool
	// OnQueueLag receives the delivery delay of each consumed job.
	OnQueueLag func(time.Duration)
}

type App struct {
	Config config.Config

	Pipeline *usecase.SearchPipeline
	Registry *usecase.ClientRegistry
	Jobs     *usecase.SearchJobUseCase
	Logs     *postgres.SearchLogRepository
	Queue    *nats.Queue

	Health map[string]func(ctx context.Context) error

	closers []func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (_ *App, err error) {
	app := &App{
		Config: cfg,
		Health: map[string]func(ctx context.Context) error{},
	}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	h, err := heuristics.Load(cfg.HeuristicsFile)
	if err != nil {
		return nil, fmt.Errorf("load heuristics: %w", err)
	}

	var executorOpts []resilience.Option
	if opts.Registerer != nil {
		breakers := metrics.NewBreakerMetrics(opts.Registerer, opts.Service)
		executorOpts = append(executorOpts, resilience.WithStateListener(func(op string, _, to gobreaker.State) {
			breakers.ObserveTransition(op, to.String())
		}))
	}
	executor := resilience.NewExecutor(resilienceConfig(cfg), executorOpts...)
	app.Health["providers"] = openCircuits(executor)

	store := qdrant.New(qdrant.Config{
		BaseURL:        cfg.QdrantURL,
		Collection:     cfg.QdrantCollection,
		APIKey:         cfg.QdrantAPIKey,
		RequestTimeout: cfg.ProviderTimeout,
	}, executor)
	app.Health["qdrant"] = store.Ping

	llm, rawEmbedder, err := newLanguageModel(cfg, executor)
	if err != nil {
		return nil, err
	}
	embedder, err := embedcache.New(rawEmbedder, cfg.EmbedCacheSize)
	if err != nil {
		return nil, fmt.Errorf("init embedding cache: %w", err)
	}

	sim := similarity.NewLevenshtein()
	registry := usecase.NewClientRegistry(store, sim, usecase.RegistryOptions{
		TTL:       cfg.RegistryTTL,
		MinChunks: cfg.RegistryMinChunks,
	})
	app.Registry = registry

	cache, err := usecase.NewAnswerCache(cfg.AnswerCacheSize)
	if err != nil {
		return nil, fmt.Errorf("init answer cache: %w", err)
	}

	var observer ports.SearchObserver
	if opts.Registerer != nil {
		observer = metrics.NewSearchMetrics(opts.Registerer, opts.Service)
	}

	deps := usecase.SearchDeps{
		Store:      store,
		Embedder:   embedder,
		LLM:        llm,
		Registry:   registry,
		Similarity: sim,
		Observer:   observer,
		Cache:      cache,
		Heuristics: h,
	}

	if !opts.Offline {
		db, err := postgres.OpenDB(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		app.closers = append(app.closers, func() { _ = db.Close() })
		logs := postgres.NewSearchLogRepository(db)
		if err := logs.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		app.Logs = logs
		deps.Logs = logs
		app.Health["postgres"] = pingDB(db)
	}

	app.Pipeline = usecase.NewSearchPipeline(deps)

	if !opts.Offline {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		app.closers = append(app.closers, func() { _ = rdb.Close() })
		jobStore := redisstore.New(rdb, cfg.JobResultTTL, executor)
		app.Health["redis"] = jobStore.Ping

		queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: executor,
			OnLag:              opts.OnQueueLag,
		})
		if err != nil {
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		app.closers = append(app.closers, queue.Close)
		app.Queue = queue
		app.Health["nats"] = queue.Ping

		app.Jobs = usecase.NewSearchJobUseCase(jobStore, queue, app.Pipeline)
	}

	if _, err := registry.Discover(ctx); err != nil {
		slog.Warn("client_registry_warmup_failed", "error", err)
	}
	return app, nil
}

func newLanguageModel(cfg config.Config, executor *resilience.Executor) (ports.LanguageModel, ports.Embedder, error) {
	switch cfg.LLMProvider {
	case "ollama", "":
		client := ollama.New(ollama.Config{
			BaseURL:        cfg.OllamaURL,
			GenModel:       cfg.OllamaGenModel,
			EmbedModel:     cfg.OllamaEmbedModel,
			EmbedDimension: cfg.EmbedDimension,
			RequestTimeout: cfg.ProviderTimeout,
		}, executor)
		return client, client, nil
	case "openai":
		client := openai.New(openai.Config{
			BaseURL:        cfg.OpenAIBaseURL,
			APIKey:         cfg.OpenAIAPIKey,
			ChatModel:      cfg.OpenAIChatModel,
			EmbedModel:     cfg.OpenAIEmbedModel,
			EmbedDimension: cfg.EmbedDimension,
			RequestTimeout: cfg.ProviderTimeout,
		}, executor)
		return client, client, nil
	default:
		return nil, nil, fmt.Errorf("unknown LLM_PROVIDER %q", cfg.LLMProvider)
	}
}

func resilienceConfig(cfg config.Config) resilience.Config {
	rc := resilience.DefaultConfig()
	rc.RetryMaxAttempts = cfg.RetryMaxAttempts
	rc.AttemptTimeout = cfg.ProviderTimeout
	rc.BreakerEnabled = cfg.BreakerEnabled
	rc.BreakerOpenTimeout = cfg.BreakerOpenTimeout
	if cfg.BreakerMinRequests > 0 {
		rc.BreakerMinRequests = uint32(cfg.BreakerMinRequests)
	}
	if cfg.BreakerFailureRatio > 0 {
		rc.BreakerFailureRatio = cfg.BreakerFailureRatio
	}
	return rc
}

func openCircuits(executor *resilience.Executor) func(ctx context.Context) error {
	return func(context.Context) error {
		if open := executor.OpenBreakers(); len(open) > 0 {
			return fmt.Errorf("circuit open: %s", strings.Join(open, ", "))
		}
		return nil
	}
}

func pingDB(db *sql.DB) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return db.PingContext(ctx)
	}
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	if a == nil {
		return
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
