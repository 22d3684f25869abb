package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/kirillkom/filing-qa/internal/config"
	"github.com/kirillkom/filing-qa/internal/core/domain"
	"github.com/kirillkom/filing-qa/internal/core/ports"
	"github.com/kirillkom/filing-qa/internal/core/usecase"
	rediscache "github.com/kirillkom/filing-qa/internal/infrastructure/cache/redis"
	"github.com/kirillkom/filing-qa/internal/infrastructure/chunking"
	"github.com/kirillkom/filing-qa/internal/infrastructure/extractor/filingjson"
	"github.com/kirillkom/filing-qa/internal/infrastructure/index"
	"github.com/kirillkom/filing-qa/internal/infrastructure/llm"
	"github.com/kirillkom/filing-qa/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/filing-qa/internal/infrastructure/llm/openai"
	"github.com/kirillkom/filing-qa/internal/infrastructure/queue/nats"
	"github.com/kirillkom/filing-qa/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/filing-qa/internal/infrastructure/resilience"
	"github.com/kirillkom/filing-qa/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/filing-qa/internal/infrastructure/storage/minio"
	s3store "github.com/kirillkom/filing-qa/internal/infrastructure/storage/s3"
	"github.com/kirillkom/filing-qa/internal/observability/metrics"
)

// Options select which external systems an entry point needs.
type Options struct {
	// Registry connects Postgres and enables ingestion and rebuilds.
	Registry bool
	// Queue connects NATS. Ingestion needs both Registry and Queue.
	Queue bool
	// Pipeline receives retrieval and rebuild metrics when set.
	Pipeline *metrics.PipelineMetrics
}

type App struct {
	Config config.Config
	Logger *slog.Logger

	Storage   ports.ObjectStorage
	Repo      *postgres.FilingRepository
	Queue     *nats.Queue
	Store     *index.Store
	Persister *index.Persister
	Embedder  llm.Embedder

	Router    *usecase.QueryRouter
	Verifier  *usecase.MathVerifier
	Retriever *usecase.HierarchicalRetriever
	Searcher  *usecase.HybridSearcher
	QueryUC   *usecase.QueryUseCase
	IngestUC  *usecase.IngestFilingUseCase
	RebuildUC *usecase.IndexRebuildUseCase

	closers []func()
}

// Init prepares local directories. Entry points call it before New.
func Init(cfg config.Config) error {
	if cfg.StorageBackend != "local" {
		return nil
	}
	if err := os.MkdirAll(cfg.StoragePath, 0o755); err != nil {
		return domain.WrapError(domain.ErrConfig, "create storage dir", err)
	}
	return nil
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, domain.WrapError(domain.ErrConfig, "bootstrap", err)
	}

	app := &App{Config: cfg, Logger: logger}
	if err := app.wire(ctx, opts); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) wire(ctx context.Context, opts Options) error {
	cfg := a.Config

	var retrievalObserver ports.RetrievalObserver
	var rebuildObserver ports.RebuildObserver
	executorOpts := []resilience.Option{resilience.WithLogger(a.Logger)}
	if opts.Pipeline != nil {
		retrievalObserver = opts.Pipeline
		rebuildObserver = opts.Pipeline
		executorOpts = append(executorOpts, resilience.WithObserver(opts.Pipeline))
	}

	keywords, err := config.LoadKeywords(cfg.KeywordsPath)
	if err != nil {
		return domain.WrapError(domain.ErrConfig, "load keywords", err)
	}

	storage, err := newObjectStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init object storage: %w", err)
	}
	a.Storage = storage

	llmExecutor := resilience.NewExecutor(llmPolicy(cfg), executorOpts...)
	selection := llm.Selection{
		UseOllama: cfg.UseOllama,
		UseOpenAI: cfg.UseOpenAI,
		Ollama: ollama.Options{
			BaseURL:     cfg.OllamaURL,
			GenModel:    cfg.OllamaGenModel,
			EmbedModel:  cfg.OllamaEmbedModel,
			Temperature: cfg.GenerationTemperature,
			MaxTokens:   cfg.GenerationMaxTokens,
			Timeout:     cfg.GenerationTimeout,
		},
		OpenAI: openai.Options{
			APIKey:      cfg.OpenAIAPIKey,
			BaseURL:     cfg.OpenAIBaseURL,
			GenModel:    cfg.OpenAIGenModel,
			EmbedModel:  cfg.OpenAIEmbedModel,
			Temperature: cfg.GenerationTemperature,
			MaxTokens:   cfg.GenerationMaxTokens,
		},
		Executor: llmExecutor,
	}
	generator, err := llm.NewGenerator(selection)
	if err != nil {
		return err
	}
	embedder, err := a.newEmbedder(ctx, selection)
	if err != nil {
		return err
	}
	a.Embedder = embedder

	kind, err := index.ParseKind(cfg.IndexKind)
	if err != nil {
		return err
	}
	compression, err := index.ParseCompression(cfg.IndexCompression)
	if err != nil {
		return err
	}
	store, err := index.NewStore(index.Options{
		Kind: kind,
		Dense: index.DenseOptions{
			M:              cfg.HNSWM,
			EfConstruction: cfg.HNSWEfConstruction,
			EfSearch:       cfg.HNSWEfSearch,
			NProbe:         cfg.IVFNProbe,
			Seed:           cfg.IndexSeed,
		},
	}, a.Logger)
	if err != nil {
		return err
	}
	a.Store = store
	a.Persister = index.NewPersister(store, storage, compression)
	if cfg.RestoreOnStart {
		a.restoreSnapshots(ctx, opts.Pipeline)
	}

	weighted, err := usecase.NewWeightedScoreFusion(cfg.FusionAlpha)
	if err != nil {
		return err
	}
	rrf, err := usecase.NewReciprocalRankFusion(cfg.RRFDenseWeight, cfg.RRFBM25Weight)
	if err != nil {
		return err
	}

	a.Router = usecase.NewQueryRouter(keywords)
	a.Verifier = usecase.NewMathVerifier(keywords, cfg.VerifierTolerance)
	a.Retriever = usecase.NewHierarchicalRetriever(embedder, store, weighted, cfg.StrictSectionFilter, retrievalObserver, a.Logger)
	a.Searcher = usecase.NewHybridSearcher(embedder, store, rrf, a.Logger)
	a.QueryUC = usecase.NewQueryUseCase(
		a.Router,
		a.Retriever,
		generator,
		a.Verifier,
		usecase.FilingCitationBuilder{},
		cfg.GenerationTimeout,
		retrievalObserver,
		a.Logger,
	)

	if !opts.Registry {
		return nil
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	a.closers = append(a.closers, func() { closeDB(db) })
	repo := postgres.NewFilingRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	a.Repo = repo

	builder := usecase.NewCorpusBuilder(chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap), cfg.AbstractWords)
	a.RebuildUC = usecase.NewIndexRebuildUseCase(
		repo,
		filingjson.NewLoader(storage),
		builder,
		embedder,
		store,
		a.Persister,
		cfg.EmbedBatchSize,
		rebuildObserver,
		a.Logger,
	)

	if !opts.Queue {
		return nil
	}

	queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: resilience.NewExecutor(resilience.QueuePolicy(), executorOpts...),
		Logger:             a.Logger,
	})
	if err != nil {
		return fmt.Errorf("init message queue: %w", err)
	}
	a.closers = append(a.closers, queue.Close)
	a.Queue = queue
	a.IngestUC = usecase.NewIngestFilingUseCase(repo, storage, queue)
	return nil
}

func (a *App) newEmbedder(ctx context.Context, selection llm.Selection) (llm.Embedder, error) {
	inner, err := llm.NewEmbedder(a.Config.EmbeddingProvider, selection)
	if err != nil {
		return nil, err
	}
	if a.Config.RedisAddr == "" {
		return inner, nil
	}

	client := rediscache.NewClient(a.Config.RedisAddr, a.Config.RedisPassword, a.Config.RedisDB)
	a.closers = append(a.closers, func() { _ = client.Close() })
	if err := client.Ping(ctx); err != nil {
		a.Logger.Warn("embedding cache unreachable, continuing without hits", "addr", a.Config.RedisAddr, "error", err)
	}
	return rediscache.NewCachedEmbedder(inner, inner.Model(), client, a.Config.EmbedCacheTTL, a.Logger), nil
}

// restoreSnapshots publishes persisted versions. Missing snapshots leave
// the corpus empty; unreadable ones are logged and skipped.
func (a *App) restoreSnapshots(ctx context.Context, pipeline *metrics.PipelineMetrics) {
	for _, c := range domain.Corpora() {
		err := a.Persister.Restore(ctx, c)
		switch {
		case err == nil:
			snap := a.Store.Snapshot(c)
			a.Logger.Info("index snapshot restored", "corpus", c, "version", snap.Version(), "size", snap.Len())
			if pipeline != nil {
				pipeline.SetCorpusSize(c, snap.Len())
			}
		case errors.Is(err, domain.ErrNotFound):
			a.Logger.Info("no persisted snapshot", "corpus", c)
		default:
			a.Logger.Warn("restore snapshot failed", "corpus", c, "error", err)
		}
	}
}

func newObjectStorage(ctx context.Context, cfg config.Config) (ports.ObjectStorage, error) {
	switch cfg.StorageBackend {
	case "s3":
		store, err := s3store.NewFromEnv(ctx, s3store.Options{
			Bucket:   cfg.S3Bucket,
			Prefix:   cfg.S3Prefix,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case "minio":
		store, err := minio.New(minio.Options{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			UseSSL:    cfg.MinIOUseSSL,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			Prefix:    cfg.S3Prefix,
		})
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return localfs.New(cfg.StoragePath), nil
	}
}

func llmPolicy(cfg config.Config) resilience.Policy {
	p := resilience.LLMPolicy()
	p.Throttle = resilience.ThrottlePolicy{PerSecond: cfg.LLMRateLimit, Burst: cfg.LLMRateBurst}
	return p
}

func closeDB(db *sql.DB) {
	_ = db.Close()
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
