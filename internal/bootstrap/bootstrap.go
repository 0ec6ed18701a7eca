package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/qonfido/fundrag/internal/config"
	"github.com/qonfido/fundrag/internal/core/domain"
	"github.com/qonfido/fundrag/internal/core/ports"
	"github.com/qonfido/fundrag/internal/core/usecase"
	"github.com/qonfido/fundrag/internal/infrastructure/cache"
	"github.com/qonfido/fundrag/internal/infrastructure/index/lexical"
	"github.com/qonfido/fundrag/internal/infrastructure/index/semantic"
	"github.com/qonfido/fundrag/internal/infrastructure/ingest"
	"github.com/qonfido/fundrag/internal/infrastructure/llm/ollama"
	"github.com/qonfido/fundrag/internal/infrastructure/queue/nats"
	"github.com/qonfido/fundrag/internal/infrastructure/repository/postgres"
	"github.com/qonfido/fundrag/internal/infrastructure/rerank/cohere"
	"github.com/qonfido/fundrag/internal/infrastructure/resilience"
)

// App wires the retrieval engine together. Lifecycle is exposed concretely
// so binaries can drive rebuilds and read snapshot fingerprints.
type App struct {
	Config config.Config

	Lifecycle *usecase.IndexLifecycle
	Query     ports.QueryService
	Funds     ports.FundCatalog
	QueryLog  ports.QueryLogStore
	Queue     ports.MessageQueue

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	queryLog := postgres.NewQueryLogRepository(db)
	if err := queryLog.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig(), logger)

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSRebuildSubject, cfg.NATSReadySubject, nats.Options{
		ResilienceExecutor: executor,
		Logger:             logger,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	embedCache, err := cache.NewStore[[]float32](cfg.EmbedCacheSize)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, fmt.Errorf("init embedding cache: %w", err)
	}
	responseCache, err := cache.NewStore[domain.RetrievalResponse](cfg.QueryCacheSize)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, fmt.Errorf("init response cache: %w", err)
	}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, executor)
	embedder := usecase.NewCachedEmbedder(
		ollama.NewEmbedder(ollamaClient, cfg.EmbedDimension),
		embedCache,
		cfg.EmbedCacheTTL,
		cfg.EmbedBatchSize,
	)
	generator := ollama.NewGenerator(ollamaClient)
	reranker := cohere.New(cfg.CohereBaseURL, cfg.CohereAPIKey, cfg.CohereRerankModel, executor)

	semStore, err := semantic.NewPersistentStore(cfg.IndexDir, cfg.IndexCollection, cfg.IndexCompress, logger)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, fmt.Errorf("init vector store: %w", err)
	}

	loader := ingest.NewLoader(cfg.DataDir, cfg.FAQsFile, cfg.FundsFile, logger)
	lifecycle := usecase.NewIndexLifecycle(loader, embedder, lexical.NewBuilder(), semStore, logger)

	orchestrator := usecase.NewOrchestrator(
		lifecycle,
		embedder,
		reranker,
		generator,
		usecase.NewKeywordClassifier(),
		responseCache,
		queryLog,
		logger,
		usecase.OrchestratorOptions{
			DefaultMode: domain.QueryMode(cfg.RAGDefaultMode),
			DefaultTopK: cfg.RAGTopK,
			MaxTopK:     cfg.RAGMaxTopK,
			RRFK:        cfg.RAGFusionRRFK,
			HybridAlpha: cfg.RAGHybridAlpha,
			ResponseTTL: cfg.QueryCacheTTL,

			EmbedTimeout:    cfg.EmbedTimeout,
			RerankTimeout:   cfg.RerankTimeout,
			GenerateTimeout: cfg.GenerateTimeout,
		},
	)

	return &App{
		Config:    cfg,
		Lifecycle: lifecycle,
		Query:     orchestrator,
		Funds:     usecase.NewFundCatalog(lifecycle),
		QueryLog:  queryLog,
		Queue:     queue,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
