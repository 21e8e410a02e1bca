package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/skincare-rag/internal/config"
	"github.com/kirillkom/skincare-rag/internal/core/ports"
	"github.com/kirillkom/skincare-rag/internal/core/usecase"
	"github.com/kirillkom/skincare-rag/internal/infrastructure/dataset"
	"github.com/kirillkom/skincare-rag/internal/infrastructure/lexical/bm25"
	"github.com/kirillkom/skincare-rag/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/skincare-rag/internal/infrastructure/queue/nats"
	"github.com/kirillkom/skincare-rag/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/skincare-rag/internal/infrastructure/resilience"
	"github.com/kirillkom/skincare-rag/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/skincare-rag/internal/infrastructure/vector/qdrant"
)

// Options selects the optional infrastructure a binary needs.
type Options struct {
	Logger *slog.Logger

	// WithQueue connects to NATS for scheduling and consuming evaluations.
	WithQueue bool
	// WithDatabase persists evaluation reports to Postgres.
	WithDatabase bool
	// WithLexicalIndex builds the BM25 index at startup for hybrid requests.
	WithLexicalIndex bool

	RetrievalObserver  usecase.RetrievalObserver
	EvaluationObserver usecase.EvaluationObserver
}

type App struct {
	Config config.Config
	Logger *slog.Logger

	Retrieval *usecase.RetrievalUseCase
	Answers   *usecase.AnswerUseCase
	Harness   *usecase.EvaluationHarness
	Ingest    *usecase.IngestDatasetUseCase

	// Nil unless the matching option is enabled.
	Queue     *nats.Queue
	Scheduler ports.EvaluationScheduler
	Reports   ports.ReportReader

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	breakerCfg := resilience.DefaultConfig()
	breakerCfg.BreakerEnabled = cfg.BreakerEnabled
	executor := resilience.NewExecutor(breakerCfg)

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, ollama.WithExecutor(executor))
	embedder := ollama.NewEmbedder(ollamaClient)
	generator := ollama.NewGenerator(ollamaClient)
	vectorDB := qdrant.New(cfg.QdrantURL, qdrant.WithExecutor(executor))

	loader := dataset.NewLoader()
	lexicalBuilder := bm25.NewBuilder(loader, cfg.DatasetPath, logger)

	var lexical ports.LexicalSearcher
	if opts.WithLexicalIndex {
		index, err := lexicalBuilder.BuildIndex(ctx)
		if err != nil {
			return nil, fmt.Errorf("build lexical index: %w", err)
		}
		lexical = index
	}

	retrieval := usecase.NewRetrievalUseCase(embedder, vectorDB, lexical, generator, usecase.RetrievalOptions{
		Collection:            cfg.QdrantCollection,
		DenseCandidates:       cfg.RAGDenseCandidates,
		LexicalCandidates:     cfg.RAGLexicalCandidates,
		RRFK:                  cfg.RAGFusionRRFK,
		DenseWeight:           cfg.RAGDenseWeight,
		LexicalWeight:         cfg.RAGLexicalWeight,
		TypeRerankEnabled:     cfg.RAGTypeRerankEnabled,
		TypeRerankDelta:       cfg.RAGTypeRerankDelta,
		TypeRerankMaxSameType: cfg.RAGTypeRerankMaxSameType,
	}, logger)
	retrieval.SetObserver(opts.RetrievalObserver)

	storage, err := localfs.New(cfg.ReportDir)
	if err != nil {
		return nil, fmt.Errorf("init report storage: %w", err)
	}
	stores := []ports.ReportStore{localfs.NewReportStore(storage)}

	app := &App{
		Config:    cfg,
		Logger:    logger,
		Retrieval: retrieval,
		Answers:   usecase.NewAnswerUseCase(retrieval, generator, cfg.RAGTopK),
		Ingest:    usecase.NewIngestDatasetUseCase(loader, embedder, vectorDB, cfg.QdrantCollection, cfg.IngestConcurrency, logger),
	}

	if opts.WithDatabase {
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		closers = append(closers, func() { _ = db.Close() })

		repo := postgres.NewEvaluationRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			closeAll()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		stores = append(stores, repo)
		app.Reports = repo
	}

	if opts.WithQueue {
		queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSEvalSubject, nats.Options{
			ResilienceExecutor: executor,
			Logger:             logger,
			DrainTimeout:       time.Duration(cfg.WorkerDrainTimeoutSeconds) * time.Second,
		})
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("init evaluation queue: %w", err)
		}
		closers = append(closers, queue.Close)
		app.Queue = queue
		app.Scheduler = usecase.NewScheduleEvaluationUseCase(queue, cfg.QuestionSetPath)
	}

	app.Harness = usecase.NewEvaluationHarness(retrieval, lexicalBuilder, loader, stores, usecase.EvaluationOptions{
		TopK:                cfg.RAGTopK,
		QuestionConcurrency: cfg.EvalQuestionConcurrency,
	}, logger)
	app.Harness.SetObserver(opts.EvaluationObserver)

	app.closeFn = closeAll
	return app, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
