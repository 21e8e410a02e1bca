package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/skincare-rag/internal/core/domain"
	"github.com/kirillkom/skincare-rag/internal/core/ports"
)

const defaultTopK = 5

var errLexicalIndexMissing = errors.New("lexical index is not configured")

// RetrievalOptions tunes candidate pool sizes, fusion weights and the optional
// type-aware reranking stage.
type RetrievalOptions struct {
	Collection        string
	DenseCandidates   int
	LexicalCandidates int
	RRFK              int
	DenseWeight       float64
	LexicalWeight     float64

	TypeRerankEnabled     bool
	TypeRerankDelta       float64
	TypeRerankMaxSameType int
}

func (o RetrievalOptions) withDefaults() RetrievalOptions {
	if o.Collection == "" {
		o.Collection = "skincare_box"
	}
	if o.DenseCandidates <= 0 {
		o.DenseCandidates = 25
	}
	if o.LexicalCandidates <= 0 {
		o.LexicalCandidates = 25
	}
	if o.RRFK <= 0 {
		o.RRFK = defaultRRFK
	}
	if o.DenseWeight <= 0 {
		o.DenseWeight = defaultDenseWeight
	}
	if o.LexicalWeight <= 0 {
		o.LexicalWeight = defaultLexicalWeight
	}
	if o.TypeRerankDelta <= 0 {
		o.TypeRerankDelta = defaultRerankDelta
	}
	if o.TypeRerankMaxSameType <= 0 {
		o.TypeRerankMaxSameType = defaultRerankMaxSameType
	}
	return o
}

// RetrievalObserver receives per-request retrieval outcomes.
type RetrievalObserver interface {
	RecordRetrieval(mode domain.ModeName, results int, gapFilled bool, duration time.Duration, err error)
}

type noopRetrievalObserver struct{}

func (noopRetrievalObserver) RecordRetrieval(domain.ModeName, int, bool, time.Duration, error) {}

// RetrievalUseCase composes dense search, lexical search, fusion and gap fill
// according to the resolved mode.
type RetrievalUseCase struct {
	embedder  ports.Embedder
	vectorDB  ports.VectorSearcher
	lexical   ports.LexicalSearcher
	generator ports.TextGenerator
	gapFiller *StepBackGapFiller
	opts      RetrievalOptions
	observer  RetrievalObserver
	logger    *slog.Logger
}

func NewRetrievalUseCase(
	embedder ports.Embedder,
	vectorDB ports.VectorSearcher,
	lexical ports.LexicalSearcher,
	generator ports.TextGenerator,
	opts RetrievalOptions,
	logger *slog.Logger,
) *RetrievalUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()
	return &RetrievalUseCase{
		embedder:  embedder,
		vectorDB:  vectorDB,
		lexical:   lexical,
		generator: generator,
		gapFiller: NewStepBackGapFiller(generator, embedder, vectorDB, opts.Collection, logger),
		opts:      opts,
		observer:  noopRetrievalObserver{},
		logger:    logger,
	}
}

// SetObserver installs a retrieval observer, typically Prometheus metrics.
func (uc *RetrievalUseCase) SetObserver(observer RetrievalObserver) {
	if observer == nil {
		uc.observer = noopRetrievalObserver{}
		return
	}
	uc.observer = observer
}

// WithLexical returns a copy bound to another lexical index.
func (uc *RetrievalUseCase) WithLexical(lexical ports.LexicalSearcher) *RetrievalUseCase {
	clone := *uc
	clone.lexical = lexical
	return &clone
}

func (uc *RetrievalUseCase) Retrieve(ctx context.Context, question string, mode domain.Mode, topK int) ([]domain.Candidate, error) {
	denseText, err := uc.DenseText(ctx, question, mode)
	if err != nil {
		return nil, err
	}
	return uc.RetrieveWithDenseText(ctx, question, denseText, mode, topK)
}

// DenseText returns the text embedded for dense search: a HyDE rewrite for
// rewrite modes, falling back to the question when the rewrite is blank.
func (uc *RetrievalUseCase) DenseText(ctx context.Context, question string, mode domain.Mode) (string, error) {
	if !mode.UsesRewrite {
		return question, nil
	}
	rewrite, err := uc.generator.Generate(ctx, hydeSystemPrompt, buildRewriteUserPrompt(question))
	if err != nil {
		return "", domain.WrapError(domain.ErrCollaborator, "generate hyde rewrite", err)
	}
	rewrite = strings.TrimSpace(rewrite)
	if rewrite == "" {
		uc.logger.Warn("hyde_rewrite_empty", "mode", mode.Name)
		return question, nil
	}
	return rewrite, nil
}

// RetrieveWithDenseText runs retrieval with a caller-supplied dense text.
// Lexical search and gap classification always use the original question.
func (uc *RetrievalUseCase) RetrieveWithDenseText(
	ctx context.Context,
	question string,
	denseText string,
	mode domain.Mode,
	topK int,
) (results []domain.Candidate, err error) {
	if topK <= 0 {
		topK = defaultTopK
	}
	if strings.TrimSpace(denseText) == "" {
		denseText = question
	}

	started := time.Now()
	gapFilled := false
	defer func() {
		uc.observer.RecordRetrieval(mode.Name, len(results), gapFilled, time.Since(started), err)
	}()

	var pool []domain.Candidate
	if mode.UsesHybrid {
		pool, err = uc.hybridCandidates(ctx, question, denseText)
	} else {
		pool, err = uc.denseCandidates(ctx, denseText, topK)
	}
	if err != nil {
		return nil, err
	}

	if uc.opts.TypeRerankEnabled {
		pool = TypeAwareRerank(pool, topK, uc.opts.TypeRerankDelta, uc.opts.TypeRerankMaxSameType)
	}
	pool = domain.Truncate(pool, topK)

	if mode.UsesGapFill {
		before := len(pool)
		pool, err = uc.gapFiller.Fill(ctx, question, pool, topK)
		if err != nil {
			return nil, err
		}
		gapFilled = len(pool) != before
	}

	results = domain.Truncate(pool, topK)
	uc.logger.Debug("retrieval_completed",
		"mode", mode.Name,
		"results", len(results),
		"hybrid", mode.UsesHybrid,
		"gap_fill", mode.UsesGapFill,
	)
	return results, nil
}

func (uc *RetrievalUseCase) denseCandidates(ctx context.Context, text string, limit int) ([]domain.Candidate, error) {
	vector, err := uc.embedder.Embed(ctx, text)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCollaborator, "embed dense text", err)
	}
	hits, err := uc.vectorDB.Search(ctx, uc.opts.Collection, vector, limit)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCollaborator, "search vector db", err)
	}
	return hits, nil
}

func (uc *RetrievalUseCase) hybridCandidates(ctx context.Context, question, denseText string) ([]domain.Candidate, error) {
	if uc.lexical == nil {
		return nil, domain.WrapError(domain.ErrCollaborator, "search lexical index", errLexicalIndexMissing)
	}
	dense, err := uc.denseCandidates(ctx, denseText, uc.opts.DenseCandidates)
	if err != nil {
		return nil, err
	}
	lexical, err := uc.lexical.Search(ctx, question, uc.opts.LexicalCandidates)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCollaborator, "search lexical index", err)
	}
	return FuseRRF(dense, lexical, uc.opts.RRFK, uc.opts.DenseWeight, uc.opts.LexicalWeight), nil
}
