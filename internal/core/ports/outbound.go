package ports

import (
	"context"

	"github.com/kirillkom/skincare-rag/internal/core/domain"
)

// Embedder turns text into a fixed-size dense vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// VectorSearcher performs similarity search ordered by descending score.
type VectorSearcher interface {
	Search(ctx context.Context, collection string, vector []float64, topK int) ([]domain.Candidate, error)
}

// VectorIndexer writes documents into the vector index.
type VectorIndexer interface {
	EnsureCollection(ctx context.Context, collection string, vectorSize int) error
	Upsert(ctx context.Context, collection string, docs []domain.KnowledgeDocument, vectors [][]float64) error
}

// LexicalSearcher performs BM25 search over the static corpus.
type LexicalSearcher interface {
	Search(ctx context.Context, query string, topN int) ([]domain.Candidate, error)
}

// LexicalIndexBuilder builds an isolated lexical index instance.
type LexicalIndexBuilder interface {
	Build(ctx context.Context) (LexicalSearcher, error)
}

// TextGenerator produces text from a system and a user prompt.
type TextGenerator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// DocumentSource loads the knowledge base documents.
type DocumentSource interface {
	LoadDocuments(ctx context.Context, path string) ([]domain.KnowledgeDocument, error)
}

// QuestionSource loads the labeled question set.
type QuestionSource interface {
	LoadQuestions(ctx context.Context, path string) ([]domain.EvalQuestion, error)
}

// ReportStore persists one evaluation report and returns its location.
type ReportStore interface {
	SaveReport(ctx context.Context, report *domain.EvaluationReport) (string, error)
}

// EvaluationQueue publishes/consumes evaluation requests.
type EvaluationQueue interface {
	PublishEvaluationRequested(ctx context.Context, req domain.EvaluationRequest) error
	SubscribeEvaluationRequested(ctx context.Context, handler func(context.Context, domain.EvaluationRequest) error) error
}

// ReportReader returns the stored reports of one evaluation run.
type ReportReader interface {
	ReportsByRun(ctx context.Context, runID string) ([]domain.EvaluationReport, error)
}
