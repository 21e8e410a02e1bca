package ports

import (
	"context"

	"github.com/kirillkom/skincare-rag/internal/core/domain"
)

// Retriever is the inbound contract for mode-aware retrieval.
type Retriever interface {
	Retrieve(ctx context.Context, question string, mode domain.Mode, topK int) ([]domain.Candidate, error)
}

// AnswerService is the inbound contract for retrieval-augmented answers.
type AnswerService interface {
	Answer(ctx context.Context, question, mode string) (*domain.Answer, error)
}

// EvaluationRunner evaluates retrieval modes against a labeled question set.
type EvaluationRunner interface {
	Run(ctx context.Context, modes []string, questionSetPath string) (map[domain.ModeName]*domain.EvaluationReport, error)
}

// EvaluationScheduler enqueues evaluation runs for background workers.
type EvaluationScheduler interface {
	Schedule(ctx context.Context, modes []string, questionSetPath string) (*domain.EvaluationRequest, error)
}

// DatasetIngestor loads the knowledge base into the vector index.
type DatasetIngestor interface {
	IngestDataset(ctx context.Context, path string) (int, error)
}
