package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/skincare-rag/internal/core/domain"
	"github.com/kirillkom/skincare-rag/internal/core/ports"
)

type ScheduleEvaluationUseCase struct {
	queue              ports.EvaluationQueue
	defaultQuestionSet string
}

func NewScheduleEvaluationUseCase(queue ports.EvaluationQueue, defaultQuestionSet string) *ScheduleEvaluationUseCase {
	return &ScheduleEvaluationUseCase{
		queue:              queue,
		defaultQuestionSet: defaultQuestionSet,
	}
}

// Schedule publishes an evaluation request. Mode names are canonicalised so
// the worker receives exactly the modes it will report on.
func (uc *ScheduleEvaluationUseCase) Schedule(ctx context.Context, modes []string, questionSetPath string) (*domain.EvaluationRequest, error) {
	if questionSetPath == "" {
		questionSetPath = uc.defaultQuestionSet
	}

	resolved := resolveModes(modes)
	names := make([]string, 0, len(resolved))
	for _, mode := range resolved {
		names = append(names, string(mode.Name))
	}

	req := domain.EvaluationRequest{
		RunID:           uuid.NewString(),
		Modes:           names,
		QuestionSetPath: questionSetPath,
		RequestedAt:     time.Now().UTC(),
	}
	if err := uc.queue.PublishEvaluationRequested(ctx, req); err != nil {
		return nil, fmt.Errorf("publish evaluation request: %w", err)
	}
	return &req, nil
}
