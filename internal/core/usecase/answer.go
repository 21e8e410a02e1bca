package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/skincare-rag/internal/core/domain"
	"github.com/kirillkom/skincare-rag/internal/core/ports"
)

type AnswerUseCase struct {
	retriever ports.Retriever
	generator ports.TextGenerator
	topK      int
}

func NewAnswerUseCase(retriever ports.Retriever, generator ports.TextGenerator, topK int) *AnswerUseCase {
	if topK <= 0 {
		topK = defaultTopK
	}
	return &AnswerUseCase{
		retriever: retriever,
		generator: generator,
		topK:      topK,
	}
}

func (uc *AnswerUseCase) Answer(ctx context.Context, question, modeRaw string) (*domain.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "answer", errors.New("question is required"))
	}

	mode := domain.ResolveMode(modeRaw)
	hits, err := uc.retriever.Retrieve(ctx, question, mode, uc.topK)
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}

	if len(hits) == 0 {
		return &domain.Answer{
			Text:    noDocumentsAnswer,
			Mode:    mode.Name,
			Sources: []domain.Candidate{},
		}, nil
	}

	text, err := uc.generator.Generate(ctx, answerSystemPrompt, buildAnswerUserPrompt(question, hits))
	if err != nil {
		return nil, domain.WrapError(domain.ErrCollaborator, "generate answer", err)
	}

	return &domain.Answer{
		Text:    text,
		Mode:    mode.Name,
		Sources: hits,
	}, nil
}
