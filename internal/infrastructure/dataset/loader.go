package dataset

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/kirillkom/skincare-rag/internal/core/domain"
)

const maxQuestionLineBytes = 1 << 20

// Loader reads the knowledge base (a JSON array) and the labeled question
// set (JSONL) from the local filesystem.
type Loader struct{}

func NewLoader() *Loader {
	return &Loader{}
}

type documentRecord struct {
	domain.KnowledgeDocument
	HowToUseCamel string `json:"howToUse"`
}

func (l *Loader) LoadDocuments(ctx context.Context, path string) ([]domain.KnowledgeDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", path, err)
	}

	var records []documentRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "decode dataset", fmt.Errorf("%s must be a JSON array of documents: %w", path, err))
	}

	docs := make([]domain.KnowledgeDocument, 0, len(records))
	for _, rec := range records {
		doc := rec.KnowledgeDocument
		if strings.TrimSpace(doc.HowToUse) == "" {
			doc.HowToUse = rec.HowToUseCamel
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (l *Loader) LoadQuestions(ctx context.Context, path string) ([]domain.EvalQuestion, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open question set %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxQuestionLineBytes)

	questions := make([]domain.EvalQuestion, 0, 64)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var q domain.EvalQuestion
		if err := json.Unmarshal([]byte(line), &q); err != nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, "decode question", fmt.Errorf("%s line %d: %w", path, lineNo, err))
		}
		questions = append(questions, q)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan question set %s: %w", path, err)
	}
	return questions, nil
}
