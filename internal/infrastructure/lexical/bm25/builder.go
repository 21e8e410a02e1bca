package bm25

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/skincare-rag/internal/core/ports"
)

// Builder loads the dataset and builds a fresh Index on every call, so each
// evaluation mode gets its own instance.
type Builder struct {
	source      ports.DocumentSource
	datasetPath string
	logger      *slog.Logger
}

func NewBuilder(source ports.DocumentSource, datasetPath string, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{source: source, datasetPath: datasetPath, logger: logger}
}

func (b *Builder) Build(ctx context.Context) (ports.LexicalSearcher, error) {
	return b.BuildIndex(ctx)
}

func (b *Builder) BuildIndex(ctx context.Context) (*Index, error) {
	started := time.Now()
	docs, err := b.source.LoadDocuments(ctx, b.datasetPath)
	if err != nil {
		return nil, fmt.Errorf("load lexical corpus: %w", err)
	}
	idx := NewIndex(docs)
	b.logger.Info("lexical_index_built",
		"dataset", b.datasetPath,
		"documents", idx.Len(),
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return idx, nil
}
