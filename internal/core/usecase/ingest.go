package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/skincare-rag/internal/core/domain"
	"github.com/kirillkom/skincare-rag/internal/core/ports"
)

const defaultEmbedConcurrency = 4

// IngestDatasetUseCase embeds the knowledge base and upserts it into the
// vector collection.
type IngestDatasetUseCase struct {
	source      ports.DocumentSource
	embedder    ports.Embedder
	indexer     ports.VectorIndexer
	collection  string
	concurrency int
	logger      *slog.Logger
}

func NewIngestDatasetUseCase(
	source ports.DocumentSource,
	embedder ports.Embedder,
	indexer ports.VectorIndexer,
	collection string,
	concurrency int,
	logger *slog.Logger,
) *IngestDatasetUseCase {
	if concurrency <= 0 {
		concurrency = defaultEmbedConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestDatasetUseCase{
		source:      source,
		embedder:    embedder,
		indexer:     indexer,
		collection:  collection,
		concurrency: concurrency,
		logger:      logger,
	}
}

// IngestDataset returns the number of indexed documents.
func (uc *IngestDatasetUseCase) IngestDataset(ctx context.Context, path string) (int, error) {
	loaded, err := uc.source.LoadDocuments(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("load dataset: %w", err)
	}

	docs := make([]domain.KnowledgeDocument, 0, len(loaded))
	for _, doc := range loaded {
		if strings.TrimSpace(doc.ID) == "" {
			uc.logger.Warn("dataset_document_skipped", "reason", "blank id", "type", doc.Type)
			continue
		}
		docs = append(docs, doc)
	}
	if len(docs) == 0 {
		return 0, domain.WrapError(domain.ErrInvalidInput, "ingest dataset", errors.New("dataset has no documents with an id"))
	}
	uc.logger.Info("dataset_loaded", "path", path, "documents", len(docs), "skipped", len(loaded)-len(docs))

	vectors, err := uc.embed(ctx, docs)
	if err != nil {
		return 0, err
	}

	if err := uc.indexer.EnsureCollection(ctx, uc.collection, len(vectors[0])); err != nil {
		return 0, domain.WrapError(domain.ErrCollaborator, "ensure vector collection", err)
	}
	if err := uc.indexer.Upsert(ctx, uc.collection, docs, vectors); err != nil {
		return 0, domain.WrapError(domain.ErrCollaborator, "upsert documents", err)
	}

	uc.logger.Info("dataset_ingested", "collection", uc.collection, "documents", len(docs))
	return len(docs), nil
}

func (uc *IngestDatasetUseCase) embed(ctx context.Context, docs []domain.KnowledgeDocument) ([][]float64, error) {
	vectors := make([][]float64, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.concurrency)
	for i, doc := range docs {
		i, doc := i, doc
		g.Go(func() error {
			vector, err := uc.embedder.Embed(gctx, BuildEmbeddingText(doc))
			if err != nil {
				return domain.WrapError(domain.ErrCollaborator, "embed document "+doc.ID, err)
			}
			if len(vector) == 0 {
				return domain.WrapError(domain.ErrCollaborator, "embed document "+doc.ID, errors.New("empty embedding"))
			}
			vectors[i] = vector
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	size := len(vectors[0])
	for i, v := range vectors {
		if len(v) != size {
			return nil, domain.WrapError(
				domain.ErrInvalidInput,
				"embed documents",
				fmt.Errorf("vector size mismatch for %s: %d/%d", docs[i].ID, len(v), size),
			)
		}
	}
	return vectors, nil
}

// BuildEmbeddingText joins the descriptive fields of a document into the text
// sent to the embedding model.
func BuildEmbeddingText(doc domain.KnowledgeDocument) string {
	var b strings.Builder
	if doc.Title != "" {
		b.WriteString(doc.Title + "\n")
	}
	if doc.Name != "" && doc.Name != doc.Title {
		b.WriteString(doc.Name + "\n")
	}
	if doc.Brand != "" {
		b.WriteString("Brand: " + doc.Brand + "\n")
	}
	if doc.Type != "" {
		b.WriteString("Type: " + doc.Type + "\n")
	}
	if doc.Category != "" {
		b.WriteString("Category: " + doc.Category + "\n")
	}
	if len(doc.SkinType) > 0 {
		b.WriteString("Skin type: " + strings.Join(doc.SkinType, ", ") + "\n")
	}
	if len(doc.Concerns) > 0 {
		b.WriteString("Concerns: " + strings.Join(doc.Concerns, ", ") + "\n")
	}
	if doc.AgeRange != "" {
		b.WriteString("Age range: " + doc.AgeRange + "\n")
	}
	if doc.Text != "" {
		b.WriteString("\n" + doc.Text)
	}
	return b.String()
}
