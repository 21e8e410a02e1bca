package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/kirillkom/skincare-rag/internal/core/domain"
)

type documentSourceFake struct {
	docs []domain.KnowledgeDocument
	err  error
}

func (f *documentSourceFake) LoadDocuments(context.Context, string) ([]domain.KnowledgeDocument, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.docs, nil
}

type indexerFake struct {
	mu         sync.Mutex
	collection string
	vectorSize int
	docs       []domain.KnowledgeDocument
	vectors    [][]float64
	ensureErr  error
	upsertErr  error
}

func (f *indexerFake) EnsureCollection(_ context.Context, collection string, vectorSize int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.collection = collection
	f.vectorSize = vectorSize
	return f.ensureErr
}

func (f *indexerFake) Upsert(_ context.Context, _ string, docs []domain.KnowledgeDocument, vectors [][]float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs = docs
	f.vectors = vectors
	return f.upsertErr
}

func TestIngestDatasetSkipsBlankIDs(t *testing.T) {
	source := &documentSourceFake{docs: []domain.KnowledgeDocument{
		{ID: "product_1", Type: "product", Title: "Cream"},
		{ID: "  ", Type: "product", Title: "Broken"},
		{ID: "routine_1", Type: "routine", Title: "Night routine"},
	}}
	emb := &embedderFake{}
	indexer := &indexerFake{}
	uc := NewIngestDatasetUseCase(source, emb, indexer, "skincare_box", 2, nil)

	count, err := uc.IngestDataset(context.Background(), "dataset.json")
	if err != nil {
		t.Fatalf("IngestDataset() error = %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 ingested documents, got %d", count)
	}
	if indexer.collection != "skincare_box" || indexer.vectorSize != 3 {
		t.Fatalf("unexpected collection setup: %s/%d", indexer.collection, indexer.vectorSize)
	}
	if len(indexer.docs) != 2 || len(indexer.vectors) != 2 {
		t.Fatalf("expected 2 docs and vectors, got %d/%d", len(indexer.docs), len(indexer.vectors))
	}
	if indexer.docs[0].ID != "product_1" || indexer.docs[1].ID != "routine_1" {
		t.Fatalf("expected dataset order to be preserved, got %s, %s", indexer.docs[0].ID, indexer.docs[1].ID)
	}
	if emb.callCount() != 2 {
		t.Fatalf("expected 2 embedding calls, got %d", emb.callCount())
	}
}

func TestIngestDatasetEmbedError(t *testing.T) {
	source := &documentSourceFake{docs: []domain.KnowledgeDocument{{ID: "a"}}}
	indexer := &indexerFake{}
	uc := NewIngestDatasetUseCase(source, &embedderFake{err: errors.New("ollama down")}, indexer, "c", 1, nil)

	if _, err := uc.IngestDataset(context.Background(), "x"); !domain.IsKind(err, domain.ErrCollaborator) {
		t.Fatalf("expected collaborator error, got %v", err)
	}
	if indexer.docs != nil {
		t.Fatalf("expected no upsert after embed failure")
	}
}

func TestIngestDatasetEmptyDataset(t *testing.T) {
	uc := NewIngestDatasetUseCase(&documentSourceFake{}, &embedderFake{}, &indexerFake{}, "c", 1, nil)
	if _, err := uc.IngestDataset(context.Background(), "x"); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestIngestDatasetUpsertError(t *testing.T) {
	source := &documentSourceFake{docs: []domain.KnowledgeDocument{{ID: "a"}}}
	uc := NewIngestDatasetUseCase(source, &embedderFake{}, &indexerFake{upsertErr: errors.New("qdrant 500")}, "c", 1, nil)
	if _, err := uc.IngestDataset(context.Background(), "x"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestBuildEmbeddingText(t *testing.T) {
	text := BuildEmbeddingText(domain.KnowledgeDocument{
		ID:       "product_1",
		Type:     "product",
		Title:    "Green Tea Toner",
		Name:     "Green Tea Toner",
		Brand:    "Isntree",
		Category: "toner",
		SkinType: []string{"oily", "combination"},
		Concerns: []string{"pores"},
		AgeRange: "20-35",
		Text:     "Lightweight hydrating toner.",
	})

	want := "Green Tea Toner\nBrand: Isntree\nType: product\nCategory: toner\nSkin type: oily, combination\nConcerns: pores\nAge range: 20-35\n\nLightweight hydrating toner."
	if text != want {
		t.Fatalf("unexpected embedding text:\n%s", text)
	}
	if strings.Count(text, "Green Tea Toner") != 1 {
		t.Fatalf("expected duplicate name to be omitted")
	}
}
