package usecase

import (
	"context"
	"sync"

	"github.com/kirillkom/skincare-rag/internal/core/domain"
	"github.com/kirillkom/skincare-rag/internal/core/ports"
)

type generatorCall struct {
	system string
	user   string
}

type generatorFake struct {
	mu      sync.Mutex
	calls   []generatorCall
	respond func(system, user string) (string, error)
}

func (f *generatorFake) Generate(_ context.Context, system, user string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, generatorCall{system: system, user: user})
	f.mu.Unlock()
	if f.respond == nil {
		return "", nil
	}
	return f.respond(system, user)
}

func (f *generatorFake) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *generatorFake) callsWithSystem(system string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.system == system {
			n++
		}
	}
	return n
}

type embedderFake struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (f *embedderFake) Embed(_ context.Context, text string) ([]float64, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return []float64{0.1, 0.2, 0.3}, nil
}

func (f *embedderFake) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.texts)
}

type searchCall struct {
	collection string
	topK       int
}

// vectorFake answers each Search with the next queued response; once the
// queue is drained it keeps returning the last one.
type vectorFake struct {
	mu        sync.Mutex
	calls     []searchCall
	responses [][]domain.Candidate
	err       error
}

func (f *vectorFake) Search(_ context.Context, collection string, _ []float64, topK int) ([]domain.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, searchCall{collection: collection, topK: topK})
	if f.err != nil {
		return nil, f.err
	}
	if len(f.responses) == 0 {
		return nil, nil
	}
	idx := len(f.calls) - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return cloneCandidates(f.responses[idx]), nil
}

func (f *vectorFake) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type lexicalFake struct {
	mu      sync.Mutex
	queries []string
	topN    int
	hits    []domain.Candidate
	err     error
}

func (f *lexicalFake) Search(_ context.Context, query string, topN int) ([]domain.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	f.topN = topN
	if f.err != nil {
		return nil, f.err
	}
	return cloneCandidates(f.hits), nil
}

type lexicalBuilderFake struct {
	mu     sync.Mutex
	builds int
	index  *lexicalFake
	err    error
}

func (f *lexicalBuilderFake) Build(context.Context) (ports.LexicalSearcher, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builds++
	if f.err != nil {
		return nil, f.err
	}
	if f.index == nil {
		return &lexicalFake{}, nil
	}
	return f.index, nil
}

func cloneCandidates(in []domain.Candidate) []domain.Candidate {
	out := make([]domain.Candidate, len(in))
	copy(out, in)
	return out
}
