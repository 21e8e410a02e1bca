package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/skincare-rag/internal/core/domain"
	"github.com/kirillkom/skincare-rag/internal/core/ports"
)

type questionSourceFake struct {
	path      string
	questions []domain.EvalQuestion
	err       error
}

func (f *questionSourceFake) LoadQuestions(_ context.Context, path string) ([]domain.EvalQuestion, error) {
	f.path = path
	if f.err != nil {
		return nil, f.err
	}
	return f.questions, nil
}

type reportStoreFake struct {
	mu      sync.Mutex
	reports []*domain.EvaluationReport
	err     error
}

func (f *reportStoreFake) SaveReport(_ context.Context, report *domain.EvaluationReport) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.reports = append(f.reports, report)
	return "memory://" + string(report.Mode), nil
}

func TestHitAndRecallAtK(t *testing.T) {
	relevant := idSet([]string{"doc_a", "doc_b"})
	retrieved := []string{"doc_x", "doc_a", "doc_c"}

	cases := []struct {
		name       string
		k          int
		wantHit    bool
		wantRecall float64
	}{
		{name: "k=3", k: 3, wantHit: true, wantRecall: 0.5},
		{name: "k=1", k: 1, wantHit: false, wantRecall: 0.0},
		{name: "k larger than list", k: 10, wantHit: true, wantRecall: 0.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.wantHit, hitAtK(retrieved, relevant, tc.k))
			assert.InDelta(t, tc.wantRecall, recallAtK(retrieved, relevant, tc.k), 1e-9)
		})
	}
}

func TestMetricsEmptyRelevant(t *testing.T) {
	empty := idSet(nil)
	assert.False(t, hitAtK([]string{"a", "b"}, empty, 3))
	assert.Zero(t, recallAtK([]string{"a", "b"}, empty, 3))
}

func TestRecallAtKBounded(t *testing.T) {
	relevant := idSet([]string{"a", "a", " b "})
	retrieved := []string{"a", "a", "b", "b"}
	got := recallAtK(retrieved, relevant, 4)
	assert.InDelta(t, 1.0, got, 1e-9)
	assert.GreaterOrEqual(t, got, 0.0)
	assert.LessOrEqual(t, got, 1.0)
}

func TestScoreQuestionPresenceMetrics(t *testing.T) {
	q := domain.EvalQuestion{
		ID:             "q1",
		Query:          "routine for dry skin",
		RelevantDocIDs: []string{"routine_dry", "product_cream"},
		MSSDocIDs:      []string{"routine_dry"},
	}
	retrieved := []domain.Candidate{
		candidate("product_cream", "product", 0.9),
		candidate("ingredient_ha", "ingredient", 0.8),
		candidate("other", "product", 0.7),
		candidate("routine_dry", "routine", 0.6),
	}

	r := scoreQuestion(q, "dense", retrieved)
	assert.True(t, r.HitAt3)
	assert.False(t, r.RulePresenceAt3)
	assert.True(t, r.ProductPresenceAt3)
	assert.InDelta(t, 0.5, r.RecallAt3, 1e-9)
	assert.InDelta(t, 1.0, r.RecallAt5, 1e-9)
	assert.Zero(t, r.MSSRecallAt3)
	assert.Equal(t, []string{"product_cream", "ingredient_ha", "other", "routine_dry"}, r.RetrievedDocIDs)
}

func newHarnessForTest(vec *vectorFake, gen *generatorFake, builder *lexicalBuilderFake, questions *questionSourceFake, store *reportStoreFake) *EvaluationHarness {
	retrieval := NewRetrievalUseCase(&embedderFake{}, vec, nil, gen, RetrievalOptions{}, nil)
	stores := []ports.ReportStore{}
	if store != nil {
		stores = append(stores, store)
	}
	return NewEvaluationHarness(retrieval, builder, questions, stores, EvaluationOptions{QuestionConcurrency: 2}, nil)
}

func TestEvaluateAggregatesMacroAverages(t *testing.T) {
	vec := &vectorFake{responses: [][]domain.Candidate{{
		candidate("product_a", "product", 0.9),
		candidate("routine_a", "routine", 0.8),
		candidate("ingredient_a", "ingredient", 0.7),
	}}}
	questions := []domain.EvalQuestion{
		{ID: "q1", Query: "best cream", RelevantDocIDs: []string{"product_a"}, MSSDocIDs: []string{"product_a"}},
		{ID: "q2", Query: "night steps", RelevantDocIDs: []string{"routine_a", "routine_b"}},
		{ID: "q3", Query: "unknown", RelevantDocIDs: []string{"doc_missing"}},
	}
	h := newHarnessForTest(vec, &generatorFake{}, &lexicalBuilderFake{}, &questionSourceFake{}, nil)

	reports, err := h.Evaluate(context.Background(), []string{"baseline"}, questions)
	require.NoError(t, err)
	require.Contains(t, reports, domain.ModeBaseline)

	r := reports[domain.ModeBaseline]
	assert.Equal(t, 3, r.TotalQuestions)
	assert.InDelta(t, 2.0/3.0, r.HitAt3, 1e-9)
	assert.InDelta(t, (1.0+0.5+0.0)/3.0, r.RecallAt3, 1e-9)
	assert.Equal(t, 1, r.RuleQuestionsCount)
	assert.InDelta(t, 1.0, r.RulePresenceAt3, 1e-9)
	assert.Equal(t, 1, r.ProductQuestionsCount)
	assert.InDelta(t, 1.0, r.ProductPresenceAt3, 1e-9)
	assert.Equal(t, 1, r.MSSQuestionsCount)
	assert.InDelta(t, 1.0, r.MSSRecallAt3, 1e-9)
	require.Len(t, r.PerQuestion, 3)
	assert.Equal(t, "q1", r.PerQuestion[0].ID)
	assert.Equal(t, "q3", r.PerQuestion[2].ID)
	assert.Equal(t, "best cream", r.PerQuestion[0].DenseRetrievalText)
}

func TestEvaluateNoApplicableSubsetsYieldZero(t *testing.T) {
	vec := &vectorFake{responses: [][]domain.Candidate{{candidate("x", "product", 0.9)}}}
	questions := []domain.EvalQuestion{{ID: "q1", Query: "q", RelevantDocIDs: []string{"x"}}}
	h := newHarnessForTest(vec, &generatorFake{}, &lexicalBuilderFake{}, &questionSourceFake{}, nil)

	reports, err := h.Evaluate(context.Background(), []string{"baseline"}, questions)
	require.NoError(t, err)
	r := reports[domain.ModeBaseline]
	assert.Zero(t, r.RuleQuestionsCount)
	assert.Zero(t, r.RulePresenceAt3)
	assert.Zero(t, r.MSSRecallAt3)
}

func TestEvaluatePrefersPrecomputedDenseText(t *testing.T) {
	gen := &generatorFake{respond: rewriteResponder("fresh rewrite")}
	vec := &vectorFake{responses: [][]domain.Candidate{{candidate("p", "product", 0.9)}}}
	questions := []domain.EvalQuestion{
		{ID: "q1", Query: "first", RelevantDocIDs: []string{"p"}, DenseRetrievalText: "precomputed one"},
		{ID: "q2", Query: "second", RelevantDocIDs: []string{"p"}, RetrievalText: "precomputed two"},
		{ID: "q3", Query: "third", RelevantDocIDs: []string{"p"}},
	}
	h := newHarnessForTest(vec, gen, &lexicalBuilderFake{}, &questionSourceFake{}, nil)

	reports, err := h.Evaluate(context.Background(), []string{"hyde"}, questions)
	require.NoError(t, err)
	r := reports[domain.ModeHyDE]
	assert.Equal(t, "precomputed one", r.PerQuestion[0].DenseRetrievalText)
	assert.Equal(t, "precomputed two", r.PerQuestion[1].DenseRetrievalText)
	assert.Equal(t, "fresh rewrite", r.PerQuestion[2].DenseRetrievalText)
	assert.Equal(t, 1, gen.callsWithSystem(hydeSystemPrompt))
}

func TestEvaluateRawQueryForNonRewriteModes(t *testing.T) {
	gen := &generatorFake{respond: rewriteResponder("fresh rewrite")}
	vec := &vectorFake{responses: [][]domain.Candidate{{candidate("p", "product", 0.9)}}}
	questions := []domain.EvalQuestion{{ID: "q1", Query: "raw", DenseRetrievalText: "precomputed"}}
	builder := &lexicalBuilderFake{index: &lexicalFake{}}
	h := newHarnessForTest(vec, gen, builder, &questionSourceFake{}, nil)

	reports, err := h.Evaluate(context.Background(), []string{"hybrid"}, questions)
	require.NoError(t, err)
	assert.Equal(t, "raw", reports[domain.ModeHybrid].PerQuestion[0].DenseRetrievalText)
	assert.Zero(t, gen.callCount())
}

func TestEvaluateModeFailureIsIsolated(t *testing.T) {
	vec := &vectorFake{responses: [][]domain.Candidate{{candidate("p", "product", 0.9)}}}
	builder := &lexicalBuilderFake{err: errors.New("index build failed")}
	questions := []domain.EvalQuestion{{ID: "q1", Query: "q", RelevantDocIDs: []string{"p"}}}
	h := newHarnessForTest(vec, &generatorFake{}, builder, &questionSourceFake{}, nil)

	reports, err := h.Evaluate(context.Background(), []string{"baseline", "hybrid", "hyde"}, questions)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mode hybrid")
	assert.True(t, domain.IsKind(err, domain.ErrCollaborator))
	assert.Contains(t, reports, domain.ModeBaseline)
	assert.Contains(t, reports, domain.ModeHyDE)
	assert.NotContains(t, reports, domain.ModeHybrid)
}

func TestEvaluateBuildsLexicalIndexPerHybridMode(t *testing.T) {
	vec := &vectorFake{responses: [][]domain.Candidate{{candidate("p", "product", 0.9)}}}
	builder := &lexicalBuilderFake{index: &lexicalFake{hits: []domain.Candidate{candidate("l", "routine", 3)}}}
	questions := []domain.EvalQuestion{{ID: "q1", Query: "q", RelevantDocIDs: []string{"l"}}}
	h := newHarnessForTest(vec, &generatorFake{}, builder, &questionSourceFake{}, nil)

	reports, err := h.Evaluate(context.Background(), []string{"baseline", "hybrid", "hyde_hybrid", "HYBRID"}, questions)
	require.NoError(t, err)
	assert.Len(t, reports, 3)
	assert.Equal(t, 2, builder.builds)
	assert.True(t, reports[domain.ModeHybrid].PerQuestion[0].HitAt3)
}

func TestEvaluateQuestionErrorAbortsMode(t *testing.T) {
	vec := &vectorFake{err: errors.New("qdrant unavailable")}
	questions := []domain.EvalQuestion{{ID: "q1", Query: "q"}, {ID: "q2", Query: "q"}}
	h := newHarnessForTest(vec, &generatorFake{}, &lexicalBuilderFake{}, &questionSourceFake{}, nil)

	reports, err := h.Evaluate(context.Background(), []string{"baseline"}, questions)
	require.Error(t, err)
	assert.Empty(t, reports)
}

func TestRunRequestPersistsReports(t *testing.T) {
	vec := &vectorFake{responses: [][]domain.Candidate{{candidate("p", "product", 0.9)}}}
	source := &questionSourceFake{questions: []domain.EvalQuestion{{ID: "q1", Query: "q", RelevantDocIDs: []string{"p"}}}}
	store := &reportStoreFake{}
	h := newHarnessForTest(vec, &generatorFake{}, &lexicalBuilderFake{}, source, store)

	reports, err := h.RunRequest(context.Background(), domain.EvaluationRequest{
		RunID:           "run-1",
		Modes:           []string{"baseline", "hyde"},
		QuestionSetPath: "questions.jsonl",
	})
	require.NoError(t, err)
	assert.Equal(t, "questions.jsonl", source.path)
	assert.Len(t, reports, 2)
	require.Len(t, store.reports, 2)
	for _, r := range store.reports {
		assert.Equal(t, "run-1", r.RunID)
	}
}

func TestRunRequestSaveFailureDropsModeReport(t *testing.T) {
	vec := &vectorFake{responses: [][]domain.Candidate{{candidate("p", "product", 0.9)}}}
	source := &questionSourceFake{questions: []domain.EvalQuestion{{ID: "q1", Query: "q", RelevantDocIDs: []string{"p"}}}}
	store := &reportStoreFake{err: errors.New("disk full")}
	h := newHarnessForTest(vec, &generatorFake{}, &lexicalBuilderFake{}, source, store)

	reports, err := h.RunRequest(context.Background(), domain.EvaluationRequest{
		RunID: "run-2",
		Modes: []string{"baseline"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mode baseline")
	assert.Contains(t, err.Error(), "disk full")
	assert.Empty(t, reports)
}

func TestRunLoadsQuestionsAndAssignsRunID(t *testing.T) {
	vec := &vectorFake{responses: [][]domain.Candidate{{candidate("p", "product", 0.9)}}}
	source := &questionSourceFake{questions: []domain.EvalQuestion{{ID: "q1", Query: "q"}}}
	h := newHarnessForTest(vec, &generatorFake{}, &lexicalBuilderFake{}, source, nil)

	reports, err := h.Run(context.Background(), []string{"baseline"}, "set.jsonl")
	require.NoError(t, err)
	assert.NotEmpty(t, reports[domain.ModeBaseline].RunID)
}

func TestRunQuestionSourceError(t *testing.T) {
	source := &questionSourceFake{err: errors.New("missing file")}
	h := newHarnessForTest(&vectorFake{}, &generatorFake{}, &lexicalBuilderFake{}, source, nil)

	_, err := h.Run(context.Background(), nil, "missing.jsonl")
	require.Error(t, err)
}

func TestResolveModesDefaultsAndDeduplicates(t *testing.T) {
	assert.Len(t, resolveModes(nil), 6)

	modes := resolveModes([]string{"hyde", "HYDE", "nonsense", "baseline"})
	require.Len(t, modes, 2)
	assert.Equal(t, domain.ModeHyDE, modes[0].Name)
	assert.Equal(t, domain.ModeBaseline, modes[1].Name)
}
