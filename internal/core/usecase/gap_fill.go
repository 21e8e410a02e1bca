package usecase

import (
	"context"
	"log/slog"
	"strings"

	"github.com/kirillkom/skincare-rag/internal/core/domain"
	"github.com/kirillkom/skincare-rag/internal/core/ports"
)

const (
	stepBackSearchSize = 5
	maxStepBackPatches = 2
)

var ruleQuestionKeywords = []string{
	"how often", "frequency", "order", "routine", "steps", "combine",
	"together", "avoid", "safe", "should i", "can i",
}

var activesQuestionKeywords = []string{
	"retinol", "retinal", "retinoid", "vitamin c", "aha", "bha", "pha",
	"niacinamide", "tranexamic", "peptides", "acid", "exfol", "peel",
}

func containsAny(text string, keywords []string) bool {
	s := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// looksLikeRuleQuestion detects ordering, frequency and compatibility questions.
func looksLikeRuleQuestion(question string) bool {
	return containsAny(question, ruleQuestionKeywords)
}

// looksLikeActivesQuestion detects questions naming an active ingredient.
func looksLikeActivesQuestion(question string) bool {
	return containsAny(question, activesQuestionKeywords)
}

// StepBackGapFiller patches rankings that lack routine or ingredient documents
// for questions that structurally need them. Existing entries keep their order;
// at most two patch documents are appended.
type StepBackGapFiller struct {
	generator  ports.TextGenerator
	embedder   ports.Embedder
	vectorDB   ports.VectorSearcher
	collection string
	logger     *slog.Logger
}

func NewStepBackGapFiller(
	generator ports.TextGenerator,
	embedder ports.Embedder,
	vectorDB ports.VectorSearcher,
	collection string,
	logger *slog.Logger,
) *StepBackGapFiller {
	if logger == nil {
		logger = slog.Default()
	}
	return &StepBackGapFiller{
		generator:  generator,
		embedder:   embedder,
		vectorDB:   vectorDB,
		collection: collection,
		logger:     logger,
	}
}

// Fill returns current unchanged, without collaborator calls, when the
// question needs no missing category.
func (f *StepBackGapFiller) Fill(ctx context.Context, question string, current []domain.Candidate, topK int) ([]domain.Candidate, error) {
	hasRoutine := domain.HasTypeInTop(current, topK, domain.TypeRoutine)
	hasIngredient := domain.HasTypeInTop(current, topK, domain.TypeIngredient)

	needRoutine := looksLikeRuleQuestion(question) && !hasRoutine
	needIngredient := looksLikeActivesQuestion(question) && !hasIngredient
	if !needRoutine && !needIngredient {
		return current, nil
	}

	note, err := f.generator.Generate(ctx, stepBackSystemPrompt, buildStepBackUserPrompt(question))
	if err != nil {
		return nil, domain.WrapError(domain.ErrCollaborator, "generate step-back note", err)
	}
	note = strings.TrimSpace(note)
	if note == "" {
		f.logger.Warn("stepback_note_empty", "need_routine", needRoutine, "need_ingredient", needIngredient)
		return current, nil
	}

	vector, err := f.embedder.Embed(ctx, note)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCollaborator, "embed step-back note", err)
	}
	hits, err := f.vectorDB.Search(ctx, f.collection, vector, stepBackSearchSize)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCollaborator, "search step-back candidates", err)
	}

	patches := make([]domain.Candidate, 0, len(hits))
	for _, hit := range hits {
		switch {
		case needRoutine && hit.HasType(domain.TypeRoutine):
			patches = append(patches, hit)
		case needIngredient && hit.HasType(domain.TypeIngredient):
			patches = append(patches, hit)
		}
	}

	merged, added := mergePatches(current, patches, maxStepBackPatches)
	f.logger.Info("stepback_fill_applied",
		"need_routine", needRoutine,
		"need_ingredient", needIngredient,
		"patch_candidates", len(patches),
		"added", added,
	)
	return domain.Truncate(merged, topK), nil
}

// mergePatches keeps the spine order, dropping blank and repeated ids, and
// appends up to maxAdd patches whose id is not in the spine yet.
func mergePatches(spine, patches []domain.Candidate, maxAdd int) ([]domain.Candidate, int) {
	seen := make(map[string]struct{}, len(spine)+maxAdd)
	out := make([]domain.Candidate, 0, len(spine)+maxAdd)
	for _, c := range spine {
		id := c.Key()
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, c)
	}

	added := 0
	for _, p := range patches {
		if added >= maxAdd {
			break
		}
		id := p.Key()
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, p)
		added++
	}
	return out, added
}
