package usecase

import (
	"strings"

	"github.com/kirillkom/skincare-rag/internal/core/domain"
)

const (
	routineDocPrefix = "routine_"
	productDocPrefix = "product_"
)

func idSet(ids []string) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out[id] = struct{}{}
		}
	}
	return out
}

func hitAtK(retrieved []string, relevant map[string]struct{}, k int) bool {
	if len(relevant) == 0 {
		return false
	}
	for i := 0; i < k && i < len(retrieved); i++ {
		if _, ok := relevant[retrieved[i]]; ok {
			return true
		}
	}
	return false
}

func recallAtK(retrieved []string, relevant map[string]struct{}, k int) float64 {
	if len(relevant) == 0 {
		return 0
	}
	found := make(map[string]struct{}, len(relevant))
	for i := 0; i < k && i < len(retrieved); i++ {
		if _, ok := relevant[retrieved[i]]; ok {
			found[retrieved[i]] = struct{}{}
		}
	}
	return float64(len(found)) / float64(len(relevant))
}

func hasIDWithPrefix(ids map[string]struct{}, prefix string) bool {
	for id := range ids {
		if strings.HasPrefix(id, prefix) {
			return true
		}
	}
	return false
}

// scoreQuestion derives per-question metrics from the final ranking.
func scoreQuestion(q domain.EvalQuestion, denseText string, retrieved []domain.Candidate) domain.QuestionResult {
	ids := domain.DocIDs(retrieved)
	relevant := idSet(q.RelevantDocIDs)
	mss := idSet(q.MSSDocIDs)

	result := domain.QuestionResult{
		ID:                 q.ID,
		Query:              q.Query,
		DenseRetrievalText: denseText,
		RelevantDocIDs:     q.RelevantDocIDs,
		MSSDocIDs:          q.MSSDocIDs,
		RetrievedDocIDs:    ids,
		HitAt3:             hitAtK(ids, relevant, 3),
		HitAt5:             hitAtK(ids, relevant, 5),
		RecallAt3:          recallAtK(ids, relevant, 3),
		RecallAt5:          recallAtK(ids, relevant, 5),
		MSSRecallAt3:       recallAtK(ids, mss, 3),
	}
	if hasIDWithPrefix(relevant, routineDocPrefix) {
		result.RulePresenceAt3 = domain.HasTypeInTop(retrieved, 3, domain.TypeRoutine)
	}
	if hasIDWithPrefix(relevant, productDocPrefix) {
		result.ProductPresenceAt3 = domain.HasTypeInTop(retrieved, 3, domain.TypeProduct)
	}
	return result
}

type metricAccumulator struct {
	total        int
	hit3, hit5   int
	recall3      float64
	recall5      float64
	ruleCount    int
	ruleHits     int
	productCount int
	productHits  int
	mssCount     int
	mssRecallSum float64
}

func (a *metricAccumulator) add(q domain.EvalQuestion, r domain.QuestionResult) {
	a.total++
	if r.HitAt3 {
		a.hit3++
	}
	if r.HitAt5 {
		a.hit5++
	}
	a.recall3 += r.RecallAt3
	a.recall5 += r.RecallAt5

	relevant := idSet(q.RelevantDocIDs)
	if hasIDWithPrefix(relevant, routineDocPrefix) {
		a.ruleCount++
		if r.RulePresenceAt3 {
			a.ruleHits++
		}
	}
	if hasIDWithPrefix(relevant, productDocPrefix) {
		a.productCount++
		if r.ProductPresenceAt3 {
			a.productHits++
		}
	}
	if len(idSet(q.MSSDocIDs)) > 0 {
		a.mssCount++
		a.mssRecallSum += r.MSSRecallAt3
	}
}

func ratio(num float64, den int) float64 {
	if den == 0 {
		return 0
	}
	return num / float64(den)
}

func (a *metricAccumulator) fill(report *domain.EvaluationReport) {
	report.TotalQuestions = a.total
	report.HitAt3 = ratio(float64(a.hit3), a.total)
	report.HitAt5 = ratio(float64(a.hit5), a.total)
	report.RecallAt3 = ratio(a.recall3, a.total)
	report.RecallAt5 = ratio(a.recall5, a.total)
	report.RuleQuestionsCount = a.ruleCount
	report.RulePresenceAt3 = ratio(float64(a.ruleHits), a.ruleCount)
	report.ProductQuestionsCount = a.productCount
	report.ProductPresenceAt3 = ratio(float64(a.productHits), a.productCount)
	report.MSSQuestionsCount = a.mssCount
	report.MSSRecallAt3 = ratio(a.mssRecallSum, a.mssCount)
}
