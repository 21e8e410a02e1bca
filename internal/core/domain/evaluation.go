package domain

import (
	"strings"
	"time"
)

// EvalQuestion is one labeled record of the question set.
type EvalQuestion struct {
	ID             string   `json:"id"`
	Query          string   `json:"query"`
	RelevantDocIDs []string `json:"relevant_doc_ids"`
	MSSDocIDs      []string `json:"mss_doc_ids"`
	// Optional precomputed dense text; either key is accepted.
	DenseRetrievalText string `json:"denseRetrievalText,omitempty"`
	RetrievalText      string `json:"retrievalText,omitempty"`
}

// PrecomputedText returns the first non-blank precomputed dense text.
func (q EvalQuestion) PrecomputedText() string {
	for _, s := range []string{q.DenseRetrievalText, q.RetrievalText} {
		if t := strings.TrimSpace(s); t != "" {
			return t
		}
	}
	return ""
}

type QuestionResult struct {
	ID                 string   `json:"id"`
	Query              string   `json:"query"`
	DenseRetrievalText string   `json:"dense_retrieval_text"`
	RelevantDocIDs     []string `json:"relevant_doc_ids"`
	MSSDocIDs          []string `json:"mss_doc_ids"`
	RetrievedDocIDs    []string `json:"retrieved_doc_ids"`
	HitAt3             bool     `json:"hit_at_3"`
	HitAt5             bool     `json:"hit_at_5"`
	RecallAt3          float64  `json:"recall_at_3"`
	RecallAt5          float64  `json:"recall_at_5"`
	RulePresenceAt3    bool     `json:"rule_presence_at_3"`
	ProductPresenceAt3 bool     `json:"product_presence_at_3"`
	MSSRecallAt3       float64  `json:"mss_recall_at_3"`
}

// EvaluationReport holds macro-averaged metrics of one mode over a question set.
type EvaluationReport struct {
	RunID                 string           `json:"run_id,omitempty"`
	Mode                  ModeName         `json:"mode"`
	TotalQuestions        int              `json:"total_questions"`
	HitAt3                float64          `json:"hit_at_3"`
	HitAt5                float64          `json:"hit_at_5"`
	RecallAt3             float64          `json:"recall_at_3"`
	RecallAt5             float64          `json:"recall_at_5"`
	RulePresenceAt3       float64          `json:"rule_presence_at_3"`
	ProductPresenceAt3    float64          `json:"product_presence_at_3"`
	MSSRecallAt3          float64          `json:"mss_recall_at_3"`
	RuleQuestionsCount    int              `json:"rule_questions_count"`
	ProductQuestionsCount int              `json:"product_questions_count"`
	MSSQuestionsCount     int              `json:"mss_questions_count"`
	StartedAt             time.Time        `json:"started_at"`
	FinishedAt            time.Time        `json:"finished_at"`
	PerQuestion           []QuestionResult `json:"per_question"`
}

// EvaluationRequest asks a worker to evaluate modes against a question set.
type EvaluationRequest struct {
	RunID           string    `json:"run_id"`
	Modes           []string  `json:"modes"`
	QuestionSetPath string    `json:"question_set,omitempty"`
	RequestedAt     time.Time `json:"requested_at"`
}
