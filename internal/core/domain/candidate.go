package domain

import "strings"

// Well-known document types of the knowledge base.
const (
	TypeProduct    = "product"
	TypeRoutine    = "routine"
	TypeIngredient = "ingredient"
	TypeRule       = "rule"
	TypeUnknown    = "unknown"
)

// Payload carries the display fields of a retrieved document. Keys that are not
// modelled explicitly are kept in Extra and only passed through.
type Payload struct {
	Title    string         `json:"title,omitempty"`
	Name     string         `json:"name,omitempty"`
	Brand    string         `json:"brand,omitempty"`
	Category string         `json:"category,omitempty"`
	Text     string         `json:"text,omitempty"`
	SkinType []string       `json:"skin_type,omitempty"`
	Concerns []string       `json:"concerns,omitempty"`
	AgeRange string         `json:"age_range,omitempty"`
	Source   string         `json:"source,omitempty"`
	Extra    map[string]any `json:"extra,omitempty"`
}

// Candidate is a single ranked retrieval hit. DocID is the stable key across
// dense and lexical sources; a blank DocID marks a malformed candidate.
type Candidate struct {
	DocID   string  `json:"doc_id"`
	Score   float64 `json:"score"`
	Type    string  `json:"type"`
	Payload Payload `json:"payload"`
}

// Key returns the trimmed document id used for deduplication.
func (c Candidate) Key() string {
	return strings.TrimSpace(c.DocID)
}

// NormalizedType returns the lower-cased type, or "" when absent.
func (c Candidate) NormalizedType() string {
	return strings.ToLower(strings.TrimSpace(c.Type))
}

// HasType reports whether the candidate type equals want, ignoring case.
func (c Candidate) HasType(want string) bool {
	return c.NormalizedType() == strings.ToLower(want)
}

// HasTypeInTop reports whether any of the first k candidates has the given type.
func HasTypeInTop(candidates []Candidate, k int, want string) bool {
	limit := k
	if limit > len(candidates) {
		limit = len(candidates)
	}
	for i := 0; i < limit; i++ {
		if candidates[i].HasType(want) {
			return true
		}
	}
	return false
}

// DocIDs returns the non-blank ids of candidates in rank order.
func DocIDs(candidates []Candidate) []string {
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if id := c.Key(); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// Truncate returns at most limit leading candidates. A non-positive limit
// leaves the list untouched.
func Truncate(candidates []Candidate, limit int) []Candidate {
	if limit <= 0 || len(candidates) <= limit {
		return candidates
	}
	return candidates[:limit]
}

// Answer is the user-facing RAG response.
type Answer struct {
	Text    string      `json:"answer"`
	Mode    ModeName    `json:"mode"`
	Sources []Candidate `json:"sources"`
}
