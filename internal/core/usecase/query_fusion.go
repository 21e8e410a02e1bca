package usecase

import (
	"sort"

	"github.com/kirillkom/skincare-rag/internal/core/domain"
)

const (
	defaultRRFK          = 60
	defaultDenseWeight   = 1.0
	defaultLexicalWeight = 1.25
)

type fusedCandidate struct {
	first domain.Candidate
	score float64
}

// FuseRRF merges two ranked lists with weighted Reciprocal Rank Fusion.
// Every input position consumes a rank slot, including malformed candidates with
// a blank DocID, which contribute no score. The first-seen payload of a DocID
// wins; later duplicates only add score. Output is ordered by fused score
// descending, ties broken by DocID ascending.
func FuseRRF(a, b []domain.Candidate, rrfK int, weightA, weightB float64) []domain.Candidate {
	if rrfK <= 0 {
		rrfK = defaultRRFK
	}

	acc := make(map[string]*fusedCandidate, len(a)+len(b))
	addList := func(list []domain.Candidate, weight float64) {
		for i, c := range list {
			rank := i + 1
			key := c.Key()
			if key == "" {
				continue
			}
			entry, ok := acc[key]
			if !ok {
				entry = &fusedCandidate{first: c}
				acc[key] = entry
			}
			entry.score += weight * (1.0 / float64(rrfK+rank))
		}
	}

	addList(a, weightA)
	addList(b, weightB)

	out := make([]domain.Candidate, 0, len(acc))
	for key, entry := range acc {
		fused := entry.first
		fused.DocID = key
		fused.Score = entry.score
		out = append(out, fused)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].DocID < out[j].DocID
	})
	return out
}
