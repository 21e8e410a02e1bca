package usecase

import (
	"sort"

	"github.com/kirillkom/skincare-rag/internal/core/domain"
)

const (
	defaultRerankDelta       = 0.08
	defaultRerankMaxSameType = 3
)

// TypeAwareRerank applies soft type diversity to a candidate pool. The pool is
// ordered by score descending (DocID ascending on ties) and filled greedily.
// When the best remaining candidate's type already holds maxSameType slots, the
// first unused candidate of another type scoring at least
// bestScore*(1-relativeDelta) takes the slot instead; without one, the best
// candidate is kept. Candidates with a blank DocID never occupy a slot.
func TypeAwareRerank(candidates []domain.Candidate, topK int, relativeDelta float64, maxSameType int) []domain.Candidate {
	if len(candidates) == 0 || topK <= 0 {
		return []domain.Candidate{}
	}

	pool := make([]domain.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Key() == "" {
			continue
		}
		pool = append(pool, c)
	}
	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].Score != pool[j].Score {
			return pool[i].Score > pool[j].Score
		}
		return pool[i].Key() < pool[j].Key()
	})

	out := make([]domain.Candidate, 0, topK)
	used := make(map[string]struct{}, topK)
	typeCounts := make(map[string]int)

	for len(out) < topK {
		bestIdx := firstUnused(pool, used)
		if bestIdx < 0 {
			break
		}
		best := pool[bestIdx]
		bestType := rerankType(best)

		chosen := best
		if typeCounts[bestType] >= maxSameType {
			if alt, ok := alternativeWithinDelta(pool, used, bestType, best.Score, relativeDelta); ok {
				chosen = alt
			}
		}

		used[chosen.Key()] = struct{}{}
		out = append(out, chosen)
		typeCounts[rerankType(chosen)]++
	}
	return out
}

func firstUnused(pool []domain.Candidate, used map[string]struct{}) int {
	for i, c := range pool {
		if _, ok := used[c.Key()]; !ok {
			return i
		}
	}
	return -1
}

func alternativeWithinDelta(
	pool []domain.Candidate,
	used map[string]struct{},
	excludedType string,
	bestScore float64,
	relativeDelta float64,
) (domain.Candidate, bool) {
	floor := bestScore * (1.0 - relativeDelta)
	for _, c := range pool {
		if _, ok := used[c.Key()]; ok {
			continue
		}
		if rerankType(c) == excludedType {
			continue
		}
		if c.Score >= floor {
			return c, true
		}
		// pool is sorted descending, nothing further can clear the floor
		break
	}
	return domain.Candidate{}, false
}

func rerankType(c domain.Candidate) string {
	if t := c.NormalizedType(); t != "" {
		return t
	}
	return domain.TypeUnknown
}
