package bm25

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/kirillkom/skincare-rag/internal/core/domain"
)

const (
	bm25K1 = 1.2
	bm25B  = 0.75

	// SourceName marks candidates produced by the lexical index.
	SourceName = "bm25"
)

type fieldName int

const (
	fieldTitle fieldName = iota
	fieldIngredients
	fieldText
	fieldAbout
	fieldHowToUse
	fieldAll
	fieldCount
)

var fieldBoosts = [fieldCount]float64{
	fieldTitle:       3.0,
	fieldIngredients: 2.5,
	fieldText:        1.5,
	fieldAbout:       1.2,
	fieldHowToUse:    1.2,
	fieldAll:         1.0,
}

type fieldStats struct {
	docCount    int
	totalLength int
	docFreq     map[string]int
}

func (s fieldStats) avgLength() float64 {
	if s.docCount == 0 {
		return 0
	}
	return float64(s.totalLength) / float64(s.docCount)
}

type indexedDoc struct {
	id     string
	typ    string
	title  string
	terms  [fieldCount]map[string]int
	length [fieldCount]int
}

// Index is an immutable in-memory BM25 index. It is safe for concurrent
// searches once built.
type Index struct {
	docs  []indexedDoc
	stats [fieldCount]fieldStats
}

// NewIndex indexes docs; documents with a blank id are skipped.
func NewIndex(docs []domain.KnowledgeDocument) *Index {
	idx := &Index{docs: make([]indexedDoc, 0, len(docs))}
	for f := range idx.stats {
		idx.stats[f].docFreq = make(map[string]int)
	}

	for _, doc := range docs {
		id := strings.TrimSpace(doc.ID)
		if id == "" {
			continue
		}
		title := strings.TrimSpace(doc.DisplayTitle())
		typ := strings.TrimSpace(doc.Type)
		if typ == "" {
			typ = domain.TypeUnknown
		}

		var fields [fieldCount]string
		fields[fieldTitle] = title
		fields[fieldIngredients] = doc.Ingredients
		fields[fieldText] = doc.Text
		fields[fieldAbout] = doc.About
		fields[fieldHowToUse] = doc.HowToUse
		fields[fieldAll] = joinNonBlank(title, doc.Type, doc.About, doc.Text, doc.Ingredients, doc.HowToUse)

		entry := indexedDoc{id: id, typ: typ, title: title}
		for f := fieldName(0); f < fieldCount; f++ {
			tokens := tokenize(fields[f])
			if len(tokens) == 0 {
				continue
			}
			tf := make(map[string]int, len(tokens))
			for _, token := range tokens {
				tf[token]++
			}
			entry.terms[f] = tf
			entry.length[f] = len(tokens)

			stats := &idx.stats[f]
			stats.docCount++
			stats.totalLength += len(tokens)
			for term := range tf {
				stats.docFreq[term]++
			}
		}
		idx.docs = append(idx.docs, entry)
	}
	return idx
}

// Len returns the number of indexed documents.
func (idx *Index) Len() int {
	return len(idx.docs)
}

// Search scores every document against the query over all boosted fields and
// returns at most topN hits ordered by score desc, then doc id asc.
func (idx *Index) Search(ctx context.Context, query string, topN int) ([]domain.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topN <= 0 {
		return []domain.Candidate{}, nil
	}
	queryTerms := make(map[string]int)
	for _, token := range tokenize(strings.TrimSpace(query)) {
		queryTerms[token]++
	}
	if len(queryTerms) == 0 {
		return []domain.Candidate{}, nil
	}

	type scored struct {
		doc   *indexedDoc
		score float64
	}
	hits := make([]scored, 0, 32)
	for i := range idx.docs {
		doc := &idx.docs[i]
		score := 0.0
		for term, qtf := range queryTerms {
			score += float64(qtf) * idx.termScore(doc, term)
		}
		if score > 0 {
			hits = append(hits, scored{doc: doc, score: score})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].doc.id < hits[j].doc.id
	})
	if len(hits) > topN {
		hits = hits[:topN]
	}

	out := make([]domain.Candidate, 0, len(hits))
	for _, h := range hits {
		out = append(out, domain.Candidate{
			DocID: h.doc.id,
			Score: h.score,
			Type:  h.doc.typ,
			Payload: domain.Payload{
				Title:  h.doc.title,
				Source: SourceName,
			},
		})
	}
	return out, nil
}

func (idx *Index) termScore(doc *indexedDoc, term string) float64 {
	total := 0.0
	for f := fieldName(0); f < fieldCount; f++ {
		tf := doc.terms[f][term]
		if tf == 0 {
			continue
		}
		stats := idx.stats[f]
		idf := inverseDocFrequency(stats.docCount, stats.docFreq[term])
		norm := 1 - bm25B + bm25B*float64(doc.length[f])/stats.avgLength()
		freq := float64(tf)
		total += fieldBoosts[f] * idf * freq * (bm25K1 + 1) / (freq + bm25K1*norm)
	}
	return total
}

func inverseDocFrequency(docCount, docFreq int) float64 {
	n := float64(docFreq)
	return math.Log(1 + (float64(docCount)-n+0.5)/(n+0.5))
}

func joinNonBlank(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			kept = append(kept, t)
		}
	}
	return strings.Join(kept, "\n")
}
