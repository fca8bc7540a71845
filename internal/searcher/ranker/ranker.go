// Package ranker scores documents against a query by cosine similarity of
// their TF-IDF weight vectors.
package ranker

import (
	"math"
	"slices"
)

// Vector maps a term to its weight.
type Vector map[string]float64

// Terms returns the terms of v in ascending order. Sums are taken in this
// order so equal vectors always produce bit-identical scores.
func (v Vector) Terms() []string {
	terms := make([]string, 0, len(v))
	for term := range v {
		terms = append(terms, term)
	}
	slices.Sort(terms)
	return terms
}

// Norm returns the Euclidean length of v.
func (v Vector) Norm() float64 {
	var sum float64
	for _, term := range v.Terms() {
		w := v[term]
		sum += w * w
	}
	return math.Sqrt(sum)
}

// Cosine returns dot(a, b) / (|a| * |b|), or 0 when either vector has zero
// length or the two share no terms.
func Cosine(a, b Vector) float64 {
	if len(b) < len(a) {
		a, b = b, a
	}
	var dot float64
	shared := false
	for _, term := range a.Terms() {
		if wb, ok := b[term]; ok {
			dot += a[term] * wb
			shared = true
		}
	}
	if !shared {
		return 0
	}
	na, nb := a.Norm(), b.Norm()
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (na * nb)
}

type ScoredDoc struct {
	DocID int64   `json:"docId"`
	Score float64 `json:"score"`
}

// Rank scores every document vector against query and returns at most limit
// documents with a strictly positive score, best first. Equal scores are
// ordered by ascending document id. limit <= 0 means no limit.
func Rank(query Vector, docs map[int64]Vector, limit int) []ScoredDoc {
	if query.Norm() == 0 {
		return []ScoredDoc{}
	}
	if limit <= 0 {
		limit = len(docs)
	}
	best := newTopK(limit)
	for docID, vec := range docs {
		score := Cosine(query, vec)
		if score > 0 && !math.IsNaN(score) {
			best.Push(ScoredDoc{DocID: docID, Score: score})
		}
	}
	return best.Sorted()
}
