package index

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/indexer/tokenizer"
)

// BuildPostings groups a document's tokens by term. Each posting carries the
// term's occurrence count and its positions in ascending order. The result is
// sorted by term so writes happen in a stable order.
func BuildPostings(docID int64, tokens []tokenizer.Token) []corpus.Posting {
	termData := make(map[string]*corpus.Posting)
	for _, token := range tokens {
		p, exists := termData[token.Term]
		if !exists {
			p = &corpus.Posting{
				Term:      token.Term,
				DocID:     docID,
				Positions: make([]int, 0, 4),
			}
			termData[token.Term] = p
		}
		p.TF++
		p.Positions = append(p.Positions, token.Position)
	}

	postings := make([]corpus.Posting, 0, len(termData))
	for _, p := range termData {
		postings = append(postings, *p)
	}
	sort.Slice(postings, func(i, j int) bool {
		return postings[i].Term < postings[j].Term
	})
	return postings
}

// Stats summarizes what a document contributed to the index.
type Stats struct {
	Tokens        int
	DistinctTerms int
}

// Summarize counts tokens and distinct terms across postings.
func Summarize(postings []corpus.Posting) Stats {
	s := Stats{DistinctTerms: len(postings)}
	for _, p := range postings {
		s.Tokens += p.TF
	}
	return s
}
