// Package parser turns a raw query string into the distinct index terms used
// to build the query vector.
package parser

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/indexer/tokenizer"
)

type QueryPlan struct {
	RawQuery string
	// Terms are distinct, in order of first occurrence.
	Terms []string
}

// Blank reports whether the raw query has no content at all. A query whose
// words are all filtered out is not blank; it simply matches nothing.
func (p *QueryPlan) Blank() bool {
	return strings.TrimSpace(p.RawQuery) == ""
}

func Parse(query string) *QueryPlan {
	plan := &QueryPlan{
		RawQuery: query,
		Terms:    make([]string, 0),
	}
	seen := make(map[string]struct{})
	for _, term := range tokenizer.Terms(query) {
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		plan.Terms = append(plan.Terms, term)
	}
	return plan
}
