// Package executor answers free-text queries: it builds an idf-weighted query
// vector, ranks every stored document vector by cosine similarity and
// attaches document content to the best matches.
package executor

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/indexer/weighting"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/tracing"
)

// DefaultMaxResults caps the number of results of one query.
const DefaultMaxResults = 10

type Result struct {
	DocID   int64   `json:"docId"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type Executor struct {
	store      corpus.Store
	scheme     weighting.Scheme
	maxResults int
	logger     *slog.Logger
}

func New(store corpus.Store, scheme weighting.Scheme, maxResults int) *Executor {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return &Executor{
		store:      store,
		scheme:     scheme,
		maxResults: maxResults,
		logger:     slog.Default().With("component", "query-executor"),
	}
}

// MaxResults returns the upper bound applied to every query.
func (e *Executor) MaxResults() int {
	return e.maxResults
}

// Execute runs plan against one consistent snapshot of the corpus. limit is
// clamped to [1, MaxResults]. The result is never nil.
func (e *Executor) Execute(ctx context.Context, plan *parser.QueryPlan, limit int) ([]Result, error) {
	if plan.Blank() {
		return nil, apperrors.Validation("query is required")
	}
	if limit <= 0 || limit > e.maxResults {
		limit = e.maxResults
	}

	results := make([]Result, 0)
	var candidates int
	err := e.store.View(ctx, func(r corpus.Reader) error {
		n, err := r.CountDocuments(ctx)
		if err != nil {
			return err
		}
		if n == 0 || len(plan.Terms) == 0 {
			return nil
		}

		_, span := tracing.StartChildSpan(ctx, "query-vector")
		query, err := e.queryVector(ctx, r, plan.Terms, n)
		span.SetAttr("terms", len(plan.Terms))
		span.End()
		if err != nil {
			return err
		}

		_, span = tracing.StartChildSpan(ctx, "load-doc-vectors")
		docs, err := loadDocVectors(ctx, r)
		span.SetAttr("documents", len(docs))
		span.End()
		if err != nil {
			return err
		}
		candidates = len(docs)

		_, span = tracing.StartChildSpan(ctx, "rank")
		ranked := ranker.Rank(query, docs, limit)
		span.SetAttr("results", len(ranked))
		span.End()

		_, span = tracing.StartChildSpan(ctx, "fetch-content")
		defer span.End()
		for _, sd := range ranked {
			doc, ok, err := r.GetDocument(ctx, sd.DocID)
			if err != nil {
				return err
			}
			if !ok {
				e.logger.Warn("ranked document missing", "doc_id", sd.DocID)
				continue
			}
			results = append(results, Result{DocID: sd.DocID, Content: doc.Content, Score: sd.Score})
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Storage("executing search", err)
	}

	logger.FromContext(ctx).Info("query executed",
		"component", "query-executor",
		"query", plan.RawQuery,
		"terms", plan.Terms,
		"candidates", candidates,
		"results", len(results),
	)
	return results, nil
}

// queryVector weights each distinct query term by its idf alone. Terms the
// corpus has never seen get weight 0.
func (e *Executor) queryVector(ctx context.Context, r corpus.Reader, terms []string, n int64) (ranker.Vector, error) {
	query := make(ranker.Vector, len(terms))
	for _, term := range terms {
		t, ok, err := r.GetTerm(ctx, term)
		if err != nil {
			return nil, err
		}
		if !ok || t.DF <= 0 {
			query[term] = 0
			continue
		}
		w := e.scheme.IDF(n, t.DF)
		if !weighting.Valid(w) {
			w = 0
		}
		query[term] = w
	}
	return query, nil
}

func loadDocVectors(ctx context.Context, r corpus.Reader) (map[int64]ranker.Vector, error) {
	entries, err := r.ListVectors(ctx)
	if err != nil {
		return nil, err
	}
	docs := make(map[int64]ranker.Vector)
	for _, v := range entries {
		vec, ok := docs[v.DocID]
		if !ok {
			vec = make(ranker.Vector)
			docs[v.DocID] = vec
		}
		vec[v.Term] = v.TFIDF
	}
	return docs, nil
}
