// Package indexer maintains term statistics and postings for ingested
// documents and keeps the TF-IDF document vectors in step with the corpus.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/indexer/weighting"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/resilience"
)

// RecomputeStats describes one full-corpus weighting pass.
type RecomputeStats struct {
	Documents int64         `json:"documents"`
	Terms     int           `json:"terms"`
	Vectors   int           `json:"vectors"`
	Dropped   int           `json:"dropped"`
	Duration  time.Duration `json:"duration"`
}

// IndexedDocument is passed to OnIndexed listeners after an ingestion commits.
type IndexedDocument struct {
	DocID     int64
	Index     index.Stats
	Recompute RecomputeStats
	Latency   time.Duration
}

// TermInfo is a term's statistics together with its postings list.
type TermInfo struct {
	corpus.Term
	Postings []corpus.Posting `json:"postings"`
}

// CorpusStats is a point-in-time size of the corpus.
type CorpusStats struct {
	Documents int64 `json:"documents"`
	Terms     int   `json:"terms"`
	Vectors   int   `json:"vectors"`
}

type Option func(*Engine)

// WithMetrics records ingestion and recompute metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides the clock used for document timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

type Engine struct {
	store   corpus.Store
	scheme  weighting.Scheme
	retry   resilience.RetryConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time

	listenersMu sync.RWMutex
	listeners   []func(context.Context, IndexedDocument)
}

func NewEngine(store corpus.Store, cfg config.IndexerConfig, opts ...Option) (*Engine, error) {
	scheme, err := weighting.ByName(cfg.Weighting)
	if err != nil {
		return nil, fmt.Errorf("configuring indexer: %w", err)
	}
	e := &Engine{
		store:  store,
		scheme: scheme,
		retry: resilience.RetryConfig{
			MaxAttempts:  cfg.MaxRetries,
			InitialDelay: cfg.RetryBackoff,
			ShouldRetry:  retryable,
		},
		logger: slog.Default().With("component", "indexer"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Scheme returns the weighting scheme used for documents and queries.
func (e *Engine) Scheme() weighting.Scheme {
	return e.scheme
}

// OnIndexed registers fn to run after every committed ingestion.
func (e *Engine) OnIndexed(fn func(context.Context, IndexedDocument)) {
	e.listenersMu.Lock()
	e.listeners = append(e.listeners, fn)
	e.listenersMu.Unlock()
}

// AddDocument stores content, updates term statistics and postings, and
// recomputes every document vector, all in one transaction. The transaction
// is retried as a whole on storage failure.
func (e *Engine) AddDocument(ctx context.Context, content string) (int64, error) {
	if strings.TrimSpace(content) == "" {
		return 0, apperrors.Validation("content is required")
	}
	start := time.Now()
	log := logger.FromContext(ctx).With("component", "indexer")

	var (
		docID   int64
		summary index.Stats
		stats   RecomputeStats
	)
	err := resilience.Retry(ctx, "add-document", e.retry, func() error {
		return e.store.Update(ctx, func(tx corpus.Tx) error {
			doc, err := tx.CreateDocument(ctx, content, e.now())
			if err != nil {
				return err
			}
			postings := index.BuildPostings(doc.ID, tokenizer.Tokenize(content))
			for _, p := range postings {
				if _, err := tx.UpsertTerm(ctx, p.Term, 1, int64(p.TF)); err != nil {
					return err
				}
				if err := tx.CreatePosting(ctx, p); err != nil {
					return err
				}
			}
			rs, err := e.recompute(ctx, tx)
			if err != nil {
				return err
			}
			docID, summary, stats = doc.ID, index.Summarize(postings), rs
			return nil
		})
	})
	if err != nil {
		if e.metrics != nil {
			e.metrics.IngestFailuresTotal.Inc()
		}
		log.Error("document ingestion rolled back", "error", err)
		return 0, wrapStorage("adding document", err)
	}

	e.observeRecompute(stats)
	if e.metrics != nil {
		e.metrics.DocsIndexedTotal.Inc()
	}
	indexed := IndexedDocument{
		DocID:     docID,
		Index:     summary,
		Recompute: stats,
		Latency:   time.Since(start),
	}
	log.Info("document indexed",
		"doc_id", docID,
		"tokens", summary.Tokens,
		"distinct_terms", summary.DistinctTerms,
		"corpus_documents", stats.Documents,
		"vectors", stats.Vectors,
		"latency_ms", indexed.Latency.Milliseconds(),
	)
	e.notify(ctx, indexed)
	return docID, nil
}

// Recompute rebuilds every document vector from the current term statistics
// and postings. It is idempotent and safe to rerun after a failure.
func (e *Engine) Recompute(ctx context.Context) (RecomputeStats, error) {
	var stats RecomputeStats
	err := resilience.Retry(ctx, "recompute", e.retry, func() error {
		return e.store.Update(ctx, func(tx corpus.Tx) error {
			rs, err := e.recompute(ctx, tx)
			stats = rs
			return err
		})
	})
	if err != nil {
		return RecomputeStats{}, wrapStorage("recomputing weights", err)
	}
	e.observeRecompute(stats)
	logger.FromContext(ctx).Info("recompute complete",
		"component", "indexer",
		"documents", stats.Documents,
		"terms", stats.Terms,
		"vectors", stats.Vectors,
		"dropped", stats.Dropped,
		"duration_ms", stats.Duration.Milliseconds(),
	)
	return stats, nil
}

// recompute is the full rescan: for every term, for every posting, upsert the
// weight when it is usable and delete any stored entry when it is not.
func (e *Engine) recompute(ctx context.Context, tx corpus.Tx) (RecomputeStats, error) {
	start := time.Now()
	n, err := tx.CountDocuments(ctx)
	if err != nil {
		return RecomputeStats{}, err
	}
	terms, err := tx.ListTerms(ctx)
	if err != nil {
		return RecomputeStats{}, err
	}
	stats := RecomputeStats{Documents: n, Terms: len(terms)}
	for _, term := range terms {
		postings, err := tx.ListPostings(ctx, term.Term)
		if err != nil {
			return RecomputeStats{}, err
		}
		for _, p := range postings {
			w := weighting.TFIDF(e.scheme, p.TF, n, term.DF)
			if !weighting.Valid(w) {
				e.logger.Warn("degenerate weight dropped",
					"doc_id", p.DocID,
					"term", term.Term,
					"tf", p.TF,
					"df", term.DF,
					"documents", n,
					"weight", w,
				)
				if err := tx.DeleteVector(ctx, p.DocID, term.Term); err != nil {
					return RecomputeStats{}, err
				}
				stats.Dropped++
				continue
			}
			if err := tx.UpsertVector(ctx, corpus.VectorEntry{DocID: p.DocID, Term: term.Term, TFIDF: w}); err != nil {
				return RecomputeStats{}, err
			}
			stats.Vectors++
		}
	}
	stats.Duration = time.Since(start)
	return stats, nil
}

// GetDocument returns the stored document with id.
func (e *Engine) GetDocument(ctx context.Context, id int64) (corpus.Document, error) {
	var (
		doc   corpus.Document
		found bool
	)
	err := e.store.View(ctx, func(r corpus.Reader) error {
		var err error
		doc, found, err = r.GetDocument(ctx, id)
		return err
	})
	if err != nil {
		return corpus.Document{}, wrapStorage("finding document", err)
	}
	if !found {
		return corpus.Document{}, apperrors.Newf(apperrors.ErrDocumentNotFound, http.StatusNotFound, "document %d not found", id)
	}
	return doc, nil
}

// LookupTerm returns the statistics and postings of a single index term.
// The argument is normalized the same way document text is.
func (e *Engine) LookupTerm(ctx context.Context, raw string) (TermInfo, error) {
	terms := tokenizer.Terms(raw)
	if len(terms) != 1 {
		return TermInfo{}, apperrors.Newf(apperrors.ErrTermNotFound, http.StatusNotFound, "%q is not an index term", raw)
	}
	var (
		info  TermInfo
		found bool
	)
	err := e.store.View(ctx, func(r corpus.Reader) error {
		t, ok, err := r.GetTerm(ctx, terms[0])
		if err != nil || !ok {
			return err
		}
		postings, err := r.ListPostings(ctx, t.Term)
		if err != nil {
			return err
		}
		info, found = TermInfo{Term: t, Postings: postings}, true
		return nil
	})
	if err != nil {
		return TermInfo{}, wrapStorage("looking up term", err)
	}
	if !found {
		return TermInfo{}, apperrors.Newf(apperrors.ErrTermNotFound, http.StatusNotFound, "term %q not found", terms[0])
	}
	return info, nil
}

// Stats reports the current corpus size.
func (e *Engine) Stats(ctx context.Context) (CorpusStats, error) {
	var stats CorpusStats
	err := e.store.View(ctx, func(r corpus.Reader) error {
		n, err := r.CountDocuments(ctx)
		if err != nil {
			return err
		}
		terms, err := r.ListTerms(ctx)
		if err != nil {
			return err
		}
		vectors, err := r.ListVectors(ctx)
		if err != nil {
			return err
		}
		stats = CorpusStats{Documents: n, Terms: len(terms), Vectors: len(vectors)}
		return nil
	})
	if err != nil {
		return CorpusStats{}, wrapStorage("reading corpus stats", err)
	}
	return stats, nil
}

func (e *Engine) observeRecompute(stats RecomputeStats) {
	if e.metrics == nil {
		return
	}
	e.metrics.RecomputeDuration.Observe(stats.Duration.Seconds())
	e.metrics.VectorsWritten.Set(float64(stats.Vectors))
	e.metrics.DegenerateWeightsTotal.Add(float64(stats.Dropped))
	e.metrics.CorpusDocuments.Set(float64(stats.Documents))
	e.metrics.VocabularySize.Set(float64(stats.Terms))
}

func (e *Engine) notify(ctx context.Context, doc IndexedDocument) {
	e.listenersMu.RLock()
	listeners := make([]func(context.Context, IndexedDocument), len(e.listeners))
	copy(listeners, e.listeners)
	e.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(ctx, doc)
	}
}

func retryable(err error) bool {
	return !errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded) &&
		!errors.Is(err, apperrors.ErrInvalidInput)
}

func wrapStorage(op string, err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.Storage(op, err)
}
