// Package handler serves the search API: ranked free-text search, term
// inspection and the query cache controls.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/tracing"
)

type SearchExecutor interface {
	Execute(ctx context.Context, plan *parser.QueryPlan, limit int) ([]executor.Result, error)
}

// TermLookup resolves a single index term to its statistics and postings.
type TermLookup interface {
	LookupTerm(ctx context.Context, raw string) (indexer.TermInfo, error)
}

type Option func(*Handler)

// WithMetrics records query counts, latency and result sizes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithTracing logs a span tree for every search.
func WithTracing(enabled bool) Option {
	return func(h *Handler) { h.tracing = enabled }
}

type Handler struct {
	executor     SearchExecutor
	terms        TermLookup
	cache        *cache.QueryCache
	collector    *analytics.Collector
	metrics      *metrics.Metrics
	tracing      bool
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

// New builds the search handler. queryCache and collector may be nil.
func New(exec SearchExecutor, terms TermLookup, queryCache *cache.QueryCache, collector *analytics.Collector, cfg config.SearchConfig, opts ...Option) *Handler {
	h := &Handler{
		executor:     exec,
		terms:        terms,
		cache:        queryCache,
		collector:    collector,
		defaultLimit: cfg.DefaultLimit,
		maxResults:   cfg.MaxResults,
		logger:       slog.Default().With("component", "search-handler"),
	}
	if h.maxResults <= 0 {
		h.maxResults = executor.DefaultMaxResults
	}
	if h.defaultLimit <= 0 || h.defaultLimit > h.maxResults {
		h.defaultLimit = h.maxResults
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Search handles GET /api/search?query=...[&limit=n].
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("query")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'query' is required")
		return
	}

	limit := h.defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if parsed > h.maxResults {
			parsed = h.maxResults
		}
		limit = parsed
	}

	plan := parser.Parse(query)
	if plan.Blank() {
		h.writeError(w, http.StatusBadRequest, "query parameter 'query' is required")
		return
	}

	if h.tracing {
		var root *tracing.Span
		ctx, root = tracing.StartSpan(ctx, "search", middleware.GetRequestID(ctx))
		root.SetAttr("query", query)
		defer func() {
			root.End()
			root.Log()
		}()
	}

	var (
		results  []executor.Result
		err      error
		cacheHit bool
	)
	cacheStatus := "disabled"
	switch {
	case len(plan.Terms) == 0:
		results = []executor.Result{}
	case h.cache != nil:
		results, cacheHit, err = h.cache.GetOrCompute(ctx, plan, limit, func() ([]executor.Result, error) {
			return h.executor.Execute(ctx, plan, limit)
		})
		cacheStatus = "miss"
		if cacheHit {
			cacheStatus = "hit"
		}
	default:
		results, err = h.executor.Execute(ctx, plan, limit)
	}

	latency := time.Since(start)
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		log.Error("search execution failed", "query", query, "error", err, "status_code", status)
		h.observe("error", cacheStatus, latency, -1)
		h.writeError(w, status, apperrors.PublicMessage(err))
		return
	}

	resultType := "hit"
	if len(results) == 0 {
		resultType = "zero_result"
	}
	h.observe(resultType, cacheStatus, latency, len(results))

	var topScore float64
	if len(results) > 0 {
		topScore = results[0].Score
	}
	log.Info("search completed",
		"query", query,
		"terms", len(plan.Terms),
		"returned", len(results),
		"top_score", topScore,
		"cache_hit", cacheHit,
		"latency_ms", latency.Milliseconds(),
	)
	h.collector.TrackSearch(analytics.SearchEvent{
		Query:     query,
		Terms:     plan.Terms,
		Returned:  len(results),
		TopScore:  topScore,
		LatencyMs: latency.Milliseconds(),
		CacheHit:  cacheHit,
		Timestamp: time.Now().UTC(),
		RequestID: middleware.GetRequestID(ctx),
	})

	h.writeJSON(w, http.StatusOK, results)
}

func (h *Handler) observe(resultType, cacheStatus string, latency time.Duration, returned int) {
	if h.metrics == nil {
		return
	}
	h.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	h.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(latency.Seconds())
	if returned >= 0 {
		h.metrics.SearchResultsCount.Observe(float64(returned))
	}
}

// Term handles GET /api/terms/{term}.
func (h *Handler) Term(w http.ResponseWriter, r *http.Request) {
	info, err := h.terms.LookupTerm(r.Context(), r.PathValue("term"))
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		if status >= http.StatusInternalServerError {
			logger.FromContext(r.Context()).Error("term lookup failed", "error", err)
		}
		h.writeError(w, status, apperrors.PublicMessage(err))
		return
	}
	h.writeJSON(w, http.StatusOK, info)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	stats := h.cache.Stats()
	total := stats.Hits + stats.Misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":       stats.Hits,
		"misses":     stats.Misses,
		"errors":     stats.Errors,
		"total":      total,
		"hit_rate":   strconv.FormatFloat(hitRate, 'f', 1, 64) + "%",
		"generation": stats.Generation,
		"breaker":    stats.Breaker,
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	deleted, err := h.cache.Purge(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
