package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/store/memory"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
)

var searchConfig = config.SearchConfig{MaxResults: 10, DefaultLimit: 10}

func newCorpus(t *testing.T, docs ...string) (*indexer.Engine, *executor.Executor) {
	t.Helper()
	store := memory.New()
	engine, err := indexer.NewEngine(store, config.IndexerConfig{
		Weighting:    "log10",
		MaxRetries:   1,
		RetryBackoff: time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, d := range docs {
		if _, err := engine.AddDocument(context.Background(), d); err != nil {
			t.Fatalf("AddDocument(%q): %v", d, err)
		}
	}
	return engine, executor.New(store, engine.Scheme(), searchConfig.MaxResults)
}

func newMux(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/search", h.Search)
	mux.HandleFunc("GET /api/terms/{term}", h.Term)
	mux.HandleFunc("GET /api/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/cache/invalidate", h.CacheInvalidate)
	return mux
}

func get(mux http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decodeResults(t *testing.T, rec *httptest.ResponseRecorder) []executor.Result {
	t.Helper()
	var out []executor.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestSearchRanksDocuments(t *testing.T) {
	engine, exec := newCorpus(t, "the cat sat", "the dog sat", "a cat and a cat")
	mux := newMux(New(exec, engine, nil, nil, searchConfig))

	rec := get(mux, "/api/search?query=cat")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	results := decodeResults(t, rec)
	if len(results) != 2 {
		t.Fatalf("results = %+v", results)
	}
	for _, r := range results {
		if r.DocID == 2 || r.Score <= 0 || r.Content == "" {
			t.Errorf("unexpected result %+v", r)
		}
	}
	if results[0].Score < results[1].Score {
		t.Errorf("results not sorted by score: %+v", results)
	}
}

func TestSearchRequiresQuery(t *testing.T) {
	engine, exec := newCorpus(t)
	mux := newMux(New(exec, engine, nil, nil, searchConfig))

	for _, path := range []string{"/api/search", "/api/search?query=", "/api/search?query=%20%20"} {
		if rec := get(mux, path); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", path, rec.Code)
		}
	}
}

func TestSearchReturnsEmptyArray(t *testing.T) {
	engine, exec := newCorpus(t, "the cat sat")
	mux := newMux(New(exec, engine, nil, nil, searchConfig))

	for _, q := range []string{"zebra", "the", "and+of"} {
		rec := get(mux, "/api/search?query="+q)
		if rec.Code != http.StatusOK {
			t.Fatalf("%q: status = %d", q, rec.Code)
		}
		if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
			t.Errorf("%q: body = %s, want []", q, body)
		}
	}
}

func TestSearchEmptyCorpus(t *testing.T) {
	engine, exec := newCorpus(t)
	mux := newMux(New(exec, engine, nil, nil, searchConfig))
	rec := get(mux, "/api/search?query=cat")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("status = %d, body = %s", rec.Code, rec.Body)
	}
}

func TestSearchLimit(t *testing.T) {
	docs := make([]string, 15)
	for i := range docs {
		docs[i] = "cat number " + strconv.Itoa(i)
	}
	engine, exec := newCorpus(t, docs...)
	mux := newMux(New(exec, engine, nil, nil, searchConfig))

	if got := decodeResults(t, get(mux, "/api/search?query=cat")); len(got) != 10 {
		t.Errorf("default limit returned %d results", len(got))
	}
	if got := decodeResults(t, get(mux, "/api/search?query=cat&limit=3")); len(got) != 3 {
		t.Errorf("limit=3 returned %d results", len(got))
	}
	if got := decodeResults(t, get(mux, "/api/search?query=cat&limit=50")); len(got) != 10 {
		t.Errorf("limit=50 returned %d results", len(got))
	}
	if rec := get(mux, "/api/search?query=cat&limit=0"); rec.Code != http.StatusBadRequest {
		t.Errorf("limit=0 status = %d", rec.Code)
	}
}

type failingExecutor struct{}

func (failingExecutor) Execute(context.Context, *parser.QueryPlan, int) ([]executor.Result, error) {
	return nil, apperrors.Storage("executing search", errors.New("disk on fire"))
}

func TestSearchStorageFailure(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	engine, _ := newCorpus(t)
	mux := newMux(New(failingExecutor{}, engine, nil, nil, searchConfig, WithMetrics(m)))

	rec := get(mux, "/api/search?query=cat")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["error"] != "server error" {
		t.Errorf("error = %q", body["error"])
	}
	if got := testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("error queries = %v", got)
	}
}

func TestSearchMetrics(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	engine, exec := newCorpus(t, "the cat sat")
	mux := newMux(New(exec, engine, nil, nil, searchConfig, WithMetrics(m), WithTracing(true)))

	get(mux, "/api/search?query=cat")
	get(mux, "/api/search?query=zebra")

	if got := testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("hit")); got != 1 {
		t.Errorf("hit queries = %v", got)
	}
	if got := testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("zero_result")); got != 1 {
		t.Errorf("zero_result queries = %v", got)
	}
}

func TestSearchTracksAnalytics(t *testing.T) {
	engine, exec := newCorpus(t, "the cat sat")
	agg := analytics.NewAggregator()
	collector := analytics.NewCollector(analytics.NewLocalPublisher(agg), 16)
	collector.Start(context.Background())
	mux := newMux(New(exec, engine, nil, collector, searchConfig))

	get(mux, "/api/search?query=cat")
	get(mux, "/api/search?query=zebra")
	collector.Close()

	stats := agg.Stats()
	if stats.TotalSearches != 2 || stats.ZeroResultCount != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestTermLookup(t *testing.T) {
	engine, exec := newCorpus(t, "the cat sat", "cat cat")
	mux := newMux(New(exec, engine, nil, nil, searchConfig))

	rec := get(mux, "/api/terms/Cats")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown term status = %d", rec.Code)
	}

	rec = get(mux, "/api/terms/CAT")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var info struct {
		Term     string `json:"term"`
		DF       int64  `json:"df"`
		CF       int64  `json:"cf"`
		Postings []struct {
			DocID int64 `json:"docId"`
			TF    int   `json:"tf"`
		} `json:"postings"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatal(err)
	}
	if info.Term != "cat" || info.DF != 2 || info.CF != 3 || len(info.Postings) != 2 {
		t.Errorf("info = %+v", info)
	}
}

type memoryBackend struct {
	mu   sync.Mutex
	data map[string]string
}

func (b *memoryBackend) Get(_ context.Context, key string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (b *memoryBackend) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v, ok := value.([]byte); ok {
		b.data[key] = string(v)
	}
	return nil
}

func (b *memoryBackend) Incr(_ context.Context, key string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, _ := strconv.ParseInt(b.data[key], 10, 64)
	n++
	b.data[key] = strconv.FormatInt(n, 10)
	return n, nil
}

func (b *memoryBackend) GetInt64(ctx context.Context, key string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v, ok := b.data[key]; ok {
		return strconv.ParseInt(v, 10, 64)
	}
	return 0, nil
}

func (b *memoryBackend) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var n int64
	for k := range b.data {
		if strings.HasPrefix(k, strings.TrimSuffix(pattern, "*")) {
			delete(b.data, k)
			n++
		}
	}
	return n, nil
}

func TestSearchUsesCache(t *testing.T) {
	engine, exec := newCorpus(t, "the cat sat")
	qc := cache.New(&memoryBackend{data: make(map[string]string)}, config.RedisConfig{CacheTTL: time.Minute}, nil)
	mux := newMux(New(exec, engine, qc, nil, searchConfig))

	first := get(mux, "/api/search?query=cat")
	second := get(mux, "/api/search?query=CAT!")
	if first.Body.String() != second.Body.String() {
		t.Errorf("cached body differs: %s vs %s", first.Body, second.Body)
	}
	if stats := qc.Stats(); stats.Hits != 1 {
		t.Errorf("cache stats = %+v", stats)
	}

	rec := get(mux, "/api/cache/stats")
	var body map[string]any
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["hits"] != float64(1) || body["breaker"] != "closed" {
		t.Errorf("stats body = %v", body)
	}

	inv := httptest.NewRecorder()
	mux.ServeHTTP(inv, httptest.NewRequest(http.MethodPost, "/api/cache/invalidate", nil))
	if inv.Code != http.StatusOK {
		t.Errorf("invalidate status = %d", inv.Code)
	}
}

func TestCacheEndpointsWhenDisabled(t *testing.T) {
	engine, exec := newCorpus(t)
	mux := newMux(New(exec, engine, nil, nil, searchConfig))

	if rec := get(mux, "/api/cache/stats"); !strings.Contains(rec.Body.String(), "disabled") {
		t.Errorf("stats body = %s", rec.Body)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/cache/invalidate", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("invalidate status = %d", rec.Code)
	}
}
