// Package cache stores search results in Redis. Keys embed a generation
// number that is bumped whenever the corpus changes, so results computed
// against an older corpus are never served again.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/resilience"
	"golang.org/x/sync/singleflight"
)

const (
	keyPrefix     = "search:"
	generationKey = "search-generation"
)

// Backend is the subset of the Redis client the cache uses.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Incr(ctx context.Context, key string) (int64, error)
	GetInt64(ctx context.Context, key string) (int64, error)
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type Stats struct {
	Hits       int64  `json:"hits"`
	Misses     int64  `json:"misses"`
	Errors     int64  `json:"errors"`
	Generation int64  `json:"generation"`
	Breaker    string `json:"breaker"`
}

type QueryCache struct {
	client  Backend
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
	errors  atomic.Int64
	gen     atomic.Int64
}

// New builds a cache over client. m may be nil.
func New(client Backend, cfg config.RedisConfig, m *metrics.Metrics) *QueryCache {
	c := &QueryCache{
		client:  client,
		ttl:     cfg.CacheTTL,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
	c.breaker = resilience.NewCircuitBreaker("redis-cache", resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     10 * time.Second,
		OnStateChange: func(name string, to resilience.State) {
			if m != nil {
				m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})
	return c
}

// GetOrCompute returns the cached result for plan and limit, or runs
// computeFn, stores its result and returns it. Cache failures never fail the
// search; they only bypass the cache.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	plan *parser.QueryPlan,
	limit int,
	computeFn func() ([]executor.Result, error),
) ([]executor.Result, bool, error) {
	gen := c.generation(ctx)
	key := buildKey(gen, plan.Terms, limit)
	if result, ok := c.get(ctx, key); ok {
		return result, true, nil
	}
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if result, ok := c.get(ctx, key); ok {
			return result, nil
		}
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]executor.Result), false, nil
}

// Invalidate makes every cached result unreachable by moving to a new
// generation. Old entries expire through their TTL.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	var gen int64
	err := c.breaker.Execute(func() error {
		var err error
		gen, err = c.client.Incr(ctx, generationKey)
		return err
	})
	if err != nil {
		c.errors.Add(1)
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.gen.Store(gen)
	c.logger.Debug("cache generation advanced", "generation", gen)
	return nil
}

// Purge invalidates and also deletes every cached result key.
func (c *QueryCache) Purge(ctx context.Context) (int64, error) {
	if err := c.Invalidate(ctx); err != nil {
		return 0, err
	}
	deleted, err := c.client.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return deleted, fmt.Errorf("purging cache: %w", err)
	}
	c.logger.Info("cache purged", "keys_deleted", deleted)
	return deleted, nil
}

func (c *QueryCache) Stats() Stats {
	return Stats{
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
		Errors:     c.errors.Load(),
		Generation: c.gen.Load(),
		Breaker:    c.breaker.GetState().String(),
	}
}

// generation reads the shared generation counter, falling back to the last
// value seen when Redis is unreachable.
func (c *QueryCache) generation(ctx context.Context) int64 {
	var gen int64
	err := c.breaker.Execute(func() error {
		var err error
		gen, err = c.client.GetInt64(ctx, generationKey)
		return err
	})
	if err != nil {
		c.errors.Add(1)
		return c.gen.Load()
	}
	c.gen.Store(gen)
	return gen
}

func (c *QueryCache) get(ctx context.Context, key string) ([]executor.Result, bool) {
	var data string
	err := c.breaker.Execute(func() error {
		var err error
		data, err = c.client.Get(ctx, key)
		if pkgredis.IsNilError(err) {
			return nil
		}
		return err
	})
	if err != nil {
		c.errors.Add(1)
		c.logger.Warn("cache get failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	if data == "" {
		c.miss()
		return nil, false
	}
	var result []executor.Result
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	return result, true
}

func (c *QueryCache) set(ctx context.Context, key string, result []executor.Result) {
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.client.Set(ctx, key, data, c.ttl)
	})
	if err != nil {
		c.errors.Add(1)
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// buildKey hashes the sorted distinct query terms, so queries that differ only
// in case, punctuation, stopwords or term order share an entry.
func buildKey(generation int64, terms []string, limit int) string {
	sorted := append([]string(nil), terms...)
	sort.Strings(sorted)
	raw := fmt.Sprintf("%s:limit=%d", strings.Join(sorted, ","), limit)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%d:%x", keyPrefix, generation, hash[:16])
}
