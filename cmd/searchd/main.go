package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/indexer"
	ingesthandler "github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/searcher/executor"
	searchhandler "github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/store/memory"
	pgstore "github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/store/postgres"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/ratelimit"
	pkgredis "github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/redis"
	"github.com/joho/godotenv"
)

type store interface {
	corpus.Store
	health.Pinger
	Close() error
}

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service",
		"port", cfg.Server.Port,
		"storage", cfg.Storage.Backend,
		"weighting", cfg.Indexer.Weighting,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	checker := health.NewChecker(5 * time.Second)

	var (
		corpusStore store
		snapshots   *aggregator.Store
	)
	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		pg := pgstore.New(db)
		if err := pg.Migrate(ctx); err != nil {
			slog.Error("failed to migrate corpus schema", "error", err)
			os.Exit(1)
		}
		snapshots = aggregator.NewStore(db)
		if err := snapshots.Migrate(ctx); err != nil {
			slog.Error("failed to migrate analytics schema", "error", err)
			os.Exit(1)
		}
		corpusStore = pg
		slog.Info("postgres corpus store ready", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	default:
		corpusStore = memory.New()
		slog.Info("in-memory corpus store ready")
	}
	defer corpusStore.Close()
	checker.Register("store", health.PingCheck(corpusStore))

	engine, err := indexer.NewEngine(corpusStore, cfg.Indexer, indexer.WithMetrics(m))
	if err != nil {
		slog.Error("failed to create indexer", "error", err)
		os.Exit(1)
	}
	exec := executor.New(corpusStore, engine.Scheme(), cfg.Search.MaxResults)

	var queryCache *cache.QueryCache
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis, m)
			checker.Register("redis", health.Optional(health.PingCheck(redisClient)))
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	agg := analytics.NewAggregator()
	var publisher analytics.Publisher = analytics.NewLocalPublisher(agg)
	if cfg.Kafka.Enabled {
		topic := cfg.Kafka.Topics.AnalyticsEvents
		producer := kafka.NewProducer(cfg.Kafka, topic)
		defer producer.Close()
		publisher = producer
		checker.Register("kafka", health.Optional(health.PingCheck(producer)))

		consumer := kafka.NewConsumer(cfg.Kafka, topic, agg.Handler())
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("analytics consumer error", "error", err)
			}
		}()
		slog.Info("analytics events routed through kafka", "topic", topic, "group", cfg.Kafka.ConsumerGroup)
	}
	collector := analytics.NewCollector(publisher, cfg.Analytics.BufferSize)
	collector.Start(ctx)
	defer collector.Close()

	var history analytics.SnapshotLister
	if snapshots != nil {
		if latest, err := snapshots.LatestSnapshot(ctx); err == nil && latest != nil {
			slog.Info("previous analytics snapshot found",
				"captured_at", latest.CapturedAt,
				"total_searches", latest.Stats.TotalSearches,
			)
		}
		snapshots.StartPeriodicSave(ctx, agg, cfg.Analytics.SnapshotInterval)
		history = snapshots
	}

	engine.OnIndexed(func(ctx context.Context, doc indexer.IndexedDocument) {
		if queryCache != nil {
			if err := queryCache.Invalidate(ctx); err != nil {
				logger.FromContext(ctx).Warn("cache invalidation after ingest failed", "error", err)
			}
		}
		collector.TrackIndex(analytics.IndexEvent{
			DocID:         doc.DocID,
			Tokens:        doc.Index.Tokens,
			DistinctTerms: doc.Index.DistinctTerms,
			Vectors:       doc.Recompute.Vectors,
			Dropped:       doc.Recompute.Dropped,
			LatencyMs:     doc.Latency.Milliseconds(),
			Timestamp:     time.Now().UTC(),
			RequestID:     middleware.GetRequestID(ctx),
		})
	})

	documents := ingesthandler.New(engine)
	search := searchhandler.New(exec, engine, queryCache, collector, cfg.Search,
		searchhandler.WithMetrics(m),
		searchhandler.WithTracing(cfg.Tracing.Enabled),
	)
	analyticsH := analytics.NewHandler(agg, history)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintln(w, "TF-IDF search service")
	})
	mux.HandleFunc("POST /api/documents", documents.AddDocument)
	mux.HandleFunc("GET /api/documents/{id}", documents.GetDocument)
	mux.HandleFunc("POST /api/admin/recompute", documents.Recompute)
	mux.HandleFunc("GET /api/search", search.Search)
	mux.HandleFunc("GET /api/terms/{term}", search.Term)
	mux.HandleFunc("GET /api/cache/stats", search.CacheStats)
	mux.HandleFunc("POST /api/cache/invalidate", search.CacheInvalidate)
	mux.HandleFunc("GET /api/analytics", analyticsH.Stats)
	mux.HandleFunc("GET /api/analytics/history", analyticsH.History)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	if cfg.RateLimit.Enabled {
		limiter := ratelimit.New(ctx, cfg.RateLimit.Window)
		chain = middleware.RateLimit(limiter, http.MethodPost, cfg.RateLimit.IngestPerWindow, int(cfg.RateLimit.Window.Seconds()))(chain)
	}
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	if m != nil {
		chain = middleware.Metrics(m)(chain)
	}
	chain = middleware.CORS(middleware.DefaultCORSConfig())(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	// ListenAndServe returns as soon as Shutdown starts; in-flight handlers
	// still track analytics until Shutdown returns.
	<-shutdownDone

	slog.Info("search service stopped")
}
