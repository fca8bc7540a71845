// Command reindex rebuilds every document vector of the configured corpus
// from its stored term statistics and postings.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/indexer"
	pgstore "github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/store/postgres"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/postgres"
	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	weighting := flag.String("weighting", "", "override the configured weighting scheme (log10 or natural)")
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
	if *weighting != "" {
		cfg.Indexer.Weighting = *weighting
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if cfg.Storage.Backend != config.BackendPostgres {
		slog.Error("reindex needs a durable store", "storage", cfg.Storage.Backend)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	store := pgstore.New(db)
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		slog.Error("failed to migrate corpus schema", "error", err)
		os.Exit(1)
	}

	engine, err := indexer.NewEngine(store, cfg.Indexer)
	if err != nil {
		slog.Error("failed to create indexer", "error", err)
		os.Exit(1)
	}
	slog.Info("recomputing document vectors", "weighting", engine.Scheme().Name())
	stats, err := engine.Recompute(ctx)
	if err != nil {
		slog.Error("recompute failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("documents=%d terms=%d vectors=%d dropped=%d duration=%s\n",
		stats.Documents, stats.Terms, stats.Vectors, stats.Dropped, stats.Duration)
}
