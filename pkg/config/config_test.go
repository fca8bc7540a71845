package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Storage.Backend != BackendMemory {
		t.Errorf("expected memory backend, got %q", cfg.Storage.Backend)
	}
	if cfg.Indexer.Weighting != "log10" {
		t.Errorf("expected log10 weighting, got %q", cfg.Indexer.Weighting)
	}
	if cfg.Search.MaxResults != 10 {
		t.Errorf("expected maxResults 10, got %d", cfg.Search.MaxResults)
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
server:
  port: 9999
  readTimeout: 5s
storage:
  backend: postgres
indexer:
  weighting: natural
redis:
  enabled: true
  cacheTTL: 2m
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	t.Setenv("TS_SERVER_PORT", "7070")
	t.Setenv("TS_POSTGRES_HOST", "db.internal")
	t.Setenv("TS_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("env override not applied, port=%d", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 5*time.Second {
		t.Errorf("readTimeout = %v", cfg.Server.ReadTimeout)
	}
	if cfg.Storage.Backend != BackendPostgres {
		t.Errorf("backend = %q", cfg.Storage.Backend)
	}
	if cfg.Indexer.Weighting != "natural" {
		t.Errorf("weighting = %q", cfg.Indexer.Weighting)
	}
	if !cfg.Redis.Enabled || cfg.Redis.CacheTTL != 2*time.Minute {
		t.Errorf("redis = %+v", cfg.Redis)
	}
	if cfg.Postgres.Host != "db.internal" {
		t.Errorf("postgres host = %q", cfg.Postgres.Host)
	}
	if len(cfg.Kafka.Brokers) != 2 {
		t.Errorf("brokers = %v", cfg.Kafka.Brokers)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"backend", map[string]string{"TS_STORAGE_BACKEND": "sqlite"}},
		{"weighting", map[string]string{"TS_INDEXER_WEIGHTING": "bm25"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(""); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
